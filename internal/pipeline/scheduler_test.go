package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tracker records start and finish order of tasks and the peak concurrency.
type tracker struct {
	mu       sync.Mutex
	started  map[string]int
	finished map[string]int
	clock    int
	active   atomic.Int32
	peak     atomic.Int32
}

func newTracker() *tracker {
	return &tracker{started: map[string]int{}, finished: map[string]int{}}
}

func (tr *tracker) produce(key string, delay time.Duration, err error) ProduceFunc {
	return func(ctx context.Context, input string) (string, error) {
		n := tr.active.Add(1)
		for {
			p := tr.peak.Load()
			if n <= p || tr.peak.CompareAndSwap(p, n) {
				break
			}
		}
		tr.mu.Lock()
		tr.clock++
		tr.started[key] = tr.clock
		tr.mu.Unlock()

		time.Sleep(delay)

		tr.mu.Lock()
		tr.clock++
		tr.finished[key] = tr.clock
		tr.mu.Unlock()
		tr.active.Add(-1)

		if err != nil {
			return "", err
		}
		return key + " output", nil
	}
}

func deviationGraph(t *testing.T, tr *tracker, fail map[string]error) *Graph {
	t.Helper()
	mk := func(key string, deps ...string) Task {
		return Task{
			Key:          key,
			DependsOn:    deps,
			Instructions: "write " + key,
			Produce:      tr.produce(key, 5*time.Millisecond, fail[key]),
		}
	}
	g, err := NewGraph(
		mk("root_cause"),
		mk("capa", "root_cause"),
		mk("capa_effectiveness", "capa"),
		mk("pa_effectiveness", "capa"),
	)
	require.NoError(t, err)
	return g
}

func TestRunRespectsWaveBarrier(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 0} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			tr := newTracker()
			g := deviationGraph(t, tr, nil)

			run := NewScheduler(workers, 0).Run(context.Background(), g)

			require.False(t, run.Failed())
			assert.Equal(t, 4, run.Results.Len())
			assert.Less(t, tr.finished["root_cause"], tr.started["capa"])
			assert.Less(t, tr.finished["capa"], tr.started["capa_effectiveness"])
			assert.Less(t, tr.finished["capa"], tr.started["pa_effectiveness"])

			text, ok := run.Results.Text("pa_effectiveness")
			require.True(t, ok)
			assert.Equal(t, "pa_effectiveness output", text)
		})
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	tr := newTracker()
	var tasks []Task
	for i := 0; i < 12; i++ {
		key := fmt.Sprintf("t%d", i)
		tasks = append(tasks, Task{Key: key, Produce: tr.produce(key, 10*time.Millisecond, nil)})
	}
	g, err := NewGraph(tasks...)
	require.NoError(t, err)

	run := NewScheduler(3, 0).Run(context.Background(), g)
	assert.Equal(t, 12, run.Results.Len())
	assert.LessOrEqual(t, tr.peak.Load(), int32(3))
}

func TestRunIsolatesFailures(t *testing.T) {
	tr := newTracker()
	boom := errors.New("model unavailable")
	g, err := NewGraph(
		Task{Key: "root_cause", Produce: tr.produce("root_cause", 0, nil)},
		Task{Key: "capa", DependsOn: []string{"root_cause"}, Produce: tr.produce("capa", 0, boom)},
		Task{Key: "capa_effectiveness", DependsOn: []string{"capa"}, Produce: tr.produce("capa_effectiveness", 0, nil)},
		Task{Key: "summary", DependsOn: []string{"root_cause"}, Produce: tr.produce("summary", 0, nil)},
	)
	require.NoError(t, err)

	run := NewScheduler(2, 0).Run(context.Background(), g)
	require.True(t, run.Failed())

	capa, _ := run.Results.Get("capa")
	assert.Equal(t, StateFailed, capa.State)
	assert.ErrorIs(t, capa.Err, boom)
	assert.True(t, IsFailureText(capa.Text))
	assert.Equal(t, "[FAILED: capa] model unavailable", capa.Text)

	eff, _ := run.Results.Get("capa_effectiveness")
	assert.Equal(t, StateFailed, eff.State)
	var depErr *DependencyFailedError
	require.ErrorAs(t, eff.Err, &depErr)
	assert.Equal(t, "capa", depErr.Dependency)
	assert.ErrorIs(t, eff.Err, ErrDependencyFailed)
	assert.ErrorIs(t, eff.Err, boom)
	_, ran := tr.started["capa_effectiveness"]
	assert.False(t, ran, "task with a failed dependency must not run")

	sibling, _ := run.Results.Get("summary")
	assert.Equal(t, StateCompleted, sibling.State)
	assert.Equal(t, "summary output", sibling.Text)

	assert.Len(t, run.Results.Failures(), 2)
	assert.Equal(t, 4, run.Results.Len())
}

func TestRunAssemblesDependencyContext(t *testing.T) {
	var got string
	g, err := NewGraph(
		Task{Key: "root_cause", Produce: echo("cause A")},
		Task{Key: "capa", Produce: echo("capa B")},
		Task{
			Key:              "effectiveness",
			DependsOn:        []string{"root_cause", "capa"},
			Instructions:     "Evaluate:",
			DependencyFormat: " [{key}={text}]",
			Produce: func(_ context.Context, input string) (string, error) {
				got = input
				return "ok", nil
			},
		},
	)
	require.NoError(t, err)

	NewScheduler(1, 0).Run(context.Background(), g)
	assert.Equal(t, "Evaluate: [root_cause=cause A] [capa=capa B]", got)
}

func TestRunDefaultDependencyFormat(t *testing.T) {
	var got string
	g, err := NewGraph(
		Task{Key: "a", Produce: echo("alpha")},
		Task{Key: "b", DependsOn: []string{"a"}, Instructions: "go", Produce: func(_ context.Context, in string) (string, error) {
			got = in
			return "", nil
		}},
	)
	require.NoError(t, err)

	NewScheduler(0, 0).Run(context.Background(), g)
	assert.Equal(t, "go\n\nThe completed a output is:\nalpha\n", got)
}

func TestRunTaskTimeout(t *testing.T) {
	g, err := NewGraph(
		Task{Key: "slow", Produce: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}},
		Task{Key: "stubborn", Produce: func(context.Context, string) (string, error) {
			time.Sleep(200 * time.Millisecond)
			return "late", nil
		}},
		Task{Key: "fast", Produce: echo("quick")},
	)
	require.NoError(t, err)

	start := time.Now()
	run := NewScheduler(0, 20*time.Millisecond).Run(context.Background(), g)
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	for _, key := range []string{"slow", "stubborn"} {
		o, _ := run.Results.Get(key)
		assert.Equal(t, StateFailed, o.State, key)
		var te *TimeoutError
		require.ErrorAs(t, o.Err, &te, key)
		assert.Equal(t, key, te.Task)
		assert.ErrorIs(t, o.Err, ErrTimeout)
	}
	fast, _ := run.Results.Get("fast")
	assert.Equal(t, StateCompleted, fast.State)
}

func TestRunRecoversPanics(t *testing.T) {
	g, err := NewGraph(
		Task{Key: "bad", Produce: func(context.Context, string) (string, error) { panic("nil prompt") }},
		Task{Key: "good", Produce: echo("fine")},
	)
	require.NoError(t, err)

	run := NewScheduler(2, 0).Run(context.Background(), g)
	bad, _ := run.Results.Get("bad")
	assert.ErrorIs(t, bad.Err, ErrTaskPanicked)
	assert.True(t, strings.Contains(bad.Text, "nil prompt"))
	good, _ := run.Results.Get("good")
	assert.Equal(t, "fine", good.Text)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, err := NewGraph(task("a"), task("b", "a"))
	require.NoError(t, err)

	run := NewScheduler(1, 0).Run(ctx, g)
	a, _ := run.Results.Get("a")
	assert.ErrorIs(t, a.Err, context.Canceled)
	b, _ := run.Results.Get("b")
	assert.ErrorIs(t, b.Err, ErrDependencyFailed)
}

func TestRunNotifiesObservers(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	observe := func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	g, err := NewGraph(task("a"), task("b", "a"))
	require.NoError(t, err)

	NewScheduler(1, 0).Run(context.Background(), g, observe)

	states := map[string][]State{}
	for _, e := range events {
		states[e.Key] = append(states[e.Key], e.State)
	}
	want := []State{StatePending, StateRunning, StateCompleted}
	assert.Equal(t, want, states["a"])
	assert.Equal(t, want, states["b"])
}

func TestResultsMapWriteOnce(t *testing.T) {
	r := NewResultsMap()
	require.NoError(t, r.record(Outcome{Key: "a", State: StateCompleted, Text: "one"}))
	err := r.record(Outcome{Key: "a", State: StateCompleted, Text: "two"})
	assert.ErrorIs(t, err, ErrResultExists)

	text, _ := r.Text("a")
	assert.Equal(t, "one", text)
	assert.Equal(t, map[string]string{"a": "one"}, r.Texts())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
