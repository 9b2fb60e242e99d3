package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arturoeanton/go-deviation-rag/internal/metrics"
)

// Event reports a task state transition to observers.
type Event struct {
	Key      string
	Wave     int
	State    State
	Err      error
	Duration time.Duration
}

// Observer receives task events. It may be called from several goroutines
// at once and must not block.
type Observer func(Event)

// Scheduler executes graphs wave by wave on a bounded worker pool.
type Scheduler struct {
	workers     int
	taskTimeout time.Duration
	observers   []Observer
}

// NewScheduler creates a scheduler. workers <= 0 runs each wave fully
// parallel; taskTimeout <= 0 disables the per-task deadline.
func NewScheduler(workers int, taskTimeout time.Duration, observers ...Observer) *Scheduler {
	return &Scheduler{workers: workers, taskTimeout: taskTimeout, observers: observers}
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int { return s.workers }

// Run is the result of executing a graph.
type Run struct {
	Results *ResultsMap
	Waves   [][]string
	Elapsed time.Duration
}

// Failed reports whether any task failed.
func (r *Run) Failed() bool {
	return len(r.Results.Failures()) > 0
}

// Run executes every task of g. It always returns a result for every task:
// failures are recorded as sentinels while siblings continue.
func (s *Scheduler) Run(ctx context.Context, g *Graph, observers ...Observer) *Run {
	start := time.Now()
	results := NewResultsMap()
	notify := s.fanout(observers)

	for i, wave := range g.waves {
		for _, key := range wave {
			notify(Event{Key: key, Wave: i, State: StatePending})
		}
	}

	for i, wave := range g.waves {
		slog.Debug("pipeline wave started", "wave", i, "tasks", len(wave))

		var eg errgroup.Group
		if s.workers > 0 {
			eg.SetLimit(s.workers)
		}
		for _, key := range wave {
			eg.Go(func() error {
				s.runTask(ctx, g, g.tasks[key], i, results, notify)
				return nil
			})
		}
		// Barrier: no task of wave i+1 starts before every task of wave i is recorded.
		_ = eg.Wait()
		metrics.WavesTotal.Inc()
	}

	run := &Run{Results: results, Waves: g.Waves(), Elapsed: time.Since(start)}
	slog.Info("pipeline finished",
		"tasks", g.Len(),
		"waves", len(g.waves),
		"failed", len(results.Failures()),
		"elapsed", run.Elapsed,
	)
	return run
}

func (s *Scheduler) fanout(extra []Observer) Observer {
	all := append(append([]Observer(nil), s.observers...), extra...)
	return func(e Event) {
		for _, o := range all {
			o(e)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, g *Graph, t Task, wave int, results *ResultsMap, notify Observer) {
	start := time.Now()
	finish := func(text string, err error) {
		o := Outcome{Key: t.Key, Wave: wave, Text: text, Err: err, Duration: time.Since(start), State: StateCompleted}
		if err != nil {
			o.State = StateFailed
			o.Text = FailureText(t.Key, err)
		}
		if recErr := results.record(o); recErr != nil {
			slog.Error("pipeline result rejected", "task", t.Key, "error", recErr)
			return
		}
		metrics.TasksTotal.WithLabelValues(t.Key, o.State.String()).Inc()
		metrics.TaskDuration.WithLabelValues(t.Key).Observe(o.Duration.Seconds())
		if err != nil {
			slog.Warn("pipeline task failed", "task", t.Key, "wave", wave, "error", err)
		}
		notify(Event{Key: t.Key, Wave: wave, State: o.State, Err: err, Duration: o.Duration})
	}

	for _, dep := range t.DependsOn {
		o, ok := results.Get(dep)
		if !ok {
			finish("", fmt.Errorf("%w: %s has no result for %s", ErrInvalidGraph, t.Key, dep))
			return
		}
		if o.State == StateFailed {
			finish("", &DependencyFailedError{Task: t.Key, Dependency: dep, Cause: o.Err})
			return
		}
	}

	if err := ctx.Err(); err != nil {
		finish("", err)
		return
	}

	notify(Event{Key: t.Key, Wave: wave, State: StateRunning})
	input := assemble(t, results)
	finish(s.produce(ctx, t, input))
}

// produce runs t.Produce under the per-task deadline. A producer that ignores
// its context is abandoned once the deadline passes; its late result is discarded.
func (s *Scheduler) produce(ctx context.Context, t Task, input string) (string, error) {
	if s.taskTimeout <= 0 {
		return safeProduce(ctx, t, input)
	}

	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := safeProduce(taskCtx, t, input)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &TimeoutError{Task: t.Key, Timeout: s.taskTimeout}
		}
		return r.text, r.err
	case <-taskCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TimeoutError{Task: t.Key, Timeout: s.taskTimeout}
	}
}

func safeProduce(ctx context.Context, t Task, input string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return t.Produce(ctx, input)
}

// assemble builds the task context: its instructions followed by each
// dependency rendered through the dependency format, in declared order.
func assemble(t Task, results *ResultsMap) string {
	format := t.DependencyFormat
	if format == "" {
		format = DefaultDependencyFormat
	}

	var b strings.Builder
	b.WriteString(t.Instructions)
	for _, dep := range t.DependsOn {
		text, _ := results.Text(dep)
		b.WriteString(strings.NewReplacer("{key}", dep, "{text}", text).Replace(format))
	}
	return b.String()
}
