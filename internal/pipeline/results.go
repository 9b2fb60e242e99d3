package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// State is the lifecycle position of a task.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const sentinelPrefix = "[FAILED: "

// FailureText is the sentinel written in place of a failed task's output.
func FailureText(key string, err error) string {
	return fmt.Sprintf("%s%s] %v", sentinelPrefix, key, err)
}

// IsFailureText reports whether text is a failure sentinel.
func IsFailureText(text string) bool {
	return strings.HasPrefix(text, sentinelPrefix)
}

// Outcome is the final record of one task.
type Outcome struct {
	Key      string
	Wave     int
	State    State // StateCompleted or StateFailed
	Text     string
	Err      error
	Duration time.Duration
}

// ResultsMap is the write-once key -> outcome store shared by the tasks of a run.
type ResultsMap struct {
	mu sync.RWMutex
	m  map[string]Outcome
}

// NewResultsMap creates an empty map.
func NewResultsMap() *ResultsMap {
	return &ResultsMap{m: make(map[string]Outcome)}
}

func (r *ResultsMap) record(o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[o.Key]; ok {
		return fmt.Errorf("%w: %s", ErrResultExists, o.Key)
	}
	r.m[o.Key] = o
	return nil
}

// Get returns the outcome for key.
func (r *ResultsMap) Get(key string) (Outcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.m[key]
	return o, ok
}

// Text returns the output (or failure sentinel) for key.
func (r *ResultsMap) Text(key string) (string, bool) {
	o, ok := r.Get(key)
	return o.Text, ok
}

// Texts returns key -> output for every recorded task; failed keys hold sentinels.
func (r *ResultsMap) Texts() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.m))
	for k, o := range r.m {
		out[k] = o.Text
	}
	return out
}

// Failures returns key -> error for failed tasks.
func (r *ResultsMap) Failures() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]error)
	for k, o := range r.m {
		if o.State == StateFailed {
			out[k] = o.Err
		}
	}
	return out
}

// Len returns the number of recorded outcomes.
func (r *ResultsMap) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
