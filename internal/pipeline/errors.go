package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for graph construction and task failures.
var (
	ErrInvalidGraph      = errors.New("invalid task graph")
	ErrCycle             = errors.New("dependency cycle")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrDuplicateTask     = errors.New("duplicate task key")
	ErrDependencyFailed  = errors.New("dependency failed")
	ErrTimeout           = errors.New("task timed out")
	ErrResultExists      = errors.New("result already recorded")
	ErrTaskPanicked      = errors.New("task panicked")
)

// DependencyFailedError marks a task that was not run because a required
// predecessor failed. Cause is the predecessor's own error.
type DependencyFailedError struct {
	Task       string
	Dependency string
	Cause      error
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("task %s: dependency %s failed: %v", e.Task, e.Dependency, e.Cause)
}

// Is makes errors.Is(err, ErrDependencyFailed) hold.
func (e *DependencyFailedError) Is(target error) bool { return target == ErrDependencyFailed }

func (e *DependencyFailedError) Unwrap() error { return e.Cause }

// TimeoutError marks a task whose production exceeded the per-task deadline.
type TimeoutError struct {
	Task    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s exceeded %s", e.Task, e.Timeout)
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }
