package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-deviation-rag/internal/pipeline"
)

// Job states.
const (
	JobRunning  = "running"
	JobComplete = "complete"
	JobError    = "error"
)

// JobStatus represents the current state of a background pipeline job.
type JobStatus struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"` // running, complete, error
	Progress    int        `json:"progress"`
	Total       int        `json:"total"`
	Running     []string   `json:"running"`
	Completed   []string   `json:"completed"`
	Failed      []string   `json:"failed"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (j JobStatus) done() bool {
	return j.Status == JobComplete || j.Status == JobError
}

func (j JobStatus) clone() JobStatus {
	j.Running = append([]string{}, j.Running...)
	j.Completed = append([]string{}, j.Completed...)
	j.Failed = append([]string{}, j.Failed...)
	return j
}

// DefaultJobRetention is how long a finished job stays queryable.
const DefaultJobRetention = time.Hour

// JobTracker manages pipeline jobs in memory.
type JobTracker struct {
	mu        sync.RWMutex
	jobs      map[string]*JobStatus
	subs      map[string][]chan JobStatus // subscribers per job
	retention time.Duration
}

// NewJobTracker creates a job tracker that keeps finished jobs for DefaultJobRetention.
func NewJobTracker() *JobTracker {
	return NewJobTrackerWithRetention(DefaultJobRetention)
}

// NewJobTrackerWithRetention creates a job tracker that drops finished jobs
// after retention. retention <= 0 uses DefaultJobRetention.
func NewJobTrackerWithRetention(retention time.Duration) *JobTracker {
	if retention <= 0 {
		retention = DefaultJobRetention
	}
	return &JobTracker{
		jobs:      make(map[string]*JobStatus),
		subs:      make(map[string][]chan JobStatus),
		retention: retention,
	}
}

// CreateJob creates a new job entry. Total grows as the pipeline announces tasks.
func (t *JobTracker) CreateJob(id, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = &JobStatus{
		ID:        id,
		Kind:      kind,
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
}

// Observer returns a pipeline observer that feeds task transitions into job id.
func (t *JobTracker) Observer(id string) pipeline.Observer {
	return func(e pipeline.Event) {
		t.update(id, func(job *JobStatus) {
			switch e.State {
			case pipeline.StatePending:
				job.Total++
			case pipeline.StateRunning:
				job.Running = append(job.Running, e.Key)
			case pipeline.StateCompleted:
				job.Running = remove(job.Running, e.Key)
				job.Completed = append(job.Completed, e.Key)
				job.Progress++
			case pipeline.StateFailed:
				job.Running = remove(job.Running, e.Key)
				job.Failed = append(job.Failed, e.Key)
				job.Progress++
			}
		})
	}
}

// Finish marks the job complete with its result, or errored when err is set.
func (t *JobTracker) Finish(id string, result any, err error) {
	t.update(id, func(job *JobStatus) {
		now := time.Now()
		job.CompletedAt = &now
		job.Running = nil
		if err != nil {
			job.Status = JobError
			job.Error = err.Error()
			return
		}
		job.Status = JobComplete
		job.Result = result
	})
	time.AfterFunc(t.retention, func() { t.evict(id) })
}

// evict drops a finished job and its subscriber list.
func (t *JobTracker) evict(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[id]; ok && job.done() {
		delete(t.jobs, id)
		delete(t.subs, id)
		slog.Debug("job evicted", "job_id", id)
	}
}

// update mutates a job and notifies subscribers.
func (t *JobTracker) update(id string, fn func(*JobStatus)) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(job)
	snapshot := job.clone()
	subs := append([]chan JobStatus(nil), t.subs[id]...)
	t.mu.Unlock()

	// Notify subscribers; a slow reader misses intermediate states, never the final one.
	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
			if snapshot.done() {
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- snapshot:
				default:
				}
			}
		}
	}
}

// GetJob returns a job status.
func (t *JobTracker) GetJob(id string) (*JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := job.clone()
	return &snapshot, true
}

// Subscribe returns a channel that receives job updates.
func (t *JobTracker) Subscribe(id string) chan JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan JobStatus, 16)
	t.subs[id] = append(t.subs[id], ch)
	return ch
}

// Unsubscribe removes a channel from subscribers.
func (t *JobTracker) Unsubscribe(id string, ch chan JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[id]
	for i, s := range subs {
		if s == ch {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(t.subs, id)
		return
	}
	t.subs[id] = subs
}

func remove(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	tracker *JobTracker
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(tracker *JobTracker) *JobsHandler {
	return &JobsHandler{tracker: tracker}
}

// Register sets up job routes.
func (h *JobsHandler) Register(router fiber.Router) {
	jobs := router.Group("/jobs")
	jobs.Get("/:id", h.GetStatus)
	jobs.Get("/:id/stream", h.StreamSSE)
}

// GetStatus returns the current job status.
func (h *JobsHandler) GetStatus(c fiber.Ctx) error {
	job, ok := h.tracker.GetJob(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	return c.JSON(job)
}

// StreamSSE streams job updates via Server-Sent Events.
func (h *JobsHandler) StreamSSE(c fiber.Ctx) error {
	id := c.Params("id")

	ch := h.tracker.Subscribe(id)
	job, ok := h.tracker.GetJob(id)
	if !ok {
		h.tracker.Unsubscribe(id, ch)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// If already complete, just return the final status
	if job.done() {
		h.tracker.Unsubscribe(id, ch)
		return c.SendString(sseEvent(job.Status, job))
	}

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.tracker.Unsubscribe(id, ch)

		fmt.Fprint(w, sseEvent("progress", job))
		if err := w.Flush(); err != nil {
			return
		}

		timeout := time.After(10 * time.Minute)
		for {
			select {
			case update := <-ch:
				event := "progress"
				if update.done() {
					event = update.Status
				}
				fmt.Fprint(w, sseEvent(event, update))
				if err := w.Flush(); err != nil {
					slog.Debug("SSE client gone", "job_id", id)
					return
				}
				if update.done() {
					return
				}
			case <-timeout:
				slog.Warn("SSE timeout", "job_id", id)
				return
			}
		}
	})
}

func sseEvent(event string, v any) string {
	data, _ := json.Marshal(v)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}
