// Package tasks tracks background grading runs so the HTTP layer can
// report progress while a paper grades.
package tasks

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paperscore/paperscore/internal/session"
)

// Status is the lifecycle state of a grading task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Task is one background grading run.
type Task struct {
	ID        string                  `json:"id"`
	Status    Status                  `json:"status"`
	Progress  int                     `json:"progress"`
	Message   string                  `json:"message"`
	Result    *session.GradingSession `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Registry is a concurrency-safe task store. Completed tasks are kept
// for the retention window and then dropped.
type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	retention time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewRegistry creates a registry with the given retention for finished
// tasks.
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = time.Hour
	}
	r := &Registry{
		tasks:     make(map[string]*Task),
		retention: retention,
		stop:      make(chan struct{}),
	}
	go r.cleanup()
	return r
}

func (r *Registry) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-r.retention)
			r.mu.Lock()
			for id, task := range r.tasks {
				if (task.Status == StatusCompleted || task.Status == StatusError) && task.UpdatedAt.Before(cutoff) {
					delete(r.tasks, id)
				}
			}
			r.mu.Unlock()
		case <-r.stop:
			return
		}
	}
}

// Stop terminates the retention janitor. Safe to call more than once;
// the registry itself remains usable after Stop.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Create registers a new pending task and returns its id.
func (r *Registry) Create() string {
	now := time.Now()
	task := &Task{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()
	return task.ID
}

// Get returns a copy of the task, if known.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// SetProgress updates a running task's progress percentage and message.
func (r *Registry) SetProgress(id string, percent int, message string) {
	r.update(id, func(t *Task) {
		t.Status = StatusRunning
		t.Progress = percent
		t.Message = message
	})
}

// Complete marks a task finished with its grading session.
func (r *Registry) Complete(id string, result *session.GradingSession) {
	r.update(id, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = 100
		t.Message = "grading complete"
		t.Result = result
	})
}

// Fail marks a task errored.
func (r *Registry) Fail(id string, errMsg string) {
	r.update(id, func(t *Task) {
		t.Status = StatusError
		t.Error = errMsg
	})
}

func (r *Registry) update(id string, fn func(*Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return
	}
	fn(task)
	task.UpdatedAt = time.Now()
}
