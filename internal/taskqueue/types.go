// Package taskqueue schedules asynchronous derivation tasks for execution,
// either on an in-process worker pool or through a redis-backed dispatch
// service with HTTP callback delivery.
package taskqueue

import (
	"context"
	"time"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
)

// Common sentinel errors returned by queue operations.
var (
	ErrQueueStopped = errors.NewStd("task queue has been stopped")
	ErrTaskNotFound = errors.NewStd("task not found in queue")
	ErrQueueFull    = errors.NewStd("task queue is full")
	ErrNoHandler    = errors.NewStd("no handler registered for task type")
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus int

const (
	// StatusPending indicates the task is waiting for its execution time.
	StatusPending TaskStatus = iota
	// StatusRunning indicates a worker is executing the task.
	StatusRunning
	// StatusRetrying indicates a failed attempt with retries remaining.
	StatusRetrying
	// StatusCompleted indicates the task finished successfully.
	StatusCompleted
	// StatusFailed indicates the task exhausted its attempts or hit a
	// non-retryable error.
	StatusFailed
)

// String returns a human-readable status name.
func (s TaskStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusRetrying:
		return "retrying"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// parseStatus is the inverse of String, used when statuses cross the wire.
func parseStatus(s string) TaskStatus {
	switch s {
	case "pending":
		return StatusPending
	case "running":
		return StatusRunning
	case "retrying":
		return StatusRetrying
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

// Task is one unit of scheduled work. Payload is opaque to the queue.
type Task struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Payload     map[string]string `json:"payload"`
	ExecuteAt   time.Time         `json:"execute_at"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	CreatedAt   time.Time         `json:"created_at"`
	Status      TaskStatus        `json:"status"`
	LastError   string            `json:"last_error,omitempty"`
}

// Handler executes one task attempt. A nil return completes the task; a
// retryable error reschedules it with backoff, any other error fails it.
type Handler func(ctx context.Context, task *Task) error

// StatsSnapshot is a point-in-time view of queue activity.
type StatsSnapshot struct {
	Enqueued  int64
	Pending   int64
	Running   int64
	Retrying  int64
	Completed int64
	Failed    int64
}

// Queue is the scheduling contract shared by the local and distributed
// backends. Callers register handlers before Start.
type Queue interface {
	// Register binds a handler to a task type. Not safe to call after Start.
	Register(taskType string, handler Handler)
	// Enqueue schedules a task after the given delay and returns its ID.
	// It never blocks on task execution.
	Enqueue(ctx context.Context, taskType string, payload map[string]string, delay time.Duration) (string, error)
	// Status reports the current lifecycle state of a task by ID.
	Status(ctx context.Context, id string) (TaskStatus, error)
	// Stats returns a snapshot of queue counters.
	Stats() StatsSnapshot
	// Start launches the backend's workers or delivery endpoint.
	Start(ctx context.Context)
	// Stop shuts the backend down, waiting for in-flight tasks until the
	// context expires.
	Stop(ctx context.Context) error
}

// New selects the queue backend from configuration.
func New(settings *conf.Settings) (Queue, error) {
	switch settings.Queue.Backend {
	case "local":
		return NewLocalQueue(settings), nil
	case "redis":
		return NewRedisQueue(settings)
	default:
		return nil, errors.Newf("unsupported queue backend: %s", settings.Queue.Backend).
			Component("taskqueue").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
