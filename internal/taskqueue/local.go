package taskqueue

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
	"github.com/soundvault/wavegen/internal/retry"
)

// maxArchivedTasks bounds how many terminal tasks remain queryable.
const maxArchivedTasks = 1000

// minRetrySpacing guarantees a rescheduled task's ExecuteAt strictly
// increases even if the configured backoff rounds to zero.
const minRetrySpacing = time.Millisecond

// taskItem is a heap entry. seq breaks ties between tasks scheduled for
// the same instant, preserving enqueue order.
type taskItem struct {
	task  *Task
	seq   uint64
	index int
}

// taskHeap is a min-heap ordered by ExecuteAt, then enqueue sequence.
type taskHeap []*taskItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.ExecuteAt.Equal(h[j].task.ExecuteAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].task.ExecuteAt.Before(h[j].task.ExecuteAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	item := x.(*taskItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// LocalQueue runs tasks on an in-process worker pool. Scheduling is a
// min-heap on ExecuteAt; workers sleep until the earliest task is due and
// are woken by new arrivals.
type LocalQueue struct {
	mu       sync.Mutex
	heap     taskHeap
	tasks    map[string]*Task // every non-archived task by ID
	archive  map[string]*Task // terminal tasks, bounded FIFO
	archived []string         // archive eviction order
	seq      uint64

	handlers map[string]Handler
	workers  int
	maxTasks int
	backoff  retry.Policy

	wake    chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool

	running   atomic.Int64
	enqueued  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	logger *slog.Logger
}

// NewLocalQueue creates a local queue from configuration. Call Start to
// launch the workers.
func NewLocalQueue(settings *conf.Settings) *LocalQueue {
	workers := settings.Queue.Workers
	if workers < 1 {
		workers = 1
	}
	return &LocalQueue{
		tasks:    make(map[string]*Task),
		archive:  make(map[string]*Task),
		handlers: make(map[string]Handler),
		workers:  workers,
		maxTasks: settings.Queue.MaxTasks,
		backoff: retry.Policy{
			MaxAttempts:  settings.Queue.Retry.MaxAttempts,
			InitialDelay: settings.Queue.Retry.InitialDelay,
			Multiplier:   settings.Queue.Retry.Multiplier,
			MaxDelay:     settings.Queue.Retry.MaxDelay,
			Jitter:       true,
		},
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		logger: logging.ForService("taskqueue"),
	}
}

// Register implements Queue.
func (q *LocalQueue) Register(taskType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = handler
}

// Enqueue implements Queue. The task becomes eligible after delay; a zero
// delay makes it immediately runnable.
func (q *LocalQueue) Enqueue(ctx context.Context, taskType string, payload map[string]string, delay time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return "", ErrQueueStopped
	}
	if _, ok := q.handlers[taskType]; !ok {
		return "", errors.New(ErrNoHandler).
			Component("taskqueue").
			Category(errors.CategoryValidation).
			Context("task_type", taskType).
			Build()
	}
	if q.maxTasks > 0 && len(q.heap) >= q.maxTasks {
		return "", errors.New(ErrQueueFull).
			Component("taskqueue").
			Category(errors.CategoryJobQueue).
			Context("max_tasks", q.maxTasks).
			Build()
	}

	now := time.Now()
	task := &Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		Payload:     payload,
		ExecuteAt:   now.Add(delay),
		MaxAttempts: q.backoff.MaxAttempts,
		CreatedAt:   now,
		Status:      StatusPending,
	}

	q.seq++
	heap.Push(&q.heap, &taskItem{task: task, seq: q.seq})
	q.tasks[task.ID] = task
	q.enqueued.Add(1)
	q.notify()

	q.logger.Debug("task enqueued", "task_id", task.ID, "task_type", taskType, "delay", delay)
	return task.ID, nil
}

// Status implements Queue.
func (q *LocalQueue) Status(ctx context.Context, id string) (TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task, ok := q.tasks[id]; ok {
		return task.Status, nil
	}
	if task, ok := q.archive[id]; ok {
		return task.Status, nil
	}
	return StatusFailed, errors.New(ErrTaskNotFound).
		Component("taskqueue").
		Category(errors.CategoryNotFound).
		Context("task_id", id).
		Build()
}

// Stats implements Queue.
func (q *LocalQueue) Stats() StatsSnapshot {
	q.mu.Lock()
	var pending, retrying int64
	for _, item := range q.heap {
		if item.task.Status == StatusRetrying {
			retrying++
		} else {
			pending++
		}
	}
	q.mu.Unlock()

	return StatsSnapshot{
		Enqueued:  q.enqueued.Load(),
		Pending:   pending,
		Running:   q.running.Load(),
		Retrying:  retrying,
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

// Start implements Queue, launching the worker pool.
func (q *LocalQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.logger.Info("local queue started", "workers", q.workers)
}

// Stop implements Queue. It refuses new work immediately and waits for
// in-flight tasks until ctx expires.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.mu.Unlock()
	close(q.quit)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("local queue stopped")
		return nil
	case <-ctx.Done():
		return errors.Newf("task queue shutdown timed out with %d tasks running", q.running.Load()).
			Component("taskqueue").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// notify wakes one idle worker without blocking.
func (q *LocalQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// worker loops popping due tasks, sleeping until the earliest deadline
// when none is due.
func (q *LocalQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		task, wait := q.nextDue()
		if task != nil {
			q.execute(ctx, task)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-q.quit:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// nextDue pops the earliest task if it is due, or returns how long to wait
// for it. With an empty heap the wait is effectively unbounded; enqueues
// wake the worker.
func (q *LocalQueue) nextDue() (*Task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil, time.Hour
	}

	next := q.heap[0]
	now := time.Now()
	if next.task.ExecuteAt.After(now) {
		return nil, next.task.ExecuteAt.Sub(now)
	}

	heap.Pop(&q.heap)
	next.task.Status = StatusRunning
	next.task.Attempts++
	return next.task, 0
}

// execute runs one task attempt and routes the outcome. The handler runs
// outside the queue lock.
func (q *LocalQueue) execute(ctx context.Context, task *Task) {
	q.running.Add(1)
	defer q.running.Add(-1)

	q.mu.Lock()
	handler, ok := q.handlers[task.Type]
	q.mu.Unlock()
	if !ok {
		q.finish(task, errors.New(ErrNoHandler).
			Component("taskqueue").
			Category(errors.CategoryValidation).
			Context("task_type", task.Type).
			Build())
		return
	}

	err := handler(ctx, task)
	if err == nil {
		q.finish(task, nil)
		return
	}

	if task.Attempts < task.MaxAttempts && errors.IsRetryable(err) {
		q.reschedule(task, err)
		return
	}
	q.finish(task, err)
}

// reschedule re-inserts a failed task with a backed-off, strictly later
// ExecuteAt.
func (q *LocalQueue) reschedule(task *Task, cause error) {
	delay := q.backoff.Delay(task.Attempts - 1)
	if delay < minRetrySpacing {
		delay = minRetrySpacing
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	task.Status = StatusRetrying
	task.LastError = cause.Error()
	task.ExecuteAt = time.Now().Add(delay)
	q.seq++
	heap.Push(&q.heap, &taskItem{task: task, seq: q.seq})
	q.notify()

	q.logger.Warn("task attempt failed, rescheduled",
		"task_id", task.ID,
		"task_type", task.Type,
		"attempt", task.Attempts,
		"max_attempts", task.MaxAttempts,
		"next_delay", delay,
		"error", cause)
}

// finish moves a task to its terminal state and archives it.
func (q *LocalQueue) finish(task *Task, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cause == nil {
		task.Status = StatusCompleted
		q.completed.Add(1)
		q.logger.Debug("task completed", "task_id", task.ID, "task_type", task.Type, "attempts", task.Attempts)
	} else {
		task.Status = StatusFailed
		task.LastError = cause.Error()
		q.failed.Add(1)
		q.logger.Error("task failed",
			"task_id", task.ID,
			"task_type", task.Type,
			"attempts", task.Attempts,
			"error", cause)
	}

	delete(q.tasks, task.ID)
	q.archive[task.ID] = task
	q.archived = append(q.archived, task.ID)
	for len(q.archived) > maxArchivedTasks {
		delete(q.archive, q.archived[0])
		q.archived = q.archived[1:]
	}
}
