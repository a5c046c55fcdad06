package taskqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func localTestSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Queue.Backend = "local"
	settings.Queue.Workers = 2
	settings.Queue.MaxTasks = 100
	settings.Queue.Retry = conf.RetrySettings{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
	return settings
}

// startLocalQueue starts a queue and guarantees shutdown at test end.
func startLocalQueue(t *testing.T, settings *conf.Settings) *LocalQueue {
	t.Helper()
	q := NewLocalQueue(settings)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, q.Stop(ctx))
	})
	return q
}

// waitForStatus polls until the task reaches the wanted terminal status.
func waitForStatus(t *testing.T, q Queue, id string, want TaskStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := q.Status(context.Background(), id)
		if err == nil && status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	status, err := q.Status(context.Background(), id)
	t.Fatalf("task %s never reached %s (last: %v, err: %v)", id, want, status, err)
}

func TestLocalQueueExecutesImmediateTask(t *testing.T) {
	q := startLocalQueue(t, localTestSettings())

	var executed atomic.Int32
	q.Register("noop", func(ctx context.Context, task *Task) error {
		executed.Add(1)
		return nil
	})
	q.Start(context.Background())

	id, err := q.Enqueue(context.Background(), "noop", map[string]string{"k": "v"}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	waitForStatus(t, q, id, StatusCompleted)
	assert.EqualValues(t, 1, executed.Load())

	stats := q.Stats()
	assert.EqualValues(t, 1, stats.Enqueued)
	assert.EqualValues(t, 1, stats.Completed)
	assert.EqualValues(t, 0, stats.Failed)
}

func TestLocalQueueHonorsDelay(t *testing.T) {
	q := startLocalQueue(t, localTestSettings())

	var executedAt atomic.Int64
	q.Register("delayed", func(ctx context.Context, task *Task) error {
		executedAt.Store(time.Now().UnixNano())
		return nil
	})
	q.Start(context.Background())

	const delay = 50 * time.Millisecond
	enqueuedAt := time.Now()
	id, err := q.Enqueue(context.Background(), "delayed", nil, delay)
	require.NoError(t, err)

	status, err := q.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)

	waitForStatus(t, q, id, StatusCompleted)
	elapsed := time.Duration(executedAt.Load() - enqueuedAt.UnixNano())
	assert.GreaterOrEqual(t, elapsed, delay, "task must not run before its delay elapses")
}

func TestLocalQueueRetriesRetryableFailure(t *testing.T) {
	q := startLocalQueue(t, localTestSettings())

	transient := errors.Newf("connection refused").Category(errors.CategoryNetwork).Build()
	var calls atomic.Int32
	q.Register("flaky", func(ctx context.Context, task *Task) error {
		if calls.Add(1) < 3 {
			return transient
		}
		return nil
	})
	q.Start(context.Background())

	id, err := q.Enqueue(context.Background(), "flaky", nil, 0)
	require.NoError(t, err)

	waitForStatus(t, q, id, StatusCompleted)
	assert.EqualValues(t, 3, calls.Load())
}

func TestLocalQueueFatalErrorFailsWithoutRetry(t *testing.T) {
	q := startLocalQueue(t, localTestSettings())

	fatal := errors.Newf("corrupt input").Category(errors.CategoryAudioDecode).Build()
	var calls atomic.Int32
	q.Register("fatal", func(ctx context.Context, task *Task) error {
		calls.Add(1)
		return fatal
	})
	q.Start(context.Background())

	id, err := q.Enqueue(context.Background(), "fatal", nil, 0)
	require.NoError(t, err)

	waitForStatus(t, q, id, StatusFailed)
	assert.EqualValues(t, 1, calls.Load(), "non-retryable failures must not be retried")
	assert.EqualValues(t, 1, q.Stats().Failed)
}

func TestLocalQueueExhaustsMaxAttempts(t *testing.T) {
	q := startLocalQueue(t, localTestSettings())

	transient := errors.Newf("still down").Category(errors.CategoryNetwork).Build()
	var calls atomic.Int32
	q.Register("doomed", func(ctx context.Context, task *Task) error {
		calls.Add(1)
		return transient
	})
	q.Start(context.Background())

	id, err := q.Enqueue(context.Background(), "doomed", nil, 0)
	require.NoError(t, err)

	waitForStatus(t, q, id, StatusFailed)
	assert.EqualValues(t, 3, calls.Load(), "attempts must stop at MaxAttempts")
}

func TestLocalQueuePreservesEnqueueOrderForSameTime(t *testing.T) {
	settings := localTestSettings()
	settings.Queue.Workers = 1
	q := startLocalQueue(t, settings)

	var mu sync.Mutex
	var order []string
	q.Register("ordered", func(ctx context.Context, task *Task) error {
		mu.Lock()
		order = append(order, task.Payload["n"])
		mu.Unlock()
		return nil
	})

	// Enqueue before Start so all tasks share an eligible past ExecuteAt.
	var last string
	for _, n := range []string{"1", "2", "3", "4", "5"} {
		id, err := q.Enqueue(context.Background(), "ordered", map[string]string{"n": n}, 0)
		require.NoError(t, err)
		last = id
	}
	q.Start(context.Background())
	waitForStatus(t, q, last, StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, order)
}

func TestLocalQueueRejectsUnknownTaskType(t *testing.T) {
	q := startLocalQueue(t, localTestSettings())
	q.Start(context.Background())

	_, err := q.Enqueue(context.Background(), "never-registered", nil, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoHandler))
}

func TestLocalQueueFullRejectsEnqueue(t *testing.T) {
	settings := localTestSettings()
	settings.Queue.MaxTasks = 2
	q := startLocalQueue(t, settings)
	q.Register("idle", func(ctx context.Context, task *Task) error { return nil })
	// Not started: tasks accumulate.

	_, err := q.Enqueue(context.Background(), "idle", nil, time.Hour)
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), "idle", nil, time.Hour)
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "idle", nil, time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueFull))
}

func TestLocalQueueStopWaitsForInFlightTask(t *testing.T) {
	q := NewLocalQueue(localTestSettings())

	release := make(chan struct{})
	var finished atomic.Bool
	q.Register("slow", func(ctx context.Context, task *Task) error {
		<-release
		finished.Store(true)
		return nil
	})
	q.Start(context.Background())

	id, err := q.Enqueue(context.Background(), "slow", nil, 0)
	require.NoError(t, err)

	// Wait until the worker picks the task up.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if status, _ := q.Status(context.Background(), id); status == StatusRunning {
			break
		}
		time.Sleep(time.Millisecond)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
	assert.True(t, finished.Load(), "stop must wait for the in-flight task")
}

func TestLocalQueueStopTimesOut(t *testing.T) {
	q := NewLocalQueue(localTestSettings())

	release := make(chan struct{})
	q.Register("stuck", func(ctx context.Context, task *Task) error {
		<-release
		return nil
	})
	q.Start(context.Background())

	_, err := q.Enqueue(context.Background(), "stuck", nil, 0)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = q.Stop(ctx)
	require.Error(t, err)

	// Release the handler so the worker goroutine exits before goleak runs.
	close(release)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-waitCtx.Done():
		t.Fatal("workers never exited")
	}
}

func TestLocalQueueEnqueueAfterStop(t *testing.T) {
	q := NewLocalQueue(localTestSettings())
	q.Register("noop", func(ctx context.Context, task *Task) error { return nil })
	q.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))

	_, err := q.Enqueue(context.Background(), "noop", nil, 0)
	assert.True(t, errors.Is(err, ErrQueueStopped))
}

func TestLocalQueueStatusUnknownTask(t *testing.T) {
	q := startLocalQueue(t, localTestSettings())

	_, err := q.Status(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestNewSelectsBackend(t *testing.T) {
	settings := localTestSettings()
	q, err := New(settings)
	require.NoError(t, err)
	assert.IsType(t, &LocalQueue{}, q)

	settings.Queue.Backend = "kafka"
	_, err = New(settings)
	assert.Error(t, err)
}
