package taskqueue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
)

// statusRetention is how long per-task status keys survive after the last
// update.
const statusRetention = 24 * time.Hour

// queueKeys precomputes the redis keys for one queue name. The hash tag
// keeps all of a queue's keys on one cluster slot.
type queueKeys struct {
	pending string
	delayed string
	prefix  string
}

func keysFor(queue string) queueKeys {
	prefix := "wavegen:{" + queue + "}:"
	return queueKeys{
		pending: prefix + "pending",
		delayed: prefix + "delayed",
		prefix:  prefix,
	}
}

func (k queueKeys) status(id string) string {
	return k.prefix + "task:" + id
}

// RedisQueue hands tasks to a dispatch service through redis: immediate
// tasks go on a pending list, delayed tasks into a ZSET scored by their
// execution time. The service owns durability and redelivery; executions
// come back to this process on the HTTP callback endpoint (callback.go).
type RedisQueue struct {
	rdb      redis.UniversalClient
	keys     queueKeys
	handlers map[string]Handler
	backoff  conf.RetrySettings
	callback *CallbackServer

	enqueued  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	running   atomic.Int64

	logger *slog.Logger
}

// NewRedisQueue creates the distributed queue client from configuration.
func NewRedisQueue(settings *conf.Settings) (*RedisQueue, error) {
	if settings.Redis.Addr == "" {
		return nil, errors.Newf("redis address is not configured").
			Component("taskqueue").
			Category(errors.CategoryConfiguration).
			Build()
	}
	queueName := settings.Redis.Queue
	if queueName == "" {
		queueName = "default"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     settings.Redis.Addr,
		Password: settings.Redis.Password,
		DB:       settings.Redis.DB,
	})

	q := &RedisQueue{
		rdb:      rdb,
		keys:     keysFor(queueName),
		handlers: make(map[string]Handler),
		backoff:  settings.Queue.Retry,
		logger:   logging.ForService("taskqueue"),
	}
	q.callback = NewCallbackServer(settings.Callback, q)
	return q, nil
}

// Register implements Queue.
func (q *RedisQueue) Register(taskType string, handler Handler) {
	q.handlers[taskType] = handler
}

// Enqueue implements Queue. The task is written to redis; it never waits
// for execution.
func (q *RedisQueue) Enqueue(ctx context.Context, taskType string, payload map[string]string, delay time.Duration) (string, error) {
	if _, ok := q.handlers[taskType]; !ok {
		return "", errors.New(ErrNoHandler).
			Component("taskqueue").
			Category(errors.CategoryValidation).
			Context("task_type", taskType).
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

	raw, err := sonic.Marshal(task)
	if err != nil {
		return "", errors.New(err).
			Component("taskqueue").
			Category(errors.CategoryJobQueue).
			Context("operation", "encode_task").
			Build()
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if delay > 0 {
			p.ZAdd(ctx, q.keys.delayed, redis.Z{
				Score:  float64(task.ExecuteAt.Unix()),
				Member: raw,
			})
		} else {
			p.LPush(ctx, q.keys.pending, raw)
		}
		p.HSet(ctx, q.keys.status(task.ID),
			"status", task.Status.String(),
			"type", task.Type,
			"attempts", task.Attempts,
			"created_at", task.CreatedAt.Format(time.RFC3339Nano))
		p.Expire(ctx, q.keys.status(task.ID), statusRetention)
		return nil
	})
	if err != nil {
		return "", errors.New(err).
			Component("taskqueue").
			Category(errors.CategoryNetwork).
			Context("operation", "enqueue").
			Context("task_type", taskType).
			Build()
	}

	q.enqueued.Add(1)
	q.logger.Debug("task dispatched", "task_id", task.ID, "task_type", taskType, "delay", delay)
	return task.ID, nil
}

// Status implements Queue, reading the per-task status key.
func (q *RedisQueue) Status(ctx context.Context, id string) (TaskStatus, error) {
	val, err := q.rdb.HGet(ctx, q.keys.status(id), "status").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StatusFailed, errors.New(ErrTaskNotFound).
				Component("taskqueue").
				Category(errors.CategoryNotFound).
				Context("task_id", id).
				Build()
		}
		return StatusFailed, errors.New(err).
			Component("taskqueue").
			Category(errors.CategoryNetwork).
			Context("operation", "status").
			Build()
	}
	return parseStatus(val), nil
}

// setStatus updates a task's status key after a delivery attempt.
func (q *RedisQueue) setStatus(ctx context.Context, task *Task, lastError string) {
	fields := []any{
		"status", task.Status.String(),
		"attempts", task.Attempts,
	}
	if lastError != "" {
		fields = append(fields, "last_error", lastError)
	}
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.keys.status(task.ID), fields...)
		p.Expire(ctx, q.keys.status(task.ID), statusRetention)
		return nil
	})
	if err != nil {
		q.logger.Warn("failed to update task status", "task_id", task.ID, "error", err)
	}
}

// Stats implements Queue. Pending and retrying counts come from redis;
// completion counters are local to this consumer.
func (q *RedisQueue) Stats() StatsSnapshot {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var pending int64
	if n, err := q.rdb.LLen(ctx, q.keys.pending).Result(); err == nil {
		pending = n
	}
	var delayed int64
	if n, err := q.rdb.ZCard(ctx, q.keys.delayed).Result(); err == nil {
		delayed = n
	}

	return StatsSnapshot{
		Enqueued:  q.enqueued.Load(),
		Pending:   pending + delayed,
		Running:   q.running.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

// Start implements Queue, launching the callback listener that receives
// task deliveries from the dispatch service.
func (q *RedisQueue) Start(ctx context.Context) {
	q.callback.Start()
	q.logger.Info("distributed queue started", "callback", q.callback.Addr())
}

// Stop implements Queue.
func (q *RedisQueue) Stop(ctx context.Context) error {
	if err := q.callback.Shutdown(ctx); err != nil {
		return err
	}
	return q.rdb.Close()
}
