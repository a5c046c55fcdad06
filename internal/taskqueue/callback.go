package taskqueue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
)

const (
	// dedupeTTL is how long a finished delivery is remembered. The dispatch
	// service delivers at-least-once; duplicates beyond this window are
	// absorbed by the pipeline's own idempotency.
	dedupeTTL = 10 * time.Minute

	defaultCallbackPath = "/api/v1/tasks/callback"
)

// deliveryResponse is the callback endpoint's reply body.
type deliveryResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// CallbackServer receives task deliveries from the dispatch service over
// HTTP and runs the registered handlers.
type CallbackServer struct {
	echo   *echo.Echo
	listen string
	path   string
	queue  *RedisQueue
	seen   *gocache.Cache
	logger *slog.Logger
}

// NewCallbackServer wires the delivery endpoint for a distributed queue.
func NewCallbackServer(cfg conf.CallbackSettings, queue *RedisQueue) *CallbackServer {
	path := cfg.Path
	if path == "" {
		path = defaultCallbackPath
	}
	listen := cfg.Listen
	if listen == "" {
		listen = ":8090"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &CallbackServer{
		echo:   e,
		listen: listen,
		path:   path,
		queue:  queue,
		// No janitor goroutine: expired entries are dropped lazily on Get.
		seen:   gocache.New(dedupeTTL, 0),
		logger: logging.ForService("taskqueue"),
	}
	e.POST(path, s.handleDelivery)
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return s
}

// Addr returns the listener address.
func (s *CallbackServer) Addr() string { return s.listen }

// Start launches the HTTP listener in the background.
func (s *CallbackServer) Start() {
	go func() {
		if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback listener failed", "listen", s.listen, "error", err)
		}
	}()
}

// Shutdown stops the listener, waiting for in-flight deliveries.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleDelivery executes one task delivery. A 2xx reply acknowledges the
// delivery; a 5xx reply makes the dispatch service redeliver later. The
// endpoint is duplicate-safe: a delivery already handled within the
// dedupe window is acknowledged without re-running the handler.
func (s *CallbackServer) handleDelivery(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	var task Task
	if err := sonic.Unmarshal(body, &task); err != nil || task.ID == "" || task.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed task delivery"})
	}

	dedupeKey := fmt.Sprintf("%s:%d", task.ID, task.Attempts)
	if status, dup := s.seen.Get(dedupeKey); dup {
		s.logger.Debug("duplicate delivery ignored", "task_id", task.ID, "attempt", task.Attempts)
		return c.JSON(http.StatusOK, deliveryResponse{TaskID: task.ID, Status: status.(string)})
	}

	handler, ok := s.queue.handlers[task.Type]
	if !ok {
		task.Status = StatusFailed
		s.queue.setStatus(c.Request().Context(), &task, ErrNoHandler.Error())
		s.queue.failed.Add(1)
		s.seen.SetDefault(dedupeKey, task.Status.String())
		// Acknowledged: redelivery cannot fix a missing handler.
		return c.JSON(http.StatusOK, deliveryResponse{TaskID: task.ID, Status: task.Status.String()})
	}

	ctx := c.Request().Context()
	task.Status = StatusRunning
	task.Attempts++
	s.queue.running.Add(1)
	s.queue.setStatus(ctx, &task, "")

	err = handler(ctx, &task)
	s.queue.running.Add(-1)

	switch {
	case err == nil:
		task.Status = StatusCompleted
		s.queue.completed.Add(1)
		s.queue.setStatus(ctx, &task, "")
		s.seen.SetDefault(dedupeKey, task.Status.String())
		return c.JSON(http.StatusOK, deliveryResponse{TaskID: task.ID, Status: task.Status.String()})

	case task.Attempts < task.MaxAttempts && errors.IsRetryable(err):
		task.Status = StatusRetrying
		s.queue.setStatus(ctx, &task, err.Error())
		s.logger.Warn("task attempt failed, requesting redelivery",
			"task_id", task.ID,
			"attempt", task.Attempts,
			"error", err)
		return c.JSON(http.StatusInternalServerError, deliveryResponse{TaskID: task.ID, Status: task.Status.String()})

	default:
		task.Status = StatusFailed
		s.queue.failed.Add(1)
		s.queue.setStatus(ctx, &task, err.Error())
		s.seen.SetDefault(dedupeKey, task.Status.String())
		s.logger.Error("task failed terminally",
			"task_id", task.ID,
			"attempts", task.Attempts,
			"error", err)
		return c.JSON(http.StatusOK, deliveryResponse{TaskID: task.ID, Status: task.Status.String()})
	}
}
