// Package service assembles the configured components into a runnable
// derivation service and hosts the two entry modes: a long-running worker
// and a one-shot file run.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/soundvault/wavegen/internal/artifact"
	"github.com/soundvault/wavegen/internal/circuitbreaker"
	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/datastore"
	"github.com/soundvault/wavegen/internal/logging"
	"github.com/soundvault/wavegen/internal/objectstore"
	"github.com/soundvault/wavegen/internal/observability/metrics"
	"github.com/soundvault/wavegen/internal/pipeline"
	"github.com/soundvault/wavegen/internal/taskqueue"
	"github.com/soundvault/wavegen/internal/waveform"

	"github.com/prometheus/client_golang/prometheus"
)

// shutdownGrace bounds how long Stop waits for in-flight tasks.
const shutdownGrace = 30 * time.Second

// Service holds the assembled pipeline and its dependencies.
type Service struct {
	Settings *conf.Settings
	Pipeline *pipeline.Pipeline
	Queue    taskqueue.Queue
	Registry *prometheus.Registry

	catalog datastore.Interface
	logger  *slog.Logger
}

// Build constructs the service from settings: catalog, object store,
// breakers, decoder chain, queue backend and pipeline.
func Build(settings *conf.Settings) (*Service, error) {
	catalog, err := datastore.New(settings)
	if err != nil {
		return nil, err
	}
	if err := catalog.Open(); err != nil {
		return nil, err
	}

	store, err := objectstore.New(settings)
	if err != nil {
		_ = catalog.Close()
		return nil, err
	}

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: settings.Breaker.FailureThreshold,
		RecoveryTimeout:  settings.Breaker.RecoveryTimeout,
		SuccessThreshold: settings.Breaker.SuccessThreshold,
	})
	bridge := artifact.NewBridge(catalog, store, breakers)

	ffmpeg := waveform.NewFFmpegDecoder(settings.Waveform.FfmpegPath, settings.Waveform.SampleRate)
	generator := waveform.NewGenerator(waveform.NewFileDecoder(ffmpeg))

	queue, err := taskqueue.New(settings)
	if err != nil {
		_ = catalog.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		_ = catalog.Close()
		return nil, err
	}

	p, err := pipeline.New(pipeline.Config{
		Queue:     queue,
		Bridge:    bridge,
		Generator: generator,
		Width:     settings.Waveform.Width,
		Height:    settings.Waveform.Height,
		Metrics:   pipelineMetrics,
	})
	if err != nil {
		_ = catalog.Close()
		return nil, err
	}

	return &Service{
		Settings: settings,
		Pipeline: p,
		Queue:    queue,
		Registry: registry,
		catalog:  catalog,
		logger:   logging.ForService("service"),
	}, nil
}

// Close releases held resources after the queue has stopped.
func (s *Service) Close() error {
	return s.catalog.Close()
}

// RunServe starts the queue backend and blocks until SIGINT or SIGTERM,
// then drains in-flight tasks.
func (s *Service) RunServe(ctx context.Context) error {
	s.Queue.Start(ctx)
	s.logger.Info("service started",
		"queue_backend", s.Settings.Queue.Backend,
		"storage_backend", s.Settings.Storage.Backend,
		"catalog", s.Settings.Catalog.Type)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.Queue.Stop(stopCtx); err != nil {
		return err
	}
	return s.Close()
}

// ProcessFile derives the artifact for a single audio file and waits for
// the task to finish. Used by the one-shot CLI mode.
func (s *Service) ProcessFile(ctx context.Context, audioID, path string) error {
	if audioID == "" {
		audioID = filepath.Base(path)
	}

	s.Queue.Start(ctx)
	taskID, err := s.Pipeline.EnqueueWaveformTask(ctx, audioID, path, "")
	if err != nil {
		return err
	}

	status, err := s.waitForTask(ctx, taskID)
	if err != nil {
		return err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.Queue.Stop(stopCtx); err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return err
	}

	if status != taskqueue.StatusCompleted {
		return fmt.Errorf("waveform task %s finished with status %s", taskID, status)
	}

	snap := s.Pipeline.Metrics()
	s.logger.Info("file processed",
		"audio_id", audioID,
		"task_id", taskID,
		"cache_hits", snap.CacheHits,
		"duration_ms", snap.Processing.Total.Milliseconds())
	return nil
}

// waitForTask polls the queue until the task reaches a terminal status.
func (s *Service) waitForTask(ctx context.Context, taskID string) (taskqueue.TaskStatus, error) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		status, err := s.Queue.Status(ctx, taskID)
		if err != nil {
			return taskqueue.StatusFailed, err
		}
		if status == taskqueue.StatusCompleted || status == taskqueue.StatusFailed {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
