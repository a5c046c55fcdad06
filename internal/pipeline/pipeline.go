// Package pipeline wires the task queue, waveform generator and artifact
// cache into the asynchronous derivation flow: enqueue, check, generate,
// store.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundvault/wavegen/internal/artifact"
	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
	"github.com/soundvault/wavegen/internal/observability/metrics"
	"github.com/soundvault/wavegen/internal/taskqueue"
	"github.com/soundvault/wavegen/internal/waveform"
)

// TaskTypeWaveform is the queue task type handled by this pipeline.
const TaskTypeWaveform = "waveform"

// Payload keys for waveform tasks.
const (
	payloadAudioID    = "audio_id"
	payloadAudioPath  = "audio_path"
	payloadSourceHash = "source_hash"
)

// Pipeline derives waveform artifacts asynchronously. All heavy work runs
// inside queue task handlers; the enqueue path never blocks on it.
type Pipeline struct {
	queue     taskqueue.Queue
	bridge    *artifact.Bridge
	generator *waveform.Generator
	width     int
	height    int

	metrics *metrics.PipelineMetrics // optional
	stats   stats
	logger  *slog.Logger
}

// Config carries the pipeline's collaborators and render dimensions.
type Config struct {
	Queue     taskqueue.Queue
	Bridge    *artifact.Bridge
	Generator *waveform.Generator
	Width     int
	Height    int
	Metrics   *metrics.PipelineMetrics // nil disables prometheus instruments
}

// New builds the pipeline and registers its handler on the queue. Call
// Queue.Start separately to begin processing.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Queue == nil || cfg.Bridge == nil || cfg.Generator == nil {
		return nil, errors.Newf("pipeline requires a queue, a bridge and a generator").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, errors.Newf("pipeline dimensions must be positive, got %dx%d", cfg.Width, cfg.Height).
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}

	p := &Pipeline{
		queue:     cfg.Queue,
		bridge:    cfg.Bridge,
		generator: cfg.Generator,
		width:     cfg.Width,
		height:    cfg.Height,
		metrics:   cfg.Metrics,
		logger:    logging.ForService("pipeline"),
	}
	p.queue.Register(TaskTypeWaveform, p.handleWaveform)
	return p, nil
}

// EnqueueWaveformTask schedules artifact derivation for one audio source
// and returns the task ID. When sourceHash is empty the file is hashed
// here; the hash is part of the task so a file replaced mid-queue is
// detected as stale on execution.
func (p *Pipeline) EnqueueWaveformTask(ctx context.Context, audioID, audioPath, sourceHash string) (string, error) {
	if audioID == "" || audioPath == "" {
		return "", errors.Newf("audio id and path are required").
			Component("pipeline").
			Category(errors.CategoryValidation).
			Build()
	}

	if sourceHash == "" {
		var err error
		sourceHash, err = artifact.HashFile(audioPath)
		if err != nil {
			return "", err
		}
	}

	payload := map[string]string{
		payloadAudioID:    audioID,
		payloadAudioPath:  audioPath,
		payloadSourceHash: sourceHash,
	}
	return p.queue.Enqueue(ctx, TaskTypeWaveform, payload, 0)
}

// QueueStats exposes the underlying queue counters.
func (p *Pipeline) QueueStats() taskqueue.StatsSnapshot {
	return p.queue.Stats()
}

// handleWaveform executes one derivation attempt: cache check, then
// generate and store on a miss. It is idempotent: a duplicate delivery
// finds the artifact cached and completes without regenerating.
func (p *Pipeline) handleWaveform(ctx context.Context, task *taskqueue.Task) (err error) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.TasksInFlight.Inc()
		defer p.metrics.TasksInFlight.Dec()
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("waveform handler panic: %v", r).
				Component("pipeline").
				Category(errors.CategoryGeneric).
				Context("task_id", task.ID).
				Build()
		}
		p.observe(task, err, time.Since(start))
	}()

	audioID := task.Payload[payloadAudioID]
	audioPath := task.Payload[payloadAudioPath]
	sourceHash := task.Payload[payloadSourceHash]
	if audioID == "" || audioPath == "" || sourceHash == "" {
		return errors.Newf("waveform task payload is incomplete").
			Component("pipeline").
			Category(errors.CategoryValidation).
			Context("task_id", task.ID).
			Build()
	}

	location, hit, err := p.bridge.Check(ctx, audioID, sourceHash)
	if err != nil {
		return err
	}
	if hit {
		p.stats.recordCacheHit()
		if p.metrics != nil {
			p.metrics.RecordCacheLookup("hit")
		}
		p.logger.Debug("artifact already cached", "audio_id", audioID, "location", location)
		return nil
	}
	p.stats.recordCacheMiss()
	if p.metrics != nil {
		p.metrics.RecordCacheLookup("miss")
	}

	art, err := p.generator.Generate(ctx, audioPath, p.width, p.height)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordArtifactSize(art.ByteSize)
	}

	location, err = p.bridge.Store(ctx, audioID, sourceHash, art)
	if err != nil {
		return err
	}

	p.logger.Info("waveform derived",
		"audio_id", audioID,
		"location", location,
		"samples", art.SampleCount,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// observe folds one attempt outcome into the snapshot and prometheus
// instruments.
func (p *Pipeline) observe(task *taskqueue.Task, err error, elapsed time.Duration) {
	if err == nil {
		p.stats.recordSuccess(elapsed)
		if p.metrics != nil {
			p.metrics.RecordTask(TaskTypeWaveform, "completed", elapsed)
		}
		return
	}

	category := errorCategory(err)
	willRetry := task.Attempts < task.MaxAttempts && errors.IsRetryable(err)
	if willRetry {
		p.stats.recordRetry(category)
		if p.metrics != nil {
			p.metrics.RecordRetry(TaskTypeWaveform)
			p.metrics.RecordTaskError(TaskTypeWaveform, category)
		}
		return
	}

	p.stats.recordFailure(category, elapsed)
	if p.metrics != nil {
		p.metrics.RecordTask(TaskTypeWaveform, "failed", elapsed)
		p.metrics.RecordTaskError(TaskTypeWaveform, category)
	}
}

// errorCategory extracts the error category label, or "uncategorized".
func errorCategory(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) && ee.Category != "" {
		return string(ee.Category)
	}
	return "uncategorized"
}
