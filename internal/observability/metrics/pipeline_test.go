package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineMetricsRegisters(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)
	require.NotNil(t, m)

	// A second registration against the same registry must fail.
	_, err = NewPipelineMetrics(registry)
	assert.Error(t, err)
}

func TestPipelineMetricsRecording(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	m.RecordTask("waveform", "completed", 150*time.Millisecond)
	m.RecordTask("waveform", "failed", time.Second)
	m.RecordCacheLookup("hit")
	m.RecordCacheLookup("miss")
	m.RecordCacheLookup("hit")
	m.RecordTaskError("waveform", "object-storage")
	m.RecordRetry("waveform")
	m.SetBreakerState("storage", 2)
	m.SetQueueBacklog(7)

	assert.InDelta(t, 1, testutil.ToFloat64(m.TasksTotal.WithLabelValues("waveform", "completed")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TasksTotal.WithLabelValues("waveform", "failed")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TaskErrorsTotal.WithLabelValues("waveform", "object-storage")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.BreakerState.WithLabelValues("storage")), 0.001)
	assert.InDelta(t, 7, testutil.ToFloat64(m.QueueBacklog), 0.001)
}
