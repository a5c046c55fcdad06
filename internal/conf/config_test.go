package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Queue.Backend = "local"
	s.Queue.Workers = 2
	s.Queue.MaxTasks = 100
	s.Queue.Retry = RetrySettings{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2.0}
	s.Storage.Backend = "local"
	s.Storage.Path = "artifacts"
	s.Catalog.Type = "sqlite"
	s.Catalog.SQLite.Path = "test.db"
	s.Waveform.Width = 800
	s.Waveform.Height = 128
	s.Breaker = BreakerSettings{FailureThreshold: 3, RecoveryTimeout: time.Second, SuccessThreshold: 2}
	return s
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validSettings().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown queue backend", func(s *Settings) { s.Queue.Backend = "kafka" }},
		{"unknown storage backend", func(s *Settings) { s.Storage.Backend = "s3" }},
		{"unknown catalog type", func(s *Settings) { s.Catalog.Type = "postgres" }},
		{"zero workers", func(s *Settings) { s.Queue.Workers = 0 }},
		{"zero attempts", func(s *Settings) { s.Queue.Retry.MaxAttempts = 0 }},
		{"zero width", func(s *Settings) { s.Waveform.Width = 0 }},
		{"zero breaker threshold", func(s *Settings) { s.Breaker.FailureThreshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}
