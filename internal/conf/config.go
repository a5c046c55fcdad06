// Package conf defines the settings struct for the wavegen service and the
// functions to load and validate it.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// MainSettings contains application wide settings.
type MainSettings struct {
	Name     string // instance name, used in logs
	LogLevel string // debug, info, warn, error
	LogPath  string // optional file path for JSON logs
}

// RetrySettings tunes the backoff applied when a queued task fails.
type RetrySettings struct {
	MaxAttempts  int           // maximum task attempts before terminal failure
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap for the computed backoff delay
	Multiplier   float64       // backoff multiplier per attempt
}

// QueueSettings selects and tunes the task queue backend.
type QueueSettings struct {
	Backend  string // "local" or "redis"
	Workers  int    // local backend worker pool size
	MaxTasks int    // maximum pending tasks in the local backend
	Retry    RetrySettings
}

// RedisSettings configures the distributed dispatch backend.
type RedisSettings struct {
	Addr     string
	Password string
	DB       int
	Queue    string // queue name used in redis key prefixes
}

// CallbackSettings configures the task delivery callback endpoint used by
// the distributed backend.
type CallbackSettings struct {
	Listen string // host:port for the callback HTTP listener
	Path   string // callback route path
}

// WaveformSettings configures artifact rendering and audio decoding.
type WaveformSettings struct {
	Width      int    // horizontal resolution, one sample bucket per pixel
	Height     int    // vertical resolution
	SampleRate int    // decode sample rate for the ffmpeg fallback
	FfmpegPath string // path to ffmpeg, runtime value
}

// SFTPSettings configures the SFTP object storage target.
type SFTPSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	BasePath string
}

// StorageSettings selects the object storage backend for artifacts.
type StorageSettings struct {
	Backend string // "local" or "sftp"
	Path    string // base directory for the local backend
	SFTP    SFTPSettings
}

// CatalogSettings selects the relational catalog backend.
type CatalogSettings struct {
	Type   string // "sqlite" or "mysql"
	SQLite struct {
		Path string
	}
	MySQL struct {
		DSN string
	}
}

// BreakerSettings tunes the per-dependency circuit breakers.
type BreakerSettings struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// Settings is the root configuration struct.
type Settings struct {
	Debug    bool
	Main     MainSettings
	Queue    QueueSettings
	Redis    RedisSettings
	Callback CallbackSettings
	Waveform WaveformSettings
	Storage  StorageSettings
	Catalog  CatalogSettings
	Breaker  BreakerSettings
}

// Load reads the configuration from disk, applying defaults for anything
// the config file does not set. A missing config file is not an error.
func Load() (*Settings, error) {
	setDefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range configPaths() {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fatal error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// configPaths returns the directories searched for a config file, in
// priority order.
func configPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "wavegen"))
	}
	paths = append(paths, "/etc/wavegen")
	return paths
}

// Validate checks cross-field constraints that viper cannot express.
func (s *Settings) Validate() error {
	switch s.Queue.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("unsupported queue backend: %q", s.Queue.Backend)
	}

	switch s.Storage.Backend {
	case "local", "sftp":
	default:
		return fmt.Errorf("unsupported storage backend: %q", s.Storage.Backend)
	}

	switch s.Catalog.Type {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported catalog type: %q", s.Catalog.Type)
	}

	if s.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1, got %d", s.Queue.Workers)
	}
	if s.Queue.Retry.MaxAttempts < 1 {
		return fmt.Errorf("queue.retry.maxattempts must be at least 1, got %d", s.Queue.Retry.MaxAttempts)
	}
	if s.Waveform.Width < 1 || s.Waveform.Height < 1 {
		return fmt.Errorf("waveform dimensions must be positive, got %dx%d", s.Waveform.Width, s.Waveform.Height)
	}
	if s.Breaker.FailureThreshold < 1 || s.Breaker.SuccessThreshold < 1 {
		return fmt.Errorf("breaker thresholds must be at least 1")
	}

	return nil
}
