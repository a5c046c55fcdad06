// Package objectstore persists rendered waveform artifacts to durable
// storage and answers existence checks for idempotent re-runs.
package objectstore

import (
	"context"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
)

// Store writes artifact documents under hierarchical keys. Implementations
// must make Upload all-or-nothing: a failed upload leaves no readable
// object at the key.
type Store interface {
	// Upload stores data under key and returns the canonical location URI.
	Upload(ctx context.Context, key string, data []byte) (string, error)
	// Exists reports whether an object is already stored at key.
	Exists(ctx context.Context, key string) (bool, error)
	// Name identifies the backend for logs and metrics.
	Name() string
}

// New selects the storage backend from configuration.
func New(settings *conf.Settings) (Store, error) {
	switch settings.Storage.Backend {
	case "local":
		return NewLocalStore(settings.Storage.Path)
	case "sftp":
		return NewSFTPStore(&settings.Storage.SFTP), nil
	default:
		return nil, errors.Newf("unsupported storage backend: %s", settings.Storage.Backend).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
