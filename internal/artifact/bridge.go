// Package artifact bridges the waveform generator to durable storage: it
// answers "do we already have this artifact" and persists new ones with
// content-hash idempotency.
package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/soundvault/wavegen/internal/circuitbreaker"
	"github.com/soundvault/wavegen/internal/datastore"
	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
	"github.com/soundvault/wavegen/internal/retry"
	"github.com/soundvault/wavegen/internal/waveform"
)

const (
	// memoTTL bounds staleness of the in-process lookup memo. Catalog and
	// object store remain the source of truth.
	memoTTL = 15 * time.Minute

	breakerCatalog = "catalog"
	breakerStorage = "storage"
)

// memoEntry caches a known (hash, location) pair for an audio source.
type memoEntry struct {
	sourceHash string
	location   string
}

// Uploader is the slice of the object store the bridge needs.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Bridge coordinates the artifact cache across the in-process memo, the
// relational catalog and the object store. Both dependencies sit behind a
// retry policy and a named circuit breaker.
type Bridge struct {
	catalog  datastore.Interface
	store    Uploader
	breakers *circuitbreaker.Registry
	memo     *gocache.Cache

	catalogPolicy retry.Policy
	storagePolicy retry.Policy

	logger *slog.Logger
}

// NewBridge wires the cache against its dependencies.
func NewBridge(catalog datastore.Interface, store Uploader, breakers *circuitbreaker.Registry) *Bridge {
	return &Bridge{
		catalog:  catalog,
		store:    store,
		breakers: breakers,
		// Lazy expiry only, no janitor goroutine.
		memo:          gocache.New(memoTTL, 0),
		catalogPolicy: retry.CatalogPolicy(),
		storagePolicy: retry.StoragePolicy(),
		logger:        logging.ForService("artifact"),
	}
}

// WithPolicies overrides the dependency retry policies. Used by callers
// with tighter latency budgets and by tests.
func (b *Bridge) WithPolicies(catalogPolicy, storagePolicy retry.Policy) *Bridge {
	b.catalogPolicy = catalogPolicy
	b.storagePolicy = storagePolicy
	return b
}

// isNotFound reports whether the error chain carries a not-found category.
func isNotFound(err error) bool {
	var ee *errors.EnhancedError
	return errors.As(err, &ee) && ee.Category == errors.CategoryNotFound
}

// ObjectKey is the deterministic storage key for an artifact. Keying on a
// hash prefix makes re-uploads of identical content overwrite in place.
func ObjectKey(audioID, sourceHash string) string {
	short := sourceHash
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("waveforms/%s/%s.svg", audioID, short)
}

// Check reports whether a current artifact already exists for the audio
// source. A hit requires an exact source-hash match: a changed hash means
// the stored artifact is stale and must be regenerated. A catalog miss is
// not an error.
func (b *Bridge) Check(ctx context.Context, audioID, sourceHash string) (location string, hit bool, err error) {
	if cached, ok := b.memo.Get(audioID); ok {
		entry := cached.(memoEntry)
		if entry.sourceHash == sourceHash {
			return entry.location, true, nil
		}
		// Stale memo for a superseded hash.
		b.memo.Delete(audioID)
	}

	var record *datastore.WaveformArtifact
	err = b.breakers.Get(breakerCatalog).Call(ctx, func(ctx context.Context) error {
		lookupErr := retry.Do(ctx, b.catalogPolicy, func(ctx context.Context) error {
			var getErr error
			record, getErr = b.catalog.GetArtifact(ctx, audioID)
			return getErr
		})
		// A miss is a healthy catalog reply, not a dependency failure.
		if lookupErr != nil && isNotFound(lookupErr) {
			record = nil
			return nil
		}
		return lookupErr
	})
	if err != nil {
		return "", false, err
	}
	if record == nil {
		return "", false, nil
	}

	if record.SourceHash != sourceHash {
		b.logger.Debug("artifact stale, regeneration required",
			"audio_id", audioID,
			"stored_hash", record.SourceHash,
			"source_hash", sourceHash)
		return "", false, nil
	}

	b.memo.SetDefault(audioID, memoEntry{sourceHash: sourceHash, location: record.Location})
	return record.Location, true, nil
}

// Store persists a freshly generated artifact: upload first, catalog
// record second. The record is only written after the upload is confirmed,
// so the catalog never points at an object that does not exist.
func (b *Bridge) Store(ctx context.Context, audioID, sourceHash string, art *waveform.Artifact) (string, error) {
	key := ObjectKey(audioID, sourceHash)

	var location string
	err := b.breakers.Get(breakerStorage).Call(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, b.storagePolicy, func(ctx context.Context) error {
			var uploadErr error
			location, uploadErr = b.store.Upload(ctx, key, []byte(art.PathData))
			return uploadErr
		})
	})
	if err != nil {
		return "", err
	}

	record := &datastore.WaveformArtifact{
		AudioID:     audioID,
		Location:    location,
		SourceHash:  sourceHash,
		Width:       art.Width,
		Height:      art.Height,
		GeneratedAt: time.Now(),
	}
	err = b.breakers.Get(breakerCatalog).Call(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, b.catalogPolicy, func(ctx context.Context) error {
			return b.catalog.SaveArtifact(ctx, record)
		})
	})
	if err != nil {
		// The object is uploaded but unrecorded; the next run re-uploads to
		// the same key and retries the record.
		return "", err
	}

	b.memo.SetDefault(audioID, memoEntry{sourceHash: sourceHash, location: location})
	b.logger.Info("artifact stored",
		"audio_id", audioID,
		"location", location,
		"bytes", art.ByteSize)
	return location, nil
}
