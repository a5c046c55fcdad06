package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Catalog.Type = "sqlite"
	settings.Catalog.SQLite.Path = filepath.Join(t.TempDir(), "catalog.db")

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGetArtifact(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	in := &WaveformArtifact{
		AudioID:    "clip-001",
		Location:   "file:///data/waveforms/clip-001/abcd1234.svg",
		SourceHash: "abcd1234",
		Width:      800,
		Height:     128,
	}
	require.NoError(t, store.SaveArtifact(ctx, in))

	got, err := store.GetArtifact(ctx, "clip-001")
	require.NoError(t, err)
	assert.Equal(t, in.Location, got.Location)
	assert.Equal(t, in.SourceHash, got.SourceHash)
	assert.Equal(t, 800, got.Width)
	assert.False(t, got.GeneratedAt.IsZero())
}

func TestGetArtifactMissIsNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetArtifact(context.Background(), "never-seen")
	require.Error(t, err)

	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Equal(t, errors.CategoryNotFound, enhanced.Category)
	assert.False(t, errors.IsRetryable(err), "a catalog miss is a definitive answer")
}

func TestSaveArtifactUpsertsByAudioID(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.SaveArtifact(ctx, &WaveformArtifact{
		AudioID:    "clip-002",
		Location:   "file:///old.svg",
		SourceHash: "oldhash1",
		Width:      800,
		Height:     128,
	}))
	require.NoError(t, store.SaveArtifact(ctx, &WaveformArtifact{
		AudioID:     "clip-002",
		Location:    "file:///new.svg",
		SourceHash:  "newhash1",
		Width:       1024,
		Height:      256,
		GeneratedAt: time.Now(),
	}))

	got, err := store.GetArtifact(ctx, "clip-002")
	require.NoError(t, err)
	assert.Equal(t, "file:///new.svg", got.Location)
	assert.Equal(t, "newhash1", got.SourceHash)
	assert.Equal(t, 1024, got.Width)

	var count int64
	require.NoError(t, store.DB.Model(&WaveformArtifact{}).Where("audio_id = ?", "clip-002").Count(&count).Error)
	assert.EqualValues(t, 1, count, "upsert must not accumulate rows")
}

func TestSaveArtifactValidation(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	err := store.SaveArtifact(ctx, &WaveformArtifact{Location: "file:///x.svg"})
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
}

func TestNewSelectsBackend(t *testing.T) {
	settings := &conf.Settings{}
	settings.Catalog.Type = "sqlite"
	s, err := New(settings)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)

	settings.Catalog.Type = "mysql"
	s, err = New(settings)
	require.NoError(t, err)
	assert.IsType(t, &MySQLStore{}, s)

	settings.Catalog.Type = "mongodb"
	_, err = New(settings)
	assert.Error(t, err)
}
