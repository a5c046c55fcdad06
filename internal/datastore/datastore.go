// Package datastore provides the relational catalog for waveform artifact
// records, backed by GORM over SQLite or MySQL.
package datastore

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
)

// Interface abstracts catalog access so the artifact cache can be tested
// against a fake and the driver can be swapped by configuration.
type Interface interface {
	// GetArtifact returns the current artifact record for the audio source,
	// or a CategoryNotFound error when no record exists.
	GetArtifact(ctx context.Context, audioID string) (*WaveformArtifact, error)
	// SaveArtifact inserts or replaces the artifact record for the audio
	// source as a single logical update.
	SaveArtifact(ctx context.Context, artifact *WaveformArtifact) error
	// Close releases the underlying database connection.
	Close() error
}

// DataStore implements Interface on a GORM connection. Concrete stores
// embed it and provide Open (see sqlite.go and mysql.go).
type DataStore struct {
	DB     *gorm.DB
	logger *slog.Logger
}

// createGormLogger returns a GORM logger that stays quiet except for slow
// queries and real errors.
func createGormLogger() gormlogger.Interface {
	return gormlogger.Default.LogMode(gormlogger.Warn)
}

// performAutoMigration creates or updates the catalog schema.
func performAutoMigration(db *gorm.DB, dbType string) error {
	if err := db.AutoMigrate(&WaveformArtifact{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migration").
			Context("db_type", dbType).
			Build()
	}
	return nil
}

// GetArtifact looks up the current artifact record for an audio source.
func (ds *DataStore) GetArtifact(ctx context.Context, audioID string) (*WaveformArtifact, error) {
	if ds.DB == nil {
		return nil, errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	var artifact WaveformArtifact
	err := ds.DB.WithContext(ctx).Where("audio_id = ?", audioID).First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Context("audio_id", audioID).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_artifact").
			Context("audio_id", audioID).
			Build()
	}

	return &artifact, nil
}

// SaveArtifact upserts the artifact record keyed by audio ID. The write is
// a single statement so a failed call never leaves a partial record.
func (ds *DataStore) SaveArtifact(ctx context.Context, artifact *WaveformArtifact) error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	if artifact.AudioID == "" || artifact.SourceHash == "" {
		return errors.Newf("artifact record requires audio_id and source_hash").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	if artifact.GeneratedAt.IsZero() {
		artifact.GeneratedAt = time.Now()
	}

	err := ds.DB.WithContext(ctx).
		Where(&WaveformArtifact{AudioID: artifact.AudioID}).
		Assign(map[string]any{
			"location":     artifact.Location,
			"source_hash":  artifact.SourceHash,
			"width":        artifact.Width,
			"height":       artifact.Height,
			"generated_at": artifact.GeneratedAt,
		}).
		FirstOrCreate(&WaveformArtifact{}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_artifact").
			Context("audio_id", artifact.AudioID).
			Build()
	}

	return nil
}

// Close releases the underlying sql.DB connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newDataStoreLogger() *slog.Logger {
	return logging.ForService("datastore")
}
