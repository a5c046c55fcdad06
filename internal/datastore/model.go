// model.go defines the catalog data model for waveform artifacts.
package datastore

import "time"

// WaveformArtifact records the current artifact for one audio source.
// Immutable per (AudioID, SourceHash) pair: a new source hash supersedes
// the row rather than mutating the stored artifact in place.
type WaveformArtifact struct {
	ID          uint      `gorm:"primaryKey"`
	AudioID     string    `gorm:"uniqueIndex:idx_artifacts_audio_id;not null"`
	Location    string    `gorm:"not null"` // object storage URI of the SVG
	SourceHash  string    `gorm:"index:idx_artifacts_source_hash;not null"`
	Width       int       // horizontal resolution used for sampling
	Height      int       // vertical resolution used for sampling
	GeneratedAt time.Time `gorm:"index"`
}
