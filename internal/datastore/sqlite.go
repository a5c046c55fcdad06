package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
)

// SQLiteStore is the file-backed catalog used by single-node deployments.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open connects to the SQLite database, creating the containing directory
// and schema on first use.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Catalog.SQLite.Path
	if path == "" {
		return errors.Newf("sqlite catalog path is not configured").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("operation", "create_db_directory").
				Context("path", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open_sqlite").
			Context("path", path).
			Build()
	}

	if err := performAutoMigration(db, "sqlite"); err != nil {
		return err
	}

	store.DB = db
	store.logger = newDataStoreLogger()
	store.logger.Info("catalog opened", "db_type", "sqlite", "path", path)
	return nil
}
