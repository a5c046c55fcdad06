package datastore

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
)

// MySQLStore is the shared catalog used when multiple workers consume the
// same distributed queue.
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open connects to the MySQL database and migrates the schema.
func (store *MySQLStore) Open() error {
	dsn := store.Settings.Catalog.MySQL.DSN
	if dsn == "" {
		return errors.Newf("mysql catalog DSN is not configured").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open_mysql").
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "configure_pool").
			Build()
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := performAutoMigration(db, "mysql"); err != nil {
		return err
	}

	store.DB = db
	store.logger = newDataStoreLogger()
	store.logger.Info("catalog opened", "db_type", "mysql")
	return nil
}
