package datastore

import (
	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
)

// Opener is a catalog store that must be opened before use.
type Opener interface {
	Interface
	Open() error
}

// New selects the catalog implementation from configuration. The returned
// store is not yet connected; call Open on it.
func New(settings *conf.Settings) (Opener, error) {
	switch settings.Catalog.Type {
	case "sqlite":
		return &SQLiteStore{Settings: settings}, nil
	case "mysql":
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, errors.Newf("unsupported catalog type: %s", settings.Catalog.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
