package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/logger"
)

// OpenSQLite opens or creates the database file at path.
func OpenSQLite(path string, opts ...Option) (*GormStore, error) {
	o := buildOptions(opts)
	if path == "" {
		return nil, errors.Newf("sqlite path must not be empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.FileError(err, dir, 0)
		}
	}

	// WAL keeps the CLI and the API server from blocking each other.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	store, err := newGormStore(sqlite.Open(dsn), conf.DriverSQLite, o)
	if err != nil {
		return nil, err
	}

	o.log.Info("sqlite datastore opened", logger.String("path", path))
	return store, nil
}
