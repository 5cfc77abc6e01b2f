package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
	"github.com/parkapp/parkwatch/internal/violation"
)

// slowQueryThreshold marks queries logged as slow by the GORM adapter.
const slowQueryThreshold = 200 * time.Millisecond

// GormStore implements Interface on a GORM database.
type GormStore struct {
	DB      *gorm.DB
	backend string
	opts    options
}

func newGormStore(dialector gorm.Dialector, backend string, opts options) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(opts.log.Module("gorm"), slowQueryThreshold),
	})
	if err != nil {
		return nil, dbError(err, backend, "open")
	}

	store := &GormStore{DB: db, backend: backend, opts: opts}
	if err := store.migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// migrate creates or updates violation_history.
func (s *GormStore) migrate() error {
	start := time.Now()
	if err := s.DB.AutoMigrate(&ViolationHistory{}); err != nil {
		return dbError(err, s.backend, "migrate")
	}
	s.opts.log.Debug("database migration completed",
		logger.String("db_type", s.backend),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// Backend returns the dialect name.
func (s *GormStore) Backend() string {
	return s.backend
}

// InsertViolation implements violation.Store.
func (s *GormStore) InsertViolation(ctx context.Context, rec *violation.Record) (err error) {
	start := time.Now()
	defer func() { s.opts.observe(s.backend, metrics.OpDbInsert, start, err) }()

	if s.DB == nil {
		return dbError(errors.NewStd("database connection is not initialized"), s.backend, "insert")
	}

	row := fromRecord(rec)
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return dbError(err, s.backend, "insert")
	}
	s.opts.log.Debug("violation row inserted",
		logger.Int64("id", int64(row.ID)),
		logger.String("profile", row.Profile))
	return nil
}

// ListViolations returns the newest rows first.
func (s *GormStore) ListViolations(ctx context.Context, limit int) (rows []ViolationHistory, err error) {
	start := time.Now()
	defer func() { s.opts.observe(s.backend, metrics.OpDbQuery, start, err) }()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if err := s.DB.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, dbError(err, s.backend, "list")
	}
	return rows, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError(err, s.backend, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, s.backend, "close")
	}
	return nil
}
