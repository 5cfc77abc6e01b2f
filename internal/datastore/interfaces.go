// interfaces.go: store abstraction and backend selection
package datastore

import (
	"context"
	"time"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/httpclient"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
	"github.com/parkapp/parkwatch/internal/violation"
)

// Interface is implemented by every backend. InsertViolation inserts exactly
// one row and never updates.
type Interface interface {
	violation.Store
	ListViolations(ctx context.Context, limit int) ([]ViolationHistory, error)
	Backend() string
	Close() error
}

// DefaultListLimit bounds ListViolations when limit is not positive.
const DefaultListLimit = 50

// StoredRecorder is implemented by metrics that count stored records per backend.
type StoredRecorder interface {
	RecordStored(backend string)
}

// Option configures a store.
type Option func(*options)

type options struct {
	metrics metrics.Recorder
	stored  StoredRecorder
	log     logger.Logger
	client  *httpclient.Client
}

// WithMetrics sets the metrics recorder. When r also implements
// StoredRecorder stored rows are counted per backend.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = metrics.OrNoop(r)
		if s, ok := r.(StoredRecorder); ok {
			o.stored = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithHTTPClient sets the client used by the REST backend.
func WithHTTPClient(c *httpclient.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

func buildOptions(opts []Option) options {
	o := options{
		metrics: metrics.NoopRecorder{},
		log:     logger.Global().Module("datastore"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New opens the backend selected by settings.Datastore.Driver. Relative
// SQLite paths are resolved against the directory of configFile.
func New(settings *conf.Settings, configFile string, opts ...Option) (Interface, error) {
	ds := settings.Datastore
	var (
		store Interface
		err   error
	)
	switch ds.Driver {
	case conf.DriverSQLite, "":
		store, err = asInterface(OpenSQLite(conf.ResolvePath(ds.SQLite.Path, configFile), opts...))
	case conf.DriverMySQL:
		store, err = asInterface(OpenMySQL(ds.MySQL, opts...))
	case conf.DriverREST:
		store, err = asInterface(NewRESTStore(ds.REST, opts...))
	default:
		err = errors.Newf("unsupported datastore driver %q", ds.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return store, err
}

// asInterface keeps a nil concrete store from becoming a non-nil Interface.
func asInterface[T Interface](s T, err error) (Interface, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// observe records the outcome of one store operation.
func (o *options) observe(backend, op string, start time.Time, err error) {
	o.metrics.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		o.metrics.RecordOperation(op, metrics.StatusError)
		o.metrics.RecordError(op, backend)
		return
	}
	o.metrics.RecordOperation(op, metrics.StatusSuccess)
	if op == metrics.OpDbInsert && o.stored != nil {
		o.stored.RecordStored(backend)
	}
}

func dbError(err error, backend, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("backend", backend).
		Context("operation", op).
		Build()
}
