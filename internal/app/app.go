// Package app assembles the detection pipeline from settings: HTTP clients,
// transfer channel, poller, lifecycle controller, datastore, identity and the
// post-submit hooks. Commands build one App and close it on exit.
package app

import (
	"context"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/datastore"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/httpclient"
	"github.com/parkapp/parkwatch/internal/identity"
	"github.com/parkapp/parkwatch/internal/lifecycle"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/mqtt"
	"github.com/parkapp/parkwatch/internal/notification"
	"github.com/parkapp/parkwatch/internal/observability"
	"github.com/parkapp/parkwatch/internal/poller"
	"github.com/parkapp/parkwatch/internal/transfer"
	"github.com/parkapp/parkwatch/internal/violation"
)

// Features selects the optional parts of the graph.
type Features struct {
	Store bool // open the datastore and build the submitter
	Hooks bool // MQTT and notification hooks
}

// Option configures New.
type Option func(*options)

type options struct {
	uploadClient *httpclient.Client
	pollClient   *httpclient.Client
	observer     func(lifecycle.Session)
}

// WithHTTPClients replaces the upload and poll clients, mainly for tests.
func WithHTTPClients(upload, poll *httpclient.Client) Option {
	return func(o *options) {
		o.uploadClient = upload
		o.pollClient = poll
	}
}

// WithObserver is forwarded to the lifecycle controller.
func WithObserver(fn func(lifecycle.Session)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// App holds the wired components.
type App struct {
	Settings   *conf.Settings
	ConfigFile string
	Metrics    *observability.Metrics
	Controller *lifecycle.Controller
	Identity   identity.Provider
	Defaults   violation.Defaults

	// Store and Submitter are nil unless Features.Store is set.
	Store     datastore.Interface
	Submitter *violation.Submitter

	log      logger.Logger
	clients  []*httpclient.Client
	notifier *notification.Notifier
	mqtt     mqtt.Client
}

// New builds the application graph.
func New(ctx context.Context, settings *conf.Settings, configFile string, features Features, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	a := &App{
		Settings:   settings,
		ConfigFile: configFile,
		Metrics:    m,
		Identity:   identity.FromSettings(settings.Identity, configFile),
		Defaults:   violation.DefaultsFromSettings(settings.Record),
		log:        logger.Global().Module("app"),
	}

	uploadClient, pollClient := o.uploadClient, o.pollClient
	if uploadClient == nil {
		// The detection service answers only after processing the video.
		uploadClient = httpclient.New(&httpclient.Config{
			DefaultTimeout:        -1,
			ResponseHeaderTimeout: -1,
		})
		a.clients = append(a.clients, uploadClient)
	}
	if pollClient == nil {
		pollClient = httpclient.New(&httpclient.Config{UserAgent: settings.Poller.UserAgent})
		a.clients = append(a.clients, pollClient)
	}

	ch := transfer.New(uploadClient, transferConfig(settings.Backend),
		transfer.WithMetrics(m.Session))
	p := poller.New(pollClient, poller.Config{
		BypassHeader: settings.Backend.BypassHeader,
		BypassValue:  settings.Backend.BypassValue,
		UserAgent:    settings.Poller.UserAgent,
		QueryTimeout: settings.Poller.Timeout,
	}, poller.WithMetrics(m.Session))

	cfg, err := lifecycle.ConfigFromSettings(settings)
	if err != nil {
		if !errors.Is(err, conf.ErrMissingBaseURL) {
			return nil, err
		}
		// Begin reports the missing URL without touching the session.
		cfg = lifecycle.Config{PollInterval: settings.Poller.Interval, TransferTimeout: settings.Backend.Timeout}
	}

	var hooks []violation.Hook
	ctrlOpts := []lifecycle.Option{lifecycle.WithMetrics(m.Session)}
	if o.observer != nil {
		ctrlOpts = append(ctrlOpts, lifecycle.WithObserver(o.observer))
	}

	if features.Hooks {
		hooks, err = a.buildHooks(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		if a.notifier != nil {
			ctrlOpts = append(ctrlOpts, lifecycle.WithSettleHook(a.notifier.SessionSettled))
		}
	}

	a.Controller = lifecycle.New(ch, lifecycle.WrapPoller(p), cfg, ctrlOpts...)

	if features.Store {
		// The REST backend builds its own client so the detection service
		// headers never reach it.
		a.Store, err = datastore.New(settings, configFile,
			datastore.WithMetrics(m.Datastore))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Submitter = violation.NewSubmitter(a.Store, a.Identity,
			violation.WithHooks(hooks...),
			violation.WithMetrics(m.Session))
	}

	return a, nil
}

func transferConfig(b conf.BackendSettings) transfer.Config {
	cfg := transfer.DefaultConfig()
	if b.UploadField != "" {
		cfg.FieldName = b.UploadField
	}
	if b.UploadName != "" {
		cfg.FileName = b.UploadName
	}
	if b.UploadType != "" {
		cfg.ContentType = b.UploadType
	}
	if b.BypassHeader != "" {
		cfg.BypassHeader = b.BypassHeader
		cfg.BypassValue = b.BypassValue
	}
	return cfg
}

// buildHooks creates the notification and MQTT hooks that are enabled.
// An unreachable broker is logged and retried on the first publish.
func (a *App) buildHooks(ctx context.Context) ([]violation.Hook, error) {
	var hooks []violation.Hook

	n, err := notification.FromSettings(a.Settings.Notification,
		notification.WithMetrics(a.Metrics.Notification))
	if err != nil {
		return nil, err
	}
	if n != nil {
		a.notifier = n
		hooks = append(hooks, n)
	}

	if a.Settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(a.Settings.MQTT)
		a.mqtt = mqtt.NewClient(cfg, a.Metrics.MQTT)
		if err := a.mqtt.Connect(ctx); err != nil {
			a.log.Warn("MQTT broker unavailable, will retry on publish",
				logger.String("broker", cfg.Broker),
				logger.Error(err))
		}
		hooks = append(hooks, mqtt.NewPublisher(a.mqtt, cfg.Topic, a.Metrics.Session))
	}
	return hooks, nil
}

// Close releases every component. Safe to call on a partially built App.
func (a *App) Close() {
	if a.Controller != nil {
		a.Controller.Close()
	}
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.log.Warn("failed to close datastore", logger.Error(err))
		}
	}
	for _, c := range a.clients {
		c.Close()
	}
}

// Wait blocks until the current session settles or ctx is done.
func (a *App) Wait(ctx context.Context) (lifecycle.Session, error) {
	return a.Controller.Wait(ctx)
}
