// Package telemetry wires opt-in Sentry error reporting. Events are stripped
// of host, user and free-form context before they leave the process, and
// messages go through the privacy scrubber.
package telemetry

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/privacy"
)

const defaultEnvironment = "production"

var enabled atomic.Bool

// Init initializes Sentry when telemetry is enabled and installs the
// reporter used by the errors package. It is a no-op when disabled.
func Init(s conf.TelemetrySettings, version string) error {
	log := logger.Global().Module("telemetry")
	if !s.Enabled {
		log.Debug("telemetry is disabled")
		return nil
	}

	env := s.Environment
	if env == "" {
		env = defaultEnvironment
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              s.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      env,
		ServerName:       "",
		Release:          "parkwatch@" + version,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
	})

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	enabled.Store(true)

	log.Info("telemetry enabled", logger.String("environment", env))
	return nil
}

// applyPrivacyFilters removes everything that could identify the user or
// the machine.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	for _, key := range []string{"device", "os", "runtime"} {
		delete(event.Contexts, key)
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	delete(event.Tags, "server_name")
	delete(event.Tags, "hostname")

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	return event
}

// Flush waits for buffered events when telemetry is enabled.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}
