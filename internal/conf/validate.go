// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/parkapp/parkwatch/internal/errors"
)

// Datastore drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverREST   = "rest"
)

// ErrMissingBaseURL is returned before any transfer when backend.baseurl is empty.
var ErrMissingBaseURL = errors.NewStd("missing backend URL: set backend.baseurl or PARKWATCH_BACKEND_URL")

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct. An empty backend URL
// is accepted here because identity commands do not need it; transfers check it.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	collect := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	collect(validateBackendSettings(&settings.Backend))
	collect(validatePollerSettings(&settings.Poller))
	collect(validateRecordSettings(&settings.Record))
	collect(validateDatastoreSettings(&settings.Datastore))
	collect(validateMQTTSettings(&settings.MQTT))
	collect(validateNotificationSettings(&settings.Notification))
	collect(validateTelemetrySettings(&settings.Telemetry))

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("configuration").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateBackendSettings(s *BackendSettings) error {
	if s.BaseURL != "" {
		if err := validateAbsoluteURL(s.BaseURL, "http", "https"); err != nil {
			return fmt.Errorf("backend.baseurl: %w", err)
		}
	}
	if s.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if s.UploadField == "" {
		return fmt.Errorf("backend.uploadfield must not be empty")
	}
	return nil
}

func validatePollerSettings(s *PollerSettings) error {
	if s.Interval <= 0 {
		return fmt.Errorf("poller.interval must be greater than zero")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("poller.timeout must not be negative")
	}
	return nil
}

func validateRecordSettings(s *RecordSettings) error {
	if strings.TrimSpace(s.TimeFormat) == "" {
		return fmt.Errorf("record.timeformat must not be empty")
	}
	return nil
}

func validateDatastoreSettings(s *DatastoreSettings) error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case DriverSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("datastore.sqlite.path must not be empty")
		}
	case DriverMySQL:
		if s.MySQL.Host == "" || s.MySQL.Database == "" {
			return fmt.Errorf("datastore.mysql requires host and database")
		}
		if s.MySQL.Port < 1 || s.MySQL.Port > 65535 {
			return fmt.Errorf("datastore.mysql.port must be between 1 and 65535")
		}
	case DriverREST:
		if err := validateAbsoluteURL(s.REST.URL, "http", "https"); err != nil {
			return fmt.Errorf("datastore.rest.url: %w", err)
		}
		if s.REST.Table == "" {
			return fmt.Errorf("datastore.rest.table must not be empty")
		}
	default:
		return fmt.Errorf("datastore.driver must be one of %s, %s, %s, got %q", DriverSQLite, DriverMySQL, DriverREST, s.Driver)
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) error {
	if !s.Enabled {
		return nil
	}
	if err := validateAbsoluteURL(s.Broker, "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts"); err != nil {
		return fmt.Errorf("mqtt.broker: %w", err)
	}
	if s.Topic == "" {
		return fmt.Errorf("mqtt.topic must not be empty")
	}
	if s.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}

func validateNotificationSettings(s *NotificationSettings) error {
	if s.Enabled && len(s.URLs) == 0 {
		return fmt.Errorf("notification.urls must not be empty when notifications are enabled")
	}
	return nil
}

func validateTelemetrySettings(s *TelemetrySettings) error {
	if s.Enabled && s.DSN == "" {
		return fmt.Errorf("telemetry.dsn must be set when telemetry is enabled")
	}
	return nil
}

func validateAbsoluteURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	for _, scheme := range schemes {
		if strings.EqualFold(u.Scheme, scheme) {
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}

// Endpoint joins the backend base URL and path. It returns ErrMissingBaseURL
// when no base URL is configured.
func (s *BackendSettings) Endpoint(path string) (string, error) {
	base := strings.TrimSpace(s.BaseURL)
	if base == "" {
		return "", errors.New(ErrMissingBaseURL).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"), nil
}
