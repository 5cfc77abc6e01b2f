// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "PARKWATCH_DEBUG", validateEnvBool},

		{"backend.baseurl", "PARKWATCH_BACKEND_URL", validateEnvURL},
		{"backend.timeout", "PARKWATCH_BACKEND_TIMEOUT", validateEnvDuration},
		{"poller.interval", "PARKWATCH_POLL_INTERVAL", validateEnvPositiveDuration},

		{"identity.userid", "PARKWATCH_USER_ID", nil},
		{"identity.path", "PARKWATCH_SESSION_FILE", nil},

		{"datastore.driver", "PARKWATCH_DATASTORE", validateEnvDriver},
		{"datastore.sqlite.path", "PARKWATCH_SQLITE_PATH", nil},
		{"datastore.mysql.host", "PARKWATCH_MYSQL_HOST", nil},
		{"datastore.mysql.port", "PARKWATCH_MYSQL_PORT", validateEnvPort},
		{"datastore.mysql.username", "PARKWATCH_MYSQL_USER", nil},
		{"datastore.mysql.password", "PARKWATCH_MYSQL_PASSWORD", nil},
		{"datastore.mysql.database", "PARKWATCH_MYSQL_DATABASE", nil},
		{"datastore.rest.url", "PARKWATCH_REST_URL", validateEnvURL},
		{"datastore.rest.apikey", "PARKWATCH_REST_APIKEY", nil},

		{"mqtt.enabled", "PARKWATCH_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "PARKWATCH_MQTT_BROKER", validateEnvURL},
		{"mqtt.username", "PARKWATCH_MQTT_USERNAME", nil},
		{"mqtt.password", "PARKWATCH_MQTT_PASSWORD", nil},

		{"telemetry.dsn", "PARKWATCH_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every environment variable and validates values that are set.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL with scheme and host")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvPositiveDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvDriver(value string) error {
	switch strings.ToLower(value) {
	case DriverSQLite, DriverMySQL, DriverREST:
		return nil
	default:
		return fmt.Errorf("must be one of %s, %s, %s", DriverSQLite, DriverMySQL, DriverREST)
	}
}
