// config.go: settings struct for parkwatch and the functions that load and save it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// BackendSettings describes the remote detection service.
type BackendSettings struct {
	BaseURL      string        // base URL of the detection service, e.g. an ngrok tunnel
	BypassHeader string        // header sent to skip the tunnel's browser warning page
	BypassValue  string        // value of the bypass header
	UploadField  string        // multipart field name for the video
	UploadName   string        // filename reported for the video part
	UploadType   string        // content type of the video part
	Timeout      time.Duration // upper bound for one upload including server processing, 0 disables
}

// PollerSettings controls the progress poller.
type PollerSettings struct {
	Interval  time.Duration // time between progress queries, first query after one interval
	UserAgent string        // identifying client header for progress queries
	Timeout   time.Duration // timeout for a single progress query
}

// RecordSettings holds defaults used to pre-populate a violation record.
type RecordSettings struct {
	ViolationType string // default violation type
	Location      string // default location
	Evidence      string // default evidence description
	TimeFormat    string // Go layout for the time caught field
}

// IdentitySettings configures the session identity store.
type IdentitySettings struct {
	Path     string        // file holding the logged-in user id
	Key      string        // key of the user id inside the store
	UserID   string        // fixed user id, overrides the file when set
	CacheTTL time.Duration // how long a resolved identity is cached
}

// SQLiteSettings for the embedded store.
type SQLiteSettings struct {
	Path string
}

// MySQLSettings for a shared MySQL store.
type MySQLSettings struct {
	Host     string
	Port     int
	Username     string
	Password     string // may reference ${VAR}
	PasswordFile string // read the password from this file instead
	Database     string
}

// RESTSettings for a PostgREST compatible hosted table.
type RESTSettings struct {
	URL        string // project URL, the table is appended as /rest/v1/<table>
	APIKey     string // service or anon key, sent as apikey and bearer token
	APIKeyFile string // read the key from this file instead
	Table      string
}

// DatastoreSettings selects where violation records are inserted.
type DatastoreSettings struct {
	Driver string // sqlite, mysql or rest
	SQLite SQLiteSettings
	MySQL  MySQLSettings
	REST   RESTSettings
}

// MQTTSettings for publishing saved records.
type MQTTSettings struct {
	Enabled      bool
	Broker       string
	Topic        string
	ClientID     string
	Username     string
	Password     string
	PasswordFile string
	QoS          byte
	Retain       bool
}

// NotificationSettings for shoutrrr push notifications.
type NotificationSettings struct {
	Enabled    bool
	URLs       []string
	Timeout    time.Duration
	OnComplete bool // notify when processing completes
	OnFailure  bool // notify when a session fails
	OnSubmit   bool // notify when a record is saved
}

// TelemetrySettings for Sentry error reporting.
type TelemetrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// APISettings for the local HTTP API and metrics endpoint.
type APISettings struct {
	Listen  string
	Metrics bool
}

// Settings contains all configuration options for parkwatch.
type Settings struct {
	Debug bool

	Backend      BackendSettings
	Poller       PollerSettings
	Record       RecordSettings
	Identity     IdentitySettings
	Datastore    DatastoreSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Telemetry    TelemetrySettings
	API          APISettings
	Logging      logger.LoggingConfig
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, environment and defaults into Settings.
// configFile may be empty to search the default locations.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults and env bindings, then reads the configuration file.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("operation", "read-config-file").
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to dir and reads it back.
func createDefaultConfig(dir string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("config").Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// resolveSecrets replaces credential settings with their resolved values.
func resolveSecrets(settings *Settings) error {
	fields := []struct {
		name  string
		file  string
		value *string
	}{
		{"datastore.mysql.password", settings.Datastore.MySQL.PasswordFile, &settings.Datastore.MySQL.Password},
		{"datastore.rest.apikey", settings.Datastore.REST.APIKeyFile, &settings.Datastore.REST.APIKey},
		{"mqtt.password", settings.MQTT.PasswordFile, &settings.MQTT.Password},
		{"telemetry.dsn", "", &settings.Telemetry.DSN},
	}
	for _, f := range fields {
		v, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			return fmt.Errorf("error resolving %s: %w", f.name, err)
		}
		*f.value = v
	}
	return nil
}

// Unresolved returns the loaded configuration before secret resolution, the
// form that is safe to write back to disk.
func Unresolved() (*Settings, error) {
	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	return settings, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath through a temporary file so the
// original is replaced atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
