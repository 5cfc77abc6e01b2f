package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkapp/parkwatch/internal/conf"
)

func validSettings() *conf.Settings {
	return &conf.Settings{
		Backend:   conf.BackendSettings{BaseURL: "https://old.ngrok-free.app", UploadField: "video"},
		Poller:    conf.PollerSettings{Interval: time.Second},
		Record:    conf.RecordSettings{TimeFormat: conf.DefaultTimeFormat},
		Datastore: conf.DatastoreSettings{Driver: conf.DriverSQLite, SQLite: conf.SQLiteSettings{Path: "x.db"}},
	}
}

func TestSetBackend(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PW_TEST_MQTT_PASSWORD", "resolved")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "backend:\n  baseurl: https://old.ngrok-free.app\nmqtt:\n  password: ${PW_TEST_MQTT_PASSWORD}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	settings, err := conf.Load(path)
	require.NoError(t, err)
	require.Equal(t, "resolved", settings.MQTT.Password)

	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"set-backend", "https://new.ngrok-free.app"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "https://new.ngrok-free.app", settings.Backend.BaseURL)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "baseurl: https://new.ngrok-free.app")
	assert.Contains(t, string(data), "${PW_TEST_MQTT_PASSWORD}", "references are written back unresolved")
	assert.NotContains(t, string(data), "resolved\n")
}

func TestSetBackendRejectsInvalidURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug: false\n"), 0o600))
	viper.SetConfigFile(path)

	settings := validSettings()
	cmd := Command(settings)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	cmd.SetArgs([]string{"set-backend", "ftp://host"})
	require.Error(t, cmd.Execute())

	assert.Equal(t, "https://old.ngrok-free.app", settings.Backend.BaseURL)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug: false\n", string(data), "file untouched")
}

func TestRedacted(t *testing.T) {
	s := *validSettings()
	s.Datastore.MySQL.Password = "hunter2"
	s.MQTT.Password = "secret"
	s.Telemetry.DSN = "https://key@sentry.example.com/1"
	s.Notification.URLs = []string{"telegram://token@telegram?chats=1"}

	r := redacted(s)
	assert.Equal(t, secretMask, r.Datastore.MySQL.Password)
	assert.Equal(t, secretMask, r.MQTT.Password)
	assert.Equal(t, secretMask, r.Telemetry.DSN)
	assert.Empty(t, r.Datastore.REST.APIKey, "empty values stay empty")
	assert.NotContains(t, r.Notification.URLs[0], "token")
	assert.Equal(t, "telegram://token@telegram?chats=1", s.Notification.URLs[0], "original untouched")
}
