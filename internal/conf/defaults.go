// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults carried over from the mobile client so records look the same
// regardless of which client created them.
const (
	DefaultViolationType = "Vehicle Parked in No Parking Zone"
	DefaultLocation      = "Zone A, Camera 2"
	DefaultEvidence      = "Evidence Captured from CCTV Image"
	DefaultTimeFormat    = "03:04:05 PM"

	DefaultBypassHeader = "ngrok-skip-browser-warning"
	DefaultPollerAgent  = "ParkApp-Mobile"
	DefaultIdentityKey  = "user_id"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("backend.baseurl", "")
	viper.SetDefault("backend.bypassheader", DefaultBypassHeader)
	viper.SetDefault("backend.bypassvalue", "true")
	viper.SetDefault("backend.uploadfield", "video")
	viper.SetDefault("backend.uploadname", "input.mp4")
	viper.SetDefault("backend.uploadtype", "video/mp4")
	viper.SetDefault("backend.timeout", 30*time.Minute)

	viper.SetDefault("poller.interval", time.Second)
	viper.SetDefault("poller.useragent", DefaultPollerAgent)
	viper.SetDefault("poller.timeout", 5*time.Second)

	viper.SetDefault("record.violationtype", DefaultViolationType)
	viper.SetDefault("record.location", DefaultLocation)
	viper.SetDefault("record.evidence", DefaultEvidence)
	viper.SetDefault("record.timeformat", DefaultTimeFormat)

	viper.SetDefault("identity.path", "session.yaml")
	viper.SetDefault("identity.key", DefaultIdentityKey)
	viper.SetDefault("identity.userid", "")
	viper.SetDefault("identity.cachettl", 5*time.Minute)

	viper.SetDefault("datastore.driver", "sqlite")
	viper.SetDefault("datastore.sqlite.path", "parkwatch.db")
	viper.SetDefault("datastore.mysql.host", "localhost")
	viper.SetDefault("datastore.mysql.port", 3306)
	viper.SetDefault("datastore.mysql.username", "parkwatch")
	viper.SetDefault("datastore.mysql.password", "")
	viper.SetDefault("datastore.mysql.passwordfile", "")
	viper.SetDefault("datastore.mysql.database", "parkwatch")
	viper.SetDefault("datastore.rest.url", "")
	viper.SetDefault("datastore.rest.apikey", "")
	viper.SetDefault("datastore.rest.apikeyfile", "")
	viper.SetDefault("datastore.rest.table", "violation_history")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "parkwatch/violations")
	viper.SetDefault("mqtt.clientid", "parkwatch")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.passwordfile", "")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.timeout", 10*time.Second)
	viper.SetDefault("notification.oncomplete", true)
	viper.SetDefault("notification.onfailure", true)
	viper.SetDefault("notification.onsubmit", false)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
	viper.SetDefault("telemetry.environment", "production")

	viper.SetDefault("api.listen", "127.0.0.1:8090")
	viper.SetDefault("api.metrics", true)

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/parkwatch.log")
	viper.SetDefault("logging.fileoutput.level", "debug")
}
