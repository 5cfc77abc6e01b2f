package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parkapp/parkwatch/cmd/account"
	"github.com/parkapp/parkwatch/cmd/config"
	"github.com/parkapp/parkwatch/cmd/detect"
	"github.com/parkapp/parkwatch/cmd/notify"
	"github.com/parkapp/parkwatch/cmd/records"
	"github.com/parkapp/parkwatch/cmd/serve"
	"github.com/parkapp/parkwatch/cmd/submit"
	"github.com/parkapp/parkwatch/internal/buildinfo"
	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/telemetry"
)

// telemetryFlushTimeout bounds the final Sentry flush on exit.
const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		debug      bool
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "parkwatch",
		Short:         "Parking violation detection client",
		Long:          "Upload CCTV videos to the violation detection service, follow its progress and record the detected violations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
		},
	}

	rootCmd.AddCommand(
		detect.Command(settings),
		submit.Command(settings),
		records.Command(settings),
		serve.Command(settings),
		notify.Command(settings),
		config.Command(settings),
		versionCmd,
	)
	rootCmd.AddCommand(account.Commands(settings)...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for the version command
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		if debug {
			loaded.Debug = true
		}
		*settings = *loaded

		central, err = initLogging(settings)
		if err != nil {
			return err
		}

		if err := telemetry.Init(settings.Telemetry, info.GetVersion()); err != nil {
			// Telemetry problems never prevent the command from running.
			logger.Global().Module("telemetry").Warn("failed to initialize telemetry", logger.Error(err))
		}

		logger.Global().Module("main").Debug("configuration loaded",
			logger.String("config_file", viper.ConfigFileUsed()),
			logger.String("version", info.GetVersion()))
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		telemetry.Flush(telemetryFlushTimeout)
		if central != nil {
			_ = central.Close()
		}
	}

	return rootCmd
}

// initLogging builds the central logger from settings and installs it as
// the global logger. --debug lowers the console level.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}
	logger.SetGlobal(central)
	return central, nil
}
