// Package config implements configuration maintenance commands.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/privacy"
)

// Command creates the config command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
	}
	cmd.AddCommand(showCommand(settings), setBackendCommand(settings))
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(redacted(*settings))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", viper.ConfigFileUsed(), data)
			return nil
		},
	}
}

func setBackendCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "set-backend [url]",
		Short: "Set the detection service base URL",
		Long:  "Set backend.baseurl, for example after the service's tunnel address changed, and save the configuration file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.ConfigFileUsed()
			if path == "" {
				return errors.Newf("no configuration file in use").
					Component("configuration").
					Category(errors.CategoryConfiguration).
					Build()
			}

			updated := *settings
			updated.Backend.BaseURL = args[0]
			if err := conf.ValidateSettings(&updated); err != nil {
				return err
			}

			// Write the file form so ${VAR} references and secret files survive.
			raw, err := conf.Unresolved()
			if err != nil {
				return err
			}
			raw.Backend.BaseURL = args[0]
			if err := conf.SaveYAMLConfig(path, raw); err != nil {
				return err
			}
			*settings = updated
			fmt.Fprintf(cmd.OutOrStdout(), "Backend set to %s\n", args[0])
			return nil
		},
	}
}

const secretMask = "********"

// redacted masks credentials and tokens in a copy of s.
func redacted(s conf.Settings) conf.Settings {
	mask := func(v *string) {
		if *v != "" {
			*v = secretMask
		}
	}
	mask(&s.Datastore.MySQL.Password)
	mask(&s.Datastore.REST.APIKey)
	mask(&s.MQTT.Password)
	mask(&s.Telemetry.DSN)

	urls := make([]string, len(s.Notification.URLs))
	for i, u := range s.Notification.URLs {
		urls[i] = privacy.RedactURL(u)
	}
	s.Notification.URLs = urls
	return s
}
