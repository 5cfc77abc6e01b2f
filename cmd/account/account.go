// Package account implements login, logout and whoami against the local
// session store.
package account

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/identity"
)

// Commands returns the login, logout and whoami commands.
func Commands(settings *conf.Settings) []*cobra.Command {
	return []*cobra.Command{
		loginCommand(settings),
		logoutCommand(settings),
		whoamiCommand(settings),
	}
}

func fileStore(settings *conf.Settings) *identity.FileStore {
	return identity.NewFileStore(conf.ResolvePath(settings.Identity.Path, viper.ConfigFileUsed()), settings.Identity.Key)
}

func loginCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "login [user-id]",
		Short: "Store the user id that owns submitted records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return errors.Newf("user id must not be empty").
					Component("identity").
					Category(errors.CategoryValidation).
					Build()
			}
			store := fileStore(settings)
			if err := store.Save(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", id, store.Path())
			if settings.Identity.UserID != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Note: identity.userid is set in the configuration and takes precedence\n")
			}
			return nil
		},
	}
}

func logoutCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fileStore(settings).Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func whoamiCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the user id records are saved for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.FromSettings(settings.Identity, viper.ConfigFileUsed()).UserID(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
