// Package notify implements a command that sends a test notification.
package notify

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/notification"
)

// Command returns a cobra command that sends a test notification to the
// configured services.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		title   string
		message string
		urls    []string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test notification",
		Long: `Send a test notification to the configured shoutrrr services.

Examples:
  # Use notification.urls from the configuration
  parkwatch notify --message="Hello"

  # Try a service before adding it to the configuration
  parkwatch notify --url="ntfy://ntfy.sh/parkwatch-test"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(urls) == 0 {
				urls = settings.Notification.URLs
			}
			if len(urls) == 0 {
				return errors.Newf("no notification URLs configured").
					Component("notification").
					Category(errors.CategoryConfiguration).
					Build()
			}

			sender, err := notification.NewShoutrrrSender(urls, settings.Notification.Timeout)
			if err != nil {
				return err
			}
			msg := notification.Message{Event: notification.EventTest, Title: title, Body: message}
			if err := notification.Send(sender, msg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notification sent to %d service(s)\n", len(urls))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "parkwatch", "Notification title")
	cmd.Flags().StringVar(&message, "message", "Test notification from parkwatch", "Notification body")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "Service URL, overrides notification.urls (repeatable)")

	return cmd
}
