// Package serve implements the serve command.
package serve

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/parkapp/parkwatch/internal/api"
	"github.com/parkapp/parkwatch/internal/app"
	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/logger"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API",
		Long:  "Serve the session controller, record submission and Prometheus metrics over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				settings.API.Listen = listen
			}

			a, err := app.New(cmd.Context(), settings, viper.ConfigFileUsed(), app.Features{Store: true, Hooks: true})
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := api.New(api.ConfigFromSettings(settings), a.Controller,
				api.WithSubmitter(a.Submitter, a.Defaults),
				api.WithRecords(a.Store),
				api.WithMetrics(a.Metrics))
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.Start(ctx)
			})
			g.Go(func() error {
				// Abandon any running upload once shutdown starts.
				<-ctx.Done()
				a.Controller.Close()
				return nil
			})

			err = g.Wait()
			logger.Global().Module("main").Info("shutdown complete")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from api.listen)")

	return cmd
}
