// Package submit implements the submit command: detect, then save the
// violation record.
package submit

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parkapp/parkwatch/cmd/detect"
	"github.com/parkapp/parkwatch/internal/app"
	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/violation"
)

// overrides are the draft fields the user can change before saving.
type overrides struct {
	violationType string
	location      string
	evidence      string
	timeCaught    string
	count         int
}

// Command creates the submit command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		o     overrides
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "submit [video.mp4]",
		Short: "Detect violations in a video and save the record",
		Long:  "Run detection on a video, then insert the resulting violation record into violation_history for the logged-in user.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress := detect.NewProgress(cmd.ErrOrStderr(), quiet)
			a, err := app.New(cmd.Context(), settings, viper.ConfigFileUsed(),
				app.Features{Store: true, Hooks: true},
				app.WithObserver(progress.Observe))
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := detect.Run(cmd.Context(), a.Controller, args[0], progress)
			if err != nil {
				return err
			}
			if err := detect.PrintResult(cmd.OutOrStdout(), snap, false); err != nil {
				return err
			}

			rec, err := violation.NewDraft(snap, a.Defaults)
			if err != nil {
				return err
			}
			o.apply(cmd, &rec)

			if err := a.Submitter.Submit(cmd.Context(), snap, &rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %q at %s (%d recorded, %s) for user %s\n",
				rec.ViolationType, rec.Location, rec.RecordedCount, rec.TimeCaught, rec.ProfileID)
			return nil
		},
	}

	cmd.Flags().StringVar(&o.violationType, "type", "", "Violation type (default from record.violationtype)")
	cmd.Flags().StringVar(&o.location, "location", "", "Location (default from record.location)")
	cmd.Flags().StringVar(&o.evidence, "evidence", "", "Evidence description (default from record.evidence)")
	cmd.Flags().StringVar(&o.timeCaught, "time", "", "Time caught (default: completion time)")
	cmd.Flags().IntVar(&o.count, "count", 0, "Recorded number (default: detected violations)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show progress")

	return cmd
}

// apply copies the flags the user set onto rec.
func (o overrides) apply(cmd *cobra.Command, rec *violation.Record) {
	flags := cmd.Flags()
	if flags.Changed("type") {
		rec.ViolationType = o.violationType
	}
	if flags.Changed("location") {
		rec.Location = o.location
	}
	if flags.Changed("evidence") {
		rec.Evidence = o.evidence
	}
	if flags.Changed("time") {
		rec.TimeCaught = o.timeCaught
	}
	if flags.Changed("count") {
		rec.RecordedCount = o.count
	}
}
