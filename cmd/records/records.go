// Package records implements the records command.
package records

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/datastore"
)

// Command creates the records command.
func Command(settings *conf.Settings) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List saved violation records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.New(settings, viper.ConfigFileUsed())
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.ListViolations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", datastore.DefaultListLimit, "Maximum number of records")

	return cmd
}

func printTable(w io.Writer, rows []datastore.ViolationHistory) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No records")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROFILE\tCOUNT\tTYPE\tLOCATION\tTIME")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Profile, r.RecordedNumber, r.ViolationType, r.Location, r.TimeCaught)
	}
	return tw.Flush()
}
