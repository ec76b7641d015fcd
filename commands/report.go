package commands

import (
	"errors"
	"fmt"

	"github.com/nvr-ai/edgebench/logger"
	"github.com/nvr-ai/edgebench/report"
	"github.com/spf13/cobra"
)

func newReportCommand(a *app) *cobra.Command {
	var measurementsDir, reportsDir string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Join measurement records with battery statistics and summarize energy per model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := report.BuildMeasurementReport(measurementsDir)
			if err != nil {
				return err
			}
			logger.Log.Info("measurements processed", "processed", r.Processed, "skipped", r.Skipped)
			if len(r.Entries) == 0 {
				return errors.New("no measurement could be joined with battery statistics")
			}

			fmt.Fprintln(cmd.OutOrStdout(), r.Render())

			path, err := r.WriteCSV(reportsDir, a.deps.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d models, %d runs written to %s\n", len(r.Models), len(r.Entries), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&measurementsDir, "measurements", "./measurements", "directory holding *_performance.csv and *_batterystats.txt files")
	cmd.Flags().StringVar(&reportsDir, "reports", "./reports", "directory receiving the measurement data file")
	return cmd
}
