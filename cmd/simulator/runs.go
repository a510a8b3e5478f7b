package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/mto-simulator/internal/storage"
	"github.com/signalsfoundry/mto-simulator/model"
)

func newRunsCommand() *cobra.Command {
	var (
		archivePath string
		limit       int
		bySeed      bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			archive, err := storage.OpenArchive(ctx, archivePath)
			if err != nil {
				return err
			}
			defer archive.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if bySeed {
				rows, err := archive.SummarizeBySeed(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "SEED\tRUNS\tMEAN ON-TIME\tBEST ON-TIME\tMEAN VALUE")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\n", r.Seed, r.Runs, r.MeanOnTime, r.BestOnTime, r.MeanDelivered)
				}
				return nil
			}

			rows, err := archive.Runs(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "SESSION\tSEED\tLEVEL\tCOMPLETED\tON-TIME\tLEAD (MIN)\tFINISHED")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%.1f\t%s\n",
					r.SessionID, r.Seed, r.Level, r.TotalCompleted, r.OnTimeRate,
					model.Millis(r.AverageLead).Minutes(), r.FinishedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&archivePath, "archive", "runs.duckdb", "DuckDB archive file")
	f.IntVar(&limit, "limit", 20, "maximum runs to list")
	f.BoolVar(&bySeed, "by-seed", false, "aggregate runs that share a seed")
	return cmd
}
