package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"model-arena/internal/report"
	"model-arena/internal/storage"

	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived evaluation runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, done, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer done()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no archived runs")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tGENERATED\tTEST\tUSABLE\tFAILED\tLEADER\tACCURACY")
			for _, r := range runs {
				leader, acc := "-", "-"
				if r.Leader != "" {
					leader, acc = r.Leader, fmt.Sprintf("%.4f", r.LeaderAccuracy)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05"), r.TestSize, r.Usable, r.Failed, leader, acc)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list, newest first (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the summary of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer done()

			rep, err := store.GetReport(args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			if err != nil {
				return err
			}
			report.PrintSummary(cmd.OutOrStdout(), rep)
			return nil
		},
	})
	return cmd
}

func openArchive(cmd *cobra.Command) (*storage.Store, func(), error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := a.archive()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	if store == nil {
		a.Close()
		return nil, nil, fmt.Errorf("no data path configured")
	}
	return store, a.Close, nil
}
