// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/boiler-ingest/internal/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the history of sync runs",
	Long: `Runs lists recorded sync runs, newest first, with their counts and status.
With --source, it lists the runs that saw one document and how each run
classified it. The history is informational; duplicate detection relies on
the ledger alone.`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsCmd.Flags().String("format", runlog.FormatTable, "output format: table, yaml, or json")
	runsCmd.Flags().String("source", "", "show the history of one source identifier")
	runsCmd.Flags().String("db", "", "run history database (default data/state/runs.db)")
	bindFlag(runsCmd, "db", "sync.runs_db")

	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	if app.cfg.Sync.RunsDB == "" {
		return fmt.Errorf("run history is disabled (sync.runs_db is empty)")
	}
	store, err := runlog.Open(app.cfg.Sync.RunsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if source, _ := cmd.Flags().GetString("source"); source != "" {
		entries, err := store.History(ctx, source)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintf(os.Stdout, "no runs saw %s\n", source)
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tPARTITION")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.RunID, e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.Partition)
		}
		return tw.Flush()
	}

	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")
	runs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	return runlog.Export(os.Stdout, runs, format)
}
