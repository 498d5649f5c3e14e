// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run preprocess, analyze, and sync in sequence",
	Long: `Run executes the whole pipeline: raw scans are prepared, analyzed, and the
new results published. A missing raw directory skips preprocessing. Failed
analyses do not stop the sync; they are reported and left for the next run.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().Bool("skip-preprocess", false, "analyze the input directory as it is")
	addSyncFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := app.cfg

	// Resolve every collaborator first so bad credentials fail before any
	// file is moved.
	p, err := newProcessor()
	if err != nil {
		return err
	}
	s, closeStore, err := newSyncer(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	skip, _ := cmd.Flags().GetBool("skip-preprocess")
	if !skip {
		fmt.Fprintln(os.Stdout, "== preprocess ==")
		if _, statErr := os.Stat(cfg.Preprocess.RawDir); statErr != nil {
			app.log.Warn("raw directory not found, skipping preprocess", zap.String("dir", cfg.Preprocess.RawDir))
		} else if _, err := newPreprocessor(cfg.Preprocess).ProcessDirectory(cfg.Preprocess.RawDir, cfg.Preprocess.InputDir, os.Stdout); err != nil {
			return err
		}
	}

	fmt.Fprintln(os.Stdout, "\n== analyze ==")
	result, err := analyze(ctx, p, nil, os.Stdout)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "\n== sync ==")
	sum, err := s.Run(ctx, syncConfig())
	if err != nil {
		return err
	}

	switch {
	case result.HasFailures():
		return fmt.Errorf("%d document(s) failed analysis", result.Failed)
	case sum.RegisterErrors > 0:
		return fmt.Errorf("%d published document(s) not recorded in the ledger", sum.RegisterErrors)
	}
	return nil
}
