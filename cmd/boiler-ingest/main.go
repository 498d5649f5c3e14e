// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the boiler-ingest CLI. Each pipeline
// stage is a subcommand: preprocess, analyze, and sync; run chains all three.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/boiler-ingest/internal/config"
	"github.com/pdiddy/boiler-ingest/internal/secrets"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// app holds the state resolved before any subcommand runs.
var app struct {
	v     *viper.Viper
	cfg   types.PipelineConfig
	log   *zap.Logger
	flush func()
}

// flagKeys binds a command's flags to config keys so an explicit flag wins
// over the config file and environment.
var flagKeys = map[*cobra.Command]map[string]string{}

func bindFlag(cmd *cobra.Command, flag, key string) {
	if flagKeys[cmd] == nil {
		flagKeys[cmd] = map[string]string{}
	}
	flagKeys[cmd][flag] = key
}

var rootCmd = &cobra.Command{
	Use:   "boiler-ingest",
	Short: "OCR ingestion pipeline for boiler warranty cards",
	Long: `boiler-ingest turns scanned boiler installation documents into rows of a
shared spreadsheet. Scans are normalized (preprocess), recognized by a custom
Azure Document Intelligence model (analyze), and published to Google Sheets or
an xlsx workbook exactly once per document (sync).

Settings come from boiler-ingest.yaml, BOILER_INGEST_* environment variables,
and key files in .secrets/ (azure-key, azure-endpoint, google-credentials,
google-sheets-id).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./boiler-ingest.yaml or ~/.config/boiler-ingest/boiler-ingest.yaml)")
	pf.String("secrets-dir", ".secrets", "directory of credential key files")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: console or json")
	bindFlag(rootCmd, "log-level", "log.level")
	bindFlag(rootCmd, "log-format", "log.format")
}

func setup(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}

	for c := cmd; c != nil; c = c.Parent() {
		for flag, key := range flagKeys[c] {
			f := cmd.Flags().Lookup(flag)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	dir, _ := cmd.Flags().GetString("secrets-dir")
	s, err := secrets.Load(dir)
	if err != nil {
		return err
	}
	if len(s) > 0 {
		keys := make([]string, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
	}
	config.ApplySecrets(v, s)

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	log, flush, err := config.InitLogger(cfg.Log)
	if err != nil {
		return err
	}

	app.v, app.cfg, app.log, app.flush = v, cfg, log, flush
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if app.flush != nil {
		app.flush()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
