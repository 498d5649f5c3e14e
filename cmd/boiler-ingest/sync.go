// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/boiler-ingest/internal/config"
	"github.com/pdiddy/boiler-ingest/internal/destination"
	"github.com/pdiddy/boiler-ingest/internal/fields"
	"github.com/pdiddy/boiler-ingest/internal/ledger"
	"github.com/pdiddy/boiler-ingest/internal/runlog"
	"github.com/pdiddy/boiler-ingest/internal/secrets"
	"github.com/pdiddy/boiler-ingest/internal/sheetsync"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Publish new analysis artifacts to the destination table",
	Long: `Sync reads every artifact in the artifacts directory, skips documents the
ledger already lists and documents whose analysis failed, and writes the rest
to the destination in a single call. Each published document is then recorded
in the ledger so later runs do not publish it again.

In overwrite mode (the default) the header and new rows are written starting
at the target cell. In append mode rows are added after existing data and the
header is written only when the target is empty.`,
	RunE: runSync,
}

func init() {
	addSyncFlags(syncCmd)
	rootCmd.AddCommand(syncCmd)
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().String("artifacts-dir", "", "directory of analysis artifacts (default data/output)")
	cmd.Flags().String("ledger", "", "ledger file of published documents (default processed_files.txt)")
	cmd.Flags().String("dest", "", "destination backend: sheets or xlsx (default sheets)")
	cmd.Flags().String("xlsx", "", "workbook path for the xlsx backend")
	cmd.Flags().String("target", "", "destination cell or range, e.g. A1 or 'OCR Data!A1'")
	cmd.Flags().String("mode", "", "write mode: overwrite or append (default overwrite)")
	bindFlag(cmd, "artifacts-dir", "sync.artifacts_dir")
	bindFlag(cmd, "ledger", "sync.ledger_path")
	bindFlag(cmd, "dest", "destination.kind")
	bindFlag(cmd, "xlsx", "destination.xlsx_path")
	bindFlag(cmd, "target", "destination.target")
	bindFlag(cmd, "mode", "destination.mode")
}

// openDestination returns the writer for the configured backend.
func openDestination(ctx context.Context, cfg types.DestinationConfig) (destination.Writer, error) {
	if err := config.ValidateDestination(cfg); err != nil {
		return nil, err
	}
	if cfg.Kind == types.DestinationXLSX {
		return destination.NewXLSXWriter(cfg.XLSXPath, app.log), nil
	}
	return newSheetsClient(ctx, cfg)
}

func newSheetsClient(ctx context.Context, cfg types.DestinationConfig) (*destination.SheetsClient, error) {
	creds, err := secrets.CredentialsJSON(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}
	hc, err := destination.ServiceAccountClient(ctx, creds, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return destination.NewSheetsClient(cfg.SpreadsheetID,
		destination.WithHTTPClient(hc),
		destination.WithMaxRetries(cfg.MaxRetries),
		destination.WithLogger(app.log),
	), nil
}

// newSyncer wires the ledger, audit log, run history, and destination. The
// returned function releases the run history store.
func newSyncer(ctx context.Context) (*sheetsync.Syncer, func(), error) {
	cfg := app.cfg
	dest, err := openDestination(ctx, cfg.Destination)
	if err != nil {
		return nil, nil, err
	}
	schema, err := fields.LoadSchema(cfg.Sync.SchemaPath)
	if err != nil {
		return nil, nil, err
	}
	l, err := ledger.Open(cfg.Sync.LedgerPath, app.log)
	if err != nil {
		return nil, nil, err
	}

	s := &sheetsync.Syncer{
		Ledger: l,
		Audit:  ledger.NewAuditLog(cfg.Sync.AuditLogPath, app.log),
		Dest:   dest,
		Schema: schema,
		Log:    app.log,
		Out:    os.Stdout,
	}
	closer := func() {}
	if cfg.Sync.RunsDB != "" {
		store, err := runlog.Open(cfg.Sync.RunsDB)
		if err != nil {
			app.log.Warn("run history disabled", zap.String("path", cfg.Sync.RunsDB), zap.Error(err))
		} else {
			s.Recorder = store
			closer = func() { store.Close() }
		}
	}
	return s, closer, nil
}

func syncConfig() sheetsync.Config {
	return sheetsync.Config{
		ArtifactsDir: app.cfg.Sync.ArtifactsDir,
		Pattern:      app.cfg.Sync.Pattern,
		Target:       app.cfg.Destination.Target,
		Mode:         app.cfg.Destination.Mode,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	s, closeStore, err := newSyncer(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	sum, err := s.Run(cmd.Context(), syncConfig())
	if err != nil {
		return err
	}
	if sum.RegisterErrors > 0 {
		return fmt.Errorf("%d published document(s) not recorded in the ledger", sum.RegisterErrors)
	}
	return nil
}
