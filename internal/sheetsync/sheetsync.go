// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sheetsync publishes new analysis artifacts to the destination
// table. Each run reads every artifact in a directory, drops identifiers the
// ledger already holds, writes the remaining rows in one destination call, and
// registers each published identifier only after that call succeeds.
//
// A run never registers an identifier whose row was not written. It may
// register fewer than were written if the process stops between the write and
// the last registration; those rows are published again by the next run.
package sheetsync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pdiddy/boiler-ingest/internal/artifact"
	"github.com/pdiddy/boiler-ingest/internal/destination"
	"github.com/pdiddy/boiler-ingest/internal/fields"
	"github.com/pdiddy/boiler-ingest/internal/ledger"
	"github.com/pdiddy/boiler-ingest/internal/runlog"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

// Config selects the artifacts and the destination range of a run.
type Config struct {
	ArtifactsDir string
	Pattern      string
	Target       string
	Mode         types.WriteMode
}

// Recorder stores a finished run. *runlog.Store implements it.
type Recorder interface {
	Record(ctx context.Context, run *runlog.Run) error
}

// Syncer holds the collaborators of a sync run. Ledger and Dest are
// required; the rest are optional.
type Syncer struct {
	Ledger   *ledger.Ledger
	Audit    *ledger.AuditLog
	Dest     destination.Writer
	Schema   *fields.Schema
	Recorder Recorder
	Log      *zap.Logger

	// Out receives one status line per artifact and a closing summary.
	Out io.Writer
}

// Summary reports the outcome of a run.
type Summary struct {
	Total          int
	New            int
	Duplicates     int
	Failed         int
	Registered     int
	RegisterErrors int
	RowsWritten    int
	UpdatedCells   int
	HeaderWritten  bool

	NewIDs       []string
	DuplicateIDs []string
	FailedIDs    []string
}

// Published reports whether the run wrote to the destination.
func (s Summary) Published() bool {
	return s.RowsWritten > 0
}

type candidate struct {
	path string
	art  *types.Artifact
}

// Run executes one sync. A missing or empty artifact directory is reported
// and returns an empty summary. Any artifact that cannot be read aborts the
// run before the destination is touched. A destination failure aborts the
// run with nothing registered.
func (s *Syncer) Run(ctx context.Context, cfg Config) (Summary, error) {
	log := s.Log
	if log == nil {
		log = zap.L()
	}
	out := s.Out
	if out == nil {
		out = io.Discard
	}
	schema := s.Schema
	if schema == nil {
		schema = fields.DefaultSchema()
	}
	if s.Ledger == nil || s.Dest == nil {
		return Summary{}, eris.New("sheetsync: ledger and destination are required")
	}
	if cfg.Mode == "" {
		cfg.Mode = types.WriteOverwrite
	}

	run := &runlog.Run{
		StartedAt:    time.Now(),
		ArtifactsDir: cfg.ArtifactsDir,
		Target:       cfg.Target,
		Mode:         string(cfg.Mode),
	}
	var sum Summary

	paths, err := artifact.List(cfg.ArtifactsDir, cfg.Pattern)
	if err != nil {
		return sum, s.fail(ctx, log, run, sum, err)
	}
	if len(paths) == 0 {
		log.Warn("no artifacts found", zap.String("dir", cfg.ArtifactsDir))
		fmt.Fprintf(out, "no artifacts in %s\n", cfg.ArtifactsDir)
		return sum, nil
	}
	sum.Total = len(paths)

	arts := make([]candidate, 0, len(paths))
	for _, p := range paths {
		a, err := artifact.Read(p)
		if err != nil {
			return sum, s.fail(ctx, log, run, sum, eris.Wrap(err, "sheetsync: aborting, no rows written"))
		}
		arts = append(arts, candidate{path: p, art: a})
	}

	fresh := s.partition(arts, &sum, out, log)

	if err := s.Audit.Append(ledger.AuditEntry{
		Time:       run.StartedAt,
		Total:      sum.Total,
		New:        sum.NewIDs,
		Duplicates: sum.DuplicateIDs,
		Failed:     sum.FailedIDs,
	}); err != nil {
		log.Warn("audit log not written", zap.Error(err))
	}

	if len(fresh) == 0 {
		log.Info("nothing new to publish",
			zap.Int("total", sum.Total), zap.Int("duplicates", sum.Duplicates), zap.Int("failed", sum.Failed))
		s.summarize(out, sum)
		s.record(ctx, log, run, sum, runlog.StatusNoop, nil)
		return sum, nil
	}

	rows := make([][]string, 0, len(fresh))
	for _, c := range fresh {
		rows = append(rows, schema.Row(c.art.SourceFile, c.art.ExtractedFields))
	}

	res, err := destination.Write(ctx, s.Dest, cfg.Mode, cfg.Target, schema.Header(), rows)
	if err != nil {
		return sum, s.fail(ctx, log, run, sum, err)
	}
	sum.RowsWritten = len(rows)
	sum.UpdatedCells = res.UpdatedCells
	sum.HeaderWritten = res.HeaderWritten
	log.Info("rows published",
		zap.String("mode", string(res.Mode)),
		zap.Int("rows", sum.RowsWritten),
		zap.Int("cells", sum.UpdatedCells))

	for _, c := range fresh {
		id := c.art.SourceFile
		if err := s.Ledger.Register(id); err != nil {
			sum.RegisterErrors++
			fmt.Fprintf(out, "warning: %s published but not recorded: %v\n", id, err)
			continue
		}
		sum.Registered++
	}

	s.summarize(out, sum)
	var regErr error
	if sum.RegisterErrors > 0 {
		regErr = eris.Errorf("sheetsync: %d identifiers not recorded in ledger", sum.RegisterErrors)
	}
	s.record(ctx, log, run, sum, runlog.StatusOK, regErr)
	return sum, nil
}

// partition sorts artifacts into new, duplicate, and failed. An identifier is
// a duplicate when the ledger holds it or an earlier artifact of the same run
// claimed it. Failed analyses are never published, and neither are
// identifiers the ledger could not record.
func (s *Syncer) partition(arts []candidate, sum *Summary, out io.Writer, log *zap.Logger) []candidate {
	claimed := make(map[string]bool, len(arts))
	var fresh []candidate
	for _, c := range arts {
		id := c.art.SourceFile
		switch {
		case ledger.ValidID(id) != nil:
			sum.FailedIDs = append(sum.FailedIDs, id)
			fmt.Fprintf(out, "skipped: %q (identifier cannot be recorded in the ledger)\n", id)
			log.Warn("unrecordable identifier skipped", zap.String("id", id), zap.String("artifact", c.path))
		case s.Ledger.Contains(id) || claimed[id]:
			sum.DuplicateIDs = append(sum.DuplicateIDs, id)
			fmt.Fprintf(out, "duplicate: %s\n", id)
			log.Warn("duplicate skipped", zap.String("id", id), zap.String("artifact", c.path))
		case !c.art.Succeeded():
			sum.FailedIDs = append(sum.FailedIDs, id)
			fmt.Fprintf(out, "skipped: %s (analysis failed: %s)\n", id, c.art.Error)
		default:
			claimed[id] = true
			sum.NewIDs = append(sum.NewIDs, id)
			fresh = append(fresh, c)
			fmt.Fprintf(out, "new: %s\n", id)
		}
	}
	sum.New = len(sum.NewIDs)
	sum.Duplicates = len(sum.DuplicateIDs)
	sum.Failed = len(sum.FailedIDs)
	return fresh
}

func (s *Syncer) summarize(out io.Writer, sum Summary) {
	fmt.Fprintf(out, "\ntotal: %d, new: %d, duplicates: %d, failed: %d, registered: %d, cells: %d\n",
		sum.Total, sum.New, sum.Duplicates, sum.Failed, sum.Registered, sum.UpdatedCells)
}

func (s *Syncer) fail(ctx context.Context, log *zap.Logger, run *runlog.Run, sum Summary, err error) error {
	log.Error("sync failed", zap.Error(err))
	s.record(ctx, log, run, sum, runlog.StatusFailed, err)
	return err
}

func (s *Syncer) record(ctx context.Context, log *zap.Logger, run *runlog.Run, sum Summary, status string, runErr error) {
	if s.Recorder == nil {
		return
	}
	run.FinishedAt = time.Now()
	run.Total = sum.Total
	run.New = sum.New
	run.Duplicates = sum.Duplicates
	run.Failed = sum.Failed
	run.Registered = sum.Registered
	run.UpdatedCells = sum.UpdatedCells
	run.Status = status
	if runErr != nil {
		run.Error = runErr.Error()
	}
	run.Items = run.Items[:0]
	for _, id := range sum.NewIDs {
		run.Items = append(run.Items, runlog.Item{SourceID: id, Partition: runlog.PartitionNew})
	}
	for _, id := range sum.DuplicateIDs {
		run.Items = append(run.Items, runlog.Item{SourceID: id, Partition: runlog.PartitionDuplicate})
	}
	for _, id := range sum.FailedIDs {
		run.Items = append(run.Items, runlog.Item{SourceID: id, Partition: runlog.PartitionFailed})
	}
	if err := s.Recorder.Record(ctx, run); err != nil {
		log.Warn("run history not recorded", zap.Error(err))
	}
}
