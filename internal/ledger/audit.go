// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AuditEntry is the partition decision of one sync run.
type AuditEntry struct {
	Time       time.Time
	Total      int
	New        []string
	Duplicates []string
	Failed     []string
}

// AuditLog appends one human-readable block per sync run. It is written for
// people and never read back by the pipeline.
type AuditLog struct {
	path string
	log  *zap.Logger
}

// NewAuditLog returns an audit log writing to path. A nil logger uses the
// global zap logger.
func NewAuditLog(path string, log *zap.Logger) *AuditLog {
	if log == nil {
		log = zap.L()
	}
	return &AuditLog{path: path, log: log}
}

// Append writes the entry block. Failures are logged as warnings and
// returned; callers treat them as non-fatal.
func (a *AuditLog) Append(e AuditEntry) error {
	if a == nil || a.path == "" {
		return nil
	}
	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			a.log.Warn("audit log directory", zap.String("path", a.path), zap.Error(err))
			return eris.Wrapf(err, "ledger: audit log %s", a.path)
		}
	}
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		a.log.Warn("audit log open", zap.String("path", a.path), zap.Error(err))
		return eris.Wrapf(err, "ledger: audit log %s", a.path)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatAudit(e)); err != nil {
		a.log.Warn("audit log write", zap.String("path", a.path), zap.Error(err))
		return eris.Wrapf(err, "ledger: audit log %s", a.path)
	}
	return nil
}

// FormatAudit renders an entry as a timestamped text block.
func FormatAudit(e AuditEntry) string {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== %s ===\n", ts.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total artifacts: %d\n", e.Total)
	fmt.Fprintf(&b, "New to publish: %d\n", len(e.New))
	fmt.Fprintf(&b, "Duplicates skipped: %d\n", len(e.Duplicates))
	if len(e.Failed) > 0 {
		fmt.Fprintf(&b, "Failed analyses skipped: %d\n", len(e.Failed))
	}
	writeIDs(&b, "DUPLICATES:", "-", e.Duplicates)
	writeIDs(&b, "NEW:", "+", e.New)
	writeIDs(&b, "FAILED:", "!", e.Failed)
	return b.String()
}

func writeIDs(b *strings.Builder, title, mark string, ids []string) {
	if len(ids) == 0 {
		return
	}
	b.WriteString(title + "\n")
	for _, id := range ids {
		fmt.Fprintf(b, "  %s %s\n", mark, id)
	}
}
