// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records which source identifiers have been published to the
// destination. The store is a UTF-8 text file with one identifier per line,
// loaded in full at startup and only ever appended to. Surrounding whitespace
// on a line is ignored, so identifiers never begin or end with it.
//
// Publication is at-most-once on a best-effort basis: Register keeps the
// in-memory entry even when the append fails, so the running process will
// not publish the identifier again, but a restart re-reads the file and may
// publish it a second time. A single process owns the file; concurrent
// writers need external locking.
package ledger

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrInvalidID is returned by Register for identifiers that cannot be stored
// on a single line.
var ErrInvalidID = eris.New("ledger: invalid identifier")

// ValidID reports whether id survives a store round trip: non-empty, a
// single line, and no surrounding whitespace. It wraps ErrInvalidID.
func ValidID(id string) error {
	if id == "" || strings.ContainsAny(id, "\r\n") || strings.TrimSpace(id) != id {
		return eris.Wrapf(ErrInvalidID, "%q", id)
	}
	return nil
}

// Ledger is the set of published source identifiers.
type Ledger struct {
	path string
	log  *zap.Logger

	ids   map[string]struct{}
	order []string

	// partialLine is set when the file does not end in a newline, so the
	// next append starts a fresh line.
	partialLine bool
}

// Open creates a ledger backed by path and loads it. A nil logger uses the
// global zap logger.
func Open(path string, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.L()
	}
	l := &Ledger{path: path, log: log.With(zap.String("ledger", path))}
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the backing file.
func (l *Ledger) Path() string { return l.path }

// Load replaces the in-memory set with the contents of the backing file.
// A missing file is created empty; failure to create it is logged and the
// ledger starts empty. An existing file that cannot be read is an error.
func (l *Ledger) Load() error {
	l.ids = make(map[string]struct{})
	l.order = nil
	l.partialLine = false

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.log.Info("ledger not found, creating empty store")
		if cerr := l.create(); cerr != nil {
			l.log.Warn("could not create ledger store", zap.Error(cerr))
		}
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s", l.path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, rerr := r.ReadString('\n')
		if line != "" {
			l.partialLine = !strings.HasSuffix(line, "\n")
			if id := strings.TrimSpace(line); id != "" {
				l.add(id)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return eris.Wrapf(rerr, "ledger: read %s", l.path)
		}
	}

	l.log.Info("ledger loaded", zap.Int("identifiers", len(l.order)))
	return nil
}

func (l *Ledger) create() error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Contains reports whether id has been published.
func (l *Ledger) Contains(id string) bool {
	_, ok := l.ids[id]
	return ok
}

// Register records id as published. It is a no-op for known identifiers.
// The identifier is added in memory before the append is attempted and stays
// there if the append fails; the append error is logged and returned.
func (l *Ledger) Register(id string) error {
	if err := ValidID(id); err != nil {
		return err
	}
	if l.Contains(id) {
		return nil
	}
	l.add(id)

	if err := l.appendLine(id); err != nil {
		l.log.Error("ledger append failed; identifier kept in memory only",
			zap.String("id", id), zap.Error(err))
		return eris.Wrapf(err, "ledger: append %q", id)
	}
	l.log.Debug("registered", zap.String("id", id))
	return nil
}

func (l *Ledger) appendLine(id string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	line := id + "\n"
	if l.partialLine {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	l.partialLine = false
	return nil
}

func (l *Ledger) add(id string) {
	if _, ok := l.ids[id]; ok {
		return
	}
	l.ids[id] = struct{}{}
	l.order = append(l.order, id)
}

// Len returns the number of identifiers.
func (l *Ledger) Len() int { return len(l.order) }

// IDs returns the identifiers in the order they were recorded.
func (l *Ledger) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}
