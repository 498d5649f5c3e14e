// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package artifact reads and writes analysis artifacts: one UTF-8 JSON file
// per analyzed source document, named "<stem>_analysis.json".
package artifact

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/sjson"

	"github.com/pdiddy/boiler-ingest/pkg/types"
)

const (
	// Suffix is appended to the source file stem to name its artifact.
	Suffix = "_analysis.json"

	// DefaultPattern matches artifact files in a directory.
	DefaultPattern = "*" + Suffix
)

// ErrMalformed marks an artifact file that exists but cannot be decoded.
var ErrMalformed = eris.New("malformed artifact")

// FileName returns the artifact file name for a source file name or slug.
func FileName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + Suffix
}

// Write stores a to path through a temporary file and rename, so readers
// never observe a partial artifact. Non-ASCII text is written unescaped.
func Write(path string, a *types.Artifact) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return eris.Wrapf(err, "artifact: encode %s", a.SourceFile)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "artifact: create directory for %s", path)
	}
	return writeAtomic(path, buf.Bytes())
}

// Read loads the artifact at path. Decoding failures wrap ErrMalformed.
func Read(path string) (*types.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", path)
	}
	var a types.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrapf(ErrMalformed, "%s: %v", path, err)
	}
	if a.SourceFile == "" {
		return nil, eris.Wrapf(ErrMalformed, "%s: missing source_file", path)
	}
	switch a.Status {
	case types.StatusSuccess, types.StatusFailed:
	default:
		return nil, eris.Wrapf(ErrMalformed, "%s: unknown status %q", path, a.Status)
	}
	return &a, nil
}

// List returns the artifact files in dir matching pattern (DefaultPattern
// when empty), sorted by name. The scan is not recursive. A missing
// directory yields an empty list.
func List(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, eris.Wrapf(err, "artifact: bad pattern %q", pattern)
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "artifact: stat %s", dir)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("artifact: %s is not a directory", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: glob %s", dir)
	}
	out := matches[:0]
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
			out = append(out, m)
		}
	}
	return out, nil
}

// MarkMoved sets moved_to_processed in the artifact at path, leaving every
// other byte of the document as written.
func MarkMoved(path string, moved bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "artifact: read %s", path)
	}
	updated, err := sjson.SetBytes(data, "moved_to_processed", moved)
	if err != nil {
		return eris.Wrapf(err, "artifact: set moved flag in %s", path)
	}
	return writeAtomic(path, updated)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*.tmp")
	if err != nil {
		return eris.Wrap(err, "artifact: create temp file")
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return eris.Wrapf(writeErr, "artifact: write %s", path)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return eris.Wrapf(closeErr, "artifact: close %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return eris.Wrapf(err, "artifact: rename into %s", path)
	}
	return nil
}
