// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package preprocess prepares raw scans for analysis. Files within the OCR
// service's upload limit are moved as they are; larger ones are re-encoded as
// JPEG until they fit. A file that cannot be shrunk is moved unchanged and
// left for the service to reject.
package preprocess

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// supportedExt lists the document formats the OCR model accepts.
var supportedExt = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".tif":  true,
	".bmp":  true,
}

// Supported reports whether name has an extension the OCR model accepts.
func Supported(name string) bool {
	return supportedExt[strings.ToLower(filepath.Ext(name))]
}

// CompressedName returns the file name an oversize source is re-encoded to.
func CompressedName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_compressed.jpg"
}

// Preprocessor moves files into the analysis input directory, compressing
// those above MaxBytes.
type Preprocessor struct {
	Compressor Compressor
	MaxBytes   int64
	Quality    int
	Log        *zap.Logger
}

// FileOutcome describes one processed file.
type FileOutcome struct {
	Source     string
	Dest       string
	Compressed bool
	SizeBefore int64
	SizeAfter  int64
}

// Stats summarizes a directory run.
type Stats struct {
	Total      int
	Processed  int
	Compressed int
	Copied     int
	Failed     int
	SizeBefore int64
	SizeAfter  int64
}

// Saved returns the bytes saved by compression.
func (s Stats) Saved() int64 {
	return s.SizeBefore - s.SizeAfter
}

// Ratio returns the saved share of the original size as a percentage.
func (s Stats) Ratio() float64 {
	if s.SizeBefore == 0 {
		return 0
	}
	return float64(s.Saved()) / float64(s.SizeBefore) * 100
}

func (p *Preprocessor) logger() *zap.Logger {
	if p.Log == nil {
		return zap.L()
	}
	return p.Log
}

func (p *Preprocessor) limit() int64 {
	if p.MaxBytes <= 0 {
		return 4 * 1024 * 1024
	}
	return p.MaxBytes
}

// ProcessFile moves path into outDir. Oversize files are compressed to
// <stem>_compressed.jpg and the original removed; if compression fails the
// original is moved unchanged.
func (p *Preprocessor) ProcessFile(path, outDir string) (FileOutcome, error) {
	log := p.logger()
	info, err := os.Stat(path)
	if err != nil {
		return FileOutcome{}, eris.Wrapf(err, "stat %s", path)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return FileOutcome{}, eris.Wrapf(err, "create %s", outDir)
	}
	name := filepath.Base(path)
	out := FileOutcome{Source: path, SizeBefore: info.Size()}

	if info.Size() > p.limit() && p.Compressor != nil {
		dest := filepath.Join(outDir, CompressedName(name))
		q, err := CompressToFit(p.Compressor, path, dest, p.limit(), p.Quality)
		if err == nil {
			if rmErr := os.Remove(path); rmErr != nil {
				log.Warn("could not remove original", zap.String("file", path), zap.Error(rmErr))
			}
			after, _ := os.Stat(dest)
			out.Dest, out.Compressed = dest, true
			if after != nil {
				out.SizeAfter = after.Size()
			}
			log.Info("compressed",
				zap.String("file", name),
				zap.Int("quality", q),
				zap.Int64("before", out.SizeBefore),
				zap.Int64("after", out.SizeAfter))
			return out, nil
		}
		log.Warn("compression failed, moving original", zap.String("file", name), zap.Error(err))
	}

	dest := filepath.Join(outDir, name)
	if err := MoveFile(path, dest); err != nil {
		return out, eris.Wrapf(err, "move %s", name)
	}
	out.Dest, out.SizeAfter = dest, out.SizeBefore
	return out, nil
}

// ProcessDirectory runs ProcessFile over every supported file under rawDir.
// A missing rawDir is an error; a file that fails is counted and skipped.
func (p *Preprocessor) ProcessDirectory(rawDir, inputDir string, w io.Writer) (Stats, error) {
	var st Stats
	if _, err := os.Stat(rawDir); err != nil {
		return st, eris.Wrapf(err, "preprocess: raw directory %s", rawDir)
	}

	var files []string
	err := filepath.WalkDir(rawDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && Supported(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return st, eris.Wrapf(err, "preprocess: scan %s", rawDir)
	}

	for _, f := range files {
		st.Total++
		out, err := p.ProcessFile(f, inputDir)
		st.SizeBefore += out.SizeBefore
		if err != nil {
			st.Failed++
			fmt.Fprintf(w, "failed:     %s (%v)\n", filepath.Base(f), err)
			p.logger().Error("preprocess failed", zap.String("file", f), zap.Error(err))
			continue
		}
		st.Processed++
		st.SizeAfter += out.SizeAfter
		if out.Compressed {
			st.Compressed++
			fmt.Fprintf(w, "compressed: %s -> %s\n", filepath.Base(f), filepath.Base(out.Dest))
		} else {
			st.Copied++
			fmt.Fprintf(w, "moved:      %s\n", filepath.Base(f))
		}
	}

	fmt.Fprintf(w, "\nPreprocess summary: %d/%d processed, %d compressed, %d unchanged, %d failed\n",
		st.Processed, st.Total, st.Compressed, st.Copied, st.Failed)
	fmt.Fprintf(w, "Size: %.1f MB -> %.1f MB, saved %.1f MB (%.1f%%)\n",
		mb(st.SizeBefore), mb(st.SizeAfter), mb(st.Saved()), st.Ratio())
	return st, nil
}

func mb(n int64) float64 {
	return float64(n) / 1024 / 1024
}

// MoveFile renames src to dst, falling back to copy and remove when the two
// are on different filesystems.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".move-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_, copyErr := io.Copy(tmp, in)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		return errors.Join(copyErr, closeErr)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Remove(src)
}
