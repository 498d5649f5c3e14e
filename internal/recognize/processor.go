// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/boiler-ingest/internal/artifact"
	"github.com/pdiddy/boiler-ingest/internal/fields"
	"github.com/pdiddy/boiler-ingest/internal/preprocess"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

// NewLimiter spaces analysis calls at least interval apart. The first call
// is never delayed. A zero interval disables pacing.
func NewLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Processor analyzes documents and persists one artifact per document.
type Processor struct {
	Analyzer Analyzer
	Schema   *fields.Schema
	ModelID  string

	// OutputDir receives artifacts.
	OutputDir string

	// ProcessedDir receives source files after a successful analysis. Empty
	// leaves them in place.
	ProcessedDir string

	// Limiter paces calls to the service; nil means no pacing.
	Limiter *rate.Limiter

	Log *zap.Logger
}

// Outcome is the result of one document.
type Outcome struct {
	Source       string
	ArtifactPath string
	Artifact     *types.Artifact
	Moved        bool
	Err          error
}

// BatchResult holds the outcome of a directory run.
type BatchResult struct {
	Succeeded int
	Failed    int
	Outcomes  []Outcome
}

// Total returns the number of documents processed.
func (r BatchResult) Total() int {
	return r.Succeeded + r.Failed
}

// HasFailures reports whether any document failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// SuccessRatio returns the fraction of documents analyzed successfully, or 0
// for an empty batch.
func (r BatchResult) SuccessRatio() float64 {
	if r.Total() == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Total())
}

func (p *Processor) logger() *zap.Logger {
	if p.Log == nil {
		return zap.L()
	}
	return p.Log
}

// ProcessDirectory analyzes every supported file under inputDir, recursing
// into subdirectories, one call at a time. A failed document gets a failed
// artifact and the batch continues. A missing input directory is logged and
// yields an empty result. The error is non-nil only when ctx ends the run.
func (p *Processor) ProcessDirectory(ctx context.Context, inputDir string, w io.Writer) (BatchResult, error) {
	log := p.logger()
	var result BatchResult

	files, err := findDocuments(inputDir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("input directory not found", zap.String("dir", inputDir))
		fmt.Fprintf(w, "no input directory %s\n", inputDir)
		return result, nil
	}
	if err != nil {
		return result, err
	}
	log.Info("documents found", zap.String("dir", inputDir), zap.Int("count", len(files)))

	for _, f := range files {
		if err := p.wait(ctx); err != nil {
			return result, err
		}
		out := p.ProcessFile(ctx, f)
		p.tally(&result, out, w)
	}

	fmt.Fprintf(w, "\nAnalysis summary: %d succeeded, %d failed (total: %d, success: %.1f%%)\n",
		result.Succeeded, result.Failed, result.Total(), result.SuccessRatio()*100)
	return result, nil
}

// ProcessFile analyzes one local document. On success the artifact is
// written, the source is moved to ProcessedDir, and the move is recorded in
// the artifact.
func (p *Processor) ProcessFile(ctx context.Context, path string) Outcome {
	log := p.logger()
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	out := Outcome{Source: name, ArtifactPath: p.artifactPath(name, stem)}

	data, err := os.ReadFile(path)
	if err != nil {
		return p.failed(out, eris.Wrapf(err, "read %s", name))
	}

	log.Info("analyzing", zap.String("source", name), zap.Int("bytes", len(data)))
	res, err := p.Analyzer.Analyze(ctx, p.ModelID, Source{Name: name, Body: data})
	if err == nil && !res.Usable() {
		err = eris.New("no usable content in result")
	}
	if err != nil {
		return p.failed(out, err)
	}

	out.Artifact = NewArtifact(res, name, p.Schema)
	if err := artifact.Write(out.ArtifactPath, out.Artifact); err != nil {
		out.Err = err
		return out
	}
	log.Info("artifact written", zap.String("path", out.ArtifactPath), zap.Int("fields", out.Artifact.ExtractedFields.Len()))

	if p.ProcessedDir == "" {
		return out
	}
	dest := filepath.Join(p.ProcessedDir, name)
	if err := preprocess.MoveFile(path, dest); err != nil {
		log.Warn("could not move source", zap.String("source", name), zap.Error(err))
	} else {
		out.Moved = true
	}
	if err := artifact.MarkMoved(out.ArtifactPath, out.Moved); err != nil {
		log.Warn("could not record move", zap.String("path", out.ArtifactPath), zap.Error(err))
	}
	out.Artifact.MovedToProcessed = out.Moved
	return out
}

// ProcessURL analyzes a document the service fetches from rawURL. The URL is
// the source identifier; the artifact name is derived from it.
func (p *Processor) ProcessURL(ctx context.Context, rawURL string, w io.Writer) (Outcome, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Outcome{}, eris.Errorf("recognize: not an http(s) URL: %q", rawURL)
	}
	if err := p.wait(ctx); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Source: rawURL, ArtifactPath: p.artifactPath(rawURL, URLSlug(rawURL))}
	p.logger().Info("analyzing url", zap.String("url", rawURL))
	res, err := p.Analyzer.Analyze(ctx, p.ModelID, Source{Name: rawURL, URL: rawURL})
	if err == nil && !res.Usable() {
		err = eris.New("no usable content in result")
	}
	if err != nil {
		out = p.failed(out, err)
	} else {
		out.Artifact = NewArtifact(res, rawURL, p.Schema)
		out.Err = artifact.Write(out.ArtifactPath, out.Artifact)
	}

	var batch BatchResult
	p.tally(&batch, out, w)
	return out, nil
}

// failed records a failed artifact for out.Source. An earlier successful
// artifact of the same source is kept instead. The write error, if any, is
// logged; the analysis error stays the outcome's error.
func (p *Processor) failed(out Outcome, cause error) Outcome {
	out.Err = cause
	out.Artifact = FailedArtifact(out.Source, cause)
	if prev, err := artifact.Read(out.ArtifactPath); err == nil && prev.Succeeded() && prev.SourceFile == out.Source {
		p.logger().Warn("keeping earlier successful artifact",
			zap.String("source", out.Source), zap.String("path", out.ArtifactPath))
		return out
	}
	if err := artifact.Write(out.ArtifactPath, out.Artifact); err != nil {
		p.logger().Warn("could not write failed artifact", zap.String("source", out.Source), zap.Error(err))
	}
	return out
}

// artifactPath returns the artifact file for source. The plain
// "<stem>_analysis.json" is used unless it holds another source's artifact;
// then a hash of source is appended to the stem.
func (p *Processor) artifactPath(source, stem string) string {
	plain := filepath.Join(p.OutputDir, stem+artifact.Suffix)
	prev, err := artifact.Read(plain)
	if err != nil || prev.SourceFile == source {
		return plain
	}
	return filepath.Join(p.OutputDir, stem+"-"+sourceHash(source)+artifact.Suffix)
}

func (p *Processor) tally(result *BatchResult, out Outcome, w io.Writer) {
	result.Outcomes = append(result.Outcomes, out)
	if out.Err != nil {
		result.Failed++
		fmt.Fprintf(w, "failed:   %s (%v)\n", out.Source, out.Err)
		p.logger().Error("analysis failed", zap.String("source", out.Source), zap.Error(out.Err))
		return
	}
	result.Succeeded++
	moved := ""
	if out.Moved {
		moved = ", moved"
	}
	fmt.Fprintf(w, "analyzed: %s (%d fields%s)\n", out.Source, out.Artifact.ExtractedFields.Len(), moved)
}

func (p *Processor) wait(ctx context.Context) error {
	if p.Limiter == nil {
		return ctx.Err()
	}
	return p.Limiter.Wait(ctx)
}

// findDocuments walks dir in lexical order and returns supported files.
func findDocuments(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && preprocess.Supported(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "recognize: scan %s", dir)
	}
	return files, nil
}

// URLSlug returns a filesystem-safe stem for a document URL: the last path
// element without extension followed by a short hash of the URL, or a longer
// hash alone when the path has no last element. URLs that share a file name
// get distinct stems.
func URLSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return urlHashSlug(rawURL)
	}
	base := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	if base == "" || base == "." || base == "/" {
		return urlHashSlug(rawURL)
	}
	return base + "-" + sourceHash(rawURL)
}

func sourceHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:4])
}

func urlHashSlug(rawURL string) string {
	h := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf("url-%x", h[:8])
}
