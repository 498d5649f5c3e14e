// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sheetsync

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/boiler-ingest/internal/artifact"
	"github.com/pdiddy/boiler-ingest/internal/ledger"
	"github.com/pdiddy/boiler-ingest/internal/runlog"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

type call struct {
	method string
	target string
	rows   [][]string
}

type fakeDest struct {
	calls []call
	err   error
	empty bool
}

func (f *fakeDest) Update(_ context.Context, target string, rows [][]string) (int, error) {
	return f.do("update", target, rows)
}

func (f *fakeDest) Append(_ context.Context, target string, rows [][]string) (int, error) {
	return f.do("append", target, rows)
}

func (f *fakeDest) IsEmpty(context.Context, string) (bool, error) { return f.empty, nil }

func (f *fakeDest) do(method, target string, rows [][]string) (int, error) {
	f.calls = append(f.calls, call{method: method, target: target, rows: rows})
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, r := range rows {
		n += len(r)
	}
	return n, nil
}

type fakeRecorder struct{ runs []runlog.Run }

func (f *fakeRecorder) Record(_ context.Context, run *runlog.Run) error {
	f.runs = append(f.runs, *run)
	return nil
}

type fixture struct {
	dir      string
	ledger   *ledger.Ledger
	ledgerAt string
	auditAt  string
	dest     *fakeDest
	rec      *fakeRecorder
	out      *bytes.Buffer
	syncer   *Syncer
}

func newFixture(t *testing.T, published ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		dir:      filepath.Join(root, "output"),
		ledgerAt: filepath.Join(root, "state", "processed_files.txt"),
		auditAt:  filepath.Join(root, "state", "duplicates_log.txt"),
		dest:     &fakeDest{},
		rec:      &fakeRecorder{},
		out:      &bytes.Buffer{},
	}
	require.NoError(t, os.MkdirAll(f.dir, 0o755))
	if len(published) > 0 {
		require.NoError(t, os.MkdirAll(filepath.Dir(f.ledgerAt), 0o755))
		require.NoError(t, os.WriteFile(f.ledgerAt, []byte(strings.Join(published, "\n")+"\n"), 0o644))
	}

	l, err := ledger.Open(f.ledgerAt, zap.NewNop())
	require.NoError(t, err)
	f.ledger = l
	f.syncer = &Syncer{
		Ledger:   l,
		Audit:    ledger.NewAuditLog(f.auditAt, zap.NewNop()),
		Dest:     f.dest,
		Recorder: f.rec,
		Log:      zap.NewNop(),
		Out:      f.out,
	}
	return f
}

func (f *fixture) addArtifact(t *testing.T, source string, kv ...string) {
	t.Helper()
	a := &types.Artifact{
		SourceFile:       source,
		Status:           types.StatusSuccess,
		ExtractedFields:  types.NewOrderedMap[string](),
		ConfidenceScores: types.NewOrderedMap[float64](),
		DocumentCount:    1,
	}
	for i := 0; i+1 < len(kv); i += 2 {
		a.ExtractedFields.Set(kv[i], kv[i+1])
		a.ConfidenceScores.Set(kv[i], 0.9)
	}
	require.NoError(t, artifact.Write(filepath.Join(f.dir, artifact.FileName(source)), a))
}

func (f *fixture) addFailed(t *testing.T, source, cause string) {
	t.Helper()
	a := &types.Artifact{SourceFile: source, Status: types.StatusFailed, Error: cause}
	require.NoError(t, artifact.Write(filepath.Join(f.dir, artifact.FileName(source)), a))
}

func (f *fixture) cfg() Config {
	return Config{ArtifactsDir: f.dir, Target: "A1", Mode: types.WriteOverwrite}
}

func ledgerLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestRun_ThreeNewArtifacts(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, "scan01.jpg", "Typ kotle", "Condens 2500", "regulátor", "CR10")
	f.addArtifact(t, "scan02.jpg", "výrobní číslo kotle", "SN-778")
	f.addArtifact(t, "scan03.pdf", "prodejce kotle", "Topení Novák s.r.o.")

	sum, err := f.syncer.Run(context.Background(), f.cfg())
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 3, sum.New)
	assert.Equal(t, 0, sum.Duplicates)
	assert.Equal(t, 3, sum.Registered)

	require.Len(t, f.dest.calls, 1)
	c := f.dest.calls[0]
	assert.Equal(t, "update", c.method)
	assert.Equal(t, "A1", c.target)
	require.Len(t, c.rows, 4, "header plus three data rows")
	assert.Equal(t, "nazev_souboru", c.rows[0][0])
	assert.Equal(t, []string{"scan01.jpg", "Condens 2500", "", "", "", "", "", "", "", "CR10", ""}, c.rows[1])
	assert.Equal(t, "SN-778", c.rows[2][2])
	assert.Equal(t, "Topení Novák s.r.o.", c.rows[3][3])
	assert.Equal(t, 44, sum.UpdatedCells)

	assert.ElementsMatch(t, []string{"scan01.jpg", "scan02.jpg", "scan03.pdf"}, ledgerLines(t, f.ledgerAt))
	assert.Equal(t, 3, f.ledger.Len())

	require.Len(t, f.rec.runs, 1)
	assert.Equal(t, runlog.StatusOK, f.rec.runs[0].Status)
	assert.Len(t, f.rec.runs[0].Items, 3)
}

func TestRun_PublishesOnlyUnregistered(t *testing.T) {
	f := newFixture(t, "A.pdf")
	f.addArtifact(t, "A.pdf", "Typ kotle", "old")
	f.addArtifact(t, "B.pdf", "Typ kotle", "new")

	sum, err := f.syncer.Run(context.Background(), f.cfg())
	require.NoError(t, err)

	assert.Equal(t, []string{"B.pdf"}, sum.NewIDs)
	assert.Equal(t, []string{"A.pdf"}, sum.DuplicateIDs)
	require.Len(t, f.dest.calls, 1)
	rows := f.dest.calls[0].rows
	require.Len(t, rows, 2)
	assert.Equal(t, "B.pdf", rows[1][0])
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, ledgerLines(t, f.ledgerAt))
}

func TestRun_AllDuplicatesIsNoop(t *testing.T) {
	f := newFixture(t, "A.pdf", "B.pdf")
	f.addArtifact(t, "A.pdf")
	f.addArtifact(t, "B.pdf")
	before, err := os.ReadFile(f.ledgerAt)
	require.NoError(t, err)

	sum, err := f.syncer.Run(context.Background(), f.cfg())
	require.NoError(t, err)

	assert.Equal(t, 0, sum.New)
	assert.Equal(t, 2, sum.Duplicates)
	assert.Empty(t, f.dest.calls, "no destination write")
	after, err := os.ReadFile(f.ledgerAt)
	require.NoError(t, err)
	assert.Equal(t, before, after, "no ledger mutation")
	assert.False(t, sum.Published())

	require.Len(t, f.rec.runs, 1)
	assert.Equal(t, runlog.StatusNoop, f.rec.runs[0].Status)

	audit, err := os.ReadFile(f.auditAt)
	require.NoError(t, err)
	assert.Contains(t, string(audit), "  - A.pdf")
	assert.Contains(t, string(audit), "  - B.pdf")
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, "A.pdf", "Typ kotle", "x")

	_, err := f.syncer.Run(context.Background(), f.cfg())
	require.NoError(t, err)
	sum, err := f.syncer.Run(context.Background(), f.cfg())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Duplicates)
	assert.Len(t, f.dest.calls, 1)
	assert.Equal(t, []string{"A.pdf"}, ledgerLines(t, f.ledgerAt))
}

func TestRun_MalformedArtifactAborts(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, "A.pdf", "Typ kotle", "x")
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "B_analysis.json"), []byte(`{"source_file": "B.pdf", "sta`), 0o644))

	_, err := f.syncer.Run(context.Background(), f.cfg())
	require.Error(t, err)
	assert.True(t, errors.Is(err, artifact.ErrMalformed))
	assert.Empty(t, f.dest.calls)
	assert.Equal(t, 0, f.ledger.Len())
	assert.Empty(t, ledgerLines(t, f.ledgerAt))

	require.Len(t, f.rec.runs, 1)
	assert.Equal(t, runlog.StatusFailed, f.rec.runs[0].Status)
}

func TestRun_WriteFailureRegistersNothing(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, "A.pdf", "Typ kotle", "x")
	f.addArtifact(t, "B.pdf", "Typ kotle", "y")
	f.dest.err = errors.New("googleapi: 429 quota exceeded")

	sum, err := f.syncer.Run(context.Background(), f.cfg())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 0, sum.Registered)
	assert.Equal(t, 0, f.ledger.Len())
	assert.Empty(t, ledgerLines(t, f.ledgerAt))
}

func TestRun_FailedArtifactsNeverPublished(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, "A.pdf", "Typ kotle", "x")
	f.addFailed(t, "B.pdf", "401 unauthorized")

	sum, err := f.syncer.Run(context.Background(), f.cfg())
	require.NoError(t, err)

	assert.Equal(t, []string{"A.pdf"}, sum.NewIDs)
	assert.Equal(t, []string{"B.pdf"}, sum.FailedIDs)
	require.Len(t, f.dest.calls, 1)
	assert.Len(t, f.dest.calls[0].rows, 2)
	assert.False(t, f.ledger.Contains("B.pdf"))
	assert.Contains(t, f.out.String(), "401 unauthorized")
}

// An identifier the ledger cannot store would be republished on every run,
// so it never reaches the destination.
func TestRun_UnrecordableIdentifierNeverPublished(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, "A.pdf", "Typ kotle", "x")
	bad := &types.Artifact{SourceFile: "bad\nname.jpg", Status: types.StatusSuccess, DocumentCount: 1}
	require.NoError(t, artifact.Write(filepath.Join(f.dir, "bad_analysis.json"), bad))

	for i := 0; i < 3; i++ {
		sum, err := f.syncer.Run(context.Background(), f.cfg())
		require.NoError(t, err)
		assert.Equal(t, []string{"bad\nname.jpg"}, sum.FailedIDs, "run %d", i)
		assert.Equal(t, 0, sum.RegisterErrors, "run %d", i)
	}

	require.Len(t, f.dest.calls, 1, "only the first run publishes A.pdf")
	assert.Len(t, f.dest.calls[0].rows, 2)
	assert.Equal(t, []string{"A.pdf"}, ledgerLines(t, f.ledgerAt))
	assert.Contains(t, f.out.String(), "cannot be recorded")
}

func TestRun_SameSourceTwiceInBatch(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, "scan.jpg", "Typ kotle", "x")
	// A second artifact naming the same source, e.g. from a PDF and JPG pair.
	a := &types.Artifact{SourceFile: "scan.jpg", Status: types.StatusSuccess}
	require.NoError(t, artifact.Write(filepath.Join(f.dir, "scan_copy_analysis.json"), a))

	sum, err := f.syncer.Run(context.Background(), f.cfg())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.New)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Len(t, f.dest.calls[0].rows, 2)
	assert.Equal(t, []string{"scan.jpg"}, ledgerLines(t, f.ledgerAt))
}

func TestRun_AppendMode(t *testing.T) {
	f := newFixture(t, "A.pdf")
	f.addArtifact(t, "A.pdf")
	f.addArtifact(t, "B.pdf", "Typ kotle", "y")
	f.dest.empty = false

	cfg := f.cfg()
	cfg.Mode = types.WriteAppend
	sum, err := f.syncer.Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, f.dest.calls, 1)
	assert.Equal(t, "append", f.dest.calls[0].method)
	assert.Equal(t, [][]string{{"B.pdf", "y", "", "", "", "", "", "", "", "", ""}}, f.dest.calls[0].rows)
	assert.False(t, sum.HeaderWritten)
	assert.Equal(t, 1, sum.Registered)
}

func TestRun_MissingDirectory(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfg()
	cfg.ArtifactsDir = filepath.Join(f.dir, "nope")

	sum, err := f.syncer.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
	assert.Empty(t, f.dest.calls)
	assert.Contains(t, f.out.String(), "no artifacts")
}

func TestRun_EmptyDirectory(t *testing.T) {
	f := newFixture(t)
	sum, err := f.syncer.Run(context.Background(), f.cfg())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total)
	assert.Empty(t, f.dest.calls)
}

func TestRun_RegisterFailureIsCounted(t *testing.T) {
	f := newFixture(t)
	f.addArtifact(t, "A.pdf", "Typ kotle", "x")

	// Turn the ledger file into a directory so appends fail after the write.
	require.NoError(t, os.Remove(f.ledgerAt))
	require.NoError(t, os.Mkdir(f.ledgerAt, 0o755))

	sum, err := f.syncer.Run(context.Background(), f.cfg())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.RowsWritten)
	assert.Equal(t, 0, sum.Registered)
	assert.Equal(t, 1, sum.RegisterErrors)
	assert.True(t, f.ledger.Contains("A.pdf"), "kept in memory")
	assert.Contains(t, f.out.String(), "published but not recorded")
	require.Len(t, f.rec.runs, 1)
	assert.NotEmpty(t, f.rec.runs[0].Error)
}

func TestRun_RequiresLedgerAndDestination(t *testing.T) {
	s := &Syncer{}
	_, err := s.Run(context.Background(), Config{ArtifactsDir: t.TempDir()})
	assert.Error(t, err)
}
