// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/boiler-ingest/internal/artifact"
	"github.com/pdiddy/boiler-ingest/internal/fields"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

const succeededBody = `{
  "status": "succeeded",
  "analyzeResult": {
    "apiVersion": "2024-11-30",
    "modelId": "pokus1",
    "content": "ZÁRUČNÍ LIST",
    "documents": [{
      "docType": "pokus1",
      "confidence": 0.97,
      "fields": {
        "výrobní číslo kotle": {"type": "string", "content": "7843561200", "confidence": 0.88},
        "Typ kotle": {"type": "string", "content": "Vitodens 100-W", "confidence": 0.95},
        "regulátor": {"type": "string", "content": ""},
        "prodejce kotle": {"type": "string", "content": "Topení Novák s.r.o."}
      }
    }]
  }
}`

func ptr(f float64) *float64 { return &f }

func testOCRConfig(endpoint string) types.OCRConfig {
	return types.OCRConfig{
		Endpoint:     endpoint,
		APIKey:       "secret-key",
		PollInterval: time.Millisecond,
	}
}

// --- AzureClient ---

func TestAzureClient_AnalyzeBytes(t *testing.T) {
	var polls atomic.Int32
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		switch {
		case r.Method == http.MethodPost:
			assert.Equal(t, "/documentintelligence/documentModels/pokus1:analyze", r.URL.Path)
			assert.Equal(t, "2024-11-30", r.URL.Query().Get("api-version"))
			assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
			gotBody, _ = io.ReadAll(r.Body)
			w.Header().Set("Operation-Location", "http://"+r.Host+"/operations/1")
			w.WriteHeader(http.StatusAccepted)
		case r.URL.Path == "/operations/1":
			if polls.Add(1) < 2 {
				fmt.Fprint(w, `{"status":"running"}`)
				return
			}
			fmt.Fprint(w, succeededBody)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewAzureClient(testOCRConfig(srv.URL+"/"), srv.Client(), nil)
	res, err := c.Analyze(context.Background(), "pokus1", Source{Name: "scan.jpg", Body: []byte("JPEGDATA")})
	require.NoError(t, err)

	assert.Equal(t, []byte("JPEGDATA"), gotBody)
	assert.Equal(t, int32(2), polls.Load())
	assert.Equal(t, "pokus1", res.ModelID)
	require.Len(t, res.Documents, 1)
	assert.Equal(t,
		[]string{"výrobní číslo kotle", "Typ kotle", "regulátor", "prodejce kotle"},
		res.Documents[0].Fields.Keys())
	f, ok := res.Documents[0].Fields.Get("prodejce kotle")
	require.True(t, ok)
	assert.Nil(t, f.Confidence)
}

func TestAzureClient_AnalyzeURL(t *testing.T) {
	var req analyzeURLRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.Header().Set("Operation-Location", "http://"+r.Host+"/operations/2")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		fmt.Fprint(w, succeededBody)
	}))
	defer srv.Close()

	c := NewAzureClient(testOCRConfig(srv.URL), srv.Client(), nil)
	_, err := c.Analyze(context.Background(), "pokus1", Source{Name: "u", URL: "https://example.com/card.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/card.pdf", req.URLSource)
}

func TestAzureClient_OperationFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Operation-Location", "http://"+r.Host+"/operations/3")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		fmt.Fprint(w, `{"status":"failed","error":{"code":"InvalidContent","message":"corrupt image"}}`)
	}))
	defer srv.Close()

	c := NewAzureClient(testOCRConfig(srv.URL), srv.Client(), nil)
	_, err := c.Analyze(context.Background(), "pokus1", Source{Name: "x.jpg", Body: []byte("x")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAnalysisFailed))
	assert.Contains(t, err.Error(), "corrupt image")
}

func TestAzureClient_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":"401","message":"Access denied"}}`)
	}))
	defer srv.Close()

	c := NewAzureClient(testOCRConfig(srv.URL), srv.Client(), nil)
	_, err := c.Analyze(context.Background(), "pokus1", Source{Name: "x.jpg", Body: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Access denied")
}

func TestAzureClient_MissingOperationLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewAzureClient(testOCRConfig(srv.URL), srv.Client(), nil)
	_, err := c.Analyze(context.Background(), "pokus1", Source{Name: "x.jpg", Body: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Operation-Location")
}

func TestAzureClient_RequiresModel(t *testing.T) {
	c := NewAzureClient(testOCRConfig("http://unused"), nil, nil)
	_, err := c.Analyze(context.Background(), "", Source{Body: []byte("x")})
	require.Error(t, err)
}

// --- Result conversion ---

func TestNewArtifact(t *testing.T) {
	res := &Result{
		APIVersion: "2024-11-30",
		ModelID:    "pokus1",
		Content:    "text",
		Documents: []Document{
			{Fields: types.NewOrderedMap[Field]()},
			{Fields: types.NewOrderedMap[Field]()},
		},
	}
	res.Documents[0].Fields.Set("Typ kotle", Field{Content: "Vitodens 100-W", Confidence: ptr(0.9)})
	res.Documents[0].Fields.Set("regulátor", Field{Content: ""})
	res.Documents[0].Fields.Set("prodejce kotle", Field{Content: "Novák"})
	res.Documents[1].Fields.Set("výrobní číslo kotle", Field{Content: "123", Confidence: ptr(0.7)})
	res.Documents[1].Fields.Set("Typ kotle", Field{Content: "Vitodens 200-W", Confidence: ptr(0.8)})

	a := NewArtifact(res, "scan.jpg", fields.DefaultSchema())

	assert.Equal(t, "scan.jpg", a.SourceFile)
	assert.True(t, a.Succeeded())
	assert.Equal(t, 2, a.DocumentCount)
	assert.Equal(t, []string{"Typ kotle", "prodejce kotle", "výrobní číslo kotle"}, a.ExtractedFields.Keys())
	v, _ := a.ExtractedFields.Get("Typ kotle")
	assert.Equal(t, "Vitodens 200-W", v)
	assert.Equal(t, []string{"Typ kotle", "výrobní číslo kotle"}, a.ConfidenceScores.Keys())

	require.NotNil(t, a.KeyFields)
	typ, _ := a.KeyFields.Fields.Get("typ_kotle")
	assert.Equal(t, "Vitodens 200-W", typ)
	assert.Equal(t, len(fields.DefaultSchema().Fields), a.KeyFields.Fields.Len())
}

func TestNewArtifact_NoSchema(t *testing.T) {
	a := NewArtifact(&Result{Content: "x"}, "scan.jpg", nil)
	assert.Nil(t, a.KeyFields)
	assert.Equal(t, 0, a.ExtractedFields.Len())
	assert.Equal(t, "x", a.RawContent)
}

func TestResultUsable(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.Usable())
	assert.False(t, (&Result{}).Usable())
	assert.True(t, (&Result{Content: "x"}).Usable())
	assert.True(t, (&Result{Documents: []Document{{}}}).Usable())
}

func TestFailedArtifact(t *testing.T) {
	a := FailedArtifact("scan.jpg", errors.New("timeout"))
	assert.Equal(t, types.StatusFailed, a.Status)
	assert.Equal(t, "timeout", a.Error)
	assert.Equal(t, 0, a.ExtractedFields.Len())
}

// --- Processor ---

type fakeAnalyzer struct {
	results map[string]*Result
	errs    map[string]error
	calls   []Source
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, src Source) (*Result, error) {
	f.calls = append(f.calls, src)
	if err, ok := f.errs[src.Name]; ok {
		return nil, err
	}
	return f.results[src.Name], nil
}

func okResult(typ string) *Result {
	r := &Result{ModelID: "pokus1", Content: "card", Documents: []Document{{Fields: types.NewOrderedMap[Field]()}}}
	r.Documents[0].Fields.Set("Typ kotle", Field{Content: typ, Confidence: ptr(0.9)})
	return r
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestProcessDirectory(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "input")
	output := filepath.Join(root, "output")
	processed := filepath.Join(root, "processed")

	writeFile(t, filepath.Join(input, "a.jpg"), "A")
	writeFile(t, filepath.Join(input, "sub", "b.PDF"), "B")
	writeFile(t, filepath.Join(input, "c.png"), "C")
	writeFile(t, filepath.Join(input, "d.png"), "D")
	writeFile(t, filepath.Join(input, "notes.txt"), "ignored")

	fa := &fakeAnalyzer{
		results: map[string]*Result{
			"a.jpg": okResult("Vitodens 100-W"),
			"b.PDF": okResult("Logamax"),
			"d.png": {},
		},
		errs: map[string]error{"c.png": errors.New("service unavailable")},
	}
	p := &Processor{
		Analyzer:     fa,
		Schema:       fields.DefaultSchema(),
		ModelID:      "pokus1",
		OutputDir:    output,
		ProcessedDir: processed,
	}

	var out bytes.Buffer
	res, err := p.ProcessDirectory(context.Background(), input, &out)
	require.NoError(t, err)

	assert.Len(t, fa.calls, 4)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.True(t, res.HasFailures())
	assert.InDelta(t, 0.5, res.SuccessRatio(), 1e-9)

	a, err := artifact.Read(filepath.Join(output, "a_analysis.json"))
	require.NoError(t, err)
	assert.True(t, a.Succeeded())
	assert.True(t, a.MovedToProcessed)
	assert.FileExists(t, filepath.Join(processed, "a.jpg"))
	assert.NoFileExists(t, filepath.Join(input, "a.jpg"))
	assert.FileExists(t, filepath.Join(processed, "b.PDF"))

	c, err := artifact.Read(filepath.Join(output, "c_analysis.json"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, c.Status)
	assert.Equal(t, "service unavailable", c.Error)
	assert.FileExists(t, filepath.Join(input, "c.png"))

	d, err := artifact.Read(filepath.Join(output, "d_analysis.json"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, d.Status)
	assert.FileExists(t, filepath.Join(input, "d.png"))

	assert.FileExists(t, filepath.Join(input, "notes.txt"))
	assert.Contains(t, out.String(), "analyzed: a.jpg (1 fields, moved)")
	assert.Contains(t, out.String(), "failed:   c.png (service unavailable)")
	assert.Contains(t, out.String(), "2 succeeded, 2 failed")
}

func TestProcessDirectory_MissingInput(t *testing.T) {
	p := &Processor{Analyzer: &fakeAnalyzer{}, OutputDir: t.TempDir()}
	var out bytes.Buffer
	res, err := p.ProcessDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"), &out)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total())
	assert.Equal(t, 0.0, res.SuccessRatio())
}

func TestProcessDirectory_NoProcessedDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "in", "a.jpg"), "A")
	p := &Processor{
		Analyzer:  &fakeAnalyzer{results: map[string]*Result{"a.jpg": okResult("X")}},
		OutputDir: filepath.Join(root, "out"),
	}
	res, err := p.ProcessDirectory(context.Background(), filepath.Join(root, "in"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.FileExists(t, filepath.Join(root, "in", "a.jpg"))

	a, err := artifact.Read(filepath.Join(root, "out", "a_analysis.json"))
	require.NoError(t, err)
	assert.False(t, a.MovedToProcessed)
}

func TestProcessDirectory_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fa := &fakeAnalyzer{}
	p := &Processor{Analyzer: fa, OutputDir: t.TempDir(), Limiter: NewLimiter(time.Hour)}
	_, err := p.ProcessDirectory(ctx, root, io.Discard)
	require.Error(t, err)
	assert.Empty(t, fa.calls)
}

func TestProcessURL(t *testing.T) {
	out := t.TempDir()
	u := "https://example.com/scans/card-7.pdf?sig=abc"
	fa := &fakeAnalyzer{results: map[string]*Result{u: okResult("Vitodens")}}
	p := &Processor{Analyzer: fa, OutputDir: out}

	var buf bytes.Buffer
	o, err := p.ProcessURL(context.Background(), u, &buf)
	require.NoError(t, err)
	require.NoError(t, o.Err)
	require.Len(t, fa.calls, 1)
	assert.Equal(t, u, fa.calls[0].URL)
	assert.Empty(t, fa.calls[0].Body)

	assert.Equal(t, filepath.Join(out, URLSlug(u)+artifact.Suffix), o.ArtifactPath)
	a, err := artifact.Read(o.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, u, a.SourceFile)
}

func TestProcessURL_SameFileNameOnOtherHost(t *testing.T) {
	out := t.TempDir()
	first := "https://a.example.com/x/card.pdf"
	second := "https://b.example.com/y/card.pdf"
	fa := &fakeAnalyzer{
		results: map[string]*Result{first: okResult("Vitodens")},
		errs:    map[string]error{second: errors.New("timeout")},
	}
	p := &Processor{Analyzer: fa, OutputDir: out}

	o1, err := p.ProcessURL(context.Background(), first, io.Discard)
	require.NoError(t, err)
	o2, err := p.ProcessURL(context.Background(), second, io.Discard)
	require.NoError(t, err)
	require.NotEqual(t, o1.ArtifactPath, o2.ArtifactPath)

	a, err := artifact.Read(o1.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, first, a.SourceFile)
	assert.True(t, a.Succeeded())

	b, err := artifact.Read(o2.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, second, b.SourceFile)
	assert.Equal(t, types.StatusFailed, b.Status)
}

func TestProcessFile_SameStemDifferentSource(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	writeFile(t, filepath.Join(root, "card.jpg"), "J")
	writeFile(t, filepath.Join(root, "card.pdf"), "P")
	fa := &fakeAnalyzer{results: map[string]*Result{
		"card.jpg": okResult("Vitodens"),
		"card.pdf": okResult("Logamax"),
	}}
	p := &Processor{Analyzer: fa, Schema: fields.DefaultSchema(), OutputDir: out}

	jpg := p.ProcessFile(context.Background(), filepath.Join(root, "card.jpg"))
	require.NoError(t, jpg.Err)
	pdf := p.ProcessFile(context.Background(), filepath.Join(root, "card.pdf"))
	require.NoError(t, pdf.Err)

	assert.Equal(t, filepath.Join(out, "card_analysis.json"), jpg.ArtifactPath)
	assert.NotEqual(t, jpg.ArtifactPath, pdf.ArtifactPath)

	a, err := artifact.Read(jpg.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "card.jpg", a.SourceFile)
	b, err := artifact.Read(pdf.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "card.pdf", b.SourceFile)

	// Reanalyzing the same source reuses its artifact.
	again := p.ProcessFile(context.Background(), filepath.Join(root, "card.pdf"))
	assert.Equal(t, pdf.ArtifactPath, again.ArtifactPath)
}

func TestProcessFile_FailureKeepsEarlierSuccess(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	src := filepath.Join(root, "card.jpg")
	writeFile(t, src, "J")
	fa := &fakeAnalyzer{results: map[string]*Result{"card.jpg": okResult("Vitodens")}}
	p := &Processor{Analyzer: fa, OutputDir: out}

	first := p.ProcessFile(context.Background(), src)
	require.NoError(t, first.Err)

	fa.errs = map[string]error{"card.jpg": errors.New("429 too many requests")}
	second := p.ProcessFile(context.Background(), src)
	require.Error(t, second.Err)
	assert.Equal(t, first.ArtifactPath, second.ArtifactPath)

	a, err := artifact.Read(first.ArtifactPath)
	require.NoError(t, err)
	assert.True(t, a.Succeeded())
	assert.Equal(t, "Vitodens", mustGet(t, a.ExtractedFields, "Typ kotle"))
}

func TestProcessURL_RejectsNonHTTP(t *testing.T) {
	p := &Processor{Analyzer: &fakeAnalyzer{}, OutputDir: t.TempDir()}
	for _, u := range []string{"", "ftp://example.com/a.pdf", "card.pdf", "https://"} {
		_, err := p.ProcessURL(context.Background(), u, io.Discard)
		assert.Error(t, err, u)
	}
}

func TestURLSlug(t *testing.T) {
	slug := URLSlug("https://example.com/scans/card-7.pdf")
	assert.True(t, strings.HasPrefix(slug, "card-7-"), slug)
	assert.Len(t, slug, len("card-7-")+8)
	assert.Equal(t, slug, URLSlug("https://example.com/scans/card-7.pdf"))
	assert.NotEqual(t, slug, URLSlug("https://other.example.com/scans/card-7.pdf"))
	assert.True(t, strings.HasPrefix(URLSlug("https://example.com/scan"), "scan-"))

	h := URLSlug("https://example.com/")
	assert.True(t, strings.HasPrefix(h, "url-"), h)
	assert.Len(t, h, len("url-")+16)
	assert.Equal(t, h, URLSlug("https://example.com/"))
	assert.NotEqual(t, h, URLSlug("https://example.org/"))
}

func mustGet(t *testing.T, m types.OrderedMap[string], key string) string {
	t.Helper()
	v, ok := m.Get(key)
	require.True(t, ok, key)
	return v
}

func TestNewLimiter(t *testing.T) {
	ctx := context.Background()
	unlimited := NewLimiter(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, unlimited.Wait(ctx))
	}

	l := NewLimiter(time.Hour)
	require.NoError(t, l.Wait(ctx))
	assert.False(t, l.Allow())
}
