// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package recognize runs documents through the remote OCR model and turns
// each outcome into an analysis artifact.
package recognize

import (
	"context"

	"github.com/pdiddy/boiler-ingest/internal/fields"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

// Source is one document to analyze: either its bytes or a URL the service
// can fetch. Name is the source identifier recorded in the artifact.
type Source struct {
	Name        string
	Body        []byte
	ContentType string
	URL         string
}

// Field is one recognized field. Confidence is nil when the service did not
// score the field.
type Field struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Confidence *float64 `json:"confidence"`
}

// Document is one detected sub-document of a result.
type Document struct {
	DocType    string                  `json:"docType"`
	Confidence float64                 `json:"confidence"`
	Fields     types.OrderedMap[Field] `json:"fields"`
}

// Result is the structured outcome of a successful analysis.
type Result struct {
	APIVersion string     `json:"apiVersion"`
	ModelID    string     `json:"modelId"`
	Content    string     `json:"content"`
	Documents  []Document `json:"documents"`
}

// Analyzer is the OCR capability. AzureClient is the production
// implementation; tests substitute fakes.
type Analyzer interface {
	Analyze(ctx context.Context, modelID string, src Source) (*Result, error)
}

// Usable reports whether r carries any recognized content.
func (r *Result) Usable() bool {
	return r != nil && (r.Content != "" || len(r.Documents) > 0)
}

// NewArtifact converts a result into a success artifact for source. Every
// field with non-empty content is copied under its raw label, across all
// sub-documents; a label seen again in a later sub-document keeps its first
// position and takes the later value. The canonical record is attached when
// schema is non-nil.
func NewArtifact(r *Result, source string, schema *fields.Schema) *types.Artifact {
	a := &types.Artifact{
		SourceFile:       source,
		Status:           types.StatusSuccess,
		ModelID:          r.ModelID,
		APIVersion:       r.APIVersion,
		ExtractedFields:  types.NewOrderedMap[string](),
		ConfidenceScores: types.NewOrderedMap[float64](),
		RawContent:       r.Content,
		DocumentCount:    len(r.Documents),
	}
	for _, doc := range r.Documents {
		doc.Fields.Range(func(label string, f Field) bool {
			if f.Content == "" {
				return true
			}
			a.ExtractedFields.Set(label, f.Content)
			if f.Confidence != nil {
				a.ConfidenceScores.Set(label, *f.Confidence)
			}
			return true
		})
	}
	if schema != nil {
		rec := schema.Normalize(a.ExtractedFields, a.ConfidenceScores)
		a.KeyFields = &rec
	}
	return a
}

// FailedArtifact records an analysis that raised an error or returned
// nothing usable. It carries no extracted fields.
func FailedArtifact(source string, cause error) *types.Artifact {
	msg := "analysis failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &types.Artifact{
		SourceFile: source,
		Status:     types.StatusFailed,
		Error:      msg,
	}
}
