// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the boiler-ingest pipeline:
// the recognition artifact handed from analysis to sync, the canonical field
// record, and per-stage configuration.
package types

// ArtifactStatus records the outcome of analyzing one source document.
type ArtifactStatus string

const (
	StatusSuccess ArtifactStatus = "success"
	StatusFailed  ArtifactStatus = "failed"
)

// Artifact is the persisted outcome of analyzing one source document. It is
// created right after the remote analysis and is not changed afterwards,
// except for MovedToProcessed.
type Artifact struct {
	// SourceFile identifies the analyzed document (file name or URL). It is
	// the key recorded in the ingestion ledger.
	SourceFile string `json:"source_file" yaml:"source_file"`

	// Status is success or failed.
	Status ArtifactStatus `json:"status" yaml:"status"`

	// ModelID is the OCR model that produced the result.
	ModelID string `json:"model_id,omitempty" yaml:"model_id,omitempty"`

	// APIVersion is the OCR service API version reported with the result.
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`

	// ExtractedFields maps raw vendor labels to field content, in the order
	// the service reported them.
	ExtractedFields OrderedMap[string] `json:"extracted_fields" yaml:"-"`

	// ConfidenceScores maps the same raw labels to confidences in [0,1].
	ConfidenceScores OrderedMap[float64] `json:"confidence_scores" yaml:"-"`

	// RawContent is the full recognized text.
	RawContent string `json:"raw_content" yaml:"raw_content"`

	// DocumentCount is the number of sub-documents the service detected.
	DocumentCount int `json:"document_count" yaml:"document_count"`

	// KeyFields is the canonical record derived at analysis time. It is kept
	// for human inspection; sync recomputes rows from ExtractedFields.
	KeyFields *CanonicalRecord `json:"key_fields,omitempty" yaml:"key_fields,omitempty"`

	// Error carries the failure cause for failed artifacts.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// MovedToProcessed records whether the source file was relocated to the
	// processed directory after analysis.
	MovedToProcessed bool `json:"moved_to_processed" yaml:"moved_to_processed"`
}

// Succeeded reports whether the artifact holds a usable analysis.
func (a *Artifact) Succeeded() bool {
	return a.Status == StatusSuccess
}

// ConfidenceSuffix is appended to a canonical key to form its confidence key.
const ConfidenceSuffix = "_confidence"

// CanonicalRecord is the fixed canonical field set extracted from one
// artifact. Fields always holds every canonical key ("" when not found);
// Confidence holds "<key>_confidence" only when a label matched.
type CanonicalRecord struct {
	Fields     OrderedMap[string]  `json:"fields" yaml:"-"`
	Confidence OrderedMap[float64] `json:"confidence" yaml:"-"`
}
