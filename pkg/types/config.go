package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "boiler-ingest/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds the retries on HTTP 429 responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// PreprocessConfig holds settings for the file normalization stage.
type PreprocessConfig struct {
	// RawDir holds scans as delivered (e.g. "data/rawdata").
	RawDir string `json:"raw_dir" yaml:"raw_dir" mapstructure:"raw_dir"`

	// InputDir receives files ready for analysis (e.g. "data/input").
	InputDir string `json:"input_dir" yaml:"input_dir" mapstructure:"input_dir"`

	// MaxFileSizeMB is the upload limit of the OCR service (default 4).
	MaxFileSizeMB int `json:"max_file_size_mb" yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`

	// MaxDimension caps the longer image side before re-encoding (default 2000).
	MaxDimension int `json:"max_dimension" yaml:"max_dimension" mapstructure:"max_dimension"`

	// Quality is the initial JPEG quality (default 85).
	Quality int `json:"quality" yaml:"quality" mapstructure:"quality"`
}

// MaxFileSizeBytes returns the size threshold in bytes.
func (c PreprocessConfig) MaxFileSizeBytes() int64 {
	mb := c.MaxFileSizeMB
	if mb <= 0 {
		mb = 4
	}
	return int64(mb) * 1024 * 1024
}

// OCRConfig holds settings for the remote analysis stage.
type OCRConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Endpoint is the Azure Document Intelligence resource endpoint.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// APIKey authenticates against the endpoint.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// ModelID is the custom model trained on the warranty card layout.
	ModelID string `json:"model_id" yaml:"model_id" mapstructure:"model_id"`

	// APIVersion is the REST API version (default "2024-11-30").
	APIVersion string `json:"api_version" yaml:"api_version" mapstructure:"api_version"`

	// InputDir holds documents waiting for analysis.
	InputDir string `json:"input_dir" yaml:"input_dir" mapstructure:"input_dir"`

	// OutputDir receives one analysis artifact per document.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// ProcessedDir receives source documents after a successful analysis.
	ProcessedDir string `json:"processed_dir" yaml:"processed_dir" mapstructure:"processed_dir"`

	// CallInterval is the minimum spacing between analysis calls (default 2s).
	CallInterval time.Duration `json:"call_interval" yaml:"call_interval" mapstructure:"call_interval"`

	// PollInterval is the spacing between operation status polls (default 1s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
}

// WriteMode selects how sync writes rows to the destination.
type WriteMode string

const (
	// WriteOverwrite writes header and new rows starting at the target,
	// replacing whatever the range held before.
	WriteOverwrite WriteMode = "overwrite"

	// WriteAppend adds new rows after the existing data.
	WriteAppend WriteMode = "append"
)

// DestinationKind selects the destination backend.
type DestinationKind string

const (
	DestinationSheets DestinationKind = "sheets"
	DestinationXLSX   DestinationKind = "xlsx"
)

// DestinationConfig holds settings for the tabular destination.
type DestinationConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Kind is sheets or xlsx.
	Kind DestinationKind `json:"kind" yaml:"kind" mapstructure:"kind"`

	// SpreadsheetID identifies the Google spreadsheet.
	SpreadsheetID string `json:"spreadsheet_id" yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`

	// CredentialsPath points at the service account JSON key.
	CredentialsPath string `json:"credentials_path" yaml:"credentials_path" mapstructure:"credentials_path"`

	// XLSXPath is the workbook written by the xlsx backend.
	XLSXPath string `json:"xlsx_path" yaml:"xlsx_path" mapstructure:"xlsx_path"`

	// Target is the A1 range (or sheet name for xlsx) rows are written to.
	Target string `json:"target" yaml:"target" mapstructure:"target"`

	// Mode is overwrite (legacy) or append.
	Mode WriteMode `json:"mode" yaml:"mode" mapstructure:"mode"`
}

// SyncConfig holds settings for the sync stage.
type SyncConfig struct {
	// ArtifactsDir is scanned for analysis artifacts.
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir" mapstructure:"artifacts_dir"`

	// Pattern is the artifact glob (default "*_analysis.json").
	Pattern string `json:"pattern" yaml:"pattern" mapstructure:"pattern"`

	// LedgerPath is the newline-delimited list of published identifiers.
	LedgerPath string `json:"ledger_path" yaml:"ledger_path" mapstructure:"ledger_path"`

	// AuditLogPath receives one block per sync run.
	AuditLogPath string `json:"audit_log_path" yaml:"audit_log_path" mapstructure:"audit_log_path"`

	// RunsDB is the SQLite run history; empty disables it.
	RunsDB string `json:"runs_db" yaml:"runs_db" mapstructure:"runs_db"`

	// SchemaPath optionally replaces the built-in field schema.
	SchemaPath string `json:"schema_path" yaml:"schema_path" mapstructure:"schema_path"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is a zap level name (debug, info, warn, error).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or console.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Preprocess  PreprocessConfig  `json:"preprocess" yaml:"preprocess" mapstructure:"preprocess"`
	OCR         OCRConfig         `json:"ocr" yaml:"ocr" mapstructure:"ocr"`
	Sync        SyncConfig        `json:"sync" yaml:"sync" mapstructure:"sync"`
	Destination DestinationConfig `json:"destination" yaml:"destination" mapstructure:"destination"`
	Log         LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
}
