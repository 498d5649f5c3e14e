// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads pipeline settings with viper. Values come from, in
// increasing precedence: built-in defaults, the YAML config file, .secrets/
// files for credentials that are still empty, and environment variables.
// Environment variables use the BOILER_INGEST_ prefix with dots replaced by
// underscores (BOILER_INGEST_OCR_MODEL_ID); the historical variable names
// such as AZURE_FORM_RECOGNIZER_KEY are honored as well.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/pdiddy/boiler-ingest/internal/destination"
	"github.com/pdiddy/boiler-ingest/internal/secrets"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

const (
	AppName   = "boiler-ingest"
	EnvPrefix = "BOILER_INGEST"
)

// ErrMissingSetting is returned by the Validate functions.
var ErrMissingSetting = eris.New("required setting is missing")

// legacyEnv maps config keys to the environment variable names used before
// the prefixed scheme.
var legacyEnv = map[string]string{
	"ocr.endpoint":                 "AZURE_FORM_RECOGNIZER_ENDPOINT",
	"ocr.api_key":                  "AZURE_FORM_RECOGNIZER_KEY",
	"ocr.model_id":                 "AZURE_MODEL_ID",
	"destination.spreadsheet_id":   "GOOGLE_SHEETS_ID",
	"destination.credentials_path": "GOOGLE_CREDENTIALS_PATH",
}

// secretKeys maps config keys to .secrets/ file names.
var secretKeys = map[string]string{
	"ocr.endpoint":                 secrets.AzureEndpoint,
	"ocr.api_key":                  secrets.AzureKey,
	"destination.spreadsheet_id":   secrets.GoogleSheetsID,
	"destination.credentials_path": secrets.GoogleCredentials,
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("preprocess.raw_dir", "data/rawdata")
	v.SetDefault("preprocess.input_dir", "data/input")
	v.SetDefault("preprocess.max_file_size_mb", 4)
	v.SetDefault("preprocess.max_dimension", 2000)
	v.SetDefault("preprocess.quality", 85)

	v.SetDefault("ocr.timeout", 60*time.Second)
	v.SetDefault("ocr.user_agent", AppName+"/0.1")
	v.SetDefault("ocr.max_retries", 5)
	v.SetDefault("ocr.model_id", "pokus1")
	v.SetDefault("ocr.api_version", "2024-11-30")
	v.SetDefault("ocr.input_dir", "data/input")
	v.SetDefault("ocr.output_dir", "data/output")
	v.SetDefault("ocr.processed_dir", "data/processed")
	v.SetDefault("ocr.call_interval", 2*time.Second)
	v.SetDefault("ocr.poll_interval", time.Second)

	v.SetDefault("sync.artifacts_dir", "data/output")
	v.SetDefault("sync.pattern", "*_analysis.json")
	v.SetDefault("sync.ledger_path", "processed_files.txt")
	v.SetDefault("sync.audit_log_path", "duplicates_log.txt")
	v.SetDefault("sync.runs_db", "data/state/runs.db")

	v.SetDefault("destination.timeout", 30*time.Second)
	v.SetDefault("destination.user_agent", AppName+"/0.1")
	v.SetDefault("destination.max_retries", 5)
	v.SetDefault("destination.kind", string(types.DestinationSheets))
	v.SetDefault("destination.xlsx_path", "data/output/ocr_results.xlsx")
	v.SetDefault("destination.target", "A1")
	v.SetDefault("destination.mode", string(types.WriteOverwrite))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// New returns a viper instance with defaults and environment bindings, and
// the config file read in. cfgFile overrides the search for
// boiler-ingest.yaml in the working directory and ~/.config/boiler-ingest.
// A missing config file is not an error unless cfgFile names it.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", AppName))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read config file")
		}
	}
	return v, nil
}

// ApplySecrets sets credential keys that are still empty from the loaded
// .secrets/ values.
func ApplySecrets(v *viper.Viper, s map[string]string) {
	for key, name := range secretKeys {
		if v.GetString(key) != "" {
			continue
		}
		if val, ok := s[name]; ok && val != "" {
			v.Set(key, val)
		}
	}
}

// Decode unmarshals v into a PipelineConfig.
func Decode(v *viper.Viper) (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, eris.Wrap(err, "config: decode")
	}
	// An invalid mode is left as written for ValidateDestination to report.
	if m, err := destination.ParseMode(string(cfg.Destination.Mode)); err == nil {
		cfg.Destination.Mode = m
	}
	return cfg, nil
}

// ValidateOCR checks the settings the analysis stage cannot run without.
func ValidateOCR(c types.OCRConfig) error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "ocr.endpoint")
	}
	if c.APIKey == "" {
		missing = append(missing, "ocr.api_key")
	}
	if c.ModelID == "" {
		missing = append(missing, "ocr.model_id")
	}
	return missingErr(missing)
}

// ValidateDestination checks the settings of the selected backend.
func ValidateDestination(c types.DestinationConfig) error {
	var missing []string
	switch c.Kind {
	case types.DestinationSheets, "":
		if c.SpreadsheetID == "" {
			missing = append(missing, "destination.spreadsheet_id")
		}
		if c.CredentialsPath == "" {
			missing = append(missing, "destination.credentials_path")
		}
	case types.DestinationXLSX:
		if c.XLSXPath == "" {
			missing = append(missing, "destination.xlsx_path")
		}
	default:
		return eris.Errorf("config: unknown destination kind %q", c.Kind)
	}
	if _, err := destination.ParseMode(string(c.Mode)); err != nil {
		return eris.Wrap(err, "config")
	}
	return missingErr(missing)
}

func missingErr(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return eris.Wrap(ErrMissingSetting, strings.Join(keys, ", "))
}
