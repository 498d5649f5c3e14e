// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fields maps raw OCR field labels onto the canonical warranty card
// schema. The mapping is a data table (canonical key → aliases, keywords)
// loaded from YAML; the built-in table is embedded.
package fields

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.yaml.in/yaml/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/boiler-ingest/pkg/types"
)

//go:embed schema.yaml
var defaultSchemaYAML []byte

// Rule describes one canonical key. Aliases are exact raw labels read for the
// value, first non-empty wins. Keywords are lower-case fragments used to
// attach a confidence: a raw label matches when it contains any of them.
type Rule struct {
	Key      string   `yaml:"key"`
	Aliases  []string `yaml:"aliases"`
	Keywords []string `yaml:"keywords"`
}

// Schema is the ordered canonical field table plus the destination layout.
type Schema struct {
	Fields []Rule `yaml:"fields"`

	// SourceColumn heads the first destination column, which carries the
	// source identifier.
	SourceColumn string `yaml:"source_column"`

	// Columns are the raw vendor labels written after the source column.
	Columns []string `yaml:"columns"`
}

// DefaultSchema returns the built-in warranty card schema.
func DefaultSchema() *Schema {
	s, err := ParseSchema(defaultSchemaYAML)
	if err != nil {
		panic(eris.Wrap(err, "fields: built-in schema"))
	}
	return s
}

// LoadSchema reads a schema from a YAML file. An empty path returns the
// built-in schema.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fields: read schema %s", path)
	}
	return ParseSchema(data)
}

// ParseSchema decodes and validates a YAML schema. Keywords are folded to
// lower case so they compare against lower-cased labels.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "fields: parse schema")
	}
	if len(s.Fields) == 0 {
		return nil, eris.New("fields: schema has no fields")
	}
	seen := make(map[string]bool, len(s.Fields))
	for i, r := range s.Fields {
		if r.Key == "" {
			return nil, eris.Errorf("fields: rule %d has no key", i)
		}
		if seen[r.Key] {
			return nil, eris.Errorf("fields: duplicate key %q", r.Key)
		}
		seen[r.Key] = true
		if len(r.Aliases) == 0 {
			return nil, eris.Errorf("fields: key %q has no aliases", r.Key)
		}
		for j, kw := range r.Keywords {
			s.Fields[i].Keywords[j] = foldLabel(kw)
		}
	}
	if s.SourceColumn == "" {
		s.SourceColumn = "nazev_souboru"
	}
	return &s, nil
}

// Keys returns the canonical keys in schema order.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.Fields))
	for i, r := range s.Fields {
		keys[i] = r.Key
	}
	return keys
}

// Normalize builds the canonical record for one artifact. Every canonical key
// is present in the result. A confidence is attached from the first raw
// label, in confidence map order, that contains any keyword of the key;
// keys without a matching label get no confidence entry.
func (s *Schema) Normalize(extracted types.OrderedMap[string], confidence types.OrderedMap[float64]) types.CanonicalRecord {
	rec := types.CanonicalRecord{
		Fields:     types.NewOrderedMap[string](),
		Confidence: types.NewOrderedMap[float64](),
	}

	for _, r := range s.Fields {
		rec.Fields.Set(r.Key, lookup(extracted, r.Aliases))
	}

	for _, r := range s.Fields {
		if c, ok := matchConfidence(confidence, r.Keywords); ok {
			rec.Confidence.Set(r.Key+types.ConfidenceSuffix, c)
		}
	}
	return rec
}

// Header returns the destination header row.
func (s *Schema) Header() []string {
	row := make([]string, 0, len(s.Columns)+1)
	row = append(row, s.SourceColumn)
	return append(row, s.Columns...)
}

// Row returns the destination data row for one artifact: the source
// identifier followed by the raw label values, "" for missing labels.
func (s *Schema) Row(sourceID string, extracted types.OrderedMap[string]) []string {
	row := make([]string, 0, len(s.Columns)+1)
	row = append(row, sourceID)
	for _, col := range s.Columns {
		v, _ := extracted.Get(col)
		row = append(row, v)
	}
	return row
}

func lookup(extracted types.OrderedMap[string], aliases []string) string {
	for _, a := range aliases {
		if v, ok := extracted.Get(a); ok && v != "" {
			return v
		}
	}
	return ""
}

func matchConfidence(confidence types.OrderedMap[float64], keywords []string) (float64, bool) {
	var (
		found bool
		value float64
	)
	confidence.Range(func(label string, c float64) bool {
		folded := foldLabel(label)
		for _, kw := range keywords {
			if strings.Contains(folded, kw) {
				found, value = true, c
				return false
			}
		}
		return true
	})
	return value, found
}

// foldLabel composes diacritics (OCR output sometimes carries decomposed
// forms) and lower-cases.
func foldLabel(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
