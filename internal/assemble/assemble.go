// Package assemble builds classifier feature vectors from patient records and form overrides.
package assemble

import (
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/healthassist/internal/models"
	"github.com/hyperjump/healthassist/internal/schema"
)

// DefaultValue is substituted for fields that are neither overridden nor present in the record.
const DefaultValue = "0"

// Resolve picks the raw string for each schema field in order: a non-empty
// override, else a non-empty record value, else DefaultValue.
func Resolve(s *schema.Schema, record *models.PatientRecord, overrides map[string]string) []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		if v := overrides[f.Name]; v != "" {
			out[i] = v
			continue
		}
		if v, ok := record.Get(f.Name); ok && v != "" {
			out[i] = v
			continue
		}
		out[i] = DefaultValue
	}
	return out
}

// Assemble resolves and converts every schema field. A value that is not a
// finite number fails with a *models.ConversionError; nothing is coerced to zero.
func Assemble(s *schema.Schema, record *models.PatientRecord, overrides map[string]string) (models.FeatureVector, error) {
	raw := Resolve(s, record, overrides)
	vec := make(models.FeatureVector, len(raw))
	for i, v := range raw {
		f, err := ParseValue(v)
		if err != nil {
			return nil, &models.ConversionError{Field: s.Fields[i].Name, Value: v, Err: err}
		}
		vec[i] = f
	}
	return vec, nil
}

// ParseValue converts one form value, ignoring surrounding whitespace.
func ParseValue(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrRange
	}
	return f, nil
}
