package assemble

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/healthassist/internal/models"
	"github.com/hyperjump/healthassist/internal/schema"
)

func diabetes(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Lookup(schema.Diabetes)
	require.NoError(t, err)
	return s
}

func TestAssemble_ManualEntryInSchemaOrder(t *testing.T) {
	s := diabetes(t)
	values := []string{"1", "85", "66", "29", "0", "26.6", "0.351", "31"}
	overrides := make(map[string]string)
	for i, name := range s.FieldNames() {
		overrides[name] = values[i]
	}
	vec, err := Assemble(s, nil, overrides)
	require.NoError(t, err)
	assert.Equal(t, models.FeatureVector{1.0, 85.0, 66.0, 29.0, 0.0, 26.6, 0.351, 31.0}, vec)
}

func TestAssemble_MissingFieldsDefaultToZero(t *testing.T) {
	s := diabetes(t)
	vec, err := Assemble(s, models.NewPatientRecord(""), nil)
	require.NoError(t, err)
	require.Len(t, vec, s.Width())
	for i, v := range vec {
		assert.Equal(t, 0.0, v, "field %s", s.Fields[i].Name)
	}
}

func TestAssemble_OverrideBeatsRecord(t *testing.T) {
	s := diabetes(t)
	rec := &models.PatientRecord{Fields: map[string]string{"Glucose": "120", "Age": "50", "BMI": ""}}
	vec, err := Assemble(s, rec, map[string]string{"Glucose": "140", "Age": ""})
	require.NoError(t, err)
	assert.Equal(t, 140.0, vec[1], "override wins")
	assert.Equal(t, 50.0, vec[7], "empty override falls back to record")
	assert.Equal(t, 0.0, vec[5], "blank record value defaults to zero")
}

func TestAssemble_IgnoresFieldsOutsideSchema(t *testing.T) {
	s := diabetes(t)
	rec := &models.PatientRecord{Fields: map[string]string{"Name": "Ada", "Hemoglobin": "13.5"}}
	vec, err := Assemble(s, rec, map[string]string{"Cholesterol": "oops"})
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestAssemble_NonNumericFails(t *testing.T) {
	s := diabetes(t)
	_, err := Assemble(s, nil, map[string]string{"Glucose": "abc"})
	require.Error(t, err)
	var ce *models.ConversionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Glucose", ce.Field)
	assert.Equal(t, "abc", ce.Value)
}

func TestAssemble_RecordGarbageFails(t *testing.T) {
	s := diabetes(t)
	rec := &models.PatientRecord{Fields: map[string]string{"BloodPressure": "120/80"}}
	_, err := Assemble(s, rec, nil)
	assert.True(t, models.IsConversionError(err))
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"42", 42, false},
		{" 26.6 ", 26.6, false},
		{"1e2", 100, false},
		{"-3", -3, false},
		{"", 0, true},
		{"   ", 0, true},
		{"12 mg", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{models.NotFound, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	s, err := schema.Lookup(schema.Heart)
	require.NoError(t, err)
	rec := &models.PatientRecord{Fields: map[string]string{"Age": "63", "Gender": "1"}}
	got := Resolve(s, rec, map[string]string{"MaxHR": "150"})
	assert.Equal(t, []string{"63", "1", "0", "0", "150", "0"}, got)
}
