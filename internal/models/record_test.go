package models

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
)

func TestPatientRecord_GetSet(t *testing.T) {
	r := NewPatientRecord(SourceCSV)
	if _, ok := r.Get("Age"); ok {
		t.Fatal("expected Age to be absent")
	}
	r.Set("Age", "")
	v, ok := r.Get("Age")
	if !ok || v != "" {
		t.Errorf("empty value should be present: got %q, %v", v, ok)
	}
	if r.Len() != 1 || r.IsEmpty() {
		t.Errorf("Len = %d, IsEmpty = %v", r.Len(), r.IsEmpty())
	}
}

func TestPatientRecord_NilSafe(t *testing.T) {
	var r *PatientRecord
	if _, ok := r.Get("Name"); ok {
		t.Error("nil record should have no fields")
	}
	if !r.IsEmpty() {
		t.Error("nil record should be empty")
	}
	if got := r.Display("Name", NotFound); got != NotFound {
		t.Errorf("Display = %q", got)
	}
}

func TestPatientRecord_Summary(t *testing.T) {
	r := &PatientRecord{Fields: map[string]string{"Name": "Ada", "Age": "42"}}
	s := r.Summary()
	if s.Name != "Ada" || s.Age != "42" || s.Gender != NotAvail {
		t.Errorf("Summary = %+v", s)
	}
}

func TestPatientRecord_Names(t *testing.T) {
	r := &PatientRecord{Fields: map[string]string{"b": "1", "a": "2"}}
	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names = %v", names)
	}
}

func TestConversionError(t *testing.T) {
	_, parseErr := strconv.ParseFloat("abc", 64)
	err := fmt.Errorf("assemble: %w", &ConversionError{Field: "Glucose", Value: "abc", Err: parseErr})
	if !IsConversionError(err) {
		t.Fatal("expected wrapped ConversionError")
	}
	if !errors.Is(err, strconv.ErrSyntax) {
		t.Error("expected ConversionError to unwrap to the parse error")
	}
	if IsConversionError(ErrSchemaMismatch) {
		t.Error("schema mismatch is not a conversion error")
	}
}

func TestErrMissingNameColumn_IsSchemaMismatch(t *testing.T) {
	if !errors.Is(ErrMissingNameColumn, ErrSchemaMismatch) {
		t.Error("ErrMissingNameColumn should wrap ErrSchemaMismatch")
	}
}
