// Package models defines the data structures shared by extractors, the assembler, the model store and the API.
package models

import "sort"

// Placeholders used when rendering absent fields.
const (
	NotFound = "Not found"
	NotAvail = "N/A"
)

// Record sources.
const (
	SourceManual = "manual"
	SourceCSV    = "csv"
	SourceXLSX   = "xlsx"
	SourcePDF    = "pdf"
	SourceDOCX   = "docx"
	SourceText   = "text"
)

// PatientRecord maps field names to raw string values. A field is either present
// (possibly with an empty value) or absent; absence is never encoded as a string.
type PatientRecord struct {
	Source string            `json:"source,omitempty"`
	Fields map[string]string `json:"fields"`
}

// NewPatientRecord returns an empty record tagged with source.
func NewPatientRecord(source string) *PatientRecord {
	return &PatientRecord{Source: source, Fields: make(map[string]string)}
}

// Get returns the value of name and whether it is present.
func (r *PatientRecord) Get(name string) (string, bool) {
	if r == nil || r.Fields == nil {
		return "", false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Set stores value under name, marking it present.
func (r *PatientRecord) Set(name, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[name] = value
}

// Len returns the number of present fields.
func (r *PatientRecord) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Fields)
}

// IsEmpty reports whether no field is present.
func (r *PatientRecord) IsEmpty() bool {
	return r.Len() == 0
}

// Display returns the value of name, or placeholder when the field is absent.
func (r *PatientRecord) Display(name, placeholder string) string {
	if v, ok := r.Get(name); ok {
		return v
	}
	return placeholder
}

// Names returns the present field names in sorted order.
func (r *PatientRecord) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PatientSummary is the identity block shown alongside a diagnosis.
type PatientSummary struct {
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Age    string `json:"age"`
}

// Summary builds the patient summary, using "N/A" for absent fields.
func (r *PatientRecord) Summary() PatientSummary {
	return PatientSummary{
		Name:   r.Display("Name", NotAvail),
		Gender: r.Display("Gender", NotAvail),
		Age:    r.Display("Age", NotAvail),
	}
}

// FeatureVector is the ordered numeric input to a classifier; position encodes meaning.
type FeatureVector []float64
