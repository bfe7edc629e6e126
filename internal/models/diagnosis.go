package models

import "time"

// Diagnosis is the outcome of one prediction request.
type Diagnosis struct {
	Disease    string         `json:"disease"`
	Label      int            `json:"label"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Features   FeatureVector  `json:"features"`
	Patient    PatientSummary `json:"patient"`
	Source     string         `json:"source,omitempty"`
	HistoryID  string         `json:"history_id,omitempty"`
}

// Positive reports whether the classifier returned the disease class.
func (d *Diagnosis) Positive() bool {
	return d.Label == 1
}

// PredictInput is the body of a JSON prediction request.
type PredictInput struct {
	Record    map[string]string `json:"record,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

// Prediction is a persisted diagnosis.
type Prediction struct {
	ID          string        `json:"id" db:"id"`
	Disease     string        `json:"disease" db:"disease"`
	Label       int           `json:"label" db:"label"`
	Message     string        `json:"message" db:"message"`
	Features    FeatureVector `json:"features" db:"features"`
	PatientName string        `json:"patient_name,omitempty" db:"patient_name"`
	Source      string        `json:"source,omitempty" db:"source"`
	ReportID    string        `json:"report_id,omitempty" db:"report_id"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// ExtractResult is the autofill payload for an uploaded report.
type ExtractResult struct {
	Record   *PatientRecord `json:"record"`
	Patients []string       `json:"patients,omitempty"`
	ReportID string         `json:"report_id"`
}
