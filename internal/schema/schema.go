// Package schema holds the fixed per-disease feature layouts the classifiers were trained on.
package schema

import (
	"fmt"
	"strings"

	"github.com/hyperjump/healthassist/internal/models"
)

// Disease keys.
const (
	Diabetes   = "diabetes"
	Heart      = "heart"
	Parkinsons = "parkinsons"
)

// Field is one position of a feature vector.
type Field struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Schema describes the input order and output wording for one classifier.
type Schema struct {
	Disease            string  `json:"disease"`
	Title              string  `json:"title"`
	Fields             []Field `json:"fields"`
	PositiveMessage    string  `json:"positive_message"`
	NegativeMessage    string  `json:"negative_message"`
	PositiveSuggestion string  `json:"positive_suggestion,omitempty"`
	NegativeSuggestion string  `json:"negative_suggestion,omitempty"`
}

// Width returns the number of features the classifier expects.
func (s *Schema) Width() int {
	return len(s.Fields)
}

// FieldNames returns field names in vector order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// HasField reports whether name is one of the schema fields.
func (s *Schema) HasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Message returns the diagnosis sentence for label.
func (s *Schema) Message(label int) string {
	if label == 1 {
		return s.PositiveMessage
	}
	return s.NegativeMessage
}

// Suggestion returns the follow-up sentence for label, possibly empty.
func (s *Schema) Suggestion(label int) string {
	if label == 1 {
		return s.PositiveSuggestion
	}
	return s.NegativeSuggestion
}

var all = []*Schema{
	{
		Disease: Diabetes,
		Title:   "Diabetes Prediction",
		Fields: []Field{
			{"Pregnancies", "Number of Pregnancies"},
			{"Glucose", "Glucose Level"},
			{"BloodPressure", "Blood Pressure value"},
			{"SkinThickness", "Skin Thickness value"},
			{"Insulin", "Insulin Level"},
			{"BMI", "BMI value"},
			{"DiabetesPedigreeFunction", "Diabetes Pedigree Function value"},
			{"Age", "Age of the Person"},
		},
		PositiveMessage:    "The person is diabetic.",
		NegativeMessage:    "The person is not diabetic.",
		PositiveSuggestion: "Consult a physician about an HbA1c test and a glucose management plan.",
		NegativeSuggestion: "Keep up regular exercise and a balanced diet; recheck glucose yearly.",
	},
	{
		Disease: Heart,
		Title:   "Heart Disease Prediction",
		Fields: []Field{
			{"Age", "Age"},
			{"Gender", "Gender"},
			{"Cholesterol", "Cholesterol Level"},
			{"RestingBP", "Resting Blood Pressure"},
			{"MaxHR", "Maximum Heart Rate Achieved"},
			{"ExerciseInducedAngina", "Exercise Induced Angina"},
		},
		PositiveMessage:    "The person has heart disease.",
		NegativeMessage:    "The person does not have heart disease.",
		PositiveSuggestion: "Schedule a cardiology review and an ECG as soon as possible.",
		NegativeSuggestion: "Monitor blood pressure and cholesterol at routine checkups.",
	},
	{
		Disease: Parkinsons,
		Title:   "Parkinson's Disease Prediction",
		Fields: []Field{
			{"MDVP_Fo", "MDVP:Fo(Hz)"},
			{"MDVP_Fhi", "MDVP:Fhi(Hz)"},
			{"MDVP_Flo", "MDVP:Flo(Hz)"},
			{"MDVP_Jitter", "MDVP:Jitter(%)"},
			{"MDVP_Shimmer", "MDVP:Shimmer"},
			{"HNR", "HNR"},
		},
		PositiveMessage:    "The person has Parkinson's disease.",
		NegativeMessage:    "The person does not have Parkinson's disease.",
		PositiveSuggestion: "Refer to a neurologist for a movement disorder assessment.",
	},
}

var aliases = map[string]string{
	"diabetes":      Diabetes,
	"diabetic":      Diabetes,
	"heart":         Heart,
	"heart-disease": Heart,
	"heart_disease": Heart,
	"parkinsons":    Parkinsons,
	"parkinson":     Parkinsons,
	"parkinson's":   Parkinsons,
}

// All returns every schema in menu order.
func All() []*Schema {
	return append([]*Schema(nil), all...)
}

// Diseases returns the canonical disease keys in menu order.
func Diseases() []string {
	keys := make([]string, len(all))
	for i, s := range all {
		keys[i] = s.Disease
	}
	return keys
}

// Canonical resolves a disease name or alias to its key.
func Canonical(name string) (string, error) {
	key, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownDisease, name)
	}
	return key, nil
}

// Lookup returns the schema for a disease name or alias.
func Lookup(name string) (*Schema, error) {
	key, err := Canonical(name)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Disease == key {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownDisease, name)
}
