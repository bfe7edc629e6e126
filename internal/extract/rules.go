package extract

import (
	"strings"

	"github.com/hyperjump/healthassist/internal/models"
)

// DefaultDelimiters separate a keyword from its value.
const DefaultDelimiters = ": \t"

// Rule captures one field from report text.
//
// The first occurrence of Keyword (literal, case-sensitive) anchors the match.
// The line after it, up to Terminator, is split on its first Delimiters
// character and the remainder is the value. A keyword that only appears inside
// a longer label (e.g. "Age" in "Age of onset") still matches there; rules are
// not smarter than that.
type Rule struct {
	Field      string `json:"field" yaml:"field"`
	Keyword    string `json:"keyword" yaml:"keyword"`
	Delimiters string `json:"delimiters,omitempty" yaml:"delimiters,omitempty"`
	Terminator string `json:"terminator,omitempty" yaml:"terminator,omitempty"`
	// FirstToken keeps only the first whitespace-separated token, dropping units.
	FirstToken bool `json:"first_token,omitempty" yaml:"first_token,omitempty"`
}

// Apply runs the rule against text. ok is false when the keyword does not occur.
func (r Rule) Apply(text string) (value string, ok bool) {
	if r.Keyword == "" {
		return "", false
	}
	idx := strings.Index(text, r.Keyword)
	if idx < 0 {
		return "", false
	}
	line := text[idx+len(r.Keyword):]
	term := r.Terminator
	if term == "" {
		term = "\n"
	}
	if end := strings.Index(line, term); end >= 0 {
		line = line[:end]
	}
	delims := r.Delimiters
	if delims == "" {
		delims = DefaultDelimiters
	}
	if d := strings.IndexAny(line, delims); d >= 0 {
		line = strings.TrimLeft(line[d:], delims)
	}
	value = strings.TrimSpace(line)
	if r.FirstToken {
		if fields := strings.Fields(value); len(fields) > 0 {
			value = fields[0]
		}
	}
	return value, true
}

// Scrape applies rules in order. The first rule that matches a field wins;
// fields no rule matches stay absent.
func Scrape(text string, rules []Rule) *models.PatientRecord {
	rec := models.NewPatientRecord(models.SourceText)
	for _, r := range rules {
		if _, done := rec.Get(r.Field); done {
			continue
		}
		if v, ok := r.Apply(text); ok {
			rec.Set(r.Field, v)
		}
	}
	return rec
}

// DefaultRules returns the keyword rules for common lab report labels.
func DefaultRules() []Rule {
	return []Rule{
		{Field: "Name", Keyword: "Name"},
		{Field: "Age", Keyword: "Age", FirstToken: true},
		{Field: "Gender", Keyword: "Gender", FirstToken: true},
		{Field: "Gender", Keyword: "Sex", FirstToken: true},
		{Field: "Glucose", Keyword: "GLUCOSE, RANDOM", FirstToken: true},
		{Field: "Glucose", Keyword: "Glucose", FirstToken: true},
		{Field: "Hemoglobin", Keyword: "Hemoglobin", FirstToken: true},
		{Field: "Pregnancies", Keyword: "Pregnancies", FirstToken: true},
		{Field: "BloodPressure", Keyword: "Blood Pressure", FirstToken: true},
		{Field: "SkinThickness", Keyword: "Skin Thickness", FirstToken: true},
		{Field: "Insulin", Keyword: "Insulin", FirstToken: true},
		{Field: "BMI", Keyword: "BMI", FirstToken: true},
		{Field: "DiabetesPedigreeFunction", Keyword: "Diabetes Pedigree Function", FirstToken: true},
		{Field: "Cholesterol", Keyword: "CHOLESTEROL, TOTAL", FirstToken: true},
		{Field: "Cholesterol", Keyword: "Cholesterol", FirstToken: true},
		{Field: "RestingBP", Keyword: "Resting BP", FirstToken: true},
		{Field: "MaxHR", Keyword: "Max HR", FirstToken: true},
		{Field: "ExerciseInducedAngina", Keyword: "Exercise Induced Angina", FirstToken: true},
		{Field: "MDVP_Fo", Keyword: "MDVP:Fo(Hz)", FirstToken: true},
		{Field: "MDVP_Fhi", Keyword: "MDVP:Fhi(Hz)", FirstToken: true},
		{Field: "MDVP_Flo", Keyword: "MDVP:Flo(Hz)", FirstToken: true},
		{Field: "MDVP_Jitter", Keyword: "MDVP:Jitter(%)", FirstToken: true},
		{Field: "MDVP_Shimmer", Keyword: "MDVP:Shimmer", FirstToken: true},
		{Field: "HNR", Keyword: "HNR", FirstToken: true},
	}
}
