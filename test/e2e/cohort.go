// Package e2e runs the whole pipeline (config, models, extraction, HTTP API,
// history and inbox) against a generated patient cohort.
package e2e

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/healthassist/internal/schema"
)

// Patient is one cohort member with raw field values and the label each
// cohort model must return for them.
type Patient struct {
	Name     string
	Values   map[string]string
	Expected map[string]int
}

// Cohort holds the patients and the models that classify them.
type Cohort struct {
	Patients []Patient
	// Models maps disease to a linear model artifact (file name, JSON body).
	Models map[string]ModelFile
}

// ModelFile is a model written into the models directory.
type ModelFile struct {
	Name string
	Body string
}

// Decision boundaries of the cohort models. Each model looks at one field.
const (
	glucoseCutoff     = 140
	cholesterolCutoff = 240
	jitterCutoff      = 0.006
)

// BuildCohort returns n deterministic patients. Key field values never fall on
// a decision boundary.
func BuildCohort(n int) *Cohort {
	patients := make([]Patient, 0, n)
	for i := 0; i < n; i++ {
		glucose := 95 + (i*7)%90
		cholesterol := 175 + (i*11)%130
		jitter := 0.0025 + float64(i%9)*0.001
		jitterStr := strconv.FormatFloat(jitter, 'f', 4, 64)
		parsedJitter, _ := strconv.ParseFloat(jitterStr, 64)

		p := Patient{
			Name: fmt.Sprintf("Patient %02d", i+1),
			Values: map[string]string{
				"Gender":                   strconv.Itoa(i % 2),
				"Age":                      strconv.Itoa(30 + i%40),
				"Pregnancies":              strconv.Itoa(i % 5),
				"Glucose":                  strconv.Itoa(glucose),
				"BloodPressure":            strconv.Itoa(60 + i%30),
				"SkinThickness":            strconv.Itoa(15 + i%20),
				"Insulin":                  strconv.Itoa(80 * (i % 3)),
				"BMI":                      strconv.FormatFloat(22.5+float64(i%12), 'f', 1, 64),
				"DiabetesPedigreeFunction": "0.351",
				"Cholesterol":              strconv.Itoa(cholesterol),
				"RestingBP":                strconv.Itoa(110 + i%40),
				"MaxHR":                    strconv.Itoa(120 + i%60),
				"ExerciseInducedAngina":    strconv.Itoa(i % 2),
				"MDVP_Fo":                  "119.992",
				"MDVP_Fhi":                 "157.302",
				"MDVP_Flo":                 "74.997",
				"MDVP_Jitter":              jitterStr,
				"MDVP_Shimmer":             "0.04374",
				"HNR":                      "21.033",
			},
			Expected: map[string]int{
				schema.Diabetes:   boolLabel(glucose > glucoseCutoff),
				schema.Heart:      boolLabel(cholesterol > cholesterolCutoff),
				schema.Parkinsons: boolLabel(parsedJitter > jitterCutoff),
			},
		}
		patients = append(patients, p)
	}
	return &Cohort{Patients: patients, Models: cohortModels()}
}

func boolLabel(b bool) int {
	if b {
		return 1
	}
	return 0
}

// cohortModels puts a single non-zero coefficient on each disease's key field.
func cohortModels() map[string]ModelFile {
	out := make(map[string]ModelFile, 3)
	for _, disease := range schema.Diseases() {
		s, _ := schema.Lookup(disease)
		coef := make([]string, len(s.Fields))
		for i := range coef {
			coef[i] = "0"
		}
		var kind, intercept, file string
		switch disease {
		case schema.Diabetes:
			kind, intercept, file = "linear_svm", strconv.Itoa(-glucoseCutoff), "diabetes_model.json"
			coef[fieldIndex(s, "Glucose")] = "1"
		case schema.Heart:
			kind, intercept, file = "linear_svm", strconv.Itoa(-cholesterolCutoff), "heart_disease_model.json"
			coef[fieldIndex(s, "Cholesterol")] = "1"
		case schema.Parkinsons:
			kind, intercept, file = "logistic", "-6", "parkinsons_model.json"
			coef[fieldIndex(s, "MDVP_Jitter")] = "1000"
		}
		body := fmt.Sprintf(`{"kind":%q,"coefficients":[%s],"intercept":%s}`, kind, strings.Join(coef, ","), intercept)
		out[disease] = ModelFile{Name: file, Body: body}
	}
	return out
}

func fieldIndex(s *schema.Schema, name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	panic("cohort: unknown field " + name)
}
