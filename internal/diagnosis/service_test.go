package diagnosis

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/healthassist/internal/models"
	"github.com/hyperjump/healthassist/internal/predict"
	"github.com/hyperjump/healthassist/internal/schema"
	"github.com/hyperjump/healthassist/internal/storage"
)

type recordingClassifier struct {
	label    int
	err      error
	disease  string
	features models.FeatureVector
}

func (c *recordingClassifier) Predict(_ context.Context, disease string, fv models.FeatureVector) (int, error) {
	c.disease, c.features = disease, fv
	return c.label, c.err
}

type failingHistory struct {
	storage.History
}

func (failingHistory) SavePrediction(context.Context, *models.Prediction) error {
	return errors.New("disk full")
}

func TestDiagnose_Manual(t *testing.T) {
	c := &recordingClassifier{label: 1}
	svc := NewService(c, WithLogger(zap.NewNop()))

	d, err := svc.Diagnose(context.Background(), "Diabetes", nil, map[string]string{
		"Pregnancies": "1", "Glucose": "85", "BloodPressure": "66", "SkinThickness": "29",
		"Insulin": "0", "BMI": "26.6", "DiabetesPedigreeFunction": "0.351", "Age": "31",
	})
	require.NoError(t, err)
	assert.Equal(t, schema.Diabetes, c.disease)
	assert.Equal(t, models.FeatureVector{1, 85, 66, 29, 0, 26.6, 0.351, 31}, c.features)
	assert.Equal(t, "The person is diabetic.", d.Message)
	assert.NotEmpty(t, d.Suggestion)
	assert.Equal(t, models.SourceManual, d.Source)
	assert.Equal(t, models.PatientSummary{Name: models.NotAvail, Gender: models.NotAvail, Age: "31"}, d.Patient)
	assert.Empty(t, d.HistoryID)
}

func TestDiagnose_RecordAndOverrides(t *testing.T) {
	c := &recordingClassifier{label: 0}
	svc := NewService(c)
	rec := models.NewPatientRecord(models.SourceCSV)
	rec.Set("Name", "Bob")
	rec.Set("Age", "63")
	rec.Set("Gender", "1")
	rec.Set("Cholesterol", "")
	rec.Set("MaxHR", "150")

	d, err := svc.Diagnose(context.Background(), "heart-disease", rec, map[string]string{"MaxHR": "120", "RestingBP": ""})
	require.NoError(t, err)
	assert.Equal(t, models.FeatureVector{63, 1, 0, 0, 120, 0}, c.features)
	assert.Equal(t, "The person does not have heart disease.", d.Message)
	assert.Equal(t, "Bob", d.Patient.Name)
	assert.Equal(t, models.SourceCSV, d.Source)
}

func TestDiagnose_Errors(t *testing.T) {
	svc := NewService(&recordingClassifier{})

	_, err := svc.Diagnose(context.Background(), "flu", nil, nil)
	assert.ErrorIs(t, err, models.ErrUnknownDisease)

	_, err = svc.Diagnose(context.Background(), schema.Diabetes, nil, map[string]string{"Glucose": "abc"})
	var ce *models.ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Glucose", ce.Field)

	failing := NewService(&recordingClassifier{err: models.ErrMissingModel})
	_, err = failing.Diagnose(context.Background(), schema.Parkinsons, nil, nil)
	assert.ErrorIs(t, err, models.ErrMissingModel)
}

func TestDiagnoseReport_CSV(t *testing.T) {
	c := &recordingClassifier{label: 1}
	h, err := storage.NewSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer h.Close()
	svc := NewService(c, WithHistory(h))

	csv := []byte("Name,Gender,Age,MDVP_Fo,MDVP_Fhi,MDVP_Flo,MDVP_Jitter,MDVP_Shimmer,HNR\n" +
		"Alice,F,70,119.99,157.3,74.99,0.0078,0.043,21.03\n" +
		"Carol,F,55,200,210,190,0.002,0.01,25\n")
	d, err := svc.DiagnoseReport(context.Background(), "parkinson", "patients.CSV", csv, "Carol", nil)
	require.NoError(t, err)
	assert.Equal(t, models.FeatureVector{200, 210, 190, 0.002, 0.01, 25}, c.features)
	assert.Equal(t, "Carol", d.Patient.Name)
	require.NotEmpty(t, d.HistoryID)

	p, err := h.GetPrediction(context.Background(), d.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, schema.Parkinsons, p.Disease)
	assert.Equal(t, "Carol", p.PatientName)
	assert.Equal(t, models.SourceCSV, p.Source)
	assert.Contains(t, p.ReportID, "report:")
}

func TestDiagnoseReport_AbsentPatientUsesDefaults(t *testing.T) {
	c := &recordingClassifier{}
	svc := NewService(c)
	csv := []byte("Name,Glucose\nAlice,140\n")
	d, err := svc.DiagnoseReport(context.Background(), schema.Diabetes, "p.csv", csv, "Zed", nil)
	require.NoError(t, err)
	assert.Equal(t, make(models.FeatureVector, 8), c.features)
	assert.Equal(t, models.NotAvail, d.Patient.Name)
}

func TestDiagnoseReport_Text(t *testing.T) {
	c := &recordingClassifier{}
	svc := NewService(c)
	text := []byte("Patient Name: Dan\nAge: 42 years\nGLUCOSE, RANDOM: 101 mg/dL\nBMI: 31.2\n")
	d, err := svc.DiagnoseReport(context.Background(), schema.Diabetes, "lab.txt", text, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.FeatureVector{0, 101, 0, 0, 0, 31.2, 0, 42}, c.features)
	assert.Equal(t, models.SourceText, d.Source)
}

func TestDiagnoseReport_UnknownDiseaseBeforeExtraction(t *testing.T) {
	svc := NewService(&recordingClassifier{})
	_, err := svc.DiagnoseReport(context.Background(), "flu", "x.bin", []byte{0}, "", nil)
	assert.ErrorIs(t, err, models.ErrUnknownDisease)

	_, err = svc.DiagnoseReport(context.Background(), schema.Heart, "x.bin", []byte{0}, "", nil)
	assert.ErrorIs(t, err, models.ErrUnreadableFile)
}

func TestDiagnose_HistoryFailureIsNotFatal(t *testing.T) {
	svc := NewService(&recordingClassifier{label: 1}, WithHistory(failingHistory{}))
	d, err := svc.Diagnose(context.Background(), schema.Heart, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, d.HistoryID)
}

func TestExtractReport(t *testing.T) {
	svc := NewService(&recordingClassifier{})
	content := []byte("Name,Age\nAlice,50\nBob,60\n")
	res, err := svc.ExtractReport("patients.csv", content, "Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, res.Patients)
	age, ok := res.Record.Get("Age")
	assert.True(t, ok)
	assert.Equal(t, "60", age)

	again, err := svc.ExtractReport("renamed.csv", content, "")
	require.NoError(t, err)
	assert.Equal(t, res.ReportID, again.ReportID)
}

func TestService_WithModelStore(t *testing.T) {
	// Linear model: positive when Glucose > 125.
	coef := make([]float64, 8)
	coef[1] = 1
	store, err := predict.NewStore(map[string]predict.Predictor{
		schema.Diabetes: &predict.LinearModel{Kind: predict.KindLinearSVM, Coefficients: coef, Intercept: -125},
	})
	require.NoError(t, err)
	svc := NewService(store)

	d, err := svc.Diagnose(context.Background(), schema.Diabetes, nil, map[string]string{"Glucose": "148"})
	require.NoError(t, err)
	assert.True(t, d.Positive())

	d, err = svc.Diagnose(context.Background(), schema.Diabetes, nil, map[string]string{"Glucose": "85"})
	require.NoError(t, err)
	assert.False(t, d.Positive())
	assert.Equal(t, "The person is not diabetic.", d.Message)
}
