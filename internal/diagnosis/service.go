// Package diagnosis runs the extract, assemble and predict pipeline for one request.
package diagnosis

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/healthassist/internal/assemble"
	"github.com/hyperjump/healthassist/internal/extract"
	"github.com/hyperjump/healthassist/internal/fileid"
	"github.com/hyperjump/healthassist/internal/models"
	"github.com/hyperjump/healthassist/internal/schema"
	"github.com/hyperjump/healthassist/internal/storage"
)

// Classifier returns a 0/1 label for a disease feature vector. *predict.Store implements it.
type Classifier interface {
	Predict(ctx context.Context, disease string, features models.FeatureVector) (int, error)
}

// Service produces diagnoses. It holds no per-request state.
type Service struct {
	classifier Classifier
	extractor  *extract.Extractor
	history    storage.History
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHistory records every diagnosis in h.
func WithHistory(h storage.History) Option {
	return func(s *Service) { s.history = h }
}

// WithExtractor replaces the default report extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service around the given classifier.
func NewService(classifier Classifier, opts ...Option) *Service {
	s := &Service{
		classifier: classifier,
		extractor:  extract.NewExtractor(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// History returns the configured history store, or nil.
func (s *Service) History() storage.History {
	return s.history
}

// Extractor returns the report extractor in use.
func (s *Service) Extractor() *extract.Extractor {
	return s.extractor
}

// Diagnose assembles the disease feature vector from record and overrides and classifies it.
// record may be nil for purely manual input.
func (s *Service) Diagnose(ctx context.Context, disease string, record *models.PatientRecord, overrides map[string]string) (*models.Diagnosis, error) {
	return s.diagnose(ctx, disease, record, overrides, "")
}

// ExtractReport extracts the record for patient from a report. filename only
// selects the format by its extension.
func (s *Service) ExtractReport(filename string, content []byte, patient string) (*models.ExtractResult, error) {
	res, err := s.extractor.ExtractBytes(content, filepath.Ext(filename), patient)
	if err != nil {
		return nil, err
	}
	res.ReportID = fileid.ReportID(content)
	return res, nil
}

// DiagnoseReport extracts a record from a report and diagnoses it.
func (s *Service) DiagnoseReport(ctx context.Context, disease, filename string, content []byte, patient string, overrides map[string]string) (*models.Diagnosis, error) {
	if _, err := schema.Lookup(disease); err != nil {
		return nil, err
	}
	res, err := s.ExtractReport(filename, content, patient)
	if err != nil {
		return nil, err
	}
	return s.diagnose(ctx, disease, res.Record, overrides, res.ReportID)
}

func (s *Service) diagnose(ctx context.Context, disease string, record *models.PatientRecord, overrides map[string]string, reportID string) (*models.Diagnosis, error) {
	sch, err := schema.Lookup(disease)
	if err != nil {
		return nil, err
	}
	features, err := assemble.Assemble(sch, record, overrides)
	if err != nil {
		return nil, err
	}
	label, err := s.classifier.Predict(ctx, sch.Disease, features)
	if err != nil {
		return nil, err
	}

	d := &models.Diagnosis{
		Disease:    sch.Disease,
		Label:      label,
		Message:    sch.Message(label),
		Suggestion: sch.Suggestion(label),
		Features:   features,
		Patient:    summary(record, overrides),
		Source:     source(record),
	}
	s.logger.Debug("diagnosis",
		zap.String("disease", d.Disease),
		zap.Int("label", d.Label),
		zap.String("source", d.Source))

	if s.history != nil {
		p := &models.Prediction{
			Disease:     d.Disease,
			Label:       d.Label,
			Message:     d.Message,
			Features:    d.Features,
			PatientName: patientName(record, overrides),
			Source:      d.Source,
			ReportID:    reportID,
		}
		if err := s.history.SavePrediction(ctx, p); err != nil {
			s.logger.Warn("failed to record prediction", zap.String("disease", d.Disease), zap.Error(err))
		} else {
			d.HistoryID = p.ID
		}
	}
	return d, nil
}

// summary overlays non-empty identity overrides on the record.
func summary(record *models.PatientRecord, overrides map[string]string) models.PatientSummary {
	sum := record.Summary()
	if v := overrides["Name"]; v != "" {
		sum.Name = v
	}
	if v := overrides["Gender"]; v != "" {
		sum.Gender = v
	}
	if v := overrides["Age"]; v != "" {
		sum.Age = v
	}
	return sum
}

func patientName(record *models.PatientRecord, overrides map[string]string) string {
	if v := overrides["Name"]; v != "" {
		return v
	}
	v, _ := record.Get("Name")
	return v
}

func source(record *models.PatientRecord) string {
	if record == nil || record.Source == "" {
		return models.SourceManual
	}
	return record.Source
}
