package watcher

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/healthassist/internal/models"
)

// Diagnoser is the part of diagnosis.Service the inbox needs.
type Diagnoser interface {
	DiagnoseReport(ctx context.Context, disease, filename string, content []byte, patient string, overrides map[string]string) (*models.Diagnosis, error)
}

// ReportHandler returns an onReport callback that diagnoses each report for
// every disease in diseases and logs the outcome. The first patient of a
// tabular report is used.
func ReportHandler(ctx context.Context, d Diagnoser, diseases []string, logger *zap.Logger, results func(path string, diag *models.Diagnosis)) func(path string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(path string) {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read report", zap.String("path", path), zap.Error(err))
			return
		}
		name := filepath.Base(path)
		for _, disease := range diseases {
			diag, err := d.DiagnoseReport(ctx, disease, name, content, "", nil)
			if err != nil {
				logger.Warn("report diagnosis failed",
					zap.String("path", path),
					zap.String("disease", disease),
					zap.Error(err))
				continue
			}
			logger.Info("report diagnosed",
				zap.String("path", path),
				zap.String("disease", diag.Disease),
				zap.Bool("positive", diag.Positive()),
				zap.String("message", diag.Message),
				zap.String("patient", diag.Patient.Name))
			if results != nil {
				results(path, diag)
			}
		}
	}
}
