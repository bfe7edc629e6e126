package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/healthassist/internal/models"
)

type fakeDiagnoser struct {
	calls []string
}

func (f *fakeDiagnoser) DiagnoseReport(_ context.Context, disease, filename string, content []byte, _ string, _ map[string]string) (*models.Diagnosis, error) {
	f.calls = append(f.calls, disease+":"+filename)
	if disease == "heart" {
		return nil, errors.New("no model")
	}
	return &models.Diagnosis{Disease: disease, Label: len(content) % 2}, nil
}

func TestReportHandler(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lab.txt")
	if err := writeFile(path, "Age: 42\n"); err != nil {
		t.Fatal(err)
	}

	d := &fakeDiagnoser{}
	var results []*models.Diagnosis
	h := ReportHandler(context.Background(), d, []string{"diabetes", "heart", "parkinsons"}, nil,
		func(_ string, diag *models.Diagnosis) { results = append(results, diag) })
	h(path)

	if len(d.calls) != 3 || d.calls[0] != "diabetes:lab.txt" {
		t.Errorf("calls = %v", d.calls)
	}
	if len(results) != 2 || results[1].Disease != "parkinsons" {
		t.Errorf("results = %+v", results)
	}

	core, logs := observer.New(zap.InfoLevel)
	ReportHandler(context.Background(), d, []string{"diabetes"}, zap.New(core), nil)(path)
	entries := logs.FilterMessage("report diagnosed").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	// "Age: 42\n" is eight bytes, so the fake returns label 0.
	if pos, ok := entries[0].ContextMap()["positive"]; !ok || pos != false {
		t.Errorf("positive field = %v", entries[0].ContextMap())
	}

	h(filepath.Join(dir, "missing.txt"))
	if len(d.calls) != 4 {
		t.Errorf("unreadable file should not be diagnosed, calls = %v", d.calls)
	}
}
