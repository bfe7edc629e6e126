package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/healthassist/internal/config"
	"github.com/hyperjump/healthassist/internal/diagnosis"
	"github.com/hyperjump/healthassist/internal/models"
	"github.com/hyperjump/healthassist/internal/predict"
	"github.com/hyperjump/healthassist/internal/schema"
	"github.com/hyperjump/healthassist/internal/server"
	"github.com/hyperjump/healthassist/internal/storage"
	"github.com/hyperjump/healthassist/internal/watcher"
)

const e2eCohortSize = 24

// env is a fully wired install: config file, models directory, history
// database and an HTTP server in front of them.
type env struct {
	cfg     *config.Config
	cohort  *Cohort
	store   *predict.Store
	history *storage.SQLiteHistory
	service *diagnosis.Service
	http    *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cohort := BuildCohort(e2eCohortSize)

	modelsDir := filepath.Join(dir, "models")
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, m := range cohort.Models {
		if err := os.WriteFile(filepath.Join(modelsDir, m.Name), []byte(m.Body), 0600); err != nil {
			t.Fatal(err)
		}
	}
	configPath := filepath.Join(dir, "config.yaml")
	configYAML := "models:\n  directory: ./models\nstorage:\n  database_path: ./data/history.db\n"
	if err := os.WriteFile(configPath, []byte(configYAML), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Models.Directory != modelsDir {
		t.Fatalf("models directory: got %s, want %s", cfg.Models.Directory, modelsDir)
	}

	var specs []predict.ModelSpec
	for _, disease := range schema.Diseases() {
		path, err := predict.ResolvePath(cfg.Models.Directory, disease)
		if err != nil {
			t.Fatal(err)
		}
		specs = append(specs, predict.ModelSpec{Disease: disease, Path: path})
	}
	store, err := predict.LoadStore(specs)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	history, err := storage.NewSQLiteHistory(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = history.Close() })

	service := diagnosis.NewService(store, diagnosis.WithHistory(history))
	srv := server.NewServer(service, store, cfg, zap.NewNop(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &env{cfg: cfg, cohort: cohort, store: store, history: history, service: service, http: ts}
}

func (e *env) upload(t *testing.T, path, filename string, content []byte, fields map[string]string, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(content)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	resp, err := http.Post(e.http.URL+path, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestE2E_TabularReportsMatchExpectedLabels(t *testing.T) {
	e := newEnv(t)
	requests := 0
	for _, ext := range []string{".csv", ".xlsx"} {
		content, err := TabularReport(ext, e.cohort.Patients)
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range e.cohort.Patients {
			for _, disease := range schema.Diseases() {
				var d models.Diagnosis
				code := e.upload(t, "/api/v1/diseases/"+disease+"/report", "cohort"+ext, content, map[string]string{"name": p.Name}, &d)
				requests++
				if code != http.StatusOK {
					t.Fatalf("%s %s %s: status %d", ext, p.Name, disease, code)
				}
				if d.Label != p.Expected[disease] {
					t.Errorf("%s %s %s: label %d, want %d", ext, p.Name, disease, d.Label, p.Expected[disease])
				}
				if d.Patient.Name != p.Name || d.Patient.Age != p.Values["Age"] {
					t.Errorf("%s %s: patient summary %+v", ext, p.Name, d.Patient)
				}
				if d.Source != ext[1:] || d.HistoryID == "" {
					t.Errorf("%s %s: source=%q history=%q", ext, p.Name, d.Source, d.HistoryID)
				}
			}
		}
	}

	n, err := e.history.CountPredictions(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if int(n) != requests {
		t.Errorf("history count: got %d, want %d", n, requests)
	}
	perDisease, err := e.history.CountPredictions(context.Background(), schema.Heart)
	if err != nil {
		t.Fatal(err)
	}
	if int(perDisease) != requests/3 {
		t.Errorf("heart history count: got %d, want %d", perDisease, requests/3)
	}
}

func TestE2E_TextReportsMatchExpectedLabels(t *testing.T) {
	e := newEnv(t)
	for _, ext := range []string{".txt", ".docx"} {
		for i, p := range e.cohort.Patients {
			content, err := TextReport(ext, p)
			if err != nil {
				t.Fatal(err)
			}
			for _, disease := range schema.Diseases() {
				var d models.Diagnosis
				if code := e.upload(t, "/api/v1/diseases/"+disease+"/report", "lab"+ext, content, nil, &d); code != http.StatusOK {
					t.Fatalf("%s patient %d %s: status %d", ext, i, disease, code)
				}
				if d.Label != p.Expected[disease] {
					t.Errorf("%s %s %s: label %d, want %d (features %v)", ext, p.Name, disease, d.Label, p.Expected[disease], d.Features)
				}
				if d.Patient.Name != p.Name {
					t.Errorf("%s: patient name %q, want %q", ext, d.Patient.Name, p.Name)
				}
			}
		}
	}
}

func TestE2E_OverridesWinOverReport(t *testing.T) {
	e := newEnv(t)
	var low *Patient
	for i := range e.cohort.Patients {
		if e.cohort.Patients[i].Expected[schema.Diabetes] == 0 {
			low = &e.cohort.Patients[i]
			break
		}
	}
	if low == nil {
		t.Fatal("cohort has no non-diabetic patient")
	}
	content, err := TextReport(".txt", *low)
	if err != nil {
		t.Fatal(err)
	}
	var d models.Diagnosis
	fields := map[string]string{"Glucose": "199", "Name": "Override Name"}
	if code := e.upload(t, "/api/v1/diseases/diabetes/report", "lab.txt", content, fields, &d); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if d.Label != 1 {
		t.Errorf("manual Glucose should flip the label: %+v", d)
	}
	if d.Patient.Name != "Override Name" {
		t.Errorf("patient name: %q", d.Patient.Name)
	}

	code := e.upload(t, "/api/v1/diseases/diabetes/report", "lab.txt", content, map[string]string{"Glucose": "high"}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("non-numeric override: status %d, want 422", code)
	}
}

func TestE2E_ExtractListsPatients(t *testing.T) {
	e := newEnv(t)
	content, err := TabularReport(".xlsx", e.cohort.Patients)
	if err != nil {
		t.Fatal(err)
	}
	var res models.ExtractResult
	if code := e.upload(t, "/api/v1/extract", "cohort.xlsx", content, map[string]string{"name": e.cohort.Patients[4].Name}, &res); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(res.Patients) != e2eCohortSize {
		t.Errorf("patients: got %d, want %d", len(res.Patients), e2eCohortSize)
	}
	if got, _ := res.Record.Get("Glucose"); got != e.cohort.Patients[4].Values["Glucose"] {
		t.Errorf("Glucose: %q", got)
	}
	if res.ReportID == "" {
		t.Error("report id should be set")
	}

	var empty models.ExtractResult
	if code := e.upload(t, "/api/v1/extract", "cohort.xlsx", content, map[string]string{"name": "Nobody"}, &empty); code != http.StatusOK {
		t.Fatalf("unknown patient: status %d", code)
	}
	if !empty.Record.IsEmpty() {
		t.Errorf("unknown patient should yield an empty record: %+v", empty.Record)
	}
}

func TestE2E_InboxDiagnosesDroppedReports(t *testing.T) {
	e := newEnv(t)
	inbox := filepath.Join(t.TempDir(), "inbox")

	var mu sync.Mutex
	got := map[string]int{}
	done := make(chan struct{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onReport := watcher.ReportHandler(ctx, e.service, schema.Diseases(), zap.NewNop(), func(path string, d *models.Diagnosis) {
		mu.Lock()
		got[d.Disease] = d.Label
		mu.Unlock()
		done <- struct{}{}
	})
	w := watcher.NewWatcher([]string{inbox}, e.cfg.Watch.Extensions, true, onReport, watcher.WithDebounce(50*time.Millisecond))
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	p := e.cohort.Patients[7]
	content, err := TextReport(".docx", p)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inbox, "lab.docx"), content, 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for i := 0; i < len(schema.Diseases()); i++ {
		select {
		case <-done:
		case <-deadline:
			t.Fatalf("timed out after %d diagnoses", i)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for disease, want := range p.Expected {
		if got[disease] != want {
			t.Errorf("%s: label %d, want %d", disease, got[disease], want)
		}
	}
	n, err := e.history.CountPredictions(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if n < int64(len(schema.Diseases())) {
		t.Errorf("history count %d, want at least %d", n, len(schema.Diseases()))
	}
}
