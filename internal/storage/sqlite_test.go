package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/healthassist/internal/models"
)

func newTestHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	h, err := NewSQLiteHistory(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestSQLiteHistory_SaveAndGet(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	p := &models.Prediction{
		Disease:     "diabetes",
		Label:       1,
		Message:     "The person is diabetic.",
		Features:    models.FeatureVector{6, 148, 72, 35, 0, 33.6, 0.627, 50},
		PatientName: "Alice",
		Source:      "csv",
		ReportID:    "report:abc",
	}
	if err := h.SavePrediction(ctx, p); err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Fatal("ID should be assigned")
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := h.GetPrediction(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Disease != "diabetes" || got.Label != 1 || got.PatientName != "Alice" || got.ReportID != "report:abc" {
		t.Errorf("got %+v", got)
	}
	if len(got.Features) != 8 || got.Features[5] != 33.6 {
		t.Errorf("features: got %v", got.Features)
	}
}

func TestSQLiteHistory_GetMissing(t *testing.T) {
	h := newTestHistory(t)
	_, err := h.GetPrediction(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := h.DeletePrediction(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteHistory_ListAndCount(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	diseases := []string{"diabetes", "heart", "diabetes", "parkinsons", "diabetes"}
	for i, d := range diseases {
		p := &models.Prediction{
			ID:        string(rune('a' + i)),
			Disease:   d,
			Message:   "m",
			Features:  models.FeatureVector{float64(i)},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := h.SavePrediction(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	all, err := h.ListPredictions(ctx, models.HistoryQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 || all[0].ID != "e" || all[4].ID != "a" {
		t.Errorf("expected newest first, got %d entries starting %q", len(all), all[0].ID)
	}

	page, err := h.ListPredictions(ctx, models.HistoryQuery{Disease: "diabetes", Offset: 1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ID != "c" {
		t.Errorf("page: got %+v", page)
	}

	if _, err := h.ListPredictions(ctx, models.HistoryQuery{Offset: -1}); err == nil {
		t.Error("expected error for negative offset")
	}

	n, err := h.CountPredictions(ctx, "")
	if err != nil || n != 5 {
		t.Errorf("count all: got %d, %v", n, err)
	}
	n, err = h.CountPredictions(ctx, "diabetes")
	if err != nil || n != 3 {
		t.Errorf("count diabetes: got %d, %v", n, err)
	}

	if err := h.DeletePrediction(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	n, _ = h.CountPredictions(ctx, "")
	if n != 4 {
		t.Errorf("after delete: got %d, want 4", n)
	}
}
