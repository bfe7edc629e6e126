// Package storage persists diagnosis history.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/healthassist/internal/models"
)

// ErrNotFound is returned when a prediction ID does not exist.
var ErrNotFound = errors.New("prediction not found")

// History defines prediction persistence operations.
type History interface {
	SavePrediction(ctx context.Context, p *models.Prediction) error
	GetPrediction(ctx context.Context, id string) (*models.Prediction, error)
	ListPredictions(ctx context.Context, q models.HistoryQuery) ([]*models.Prediction, error)
	DeletePrediction(ctx context.Context, id string) error

	// CountPredictions counts stored predictions; an empty disease counts all.
	CountPredictions(ctx context.Context, disease string) (int64, error)

	Close() error
}
