package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/healthassist/internal/models"
)

// SQLiteHistory implements History using SQLite.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens or creates the database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteHistory(dbPath string) (*SQLiteHistory, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		disease TEXT NOT NULL,
		label INTEGER NOT NULL,
		message TEXT NOT NULL,
		features TEXT NOT NULL,
		patient_name TEXT,
		source TEXT,
		report_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
	CREATE INDEX IF NOT EXISTS idx_predictions_disease ON predictions(disease, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// SavePrediction inserts p, assigning an ID and timestamp when unset.
func (s *SQLiteHistory) SavePrediction(ctx context.Context, p *models.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, disease, label, message, features, patient_name, source, report_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Disease, p.Label, p.Message, string(features), p.PatientName, p.Source, p.ReportID, p.CreatedAt,
	)
	return err
}

const predictionColumns = `id, disease, label, message, features, patient_name, source, report_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(r rowScanner) (*models.Prediction, error) {
	var p models.Prediction
	var features string
	var name, source, report sql.NullString
	if err := r.Scan(&p.ID, &p.Disease, &p.Label, &p.Message, &features, &name, &source, &report, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.PatientName, p.Source, p.ReportID = name.String, source.String, report.String
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal features: %w", err)
	}
	return &p, nil
}

// GetPrediction returns a prediction by ID.
func (s *SQLiteHistory) GetPrediction(ctx context.Context, id string) (*models.Prediction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE id = ?`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

// ListPredictions returns predictions newest first.
func (s *SQLiteHistory) ListPredictions(ctx context.Context, q models.HistoryQuery) ([]*models.Prediction, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query := `SELECT ` + predictionColumns + ` FROM predictions`
	args := []any{}
	if q.Disease != "" {
		query += ` WHERE disease = ?`
		args = append(args, q.Disease)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePrediction removes a prediction by ID.
func (s *SQLiteHistory) DeletePrediction(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM predictions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// CountPredictions returns the number of stored predictions.
func (s *SQLiteHistory) CountPredictions(ctx context.Context, disease string) (int64, error) {
	var n int64
	var err error
	if disease == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE disease = ?`, disease).Scan(&n)
	}
	return n, err
}

// Close closes the database.
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}
