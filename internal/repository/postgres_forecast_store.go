package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
)

// ForecastSchema creates the forecast table and its lookup index.
var ForecastSchema = []string{
	`CREATE TABLE IF NOT EXISTS forecasts (
        id UUID PRIMARY KEY,
        forecast_type TEXT NOT NULL,
        horizon TEXT NOT NULL,
        issued_at TIMESTAMPTZ NOT NULL,
        requested_by TEXT NOT NULL DEFAULT '',
        series JSONB NOT NULL,
        valid_from TIMESTAMPTZ NOT NULL,
        valid_to TIMESTAMPTZ NOT NULL,
        model_algorithm TEXT NOT NULL,
        model_version TEXT NOT NULL,
        accuracy DOUBLE PRECISION NOT NULL,
        building_id TEXT NOT NULL,
        room_id TEXT NOT NULL DEFAULT '',
        floor_id TEXT NOT NULL DEFAULT ''
    )`,
	`CREATE INDEX IF NOT EXISTS forecasts_latest_idx
        ON forecasts (building_id, forecast_type, horizon, issued_at DESC)`,
}

const forecastColumns = `id, forecast_type, horizon, issued_at, requested_by, series,
        valid_from, valid_to, model_algorithm, model_version, accuracy,
        building_id, room_id, floor_id`

// PGForecastStore implements ForecastStore on PostgreSQL.
type PGForecastStore struct {
	db *sql.DB
}

var _ domrepo.ForecastStore = (*PGForecastStore)(nil)

func NewPGForecastStore(db *sql.DB) *PGForecastStore {
	return &PGForecastStore{db: db}
}

func (s *PGForecastStore) Create(ctx context.Context, f *models.NewForecast) (string, error) {
	series, err := json.Marshal(f.Series)
	if err != nil {
		return "", fmt.Errorf("encode series: %w", err)
	}
	issued := f.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	id := uuid.New().String()
	const q = `
        INSERT INTO forecasts (` + forecastColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = s.db.ExecContext(ctx, q,
		id, string(f.Type), f.Horizon, issued.UTC(), f.RequestedBy, series,
		f.ValidFrom.UTC(), f.ValidTo.UTC(), f.ModelAlgorithm, f.ModelVersion, f.Accuracy,
		f.Scope.BuildingID, f.Scope.RoomID, f.Scope.FloorID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create forecast: %w", err)
	}
	return id, nil
}

func (s *PGForecastStore) UpdateSeries(ctx context.Context, id string, series []models.ForecastPoint) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	b, err := json.Marshal(series)
	if err != nil {
		return false, fmt.Errorf("encode series: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE forecasts SET series = $1 WHERE id = $2`, b, id)
	if err != nil {
		return false, fmt.Errorf("failed to update forecast: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PGForecastStore) GetByID(ctx context.Context, id string) (*models.ForecastRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+forecastColumns+` FROM forecasts WHERE id = $1`, id)
	rec, err := scanForecast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forecast: %w", err)
	}
	return rec, nil
}

func (s *PGForecastStore) GetLatest(ctx context.Context, buildingID string, ft models.ForecastType, horizon string) (*models.ForecastRecord, error) {
	const q = `SELECT ` + forecastColumns + `
        FROM forecasts
        WHERE building_id = $1 AND forecast_type = $2 AND horizon = $3
        ORDER BY issued_at DESC
        LIMIT 1`
	rec, err := scanForecast(s.db.QueryRowContext(ctx, q, buildingID, string(ft), horizon))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest forecast: %w", err)
	}
	return rec, nil
}

func (s *PGForecastStore) GetInRange(ctx context.Context, buildingID string, start, end time.Time, ft models.ForecastType) ([]*models.ForecastRecord, error) {
	const q = `SELECT ` + forecastColumns + `
        FROM forecasts
        WHERE building_id = $1 AND ($2::text = '' OR forecast_type = $2) AND valid_to >= $3 AND valid_from <= $4
        ORDER BY issued_at DESC`
	rows, err := s.db.QueryContext(ctx, q, buildingID, string(ft), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var out []*models.ForecastRecord
	for rows.Next() {
		rec, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanForecast(row rowScanner) (*models.ForecastRecord, error) {
	var rec models.ForecastRecord
	var ft string
	var series []byte
	err := row.Scan(
		&rec.ID, &ft, &rec.Horizon, &rec.IssuedAt, &rec.RequestedBy, &series,
		&rec.ValidFrom, &rec.ValidTo, &rec.ModelAlgorithm, &rec.ModelVersion, &rec.Accuracy,
		&rec.Scope.BuildingID, &rec.Scope.RoomID, &rec.Scope.FloorID,
	)
	if err != nil {
		return nil, err
	}
	rec.Type = models.ForecastType(ft)
	if err := json.Unmarshal(series, &rec.Series); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	return &rec, nil
}
