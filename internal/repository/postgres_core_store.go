package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
)

// CoreSchema creates building and device metadata tables.
var CoreSchema = []string{
	`CREATE TABLE IF NOT EXISTS buildings (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        address TEXT NOT NULL DEFAULT '',
        timezone TEXT NOT NULL DEFAULT 'UTC',
        capacity_kw DOUBLE PRECISION NOT NULL DEFAULT 0
    )`,
	`CREATE TABLE IF NOT EXISTS devices (
        id TEXT PRIMARY KEY,
        device_id TEXT NOT NULL,
        device_type TEXT NOT NULL,
        building_id TEXT NOT NULL REFERENCES buildings (id),
        room_id TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'active'
    )`,
}

// PGCoreStore reads building and device metadata from PostgreSQL.
type PGCoreStore struct {
	db *sql.DB
}

var _ domrepo.CoreMetadataSource = (*PGCoreStore)(nil)

func NewPGCoreStore(db *sql.DB) *PGCoreStore {
	return &PGCoreStore{db: db}
}

func (s *PGCoreStore) GetBuilding(ctx context.Context, id string) (*models.BuildingMetadata, error) {
	var b models.BuildingMetadata
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, timezone, capacity_kw FROM buildings WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Address, &b.Timezone, &b.CapacityKW)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get building: %w", err)
	}
	return &b, nil
}

// GetDevices filters by type and status when they are non-empty.
func (s *PGCoreStore) GetDevices(ctx context.Context, buildingID, deviceType, status string) ([]models.DeviceMetadata, error) {
	const q = `
        SELECT id, device_id, device_type, building_id, room_id, status
        FROM devices
        WHERE building_id = $1
          AND ($2 = '' OR device_type = $2)
          AND ($3 = '' OR status = $3)
        ORDER BY device_id`
	rows, err := s.db.QueryContext(ctx, q, buildingID, deviceType, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []models.DeviceMetadata
	for rows.Next() {
		var d models.DeviceMetadata
		if err := rows.Scan(&d.ID, &d.DeviceID, &d.Type, &d.BuildingID, &d.RoomID, &d.Status); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGCoreStore) GetDevice(ctx context.Context, id string) (*models.DeviceMetadata, error) {
	var d models.DeviceMetadata
	err := s.db.QueryRowContext(ctx,
		`SELECT id, device_id, device_type, building_id, room_id, status FROM devices WHERE id = $1`, id,
	).Scan(&d.ID, &d.DeviceID, &d.Type, &d.BuildingID, &d.RoomID, &d.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &d, nil
}
