package repository

import (
	"context"
	"time"

	"EnerCast/internal/domain/models"
)

// MeasurementStream delivers live telemetry from a building gateway.
type MeasurementStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MeasurementPoint, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// MeasurementSource reads historical measurements, ascending by timestamp.
type MeasurementSource interface {
	GetMeasurements(ctx context.Context, buildingID, metric string, start, end time.Time, deviceIDs ...string) ([]models.MeasurementPoint, error)
	GetAggregated(ctx context.Context, buildingID, metric string, start, end time.Time, bucket string) ([]models.AggregatedPoint, error)
}

// MeasurementSink persists ingested measurements.
type MeasurementSink interface {
	Store(ctx context.Context, m *models.MeasurementPoint) error
	StoreBatch(ctx context.Context, ms []*models.MeasurementPoint) error
	Close() error
}

// MeasurementStore is a MeasurementSource that also accepts writes.
type MeasurementStore interface {
	MeasurementSource
	MeasurementSink
}

// ForecastReader returns nil records (and nil error) when nothing matches.
// GetInRange matches every forecast type when ft is empty.
type ForecastReader interface {
	GetLatest(ctx context.Context, buildingID string, ft models.ForecastType, horizon string) (*models.ForecastRecord, error)
	GetByID(ctx context.Context, id string) (*models.ForecastRecord, error)
	GetInRange(ctx context.Context, buildingID string, start, end time.Time, ft models.ForecastType) ([]*models.ForecastRecord, error)
}

// ForecastWriter is the sole source of forecast identifiers.
type ForecastWriter interface {
	Create(ctx context.Context, f *models.NewForecast) (string, error)
	UpdateSeries(ctx context.Context, id string, series []models.ForecastPoint) (bool, error)
}

type ForecastStore interface {
	ForecastReader
	ForecastWriter
}

// CoreMetadataSource returns nil (and nil error) for unknown ids.
type CoreMetadataSource interface {
	GetBuilding(ctx context.Context, id string) (*models.BuildingMetadata, error)
	GetDevices(ctx context.Context, buildingID, deviceType, status string) ([]models.DeviceMetadata, error)
	GetDevice(ctx context.Context, id string) (*models.DeviceMetadata, error)
}

// Publisher forwards ingested measurements to the message bus.
type Publisher interface {
	Publish(ctx context.Context, m *models.MeasurementPoint) error
	PublishBatch(ctx context.Context, ms []*models.MeasurementPoint) error
	Close() error
}

// EventPublisher announces domain events. Failures are not fatal to callers.
type EventPublisher interface {
	PublishForecastCreated(ctx context.Context, rec *models.ForecastRecord) error
}

// Locker is a best-effort distributed lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordMessageSent(backend, building string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordForecastGenerated(building, model string)
	RecordForecastCacheHit(building string)
	RecordValidationFailure(model string)
	RecordEstimatedSavings(building string, daily float64)
}
