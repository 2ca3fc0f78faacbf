package service

import (
	"context"
	"time"

	"EnerCast/internal/domain/models"
)

// HourlyFeatures is one preprocessed hourly observation.
type HourlyFeatures struct {
	Timestamp     time.Time
	Value         float64
	Hour          int
	DayOfWeek     time.Weekday
	IsWeekend     bool
	RollingMean24 float64
	RollingStd24  float64
}

// Predictor produces a forecast curve from preprocessed history.
type Predictor interface {
	Model() models.ModelType
	Predict(history []HourlyFeatures, hoursAhead int) ([]models.ForecastPoint, float64)
}

// ModelRegistry is the part of the model manager the forecast engine needs.
type ModelRegistry interface {
	LoadModel(buildingID string, modelType models.ModelType) models.ModelHandle
}

// ForecastGenerator turns measurement history into a forecast.
type ForecastGenerator interface {
	GenerateForecast(ctx context.Context, req GenerateRequest) (*GeneratedForecast, error)
}

// GenerateRequest describes a forecast generation call.
type GenerateRequest struct {
	BuildingID        string
	Horizon           string
	Type              models.ForecastType
	Preference        models.ModelPreference
	AccuracyThreshold float64 // zero uses the engine default
}

// GeneratedForecast is the engine output before persistence.
type GeneratedForecast struct {
	Series       []models.ForecastPoint
	Accuracy     float64
	ModelUsed    models.ModelType
	ModelVersion string
	Valid        bool
}
