package models

import "time"

// ModelType names one of the two prediction strategies.
type ModelType string

const (
	ModelLSTM    ModelType = "LSTM"    // long-horizon
	ModelXGBoost ModelType = "XGBoost" // short-horizon
)

// IsValid reports whether m is a known model type.
func (m ModelType) IsValid() bool {
	return m == ModelLSTM || m == ModelXGBoost
}

// ModelPreference is either "auto" or an explicit ModelType.
type ModelPreference string

const PreferenceAuto ModelPreference = "auto"

// IsValid reports whether p is "auto" or a known model type.
func (p ModelPreference) IsValid() bool {
	return p == PreferenceAuto || ModelType(p).IsValid()
}

const (
	ModelStatusLoaded  = "loaded"
	ModelStatusTrained = "trained"

	HealthHealthy         = "healthy"
	HealthNeedsRetraining = "needs_retraining"
)

// ModelHandle is a cached model for one (building, model type) key.
type ModelHandle struct {
	ModelType       ModelType  `json:"model_type"`
	BuildingID      string     `json:"building_id"`
	Version         string     `json:"version"`
	LoadedAt        time.Time  `json:"loaded_at"`
	TrainedAt       *time.Time `json:"trained_at,omitempty"`
	Status          string     `json:"status"`
	TrainingSamples int        `json:"training_samples"`
}

// PerformanceMetrics are produced by training and keyed by version.
type PerformanceMetrics struct {
	Accuracy        float64   `json:"accuracy"`
	MAPE            float64   `json:"mape"`
	RMSE            float64   `json:"rmse"`
	TrainingSamples int       `json:"training_samples"`
	TrainedAt       time.Time `json:"trained_at"`
}

// ModelPerformance is the read view returned by performance queries.
type ModelPerformance struct {
	BuildingID  string             `json:"building_id"`
	ModelType   ModelType          `json:"model_type"`
	Version     string             `json:"model_version"`
	Metrics     PerformanceMetrics `json:"metrics"`
	Status      string             `json:"status"`
	EvaluatedAt time.Time          `json:"evaluation_date"`
}

// TrainingResult summarises one training run.
type TrainingResult struct {
	Version         string  `json:"version"`
	Accuracy        float64 `json:"accuracy"`
	MAPE            float64 `json:"mape"`
	RMSE            float64 `json:"rmse"`
	TrainingSamples int     `json:"training_samples"`
	DurationSeconds float64 `json:"duration_seconds"`
}
