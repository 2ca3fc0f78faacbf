package models

import "time"

type BuildingMetadata struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Timezone   string  `json:"timezone"`
	CapacityKW float64 `json:"capacity_kw"`
}

type DeviceMetadata struct {
	ID         string `json:"id"`
	DeviceID   string `json:"device_id"`
	Type       string `json:"type"`
	BuildingID string `json:"building_id"`
	RoomID     string `json:"room_id,omitempty"`
	Status     string `json:"status"`
}

// ForecastParameters are per-building overrides for forecasting defaults.
type ForecastParameters struct {
	DefaultHorizon     string          `json:"default_horizon"`
	AccuracyThreshold  float64         `json:"accuracy_threshold"`
	ModelPreference    ModelPreference `json:"model_preference"`
	RetrainingSchedule string          `json:"retraining_schedule,omitempty"`
}

type HealthReport struct {
	Status        string    `json:"status"`
	Service       string    `json:"service"`
	Version       string    `json:"version"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	ModelsLoaded  int       `json:"models_loaded"`
	StartedAt     time.Time `json:"started_at"`
}
