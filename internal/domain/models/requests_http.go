package models

import "time"

// Request payloads for the HTTP API. Tags drive echo binding, defaults and validation.

type ForecastRequest struct {
	BuildingID  string `json:"building_id" validate:"required"`
	Horizon     string `json:"horizon" default:"24H" validate:"required,max=8"`
	Type        string `json:"forecast_type" default:"energy_demand" validate:"oneof=energy_demand price temp_setpoint"`
	RequestedBy string `json:"requested_by" validate:"required"`
	RoomID      string `json:"room_id"`
	FloorID     string `json:"floor_id"`
}

type GetForecastRequest struct {
	ID          string `param:"id" validate:"required"`
	RequestedBy string `query:"requested_by" validate:"required"`
}

type LatestForecastRequest struct {
	BuildingID  string `param:"building_id" validate:"required"`
	Type        string `query:"forecast_type" default:"energy_demand" validate:"oneof=energy_demand price temp_setpoint"`
	Horizon     string `query:"horizon" default:"24H" validate:"max=8"`
	RequestedBy string `query:"requested_by" validate:"required"`
}

type OptimizationRequest struct {
	BuildingID     string `json:"building_id" validate:"required"`
	RequestedBy    string `json:"requested_by" validate:"required"`
	TimeRangeHours int    `json:"time_range_hours" default:"24" validate:"gte=1,lte=720"`
}

type TrainModelRequest struct {
	BuildingID  string    `json:"building_id" validate:"required"`
	ModelType   string    `json:"model_type" validate:"required,oneof=LSTM XGBoost"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	RequestedBy string    `json:"requested_by" validate:"required"`
}

type ModelPerformanceRequest struct {
	BuildingID  string `query:"building_id" validate:"required"`
	ModelType   string `query:"model_type" validate:"required,oneof=LSTM XGBoost"`
	RequestedBy string `query:"requested_by" validate:"required"`
}

type ForecastParametersRequest struct {
	BuildingID         string  `param:"building_id" validate:"required"`
	DefaultHorizon     string  `json:"default_horizon" default:"24H" validate:"max=8"`
	AccuracyThreshold  float64 `json:"accuracy_threshold" default:"0.85" validate:"gt=0,lte=1"`
	ModelPreference    string  `json:"model_preference" default:"auto" validate:"oneof=auto LSTM XGBoost"`
	RetrainingSchedule string  `json:"retraining_schedule"`
	RequestedBy        string  `json:"requested_by" validate:"required"`
}

type MeasurementsRequest struct {
	BuildingID string `param:"building_id" validate:"required"`
	Metric     string `query:"metric" default:"power_w"`
	From       string `query:"from"`
	To         string `query:"to"`
	Bucket     string `query:"bucket" default:"1h"`
}
