package models

import "time"

// ForecastType identifies what a forecast predicts.
type ForecastType string

const (
	ForecastEnergyDemand ForecastType = "energy_demand"
	ForecastPrice        ForecastType = "price"
	ForecastTempSetpoint ForecastType = "temp_setpoint"
)

// IsValid reports whether t is a known forecast type.
func (t ForecastType) IsValid() bool {
	switch t {
	case ForecastEnergyDemand, ForecastPrice, ForecastTempSetpoint:
		return true
	default:
		return false
	}
}

// ForecastPoint is one hourly step of a forecast curve.
type ForecastPoint struct {
	Timestamp  time.Time `json:"ts"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"conf"`
}

// Scope is the building/room/floor a forecast applies to.
type Scope struct {
	BuildingID string `json:"building_id"`
	RoomID     string `json:"room_id,omitempty"`
	FloorID    string `json:"floor_id,omitempty"`
}

// ForecastRecord is the persisted forecast entity.
type ForecastRecord struct {
	ID             string
	Type           ForecastType
	Horizon        string
	IssuedAt       time.Time
	RequestedBy    string
	Series         []ForecastPoint
	ValidFrom      time.Time
	ValidTo        time.Time
	ModelAlgorithm string
	ModelVersion   string
	Accuracy       float64
	Scope          Scope
}

// NewForecast carries everything a store needs to create a ForecastRecord.
// The store assigns the id.
type NewForecast struct {
	Type           ForecastType
	Horizon        string
	IssuedAt       time.Time
	RequestedBy    string
	Series         []ForecastPoint
	ValidFrom      time.Time
	ValidTo        time.Time
	ModelAlgorithm string
	ModelVersion   string
	Accuracy       float64
	Scope          Scope
}

// ForecastResult is the caller-facing view of a forecast.
type ForecastResult struct {
	ForecastID   string          `json:"forecast_id"`
	BuildingID   string          `json:"building_id"`
	Type         ForecastType    `json:"forecast_type"`
	Horizon      string          `json:"horizon"`
	Values       []ForecastPoint `json:"values"`
	Accuracy     float64         `json:"accuracy"`
	GeneratedAt  time.Time       `json:"generated_at"`
	ValidFrom    time.Time       `json:"valid_from"`
	ValidTo      time.Time       `json:"valid_to"`
	ModelUsed    string          `json:"model_used"`
	ModelVersion string          `json:"model_version"`
}

// ToResult converts a stored record into its caller-facing view.
func (r *ForecastRecord) ToResult() *ForecastResult {
	return &ForecastResult{
		ForecastID:   r.ID,
		BuildingID:   r.Scope.BuildingID,
		Type:         r.Type,
		Horizon:      r.Horizon,
		Values:       r.Series,
		Accuracy:     r.Accuracy,
		GeneratedAt:  r.IssuedAt,
		ValidFrom:    r.ValidFrom,
		ValidTo:      r.ValidTo,
		ModelUsed:    r.ModelAlgorithm,
		ModelVersion: r.ModelVersion,
	}
}
