package models

import "time"

// MetricPower is the metric name used for building power readings, in watts.
const MetricPower = "power_w"

// MeasurementPoint is a single sensor reading.
type MeasurementPoint struct {
	ID         string            `json:"id,omitempty"`
	BuildingID string            `json:"building_id"`
	DeviceID   string            `json:"device_id"`
	Metric     string            `json:"metric"`
	Value      float64           `json:"value"`
	Timestamp  time.Time         `json:"ts"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// AggregatedPoint is one time bucket of an aggregated metric.
type AggregatedPoint struct {
	Timestamp time.Time `json:"ts"`
	Avg       float64   `json:"avg"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Count     int64     `json:"count"`
}
