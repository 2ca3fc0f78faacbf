package models

import "time"

const (
	ActionShiftLoad         = "shift_load"
	ActionReducePeakDemand  = "reduce_peak_demand"
	ActionAdjustTemperature = "adjust_temperature"
)

// TimeWindow is a [Start, End] interval.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Recommendation is a single cost-saving action.
type Recommendation struct {
	ActionType          string                 `json:"action_type"`
	EstimatedSavings    float64                `json:"estimated_savings"`
	EstimatedSavingsPct float64                `json:"estimated_savings_pct"`
	Priority            int                    `json:"priority"`
	Description         string                 `json:"description"`
	TimeWindow          TimeWindow             `json:"time_window"`
	Parameters          map[string]interface{} `json:"parameters"`
}

// SavingsBreakdown aggregates recommendation savings.
type SavingsBreakdown struct {
	Daily      float64         `json:"total_daily"`
	Monthly    float64         `json:"total_monthly"`
	Annual     float64         `json:"total_annual"`
	ByPriority map[int]float64 `json:"by_priority"`
}

// OptimizationSummary is the result of an optimization request.
type OptimizationSummary struct {
	BuildingID       string           `json:"building_id"`
	Recommendations  []Recommendation `json:"recommendations"`
	Savings          SavingsBreakdown `json:"savings"`
	SourceForecastID string           `json:"forecast_id"`
	BaselineW        float64          `json:"baseline_w"`
	BaselineDegraded bool             `json:"baseline_degraded"`
	GeneratedAt      time.Time        `json:"generated_at"`
}
