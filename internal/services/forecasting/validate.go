package forecasting

import (
	"EnerCast/internal/domain/models"
)

// ValidationResult explains why a forecast failed the quality gate.
type ValidationResult struct {
	Valid         bool
	LowAccuracy   bool
	NegativeValue bool
	Outlier       bool
}

// ValidateResults checks accuracy against threshold and the series for
// negative values or values above five times the series mean.
func ValidateResults(series []models.ForecastPoint, accuracy, threshold float64) ValidationResult {
	res := ValidationResult{Valid: true}
	if accuracy < threshold {
		res.LowAccuracy = true
		res.Valid = false
	}
	if len(series) == 0 {
		return res
	}
	sum := 0.0
	for _, p := range series {
		sum += p.Value
		if p.Value < 0 {
			res.NegativeValue = true
			res.Valid = false
		}
	}
	mean := sum / float64(len(series))
	for _, p := range series {
		if p.Value > 5*mean {
			res.Outlier = true
			res.Valid = false
			break
		}
	}
	return res
}
