package optimization

import (
	"fmt"
	"sort"
	"time"

	"EnerCast/internal/domain/models"
	"EnerCast/internal/services/features"
	applogger "EnerCast/pkg/logger"

	"github.com/shopspring/decimal"
)

const (
	loadShiftShare     = 0.20
	peakTriggerRatio   = 1.3
	peakTargetRatio    = 1.2
	hvacShare          = 0.45
	setpointSavings    = 0.10
	superOffPeakHour   = 23
	currentHeatingC    = 20.0
	currentCoolingC    = 24.0
	wattsPerKilowatt   = 1000.0
	loadShiftStartHour = 9
	loadShiftEndHour   = 21
)

// Option configures an Engine.
type Option func(*Engine)

func WithPricing(p Pricing) Option {
	return func(e *Engine) { e.pricing = p }
}

func WithConstraints(c Constraints) Option {
	return func(e *Engine) { e.constraints = c }
}

func WithLogger(l *applogger.Logger) Option {
	return func(e *Engine) { e.l = l }
}

// Engine derives cost-saving recommendations from a forecast curve.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	pricing     Pricing
	constraints Constraints
	l           *applogger.Logger
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{pricing: DefaultPricing(), constraints: DefaultConstraints()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Pricing() Pricing { return e.pricing }

func (e *Engine) Constraints() Constraints { return e.constraints }

// GenerateRecommendations analyses the first timeRangeHours points of series
// (values in watts) and returns recommendations sorted by priority, then by
// savings descending.
func (e *Engine) GenerateRecommendations(buildingID string, series []models.ForecastPoint, baselineW float64, timeRangeHours int) []models.Recommendation {
	window := series
	if timeRangeHours >= 0 && timeRangeHours < len(window) {
		window = window[:timeRangeHours]
	}

	var recs []models.Recommendation
	recs = append(recs, e.loadShifting(window)...)
	recs = append(recs, e.peakReduction(window)...)
	recs = append(recs, e.temperatureRelaxation(window, baselineW)...)

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority < recs[j].Priority
		}
		return recs[i].EstimatedSavings > recs[j].EstimatedSavings
	})

	if e.l != nil {
		e.l.Info("optimization recommendations generated",
			applogger.String("building_id", buildingID),
			applogger.Int("points", len(window)),
			applogger.Int("recommendations", len(recs)),
		)
	}
	return recs
}

func (e *Engine) loadShifting(window []models.ForecastPoint) []models.Recommendation {
	peakIdx := -1
	for i, p := range window {
		h := p.Timestamp.Hour()
		if h < loadShiftStartHour || h >= loadShiftEndHour {
			continue
		}
		if peakIdx < 0 || p.Value > window[peakIdx].Value {
			peakIdx = i
		}
	}
	if peakIdx < 0 {
		return nil
	}
	peak := window[peakIdx]
	peakKW := peak.Value / wattsPerKilowatt
	if peakKW <= e.constraints.LoadShiftPeakKW {
		return nil
	}

	shiftKW := peakKW * loadShiftShare
	savings := shiftKW * (e.pricing.Peak - e.pricing.SuperOffPeak)
	if savings < e.constraints.MinSavingsThreshold {
		return nil
	}
	return []models.Recommendation{{
		ActionType:          models.ActionShiftLoad,
		EstimatedSavings:    roundMoney(savings),
		EstimatedSavingsPct: roundTenth(savings / (peakKW * e.pricing.Peak) * 100),
		Priority:            1,
		Description: fmt.Sprintf("Shift %.1f kW of load from %s to the super off-peak window (23:00-06:00)",
			shiftKW, peak.Timestamp.Format("15:04")),
		TimeWindow: models.TimeWindow{Start: peak.Timestamp, End: peak.Timestamp.Add(time.Hour)},
		Parameters: map[string]interface{}{
			"load_to_shift_kw":      roundTenth(shiftKW),
			"suggested_target_hour": superOffPeakHour,
		},
	}}
}

func (e *Engine) peakReduction(window []models.ForecastPoint) []models.Recommendation {
	if len(window) == 0 {
		return nil
	}
	peakIdx := 0
	sum := 0.0
	for i, p := range window {
		sum += p.Value
		if p.Value > window[peakIdx].Value {
			peakIdx = i
		}
	}
	avgKW := sum / float64(len(window)) / wattsPerKilowatt
	peak := window[peakIdx]
	maxKW := peak.Value / wattsPerKilowatt
	if maxKW <= avgKW*peakTriggerRatio {
		return nil
	}

	reductionKW := (maxKW - avgKW*peakTargetRatio) * 0.5
	daily := reductionKW * e.pricing.DemandCharge / 30
	if daily < e.constraints.MinSavingsThreshold {
		return nil
	}
	return []models.Recommendation{{
		ActionType:          models.ActionReducePeakDemand,
		EstimatedSavings:    roundMoney(daily),
		EstimatedSavingsPct: roundTenth(reductionKW / maxKW * 100),
		Priority:            2,
		Description: fmt.Sprintf("Reduce peak demand by %.1f kW around %s to lower demand charges",
			reductionKW, peak.Timestamp.Format("15:04")),
		TimeWindow: models.TimeWindow{
			Start: peak.Timestamp.Add(-30 * time.Minute),
			End:   peak.Timestamp.Add(30 * time.Minute),
		},
		Parameters: map[string]interface{}{
			"target_reduction_kw": roundTenth(reductionKW),
			"current_peak_kw":     roundTenth(maxKW),
		},
	}}
}

func (e *Engine) temperatureRelaxation(window []models.ForecastPoint, baselineW float64) []models.Recommendation {
	for _, p := range window {
		h := p.Timestamp.Hour()
		if !(h >= 22 || h < 6 || features.IsWeekend(p.Timestamp)) {
			continue
		}
		savings := baselineW * hvacShare * setpointSavings * e.pricing.SuperOffPeak
		if savings < e.constraints.MinSavingsThreshold {
			return nil
		}
		return []models.Recommendation{{
			ActionType:          models.ActionAdjustTemperature,
			EstimatedSavings:    roundMoney(savings),
			EstimatedSavingsPct: setpointSavings * 100,
			Priority:            3,
			Description: fmt.Sprintf("Relax HVAC setpoints by 2°C during low occupancy starting %s",
				p.Timestamp.Format("Mon 15:04")),
			TimeWindow: models.TimeWindow{Start: p.Timestamp, End: p.Timestamp.Add(time.Hour)},
			Parameters: map[string]interface{}{
				"heating_setpoint_c":         e.constraints.MinTemperatureC,
				"cooling_setpoint_c":         e.constraints.MaxTemperatureC,
				"current_heating_setpoint_c": currentHeatingC,
				"current_cooling_setpoint_c": currentCoolingC,
			},
		}}
	}
	return nil
}

// CalculateSavings totals recommendation savings. An empty input yields zeros.
func CalculateSavings(recs []models.Recommendation) models.SavingsBreakdown {
	daily := decimal.Zero
	byPriority := make(map[int]decimal.Decimal, 5)
	for _, r := range recs {
		s := decimal.NewFromFloat(r.EstimatedSavings)
		daily = daily.Add(s)
		byPriority[r.Priority] = byPriority[r.Priority].Add(s)
	}

	out := models.SavingsBreakdown{
		Daily:      daily.Round(2).InexactFloat64(),
		Monthly:    daily.Mul(decimal.NewFromInt(30)).Round(2).InexactFloat64(),
		Annual:     daily.Mul(decimal.NewFromInt(365)).Round(2).InexactFloat64(),
		ByPriority: make(map[int]float64, 5),
	}
	for p := 1; p <= 5; p++ {
		out.ByPriority[p] = byPriority[p].Round(2).InexactFloat64()
	}
	return out
}

func roundMoney(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// roundTenth is used for percentages and kW figures.
func roundTenth(x float64) float64 {
	return decimal.NewFromFloat(x).Round(1).InexactFloat64()
}
