package optimization

import (
	"testing"
	"time"

	"EnerCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 08:00
var day = time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)

func curve(valuesW ...float64) []models.ForecastPoint {
	out := make([]models.ForecastPoint, len(valuesW))
	for i, v := range valuesW {
		out[i] = models.ForecastPoint{Timestamp: day.Add(time.Duration(i) * time.Hour), Value: v, Confidence: 0.9}
	}
	return out
}

func byAction(recs []models.Recommendation, action string) []models.Recommendation {
	var out []models.Recommendation
	for _, r := range recs {
		if r.ActionType == action {
			out = append(out, r)
		}
	}
	return out
}

func TestLoadShiftingSinglePeak(t *testing.T) {
	c := DefaultConstraints()
	c.MinSavingsThreshold = 5
	e := NewEngine(WithConstraints(c))
	p := DefaultPricing()

	// 08:00 .. 13:00, 90 kW at 14:00, later values lower.
	series := curve(60000, 60000, 60000, 60000, 60000, 60000, 90000, 60000, 60000)
	recs := e.GenerateRecommendations("B1", series, 50000, 24)

	shifts := byAction(recs, models.ActionShiftLoad)
	require.Len(t, shifts, 1)
	r := shifts[0]
	assert.Equal(t, 1, r.Priority)
	assert.InDelta(t, 0.20*90*(p.Peak-p.SuperOffPeak), r.EstimatedSavings, 0.005)
	assert.Equal(t, series[6].Timestamp, r.TimeWindow.Start)
	assert.Equal(t, series[6].Timestamp.Add(time.Hour), r.TimeWindow.End)
	assert.Equal(t, 23, r.Parameters["suggested_target_hour"])
	assert.InDelta(t, 18.0, r.Parameters["load_to_shift_kw"], 1e-9)
}

func TestLoadShiftingBelowThresholdDemand(t *testing.T) {
	c := DefaultConstraints()
	c.MinSavingsThreshold = 0
	e := NewEngine(WithConstraints(c))

	series := curve(70000, 75000, 80000, 79000)
	recs := e.GenerateRecommendations("B1", series, 50000, 24)
	assert.Empty(t, byAction(recs, models.ActionShiftLoad))
}

func TestLoadShiftingIgnoresPointsOutsideBand(t *testing.T) {
	c := DefaultConstraints()
	c.MinSavingsThreshold = 0
	e := NewEngine(WithConstraints(c))

	// 08:00 is outside [09:00, 21:00).
	series := curve(500000, 10000, 10000)
	recs := e.GenerateRecommendations("B1", series, 0, 24)
	assert.Empty(t, byAction(recs, models.ActionShiftLoad))
}

func TestLoadShiftingRespectsMinimumSavings(t *testing.T) {
	e := NewEngine()
	// 0.2 * 90 * 0.6 = 10.8 is under the default 20 threshold.
	recs := e.GenerateRecommendations("B1", curve(60000, 90000), 0, 24)
	assert.Empty(t, byAction(recs, models.ActionShiftLoad))

	// 0.2 * 200 * 0.6 = 24
	recs = e.GenerateRecommendations("B1", curve(60000, 200000), 0, 24)
	require.Len(t, byAction(recs, models.ActionShiftLoad), 1)
}

func TestPeakReduction(t *testing.T) {
	e := NewEngine()
	// mean = 40 kW, max = 100 kW > 52 kW
	series := curve(25000, 25000, 25000, 25000, 100000)
	recs := e.GenerateRecommendations("B1", series, 0, 24)

	peaks := byAction(recs, models.ActionReducePeakDemand)
	require.Len(t, peaks, 1)
	r := peaks[0]
	reduction := (100 - 40*1.2) * 0.5 // 26 kW
	assert.Equal(t, 2, r.Priority)
	assert.InDelta(t, reduction*60/30, r.EstimatedSavings, 0.005)
	assert.InDelta(t, reduction/100*100, r.EstimatedSavingsPct, 0.05)
	assert.Equal(t, series[4].Timestamp.Add(-30*time.Minute), r.TimeWindow.Start)
	assert.Equal(t, series[4].Timestamp.Add(30*time.Minute), r.TimeWindow.End)
}

func TestPercentagesAndKilowattsUseOneDecimal(t *testing.T) {
	c := DefaultConstraints()
	c.MinSavingsThreshold = 0
	e := NewEngine(WithConstraints(c))

	// shift 0.2 * 90.123 = 18.0246 kW, pct 0.2 * 0.6 / 1.05 = 11.43 %
	shifts := byAction(e.GenerateRecommendations("B1", curve(60000, 90123), 0, 24), models.ActionShiftLoad)
	require.Len(t, shifts, 1)
	assert.Equal(t, 18.0, shifts[0].Parameters["load_to_shift_kw"])
	assert.Equal(t, 11.4, shifts[0].EstimatedSavingsPct)

	// mean 41.0246 kW, max 105.123 kW, target (105.123 - 49.22952) * 0.5 = 27.94674 kW
	series := curve(25000, 25000, 25000, 25000, 105123)
	peaks := byAction(e.GenerateRecommendations("B1", series, 0, 24), models.ActionReducePeakDemand)
	require.Len(t, peaks, 1)
	r := peaks[0]
	assert.Equal(t, 27.9, r.Parameters["target_reduction_kw"])
	assert.Equal(t, 105.1, r.Parameters["current_peak_kw"])
	assert.Equal(t, 26.6, r.EstimatedSavingsPct)
}

func TestPeakReductionFlatCurve(t *testing.T) {
	e := NewEngine()
	recs := e.GenerateRecommendations("B1", curve(50000, 51000, 52000), 0, 24)
	assert.Empty(t, byAction(recs, models.ActionReducePeakDemand))
}

func TestTemperatureRelaxationFirstLowOccupancyPoint(t *testing.T) {
	e := NewEngine()
	start := time.Date(2024, 3, 6, 20, 0, 0, 0, time.UTC) // Wednesday 20:00
	series := make([]models.ForecastPoint, 6)
	for i := range series {
		series[i] = models.ForecastPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: 10000}
	}
	recs := e.GenerateRecommendations("B1", series, 50000, 24)

	temps := byAction(recs, models.ActionAdjustTemperature)
	require.Len(t, temps, 1)
	r := temps[0]
	assert.Equal(t, 3, r.Priority)
	assert.Equal(t, series[2].Timestamp, r.TimeWindow.Start) // 22:00
	assert.InDelta(t, 50000*0.45*0.10*0.45, r.EstimatedSavings, 0.005)
	assert.Equal(t, 18.0, r.Parameters["heating_setpoint_c"])
	assert.Equal(t, 26.0, r.Parameters["cooling_setpoint_c"])
}

func TestTemperatureRelaxationWeekendDaytime(t *testing.T) {
	e := NewEngine()
	sat := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	series := []models.ForecastPoint{{Timestamp: sat, Value: 1000}}
	recs := e.GenerateRecommendations("B1", series, 50000, 24)
	require.Len(t, byAction(recs, models.ActionAdjustTemperature), 1)
}

func TestRecommendationsSortedByPriorityThenSavings(t *testing.T) {
	c := DefaultConstraints()
	c.MinSavingsThreshold = 0
	e := NewEngine(WithConstraints(c))

	start := time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC)
	series := make([]models.ForecastPoint, 8)
	for i := range series {
		series[i] = models.ForecastPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: 20000}
	}
	series[1].Value = 300000 // 19:00

	recs := e.GenerateRecommendations("B1", series, 50000, 24)
	require.Len(t, recs, 3)
	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		ordered := prev.Priority < cur.Priority ||
			(prev.Priority == cur.Priority && prev.EstimatedSavings >= cur.EstimatedSavings)
		assert.True(t, ordered, "recommendations out of order at %d", i)
	}
}

func TestTimeRangeLimitsWindow(t *testing.T) {
	c := DefaultConstraints()
	c.MinSavingsThreshold = 0
	e := NewEngine(WithConstraints(c))

	series := curve(10000, 10000, 10000, 500000)
	recs := e.GenerateRecommendations("B1", series, 0, 2)
	assert.Empty(t, byAction(recs, models.ActionShiftLoad))
	assert.Empty(t, byAction(recs, models.ActionReducePeakDemand))
}

func TestGenerateRecommendationsEmptySeries(t *testing.T) {
	assert.Empty(t, NewEngine().GenerateRecommendations("B1", nil, 50000, 24))
}

func TestCalculateSavings(t *testing.T) {
	empty := CalculateSavings(nil)
	assert.Zero(t, empty.Daily)
	assert.Zero(t, empty.Monthly)
	assert.Zero(t, empty.Annual)
	require.Len(t, empty.ByPriority, 5)
	for p := 1; p <= 5; p++ {
		assert.Zero(t, empty.ByPriority[p])
	}

	one := CalculateSavings([]models.Recommendation{{EstimatedSavings: 50, Priority: 1}})
	assert.Equal(t, 50.0, one.Daily)
	assert.Equal(t, 1500.0, one.Monthly)
	assert.Equal(t, 18250.0, one.Annual)
	assert.Equal(t, 50.0, one.ByPriority[1])

	mixed := CalculateSavings([]models.Recommendation{
		{EstimatedSavings: 10.1, Priority: 1},
		{EstimatedSavings: 20.2, Priority: 1},
		{EstimatedSavings: 5.5, Priority: 3},
	})
	assert.Equal(t, 35.8, mixed.Daily)
	assert.Equal(t, 30.3, mixed.ByPriority[1])
	assert.Equal(t, 5.5, mixed.ByPriority[3])
	assert.Equal(t, 1074.0, mixed.Monthly)
}
