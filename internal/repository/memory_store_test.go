package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EnerCast/internal/domain/models"
	"EnerCast/pkg/cache"
	applogger "EnerCast/pkg/logger"
)

var base = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func point(building, device string, at time.Time, v float64) *models.MeasurementPoint {
	return &models.MeasurementPoint{BuildingID: building, DeviceID: device, Metric: models.MetricPower, Value: v, Timestamp: at}
}

func TestMemoryMeasurementStoreOrdersAndFilters(t *testing.T) {
	s := NewMemoryMeasurementStore()
	ctx := context.Background()

	require.NoError(t, s.StoreBatch(ctx, []*models.MeasurementPoint{
		point("B1", "m1", base.Add(2*time.Hour), 3),
		point("B1", "m1", base, 1),
		point("B1", "m2", base.Add(time.Hour), 2),
		point("B2", "m1", base, 9),
	}))

	got, err := s.GetMeasurements(ctx, "B1", models.MetricPower, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{got[0].Value, got[1].Value, got[2].Value})

	got, err = s.GetMeasurements(ctx, "B1", models.MetricPower, base, base.Add(3*time.Hour), "m2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].DeviceID)

	got, err = s.GetMeasurements(ctx, "B1", "temp_c", base, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryMeasurementStoreAggregates(t *testing.T) {
	s := NewMemoryMeasurementStore()
	ctx := context.Background()
	for i, v := range []float64{10, 20, 30, 40} {
		require.NoError(t, s.Store(ctx, point("B1", "m1", base.Add(time.Duration(i)*30*time.Minute), v)))
	}

	agg, err := s.GetAggregated(ctx, "B1", models.MetricPower, base, base.Add(2*time.Hour), "1h")
	require.NoError(t, err)
	require.Len(t, agg, 2)
	assert.Equal(t, models.AggregatedPoint{Timestamp: base, Avg: 15, Min: 10, Max: 20, Count: 2}, agg[0])
	assert.Equal(t, models.AggregatedPoint{Timestamp: base.Add(time.Hour), Avg: 35, Min: 30, Max: 40, Count: 2}, agg[1])

	_, err = s.GetAggregated(ctx, "B1", models.MetricPower, base, base.Add(2*time.Hour), "soon")
	assert.Error(t, err)
}

func newForecast(building string, issued time.Time) *models.NewForecast {
	return &models.NewForecast{
		Type:           models.ForecastEnergyDemand,
		Horizon:        "24H",
		IssuedAt:       issued,
		Series:         []models.ForecastPoint{{Timestamp: issued.Add(time.Hour), Value: 100, Confidence: 0.9}},
		ValidFrom:      issued,
		ValidTo:        issued.Add(24 * time.Hour),
		ModelAlgorithm: "XGBoost",
		ModelVersion:   "1.4.2",
		Accuracy:       0.87,
		Scope:          models.Scope{BuildingID: building},
	}
}

func TestMemoryForecastStore(t *testing.T) {
	s := NewMemoryForecastStore()
	ctx := context.Background()

	first, err := s.Create(ctx, newForecast("B1", base))
	require.NoError(t, err)
	second, err := s.Create(ctx, newForecast("B1", base.Add(time.Hour)))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	latest, err := s.GetLatest(ctx, "B1", models.ForecastEnergyDemand, "24H")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second, latest.ID)

	none, err := s.GetLatest(ctx, "B1", models.ForecastEnergyDemand, "168H")
	require.NoError(t, err)
	assert.Nil(t, none)

	missing, err := s.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := s.UpdateSeries(ctx, first, []models.ForecastPoint{{Value: 1}, {Value: 2}})
	require.NoError(t, err)
	assert.True(t, ok)
	rec, err := s.GetByID(ctx, first)
	require.NoError(t, err)
	assert.Len(t, rec.Series, 2)

	ok, err = s.UpdateSeries(ctx, "nope", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	in, err := s.GetInRange(ctx, "B1", base.Add(30*time.Hour), base.Add(40*time.Hour), models.ForecastEnergyDemand)
	require.NoError(t, err)
	assert.Empty(t, in)
	in, err = s.GetInRange(ctx, "B1", base.Add(2*time.Hour), base.Add(3*time.Hour), models.ForecastEnergyDemand)
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, second, in[0].ID)
}

func TestMemoryForecastStoreInRangeWithoutType(t *testing.T) {
	s := NewMemoryForecastStore()
	ctx := context.Background()

	demand, err := s.Create(ctx, newForecast("B1", base))
	require.NoError(t, err)
	pf := newForecast("B1", base.Add(time.Hour))
	pf.Type = models.ForecastPrice
	price, err := s.Create(ctx, pf)
	require.NoError(t, err)
	_, err = s.Create(ctx, newForecast("B2", base))
	require.NoError(t, err)

	all, err := s.GetInRange(ctx, "B1", base, base.Add(2*time.Hour), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, price, all[0].ID)
	assert.Equal(t, demand, all[1].ID)

	typed, err := s.GetInRange(ctx, "B1", base, base.Add(2*time.Hour), models.ForecastPrice)
	require.NoError(t, err)
	require.Len(t, typed, 1)
	assert.Equal(t, price, typed[0].ID)
}

func TestMemoryCoreStore(t *testing.T) {
	s := NewMemoryCoreStore()
	ctx := context.Background()
	s.PutBuilding(models.BuildingMetadata{ID: "B1", Name: "HQ"})
	s.PutDevice(models.DeviceMetadata{ID: "d1", DeviceID: "m1", Type: "meter", BuildingID: "B1", Status: "active"})
	s.PutDevice(models.DeviceMetadata{ID: "d2", DeviceID: "t1", Type: "thermostat", BuildingID: "B1", Status: "offline"})

	b, err := s.GetBuilding(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, "HQ", b.Name)

	b, err = s.GetBuilding(ctx, "B9")
	require.NoError(t, err)
	assert.Nil(t, b)

	devs, err := s.GetDevices(ctx, "B1", "", "")
	require.NoError(t, err)
	assert.Len(t, devs, 2)

	devs, err = s.GetDevices(ctx, "B1", "meter", "active")
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "m1", devs[0].DeviceID)
}

func TestCachedForecastStoreServesFromCache(t *testing.T) {
	backing := NewMemoryForecastStore()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCachedForecastStore(backing, mc, time.Hour, nil)
	ctx := context.Background()

	id, err := s.Create(ctx, newForecast("B1", base))
	require.NoError(t, err)

	ok, err := mc.Exists(ctx, byIDKey(id), latestKey("B1", models.ForecastEnergyDemand, "24H"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetLatest(ctx, "B1", models.ForecastEnergyDemand, "24H")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.True(t, got.IssuedAt.Equal(base))

	ok, err = s.UpdateSeries(ctx, id, []models.ForecastPoint{{Value: 5}})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.GetByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Series, 1)
	assert.Equal(t, 5.0, got.Series[0].Value)

	missing, err := s.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

type deleteFailingCache struct {
	*cache.MemoryCache
	deleted [][]string
}

func (c *deleteFailingCache) Delete(_ context.Context, keys ...string) error {
	c.deleted = append(c.deleted, keys)
	return errors.New("cache unavailable")
}

func TestCachedForecastStoreUpdateSurvivesInvalidationFailure(t *testing.T) {
	backing := NewMemoryForecastStore()
	mc := &deleteFailingCache{MemoryCache: cache.NewMemoryCache()}
	defer mc.Close()
	s := NewCachedForecastStore(backing, mc, time.Hour, applogger.Nop())
	ctx := context.Background()

	id, err := s.Create(ctx, newForecast("B1", base))
	require.NoError(t, err)

	ok, err := s.UpdateSeries(ctx, id, []models.ForecastPoint{{Value: 5}})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, mc.deleted, 1)
	assert.ElementsMatch(t, []string{byIDKey(id), latestKey("B1", models.ForecastEnergyDemand, "24H")}, mc.deleted[0])

	rec, err := backing.GetByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, rec.Series, 1)
}

func TestDecodeTags(t *testing.T) {
	tags, err := decodeTags(`{"floor":"3"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"floor": "3"}, tags)

	for _, empty := range []string{"", "{}"} {
		tags, err = decodeTags(empty)
		require.NoError(t, err)
		assert.Nil(t, tags)
	}

	tags, err = decodeTags(`{"floor":`)
	assert.Error(t, err)
	assert.Nil(t, tags)
}

func TestParseBucket(t *testing.T) {
	cases := map[string]time.Duration{
		"":    time.Hour,
		"1h":  time.Hour,
		"15m": 15 * time.Minute,
		"1D":  24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseBucket(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"0d", "xd", "1ms", "abc"} {
		_, err := ParseBucket(bad)
		assert.Error(t, err, bad)
	}
}

func TestMeasurementSchemaUsesTableDatabase(t *testing.T) {
	stmts := MeasurementSchema("energy.readings")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS energy", stmts[0])
	assert.Contains(t, stmts[1], "energy.readings")
}
