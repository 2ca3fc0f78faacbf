package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"EnerCast/internal/domain/models"
	domsvc "EnerCast/internal/domain/service"
	"EnerCast/internal/repository"
	"EnerCast/internal/services/forecasting"
	"EnerCast/internal/services/modelmanager"
	"EnerCast/internal/services/optimization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var svcNow = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

type countingEngine struct {
	next  domsvc.ForecastGenerator
	calls int
}

func (c *countingEngine) GenerateForecast(ctx context.Context, req domsvc.GenerateRequest) (*domsvc.GeneratedForecast, error) {
	c.calls++
	return c.next.GenerateForecast(ctx, req)
}

type stubLocker struct {
	acquired bool
	err      error
	unlocked []string
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	return l.acquired, l.err
}

func (l *stubLocker) Unlock(_ context.Context, key string) error {
	l.unlocked = append(l.unlocked, key)
	return nil
}

type stubEvents struct{ ids []string }

func (e *stubEvents) PublishForecastCreated(_ context.Context, rec *models.ForecastRecord) error {
	e.ids = append(e.ids, rec.ID)
	return nil
}

type fixture struct {
	svc          *ForecastService
	engine       *countingEngine
	measurements *repository.MemoryMeasurementStore
	forecasts    *repository.MemoryForecastStore
	manager      *modelmanager.Manager
	now          time.Time
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		measurements: repository.NewMemoryMeasurementStore(),
		forecasts:    repository.NewMemoryForecastStore(),
		now:          svcNow,
	}
	clock := func() time.Time { return f.now }
	core := repository.NewMemoryCoreStore()
	core.PutBuilding(models.BuildingMetadata{ID: "B1", Name: "HQ", Timezone: "UTC"})

	f.manager = modelmanager.New(
		modelmanager.WithClock(clock),
		modelmanager.WithRand(rand.New(rand.NewPCG(7, 11))),
	)
	f.engine = &countingEngine{next: forecasting.NewEngine(f.measurements, f.manager,
		forecasting.WithEngineClock(clock),
		forecasting.WithNoise(func(float64) float64 { return 0 }),
	)}
	base := []ServiceOption{WithServiceClock(clock)}
	f.svc = NewForecastService(core, f.forecasts, f.measurements, f.engine, optimization.NewEngine(), f.manager, append(base, opts...)...)
	return f
}

// seed stores hourly power readings from now-from up to now-to.
func (f *fixture) seed(t *testing.T, from, to time.Duration, value float64) {
	t.Helper()
	var batch []*models.MeasurementPoint
	for ts := f.now.Add(-from); !ts.After(f.now.Add(-to)); ts = ts.Add(time.Hour) {
		batch = append(batch, &models.MeasurementPoint{
			BuildingID: "B1",
			DeviceID:   "meter-1",
			Metric:     models.MetricPower,
			Value:      value,
			Timestamp:  ts,
		})
	}
	require.NoError(t, f.measurements.StoreBatch(context.Background(), batch))
}

func forecastReq(horizon string) *models.ForecastRequest {
	return &models.ForecastRequest{
		BuildingID:  "B1",
		Horizon:     horizon,
		Type:        string(models.ForecastEnergyDemand),
		RequestedBy: "ops",
	}
}

func TestRequestForecastCreatesAndReads(t *testing.T) {
	events := &stubEvents{}
	f := newFixture(t, WithEventPublisher(events))
	f.seed(t, 240*time.Hour, time.Hour, 50000)
	ctx := context.Background()

	res, err := f.svc.RequestForecast(ctx, forecastReq("24H"))
	require.NoError(t, err)
	require.NotEmpty(t, res.ForecastID)
	assert.Len(t, res.Values, 24)
	assert.Equal(t, "24H", res.Horizon)
	assert.Equal(t, "B1", res.BuildingID)
	assert.Equal(t, svcNow.Add(24*time.Hour), res.ValidTo)
	assert.Equal(t, []string{res.ForecastID}, events.ids)

	got, err := f.svc.GetForecast(ctx, res.ForecastID, "ops")
	require.NoError(t, err)
	assert.Equal(t, res.ForecastID, got.ForecastID)
	assert.Equal(t, res.Values, got.Values)

	latest, err := f.svc.GetLatestForecast(ctx, "B1", models.ForecastEnergyDemand, "24h", "ops")
	require.NoError(t, err)
	assert.Equal(t, res.ForecastID, latest.ForecastID)
}

func TestRequestForecastReusesFreshResult(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 240*time.Hour, time.Hour, 50000)
	ctx := context.Background()

	first, err := f.svc.RequestForecast(ctx, forecastReq("24H"))
	require.NoError(t, err)

	f.now = f.now.Add(30 * time.Minute)
	second, err := f.svc.RequestForecast(ctx, forecastReq("24H"))
	require.NoError(t, err)
	assert.Equal(t, first.ForecastID, second.ForecastID)
	assert.Equal(t, 1, f.engine.calls)

	f.now = f.now.Add(time.Hour)
	third, err := f.svc.RequestForecast(ctx, forecastReq("24H"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ForecastID, third.ForecastID)
	assert.Equal(t, 2, f.engine.calls)
}

func TestRequestForecastInsufficientData(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 10*time.Hour, time.Hour, 50000)

	_, err := f.svc.RequestForecast(context.Background(), forecastReq("24H"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domsvc.ErrValidation))
	assert.True(t, errors.Is(err, domsvc.ErrInsufficientData))

	rec, err := f.forecasts.GetLatest(context.Background(), "B1", models.ForecastEnergyDemand, "24H")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRequestForecastUnknownBuilding(t *testing.T) {
	f := newFixture(t)

	req := forecastReq("24H")
	req.BuildingID = "nope"
	_, err := f.svc.RequestForecast(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domsvc.ErrBuildingNotFound))
	assert.True(t, errors.Is(err, domsvc.ErrValidation))
	assert.Equal(t, 0, f.engine.calls)
}

func TestRequestForecastRejectsUnknownType(t *testing.T) {
	f := newFixture(t)

	req := forecastReq("24H")
	req.Type = "wind"
	_, err := f.svc.RequestForecast(context.Background(), req)
	assert.True(t, errors.Is(err, domsvc.ErrValidation))
}

func TestGetForecastNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetForecast(context.Background(), "missing", "ops")
	assert.True(t, errors.Is(err, domsvc.ErrForecastNotFound))

	_, err = f.svc.GetLatestForecast(context.Background(), "B1", models.ForecastEnergyDemand, "24H", "ops")
	assert.True(t, errors.Is(err, domsvc.ErrForecastNotFound))
}

func TestGetOptimizationUsesFallbackBaseline(t *testing.T) {
	f := newFixture(t)
	// nothing within the trailing day, so the baseline falls back
	f.seed(t, 240*time.Hour, 25*time.Hour, 50000)

	sum, err := f.svc.GetOptimization(context.Background(), "B1", "ops", 24)
	require.NoError(t, err)
	assert.True(t, sum.BaselineDegraded)
	assert.Equal(t, DefaultFallbackBaseline, sum.BaselineW)
	assert.NotEmpty(t, sum.SourceForecastID)
	assert.NotNil(t, sum.Recommendations)
	assert.Equal(t, 1, f.engine.calls)

	again, err := f.svc.GetOptimization(context.Background(), "B1", "ops", 24)
	require.NoError(t, err)
	assert.Equal(t, sum.SourceForecastID, again.SourceForecastID)
	assert.Equal(t, 1, f.engine.calls)
}

func TestGetOptimizationMeasuredBaseline(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 240*time.Hour, time.Hour, 42000)

	sum, err := f.svc.GetOptimization(context.Background(), "B1", "ops", 0)
	require.NoError(t, err)
	assert.False(t, sum.BaselineDegraded)
	assert.InDelta(t, 42000, sum.BaselineW, 1e-6)
}

func TestTrainModel(t *testing.T) {
	locker := &stubLocker{acquired: true}
	f := newFixture(t, WithTrainingLock(locker, time.Minute))
	f.seed(t, 800*time.Hour, time.Hour, 50000)

	res, err := f.svc.TrainModel(context.Background(), TrainInput{
		BuildingID:  "B1",
		ModelType:   models.ModelLSTM,
		Start:       svcNow.Add(-35 * 24 * time.Hour),
		End:         svcNow,
		RequestedBy: "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, "1.4.3", res.Version)
	assert.Equal(t, 800, res.TrainingSamples)
	assert.Equal(t, []string{"train:B1:LSTM"}, locker.unlocked)

	perf, err := f.svc.GetModelPerformance(context.Background(), "B1", models.ModelLSTM, "ops")
	require.NoError(t, err)
	assert.Equal(t, "1.4.3", perf.Version)
	assert.Equal(t, res.Accuracy, perf.Metrics.Accuracy)
}

func TestTrainModelRejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 100*time.Hour, time.Hour, 50000)
	ctx := context.Background()

	_, err := f.svc.TrainModel(ctx, TrainInput{
		BuildingID: "B1",
		ModelType:  models.ModelXGBoost,
		Start:      svcNow.Add(-10 * 24 * time.Hour),
		End:        svcNow,
	})
	assert.True(t, errors.Is(err, domsvc.ErrValidation))

	_, err = f.svc.TrainModel(ctx, TrainInput{
		BuildingID: "B1",
		ModelType:  models.ModelXGBoost,
		Start:      svcNow.Add(-30 * 24 * time.Hour),
		End:        svcNow,
	})
	assert.True(t, errors.Is(err, domsvc.ErrInsufficientData))

	_, err = f.svc.TrainModel(ctx, TrainInput{
		BuildingID: "B1",
		ModelType:  "ARIMA",
		Start:      svcNow.Add(-30 * 24 * time.Hour),
		End:        svcNow,
	})
	assert.True(t, errors.Is(err, domsvc.ErrValidation))
}

func TestTrainModelLockHeld(t *testing.T) {
	f := newFixture(t, WithTrainingLock(&stubLocker{acquired: false}, time.Minute))
	f.seed(t, 800*time.Hour, time.Hour, 50000)

	_, err := f.svc.TrainModel(context.Background(), TrainInput{
		BuildingID: "B1",
		ModelType:  models.ModelLSTM,
		Start:      svcNow.Add(-35 * 24 * time.Hour),
		End:        svcNow,
	})
	assert.True(t, errors.Is(err, domsvc.ErrTrainingInProgress))
}

func TestTrainModelLockErrorIsNotFatal(t *testing.T) {
	locker := &stubLocker{err: errors.New("redis down")}
	f := newFixture(t, WithTrainingLock(locker, time.Minute))
	f.seed(t, 800*time.Hour, time.Hour, 50000)

	_, err := f.svc.TrainModel(context.Background(), TrainInput{
		BuildingID: "B1",
		ModelType:  models.ModelLSTM,
		Start:      svcNow.Add(-35 * 24 * time.Hour),
		End:        svcNow,
	})
	require.NoError(t, err)
	assert.Empty(t, locker.unlocked)
}

func TestGetModelPerformanceNotTrained(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetModelPerformance(context.Background(), "B1", models.ModelLSTM, "ops")
	assert.True(t, errors.Is(err, domsvc.ErrModelNotTrained))

	f.manager.LoadModel("B1", models.ModelLSTM)
	perf, err := f.svc.GetModelPerformance(context.Background(), "B1", models.ModelLSTM, "ops")
	require.NoError(t, err)
	assert.Equal(t, models.HealthNeedsRetraining, perf.Status)
	assert.Zero(t, perf.Metrics.Accuracy)
}

func TestConfigureForecastParameters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.ConfigureForecastParameters(ctx, "B1", models.ForecastParameters{
		DefaultHorizon:    "7d",
		AccuracyThreshold: 0.9,
		ModelPreference:   models.ModelPreference(models.ModelXGBoost),
	}, "ops")
	require.NoError(t, err)
	p, err := f.svc.ForecastParameters(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, "7D", p.DefaultHorizon)
	assert.Equal(t, 0.9, p.AccuracyThreshold)

	cases := []models.ForecastParameters{
		{AccuracyThreshold: 0},
		{AccuracyThreshold: 1.5},
		{AccuracyThreshold: 0.8, ModelPreference: "prophet"},
		{AccuracyThreshold: 0.8, DefaultHorizon: "forever"},
		{AccuracyThreshold: 0.8, DefaultHorizon: "91D"},
	}
	for _, c := range cases {
		err := f.svc.ConfigureForecastParameters(ctx, "B1", c, "ops")
		assert.True(t, errors.Is(err, domsvc.ErrValidation), "%+v", c)
	}

	err = f.svc.ConfigureForecastParameters(ctx, "nope", models.ForecastParameters{AccuracyThreshold: 0.8}, "ops")
	assert.True(t, errors.Is(err, domsvc.ErrBuildingNotFound))
}

func TestForecastParametersUnknownBuilding(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ForecastParameters(context.Background(), "B9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domsvc.ErrBuildingNotFound))

	p, err := f.svc.ForecastParameters(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, "24H", p.DefaultHorizon)
}

func TestRequestForecastRejectsHorizonOverLimit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 240*time.Hour, time.Hour, 50000)

	for _, h := range []string{"5000D", "91D", "9999999D"} {
		_, err := f.svc.RequestForecast(context.Background(), forecastReq(h))
		require.Error(t, err, h)
		assert.True(t, errors.Is(err, domsvc.ErrValidation), h)
	}
	assert.Equal(t, 0, f.engine.calls)

	res, err := f.svc.RequestForecast(context.Background(), forecastReq("90D"))
	require.NoError(t, err)
	assert.Equal(t, svcNow.Add(90*24*time.Hour), res.ValidTo)
}

func TestConfiguredHorizonIsUsedWhenRequestOmitsIt(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 240*time.Hour, time.Hour, 50000)
	ctx := context.Background()

	require.NoError(t, f.svc.ConfigureForecastParameters(ctx, "B1", models.ForecastParameters{
		DefaultHorizon:    "1H",
		AccuracyThreshold: 0.85,
	}, "ops"))

	res, err := f.svc.RequestForecast(ctx, forecastReq(""))
	require.NoError(t, err)
	assert.Equal(t, "1H", res.Horizon)
	assert.Len(t, res.Values, 1)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 240*time.Hour, time.Hour, 50000)

	_, err := f.svc.RequestForecast(context.Background(), forecastReq("24H"))
	require.NoError(t, err)
	f.now = f.now.Add(90 * time.Second)

	h := f.svc.HealthCheck(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, ServiceName, h.Service)
	assert.Equal(t, ServiceVersion, h.Version)
	assert.Equal(t, 1, h.ModelsLoaded)
	assert.InDelta(t, 90, h.UptimeSeconds, 1e-9)
}

// stalledSource never answers before the caller's context ends.
type stalledSource struct{}

func (stalledSource) GetMeasurements(ctx context.Context, _, _ string, _, _ time.Time, _ ...string) ([]models.MeasurementPoint, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledSource) GetAggregated(ctx context.Context, _, _ string, _, _ time.Time, _ string) ([]models.AggregatedPoint, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSourceTimeoutBoundsStalledReads(t *testing.T) {
	clock := func() time.Time { return svcNow }
	core := repository.NewMemoryCoreStore()
	core.PutBuilding(models.BuildingMetadata{ID: "B1", Name: "HQ", Timezone: "UTC"})
	forecasts := repository.NewMemoryForecastStore()
	manager := modelmanager.New(modelmanager.WithClock(clock))
	engine := forecasting.NewEngine(stalledSource{}, manager, forecasting.WithEngineClock(clock))
	svc := NewForecastService(core, forecasts, stalledSource{}, engine, optimization.NewEngine(), manager,
		WithServiceClock(clock),
		WithSourceTimeout(50*time.Millisecond),
	)
	ctx := context.Background()

	_, err := svc.RequestForecast(ctx, forecastReq("24H"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// no stored forecast, so optimization has to generate one
	_, err = svc.GetOptimization(ctx, "B1", "ops", 24)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	rec, err := forecasts.GetLatest(ctx, "B1", models.ForecastEnergyDemand, "24H")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = svc.TrainModel(ctx, TrainInput{
		BuildingID: "B1",
		ModelType:  models.ModelLSTM,
		Start:      svcNow.Add(-35 * 24 * time.Hour),
		End:        svcNow,
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	_, found := manager.GetModelPerformance("B1", models.ModelLSTM)
	assert.False(t, found)

	// with a stored forecast the baseline read is the one that stalls
	_, err = forecasts.Create(ctx, &models.NewForecast{
		Type:      models.ForecastEnergyDemand,
		Horizon:   "24H",
		IssuedAt:  svcNow,
		ValidFrom: svcNow,
		ValidTo:   svcNow.Add(24 * time.Hour),
		Series:    []models.ForecastPoint{{Timestamp: svcNow.Add(time.Hour), Value: 50000}},
		Scope:     models.Scope{BuildingID: "B1"},
	})
	require.NoError(t, err)
	_, err = svc.GetOptimization(ctx, "B1", "ops", 24)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
