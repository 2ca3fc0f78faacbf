package modelmanager

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"EnerCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	return New(
		WithClock(func() time.Time { return now }),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
}

func TestLoadModelIsIdempotent(t *testing.T) {
	m := newTestManager()

	h1 := m.LoadModel("B1", models.ModelLSTM)
	h2 := m.LoadModel("B1", models.ModelLSTM)

	assert.Equal(t, h1, h2)
	assert.Equal(t, DefaultVersion, h1.Version)
	assert.Equal(t, models.ModelStatusLoaded, h1.Status)
	assert.Equal(t, 1, m.LoadedCount())

	m.LoadModel("B1", models.ModelXGBoost)
	assert.Equal(t, 2, m.LoadedCount())
}

func TestTrainModelBumpsPatch(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	r1, err := m.TrainModel(ctx, "B1", models.ModelLSTM, 800)
	require.NoError(t, err)
	r2, err := m.TrainModel(ctx, "B1", models.ModelLSTM, 800)
	require.NoError(t, err)

	assert.Equal(t, "1.4.3", r1.Version)
	assert.Equal(t, "1.4.4", r2.Version)
	assert.Equal(t, "1.4.4", m.CurrentVersion("B1", models.ModelLSTM))
	assert.Equal(t, 800, r2.TrainingSamples)

	h := m.LoadModel("B1", models.ModelLSTM)
	assert.Equal(t, models.ModelStatusTrained, h.Status)
	require.NotNil(t, h.TrainedAt)
}

func TestTrainModelMetricRanges(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		lstm, err := m.TrainModel(ctx, "B1", models.ModelLSTM, 720)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, lstm.Accuracy, 0.86)
		assert.LessOrEqual(t, lstm.Accuracy, 0.92)
		assert.GreaterOrEqual(t, lstm.MAPE, 8.0)
		assert.LessOrEqual(t, lstm.MAPE, 15.0)
		assert.GreaterOrEqual(t, lstm.RMSE, 6.0)
		assert.LessOrEqual(t, lstm.RMSE, 9.0)

		xgb, err := m.TrainModel(ctx, "B1", models.ModelXGBoost, 720)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, xgb.Accuracy, 0.82)
		assert.LessOrEqual(t, xgb.Accuracy, 0.88)
		assert.GreaterOrEqual(t, xgb.MAPE, 12.0)
		assert.LessOrEqual(t, xgb.MAPE, 18.0)
	}
}

func TestTrainModelCancelledContextPublishesNothing(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.TrainModel(ctx, "B1", models.ModelLSTM, 720)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, DefaultVersion, m.CurrentVersion("B1", models.ModelLSTM))
}

func TestTrainModelUnknownType(t *testing.T) {
	m := newTestManager()
	_, err := m.TrainModel(context.Background(), "B1", models.ModelType("ARIMA"), 720)
	assert.Error(t, err)
}

func TestGetModelPerformance(t *testing.T) {
	m := newTestManager()

	_, found := m.GetModelPerformance("B1", models.ModelLSTM)
	assert.False(t, found)

	m.LoadModel("B1", models.ModelLSTM)
	perf, found := m.GetModelPerformance("B1", models.ModelLSTM)
	require.True(t, found)
	assert.Zero(t, perf.Metrics.Accuracy)
	assert.Equal(t, models.HealthNeedsRetraining, perf.Status)

	res, err := m.TrainModel(context.Background(), "B1", models.ModelLSTM, 720)
	require.NoError(t, err)
	perf, found = m.GetModelPerformance("B1", models.ModelLSTM)
	require.True(t, found)
	assert.Equal(t, res.Version, perf.Version)
	assert.Equal(t, res.Accuracy, perf.Metrics.Accuracy)
	// LSTM accuracy is always above 0.86.
	assert.Equal(t, models.HealthHealthy, perf.Status)
}

func TestConcurrentTrainingKeepsVersionsConsistent(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := m.TrainModel(ctx, "B1", models.ModelXGBoost, 720)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			perf, found := m.GetModelPerformance("B1", models.ModelXGBoost)
			if found && perf.Version != DefaultVersion {
				assert.NotZero(t, perf.Metrics.Accuracy, "version %s has no metrics", perf.Version)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, fmt.Sprintf("1.4.%d", 2+n), m.CurrentVersion("B1", models.ModelXGBoost))
}

func TestBumpPatchRejectsMalformed(t *testing.T) {
	_, err := bumpPatch("1.4")
	assert.Error(t, err)
	_, err = bumpPatch("1.4.x")
	assert.Error(t, err)
	v, err := bumpPatch("2.0.9")
	require.NoError(t, err)
	assert.Equal(t, "2.0.10", v)
}
