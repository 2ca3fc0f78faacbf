package api

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EnerCast/internal/domain/models"
	"EnerCast/internal/repository"
	"EnerCast/internal/service/ratelimit"
	"EnerCast/internal/services/forecasting"
	"EnerCast/internal/services/modelmanager"
	"EnerCast/internal/services/optimization"
	"EnerCast/internal/usecase"
)

var apiNow = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, rl *ratelimit.Limiter) *echo.Echo {
	t.Helper()
	clock := func() time.Time { return apiNow }

	measurements := repository.NewMemoryMeasurementStore()
	var batch []*models.MeasurementPoint
	for i := 240; i >= 1; i-- {
		batch = append(batch, &models.MeasurementPoint{
			BuildingID: "B1",
			DeviceID:   "meter-1",
			Metric:     models.MetricPower,
			Value:      50000,
			Timestamp:  apiNow.Add(-time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, measurements.StoreBatch(context.Background(), batch))

	core := repository.NewMemoryCoreStore()
	core.PutBuilding(models.BuildingMetadata{ID: "B1", Name: "HQ"})

	manager := modelmanager.New(
		modelmanager.WithClock(clock),
		modelmanager.WithRand(rand.New(rand.NewPCG(3, 5))),
	)
	engine := forecasting.NewEngine(measurements, manager,
		forecasting.WithEngineClock(clock),
		forecasting.WithNoise(func(float64) float64 { return 0 }),
	)
	svc := usecase.NewForecastService(core, repository.NewMemoryForecastStore(), measurements,
		engine, optimization.NewEngine(), manager, usecase.WithServiceClock(clock))

	e := echo.New()
	NewForecastEchoHandler(nil, svc, rl).RegisterRoutes(e)
	mh := NewMeasurementsEchoHandler(nil, measurements)
	mh.now = clock
	mh.RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestForecastRoundTrip(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(e, http.MethodPost, "/api/v1/forecast",
		`{"building_id":"B1","horizon":"24H","requested_by":"ops"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created models.ForecastResult
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Len(t, created.Values, 24)
	assert.Equal(t, models.ForecastEnergyDemand, created.Type)

	rec, env = do(e, http.MethodGet, "/api/v1/forecast/"+created.ForecastID+"?requested_by=ops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.ForecastResult
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, created.ForecastID, got.ForecastID)

	rec, env = do(e, http.MethodGet, "/api/v1/forecast/latest/B1?requested_by=ops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, created.ForecastID, got.ForecastID)
}

func TestForecastErrorsMapToStatus(t *testing.T) {
	e := newTestServer(t, nil)

	cases := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"missing requester", http.MethodPost, "/api/v1/forecast", `{"building_id":"B1"}`, http.StatusBadRequest},
		{"bad type", http.MethodPost, "/api/v1/forecast", `{"building_id":"B1","forecast_type":"wind","requested_by":"ops"}`, http.StatusBadRequest},
		{"unknown building", http.MethodPost, "/api/v1/forecast", `{"building_id":"B9","requested_by":"ops"}`, http.StatusBadRequest},
		{"unknown forecast", http.MethodGet, "/api/v1/forecast/nope?requested_by=ops", "", http.StatusNotFound},
		{"untrained model", http.MethodGet, "/api/v1/model/performance?building_id=B1&model_type=LSTM&requested_by=ops", "", http.StatusNotFound},
		{"bad model type", http.MethodGet, "/api/v1/model/performance?building_id=B1&model_type=ARIMA&requested_by=ops", "", http.StatusBadRequest},
		{"short training window", http.MethodPost, "/api/v1/model/train",
			`{"building_id":"B1","model_type":"LSTM","start_date":"2024-03-01T00:00:00Z","end_date":"2024-03-05T00:00:00Z","requested_by":"ops"}`,
			http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := do(e, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.Equal(t, tc.want, env.Status)
		})
	}
}

func TestOptimizationEndpoint(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(e, http.MethodPost, "/api/v1/optimization", `{"building_id":"B1","requested_by":"ops"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum models.OptimizationSummary
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, "B1", sum.BuildingID)
	assert.NotEmpty(t, sum.SourceForecastID)
	assert.False(t, sum.BaselineDegraded)
}

func TestParametersEndpoint(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(e, http.MethodPut, "/api/v1/buildings/B1/parameters",
		`{"default_horizon":"12h","accuracy_threshold":0.9,"requested_by":"ops"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p models.ForecastParameters
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "12H", p.DefaultHorizon)
	assert.Equal(t, models.PreferenceAuto, p.ModelPreference)

	rec, _ = do(e, http.MethodPut, "/api/v1/buildings/B1/parameters",
		`{"accuracy_threshold":1.5,"requested_by":"ops"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(e, http.MethodGet, "/api/v1/buildings/B1/parameters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 0.9, p.AccuracyThreshold)
}

func TestParametersUnknownBuilding(t *testing.T) {
	e := newTestServer(t, nil)

	rec, _ := do(e, http.MethodGet, "/api/v1/buildings/B9/parameters", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_BUILDING_NOT_FOUND")
}

func TestForecastHorizonOverLimit(t *testing.T) {
	e := newTestServer(t, nil)

	rec, _ := do(e, http.MethodPost, "/api/v1/forecast",
		`{"building_id":"B1","horizon":"5000D","requested_by":"ops"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(e, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var h models.HealthReport
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, usecase.ServiceName, h.Service)
}

func TestRateLimitedWrites(t *testing.T) {
	rl := ratelimit.New(0.001, 1, ratelimit.WithClock(func() time.Time { return apiNow }))
	e := newTestServer(t, rl)
	body := `{"building_id":"B1","requested_by":"ops"}`

	rec, _ := do(e, http.MethodPost, "/api/v1/forecast", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(e, http.MethodPost, "/api/v1/forecast", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusTooManyRequests, env.Status)
	assert.Equal(t, "1000", rec.Header().Get(echo.HeaderRetryAfter))

	// reads are not limited
	rec, _ = do(e, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMeasurementsEndpoint(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(e, http.MethodGet, "/api/v1/buildings/B1/measurements?bucket=6h", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Rows  []models.AggregatedPoint `json:"rows"`
		Total int64                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.NotEmpty(t, list.Rows)
	assert.Equal(t, int64(len(list.Rows)), list.Total)
	for _, p := range list.Rows {
		assert.InDelta(t, 50000, p.Avg, 1e-9)
	}

	rec, _ = do(e, http.MethodGet, "/api/v1/buildings/B1/measurements?bucket=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(e, http.MethodGet, "/api/v1/buildings/B1/measurements?from=2024-03-06T00:00:00Z&to=2024-03-05T00:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
