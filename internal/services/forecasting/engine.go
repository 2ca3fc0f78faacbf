package forecasting

import (
	"context"
	"fmt"
	"time"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
	domsvc "EnerCast/internal/domain/service"
	"EnerCast/internal/services/features"
	applogger "EnerCast/pkg/logger"
)

const (
	DefaultAccuracyThreshold = 0.85
	DefaultLookback          = 30 * 24 * time.Hour
	DefaultMinPoints         = 168
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAccuracyThreshold sets the default quality gate threshold.
func WithAccuracyThreshold(th float64) EngineOption {
	return func(e *Engine) {
		if th > 0 {
			e.threshold = th
		}
	}
}

// WithLookback sets how much history is read and the minimum number of points.
func WithLookback(d time.Duration, minPoints int) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.lookback = d
		}
		if minPoints > 0 {
			e.minPoints = minPoints
		}
	}
}

// WithNoise replaces the random perturbation of both predictors.
func WithNoise(fn NoiseFunc) EngineOption {
	return func(e *Engine) {
		e.predictors = map[models.ModelType]domsvc.Predictor{
			models.ModelLSTM:    NewLongHorizon(fn),
			models.ModelXGBoost: NewShortHorizon(fn),
		}
	}
}

// WithPredictor registers a predictor for its model type.
func WithPredictor(p domsvc.Predictor) EngineOption {
	return func(e *Engine) { e.predictors[p.Model()] = p }
}

// WithEngineClock overrides the time source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithEngineLogger injects a structured logger.
func WithEngineLogger(l *applogger.Logger) EngineOption {
	return func(e *Engine) { e.l = l }
}

// WithEngineMetrics injects a metrics recorder.
func WithEngineMetrics(m domrepo.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// Engine turns measurement history into forecast curves.
type Engine struct {
	source     domrepo.MeasurementSource
	registry   domsvc.ModelRegistry
	predictors map[models.ModelType]domsvc.Predictor
	threshold  float64
	lookback   time.Duration
	minPoints  int
	now        func() time.Time
	l          *applogger.Logger
	metrics    domrepo.Metrics
}

// NewEngine creates an Engine with the two built-in predictors.
func NewEngine(source domrepo.MeasurementSource, registry domsvc.ModelRegistry, opts ...EngineOption) *Engine {
	e := &Engine{
		source:   source,
		registry: registry,
		predictors: map[models.ModelType]domsvc.Predictor{
			models.ModelLSTM:    NewLongHorizon(GaussianNoise),
			models.ModelXGBoost: NewShortHorizon(GaussianNoise),
		},
		threshold: DefaultAccuracyThreshold,
		lookback:  DefaultLookback,
		minPoints: DefaultMinPoints,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateForecast reads recent history and predicts the requested horizon.
// It fails with ErrInsufficientData when history is too short.
func (e *Engine) GenerateForecast(ctx context.Context, req domsvc.GenerateRequest) (*domsvc.GeneratedForecast, error) {
	start := time.Now()
	hours := domrepo.ParseHorizon(req.Horizon)

	end := e.now()
	points, err := e.source.GetMeasurements(ctx, req.BuildingID, models.MetricPower, end.Add(-e.lookback), end)
	if err != nil {
		return nil, fmt.Errorf("get measurements: %w", err)
	}
	if len(points) < e.minPoints {
		return nil, fmt.Errorf("%w: %d measurements for building %s, need %d",
			domsvc.ErrInsufficientData, len(points), req.BuildingID, e.minPoints)
	}

	history := features.Preprocess(points)
	modelType := SelectModel(req.Preference, hours)
	predictor, ok := e.predictors[modelType]
	if !ok {
		return nil, fmt.Errorf("no predictor for model %s", modelType)
	}
	handle := e.registry.LoadModel(req.BuildingID, modelType)

	series, accuracy := predictor.Predict(history, hours)

	threshold := req.AccuracyThreshold
	if threshold <= 0 {
		threshold = e.threshold
	}
	check := ValidateResults(series, accuracy, threshold)
	if !check.Valid {
		if e.l != nil {
			e.l.Warn("forecast failed quality gate",
				applogger.String("building_id", req.BuildingID),
				applogger.String("model", string(modelType)),
				applogger.Float64("accuracy", accuracy),
				applogger.Float64("threshold", threshold),
				applogger.Bool("low_accuracy", check.LowAccuracy),
				applogger.Bool("negative_value", check.NegativeValue),
				applogger.Bool("outlier", check.Outlier),
			)
		}
		if e.metrics != nil {
			e.metrics.RecordValidationFailure(string(modelType))
		}
	}

	if e.l != nil {
		e.l.Debug("forecast generated",
			applogger.String("building_id", req.BuildingID),
			applogger.String("forecast_type", string(req.Type)),
			applogger.String("model", string(modelType)),
			applogger.Int("hours_ahead", hours),
			applogger.Int("history_hours", len(history)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return &domsvc.GeneratedForecast{
		Series:       series,
		Accuracy:     accuracy,
		ModelUsed:    modelType,
		ModelVersion: handle.Version,
		Valid:        check.Valid,
	}, nil
}
