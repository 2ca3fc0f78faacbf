package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
	domsvc "EnerCast/internal/domain/service"
	"EnerCast/internal/services/optimization"
	applogger "EnerCast/pkg/logger"
)

const (
	ServiceName    = "forecast-service"
	ServiceVersion = "1.0.0"

	DefaultFreshness        = time.Hour
	DefaultFallbackBaseline = 50000.0 // watts
	MinTrainingSpan         = 30 * 24 * time.Hour
	MinTrainingSamples      = 720
	optimizationHorizon     = "24H"
)

// ModelService is the part of the model manager the service uses.
type ModelService interface {
	TrainModel(ctx context.Context, buildingID string, modelType models.ModelType, samples int) (*models.TrainingResult, error)
	GetModelPerformance(buildingID string, modelType models.ModelType) (models.ModelPerformance, bool)
	LoadedCount() int
}

// Recommender turns a forecast curve into recommendations.
type Recommender interface {
	GenerateRecommendations(buildingID string, series []models.ForecastPoint, baselineW float64, timeRangeHours int) []models.Recommendation
}

// TrainInput describes a training request.
type TrainInput struct {
	BuildingID  string
	ModelType   models.ModelType
	Start       time.Time
	End         time.Time
	RequestedBy string
}

// ServiceOption configures a ForecastService.
type ServiceOption func(*ForecastService)

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *ForecastService) { s.now = now }
}

// WithFreshness sets how long a stored forecast is reused.
func WithFreshness(d time.Duration) ServiceOption {
	return func(s *ForecastService) {
		if d > 0 {
			s.freshness = d
		}
	}
}

// WithSourceTimeout bounds each call into the measurement source.
func WithSourceTimeout(d time.Duration) ServiceOption {
	return func(s *ForecastService) { s.sourceTimeout = d }
}

// WithFallbackBaseline sets the baseline used when no recent measurements exist.
func WithFallbackBaseline(w float64) ServiceOption {
	return func(s *ForecastService) {
		if w > 0 {
			s.fallbackBaseline = w
		}
	}
}

// WithDefaultParameters sets parameters for buildings without overrides.
func WithDefaultParameters(p models.ForecastParameters) ServiceOption {
	return func(s *ForecastService) { s.defaults = p }
}

func WithEventPublisher(p domrepo.EventPublisher) ServiceOption {
	return func(s *ForecastService) { s.events = p }
}

// WithTrainingLock serialises training per key across replicas.
func WithTrainingLock(l domrepo.Locker, ttl time.Duration) ServiceOption {
	return func(s *ForecastService) {
		s.locker = l
		s.lockTTL = ttl
	}
}

func WithServiceMetrics(m domrepo.Metrics) ServiceOption {
	return func(s *ForecastService) { s.metrics = m }
}

func WithServiceLogger(l *applogger.Logger) ServiceOption {
	return func(s *ForecastService) { s.l = l }
}

// ForecastService orchestrates forecasting, optimization and model management.
type ForecastService struct {
	core         domrepo.CoreMetadataSource
	forecasts    domrepo.ForecastStore
	measurements domrepo.MeasurementSource
	engine       domsvc.ForecastGenerator
	optimizer    Recommender
	models       ModelService

	events  domrepo.EventPublisher
	locker  domrepo.Locker
	lockTTL time.Duration
	metrics domrepo.Metrics
	l       *applogger.Logger

	now              func() time.Time
	startedAt        time.Time
	freshness        time.Duration
	sourceTimeout    time.Duration
	fallbackBaseline float64

	paramsMu sync.RWMutex
	defaults models.ForecastParameters
	params   map[string]models.ForecastParameters
}

// NewForecastService creates a ForecastService.
func NewForecastService(
	core domrepo.CoreMetadataSource,
	forecasts domrepo.ForecastStore,
	measurements domrepo.MeasurementSource,
	engine domsvc.ForecastGenerator,
	optimizer Recommender,
	modelSvc ModelService,
	opts ...ServiceOption,
) *ForecastService {
	s := &ForecastService{
		core:             core,
		forecasts:        forecasts,
		measurements:     measurements,
		engine:           engine,
		optimizer:        optimizer,
		models:           modelSvc,
		now:              time.Now,
		freshness:        DefaultFreshness,
		fallbackBaseline: DefaultFallbackBaseline,
		lockTTL:          10 * time.Minute,
		defaults: models.ForecastParameters{
			DefaultHorizon:    "24H",
			AccuracyThreshold: 0.85,
			ModelPreference:   models.PreferenceAuto,
		},
		params: make(map[string]models.ForecastParameters),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s
}

// RequestForecast returns a fresh stored forecast for the same building, type
// and horizon when one exists, otherwise generates and stores a new one.
func (s *ForecastService) RequestForecast(ctx context.Context, req *models.ForecastRequest) (*models.ForecastResult, error) {
	ft := models.ForecastType(req.Type)
	if ft == "" {
		ft = models.ForecastEnergyDemand
	}
	if !ft.IsValid() {
		return nil, fmt.Errorf("%w: unknown forecast type %q", domsvc.ErrValidation, req.Type)
	}
	params := s.parametersFor(req.BuildingID)
	horizon := req.Horizon
	if horizon == "" {
		horizon = params.DefaultHorizon
	}
	horizon = domrepo.NormalizeHorizon(horizon)
	if domrepo.ExceedsMaxHorizon(horizon) {
		return nil, fmt.Errorf("%w: horizon %q exceeds %d hours", domsvc.ErrValidation, horizon, domrepo.MaxHorizonHours)
	}

	if err := s.requireBuilding(ctx, req.BuildingID); err != nil {
		return nil, err
	}

	latest, err := s.forecasts.GetLatest(ctx, req.BuildingID, ft, horizon)
	if err != nil {
		return nil, fmt.Errorf("get latest forecast: %w", err)
	}
	now := s.now()
	if latest != nil && now.Sub(latest.IssuedAt) < s.freshness {
		if s.metrics != nil {
			s.metrics.RecordForecastCacheHit(req.BuildingID)
		}
		if s.l != nil {
			s.l.Debug("reusing cached forecast",
				applogger.String("forecast_id", latest.ID),
				applogger.String("building_id", req.BuildingID),
			)
		}
		return latest.ToResult(), nil
	}

	start := time.Now()
	genCtx, cancel := s.sourceContext(ctx)
	gen, err := s.engine.GenerateForecast(genCtx, domsvc.GenerateRequest{
		BuildingID:        req.BuildingID,
		Horizon:           horizon,
		Type:              ft,
		Preference:        params.ModelPreference,
		AccuracyThreshold: params.AccuracyThreshold,
	})
	cancel()
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("forecast_generate")
		}
		if errors.Is(err, domsvc.ErrInsufficientData) {
			return nil, fmt.Errorf("%w: cannot generate forecast: %w", domsvc.ErrValidation, err)
		}
		return nil, fmt.Errorf("generate forecast: %w", err)
	}

	hours := domrepo.ParseHorizon(horizon)
	nf := &models.NewForecast{
		Type:           ft,
		Horizon:        horizon,
		IssuedAt:       now,
		RequestedBy:    req.RequestedBy,
		Series:         gen.Series,
		ValidFrom:      now,
		ValidTo:        now.Add(time.Duration(hours) * time.Hour),
		ModelAlgorithm: string(gen.ModelUsed),
		ModelVersion:   gen.ModelVersion,
		Accuracy:       gen.Accuracy,
		Scope: models.Scope{
			BuildingID: req.BuildingID,
			RoomID:     req.RoomID,
			FloorID:    req.FloorID,
		},
	}
	id, err := s.forecasts.Create(ctx, nf)
	if err != nil {
		return nil, fmt.Errorf("store forecast: %w", err)
	}
	rec := recordFrom(id, nf)

	if s.metrics != nil {
		s.metrics.RecordForecastGenerated(req.BuildingID, string(gen.ModelUsed))
		s.metrics.RecordLatency("forecast_request", time.Since(start).Seconds())
	}
	if s.l != nil {
		s.l.Info("forecast created",
			applogger.String("forecast_id", id),
			applogger.String("building_id", req.BuildingID),
			applogger.String("horizon", horizon),
			applogger.String("model", string(gen.ModelUsed)),
			applogger.String("requested_by", req.RequestedBy),
			applogger.Bool("passed_quality_gate", gen.Valid),
		)
	}
	s.publishCreated(ctx, rec)
	return rec.ToResult(), nil
}

// GetForecast returns a stored forecast by id.
func (s *ForecastService) GetForecast(ctx context.Context, id, requestedBy string) (*models.ForecastResult, error) {
	rec, err := s.forecasts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get forecast: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domsvc.ErrForecastNotFound, id)
	}
	if s.l != nil {
		s.l.Debug("forecast read", applogger.String("forecast_id", id), applogger.String("requested_by", requestedBy))
	}
	return rec.ToResult(), nil
}

// GetLatestForecast returns the most recent forecast for the building, type and horizon.
func (s *ForecastService) GetLatestForecast(ctx context.Context, buildingID string, ft models.ForecastType, horizon, requestedBy string) (*models.ForecastResult, error) {
	rec, err := s.forecasts.GetLatest(ctx, buildingID, ft, domrepo.NormalizeHorizon(horizon))
	if err != nil {
		return nil, fmt.Errorf("get latest forecast: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: no %s forecast for building %s", domsvc.ErrForecastNotFound, ft, buildingID)
	}
	return rec.ToResult(), nil
}

// GetOptimization builds recommendations from the latest day-ahead demand
// forecast, generating one when none is stored.
func (s *ForecastService) GetOptimization(ctx context.Context, buildingID, requestedBy string, timeRangeHours int) (*models.OptimizationSummary, error) {
	if timeRangeHours <= 0 {
		timeRangeHours = 24
	}
	rec, err := s.forecasts.GetLatest(ctx, buildingID, models.ForecastEnergyDemand, optimizationHorizon)
	if err != nil {
		return nil, fmt.Errorf("get latest forecast: %w", err)
	}

	var forecastID string
	var series []models.ForecastPoint
	if rec != nil {
		forecastID, series = rec.ID, rec.Series
	} else {
		res, err := s.RequestForecast(ctx, &models.ForecastRequest{
			BuildingID:  buildingID,
			Horizon:     optimizationHorizon,
			Type:        string(models.ForecastEnergyDemand),
			RequestedBy: requestedBy,
		})
		if err != nil {
			return nil, err
		}
		forecastID, series = res.ForecastID, res.Values
	}

	baseline, degraded, err := s.currentBaseline(ctx, buildingID)
	if err != nil {
		return nil, err
	}

	recs := s.optimizer.GenerateRecommendations(buildingID, series, baseline, timeRangeHours)
	savings := optimization.CalculateSavings(recs)
	if s.metrics != nil {
		s.metrics.RecordEstimatedSavings(buildingID, savings.Daily)
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	return &models.OptimizationSummary{
		BuildingID:       buildingID,
		Recommendations:  recs,
		Savings:          savings,
		SourceForecastID: forecastID,
		BaselineW:        baseline,
		BaselineDegraded: degraded,
		GeneratedAt:      s.now(),
	}, nil
}

// currentBaseline is the mean power over the trailing day. degraded is true
// when no readings exist and the fallback was used.
func (s *ForecastService) currentBaseline(ctx context.Context, buildingID string) (float64, bool, error) {
	end := s.now()
	mctx, cancel := s.sourceContext(ctx)
	defer cancel()
	points, err := s.measurements.GetMeasurements(mctx, buildingID, models.MetricPower, end.Add(-24*time.Hour), end)
	if err != nil {
		return 0, false, fmt.Errorf("get baseline measurements: %w", err)
	}
	if len(points) == 0 {
		if s.l != nil {
			s.l.Warn("no recent measurements, using fallback baseline",
				applogger.String("building_id", buildingID),
				applogger.Float64("baseline_w", s.fallbackBaseline),
			)
		}
		if s.metrics != nil {
			s.metrics.RecordError("baseline_fallback")
		}
		return s.fallbackBaseline, true, nil
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points)), false, nil
}

// TrainModel retrains a building model from at least 30 days of history.
func (s *ForecastService) TrainModel(ctx context.Context, in TrainInput) (*models.TrainingResult, error) {
	if !in.ModelType.IsValid() {
		return nil, fmt.Errorf("%w: unknown model type %q", domsvc.ErrValidation, in.ModelType)
	}
	if in.End.Sub(in.Start) < MinTrainingSpan {
		return nil, fmt.Errorf("%w: training period must be at least 30 days", domsvc.ErrValidation)
	}

	if s.locker != nil {
		lockKey := fmt.Sprintf("train:%s:%s", in.BuildingID, in.ModelType)
		ok, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
		switch {
		case err != nil:
			if s.l != nil {
				s.l.Warn("training lock unavailable", applogger.String("key", lockKey), applogger.Error(err))
			}
		case !ok:
			return nil, fmt.Errorf("%w: %s %s", domsvc.ErrTrainingInProgress, in.BuildingID, in.ModelType)
		default:
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil && s.l != nil {
					s.l.Warn("training unlock failed", applogger.String("key", lockKey), applogger.Error(err))
				}
			}()
		}
	}

	mctx, cancel := s.sourceContext(ctx)
	points, err := s.measurements.GetMeasurements(mctx, in.BuildingID, models.MetricPower, in.Start, in.End)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("get training measurements: %w", err)
	}
	if len(points) < MinTrainingSamples {
		return nil, fmt.Errorf("%w: %d measurements, need at least %d", domsvc.ErrInsufficientData, len(points), MinTrainingSamples)
	}

	res, err := s.models.TrainModel(ctx, in.BuildingID, in.ModelType, len(points))
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	if s.l != nil {
		s.l.Info("model training completed",
			applogger.String("building_id", in.BuildingID),
			applogger.String("model_type", string(in.ModelType)),
			applogger.String("version", res.Version),
			applogger.String("requested_by", in.RequestedBy),
		)
	}
	return res, nil
}

// GetModelPerformance fails with ErrModelNotTrained for unknown models.
func (s *ForecastService) GetModelPerformance(ctx context.Context, buildingID string, modelType models.ModelType, requestedBy string) (*models.ModelPerformance, error) {
	perf, found := s.models.GetModelPerformance(buildingID, modelType)
	if !found {
		return nil, fmt.Errorf("%w: %s for building %s", domsvc.ErrModelNotTrained, modelType, buildingID)
	}
	return &perf, nil
}

// ConfigureForecastParameters stores per-building forecasting overrides.
func (s *ForecastService) ConfigureForecastParameters(ctx context.Context, buildingID string, p models.ForecastParameters, requestedBy string) error {
	if p.ModelPreference == "" {
		p.ModelPreference = models.PreferenceAuto
	}
	if p.DefaultHorizon == "" {
		p.DefaultHorizon = s.defaults.DefaultHorizon
	}
	switch {
	case !p.ModelPreference.IsValid():
		return fmt.Errorf("%w: unknown model preference %q", domsvc.ErrValidation, p.ModelPreference)
	case p.AccuracyThreshold <= 0 || p.AccuracyThreshold > 1:
		return fmt.Errorf("%w: accuracy threshold must be in (0, 1]", domsvc.ErrValidation)
	case !domrepo.IsValidHorizon(p.DefaultHorizon):
		return fmt.Errorf("%w: invalid horizon %q", domsvc.ErrValidation, p.DefaultHorizon)
	}
	if err := s.requireBuilding(ctx, buildingID); err != nil {
		return err
	}
	p.DefaultHorizon = domrepo.NormalizeHorizon(p.DefaultHorizon)

	s.paramsMu.Lock()
	s.params[buildingID] = p
	s.paramsMu.Unlock()

	if s.l != nil {
		s.l.Info("forecast parameters updated",
			applogger.String("building_id", buildingID),
			applogger.String("default_horizon", p.DefaultHorizon),
			applogger.Float64("accuracy_threshold", p.AccuracyThreshold),
			applogger.String("model_preference", string(p.ModelPreference)),
			applogger.String("requested_by", requestedBy),
		)
	}
	return nil
}

// ForecastParameters returns the effective parameters for a known building.
func (s *ForecastService) ForecastParameters(ctx context.Context, buildingID string) (models.ForecastParameters, error) {
	if err := s.requireBuilding(ctx, buildingID); err != nil {
		return models.ForecastParameters{}, err
	}
	return s.parametersFor(buildingID), nil
}

// HealthCheck reports uptime and the number of cached models.
func (s *ForecastService) HealthCheck(_ context.Context) models.HealthReport {
	return models.HealthReport{
		Status:        "healthy",
		Service:       ServiceName,
		Version:       ServiceVersion,
		UptimeSeconds: s.now().Sub(s.startedAt).Seconds(),
		ModelsLoaded:  s.models.LoadedCount(),
		StartedAt:     s.startedAt,
	}
}

func (s *ForecastService) parametersFor(buildingID string) models.ForecastParameters {
	s.paramsMu.RLock()
	defer s.paramsMu.RUnlock()
	if p, ok := s.params[buildingID]; ok {
		return p
	}
	return s.defaults
}

func (s *ForecastService) requireBuilding(ctx context.Context, buildingID string) error {
	b, err := s.core.GetBuilding(ctx, buildingID)
	if err != nil {
		return fmt.Errorf("get building: %w", err)
	}
	if b == nil {
		return fmt.Errorf("%w: %w: %s", domsvc.ErrValidation, domsvc.ErrBuildingNotFound, buildingID)
	}
	return nil
}

func (s *ForecastService) sourceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.sourceTimeout > 0 {
		return context.WithTimeout(ctx, s.sourceTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *ForecastService) publishCreated(ctx context.Context, rec *models.ForecastRecord) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishForecastCreated(ctx, rec); err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("event_publish")
		}
		if s.l != nil {
			s.l.Warn("forecast event publish failed", applogger.String("forecast_id", rec.ID), applogger.Error(err))
		}
	}
}

func recordFrom(id string, nf *models.NewForecast) *models.ForecastRecord {
	return &models.ForecastRecord{
		ID:             id,
		Type:           nf.Type,
		Horizon:        nf.Horizon,
		IssuedAt:       nf.IssuedAt,
		RequestedBy:    nf.RequestedBy,
		Series:         nf.Series,
		ValidFrom:      nf.ValidFrom,
		ValidTo:        nf.ValidTo,
		ModelAlgorithm: nf.ModelAlgorithm,
		ModelVersion:   nf.ModelVersion,
		Accuracy:       nf.Accuracy,
		Scope:          nf.Scope,
	}
}
