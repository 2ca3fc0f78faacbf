package modelmanager

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"EnerCast/internal/domain/models"
	applogger "EnerCast/pkg/logger"
)

// DefaultVersion is assigned to handles that have never been trained.
const DefaultVersion = "1.4.2"

// HealthyAccuracy is the accuracy a model must exceed to be reported healthy.
const HealthyAccuracy = 0.85

type metricRange struct {
	accuracyMin, accuracySpan float64
	mapeMax, mapeSpan         float64
	rmseMin, rmseSpan         float64
	duration                  float64
}

var ranges = map[models.ModelType]metricRange{
	models.ModelLSTM:    {0.86, 0.06, 15, 7, 6, 3, 60},
	models.ModelXGBoost: {0.82, 0.06, 18, 6, 7, 4, 30},
}

type key struct {
	building string
	model    models.ModelType
}

type entry struct {
	mu      sync.RWMutex
	handle  models.ModelHandle
	metrics map[string]models.PerformanceMetrics // by version
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRand overrides the random source used to synthesize training metrics.
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) { m.rnd = r }
}

// WithDefaultVersion sets the version given to newly loaded handles.
func WithDefaultVersion(v string) Option {
	return func(m *Manager) {
		if v != "" {
			m.defaultVersion = v
		}
	}
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(m *Manager) { m.l = l }
}

// Manager caches model handles, versions and metrics per (building, model type).
// Each key has its own lock; the map itself is guarded separately.
type Manager struct {
	mu             sync.Mutex
	entries        map[key]*entry
	defaultVersion string
	now            func() time.Time
	rndMu          sync.Mutex
	rnd            *rand.Rand
	l              *applogger.Logger
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		entries:        make(map[key]*entry),
		defaultVersion: DefaultVersion,
		now:            time.Now,
		rnd:            rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// entryFor returns the entry for k, creating and initialising it when absent.
func (m *Manager) entryFor(k key) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[k]
	if !ok {
		e = &entry{
			handle: models.ModelHandle{
				ModelType:       k.model,
				BuildingID:      k.building,
				Version:         m.defaultVersion,
				LoadedAt:        m.now(),
				Status:          models.ModelStatusLoaded,
				TrainingSamples: 720,
			},
			metrics: make(map[string]models.PerformanceMetrics),
		}
		m.entries[k] = e
		if m.l != nil {
			m.l.Info("model loaded",
				applogger.String("building_id", k.building),
				applogger.String("model_type", string(k.model)),
				applogger.String("version", m.defaultVersion),
			)
		}
	}
	return e
}

func (m *Manager) lookup(k key) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[k]
	return e, ok
}

// LoadModel returns the cached handle, creating it on first use.
func (m *Manager) LoadModel(buildingID string, modelType models.ModelType) models.ModelHandle {
	e := m.entryFor(key{buildingID, modelType})
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handle
}

// TrainModel bumps the patch version and records new metrics. The new handle
// and its metrics become visible together.
func (m *Manager) TrainModel(ctx context.Context, buildingID string, modelType models.ModelType, samples int) (*models.TrainingResult, error) {
	r, ok := ranges[modelType]
	if !ok {
		return nil, fmt.Errorf("unknown model type %q", modelType)
	}
	e := m.entryFor(key{buildingID, modelType})

	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := bumpPatch(e.handle.Version)
	if err != nil {
		return nil, fmt.Errorf("bump version: %w", err)
	}
	metrics := m.sample(r, samples)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trainedAt := metrics.TrainedAt
	e.handle.Version = next
	e.handle.Status = models.ModelStatusTrained
	e.handle.TrainedAt = &trainedAt
	e.handle.TrainingSamples = samples
	e.metrics[next] = metrics

	if m.l != nil {
		m.l.Info("model trained",
			applogger.String("building_id", buildingID),
			applogger.String("model_type", string(modelType)),
			applogger.String("version", next),
			applogger.Float64("accuracy", metrics.Accuracy),
		)
	}
	return &models.TrainingResult{
		Version:         next,
		Accuracy:        metrics.Accuracy,
		MAPE:            metrics.MAPE,
		RMSE:            metrics.RMSE,
		TrainingSamples: samples,
		DurationSeconds: r.duration,
	}, nil
}

func (m *Manager) sample(r metricRange, samples int) models.PerformanceMetrics {
	m.rndMu.Lock()
	a, b, c := m.rnd.Float64(), m.rnd.Float64(), m.rnd.Float64()
	m.rndMu.Unlock()
	return models.PerformanceMetrics{
		Accuracy:        round(r.accuracyMin+a*r.accuracySpan, 4),
		MAPE:            round(r.mapeMax-b*r.mapeSpan, 2),
		RMSE:            round(r.rmseMin+c*r.rmseSpan, 2),
		TrainingSamples: samples,
		TrainedAt:       m.now(),
	}
}

// GetModelPerformance returns the metrics of the current version. found is
// false only when the key has never been loaded or trained.
func (m *Manager) GetModelPerformance(buildingID string, modelType models.ModelType) (models.ModelPerformance, bool) {
	e, ok := m.lookup(key{buildingID, modelType})
	if !ok {
		return models.ModelPerformance{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	metrics := e.metrics[e.handle.Version]
	status := models.HealthNeedsRetraining
	if metrics.Accuracy > HealthyAccuracy {
		status = models.HealthHealthy
	}
	return models.ModelPerformance{
		BuildingID:  buildingID,
		ModelType:   modelType,
		Version:     e.handle.Version,
		Metrics:     metrics,
		Status:      status,
		EvaluatedAt: m.now(),
	}, true
}

// CurrentVersion returns the cached version for the key, or the default.
func (m *Manager) CurrentVersion(buildingID string, modelType models.ModelType) string {
	e, ok := m.lookup(key{buildingID, modelType})
	if !ok {
		return m.defaultVersion
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handle.Version
}

// LoadedCount returns the number of cached handles.
func (m *Manager) LoadedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func bumpPatch(v string) (string, error) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed version %q", v)
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", fmt.Errorf("malformed version %q: %w", v, err)
	}
	parts[2] = strconv.Itoa(patch + 1)
	return strings.Join(parts, "."), nil
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
