package repository

import (
	"context"
	"errors"
	"time"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
	"EnerCast/pkg/cache"
	applogger "EnerCast/pkg/logger"
)

// CachedForecastStore fronts a ForecastStore with a cache for id and
// latest lookups. Writes go to the backing store first.
type CachedForecastStore struct {
	next  domrepo.ForecastStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

var _ domrepo.ForecastStore = (*CachedForecastStore)(nil)

func NewCachedForecastStore(next domrepo.ForecastStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedForecastStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedForecastStore{next: next, cache: c, ttl: ttl, l: l}
}

func byIDKey(id string) string { return cache.GenerateKey("forecast", "id", id) }

func latestKey(buildingID string, ft models.ForecastType, horizon string) string {
	return cache.GenerateKey("forecast", "latest", buildingID, ft, horizon)
}

func (s *CachedForecastStore) Create(ctx context.Context, f *models.NewForecast) (string, error) {
	id, err := s.next.Create(ctx, f)
	if err != nil {
		return "", err
	}
	rec := &models.ForecastRecord{
		ID: id, Type: f.Type, Horizon: f.Horizon, IssuedAt: f.IssuedAt, RequestedBy: f.RequestedBy,
		Series: f.Series, ValidFrom: f.ValidFrom, ValidTo: f.ValidTo,
		ModelAlgorithm: f.ModelAlgorithm, ModelVersion: f.ModelVersion, Accuracy: f.Accuracy, Scope: f.Scope,
	}
	s.put(ctx, byIDKey(id), rec)
	s.put(ctx, latestKey(f.Scope.BuildingID, f.Type, f.Horizon), rec)
	return id, nil
}

func (s *CachedForecastStore) UpdateSeries(ctx context.Context, id string, series []models.ForecastPoint) (bool, error) {
	ok, err := s.next.UpdateSeries(ctx, id, series)
	if err != nil || !ok {
		return ok, err
	}
	keys := []string{byIDKey(id)}
	var rec models.ForecastRecord
	if err := s.cache.Get(ctx, byIDKey(id), &rec); err == nil {
		keys = append(keys, latestKey(rec.Scope.BuildingID, rec.Type, rec.Horizon))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil && s.l != nil {
		s.l.Warn("forecast cache invalidation failed",
			applogger.String("forecast_id", id),
			applogger.Any("keys", keys),
			applogger.Error(err),
		)
	}
	return true, nil
}

func (s *CachedForecastStore) GetByID(ctx context.Context, id string) (*models.ForecastRecord, error) {
	var rec models.ForecastRecord
	if s.get(ctx, byIDKey(id), &rec) {
		return &rec, nil
	}
	got, err := s.next.GetByID(ctx, id)
	if err != nil || got == nil {
		return got, err
	}
	s.put(ctx, byIDKey(id), got)
	return got, nil
}

func (s *CachedForecastStore) GetLatest(ctx context.Context, buildingID string, ft models.ForecastType, horizon string) (*models.ForecastRecord, error) {
	key := latestKey(buildingID, ft, horizon)
	var rec models.ForecastRecord
	if s.get(ctx, key, &rec) {
		return &rec, nil
	}
	got, err := s.next.GetLatest(ctx, buildingID, ft, horizon)
	if err != nil || got == nil {
		return got, err
	}
	s.put(ctx, key, got)
	return got, nil
}

func (s *CachedForecastStore) GetInRange(ctx context.Context, buildingID string, start, end time.Time, ft models.ForecastType) ([]*models.ForecastRecord, error) {
	return s.next.GetInRange(ctx, buildingID, start, end, ft)
}

func (s *CachedForecastStore) get(ctx context.Context, key string, dest *models.ForecastRecord) bool {
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) && s.l != nil {
		s.l.Warn("forecast cache read failed", applogger.String("key", key), applogger.Error(err))
	}
	return false
}

func (s *CachedForecastStore) put(ctx context.Context, key string, rec *models.ForecastRecord) {
	if err := s.cache.Set(ctx, key, rec, s.ttl); err != nil && s.l != nil {
		s.l.Warn("forecast cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}
