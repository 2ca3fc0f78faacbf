package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
)

// MemoryMeasurementStore keeps measurements in process. Used for the
// "memory" backend and in tests.
type MemoryMeasurementStore struct {
	mu     sync.RWMutex
	points map[string][]models.MeasurementPoint // by building
}

func NewMemoryMeasurementStore() *MemoryMeasurementStore {
	return &MemoryMeasurementStore{points: make(map[string][]models.MeasurementPoint)}
}

var _ domrepo.MeasurementStore = (*MemoryMeasurementStore)(nil)

func (s *MemoryMeasurementStore) Store(_ context.Context, m *models.MeasurementPoint) error {
	if m == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(*m)
	return nil
}

func (s *MemoryMeasurementStore) StoreBatch(_ context.Context, ms []*models.MeasurementPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		if m != nil {
			s.insert(*m)
		}
	}
	return nil
}

// insert keeps each building's slice ordered by timestamp.
func (s *MemoryMeasurementStore) insert(m models.MeasurementPoint) {
	pts := s.points[m.BuildingID]
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Timestamp.After(m.Timestamp) })
	pts = append(pts, models.MeasurementPoint{})
	copy(pts[i+1:], pts[i:])
	pts[i] = m
	s.points[m.BuildingID] = pts
}

func (s *MemoryMeasurementStore) GetMeasurements(ctx context.Context, buildingID, metric string, start, end time.Time, deviceIDs ...string) ([]models.MeasurementPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var devices map[string]struct{}
	if len(deviceIDs) > 0 {
		devices = make(map[string]struct{}, len(deviceIDs))
		for _, d := range deviceIDs {
			devices[d] = struct{}{}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MeasurementPoint
	for _, p := range s.points[buildingID] {
		if p.Metric != metric || p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		if devices != nil {
			if _, ok := devices[p.DeviceID]; !ok {
				continue
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryMeasurementStore) GetAggregated(ctx context.Context, buildingID, metric string, start, end time.Time, bucket string) ([]models.AggregatedPoint, error) {
	width, err := ParseBucket(bucket)
	if err != nil {
		return nil, err
	}
	pts, err := s.GetMeasurements(ctx, buildingID, metric, start, end)
	if err != nil {
		return nil, err
	}
	var out []models.AggregatedPoint
	for _, p := range pts {
		ts := p.Timestamp.Truncate(width)
		n := len(out)
		if n == 0 || !out[n-1].Timestamp.Equal(ts) {
			out = append(out, models.AggregatedPoint{Timestamp: ts, Min: p.Value, Max: p.Value})
			n++
		}
		a := &out[n-1]
		a.Avg += p.Value
		a.Count++
		if p.Value < a.Min {
			a.Min = p.Value
		}
		if p.Value > a.Max {
			a.Max = p.Value
		}
	}
	for i := range out {
		out[i].Avg /= float64(out[i].Count)
	}
	return out, nil
}

func (s *MemoryMeasurementStore) Close() error { return nil }

// MemoryForecastStore keeps forecast records in process.
type MemoryForecastStore struct {
	mu      sync.RWMutex
	records map[string]*models.ForecastRecord
	order   []string
}

func NewMemoryForecastStore() *MemoryForecastStore {
	return &MemoryForecastStore{records: make(map[string]*models.ForecastRecord)}
}

var _ domrepo.ForecastStore = (*MemoryForecastStore)(nil)

func (s *MemoryForecastStore) Create(_ context.Context, f *models.NewForecast) (string, error) {
	id := uuid.NewString()
	rec := &models.ForecastRecord{
		ID:             id,
		Type:           f.Type,
		Horizon:        f.Horizon,
		IssuedAt:       f.IssuedAt,
		RequestedBy:    f.RequestedBy,
		Series:         append([]models.ForecastPoint(nil), f.Series...),
		ValidFrom:      f.ValidFrom,
		ValidTo:        f.ValidTo,
		ModelAlgorithm: f.ModelAlgorithm,
		ModelVersion:   f.ModelVersion,
		Accuracy:       f.Accuracy,
		Scope:          f.Scope,
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.records[id] = rec
	s.order = append(s.order, id)
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryForecastStore) UpdateSeries(_ context.Context, id string, series []models.ForecastPoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	cp := *rec
	cp.Series = append([]models.ForecastPoint(nil), series...)
	s.records[id] = &cp
	return true, nil
}

func (s *MemoryForecastStore) GetByID(_ context.Context, id string) (*models.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryForecastStore) GetLatest(_ context.Context, buildingID string, ft models.ForecastType, horizon string) (*models.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.ForecastRecord
	for _, id := range s.order {
		r := s.records[id]
		if r.Scope.BuildingID != buildingID || r.Type != ft || r.Horizon != horizon {
			continue
		}
		if best == nil || !r.IssuedAt.Before(best.IssuedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// GetInRange returns forecasts whose validity window overlaps [start, end], newest first.
func (s *MemoryForecastStore) GetInRange(_ context.Context, buildingID string, start, end time.Time, ft models.ForecastType) ([]*models.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ForecastRecord
	for _, id := range s.order {
		r := s.records[id]
		if r.Scope.BuildingID != buildingID || (ft != "" && r.Type != ft) {
			continue
		}
		if r.ValidTo.Before(start) || r.ValidFrom.After(end) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

// MemoryCoreStore serves building and device metadata from process memory.
type MemoryCoreStore struct {
	mu        sync.RWMutex
	buildings map[string]models.BuildingMetadata
	devices   map[string]models.DeviceMetadata
}

func NewMemoryCoreStore() *MemoryCoreStore {
	return &MemoryCoreStore{
		buildings: make(map[string]models.BuildingMetadata),
		devices:   make(map[string]models.DeviceMetadata),
	}
}

var _ domrepo.CoreMetadataSource = (*MemoryCoreStore)(nil)

func (s *MemoryCoreStore) PutBuilding(b models.BuildingMetadata) {
	s.mu.Lock()
	s.buildings[b.ID] = b
	s.mu.Unlock()
}

func (s *MemoryCoreStore) PutDevice(d models.DeviceMetadata) {
	s.mu.Lock()
	s.devices[d.ID] = d
	s.mu.Unlock()
}

func (s *MemoryCoreStore) GetBuilding(_ context.Context, id string) (*models.BuildingMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buildings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *MemoryCoreStore) GetDevices(_ context.Context, buildingID, deviceType, status string) ([]models.DeviceMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DeviceMetadata
	for _, d := range s.devices {
		if d.BuildingID != buildingID {
			continue
		}
		if deviceType != "" && d.Type != deviceType {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (s *MemoryCoreStore) GetDevice(_ context.Context, id string) (*models.DeviceMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}
