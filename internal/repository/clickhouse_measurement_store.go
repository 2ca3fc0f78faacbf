package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
	pkgch "EnerCast/pkg/clickhouse"
	applogger "EnerCast/pkg/logger"
)

const defaultMeasurementTable = "enercast.measurements"

// MeasurementSchema creates the measurement database and table.
func MeasurementSchema(table string) []string {
	if table == "" {
		table = defaultMeasurementTable
	}
	db := "enercast"
	if i := strings.IndexByte(table, '.'); i > 0 {
		db = table[:i]
	}
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            ts DateTime64(3, 'UTC'),
            building_id String,
            device_id String,
            metric LowCardinality(String),
            value Float64,
            tags String
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (building_id, metric, ts)`, table),
	}
}

// CHMeasurementStore implements MeasurementStore backed by ClickHouse.
type CHMeasurementStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.MeasurementStore = (*CHMeasurementStore)(nil)

func NewCHMeasurementStore(ch *pkgch.Client, table string) *CHMeasurementStore {
	if table == "" {
		table = defaultMeasurementTable
	}
	return &CHMeasurementStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHMeasurementStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHMeasurementStore) Store(ctx context.Context, m *models.MeasurementPoint) error {
	return s.StoreBatch(ctx, []*models.MeasurementPoint{m})
}

func (s *CHMeasurementStore) StoreBatch(ctx context.Context, ms []*models.MeasurementPoint) error {
	if len(ms) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(ms); start += chunkSize {
		end := min(start+chunkSize, len(ms))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, m := range ms[start:end] {
			if m == nil || m.BuildingID == "" || m.Timestamp.IsZero() {
				continue
			}
			tags := "{}"
			if len(m.Tags) > 0 {
				b, err := json.Marshal(m.Tags)
				if err != nil {
					return fmt.Errorf("encode tags: %w", err)
				}
				tags = string(b)
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, m.Timestamp.UTC(), m.BuildingID, m.DeviceID, m.Metric, m.Value, tags)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, building_id, device_id, metric, value, tags) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse insert measurements error",
					applogger.String("table", s.table),
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("insert measurements: %w", err)
		}
	}
	return nil
}

func (s *CHMeasurementStore) GetMeasurements(ctx context.Context, buildingID, metric string, start, end time.Time, deviceIDs ...string) ([]models.MeasurementPoint, error) {
	began := time.Now()
	q := fmt.Sprintf(`
        SELECT ts, building_id, device_id, metric, value, tags
        FROM %s
        WHERE building_id = ? AND metric = ? AND ts >= ? AND ts <= ?`, s.table)
	args := []interface{}{buildingID, metric, start.UTC(), end.UTC()}
	if len(deviceIDs) > 0 {
		q += " AND device_id IN (?" + strings.Repeat(", ?", len(deviceIDs)-1) + ")"
		for _, d := range deviceIDs {
			args = append(args, d)
		}
	}
	q += " ORDER BY ts ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logQueryError("get_measurements", buildingID, err)
		return nil, fmt.Errorf("get measurements: %w", err)
	}
	defer rows.Close()

	out := make([]models.MeasurementPoint, 0, 1024)
	for rows.Next() {
		var m models.MeasurementPoint
		var tags string
		if err := rows.Scan(&m.Timestamp, &m.BuildingID, &m.DeviceID, &m.Metric, &m.Value, &tags); err != nil {
			s.logQueryError("get_measurements scan", buildingID, err)
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		decoded, tagErr := decodeTags(tags)
		if tagErr != nil && s.l != nil {
			s.l.Warn("clickhouse measurement tags malformed",
				applogger.String("building_id", m.BuildingID),
				applogger.String("device_id", m.DeviceID),
				applogger.Error(tagErr),
			)
		}
		m.Tags = decoded
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		s.logQueryError("get_measurements rows", buildingID, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse get_measurements ok",
			applogger.String("building_id", buildingID),
			applogger.String("metric", metric),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(began)),
		)
	}
	return out, nil
}

func (s *CHMeasurementStore) GetAggregated(ctx context.Context, buildingID, metric string, start, end time.Time, bucket string) ([]models.AggregatedPoint, error) {
	width, err := ParseBucket(bucket)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
        SELECT toStartOfInterval(ts, INTERVAL %d SECOND) AS bucket,
               avg(value), min(value), max(value), count()
        FROM %s
        WHERE building_id = ? AND metric = ? AND ts >= ? AND ts <= ?
        GROUP BY bucket
        ORDER BY bucket ASC`, int64(width.Seconds()), s.table)

	rows, err := s.db.QueryContext(ctx, q, buildingID, metric, start.UTC(), end.UTC())
	if err != nil {
		s.logQueryError("get_aggregated", buildingID, err)
		return nil, fmt.Errorf("get aggregated: %w", err)
	}
	defer rows.Close()

	var out []models.AggregatedPoint
	for rows.Next() {
		var a models.AggregatedPoint
		var count uint64
		if err := rows.Scan(&a.Timestamp, &a.Avg, &a.Min, &a.Max, &count); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		a.Count = int64(count)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *CHMeasurementStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}

func (s *CHMeasurementStore) logQueryError(op, buildingID string, err error) {
	if s.l == nil {
		return
	}
	s.l.Error("clickhouse "+op+" error",
		applogger.String("table", s.table),
		applogger.String("building_id", buildingID),
		applogger.Error(err),
	)
}

// decodeTags parses the JSON tags column. Malformed input yields nil tags.
func decodeTags(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var tags map[string]string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}
