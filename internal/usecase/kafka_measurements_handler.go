package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
	pkgkafka "EnerCast/pkg/kafka"
)

// KafkaMeasurementsHandler consumes measurement messages and writes them to
// the measurement sink.
type KafkaMeasurementsHandler struct {
	topic   string
	sink    domrepo.MeasurementSink
	metrics domrepo.Metrics
	now     func() time.Time
}

var _ pkgkafka.MessageHandler = (*KafkaMeasurementsHandler)(nil)

func NewKafkaMeasurementsHandler(topic string, sink domrepo.MeasurementSink, metrics domrepo.Metrics) *KafkaMeasurementsHandler {
	return &KafkaMeasurementsHandler{topic: topic, sink: sink, metrics: metrics, now: time.Now}
}

func (h *KafkaMeasurementsHandler) Topic() string { return h.topic }

// Handle decodes a MeasurementPoint JSON payload and stores it.
func (h *KafkaMeasurementsHandler) Handle(ctx context.Context, b []byte) error {
	var m models.MeasurementPoint
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("consumer_unmarshal")
		return fmt.Errorf("decode measurement: %w", err)
	}
	if m.BuildingID == "" || m.Timestamp.IsZero() {
		h.recordError("consumer_invalid")
		return fmt.Errorf("measurement missing building_id or ts")
	}
	if m.Metric == "" {
		m.Metric = models.MetricPower
	}
	if h.metrics != nil {
		h.metrics.RecordLatency("ingest_e2e", h.now().Sub(m.Timestamp).Seconds())
	}

	start := time.Now()
	err := h.sink.Store(ctx, &m)
	if h.metrics != nil {
		h.metrics.RecordLatency("store_insert", time.Since(start).Seconds())
	}
	if err != nil {
		h.recordError("consumer_store")
		return fmt.Errorf("store measurement: %w", err)
	}
	if h.metrics != nil {
		h.metrics.RecordMessageSent("store", m.BuildingID)
	}
	return nil
}

func (h *KafkaMeasurementsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}
