package usecase

import (
	"context"
	"fmt"
	"time"

	"EnerCast/internal/domain/models"
	drepo "EnerCast/internal/domain/repository"
)

// Ingestion backends.
const (
	BackendKafka = "kafka"
	BackendStore = "store"
)

// MeasurementProcessor routes ingested readings to Kafka or straight to the
// measurement sink.
type MeasurementProcessor struct {
	pub     drepo.Publisher
	sink    drepo.MeasurementSink
	metrics drepo.Metrics
	backend string
}

// NewMeasurementProcessor creates a processor for the given backend.
func NewMeasurementProcessor(pub drepo.Publisher, sink drepo.MeasurementSink, metrics drepo.Metrics, backend string) *MeasurementProcessor {
	return &MeasurementProcessor{pub: pub, sink: sink, metrics: metrics, backend: backend}
}

// Backend returns the configured route.
func (p *MeasurementProcessor) Backend() string { return p.backend }

// Process routes a single reading.
func (p *MeasurementProcessor) Process(ctx context.Context, m *models.MeasurementPoint) error {
	if m == nil {
		return fmt.Errorf("measurement is nil")
	}
	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, m)
	case BackendStore:
		err = p.sink.Store(ctx, m)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.recordError("process")
		return fmt.Errorf("process measurement: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordMessageSent(p.backend, m.BuildingID)
		p.metrics.RecordLatency("process", time.Since(start).Seconds())
	}
	return nil
}

// ProcessBatch routes readings in one call to the backend.
func (p *MeasurementProcessor) ProcessBatch(ctx context.Context, ms []*models.MeasurementPoint) error {
	if len(ms) == 0 {
		return nil
	}
	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, ms)
	case BackendStore:
		err = p.sink.StoreBatch(ctx, ms)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.recordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}
	if p.metrics != nil {
		for _, m := range ms {
			p.metrics.RecordMessageSent(p.backend, m.BuildingID)
		}
		p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	}
	return nil
}

func (p *MeasurementProcessor) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

// Close closes the publisher. The sink is shared with the read path and is
// closed by its owner.
func (p *MeasurementProcessor) Close() error {
	if p.pub != nil {
		return p.pub.Close()
	}
	return nil
}
