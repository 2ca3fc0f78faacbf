package repository

import (
	"context"
	"time"

	"EnerCast/internal/domain/models"
	domrepo "EnerCast/internal/domain/repository"
	pkgkafka "EnerCast/pkg/kafka"
)

// KafkaPublisher forwards measurements to a Kafka topic, keyed by building
// so each building's readings stay ordered.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, m *models.MeasurementPoint) error {
	return p.producer.Publish(ctx, p.topic, []byte(m.BuildingID), m)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, ms []*models.MeasurementPoint) error {
	if len(ms) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(ms))
	for _, m := range ms {
		if m == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(m.BuildingID), Value: m})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// ForecastCreatedEvent is the payload announced when a forecast is stored.
type ForecastCreatedEvent struct {
	Event        string    `json:"event"`
	ForecastID   string    `json:"forecast_id"`
	BuildingID   string    `json:"building_id"`
	Type         string    `json:"forecast_type"`
	Horizon      string    `json:"horizon"`
	ModelUsed    string    `json:"model_used"`
	ModelVersion string    `json:"model_version"`
	Accuracy     float64   `json:"accuracy"`
	IssuedAt     time.Time `json:"issued_at"`
	Points       int       `json:"points"`
}

// KafkaEventPublisher announces forecast events on a topic.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishForecastCreated(ctx context.Context, rec *models.ForecastRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(rec.Scope.BuildingID), NewForecastCreatedEvent(rec))
}

func NewForecastCreatedEvent(rec *models.ForecastRecord) ForecastCreatedEvent {
	return ForecastCreatedEvent{
		Event:        "forecast.created",
		ForecastID:   rec.ID,
		BuildingID:   rec.Scope.BuildingID,
		Type:         string(rec.Type),
		Horizon:      rec.Horizon,
		ModelUsed:    rec.ModelAlgorithm,
		ModelVersion: rec.ModelVersion,
		Accuracy:     rec.Accuracy,
		IssuedAt:     rec.IssuedAt,
		Points:       len(rec.Series),
	}
}
