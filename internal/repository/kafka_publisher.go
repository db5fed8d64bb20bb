package repository

import (
	"context"

	"FinCast/internal/domain/models"
	"FinCast/pkg/kafka"
)

// KafkaResultPublisher emits assembled prediction results to a Kafka
// topic for downstream consumers.
type KafkaResultPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaResultPublisher(producer *kafka.Producer, topic string) *KafkaResultPublisher {
	if topic == "" {
		topic = "fincast.predictions"
	}
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

// PublishResult keys the event by result id so replays stay ordered per
// prediction.
func (p *KafkaResultPublisher) PublishResult(ctx context.Context, res *models.PredictionResult) error {
	return p.producer.Publish(ctx, p.topic, []byte(res.ID), res)
}

func (p *KafkaResultPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops results, used when eventing is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishResult(context.Context, *models.PredictionResult) error { return nil }
func (NopPublisher) Close() error                                                 { return nil }
