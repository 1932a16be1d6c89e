package repository

import (
	"context"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"
	pkgkafka "EffortLab/pkg/kafka"
)

// KafkaTrialPublisher streams trial records keyed by session id, so one
// session's trials stay ordered within a partition.
type KafkaTrialPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaTrialPublisher(producer *pkgkafka.Producer, topic string) *KafkaTrialPublisher {
	return &KafkaTrialPublisher{producer: producer, topic: topic}
}

var _ repository.Publisher = (*KafkaTrialPublisher)(nil)

func (p *KafkaTrialPublisher) Publish(ctx context.Context, r *models.TrialRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.SessionID), r)
}

func (p *KafkaTrialPublisher) PublishBatch(ctx context.Context, records []*models.TrialRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(records))
	for i, r := range records {
		msgs[i] = pkgkafka.Message{Key: []byte(r.SessionID), Value: r}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close is a no-op; the producer is shared and closed by its owner.
func (p *KafkaTrialPublisher) Close() error { return nil }
