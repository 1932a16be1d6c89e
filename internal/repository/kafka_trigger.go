package repository

import (
	"context"
	"fmt"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"
	pkgkafka "EffortLab/pkg/kafka"
)

// markerMessage is the Kafka frame for one marker.
type markerMessage struct {
	Marker  string `json:"marker"`
	Code    uint8  `json:"code"`
	Session string `json:"session"`
	TS      int64  `json:"ts"`
}

// KafkaMarkerSink publishes markers to a topic, keyed by session id.
type KafkaMarkerSink struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaMarkerSink(producer *pkgkafka.Producer, topic string) *KafkaMarkerSink {
	return &KafkaMarkerSink{producer: producer, topic: topic}
}

var _ repository.MarkerSink = (*KafkaMarkerSink)(nil)

func (s *KafkaMarkerSink) Deliver(ctx context.Context, e models.MarkerEvent) error {
	if err := s.producer.Publish(ctx, s.topic, []byte(e.SessionID), newMarkerMessage(e)); err != nil {
		return fmt.Errorf("publish marker %s: %w", e.Marker, err)
	}
	return nil
}

func newMarkerMessage(e models.MarkerEvent) markerMessage {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return markerMessage{
		Marker:  e.Marker.String(),
		Code:    e.Marker.Code(),
		Session: e.SessionID,
		TS:      at.UnixMilli(),
	}
}
