package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"EffortLab/internal/domain/models"
	domrepo "EffortLab/internal/domain/repository"
	pkgkafka "EffortLab/pkg/kafka"
)

// KafkaTrialsHandler consumes the trials topic and writes each record into
// a store, so the kafka backend still ends up queryable.
type KafkaTrialsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
	sink    string
}

func NewKafkaTrialsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics, sink string) *KafkaTrialsHandler {
	return &KafkaTrialsHandler{topic: topic, storage: storage, metrics: metrics, sink: sink}
}

func (h *KafkaTrialsHandler) Topic() string { return h.topic }

// Handle rejects undecodable messages with a HookError so the consumer
// dead-letters them instead of retrying.
func (h *KafkaTrialsHandler) Handle(ctx context.Context, b []byte) error {
	var r models.TrialRecord
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return &pkgkafka.HookError{Code: "decode", Err: err}
	}
	if r.ID == "" {
		h.metrics.RecordError("consumer_invalid")
		return &pkgkafka.HookError{Code: "invalid", Err: errors.New("trial record without id")}
	}
	if !r.RecordedAt.IsZero() {
		h.metrics.RecordLatency("ingest_e2e", time.Since(r.RecordedAt).Seconds())
	}

	start := time.Now()
	err := h.storage.Store(ctx, &r)
	h.metrics.RecordLatency("consumer_store", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return fmt.Errorf("store trial %s: %w", r.ID, err)
	}
	h.metrics.RecordMessageSent(h.sink)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTrialsHandler)(nil)
