package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"EffortLab/internal/domain/models"
	drepo "EffortLab/internal/domain/repository"
	"EffortLab/pkg/logger"
	"EffortLab/pkg/queue"
)

// Trial log backends.
const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendSQLite     = "sqlite"
)

// RetryJobType is the queue message type for trial records whose first
// write failed.
const RetryJobType = "trial.store"

var ErrQueryUnavailable = errors.New("trial log has no queryable store")

// TrialProcessor routes trial records to the configured backend. When a
// retry queue is attached, failed writes are parked there instead of
// failing the trial.
type TrialProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
	retry   queue.Enqueuer
	log     *logger.Logger
}

type ProcessorOption func(*TrialProcessor)

func WithRetryQueue(q queue.Enqueuer) ProcessorOption {
	return func(p *TrialProcessor) { p.retry = q }
}

func WithProcessorLogger(l *logger.Logger) ProcessorOption {
	return func(p *TrialProcessor) {
		if l != nil {
			p.log = l
		}
	}
}

// NewTrialProcessor builds a processor. pub is required for the kafka
// backend and store for the others; store also answers Query when set.
func NewTrialProcessor(backend string, pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, opts ...ProcessorOption) (*TrialProcessor, error) {
	switch backend {
	case BackendKafka:
		if pub == nil {
			return nil, errors.New("kafka backend needs a publisher")
		}
	case BackendClickHouse, BackendSQLite:
		if store == nil {
			return nil, fmt.Errorf("%s backend needs a store", backend)
		}
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
	p := &TrialProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *TrialProcessor) Backend() string { return p.backend }

// Process writes one record. A failed write that was parked on the retry
// queue is not an error.
func (p *TrialProcessor) Process(ctx context.Context, r *models.TrialRecord) error {
	if r == nil {
		return errors.New("trial record is nil")
	}
	err := p.deliver(ctx, r)
	if err == nil {
		return nil
	}
	if p.retry == nil {
		return err
	}
	if qerr := p.retry.Enqueue(ctx, RetryJobType, r); qerr != nil {
		p.metrics.RecordError("trial_retry_enqueue")
		return fmt.Errorf("%w (retry enqueue: %v)", err, qerr)
	}
	p.log.Warn("trial write parked for retry",
		logger.String("trial", r.ID),
		logger.String("backend", p.backend),
		logger.Error(err))
	return nil
}

func (p *TrialProcessor) deliver(ctx context.Context, r *models.TrialRecord) error {
	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, r)
	default:
		err = p.store.Store(ctx, r)
	}
	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process trial %s: %w", r.ID, err)
	}
	p.metrics.RecordMessageSent(p.backend)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch writes records in one call to the backend.
func (p *TrialProcessor) ProcessBatch(ctx context.Context, records []*models.TrialRecord) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, records)
	default:
		err = p.store.StoreBatch(ctx, records)
	}
	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}
	for range records {
		p.metrics.RecordMessageSent(p.backend)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

// Query reads back records from the store.
func (p *TrialProcessor) Query(ctx context.Context, participant string, from, to time.Time, limit int) ([]*models.TrialRecord, error) {
	if p.store == nil {
		return nil, ErrQueryUnavailable
	}
	return p.store.Query(ctx, participant, from, to, limit)
}

// Health checks the store when there is one.
func (p *TrialProcessor) Health(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	return p.store.Health(ctx)
}

func (p *TrialProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

// RetryJob replays parked trial records against the backend.
type RetryJob struct {
	proc *TrialProcessor
}

func NewRetryJob(proc *TrialProcessor) *RetryJob { return &RetryJob{proc: proc} }

func (j *RetryJob) Name() string { return "trial-store-retry" }
func (j *RetryJob) Type() string { return RetryJobType }

func (j *RetryJob) Handle(ctx context.Context, payload json.RawMessage) error {
	r, err := queue.Decode[models.TrialRecord](payload)
	if err != nil {
		return err
	}
	return j.proc.deliver(ctx, r)
}

var _ queue.Job = (*RetryJob)(nil)
