package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"EffortLab/internal/domain/models"
	pkgkafka "EffortLab/pkg/kafka"
	"EffortLab/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, participant string) *models.TrialRecord {
	return &models.TrialRecord{
		ID:          id,
		SessionID:   "s-" + participant,
		Participant: participant,
		Mode:        models.ModeStaircase,
		Offer:       models.TrialOffer{Reward: 18, Effort: 6, Action: models.ActionApproach},
		Outcome:     models.TrialOutcome{Response: models.ResponseAccept, Result: models.ResultSuccess, Points: 18},
		RecordedAt:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewTrialProcessor_Validates(t *testing.T) {
	_, err := NewTrialProcessor(BackendKafka, nil, nil, metrics.Nop{})
	assert.Error(t, err)
	_, err = NewTrialProcessor(BackendSQLite, nil, nil, metrics.Nop{})
	assert.Error(t, err)
	_, err = NewTrialProcessor("postgres", nil, &memStore{}, metrics.Nop{})
	assert.Error(t, err)
}

func TestTrialProcessor_Routes(t *testing.T) {
	pub := &memPublisher{}
	store := &memStore{}

	kp, err := NewTrialProcessor(BackendKafka, pub, store, metrics.Nop{})
	require.NoError(t, err)
	require.NoError(t, kp.Process(context.Background(), record("a", "P1")))
	assert.Len(t, pub.published, 1)
	assert.Equal(t, 0, store.count(), "kafka backend does not write the store")

	sp, err := NewTrialProcessor(BackendClickHouse, nil, store, metrics.Nop{})
	require.NoError(t, err)
	require.NoError(t, sp.Process(context.Background(), record("b", "P1")))
	require.NoError(t, sp.ProcessBatch(context.Background(), []*models.TrialRecord{record("c", "P1"), record("d", "P2")}))
	assert.Equal(t, 3, store.count())

	got, err := sp.Query(context.Background(), "P1", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTrialProcessor_QueryWithoutStore(t *testing.T) {
	p, err := NewTrialProcessor(BackendKafka, &memPublisher{}, nil, metrics.Nop{})
	require.NoError(t, err)
	_, err = p.Query(context.Background(), "P1", time.Time{}, time.Time{}, 10)
	assert.ErrorIs(t, err, ErrQueryUnavailable)
	assert.NoError(t, p.Health(context.Background()))
}

func TestTrialProcessor_ParksFailedWrites(t *testing.T) {
	store := &memStore{err: errBackend}
	q := &memEnqueuer{}
	p, err := NewTrialProcessor(BackendSQLite, nil, store, metrics.Nop{}, WithRetryQueue(q))
	require.NoError(t, err)

	require.NoError(t, p.Process(context.Background(), record("a", "P1")))
	require.Len(t, q.types, 1)
	assert.Equal(t, RetryJobType, q.types[0])

	// the job replays the parked record once the backend recovers
	store.err = nil
	job := NewRetryJob(p)
	assert.Equal(t, RetryJobType, job.Type())
	require.NoError(t, job.Handle(context.Background(), q.payloads[0]))
	require.Equal(t, 1, store.count())
	assert.Equal(t, "a", store.records[0].ID)
}

func TestTrialProcessor_FailsWithoutQueue(t *testing.T) {
	p, err := NewTrialProcessor(BackendSQLite, nil, &memStore{err: errBackend}, metrics.Nop{})
	require.NoError(t, err)
	err = p.Process(context.Background(), record("a", "P1"))
	assert.ErrorIs(t, err, errBackend)

	q := &memEnqueuer{err: errors.New("redis down")}
	p, err = NewTrialProcessor(BackendSQLite, nil, &memStore{err: errBackend}, metrics.Nop{}, WithRetryQueue(q))
	require.NoError(t, err)
	assert.ErrorIs(t, p.Process(context.Background(), record("a", "P1")), errBackend)
}

func TestTrialBatcher_FlushesOnSizeAndStop(t *testing.T) {
	store := &memStore{}
	p, err := NewTrialProcessor(BackendClickHouse, nil, store, metrics.Nop{})
	require.NoError(t, err)
	b := NewTrialBatcher(p, 2, time.Hour, nil)
	b.Start(context.Background())

	require.NoError(t, b.Process(context.Background(), record("a", "P1")))
	require.NoError(t, b.Process(context.Background(), record("b", "P1")))
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Process(context.Background(), record("c", "P1")))
	assert.Equal(t, 1, b.Pending())
	b.Stop(context.Background())
	assert.Equal(t, 3, store.count())
	assert.Equal(t, 0, b.Pending())
}

func TestTrialBatcher_FallsBackToRetryQueue(t *testing.T) {
	q := &memEnqueuer{}
	p, err := NewTrialProcessor(BackendClickHouse, nil, &memStore{err: errBackend}, metrics.Nop{}, WithRetryQueue(q))
	require.NoError(t, err)
	b := NewTrialBatcher(p, 10, time.Hour, nil)
	require.NoError(t, b.Process(context.Background(), record("a", "P1")))
	require.NoError(t, b.Process(context.Background(), record("b", "P1")))
	b.Flush(context.Background())
	assert.Len(t, q.types, 2)
}

func TestKafkaTrialsHandler(t *testing.T) {
	store := &memStore{}
	h := NewKafkaTrialsHandler("effortlab.trials", store, metrics.Nop{}, BackendSQLite)
	assert.Equal(t, "effortlab.trials", h.Topic())

	var hookErr *pkgkafka.HookError
	err := h.Handle(context.Background(), []byte("{not json"))
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "decode", hookErr.Code)

	err = h.Handle(context.Background(), []byte(`{"participant":"P1"}`))
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "invalid", hookErr.Code)

	require.NoError(t, h.Handle(context.Background(), []byte(`{"id":"t1","participant":"P1","offer":{"reward":18,"effort":6,"action_type":"approach"}}`)))
	require.Equal(t, 1, store.count())
	assert.Equal(t, 18, store.records[0].Offer.Reward)

	store.err = errBackend
	err = h.Handle(context.Background(), []byte(`{"id":"t2"}`))
	assert.ErrorIs(t, err, errBackend)
	assert.False(t, errors.As(err, &hookErr), "store failures stay retryable")
}
