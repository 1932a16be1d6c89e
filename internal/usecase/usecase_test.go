package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/pkg/metrics"
)

// stepClock advances by step on every read.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type constSource float64

func (s constSource) Sample() (float64, error) { return float64(s), nil }

type recordingTrigger struct {
	mu   sync.Mutex
	sent []models.Marker
}

func (r *recordingTrigger) Send(m models.Marker) {
	r.mu.Lock()
	r.sent = append(r.sent, m)
	r.mu.Unlock()
}

type memStore struct {
	mu      sync.Mutex
	records []*models.TrialRecord
	batches int
	err     error
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) Store(_ context.Context, r *models.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *memStore) Process(ctx context.Context, r *models.TrialRecord) error {
	return s.Store(ctx, r)
}

func (s *memStore) StoreBatch(_ context.Context, rs []*models.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches++
	s.records = append(s.records, rs...)
	return nil
}

func (s *memStore) Query(_ context.Context, participant string, _, _ time.Time, limit int) ([]*models.TrialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TrialRecord
	for _, r := range s.records {
		if participant == "" || r.Participant == participant {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) Health(context.Context) error { return s.err }
func (s *memStore) Close() error                 { return nil }

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type memPublisher struct {
	published []*models.TrialRecord
}

func (p *memPublisher) Publish(_ context.Context, r *models.TrialRecord) error {
	p.published = append(p.published, r)
	return nil
}

func (p *memPublisher) PublishBatch(_ context.Context, rs []*models.TrialRecord) error {
	p.published = append(p.published, rs...)
	return nil
}

func (p *memPublisher) Close() error { return nil }

type memEnqueuer struct {
	types    []string
	payloads []json.RawMessage
	err      error
}

func (q *memEnqueuer) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	if q.err != nil {
		return q.err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, b)
	return nil
}

var errBackend = errors.New("backend down")

func newTestRunner(t *testing.T, sink TrialSink, clock *stepClock) *TrialRunner {
	t.Helper()
	cfg := DefaultRunnerConfig()
	cfg.Seed = 7
	ids := 0
	r, err := NewTrialRunner(cfg, sink, metrics.Nop{},
		WithRunnerClock(clock),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("trial-%d", ids)
		}),
	)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

// trace samples v every 100ms from 0 to d inclusive.
func trace(v float64, d time.Duration) models.EffortTrace {
	var out models.EffortTrace
	for e := time.Duration(0); e <= d; e += 100 * time.Millisecond {
		out = append(out, models.Sample{Value: v, Elapsed: e})
	}
	return out
}
