package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	got    []models.MarkerEvent
	block  chan struct{}
	failOn models.Marker
}

func (s *recordingSink) Deliver(ctx context.Context, e models.MarkerEvent) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.Marker == s.failOn {
		return errors.New("serial port closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, e)
	return nil
}

func (s *recordingSink) markers() []models.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Marker, len(s.got))
	for i, e := range s.got {
		out[i] = e.Marker
	}
	return out
}

func TestMarkerPipeline_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	at := time.Unix(100, 0)
	p := NewMarkerPipeline(sink, metrics.Nop{}, WithClock(func() time.Time { return at }))
	p.Start(context.Background())

	tr := p.Trigger("s1")
	tr.Send(models.MarkerEffortStarted)
	tr.Send(models.MarkerEffortThresholdCrossed)
	tr.Send(models.MarkerEffortSuccess)
	p.Stop()

	assert.Equal(t, []models.Marker{
		models.MarkerEffortStarted,
		models.MarkerEffortThresholdCrossed,
		models.MarkerEffortSuccess,
	}, sink.markers())
	assert.Equal(t, "s1", sink.got[0].SessionID)
	assert.Equal(t, at, sink.got[0].At)
	assert.Zero(t, p.Dropped())
}

func TestMarkerPipeline_FullBufferDropsWithoutBlocking(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	p := NewMarkerPipeline(sink, metrics.Nop{}, WithBufferSize(2), WithDeliveryTimeout(time.Second))
	p.Start(context.Background())

	tr := p.Trigger("s1")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			tr.Send(models.MarkerBlockStart)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full buffer")
	}
	// One marker may be held by the blocked sink, two fit in the buffer.
	assert.GreaterOrEqual(t, p.Dropped(), int64(7))

	close(sink.block)
	p.Stop()
	assert.Equal(t, int64(10), p.Dropped()+int64(len(sink.markers())))
}

func TestMarkerPipeline_FailedDeliveryIsCounted(t *testing.T) {
	sink := &recordingSink{failOn: models.MarkerExperimentEnd}
	p := NewMarkerPipeline(sink, metrics.Nop{})
	p.Start(context.Background())

	tr := p.Trigger("s1")
	tr.Send(models.MarkerExperimentEnd)
	tr.Send(models.MarkerExperimentStart)
	p.Stop()

	assert.Equal(t, int64(1), p.Failed())
	assert.Equal(t, []models.Marker{models.MarkerExperimentStart}, sink.markers())
}

func TestMarkerPipeline_SendAfterStopIsDropped(t *testing.T) {
	p := NewMarkerPipeline(&recordingSink{}, metrics.Nop{})
	p.Stop()
	p.Stop()
	require.NotPanics(t, func() { p.Trigger("s1").Send(models.MarkerBlockStart) })
	assert.Equal(t, int64(1), p.Dropped())
}
