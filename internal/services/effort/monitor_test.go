package effort

import (
	"context"
	"errors"
	"testing"
	"time"

	"EffortLab/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by step on every read.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type sliceSource struct {
	values []float64
	i      int
}

func (s *sliceSource) Sample() (float64, error) {
	if s.i >= len(s.values) {
		return s.values[len(s.values)-1], nil
	}
	v := s.values[s.i]
	s.i++
	return v, nil
}

type recordingTrigger struct{ sent []models.Marker }

func (r *recordingTrigger) Send(m models.Marker) { r.sent = append(r.sent, m) }

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestMonitorRunSuccess(t *testing.T) {
	trig := &recordingTrigger{}
	m := NewMonitor(DefaultConfig(),
		WithClock(&stepClock{now: time.Unix(0, 0), step: 10 * time.Millisecond}),
		WithTrigger(trig),
	)

	ticks := 0
	obs := ObserverFunc(func(_ context.Context, tk Tick) error {
		ticks++
		assert.GreaterOrEqual(t, tk.Display, 0.0)
		assert.LessOrEqual(t, tk.Display, 100.0)
		return nil
	})

	v, err := m.Run(context.Background(), 60, &sliceSource{values: constant(65, 1)}, obs)
	require.NoError(t, err)

	assert.Equal(t, models.ResultSuccess, v.Result)
	assert.InDelta(t, 65, v.AverageEffort, 1e-9)
	assert.Equal(t, len(v.Trace), ticks)
	// first sample lands 10ms in, success one second after that
	assert.Equal(t, 1010*time.Millisecond, v.Elapsed)
	assert.Equal(t, []models.Marker{
		models.MarkerEffortStarted,
		models.MarkerEffortThresholdCrossed,
		models.MarkerEffortSuccess,
	}, trig.sent)
}

func TestMonitorRunTimeout(t *testing.T) {
	m := NewMonitor(DefaultConfig(), WithClock(&stepClock{now: time.Unix(0, 0), step: 100 * time.Millisecond}))

	v, err := m.Run(context.Background(), 60, &sliceSource{values: constant(5, 1)}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ResultFailure, v.Result)
	assert.Zero(t, v.AverageEffort)
	assert.Greater(t, v.Elapsed, 8*time.Second)
	for _, s := range v.Trace {
		assert.Equal(t, 5.0, s.Value)
	}
}

func TestMonitorRunCancelled(t *testing.T) {
	m := NewMonitor(DefaultConfig(), WithClock(&stepClock{now: time.Unix(0, 0), step: time.Millisecond}))
	ctx, cancel := context.WithCancel(context.Background())

	n := 0
	obs := ObserverFunc(func(context.Context, Tick) error {
		n++
		if n == 5 {
			cancel()
		}
		return nil
	})

	_, err := m.Run(ctx, 60, &sliceSource{values: constant(5, 1)}, obs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, n)
}

type failingSource struct{}

func (failingSource) Sample() (float64, error) { return 0, errors.New("device unplugged") }

func TestMonitorRunSourceError(t *testing.T) {
	m := NewMonitor(DefaultConfig())

	_, err := m.Run(context.Background(), 60, failingSource{}, nil)
	assert.ErrorContains(t, err, "device unplugged")
}

func TestMonitorRunRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeLimit = 0
	m := NewMonitor(cfg)

	_, err := m.Run(context.Background(), 60, &sliceSource{values: constant(5, 1)}, nil)
	assert.Error(t, err)
}

func TestPaceHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Pace(time.Hour).OnTick(ctx, Tick{})
	assert.ErrorIs(t, err, context.Canceled)
}
