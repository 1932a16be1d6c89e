package calibration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeakSingleSampleWindow(t *testing.T) {
	// 5 samples over 4s: 1.25 Hz, quarter second is less than one sample.
	got, err := NewExtractor(4 * time.Second).Peak([]float64{1, 2, 9, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, 9.0, got)
}

func TestPeakWindowAroundMaximum(t *testing.T) {
	// 16 samples over 4s: r = floor(4/4) = 1.
	efforts := []float64{0, 0, 0, 0, 0, 4, 10, 7, 0, 0, 0, 0, 0, 0, 0, 0}
	got, err := NewExtractor(4 * time.Second).Peak(efforts)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, got, 1e-12)
}

func TestPeakWindowClippedAtEdges(t *testing.T) {
	// 32 samples over 4s: r = 2; peak at index 0 keeps [0, 3).
	efforts := make([]float64, 32)
	efforts[0], efforts[1], efforts[2] = 9, 6, 3
	got, err := NewExtractor(4 * time.Second).Peak(efforts)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, got, 1e-12)

	efforts = make([]float64, 32)
	efforts[31], efforts[30], efforts[29] = 9, 6, 3
	got, err = NewExtractor(4 * time.Second).Peak(efforts)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, got, 1e-12)
}

func TestPeakFirstMaximumWins(t *testing.T) {
	// r = 1 with 16 samples; the first 8 is surrounded by zeros.
	efforts := []float64{0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 8, 2, 0}
	got, err := NewExtractor(4 * time.Second).Peak(efforts)
	require.NoError(t, err)
	assert.InDelta(t, 8.0/3, got, 1e-12)
}

func TestPeakEmptyTrace(t *testing.T) {
	_, err := NewExtractor(0).Peak(nil)
	assert.ErrorIs(t, err, ErrEmptyTrace)
}

func TestWindowRadius(t *testing.T) {
	tests := []struct {
		n    int
		d    time.Duration
		want int
	}{
		{5, 4 * time.Second, 0},
		{16, 4 * time.Second, 1},
		{400, 4 * time.Second, 25},
		{399, 4 * time.Second, 24},
		{100, 2 * time.Second, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WindowRadius(tt.n, tt.d), "n=%d d=%s", tt.n, tt.d)
	}
}

func TestSessionMaxStrengthDropsPractice(t *testing.T) {
	got, err := SessionMaxStrength([]float64{100, 40, 60})
	require.NoError(t, err)
	assert.Equal(t, 50.0, got)

	_, err = SessionMaxStrength([]float64{40, 60})
	assert.ErrorIs(t, err, ErrTooFewTrials)
}

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type seqSource struct {
	values []float64
	i      int
}

func (s *seqSource) Sample() (float64, error) {
	v := s.values[min(s.i, len(s.values)-1)]
	s.i++
	return v, nil
}

func TestRecorderWaitsForStart(t *testing.T) {
	rec := NewRecorder(
		WithClock(&stepClock{now: time.Unix(0, 0), step: 100 * time.Millisecond}),
		WithRecordingDuration(time.Second),
	)
	src := &seqSource{values: []float64{0, 0.05, 0.1, 0.5, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}}

	trace, err := rec.Record(context.Background(), src, nil)
	require.NoError(t, err)

	// start at 0.5 (index 3); the crossing sample is not recorded
	require.NotEmpty(t, trace)
	assert.Equal(t, 1.0, trace[0].Value)
	assert.Len(t, trace, 9)
	assert.Less(t, trace[len(trace)-1].Elapsed, time.Second)
}

func TestRecorderCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRecorder().Record(ctx, &seqSource{values: []float64{0}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
