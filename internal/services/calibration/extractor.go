package calibration

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptyTrace   = errors.New("calibration trace is empty")
	ErrTooFewTrials = errors.New("not enough calibration trials")
	ErrNoStrength   = errors.New("max strength is not positive")
)

// DefaultRecordingDuration is how long each calibration squeeze is recorded.
const DefaultRecordingDuration = 4 * time.Second

// Extractor reduces a fixed-length force recording to one strength value:
// the mean of a quarter-second half-window centred on the peak.
type Extractor struct {
	duration time.Duration
}

func NewExtractor(recording time.Duration) Extractor {
	if recording <= 0 {
		recording = DefaultRecordingDuration
	}
	return Extractor{duration: recording}
}

// WindowRadius is the number of samples covering a quarter second, given n
// samples spread over the recording.
func WindowRadius(n int, recording time.Duration) int {
	rate := float64(n) / recording.Seconds()
	return int(math.Floor(rate / 4))
}

// Peak returns the mean of efforts[max(0,i-r) : min(n,i+r+1)] where i is the
// index of the first maximum.
func (e Extractor) Peak(efforts []float64) (float64, error) {
	n := len(efforts)
	if n == 0 {
		return 0, ErrEmptyTrace
	}
	i := floats.MaxIdx(efforts)
	r := WindowRadius(n, e.duration)
	lo := max(0, i-r)
	hi := min(n, i+r+1)
	return stat.Mean(efforts[lo:hi], nil), nil
}

// SessionMaxStrength averages the peaks of trials two and three. The first
// trial is practice and is discarded.
func SessionMaxStrength(peaks []float64) (float64, error) {
	if len(peaks) < 3 {
		return 0, fmt.Errorf("%w: need 3, got %d", ErrTooFewTrials, len(peaks))
	}
	m, err := stats.Mean(peaks[1:3])
	if err != nil {
		return 0, fmt.Errorf("mean of peaks: %w", err)
	}
	return m, nil
}
