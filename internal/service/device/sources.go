package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"

	"github.com/montanaflynn/stats"
)

// ErrReplayExhausted is returned once a ReplaySource has no samples left.
var ErrReplayExhausted = errors.New("replay exhausted")

// Input modes of the signal chain.
const (
	ModeGripper = "gripper"
	ModeMouse   = "mouse"
)

// BaselinedSource subtracts the gripper's resting reading.
type BaselinedSource struct {
	Src      repository.SignalSource
	Baseline float64
}

func (s BaselinedSource) Sample() (float64, error) {
	v, err := s.Src.Sample()
	if err != nil {
		return 0, err
	}
	return v - s.Baseline, nil
}

// ProxySource turns a pointer's vertical position into a strength proxy for
// sessions run without a gripper.
type ProxySource struct {
	Src      repository.SignalSource
	Baseline float64
	Scale    float64
}

func (s ProxySource) Sample() (float64, error) {
	v, err := s.Src.Sample()
	if err != nil {
		return 0, err
	}
	return (v - s.Baseline) / s.Scale, nil
}

// NormalizedSource reports effort in percent of the calibrated maximum.
type NormalizedSource struct {
	Src          repository.SignalSource
	ZeroBaseline float64
	MaxStrength  float64
}

func (s NormalizedSource) Sample() (float64, error) {
	v, err := s.Src.Sample()
	if err != nil {
		return 0, err
	}
	return models.Normalize(v, s.ZeroBaseline, s.MaxStrength), nil
}

// Corrected wraps a raw source with the baseline correction for mode.
func Corrected(mode string, src repository.SignalSource, baseline, mouseScale float64) (repository.SignalSource, error) {
	switch mode {
	case ModeGripper, "":
		return BaselinedSource{Src: src, Baseline: baseline}, nil
	case ModeMouse:
		if mouseScale == 0 {
			return nil, errors.New("mouse scale must not be zero")
		}
		return ProxySource{Src: src, Baseline: baseline, Scale: mouseScale}, nil
	default:
		return nil, fmt.Errorf("unknown device mode %q", mode)
	}
}

// MeasureBaseline averages n readings taken interval apart while the
// device is at rest.
func MeasureBaseline(ctx context.Context, src repository.SignalSource, n int, interval time.Duration) (float64, error) {
	if n < 1 {
		n = 1
	}
	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(interval):
			}
		}
		v, err := src.Sample()
		if err != nil {
			return 0, fmt.Errorf("baseline sample %d: %w", i+1, err)
		}
		values = append(values, v)
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return 0, fmt.Errorf("baseline mean: %w", err)
	}
	return mean, nil
}

// ReplaySource plays back recorded values in order.
type ReplaySource struct {
	mu     sync.Mutex
	values []float64
	next   int
}

func NewReplaySource(values ...float64) *ReplaySource {
	return &ReplaySource{values: values}
}

func (s *ReplaySource) Sample() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.values) {
		return 0, ErrReplayExhausted
	}
	v := s.values[s.next]
	s.next++
	return v, nil
}
