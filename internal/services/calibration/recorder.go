package calibration

import (
	"context"
	"fmt"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"
	"EffortLab/internal/services/effort"
	"EffortLab/pkg/logger"
)

// Recorder captures one calibration squeeze: it waits for the baseline
// corrected signal to exceed the start threshold, then records for a fixed
// duration.
type Recorder struct {
	clock          effort.Clock
	startThreshold float64
	duration       time.Duration
	trigger        repository.EventTrigger
	log            *logger.Logger
}

type RecorderOption func(*Recorder)

func WithClock(c effort.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = c }
}

func WithStartThreshold(v float64) RecorderOption {
	return func(r *Recorder) { r.startThreshold = v }
}

func WithRecordingDuration(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.duration = d
		}
	}
}

func WithTrigger(t repository.EventTrigger) RecorderOption {
	return func(r *Recorder) { r.trigger = t }
}

func WithLogger(l *logger.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		clock:          effort.SystemClock(),
		startThreshold: 0.1,
		duration:       DefaultRecordingDuration,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Duration is the recording length, needed by the Extractor.
func (r *Recorder) Duration() time.Duration { return r.duration }

// Record blocks until the participant starts squeezing and the recording
// window has elapsed. The crossing sample itself is not part of the trace.
func (r *Recorder) Record(ctx context.Context, src repository.SignalSource, obs effort.Observer) (models.EffortTrace, error) {
	if obs == nil {
		obs = effort.Pace(0)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := src.Sample()
		if err != nil {
			return nil, fmt.Errorf("sample signal: %w", err)
		}
		if err := obs.OnTick(ctx, effort.Tick{Sample: models.Sample{Value: v}, State: effort.StateWaitingForStart}); err != nil {
			return nil, err
		}
		if v > r.startThreshold {
			break
		}
	}
	if r.trigger != nil {
		r.trigger.Send(models.MarkerEffortStarted)
	}

	start := r.clock.Now()
	var trace models.EffortTrace
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		elapsed := r.clock.Now().Sub(start)
		if elapsed >= r.duration {
			break
		}
		v, err := src.Sample()
		if err != nil {
			return nil, fmt.Errorf("sample signal: %w", err)
		}
		s := models.Sample{Value: v, Elapsed: elapsed}
		trace = append(trace, s)
		if err := obs.OnTick(ctx, effort.Tick{Sample: s, Display: v, State: effort.StateBelowThreshold}); err != nil {
			return nil, err
		}
	}

	r.log.Info("calibration squeeze recorded",
		logger.Int("samples", len(trace)),
		logger.Duration("duration_ms", r.duration),
	)
	return trace, nil
}
