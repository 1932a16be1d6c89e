package effort

import (
	"context"
	"fmt"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"
	"EffortLab/pkg/logger"
)

// Clock is the monotonic time source of the polling loop.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock. time.Now carries a monotonic reading, so
// differences are immune to clock adjustments.
func SystemClock() Clock { return systemClock{} }

// Tick is what the presentation side sees after every sample.
type Tick struct {
	Sample  models.Sample
	Display float64
	State   State
}

// Observer owns drawing and pacing. It is called once per tick on the polling
// goroutine; a non-nil error aborts the trial.
type Observer interface {
	OnTick(ctx context.Context, t Tick) error
}

type ObserverFunc func(ctx context.Context, t Tick) error

func (f ObserverFunc) OnTick(ctx context.Context, t Tick) error { return f(ctx, t) }

// Pace returns an observer that only waits interval between samples.
func Pace(interval time.Duration) Observer {
	return ObserverFunc(func(ctx context.Context, _ Tick) error {
		if interval <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	})
}

// Verdict is the outcome of one effort phase.
type Verdict struct {
	Result        models.Result
	Trace         models.EffortTrace
	AverageEffort float64
	Elapsed       time.Duration
}

// Monitor runs the effort state machine against a live signal.
type Monitor struct {
	cfg     Config
	clock   Clock
	trigger repository.EventTrigger
	log     *logger.Logger
}

type Option func(*Monitor)

func WithClock(c Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithTrigger(t repository.EventTrigger) Option {
	return func(m *Monitor) { m.trigger = t }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

func NewMonitor(cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:   cfg,
		clock: SystemClock(),
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the monitor's base policy.
func (m *Monitor) Config() Config { return m.cfg }

// Run polls src until the trial reaches a terminal state. Cancelling ctx
// abandons the trial and discards everything collected so far.
func (m *Monitor) Run(ctx context.Context, requirement float64, src repository.SignalSource, obs Observer) (Verdict, error) {
	cfg := m.cfg.WithRequirement(requirement)
	if err := cfg.Validate(); err != nil {
		return Verdict{}, fmt.Errorf("effort config: %w", err)
	}
	if obs == nil {
		obs = Pace(0)
	}

	snap := cfg.Initial()
	var trace models.EffortTrace
	start := m.clock.Now()

	for {
		if err := ctx.Err(); err != nil {
			return Verdict{}, err
		}

		value, err := src.Sample()
		if err != nil {
			return Verdict{}, fmt.Errorf("sample signal: %w", err)
		}
		elapsed := m.clock.Now().Sub(start)
		sample := models.Sample{Value: value, Elapsed: elapsed}
		trace = append(trace, sample)

		var markers []models.Marker
		snap, markers = cfg.Step(snap, value, elapsed)
		for _, mk := range markers {
			m.emit(mk)
		}

		if err := obs.OnTick(ctx, Tick{Sample: sample, Display: DisplayEffort(value), State: snap.State}); err != nil {
			return Verdict{}, err
		}

		if snap.State.Terminal() {
			v := Verdict{
				Result:        snap.Result(),
				Trace:         trace,
				AverageEffort: snap.Average(),
				Elapsed:       elapsed,
			}
			m.log.Info("effort phase finished",
				logger.String("result", string(v.Result)),
				logger.Float64("requirement", requirement),
				logger.Float64("average_effort", v.AverageEffort),
				logger.Int("samples", len(trace)),
				logger.Duration("elapsed_ms", elapsed),
			)
			return v, nil
		}
	}
}

func (m *Monitor) emit(mk models.Marker) {
	if m.trigger == nil {
		return
	}
	m.log.Debug("marker", logger.String("marker", mk.String()))
	m.trigger.Send(mk)
}
