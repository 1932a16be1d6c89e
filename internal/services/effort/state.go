package effort

import (
	"time"

	"EffortLab/internal/domain/models"
)

type State int

const (
	StateWaitingForStart State = iota
	StateBelowThreshold
	StateAboveThreshold
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StateWaitingForStart:
		return "waiting_for_start"
	case StateBelowThreshold:
		return "below_threshold"
	case StateAboveThreshold:
		return "above_threshold"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further samples can change the verdict.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Snapshot is everything the monitor remembers between two ticks. It is a
// plain value: Step never mutates its input.
type Snapshot struct {
	State      State
	Started    bool
	StartAt    time.Duration
	CrossingAt time.Duration
	WindowSum  float64
	WindowN    int
}

// Initial is the snapshot a trial begins with.
func (c Config) Initial() Snapshot {
	if c.WaitForStart {
		return Snapshot{State: StateWaitingForStart}
	}
	return Snapshot{State: StateBelowThreshold}
}

// Step advances the state machine by one sample taken at elapsed since the
// trial started. The returned markers describe transitions taken on this
// tick; they carry no feedback into the decision.
func (c Config) Step(s Snapshot, sample float64, elapsed time.Duration) (Snapshot, []models.Marker) {
	if s.State.Terminal() {
		return s, nil
	}

	next := s
	var markers []models.Marker

	if !next.Started && sample > c.StartThreshold {
		next.Started = true
		markers = append(markers, models.MarkerEffortStarted)
	}

	if next.State == StateWaitingForStart {
		if !next.Started {
			return next, markers
		}
		next.State = StateBelowThreshold
		next.StartAt = elapsed
	}

	t := elapsed - next.StartAt
	if t > c.TimeLimit {
		next.State = StateFailure
		next.WindowSum, next.WindowN = 0, 0
		return next, markers
	}

	if sample > c.Threshold() {
		if next.State == StateBelowThreshold {
			next.State = StateAboveThreshold
			next.CrossingAt = t
			next.WindowSum, next.WindowN = 0, 0
			markers = append(markers, models.MarkerEffortThresholdCrossed)
		}
		next.WindowSum += sample
		next.WindowN++
		if t-next.CrossingAt >= c.RequiredDuration {
			next.State = StateSuccess
			markers = append(markers, models.MarkerEffortSuccess)
		}
		return next, markers
	}

	if next.State == StateAboveThreshold {
		next.State = StateBelowThreshold
		next.WindowSum, next.WindowN = 0, 0
	}
	return next, markers
}

// Average is the mean of the samples held since the last crossing. It is
// only meaningful after success and is zero otherwise.
func (s Snapshot) Average() float64 {
	if s.State != StateSuccess || s.WindowN == 0 {
		return 0
	}
	return s.WindowSum / float64(s.WindowN)
}

// Result maps a terminal state to the trial result.
func (s Snapshot) Result() models.Result {
	switch s.State {
	case StateSuccess:
		return models.ResultSuccess
	case StateFailure:
		return models.ResultFailure
	default:
		return models.ResultNone
	}
}

// DisplayEffort clamps a sample to the drawable range. It is for rendering
// only and never feeds back into Step.
func DisplayEffort(sample float64) float64 {
	switch {
	case sample < 0:
		return 0
	case sample > 100:
		return 100
	default:
		return sample
	}
}

// Replay folds a recorded trace through Step. A trace that ends before a
// terminal state is judged a failure, since the recording stopped without
// sustained effort. Samples after the terminal one are dropped from the
// returned trace.
func (c Config) Replay(trace models.EffortTrace) (Verdict, []models.Marker) {
	snap := c.Initial()
	var all []models.Marker
	var elapsed time.Duration
	n := 0
	for _, s := range trace {
		var markers []models.Marker
		snap, markers = c.Step(snap, s.Value, s.Elapsed)
		all = append(all, markers...)
		elapsed = s.Elapsed
		n++
		if snap.State.Terminal() {
			break
		}
	}
	if !snap.State.Terminal() {
		snap.State = StateFailure
	}
	return Verdict{
		Result:        snap.Result(),
		Trace:         trace[:n].Clone(),
		AverageEffort: snap.Average(),
		Elapsed:       elapsed,
	}, all
}
