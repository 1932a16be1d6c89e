package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"EffortLab/internal/domain/models"
	drepo "EffortLab/internal/domain/repository"
	"EffortLab/internal/services/effort"
	"EffortLab/internal/services/scoring"
	"EffortLab/internal/services/staircase"
	"EffortLab/pkg/logger"
	"EffortLab/pkg/util"

	"github.com/google/uuid"
)

var ErrInvalidTrial = errors.New("invalid trial")

// TrialSink receives finished trial records.
type TrialSink interface {
	Process(ctx context.Context, r *models.TrialRecord) error
}

// RunnerConfig is the policy shared by live and judged trials.
type RunnerConfig struct {
	Effort    effort.Config
	Staircase staircase.Config
	Rules     scoring.Rules
	// EffortUnitPercent converts a staircase effort level to percent of
	// maximum strength.
	EffortUnitPercent float64
	Seed              int64
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Effort:            effort.DefaultConfig(),
		Staircase:         staircase.DefaultConfig(),
		Rules:             scoring.DefaultRules(),
		EffortUnitPercent: 10,
	}
}

// TrialInput is what the presentation layer knows once the participant has
// answered an offer.
type TrialInput struct {
	Offer        models.TrialOffer
	Response     models.Response
	ResponseTime time.Duration
	BlockNumber  int
}

// TrialResult is a finished trial together with the session it advanced.
type TrialResult struct {
	Session models.SessionState
	Record  *models.TrialRecord
	Markers []models.Marker
}

// TrialRunner drives one trial from choice to outcome.
type TrialRunner struct {
	cfg     RunnerConfig
	sink    TrialSink
	metrics drepo.Metrics
	clock   effort.Clock
	log     *logger.Logger
	newID   func() string
}

type RunnerOption func(*TrialRunner)

func WithRunnerClock(c effort.Clock) RunnerOption {
	return func(r *TrialRunner) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithRunnerLogger(l *logger.Logger) RunnerOption {
	return func(r *TrialRunner) {
		if l != nil {
			r.log = l
		}
	}
}

func WithIDGenerator(fn func() string) RunnerOption {
	return func(r *TrialRunner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func NewTrialRunner(cfg RunnerConfig, sink TrialSink, metrics drepo.Metrics, opts ...RunnerOption) (*TrialRunner, error) {
	if err := cfg.Effort.Validate(); err != nil {
		return nil, fmt.Errorf("effort config: %w", err)
	}
	if err := cfg.Staircase.Validate(); err != nil {
		return nil, fmt.Errorf("staircase config: %w", err)
	}
	if cfg.EffortUnitPercent <= 0 {
		return nil, errors.New("effort unit percent must be positive")
	}
	r := &TrialRunner{
		cfg:     cfg,
		sink:    sink,
		metrics: metrics,
		clock:   effort.SystemClock(),
		log:     logger.Nop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *TrialRunner) Config() RunnerConfig { return r.cfg }

// Requirement is the effort level, in percent of maximum strength, an offer
// asks for.
func (r *TrialRunner) Requirement(mode models.Mode, offer models.TrialOffer) float64 {
	if mode == models.ModeStaircase {
		return float64(offer.Effort) * r.cfg.EffortUnitPercent
	}
	return float64(offer.Effort)
}

// Run plays one live trial. Markers go to trigger as they happen; src must
// already be normalized to percent of maximum strength.
func (r *TrialRunner) Run(ctx context.Context, s models.SessionState, in TrialInput, src drepo.SignalSource, trigger drepo.EventTrigger, obs effort.Observer) (*TrialResult, error) {
	in, err := r.prepare(s, in)
	if err != nil {
		return nil, err
	}
	rec := &markerLog{next: trigger}
	rec.Send(models.ChoiceMarker(in.Response))

	var v effort.Verdict
	if in.Response == models.ResponseAccept {
		m := effort.NewMonitor(r.cfg.Effort, effort.WithClock(r.clock), effort.WithTrigger(rec), effort.WithLogger(r.log))
		v, err = m.Run(ctx, r.Requirement(s.Mode, in.Offer), src, obs)
		if err != nil {
			r.metrics.RecordError("effort")
			return nil, fmt.Errorf("effort phase: %w", err)
		}
	}
	return r.finish(ctx, s, in, v, rec)
}

// Judge scores a trial whose effort phase was recorded elsewhere. The trace
// must be normalized; markers are returned instead of sent.
func (r *TrialRunner) Judge(ctx context.Context, s models.SessionState, in TrialInput, trace models.EffortTrace) (*TrialResult, error) {
	in, err := r.prepare(s, in)
	if err != nil {
		return nil, err
	}
	rec := &markerLog{}
	rec.Send(models.ChoiceMarker(in.Response))

	var v effort.Verdict
	if in.Response == models.ResponseAccept {
		if len(trace) == 0 {
			return nil, fmt.Errorf("%w: accepted trial without effort samples", ErrInvalidTrial)
		}
		cfg := r.cfg.Effort.WithRequirement(r.Requirement(s.Mode, in.Offer))
		var markers []models.Marker
		v, markers = cfg.Replay(trace)
		for _, mk := range markers {
			rec.Send(mk)
		}
	}
	return r.finish(ctx, s, in, v, rec)
}

// prepare fills a staircase offer from the session when the caller left it
// out and checks the response.
func (r *TrialRunner) prepare(s models.SessionState, in TrialInput) (TrialInput, error) {
	if _, err := models.ParseResponse(string(in.Response)); err != nil {
		return in, fmt.Errorf("%w: %v", ErrInvalidTrial, err)
	}
	if s.Mode == models.ModeStaircase && in.Offer.Reward == 0 && in.Offer.Effort == 0 {
		in.Offer.Reward = s.Staircase.Reward
		in.Offer.Effort = s.Staircase.Effort
	}
	if in.Offer.Action == "" {
		in.Offer.Action = models.ActionApproach
	}
	if in.Offer.Effort < 0 {
		return in, fmt.Errorf("%w: negative effort %d", ErrInvalidTrial, in.Offer.Effort)
	}
	return in, nil
}

func (r *TrialRunner) finish(ctx context.Context, s models.SessionState, in TrialInput, v effort.Verdict, rec *markerLog) (*TrialResult, error) {
	outcome := models.TrialOutcome{
		Response:      in.Response,
		Result:        v.Result,
		Trace:         v.Trace,
		AverageEffort: v.AverageEffort,
		ResponseTime:  in.ResponseTime,
		EffortTime:    v.Elapsed,
	}
	outcome.Points = r.cfg.Rules.Points(s.Mode, in.Offer, outcome)

	next := s
	next.CumulativePoints += outcome.Points
	next.TrialsDone++
	if s.Mode == models.ModeStaircase {
		rng := util.Stream(r.cfg.Seed, s.ID, strconv.Itoa(s.Staircase.Trial))
		next.Staircase = r.cfg.Staircase.Advance(rng, s.Staircase, in.Offer.Reward, in.Offer.Effort, in.Response)
		r.metrics.RecordEstimate(next.Staircase.K)
	}

	record := &models.TrialRecord{
		ID:               r.newID(),
		SessionID:        s.ID,
		Participant:      s.Participant,
		Mode:             s.Mode,
		TrialIndex:       next.TrialsDone,
		BlockNumber:      in.BlockNumber,
		Offer:            in.Offer,
		Outcome:          outcome,
		CumulativePoints: next.CumulativePoints,
		EstimatedK:       next.Staircase.K,
		RecordedAt:       r.clock.Now().UTC(),
	}

	if r.sink != nil {
		if err := r.sink.Process(ctx, record); err != nil {
			return nil, fmt.Errorf("record trial: %w", err)
		}
	}

	rec.Send(scoring.OutcomeMarker(in.Offer, outcome))
	r.metrics.RecordTrial(in.Offer.Action, outcomeLabel(outcome))
	r.log.Info("trial finished",
		logger.String("session", s.ID),
		logger.Int("trial", record.TrialIndex),
		logger.String("response", string(in.Response)),
		logger.String("result", string(outcome.Result)),
		logger.Int("points", outcome.Points),
		logger.Int("cumulative_points", next.CumulativePoints))

	return &TrialResult{Session: next, Record: record, Markers: rec.list()}, nil
}

func outcomeLabel(o models.TrialOutcome) models.Result {
	if o.Response == models.ResponseReject {
		return "reject"
	}
	return o.Result
}

// markerLog keeps every marker of a trial and forwards it to next.
type markerLog struct {
	mu      sync.Mutex
	markers []models.Marker
	next    drepo.EventTrigger
}

func (l *markerLog) Send(m models.Marker) {
	l.mu.Lock()
	l.markers = append(l.markers, m)
	l.mu.Unlock()
	if l.next != nil {
		l.next.Send(m)
	}
}

func (l *markerLog) list() []models.Marker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Marker(nil), l.markers...)
}
