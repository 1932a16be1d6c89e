package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EffortLab/internal/domain/models"
	drepo "EffortLab/internal/domain/repository"
	"EffortLab/internal/service/device"
	"EffortLab/internal/services/effort"
	"EffortLab/pkg/logger"

	"github.com/google/uuid"
)

var ErrNoCalibration = errors.New("session has no usable max strength")

// CreateSessionInput starts a session. MaxStrength is looked up from the
// participant's calibration when zero.
type CreateSessionInput struct {
	Participant  string
	Mode         models.Mode
	MaxStrength  float64
	ZeroBaseline float64
}

// Calibrations is the lookup side of CalibrationService.
type Calibrations interface {
	Lookup(ctx context.Context, participant string) (*models.Calibration, error)
}

// SessionService keeps per-participant state across trials. Every update
// runs under the session lock.
type SessionService struct {
	store  drepo.SessionStore
	calib  Calibrations
	runner *TrialRunner
	log    *logger.Logger
	now    func() time.Time
}

func NewSessionService(store drepo.SessionStore, calib Calibrations, runner *TrialRunner, log *logger.Logger) *SessionService {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionService{store: store, calib: calib, runner: runner, log: log, now: time.Now}
}

func (s *SessionService) Create(ctx context.Context, in CreateSessionInput) (*models.SessionState, error) {
	if in.Participant == "" {
		return nil, errors.New("participant is required")
	}
	if in.Mode == "" {
		in.Mode = models.ModeStaircase
	}
	if in.Mode != models.ModeStaircase && in.Mode != models.ModeSchedule {
		return nil, fmt.Errorf("unknown mode %q", in.Mode)
	}
	if in.MaxStrength == 0 {
		c, err := s.calib.Lookup(ctx, in.Participant)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoCalibration, err)
		}
		in.MaxStrength = c.MaxStrength
		in.ZeroBaseline = c.ZeroBaseline
	}
	if in.MaxStrength <= 0 {
		return nil, ErrNoCalibration
	}

	st := &models.SessionState{
		ID:           uuid.NewString(),
		Participant:  in.Participant,
		Mode:         in.Mode,
		ZeroBaseline: in.ZeroBaseline,
		MaxStrength:  in.MaxStrength,
		Staircase:    s.runner.Config().Staircase.Initial(),
		StartedAt:    s.now().UTC(),
	}
	if err := s.store.Put(ctx, st); err != nil {
		return nil, err
	}
	s.log.Info("session created",
		logger.String("session", st.ID),
		logger.String("participant", st.Participant),
		logger.String("mode", string(st.Mode)),
		logger.Float64("max_strength", st.MaxStrength))
	return st, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*models.SessionState, error) {
	return s.store.Get(ctx, id)
}

// Judge scores a trial recorded by the presentation layer. Raw samples are
// normalized with the session's calibration first.
func (s *SessionService) Judge(ctx context.Context, id string, in TrialInput, trace models.EffortTrace, raw bool) (*TrialResult, error) {
	return s.update(ctx, id, func(st models.SessionState) (*TrialResult, error) {
		if raw {
			trace = normalizeTrace(trace, st.ZeroBaseline, st.MaxStrength)
		}
		return s.runner.Judge(ctx, st, in, trace)
	})
}

// Run plays a trial against a live raw source, sending markers to trigger.
func (s *SessionService) Run(ctx context.Context, id string, in TrialInput, src drepo.SignalSource, trigger drepo.EventTrigger, obs effort.Observer) (*TrialResult, error) {
	return s.update(ctx, id, func(st models.SessionState) (*TrialResult, error) {
		norm := device.NormalizedSource{Src: src, ZeroBaseline: st.ZeroBaseline, MaxStrength: st.MaxStrength}
		return s.runner.Run(ctx, st, in, norm, trigger, obs)
	})
}

func (s *SessionService) update(ctx context.Context, id string, fn func(models.SessionState) (*TrialResult, error)) (*TrialResult, error) {
	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := fn(*st)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, &res.Session); err != nil {
		return nil, err
	}
	return res, nil
}

func normalizeTrace(t models.EffortTrace, zero, maxStrength float64) models.EffortTrace {
	out := make(models.EffortTrace, len(t))
	for i, smp := range t {
		out[i] = models.Sample{Value: models.Normalize(smp.Value, zero, maxStrength), Elapsed: smp.Elapsed}
	}
	return out
}
