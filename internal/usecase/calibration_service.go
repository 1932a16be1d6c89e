package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EffortLab/internal/domain/models"
	drepo "EffortLab/internal/domain/repository"
	"EffortLab/internal/services/calibration"
	"EffortLab/internal/services/effort"
	"EffortLab/pkg/cache"
	"EffortLab/pkg/logger"
)

// CalibrationTrials is the number of squeezes in one calibration.
const CalibrationTrials = 3

// CalibrationService turns calibration squeezes into a stored maximum
// strength and serves it back to sessions.
type CalibrationService struct {
	store     drepo.CalibrationStore
	cache     cache.Service
	cacheTTL  time.Duration
	extractor calibration.Extractor
	recorder  *calibration.Recorder
	log       *logger.Logger
	now       func() time.Time
}

type CalibrationOption func(*CalibrationService)

// WithCalibrationCache puts lookups behind c for ttl.
func WithCalibrationCache(c cache.Service, ttl time.Duration) CalibrationOption {
	return func(s *CalibrationService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithRecorder(r *calibration.Recorder) CalibrationOption {
	return func(s *CalibrationService) {
		if r != nil {
			s.recorder = r
			s.extractor = calibration.NewExtractor(r.Duration())
		}
	}
}

func WithCalibrationLogger(l *logger.Logger) CalibrationOption {
	return func(s *CalibrationService) {
		if l != nil {
			s.log = l
		}
	}
}

func WithCalibrationClock(now func() time.Time) CalibrationOption {
	return func(s *CalibrationService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewCalibrationService(store drepo.CalibrationStore, opts ...CalibrationOption) *CalibrationService {
	s := &CalibrationService{
		store:     store,
		cacheTTL:  12 * time.Hour,
		extractor: calibration.NewExtractor(calibration.DefaultRecordingDuration),
		recorder:  calibration.NewRecorder(),
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract reduces one recording to its peak strength.
func (s *CalibrationService) Extract(efforts []float64) (float64, error) {
	return s.extractor.Peak(efforts)
}

// Compute builds a calibration from exactly three recordings without
// storing it. The first recording is practice.
func (s *CalibrationService) Compute(participant string, zeroBaseline float64, traces [][]float64) (*models.Calibration, error) {
	if participant == "" {
		return nil, errors.New("participant is required")
	}
	if len(traces) != CalibrationTrials {
		return nil, fmt.Errorf("%w: need %d recordings, got %d", calibration.ErrTooFewTrials, CalibrationTrials, len(traces))
	}
	peaks := make([]float64, 0, len(traces))
	for i, t := range traces {
		p, err := s.extractor.Peak(t)
		if err != nil {
			return nil, fmt.Errorf("trace %d: %w", i+1, err)
		}
		peaks = append(peaks, p)
	}
	ms, err := calibration.SessionMaxStrength(peaks)
	if err != nil {
		return nil, err
	}
	if ms <= 0 {
		return nil, fmt.Errorf("%w: %g", calibration.ErrNoStrength, ms)
	}
	return &models.Calibration{
		Participant:  participant,
		ZeroBaseline: zeroBaseline,
		Peaks:        peaks,
		Traces:       traces,
		MaxStrength:  ms,
		RecordedAt:   s.now().UTC(),
	}, nil
}

// Calibrate computes and stores a calibration, refreshing the lookup cache.
func (s *CalibrationService) Calibrate(ctx context.Context, participant string, zeroBaseline float64, traces [][]float64) (*models.Calibration, error) {
	c, err := s.Compute(participant, zeroBaseline, traces)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save calibration: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, calibrationKey(participant), c, s.cacheTTL); err != nil {
			s.log.Warn("calibration cache refresh failed", logger.String("participant", participant), logger.Error(err))
		}
	}
	s.log.Info("calibration saved",
		logger.String("participant", participant),
		logger.Float64("max_strength", c.MaxStrength),
		logger.Float64("zero_baseline", zeroBaseline))
	return c, nil
}

// Lookup returns the participant's latest calibration.
func (s *CalibrationService) Lookup(ctx context.Context, participant string) (*models.Calibration, error) {
	if s.cache != nil {
		var c models.Calibration
		err := s.cache.Get(ctx, calibrationKey(participant), &c)
		if err == nil {
			return &c, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("calibration cache read failed", logger.String("participant", participant), logger.Error(err))
		}
	}
	c, err := s.store.Lookup(ctx, participant)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, calibrationKey(participant), c, s.cacheTTL)
	}
	return c, nil
}

// Record runs trials squeezes on a live source, resting between them, and
// stores the result. src must be baseline-corrected already; zeroBaseline
// is stored for later normalization.
func (s *CalibrationService) Record(ctx context.Context, participant string, src drepo.SignalSource, zeroBaseline float64, trials int, rest time.Duration, obs effort.Observer) (*models.Calibration, error) {
	if trials != CalibrationTrials {
		return nil, fmt.Errorf("%w: need %d, got %d", calibration.ErrTooFewTrials, CalibrationTrials, trials)
	}
	traces := make([][]float64, 0, trials)
	for i := 0; i < trials; i++ {
		if i > 0 && rest > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(rest):
			}
		}
		s.log.Info("calibration trial", logger.String("participant", participant), logger.Int("trial", i+1))
		t, err := s.recorder.Record(ctx, src, obs)
		if err != nil {
			return nil, fmt.Errorf("calibration trial %d: %w", i+1, err)
		}
		traces = append(traces, t.Values())
	}
	return s.Calibrate(ctx, participant, zeroBaseline, traces)
}

func calibrationKey(participant string) string {
	return cache.Key("calibration", participant)
}
