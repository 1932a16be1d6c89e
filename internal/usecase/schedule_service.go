package usecase

import (
	"fmt"
	"math/rand"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/services/schedule"
	"EffortLab/pkg/util"
)

// ScheduleService generates trial schedules and stimulus bars.
type ScheduleService struct {
	defaults schedule.Factors
	seed     int64
}

func NewScheduleService(defaults schedule.Factors, seed int64) *ScheduleService {
	return &ScheduleService{defaults: defaults, seed: seed}
}

// Defaults are the configured factors.
func (s *ScheduleService) Defaults() schedule.Factors { return s.defaults }

// Generate expands f, or the configured factors when f is nil. A zero seed
// falls back to the configured seed, then to the clock.
func (s *ScheduleService) Generate(f *schedule.Factors, seed int64) ([]models.ScheduledTrial, int64, error) {
	factors := s.defaults
	if f != nil {
		factors = *f
	}
	if factors.Delta == 0 {
		factors.Delta = schedule.DefaultDelta
	}
	if seed == 0 {
		seed = s.seed
	}
	seed = util.SeedOrNow(seed)
	trials, err := schedule.Generate(rand.New(rand.NewSource(seed)), factors)
	if err != nil {
		return nil, seed, err
	}
	return trials, seed, nil
}

// Stimuli draws the bar magnitudes shown for an offer.
func (s *ScheduleService) Stimuli(mean int, class models.UncertaintyClass, seed int64) ([]int, error) {
	delta := s.defaults.Delta
	if delta == 0 {
		delta = schedule.DefaultDelta
	}
	bars, err := schedule.BarMagnitudes(rand.New(rand.NewSource(util.SeedOrNow(seed))), mean, class, delta)
	if err != nil {
		return nil, fmt.Errorf("stimuli for %d: %w", mean, err)
	}
	return bars, nil
}

// WriteFile generates a schedule and writes it as CSV or XLSX by extension.
// It returns the trial count and the seed used.
func (s *ScheduleService) WriteFile(path string, seed int64) (int, int64, error) {
	trials, seed, err := s.Generate(nil, seed)
	if err != nil {
		return 0, seed, err
	}
	if err := schedule.WriteFile(path, trials); err != nil {
		return 0, seed, err
	}
	return len(trials), seed, nil
}
