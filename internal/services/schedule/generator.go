package schedule

import (
	"errors"
	"fmt"
	"math/rand"

	"EffortLab/internal/domain/models"
)

var ErrInvalidFactors = errors.New("invalid schedule factors")

// Factors describes the experimental design to expand into a schedule.
type Factors struct {
	Repeats           int                       `json:"n_repeats" yaml:"n_repeats"`
	EffortLevels      []int                     `json:"effort_levels" yaml:"effort_levels"`
	MagnitudeLevels   []int                     `json:"magnitude_levels" yaml:"magnitude_levels"`
	UncertaintyLevels []models.UncertaintyClass `json:"uncertainty_levels" yaml:"uncertainty_levels"`
	BlockTypes        []models.ActionType       `json:"block_types" yaml:"block_types"`
	TrialsPerBlock    int                       `json:"n_trials_per_block" yaml:"n_trials_per_block"`
	Delta             int                       `json:"delta" yaml:"delta"`
}

// Total is the number of trials the factors expand to.
func (f Factors) Total() int {
	return f.Repeats * len(f.EffortLevels) * len(f.MagnitudeLevels) * len(f.UncertaintyLevels) * len(f.BlockTypes)
}

func (f Factors) Validate() error {
	switch {
	case f.Repeats < 1:
		return fmt.Errorf("%w: n_repeats must be at least 1", ErrInvalidFactors)
	case f.TrialsPerBlock < 1:
		return fmt.Errorf("%w: n_trials_per_block must be at least 1", ErrInvalidFactors)
	case len(f.EffortLevels) == 0:
		return fmt.Errorf("%w: effort_levels is empty", ErrInvalidFactors)
	case len(f.MagnitudeLevels) == 0:
		return fmt.Errorf("%w: magnitude_levels is empty", ErrInvalidFactors)
	case len(f.UncertaintyLevels) == 0:
		return fmt.Errorf("%w: uncertainty_levels is empty", ErrInvalidFactors)
	case len(f.BlockTypes) == 0:
		return fmt.Errorf("%w: block_types is empty", ErrInvalidFactors)
	}
	for _, u := range f.UncertaintyLevels {
		if _, err := models.ParseUncertaintyClass(string(u)); err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownUncertainty, u)
		}
	}
	for _, b := range f.BlockTypes {
		if _, err := models.ParseActionType(string(b)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFactors, err)
		}
	}
	return nil
}

type cell struct {
	effort      int
	magnitude   int
	uncertainty models.UncertaintyClass
}

// Generate expands the factorial design per block type, shuffles each type's
// trials, cuts them into blocks and interleaves the blocks round-robin.
// Block numbers and trial_in_experiment are 1-based in emission order.
func Generate(rng *rand.Rand, f Factors) ([]models.ScheduledTrial, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	delta := f.Delta
	if delta == 0 {
		delta = DefaultDelta
	}

	chunks := make([][][]cell, len(f.BlockTypes))
	for i := range f.BlockTypes {
		cells := cross(f)
		rng.Shuffle(len(cells), func(a, b int) { cells[a], cells[b] = cells[b], cells[a] })
		chunks[i] = chunk(cells, f.TrialsPerBlock)
	}

	out := make([]models.ScheduledTrial, 0, f.Total())
	block := 0
	for round := 0; ; round++ {
		emitted := false
		for i, action := range f.BlockTypes {
			if round >= len(chunks[i]) {
				continue
			}
			emitted = true
			block++
			for _, c := range chunks[i][round] {
				t, err := scheduledTrial(rng, c, action, delta)
				if err != nil {
					return nil, err
				}
				t.BlockNumber = block
				t.TrialInExperiment = len(out) + 1
				out = append(out, t)
			}
		}
		if !emitted {
			break
		}
	}
	return out, nil
}

func cross(f Factors) []cell {
	cells := make([]cell, 0, f.Repeats*len(f.EffortLevels)*len(f.MagnitudeLevels)*len(f.UncertaintyLevels))
	for r := 0; r < f.Repeats; r++ {
		for _, e := range f.EffortLevels {
			for _, m := range f.MagnitudeLevels {
				for _, u := range f.UncertaintyLevels {
					cells = append(cells, cell{effort: e, magnitude: m, uncertainty: u})
				}
			}
		}
	}
	return cells
}

func chunk(cells []cell, size int) [][]cell {
	var out [][]cell
	for start := 0; start < len(cells); start += size {
		end := min(start+size, len(cells))
		out = append(out, cells[start:end])
	}
	return out
}

// scheduledTrial realizes one cell: the actual outcome is one of the four
// bars, drawn uniformly, and is a loss on avoid blocks.
func scheduledTrial(rng *rand.Rand, c cell, action models.ActionType, delta int) (models.ScheduledTrial, error) {
	class, err := models.ParseUncertaintyClass(string(c.uncertainty))
	if err != nil {
		return models.ScheduledTrial{}, fmt.Errorf("%w: %q", ErrUnknownUncertainty, c.uncertainty)
	}
	bars, err := BarMagnitudes(rng, c.magnitude, class, delta)
	if err != nil {
		return models.ScheduledTrial{}, err
	}
	actual := bars[rng.Intn(len(bars))]
	if action == models.ActionAvoid {
		actual = -actual
	}
	return models.ScheduledTrial{
		OutcomeLevel:  c.magnitude,
		ActualOutcome: actual,
		Effort:        c.effort,
		ActionType:    action,
		Uncertainty:   class,
	}, nil
}
