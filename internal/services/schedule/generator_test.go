package schedule

import (
	"math/rand"
	"testing"

	"EffortLab/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioFactors() Factors {
	return Factors{
		Repeats:           1,
		EffortLevels:      []int{40, 60, 80, 100},
		MagnitudeLevels:   []int{5, 7, 9},
		UncertaintyLevels: []models.UncertaintyClass{models.UncertaintySafe, models.UncertaintyPartial, models.UncertaintyFull},
		BlockTypes:        []models.ActionType{models.ActionApproach},
		TrialsPerBlock:    12,
	}
}

func TestGenerateSingleTypeCoversCross(t *testing.T) {
	f := scenarioFactors()
	trials, err := Generate(rand.New(rand.NewSource(1)), f)
	require.NoError(t, err)
	require.Len(t, trials, 36)

	seen := make(map[[3]any]int)
	for i, tr := range trials {
		assert.Equal(t, i+1, tr.TrialInExperiment)
		assert.Equal(t, i/12+1, tr.BlockNumber)
		assert.Equal(t, models.ActionApproach, tr.ActionType)
		seen[[3]any{tr.Effort, tr.OutcomeLevel, tr.Uncertainty}]++
	}
	assert.Len(t, seen, 36)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestGenerateLengthAndAlternation(t *testing.T) {
	f := Factors{
		Repeats:           2,
		EffortLevels:      []int{1, 5},
		MagnitudeLevels:   []int{6, 10},
		UncertaintyLevels: []models.UncertaintyClass{models.UncertaintyPartial},
		BlockTypes:        []models.ActionType{models.ActionApproach, models.ActionAvoid},
		TrialsPerBlock:    3,
	}
	trials, err := Generate(rand.New(rand.NewSource(7)), f)
	require.NoError(t, err)
	require.Len(t, trials, f.Total())
	require.Equal(t, 16, f.Total())

	blockType := map[int]models.ActionType{}
	blockSize := map[int]int{}
	for _, tr := range trials {
		if prev, ok := blockType[tr.BlockNumber]; ok {
			require.Equal(t, prev, tr.ActionType, "block %d mixes types", tr.BlockNumber)
		}
		blockType[tr.BlockNumber] = tr.ActionType
		blockSize[tr.BlockNumber]++
	}
	require.Len(t, blockType, 6)
	for b := 2; b <= 6; b++ {
		assert.NotEqual(t, blockType[b-1], blockType[b], "blocks %d and %d", b-1, b)
	}
	assert.Equal(t, 2, blockSize[5])
	assert.Equal(t, 2, blockSize[6])
}

func TestGenerateActualOutcomeIsABar(t *testing.T) {
	f := Factors{
		Repeats:           3,
		EffortLevels:      []int{2},
		MagnitudeLevels:   []int{10},
		UncertaintyLevels: []models.UncertaintyClass{models.UncertaintyFull},
		BlockTypes:        []models.ActionType{models.ActionApproach, models.ActionAvoid},
		TrialsPerBlock:    1,
	}
	trials, err := Generate(rand.New(rand.NewSource(3)), f)
	require.NoError(t, err)
	for _, tr := range trials {
		switch tr.ActionType {
		case models.ActionApproach:
			assert.Contains(t, []int{6, 14}, tr.ActualOutcome)
		case models.ActionAvoid:
			assert.Contains(t, []int{-6, -14}, tr.ActualOutcome)
		}
		assert.Equal(t, 10, tr.OutcomeLevel)
	}
}

func TestGenerateDeterministicPerSeed(t *testing.T) {
	f := scenarioFactors()
	a, err := Generate(rand.New(rand.NewSource(42)), f)
	require.NoError(t, err)
	b, err := Generate(rand.New(rand.NewSource(42)), f)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateInvalidFactors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Factors)
		want   error
	}{
		{"zero repeats", func(f *Factors) { f.Repeats = 0 }, ErrInvalidFactors},
		{"zero per block", func(f *Factors) { f.TrialsPerBlock = 0 }, ErrInvalidFactors},
		{"no efforts", func(f *Factors) { f.EffortLevels = nil }, ErrInvalidFactors},
		{"no block types", func(f *Factors) { f.BlockTypes = nil }, ErrInvalidFactors},
		{"unknown uncertainty", func(f *Factors) {
			f.UncertaintyLevels = []models.UncertaintyClass{"10/90"}
		}, ErrUnknownUncertainty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := scenarioFactors()
			tt.mutate(&f)
			_, err := Generate(rand.New(rand.NewSource(1)), f)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBarMagnitudes(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	tests := []struct {
		class models.UncertaintyClass
		want  []int
	}{
		{models.UncertaintySafe, []int{7, 7, 7, 7}},
		{models.UncertaintyPartial, []int{3, 7, 7, 11}},
		{models.UncertaintyFull, []int{3, 3, 11, 11}},
	}
	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			bars, err := BarMagnitudes(rng, 7, tt.class, DefaultDelta)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, bars)
		})
	}

	_, err := BarMagnitudes(rng, 7, "uniform", DefaultDelta)
	assert.ErrorIs(t, err, ErrUnknownUncertainty)
}
