package schedule

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"EffortLab/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSVScheduleFile(t *testing.T) {
	in := strings.Join([]string{
		"block_number,outcome_level,actual_outcome,effort,action_type,attention_focus,rating,global_effort_state,trial_in_experiment",
		"1,5,3,40,approach,reward,yes,low,1",
		"1,9,13,80,approach,reward,no,low,2",
		"2,7,-11,60,avoid,heart,no,high,3",
		"",
	}, "\n")

	trials, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, trials, 3)

	assert.Equal(t, models.ScheduledTrial{
		BlockNumber:       2,
		OutcomeLevel:      7,
		ActualOutcome:     -11,
		Effort:            60,
		ActionType:        models.ActionAvoid,
		AttentionFocus:    "heart",
		Rating:            "no",
		GlobalEffortState: "high",
		TrialInExperiment: 3,
	}, trials[2])
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("block_number,outcome_level,actual_outcome,effort,action_type\n"))
	assert.ErrorIs(t, err, ErrEmptySchedule)

	_, err = ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptySchedule)

	_, err = ReadCSV(strings.NewReader("block_number,effort\n1,2\n"))
	assert.ErrorContains(t, err, "outcome_level")

	_, err = ReadCSV(strings.NewReader("block_number,outcome_level,actual_outcome,effort,action_type,uncertainty\n1,5,5,1,approach,wide\n"))
	assert.ErrorIs(t, err, ErrUnknownUncertainty)
}

func TestWriteThenReadGenerated(t *testing.T) {
	trials, err := Generate(rand.New(rand.NewSource(11)), scenarioFactors())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, trials))
	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, trials, back)

	path := filepath.Join(t.TempDir(), "schedule.xlsx")
	require.NoError(t, WriteFile(path, trials))
	back, err = ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, trials, back)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
