package usecase

import (
	"context"
	"testing"
	"time"

	"EffortLab/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staircaseSession() models.SessionState {
	cfg := DefaultRunnerConfig()
	return models.SessionState{
		ID:          "s1",
		Participant: "P1",
		Mode:        models.ModeStaircase,
		MaxStrength: 100,
		Staircase:   cfg.Staircase.Initial(),
	}
}

func TestTrialRunner_JudgeStaircaseSuccess(t *testing.T) {
	store := &memStore{}
	r := newTestRunner(t, store, newStepClock(time.Millisecond))
	s := staircaseSession()

	res, err := r.Judge(context.Background(), s, TrialInput{Response: models.ResponseAccept, ResponseTime: 900 * time.Millisecond}, trace(80, 1500*time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, models.ResultSuccess, res.Record.Outcome.Result)
	assert.Equal(t, 18, res.Record.Offer.Reward, "offer comes from the staircase state")
	assert.Equal(t, 6, res.Record.Offer.Effort)
	assert.Equal(t, 18, res.Record.Outcome.Points)
	assert.Equal(t, 18, res.Session.CumulativePoints)
	assert.Equal(t, 1, res.Session.TrialsDone)
	assert.Equal(t, 1, res.Session.Staircase.Trial)
	assert.Equal(t, res.Session.Staircase.K, res.Record.EstimatedK)
	assert.Equal(t, 0, s.Staircase.Trial, "input session is not mutated")
	assert.Equal(t, time.Second, res.Record.Outcome.EffortTime)
	assert.InDelta(t, 80, res.Record.Outcome.AverageEffort, 1e-9)
	assert.Equal(t, []models.Marker{
		models.MarkerParticipantChoiceAccept,
		models.MarkerEffortStarted,
		models.MarkerEffortThresholdCrossed,
		models.MarkerEffortSuccess,
		models.MarkerOutcomePresentationApproachSuccess,
	}, res.Markers)
	require.Equal(t, 1, store.count())
	assert.Equal(t, "trial-1", store.records[0].ID)
}

func TestTrialRunner_JudgeIsDeterministic(t *testing.T) {
	s := staircaseSession()
	in := TrialInput{Response: models.ResponseReject}
	a, err := newTestRunner(t, nil, newStepClock(time.Millisecond)).Judge(context.Background(), s, in, nil)
	require.NoError(t, err)
	b, err := newTestRunner(t, nil, newStepClock(time.Millisecond)).Judge(context.Background(), s, in, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Session.Staircase, b.Session.Staircase)
}

func TestTrialRunner_JudgeReject(t *testing.T) {
	r := newTestRunner(t, nil, newStepClock(time.Millisecond))
	res, err := r.Judge(context.Background(), staircaseSession(), TrialInput{Response: models.ResponseReject}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResultNone, res.Record.Outcome.Result)
	assert.Equal(t, 0, res.Record.Outcome.Points)
	assert.Empty(t, res.Record.Outcome.Trace)
	assert.Equal(t, []models.Marker{
		models.MarkerParticipantChoiceReject,
		models.MarkerOutcomePresentationApproachReject,
	}, res.Markers)
}

func TestTrialRunner_JudgeScheduleAvoidFailure(t *testing.T) {
	r := newTestRunner(t, nil, newStepClock(time.Millisecond))
	s := models.SessionState{ID: "s2", Participant: "P2", Mode: models.ModeSchedule, MaxStrength: 100}
	in := TrialInput{
		Offer:    models.TrialOffer{Effort: 60, Action: models.ActionAvoid, OutcomeLevel: -7, ActualOutcome: -9},
		Response: models.ResponseAccept,
	}

	res, err := r.Judge(context.Background(), s, in, trace(30, 2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.ResultFailure, res.Record.Outcome.Result)
	assert.Equal(t, -9, res.Record.Outcome.Points)
	assert.Equal(t, -9, res.Session.CumulativePoints)
	assert.Equal(t, s.Staircase, res.Session.Staircase, "schedule mode leaves the staircase alone")
	assert.Equal(t, models.MarkerOutcomePresentationAvoidFailure, res.Markers[len(res.Markers)-1])
}

func TestTrialRunner_JudgeUpdatesKFromAnsweredOffer(t *testing.T) {
	store := &memStore{}
	r := newTestRunner(t, store, newStepClock(time.Millisecond))
	s := staircaseSession()

	in := TrialInput{Offer: models.TrialOffer{Reward: 28, Effort: 1}, Response: models.ResponseReject}
	res, err := r.Judge(context.Background(), s, in, nil)
	require.NoError(t, err)

	assert.Equal(t, 28, res.Record.Offer.Reward)
	assert.Equal(t, 1, res.Record.Offer.Effort)
	want := s.Staircase.K + r.Config().Staircase.StepSize(0)
	assert.InDelta(t, want, res.Session.Staircase.K, 1e-12)
	assert.InDelta(t, want, res.Record.EstimatedK, 1e-12)
}

func TestTrialRunner_JudgeRejectsBadInput(t *testing.T) {
	r := newTestRunner(t, nil, newStepClock(time.Millisecond))
	_, err := r.Judge(context.Background(), staircaseSession(), TrialInput{Response: "maybe"}, nil)
	assert.ErrorIs(t, err, ErrInvalidTrial)

	_, err = r.Judge(context.Background(), staircaseSession(), TrialInput{Response: models.ResponseAccept}, nil)
	assert.ErrorIs(t, err, ErrInvalidTrial)
}

func TestTrialRunner_RunLive(t *testing.T) {
	store := &memStore{}
	r := newTestRunner(t, store, newStepClock(100*time.Millisecond))
	trig := &recordingTrigger{}

	res, err := r.Run(context.Background(), staircaseSession(), TrialInput{Response: models.ResponseAccept}, constSource(75), trig, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResultSuccess, res.Record.Outcome.Result)
	assert.Equal(t, res.Markers, trig.sent)
	assert.Equal(t, models.MarkerParticipantChoiceAccept, trig.sent[0])
	assert.Equal(t, models.MarkerOutcomePresentationApproachSuccess, trig.sent[len(trig.sent)-1])
	assert.Equal(t, 1, store.count())
}

func TestTrialRunner_RunCancelled(t *testing.T) {
	r := newTestRunner(t, &memStore{}, newStepClock(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, staircaseSession(), TrialInput{Response: models.ResponseAccept}, constSource(75), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrialRunner_Requirement(t *testing.T) {
	r := newTestRunner(t, nil, newStepClock(time.Millisecond))
	assert.Equal(t, 60.0, r.Requirement(models.ModeStaircase, models.TrialOffer{Effort: 6}))
	assert.Equal(t, 60.0, r.Requirement(models.ModeSchedule, models.TrialOffer{Effort: 60}))
}
