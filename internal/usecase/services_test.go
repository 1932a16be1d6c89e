package usecase

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"EffortLab/internal/domain/models"
	domrepo "EffortLab/internal/domain/repository"
	"EffortLab/internal/repository"
	"EffortLab/internal/services/calibration"
	"EffortLab/internal/services/schedule"
	"EffortLab/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newCalibrationService(t *testing.T) (*CalibrationService, *cache.MemoryCache) {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	store := repository.NewFileCalibrationStore(filepath.Join(t.TempDir(), "calibration"))
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return NewCalibrationService(store,
		WithCalibrationCache(mc, time.Hour),
		WithCalibrationClock(func() time.Time { return at }),
	), mc
}

func TestCalibrationService_CalibrateAndLookup(t *testing.T) {
	svc, mc := newCalibrationService(t)
	ctx := context.Background()

	c, err := svc.Calibrate(ctx, "P1", 2, [][]float64{flat(50, 40), flat(100, 40), flat(120, 40)})
	require.NoError(t, err)
	assert.InDelta(t, 110, c.MaxStrength, 1e-9, "practice trial is discarded")
	assert.Equal(t, []float64{50, 100, 120}, c.Peaks)

	got, err := svc.Lookup(ctx, "P1")
	require.NoError(t, err)
	assert.InDelta(t, 110, got.MaxStrength, 1e-9)
	assert.InDelta(t, 2, got.ZeroBaseline, 1e-9)

	// a cold cache falls through to the store
	require.NoError(t, mc.Delete(ctx, calibrationKey("P1")))
	got, err = svc.Lookup(ctx, "P1")
	require.NoError(t, err)
	assert.InDelta(t, 110, got.MaxStrength, 1e-9)

	_, err = svc.Lookup(ctx, "P9")
	assert.ErrorIs(t, err, domrepo.ErrCalibrationNotFound)
}

func TestCalibrationService_ComputeRejects(t *testing.T) {
	svc, _ := newCalibrationService(t)
	_, err := svc.Compute("P1", 0, [][]float64{flat(1, 4), flat(2, 4)})
	assert.ErrorIs(t, err, calibration.ErrTooFewTrials)

	_, err = svc.Compute("P1", 0, [][]float64{flat(1, 4), {}, flat(2, 4)})
	assert.ErrorIs(t, err, calibration.ErrEmptyTrace)

	_, err = svc.Compute("", 0, [][]float64{flat(1, 4), flat(1, 4), flat(1, 4)})
	assert.Error(t, err)

	_, err = svc.Compute("P1", 5, [][]float64{{0}, {0}, {0}})
	assert.ErrorIs(t, err, calibration.ErrNoStrength)
}

func TestCalibrationService_ComputeIgnoresBaselineInStrengthCheck(t *testing.T) {
	svc, _ := newCalibrationService(t)
	// Traces are already baseline corrected, so a max equal to the raw
	// baseline is a valid calibration.
	c, err := svc.Compute("P1", 12, [][]float64{{12}, {12}, {12}})
	require.NoError(t, err)
	assert.InDelta(t, 12, c.MaxStrength, 1e-9)
	assert.InDelta(t, 100, models.Normalize(24, c.ZeroBaseline, c.MaxStrength), 1e-9)
}

func TestCalibrationService_Extract(t *testing.T) {
	svc, _ := newCalibrationService(t)
	efforts := flat(0, 40)
	efforts[20] = 50
	// 40 samples over 4s put two samples either side of the peak in the window
	p, err := svc.Extract(efforts)
	require.NoError(t, err)
	assert.InDelta(t, 10, p, 1e-9)
}

func newSessionService(t *testing.T) (*SessionService, *memStore) {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	calib, _ := newCalibrationService(t)
	_, err := calib.Calibrate(context.Background(), "P1", 0, [][]float64{flat(80, 40), flat(100, 40), flat(100, 40)})
	require.NoError(t, err)

	store := &memStore{}
	runner := newTestRunner(t, store, newStepClock(100*time.Millisecond))
	sessions := repository.NewCacheSessionStore(mc, time.Hour, time.Minute)
	return NewSessionService(sessions, calib, runner, nil), store
}

func TestSessionService_CreateLooksUpCalibration(t *testing.T) {
	svc, _ := newSessionService(t)
	ctx := context.Background()

	s, err := svc.Create(ctx, CreateSessionInput{Participant: "P1"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, models.ModeStaircase, s.Mode)
	assert.InDelta(t, 100, s.MaxStrength, 1e-9)
	assert.Equal(t, 18, s.Staircase.Reward)

	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = svc.Create(ctx, CreateSessionInput{Participant: "P2"})
	assert.ErrorIs(t, err, ErrNoCalibration)

	_, err = svc.Create(ctx, CreateSessionInput{Participant: "P2", Mode: "free"})
	assert.Error(t, err)

	_, err = svc.Create(ctx, CreateSessionInput{Participant: "P2", MaxStrength: -3})
	assert.ErrorIs(t, err, ErrNoCalibration)

	s, err = svc.Create(ctx, CreateSessionInput{Participant: "P2", MaxStrength: 12, ZeroBaseline: 12})
	require.NoError(t, err)
	assert.InDelta(t, 12, s.MaxStrength, 1e-9)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domrepo.ErrSessionNotFound)
}

func TestSessionService_JudgeAdvancesSession(t *testing.T) {
	svc, store := newSessionService(t)
	ctx := context.Background()
	s, err := svc.Create(ctx, CreateSessionInput{Participant: "P3", MaxStrength: 200})
	require.NoError(t, err)

	// raw samples of 160 are 80% of a 200 max strength
	res, err := svc.Judge(ctx, s.ID, TrialInput{Response: models.ResponseAccept}, trace(160, 1500*time.Millisecond), true)
	require.NoError(t, err)
	assert.Equal(t, models.ResultSuccess, res.Record.Outcome.Result)
	assert.InDelta(t, 80, res.Record.Outcome.AverageEffort, 1e-9)

	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TrialsDone)
	assert.Equal(t, res.Session.Staircase, got.Staircase)
	assert.Equal(t, 1, store.count())
}

func TestSessionService_RunNormalizesLiveSource(t *testing.T) {
	svc, _ := newSessionService(t)
	ctx := context.Background()
	s, err := svc.Create(ctx, CreateSessionInput{Participant: "P3", MaxStrength: 200})
	require.NoError(t, err)

	// 100 raw is 50%, below the 60% requirement of the first offer
	res, err := svc.Run(ctx, s.ID, TrialInput{Response: models.ResponseAccept}, constSource(100), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ResultFailure, res.Record.Outcome.Result)
	assert.Equal(t, -1, res.Record.Outcome.Points)
}

func TestSessionService_BusySession(t *testing.T) {
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	sessions := repository.NewCacheSessionStore(mc, time.Hour, time.Minute)
	runner := newTestRunner(t, nil, newStepClock(time.Millisecond))
	svc := NewSessionService(sessions, nil, runner, nil)
	ctx := context.Background()

	s, err := svc.Create(ctx, CreateSessionInput{Participant: "P1", MaxStrength: 100})
	require.NoError(t, err)
	unlock, err := sessions.Lock(ctx, s.ID)
	require.NoError(t, err)
	defer unlock()

	_, err = svc.Judge(ctx, s.ID, TrialInput{Response: models.ResponseReject}, nil, false)
	assert.ErrorIs(t, err, domrepo.ErrSessionBusy)
}

func TestScheduleService(t *testing.T) {
	f := schedule.Factors{
		Repeats:           1,
		EffortLevels:      []int{40, 80},
		MagnitudeLevels:   []int{5, 9},
		UncertaintyLevels: []models.UncertaintyClass{models.UncertaintySafe},
		BlockTypes:        []models.ActionType{models.ActionApproach},
		TrialsPerBlock:    2,
	}
	svc := NewScheduleService(f, 11)

	a, seed, err := svc.Generate(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(11), seed)
	assert.Len(t, a, 4)
	b, _, err := svc.Generate(nil, 11)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	bars, err := svc.Stimuli(7, models.UncertaintyFull, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 3, 11, 11}, bars)

	_, err = svc.Stimuli(7, "wide", 3)
	assert.ErrorIs(t, err, schedule.ErrUnknownUncertainty)

	path := filepath.Join(t.TempDir(), "schedule.csv")
	n, used, err := svc.WriteFile(path, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(5), used)
	back, err := schedule.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, back, 4)
}

func TestSummarize(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mk := func(sess string, effort int, resp models.Response, res models.Result, avg float64, pts int, k float64, i int) *models.TrialRecord {
		return &models.TrialRecord{
			SessionID:  sess,
			Offer:      models.TrialOffer{Effort: effort},
			Outcome:    models.TrialOutcome{Response: resp, Result: res, AverageEffort: avg, Points: pts},
			EstimatedK: k,
			RecordedAt: at.Add(time.Duration(i) * time.Minute),
		}
	}
	records := []*models.TrialRecord{
		mk("s2", 6, models.ResponseReject, models.ResultNone, 0, 0, 0.3, 3),
		mk("s1", 4, models.ResponseAccept, models.ResultSuccess, 50, 18, 0.5, 0),
		mk("s1", 4, models.ResponseAccept, models.ResultFailure, 0, -1, 0.45, 1),
		mk("s2", 6, models.ResponseAccept, models.ResultSuccess, 70, 20, 0.4, 2),
	}

	s := Summarize("P1", records)
	assert.Equal(t, 4, s.Trials)
	assert.Equal(t, 2, s.Sessions)
	assert.InDelta(t, 0.75, s.AcceptRate, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, 40, s.MeanEffort, 1e-9)
	assert.Equal(t, 37, s.TotalPoints)
	assert.InDelta(t, 0.3, s.LatestEstimatedK, 1e-9)
	assert.Equal(t, at, s.From)
	require.Len(t, s.ByEffort, 2)
	assert.Equal(t, EffortLevelSummary{Effort: 4, Offers: 2, AcceptRate: 1, SuccessRate: 0.5}, s.ByEffort[0])
	assert.Equal(t, EffortLevelSummary{Effort: 6, Offers: 2, AcceptRate: 0.5, SuccessRate: 1}, s.ByEffort[1])

	empty := Summarize("P2", nil)
	assert.Equal(t, 0, empty.Trials)
	assert.NotNil(t, empty.ByEffort)
}

func TestTrialSummaryUseCase(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Store(context.Background(), record("a", "P1")))
	require.NoError(t, store.Store(context.Background(), record("b", "P2")))
	uc := NewTrialSummaryUseCase(store)

	s, err := uc.Summarize(context.Background(), "P1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Trials)
	assert.Equal(t, 18, s.TotalPoints)

	_, err = uc.Summarize(context.Background(), "", time.Time{}, time.Time{})
	assert.Error(t, err)
}
