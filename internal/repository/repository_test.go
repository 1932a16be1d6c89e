package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"EffortLab/internal/domain/models"
	domrepo "EffortLab/internal/domain/repository"
	"EffortLab/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id, participant string, trial int, at time.Time) *models.TrialRecord {
	return &models.TrialRecord{
		ID:          id,
		SessionID:   "s-" + participant,
		Participant: participant,
		Mode:        models.ModeStaircase,
		TrialIndex:  trial,
		Offer: models.TrialOffer{
			Reward: 18, Effort: 6, Action: models.ActionApproach,
		},
		Outcome: models.TrialOutcome{
			Response:      models.ResponseAccept,
			Result:        models.ResultSuccess,
			Trace:         models.EffortTrace{{Value: 61, Elapsed: 10 * time.Millisecond}, {Value: 64, Elapsed: 20 * time.Millisecond}},
			AverageEffort: 62.5,
			ResponseTime:  1200 * time.Millisecond,
			EffortTime:    1500 * time.Millisecond,
			Points:        18,
		},
		CumulativePoints: 18 * trial,
		EstimatedK:       0.48,
		RecordedAt:       at,
	}
}

// ---------------------------------------------------------------------------
// SQLite trial store
// ---------------------------------------------------------------------------

func openSQLite(t *testing.T) *SQLiteTrialStore {
	t.Helper()
	s, err := OpenSQLiteTrialStore(filepath.Join(t.TempDir(), "nested", "trials.db"))
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteTrialStore_RoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	in := sampleRecord("r1", "P01", 1, at)
	require.NoError(t, s.Store(ctx, in))
	require.NoError(t, s.Health(ctx))

	got, err := s.Query(ctx, "P01", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in, got[0])
}

func TestSQLiteTrialStore_QueryFilters(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.StoreBatch(ctx, []*models.TrialRecord{
		sampleRecord("a1", "P01", 1, base),
		sampleRecord("a2", "P01", 2, base.Add(time.Minute)),
		sampleRecord("a3", "P01", 3, base.Add(2*time.Minute)),
		sampleRecord("b1", "P02", 1, base.Add(time.Minute)),
		nil,
	}))

	got, err := s.Query(ctx, "P01", base.Add(30*time.Second), time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a3", got[0].ID, "newest first")
	assert.Equal(t, "a2", got[1].ID)

	got, err = s.Query(ctx, "", time.Time{}, base.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.Query(ctx, "", time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteTrialStore_ReplaceByID(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	r := sampleRecord("dup", "P01", 1, at)
	require.NoError(t, s.Store(ctx, r))
	r.Outcome.Points = 0
	require.NoError(t, s.Store(ctx, r))

	got, err := s.Query(ctx, "P01", time.Time{}, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Outcome.Points)
}

func TestTrialFilter(t *testing.T) {
	enc := func(t time.Time) interface{} { return t.Unix() }
	where, args := trialFilter("", time.Time{}, time.Time{}, enc)
	assert.Empty(t, where)
	assert.Empty(t, args)

	from := time.Unix(100, 0)
	where, args = trialFilter("P01", from, time.Time{}, enc)
	assert.Equal(t, " WHERE participant = ? AND recorded_at >= ?", where)
	assert.Equal(t, []interface{}{"P01", int64(100)}, args)

	assert.Equal(t, "(?, ?, ?)", placeholders(3))
	assert.Equal(t, defaultQueryLimit, queryLimit(0))
}

// ---------------------------------------------------------------------------
// File calibration store
// ---------------------------------------------------------------------------

func TestFileCalibrationStore_SaveAndLookup(t *testing.T) {
	dir := t.TempDir()
	s := NewFileCalibrationStore(dir)
	ctx := context.Background()

	c := &models.Calibration{
		Participant:  "P01",
		ZeroBaseline: 0.02,
		Peaks:        []float64{40, 52, 48},
		Traces:       [][]float64{{1, 40}, {2, 52}, {3, 48}},
		MaxStrength:  50,
		RecordedAt:   time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local),
	}
	require.NoError(t, s.Save(ctx, c))
	_, err := os.Stat(filepath.Join(dir, "P01_2026-03-01_09h30.00.csv"))
	require.NoError(t, err)

	got, err := s.Lookup(ctx, "P01")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.MaxStrength)
	assert.Equal(t, c.Peaks, got.Peaks)
	assert.Equal(t, c.Traces, got.Traces)
	assert.Equal(t, 0.02, got.ZeroBaseline)
	assert.True(t, c.RecordedAt.Equal(got.RecordedAt))
}

func TestFileCalibrationStore_LastRowWinsAndPrefix(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("P1_2026-01-01_10h00.00.csv", "participant,max_strength\nP1,30\n")
	write("P1_2026-01-02_10h00.00.csv", "participant,max_strength\nP1,35\nP1,37.5\n")
	write("P10_2026-01-03_10h00.00.csv", "participant,max_strength\nP10,99\n")
	write("P1_notes.txt", "ignored")

	got, err := NewFileCalibrationStore(dir).Lookup(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 37.5, got.MaxStrength)
}

func TestFileCalibrationStore_QuotedTraceColumn(t *testing.T) {
	dir := t.TempDir()
	body := "participant,strength_trace_1,max_strength_1,max_strength\n" +
		"P2,\"\"\"[1.5, 2.5]\"\"\",2.5,2.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "P2_x.csv"), []byte(body), 0o644))

	got, err := NewFileCalibrationStore(dir).Lookup(context.Background(), "P2")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1.5, 2.5}}, got.Traces)
}

func TestFileCalibrationStore_NotFound(t *testing.T) {
	ctx := context.Background()

	_, err := NewFileCalibrationStore(filepath.Join(t.TempDir(), "missing")).Lookup(ctx, "P01")
	assert.ErrorIs(t, err, domrepo.ErrCalibrationNotFound)

	_, err = NewFileCalibrationStore(t.TempDir()).Lookup(ctx, "P01")
	assert.ErrorIs(t, err, domrepo.ErrCalibrationNotFound)

	err = NewFileCalibrationStore(t.TempDir()).Save(ctx, &models.Calibration{Participant: "P01", Peaks: []float64{1}})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Session store
// ---------------------------------------------------------------------------

func TestCacheSessionStore(t *testing.T) {
	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mem.Close()
	s := NewCacheSessionStore(mem, time.Hour, time.Minute)
	ctx := context.Background()

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, domrepo.ErrSessionNotFound)

	st := &models.SessionState{
		ID:          "s1",
		Participant: "P01",
		Mode:        models.ModeStaircase,
		MaxStrength: 50,
		Staircase:   models.StaircaseState{K: 0.5, Reward: 18, Effort: 6},
	}
	require.NoError(t, s.Put(ctx, st))
	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, st, got)

	unlock, err := s.Lock(ctx, "s1")
	require.NoError(t, err)
	_, err = s.Lock(ctx, "s1")
	assert.ErrorIs(t, err, domrepo.ErrSessionBusy)
	unlock()

	unlock, err = s.Lock(ctx, "s1")
	require.NoError(t, err)
	unlock()
}

// ---------------------------------------------------------------------------
// Kafka frames
// ---------------------------------------------------------------------------

func TestMarkerMessage(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	msg := newMarkerMessage(models.MarkerEvent{Marker: models.MarkerEffortSuccess, SessionID: "s1", At: at})
	assert.Equal(t, markerMessage{Marker: "effort_success", Code: 13, Session: "s1", TS: 1_700_000_000_123}, msg)
}
