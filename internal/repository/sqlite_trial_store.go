package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteTrialsSchema = `
CREATE TABLE IF NOT EXISTS trials (
    id                TEXT PRIMARY KEY,
    session_id        TEXT NOT NULL,
    participant       TEXT NOT NULL,
    mode              TEXT NOT NULL,
    trial_index       INTEGER NOT NULL,
    block_number      INTEGER NOT NULL,
    action_type       TEXT NOT NULL,
    uncertainty       TEXT NOT NULL,
    reward            INTEGER NOT NULL,
    effort            INTEGER NOT NULL,
    outcome_level     INTEGER NOT NULL,
    actual_outcome    INTEGER NOT NULL,
    response          TEXT NOT NULL,
    result            TEXT NOT NULL,
    average_effort    REAL NOT NULL,
    response_time_ms  INTEGER NOT NULL,
    effort_time_ms    INTEGER NOT NULL,
    points            INTEGER NOT NULL,
    cumulative_points INTEGER NOT NULL,
    estimated_k       REAL NOT NULL,
    trace             TEXT NOT NULL,
    recorded_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trials_participant ON trials(participant, recorded_at);
CREATE INDEX IF NOT EXISTS idx_trials_session ON trials(session_id, trial_index);
`

// SQLiteTrialStore implements Storage in a local database file, for lab
// machines without ClickHouse. recorded_at is stored as unix milliseconds.
type SQLiteTrialStore struct {
	db *sql.DB
}

var _ repository.Storage = (*SQLiteTrialStore)(nil)

// OpenSQLiteTrialStore opens or creates the database at path.
func OpenSQLiteTrialStore(path string) (*SQLiteTrialStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &SQLiteTrialStore{db: db}, nil
}

func (s *SQLiteTrialStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteTrialsSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteTrialStore) Store(ctx context.Context, r *models.TrialRecord) error {
	return s.StoreBatch(ctx, []*models.TrialRecord{r})
}

// StoreBatch writes all records in one transaction. A record whose id is
// already present replaces the old row.
func (s *SQLiteTrialStore) StoreBatch(ctx context.Context, records []*models.TrialRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT OR REPLACE INTO trials (%s) VALUES %s",
		strings.Join(trialColumns, ", "), placeholders(len(trialColumns))))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r == nil || r.ID == "" {
			continue
		}
		row, err := newTrialRow(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row.args(r.RecordedAt.UnixMilli())...); err != nil {
			return fmt.Errorf("insert trial %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteTrialStore) Query(ctx context.Context, participant string, from, to time.Time, limit int) ([]*models.TrialRecord, error) {
	where, args := trialFilter(participant, from, to, func(t time.Time) interface{} { return t.UnixMilli() })
	q := fmt.Sprintf("SELECT %s FROM trials%s ORDER BY recorded_at DESC, trial_index DESC LIMIT ?",
		strings.Join(trialColumns, ", "), where)
	args = append(args, queryLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var out []*models.TrialRecord
	for rows.Next() {
		var row trialRow
		var ms int64
		if err := rows.Scan(row.dest(&ms)...); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		rec, err := row.record(time.UnixMilli(ms))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteTrialStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteTrialStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
