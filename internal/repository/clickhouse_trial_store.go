package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"
	pkgch "EffortLab/pkg/clickhouse"
	"EffortLab/pkg/logger"
)

// TrialsTable is the ClickHouse table holding one row per judged trial.
const TrialsTable = "trials"

const clickhouseTrialsSchema = `
CREATE TABLE IF NOT EXISTS %s (
    id                String,
    session_id        String,
    participant       LowCardinality(String),
    mode              LowCardinality(String),
    trial_index       Int64,
    block_number      Int64,
    action_type       LowCardinality(String),
    uncertainty       LowCardinality(String),
    reward            Int64,
    effort            Int64,
    outcome_level     Int64,
    actual_outcome    Int64,
    response          LowCardinality(String),
    result            LowCardinality(String),
    average_effort    Float64,
    response_time_ms  Int64,
    effort_time_ms    Int64,
    points            Int64,
    cumulative_points Int64,
    estimated_k       Float64,
    trace             String CODEC(ZSTD(3)),
    recorded_at       DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY (participant, session_id, trial_index, id)
PARTITION BY toYYYYMM(recorded_at)`

// chBatchSize bounds rows per multi-VALUES insert.
const chBatchSize = 2000

// ClickHouseTrialStore implements Storage on ClickHouse. ReplacingMergeTree
// keyed by id makes redelivered Kafka messages idempotent after merges.
type ClickHouseTrialStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	log    *logger.Logger
}

func NewClickHouseTrialStore(client *pkgch.Client, log *logger.Logger) *ClickHouseTrialStore {
	if log == nil {
		log = logger.Nop()
	}
	return &ClickHouseTrialStore{client: client, db: client.DB(), table: TrialsTable, log: log}
}

var _ repository.Storage = (*ClickHouseTrialStore)(nil)

func (s *ClickHouseTrialStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, []string{fmt.Sprintf(clickhouseTrialsSchema, s.table)})
}

func (s *ClickHouseTrialStore) Store(ctx context.Context, r *models.TrialRecord) error {
	return s.StoreBatch(ctx, []*models.TrialRecord{r})
}

func (s *ClickHouseTrialStore) StoreBatch(ctx context.Context, records []*models.TrialRecord) error {
	cols := strings.Join(trialColumns, ", ")
	row := placeholders(len(trialColumns))

	for start := 0; start < len(records); start += chBatchSize {
		end := min(start+chBatchSize, len(records))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*len(trialColumns))
		for _, r := range records[start:end] {
			if r == nil || r.ID == "" {
				continue
			}
			tr, err := newTrialRow(r)
			if err != nil {
				return err
			}
			values = append(values, row)
			args = append(args, tr.args(r.RecordedAt.UTC())...)
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, cols, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.log.Error("clickhouse insert trials failed",
				logger.String("table", s.table),
				logger.Int("rows", len(values)),
				logger.Error(err))
			return fmt.Errorf("insert trials: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseTrialStore) Query(ctx context.Context, participant string, from, to time.Time, limit int) ([]*models.TrialRecord, error) {
	where, args := trialFilter(participant, from, to, func(t time.Time) interface{} { return t.UTC() })
	q := fmt.Sprintf("SELECT %s FROM %s FINAL%s ORDER BY recorded_at DESC LIMIT ?",
		strings.Join(trialColumns, ", "), s.table, where)
	args = append(args, queryLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var out []*models.TrialRecord
	for rows.Next() {
		var row trialRow
		var recordedAt time.Time
		if err := rows.Scan(row.dest(&recordedAt)...); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		rec, err := row.record(recordedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *ClickHouseTrialStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the client is owned by the caller.
func (s *ClickHouseTrialStore) Close() error { return nil }
