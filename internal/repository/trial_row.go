package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"EffortLab/internal/domain/models"
)

const defaultQueryLimit = 100

// trialColumns is the flat row shape shared by the SQL stores.
var trialColumns = []string{
	"id", "session_id", "participant", "mode", "trial_index", "block_number",
	"action_type", "uncertainty", "reward", "effort", "outcome_level", "actual_outcome",
	"response", "result", "average_effort", "response_time_ms", "effort_time_ms",
	"points", "cumulative_points", "estimated_k", "trace", "recorded_at",
}

type trialRow struct {
	ID               string
	SessionID        string
	Participant      string
	Mode             string
	TrialIndex       int64
	BlockNumber      int64
	ActionType       string
	Uncertainty      string
	Reward           int64
	Effort           int64
	OutcomeLevel     int64
	ActualOutcome    int64
	Response         string
	Result           string
	AverageEffort    float64
	ResponseTimeMs   int64
	EffortTimeMs     int64
	Points           int64
	CumulativePoints int64
	EstimatedK       float64
	Trace            string
}

func newTrialRow(r *models.TrialRecord) (trialRow, error) {
	trace, err := json.Marshal(r.Outcome.Trace)
	if err != nil {
		return trialRow{}, fmt.Errorf("encode trace: %w", err)
	}
	return trialRow{
		ID:               r.ID,
		SessionID:        r.SessionID,
		Participant:      r.Participant,
		Mode:             string(r.Mode),
		TrialIndex:       int64(r.TrialIndex),
		BlockNumber:      int64(r.BlockNumber),
		ActionType:       string(r.Offer.Action),
		Uncertainty:      string(r.Offer.Uncertainty),
		Reward:           int64(r.Offer.Reward),
		Effort:           int64(r.Offer.Effort),
		OutcomeLevel:     int64(r.Offer.OutcomeLevel),
		ActualOutcome:    int64(r.Offer.ActualOutcome),
		Response:         string(r.Outcome.Response),
		Result:           string(r.Outcome.Result),
		AverageEffort:    r.Outcome.AverageEffort,
		ResponseTimeMs:   r.Outcome.ResponseTime.Milliseconds(),
		EffortTimeMs:     r.Outcome.EffortTime.Milliseconds(),
		Points:           int64(r.Outcome.Points),
		CumulativePoints: int64(r.CumulativePoints),
		EstimatedK:       r.EstimatedK,
		Trace:            string(trace),
	}, nil
}

// args lists the values in trialColumns order, with recordedAt in the
// store's own time encoding.
func (row *trialRow) args(recordedAt interface{}) []interface{} {
	return []interface{}{
		row.ID, row.SessionID, row.Participant, row.Mode, row.TrialIndex, row.BlockNumber,
		row.ActionType, row.Uncertainty, row.Reward, row.Effort, row.OutcomeLevel, row.ActualOutcome,
		row.Response, row.Result, row.AverageEffort, row.ResponseTimeMs, row.EffortTimeMs,
		row.Points, row.CumulativePoints, row.EstimatedK, row.Trace, recordedAt,
	}
}

// dest returns scan targets in trialColumns order.
func (row *trialRow) dest(recordedAt interface{}) []interface{} {
	return []interface{}{
		&row.ID, &row.SessionID, &row.Participant, &row.Mode, &row.TrialIndex, &row.BlockNumber,
		&row.ActionType, &row.Uncertainty, &row.Reward, &row.Effort, &row.OutcomeLevel, &row.ActualOutcome,
		&row.Response, &row.Result, &row.AverageEffort, &row.ResponseTimeMs, &row.EffortTimeMs,
		&row.Points, &row.CumulativePoints, &row.EstimatedK, &row.Trace, recordedAt,
	}
}

func (row *trialRow) record(recordedAt time.Time) (*models.TrialRecord, error) {
	var trace models.EffortTrace
	if row.Trace != "" && row.Trace != "null" {
		if err := json.Unmarshal([]byte(row.Trace), &trace); err != nil {
			return nil, fmt.Errorf("decode trace of %s: %w", row.ID, err)
		}
	}
	return &models.TrialRecord{
		ID:          row.ID,
		SessionID:   row.SessionID,
		Participant: row.Participant,
		Mode:        models.Mode(row.Mode),
		TrialIndex:  int(row.TrialIndex),
		BlockNumber: int(row.BlockNumber),
		Offer: models.TrialOffer{
			Reward:        int(row.Reward),
			Effort:        int(row.Effort),
			Uncertainty:   models.UncertaintyClass(row.Uncertainty),
			Action:        models.ActionType(row.ActionType),
			OutcomeLevel:  int(row.OutcomeLevel),
			ActualOutcome: int(row.ActualOutcome),
		},
		Outcome: models.TrialOutcome{
			Response:      models.Response(row.Response),
			Result:        models.Result(row.Result),
			Trace:         trace,
			AverageEffort: row.AverageEffort,
			ResponseTime:  time.Duration(row.ResponseTimeMs) * time.Millisecond,
			EffortTime:    time.Duration(row.EffortTimeMs) * time.Millisecond,
			Points:        int(row.Points),
		},
		CumulativePoints: int(row.CumulativePoints),
		EstimatedK:       row.EstimatedK,
		RecordedAt:       recordedAt.UTC(),
	}, nil
}

// trialFilter builds the WHERE clause for Query. Empty participant and zero
// times leave that bound open. encodeTime converts bounds to the column type.
func trialFilter(participant string, from, to time.Time, encodeTime func(time.Time) interface{}) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if participant != "" {
		conds = append(conds, "participant = ?")
		args = append(args, participant)
	}
	if !from.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, encodeTime(from))
	}
	if !to.IsZero() {
		conds = append(conds, "recorded_at <= ?")
		args = append(args, encodeTime(to))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func queryLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	return limit
}

func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}
