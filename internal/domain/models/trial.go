package models

import "time"

// TrialOffer is what the participant sees before choosing.
type TrialOffer struct {
	Reward        int              `json:"reward"`
	Effort        int              `json:"effort"`
	Uncertainty   UncertaintyClass `json:"uncertainty,omitempty"`
	Action        ActionType       `json:"action_type"`
	OutcomeLevel  int              `json:"outcome_level,omitempty"`
	ActualOutcome int              `json:"actual_outcome,omitempty"`
}

// TrialOutcome is the verdict for one trial. Trace is empty when the offer was rejected.
type TrialOutcome struct {
	Response      Response      `json:"response"`
	Result        Result        `json:"result,omitempty"`
	Trace         EffortTrace   `json:"effort_trace,omitempty"`
	AverageEffort float64       `json:"average_effort"`
	ResponseTime  time.Duration `json:"response_time"`
	EffortTime    time.Duration `json:"effort_time"`
	Points        int           `json:"points"`
}

// TrialRecord is the row handed to the trial log.
type TrialRecord struct {
	ID               string       `json:"id"`
	SessionID        string       `json:"session_id"`
	Participant      string       `json:"participant"`
	Mode             Mode         `json:"mode"`
	TrialIndex       int          `json:"trial_index"`
	BlockNumber      int          `json:"block_number"`
	Offer            TrialOffer   `json:"offer"`
	Outcome          TrialOutcome `json:"outcome"`
	CumulativePoints int          `json:"cumulative_points"`
	EstimatedK       float64      `json:"estimated_k"`
	RecordedAt       time.Time    `json:"recorded_at"`
}
