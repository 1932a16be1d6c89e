package models

// ScheduledTrial is one row of a trial schedule. Field names follow the
// schedule file columns.
type ScheduledTrial struct {
	BlockNumber       int              `json:"block_number"`
	OutcomeLevel      int              `json:"outcome_level"`
	ActualOutcome     int              `json:"actual_outcome"`
	Effort            int              `json:"effort"`
	ActionType        ActionType       `json:"action_type"`
	Uncertainty       UncertaintyClass `json:"uncertainty,omitempty"`
	AttentionFocus    string           `json:"attention_focus,omitempty"`
	Rating            string           `json:"rating,omitempty"`
	GlobalEffortState string           `json:"global_effort_state,omitempty"`
	TrialInExperiment int              `json:"trial_in_experiment"`
}

// Offer converts the row into the offer presented to the participant.
func (t ScheduledTrial) Offer() TrialOffer {
	return TrialOffer{
		Reward:        t.OutcomeLevel,
		Effort:        t.Effort,
		Uncertainty:   t.Uncertainty,
		Action:        t.ActionType,
		OutcomeLevel:  t.OutcomeLevel,
		ActualOutcome: t.ActualOutcome,
	}
}
