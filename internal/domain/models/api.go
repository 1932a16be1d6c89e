package models

// OfferRequest is the offer as the presentation layer showed it.
type OfferRequest struct {
	Reward        int    `json:"reward" validate:"gte=0"`
	Effort        int    `json:"effort" validate:"gte=0,lte=100"`
	Uncertainty   string `json:"uncertainty"`
	ActionType    string `json:"action_type" default:"approach" validate:"oneof=approach avoid"`
	OutcomeLevel  int    `json:"outcome_level"`
	ActualOutcome int    `json:"actual_outcome"`
}

func (o OfferRequest) Offer() TrialOffer {
	return TrialOffer{
		Reward:        o.Reward,
		Effort:        o.Effort,
		Uncertainty:   UncertaintyClass(o.Uncertainty),
		Action:        ActionType(o.ActionType),
		OutcomeLevel:  o.OutcomeLevel,
		ActualOutcome: o.ActualOutcome,
	}
}

// SampleRequest is one effort reading, T in milliseconds from the start of
// the effort phase.
type SampleRequest struct {
	V float64 `json:"v"`
	T float64 `json:"t" validate:"gte=0"`
}

type CreateSessionRequest struct {
	Participant  string  `json:"participant" validate:"required,max=64"`
	Mode         string  `json:"mode" default:"staircase" validate:"oneof=staircase schedule"`
	MaxStrength  float64 `json:"max_strength" validate:"gte=0"`
	ZeroBaseline float64 `json:"zero_baseline"`
}

type SessionRequest struct {
	ID string `param:"id" validate:"required"`
}

type JudgeTrialRequest struct {
	ID             string          `param:"id" json:"-" validate:"required"`
	Offer          OfferRequest    `json:"offer"`
	Response       string          `json:"response" validate:"required,oneof=accept reject"`
	ResponseTimeMs float64         `json:"response_time_ms" validate:"gte=0"`
	BlockNumber    int             `json:"block_number" validate:"gte=0"`
	Samples        []SampleRequest `json:"samples" validate:"dive"`
	// Raw marks samples as device readings still to be normalized.
	Raw bool `json:"raw"`
}

type RunTrialRequest struct {
	ID             string        `param:"id" json:"-" validate:"required"`
	Offer          OfferRequest  `json:"offer"`
	Response       string        `json:"response" validate:"required,oneof=accept reject"`
	ResponseTimeMs float64       `json:"response_time_ms" validate:"gte=0"`
	BlockNumber    int           `json:"block_number" validate:"gte=0"`
}

type ProposeRequest struct {
	K              float64 `json:"k" validate:"gte=0"`
	PreviousReward int     `json:"previous_reward" validate:"gte=0"`
	Seed           int64   `json:"seed"`
}

type GenerateScheduleRequest struct {
	Repeats           int      `json:"n_repeats" validate:"gte=0"`
	EffortLevels      []int    `json:"effort_levels"`
	MagnitudeLevels   []int    `json:"magnitude_levels"`
	UncertaintyLevels []string `json:"uncertainty_levels"`
	BlockTypes        []string `json:"block_types"`
	TrialsPerBlock    int      `json:"n_trials_per_block" validate:"gte=0"`
	Delta             int      `json:"delta" validate:"gte=0"`
	Seed              int64    `json:"seed"`
}

type StimuliRequest struct {
	Mean        int    `query:"mean" validate:"required"`
	Uncertainty string `query:"uncertainty" default:"safe"`
	Seed        int64  `query:"seed"`
}

type ExtractRequest struct {
	Efforts []float64 `json:"efforts" validate:"required,min=1"`
}

type CalibrateRequest struct {
	Participant  string      `json:"participant" validate:"required,max=64"`
	ZeroBaseline float64     `json:"zero_baseline"`
	Traces       [][]float64 `json:"traces" validate:"required,len=3,dive,min=1"`
}

type ParticipantRequest struct {
	Participant string `param:"participant" validate:"required"`
}

type TrialsRequest struct {
	Participant string `query:"participant"`
	From        string `query:"from"`
	To          string `query:"to"`
	Limit       int    `query:"limit" default:"100" validate:"gte=1,lte=10000"`
}
