package models

import "time"

// SessionState carries everything that survives between trials of one
// session. It is passed by value and returned updated by each call.
type SessionState struct {
	ID               string         `json:"id"`
	Participant      string         `json:"participant"`
	Mode             Mode           `json:"mode"`
	ZeroBaseline     float64        `json:"zero_baseline"`
	MaxStrength      float64        `json:"max_strength"`
	Staircase        StaircaseState `json:"staircase"`
	CumulativePoints int            `json:"cumulative_points"`
	TrialsDone       int            `json:"trials_done"`
	StartedAt        time.Time      `json:"started_at"`
}
