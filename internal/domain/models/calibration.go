package models

import "time"

// Calibration is the per-session strength calibration artifact.
type Calibration struct {
	Participant  string      `json:"participant"`
	ZeroBaseline float64     `json:"zero_baseline"`
	Peaks        []float64   `json:"peaks"`
	Traces       [][]float64 `json:"traces,omitempty"`
	MaxStrength  float64     `json:"max_strength"`
	RecordedAt   time.Time   `json:"recorded_at"`
}
