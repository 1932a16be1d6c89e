package models

import "time"

// Sample is one effort reading, stamped with the time since the trial started.
type Sample struct {
	Value   float64       `json:"v"`
	Elapsed time.Duration `json:"t"`
}

// EffortTrace is the ordered record of every sample taken during one effort phase.
type EffortTrace []Sample

// Values returns the sample values in order.
func (t EffortTrace) Values() []float64 {
	out := make([]float64, len(t))
	for i, s := range t {
		out[i] = s.Value
	}
	return out
}

// Clone returns a copy that shares no memory with t.
func (t EffortTrace) Clone() EffortTrace {
	if t == nil {
		return nil
	}
	out := make(EffortTrace, len(t))
	copy(out, t)
	return out
}

// Normalize converts a raw device reading to percent of maximum strength.
func Normalize(raw, zeroBaseline, maxStrength float64) float64 {
	return (raw - zeroBaseline) / maxStrength * 100
}
