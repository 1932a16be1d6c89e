package effort

import (
	"fmt"
	"time"
)

// Config parametrizes one effort phase. Requirement is the target level in
// percent of maximum strength; the remaining fields are use-site policy.
type Config struct {
	Requirement       float64
	ThresholdFraction float64
	RequiredDuration  time.Duration
	TimeLimit         time.Duration
	StartThreshold    float64
	WaitForStart      bool
}

// DefaultConfig returns the policy used by the main task scripts: crossing at
// the full requirement, held for one second, within eight seconds.
func DefaultConfig() Config {
	return Config{
		ThresholdFraction: 1.0,
		RequiredDuration:  time.Second,
		TimeLimit:         8 * time.Second,
		StartThreshold:    0.1,
	}
}

// WithRequirement returns a copy of c targeting level.
func (c Config) WithRequirement(level float64) Config {
	c.Requirement = level
	return c
}

// Threshold is the level a sample must exceed to count as above threshold.
func (c Config) Threshold() float64 {
	return c.Requirement * c.ThresholdFraction
}

func (c Config) Validate() error {
	if c.ThresholdFraction <= 0 || c.ThresholdFraction > 1 {
		return fmt.Errorf("threshold fraction must be in (0, 1], got %v", c.ThresholdFraction)
	}
	if c.RequiredDuration < 0 {
		return fmt.Errorf("required duration must not be negative")
	}
	if c.TimeLimit <= 0 {
		return fmt.Errorf("time limit must be positive")
	}
	if c.RequiredDuration > c.TimeLimit {
		return fmt.Errorf("required duration %s exceeds time limit %s", c.RequiredDuration, c.TimeLimit)
	}
	return nil
}
