package staircase

import (
	"fmt"
	"math"
	"math/rand"

	"EffortLab/internal/domain/models"
)

// Solve picks which side of the cost function is drawn at random and which
// is solved for.
type Solve string

const (
	// SolveReward draws the effort and solves for the reward.
	SolveReward Solve = "reward"
	// SolveEffort draws the reward and solves for the effort.
	SolveEffort Solve = "effort"
)

// Config holds the staircase constants. Zero values are not meaningful; start
// from DefaultConfig.
type Config struct {
	InitialK      float64
	InitialReward int
	InitialEffort int

	StepScale   float64
	TrialOffset float64

	TargetMin float64
	TargetMax float64

	EffortMin int
	EffortMax int
	RewardMin int
	RewardMax int

	Solve           Solve
	RewardDrawMin   int
	RewardDrawMax   int
	MinRewardChange int
}

func DefaultConfig() Config {
	return Config{
		InitialK:        0.5,
		InitialReward:   18,
		InitialEffort:   6,
		StepScale:       0.15,
		TrialOffset:     4,
		TargetMin:       -1,
		TargetMax:       1,
		EffortMin:       1,
		EffortMax:       10,
		RewardMin:       8,
		RewardMax:       28,
		Solve:           SolveReward,
		RewardDrawMin:   4,
		RewardDrawMax:   30,
		MinRewardChange: 2,
	}
}

func (c Config) Validate() error {
	if c.StepScale <= 0 {
		return fmt.Errorf("step scale must be positive")
	}
	if c.TrialOffset <= 1 {
		return fmt.Errorf("trial offset must exceed 1 so the first step is finite")
	}
	if c.TargetMin > c.TargetMax {
		return fmt.Errorf("target range is inverted")
	}
	if c.EffortMin > c.EffortMax {
		return fmt.Errorf("effort range is inverted")
	}
	if c.RewardMin > c.RewardMax {
		return fmt.Errorf("reward range is inverted")
	}
	switch c.Solve {
	case SolveReward:
	case SolveEffort:
		if c.RewardDrawMax-c.RewardDrawMin < 2*c.MinRewardChange {
			return fmt.Errorf("reward draw range [%d, %d] too narrow for a change of %d",
				c.RewardDrawMin, c.RewardDrawMax, c.MinRewardChange)
		}
	default:
		return fmt.Errorf("unknown solve direction %q", c.Solve)
	}
	return nil
}

// NetValue is the modelled subjective value of accepting an offer.
func NetValue(reward, effort, k float64) float64 {
	return reward - k*effort*effort
}

// StepSize shrinks with the trial index so the estimate converges.
func (c Config) StepSize(trial int) float64 {
	return c.StepScale / math.Log(float64(trial)+c.TrialOffset)
}

// Update nudges k toward consistency with one observed choice. Choices the
// model already predicts leave k unchanged.
func (c Config) Update(k float64, resp models.Response, reward, effort float64, trial int) float64 {
	v := NetValue(reward, effort, k)
	switch {
	case v < 0 && resp == models.ResponseAccept:
		return k - c.StepSize(trial)
	case v > 0 && resp == models.ResponseReject:
		return k + c.StepSize(trial)
	default:
		return k
	}
}

// ProposeNext draws the next offer near the indifference point for k.
// previousReward is only consulted when drawing rewards.
func (c Config) ProposeNext(rng *rand.Rand, k float64, previousReward int) (reward, effort int) {
	target := c.TargetMin + rng.Float64()*(c.TargetMax-c.TargetMin)

	if c.Solve == SolveEffort {
		reward = c.drawReward(rng, previousReward)
		radicand := (float64(reward) - target) / k
		if radicand > 0 {
			effort = roundClamp(math.Sqrt(radicand), c.EffortMin, c.EffortMax)
		} else {
			effort = c.EffortMin
		}
		return reward, effort
	}

	effort = c.EffortMin + rng.Intn(c.EffortMax-c.EffortMin+1)
	r := k*float64(effort*effort) + target
	reward = roundClamp(r, c.RewardMin, c.RewardMax)
	return reward, effort
}

func (c Config) drawReward(rng *rand.Rand, previous int) int {
	for {
		r := c.RewardDrawMin + rng.Intn(c.RewardDrawMax-c.RewardDrawMin+1)
		if absInt(r-previous) >= c.MinRewardChange {
			return r
		}
	}
}

// Initial is the state a new session starts from.
func (c Config) Initial() models.StaircaseState {
	return models.StaircaseState{
		K:      c.InitialK,
		Reward: c.InitialReward,
		Effort: c.InitialEffort,
	}
}

// Advance applies the participant's response to the answered offer, then
// proposes the next one. The input state is left untouched.
func (c Config) Advance(rng *rand.Rand, s models.StaircaseState, reward, effort int, resp models.Response) models.StaircaseState {
	k := c.Update(s.K, resp, float64(reward), float64(effort), s.Trial)
	reward, effort = c.ProposeNext(rng, k, reward)
	return models.StaircaseState{
		K:      k,
		Reward: reward,
		Effort: effort,
		Trial:  s.Trial + 1,
	}
}

// roundClamp rounds half to even and clamps in float space, so infinities
// from a zero k land on the bounds.
func roundClamp(v float64, lo, hi int) int {
	v = math.RoundToEven(v)
	switch {
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	default:
		return int(v)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
