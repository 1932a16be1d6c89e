package schedule

import (
	"errors"
	"fmt"
	"math/rand"

	"EffortLab/internal/domain/models"
)

// DefaultDelta is the spacing between bar magnitudes around the mean.
const DefaultDelta = 4

var ErrUnknownUncertainty = errors.New("unknown uncertainty class")

// BarMagnitudes returns the four bar heights shown for an offer, in random
// display order.
func BarMagnitudes(rng *rand.Rand, mean int, class models.UncertaintyClass, delta int) ([]int, error) {
	var bars []int
	switch class {
	case models.UncertaintySafe:
		bars = []int{mean, mean, mean, mean}
	case models.UncertaintyPartial:
		bars = []int{mean - delta, mean, mean, mean + delta}
	case models.UncertaintyFull:
		bars = []int{mean - delta, mean - delta, mean + delta, mean + delta}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownUncertainty, class)
	}
	rng.Shuffle(len(bars), func(i, j int) { bars[i], bars[j] = bars[j], bars[i] })
	return bars, nil
}
