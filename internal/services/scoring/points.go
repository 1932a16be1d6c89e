package scoring

import "EffortLab/internal/domain/models"

// Rules holds the point values that are not taken from the offer itself.
type Rules struct {
	// FailurePenalty is added when a staircase trial is accepted but not completed.
	FailurePenalty int `yaml:"failure_penalty" json:"failure_penalty" default:"-1"`
}

func DefaultRules() Rules {
	return Rules{FailurePenalty: -1}
}

// Points returns the points earned (or lost) on a single trial.
//
// Schedule trials pay out the drawn actual outcome: an approach trial wins it
// on success, an avoid trial loses it unless the effort succeeds. Avoid
// outcomes are already negative in the schedule. Staircase trials pay the
// offered reward on success.
func (r Rules) Points(mode models.Mode, offer models.TrialOffer, o models.TrialOutcome) int {
	if mode == models.ModeStaircase {
		switch {
		case o.Response == models.ResponseReject:
			return 0
		case o.Result == models.ResultSuccess:
			return offer.Reward
		default:
			return r.FailurePenalty
		}
	}

	success := o.Response == models.ResponseAccept && o.Result == models.ResultSuccess
	switch offer.Action {
	case models.ActionAvoid:
		if success {
			return 0
		}
		return offer.ActualOutcome
	default:
		if success {
			return offer.ActualOutcome
		}
		return 0
	}
}

// OutcomeMarker picks the marker announcing how the trial ended.
func OutcomeMarker(offer models.TrialOffer, o models.TrialOutcome) models.Marker {
	if o.Response == models.ResponseReject {
		return models.OutcomeMarker(offer.Action, models.ResultNone)
	}
	return models.OutcomeMarker(offer.Action, o.Result)
}
