package models

import (
	"fmt"
	"time"
)

// Marker is a discrete experiment event forwarded to the EEG trigger line.
// The numeric value is the trigger code written on the wire.
type Marker uint8

const (
	MarkerExperimentStart                    Marker = 1
	MarkerBlockStart                         Marker = 2
	MarkerOfferPresentationApproach          Marker = 3
	MarkerOfferPresentationAvoid             Marker = 4
	MarkerParticipantChoiceAccept            Marker = 5
	MarkerParticipantChoiceReject            Marker = 6
	MarkerRatingQuestionReward               Marker = 7
	MarkerRatingQuestionHeart                Marker = 8
	MarkerRatingResponseReward               Marker = 9
	MarkerRatingResponseHeart                Marker = 10
	MarkerEffortStarted                      Marker = 11
	MarkerEffortThresholdCrossed             Marker = 12
	MarkerEffortSuccess                      Marker = 13
	MarkerOutcomePresentationApproachSuccess Marker = 14
	MarkerOutcomePresentationApproachFailure Marker = 15
	MarkerOutcomePresentationApproachReject  Marker = 16
	MarkerOutcomePresentationAvoidSuccess    Marker = 17
	MarkerOutcomePresentationAvoidFailure    Marker = 18
	MarkerOutcomePresentationAvoidReject     Marker = 19
	MarkerExperimentEnd                      Marker = 20
	MarkerTrainingStart                      Marker = 21
)

var markerNames = map[Marker]string{
	MarkerExperimentStart:                    "experiment_start",
	MarkerBlockStart:                         "block_start",
	MarkerOfferPresentationApproach:          "offer_presentation_approach",
	MarkerOfferPresentationAvoid:             "offer_presentation_avoid",
	MarkerParticipantChoiceAccept:            "participant_choice_accept",
	MarkerParticipantChoiceReject:            "participant_choice_reject",
	MarkerRatingQuestionReward:               "rating_question_reward",
	MarkerRatingQuestionHeart:                "rating_question_heart",
	MarkerRatingResponseReward:               "rating_response_reward",
	MarkerRatingResponseHeart:                "rating_response_heart",
	MarkerEffortStarted:                      "effort_started",
	MarkerEffortThresholdCrossed:             "effort_threshold_crossed",
	MarkerEffortSuccess:                      "effort_success",
	MarkerOutcomePresentationApproachSuccess: "outcome_presentation_approach_success",
	MarkerOutcomePresentationApproachFailure: "outcome_presentation_approach_failure",
	MarkerOutcomePresentationApproachReject:  "outcome_presentation_approach_reject",
	MarkerOutcomePresentationAvoidSuccess:    "outcome_presentation_avoid_success",
	MarkerOutcomePresentationAvoidFailure:    "outcome_presentation_avoid_failure",
	MarkerOutcomePresentationAvoidReject:     "outcome_presentation_avoid_reject",
	MarkerExperimentEnd:                      "experiment_end",
	MarkerTrainingStart:                      "training_start",
}

// Code is the trigger byte.
func (m Marker) Code() uint8 { return uint8(m) }

// Valid reports whether m is one of the defined markers.
func (m Marker) Valid() bool {
	_, ok := markerNames[m]
	return ok
}

func (m Marker) String() string {
	if name, ok := markerNames[m]; ok {
		return name
	}
	return fmt.Sprintf("marker(%d)", uint8(m))
}

// ParseMarker resolves a marker by its snake_case name.
func ParseMarker(name string) (Marker, error) {
	for m, n := range markerNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown marker %q", name)
}

// ChoiceMarker maps a response to its choice marker.
func ChoiceMarker(r Response) Marker {
	if r == ResponseAccept {
		return MarkerParticipantChoiceAccept
	}
	return MarkerParticipantChoiceReject
}

// OfferMarker maps an action type to its offer-presentation marker.
func OfferMarker(a ActionType) Marker {
	if a == ActionAvoid {
		return MarkerOfferPresentationAvoid
	}
	return MarkerOfferPresentationApproach
}

// OutcomeMarker maps a trial's action and result to its outcome-presentation marker.
func OutcomeMarker(a ActionType, r Result) Marker {
	switch {
	case a == ActionAvoid && r == ResultSuccess:
		return MarkerOutcomePresentationAvoidSuccess
	case a == ActionAvoid && r == ResultFailure:
		return MarkerOutcomePresentationAvoidFailure
	case a == ActionAvoid:
		return MarkerOutcomePresentationAvoidReject
	case r == ResultSuccess:
		return MarkerOutcomePresentationApproachSuccess
	case r == ResultFailure:
		return MarkerOutcomePresentationApproachFailure
	default:
		return MarkerOutcomePresentationApproachReject
	}
}

// MarkerEvent is a marker stamped with the session that emitted it and the
// time it was sent.
type MarkerEvent struct {
	Marker    Marker
	SessionID string
	At        time.Time
}
