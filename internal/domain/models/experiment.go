package models

import "fmt"

// ActionType frames a block: approach trials win points, avoid trials prevent losses.
type ActionType string

const (
	ActionApproach ActionType = "approach"
	ActionAvoid    ActionType = "avoid"
)

// ParseActionType accepts the lower-case names used in schedule files.
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionApproach, ActionAvoid:
		return ActionType(s), nil
	default:
		return "", fmt.Errorf("unknown action type %q", s)
	}
}

// UncertaintyClass is the shape of the distribution over the four bar magnitudes.
type UncertaintyClass string

const (
	UncertaintySafe    UncertaintyClass = "safe"
	UncertaintyPartial UncertaintyClass = "25/50/25"
	UncertaintyFull    UncertaintyClass = "50/50"
)

// ParseUncertaintyClass also accepts the "partial" and "full" aliases.
func ParseUncertaintyClass(s string) (UncertaintyClass, error) {
	switch s {
	case string(UncertaintySafe):
		return UncertaintySafe, nil
	case string(UncertaintyPartial), "partial":
		return UncertaintyPartial, nil
	case string(UncertaintyFull), "full":
		return UncertaintyFull, nil
	default:
		return "", fmt.Errorf("unknown uncertainty class %q", s)
	}
}

type Response string

const (
	ResponseAccept Response = "accept"
	ResponseReject Response = "reject"
)

func ParseResponse(s string) (Response, error) {
	switch Response(s) {
	case ResponseAccept, ResponseReject:
		return Response(s), nil
	default:
		return "", fmt.Errorf("unknown response %q", s)
	}
}

// Result of the effort phase. ResultNone marks a rejected offer.
type Result string

const (
	ResultNone    Result = ""
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Mode selects where each trial's offer comes from.
type Mode string

const (
	ModeStaircase Mode = "staircase"
	ModeSchedule  Mode = "schedule"
)
