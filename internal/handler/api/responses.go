package api

import (
	"EffortLab/internal/domain/models"
	"EffortLab/internal/usecase"
)

// MarkerView is a marker as the presentation layer logs it.
type MarkerView struct {
	Name string `json:"name"`
	Code uint8  `json:"code"`
}

// NextOffer is the staircase offer for the following trial.
type NextOffer struct {
	Reward int     `json:"reward"`
	Effort int     `json:"effort"`
	K      float64 `json:"estimated_k"`
}

type TrialResponse struct {
	Outcome models.TrialOutcome `json:"outcome"`
	Record  *models.TrialRecord `json:"record"`
	Session models.SessionState `json:"session"`
	Next    *NextOffer          `json:"next_offer,omitempty"`
	Markers []MarkerView        `json:"markers"`
}

func newTrialResponse(res *usecase.TrialResult) TrialResponse {
	out := TrialResponse{
		Outcome: res.Record.Outcome,
		Record:  res.Record,
		Session: res.Session,
		Markers: make([]MarkerView, len(res.Markers)),
	}
	for i, m := range res.Markers {
		out.Markers[i] = MarkerView{Name: m.String(), Code: m.Code()}
	}
	if res.Session.Mode == models.ModeStaircase {
		st := res.Session.Staircase
		out.Next = &NextOffer{Reward: st.Reward, Effort: st.Effort, K: st.K}
	}
	return out
}
