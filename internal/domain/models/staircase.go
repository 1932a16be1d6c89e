package models

// StaircaseState is the running belief about the participant's effort-cost
// coefficient together with the offer currently on the table.
type StaircaseState struct {
	K      float64 `json:"estimated_k"`
	Reward int     `json:"reward"`
	Effort int     `json:"effort"`
	Trial  int     `json:"trial"`
}
