package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"EffortLab/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// TrialQuerier reads back the trial log.
type TrialQuerier interface {
	Query(ctx context.Context, participant string, from, to time.Time, limit int) ([]*models.TrialRecord, error)
}

// EffortLevelSummary is the choice behaviour at one offered effort level.
type EffortLevelSummary struct {
	Effort      int     `json:"effort"`
	Offers      int     `json:"offers"`
	AcceptRate  float64 `json:"accept_rate"`
	SuccessRate float64 `json:"success_rate"`
}

// TrialSummary condenses a participant's trial log.
type TrialSummary struct {
	Participant      string               `json:"participant"`
	Trials           int                  `json:"trials"`
	Sessions         int                  `json:"sessions"`
	AcceptRate       float64              `json:"accept_rate"`
	SuccessRate      float64              `json:"success_rate"`
	MeanEffort       float64              `json:"mean_effort"`
	TotalPoints      int                  `json:"total_points"`
	LatestEstimatedK float64              `json:"latest_estimated_k"`
	ByEffort         []EffortLevelSummary `json:"by_effort"`
	From             time.Time            `json:"from"`
	To               time.Time            `json:"to"`
}

// TrialSummaryUseCase builds per-participant summaries from the trial log.
type TrialSummaryUseCase struct {
	trials  TrialQuerier
	timeout time.Duration
	limit   int
}

func NewTrialSummaryUseCase(trials TrialQuerier) *TrialSummaryUseCase {
	return &TrialSummaryUseCase{trials: trials, timeout: 10 * time.Second, limit: 10000}
}

func (uc *TrialSummaryUseCase) Summarize(ctx context.Context, participant string, from, to time.Time) (*TrialSummary, error) {
	if participant == "" {
		return nil, errors.New("participant required")
	}
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	records, err := uc.trials.Query(ctx, participant, from, to, uc.limit)
	if err != nil {
		return nil, err
	}
	return Summarize(participant, records), nil
}

// Summarize is the pure part of TrialSummaryUseCase.
func Summarize(participant string, records []*models.TrialRecord) *TrialSummary {
	s := &TrialSummary{Participant: participant, Trials: len(records), ByEffort: []EffortLevelSummary{}}
	if len(records) == 0 {
		return s
	}

	sorted := append([]*models.TrialRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RecordedAt.Before(sorted[j].RecordedAt) })
	s.From = sorted[0].RecordedAt
	s.To = sorted[len(sorted)-1].RecordedAt
	s.LatestEstimatedK = sorted[len(sorted)-1].EstimatedK

	type level struct{ offers, accepted, succeeded int }
	levels := map[int]*level{}
	sessions := map[string]struct{}{}
	var accepted, succeeded int
	var efforts []float64

	for _, r := range sorted {
		sessions[r.SessionID] = struct{}{}
		s.TotalPoints += r.Outcome.Points
		lv := levels[r.Offer.Effort]
		if lv == nil {
			lv = &level{}
			levels[r.Offer.Effort] = lv
		}
		lv.offers++
		if r.Outcome.Response != models.ResponseAccept {
			continue
		}
		accepted++
		lv.accepted++
		efforts = append(efforts, r.Outcome.AverageEffort)
		if r.Outcome.Result == models.ResultSuccess {
			succeeded++
			lv.succeeded++
		}
	}

	s.Sessions = len(sessions)
	s.AcceptRate = ratio(accepted, len(sorted))
	s.SuccessRate = ratio(succeeded, accepted)
	if len(efforts) > 0 {
		s.MeanEffort = stat.Mean(efforts, nil)
	}
	for effort, lv := range levels {
		s.ByEffort = append(s.ByEffort, EffortLevelSummary{
			Effort:      effort,
			Offers:      lv.offers,
			AcceptRate:  ratio(lv.accepted, lv.offers),
			SuccessRate: ratio(lv.succeeded, lv.accepted),
		})
	}
	sort.Slice(s.ByEffort, func(i, j int) bool { return s.ByEffort[i].Effort < s.ByEffort[j].Effort })
	return s
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
