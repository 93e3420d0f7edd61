package analytics

import (
	"math"

	"tokenmeter/internal/model"
)

// recentWindowDays is how many trailing trend days feed the projection.
const recentWindowDays = 7

// Project extrapolates near-future cost from the trailing week of the
// summary's daily trend. Confidence is 1 minus the coefficient of
// variation of recent daily costs, clamped to [0,1]; with no spend it is
// defined as 0 rather than dividing by zero.
func Project(s *model.AnalyticsSummary, horizonDays int) *model.CostProjection {
	if horizonDays <= 0 {
		horizonDays = 30
	}

	p := &model.CostProjection{
		UserID:             s.UserID,
		HorizonDays:        horizonDays,
		ModelBreakdown:     make(map[string]float64),
		OperationBreakdown: make(map[string]float64),
	}

	trend := s.DailyTrend
	if len(trend) > recentWindowDays {
		trend = trend[len(trend)-recentWindowDays:]
	}
	if len(trend) == 0 {
		return p
	}

	var total float64
	for _, day := range trend {
		total += day.Cost
	}
	mean := total / float64(len(trend))

	p.CurrentDailyCost = mean
	p.ProjectedCost = mean * float64(horizonDays)
	p.ProjectedMonthlyCost = mean * 30

	if mean > 0 {
		var variance float64
		for _, day := range trend {
			d := day.Cost - mean
			variance += d * d
		}
		variance /= float64(len(trend))
		stddev := math.Sqrt(variance)
		p.Confidence = clamp(1-stddev/mean, 0, 1)
	}

	// Distribute the projection in proportion to each key's share of
	// current cost; with zero current cost every entry stays 0.
	if s.TotalCost > 0 {
		for m, cost := range s.ModelCost {
			p.ModelBreakdown[m] = p.ProjectedCost * (cost / s.TotalCost)
		}
		for op, cost := range s.OperationCost {
			p.OperationBreakdown[op] = p.ProjectedCost * (cost / s.TotalCost)
		}
	} else {
		for m := range s.ModelCost {
			p.ModelBreakdown[m] = 0
		}
		for op := range s.OperationCost {
			p.OperationBreakdown[op] = 0
		}
	}

	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
