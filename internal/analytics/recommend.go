package analytics

import (
	"fmt"
	"sort"

	"tokenmeter/internal/model"
	"tokenmeter/internal/pricing"
)

// Heuristic thresholds. Each rule reads only the summary, so evaluation
// order cannot change which rules fire; ties in priority keep the rules'
// natural order via the stable sort.
const (
	minSwitchSavings     = 1.0  // dollars; below this a model switch is not worth advising
	promptRatioThreshold = 2.0  // output units per input unit
	promptSavingsFrac    = 0.2  // of total cost
	cacheHitThreshold    = 0.3  // cache hit rate floor
	cacheSavingsFrac     = 0.4  // of total cost
	batchUnitsThreshold  = 1000 // average units per request
	batchCostFloor       = 10.0 // dollars; batching advice needs real spend
	batchSavingsFrac     = 0.15 // of total cost
	throttleDailyCost    = 5.0  // dollars per day
	throttleSavingsFrac  = 0.2  // of mean daily cost, over 30 days
)

// Recommend evaluates the heuristic rules against a summary and returns
// the advice list sorted by priority descending. An empty summary yields
// an empty list.
func Recommend(table *pricing.Table, s *model.AnalyticsSummary) []model.Recommendation {
	if s == nil || s.RequestCount == 0 {
		return nil
	}

	var recs []model.Recommendation

	if r, ok := modelSwitch(table, s); ok {
		recs = append(recs, r)
	}
	if r, ok := promptOptimization(s); ok {
		recs = append(recs, r)
	}
	if r, ok := caching(s); ok {
		recs = append(recs, r)
	}
	if r, ok := batching(s); ok {
		recs = append(recs, r)
	}
	if r, ok := throttling(s); ok {
		recs = append(recs, r)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() > recs[j].Priority.Rank()
	})
	return recs
}

// modelSwitch fires when the most-used model sits in the costliest pricing
// family and moving it to the cheapest family would save a meaningful
// amount.
func modelSwitch(table *pricing.Table, s *model.AnalyticsSummary) (model.Recommendation, bool) {
	topModel := ""
	var topUnits int64 = -1
	for m, units := range s.ModelUnits {
		if units > topUnits || (units == topUnits && m < topModel) {
			topModel, topUnits = m, units
		}
	}
	if topModel == "" {
		return model.Recommendation{}, false
	}

	lookup := table.FamilyFor(topModel)
	costliest := table.CostliestFamily()
	if lookup.Family != costliest.Name {
		return model.Recommendation{}, false
	}

	cheapest := table.CheapestFamily()
	savings := s.ModelCost[topModel] * (1 - table.RelativeCost(cheapest.Name))
	if savings <= minSwitchSavings {
		return model.Recommendation{}, false
	}

	return model.Recommendation{
		Type:             "model_switch",
		Priority:         model.PriorityHigh,
		Description:      fmt.Sprintf("Most of your usage runs on %s, the most expensive pricing tier.", topModel),
		PotentialSavings: savings,
		Implementation:   fmt.Sprintf("Route routine requests to a %s-class model and reserve %s for tasks that need it.", cheapest.Name, costliest.Name),
		Impact:           fmt.Sprintf("Could save about $%.2f over this window.", savings),
	}, true
}

// promptOptimization fires when responses run much longer than prompts.
func promptOptimization(s *model.AnalyticsSummary) (model.Recommendation, bool) {
	if s.Efficiency.InputOutputRatio <= promptRatioThreshold {
		return model.Recommendation{}, false
	}
	savings := s.TotalCost * promptSavingsFrac
	return model.Recommendation{
		Type:             "prompt_optimization",
		Priority:         model.PriorityMedium,
		Description:      fmt.Sprintf("Responses average %.1fx the length of prompts.", s.Efficiency.InputOutputRatio),
		PotentialSavings: savings,
		Implementation:   "Constrain response length in prompts and request concise output formats.",
		Impact:           fmt.Sprintf("Shorter responses could save about $%.2f.", savings),
	}, true
}

// caching fires when the cache hit rate is low.
func caching(s *model.AnalyticsSummary) (model.Recommendation, bool) {
	if s.Efficiency.CacheHitRate >= cacheHitThreshold {
		return model.Recommendation{}, false
	}
	savings := s.TotalCost * cacheSavingsFrac
	return model.Recommendation{
		Type:             "caching",
		Priority:         model.PriorityHigh,
		Description:      fmt.Sprintf("Only %.0f%% of requests hit the cache.", s.Efficiency.CacheHitRate*100),
		PotentialSavings: savings,
		Implementation:   "Enable prompt caching for repeated context and stable system prompts.",
		Impact:           fmt.Sprintf("Better cache reuse could save about $%.2f.", savings),
	}, true
}

// batching fires on many small requests with meaningful total spend.
func batching(s *model.AnalyticsSummary) (model.Recommendation, bool) {
	if s.RequestCount == 0 {
		return model.Recommendation{}, false
	}
	avgUnits := float64(s.TotalUnits) / float64(s.RequestCount)
	if avgUnits >= batchUnitsThreshold || s.TotalCost <= batchCostFloor {
		return model.Recommendation{}, false
	}
	savings := s.TotalCost * batchSavingsFrac
	return model.Recommendation{
		Type:             "batching",
		Priority:         model.PriorityMedium,
		Description:      fmt.Sprintf("Requests average only %.0f units each.", avgUnits),
		PotentialSavings: savings,
		Implementation:   "Combine related small requests into batched calls to amortize per-request overhead.",
		Impact:           fmt.Sprintf("Batching could save about $%.2f.", savings),
	}, true
}

// throttling fires when mean daily spend is high.
func throttling(s *model.AnalyticsSummary) (model.Recommendation, bool) {
	if len(s.DailyTrend) == 0 {
		return model.Recommendation{}, false
	}
	var total float64
	for _, day := range s.DailyTrend {
		total += day.Cost
	}
	mean := total / float64(len(s.DailyTrend))
	if mean <= throttleDailyCost {
		return model.Recommendation{}, false
	}
	savings := mean * throttleSavingsFrac * 30
	return model.Recommendation{
		Type:             "throttling",
		Priority:         model.PriorityLow,
		Description:      fmt.Sprintf("Spend averages $%.2f per day.", mean),
		PotentialSavings: savings,
		Implementation:   "Set per-user daily budgets or rate limits to cap discretionary usage.",
		Impact:           fmt.Sprintf("A modest cap could save about $%.2f per month.", savings),
	}, true
}
