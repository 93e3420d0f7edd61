// Package analytics derives summaries, recommendations, and cost
// projections from stored usage records. Everything here is a pure fold
// over already-fetched data.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"tokenmeter/internal/model"
)

// Summarize folds a window of usage records into an AnalyticsSummary. The
// input order does not matter; the daily trend is rebuilt from each
// record's own timestamp and returned ascending by date. An empty window
// yields an all-zero summary.
func Summarize(userID string, start, end time.Time, records []model.UsageRecord) *model.AnalyticsSummary {
	s := &model.AnalyticsSummary{
		UserID:         userID,
		Start:          start,
		End:            end,
		ModelUnits:     make(map[string]int64),
		ModelCost:      make(map[string]float64),
		OperationUnits: make(map[string]int64),
		OperationCost:  make(map[string]float64),
	}

	days := make(map[string]*model.DailyUsage)

	for _, r := range records {
		s.TotalUnits += r.TotalUnits
		s.TotalInputUnits += r.InputUnits
		s.TotalOutputUnits += r.OutputUnits
		s.TotalCost += r.Cost
		s.RequestCount++
		if r.CacheHit {
			s.CacheHits++
		}

		s.ModelUnits[r.Model] += r.TotalUnits
		s.ModelCost[r.Model] += r.Cost
		s.OperationUnits[r.Operation] += r.TotalUnits
		s.OperationCost[r.Operation] += r.Cost

		key := model.DateKey(r.Timestamp)
		day, ok := days[key]
		if !ok {
			day = &model.DailyUsage{Date: key}
			days[key] = day
		}
		day.Units += r.TotalUnits
		day.Cost += r.Cost
		day.Requests++
	}

	for _, day := range days {
		s.DailyTrend = append(s.DailyTrend, *day)
	}
	sort.Slice(s.DailyTrend, func(i, j int) bool {
		return s.DailyTrend[i].Date < s.DailyTrend[j].Date
	})

	// Ratios default to 0 on a zero divisor, never NaN.
	if s.TotalInputUnits > 0 {
		s.Efficiency.InputOutputRatio = float64(s.TotalOutputUnits) / float64(s.TotalInputUnits)
	}
	if s.RequestCount > 0 {
		s.Efficiency.CacheHitRate = float64(s.CacheHits) / float64(s.RequestCount)
	}
	if s.TotalUnits > 0 {
		s.Efficiency.CostPerUnit = s.TotalCost / float64(s.TotalUnits)
	}

	return s
}

// VerifyBucket replays a day's records and compares the result against the
// stored bucket totals. A mismatch means the bucket is stale or corrupt
// and must be rebuilt from the records, never trusted for audit figures.
func VerifyBucket(bucket *model.AggregateBucket, records []model.UsageRecord) error {
	var units, requests int64
	var cost float64
	for _, r := range records {
		if model.DateKey(r.Timestamp) != bucket.Date || r.UserID != bucket.UserID {
			continue
		}
		units += r.TotalUnits
		cost += r.Cost
		requests++
	}

	if units != bucket.TotalUnits {
		return fmt.Errorf("bucket %s/%s units diverge: stored %d, replay %d",
			bucket.UserID, bucket.Date, bucket.TotalUnits, units)
	}
	if requests != bucket.RequestCount {
		return fmt.Errorf("bucket %s/%s request count diverges: stored %d, replay %d",
			bucket.UserID, bucket.Date, bucket.RequestCount, requests)
	}
	if diff := bucket.TotalCost - cost; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("bucket %s/%s cost diverges: stored %.9f, replay %.9f",
			bucket.UserID, bucket.Date, bucket.TotalCost, cost)
	}
	return nil
}
