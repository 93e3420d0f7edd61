package model

import "time"

// RawUsage is the caller-supplied description of one completed inference
// request, before cost and totals have been derived.
type RawUsage struct {
	RequestID    string `json:"request_id"`
	UserID       string `json:"user_id"`
	Operation    string `json:"operation"`
	Model        string `json:"model"`
	InputUnits   int64  `json:"input_units"`
	OutputUnits  int64  `json:"output_units"`
	PromptHash   string `json:"prompt_hash,omitempty"`
	ResponseHash string `json:"response_hash,omitempty"`
	CacheHit     bool   `json:"cache_hit,omitempty"`
}

// UsageRecord is one metered operation. TotalUnits and Cost are derived at
// record time and the record is immutable once written.
type UsageRecord struct {
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id"`
	Operation    string    `json:"operation"`
	Model        string    `json:"model"`
	InputUnits   int64     `json:"input_units"`
	OutputUnits  int64     `json:"output_units"`
	TotalUnits   int64     `json:"total_units"`
	Cost         float64   `json:"cost"`
	Timestamp    time.Time `json:"timestamp"`
	PromptHash   string    `json:"prompt_hash,omitempty"`
	ResponseHash string    `json:"response_hash,omitempty"`
	CacheHit     bool      `json:"cache_hit"`
}

// AggregateBucket is the per-user, per-day rollup of usage. It is a cache
// of a fold over that day's UsageRecords, never the source of truth: it
// must always be reconstructible by replaying the records.
type AggregateBucket struct {
	UserID         string             `json:"user_id"`
	Date           string             `json:"date"` // YYYY-MM-DD, UTC
	TotalUnits     int64              `json:"total_units"`
	TotalCost      float64            `json:"total_cost"`
	RequestCount   int64              `json:"request_count"`
	ModelUnits     map[string]int64   `json:"model_units"`
	ModelCost      map[string]float64 `json:"model_cost"`
	OperationUnits map[string]int64   `json:"operation_units"`
	OperationCost  map[string]float64 `json:"operation_cost"`
	LastUpdated    time.Time          `json:"last_updated"`
}

// DailyUsage is one day of the trend inside an AnalyticsSummary.
type DailyUsage struct {
	Date     string  `json:"date"`
	Units    int64   `json:"units"`
	Cost     float64 `json:"cost"`
	Requests int64   `json:"requests"`
}

// Efficiency holds derived usage ratios. Every ratio is 0 when its divisor
// is 0; none of them may ever be NaN.
type Efficiency struct {
	InputOutputRatio float64 `json:"input_output_ratio"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	CostPerUnit      float64 `json:"cost_per_unit"`
}

// AnalyticsSummary is the derived, point-in-time view of a usage window.
// It is built fresh per query and never stored.
type AnalyticsSummary struct {
	UserID           string             `json:"user_id"`
	Start            time.Time          `json:"start"`
	End              time.Time          `json:"end"`
	TotalUnits       int64              `json:"total_units"`
	TotalInputUnits  int64              `json:"total_input_units"`
	TotalOutputUnits int64              `json:"total_output_units"`
	TotalCost        float64            `json:"total_cost"`
	RequestCount     int64              `json:"request_count"`
	CacheHits        int64              `json:"cache_hits"`
	ModelUnits       map[string]int64   `json:"model_units"`
	ModelCost        map[string]float64 `json:"model_cost"`
	OperationUnits   map[string]int64   `json:"operation_units"`
	OperationCost    map[string]float64 `json:"operation_cost"`
	DailyTrend       []DailyUsage       `json:"daily_trend"` // ascending by date
	Efficiency       Efficiency         `json:"efficiency"`
}

// Priority orders recommendations. Higher rank sorts first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns a sortable weight for the priority.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Recommendation is one piece of cost-optimization advice derived from an
// AnalyticsSummary.
type Recommendation struct {
	Type             string   `json:"type"`
	Priority         Priority `json:"priority"`
	Description      string   `json:"description"`
	PotentialSavings float64  `json:"potential_savings"`
	Implementation   string   `json:"implementation"`
	Impact           string   `json:"impact"`
}

// CostProjection extrapolates near-future cost from recent daily spend.
// Confidence is in [0,1] and shrinks as daily costs get noisier.
type CostProjection struct {
	UserID               string             `json:"user_id"`
	HorizonDays          int                `json:"horizon_days"`
	CurrentDailyCost     float64            `json:"current_daily_cost"`
	ProjectedCost        float64            `json:"projected_cost"`
	ProjectedMonthlyCost float64            `json:"projected_monthly_cost"`
	Confidence           float64            `json:"confidence"`
	ModelBreakdown       map[string]float64 `json:"model_breakdown"`
	OperationBreakdown   map[string]float64 `json:"operation_breakdown"`
}

// DateKey formats a timestamp as the bucket date key (UTC day).
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
