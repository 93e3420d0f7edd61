package analytics

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenmeter/internal/model"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return ts
}

func sampleRecords(t *testing.T) []model.UsageRecord {
	return []model.UsageRecord{
		{
			RequestID: "r1", UserID: "u1", Operation: "chat", Model: "claude-sonnet-4-5",
			InputUnits: 1000, OutputUnits: 2000, TotalUnits: 3000, Cost: 0.033,
			Timestamp: day(t, "2026-08-01").Add(10 * time.Hour),
		},
		{
			RequestID: "r2", UserID: "u1", Operation: "chat", Model: "claude-3-opus",
			InputUnits: 500, OutputUnits: 500, TotalUnits: 1000, Cost: 0.045,
			Timestamp: day(t, "2026-08-02").Add(9 * time.Hour), CacheHit: true,
		},
		{
			RequestID: "r3", UserID: "u1", Operation: "summarize", Model: "claude-sonnet-4-5",
			InputUnits: 2000, OutputUnits: 1000, TotalUnits: 3000, Cost: 0.021,
			Timestamp: day(t, "2026-08-02").Add(15 * time.Hour),
		},
	}
}

func TestSummarize(t *testing.T) {
	records := sampleRecords(t)
	s := Summarize("u1", day(t, "2026-08-01"), day(t, "2026-08-03"), records)

	assert.Equal(t, int64(7000), s.TotalUnits)
	assert.Equal(t, int64(3500), s.TotalInputUnits)
	assert.Equal(t, int64(3500), s.TotalOutputUnits)
	assert.InDelta(t, 0.099, s.TotalCost, 1e-9)
	assert.Equal(t, int64(3), s.RequestCount)

	assert.Equal(t, int64(6000), s.ModelUnits["claude-sonnet-4-5"])
	assert.Equal(t, int64(1000), s.ModelUnits["claude-3-opus"])
	assert.Equal(t, int64(4000), s.OperationUnits["chat"])
	assert.Equal(t, int64(3000), s.OperationUnits["summarize"])

	require.Len(t, s.DailyTrend, 2)
	assert.Equal(t, "2026-08-01", s.DailyTrend[0].Date)
	assert.Equal(t, "2026-08-02", s.DailyTrend[1].Date)
	assert.Equal(t, int64(4000), s.DailyTrend[1].Units)
	assert.Equal(t, int64(2), s.DailyTrend[1].Requests)

	assert.InDelta(t, 1.0, s.Efficiency.InputOutputRatio, 1e-9)
	assert.InDelta(t, 1.0/3.0, s.Efficiency.CacheHitRate, 1e-9)
	assert.InDelta(t, 0.099/7000, s.Efficiency.CostPerUnit, 1e-12)
}

func TestSummarize_OrderIndependent(t *testing.T) {
	records := sampleRecords(t)
	shuffled := make([]model.UsageRecord, len(records))
	copy(shuffled, records)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	a := Summarize("u1", day(t, "2026-08-01"), day(t, "2026-08-03"), records)
	b := Summarize("u1", day(t, "2026-08-01"), day(t, "2026-08-03"), shuffled)

	assert.Equal(t, a, b)
}

func TestSummarize_EmptyWindow(t *testing.T) {
	s := Summarize("u1", day(t, "2026-08-01"), day(t, "2026-08-03"), nil)

	assert.Equal(t, int64(0), s.TotalUnits)
	assert.Equal(t, 0.0, s.TotalCost)
	assert.Equal(t, int64(0), s.RequestCount)
	assert.Empty(t, s.DailyTrend)
	assert.Empty(t, s.ModelUnits)
	assert.Empty(t, s.OperationUnits)

	// Zero divisors must yield exactly 0, never NaN
	assert.Equal(t, 0.0, s.Efficiency.InputOutputRatio)
	assert.Equal(t, 0.0, s.Efficiency.CacheHitRate)
	assert.Equal(t, 0.0, s.Efficiency.CostPerUnit)
}

func TestSummarize_ZeroInputUnits(t *testing.T) {
	records := []model.UsageRecord{
		{RequestID: "r1", UserID: "u1", Model: "m", Operation: "op",
			OutputUnits: 100, TotalUnits: 100, Cost: 0.01, Timestamp: day(t, "2026-08-01")},
	}
	s := Summarize("u1", day(t, "2026-08-01"), day(t, "2026-08-02"), records)
	assert.Equal(t, 0.0, s.Efficiency.InputOutputRatio)
}

func TestVerifyBucket(t *testing.T) {
	records := []model.UsageRecord{
		{RequestID: "r1", UserID: "u1", TotalUnits: 100, Cost: 0.5, Timestamp: day(t, "2026-08-01")},
		{RequestID: "r2", UserID: "u1", TotalUnits: 200, Cost: 1.0, Timestamp: day(t, "2026-08-01")},
		{RequestID: "r3", UserID: "u1", TotalUnits: 999, Cost: 9.9, Timestamp: day(t, "2026-08-02")}, // different day, must be excluded
	}

	bucket := &model.AggregateBucket{
		UserID: "u1", Date: "2026-08-01",
		TotalUnits: 300, TotalCost: 1.5, RequestCount: 2,
	}
	assert.NoError(t, VerifyBucket(bucket, records))

	bucket.TotalUnits = 310
	assert.Error(t, VerifyBucket(bucket, records))
}
