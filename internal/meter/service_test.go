package meter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenmeter/internal/export"
	"tokenmeter/internal/pricing"
	"tokenmeter/internal/storage"
)

func testTable() *pricing.Table {
	return pricing.DefaultTable(nil)
}

func testService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(storage.NewMemoryRecords(), storage.NewMemoryBuckets(), nil, testTable(), nil, fastPolicy())
	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	svc.recorder.now = svc.now
	return svc
}

func TestService_TrackAndGetUsage(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	rec, err := svc.TrackUsage(ctx, chatUsage("req-1"))
	require.NoError(t, err)

	got, err := svc.GetUsage(ctx, "u1", rec.Timestamp.Add(-time.Hour), rec.Timestamp.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *rec, got[0])

	// Other users see nothing.
	other, err := svc.GetUsage(ctx, "u2", rec.Timestamp.Add(-time.Hour), rec.Timestamp.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestService_GetAnalytics(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	for _, id := range []string{"req-1", "req-2"} {
		_, err := svc.TrackUsage(ctx, chatUsage(id))
		require.NoError(t, err)
	}

	s, err := svc.GetAnalytics(ctx, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.RequestCount)
	assert.Equal(t, int64(3000), s.TotalUnits)
	assert.InDelta(t, 0.021, s.TotalCost, 1e-9)
	require.Len(t, s.DailyTrend, 1)
	assert.Equal(t, "2026-08-15", s.DailyTrend[0].Date)
}

func TestService_GetAnalytics_EmptyWindow(t *testing.T) {
	svc := testService(t)

	s, err := svc.GetAnalytics(context.Background(), "nobody", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.RequestCount)
	assert.Equal(t, 0.0, s.TotalCost)
	assert.Equal(t, 0.0, s.Efficiency.CacheHitRate)
}

func TestService_GetRecommendations_FreshSummary(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, err := svc.TrackUsage(ctx, chatUsage("req-1"))
	require.NoError(t, err)

	// Passing nil computes the summary over the default window.
	recs, err := svc.GetRecommendations(ctx, "u1", nil)
	require.NoError(t, err)
	for _, rec := range recs {
		assert.NotEmpty(t, rec.Type)
		assert.NotEmpty(t, rec.Description)
	}
}

func TestService_GetCostProjection(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, err := svc.TrackUsage(ctx, chatUsage("req-1"))
	require.NoError(t, err)

	p, err := svc.GetCostProjection(ctx, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, p.HorizonDays)
	assert.Greater(t, p.ProjectedCost, 0.0)
}

func TestService_ExportUsage(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	rec, err := svc.TrackUsage(ctx, chatUsage("req-1"))
	require.NoError(t, err)

	start, end := rec.Timestamp.Add(-time.Hour), rec.Timestamp.Add(time.Hour)

	out, err := svc.ExportUsage(ctx, "u1", start, end, export.FormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "requestId,"))
	assert.Contains(t, out, "req-1")

	_, err = svc.ExportUsage(ctx, "u1", start, end, export.Format("xml"))
	assert.Error(t, err)
}

func TestService_ErrorWrapsStage(t *testing.T) {
	svc := NewService(storage.NewMemoryRecords(), failingBuckets{}, nil, testTable(), nil, fastPolicy())

	rec, err := svc.TrackUsage(context.Background(), chatUsage("req-1"))
	require.NotNil(t, rec)

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageAggregate, serr.Stage)
	assert.Equal(t, "req-1", serr.RequestID)
}
