package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenmeter/internal/model"
)

func openTestDB(t *testing.T) *SQLiteRecords {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "meter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func storedRecord(requestID string, ts time.Time) *model.UsageRecord {
	return &model.UsageRecord{
		RequestID:   requestID,
		UserID:      "u1",
		Operation:   "chat",
		Model:       "claude-sonnet-4-5",
		InputUnits:  1000,
		OutputUnits: 500,
		TotalUnits:  1500,
		Cost:        0.0105,
		Timestamp:   ts,
		PromptHash:  "ph",
		CacheHit:    true,
	}
}

func TestSQLiteRecords_PutAndQuery(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	want := storedRecord("req-1", ts)
	require.NoError(t, s.Put(ctx, want))

	got, err := s.QueryRange(ctx, "u1", ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, want.RequestID, got[0].RequestID)
	assert.Equal(t, want.TotalUnits, got[0].TotalUnits)
	assert.InDelta(t, want.Cost, got[0].Cost, 1e-9)
	assert.True(t, got[0].Timestamp.Equal(ts))
	assert.Equal(t, "ph", got[0].PromptHash)
	assert.True(t, got[0].CacheHit)
}

func TestSQLiteRecords_DuplicateRequestID(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, storedRecord("req-1", ts)))
	err := s.Put(ctx, storedRecord("req-1", ts.Add(time.Minute)))
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestSQLiteRecords_QueryOrderAndBounds(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"req-a", "req-b", "req-c"} {
		rec := storedRecord(id, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, s.Put(ctx, rec))
	}
	// Outside the window
	require.NoError(t, s.Put(ctx, storedRecord("req-old", base.Add(-48*time.Hour))))

	got, err := s.QueryRange(ctx, "u1", base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first
	assert.Equal(t, "req-c", got[0].RequestID)
	assert.Equal(t, "req-b", got[1].RequestID)
	assert.Equal(t, "req-a", got[2].RequestID)
}

func TestSQLiteRecords_IsolatesUsers(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, storedRecord("req-1", ts)))

	other := storedRecord("req-2", ts)
	other.UserID = "u2"
	require.NoError(t, s.Put(ctx, other))

	got, err := s.QueryRange(ctx, "u1", ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "req-1", got[0].RequestID)
}
