package export

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenmeter/internal/model"
)

func exportRecords() []model.UsageRecord {
	ts := time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC)
	return []model.UsageRecord{
		{
			RequestID:   "req-1",
			UserID:      "u1",
			Operation:   "chat",
			Model:       "claude-sonnet-4-5",
			InputUnits:  1000,
			OutputUnits: 500,
			TotalUnits:  1500,
			Cost:        0.0105,
			Timestamp:   ts,
			CacheHit:    true,
		},
		{
			RequestID:   "req-2",
			UserID:      "u1",
			Operation:   "summarize",
			Model:       "claude-3-5-haiku",
			InputUnits:  200,
			OutputUnits: 100,
			TotalUnits:  300,
			Cost:        0.0007,
			Timestamp:   ts.Add(time.Hour),
		},
	}
}

func TestCSV(t *testing.T) {
	out, err := CSV(exportRecords())
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"requestId", "operation", "modelId", "inputUnits", "outputUnits",
		"totalUnits", "cost", "timestamp", "cacheHit",
	}, rows[0])

	assert.Equal(t, "req-1", rows[1][0])
	assert.Equal(t, "1500", rows[1][5])
	assert.Equal(t, "0.010500", rows[1][6])
	assert.Equal(t, "2026-08-15T09:30:00Z", rows[1][7])
	assert.Equal(t, "Yes", rows[1][8])
	assert.Equal(t, "No", rows[2][8])
}

func TestCSV_Empty(t *testing.T) {
	out, err := CSV(nil)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
}

func TestJSON(t *testing.T) {
	out, err := JSON(exportRecords())
	require.NoError(t, err)

	var decoded []model.UsageRecord
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "req-1", decoded[0].RequestID)
	assert.InDelta(t, 0.0105, decoded[0].Cost, 1e-9)
	assert.True(t, decoded[0].Timestamp.Equal(time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC)))
}

func TestJSON_NilIsEmptyArray(t *testing.T) {
	out, err := JSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRecords_Dispatch(t *testing.T) {
	recs := exportRecords()

	viaCSV, err := Records(recs, FormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(viaCSV, "requestId,"))

	viaJSON, err := Records(recs, FormatJSON)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(viaJSON, "["))

	_, err = Records(recs, Format("xml"))
	assert.Error(t, err)
}
