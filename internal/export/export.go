// Package export serializes usage records for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tokenmeter/internal/model"
)

// Format names a supported export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Records serializes usage records in the requested format.
func Records(records []model.UsageRecord, format Format) (string, error) {
	switch format {
	case FormatJSON:
		return JSON(records)
	case FormatCSV:
		return CSV(records)
	default:
		return "", fmt.Errorf("unsupported export format: %q", format)
	}
}

// JSON returns the records pretty-printed as a JSON array.
func JSON(records []model.UsageRecord) (string, error) {
	if records == nil {
		records = []model.UsageRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var csvHeader = []string{
	"requestId", "operation", "modelId", "inputUnits", "outputUnits",
	"totalUnits", "cost", "timestamp", "cacheHit",
}

// CSV returns the records as CSV with cost at 6 decimal places and
// cacheHit rendered as Yes/No.
func CSV(records []model.UsageRecord) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}

	for _, r := range records {
		cacheHit := "No"
		if r.CacheHit {
			cacheHit = "Yes"
		}
		row := []string{
			r.RequestID,
			r.Operation,
			r.Model,
			fmt.Sprintf("%d", r.InputUnits),
			fmt.Sprintf("%d", r.OutputUnits),
			fmt.Sprintf("%d", r.TotalUnits),
			fmt.Sprintf("%.6f", r.Cost),
			r.Timestamp.UTC().Format(time.RFC3339),
			cacheHit,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}
