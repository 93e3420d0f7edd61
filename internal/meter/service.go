package meter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tokenmeter/internal/analytics"
	"tokenmeter/internal/audit"
	"tokenmeter/internal/export"
	"tokenmeter/internal/model"
	"tokenmeter/internal/pricing"
	"tokenmeter/internal/retry"
	"tokenmeter/internal/storage"
)

// DefaultWindowDays is the analytics window when the caller does not pick
// one, and DefaultHorizonDays the projection horizon.
const (
	DefaultWindowDays  = 30
	DefaultHorizonDays = 30
)

// Service is the outward surface of the metering core.
type Service struct {
	recorder *Recorder
	records  storage.RecordStore
	table    *pricing.Table
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the metering service from its collaborators.
func NewService(records storage.RecordStore, buckets storage.AggregateStore, sink audit.Sink, table *pricing.Table, logger *zap.Logger, policy retry.Policy) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		recorder: NewRecorder(records, buckets, sink, table, logger, policy),
		records:  records,
		table:    table,
		logger:   logger,
		now:      time.Now,
	}
}

// TrackUsage meters one completed request and returns the stored record.
func (s *Service) TrackUsage(ctx context.Context, raw model.RawUsage) (*model.UsageRecord, error) {
	return s.recorder.Record(ctx, raw)
}

// GetUsage returns the user's records in [start, end], most recent first.
func (s *Service) GetUsage(ctx context.Context, userID string, start, end time.Time) ([]model.UsageRecord, error) {
	records, err := s.records.QueryRange(ctx, userID, start, end)
	if err != nil {
		return nil, &StorageError{Stage: StageRecord, UserID: userID, Err: err}
	}
	return records, nil
}

// GetAnalytics summarizes the trailing window of the user's usage. An
// empty window returns an all-zero summary, not an error.
func (s *Service) GetAnalytics(ctx context.Context, userID string, days int) (*model.AnalyticsSummary, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)

	records, err := s.records.QueryRange(ctx, userID, start, end)
	if err != nil {
		return nil, &StorageError{Stage: StageRecord, UserID: userID, Err: err}
	}
	return analytics.Summarize(userID, start, end, records), nil
}

// GetRecommendations evaluates the advice heuristics over a summary. A
// nil summary is computed fresh over the default window.
func (s *Service) GetRecommendations(ctx context.Context, userID string, summary *model.AnalyticsSummary) ([]model.Recommendation, error) {
	if summary == nil {
		var err error
		summary, err = s.GetAnalytics(ctx, userID, DefaultWindowDays)
		if err != nil {
			return nil, err
		}
	}
	return analytics.Recommend(s.table, summary), nil
}

// GetCostProjection projects the user's cost over the horizon from the
// trailing window of daily spend.
func (s *Service) GetCostProjection(ctx context.Context, userID string, horizonDays int) (*model.CostProjection, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	summary, err := s.GetAnalytics(ctx, userID, DefaultWindowDays)
	if err != nil {
		return nil, err
	}
	return analytics.Project(summary, horizonDays), nil
}

// ExportUsage serializes the user's records for the window as JSON or CSV.
func (s *Service) ExportUsage(ctx context.Context, userID string, start, end time.Time, format export.Format) (string, error) {
	records, err := s.GetUsage(ctx, userID, start, end)
	if err != nil {
		return "", err
	}
	return export.Records(records, format)
}
