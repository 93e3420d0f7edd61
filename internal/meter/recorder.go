// Package meter is the metering engine: it turns completed inference
// requests into priced, persisted usage records and serves the analytics
// surface derived from them.
package meter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tokenmeter/internal/audit"
	"tokenmeter/internal/model"
	"tokenmeter/internal/pricing"
	"tokenmeter/internal/retry"
	"tokenmeter/internal/storage"
)

// Recorder validates raw usage, derives cost and totals, persists the
// record, and folds it into the day's aggregate bucket.
type Recorder struct {
	records storage.RecordStore
	buckets storage.AggregateStore
	sink    audit.Sink
	table   *pricing.Table
	logger  *zap.Logger
	policy  retry.Policy
	now     func() time.Time
}

// NewRecorder wires a recorder. A nil sink disables audit events; a nil
// logger disables logging.
func NewRecorder(records storage.RecordStore, buckets storage.AggregateStore, sink audit.Sink, table *pricing.Table, logger *zap.Logger, policy retry.Policy) *Recorder {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		records: records,
		buckets: buckets,
		sink:    sink,
		table:   table,
		logger:  logger,
		policy:  policy,
		now:     time.Now,
	}
}

// Record meters one completed request. On validation failure nothing is
// written. The record write is authoritative: if the aggregate fold fails
// afterwards, the error reports the aggregate stage and the bucket is
// reconcilable by replaying the day's records. Audit failure never fails
// the call; it is logged as a warning.
func (r *Recorder) Record(ctx context.Context, raw model.RawUsage) (*model.UsageRecord, error) {
	if err := validate(raw); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	rec := &model.UsageRecord{
		RequestID:    raw.RequestID,
		UserID:       raw.UserID,
		Operation:    raw.Operation,
		Model:        raw.Model,
		InputUnits:   raw.InputUnits,
		OutputUnits:  raw.OutputUnits,
		TotalUnits:   raw.InputUnits + raw.OutputUnits, // re-derived, never caller-supplied
		Cost:         r.table.Cost(raw.Model, raw.InputUnits, raw.OutputUnits),
		Timestamp:    now,
		PromptHash:   raw.PromptHash,
		ResponseHash: raw.ResponseHash,
		CacheHit:     raw.CacheHit,
	}

	err := retry.Do(ctx, r.policy, func() error {
		return r.records.Put(ctx, rec)
	})
	if err != nil {
		return nil, &StorageError{Stage: StageRecord, RequestID: rec.RequestID, UserID: rec.UserID, Err: err}
	}

	key := storage.BucketKey{UserID: rec.UserID, Date: model.DateKey(rec.Timestamp)}
	deltas := storage.Deltas{
		Units:     rec.TotalUnits,
		Cost:      rec.Cost,
		Model:     rec.Model,
		Operation: rec.Operation,
		Timestamp: rec.Timestamp,
	}
	err = retry.Do(ctx, r.policy, func() error {
		return r.buckets.AtomicIncrement(ctx, key, deltas)
	})
	if err != nil {
		// The detail record exists; the bucket is stale until replayed.
		return rec, &StorageError{Stage: StageAggregate, RequestID: rec.RequestID, UserID: rec.UserID, Err: err}
	}

	if err := r.sink.LogAction(ctx, rec.UserID, "usage:"+rec.RequestID, map[string]any{
		"request_id":  rec.RequestID,
		"model":       rec.Model,
		"total_units": rec.TotalUnits,
		"cost":        rec.Cost,
		"user_id":     rec.UserID,
	}); err != nil {
		r.logger.Warn("audit sink failed, usage was recorded anyway",
			zap.String("request_id", rec.RequestID),
			zap.Error(err),
		)
	}

	return rec, nil
}

func validate(raw model.RawUsage) error {
	switch {
	case raw.RequestID == "":
		return &InvalidUsageError{UserID: raw.UserID, Field: "requestId", Reason: "must not be empty"}
	case raw.UserID == "":
		return &InvalidUsageError{RequestID: raw.RequestID, Field: "userId", Reason: "must not be empty"}
	case raw.InputUnits < 0:
		return &InvalidUsageError{RequestID: raw.RequestID, UserID: raw.UserID, Field: "inputUnits", Reason: "must not be negative"}
	case raw.OutputUnits < 0:
		return &InvalidUsageError{RequestID: raw.RequestID, UserID: raw.UserID, Field: "outputUnits", Reason: "must not be negative"}
	}
	return nil
}
