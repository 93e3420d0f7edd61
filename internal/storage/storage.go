// Package storage holds the durable-store contracts the metering core
// depends on: an append-only record store and an atomic aggregate store.
package storage

import (
	"context"
	"errors"
	"time"

	"tokenmeter/internal/model"
)

// ErrDuplicateRequest is returned by RecordStore.Put when a record with
// the same request ID already exists. Request IDs are idempotency keys;
// a second write with the same ID is a caller error, not a silent dedup.
var ErrDuplicateRequest = errors.New("duplicate request id")

// RecordStore persists UsageRecords append-only and serves windowed reads
// via a secondary index on (user, timestamp).
type RecordStore interface {
	// Put appends one record. Fails with ErrDuplicateRequest when the
	// request ID was already written.
	Put(ctx context.Context, rec *model.UsageRecord) error
	// QueryRange returns all records for the user whose timestamps fall in
	// [start, end], most recent first.
	QueryRange(ctx context.Context, userID string, start, end time.Time) ([]model.UsageRecord, error)
	Close() error
}

// BucketKey identifies one per-user, per-day aggregate bucket.
type BucketKey struct {
	UserID string
	Date   string // YYYY-MM-DD, UTC
}

// Deltas names the counters one record adds to its bucket. All fields are
// additive, so concurrent folds commute and arrival order never changes
// the final bucket value.
type Deltas struct {
	Units     int64
	Cost      float64
	Model     string
	Operation string
	Timestamp time.Time
}

// AggregateStore maintains AggregateBuckets through atomic increments.
// Implementations must never read-modify-write the counters.
type AggregateStore interface {
	AtomicIncrement(ctx context.Context, key BucketKey, d Deltas) error
	// Get returns the bucket, or nil when it does not exist.
	Get(ctx context.Context, key BucketKey) (*model.AggregateBucket, error)
}

// MaxBucketEntries bounds the per-model and per-operation mappings inside
// a single bucket. High-cardinality keys beyond the bound fold into
// OverflowKey so a bucket's size cannot grow without limit.
const MaxBucketEntries = 50

// OverflowKey collects increments for keys beyond MaxBucketEntries.
const OverflowKey = "other"
