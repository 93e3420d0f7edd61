package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"tokenmeter/internal/model"
)

// MemoryRecords is an in-memory RecordStore. It is the reference
// implementation of the contract and the store used by tests.
type MemoryRecords struct {
	mu      sync.RWMutex
	records map[string]model.UsageRecord // by request ID
}

// NewMemoryRecords returns an empty in-memory record store.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{records: make(map[string]model.UsageRecord)}
}

// Put appends one record, rejecting duplicate request IDs.
func (m *MemoryRecords) Put(_ context.Context, rec *model.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.RequestID]; ok {
		return ErrDuplicateRequest
	}
	m.records[rec.RequestID] = *rec
	return nil
}

// QueryRange returns the user's records in [start, end], newest first.
func (m *MemoryRecords) QueryRange(_ context.Context, userID string, start, end time.Time) ([]model.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.UsageRecord
	for _, r := range m.records {
		if r.UserID != userID {
			continue
		}
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Close is a no-op.
func (m *MemoryRecords) Close() error { return nil }

// MemoryBuckets is an in-memory AggregateStore. Increments hold a lock for
// the whole fold, which gives the same commutative-accumulation guarantee
// the Redis implementation gets from HINCRBY.
type MemoryBuckets struct {
	mu      sync.Mutex
	buckets map[BucketKey]*model.AggregateBucket
}

// NewMemoryBuckets returns an empty in-memory aggregate store.
func NewMemoryBuckets() *MemoryBuckets {
	return &MemoryBuckets{buckets: make(map[BucketKey]*model.AggregateBucket)}
}

// AtomicIncrement folds one record's deltas into the bucket.
func (m *MemoryBuckets) AtomicIncrement(_ context.Context, key BucketKey, d Deltas) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &model.AggregateBucket{
			UserID:         key.UserID,
			Date:           key.Date,
			ModelUnits:     make(map[string]int64),
			ModelCost:      make(map[string]float64),
			OperationUnits: make(map[string]int64),
			OperationCost:  make(map[string]float64),
		}
		m.buckets[key] = b
	}

	b.TotalUnits += d.Units
	b.TotalCost += d.Cost
	b.RequestCount++

	modelKey := boundedKey(b.ModelUnits, d.Model)
	b.ModelUnits[modelKey] += d.Units
	b.ModelCost[modelKey] += d.Cost

	opKey := boundedKey(b.OperationUnits, d.Operation)
	b.OperationUnits[opKey] += d.Units
	b.OperationCost[opKey] += d.Cost

	b.LastUpdated = d.Timestamp
	return nil
}

// Get returns a copy of the bucket, or nil when absent.
func (m *MemoryBuckets) Get(_ context.Context, key BucketKey) (*model.AggregateBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		return nil, nil
	}

	out := *b
	out.ModelUnits = copyInts(b.ModelUnits)
	out.ModelCost = copyFloats(b.ModelCost)
	out.OperationUnits = copyInts(b.OperationUnits)
	out.OperationCost = copyFloats(b.OperationCost)
	return &out, nil
}

func boundedKey(m map[string]int64, name string) string {
	if _, ok := m[name]; ok {
		return name
	}
	if len(m) >= MaxBucketEntries {
		return OverflowKey
	}
	return name
}

func copyInts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyFloats(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
