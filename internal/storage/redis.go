package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tokenmeter/internal/model"
)

const (
	fieldTotalUnits   = "total_units"
	fieldTotalCost    = "total_cost"
	fieldRequestCount = "request_count"
	fieldLastUpdated  = "last_updated"

	modelPrefix = "m:"
	opPrefix    = "o:"
	unitsSuffix = ":u"
	costSuffix  = ":c"
)

// RedisBuckets is an AggregateStore backed by one Redis hash per bucket.
// Every counter is folded with HINCRBY/HINCRBYFLOAT, which are atomic and
// commutative, so concurrent folds for the same bucket never lose updates
// and arrival order never changes the final value.
type RedisBuckets struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBuckets wraps a Redis client as an aggregate store. A zero ttl
// keeps buckets forever.
func NewRedisBuckets(client *redis.Client, ttl time.Duration) *RedisBuckets {
	return &RedisBuckets{client: client, ttl: ttl}
}

func bucketKey(key BucketKey) string {
	return fmt.Sprintf("bucket:%s:%s", key.UserID, key.Date)
}

// AtomicIncrement folds one record's deltas into the bucket.
func (b *RedisBuckets) AtomicIncrement(ctx context.Context, key BucketKey, d Deltas) error {
	hkey := bucketKey(key)

	modelField, err := b.boundedField(ctx, hkey, modelPrefix, d.Model)
	if err != nil {
		return err
	}
	opField, err := b.boundedField(ctx, hkey, opPrefix, d.Operation)
	if err != nil {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.HIncrBy(ctx, hkey, fieldTotalUnits, d.Units)
	pipe.HIncrByFloat(ctx, hkey, fieldTotalCost, d.Cost)
	pipe.HIncrBy(ctx, hkey, fieldRequestCount, 1)
	pipe.HIncrBy(ctx, hkey, modelField+unitsSuffix, d.Units)
	pipe.HIncrByFloat(ctx, hkey, modelField+costSuffix, d.Cost)
	pipe.HIncrBy(ctx, hkey, opField+unitsSuffix, d.Units)
	pipe.HIncrByFloat(ctx, hkey, opField+costSuffix, d.Cost)
	pipe.HSet(ctx, hkey, fieldLastUpdated, d.Timestamp.UTC().Format(time.RFC3339Nano))
	if b.ttl > 0 {
		pipe.Expire(ctx, hkey, b.ttl)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// boundedField picks the hash field prefix+name, or the overflow field once
// the mapping holds MaxBucketEntries distinct keys. The bound check is only
// advisory (a racing writer may briefly exceed it by one); the increments
// themselves stay atomic either way.
func (b *RedisBuckets) boundedField(ctx context.Context, hkey, prefix, name string) (string, error) {
	field := prefix + name
	exists, err := b.client.HExists(ctx, hkey, field+unitsSuffix).Result()
	if err != nil {
		return "", err
	}
	if exists {
		return field, nil
	}

	fields, err := b.client.HKeys(ctx, hkey).Result()
	if err != nil {
		return "", err
	}
	n := 0
	for _, f := range fields {
		if strings.HasPrefix(f, prefix) && strings.HasSuffix(f, unitsSuffix) {
			n++
		}
	}
	if n >= MaxBucketEntries {
		return prefix + OverflowKey, nil
	}
	return field, nil
}

// Get reads a bucket back, or nil when it has never been written.
func (b *RedisBuckets) Get(ctx context.Context, key BucketKey) (*model.AggregateBucket, error) {
	fields, err := b.client.HGetAll(ctx, bucketKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	bucket := &model.AggregateBucket{
		UserID:         key.UserID,
		Date:           key.Date,
		ModelUnits:     make(map[string]int64),
		ModelCost:      make(map[string]float64),
		OperationUnits: make(map[string]int64),
		OperationCost:  make(map[string]float64),
	}

	for field, raw := range fields {
		switch field {
		case fieldTotalUnits:
			bucket.TotalUnits, _ = strconv.ParseInt(raw, 10, 64)
		case fieldTotalCost:
			bucket.TotalCost, _ = strconv.ParseFloat(raw, 64)
		case fieldRequestCount:
			bucket.RequestCount, _ = strconv.ParseInt(raw, 10, 64)
		case fieldLastUpdated:
			bucket.LastUpdated, _ = time.Parse(time.RFC3339Nano, raw)
		default:
			name, isModel, isUnits, ok := parseMappingField(field)
			if !ok {
				continue
			}
			switch {
			case isModel && isUnits:
				bucket.ModelUnits[name], _ = strconv.ParseInt(raw, 10, 64)
			case isModel:
				bucket.ModelCost[name], _ = strconv.ParseFloat(raw, 64)
			case isUnits:
				bucket.OperationUnits[name], _ = strconv.ParseInt(raw, 10, 64)
			default:
				bucket.OperationCost[name], _ = strconv.ParseFloat(raw, 64)
			}
		}
	}

	return bucket, nil
}

func parseMappingField(field string) (name string, isModel, isUnits, ok bool) {
	switch {
	case strings.HasPrefix(field, modelPrefix):
		isModel = true
		name = strings.TrimPrefix(field, modelPrefix)
	case strings.HasPrefix(field, opPrefix):
		name = strings.TrimPrefix(field, opPrefix)
	default:
		return "", false, false, false
	}

	switch {
	case strings.HasSuffix(name, unitsSuffix):
		isUnits = true
		name = strings.TrimSuffix(name, unitsSuffix)
	case strings.HasSuffix(name, costSuffix):
		name = strings.TrimSuffix(name, costSuffix)
	default:
		return "", false, false, false
	}

	return name, isModel, isUnits, true
}
