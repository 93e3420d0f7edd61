package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tokenmeter/internal/model"
)

// SQLiteRecords is a RecordStore backed by SQLite. The request_id primary
// key enforces the idempotency contract at the store level.
type SQLiteRecords struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) a SQLite record store at the given path.
func OpenSQLite(path string) (*SQLiteRecords, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent readers during writes
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Avoid "database is locked" errors under concurrent load
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	s := &SQLiteRecords{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteRecords) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		request_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		model TEXT NOT NULL,
		input_units INTEGER NOT NULL,
		output_units INTEGER NOT NULL,
		total_units INTEGER NOT NULL,
		cost REAL NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		prompt_hash TEXT,
		response_hash TEXT,
		cache_hit INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_usage_user_timestamp ON usage_records(user_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Put appends one usage record.
func (s *SQLiteRecords) Put(ctx context.Context, rec *model.UsageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
		 (request_id, user_id, operation, model, input_units, output_units,
		  total_units, cost, timestamp, prompt_hash, response_hash, cache_hit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.UserID, rec.Operation, rec.Model,
		rec.InputUnits, rec.OutputUnits, rec.TotalUnits, rec.Cost,
		rec.Timestamp.UTC(), rec.PromptHash, rec.ResponseHash, boolToInt(rec.CacheHit),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateRequest
	}
	return err
}

// QueryRange returns the user's records in [start, end], newest first.
func (s *SQLiteRecords) QueryRange(ctx context.Context, userID string, start, end time.Time) ([]model.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, user_id, operation, model, input_units, output_units,
		        total_units, cost, timestamp, prompt_hash, response_hash, cache_hit
		 FROM usage_records
		 WHERE user_id = ? AND timestamp >= ? AND timestamp <= ?
		 ORDER BY timestamp DESC`,
		userID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.UsageRecord
	for rows.Next() {
		var r model.UsageRecord
		var cacheHit int
		if err := rows.Scan(
			&r.RequestID, &r.UserID, &r.Operation, &r.Model,
			&r.InputUnits, &r.OutputUnits, &r.TotalUnits, &r.Cost,
			&r.Timestamp, &r.PromptHash, &r.ResponseHash, &cacheHit,
		); err != nil {
			return nil, err
		}
		r.CacheHit = cacheHit != 0
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteRecords) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
