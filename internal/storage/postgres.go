/**
 * PostgreSQL Client for the Poster Worker
 *
 * Keeps a ledger of pipeline runs: one row per cache key, updated on every
 * non-cached run so repeated fallbacks are visible.
 */

package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// LedgerEntry is a row of the poster_jobs table
type LedgerEntry struct {
	ID               string
	CacheKey         string
	SourceURL        string
	Outcome          string
	Regions          int
	Detections       int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Attempts         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const ledgerSchema = `
	CREATE TABLE IF NOT EXISTS poster_jobs (
		id                 UUID PRIMARY KEY,
		cache_key          TEXT NOT NULL UNIQUE,
		source_url         TEXT NOT NULL,
		outcome            TEXT NOT NULL,
		regions            INTEGER NOT NULL DEFAULT 0,
		detections         INTEGER NOT NULL DEFAULT 0,
		processing_time_ms BIGINT NOT NULL DEFAULT 0,
		error_code         TEXT,
		error_message      TEXT,
		attempts           INTEGER NOT NULL DEFAULT 1,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the ledger table if it does not exist yet
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("failed to create poster_jobs table: %w", err)
	}
	return nil
}

// RecordRun upserts the ledger row for record.Key
func (p *PostgresClient) RecordRun(ctx context.Context, record *PosterRecord) error {
	if record == nil || record.Key == "" {
		return fmt.Errorf("cache key is required")
	}

	if record.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}

	query := `
		INSERT INTO poster_jobs (
			id, cache_key, source_url, outcome, regions, detections,
			processing_time_ms, error_code, error_message, attempts,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), 1, NOW(), NOW()
		)
		ON CONFLICT (cache_key) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			outcome = EXCLUDED.outcome,
			regions = EXCLUDED.regions,
			detections = EXCLUDED.detections,
			processing_time_ms = EXCLUDED.processing_time_ms,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			attempts = poster_jobs.attempts + 1,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		uuid.New().String(),
		record.Key,
		record.URL,
		record.Outcome,
		record.Regions,
		record.Detections,
		record.Duration.Milliseconds(),
		record.ErrorCode,
		truncate(record.ErrorMessage, 2000),
	)
	if err != nil {
		return fmt.Errorf("failed to record poster run: %w", err)
	}

	return nil
}

// GetEntry returns the ledger row for key, or nil when there is none
func (p *PostgresClient) GetEntry(ctx context.Context, key string) (*LedgerEntry, error) {
	query := `
		SELECT id, cache_key, source_url, outcome, regions, detections,
			processing_time_ms, error_code, error_message, attempts,
			created_at, updated_at
		FROM poster_jobs
		WHERE cache_key = $1
	`

	var entry LedgerEntry
	var errorCode, errorMessage sql.NullString

	err := p.db.QueryRowContext(ctx, query, key).Scan(
		&entry.ID,
		&entry.CacheKey,
		&entry.SourceURL,
		&entry.Outcome,
		&entry.Regions,
		&entry.Detections,
		&entry.ProcessingTimeMs,
		&errorCode,
		&errorMessage,
		&entry.Attempts,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	entry.ErrorCode = errorCode.String
	entry.ErrorMessage = errorMessage.String
	return &entry, nil
}

// CountByOutcome returns how many posters ended in each outcome
func (p *PostgresClient) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM poster_jobs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
