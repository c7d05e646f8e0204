// Package storage persists analysis runs and cost records in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rootcauseai/rootcause-go/internal/cost"
)

// Storage handles database operations.
type Storage struct {
	db *sql.DB
}

// Run records one completed document analysis.
type Run struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Format       string    `json:"format"`
	Complexity   string    `json:"complexity"`
	Variant      string    `json:"variant"`
	Segments     int       `json:"segments"`
	Cached       int       `json:"cached"`
	Deduplicated int       `json:"deduplicated"`
	Failed       int       `json:"failed"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// Database configuration constants
const (
	// busyTimeoutMs is how long SQLite waits when the database is locked
	busyTimeoutMs = 5000
	// maxOpenConns limits concurrent connections (SQLite works best with 1)
	maxOpenConns = 1
	// maxIdleConns is the number of idle connections to keep
	maxIdleConns = 1
	// connMaxLifetime is how long a connection can be reused
	connMaxLifetime = 30 * time.Minute
)

// New creates a new storage instance.
func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// The _busy_timeout pragma prevents "database is locked" errors by waiting
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &Storage{db: db}
	if err := storage.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// currentSchemaVersion is the latest schema version.
// Increment this when adding new migrations.
const currentSchemaVersion = 1

// initSchema creates the database schema if it doesn't exist.
func (s *Storage) initSchema() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	version := s.getSchemaVersion()
	if err := s.migrateSchema(version); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// getSchemaVersion returns the current schema version (0 if not set).
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (s *Storage) setSchemaVersion(version int) error {
	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return nil
}

// migrateSchema runs migrations from currentVersion to latest.
func (s *Storage) migrateSchema(currentVersion int) error {
	if currentVersion >= currentSchemaVersion {
		return nil
	}

	log.Printf("storage: migrating schema from version %d to %d", currentVersion, currentSchemaVersion)

	if currentVersion < 1 {
		if err := s.migrateV1(); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	}

	if err := s.setSchemaVersion(currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}

// migrateV1 creates the base tables.
func (s *Storage) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		format TEXT NOT NULL,
		complexity TEXT NOT NULL,
		variant TEXT NOT NULL,
		segments INTEGER NOT NULL,
		cached INTEGER NOT NULL DEFAULT 0,
		deduplicated INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0.0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);

	CREATE TABLE IF NOT EXISTS cost_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_usd REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_records_timestamp ON cost_records(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun saves a completed analysis run.
func (s *Storage) SaveRun(run *Run) error {
	query := `
		INSERT INTO runs (
			timestamp, format, complexity, variant, segments,
			cached, deduplicated, failed, input_tokens, output_tokens, cost_usd
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.Timestamp.Format(time.RFC3339),
		run.Format,
		run.Complexity,
		run.Variant,
		run.Segments,
		run.Cached,
		run.Deduplicated,
		run.Failed,
		run.InputTokens,
		run.OutputTokens,
		run.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// RecordUsage appends one cost record. Satisfies cost.Sink.
func (s *Storage) RecordUsage(u cost.Usage) error {
	_, err := s.db.Exec(
		`INSERT INTO cost_records (timestamp, model, input_tokens, output_tokens, cost_usd) VALUES (?, ?, ?, ?, ?)`,
		u.Time.Format(time.RFC3339),
		u.Model,
		u.InputTokens,
		u.OutputTokens,
		u.USD,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cost record: %w", err)
	}
	return nil
}

// GetRecentRuns retrieves runs from the last N days, newest first.
func (s *Storage) GetRecentRuns(days int) ([]*Run, error) {
	cutoffDate := time.Now().AddDate(0, 0, -days).Format(time.RFC3339)

	rows, err := s.db.Query(`
		SELECT id, timestamp, format, complexity, variant, segments,
		       cached, deduplicated, failed, input_tokens, output_tokens, cost_usd
		FROM runs
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
	`, cutoffDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("storage: failed to close database rows: %v", err)
		}
	}()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CleanupOldRuns deletes runs and cost records older than N days.
func (s *Storage) CleanupOldRuns(days int) (int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -days).Format(time.RFC3339)

	result, err := s.db.Exec(`DELETE FROM runs WHERE timestamp < ?`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old runs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM cost_records WHERE timestamp < ?`, cutoffDate); err != nil {
		return affected, fmt.Errorf("failed to cleanup old cost records: %w", err)
	}
	return affected, nil
}

// Statistics summarizes the persisted history.
type Statistics struct {
	TotalRuns      int            `json:"total_runs"`
	TotalSegments  int            `json:"total_segments"`
	TotalCostUSD   float64        `json:"total_cost_usd"`
	FormatCounts   map[string]int `json:"format_counts"`
	FailedSegments int            `json:"failed_segments"`
}

// GetStatistics returns aggregate statistics over all stored runs.
func (s *Storage) GetStatistics() (*Statistics, error) {
	stats := &Statistics{FormatCounts: make(map[string]int)}

	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(segments), 0), COALESCE(SUM(failed), 0), COALESCE(SUM(cost_usd), 0)
		FROM runs
	`).Scan(&stats.TotalRuns, &stats.TotalSegments, &stats.FailedSegments, &stats.TotalCostUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to query run totals: %w", err)
	}

	rows, err := s.db.Query(`SELECT format, COUNT(*) FROM runs GROUP BY format`)
	if err != nil {
		return nil, fmt.Errorf("failed to query format distribution: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("storage: failed to close database rows: %v", err)
		}
	}()

	for rows.Next() {
		var format string
		var count int
		if err := rows.Scan(&format, &count); err != nil {
			return nil, err
		}
		stats.FormatCounts[format] = count
	}
	return stats, rows.Err()
}

// scanRun scans a database row into a Run struct.
func scanRun(rows *sql.Rows) (*Run, error) {
	var run Run
	var timestamp string

	err := rows.Scan(
		&run.ID, &timestamp, &run.Format, &run.Complexity, &run.Variant,
		&run.Segments, &run.Cached, &run.Deduplicated, &run.Failed,
		&run.InputTokens, &run.OutputTokens, &run.CostUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	run.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return &run, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure Storage satisfies the cost persistence hook.
var _ cost.Sink = (*Storage)(nil)
