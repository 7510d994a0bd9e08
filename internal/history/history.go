// Package history provides the SQLite-backed run archive. The bounded
// JSON run index keeps recent runs cheap to load at startup; this archive
// keeps everything, queryable long after the index has rotated entries out.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opspilot/overseer/pkg/models"
)

// DB wraps an SQLite database connection holding the run archive.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens the run archive at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// migrate applies all pending schema migrations.
func (db *DB) migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Runs},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Runs = `
CREATE TABLE IF NOT EXISTS runs (
	agent_id TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	project TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	modified_files TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
`

// RecordRun archives a finished run. Recording the same agent ID twice
// overwrites the earlier row.
func (db *DB) RecordRun(rec models.RunRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO runs
			(agent_id, description, project, status, started_at, finished_at, duration_seconds, summary, modified_files)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AgentID, rec.Description, rec.Project, string(rec.Status),
		rec.StartedAt, rec.FinishedAt, rec.DurationSeconds,
		rec.Summary, strings.Join(rec.ModifiedFiles, "\n"),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.AgentID, err)
	}
	return nil
}

// SearchRuns returns archived runs whose description, project, or summary
// contains query (case-insensitive), newest first, at most limit rows.
// An empty query matches everything.
func (db *DB) SearchRuns(query string, limit int) ([]models.RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(query) + "%"

	rows, err := db.conn.Query(`
		SELECT agent_id, description, project, status, started_at, finished_at, duration_seconds, summary, modified_files
		FROM runs
		WHERE lower(description) LIKE ? OR lower(project) LIKE ? OR lower(summary) LIKE ?
		ORDER BY finished_at DESC
		LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		var rec models.RunRecord
		var status, files string
		if err := rows.Scan(
			&rec.AgentID, &rec.Description, &rec.Project, &status,
			&rec.StartedAt, &rec.FinishedAt, &rec.DurationSeconds,
			&rec.Summary, &files,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		rec.Status = models.AgentStatus(status)
		if files != "" {
			rec.ModifiedFiles = strings.Split(files, "\n")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes archived runs that finished before the cutoff and
// returns how many rows were removed.
func (db *DB) PruneOlderThan(cutoff time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec("DELETE FROM runs WHERE finished_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of archived runs.
func (db *DB) Count() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}
