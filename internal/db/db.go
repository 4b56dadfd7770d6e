package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed migration.sql
var migrationSQL string

// DB wraps the SQLite catalog database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	// Open database connection (pure-Go driver, no system SQLite needed)
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{
		conn: conn,
		path: dbPath,
	}

	// Run migrations
	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	_, err := db.conn.Exec(migrationSQL)
	if err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying database connection for advanced operations
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// GetSetting retrieves a setting value
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting updates or inserts a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = strftime('%s', 'now')
	`, key, value, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// LogPlanStart records the beginning of a planning request
func (db *DB) LogPlanStart(sessionID, input string) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO plan_logs (session_id, input, status)
		VALUES (?, ?, 'started')
	`, sessionID, input)
	if err != nil {
		return 0, fmt.Errorf("failed to log plan start: %w", err)
	}
	return result.LastInsertId()
}

// LogPlanComplete records the verdict of a planning request
func (db *DB) LogPlanComplete(logID int64, resultType, reason string, durationMs int64) error {
	_, err := db.conn.Exec(`
		UPDATE plan_logs SET status = 'completed', result_type = ?, reason = ?, duration_ms = ?
		WHERE id = ?
	`, resultType, reason, durationMs, logID)
	if err != nil {
		return fmt.Errorf("failed to log plan completion: %w", err)
	}
	return nil
}

// Begin starts a transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}
