package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository. The database file and its
// WAL/shared-memory companions live in the directory of dbPath; copying them
// while the writer is stopped is a valid backup.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL keeps readers unblocked during writes; foreign_keys must be on for
	// cascading deletes and orphan-insert rejection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_name TEXT,
		lab_environment TEXT,
		lab_target TEXT,
		lab_objective TEXT,
		status TEXT NOT NULL DEFAULT 'active'
			CHECK (status IN ('active', 'paused', 'completed', 'archived')),
		session_metadata TEXT,
		is_archived INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		last_active INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active);

	CREATE TABLE IF NOT EXISTS messages (
		message_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system', 'tool')),
		content TEXT NOT NULL,
		tool_calls TEXT,
		tool_results TEXT,
		message_metadata TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

	CREATE TABLE IF NOT EXISTS lab_context (
		context_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		phase TEXT NOT NULL DEFAULT 'reconnaissance'
			CHECK (phase IN ('reconnaissance', 'enumeration', 'exploitation', 'post-exploitation')),
		findings TEXT,
		open_ports TEXT,
		services TEXT,
		vulnerabilities TEXT,
		credentials TEXT,
		flags TEXT,
		notes TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lab_context_session ON lab_context(session_id);
	CREATE INDEX IF NOT EXISTS idx_lab_context_phase ON lab_context(phase);

	CREATE TABLE IF NOT EXISTS user_progress (
		progress_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		skill_area TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		activity_details TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_progress_user ON user_progress(user_id);
	CREATE INDEX IF NOT EXISTS idx_progress_session ON user_progress(session_id);

	CREATE TABLE IF NOT EXISTS tool_executions (
		execution_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		message_id INTEGER NOT NULL REFERENCES messages(message_id) ON DELETE CASCADE,
		tool_name TEXT NOT NULL,
		parameters TEXT,
		result TEXT,
		execution_time_ms INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('success', 'error', 'timeout')),
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_exec_session ON tool_executions(session_id);
	CREATE INDEX IF NOT EXISTS idx_tool_exec_message ON tool_executions(message_id);

	CREATE TABLE IF NOT EXISTS resources (
		resource_id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		resource_type TEXT NOT NULL
			CHECK (resource_type IN ('cheatsheet', 'exploit', 'documentation', 'screenshot')),
		title TEXT NOT NULL,
		content TEXT,
		url TEXT,
		tags TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resources_session ON resources(session_id);
	CREATE INDEX IF NOT EXISTS idx_resources_type ON resources(resource_type);

	CREATE VIEW IF NOT EXISTS recent_sessions AS
	SELECT s.session_id, s.user_id, s.session_name, s.lab_environment,
	       s.lab_target, s.status, COUNT(m.message_id) AS message_count,
	       s.created_at, s.last_active
	FROM sessions s
	LEFT JOIN messages m ON m.session_id = s.session_id
	WHERE s.is_archived = 0
	GROUP BY s.session_id;

	CREATE VIEW IF NOT EXISTS user_stats AS
	SELECT s.user_id,
	       COUNT(DISTINCT s.session_id) AS total_sessions,
	       COUNT(DISTINCT CASE WHEN s.status = 'completed' THEN s.session_id END) AS completed_sessions,
	       COUNT(m.message_id) AS total_messages,
	       MAX(s.last_active) AS last_activity
	FROM sessions s
	LEFT JOIN messages m ON m.session_id = s.session_id
	GROUP BY s.user_id;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

// marshalField serializes v for a nullable JSON text column. Nil and empty
// values become SQL NULL.
func marshalField(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(x) == 0 {
			return nil, nil
		}
		return string(x), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal field: %w", err)
	}
	return string(data), nil
}

// unmarshalField deserializes a nullable JSON text column into out. A NULL
// column leaves out untouched.
func unmarshalField(col sql.NullString, out interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		return fmt.Errorf("unmarshal field: %w", err)
	}
	return nil
}

func rawOrNil(col sql.NullString) json.RawMessage {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.RawMessage(col.String)
}

func nullText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
