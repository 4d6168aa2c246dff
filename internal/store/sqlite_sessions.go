package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
	"github.com/google/uuid"
)

const sessionColumns = `session_id, user_id, session_name, lab_environment,
	lab_target, lab_objective, status, session_metadata, is_archived,
	created_at, last_active, updated_at`

// CreateSession creates a session with default status "active" and seeds its
// initial reconnaissance lab context snapshot in the same transaction.
func (s *SQLiteStore) CreateSession(ctx context.Context, p CreateSessionParams) (string, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", fmt.Errorf("%w: user_id is required", ErrValidation)
	}

	sessionID := uuid.NewString()
	now := time.Now()

	metadata, err := marshalField(p.Metadata)
	if err != nil {
		return "", err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (
				session_id, user_id, session_name, lab_environment, lab_target,
				lab_objective, status, session_metadata, is_archived,
				created_at, last_active, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			sessionID, p.UserID, nullText(p.Name), nullText(p.Environment),
			nullText(p.Target), nullText(p.Objective), domain.StatusActive,
			metadata, now.Unix(), now.Unix(), now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO lab_context (session_id, phase, created_at, updated_at)
			VALUES (?, ?, ?, ?)`,
			sessionID, domain.PhaseReconnaissance, now.Unix(), now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert initial lab context: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return sessionID, nil
}

// GetSession retrieves a session by id. Returns (nil, nil) if absent.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// ListSessions lists sessions ordered by last_active descending. Archived
// sessions are excluded unless opts.IncludeArchived is set.
func (s *SQLiteStore) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []interface{}

	if opts.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, opts.UserID)
	}
	if opts.Status != "" {
		if !domain.ValidStatus(opts.Status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, opts.Status)
		}
		query += ` AND status = ?`
		args = append(args, opts.Status)
	}
	if !opts.IncludeArchived {
		query += ` AND is_archived = 0`
	}

	query += ` ORDER BY last_active DESC`
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "list sessions")

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionStatus sets the session status.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	if !domain.ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		status, time.Now().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return nil
}

// ArchiveSession sets the archived flag and status. Archiving an already
// archived session is a no-op.
func (s *SQLiteStore) ArchiveSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_archived = 1, status = ?, updated_at = ? WHERE session_id = ?`,
		domain.StatusArchived, time.Now().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return nil
}

// DeleteSession removes a session; cascading foreign keys take the rest.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("DeleteSession affected 0 rows", "session_id", sessionID)
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var name, env, target, objective, metadata sql.NullString
	var archived int
	var createdAt, lastActive, updatedAt int64

	err := row.Scan(
		&session.SessionID, &session.UserID, &name, &env,
		&target, &objective, &session.Status, &metadata, &archived,
		&createdAt, &lastActive, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Name = name.String
	session.LabEnvironment = env.String
	session.LabTarget = target.String
	session.LabObjective = objective.String
	session.Metadata = rawOrNil(metadata)
	session.Archived = archived != 0
	session.CreatedAt = time.Unix(createdAt, 0)
	session.LastActive = time.Unix(lastActive, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}
