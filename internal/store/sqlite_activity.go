package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

// RecordToolExecution records a tool invocation tied to a message. The
// message must exist and belong to the given session; otherwise ErrNotFound
// is returned and nothing is written.
func (s *SQLiteStore) RecordToolExecution(ctx context.Context, p RecordToolExecutionParams) (int64, error) {
	if strings.TrimSpace(p.ToolName) == "" {
		return 0, fmt.Errorf("%w: tool_name is required", ErrValidation)
	}
	if !domain.ValidExecStatus(p.Status) {
		return 0, fmt.Errorf("%w: unknown execution status %q", ErrValidation, p.Status)
	}

	params, err := marshalField(p.Parameters)
	if err != nil {
		return 0, err
	}
	result, err := marshalField(p.Result)
	if err != nil {
		return 0, err
	}

	var executionID int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT session_id FROM messages WHERE message_id = ?`, p.MessageID).Scan(&owner)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: message %d", ErrNotFound, p.MessageID)
		}
		if err != nil {
			return fmt.Errorf("check message: %w", err)
		}
		if owner != p.SessionID {
			return fmt.Errorf("%w: message %d does not belong to session %s",
				ErrNotFound, p.MessageID, p.SessionID)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO tool_executions (
				session_id, message_id, tool_name, parameters, result,
				execution_time_ms, status, timestamp
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.SessionID, p.MessageID, p.ToolName, params, result,
			p.Duration.Milliseconds(), p.Status, time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert tool execution: %w", err)
		}

		executionID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get execution id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return executionID, nil
}

// ListToolExecutions returns a session's tool executions, oldest first.
func (s *SQLiteStore) ListToolExecutions(ctx context.Context, sessionID string) ([]*domain.ToolExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, session_id, message_id, tool_name, parameters,
		       result, execution_time_ms, status, timestamp
		FROM tool_executions
		WHERE session_id = ?
		ORDER BY execution_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query tool executions: %w", err)
	}
	defer closeRows(rows, "list tool executions")

	var execs []*domain.ToolExecution
	for rows.Next() {
		var te domain.ToolExecution
		var params, result sql.NullString
		var durationMs, ts int64

		err := rows.Scan(
			&te.ExecutionID, &te.SessionID, &te.MessageID, &te.ToolName,
			&params, &result, &durationMs, &te.Status, &ts,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tool execution row: %w", err)
		}

		te.Parameters = rawOrNil(params)
		te.Result = rawOrNil(result)
		te.Duration = time.Duration(durationMs) * time.Millisecond
		te.Timestamp = time.Unix(ts, 0)
		execs = append(execs, &te)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool executions: %w", err)
	}
	return execs, nil
}

// RecordProgress appends a user progress row.
func (s *SQLiteStore) RecordProgress(ctx context.Context, p *domain.UserProgress) (int64, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return 0, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if strings.TrimSpace(p.SkillArea) == "" {
		return 0, fmt.Errorf("%w: skill_area is required", ErrValidation)
	}

	details, err := marshalField(p.ActivityDetails)
	if err != nil {
		return 0, err
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_progress (
			user_id, session_id, skill_area, activity_type, activity_details, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.SessionID, p.SkillArea, p.ActivityType, details, ts.Unix(),
	)
	if err != nil {
		if isMissingParent(err) {
			return 0, fmt.Errorf("%w: session %s", ErrNotFound, p.SessionID)
		}
		return 0, fmt.Errorf("insert user progress: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get progress id: %w", err)
	}
	return id, nil
}

// AddResource attaches reference material to a session.
func (s *SQLiteStore) AddResource(ctx context.Context, r *domain.Resource) (int64, error) {
	if !domain.ValidResourceType(r.Type) {
		return 0, fmt.Errorf("%w: unknown resource type %q", ErrValidation, r.Type)
	}
	if strings.TrimSpace(r.Title) == "" {
		return 0, fmt.Errorf("%w: title is required", ErrValidation)
	}

	tags, err := marshalSlice(r.Tags)
	if err != nil {
		return 0, err
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (
			session_id, resource_type, title, content, url, tags, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Type, r.Title, nullText(r.Content), nullText(r.URL),
		tags, createdAt.Unix(),
	)
	if err != nil {
		if isMissingParent(err) {
			return 0, fmt.Errorf("%w: session %s", ErrNotFound, r.SessionID)
		}
		return 0, fmt.Errorf("insert resource: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get resource id: %w", err)
	}
	return id, nil
}

// ListResources returns a session's resources, newest first, optionally
// filtered by type.
func (s *SQLiteStore) ListResources(ctx context.Context, sessionID, resourceType string) ([]*domain.Resource, error) {
	query := `
		SELECT resource_id, session_id, resource_type, title, content, url, tags, created_at
		FROM resources WHERE session_id = ?`
	args := []interface{}{sessionID}

	if resourceType != "" {
		if !domain.ValidResourceType(resourceType) {
			return nil, fmt.Errorf("%w: unknown resource type %q", ErrValidation, resourceType)
		}
		query += ` AND resource_type = ?`
		args = append(args, resourceType)
	}
	query += ` ORDER BY resource_id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer closeRows(rows, "list resources")

	var resources []*domain.Resource
	for rows.Next() {
		var r domain.Resource
		var content, url, tags sql.NullString
		var createdAt int64

		err := rows.Scan(
			&r.ResourceID, &r.SessionID, &r.Type, &r.Title,
			&content, &url, &tags, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}

		r.Content = content.String
		r.URL = url.String
		if err := unmarshalField(tags, &r.Tags); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		resources = append(resources, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}
