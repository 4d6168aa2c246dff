package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

// SearchMessages finds messages whose content contains the search term,
// joined with the owning session's lab metadata, newest first.
func (s *SQLiteStore) SearchMessages(ctx context.Context, opts SearchOptions) ([]*SearchResult, error) {
	if strings.TrimSpace(opts.Term) == "" {
		return nil, fmt.Errorf("%w: search term is required", ErrValidation)
	}

	query := `
		SELECT ` + prefixColumns("m", messageColumns) + `,
		       s.session_name, s.lab_environment, s.lab_target
		FROM messages m
		JOIN sessions s ON s.session_id = m.session_id
		WHERE m.content LIKE ?`
	args := []interface{}{"%" + opts.Term + "%"}

	if opts.UserID != "" {
		query += ` AND s.user_id = ?`
		args = append(args, opts.UserID)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY m.timestamp DESC, m.message_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer closeRows(rows, "search messages")

	var results []*SearchResult
	for rows.Next() {
		var msg domain.Message
		var toolCalls, toolResults, metadata sql.NullString
		var ts int64
		var name, env, target sql.NullString

		err := rows.Scan(
			&msg.MessageID, &msg.SessionID, &msg.Role, &msg.Content,
			&toolCalls, &toolResults, &metadata, &ts,
			&name, &env, &target,
		)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}

		msg.ToolCalls = rawOrNil(toolCalls)
		msg.ToolResults = rawOrNil(toolResults)
		msg.Metadata = rawOrNil(metadata)
		msg.Timestamp = time.Unix(ts, 0)

		results = append(results, &SearchResult{
			Message:        &msg,
			SessionName:    name.String,
			LabEnvironment: env.String,
			LabTarget:      target.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}

// SessionStatistics aggregates per-role message counts, tool usage and
// session duration.
func (s *SQLiteStore) SessionStatistics(ctx context.Context, sessionID string) (*domain.SessionStatistics, error) {
	var createdAt, lastActive int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, last_active FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&createdAt, &lastActive)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session timestamps: %w", err)
	}

	stats := &domain.SessionStatistics{
		SessionID:     sessionID,
		MessageCounts: make(map[string]int),
		CreatedAt:     time.Unix(createdAt, 0),
		LastActive:    time.Unix(lastActive, 0),
	}
	stats.Duration = stats.LastActive.Sub(stats.CreatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, COUNT(*) FROM messages
		WHERE session_id = ? GROUP BY role`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query message counts: %w", err)
	}
	defer closeRows(rows, "message counts")

	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("scan message count row: %w", err)
		}
		stats.MessageCounts[role] = count
		stats.TotalMessages += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE session_id = ? AND tool_calls IS NOT NULL`,
		sessionID).Scan(&stats.ToolUsageCount)
	if err != nil {
		return nil, fmt.Errorf("scan tool usage count: %w", err)
	}

	return stats, nil
}

// RecentSessions reads the recent_sessions view, newest activity first.
// Archived sessions never appear here.
func (s *SQLiteStore) RecentSessions(ctx context.Context, userID string, limit int) ([]*domain.SessionSummary, error) {
	query := `
		SELECT session_id, user_id, session_name, lab_environment, lab_target,
		       status, message_count, created_at, last_active
		FROM recent_sessions`
	var args []interface{}

	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY last_active DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer closeRows(rows, "recent sessions")

	var summaries []*domain.SessionSummary
	for rows.Next() {
		var sum domain.SessionSummary
		var name, env, target sql.NullString
		var createdAt, lastActive int64

		err := rows.Scan(
			&sum.SessionID, &sum.UserID, &name, &env, &target,
			&sum.Status, &sum.MessageCount, &createdAt, &lastActive,
		)
		if err != nil {
			return nil, fmt.Errorf("scan recent session row: %w", err)
		}

		sum.Name = name.String
		sum.LabEnvironment = env.String
		sum.LabTarget = target.String
		sum.CreatedAt = time.Unix(createdAt, 0)
		sum.LastActive = time.Unix(lastActive, 0)
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent sessions: %w", err)
	}
	return summaries, nil
}

// UserStats reads the user_stats view for one user. Returns (nil, nil) if the
// user has no sessions at all.
func (s *SQLiteStore) UserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	var stats domain.UserStats
	var lastActivity int64

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, total_sessions, completed_sessions, total_messages, last_activity
		FROM user_stats WHERE user_id = ?`, userID).Scan(
		&stats.UserID, &stats.TotalSessions, &stats.CompletedSessions,
		&stats.TotalMessages, &lastActivity,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user stats row: %w", err)
	}

	stats.LastActivity = time.Unix(lastActivity, 0)
	return &stats, nil
}

// ExportReport bundles a session with its messages, latest lab context and
// statistics for export.
func (s *SQLiteStore) ExportReport(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	messages, err := s.GetMessages(ctx, sessionID, MessageFilter{})
	if err != nil {
		return nil, err
	}
	labContext, err := s.GetLabContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	stats, err := s.SessionStatistics(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &domain.SessionReport{
		Session:    session,
		Messages:   messages,
		LabContext: labContext,
		Statistics: stats,
		ExportedAt: time.Now(),
	}, nil
}

// prefixColumns qualifies each column in a comma-separated list with a table
// alias for use in joins.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
