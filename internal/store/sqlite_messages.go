package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

const messageColumns = `message_id, session_id, role, content, tool_calls,
	tool_results, message_metadata, timestamp`

// AppendMessage inserts a message and bumps the parent session's last_active
// in a single transaction. The bump uses MAX so last_active never moves
// backwards.
func (s *SQLiteStore) AppendMessage(ctx context.Context, p AppendMessageParams) (int64, error) {
	if strings.TrimSpace(p.SessionID) == "" {
		return 0, fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if !domain.ValidRole(p.Role) {
		return 0, fmt.Errorf("%w: unknown role %q", ErrValidation, p.Role)
	}

	toolCalls, err := marshalField(p.ToolCalls)
	if err != nil {
		return 0, err
	}
	toolResults, err := marshalField(p.ToolResults)
	if err != nil {
		return 0, err
	}
	metadata, err := marshalField(p.Metadata)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	var messageID int64

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		// Bumping first doubles as the existence check.
		result, err := tx.ExecContext(ctx,
			`UPDATE sessions SET last_active = MAX(last_active, ?), updated_at = ? WHERE session_id = ?`,
			now.Unix(), now.Unix(), p.SessionID,
		)
		if err != nil {
			return fmt.Errorf("bump last_active: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: session %s", ErrNotFound, p.SessionID)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (
				session_id, role, content, tool_calls, tool_results,
				message_metadata, timestamp
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.SessionID, p.Role, p.Content, toolCalls, toolResults,
			metadata, now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		messageID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get message id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return messageID, nil
}

// GetMessages returns a session's messages ordered by timestamp, then insert
// order for messages sharing a second.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, f MessageFilter) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = ?`
	args := []interface{}{sessionID}

	if f.Role != "" {
		if !domain.ValidRole(f.Role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, f.Role)
		}
		query += ` AND role = ?`
		args = append(args, f.Role)
	}

	query += ` ORDER BY timestamp ASC, message_id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "get messages")

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ConversationHistory returns the last maxMessages messages as role/content
// pairs, oldest first, ready to feed back to the model.
func (s *SQLiteStore) ConversationHistory(ctx context.Context, sessionID string, maxMessages int) ([]domain.HistoryEntry, error) {
	if maxMessages <= 0 {
		maxMessages = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT message_id, role, content FROM messages
			WHERE session_id = ?
			ORDER BY timestamp DESC, message_id DESC
			LIMIT ?
		) ORDER BY message_id ASC`,
		sessionID, maxMessages,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversation history: %w", err)
	}
	defer closeRows(rows, "conversation history")

	var history []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		if err := rows.Scan(&entry.Role, &entry.Content); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var toolCalls, toolResults, metadata sql.NullString
	var ts int64

	err := row.Scan(
		&msg.MessageID, &msg.SessionID, &msg.Role, &msg.Content,
		&toolCalls, &toolResults, &metadata, &ts,
	)
	if err != nil {
		return nil, err
	}

	msg.ToolCalls = rawOrNil(toolCalls)
	msg.ToolResults = rawOrNil(toolResults)
	msg.Metadata = rawOrNil(metadata)
	msg.Timestamp = time.Unix(ts, 0)
	return &msg, nil
}
