// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

// CreateSessionParams holds the inputs for CreateSession. Only UserID is
// required.
type CreateSessionParams struct {
	UserID      string
	Name        string
	Environment string
	Target      string
	Objective   string
	Metadata    json.RawMessage
}

// AppendMessageParams holds the inputs for AppendMessage.
type AppendMessageParams struct {
	SessionID   string
	Role        string
	Content     string
	ToolCalls   json.RawMessage
	ToolResults json.RawMessage
	Metadata    json.RawMessage
}

// LabContextUpdate describes a partial lab context update. Nil fields are
// carried forward from the previous snapshot; non-nil fields replace them.
type LabContextUpdate struct {
	Phase           *string
	Findings        []domain.Finding
	OpenPorts       []int
	Services        []domain.Service
	Vulnerabilities []domain.Vulnerability
	Credentials     []domain.Credential
	Flags           map[string]string
	Notes           *string
}

// RecordToolExecutionParams holds the inputs for RecordToolExecution.
type RecordToolExecutionParams struct {
	SessionID  string
	MessageID  int64
	ToolName   string
	Parameters json.RawMessage
	Result     json.RawMessage
	Duration   time.Duration
	Status     string
}

// ListSessionsOptions filters ListSessions. Zero values mean "no filter";
// archived sessions are excluded unless IncludeArchived is set.
type ListSessionsOptions struct {
	UserID          string
	Status          string
	IncludeArchived bool
	Limit           int
}

// MessageFilter filters GetMessages.
type MessageFilter struct {
	Role  string
	Limit int
}

// SearchOptions filters SearchMessages.
type SearchOptions struct {
	Term   string
	UserID string
	Limit  int
}

// SearchResult is a message hit joined with its session's lab metadata.
type SearchResult struct {
	Message        *domain.Message `json:"message"`
	SessionName    string          `json:"session_name,omitempty"`
	LabEnvironment string          `json:"lab_environment,omitempty"`
	LabTarget      string          `json:"lab_target,omitempty"`
}

// Repository defines the interface for persisting pentest session state.
type Repository interface {
	// CreateSession creates a session with default status "active" and an
	// initial reconnaissance lab context snapshot. Returns ErrValidation if
	// the user id is empty.
	CreateSession(ctx context.Context, p CreateSessionParams) (string, error)

	// GetSession retrieves a session by id. Returns (nil, nil) if absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// ListSessions lists sessions ordered by last_active descending.
	ListSessions(ctx context.Context, opts ListSessionsOptions) ([]*domain.Session, error)

	// UpdateSessionStatus sets the session status. Returns ErrNotFound if the
	// session does not exist.
	UpdateSessionStatus(ctx context.Context, sessionID, status string) error

	// ArchiveSession sets the archived flag and status. Idempotent.
	ArchiveSession(ctx context.Context, sessionID string) error

	// DeleteSession removes a session and, via cascading foreign keys, all of
	// its messages, lab context snapshots, tool executions, progress rows and
	// resources.
	DeleteSession(ctx context.Context, sessionID string) error

	// AppendMessage inserts a message and bumps the parent session's
	// last_active timestamp in the same transaction. Returns ErrNotFound if
	// the session does not exist.
	AppendMessage(ctx context.Context, p AppendMessageParams) (int64, error)

	// GetMessages returns a session's messages ordered by timestamp ascending.
	GetMessages(ctx context.Context, sessionID string, f MessageFilter) ([]*domain.Message, error)

	// ConversationHistory returns the most recent messages as role/content
	// pairs, oldest first, for feeding back to the model.
	ConversationHistory(ctx context.Context, sessionID string, maxMessages int) ([]domain.HistoryEntry, error)

	// UpdateLabContext merges the update onto the latest snapshot and inserts
	// the result as a new snapshot row. Returns ErrNotFound if the session
	// does not exist.
	UpdateLabContext(ctx context.Context, sessionID string, u LabContextUpdate) (int64, error)

	// GetLabContext returns the latest lab context snapshot, or (nil, nil) if
	// the session has none.
	GetLabContext(ctx context.Context, sessionID string) (*domain.LabContext, error)

	// ListLabContexts returns all snapshots for a session, oldest first.
	ListLabContexts(ctx context.Context, sessionID string) ([]*domain.LabContext, error)

	// RecordToolExecution records a tool invocation tied to a message. Returns
	// ErrNotFound if the message does not exist or belongs to a different
	// session; no partial row is left behind.
	RecordToolExecution(ctx context.Context, p RecordToolExecutionParams) (int64, error)

	// ListToolExecutions returns a session's tool executions, oldest first.
	ListToolExecutions(ctx context.Context, sessionID string) ([]*domain.ToolExecution, error)

	// RecordProgress appends a user progress row.
	RecordProgress(ctx context.Context, p *domain.UserProgress) (int64, error)

	// AddResource attaches reference material to a session.
	AddResource(ctx context.Context, r *domain.Resource) (int64, error)

	// ListResources returns a session's resources, optionally filtered by type.
	ListResources(ctx context.Context, sessionID, resourceType string) ([]*domain.Resource, error)

	// SearchMessages finds messages whose content contains the search term.
	SearchMessages(ctx context.Context, opts SearchOptions) ([]*SearchResult, error)

	// SessionStatistics aggregates message and tool counts for one session.
	// Returns ErrNotFound if the session does not exist.
	SessionStatistics(ctx context.Context, sessionID string) (*domain.SessionStatistics, error)

	// RecentSessions reads the recent_sessions view, newest activity first.
	RecentSessions(ctx context.Context, userID string, limit int) ([]*domain.SessionSummary, error)

	// UserStats reads the user_stats view for one user. Returns (nil, nil) if
	// the user has no sessions.
	UserStats(ctx context.Context, userID string) (*domain.UserStats, error)

	// ExportReport bundles a session with its messages, latest lab context and
	// statistics.
	ExportReport(ctx context.Context, sessionID string) (*domain.SessionReport, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
