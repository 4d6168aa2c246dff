package domain

import (
	"time"
)

// SessionSummary is a row of the recent_sessions view: live session metadata
// joined with its message count.
type SessionSummary struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"session_name,omitempty"`
	LabEnvironment string    `json:"lab_environment,omitempty"`
	LabTarget      string    `json:"lab_target,omitempty"`
	Status         string    `json:"status"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastActive     time.Time `json:"last_active"`
}

// UserStats is a row of the user_stats view: per-user aggregates across all
// non-archived sessions.
type UserStats struct {
	UserID            string    `json:"user_id"`
	TotalSessions     int       `json:"total_sessions"`
	CompletedSessions int       `json:"completed_sessions"`
	TotalMessages     int       `json:"total_messages"`
	LastActivity      time.Time `json:"last_activity"`
}

// SessionStatistics aggregates message and tool activity for one session.
type SessionStatistics struct {
	SessionID      string         `json:"session_id"`
	MessageCounts  map[string]int `json:"message_counts"`
	TotalMessages  int            `json:"total_messages"`
	ToolUsageCount int            `json:"tool_usage_count"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActive     time.Time      `json:"last_active"`
	Duration       time.Duration  `json:"duration"`
}

// SessionReport bundles everything known about a session for export.
type SessionReport struct {
	Session    *Session           `json:"session"`
	Messages   []*Message         `json:"messages"`
	LabContext *LabContext        `json:"lab_context,omitempty"`
	Statistics *SessionStatistics `json:"statistics"`
	ExportedAt time.Time          `json:"exported_at"`
}
