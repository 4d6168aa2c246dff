// Package domain contains core domain types for the hacklab agent.
package domain

import (
	"encoding/json"
	"time"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusArchived  = "archived"
)

// Session represents one continuous pentesting engagement tied to a lab target.
type Session struct {
	SessionID      string          `json:"session_id"`
	UserID         string          `json:"user_id"`
	Name           string          `json:"session_name,omitempty"`
	LabEnvironment string          `json:"lab_environment,omitempty"`
	LabTarget      string          `json:"lab_target,omitempty"`
	LabObjective   string          `json:"lab_objective,omitempty"`
	Status         string          `json:"status"`
	Metadata       json.RawMessage `json:"session_metadata,omitempty"`
	Archived       bool            `json:"is_archived"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActive     time.Time       `json:"last_active"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ValidStatus reports whether s is one of the known session statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// IsActive returns true if the session accepts new messages.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive && !s.Archived
}

// Idle returns how long the session has been without activity.
func (s *Session) Idle() time.Duration {
	return time.Since(s.LastActive)
}
