package domain

import (
	"encoding/json"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is a single conversation turn within a session. Messages are
// immutable once written; they disappear only when the parent session is
// deleted.
type Message struct {
	MessageID   int64           `json:"message_id"`
	SessionID   string          `json:"session_id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	ToolCalls   json.RawMessage `json:"tool_calls,omitempty"`
	ToolResults json.RawMessage `json:"tool_results,omitempty"`
	Metadata    json.RawMessage `json:"message_metadata,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ValidRole reports whether r is one of the known message roles.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// HistoryEntry is the simplified role/content pair handed to the model.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
