package domain

import (
	"encoding/json"
	"time"
)

// Tool execution statuses.
const (
	ExecSuccess = "success"
	ExecError   = "error"
	ExecTimeout = "timeout"
)

// ToolExecution records one external tool invocation triggered by an agent
// turn. Rows are append-only and always tied to the message that carried the
// tool call.
type ToolExecution struct {
	ExecutionID int64           `json:"execution_id"`
	SessionID   string          `json:"session_id"`
	MessageID   int64           `json:"message_id"`
	ToolName    string          `json:"tool_name"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Duration    time.Duration   `json:"execution_time_ms"`
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ValidExecStatus reports whether s is a known tool execution status.
func ValidExecStatus(s string) bool {
	switch s {
	case ExecSuccess, ExecError, ExecTimeout:
		return true
	}
	return false
}
