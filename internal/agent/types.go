// Package agent glues the session store to a locally running model server
// and records every conversation turn and tool invocation as it happens.
package agent

import (
	"context"
	"encoding/json"
	"time"
)

// ChatRequest represents a chat request against an existing session.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"-"`
	Message   string `json:"message"`
}

// ChatResponse represents the assistant's reply.
type ChatResponse struct {
	SessionID string   `json:"session_id"`
	MessageID int64    `json:"message_id"`
	Response  string   `json:"response"`
	ToolsUsed []string `json:"tools_used,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a callable tool to the model. Parameters is a
// JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ModelMessage is one prompt message handed to the model.
type ModelMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant messages carrying tool calls
	ToolCallID string     // tool role: id of the call being answered
}

// Turn is one assistant completion: text, tool calls, or both.
type Turn struct {
	Content   string
	ToolCalls []ToolCall
}

// Model generates one assistant turn from the conversation so far.
type Model interface {
	Generate(ctx context.Context, msgs []ModelMessage, tools []ToolDefinition) (*Turn, error)
}

// toolOutcome is a completed tool invocation with its recorded result.
type toolOutcome struct {
	call    ToolCall
	result  json.RawMessage
	status  string
	elapsed time.Duration
}
