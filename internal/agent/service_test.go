package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ashureev/hacklab-agent/internal/domain"
	"github.com/ashureev/hacklab-agent/internal/store"
)

// fakeModel replays scripted turns, recording the prompts it was given.
type fakeModel struct {
	turns   []*Turn
	call    int
	prompts [][]ModelMessage
}

func (f *fakeModel) Generate(_ context.Context, msgs []ModelMessage, _ []ToolDefinition) (*Turn, error) {
	f.prompts = append(f.prompts, msgs)
	if f.call >= len(f.turns) {
		return &Turn{Content: "done"}, nil
	}
	turn := f.turns[f.call]
	f.call++
	return turn, nil
}

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close test store: %v", err)
		}
	})
	return repo
}

func createSession(t *testing.T, repo store.Repository) string {
	t.Helper()

	sessionID, err := repo.CreateSession(context.Background(), store.CreateSessionParams{
		UserID: "alice",
		Name:   "HTB - Lame",
		Target: "10.10.10.3",
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return sessionID
}

func TestChatPlainReply(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sessionID := createSession(t, repo)

	model := &fakeModel{turns: []*Turn{{Content: "start with an nmap scan"}}}
	svc := NewService(repo, model, ServiceConfig{})

	resp, err := svc.Chat(ctx, ChatRequest{SessionID: sessionID, Message: "where do I start?"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Response != "start with an nmap scan" {
		t.Errorf("Expected model reply, got %q", resp.Response)
	}
	if len(resp.ToolsUsed) != 0 {
		t.Errorf("Expected no tools used, got %v", resp.ToolsUsed)
	}

	// Both the user turn and the assistant turn are persisted.
	messages, err := repo.GetMessages(ctx, sessionID, store.MessageFilter{})
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != domain.RoleUser || messages[1].Role != domain.RoleAssistant {
		t.Errorf("Expected user then assistant, got %s then %s", messages[0].Role, messages[1].Role)
	}
	if resp.MessageID != messages[1].MessageID {
		t.Errorf("Expected response to reference the assistant message, got %d", resp.MessageID)
	}

	// The prompt starts with the mentor system message.
	if len(model.prompts) != 1 {
		t.Fatalf("Expected 1 model call, got %d", len(model.prompts))
	}
	if model.prompts[0][0].Role != "system" {
		t.Errorf("Expected system message first, got %q", model.prompts[0][0].Role)
	}
}

func TestChatToolRound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sessionID := createSession(t, repo)

	model := &fakeModel{turns: []*Turn{
		{ToolCalls: []ToolCall{{
			ID:        "call_1",
			Name:      "get_cheatsheet",
			Arguments: `{"topic":"nmap"}`,
		}}},
		{Content: "here is the nmap quick reference"},
	}}
	svc := NewService(repo, model, ServiceConfig{})

	resp, err := svc.Chat(ctx, ChatRequest{SessionID: sessionID, Message: "show me nmap basics"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Response != "here is the nmap quick reference" {
		t.Errorf("Expected final reply, got %q", resp.Response)
	}
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != "get_cheatsheet" {
		t.Errorf("Expected tools_used [get_cheatsheet], got %v", resp.ToolsUsed)
	}

	// The tool invocation lands in tool_executions against the assistant
	// message.
	execs, err := repo.ListToolExecutions(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListToolExecutions failed: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("Expected 1 tool execution, got %d", len(execs))
	}
	if execs[0].ToolName != "get_cheatsheet" || execs[0].Status != domain.ExecSuccess {
		t.Errorf("Expected successful get_cheatsheet execution, got %+v", execs[0])
	}
	if execs[0].MessageID != resp.MessageID {
		t.Errorf("Expected execution tied to message %d, got %d", resp.MessageID, execs[0].MessageID)
	}

	// A fetched cheatsheet is attached as a session resource.
	resources, err := repo.ListResources(ctx, sessionID, domain.ResourceCheatsheet)
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources) != 1 {
		t.Fatalf("Expected 1 cheatsheet resource, got %d", len(resources))
	}
	if resources[0].Title != "nmap cheatsheet" {
		t.Errorf("Expected title 'nmap cheatsheet', got %q", resources[0].Title)
	}

	// The assistant message carries the serialized tool calls.
	messages, err := repo.GetMessages(ctx, sessionID, store.MessageFilter{Role: domain.RoleAssistant})
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].ToolCalls == nil {
		t.Error("Expected assistant message with tool_calls recorded")
	}

	// Second model call sees the tool result.
	if len(model.prompts) != 2 {
		t.Fatalf("Expected 2 model calls, got %d", len(model.prompts))
	}
	last := model.prompts[1][len(model.prompts[1])-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Errorf("Expected tool result message last, got role=%q id=%q", last.Role, last.ToolCallID)
	}
}

func TestChatUnknownSession(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, &fakeModel{}, ServiceConfig{})

	_, err := svc.Chat(context.Background(), ChatRequest{SessionID: "no-such-session", Message: "hi"})
	if !store.IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestChatEmptyMessage(t *testing.T) {
	repo := newTestRepo(t)
	sessionID := createSession(t, repo)
	svc := NewService(repo, &fakeModel{}, ServiceConfig{})

	_, err := svc.Chat(context.Background(), ChatRequest{SessionID: sessionID, Message: "   "})
	if !store.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}
