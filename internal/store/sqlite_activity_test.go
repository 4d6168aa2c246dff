package store

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
)

func TestRecordToolExecutionMissingMessage(t *testing.T) {
	s := newTestStore(t)
	sessionID := createTestSession(t, s, "alice")

	_, err := s.RecordToolExecution(context.Background(), RecordToolExecutionParams{
		SessionID: sessionID,
		MessageID: 9999,
		ToolName:  "nmap_scan",
		Status:    domain.ExecSuccess,
	})
	if !IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}

	// The failed record must not leave a partial row behind.
	if count := countRows(t, s, "tool_executions", sessionID); count != 0 {
		t.Errorf("Expected 0 tool execution rows, got %d", count)
	}
}

func TestRecordToolExecutionWrongSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := createTestSession(t, s, "alice")
	second := createTestSession(t, s, "alice")

	messageID := appendTestMessage(t, s, first, domain.RoleAssistant, "scanning")

	_, err := s.RecordToolExecution(ctx, RecordToolExecutionParams{
		SessionID: second,
		MessageID: messageID,
		ToolName:  "nmap_scan",
		Status:    domain.ExecSuccess,
	})
	if !IsNotFound(err) {
		t.Errorf("Expected not found error for cross-session message, got %v", err)
	}
	if count := countRows(t, s, "tool_executions", second); count != 0 {
		t.Errorf("Expected 0 tool execution rows, got %d", count)
	}
}

func TestRecordToolExecutionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := createTestSession(t, s, "alice")
	messageID := appendTestMessage(t, s, sessionID, domain.RoleAssistant, "scanning")

	id, err := s.RecordToolExecution(ctx, RecordToolExecutionParams{
		SessionID:  sessionID,
		MessageID:  messageID,
		ToolName:   "nmap_scan",
		Parameters: []byte(`{"target":"10.10.10.3"}`),
		Result:     []byte(`{"status":"success"}`),
		Duration:   2500 * time.Millisecond,
		Status:     domain.ExecSuccess,
	})
	if err != nil {
		t.Fatalf("RecordToolExecution failed: %v", err)
	}

	execs, err := s.ListToolExecutions(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListToolExecutions failed: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("Expected 1 execution, got %d", len(execs))
	}
	got := execs[0]
	if got.ExecutionID != id || got.MessageID != messageID {
		t.Errorf("Expected execution %d for message %d, got %d/%d", id, messageID, got.ExecutionID, got.MessageID)
	}
	if got.ToolName != "nmap_scan" || got.Status != domain.ExecSuccess {
		t.Errorf("Expected nmap_scan/success, got %s/%s", got.ToolName, got.Status)
	}
	if got.Duration != 2500*time.Millisecond {
		t.Errorf("Expected duration 2.5s, got %v", got.Duration)
	}
}

func TestRecordToolExecutionInvalidStatus(t *testing.T) {
	s := newTestStore(t)
	sessionID := createTestSession(t, s, "alice")
	messageID := appendTestMessage(t, s, sessionID, domain.RoleAssistant, "scanning")

	_, err := s.RecordToolExecution(context.Background(), RecordToolExecutionParams{
		SessionID: sessionID,
		MessageID: messageID,
		ToolName:  "nmap_scan",
		Status:    "crashed",
	})
	if !IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestAddResourceAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := createTestSession(t, s, "alice")

	if _, err := s.AddResource(ctx, &domain.Resource{
		SessionID: sessionID,
		Type:      domain.ResourceCheatsheet,
		Title:     "nmap cheatsheet",
		Content:   "nmap -sV <target>",
		Tags:      []string{"nmap", "cheatsheet"},
	}); err != nil {
		t.Fatalf("AddResource failed: %v", err)
	}
	if _, err := s.AddResource(ctx, &domain.Resource{
		SessionID: sessionID,
		Type:      domain.ResourceExploit,
		Title:     "CVE-2007-2447",
		URL:       "https://www.exploit-db.com/exploits/16320",
	}); err != nil {
		t.Fatalf("AddResource failed: %v", err)
	}

	all, err := s.ListResources(ctx, sessionID, "")
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 resources, got %d", len(all))
	}

	sheets, err := s.ListResources(ctx, sessionID, domain.ResourceCheatsheet)
	if err != nil {
		t.Fatalf("ListResources by type failed: %v", err)
	}
	if len(sheets) != 1 {
		t.Fatalf("Expected 1 cheatsheet, got %d", len(sheets))
	}
	if len(sheets[0].Tags) != 2 || sheets[0].Tags[0] != "nmap" {
		t.Errorf("Expected tags to round-trip, got %v", sheets[0].Tags)
	}
}

func TestAddResourceInvalidType(t *testing.T) {
	s := newTestStore(t)
	sessionID := createTestSession(t, s, "alice")

	_, err := s.AddResource(context.Background(), &domain.Resource{
		SessionID: sessionID,
		Type:      "video",
		Title:     "walkthrough",
	})
	if !IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestAddResourceUnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddResource(context.Background(), &domain.Resource{
		SessionID: "no-such-session",
		Type:      domain.ResourceCheatsheet,
		Title:     "nmap cheatsheet",
	})
	if !IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestRecordProgressUnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.RecordProgress(context.Background(), &domain.UserProgress{
		UserID:       "alice",
		SessionID:    "no-such-session",
		SkillArea:    "reconnaissance",
		ActivityType: "tool_execution",
	})
	if !IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestRecordProgressValidation(t *testing.T) {
	s := newTestStore(t)
	sessionID := createTestSession(t, s, "alice")

	_, err := s.RecordProgress(context.Background(), &domain.UserProgress{
		UserID:    "alice",
		SessionID: sessionID,
	})
	if !IsValidation(err) {
		t.Errorf("Expected validation error for missing skill area, got %v", err)
	}
}
