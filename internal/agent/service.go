package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/hacklab-agent/internal/domain"
	"github.com/ashureev/hacklab-agent/internal/store"
)

// ServiceConfig tunes the chat pipeline.
type ServiceConfig struct {
	HistoryLimit  int
	MaxToolRounds int
	ToolTimeout   time.Duration
}

// Service runs the chat pipeline: it loads the session's history and lab
// context, drives the model through its tool calls, and persists every turn
// and tool invocation through the store.
type Service struct {
	repo          store.Repository
	model         Model
	tools         *ToolRunner
	historyLimit  int
	maxToolRounds int
}

// NewService creates a chat service over the given store and model.
func NewService(repo store.Repository, model Model, cfg ServiceConfig) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 4
	}
	return &Service{
		repo:          repo,
		model:         model,
		tools:         NewToolRunner(cfg.ToolTimeout),
		historyLimit:  cfg.HistoryLimit,
		maxToolRounds: cfg.MaxToolRounds,
	}
}

// toolResultRecord is the serialized form of a tool outcome stored on the
// assistant message.
type toolResultRecord struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// Chat processes one user message and returns the assistant's reply.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", store.ErrValidation)
	}

	session, err := s.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", store.ErrNotFound, req.SessionID)
	}

	if _, err := s.repo.AppendMessage(ctx, store.AppendMessageParams{
		SessionID: req.SessionID,
		Role:      domain.RoleUser,
		Content:   req.Message,
	}); err != nil {
		return nil, err
	}

	msgs, err := s.buildPrompt(ctx, session)
	if err != nil {
		return nil, err
	}

	turn, outcomes, err := s.runToolLoop(ctx, msgs)
	if err != nil {
		return nil, err
	}

	messageID, err := s.persistAssistantTurn(ctx, req.SessionID, turn, outcomes)
	if err != nil {
		return nil, err
	}

	resp := &ChatResponse{
		SessionID: req.SessionID,
		MessageID: messageID,
		Response:  turn.Content,
	}
	seen := map[string]bool{}
	for _, o := range outcomes {
		if !seen[o.call.Name] {
			seen[o.call.Name] = true
			resp.ToolsUsed = append(resp.ToolsUsed, o.call.Name)
		}
	}
	return resp, nil
}

// buildPrompt assembles the system prompt plus recent history. Tool-role
// rows are skipped: their call ids are not reconstructible across requests.
func (s *Service) buildPrompt(ctx context.Context, session *domain.Session) ([]ModelMessage, error) {
	lc, err := s.repo.GetLabContext(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ConversationHistory(ctx, session.SessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}

	msgs := []ModelMessage{{Role: "system", Content: BuildSystemPrompt(session, lc)}}
	for _, entry := range history {
		if entry.Role == domain.RoleTool {
			continue
		}
		msgs = append(msgs, ModelMessage{Role: entry.Role, Content: entry.Content})
	}
	return msgs, nil
}

// runToolLoop drives the model until it answers without tool calls or the
// round budget runs out.
func (s *Service) runToolLoop(ctx context.Context, msgs []ModelMessage) (*Turn, []toolOutcome, error) {
	defs := s.tools.Definitions()
	var outcomes []toolOutcome

	var turn *Turn
	for round := 0; round < s.maxToolRounds; round++ {
		var err error
		turn, err = s.model.Generate(ctx, msgs, defs)
		if err != nil {
			return nil, nil, err
		}
		if len(turn.ToolCalls) == 0 {
			return turn, outcomes, nil
		}

		msgs = append(msgs, ModelMessage{Role: "assistant", ToolCalls: turn.ToolCalls})
		for _, call := range turn.ToolCalls {
			started := time.Now()
			result, status := s.tools.Execute(ctx, call)
			outcome := toolOutcome{
				call:    call,
				result:  result,
				status:  status,
				elapsed: time.Since(started),
			}
			outcomes = append(outcomes, outcome)
			msgs = append(msgs, ModelMessage{
				Role:       "tool",
				Content:    string(result),
				ToolCallID: call.ID,
			})
		}
	}

	slog.Warn("tool round budget exhausted", "rounds", s.maxToolRounds)
	return turn, outcomes, nil
}

// persistAssistantTurn writes the assistant message with its serialized tool
// calls/results, then a tool_executions row per invocation. Cheatsheets the
// model pulled up are also attached to the session as resources.
func (s *Service) persistAssistantTurn(ctx context.Context, sessionID string, turn *Turn, outcomes []toolOutcome) (int64, error) {
	params := store.AppendMessageParams{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   turn.Content,
	}

	if len(outcomes) > 0 {
		calls := make([]ToolCall, len(outcomes))
		results := make([]toolResultRecord, len(outcomes))
		for i, o := range outcomes {
			calls[i] = o.call
			results[i] = toolResultRecord{
				ID:     o.call.ID,
				Name:   o.call.Name,
				Status: o.status,
				Result: o.result,
			}
		}
		data, err := json.Marshal(calls)
		if err != nil {
			return 0, fmt.Errorf("marshal tool calls: %w", err)
		}
		params.ToolCalls = data
		if data, err = json.Marshal(results); err != nil {
			return 0, fmt.Errorf("marshal tool results: %w", err)
		}
		params.ToolResults = data
	}

	messageID, err := s.repo.AppendMessage(ctx, params)
	if err != nil {
		return 0, err
	}

	for _, o := range outcomes {
		_, err := s.repo.RecordToolExecution(ctx, store.RecordToolExecutionParams{
			SessionID:  sessionID,
			MessageID:  messageID,
			ToolName:   o.call.Name,
			Parameters: json.RawMessage(o.call.Arguments),
			Result:     o.result,
			Duration:   o.elapsed,
			Status:     o.status,
		})
		if err != nil {
			return 0, err
		}

		if o.call.Name == "get_cheatsheet" && o.status == domain.ExecSuccess {
			if err := s.saveCheatsheet(ctx, sessionID, o.result); err != nil {
				return 0, err
			}
		}
	}

	return messageID, nil
}

func (s *Service) saveCheatsheet(ctx context.Context, sessionID string, result json.RawMessage) error {
	var payload struct {
		Topic  string `json:"topic"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(result, &payload); err != nil || payload.Topic == "" {
		slog.Warn("skipping malformed cheatsheet result", "session_id", sessionID)
		return nil
	}

	_, err := s.repo.AddResource(ctx, &domain.Resource{
		SessionID: sessionID,
		Type:      domain.ResourceCheatsheet,
		Title:     payload.Topic + " cheatsheet",
		Content:   payload.Result,
		Tags:      []string{payload.Topic, "cheatsheet"},
	})
	return err
}
