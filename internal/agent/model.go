package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OllamaConfig configures the local model server connection. Ollama exposes
// an OpenAI-compatible chat completions endpoint under /v1, so the official
// client works against it with a dummy API key.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// OllamaModel implements Model against a local Ollama server.
type OllamaModel struct {
	client openai.Client
	cfg    OllamaConfig
}

// NewOllamaModel creates a model client for the given Ollama server.
func NewOllamaModel(cfg OllamaConfig) (*OllamaModel, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama base URL is required")
	}
	if cfg.Model == "" {
		cfg.Model = "qwen3:8b"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	client := openai.NewClient(
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/v1"),
		option.WithAPIKey("ollama"), // required by the client, ignored by the server
	)
	return &OllamaModel{client: client, cfg: cfg}, nil
}

// Generate runs one chat completion and returns the assistant turn.
func (m *OllamaModel) Generate(ctx context.Context, msgs []ModelMessage, tools []ToolDefinition) (*Turn, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(msgs),
		Model:               m.cfg.Model,
		Temperature:         openai.Float(m.cfg.Temperature),
		MaxCompletionTokens: openai.Int(m.cfg.MaxTokens),
	}
	if len(tools) > 0 {
		params.Tools = buildToolParams(tools)
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("model completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	choice := resp.Choices[0]
	turn := &Turn{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return turn, nil
}

// buildMessages converts prompt messages into the SDK's message union,
// attaching tool calls to assistant messages and tool results by call id.
func buildMessages(msgs []ModelMessage) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			var calls []openai.ChatCompletionMessageToolCallParam
			for _, tc := range m.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: calls,
				},
			})
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func buildToolParams(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}
