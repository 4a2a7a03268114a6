package llm

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// MockProvider answers without a backend. Forced tool calls named in Tools
// are answered with those arguments; every other request gets Response, or
// an echo of the last user message when Response is empty.
type MockProvider struct {
	Response string
	// Tools maps a function name to the arguments of its scripted call.
	Tools    map[string]any
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	calls atomic.Int64
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.calls.Add(1)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.ToolChoice != nil {
		if args, ok := m.Tools[req.ToolChoice.Name]; ok {
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, err
			}
			return &ChatResponse{ToolCalls: []ToolCall{{
				ID:       req.ToolChoice.Name + "-mock",
				Type:     ToolTypeFunction,
				Function: FunctionCall{Name: req.ToolChoice.Name, Arguments: string(raw)},
			}}}, nil
		}
	}

	content := m.Response
	if content == "" {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == RoleUser {
				content = "echo: " + req.Messages[i].Content
				break
			}
		}
	}
	return &ChatResponse{Content: content, Usage: Usage{
		PromptTokens:     len(req.Messages),
		CompletionTokens: 1,
		TotalTokens:      len(req.Messages) + 1,
	}}, nil
}

// Calls reports how many times Chat ran.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }
