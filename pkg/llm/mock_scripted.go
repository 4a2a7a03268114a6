package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ScriptedMockProvider returns a pre-defined sequence of responses and
// records every request it receives.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []ChatResponse
	Err       error
	Requests  []ChatRequest
	// CallCount tracks how many times Chat has been called
	CallCount int
}

// NewScriptedMockProvider creates a provider that answers with the given
// texts in order.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, r := range responses {
		s.Responses = append(s.Responses, ChatResponse{Content: r})
	}
	return s
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	resp.Usage = Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	return &resp, nil
}

// AddResponse appends a text response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ChatResponse{Content: response})
}

// AddToolCall appends a response calling the named function with args
// encoded as JSON.
func (s *ScriptedMockProvider) AddToolCall(name string, args any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ChatResponse{ToolCalls: []ToolCall{{
		ID:       name + "-call",
		Type:     ToolTypeFunction,
		Function: FunctionCall{Name: name, Arguments: string(raw)},
	}}})
	return nil
}

// LastRequest returns the most recent request.
func (s *ScriptedMockProvider) LastRequest() (ChatRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		return ChatRequest{}, false
	}
	return s.Requests[len(s.Requests)-1], true
}
