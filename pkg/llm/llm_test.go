package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
}

func TestMockProviderEchoAndTools(t *testing.T) {
	mock := &MockProvider{Tools: map[string]any{"selection_decision": map[string]any{"decision": "none"}}}
	resp, err := mock.Chat(context.Background(), ChatRequest{Messages: []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "ping"},
	}})
	if err != nil || resp.Content != "echo: ping" {
		t.Fatalf("unexpected echo %+v %v", resp, err)
	}

	resp, err = mock.Chat(context.Background(), ChatRequest{ToolChoice: &ToolChoice{Name: "selection_decision"}})
	if err != nil {
		t.Fatalf("tool call: %v", err)
	}
	tc, ok := resp.FirstToolCall()
	if !ok || tc.Function.Arguments != `{"decision":"none"}` {
		t.Fatalf("unexpected tool call %+v", resp)
	}
	if mock.Calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.Calls())
	}
}

func TestScriptedMockProvider(t *testing.T) {
	mock := NewScriptedMockProvider("first")
	if err := mock.AddToolCall("boolean_decision", map[string]any{"decision": true, "reason": "yes"}); err != nil {
		t.Fatalf("add tool call: %v", err)
	}

	resp, err := mock.Chat(context.Background(), ChatRequest{Model: "m"})
	if err != nil || resp.Content != "first" {
		t.Fatalf("unexpected first response: %+v %v", resp, err)
	}
	resp, err = mock.Chat(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("second response: %v", err)
	}
	tc, ok := resp.FirstToolCall()
	if !ok || tc.Function.Name != "boolean_decision" {
		t.Fatalf("expected tool call, got %+v", resp)
	}
	var args struct {
		Decision bool   `json:"decision"`
		Reason   string `json:"reason"`
	}
	if err := tc.Function.DecodeArguments(&args); err != nil || !args.Decision {
		t.Fatalf("decode arguments: %+v %v", args, err)
	}
	if _, err := mock.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatalf("expected error once the script is exhausted")
	}
	if mock.CallCount != 3 || len(mock.Requests) != 3 {
		t.Fatalf("unexpected call accounting: %d %d", mock.CallCount, len(mock.Requests))
	}
}

func TestDecodeEmptyArguments(t *testing.T) {
	var v map[string]any
	if err := (FunctionCall{Name: "x"}).DecodeArguments(&v); err != nil {
		t.Fatalf("empty arguments should decode: %v", err)
	}
}

func TestOllamaChatWithToolChoice(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"message": {"role": "assistant", "content": "", "tool_calls": [
				{"function": {"name": "pick", "arguments": {"decision": "converse"}}}
			]},
			"done": true, "eval_count": 3, "prompt_eval_count": 4
		}`))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:      "llama3",
		Messages:   []Message{{Role: RoleUser, Content: "hi"}},
		Tools:      []Tool{NewFunctionTool("pick", "", nil), NewFunctionTool("other", "", nil)},
		ToolChoice: &ToolChoice{Name: "pick"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(got.Tools) != 1 || got.Tools[0].Function.Name != "pick" {
		t.Fatalf("tool choice should narrow tools, got %+v", got.Tools)
	}
	tc, ok := resp.FirstToolCall()
	if !ok || tc.Function.Arguments != `{"decision": "converse"}` {
		t.Fatalf("unexpected tool call %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "x"}); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}
