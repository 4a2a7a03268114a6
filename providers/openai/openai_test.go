// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package openai

import (
	"testing"

	"github.com/openai/openai-go"

	"github.com/jllopis/onyx/pkg/llm"
)

func TestNewProvider(t *testing.T) {
	p := New()
	if p.model != DefaultModel {
		t.Errorf("expected default model, got %s", p.model)
	}
	if p := New(WithModel("")); p.model != DefaultModel {
		t.Errorf("empty model should keep the default")
	}
}

func TestOptionsAccumulate(t *testing.T) {
	p := New(WithAPIKey("key"), WithBaseURL("http://localhost:8080/v1"), WithModel("gpt-4o"))
	if len(p.options) != 2 {
		t.Fatalf("expected api key and base url options, got %d", len(p.options))
	}
	if p.model != "gpt-4o" {
		t.Fatalf("unexpected model %s", p.model)
	}
}

func TestBuildParamsForcesToolChoice(t *testing.T) {
	p := New(WithAPIKey("key"))
	params := p.buildParams(llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "decide"},
			{Role: llm.RoleUser, Content: "converse or act?"},
		},
		Tools:      []llm.Tool{llm.NewFunctionTool("give_selection_decision", "pick", nil)},
		ToolChoice: &llm.ToolChoice{Name: "give_selection_decision"},
	})
	if params.Model != DefaultModel {
		t.Fatalf("request without a model should use the provider default, got %s", params.Model)
	}
	if len(params.Messages) != 2 || len(params.Tools) != 1 {
		t.Fatalf("unexpected params: %d messages, %d tools", len(params.Messages), len(params.Tools))
	}
	named := params.ToolChoice.OfChatCompletionNamedToolChoice
	if named == nil || named.Function.Name != "give_selection_decision" {
		t.Fatalf("tool choice was not forced: %+v", params.ToolChoice)
	}
}

func TestConvertMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  llm.Message
	}{
		{name: "system", msg: llm.Message{Role: llm.RoleSystem, Content: "You are a decision maker"}},
		{name: "user", msg: llm.Message{Role: llm.RoleUser, Content: "Hello"}},
		{name: "assistant", msg: llm.Message{Role: llm.RoleAssistant, Content: "Hi there"}},
		{name: "assistant tool call", msg: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "1", Function: llm.FunctionCall{Name: "x", Arguments: "{}"}}}}},
		{name: "tool", msg: llm.Message{Role: llm.RoleTool, Content: "result", ToolCallID: "call_123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = convertMessage(tt.msg)
		})
	}
}

func TestConvertResponse(t *testing.T) {
	completion := &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Content: "",
				ToolCalls: []openai.ChatCompletionMessageToolCall{{
					ID: "call_1",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      "boolean_decision",
						Arguments: `{"decision":true,"reason":"ok"}`,
					},
				}},
			},
		}},
		Usage: openai.CompletionUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
	}
	resp := convertResponse(completion)
	tc, ok := resp.FirstToolCall()
	if !ok || tc.Function.Name != "boolean_decision" {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
}
