package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	oerrors "github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/mark3labs/mcp-go/mcp"
)

type stubClient struct {
	tools    []mcp.Tool
	listErr  error
	result   *mcp.CallToolResult
	lastName string
	lastArgs map[string]any
}

func (s *stubClient) ListTools(context.Context) ([]mcp.Tool, error) {
	return s.tools, s.listErr
}

func (s *stubClient) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.lastName = name
	s.lastArgs = args
	return s.result, nil
}

func TestNewServiceMapsTools(t *testing.T) {
	stub := &stubClient{
		tools: []mcp.Tool{
			{Name: "search", Description: "search the web", InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"query": map[string]any{"type": "string"}},
				Required:   []string{"query"},
			}},
			{Name: "raw", RawInputSchema: json.RawMessage(`{"type":"object","properties":{"n":{"type":"integer"}}}`)},
			{Name: ""},
		},
		result: &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "a"}, mcp.TextContent{Type: "text", Text: "b"}}},
	}
	svc, err := NewService(context.Background(), "web", stub)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if len(svc.Methods()) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(svc.Methods()))
	}
	search, _ := module.FindMethod(svc, "search")
	if req, _ := search.Parameters["required"].([]string); len(req) != 1 || req[0] != "query" {
		t.Fatalf("unexpected schema %+v", search.Parameters)
	}
	raw, _ := module.FindMethod(svc, "raw")
	if _, ok := raw.Parameters["properties"].(map[string]any)["n"]; !ok {
		t.Fatalf("raw schema not decoded: %+v", raw.Parameters)
	}

	out, err := search.Perform(context.Background(), module.Args{"query": "go"})
	if err != nil || out != "a\nb" {
		t.Fatalf("unexpected output %v, %v", out, err)
	}
	if stub.lastName != "search" || stub.lastArgs["query"] != "go" {
		t.Fatalf("unexpected call %s %v", stub.lastName, stub.lastArgs)
	}
}

func TestToolErrorSurfacesAsActionFailure(t *testing.T) {
	stub := &stubClient{
		tools:  []mcp.Tool{{Name: "fail"}},
		result: &mcp.CallToolResult{IsError: true, Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "nope"}}},
	}
	svc, err := NewService(context.Background(), "x", stub)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	m, _ := module.FindMethod(svc, "fail")
	if _, err := m.Perform(context.Background(), nil); !oerrors.HasCode(err, oerrors.CodeActionFailed) {
		t.Fatalf("expected action failure, got %v", err)
	}
}

func TestNewServiceListFailure(t *testing.T) {
	_, err := NewService(context.Background(), "x", &stubClient{listErr: errors.New("down")})
	if !oerrors.HasCode(err, oerrors.CodeActionFailed) {
		t.Fatalf("expected action failure, got %v", err)
	}
}
