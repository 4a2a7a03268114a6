package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolClient is the part of Client a Service needs.
type ToolClient interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// NewService discovers the tools of c and exposes each one as a method of a
// service module called name.
func NewService(ctx context.Context, name string, c ToolClient) (module.Module, error) {
	if c == nil {
		return nil, errors.New(errors.CodeInvalidInput, "mcp client is required", nil)
	}
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeActionFailed, "list mcp tools", err).WithContext("server", name)
	}
	methods := make([]module.Method, 0, len(tools))
	descs := make([]string, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		methods = append(methods, toolMethod(tool, c))
		descs = append(descs, tool.Name)
	}
	desc := fmt.Sprintf("MCP server %s offering: %s", name, strings.Join(descs, ", "))
	if len(descs) == 0 {
		desc = fmt.Sprintf("MCP server %s", name)
	}
	return module.New(module.KindService, name, desc, methods...), nil
}

func toolMethod(tool mcp.Tool, c ToolClient) module.Method {
	name := tool.Name
	return module.Method{
		Name:        name,
		Description: tool.Description,
		Parameters:  toolSchema(tool),
		Perform: func(ctx context.Context, args module.Args) (any, error) {
			res, err := c.CallTool(ctx, name, map[string]any(args))
			if err != nil {
				return nil, err
			}
			return toolOutput(res)
		},
	}
}

// toolSchema prefers the raw schema sent by the server and falls back to the
// structured one. Tools without a schema take an empty object.
func toolSchema(tool mcp.Tool) module.Schema {
	if len(tool.RawInputSchema) > 0 {
		var s module.Schema
		if err := json.Unmarshal(tool.RawInputSchema, &s); err == nil && s != nil {
			return s
		}
	}
	props := make(map[string]any, len(tool.InputSchema.Properties))
	for k, v := range tool.InputSchema.Properties {
		props[k] = v
	}
	return module.Object(props, tool.InputSchema.Required...)
}

func toolOutput(res *mcp.CallToolResult) (any, error) {
	if res == nil {
		return nil, errors.New(errors.CodeActionFailed, "mcp tool returned no result", nil)
	}
	text := textContent(res.Content)
	if res.IsError {
		return nil, errors.New(errors.CodeActionFailed, "mcp tool error: "+text, nil)
	}
	if text != "" {
		return text, nil
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	return "", nil
}

func textContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
