package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server publishes Onyx modules as MCP tools named "<module>__<method>".
type Server struct {
	mcpServer *server.MCPServer
	validator *module.Validator
}

// NewServer creates a new MCP server.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		validator: module.NewValidator(),
	}
}

// ToolName is the MCP tool name a module method is published under.
func ToolName(moduleName, method string) string {
	return moduleName + "__" + method
}

// AddModule registers every method of m as a tool.
func (s *Server) AddModule(m module.Module) error {
	for _, method := range m.Methods() {
		schema, err := json.Marshal(method.Parameters)
		if err != nil {
			return errors.New(errors.CodeInvalidInput, fmt.Sprintf("encode schema of %s.%s", m.Name(), method.Name), err)
		}
		if method.Parameters == nil {
			schema = []byte(`{"type":"object","properties":{}}`)
		}
		tool := mcp.NewToolWithRawSchema(ToolName(m.Name(), method.Name), method.Description, schema)
		s.mcpServer.AddTool(tool, s.handler(m.Name(), method))
	}
	return nil
}

func (s *Server) handler(moduleName string, method module.Method) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		out, err := s.validator.Invoke(ctx, moduleName, method, module.Args(args))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		switch v := out.(type) {
		case nil:
			return mcp.NewToolResultText(""), nil
		case string:
			return mcp.NewToolResultText(v), nil
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return mcp.NewToolResultText(fmt.Sprint(v)), nil
			}
			return mcp.NewToolResultText(string(raw)), nil
		}
	}
}

// ServeStdio serves the registered tools on stdin/stdout until the stream closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// StreamableHTTP returns an HTTP server for the registered tools.
func (s *Server) StreamableHTTP() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// MCPServer exposes the underlying server, mostly for tests.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
