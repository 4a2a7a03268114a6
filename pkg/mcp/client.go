// SPDX-License-Identifier: Apache-2.0

// Package mcp connects Onyx to Model Context Protocol servers. Remote tools
// are exposed to agents as service modules, and local modules can be served
// back out as MCP tools.
package mcp

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/resilience"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultRetries  = 2
	defaultBackoff  = 200 * time.Millisecond
	defaultCacheTTL = 30 * time.Second

	clientName    = "onyx-client"
	clientVersion = "0.1.0"
)

// ClientOption customizes the MCP client wrapper behavior.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and backoff.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.maxRetries = retries
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client is a connection to a single MCP server.
type Client struct {
	mcpClient  client.MCPClient
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	cacheTTL   time.Duration

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient wraps an initialized MCP client.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	cl := &Client{
		mcpClient:  c,
		timeout:    defaultTimeout,
		maxRetries: defaultRetries,
		backoff:    defaultBackoff,
		cacheTTL:   defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// NewClientWithStdio starts command and speaks MCP over its stdio.
func NewClientWithStdio(command string, args []string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStdioProtocol(command, args, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStdioProtocol is NewClientWithStdio with an explicit protocol version.
func NewClientWithStdioProtocol(command string, args []string, protocolVersion string, opts ...ClientOption) (*Client, error) {
	c, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, errors.New(errors.CodeActionFailed, "start mcp server", err).WithContext("command", command)
	}
	return start(c, protocolVersion, opts...)
}

// NewClientWithStreamableHTTP connects to an MCP server over streamable HTTP.
func NewClientWithStreamableHTTP(url string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStreamableHTTPProtocol(url, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStreamableHTTPProtocol is NewClientWithStreamableHTTP with an
// explicit protocol version.
func NewClientWithStreamableHTTPProtocol(url, protocolVersion string, opts ...ClientOption) (*Client, error) {
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, errors.New(errors.CodeActionFailed, "create mcp http client", err).WithContext("url", url)
	}
	return start(c, protocolVersion, opts...)
}

func start(c *client.Client, protocolVersion string, opts ...ClientOption) (*Client, error) {
	if protocolVersion == "" {
		protocolVersion = mcp.LATEST_PROTOCOL_VERSION
	}
	if err := c.Start(context.Background()); err != nil {
		_ = c.Close()
		return nil, errors.New(errors.CodeActionFailed, "start mcp transport", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = protocolVersion
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, errors.New(errors.CodeActionFailed, "initialize mcp session", err)
	}
	return NewClient(c, opts...), nil
}

// ListTools retrieves the tools offered by the server. Results are cached for
// the configured TTL.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	resp, err := resilience.Retry(ctx, c.retryConfig(), func(ctx context.Context) (*mcp.ListToolsResult, error) {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		return c.mcpClient.ListTools(reqCtx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	c.storeTools(resp.Tools)
	return resp.Tools, nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	return resilience.Retry(ctx, c.retryConfig(), func(ctx context.Context) (*mcp.CallToolResult, error) {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		return c.mcpClient.CallTool(reqCtx, req)
	})
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

func (c *Client) retryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  c.maxRetries + 1,
		InitialDelay: c.backoff,
		Multiplier:   2,
		IsRecoverable: func(err error) bool {
			return !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
		},
	}
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
