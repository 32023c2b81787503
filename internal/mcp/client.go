package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// ClientName and ClientVersion identify this client in the handshake.
var (
	ClientName    = "mcpbot"
	ClientVersion = "dev"
)

// Client is a session with a single tool server.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu         sync.RWMutex
	tools      []*Tool
	serverInfo Implementation
}

// NewClient creates a client that talks to cfg's process over stdio.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return newClientWithTransport(cfg, NewStdioTransport(cfg, logger), logger)
}

func newClientWithTransport(cfg *ServerConfig, transport Transport, logger *slog.Logger) *Client {
	return &Client{
		config:    cfg,
		transport: transport,
		logger:    logger.With("mcp_server", cfg.Name),
	}
}

// Connect starts the server, performs the initialize handshake and loads
// the tool list. The whole sequence is bounded by the server's timeout.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.timeout())
	defer cancel()

	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      Implementation{Name: ClientName, Version: ClientVersion},
	})
	if err != nil {
		_ = c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		_ = c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "connected to MCP server",
		"name", initResult.ServerInfo.Name,
		"version", initResult.ServerInfo.Version,
		"protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.WarnContext(ctx, "failed to send initialized notification", "error", err)
	}

	if err := c.RefreshTools(ctx); err != nil {
		_ = c.transport.Close()
		return err
	}
	return nil
}

// RefreshTools reloads the tool list, following pagination cursors.
func (c *Client) RefreshTools(ctx context.Context) error {
	var tools []*Tool
	cursor := ""
	for {
		var params any
		if cursor != "" {
			params = map[string]string{"cursor": cursor}
		}
		raw, err := c.transport.Call(ctx, "tools/list", params)
		if err != nil {
			return fmt.Errorf("tools/list: %w", err)
		}
		var page ListToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("parse tools/list result: %w", err)
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	c.logger.DebugContext(ctx, "refreshed tools", "count", len(tools))
	return nil
}

// Close ends the session and stops the server.
func (c *Client) Close() error {
	return c.transport.Close()
}

// ServerInfo returns the name and version reported by the server.
func (c *Client) ServerInfo() Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Connected reports whether the server is reachable.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// Tools returns the cached tool list.
func (c *Client) Tools() []*Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// CallTool invokes a tool with raw JSON arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error) {
	params := CallToolParams{Name: name}
	if len(arguments) > 0 {
		params.Arguments = arguments
	}

	raw, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &result, nil
}
