// Package mcp is a Model Context Protocol client for tool servers that
// speak JSON-RPC 2.0 over a subprocess's stdin and stdout.
package mcp

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ProtocolVersion is the MCP revision announced during initialize.
const ProtocolVersion = "2024-11-05"

// DefaultTimeout bounds the handshake and every request to a server.
const DefaultTimeout = 30 * time.Second

// ServerConfig describes one tool server process.
type ServerConfig struct {
	Name    string            `json:"name" yaml:"name"`
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env"`
	WorkDir string            `json:"workdir,omitempty" yaml:"workdir"`
	Timeout time.Duration     `json:"-" yaml:"timeout"`
}

// Validate rejects configurations that cannot be started or that look
// like shell injection.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("server name is required")
	}
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("server %s: command is required", c.Name)
	}
	if err := validatePath(c.Command, "command"); err != nil {
		return fmt.Errorf("server %s: %w", c.Name, err)
	}
	if c.WorkDir != "" {
		if err := validatePath(c.WorkDir, "workdir"); err != nil {
			return fmt.Errorf("server %s: %w", c.Name, err)
		}
	}
	for i, arg := range c.Args {
		if containsShellMetachars(arg) {
			return fmt.Errorf("server %s: arg[%d] contains suspicious shell metacharacters: %q", c.Name, i, arg)
		}
	}
	return nil
}

func (c *ServerConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return nil
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s contains path traversal: %q", fieldName, path)
	}
	return nil
}

// containsShellMetachars flags patterns that suggest command chaining.
// Spaces and quotes are common in legitimate args and are allowed.
func containsShellMetachars(s string) bool {
	for _, pattern := range []string{"$(", "${", "`", "&&", "||", ";", "|", ">", "<", "\n", "\r"} {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}

// Tool is a tool advertised by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolCallResult holds the result of calling a tool.
type ToolCallResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// ToolResultContent is one piece of a tool result.
type ToolResultContent struct {
	Type     string `json:"type"` // text | image | resource
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// JSONRPCRequest is a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCNotification is a JSON-RPC 2.0 notification.
type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Implementation names a client or server in the handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities is the subset of MCP capabilities the client reads.
type Capabilities struct {
	Tools *struct {
		ListChanged bool `json:"listChanged,omitempty"`
	} `json:"tools,omitempty"`
}

// InitializeParams is sent by the client to open a session.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult holds the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    Capabilities   `json:"capabilities"`
	ServerInfo      Implementation `json:"serverInfo"`
}

// ListToolsResult holds the result of tools/list.
type ListToolsResult struct {
	Tools      []*Tool `json:"tools"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// CallToolParams holds parameters for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
