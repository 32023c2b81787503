package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/haasonsaas/mcpbot/internal/agent"
)

// OpenAI function names are limited to 64 characters.
const maxToolNameLen = 64

// ToolCaller executes a tool on a named server.
type ToolCaller interface {
	CallTool(ctx context.Context, server, tool string, arguments json.RawMessage) (*ToolCallResult, error)
}

// ToolBridge exposes one server tool as an agent tool.
type ToolBridge struct {
	caller ToolCaller
	server string
	tool   *Tool
	name   string
}

// NewToolBridge creates a bridge tool with a precomputed safe name.
func NewToolBridge(caller ToolCaller, server string, tool *Tool, safeName string) *ToolBridge {
	return &ToolBridge{caller: caller, server: server, tool: tool, name: safeName}
}

// Name returns the name registered with the LLM provider.
func (b *ToolBridge) Name() string {
	return b.name
}

// Description returns the server's description prefixed with its origin.
func (b *ToolBridge) Description() string {
	desc := strings.TrimSpace(b.tool.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", b.server, b.tool.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", b.server, b.tool.Name, desc)
}

// Schema returns the tool's input schema.
func (b *ToolBridge) Schema() json.RawMessage {
	if len(b.tool.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return b.tool.InputSchema
}

// Execute calls the tool on its server.
func (b *ToolBridge) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if len(params) > 0 && !json.Valid(params) {
		return nil, fmt.Errorf("invalid arguments for %s", b.name)
	}
	result, err := b.caller.CallTool(ctx, b.server, b.tool.Name, params)
	if err != nil {
		return nil, err
	}
	content, isError := formatToolCallResult(result)
	return &agent.ToolResult{Content: content, IsError: isError}, nil
}

// Tools returns bridges for every tool of every connected server, ordered
// by server then tool name so names are stable across restarts.
func (m *Manager) Tools() []agent.Tool {
	clients := m.Clients()
	used := make(map[string]struct{})
	var out []agent.Tool
	for _, server := range sortedKeys(clients) {
		tools := clients[server].Tools()
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
		for _, tool := range tools {
			out = append(out, NewToolBridge(m, server, tool, safeToolName(server, tool.Name, used)))
		}
	}
	return out
}

func safeToolName(server, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeToolPart(server) + "_" + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, server, toolName)
	}
	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, server, toolName)
	}
	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(server, toolName string) string {
	sum := sha1.Sum([]byte(server + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, server, toolName string) string {
	suffix := "_" + toolNameHash(server, toolName)
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, server, toolName string) string {
	name := base + "_" + toolNameHash(server, toolName)
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, server, toolName)
}

// formatToolCallResult joins text content; anything else is returned as JSON.
func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}
	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}
