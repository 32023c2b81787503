package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MaxToolParamsSize bounds tool argument JSON.
const MaxToolParamsSize = 1 << 20

// ToolRegistry is a concurrency-safe set of tools keyed by name.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates a registry holding tools.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		r.tools[tool.Name()] = tool
	}
	return r
}

// Register adds or replaces tools.
func (r *ToolRegistry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tool := range tools {
		r.tools[tool.Name()] = tool
	}
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the tools sorted by name.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name. Lookup failures, oversized arguments and
// tool errors all come back as error results so the model can react.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) *ToolResult {
	tool, ok := r.Get(name)
	if !ok {
		return &ToolResult{Content: fmt.Sprintf("%v: %s", ErrToolNotFound, name), IsError: true}
	}
	if len(params) > MaxToolParamsSize {
		return &ToolResult{Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize), IsError: true}
	}
	result, err := tool.Execute(ctx, params)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("tool %s failed: %v", name, err), IsError: true}
	}
	if result == nil {
		return &ToolResult{}
	}
	return result
}
