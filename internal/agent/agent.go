package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Agent describes one persona the runner can act as. Agents are shared
// by every conversation and must not be mutated while a run is active,
// except through their ToolRegistry.
type Agent struct {
	// Name identifies the agent in logs and in handoff tool names.
	Name string

	// Instructions is sent as the system prompt.
	Instructions string

	// HandoffDescription tells other agents when to transfer to this one.
	HandoffDescription string

	// Model overrides the provider default when set.
	Model string

	// Temperature is the sampling temperature.
	Temperature float32

	// Tools are the tools this agent may call.
	Tools *ToolRegistry

	// Handoffs are agents this agent may transfer control to.
	Handoffs []*Agent
}

// New creates an agent with an empty tool registry.
func New(name, instructions string) *Agent {
	return &Agent{Name: name, Instructions: instructions, Tools: NewToolRegistry()}
}

// HandoffToolName is the tool name that transfers control to target.
func HandoffToolName(target *Agent) string {
	var b strings.Builder
	b.WriteString("transfer_to_")
	underscore := false
	for _, r := range strings.TrimSpace(target.Name) {
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
	return strings.TrimRight(b.String(), "_")
}

// offeredTools returns the agent's own tools followed by one handoff tool
// per handoff target.
func (a *Agent) offeredTools() []Tool {
	var tools []Tool
	if a.Tools != nil {
		tools = a.Tools.List()
	}
	for _, target := range a.Handoffs {
		tools = append(tools, &handoffTool{target: target})
	}
	return tools
}

// handoffTool is offered to the model for each handoff target. The runner
// intercepts calls to it and switches the active agent.
type handoffTool struct {
	target *Agent
}

func (h *handoffTool) Name() string {
	return HandoffToolName(h.target)
}

func (h *handoffTool) Description() string {
	desc := fmt.Sprintf("Handoff to the %s agent to handle the request.", h.target.Name)
	if h.target.HandoffDescription != "" {
		desc += " " + h.target.HandoffDescription
	}
	return desc
}

func (h *handoffTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
}

func (h *handoffTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: handoffOutput(h.target)}, nil
}

func handoffOutput(target *Agent) string {
	payload, _ := json.Marshal(map[string]string{"assistant": target.Name})
	return string(payload)
}
