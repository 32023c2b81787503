package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/mcpbot/pkg/models"
)

// LLMProvider is a streaming chat-completion backend.
//
// Implementations must be safe for concurrent use; different conversations
// call Complete at the same time.
type LLMProvider interface {
	// Complete sends a request and returns a stream of chunks. The channel
	// is closed after a chunk with Done or Error set.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name used in metrics and logs.
	Name() string

	// SupportsTools reports whether the provider accepts tool definitions.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for one LLM call.
type CompletionRequest struct {
	// Model overrides the provider's default model when set.
	Model string `json:"model"`

	// System is the agent's instructions.
	System string `json:"system,omitempty"`

	// Messages is the transcript in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools are offered to the model for this call.
	Tools []Tool `json:"-"`

	// Temperature is passed through unchanged; 0 is deterministic.
	Temperature float32 `json:"temperature"`

	// MaxTokens limits the response; 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionMessage is one transcript entry.
//
// Role is "user", "assistant" or "tool". Assistant messages may carry
// ToolCalls; tool messages carry the matching ToolResults.
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk is one element of a streamed response.
type CompletionChunk struct {
	// Text is a fragment of the response text.
	Text string `json:"text,omitempty"`

	// ToolCall is a complete tool request, emitted once its arguments have
	// fully streamed.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done marks successful completion of the stream.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`

	// InputTokens and OutputTokens are set on the final chunk when the
	// provider reports usage.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Tool is something the model can call.
type Tool interface {
	// Name is unique among the tools offered in one request.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema is a JSON Schema object describing the arguments.
	Schema() json.RawMessage

	// Execute runs the tool. A returned error is reported to the model as
	// a failed result; it does not abort the run.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the outcome of a tool call.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}
