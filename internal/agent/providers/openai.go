package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/mcpbot/internal/agent"
	"github.com/haasonsaas/mcpbot/pkg/models"
)

// DefaultOpenAIModel is used when neither the request nor the config names
// a model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey string

	// BaseURL points the client at an OpenAI-compatible proxy. Empty uses
	// the public API.
	BaseURL string

	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// OpenAIProvider implements agent.LLMProvider for the OpenAI chat
// completions API and compatible proxies.
//
// It is safe for concurrent use. Each Complete call opens its own stream
// and consumes it on a dedicated goroutine.
type OpenAIProvider struct {
	BaseProvider
	client       *openai.Client
	defaultModel string
	usage        bool
}

// NewOpenAIProvider creates a provider. An empty API key yields a provider
// whose Complete always fails.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	p := &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", cfg.MaxRetries, cfg.RetryDelay),
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
		// Proxies frequently reject stream_options.
		usage: cfg.BaseURL == "",
	}
	if p.defaultModel == "" {
		p.defaultModel = DefaultOpenAIModel
	}
	if cfg.APIKey == "" {
		return p
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	p.client = openai.NewClientWithConfig(clientCfg)
	return p
}

// SupportsTools reports that function calling is available.
func (p *OpenAIProvider) SupportsTools() bool {
	return true
}

// DefaultModel returns the model used when a request does not name one.
func (p *OpenAIProvider) DefaultModel() string {
	return p.defaultModel
}

// Complete opens a streaming chat completion. Connection failures are
// retried with linear backoff; errors after the stream opens are delivered
// as a final chunk.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("OpenAI API key not configured")
	}
	if req == nil {
		return nil, errors.New("completion request is required")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertToOpenAIMessages(req.Messages, req.System),
		Stream:      true,
		Temperature: wireTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Tools)
	}
	if p.usage {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	var stream *openai.ChatCompletionStream
	err := p.Retry(ctx, IsRetryable, func() error {
		var err error
		stream, err = p.client.CreateChatCompletionStream(ctx, chatReq)
		return err
	})
	if err != nil {
		return nil, NewProviderError(p.Name(), model, err)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

// wireTemperature maps 0 to the smallest positive float so the field
// survives omitempty and the request stays deterministic.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

type streamReceiver interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream streamReceiver, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	send := func(chunk *agent.CompletionChunk) bool {
		select {
		case chunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	pending := make(map[int]*models.ToolCall)
	flush := func() bool {
		for _, tc := range orderedToolCalls(pending) {
			if !send(&agent.CompletionChunk{ToolCall: tc}) {
				return false
			}
		}
		pending = make(map[int]*models.ToolCall)
		return true
	}

	var inputTokens, outputTokens int
	for {
		if err := ctx.Err(); err != nil {
			send(&agent.CompletionChunk{Error: err})
			return
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if flush() {
					send(&agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
				}
				return
			}
			send(&agent.CompletionChunk{Error: err})
			return
		}

		if response.Usage != nil {
			inputTokens = response.Usage.PromptTokens
			outputTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			if !send(&agent.CompletionChunk{Text: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			call := pending[index]
			if call == nil {
				call = &models.ToolCall{}
				pending[index] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				call.Input = append(call.Input, tc.Function.Arguments...)
			}
		}
		if choice.FinishReason == openai.FinishReasonToolCalls {
			if !flush() {
				return
			}
		}
	}
}

// orderedToolCalls returns complete calls in the order the model issued them.
func orderedToolCalls(pending map[int]*models.ToolCall) []*models.ToolCall {
	indexes := make([]int, 0, len(pending))
	for index := range pending {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	calls := make([]*models.ToolCall, 0, len(indexes))
	for _, index := range indexes {
		tc := pending[index]
		if tc.ID == "" || tc.Name == "" {
			continue
		}
		if len(tc.Input) == 0 {
			tc.Input = json.RawMessage("{}")
		}
		calls = append(calls, tc)
	}
	return calls
}

func convertToOpenAIMessages(messages []agent.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, oaiMsg)

		case "tool":
			// One message per result, linked by call ID.
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    toolResultContent(tr),
					ToolCallID: tr.ToolCallID,
				})
			}

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}
	return result
}

func toolResultContent(tr models.ToolResult) string {
	if tr.IsError {
		return fmt.Sprintf("Error: %s", tr.Content)
	}
	return tr.Content
}

func convertToOpenAITools(tools []agent.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil || schema == nil {
			schema = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schema,
			},
		}
	}
	return result
}
