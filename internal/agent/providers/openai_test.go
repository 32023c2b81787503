package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/mcpbot/internal/agent"
	"github.com/haasonsaas/mcpbot/pkg/models"
)

type stubTool struct{ name string }

func (s stubTool) Name() string            { return s.name }
func (s stubTool) Description() string     { return "stub " + s.name }
func (s stubTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`) }
func (s stubTool) Execute(context.Context, json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: "ok"}, nil
}

// sseServer answers chat completions with the given SSE events and records
// the last request body.
func sseServer(t *testing.T, events []string, body *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if body != nil {
			*body, _ = io.ReadAll(r.Body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, event := range events {
			fmt.Fprintf(w, "data: %s\n\n", event)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collectChunks(t *testing.T, ch <-chan *agent.CompletionChunk) (string, []*models.ToolCall, *agent.CompletionChunk) {
	t.Helper()
	var text strings.Builder
	var calls []*models.ToolCall
	var last *agent.CompletionChunk
	for chunk := range ch {
		text.WriteString(chunk.Text)
		if chunk.ToolCall != nil {
			calls = append(calls, chunk.ToolCall)
		}
		last = chunk
	}
	return text.String(), calls, last
}

func TestOpenAIProviderStreamsText(t *testing.T) {
	var body []byte
	srv := sseServer(t, []string{
		`{"id":"1","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"1","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
	}, &body)

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		System:   "be nice",
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	text, calls, last := collectChunks(t, ch)
	if text != "Hello" {
		t.Errorf("text = %q, want %q", text, "Hello")
	}
	if len(calls) != 0 {
		t.Errorf("tool calls = %d, want 0", len(calls))
	}
	if last == nil || !last.Done || last.Error != nil {
		t.Fatalf("last chunk = %+v, want Done", last)
	}

	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Model != DefaultOpenAIModel {
		t.Errorf("model = %q, want %q", req.Model, DefaultOpenAIModel)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("messages = %+v, want system then user", req.Messages)
	}
	if req.StreamOptions != nil {
		t.Error("stream_options sent to a proxy base URL")
	}
	if req.Temperature == 0 {
		t.Error("temperature 0 was dropped from the request")
	}
}

func TestOpenAIProviderToolCallsInIndexOrder(t *testing.T) {
	srv := sseServer(t, []string{
		`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"second","arguments":""}}]}}]}`,
		`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"first","arguments":"{\"q\":"}}]}}]}`,
		`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}`,
		`{"id":"1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	}, nil)

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Model:    "gpt-test",
		Messages: []agent.CompletionMessage{{Role: "user", Content: "search"}},
		Tools:    []agent.Tool{stubTool{name: "first"}, stubTool{name: "second"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	_, calls, last := collectChunks(t, ch)
	if !last.Done {
		t.Fatalf("last chunk = %+v, want Done", last)
	}
	if len(calls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(calls))
	}
	if calls[0].Name != "first" || calls[1].Name != "second" {
		t.Errorf("order = %s, %s; want first, second", calls[0].Name, calls[1].Name)
	}
	if string(calls[0].Input) != `{"q":"go"}` {
		t.Errorf("first input = %s", calls[0].Input)
	}
	if string(calls[1].Input) != `{}` {
		t.Errorf("second input = %s, want {}", calls[1].Input)
	}
}

func TestOpenAIProviderRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, RetryDelay: time.Millisecond})
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	text, _, _ := collectChunks(t, ch)
	if text != "ok" {
		t.Errorf("text = %q, want ok", text)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestOpenAIProviderDoesNotRetryAuthErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, RetryDelay: time.Millisecond})
	_, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if providerErr.Reason != ReasonAuth {
		t.Errorf("reason = %s, want %s", providerErr.Reason, ReasonAuth)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestOpenAIProviderWithoutKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	if _, err := p.Complete(context.Background(), &agent.CompletionRequest{}); err == nil {
		t.Fatal("Complete() without API key should fail")
	}
	if p.DefaultModel() != DefaultOpenAIModel {
		t.Errorf("DefaultModel() = %q", p.DefaultModel())
	}
}

func TestWireTemperature(t *testing.T) {
	if got := wireTemperature(0); got != math.SmallestNonzeroFloat32 {
		t.Errorf("wireTemperature(0) = %v", got)
	}
	if got := wireTemperature(0.7); got != 0.7 {
		t.Errorf("wireTemperature(0.7) = %v", got)
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	msgs := convertToOpenAIMessages([]agent.CompletionMessage{
		{Role: "user", Content: "weather?"},
		{Role: "assistant", ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "a", Input: json.RawMessage(`{}`)},
			{ID: "c2", Name: "b", Input: json.RawMessage(`{}`)},
		}},
		{Role: "tool", ToolResults: []models.ToolResult{
			{ToolCallID: "c1", Content: "sunny"},
			{ToolCallID: "c2", Content: "boom", IsError: true},
		}},
	}, "")

	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if len(msgs[1].ToolCalls) != 2 || msgs[1].ToolCalls[1].Function.Name != "b" {
		t.Errorf("assistant tool calls = %+v", msgs[1].ToolCalls)
	}
	if msgs[2].ToolCallID != "c1" || msgs[2].Content != "sunny" {
		t.Errorf("first tool message = %+v", msgs[2])
	}
	if msgs[3].Content != "Error: boom" {
		t.Errorf("error tool message = %q", msgs[3].Content)
	}
}
