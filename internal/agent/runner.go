package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/mcpbot/internal/observability"
	"github.com/haasonsaas/mcpbot/pkg/models"
)

// DefaultMaxTurns bounds the number of model calls in one run.
const DefaultMaxTurns = 10

// ErrEmptyOutput indicates the model finished without producing text.
var ErrEmptyOutput = errors.New("agent produced no output")

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// MaxTurns limits model calls per run; defaults to DefaultMaxTurns.
	MaxTurns int

	// ToolTimeout bounds each tool call; zero means no extra bound.
	ToolTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Runner drives an agent until it produces a final answer: it calls the
// model, executes requested tools, follows handoffs and loops.
type Runner struct {
	provider LLMProvider
	config   RunnerConfig
	logger   *slog.Logger
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	// Output is the final assistant text.
	Output string

	// LastAgent is the agent that produced Output.
	LastAgent string

	// Turns is the number of model calls made.
	Turns int

	// Transcript is the full message list, including tool traffic.
	Transcript []CompletionMessage
}

// NewRunner creates a runner over provider.
func NewRunner(provider LLMProvider, config RunnerConfig) *Runner {
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultMaxTurns
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{provider: provider, config: config, logger: logger.With("component", "runner")}
}

// Run executes start against input. input must not be empty.
func (r *Runner) Run(ctx context.Context, start *Agent, input []CompletionMessage) (result *RunResult, err error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}
	if start == nil {
		return nil, errors.New("agent is required")
	}
	if len(input) == 0 {
		return nil, ErrEmptyInput
	}

	ctx, span := r.config.Tracer.TraceAgentRun(ctx, start.Name, len(input))
	defer func() {
		r.config.Tracer.RecordError(span, err)
		span.End()
	}()

	transcript := make([]CompletionMessage, len(input))
	copy(transcript, input)
	current := start

	for turn := 1; turn <= r.config.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, calls, err := r.complete(ctx, current, transcript)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", current.Name, err)
		}

		if len(calls) == 0 {
			output := strings.TrimSpace(text)
			if output == "" {
				return nil, fmt.Errorf("%s: %w", current.Name, ErrEmptyOutput)
			}
			transcript = append(transcript, CompletionMessage{Role: "assistant", Content: text})
			return &RunResult{Output: output, LastAgent: current.Name, Turns: turn, Transcript: transcript}, nil
		}

		transcript = append(transcript, CompletionMessage{Role: "assistant", Content: text, ToolCalls: calls})
		results, next := r.executeTools(ctx, current, calls)
		transcript = append(transcript, CompletionMessage{Role: "tool", ToolResults: results})

		if next != nil {
			r.logger.InfoContext(ctx, "agent handoff", "from", current.Name, "to", next.Name)
			current = next
		}
	}

	return nil, fmt.Errorf("%w: %d", ErrMaxTurns, r.config.MaxTurns)
}

// complete makes one streamed model call and collects its text and tool calls.
func (r *Runner) complete(ctx context.Context, a *Agent, transcript []CompletionMessage) (string, []models.ToolCall, error) {
	req := &CompletionRequest{
		Model:       a.Model,
		System:      a.Instructions,
		Messages:    transcript,
		Temperature: a.Temperature,
	}
	if r.provider.SupportsTools() {
		req.Tools = a.offeredTools()
	}

	ctx, span := r.config.Tracer.TraceLLMRequest(ctx, r.provider.Name(), a.Model)
	defer span.End()
	start := time.Now()

	text, calls, inTokens, outTokens, err := collect(ctx, r.provider, req)
	status := "success"
	if err != nil {
		status = "error"
		r.config.Tracer.RecordError(span, err)
	}
	r.config.Metrics.RecordLLMRequest(r.provider.Name(), a.Model, status, time.Since(start).Seconds(), inTokens, outTokens)
	return text, calls, err
}

func collect(ctx context.Context, provider LLMProvider, req *CompletionRequest) (string, []models.ToolCall, int, int, error) {
	stream, err := provider.Complete(ctx, req)
	if err != nil {
		return "", nil, 0, 0, err
	}

	var (
		text      strings.Builder
		calls     []models.ToolCall
		inTokens  int
		outTokens int
	)
	for chunk := range stream {
		if chunk.Error != nil {
			return "", nil, 0, 0, chunk.Error
		}
		text.WriteString(chunk.Text)
		if chunk.ToolCall != nil {
			calls = append(calls, *chunk.ToolCall)
		}
		if chunk.Done {
			inTokens, outTokens = chunk.InputTokens, chunk.OutputTokens
		}
	}
	return text.String(), calls, inTokens, outTokens, nil
}

// executeTools runs calls in order. The first handoff call selects the
// next agent; later handoffs in the same turn are refused.
func (r *Runner) executeTools(ctx context.Context, a *Agent, calls []models.ToolCall) ([]models.ToolResult, *Agent) {
	handoffs := make(map[string]*Agent, len(a.Handoffs))
	for _, target := range a.Handoffs {
		handoffs[HandoffToolName(target)] = target
	}

	var next *Agent
	results := make([]models.ToolResult, 0, len(calls))
	for _, call := range calls {
		if target, ok := handoffs[call.Name]; ok {
			if next != nil {
				results = append(results, models.ToolResult{
					ToolCallID: call.ID,
					Content:    "Multiple handoffs detected, ignoring this one.",
					IsError:    true,
				})
				continue
			}
			next = target
			results = append(results, models.ToolResult{ToolCallID: call.ID, Content: handoffOutput(target)})
			continue
		}

		res := r.executeTool(ctx, a, call)
		results = append(results, models.ToolResult{ToolCallID: call.ID, Content: res.Content, IsError: res.IsError})
	}
	return results, next
}

func (r *Runner) executeTool(ctx context.Context, a *Agent, call models.ToolCall) *ToolResult {
	ctx, span := r.config.Tracer.TraceToolExecution(ctx, call.Name)
	defer span.End()
	if r.config.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ToolTimeout)
		defer cancel()
	}

	start := time.Now()
	registry := a.Tools
	if registry == nil {
		registry = NewToolRegistry()
	}
	res := registry.Execute(ctx, call.Name, call.Input)

	status := "success"
	if res.IsError {
		status = "error"
		r.config.Tracer.RecordError(span, errors.New(res.Content))
		r.logger.WarnContext(ctx, "tool call failed", "agent", a.Name, "tool", call.Name, "error", res.Content)
	}
	r.config.Metrics.RecordToolExecution(call.Name, status, time.Since(start).Seconds())
	return res
}

// MessagesFromTurns converts stored conversation turns to transcript
// messages. Turns with an unknown role are dropped.
func MessagesFromTurns(turns []models.Turn) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(turns))
	for _, turn := range turns {
		if !turn.Role.Valid() {
			continue
		}
		out = append(out, CompletionMessage{Role: string(turn.Role), Content: turn.Content})
	}
	return out
}
