// Package gateway is the facade the chat layer uses to run the agent. It
// owns the main and summary agents and the lifecycle of the MCP tool
// servers whose tools the main agent can call.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/mcpbot/internal/agent"
	"github.com/haasonsaas/mcpbot/internal/observability"
	"github.com/haasonsaas/mcpbot/pkg/models"
)

// MainAgentName is the name of the agent every run starts with.
const MainAgentName = "Telegram Bot Agent"

const mainInstructions = "You are a helpful assistant. Handoff to the summary agent when you need to summarize."

// ToolServers is the set of external tool servers the main agent uses.
// *mcp.Manager implements it.
type ToolServers interface {
	ConnectAll(ctx context.Context) map[string]error
	Tools() []agent.Tool
	CloseAll()
}

// Config configures a Gateway.
type Config struct {
	// Model and Temperature apply to the main agent.
	Model       string
	Temperature float32

	// Summary configures the summary sub-agent. An empty model falls back
	// to Model.
	Summary agent.SummaryConfig

	// Tools are built-in tools given to the main agent.
	Tools []agent.Tool

	MaxTurns    int
	ToolTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Gateway runs the agent for callers. It holds no per-conversation state
// and is safe for concurrent Run calls.
type Gateway struct {
	main    *agent.Agent
	summary *agent.Agent
	runner  *agent.Runner
	servers ToolServers
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	connected bool
}

// New creates a gateway. servers may be nil when no tool servers are
// configured.
func New(provider agent.LLMProvider, servers ToolServers, cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	summaryCfg := cfg.Summary
	if summaryCfg.Model == "" {
		summaryCfg.Model = cfg.Model
	}
	summary := agent.NewSummaryAgent(summaryCfg)

	main := agent.New(MainAgentName, mainInstructions)
	main.Model = cfg.Model
	main.Temperature = cfg.Temperature
	main.Tools.Register(cfg.Tools...)
	main.Handoffs = []*agent.Agent{summary}

	return &Gateway{
		main:    main,
		summary: summary,
		runner: agent.NewRunner(provider, agent.RunnerConfig{
			MaxTurns:    cfg.MaxTurns,
			ToolTimeout: cfg.ToolTimeout,
			Logger:      logger,
			Metrics:     cfg.Metrics,
			Tracer:      cfg.Tracer,
		}),
		servers: servers,
		logger:  logger.With("component", "gateway"),
		metrics: cfg.Metrics,
	}
}

// Connect starts every tool server and registers the discovered tools on
// the main agent. A server that fails is logged and skipped; Connect
// itself only fails when ctx is done.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connected {
		return nil
	}
	if g.servers == nil {
		g.connected = true
		return nil
	}

	failed := g.servers.ConnectAll(ctx)
	for name, err := range failed {
		g.logger.ErrorContext(ctx, "tool server unavailable", "server", name, "error", err)
		g.metrics.RecordError("gateway", "tool_server_connect")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tools := g.servers.Tools()
	g.main.Tools.Register(tools...)
	g.connected = true
	g.logger.InfoContext(ctx, "agent ready",
		"agent", g.main.Name,
		"tools", g.main.Tools.Len(),
		"server_tools", len(tools),
		"failed_servers", len(failed),
	)
	return nil
}

// Input is what a run consumes: a single prompt or an ordered turn list.
type Input interface {
	messages() []agent.CompletionMessage
}

// PromptInput is a single user prompt.
type PromptInput string

func (p PromptInput) messages() []agent.CompletionMessage {
	if p == "" {
		return nil
	}
	return []agent.CompletionMessage{{Role: string(models.RoleUser), Content: string(p)}}
}

// TurnsInput is a conversation window in chronological order.
type TurnsInput []models.Turn

func (t TurnsInput) messages() []agent.CompletionMessage {
	return agent.MessagesFromTurns(t)
}

// Run executes one complete agent run and returns the final text.
func (g *Gateway) Run(ctx context.Context, input Input) (string, error) {
	if input == nil {
		return "", agent.ErrEmptyInput
	}
	msgs := input.messages()
	if len(msgs) == 0 {
		return "", agent.ErrEmptyInput
	}

	start := time.Now()
	result, err := g.runner.Run(ctx, g.main, msgs)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			g.metrics.RecordError("gateway", errorType(err))
		}
		return "", fmt.Errorf("agent run: %w", err)
	}
	g.logger.DebugContext(ctx, "agent run complete",
		"last_agent", result.LastAgent,
		"turns", result.Turns,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result.Output, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, agent.ErrMaxTurns):
		return "max_turns"
	case errors.Is(err, agent.ErrEmptyOutput):
		return "empty_output"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "run"
	}
}

// Cleanup closes every tool server. Failures are logged by the server set
// and never returned.
func (g *Gateway) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.servers != nil {
		g.servers.CloseAll()
	}
	g.connected = false
	g.logger.Info("tool servers closed")
}
