package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/mcpbot/internal/agent"
	"github.com/haasonsaas/mcpbot/internal/agent/providers"
	"github.com/haasonsaas/mcpbot/internal/config"
	"github.com/haasonsaas/mcpbot/internal/gateway"
	"github.com/haasonsaas/mcpbot/internal/mcp"
	"github.com/haasonsaas/mcpbot/internal/observability"
	"github.com/haasonsaas/mcpbot/internal/tools/telegraph"
	"github.com/haasonsaas/mcpbot/internal/tools/websearch"
)

// app holds the components shared by the commands.
type app struct {
	logger         *slog.Logger
	registry       *prometheus.Registry
	metrics        *observability.Metrics
	tracer         *observability.Tracer
	shutdownTracer func(context.Context) error
	servers        *mcp.Manager
	gateway        *gateway.Gateway
}

func newApp(cfg *config.Config, withServers bool) (*app, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Secrets: []string{cfg.Telegram.Token, cfg.LLM.APIKey},
	})
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "mcpbot",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	var serverConfigs []*mcp.ServerConfig
	if withServers {
		loaded, err := config.LoadServers(cfg.ServersConfig)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("servers config not found, running without MCP servers", "path", cfg.ServersConfig)
		case err != nil:
			return nil, err
		default:
			serverConfigs = loaded
		}
	}
	servers := mcp.NewManager(serverConfigs, logger)
	servers.SetRecorder(metrics)

	provider := providers.NewOpenAIProvider(providers.OpenAIConfig{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.LLM.Model,
	})

	var tools []agent.Tool
	if cfg.Tools.WebFetch {
		tools = append(tools, websearch.NewWebFetchTool(nil))
	}
	if cfg.Tools.WebSearch {
		tools = append(tools, websearch.NewSearchTool(nil))
	}
	if cfg.Tools.TelegraphPublish {
		tools = append(tools, telegraph.NewPublishTool(&telegraph.Config{
			BaseURL:    cfg.Tools.TelegraphURL,
			AuthorName: cfg.Telegram.Username,
		}))
	}

	gw := gateway.New(provider, servers, gateway.Config{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Summary: agent.SummaryConfig{
			Model:    cfg.LLM.SummaryModel,
			Language: cfg.LLM.SummaryLanguage,
			Length:   cfg.LLM.SummaryLength,
		},
		Tools:       tools,
		MaxTurns:    cfg.LLM.MaxTurns,
		ToolTimeout: cfg.LLM.ToolTimeout,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      tracer,
	})

	return &app{
		logger:         logger,
		registry:       registry,
		metrics:        metrics,
		tracer:         tracer,
		shutdownTracer: shutdown,
		servers:        servers,
		gateway:        gw,
	}, nil
}
