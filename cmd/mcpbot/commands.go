package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/mcpbot/internal/bot"
	"github.com/haasonsaas/mcpbot/internal/channels/telegram"
	"github.com/haasonsaas/mcpbot/internal/config"
	"github.com/haasonsaas/mcpbot/internal/conversation"
	"github.com/haasonsaas/mcpbot/internal/gateway"
	"github.com/haasonsaas/mcpbot/internal/router"
)

const shutdownTimeout = 30 * time.Second

type globalOptions struct {
	configPath string
	envFile    string
}

func (o *globalOptions) load() (*config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// buildServeCmd creates the "serve" command that runs the bot.
func buildServeCmd(opts *globalOptions) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Run the Telegram bot until SIGINT or SIGTERM.

Startup order:
1. Verify the bot token and start long polling
2. Connect every configured MCP server (failures are logged and skipped)
3. Register the /start, /help and /reset commands and the message handler
4. Serve /metrics and /healthz when METRICS_ADDR is set`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if debug {
				cfg.Logging.Level = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	app, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	app.logger.Info("starting mcpbot",
		"version", version,
		"commit", commit,
		"model", cfg.LLM.Model,
		"tool_servers", len(app.servers.Servers()),
		"proxy", cfg.LLM.Proxy,
	)

	adapter, err := telegram.NewAdapter(telegram.Config{
		Token:       cfg.Telegram.Token,
		Username:    cfg.Telegram.Username,
		ServerURL:   cfg.Telegram.ServerURL,
		PollTimeout: cfg.Telegram.PollTimeout,
		Logger:      app.logger,
		Metrics:     app.metrics,
	})
	if err != nil {
		return err
	}

	rt := router.New(conversation.NewStore(), conversation.NewLocalLocker(), app.gateway, adapter, router.Config{
		BotUsername: cfg.Telegram.Username,
		Logger:      app.logger,
		Metrics:     app.metrics,
		Tracer:      app.tracer,
	})

	process := bot.New(adapter, app.gateway, rt, bot.Config{
		MetricsAddr:    cfg.Metrics.Addr,
		Gatherer:       app.registry,
		TracerShutdown: app.shutdownTracer,
		Logger:         app.logger,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return process.Run(ctx, shutdownTimeout)
}

// buildPromptCmd creates the "prompt" command that runs the agent once.
func buildPromptCmd(opts *globalOptions) *cobra.Command {
	var noServers bool
	cmd := &cobra.Command{
		Use:   "prompt <text>",
		Short: "Run the agent once and print the answer",
		Example: `  mcpbot prompt "Summarize https://go.dev/blog/go1.24"
  echo "What is MCP?" | mcpbot prompt -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateLLM(); err != nil {
				return err
			}
			return runPrompt(cmd.Context(), cmd.OutOrStdout(), cfg, strings.TrimSpace(text), !noServers)
		},
	}
	cmd.Flags().BoolVar(&noServers, "no-servers", false, "Do not start MCP servers")
	return cmd
}

func runPrompt(ctx context.Context, out io.Writer, cfg *config.Config, text string, withServers bool) error {
	app, err := newApp(cfg, withServers)
	if err != nil {
		return err
	}
	defer app.shutdownTracer(context.Background()) //nolint:errcheck

	if err := app.gateway.Connect(ctx); err != nil {
		return err
	}
	defer app.gateway.Cleanup()

	answer, err := app.gateway.Run(ctx, gateway.PromptInput(text))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, answer)
	return err
}

// buildServersCmd creates the "servers" command that lists tool servers.
func buildServersCmd(opts *globalOptions) *cobra.Command {
	var connect bool
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List the configured MCP servers",
		Long:  "List the configured MCP servers. With --connect each server is started and its tools are listed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runServers(cmd.Context(), cmd.OutOrStdout(), cfg, connect)
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "Start each server and list its tools")
	return cmd
}

func runServers(ctx context.Context, out io.Writer, cfg *config.Config, connect bool) error {
	servers, err := config.LoadServers(cfg.ServersConfig)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(out, "No servers config at %s\n", cfg.ServersConfig)
			return nil
		}
		return err
	}
	if len(servers) == 0 {
		fmt.Fprintln(out, "No MCP servers configured.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if !connect {
		fmt.Fprintln(w, "NAME\tCOMMAND\tARGS")
		for _, s := range servers {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Command, strings.Join(s.Args, " "))
		}
		return w.Flush()
	}

	app, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	failed := app.servers.ConnectAll(ctx)
	defer app.servers.CloseAll()

	fmt.Fprintln(w, "NAME\tSTATUS\tSERVER\tTOOLS")
	for _, status := range app.servers.Status() {
		state := "connected"
		if err, ok := failed[status.Name]; ok {
			state = "failed: " + err.Error()
		}
		server := strings.TrimSpace(status.Server.Name + " " + status.Server.Version)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", status.Name, state, server, status.Tools)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, tool := range app.servers.Tools() {
		fmt.Fprintf(out, "  %s: %s\n", tool.Name(), tool.Description())
	}
	return nil
}
