// Package main provides the CLI entry point for mcpbot, a Telegram bot that
// answers through an LLM agent with MCP tool servers.
//
// # Basic Usage
//
// Start the bot:
//
//	mcpbot serve
//
// Ask the agent once without Telegram:
//
//	mcpbot prompt "What time is it in Taipei?"
//
// List or probe the configured tool servers:
//
//	mcpbot servers --connect
//
// # Environment Variables
//
//   - TELEGRAM_BOT_TOKEN: Telegram bot token
//   - BOT_USERNAME: bot username, used for mention detection
//   - OPENAI_API_KEY: OpenAI API key
//   - OPENAI_MODEL: chat model (default: gpt-4o-mini)
//   - CHATAI_API_KEY, OPENAI_PROXY_BASE_URL: OpenAI-compatible proxy
//   - MCP_SERVERS_CONFIG: tool server file (default: servers_config.json)
//
// A .env file in the working directory is loaded first when present.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var opts globalOptions

	rootCmd := &cobra.Command{
		Use:   "mcpbot",
		Short: "mcpbot - Telegram bot backed by an LLM agent with MCP tools",
		Long: `mcpbot relays Telegram messages that mention the bot or reply to it
to an LLM agent. The agent can call tools exposed by MCP servers, fetch
web pages, search the web and hand off to a summary agent.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Optional YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env",
		"Dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		buildServeCmd(&opts),
		buildPromptCmd(&opts),
		buildServersCmd(&opts),
	)
	return rootCmd
}
