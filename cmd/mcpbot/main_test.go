package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/mcpbot/internal/config"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "prompt", "servers"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestRunServersList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers_config.json")
	doc := `{"mcpServers": {"time": {"command": "uvx", "args": ["mcp-server-time", "--local-timezone=Asia/Taipei"]}}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runServers(context.Background(), &out, &config.Config{ServersConfig: path}, false); err != nil {
		t.Fatalf("runServers() error = %v", err)
	}
	if !strings.Contains(out.String(), "time") || !strings.Contains(out.String(), "mcp-server-time --local-timezone=Asia/Taipei") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunServersMissingFile(t *testing.T) {
	var out bytes.Buffer
	cfg := &config.Config{ServersConfig: filepath.Join(t.TempDir(), "missing.json")}
	if err := runServers(context.Background(), &out, cfg, false); err != nil {
		t.Fatalf("runServers() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "No servers config") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hello", " from", " the agent"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	cfg := &config.Config{
		LLM: config.LLMConfig{
			APIKey:   "sk-test",
			BaseURL:  srv.URL + "/v1",
			Model:    config.DefaultModel,
			MaxTurns: config.DefaultMaxTurns,
		},
		Logging: config.LoggingConfig{Level: "error"},
	}

	var out bytes.Buffer
	if err := runPrompt(context.Background(), &out, cfg, "hi", false); err != nil {
		t.Fatalf("runPrompt() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "Hello from the agent" {
		t.Errorf("answer = %q", got)
	}
}
