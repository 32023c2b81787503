package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "BOT_USERNAME", "OPENAI_API_KEY", "OPENAI_MODEL",
	"OPENAI_PROXY_BASE_URL", "CHATAI_API_KEY", "OPENAI_TEMPERATURE", "SUMMARY_MODEL",
	"MCP_SERVERS_CONFIG", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"TELEGRAPH_API_URL",
}

// clearEnv unsets every config variable for the test. t.Setenv registers
// the restore; the variable must then be absent, not empty, for godotenv
// to apply a value from a file.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != DefaultModel || cfg.LLM.Temperature != 0 || cfg.LLM.MaxTurns != DefaultMaxTurns {
		t.Errorf("llm defaults = %+v", cfg.LLM)
	}
	if cfg.ServersConfig != DefaultServersConfig {
		t.Errorf("servers config = %q", cfg.ServersConfig)
	}
	if !cfg.Tools.WebFetch || !cfg.Tools.WebSearch || !cfg.Tools.TelegraphPublish || cfg.Tools.TelegraphURL != "" {
		t.Errorf("tools = %+v", cfg.Tools)
	}
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BOT_USERNAME", "@mcp_bot")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("OPENAI_TEMPERATURE", "0.7")
	t.Setenv("SUMMARY_MODEL", "gpt-4o-mini")
	t.Setenv("MCP_SERVERS_CONFIG", "/etc/mcpbot/servers.json5")
	t.Setenv("METRICS_ADDR", ":9090")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TELEGRAPH_API_URL", "http://telegraph.internal")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tools.TelegraphURL != "http://telegraph.internal" {
		t.Errorf("telegraph url = %q", cfg.Tools.TelegraphURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.Username != "mcp_bot" {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.LLM.Model != "gpt-4o" || cfg.LLM.SummaryModel != "gpt-4o-mini" || cfg.LLM.Temperature != float32(0.7) {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.Proxy || cfg.LLM.BaseURL != "" {
		t.Errorf("unexpected proxy mode: %+v", cfg.LLM)
	}
	if cfg.ServersConfig != "/etc/mcpbot/servers.json5" || cfg.Metrics.Addr != ":9090" || cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadProxyMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-direct")
	t.Setenv("CHATAI_API_KEY", "proxy-key")
	t.Setenv("OPENAI_PROXY_BASE_URL", "https://proxy.example.com/v1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.LLM.Proxy || cfg.LLM.APIKey != "proxy-key" || cfg.LLM.BaseURL != "https://proxy.example.com/v1" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Tracing.Endpoint != "" {
		t.Errorf("tracing endpoint = %q, want disabled in proxy mode", cfg.Tracing.Endpoint)
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCPBOT_TEST_TOKEN", "from-file-env")
	t.Setenv("OPENAI_MODEL", "env-model")
	path := writeFile(t, "mcpbot.yaml", `
telegram:
  token: ${MCPBOT_TEST_TOKEN}
  username: file_bot
  poll_timeout: 30s
llm:
  model: file-model
  summary_language: English
  summary_length: 300
tools:
  web_search: false
  telegraph_publish: false
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Telegram.Token != "from-file-env" || cfg.Telegram.Username != "file_bot" || cfg.Telegram.PollTimeout != 30*time.Second {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("model = %q, want env override", cfg.LLM.Model)
	}
	if cfg.LLM.SummaryLanguage != "English" || cfg.LLM.SummaryLength != 300 {
		t.Errorf("summary = %+v", cfg.LLM)
	}
	if cfg.Tools.WebSearch || !cfg.Tools.WebFetch || cfg.Tools.TelegraphPublish {
		t.Errorf("tools = %+v", cfg.Tools)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name:  "missing file",
			setup: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
		},
		{
			name:  "unknown field",
			setup: func(t *testing.T) string { return writeFile(t, "bad.yaml", "telegram:\n  tokn: x\n") },
		},
		{
			name: "bad temperature",
			setup: func(t *testing.T) string {
				t.Setenv("OPENAI_TEMPERATURE", "warm")
				return ""
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(tt.setup(t)); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	err := cfg.Validate()
	for _, want := range []error{ErrMissingToken, ErrMissingUsername, ErrMissingAPIKey} {
		if !errors.Is(err, want) {
			t.Errorf("Validate() error = %v, want %v", err, want)
		}
	}

	cfg.LLM.APIKey = "sk"
	cfg.LLM.Temperature = 3
	if err := cfg.ValidateLLM(); err == nil {
		t.Error("ValidateLLM() should reject temperature 3")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, ".env", "BOT_USERNAME=dotenv_bot\nLOG_LEVEL=warn\n")
	t.Setenv("LOG_LEVEL", "error")

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("BOT_USERNAME"); got != "dotenv_bot" {
		t.Errorf("BOT_USERNAME = %q", got)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "error" {
		t.Errorf("LOG_LEVEL = %q, want existing value kept", got)
	}
}

func TestLoadServers(t *testing.T) {
	t.Setenv("MCPBOT_TEST_KEY", "secret")
	path := writeFile(t, "servers_config.json", `{
  // comments and unquoted keys are accepted
  mcpServers: {
    "time": {command: "uvx", args: ["mcp-server-time"]},
    "fetch": {
      command: "npx",
      args: ["-y", "@modelcontextprotocol/server-fetch"],
      env: {API_KEY: "${MCPBOT_TEST_KEY}"},
      timeout: "10s"
    }
  }
}`)

	servers, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers() error = %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("servers = %d, want 2", len(servers))
	}
	fetch, tm := servers[0], servers[1]
	if fetch.Name != "fetch" || tm.Name != "time" {
		t.Errorf("names = %s, %s; want sorted", fetch.Name, tm.Name)
	}
	if fetch.Command != "npx" || len(fetch.Args) != 2 || fetch.Env["API_KEY"] != "secret" || fetch.Timeout != 10*time.Second {
		t.Errorf("fetch = %+v", fetch)
	}
	if tm.Command != "uvx" || tm.Args[0] != "mcp-server-time" {
		t.Errorf("time = %+v", tm)
	}
}

func TestLoadServersErrors(t *testing.T) {
	if _, err := LoadServers(filepath.Join(t.TempDir(), "servers_config.json")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file error = %v, want fs.ErrNotExist", err)
	}

	tests := []struct {
		name string
		doc  string
	}{
		{"syntax", `{mcpServers: {`},
		{"no command", `{"mcpServers": {"x": {"args": ["a"]}}}`},
		{"shell metachars", `{"mcpServers": {"x": {"command": "sh", "args": ["a; rm -rf /"]}}}`},
		{"bad timeout", `{"mcpServers": {"x": {"command": "uvx", "timeout": "soon"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseServers([]byte(tt.doc)); err == nil {
				t.Error("ParseServers() should fail")
			}
		})
	}

	servers, err := ParseServers([]byte(`{}`))
	if err != nil || len(servers) != 0 {
		t.Errorf("empty document = %v, %v", servers, err)
	}
}
