// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML overlay file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Sentinel errors returned by Validate.
var (
	ErrMissingToken    = errors.New("TELEGRAM_BOT_TOKEN is required")
	ErrMissingUsername = errors.New("BOT_USERNAME is required")
	ErrMissingAPIKey   = errors.New("OPENAI_API_KEY or CHATAI_API_KEY is required")
)

// Defaults.
const (
	DefaultModel         = "gpt-4o-mini"
	DefaultServersConfig = "servers_config.json"
	DefaultMaxTurns      = 10
)

// Config is the complete process configuration.
type Config struct {
	Telegram      TelegramConfig `yaml:"telegram"`
	LLM           LLMConfig      `yaml:"llm"`
	ServersConfig string         `yaml:"servers_config"`
	Tools         ToolsConfig    `yaml:"tools"`
	Logging       LoggingConfig  `yaml:"logging"`
	Metrics       MetricsConfig  `yaml:"metrics"`
	Tracing       TracingConfig  `yaml:"tracing"`
}

// TelegramConfig configures the bot account.
type TelegramConfig struct {
	Token       string        `yaml:"token"`
	Username    string        `yaml:"username"`
	ServerURL   string        `yaml:"server_url"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// LLMConfig configures the OpenAI-compatible backend and the agents.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`

	// Proxy is set when the key came from CHATAI_API_KEY. Tracing export
	// is disabled in proxy mode.
	Proxy bool `yaml:"-"`

	SummaryModel    string `yaml:"summary_model"`
	SummaryLanguage string `yaml:"summary_language"`
	SummaryLength   int    `yaml:"summary_length"`

	MaxTurns    int           `yaml:"max_turns"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// ToolsConfig toggles the built-in tools.
type ToolsConfig struct {
	WebFetch  bool `yaml:"web_fetch"`
	WebSearch bool `yaml:"web_search"`

	TelegraphPublish bool   `yaml:"telegraph_publish"`
	TelegraphURL     string `yaml:"telegraph_url"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the /metrics server. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TracingConfig configures OTLP trace export. Empty Endpoint disables it.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// LoadDotEnv loads variables from the given files into the environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Load builds a Config from defaults, the YAML file at path (optional)
// and the environment, in increasing precedence. It does not validate.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:    DefaultModel,
			MaxTurns: DefaultMaxTurns,
		},
		ServersConfig: DefaultServersConfig,
		Tools:         ToolsConfig{WebFetch: true, WebSearch: true, TelegraphPublish: true},
		Logging:       LoggingConfig{Level: "info", Format: "text"},
		Tracing:       TracingConfig{Insecure: true, SamplingRate: 1.0},
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.Username, "BOT_USERNAME")
	cfg.Telegram.Username = strings.TrimPrefix(strings.TrimSpace(cfg.Telegram.Username), "@")

	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.Model, "OPENAI_MODEL")
	setString(&cfg.LLM.SummaryModel, "SUMMARY_MODEL")
	if key := strings.TrimSpace(os.Getenv("CHATAI_API_KEY")); key != "" {
		cfg.LLM.APIKey = key
		cfg.LLM.Proxy = true
		setString(&cfg.LLM.BaseURL, "OPENAI_PROXY_BASE_URL")
	}
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); raw != "" {
		temp, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return fmt.Errorf("OPENAI_TEMPERATURE: %w", err)
		}
		cfg.LLM.Temperature = float32(temp)
	}

	setString(&cfg.ServersConfig, "MCP_SERVERS_CONFIG")
	setString(&cfg.Tools.TelegraphURL, "TELEGRAPH_API_URL")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Metrics.Addr, "METRICS_ADDR")
	setString(&cfg.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if cfg.LLM.Proxy {
		cfg.Tracing.Endpoint = ""
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate checks everything the serve command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, ErrMissingToken)
	}
	if c.Telegram.Username == "" {
		errs = append(errs, ErrMissingUsername)
	}
	if err := c.ValidateLLM(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateLLM checks only the agent backend settings.
func (c *Config) ValidateLLM() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("max_turns must be >= 0"))
	}
	return errors.Join(errs...)
}
