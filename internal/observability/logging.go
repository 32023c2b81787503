package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures the process logger.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" or "text".
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer

	// AddSource includes file and line number in log records.
	AddSource bool

	// RedactPatterns are appended to DefaultRedactPatterns.
	RedactPatterns []string

	// Secrets are literal values (bot token, API keys) masked wherever they appear.
	Secrets []string
}

// ContextKey is the type for context keys read by the log handler.
type ContextKey string

const (
	// RequestIDKey carries the id of the inbound event being handled.
	RequestIDKey ContextKey = "request_id"

	// ConversationIDKey carries the chat id of the inbound event.
	ConversationIDKey ContextKey = "conversation_id"
)

const redacted = "[REDACTED]"

// DefaultRedactPatterns contains regex patterns for common sensitive data.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,

	// OpenAI keys
	`sk-[a-zA-Z0-9_\-]{32,}`,

	// Telegram bot tokens, including the ones embedded in api.telegram.org URLs
	`[0-9]{6,12}:[a-zA-Z0-9_\-]{30,}`,
}

// NewLogger builds a slog.Logger that masks secrets. Records logged with a
// *Context method carry the request, conversation and trace ids found in
// the context.
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return slog.New(&redactingHandler{
		next:    handler,
		redacts: compilePatterns(config.RedactPatterns),
		secrets: nonEmpty(config.Secrets),
	})
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AddRequestID adds a request ID to the context.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// AddConversationID adds a conversation (chat) ID to the context.
func AddConversationID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ConversationIDKey, id)
}

// GetRequestID returns the request ID stored in ctx, if any.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func compilePatterns(extra []string) []*regexp.Regexp {
	patterns := append(append([]string{}, DefaultRedactPatterns...), extra...)
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if re, err := regexp.Compile(pattern); err == nil {
			out = append(out, re)
		}
	}
	return out
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// redactingHandler masks secrets in messages and string attributes before
// handing records to the wrapped handler.
type redactingHandler struct {
	next    slog.Handler
	redacts []*regexp.Regexp
	secrets []string
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactString(record.Message), record.PC)
	if ctx != nil {
		if id := GetRequestID(ctx); id != "" {
			out.AddAttrs(slog.String(string(RequestIDKey), id))
		}
		if id, ok := ctx.Value(ConversationIDKey).(int64); ok {
			out.AddAttrs(slog.Int64(string(ConversationIDKey), id))
		}
		if id := GetTraceID(ctx); id != "" {
			out.AddAttrs(slog.String("trace_id", id))
		}
	}
	record.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(h.redactAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		clean[i] = h.redactAttr(attr)
	}
	return &redactingHandler{next: h.next.WithAttrs(clean), redacts: h.redacts, secrets: h.secrets}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name), redacts: h.redacts, secrets: h.secrets}
}

func (h *redactingHandler) redactAttr(attr slog.Attr) slog.Attr {
	if isSensitiveKey(attr.Key) {
		return slog.String(attr.Key, redacted)
	}
	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, h.redactString(value.String()))
	case slog.KindGroup:
		group := value.Group()
		clean := make([]any, len(group))
		for i, a := range group {
			clean[i] = h.redactAttr(a)
		}
		return slog.Group(attr.Key, clean...)
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return slog.String(attr.Key, h.redactString(err.Error()))
		}
	}
	return attr
}

func (h *redactingHandler) redactString(s string) string {
	for _, secret := range h.secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	for _, re := range h.redacts {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.ReplaceAll(key, "-", "_")) {
	case "password", "passwd", "secret", "token", "api_key", "apikey", "authorization", "bot_token":
		return true
	}
	return false
}
