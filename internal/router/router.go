// Package router turns inbound chat events into agent runs and replies.
//
// Each event moves through RECEIVED, HISTORY_UPDATED, AGENT_INVOKED,
// REPLY_FORMATTED and SENT. A failure at any step ends the event; a failed
// agent run is answered with an apology and leaves no assistant turn in
// the history.
package router

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/haasonsaas/mcpbot/internal/channels/chunk"
	"github.com/haasonsaas/mcpbot/internal/conversation"
	"github.com/haasonsaas/mcpbot/internal/gateway"
	"github.com/haasonsaas/mcpbot/internal/observability"
	"github.com/haasonsaas/mcpbot/pkg/models"
)

// PlainReplyLimit is the reply length, in characters, from which replies
// are sent as an expandable HTML blockquote instead of plain text.
const PlainReplyLimit = 200

// Agent runs the agent on a conversation window. *gateway.Gateway
// implements it.
type Agent interface {
	Run(ctx context.Context, input gateway.Input) (string, error)
}

// Sender delivers replies to the chat transport.
type Sender interface {
	Send(ctx context.Context, msg *models.OutboundMessage) error
}

// Config configures a Router.
type Config struct {
	// BotUsername is shown in the /help text.
	BotUsername string

	// Window is how many recent turns are submitted per run. Defaults to
	// conversation.DefaultWindow.
	Window int

	// ChunkLimit bounds a single outbound message. Defaults to the
	// Telegram limit.
	ChunkLimit int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Router routes inbound events. It is safe for concurrent use; events of
// the same conversation are processed one at a time.
type Router struct {
	store   *conversation.Store
	locker  conversation.Locker
	agent   Agent
	sender  Sender
	config  Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New creates a router. locker may be nil, in which case a process-local
// locker is used.
func New(store *conversation.Store, locker conversation.Locker, agent Agent, sender Sender, cfg Config) *Router {
	if locker == nil {
		locker = conversation.NewLocalLocker()
	}
	if cfg.Window <= 0 {
		cfg.Window = conversation.DefaultWindow
	}
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = chunk.TelegramLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:   store,
		locker:  locker,
		agent:   agent,
		sender:  sender,
		config:  cfg,
		logger:  logger.With("component", "router"),
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}
}

// HandleMessage processes one inbound message event end to end.
func (r *Router) HandleMessage(ctx context.Context, event *models.InboundEvent) {
	if event == nil || event.ConversationID == 0 || strings.TrimSpace(event.Text) == "" {
		r.logger.WarnContext(ctx, "ignoring event without chat or text")
		r.metrics.EventReceived("ignored")
		return
	}

	ctx, logger := r.eventContext(ctx, event)
	ctx, span := r.tracer.TraceEvent(ctx, int64(event.ConversationID))
	defer span.End()

	id := event.ConversationID
	if err := r.locker.Lock(ctx, id); err != nil {
		logger.WarnContext(ctx, "conversation lock not acquired", "error", err)
		r.metrics.EventReceived("failed")
		r.tracer.RecordError(span, err)
		return
	}
	defer r.locker.Unlock(id)

	r.store.Append(id, models.UserTurn(event.Text))
	window := r.store.Recent(id, r.config.Window)
	r.metrics.SetConversations(r.store.Conversations())
	logger.DebugContext(ctx, "history updated", "window", len(window), "history", r.store.Len(id))

	start := time.Now()
	output, err := r.agent.Run(ctx, gateway.TurnsInput(window))
	if err != nil {
		logger.ErrorContext(ctx, "agent run failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		r.metrics.EventReceived("failed")
		r.tracer.RecordError(span, err)
		r.send(ctx, logger, &models.OutboundMessage{
			ConversationID: id,
			ReplyTo:        event.MessageID,
			Text:           fmt.Sprintf("I'm sorry, I encountered an error: %v", err),
			Format:         models.FormatPlain,
		})
		return
	}

	r.store.Append(id, models.AssistantTurn(output))
	msgs := r.formatReply(id, event.MessageID, output)
	r.tracer.SetAttributes(span,
		"reply.chars", utf8.RuneCountInString(output),
		"reply.messages", len(msgs),
	)
	for _, msg := range msgs {
		if err := r.send(ctx, logger, msg); err != nil {
			r.metrics.EventReceived("failed")
			r.tracer.RecordError(span, err)
			return
		}
	}
	r.metrics.EventReceived("handled")
	logger.InfoContext(ctx, "reply sent",
		"reply_chars", utf8.RuneCountInString(output),
		"duration_ms", time.Since(start).Milliseconds())
}

// formatReply renders output as outbound messages. Short replies are
// plain text; longer ones are escaped and wrapped in an expandable
// blockquote, one per chunk.
func (r *Router) formatReply(id models.ConversationID, replyTo int, output string) []*models.OutboundMessage {
	if utf8.RuneCountInString(output) < PlainReplyLimit {
		return []*models.OutboundMessage{{
			ConversationID: id,
			ReplyTo:        replyTo,
			Text:           output,
			Format:         models.FormatPlain,
		}}
	}
	parts := chunk.Text(output, r.config.ChunkLimit)
	msgs := make([]*models.OutboundMessage, 0, len(parts))
	for _, part := range parts {
		msgs = append(msgs, &models.OutboundMessage{
			ConversationID: id,
			ReplyTo:        replyTo,
			Text:           "<blockquote expandable>" + html.EscapeString(part) + "</blockquote>",
			Format:         models.FormatHTML,
		})
	}
	return msgs
}

func (r *Router) send(ctx context.Context, logger *slog.Logger, msg *models.OutboundMessage) error {
	start := time.Now()
	if err := r.sender.Send(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "failed to send reply", "error", err, "format", msg.Format)
		r.metrics.RecordError("router", "send")
		return err
	}
	r.metrics.ReplySent(string(msg.Format), time.Since(start).Seconds())
	return nil
}

// eventContext tags ctx with a fresh request id and the chat id. The log
// handler adds both to every record logged with ctx, including records
// from the gateway and the agent runner.
func (r *Router) eventContext(ctx context.Context, event *models.InboundEvent) (context.Context, *slog.Logger) {
	ctx = observability.AddRequestID(ctx, uuid.NewString())
	ctx = observability.AddConversationID(ctx, int64(event.ConversationID))
	return ctx, r.logger.With("message_id", event.MessageID)
}
