package router

import (
	"context"
	"fmt"
	"html"

	"github.com/haasonsaas/mcpbot/internal/observability"
	"github.com/haasonsaas/mcpbot/pkg/models"
)

// Command names handled by the router.
const (
	CommandStart = "start"
	CommandHelp  = "help"
	CommandReset = "reset"
)

// Commands returns the command handlers keyed by name.
func (r *Router) Commands() map[string]func(context.Context, *models.InboundEvent) {
	return map[string]func(context.Context, *models.InboundEvent){
		CommandStart: r.HandleStart,
		CommandHelp:  r.HandleHelp,
		CommandReset: r.HandleReset,
	}
}

// HandleStart greets the sender with an HTML mention and asks the client
// to open a reply to the greeting, so the next message reaches the bot.
func (r *Router) HandleStart(ctx context.Context, event *models.InboundEvent) {
	r.reply(ctx, event, &models.OutboundMessage{
		Text:       greeting(event),
		Format:     models.FormatHTML,
		ForceReply: true,
	})
}

// HandleHelp answers /help.
func (r *Router) HandleHelp(ctx context.Context, event *models.InboundEvent) {
	usage := "Help!\n\nReply to one of my messages"
	if r.config.BotUsername != "" {
		usage += " or mention @" + r.config.BotUsername
	}
	usage += " to talk to me. /reset clears this chat's history."
	r.reply(ctx, event, &models.OutboundMessage{Text: usage, Format: models.FormatPlain})
}

// HandleReset clears the chat's history. It waits for any in-flight run
// of the same chat.
func (r *Router) HandleReset(ctx context.Context, event *models.InboundEvent) {
	if event == nil || event.ConversationID == 0 {
		return
	}
	ctx, logger := r.eventContext(ctx, event)
	id := event.ConversationID
	if err := r.locker.Lock(ctx, id); err != nil {
		logger.WarnContext(ctx, "reset aborted", "error", err)
		return
	}
	r.store.Reset(id)
	r.locker.Unlock(id)
	r.metrics.SetConversations(r.store.Conversations())
	logger.InfoContext(ctx, "conversation reset")
	r.reply(ctx, event, &models.OutboundMessage{Text: "History cleared.", Format: models.FormatPlain})
}

// reply addresses msg to the event's chat as a reply to the command.
func (r *Router) reply(ctx context.Context, event *models.InboundEvent, msg *models.OutboundMessage) {
	if event == nil || event.ConversationID == 0 {
		return
	}
	logger := r.logger.With("message_id", event.MessageID)
	if observability.GetRequestID(ctx) == "" {
		ctx, logger = r.eventContext(ctx, event)
	}
	msg.ConversationID = event.ConversationID
	msg.ReplyTo = event.MessageID
	_ = r.send(ctx, logger.With("command", event.Command), msg)
}

func greeting(event *models.InboundEvent) string {
	name := event.FromName
	if name == "" {
		name = "there"
	}
	if event.FromID == 0 {
		return fmt.Sprintf("Hi %s!", html.EscapeString(name))
	}
	return fmt.Sprintf(`Hi <a href="tg://user?id=%d">%s</a>!`, event.FromID, html.EscapeString(name))
}
