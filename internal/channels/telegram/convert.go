package telegram

import (
	"strings"
	"time"
	"unicode/utf16"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/mcpbot/pkg/models"
)

// convertMessage maps a Telegram message to an inbound event. selfID and
// username identify the bot for reply and mention detection.
func convertMessage(msg *tgmodels.Message, selfID int64, username string) *models.InboundEvent {
	event := &models.InboundEvent{
		ConversationID: models.ConversationID(msg.Chat.ID),
		MessageID:      msg.ID,
		Text:           msg.Text,
		IsReply:        isReplyTo(msg, selfID),
		Mentions:       mentions(msg, selfID, username),
		ReceivedAt:     time.Unix(int64(msg.Date), 0),
	}
	if msg.From != nil {
		event.FromID = msg.From.ID
		event.FromName = displayName(msg.From)
	}
	return event
}

func displayName(u *tgmodels.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

func isReplyTo(msg *tgmodels.Message, selfID int64) bool {
	reply := msg.ReplyToMessage
	return reply != nil && reply.From != nil && selfID != 0 && reply.From.ID == selfID
}

// mentions reports whether msg carries a mention entity for the bot.
// Entity offsets count UTF-16 code units.
func mentions(msg *tgmodels.Message, selfID int64, username string) bool {
	if len(msg.Entities) == 0 {
		return false
	}
	want := "@" + strings.ToLower(username)
	units := utf16.Encode([]rune(msg.Text))
	for _, e := range msg.Entities {
		switch e.Type {
		case tgmodels.MessageEntityTypeMention:
			if username == "" || e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
				continue
			}
			got := string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
			if strings.ToLower(got) == want {
				return true
			}
		case tgmodels.MessageEntityTypeTextMention:
			if e.User != nil && selfID != 0 && e.User.ID == selfID {
				return true
			}
		}
	}
	return false
}

// parseCommand splits "/name@bot args". ok is false when text is not a
// command or is addressed to a different bot.
func parseCommand(text, username string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i+1:] + " " + rest
		head = head[:i]
	}
	name, target, addressed := strings.Cut(head, "@")
	if addressed && !strings.EqualFold(target, username) {
		return "", "", false
	}
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(rest), true
}
