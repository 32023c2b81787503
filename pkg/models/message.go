package models

import (
	"encoding/json"
	"time"
)

// ConversationID identifies a conversation. It is the Telegram chat id.
type ConversationID int64

// Role indicates who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two conversation roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one entry of a conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a turn authored by the user.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn returns a turn authored by the assistant.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// InboundEvent is a chat message accepted by the transport for routing.
type InboundEvent struct {
	ConversationID ConversationID `json:"conversation_id"`
	MessageID      int            `json:"message_id"`
	Text           string         `json:"text"`
	FromID         int64          `json:"from_id,omitempty"`
	FromName       string         `json:"from_name,omitempty"`

	// Command is set for bot commands, without the slash or bot suffix.
	// Text then holds the arguments.
	Command string `json:"command,omitempty"`

	IsReply    bool      `json:"is_reply,omitempty"`
	Mentions   bool      `json:"mentions,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Format selects how the transport renders an outbound message.
type Format string

const (
	FormatPlain Format = "plain"
	FormatHTML  Format = "html"
)

// OutboundMessage is a reply handed to the transport.
type OutboundMessage struct {
	ConversationID ConversationID `json:"conversation_id"`
	ReplyTo        int            `json:"reply_to,omitempty"`
	Text           string         `json:"text"`
	Format         Format         `json:"format"`

	// ForceReply asks the recipient's client to open a reply to this
	// message.
	ForceReply bool `json:"force_reply,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
