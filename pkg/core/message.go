// Package core holds the types shared by every Onyx component: the message
// envelope that flows through channels, the pipeline and the oracle, and the
// lifecycle events emitted by agents.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// MessageType hints how a transport should present a Message.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageCallout MessageType = "callout"
	MessageLog     MessageType = "log"
)

// Message is the universal envelope exchanged between channels, the pipeline
// and the oracle. Agent is set when the message is addressed to, or produced
// by, a specific agent.
type Message struct {
	ID        string      `json:"id,omitempty"`
	Content   string      `json:"content"`
	Role      Role        `json:"role"`
	Agent     string      `json:"agent,omitempty"`
	Type      MessageType `json:"type,omitempty"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
}

// NewMessage builds a text message with a fresh id and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      role,
		Type:      MessageText,
		CreatedAt: time.Now().UTC(),
	}
}

// UserMessage is shorthand for NewMessage(RoleUser, content).
func UserMessage(content string) Message { return NewMessage(RoleUser, content) }

// AssistantMessage is shorthand for NewMessage(RoleAssistant, content).
func AssistantMessage(content string) Message { return NewMessage(RoleAssistant, content) }

// Normalize fills defaults for fields a transport may omit.
func (m Message) Normalize() Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Role == "" {
		m.Role = RoleAssistant
	}
	if m.Type == "" {
		m.Type = MessageText
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m
}

// FormatTranscript renders messages as "- role: content" lines.
func FormatTranscript(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("- %s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// LastUserMessage returns the most recent user message, if any.
func LastUserMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i], true
		}
	}
	return Message{}, false
}
