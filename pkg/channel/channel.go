// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel defines the transports that carry messages between the
// user and the assistant. A Channel is also a Module, so agents can pick it
// as the target of an action like any service.
package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/memory"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/telemetry"
)

// Method names exposed by every channel.
const (
	MethodGetConversationHistory = "get_conversation_history"
	MethodGetFullHistory         = "get_full_history"
	MethodSendMessage            = "send_message"
)

// DefaultHistoryCount is used by get_conversation_history without a count.
const DefaultHistoryCount = 20

// Channel is a communication transport with the end user.
type Channel interface {
	module.Module
	// SendMessageAsAssistant records msg as an assistant message of the
	// conversation and delivers it to the user.
	SendMessageAsAssistant(ctx context.Context, msg core.Message, conversationID string) error
	// ConversationHistory returns the last count messages; count <= 0 means all.
	ConversationHistory(ctx context.Context, conversationID string, count int) ([]core.Message, error)
}

// Receiver handles inbound user messages. The pipeline implements it.
type Receiver interface {
	UserMessage(ctx context.Context, ch Channel, conversationID string, msg core.Message) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, ch Channel, conversationID string, msg core.Message) error

func (f ReceiverFunc) UserMessage(ctx context.Context, ch Channel, conversationID string, msg core.Message) error {
	return f(ctx, ch, conversationID, msg)
}

// DeliverFunc pushes an assistant message to the user over the transport.
type DeliverFunc func(ctx context.Context, conversationID string, msg core.Message) error

// Base implements Channel on top of a history store. Transports embed it and
// supply the delivery function, then call Receive for inbound traffic.
type Base struct {
	name        string
	description string
	history     memory.History
	deliver     DeliverFunc
	logger      *slog.Logger

	mu       sync.RWMutex
	receiver Receiver
}

// BaseOption configures a Base.
type BaseOption func(*Base)

// WithHistory sets the history store. The default is in-memory.
func WithHistory(h memory.History) BaseOption {
	return func(b *Base) {
		if h != nil {
			b.history = h
		}
	}
}

// WithDeliver sets the delivery function. The default only records.
func WithDeliver(fn DeliverFunc) BaseOption {
	return func(b *Base) { b.deliver = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BaseOption {
	return func(b *Base) { b.logger = telemetry.LoggerOr(l) }
}

// NewBase returns a Base channel.
func NewBase(name, description string, opts ...BaseOption) *Base {
	b := &Base{
		name:        name,
		description: description,
		history:     memory.NewInMemoryHistory(memory.Options{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) Kind() module.Kind   { return module.KindChannel }
func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }

// History returns the underlying store.
func (b *Base) History() memory.History { return b.history }

// SetReceiver installs the handler for inbound user messages.
func (b *Base) SetReceiver(r Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiver = r
}

// Methods exposes the channel to agents.
func (b *Base) Methods() []module.Method {
	return []module.Method{
		{
			Name:        MethodGetConversationHistory,
			Description: "Get the most recent messages of the conversation with the user",
			Parameters: module.Object(map[string]any{
				"conversation_id": module.StringProp("Conversation to read; defaults to the current one"),
				"count":           map[string]any{"type": "integer", "minimum": 1, "description": "How many messages to return"},
			}),
			Perform: b.performHistory(false),
		},
		{
			Name:        MethodGetFullHistory,
			Description: "Get every message of the conversation with the user",
			Parameters: module.Object(map[string]any{
				"conversation_id": module.StringProp("Conversation to read; defaults to the current one"),
			}),
			Perform: b.performHistory(true),
		},
		{
			Name:        MethodSendMessage,
			Description: "Send a message to the user",
			Parameters: module.Object(map[string]any{
				"message":         module.StringProp("The text to send"),
				"conversation_id": module.StringProp("Conversation to write to; defaults to the current one"),
			}, "message"),
			Perform: func(ctx context.Context, args module.Args) (any, error) {
				convID := conversationArg(ctx, args)
				if err := b.SendMessageAsAssistant(ctx, core.AssistantMessage(args.String("message")), convID); err != nil {
					return nil, err
				}
				return "Message sent.", nil
			},
		},
	}
}

func (b *Base) performHistory(full bool) module.Performer {
	return func(ctx context.Context, args module.Args) (any, error) {
		count := 0
		if !full {
			count = DefaultHistoryCount
			switch n := args["count"].(type) {
			case float64:
				count = int(n)
			case int:
				count = n
			}
		}
		messages, err := b.ConversationHistory(ctx, conversationArg(ctx, args), count)
		if err != nil {
			return nil, err
		}
		return core.FormatTranscript(messages), nil
	}
}

// conversationArg prefers the explicit argument, then the id bound to ctx.
func conversationArg(ctx context.Context, args module.Args) string {
	if id := args.String("conversation_id"); id != "" {
		return id
	}
	id, _ := core.ConversationID(ctx)
	return id
}

func (b *Base) SendMessageAsAssistant(ctx context.Context, msg core.Message, conversationID string) error {
	msg.Role = core.RoleAssistant
	msg = msg.Normalize()
	if err := b.history.Append(ctx, conversationID, msg); err != nil {
		return errors.New(errors.CodeChannelError, "failed to record message", err).
			WithContext("channel", b.name)
	}
	if b.deliver == nil {
		return nil
	}
	if err := b.deliver(ctx, conversationID, msg); err != nil {
		return errors.New(errors.CodeChannelError, "failed to deliver message", err).
			WithContext("channel", b.name).
			WithRecoverable(true)
	}
	return nil
}

func (b *Base) ConversationHistory(ctx context.Context, conversationID string, count int) ([]core.Message, error) {
	if count > 0 {
		return b.history.Recent(ctx, conversationID, count)
	}
	return b.history.Messages(ctx, conversationID)
}

// Receive records an inbound user message and hands it to the receiver.
// self is the outer Channel that embeds the Base.
func (b *Base) Receive(ctx context.Context, self Channel, conversationID string, msg core.Message) error {
	if msg.Role == "" {
		msg.Role = core.RoleUser
	}
	msg = msg.Normalize()
	if err := b.history.Append(ctx, conversationID, msg); err != nil {
		return errors.New(errors.CodeChannelError, "failed to record message", err).
			WithContext("channel", b.name)
	}

	b.mu.RLock()
	r := b.receiver
	b.mu.RUnlock()
	if r == nil {
		b.logger.WarnContext(ctx, "channel has no receiver, dropping message",
			telemetry.LogChannel, b.name, telemetry.LogConversationID, conversationID)
		return nil
	}
	ctx = core.WithConversationID(ctx, conversationID)
	return r.UserMessage(ctx, self, conversationID, msg)
}
