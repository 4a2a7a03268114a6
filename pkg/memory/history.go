// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides conversation history stores for channels.
package memory

import (
	"context"
	"time"

	"github.com/jllopis/onyx/pkg/core"
)

// DefaultConversation is used when a message carries no conversation id.
const DefaultConversation = "default"

// History stores and retrieves ordered conversation messages.
type History interface {
	// Append adds a message to the conversation.
	Append(ctx context.Context, conversationID string, msg core.Message) error

	// Messages retrieves all messages of a conversation in insertion order.
	Messages(ctx context.Context, conversationID string) ([]core.Message, error)

	// Recent retrieves the last limit messages of a conversation.
	// A non-positive limit returns every message.
	Recent(ctx context.Context, conversationID string, limit int) ([]core.Message, error)

	// Clear removes all messages of a conversation.
	Clear(ctx context.Context, conversationID string) error

	// DeleteOlderThan removes messages created before now-olderThan.
	DeleteOlderThan(ctx context.Context, conversationID string, olderThan time.Duration) error

	// Conversations lists the known conversation ids, sorted.
	Conversations(ctx context.Context) ([]string, error)
}

// Options configures a history store.
type Options struct {
	// MaxMessages bounds each conversation; older messages are dropped on
	// append. Zero keeps everything.
	MaxMessages int
	// Truncation is applied to Messages results. Optional.
	Truncation Truncator
}

// Truncator reduces a message list while preserving context.
type Truncator interface {
	Truncate(ctx context.Context, messages []core.Message) ([]core.Message, error)
}

// WindowStrategy keeps only the last N messages.
type WindowStrategy struct {
	MaxMessages int
	// KeepSystemMessages preserves system messages regardless of window.
	KeepSystemMessages bool
}

// NewWindowStrategy creates a window-based truncation strategy.
func NewWindowStrategy(maxMessages int, keepSystem bool) *WindowStrategy {
	return &WindowStrategy{MaxMessages: maxMessages, KeepSystemMessages: keepSystem}
}

// Truncate implements Truncator.
func (w *WindowStrategy) Truncate(_ context.Context, messages []core.Message) ([]core.Message, error) {
	if len(messages) <= w.MaxMessages {
		return messages, nil
	}
	if !w.KeepSystemMessages {
		return messages[len(messages)-w.MaxMessages:], nil
	}

	var system, other []core.Message
	for _, msg := range messages {
		if msg.Role == core.RoleSystem {
			system = append(system, msg)
		} else {
			other = append(other, msg)
		}
	}
	available := w.MaxMessages - len(system)
	if available < 0 {
		available = 0
	}
	if len(other) > available {
		other = other[len(other)-available:]
	}

	result := make([]core.Message, 0, len(system)+len(other))
	result = append(result, system...)
	return append(result, other...), nil
}

func conversationKey(id string) string {
	if id == "" {
		return DefaultConversation
	}
	return id
}

func tail(messages []core.Message, limit int) []core.Message {
	if limit <= 0 || len(messages) <= limit {
		out := make([]core.Message, len(messages))
		copy(out, messages)
		return out
	}
	out := make([]core.Message, limit)
	copy(out, messages[len(messages)-limit:])
	return out
}

func keepNewerThan(messages []core.Message, cutoff time.Time) []core.Message {
	var kept []core.Message
	for _, msg := range messages {
		if msg.CreatedAt.After(cutoff) {
			kept = append(kept, msg)
		}
	}
	return kept
}

func truncate(ctx context.Context, t Truncator, messages []core.Message) ([]core.Message, error) {
	if t == nil || len(messages) == 0 {
		return messages, nil
	}
	return t.Truncate(ctx, messages)
}
