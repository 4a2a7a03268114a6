// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"sync"

	"github.com/jllopis/onyx/pkg/core"
)

// Delivery is a message delivered by a Memory channel.
type Delivery struct {
	ConversationID string
	Message        core.Message
}

// Memory is a channel that keeps delivered messages in memory. Tests and
// embedded callers read them back with Sent.
type Memory struct {
	*Base

	mu   sync.Mutex
	sent []Delivery
	// Fail, when set, is returned by every delivery.
	Fail error
}

// NewMemory returns a Memory channel named name.
func NewMemory(name string, opts ...BaseOption) *Memory {
	m := &Memory{}
	opts = append([]BaseOption{WithDeliver(m.record)}, opts...)
	m.Base = NewBase(name, "In-process conversation with the user", opts...)
	return m
}

func (m *Memory) record(_ context.Context, conversationID string, msg core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.sent = append(m.sent, Delivery{ConversationID: conversationID, Message: msg})
	return nil
}

// Sent returns a copy of the delivered messages in order.
func (m *Memory) Sent() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.sent))
	copy(out, m.sent)
	return out
}

// Contents returns the content of every delivered message.
func (m *Memory) Contents() []string {
	sent := m.Sent()
	out := make([]string, len(sent))
	for i, d := range sent {
		out[i] = d.Message.Content
	}
	return out
}

// Say feeds a user message into the channel.
func (m *Memory) Say(ctx context.Context, conversationID, content string) error {
	return m.Receive(ctx, m, conversationID, core.UserMessage(content))
}
