// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jllopis/onyx/pkg/core"
)

// InMemoryHistory keeps conversations in process memory. Data is lost on
// restart.
type InMemoryHistory struct {
	mu            sync.RWMutex
	conversations map[string][]core.Message
	opts          Options
}

// NewInMemoryHistory creates an empty in-memory store.
func NewInMemoryHistory(opts Options) *InMemoryHistory {
	return &InMemoryHistory{
		conversations: make(map[string][]core.Message),
		opts:          opts,
	}
}

func (m *InMemoryHistory) Append(_ context.Context, conversationID string, msg core.Message) error {
	id := conversationKey(conversationID)
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := append(m.conversations[id], msg.Normalize())
	if m.opts.MaxMessages > 0 && len(messages) > m.opts.MaxMessages {
		messages = append([]core.Message(nil), messages[len(messages)-m.opts.MaxMessages:]...)
	}
	m.conversations[id] = messages
	return nil
}

func (m *InMemoryHistory) Messages(ctx context.Context, conversationID string) ([]core.Message, error) {
	m.mu.RLock()
	messages := tail(m.conversations[conversationKey(conversationID)], 0)
	m.mu.RUnlock()
	return truncate(ctx, m.opts.Truncation, messages)
}

func (m *InMemoryHistory) Recent(_ context.Context, conversationID string, limit int) ([]core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tail(m.conversations[conversationKey(conversationID)], limit), nil
}

func (m *InMemoryHistory) Clear(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, conversationKey(conversationID))
	return nil
}

func (m *InMemoryHistory) DeleteOlderThan(_ context.Context, conversationID string, olderThan time.Duration) error {
	id := conversationKey(conversationID)
	m.mu.Lock()
	defer m.mu.Unlock()
	messages, ok := m.conversations[id]
	if !ok {
		return nil
	}
	m.conversations[id] = keepNewerThan(messages, time.Now().Add(-olderThan))
	return nil
}

func (m *InMemoryHistory) Conversations(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.conversations))
	for id := range m.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Len returns the number of messages stored for a conversation.
func (m *InMemoryHistory) Len(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations[conversationKey(conversationID)])
}
