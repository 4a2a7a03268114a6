// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/onyx/pkg/core"
)

// FileHistory stores each conversation as a JSON file under a directory.
type FileHistory struct {
	mu      sync.RWMutex
	baseDir string
	opts    Options
}

// NewFileHistory creates the directory if needed and returns the store.
func NewFileHistory(baseDir string, opts Options) (*FileHistory, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileHistory{baseDir: baseDir, opts: opts}, nil
}

func (f *FileHistory) path(conversationID string) string {
	// Base strips directories so an id cannot escape baseDir.
	safe := filepath.Base(conversationKey(conversationID))
	return filepath.Join(f.baseDir, safe+".json")
}

func (f *FileHistory) Append(_ context.Context, conversationID string, msg core.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	messages, err := f.load(conversationID)
	if err != nil {
		return err
	}
	messages = append(messages, msg.Normalize())
	if f.opts.MaxMessages > 0 && len(messages) > f.opts.MaxMessages {
		messages = messages[len(messages)-f.opts.MaxMessages:]
	}
	return f.save(conversationID, messages)
}

func (f *FileHistory) Messages(ctx context.Context, conversationID string) ([]core.Message, error) {
	f.mu.RLock()
	messages, err := f.load(conversationID)
	f.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return truncate(ctx, f.opts.Truncation, messages)
}

func (f *FileHistory) Recent(_ context.Context, conversationID string, limit int) ([]core.Message, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	messages, err := f.load(conversationID)
	if err != nil {
		return nil, err
	}
	return tail(messages, limit), nil
}

func (f *FileHistory) Clear(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(conversationID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileHistory) DeleteOlderThan(_ context.Context, conversationID string, olderThan time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	messages, err := f.load(conversationID)
	if err != nil || messages == nil {
		return err
	}
	kept := keepNewerThan(messages, time.Now().Add(-olderThan))
	if len(kept) == 0 {
		return os.Remove(f.path(conversationID))
	}
	return f.save(conversationID, kept)
}

func (f *FileHistory) Conversations(context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// load returns nil without error when the conversation has no file yet.
func (f *FileHistory) load(conversationID string) ([]core.Message, error) {
	data, err := os.ReadFile(f.path(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var messages []core.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	return messages, nil
}

func (f *FileHistory) save(conversationID string, messages []core.Message) error {
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	tmp := f.path(conversationID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path(conversationID))
}
