// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherDetectsChanges(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "agent:\n  max_step_retries: 2\n")

	watcher, err := NewWatcher([]string{configPath}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	changes := make(chan *Config, 4)
	watcher.OnChange(func(cfg *Config) { changes <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	if got := watcher.Config().Agent.MaxStepRetries; got != 2 {
		t.Fatalf("expected initial retries 2, got %d", got)
	}

	writeFile(t, configPath, "agent:\n  max_step_retries: 7\n")

	select {
	case cfg := <-changes:
		if cfg.Agent.MaxStepRetries != 7 {
			t.Fatalf("expected reloaded retries 7, got %d", cfg.Agent.MaxStepRetries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config change notification")
	}
	if watcher.Config().Agent.MaxStepRetries != 7 {
		t.Fatalf("watcher did not keep the reloaded config")
	}
}

func TestWatcherMultipleListeners(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "llm:\n  model: v1\n")

	watcher, err := NewWatcher([]string{configPath}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	var count1, count2 atomic.Int32
	done := make(chan struct{}, 2)
	watcher.OnChange(func(*Config) { count1.Add(1); done <- struct{}{} })
	watcher.OnChange(func(*Config) { count2.Add(1); done <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	writeFile(t, configPath, "llm:\n  model: v2\n")

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("listeners were not notified")
		}
	}
	if count1.Load() < 1 || count2.Load() < 1 {
		t.Errorf("expected both listeners called, got %d and %d", count1.Load(), count2.Load())
	}
}

func TestWatcherStops(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "llm: {}\n")

	watcher, err := NewWatcher([]string{configPath}, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	watcher.Start(context.Background())

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("watcher.Stop() did not complete in time")
	}
	watcher.Stop()
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, "llm:\n  model: v1\n")

	watcher, err := NewWatcher([]string{configPath}, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	changes := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) { changes <- cfg })
	watcher.Start(context.Background())
	defer watcher.Stop()

	writeFile(t, filepath.Join(dir, "notes.txt"), "unrelated")
	select {
	case <-changes:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherKeepsConfigOnBadReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "llm:\n  model: good\n")

	watcher, err := NewWatcher([]string{configPath}, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	watcher.Start(context.Background())
	defer watcher.Stop()

	writeFile(t, configPath, "llm: [unterminated\n")
	time.Sleep(200 * time.Millisecond)
	if got := watcher.Config().LLM.Model; got != "good" {
		t.Fatalf("expected last good config, got model %q", got)
	}
}

func TestReloadableConfig(t *testing.T) {
	rc := NewReloadableConfig(&Config{Agent: AgentConfig{MaxStepRetries: 1}, LLM: LLMConfig{Model: "model-1"}})
	if rc.Agent().MaxStepRetries != 1 || rc.LLM().Model != "model-1" {
		t.Fatalf("unexpected initial values")
	}
	rc.Update(&Config{Agent: AgentConfig{MaxStepRetries: 9}, LLM: LLMConfig{Model: "model-2"}})
	if rc.Agent().MaxStepRetries != 9 || rc.Get().LLM.Model != "model-2" {
		t.Fatalf("update not visible")
	}
}

func TestWatchConfigWithProfile(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "config.yaml")
	writeFile(t, basePath, "llm:\n  model: base\n")
	writeFile(t, filepath.Join(dir, "config.dev.yaml"), "llm:\n  model: dev\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, cfg, err := WatchConfig(ctx, Options{Path: basePath}, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to watch config: %v", err)
	}
	watcher.Stop()
	if cfg.LLM.Model != "base" {
		t.Errorf("expected model 'base', got %q", cfg.LLM.Model)
	}

	watcher, cfg, err = WatchConfig(ctx, Options{Path: basePath, Profile: "dev"})
	if err != nil {
		t.Fatalf("failed to watch config: %v", err)
	}
	defer watcher.Stop()
	if cfg.LLM.Model != "dev" {
		t.Errorf("expected model 'dev', got %q", cfg.LLM.Model)
	}
	if len(watcher.paths) != 2 {
		t.Errorf("expected base and profile paths watched, got %v", watcher.paths)
	}
}
