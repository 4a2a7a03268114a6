// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration when one of its files is written,
// created or renamed over. Bursts of events are coalesced.
type Watcher struct {
	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)

	paths    []string
	names    map[string]bool
	debounce time.Duration
	load     func() (*Config, error)
	logger   *slog.Logger

	fs       *fsnotify.Watcher
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for events to settle before
// reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithWatchLoader replaces the function used to rebuild the configuration,
// for callers that load with a profile or CLI overrides.
func WithWatchLoader(load func() (*Config, error)) WatcherOption {
	return func(w *Watcher) {
		w.load = load
	}
}

// NewWatcher loads the configuration and subscribes to changes of paths.
// The directories holding them are watched, so editors that save through a
// rename are noticed. Without a loader the first path is loaded with Load.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		paths:    paths,
		names:    make(map[string]bool, len(paths)),
		debounce: 100 * time.Millisecond,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, err := w.loadConfig()
	if err != nil {
		return nil, err
	}
	w.config = cfg

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fs.Close()
			return nil, err
		}
		w.names[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, err
		}
	}
	w.fs = fs
	return w, nil
}

// OnChange registers a callback run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start processes file events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.watch(ctx)
}

// Stop ends watching and releases the file watcher. It is safe to call more
// than once and without Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.RLock()
		started := w.started
		w.mu.RUnlock()
		if started {
			<-w.doneCh
		}
		w.fs.Close()
	})
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				settle = time.After(w.debounce)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config.watch.error", "error", err)
		case <-settle:
			settle = nil
			w.reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	return err == nil && w.names[abs]
}

func (w *Watcher) reload() {
	cfg, err := w.loadConfig()
	if err != nil {
		// Keep serving the last good configuration.
		w.logger.Error("config.reload.failed", "error", err)
		return
	}

	w.mu.Lock()
	w.config = cfg
	listeners := append(([]func(*Config))(nil), w.listeners...)
	w.mu.Unlock()

	w.logger.Info("config.reload.ok", "paths", w.paths)
	for _, fn := range listeners {
		fn(cfg)
	}
}

func (w *Watcher) loadConfig() (*Config, error) {
	if w.load != nil {
		return w.load()
	}
	if len(w.paths) == 0 {
		return Load("")
	}
	return Load(w.paths[0])
}

// WatchConfig loads opts, starts watching its file and profile sibling and
// returns the watcher with the initial config.
func WatchConfig(ctx context.Context, opts Options, wopts ...WatcherOption) (*Watcher, *Config, error) {
	var paths []string
	if opts.Path != "" {
		paths = append(paths, opts.Path)
		if opts.Profile != "" {
			if p := ProfileConfigPath(opts.Path, opts.Profile); fileExists(p) {
				paths = append(paths, p)
			}
		}
	}
	wopts = append([]WatcherOption{WithWatchLoader(func() (*Config, error) { return LoadWith(opts) })}, wopts...)

	watcher, err := NewWatcher(paths, wopts...)
	if err != nil {
		return nil, nil, err
	}
	watcher.Start(ctx)
	return watcher, watcher.Config(), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReloadableConfig provides a thread-safe wrapper around Config
// that can be atomically updated.
type ReloadableConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewReloadableConfig creates a new reloadable config wrapper.
func NewReloadableConfig(cfg *Config) *ReloadableConfig {
	return &ReloadableConfig{config: cfg}
}

// Get returns the current configuration.
func (r *ReloadableConfig) Get() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Update atomically replaces the configuration.
func (r *ReloadableConfig) Update(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
}

// Agent returns the agent settings used for newly dispatched agents.
func (r *ReloadableConfig) Agent() AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Agent
}

// LLM returns the LLM configuration.
func (r *ReloadableConfig) LLM() LLMConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.LLM
}

// Log returns the log configuration.
func (r *ReloadableConfig) Log() LogConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Log
}
