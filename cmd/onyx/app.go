// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jllopis/onyx/pkg/agent"
	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/config"
	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/llm"
	"github.com/jllopis/onyx/pkg/mcp"
	"github.com/jllopis/onyx/pkg/memory"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/oracle"
	"github.com/jllopis/onyx/pkg/pipeline"
	"github.com/jllopis/onyx/pkg/plan"
	"github.com/jllopis/onyx/pkg/resilience"
	"github.com/jllopis/onyx/pkg/service"
	"github.com/jllopis/onyx/pkg/telemetry"
	"github.com/jllopis/onyx/providers/anthropic"
	"github.com/jllopis/onyx/providers/openai"
)

// app holds everything a running onyx process is made of.
type app struct {
	cfg      *config.Config
	reload   *config.ReloadableConfig
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	history  memory.History
	services *service.Manager
	channels *channel.Manager
	model    oracle.ChatModel
	agents   *agent.Manager
	pipeline *pipeline.Pipeline

	closers []func() error
}

type appOptions struct {
	// watch reloads the configuration file while the process runs.
	watch bool
	// servicesOnly skips the oracle, agents and pipeline.
	servicesOnly bool
}

func newApp(ctx context.Context, opts config.Options, ao appOptions) (*app, error) {
	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error
	)
	if ao.watch && opts.Path != "" {
		watcher, cfg, err = config.WatchConfig(ctx, opts)
	} else {
		cfg, err = config.LoadWith(opts)
	}
	if err != nil {
		return nil, withHint(err, "check the --config file and --set values")
	}

	a := &app{
		cfg:      cfg,
		reload:   config.NewReloadableConfig(cfg),
		logger:   telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format),
		services: service.NewManager(),
		channels: channel.NewManager(),
	}
	if watcher != nil {
		watcher.OnChange(func(c *config.Config) {
			a.reload.Update(c)
			a.logger.Info("config.reloaded", "path", opts.Path)
		})
		a.closers = append(a.closers, func() error { watcher.Stop(); return nil })
	}

	if err := a.initTelemetry(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initHistory(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initServices(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if ao.servicesOnly {
		return a, nil
	}
	if err := a.initAgents(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) initTelemetry(ctx context.Context) error {
	tc := a.cfg.Telemetry
	shutdown, err := telemetry.Init(ctx, "onyx", version, telemetry.Config{
		Exporter:           tc.Exporter,
		OTLPEndpoint:       tc.OTLPEndpoint,
		OTLPInsecure:       tc.OTLPInsecure,
		OTLPTimeoutSeconds: tc.OTLPTimeoutSeconds,
		OTLPHeaders:        tc.OTLPHeaders,
	})
	if err != nil {
		return withHint(err, "set telemetry.exporter to none to run without telemetry")
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(sctx)
	})
	a.metrics, err = telemetry.NewMetrics()
	return err
}

func (a *app) initHistory(ctx context.Context) error {
	hc := a.cfg.History
	opts := memory.Options{MaxMessages: hc.MaxMessages}
	switch strings.ToLower(hc.Backend) {
	case "", "memory":
		a.history = memory.NewInMemoryHistory(opts)
	case "file":
		h, err := memory.NewFileHistory(hc.Dir, opts)
		if err != nil {
			return err
		}
		a.history = h
	case "redis":
		h, err := memory.OpenRedisHistory(ctx, hc.RedisURL, opts)
		if err != nil {
			return withHint(err, "check history.redis_url or use history.backend=memory")
		}
		a.history = h
		a.closers = append(a.closers, h.Close)
	default:
		return errors.New(errors.CodeInvalidInput, "unknown history backend "+hc.Backend, nil)
	}
	return nil
}

func (a *app) initServices(ctx context.Context) error {
	sc := a.cfg.Services
	if sc.File.Enabled {
		fs, err := service.NewFileService(sc.File.Root)
		if err != nil {
			return err
		}
		if err := a.services.Register(fs); err != nil {
			return err
		}
	}
	if sc.HTTP.Enabled {
		if err := a.services.Register(service.NewHTTPService(service.WithHTTPTimeout(sc.HTTP.Timeout))); err != nil {
			return err
		}
	}
	if sc.Email.Enabled {
		var sender service.Sender = service.LogSender(a.logger)
		if sc.Email.Host != "" {
			sender = &service.SMTPSender{
				Host:     sc.Email.Host,
				Port:     sc.Email.Port,
				Username: sc.Email.Username,
				Password: sc.Email.Password,
				From:     sc.Email.From,
			}
		}
		if err := a.services.Register(service.NewEmailService(sender)); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(a.cfg.MCP.Servers))
	for name := range a.cfg.MCP.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c, err := dialMCP(a.cfg.MCP.Servers[name])
		if err != nil {
			a.logger.Warn("mcp.connect.failed", "server", name, telemetry.LogError, err)
			continue
		}
		a.closers = append(a.closers, c.Close)
		svc, err := mcp.NewService(ctx, name, c)
		if err != nil {
			a.logger.Warn("mcp.tools.failed", "server", name, telemetry.LogError, err)
			continue
		}
		if err := a.services.Register(svc); err != nil {
			return err
		}
	}
	return nil
}

func dialMCP(sc config.MCPServerConfig) (*mcp.Client, error) {
	opts := []mcp.ClientOption{mcp.WithTimeout(30 * time.Second), mcp.WithRetry(2, 500*time.Millisecond)}
	switch strings.ToLower(sc.Transport) {
	case "", "stdio":
		if sc.Command == "" {
			return nil, errors.New(errors.CodeInvalidInput, "mcp stdio server needs a command", nil)
		}
		return mcp.NewClientWithStdio(sc.Command, sc.Args, opts...)
	case "http", "streamable-http":
		if sc.URL == "" {
			return nil, errors.New(errors.CodeInvalidInput, "mcp http server needs a url", nil)
		}
		return mcp.NewClientWithStreamableHTTP(sc.URL, opts...)
	}
	return nil, errors.New(errors.CodeInvalidInput, "unknown mcp transport "+sc.Transport, nil)
}

func (a *app) initAgents() error {
	model, err := newOracle(a.cfg.LLM, a.metrics, a.logger)
	if err != nil {
		return err
	}
	a.model = model

	rec, err := a.recorder()
	if err != nil {
		return err
	}
	a.agents = agent.NewManager(model, a.modules(),
		agent.WithAgentSettings(a.agentSettings),
		agent.WithPlanRecorder(rec),
		agent.WithManagerMetrics(a.metrics),
		agent.WithManagerLogger(a.logger),
		agent.WithMaxConcurrent(a.cfg.Agent.MaxConcurrent),
	)
	pc := a.cfg.Pipeline
	a.pipeline = pipeline.New(model, a.agents,
		pipeline.WithHistoryWindow(pc.HistoryWindow),
		pipeline.WithVerification(pc.Verify),
		pipeline.WithPlanning(pc.Planning),
		pipeline.WithTimeout(a.cfg.LLM.Timeout),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(a.logger),
	)
	return nil
}

// modules lists services first, then channels, as agents see them.
func (a *app) modules() module.Source {
	return module.SourceFunc(func() []module.Module {
		return append(a.services.Modules(), a.channels.Modules()...)
	})
}

// agentSettings reads the current configuration so reloads reach new agents.
func (a *app) agentSettings() agent.Settings {
	ac := a.reload.Agent()
	return agent.Settings{
		Verbose:                ac.Verbose,
		MaxStepRetries:         ac.MaxStepRetries,
		MaxSectionLength:       ac.MaxSectionLength,
		AbortOnRequiredFailure: ac.AbortOnRequiredFailure,
		OracleTimeout:          a.reload.LLM().Timeout,
	}
}

func (a *app) recorder() (plan.Recorder, error) {
	rc := a.cfg.Records
	var recs plan.MultiRecorder
	if rc.Dir != "" && len(rc.Formats) > 0 {
		fr := plan.NewFileRecorder(rc.Dir)
		fr.Formats = fr.Formats[:0]
		for _, f := range rc.Formats {
			fr.Formats = append(fr.Formats, plan.Format(strings.ToLower(f)))
		}
		recs = append(recs, fr)
	}
	if rc.SQLitePath != "" {
		s, err := plan.OpenSQLiteRecorder(rc.SQLitePath)
		if err != nil {
			return nil, withHint(err, "check records.sqlite_path")
		}
		a.closers = append(a.closers, s.Close)
		recs = append(recs, s)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs, nil
}

// addChannel registers ch and routes its inbound messages to the pipeline.
func (a *app) addChannel(ch interface {
	channel.Channel
	SetReceiver(channel.Receiver)
}) error {
	if err := a.channels.Register(ch); err != nil {
		return err
	}
	if a.pipeline != nil {
		ch.SetReceiver(a.pipeline)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown.failed", telemetry.LogError, err)
		}
	}
	a.closers = nil
}

func newProvider(c config.LLMConfig) (llm.Provider, error) {
	switch strings.ToLower(c.Provider) {
	case "", "ollama":
		return llm.NewOllama(c.BaseURL), nil
	case "openai":
		opts := []openai.Option{openai.WithModel(c.Model)}
		if c.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.BaseURL))
		}
		if c.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(c.APIKey))
		}
		return openai.New(opts...), nil
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(c.Model)}
		if c.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(c.BaseURL))
		}
		if c.APIKey != "" {
			opts = append(opts, anthropic.WithAPIKey(c.APIKey))
		}
		return anthropic.New(opts...), nil
	case "mock":
		return &llm.MockProvider{}, nil
	}
	return nil, withHint(
		errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown llm provider %q", c.Provider), nil),
		"use one of ollama, openai, anthropic or mock")
}

func newOracle(c config.LLMConfig, metrics *telemetry.Metrics, logger *slog.Logger) (oracle.ChatModel, error) {
	p, err := newProvider(c)
	if err != nil {
		return nil, err
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.MaxRetries + 1
	opts := []oracle.Option{
		oracle.WithModel(c.Model),
		oracle.WithTimeout(c.Timeout),
		oracle.WithRetry(retry),
		oracle.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "oracle",
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          30 * time.Second,
		})),
		oracle.WithMetrics(metrics),
		oracle.WithLogger(logger),
	}
	if c.PlanningModel != "" {
		opts = append(opts, oracle.WithPlanningModel(c.PlanningModel))
	}
	if c.RateLimit > 0 {
		opts = append(opts, oracle.WithRateLimit(c.RateLimit, c.Burst))
	}
	return oracle.NewLLM(p, opts...), nil
}
