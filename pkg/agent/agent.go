// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the agent run loop and the Manager that
// dispatches agents and routes messages to them.
//
// An agent drives one Plan-of-Action to a terminal state. Every iteration asks
// the oracle which module and method fit the current step, materializes the
// arguments, performs the action and then asks what to keep in context and
// whether the step is done.
package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/oracle"
	"github.com/jllopis/onyx/pkg/plan"
	"github.com/jllopis/onyx/pkg/telemetry"
)

const (
	DefaultMaxStepRetries   = 3
	DefaultMaxSectionLength = 100
	DefaultOracleTimeout    = 60 * time.Second

	// PrimaryChannelPrefix marks the agent's own channel among the options.
	PrimaryChannelPrefix = "(*PRIMARY CHANNEL) "
)

// Settings tune an agent's loop.
type Settings struct {
	// Verbose narrates every decision on the primary channel.
	Verbose bool
	// MaxStepRetries is how many retries a step gets before it fails.
	MaxStepRetries int
	// MaxSectionLength cuts context values and action outputs in prompts.
	MaxSectionLength int
	// AbortOnRequiredFailure ends the plan as soon as a required step fails.
	AbortOnRequiredFailure bool
	// OracleTimeout bounds each oracle call. A timeout counts as no decision.
	OracleTimeout time.Duration
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		MaxStepRetries:         DefaultMaxStepRetries,
		MaxSectionLength:       DefaultMaxSectionLength,
		AbortOnRequiredFailure: true,
		OracleTimeout:          DefaultOracleTimeout,
	}
}

func (s Settings) normalized() Settings {
	if s.MaxStepRetries < 0 {
		s.MaxStepRetries = DefaultMaxStepRetries
	}
	if s.MaxSectionLength <= 0 {
		s.MaxSectionLength = DefaultMaxSectionLength
	}
	return s
}

// Info is a summary of an agent for listings.
type Info struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Title          string            `json:"title"`
	Channel        string            `json:"channel"`
	ConversationID string            `json:"conversation_id"`
	Paused         bool              `json:"paused"`
	Finished       bool              `json:"finished"`
	Reason         plan.FinishReason `json:"reason,omitempty"`
	CurrentStep    int               `json:"current_step"`
	Steps          int               `json:"steps"`
}

// Agent drives one plan to completion.
type Agent struct {
	name           string
	model          oracle.ChatModel
	plan           *plan.Plan
	channel        channel.Channel
	conversationID string
	modules        module.Source
	settings       Settings
	validator      *module.Validator
	recorder       plan.Recorder
	events         core.EventEmitter
	metrics        *telemetry.Metrics
	logger         *slog.Logger
	store          *ContextStore
	self           module.Module

	mu      sync.Mutex
	baseCtx context.Context
	paused  bool
	running bool
	inbox   []core.Message
	done    chan struct{}
	reason  plan.FinishReason
}

// Option configures an Agent.
type Option func(*Agent) error

// WithModules sets where the agent finds services and channels.
func WithModules(src module.Source) Option {
	return func(a *Agent) error {
		a.modules = src
		return nil
	}
}

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(a *Agent) error {
		a.settings = s.normalized()
		return nil
	}
}

// WithRecorder persists the plan when the agent terminates.
func WithRecorder(r plan.Recorder) Option {
	return func(a *Agent) error {
		a.recorder = r
		return nil
	}
}

// WithEvents sets the lifecycle event sink.
func WithEvents(e core.EventEmitter) Option {
	return func(a *Agent) error {
		if e != nil {
			a.events = e
		}
		return nil
	}
}

// WithMetrics records steps and lifecycle counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) error {
		a.metrics = m
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) error {
		a.logger = l
		return nil
	}
}

// WithValidator shares an argument validator between agents.
func WithValidator(v *module.Validator) Option {
	return func(a *Agent) error {
		if v != nil {
			a.validator = v
		}
		return nil
	}
}

// New builds an agent. It does not start it.
func New(name string, model oracle.ChatModel, p *plan.Plan, ch channel.Channel, conversationID string, opts ...Option) (*Agent, error) {
	switch {
	case strings.TrimSpace(name) == "":
		return nil, errors.New(errors.CodeInvalidInput, "agent name is required", nil)
	case model == nil:
		return nil, errors.New(errors.CodeInvalidInput, "agent needs an oracle", nil)
	case p == nil:
		return nil, errors.New(errors.CodeInvalidInput, "agent needs a plan of action", nil)
	case ch == nil:
		return nil, errors.New(errors.CodeInvalidInput, "agent needs a primary channel", nil)
	}
	a := &Agent{
		name:           name,
		model:          model,
		plan:           p,
		channel:        ch,
		conversationID: conversationID,
		settings:       DefaultSettings(),
		validator:      module.NewValidator(),
		events:         core.NoopEventEmitter{},
		store:          NewContextStore(),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = telemetry.LoggerOr(a.logger).With(telemetry.LogAgent, name)
	a.self = selfService(a.store)
	return a, nil
}

// NewName returns a random agent name of 8 upper-case hex characters.
func NewName() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%08X", time.Now().UnixNano()&0xffffffff)
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// DisplayName is how the agent introduces itself.
func (a *Agent) DisplayName() string { return "Agent " + a.name }

// Plan returns the plan the agent drives.
func (a *Agent) Plan() *plan.Plan { return a.plan }

// ConversationID returns the conversation the agent reports to.
func (a *Agent) ConversationID() string { return a.conversationID }

// Context returns a snapshot of the agent context.
func (a *Agent) Context() Snapshot { return a.store.Snapshot() }

// Done is closed once the agent has terminated.
func (a *Agent) Done() <-chan struct{} { return a.done }

// Reason returns the terminal reason, empty while the agent runs.
func (a *Agent) Reason() plan.FinishReason {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}

// IsPaused reports whether the loop is suspended.
func (a *Agent) IsPaused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// Describe returns the plan description.
func (a *Agent) Describe() string { return a.plan.Describe() }

// Info summarizes the agent.
func (a *Agent) Info() Info {
	a.mu.Lock()
	paused, reason := a.paused, a.reason
	a.mu.Unlock()
	return Info{
		Name:           a.name,
		Description:    a.plan.Describe(),
		Title:          a.plan.Title(),
		Channel:        a.channel.Name(),
		ConversationID: a.conversationID,
		Paused:         paused,
		Finished:       a.plan.IsFinished(),
		Reason:         reason,
		CurrentStep:    a.plan.CurrentStepIndex(),
		Steps:          len(a.plan.Steps()),
	}
}

// Deliver queues msg for the agent. It is added to the plan's source
// messages at the start of the next iteration.
func (a *Agent) Deliver(msg core.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reason != "" {
		return false
	}
	a.inbox = append(a.inbox, msg)
	return true
}

func (a *Agent) drainInbox() {
	a.mu.Lock()
	msgs := a.inbox
	a.inbox = nil
	a.mu.Unlock()
	if len(msgs) > 0 {
		a.plan.AppendSourceMessages(msgs...)
	}
}

// Pause suspends the loop before its next iteration.
func (a *Agent) Pause() {
	a.mu.Lock()
	a.paused = true
	a.mu.Unlock()
	a.events.Emit(context.Background(), core.NewEvent(core.EventAgentPaused, a.name, "", nil))
}

// Resume clears the pause flag and re-enters the loop if it had stopped.
func (a *Agent) Resume() {
	a.mu.Lock()
	wasPaused := a.paused
	a.paused = false
	restart := wasPaused && !a.running && a.reason == "" && a.baseCtx != nil
	ctx := a.baseCtx
	a.mu.Unlock()
	if !wasPaused {
		return
	}
	a.events.Emit(context.Background(), core.NewEvent(core.EventAgentResumed, a.name, "", nil))
	if restart {
		go a.Run(ctx)
	}
}

// Start greets the user and runs the loop in a new goroutine.
func (a *Agent) Start(ctx context.Context) {
	a.Greet(ctx)
	if a.settings.Verbose {
		a.say(ctx, "Starting agent loop...", core.MessageLog)
	}
	go a.Run(ctx)
}

// Greet announces the agent and its task on the primary channel.
func (a *Agent) Greet(ctx context.Context) {
	a.say(ctx, fmt.Sprintf("Hello! I'm %s!\n\nI have been initialized to complete the following task:\n%q",
		a.DisplayName(), a.plan.Title()), core.MessageText)
}

// Run drives the plan until it terminates or the agent is paused. It returns
// the terminal reason, or "" when the loop stopped on a pause.
func (a *Agent) Run(ctx context.Context) plan.FinishReason {
	a.mu.Lock()
	if a.running || a.reason != "" {
		reason := a.reason
		a.mu.Unlock()
		return reason
	}
	a.running = true
	if a.baseCtx == nil {
		a.baseCtx = ctx
	}
	a.mu.Unlock()
	released := false
	defer func() {
		if released {
			return
		}
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	ctx = core.WithAgentName(core.WithConversationID(ctx, a.conversationID), a.name)
	ctx, runID := core.EnsureRunID(ctx)
	a.events.Emit(ctx, core.NewEvent(core.EventAgentStarted, a.name, runID, map[string]any{"title": a.plan.Title()}))
	a.logger.InfoContext(ctx, "agent.run.start", "run_id", runID, telemetry.LogPlan, a.plan.Title())

	for {
		if a.plan.IsCompleted() {
			return a.terminate(ctx, runID, plan.ReasonCompleted)
		}
		if a.plan.IsFinished() {
			reason := a.plan.FinishReason()
			if reason == "" || reason == plan.ReasonCompleted {
				reason = plan.ReasonFailed
			}
			return a.terminate(ctx, runID, reason)
		}
		if ctx.Err() != nil {
			a.plan.MarkFinished(plan.ReasonAborted)
			continue
		}
		if a.IsPaused() {
			a.narrate(ctx, "Agent is paused, not running step "+a.plan.DescribeCurrentStep(false))
			// A Resume during the narration finds running set and will not
			// restart the loop, so the exit decision is taken under the lock.
			a.mu.Lock()
			if !a.paused {
				a.mu.Unlock()
				continue
			}
			a.running = false
			released = true
			a.mu.Unlock()
			a.logger.InfoContext(ctx, "agent.run.paused", telemetry.LogStep, a.plan.CurrentStepIndex())
			return ""
		}
		a.drainInbox()
		a.runStep(ctx)
	}
}

func (a *Agent) terminate(ctx context.Context, runID string, reason plan.FinishReason) plan.FinishReason {
	if reason == plan.ReasonCompleted {
		a.plan.MarkCompleted()
	} else {
		a.plan.MarkFinished(reason)
	}

	if a.recorder != nil {
		rctx := context.WithoutCancel(ctx)
		if err := a.recorder.Record(rctx, a.name, a.plan); err != nil {
			a.logger.WarnContext(ctx, "agent.record.failed", telemetry.LogError, err)
		}
	}

	if reason == plan.ReasonCompleted {
		a.say(ctx, fmt.Sprintf("I have completed the task: %q", a.plan.Title()), core.MessageText)
	} else {
		a.say(ctx, fmt.Sprintf("I have failed to complete the task: %q (%s)", a.plan.Title(), reason), core.MessageText)
	}

	a.mu.Lock()
	a.reason = reason
	a.inbox = nil
	a.mu.Unlock()
	close(a.done)

	a.events.Emit(ctx, core.NewEvent(core.EventAgentFinished, a.name, runID, map[string]any{"reason": string(reason)}))
	a.logger.InfoContext(ctx, "agent.run.finish", "run_id", runID, "reason", reason)
	return reason
}

// say sends text on the primary channel prefixed with the agent name.
func (a *Agent) say(ctx context.Context, text string, kind core.MessageType) {
	msg := core.Message{
		Content: a.DisplayName() + ": " + text,
		Agent:   a.name,
		Type:    kind,
	}
	if err := a.channel.SendMessageAsAssistant(context.WithoutCancel(ctx), msg, a.conversationID); err != nil {
		a.logger.WarnContext(ctx, "agent.channel.send_failed", telemetry.LogChannel, a.channel.Name(), telemetry.LogError, err)
	}
}

func (a *Agent) narrate(ctx context.Context, text string) {
	if a.settings.Verbose {
		a.say(ctx, text, core.MessageLog)
	}
}

// availableModules lists every module the agent may act through: services,
// its own capability and channels, with the primary channel marked.
func (a *Agent) availableModules() []module.Module {
	var listed []module.Module
	if a.modules != nil {
		listed = a.modules.Modules()
	}
	out := make([]module.Module, 0, len(listed)+2)
	var channels []module.Module
	primarySeen := false
	for _, m := range listed {
		if m.Kind() == module.KindChannel {
			if m.Name() == a.channel.Name() {
				primarySeen = true
				m = module.WithDescriptionPrefix(m, PrimaryChannelPrefix)
			}
			channels = append(channels, m)
			continue
		}
		if m.Name() == ServiceName {
			continue
		}
		out = append(out, m)
	}
	out = append(out, a.self)
	if !primarySeen {
		channels = append([]module.Module{module.WithDescriptionPrefix(a.channel, PrimaryChannelPrefix)}, channels...)
	}
	return append(out, channels...)
}

func (a *Agent) sourceTranscript() string {
	return core.FormatTranscript(a.plan.SourceMessages())
}

func (a *Agent) shorten(s string) string {
	return telemetry.Truncate(s, a.settings.MaxSectionLength)
}
