// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline routes inbound user messages. A message is either handed
// to the agent it addresses, answered directly, or turned into one agent per
// discrete action group.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/onyx/pkg/agent"
	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/oracle"
	"github.com/jllopis/onyx/pkg/plan"
	"github.com/jllopis/onyx/pkg/resilience"
	"github.com/jllopis/onyx/pkg/telemetry"
)

// Mode is how the pipeline responds to a message.
type Mode string

const (
	ModeConverse Mode = "converse"
	ModeAction   Mode = "action"
)

const (
	DefaultHistoryWindow = 10
	DefaultTimeout       = 60 * time.Second
)

var modeOptions = []oracle.SelectionOption{
	{Label: "Reply to the user directly. Use this for questions, small talk and anything answerable without acting.", Value: string(ModeConverse)},
	{Label: "Perform one or more actions on behalf of the user.", Value: string(ModeAction)},
}

// Dispatcher is the part of the agent manager the pipeline drives.
type Dispatcher interface {
	RecieveAgentMessage(msg core.Message) bool
	DispatchForActionGroup(ctx context.Context, group oracle.DiscreteActionGroup, ch channel.Channel, conversationID string) (*agent.Agent, error)
	DispatchForPlan(ctx context.Context, def plan.Definition, source []core.Message, ch channel.Channel, conversationID string) (*agent.Agent, error)
}

// Pipeline implements channel.Receiver.
type Pipeline struct {
	model    oracle.ChatModel
	agents   Dispatcher
	window   int
	timeout  time.Duration
	verify   bool
	planning bool
	events   core.EventEmitter
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHistoryWindow sets how many recent messages the mode decision sees.
func WithHistoryWindow(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.window = n
		}
	}
}

// WithTimeout bounds each oracle call.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithVerification asks, before dispatching, whether a direct reply already
// covers every extracted action. If it does, the reply is sent instead.
func WithVerification(enabled bool) Option {
	return func(p *Pipeline) { p.verify = enabled }
}

// WithPlanning makes action mode generate a single plan of action for the
// message instead of one agent per action group.
func WithPlanning(enabled bool) Option {
	return func(p *Pipeline) { p.planning = enabled }
}

// WithEvents sets the event sink.
func WithEvents(e core.EventEmitter) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.events = e
		}
	}
}

// WithMetrics records pipeline errors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New returns a pipeline deciding with model and dispatching through agents.
func New(model oracle.ChatModel, agents Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		model:   model,
		agents:  agents,
		window:  DefaultHistoryWindow,
		timeout: DefaultTimeout,
		events:  core.NoopEventEmitter{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = telemetry.LoggerOr(p.logger)
	return p
}

// UserMessage handles msg received on ch. Oracle and dispatch failures are
// logged, never returned.
func (p *Pipeline) UserMessage(ctx context.Context, ch channel.Channel, conversationID string, msg core.Message) error {
	ctx, span := telemetry.Tracer().Start(ctx, "onyx/pipeline.user_message", trace.WithAttributes(
		attribute.String(telemetry.AttrChannelName, ch.Name()),
		attribute.String(telemetry.AttrConversationID, conversationID),
	))
	defer span.End()
	ctx = core.WithConversationID(ctx, conversationID)
	log := p.logger.With(telemetry.LogChannel, ch.Name(), telemetry.LogConversationID, conversationID)

	if msg.Agent != "" && p.agents != nil && p.agents.RecieveAgentMessage(msg) {
		log.InfoContext(ctx, "pipeline.routed_to_agent", telemetry.LogAgent, msg.Agent)
		return nil
	}

	history, err := ch.ConversationHistory(ctx, conversationID, p.window)
	if err != nil {
		log.WarnContext(ctx, "pipeline.history.failed", telemetry.LogError, err)
	}
	if len(history) == 0 {
		history = []core.Message{msg}
	}

	mode := p.DecideResponseMode(ctx, history)
	span.SetAttributes(attribute.String(telemetry.AttrPipelineMode, string(mode)))
	p.events.Emit(ctx, core.NewEvent(core.EventModeDecided, "", "", map[string]any{
		"mode":            string(mode),
		"conversation_id": conversationID,
	}))
	log.InfoContext(ctx, "pipeline.mode", telemetry.LogMode, mode)

	if mode == ModeAction {
		n := p.act(ctx, log, ch, conversationID, history)
		span.SetAttributes(attribute.Int(telemetry.AttrGroupCount, n))
		return nil
	}
	p.converse(ctx, log, ch, conversationID, history)
	return nil
}

// DecideResponseMode picks converse or action for the conversation. It
// falls back to converse when the oracle has no answer.
func (p *Pipeline) DecideResponseMode(ctx context.Context, messages []core.Message) Mode {
	prompt := "Decide how to respond to the latest user message of this conversation.\n\n" +
		core.FormatTranscript(messages)
	dec, err := resilience.WithTimeout(ctx, p.timeout, func(ctx context.Context) (*oracle.SelectionDecision, error) {
		return p.model.MakeSelectionDecision(ctx, prompt, modeOptions)
	})
	if err != nil {
		p.logger.WarnContext(ctx, "pipeline.mode.unavailable", telemetry.LogError, err)
		return ModeConverse
	}
	if dec.IsNone() || dec.Decision != string(ModeAction) {
		return ModeConverse
	}
	return ModeAction
}

func (p *Pipeline) reply(ctx context.Context, history []core.Message) (string, error) {
	msg, err := resilience.WithTimeout(ctx, p.timeout, func(ctx context.Context) (core.Message, error) {
		return p.model.GetChatResponse(ctx, history)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

func (p *Pipeline) converse(ctx context.Context, log *slog.Logger, ch channel.Channel, conversationID string, history []core.Message) {
	text, err := p.reply(ctx, history)
	if err != nil {
		log.WarnContext(ctx, "pipeline.converse.unavailable", telemetry.LogError, err)
		p.metrics.RecordError(ctx, err, "pipeline")
		return
	}
	if text == "" {
		log.WarnContext(ctx, "pipeline.converse.empty_reply")
		return
	}
	p.send(ctx, log, ch, conversationID, text)
}

func (p *Pipeline) send(ctx context.Context, log *slog.Logger, ch channel.Channel, conversationID, text string) {
	if err := ch.SendMessageAsAssistant(ctx, core.AssistantMessage(text), conversationID); err != nil {
		log.WarnContext(ctx, "pipeline.send.failed", telemetry.LogError, err)
		p.metrics.RecordError(ctx, err, "pipeline")
	}
}

// act dispatches agents for the latest message and returns how many were
// started.
func (p *Pipeline) act(ctx context.Context, log *slog.Logger, ch channel.Channel, conversationID string, history []core.Message) int {
	last, ok := core.LastUserMessage(history)
	if !ok {
		log.WarnContext(ctx, "pipeline.action.no_user_message")
		return 0
	}
	if p.agents == nil {
		log.ErrorContext(ctx, "pipeline.action.no_dispatcher")
		return 0
	}
	// Agents outlive the request that created them.
	dctx := context.WithoutCancel(ctx)

	if p.planning {
		return p.dispatchPlan(ctx, dctx, log, ch, conversationID, history, last)
	}

	actions, err := resilience.WithTimeout(ctx, p.timeout, func(ctx context.Context) (*oracle.DiscreteActions, error) {
		return p.model.GetDiscreteActions(ctx, last.Content)
	})
	if err != nil {
		log.WarnContext(ctx, "pipeline.action.unavailable", telemetry.LogError, err)
		p.metrics.RecordError(ctx, err, "pipeline")
		return 0
	}
	if actions == nil || len(actions.Groups) == 0 {
		log.InfoContext(ctx, "pipeline.action.none_extracted")
		return 0
	}

	if p.verify && p.replyCovers(ctx, log, ch, conversationID, history, actions) {
		return 0
	}

	started := 0
	for _, group := range actions.Groups {
		a, err := p.agents.DispatchForActionGroup(dctx, group, ch, conversationID)
		if err != nil {
			log.WarnContext(ctx, "pipeline.dispatch.failed", "group", group.Name, telemetry.LogError, err)
			p.metrics.RecordError(ctx, err, "pipeline")
			continue
		}
		started++
		log.InfoContext(ctx, "pipeline.dispatched", telemetry.LogAgent, a.Name(), "group", group.Name)
	}
	return started
}

func (p *Pipeline) dispatchPlan(ctx, dctx context.Context, log *slog.Logger, ch channel.Channel, conversationID string, history []core.Message, last core.Message) int {
	def, err := resilience.WithTimeout(ctx, p.timeout, func(ctx context.Context) (*plan.Definition, error) {
		return p.model.GeneratePlanOfAction(ctx, history)
	})
	if err != nil {
		log.WarnContext(ctx, "pipeline.plan.unavailable", telemetry.LogError, err)
		p.metrics.RecordError(ctx, err, "pipeline")
		return 0
	}
	if def == nil || len(def.Steps) == 0 {
		log.InfoContext(ctx, "pipeline.plan.empty")
		return 0
	}
	a, err := p.agents.DispatchForPlan(dctx, *def, []core.Message{last}, ch, conversationID)
	if err != nil {
		log.WarnContext(ctx, "pipeline.dispatch.failed", telemetry.LogPlan, def.Title, telemetry.LogError, err)
		p.metrics.RecordError(ctx, err, "pipeline")
		return 0
	}
	log.InfoContext(ctx, "pipeline.dispatched", telemetry.LogAgent, a.Name(), telemetry.LogPlan, def.Title)
	return 1
}

// replyCovers sends a direct reply and reports true when the oracle judges
// it satisfies every extracted action.
func (p *Pipeline) replyCovers(ctx context.Context, log *slog.Logger, ch channel.Channel, conversationID string, history []core.Message, actions *oracle.DiscreteActions) bool {
	text, err := p.reply(ctx, history)
	if err != nil || text == "" {
		return false
	}
	var b strings.Builder
	b.WriteString("Decide whether the reply below alone fully satisfies every one of the listed actions, with nothing left to do.\n\nActions:\n")
	for _, g := range actions.Groups {
		for _, a := range g.Actions {
			fmt.Fprintf(&b, "- %s\n", a.Defined)
		}
	}
	fmt.Fprintf(&b, "\nReply:\n%s", text)
	prompt := b.String()

	dec, err := resilience.WithTimeout(ctx, p.timeout, func(ctx context.Context) (*oracle.BooleanDecision, error) {
		return p.model.MakeBooleanDecision(ctx, prompt)
	})
	if err != nil || dec == nil || !dec.Decision {
		return false
	}
	log.InfoContext(ctx, "pipeline.action.reply_sufficient")
	p.send(ctx, log, ch, conversationID, text)
	return true
}

var _ channel.Receiver = (*Pipeline)(nil)
