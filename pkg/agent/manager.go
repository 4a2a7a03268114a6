// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/oracle"
	"github.com/jllopis/onyx/pkg/plan"
	"github.com/jllopis/onyx/pkg/queue"
	"github.com/jllopis/onyx/pkg/telemetry"
)

var (
	// ErrDuplicateName is returned when an agent name is already registered.
	ErrDuplicateName = errors.Sentinel(errors.CodeDuplicateName)
	// ErrNoOrchestrator is returned when the manager has no oracle to drive agents.
	ErrNoOrchestrator = errors.Sentinel(errors.CodeNoOrchestrator)
)

// Manager keeps live agents by name, dispatches new ones and routes messages
// addressed to them.
type Manager struct {
	model         oracle.ChatModel
	modules       module.Source
	settings      func() Settings
	recorder      plan.Recorder
	events        core.EventEmitter
	metrics       *telemetry.Metrics
	logger        *slog.Logger
	validator     *module.Validator
	maxConcurrent int

	mu      sync.RWMutex
	agents  map[string]*Agent
	order   []string
	active  int
	pending *queue.PriorityQueue[pendingStart]
}

type pendingStart struct {
	ctx   context.Context
	agent *Agent
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAgentSettings sets the settings handed to every new agent. The function
// is called on each dispatch so reloaded configuration applies to new agents.
func WithAgentSettings(fn func() Settings) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.settings = fn
		}
	}
}

// WithPlanRecorder records every agent's plan when it terminates.
func WithPlanRecorder(r plan.Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = r }
}

// WithManagerEvents sets the lifecycle event sink shared by all agents.
func WithManagerEvents(e core.EventEmitter) ManagerOption {
	return func(m *Manager) {
		if e != nil {
			m.events = e
		}
	}
}

// WithManagerMetrics records dispatch and activity counters.
func WithManagerMetrics(mt *telemetry.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMaxConcurrent caps how many agents run at once. Agents dispatched over
// the cap wait in a queue for a free slot. Zero means no cap.
func WithMaxConcurrent(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrent = n
		}
	}
}

// NewManager returns a manager whose agents decide with model and act through
// the modules in src.
func NewManager(model oracle.ChatModel, src module.Source, opts ...ManagerOption) *Manager {
	m := &Manager{
		model:     model,
		modules:   src,
		settings:  DefaultSettings,
		events:    core.NoopEventEmitter{},
		validator: module.NewValidator(),
		agents:    make(map[string]*Agent),
		pending:   queue.New[pendingStart](),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = telemetry.LoggerOr(m.logger)
	return m
}

// Register stores a. Names are never overwritten. Agents get their
// collaborators at construction, so nothing is bound back to the manager.
func (m *Manager) Register(a *Agent) error {
	if a == nil {
		return errors.New(errors.CodeInvalidInput, "agent is nil", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.name]; ok {
		return errors.New(errors.CodeDuplicateName, fmt.Sprintf("agent %s already registered", a.name), nil).
			WithContext("agent", a.name)
	}
	m.agents[a.name] = a
	m.order = append(m.order, a.name)
	return nil
}

// Get returns the agent registered under name.
func (m *Manager) Get(name string) (*Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[name]
	return a, ok
}

// Agents returns the registered agents in registration order.
func (m *Manager) Agents() []*Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Agent, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.agents[name])
	}
	return out
}

// Infos summarizes every registered agent.
func (m *Manager) Infos() []Info {
	agents := m.Agents()
	out := make([]Info, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Info())
	}
	return out
}

// DescribeAll lists every agent as "- NAME: plan description".
func (m *Manager) DescribeAll() string {
	var b strings.Builder
	for _, a := range m.Agents() {
		fmt.Fprintf(&b, "- %s: %s\n", a.name, a.Describe())
	}
	return b.String()
}

// RecieveAgentMessage routes msg to the live agent named by msg.Agent. It
// returns false when no such agent is running.
func (m *Manager) RecieveAgentMessage(msg core.Message) bool {
	if msg.Agent == "" {
		return false
	}
	a, ok := m.Get(msg.Agent)
	if !ok {
		return false
	}
	return a.Deliver(msg)
}

// Pause suspends the named agent.
func (m *Manager) Pause(name string) error {
	a, ok := m.Get(name)
	if !ok {
		return errors.New(errors.CodeNotFound, "unknown agent "+name, nil)
	}
	a.Pause()
	return nil
}

// Resume restarts the named agent.
func (m *Manager) Resume(name string) error {
	a, ok := m.Get(name)
	if !ok {
		return errors.New(errors.CodeNotFound, "unknown agent "+name, nil)
	}
	a.Resume()
	return nil
}

// DispatchForActionGroup starts an agent whose plan is titled with the group
// name and has one required step per action.
func (m *Manager) DispatchForActionGroup(ctx context.Context, group oracle.DiscreteActionGroup, ch channel.Channel, conversationID string) (*Agent, error) {
	def := plan.Definition{Title: group.Name}
	source := make([]core.Message, 0, len(group.Actions))
	for _, act := range group.Actions {
		def.Steps = append(def.Steps, plan.StepDefinition{Description: act.Defined, Required: true})
		if strings.TrimSpace(act.SourceText) != "" {
			source = append(source, core.UserMessage(act.SourceText))
		}
	}
	return m.DispatchForPlan(ctx, def, source, ch, conversationID)
}

// DispatchForPlan starts an agent for an already defined plan.
func (m *Manager) DispatchForPlan(ctx context.Context, def plan.Definition, source []core.Message, ch channel.Channel, conversationID string) (*Agent, error) {
	if m.model == nil {
		return nil, errors.New(errors.CodeNoOrchestrator, "agent manager has no oracle", nil)
	}
	p, err := plan.New(def, source)
	if err != nil {
		return nil, err
	}

	var a *Agent
	for attempt := 0; ; attempt++ {
		a, err = New(NewName(), m.model, p, ch, conversationID,
			WithModules(m.modules),
			WithSettings(m.settings()),
			WithRecorder(m.recorder),
			WithEvents(m.events),
			WithMetrics(m.metrics),
			WithLogger(m.logger),
			WithValidator(m.validator),
		)
		if err != nil {
			return nil, err
		}
		err = m.Register(a)
		if err == nil {
			break
		}
		if !errors.HasCode(err, errors.CodeDuplicateName) || attempt >= 3 {
			return nil, err
		}
	}

	m.metrics.AgentDispatched(ctx)
	m.events.Emit(ctx, core.NewEvent(core.EventAgentDispatched, a.name, "", map[string]any{
		"title":           def.Title,
		"channel":         ch.Name(),
		"conversation_id": conversationID,
	}))
	m.logger.InfoContext(ctx, "agent.manager.dispatch",
		telemetry.LogAgent, a.name, telemetry.LogPlan, def.Title, telemetry.LogChannel, ch.Name())

	m.mu.Lock()
	wait := m.maxConcurrent > 0 && m.active >= m.maxConcurrent
	if wait {
		m.pending.Enqueue(pendingStart{ctx: ctx, agent: a}, 0)
	} else {
		m.active++
	}
	m.mu.Unlock()

	if wait {
		m.logger.InfoContext(ctx, "agent.manager.queued", telemetry.LogAgent, a.name, "pending", m.pending.Len())
		return a, nil
	}
	m.launch(ctx, a)
	return a, nil
}

func (m *Manager) launch(ctx context.Context, a *Agent) {
	m.metrics.AgentActive(ctx, 1)
	a.Start(ctx)
	go m.watch(ctx, a)
}

// watch frees the agent's slot once it terminates, or hands it to the next
// pending agent.
func (m *Manager) watch(ctx context.Context, a *Agent) {
	<-a.Done()
	m.metrics.AgentActive(context.WithoutCancel(ctx), -1)

	m.mu.Lock()
	next, ok := m.pending.Dequeue()
	if !ok {
		m.active--
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.pending.Release()
	m.launch(next.ctx, next.agent)
}

// Pending returns how many dispatched agents wait for a slot.
func (m *Manager) Pending() int {
	return m.pending.Len()
}
