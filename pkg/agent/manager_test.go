// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/oracle"
	"github.com/jllopis/onyx/pkg/plan"
)

func waitDone(t *testing.T, a *Agent) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("agent %s did not finish", a.Name())
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m := NewManager(&oracle.Scripted{}, nil)
	p, _ := plan.New(plan.Definition{Title: "t", Steps: []plan.StepDefinition{{Description: "s"}}}, nil)
	ch := channel.NewMemory("console")
	first, _ := New("SAME0001", &oracle.Scripted{}, p, ch, "c")
	second, _ := New("SAME0001", &oracle.Scripted{}, p, ch, "c")

	if err := m.Register(first); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := m.Register(second)
	if !stderrors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if got, _ := m.Get("SAME0001"); got != first {
		t.Fatalf("registration must not overwrite")
	}
}

func TestConcurrentRegistrationKeepsOneAgentPerName(t *testing.T) {
	m := NewManager(&oracle.Scripted{}, nil)
	p, _ := plan.New(plan.Definition{Title: "t", Steps: []plan.StepDefinition{{Description: "s"}}}, nil)
	ch := channel.NewMemory("console")

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, _ := New("RACE0001", &oracle.Scripted{}, p, ch, "c")
			if m.Register(a) == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if accepted != 1 || len(m.Agents()) != 1 {
		t.Fatalf("expected one registration, got %d (%d agents)", accepted, len(m.Agents()))
	}
}

func TestDispatchWithoutOracle(t *testing.T) {
	m := NewManager(nil, nil)
	_, err := m.DispatchForActionGroup(context.Background(), oracle.DiscreteActionGroup{
		Name:    "g",
		Actions: []oracle.DiscreteAction{{Defined: "do"}},
	}, channel.NewMemory("console"), "c")
	if !stderrors.Is(err, ErrNoOrchestrator) {
		t.Fatalf("expected ErrNoOrchestrator, got %v", err)
	}
}

func TestDispatchTwoGroups(t *testing.T) {
	model := &oracle.Scripted{}
	model.QueueSelections(oracle.None, oracle.None)
	ch := channel.NewMemory("console")
	m := NewManager(model, module.SourceFunc(func() []module.Module { return nil }))

	groups := []oracle.DiscreteActionGroup{
		{Name: "weather", Actions: []oracle.DiscreteAction{{SourceText: "what's the weather", Defined: "look up the weather"}}},
		{Name: "email", Actions: []oracle.DiscreteAction{
			{SourceText: "mail bob", Defined: "write the email"},
			{SourceText: "mail bob", Defined: "send the email"},
		}},
	}
	var agents []*Agent
	for _, g := range groups {
		a, err := m.DispatchForActionGroup(context.Background(), g, ch, "conv-9")
		if err != nil {
			t.Fatalf("dispatch %s: %v", g.Name, err)
		}
		agents = append(agents, a)
	}
	if agents[0].Name() == agents[1].Name() {
		t.Fatalf("agents share a name: %s", agents[0].Name())
	}
	for _, a := range agents {
		waitDone(t, a)
	}

	if agents[0].Plan().Title() != "weather" || len(agents[1].Plan().Steps()) != 2 {
		t.Fatalf("agents not bound to their groups")
	}
	step := agents[1].Plan().Steps()[0]
	if step.Description != "write the email" || !step.Required {
		t.Fatalf("unexpected step %+v", step)
	}
	src := agents[0].Plan().SourceMessages()
	if len(src) != 1 || src[0].Role != core.RoleUser || src[0].Content != "what's the weather" {
		t.Fatalf("unexpected source messages %+v", src)
	}
	if !containsMessage(ch.Contents(), "Hello! I'm Agent "+agents[0].Name()+"!") {
		t.Fatalf("missing greeting in %v", ch.Contents())
	}

	desc := m.DescribeAll()
	if !strings.Contains(desc, "- "+agents[0].Name()+": Name: weather") {
		t.Fatalf("unexpected descriptions:\n%s", desc)
	}
	if infos := m.Infos(); len(infos) != 2 || !infos[0].Finished {
		t.Fatalf("unexpected infos %+v", infos)
	}
}

func TestRecieveAgentMessage(t *testing.T) {
	m := NewManager(&oracle.Scripted{}, nil)
	p, _ := plan.New(plan.Definition{Title: "t", Steps: []plan.StepDefinition{{Description: "s"}}}, nil)
	a, _ := New("INBOX001", &oracle.Scripted{}, p, channel.NewMemory("console"), "c")
	if err := m.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}

	msg := core.UserMessage("more details")
	msg.Agent = "INBOX001"
	if !m.RecieveAgentMessage(msg) {
		t.Fatalf("expected the message to be routed")
	}
	msg.Agent = "NOBODY00"
	if m.RecieveAgentMessage(msg) {
		t.Fatalf("unknown agent must not accept messages")
	}
	if m.RecieveAgentMessage(core.UserMessage("no agent")) {
		t.Fatalf("message without agent must not be routed")
	}
}

func TestPauseResumeUnknownAgent(t *testing.T) {
	m := NewManager(&oracle.Scripted{}, nil)
	if err := m.Pause("missing"); !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := m.Resume("missing"); !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMaxConcurrentQueuesAgents(t *testing.T) {
	release := make(chan struct{})
	model := &oracle.Scripted{}
	model.Selection = func(string, []oracle.SelectionOption) *oracle.SelectionDecision {
		<-release
		return nil
	}
	m := NewManager(model, nil, WithMaxConcurrent(1))
	ch := channel.NewMemory("console")
	group := oracle.DiscreteActionGroup{Name: "g", Actions: []oracle.DiscreteAction{{Defined: "do"}}}

	first, err := m.DispatchForActionGroup(context.Background(), group, ch, "c")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	second, err := m.DispatchForActionGroup(context.Background(), group, ch, "c")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := m.Pending(); got != 1 {
		t.Fatalf("expected one pending agent, got %d", got)
	}
	close(release)
	waitDone(t, first)
	waitDone(t, second)
	if m.Pending() != 0 {
		t.Fatalf("queue not drained")
	}
}

func TestSettingsFuncAppliesToNewAgents(t *testing.T) {
	model := &oracle.Scripted{}
	model.QueueSelections(oracle.None)
	verbose := true
	m := NewManager(model, nil, WithAgentSettings(func() Settings {
		s := DefaultSettings()
		s.Verbose = verbose
		return s
	}))
	ch := channel.NewMemory("console")
	a, err := m.DispatchForActionGroup(context.Background(), oracle.DiscreteActionGroup{
		Name: "g", Actions: []oracle.DiscreteAction{{Defined: "do"}},
	}, ch, "c")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	waitDone(t, a)
	if !containsMessage(ch.Contents(), "Starting agent loop...") {
		t.Fatalf("verbose settings not applied: %v", ch.Contents())
	}
}
