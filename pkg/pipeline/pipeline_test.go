package pipeline

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/onyx/pkg/agent"
	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/oracle"
	"github.com/jllopis/onyx/pkg/plan"
)

// modeModel answers the mode decision with mode and every other selection
// with no decision.
func modeModel(mode Mode) *oracle.Scripted {
	return &oracle.Scripted{
		Selection: func(_ string, options []oracle.SelectionOption) *oracle.SelectionDecision {
			if oracle.HasOption(options, string(ModeConverse)) {
				return &oracle.SelectionDecision{Decision: string(mode)}
			}
			return nil
		},
	}
}

func setup(model oracle.ChatModel, opts ...Option) (*Pipeline, *agent.Manager, *channel.Memory) {
	mgr := agent.NewManager(model, nil)
	p := New(model, mgr, opts...)
	ch := channel.NewMemory("console")
	ch.SetReceiver(p)
	return p, mgr, ch
}

func waitAgents(t *testing.T, mgr *agent.Manager) {
	t.Helper()
	for _, a := range mgr.Agents() {
		select {
		case <-a.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("agent %s did not finish", a.Name())
		}
	}
}

func TestConverseRepliesOnChannel(t *testing.T) {
	model := modeModel(ModeConverse)
	model.Reply = "Hi! How can I help?"
	_, mgr, ch := setup(model)

	if err := ch.Say(context.Background(), "conv-1", "hello"); err != nil {
		t.Fatalf("say: %v", err)
	}
	sent := ch.Sent()
	if len(sent) != 1 || sent[0].Message.Content != "Hi! How can I help?" || sent[0].ConversationID != "conv-1" {
		t.Fatalf("unexpected deliveries %+v", sent)
	}
	if sent[0].Message.Role != core.RoleAssistant {
		t.Fatalf("reply must be an assistant message, got %q", sent[0].Message.Role)
	}
	if len(mgr.Agents()) != 0 {
		t.Fatalf("converse mode must not dispatch agents")
	}
	if got := model.Calls(oracle.CallDiscreteActions); got != 0 {
		t.Fatalf("converse mode must not ask for discrete actions, got %d calls", got)
	}
}

func TestUndecidedModeFallsBackToConverse(t *testing.T) {
	model := &oracle.Scripted{Reply: "fallback reply"}
	p, _, _ := setup(model)
	if got := p.DecideResponseMode(context.Background(), []core.Message{core.UserMessage("hm")}); got != ModeConverse {
		t.Fatalf("expected converse, got %q", got)
	}

	model.Err = stderrors.New("offline")
	if got := p.DecideResponseMode(context.Background(), []core.Message{core.UserMessage("hm")}); got != ModeConverse {
		t.Fatalf("expected converse on oracle failure, got %q", got)
	}
}

func TestActionDispatchesOneAgentPerGroup(t *testing.T) {
	model := modeModel(ModeAction)
	model.Actions = &oracle.DiscreteActions{Groups: []oracle.DiscreteActionGroup{
		{Name: "weather", Actions: []oracle.DiscreteAction{{SourceText: "weather?", Defined: "look up the weather"}}},
		{Name: "email", Actions: []oracle.DiscreteAction{{SourceText: "email bob", Defined: "email bob"}}},
	}}
	events := &core.EventRecorder{}
	_, mgr, ch := setup(model, WithEvents(events))

	if err := ch.Say(context.Background(), "conv-2", "check the weather and email bob"); err != nil {
		t.Fatalf("say: %v", err)
	}
	agents := mgr.Agents()
	if len(agents) != 2 {
		t.Fatalf("expected two agents, got %d", len(agents))
	}
	if agents[0].Name() == agents[1].Name() {
		t.Fatalf("agents share name %s", agents[0].Name())
	}
	titles := map[string]bool{agents[0].Plan().Title(): true, agents[1].Plan().Title(): true}
	if !titles["weather"] || !titles["email"] {
		t.Fatalf("agents not bound to their groups: %v", titles)
	}
	for _, a := range agents {
		if a.ConversationID() != "conv-2" {
			t.Fatalf("agent bound to conversation %q", a.ConversationID())
		}
	}
	if got := events.OfType(core.EventModeDecided); len(got) != 1 || got[0].Payload["mode"] != "action" {
		t.Fatalf("unexpected mode events %+v", got)
	}
	waitAgents(t, mgr)
}

func TestActionWithoutExtractedActionsIsNoop(t *testing.T) {
	model := modeModel(ModeAction)
	_, mgr, ch := setup(model)

	if err := ch.Say(context.Background(), "c", "do something"); err != nil {
		t.Fatalf("say: %v", err)
	}
	if len(mgr.Agents()) != 0 || len(ch.Sent()) != 0 {
		t.Fatalf("expected a no-op, got %d agents and %d messages", len(mgr.Agents()), len(ch.Sent()))
	}
}

func TestUnavailableOracleIsNoop(t *testing.T) {
	model := &oracle.Scripted{Err: stderrors.New("offline")}
	_, mgr, ch := setup(model)
	if err := ch.Say(context.Background(), "c", "hello"); err != nil {
		t.Fatalf("pipeline must not fail on oracle errors: %v", err)
	}
	if len(mgr.Agents()) != 0 || len(ch.Sent()) != 0 {
		t.Fatalf("expected nothing to happen")
	}
}

func TestVerificationShortCircuits(t *testing.T) {
	model := modeModel(ModeAction)
	model.Reply = "Paris is the capital of France."
	model.Actions = &oracle.DiscreteActions{Groups: []oracle.DiscreteActionGroup{
		{Name: "answer", Actions: []oracle.DiscreteAction{{Defined: "tell the capital of France"}}},
	}}
	model.Boolean = func(description string) *oracle.BooleanDecision {
		if !strings.Contains(description, "tell the capital of France") {
			return nil
		}
		return &oracle.BooleanDecision{Decision: true, Reason: "the reply answers it"}
	}
	_, mgr, ch := setup(model, WithVerification(true))

	if err := ch.Say(context.Background(), "c", "what is the capital of France?"); err != nil {
		t.Fatalf("say: %v", err)
	}
	if len(mgr.Agents()) != 0 {
		t.Fatalf("sufficient reply must not dispatch agents")
	}
	if got := ch.Contents(); len(got) != 1 || got[0] != "Paris is the capital of France." {
		t.Fatalf("unexpected messages %v", got)
	}
}

func TestVerificationDeclinedDispatches(t *testing.T) {
	model := modeModel(ModeAction)
	model.Reply = "Sure."
	model.Actions = &oracle.DiscreteActions{Groups: []oracle.DiscreteActionGroup{
		{Name: "write", Actions: []oracle.DiscreteAction{{Defined: "write a file"}}},
	}}
	model.Boolean = func(string) *oracle.BooleanDecision { return &oracle.BooleanDecision{Decision: false} }
	_, mgr, ch := setup(model, WithVerification(true))

	if err := ch.Say(context.Background(), "c", "write a file"); err != nil {
		t.Fatalf("say: %v", err)
	}
	if len(mgr.Agents()) != 1 {
		t.Fatalf("expected one agent, got %d", len(mgr.Agents()))
	}
	waitAgents(t, mgr)
}

func TestPlanningModeDispatchesGeneratedPlan(t *testing.T) {
	model := modeModel(ModeAction)
	model.Plan = &plan.Definition{Title: "trip", Steps: []plan.StepDefinition{
		{Description: "find flights", Required: true},
		{Description: "book hotel", Required: false},
	}}
	_, mgr, ch := setup(model, WithPlanning(true))

	if err := ch.Say(context.Background(), "c", "plan my trip"); err != nil {
		t.Fatalf("say: %v", err)
	}
	agents := mgr.Agents()
	if len(agents) != 1 || agents[0].Plan().Title() != "trip" || len(agents[0].Plan().Steps()) != 2 {
		t.Fatalf("unexpected agents %+v", mgr.Infos())
	}
	if model.Calls(oracle.CallDiscreteActions) != 0 {
		t.Fatalf("planning mode must not extract action groups")
	}
	waitAgents(t, mgr)
}

func TestMessageForAgentIsRouted(t *testing.T) {
	model := &oracle.Scripted{}
	p, mgr, ch := setup(model)
	pl, _ := plan.New(plan.Definition{Title: "t", Steps: []plan.StepDefinition{{Description: "s"}}}, nil)
	a, err := agent.New("ROUTE001", model, pl, ch, "c")
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	if err := mgr.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}

	msg := core.UserMessage("here is the detail")
	msg.Agent = "ROUTE001"
	if err := p.UserMessage(context.Background(), ch, "c", msg); err != nil {
		t.Fatalf("user message: %v", err)
	}
	if model.Calls(oracle.CallSelection) != 0 {
		t.Fatalf("routed message must not reach the mode decision")
	}

	msg.Agent = "UNKNOWN0"
	model.Reply = "ok"
	if err := p.UserMessage(context.Background(), ch, "c", msg); err != nil {
		t.Fatalf("user message: %v", err)
	}
	if model.Calls(oracle.CallSelection) != 1 {
		t.Fatalf("unrouted message must fall back to the pipeline")
	}
}
