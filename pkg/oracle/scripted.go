package oracle

import (
	"context"
	"sync"

	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/plan"
)

// Call names recorded by Scripted.
const (
	CallChatSimple      = "chat_simple"
	CallChat            = "chat"
	CallPlan            = "plan"
	CallBoolean         = "boolean"
	CallSelection       = "selection"
	CallDiscreteActions = "discrete_actions"
	CallAction          = "action"
)

// Scripted is a programmable ChatModel for tests. Each decision is answered
// by its function field when set, otherwise by the next queued answer, and
// otherwise with no decision.
type Scripted struct {
	mu sync.Mutex

	Reply     string
	Plan      *plan.Definition
	Actions   *DiscreteActions
	Err       error
	Boolean   func(description string) *BooleanDecision
	Selection func(description string, options []SelectionOption) *SelectionDecision
	Action    func(action DiscreteAction, methods []module.Method, additional string) *ActionToPerform

	selections []*SelectionDecision
	actions    []*ActionToPerform
	calls      map[string]int
	prompts    map[string][]string
}

// QueueSelections queues selection answers by value. An empty value queues
// "no decision".
func (s *Scripted) QueueSelections(values ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		if v == "" {
			s.selections = append(s.selections, nil)
			continue
		}
		s.selections = append(s.selections, &SelectionDecision{Decision: v, Reason: "scripted"})
	}
	return s
}

// QueueActions queues action answers. A nil entry queues "no decision".
func (s *Scripted) QueueActions(actions ...*ActionToPerform) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, actions...)
	return s
}

// Calls returns how many times call was made.
func (s *Scripted) Calls(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[call]
}

// Prompts returns the descriptions or prompts received for call.
func (s *Scripted) Prompts(call string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts[call]...)
}

func (s *Scripted) record(call, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
		s.prompts = make(map[string][]string)
	}
	s.calls[call]++
	s.prompts[call] = append(s.prompts[call], prompt)
	return s.Err
}

func (s *Scripted) GetChatResponseSimple(_ context.Context, message, _ string) (string, error) {
	if err := s.record(CallChatSimple, message); err != nil {
		return "", err
	}
	return s.Reply, nil
}

func (s *Scripted) GetChatResponse(_ context.Context, messages []core.Message) (core.Message, error) {
	if err := s.record(CallChat, core.FormatTranscript(messages)); err != nil {
		return core.Message{}, err
	}
	return core.AssistantMessage(s.Reply), nil
}

func (s *Scripted) GeneratePlanOfAction(_ context.Context, messages []core.Message) (*plan.Definition, error) {
	if err := s.record(CallPlan, core.FormatTranscript(messages)); err != nil {
		return nil, err
	}
	return s.Plan, nil
}

func (s *Scripted) MakeBooleanDecision(_ context.Context, description string) (*BooleanDecision, error) {
	if err := s.record(CallBoolean, description); err != nil {
		return nil, err
	}
	if s.Boolean == nil {
		return nil, nil
	}
	return s.Boolean(description), nil
}

func (s *Scripted) MakeSelectionDecision(_ context.Context, description string, options []SelectionOption) (*SelectionDecision, error) {
	if err := s.record(CallSelection, description); err != nil {
		return nil, err
	}
	if s.Selection != nil {
		return s.Selection(description, options), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selections) == 0 {
		return nil, nil
	}
	next := s.selections[0]
	s.selections = s.selections[1:]
	return next, nil
}

func (s *Scripted) GetDiscreteActions(_ context.Context, prompt string) (*DiscreteActions, error) {
	if err := s.record(CallDiscreteActions, prompt); err != nil {
		return nil, err
	}
	return s.Actions, nil
}

func (s *Scripted) GetActionToPerformForDiscreteAction(_ context.Context, action DiscreteAction, methods []module.Method, additional string) (*ActionToPerform, error) {
	if err := s.record(CallAction, action.Defined); err != nil {
		return nil, err
	}
	if s.Action != nil {
		return s.Action(action, methods, additional), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.actions) == 0 {
		return nil, nil
	}
	next := s.actions[0]
	s.actions = s.actions[1:]
	return next, nil
}

var _ ChatModel = (*Scripted)(nil)
