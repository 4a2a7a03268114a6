// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"strings"
	"testing"

	"github.com/jllopis/onyx/pkg/core"
)

func newPlan(t *testing.T, steps ...StepDefinition) *Plan {
	t.Helper()
	p, err := New(Definition{Title: "write report", Steps: steps}, []core.Message{core.UserMessage("please write the report")})
	if err != nil {
		t.Fatalf("new plan: %v", err)
	}
	return p
}

func TestNewRequiresSteps(t *testing.T) {
	if _, err := New(Definition{Title: "empty"}, nil); err == nil {
		t.Fatalf("expected error for a plan without steps")
	}
}

func TestStepOrderingAndCompletion(t *testing.T) {
	p := newPlan(t,
		StepDefinition{Description: "gather", Required: true},
		StepDefinition{Description: "write", Required: true},
	)
	last := p.CurrentStepIndex()
	for i := 0; i < 2; i++ {
		s, ok := p.CurrentStep()
		if !ok {
			t.Fatalf("expected a current step at %d", i)
		}
		if i == 0 && s.Description != "gather" {
			t.Fatalf("unexpected first step %q", s.Description)
		}
		p.MarkCurrentStepCompleted()
		if idx := p.CurrentStepIndex(); idx < last || idx > 2 {
			t.Fatalf("index moved backwards or overflowed: %d", idx)
		} else {
			last = idx
		}
	}
	if !p.IsCompleted() || !p.IsFinished() || p.FinishReason() != ReasonCompleted {
		t.Fatalf("plan should be completed: %+v", p.Snapshot())
	}
	if _, ok := p.CurrentStep(); ok {
		t.Fatalf("finished plan has no current step")
	}
}

func TestOptionalFailureStillCompletes(t *testing.T) {
	p := newPlan(t,
		StepDefinition{Description: "nice to have", Required: false},
		StepDefinition{Description: "must do", Required: true},
	)
	p.MarkCurrentStepFinished(ReasonFailed)
	if p.IsFinished() {
		t.Fatalf("failing an optional step must only advance")
	}
	p.MarkCurrentStepCompleted()
	if !p.IsCompleted() {
		t.Fatalf("plan should complete when every required step completed")
	}
	steps := p.Steps()
	if steps[0].Completed || !steps[0].Finished || steps[0].FinishReason != ReasonFailed {
		t.Fatalf("unexpected first step state: %+v", steps[0])
	}
}

func TestRequiredFailureFailsAtEnd(t *testing.T) {
	p := newPlan(t, StepDefinition{Description: "must do", Required: true})
	p.MarkCurrentStepFinished(ReasonFailed)
	if !p.IsFinished() || p.IsCompleted() || p.FinishReason() != ReasonFailed {
		t.Fatalf("expected failed plan, got %+v", p.Snapshot())
	}
}

func TestTerminalTransitionsAreIdempotent(t *testing.T) {
	p := newPlan(t, StepDefinition{Description: "a", Required: true})
	p.MarkFinished(ReasonAborted)
	first := p.Snapshot()
	p.MarkFinished(ReasonAborted)
	p.MarkFinished(ReasonFailed)
	p.MarkCompleted()
	second := p.Snapshot()
	if second.FinishReason != ReasonAborted || second.Completed || !second.Finished {
		t.Fatalf("terminal state changed: %+v", second)
	}
	if first.CurrentStepIndex != second.CurrentStepIndex {
		t.Fatalf("index changed after finishing")
	}

	q := newPlan(t, StepDefinition{Description: "a", Required: true})
	q.MarkCompleted()
	q.MarkCompleted()
	if !q.IsCompleted() || !q.IsFinished() {
		t.Fatalf("completed implies finished")
	}
}

func TestNoMutationAfterFinish(t *testing.T) {
	p := newPlan(t, StepDefinition{Description: "a", Required: true}, StepDefinition{Description: "b"})
	p.MarkFinished(ReasonFailed)
	p.IncrementRetries()
	p.SetActionOutput("late")
	p.AppendStepContext("late")
	p.MarkCurrentStepCompleted()
	p.MarkCurrentStepFinished(ReasonFailed)
	for _, s := range p.Steps() {
		if s.Retries != 0 || s.ActionOutput != nil || s.Context != "" || s.Finished {
			t.Fatalf("step mutated after finish: %+v", s)
		}
	}
	if p.CurrentStepIndex() != 0 {
		t.Fatalf("index moved after finish")
	}
}

func TestStepBookkeeping(t *testing.T) {
	p := newPlan(t, StepDefinition{Description: "a", Required: true})
	if n := p.IncrementRetries(); n != 1 {
		t.Fatalf("unexpected retries %d", n)
	}
	p.SetActionOutput(map[string]any{"ok": true})
	p.AppendStepContext("first")
	p.AppendStepContext("second")
	s, _ := p.CurrentStep()
	if s.Context != "first\nsecond" {
		t.Fatalf("unexpected context %q", s.Context)
	}
	if s.ActionOutput == nil {
		t.Fatalf("missing action output")
	}
}

func TestDescribe(t *testing.T) {
	p := newPlan(t,
		StepDefinition{Description: "gather", Required: true},
		StepDefinition{Description: "polish", Required: false},
	)
	d := p.Describe()
	for _, want := range []string{"Name: write report", "- gather (REQUIRED)", "- polish (OPTIONAL)"} {
		if !strings.Contains(d, want) {
			t.Fatalf("description %q misses %q", d, want)
		}
	}
	if got := p.DescribeCurrentStep(false); got != `#1 "gather"` {
		t.Fatalf("unexpected current step description %q", got)
	}
	if got := p.DescribeCurrentStep(true); got != `#1 "gather" (REQUIRED, retries: 0)` {
		t.Fatalf("unexpected verbose description %q", got)
	}
}

func TestAppendSourceMessages(t *testing.T) {
	p := newPlan(t, StepDefinition{Description: "a", Required: true})
	p.AppendSourceMessages(core.UserMessage("also cc me"))
	if n := len(p.SourceMessages()); n != 2 {
		t.Fatalf("expected 2 source messages, got %d", n)
	}
}
