// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package plan implements the Plan-of-Action: an ordered list of steps with
// completion and failure bookkeeping, driven by a single agent.
//
// Steps run strictly in index order. currentStepIndex never decreases, and
// once the plan is finished no further mutation of the plan or its steps has
// any effect.
package plan

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/errors"
)

// FinishReason explains why a step or a plan stopped.
type FinishReason string

const (
	ReasonCompleted FinishReason = "COMPLETED"
	ReasonAborted   FinishReason = "ABORTED"
	ReasonFailed    FinishReason = "FAILED"
)

// Valid reports whether r is a known reason.
func (r FinishReason) Valid() bool {
	switch r {
	case ReasonCompleted, ReasonAborted, ReasonFailed:
		return true
	}
	return false
}

// Step is one unit of a plan.
type Step struct {
	Description  string       `json:"description" yaml:"description"`
	Required     bool         `json:"required" yaml:"required"`
	Retries      int          `json:"retries" yaml:"retries"`
	ActionOutput any          `json:"actionOutput,omitempty" yaml:"actionOutput,omitempty"`
	Context      string       `json:"context,omitempty" yaml:"context,omitempty"`
	Completed    bool         `json:"completed" yaml:"completed"`
	Finished     bool         `json:"finished" yaml:"finished"`
	FinishReason FinishReason `json:"finishReason,omitempty" yaml:"finishReason,omitempty"`
}

// StepDefinition is a step as proposed by the oracle.
type StepDefinition struct {
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Definition is a plan as proposed by the oracle.
type Definition struct {
	Title string           `json:"title"`
	Steps []StepDefinition `json:"steps"`
}

// Plan is a Plan-of-Action. Mutations are meant for the owning agent only;
// the read accessors are safe to call from other goroutines.
type Plan struct {
	mu       sync.RWMutex
	title    string
	steps    []Step
	source   []core.Message
	current  int
	complete bool
	finished bool
	reason   FinishReason
}

// New builds a plan from a definition. A plan needs at least one step.
func New(def Definition, source []core.Message) (*Plan, error) {
	if len(def.Steps) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "plan of action needs at least one step", nil).
			WithContext("title", def.Title)
	}
	title := strings.TrimSpace(def.Title)
	if title == "" {
		title = "untitled task"
	}
	steps := make([]Step, len(def.Steps))
	for i, sd := range def.Steps {
		steps[i] = Step{Description: sd.Description, Required: sd.Required}
	}
	src := make([]core.Message, len(source))
	copy(src, source)
	return &Plan{title: title, steps: steps, source: src}, nil
}

// Title returns the plan title.
func (p *Plan) Title() string { return p.title }

// Steps returns a copy of all steps.
func (p *Plan) Steps() []Step {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// SourceMessages returns the messages the plan was derived from.
func (p *Plan) SourceMessages() []core.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.Message, len(p.source))
	copy(out, p.source)
	return out
}

// AppendSourceMessages adds messages received while the plan runs.
func (p *Plan) AppendSourceMessages(msgs ...core.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.source = append(p.source, msgs...)
}

// CurrentStepIndex returns the index of the step being executed. It equals
// len(steps) once every step has been processed.
func (p *Plan) CurrentStepIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// IsCompleted reports whether the plan finished successfully.
func (p *Plan) IsCompleted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.complete
}

// IsFinished reports whether the plan reached a terminal state.
func (p *Plan) IsFinished() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.finished
}

// FinishReason returns the terminal reason, empty while running.
func (p *Plan) FinishReason() FinishReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reason
}

// CurrentStep returns a copy of the current step. ok is false once the plan
// is finished.
func (p *Plan) CurrentStep() (Step, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.finished || p.current >= len(p.steps) {
		return Step{}, false
	}
	return p.steps[p.current], true
}

func (p *Plan) mutateCurrent(fn func(*Step)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished || p.current >= len(p.steps) {
		return false
	}
	fn(&p.steps[p.current])
	return true
}

// IncrementRetries bumps the current step's retry counter and returns it.
func (p *Plan) IncrementRetries() int {
	n := 0
	p.mutateCurrent(func(s *Step) {
		s.Retries++
		n = s.Retries
	})
	return n
}

// SetActionOutput stores the output of the current step's action.
func (p *Plan) SetActionOutput(out any) {
	p.mutateCurrent(func(s *Step) { s.ActionOutput = out })
}

// AppendStepContext adds a line to the current step's context.
func (p *Plan) AppendStepContext(line string) {
	p.mutateCurrent(func(s *Step) {
		if s.Context == "" {
			s.Context = line
			return
		}
		s.Context += "\n" + line
	})
}

// MarkCurrentStepCompleted completes the current step and advances.
func (p *Plan) MarkCurrentStepCompleted() {
	p.finishCurrent(true, ReasonCompleted)
}

// MarkCurrentStepFinished ends the current step with reason and advances.
// A step that did not complete never fails the plan by itself.
func (p *Plan) MarkCurrentStepFinished(reason FinishReason) {
	if reason == ReasonCompleted {
		p.MarkCurrentStepCompleted()
		return
	}
	p.finishCurrent(false, reason)
}

func (p *Plan) finishCurrent(completed bool, reason FinishReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished || p.current >= len(p.steps) {
		return
	}
	s := &p.steps[p.current]
	s.Completed = completed
	s.Finished = true
	s.FinishReason = reason
	p.current++
	if p.current < len(p.steps) {
		return
	}
	if p.requiredStepsCompletedLocked() {
		p.complete, p.finished, p.reason = true, true, ReasonCompleted
		return
	}
	p.finished, p.reason = true, ReasonFailed
}

func (p *Plan) requiredStepsCompletedLocked() bool {
	for _, s := range p.steps {
		if s.Required && !s.Completed {
			return false
		}
	}
	return true
}

// MarkCompleted ends the plan successfully. It has no effect once finished.
func (p *Plan) MarkCompleted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.complete, p.finished, p.reason = true, true, ReasonCompleted
}

// MarkFinished ends the plan with reason. It has no effect once finished.
func (p *Plan) MarkFinished(reason FinishReason) {
	if reason == ReasonCompleted {
		p.MarkCompleted()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished, p.reason = true, reason
}

func requiredLabel(required bool) string {
	if required {
		return "REQUIRED"
	}
	return "OPTIONAL"
}

// Describe renders the plan title and steps for prompts and listings.
func (p *Plan) Describe() string {
	steps := p.Steps()
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nSteps:", p.title)
	for _, s := range steps {
		fmt.Fprintf(&b, "\n- %s (%s)", s.Description, requiredLabel(s.Required))
	}
	return b.String()
}

// DescribeCurrentStep renders the current step. verbose adds its status.
func (p *Plan) DescribeCurrentStep(verbose bool) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx := p.current
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	s := p.steps[idx]
	out := fmt.Sprintf("#%d %q", idx+1, s.Description)
	if verbose {
		out += fmt.Sprintf(" (%s, retries: %d)", requiredLabel(s.Required), s.Retries)
	}
	return out
}
