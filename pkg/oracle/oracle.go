// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package oracle defines the decision oracle consulted by agents and the
// pipeline for every non-deterministic choice, and an implementation over an
// llm.Provider.
//
// Every decision may come back empty. A nil result with a nil error means the
// oracle had no answer ("none"); callers fall back to a safe default and never
// treat it as fatal. A non-nil error means the oracle was unreachable and is
// handled the same way by the agent and the pipeline.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/plan"
)

// None is the option value meaning "no suitable option".
const None = "none"

// BooleanDecision is a yes/no answer with its rationale.
type BooleanDecision struct {
	Decision bool   `json:"decision"`
	Reason   string `json:"reason"`
}

// SelectionOption is one choice offered to MakeSelectionDecision.
type SelectionOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SelectionDecision is the chosen option value with its rationale.
type SelectionDecision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// IsNone reports whether the decision selected nothing.
func (d *SelectionDecision) IsNone() bool {
	return d == nil || strings.TrimSpace(d.Decision) == "" || strings.EqualFold(d.Decision, None)
}

// DiscreteAction is the smallest unit of work extracted from a request.
type DiscreteAction struct {
	SourceText string `json:"source_text"`
	Defined    string `json:"defined"`
}

// DiscreteActionGroup is an ordered set of dependent actions handled by one
// agent.
type DiscreteActionGroup struct {
	Name    string           `json:"name"`
	Actions []DiscreteAction `json:"actions"`
}

// DiscreteActions is a request decomposed into independent groups.
type DiscreteActions struct {
	Groups []DiscreteActionGroup `json:"groups"`
}

// ActionToPerform is the method chosen for an action and its arguments.
type ActionToPerform struct {
	Method    string      `json:"method"`
	Arguments module.Args `json:"arguments"`
}

// UsePrimaryChannel is the pseudo-method returned when the oracle answers an
// action request with text: the text should be sent to the user as is.
const UsePrimaryChannel = "usePrimaryChannel"

// ChatModel is the decision oracle contract.
type ChatModel interface {
	// GetChatResponseSimple answers message under systemPrompt.
	GetChatResponseSimple(ctx context.Context, message, systemPrompt string) (string, error)
	// GetChatResponse continues a conversation with an assistant message.
	GetChatResponse(ctx context.Context, messages []core.Message) (core.Message, error)
	GeneratePlanOfAction(ctx context.Context, messages []core.Message) (*plan.Definition, error)
	MakeBooleanDecision(ctx context.Context, description string) (*BooleanDecision, error)
	MakeSelectionDecision(ctx context.Context, description string, options []SelectionOption) (*SelectionDecision, error)
	GetDiscreteActions(ctx context.Context, prompt string) (*DiscreteActions, error)
	// GetActionToPerformForDiscreteAction picks one of methods for action and
	// materializes its arguments. additional carries task context.
	GetActionToPerformForDiscreteAction(ctx context.Context, action DiscreteAction, methods []module.Method, additional string) (*ActionToPerform, error)
}

// ModuleOptions renders modules as selection options, plus "none".
func ModuleOptions(modules []module.Module) []SelectionOption {
	opts := make([]SelectionOption, 0, len(modules)+1)
	for _, m := range modules {
		opts = append(opts, SelectionOption{Label: module.Label(m), Value: m.Name()})
	}
	return append(opts, SelectionOption{Label: "No module is suitable for this step.", Value: None})
}

// MethodOptions renders the methods of m as selection options, plus "none".
func MethodOptions(m module.Module) []SelectionOption {
	methods := m.Methods()
	opts := make([]SelectionOption, 0, len(methods)+1)
	for _, method := range methods {
		label := method.Description
		if label == "" {
			label = method.Name
		}
		opts = append(opts, SelectionOption{Label: label, Value: method.Name})
	}
	return append(opts, SelectionOption{Label: "No action is suitable for this step.", Value: None})
}

// FormatOptions lists options as "- value: label" lines.
func FormatOptions(options []SelectionOption) string {
	lines := make([]string, len(options))
	for i, o := range options {
		lines[i] = fmt.Sprintf("- %s: %s", o.Value, o.Label)
	}
	return strings.Join(lines, "\n")
}

// HasOption reports whether value is one of options.
func HasOption(options []SelectionOption, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}
