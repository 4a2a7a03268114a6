// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry configures logging, tracing and metrics for Onyx agents.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span and metric attribute keys.
const (
	AttrAgentName      = "onyx.agent.name"
	AttrAgentRunID     = "onyx.agent.run_id"
	AttrPlanTitle      = "onyx.plan.title"
	AttrStepIndex      = "onyx.step.index"
	AttrStepRetries    = "onyx.step.retries"
	AttrStepReason     = "onyx.step.finish_reason"
	AttrModuleName     = "onyx.module.name"
	AttrModuleKind     = "onyx.module.kind"
	AttrMethodName     = "onyx.method.name"
	AttrConversationID = "onyx.conversation.id"
	AttrChannelName    = "onyx.channel.name"
	AttrPipelineMode   = "onyx.pipeline.mode"
	AttrGroupCount     = "onyx.pipeline.group_count"
	AttrOracleCall     = "onyx.oracle.call"
	AttrOracleOutcome  = "onyx.oracle.outcome"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
)

// Slog attribute keys shared by every component.
const (
	LogAgent          = "agent"
	LogPlan           = "plan"
	LogStep           = "step"
	LogModule         = "module"
	LogMethod         = "method"
	LogConversationID = "conversation_id"
	LogChannel        = "channel"
	LogMode           = "mode"
	LogError          = "error"
)

// AgentAttributes returns common attributes for agent spans.
func AgentAttributes(name, runID, planTitle string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentName, name),
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrAgentRunID, runID))
	}
	if planTitle != "" {
		attrs = append(attrs, attribute.String(AttrPlanTitle, Truncate(planTitle, 200)))
	}
	return attrs
}

// StepAttributes returns attributes for a single step iteration.
func StepAttributes(index, retries int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrStepIndex, index),
		attribute.Int(AttrStepRetries, retries),
	}
}

// ActionAttributes returns attributes describing a chosen module method.
func ActionAttributes(module, kind, method string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrModuleName, module),
	}
	if kind != "" {
		attrs = append(attrs, attribute.String(AttrModuleKind, kind))
	}
	if method != "" {
		attrs = append(attrs, attribute.String(AttrMethodName, method))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(model string, inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	return attrs
}

// Truncate shortens s to at most max runes, appending "..." when cut.
// A non-positive max returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
