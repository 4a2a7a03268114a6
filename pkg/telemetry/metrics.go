// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/onyx/pkg/errors"
)

const instrumentationName = "github.com/jllopis/onyx"

// Tracer returns the tracer used for onyx spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Metrics holds the orchestration instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	dispatched    metric.Int64Counter
	active        metric.Int64UpDownCounter
	stepsFinished metric.Int64Counter
	oracleCalls   metric.Int64Counter
	errors        metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	dispatched, err := meter.Int64Counter("onyx.agents.dispatched",
		metric.WithDescription("Agents dispatched by the manager"))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("onyx.agents.active",
		metric.WithDescription("Agents currently running their plan"))
	if err != nil {
		return nil, err
	}
	steps, err := meter.Int64Counter("onyx.steps.finished",
		metric.WithDescription("Plan steps finished by reason"))
	if err != nil {
		return nil, err
	}
	calls, err := meter.Int64Counter("onyx.oracle.calls",
		metric.WithDescription("Decision oracle calls by call and outcome"))
	if err != nil {
		return nil, err
	}
	errCounter, err := meter.Int64Counter("onyx.errors.total",
		metric.WithDescription("Errors by code and component"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		dispatched:    dispatched,
		active:        active,
		stepsFinished: steps,
		oracleCalls:   calls,
		errors:        errCounter,
	}, nil
}

// AgentDispatched counts a dispatched agent.
func (m *Metrics) AgentDispatched(ctx context.Context) {
	if m == nil {
		return
	}
	m.dispatched.Add(ctx, 1)
}

// AgentActive adjusts the active agent gauge by delta.
func (m *Metrics) AgentActive(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.active.Add(ctx, delta)
}

// StepFinished counts a finished step.
func (m *Metrics) StepFinished(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.stepsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// OracleCall counts an oracle call. outcome is "ok", "none" or "error".
func (m *Metrics) OracleCall(ctx context.Context, call, outcome string) {
	if m == nil {
		return
	}
	m.oracleCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("call", call),
		attribute.String("outcome", outcome),
	))
}

// RecordError counts err under component, labelled with its code when typed.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code, recoverable := "UNKNOWN", "unknown"
	if oe := errors.AsOnyxError(err); oe != nil {
		code = string(oe.Code)
		recoverable = oe.RecoverableString()
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", code),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}
