// SPDX-License-Identifier: Apache-2.0

package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/llm"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/plan"
	"github.com/jllopis/onyx/pkg/resilience"
	"github.com/jllopis/onyx/pkg/telemetry"
)

// DefaultTimeout bounds a single oracle call, retries included.
const DefaultTimeout = 60 * time.Second

// Option configures an LLMOracle.
type Option func(*LLMOracle)

// WithModel sets the model used for conversation.
func WithModel(model string) Option {
	return func(o *LLMOracle) { o.model = model }
}

// WithPlanningModel sets the model used for decisions and planning. It
// defaults to the conversation model.
func WithPlanningModel(model string) Option {
	return func(o *LLMOracle) { o.planningModel = model }
}

// WithTimeout bounds every oracle call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *LLMOracle) { o.timeout = d }
}

// WithRetry sets the retry policy for provider calls.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(o *LLMOracle) { o.retry = rc }
}

// WithCircuitBreaker guards the provider with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *LLMOracle) { o.breaker = cb }
}

// WithRateLimit caps provider calls to r per second with the given burst.
// r <= 0 disables limiting.
func WithRateLimit(r float64, burst int) Option {
	return func(o *LLMOracle) {
		if r <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithMetrics records oracle call outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *LLMOracle) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *LLMOracle) { o.logger = l }
}

// LLMOracle implements ChatModel over an llm.Provider. Structured decisions
// use forced tool calls.
type LLMOracle struct {
	provider      llm.Provider
	model         string
	planningModel string
	timeout       time.Duration
	retry         resilience.RetryConfig
	breaker       *resilience.CircuitBreaker
	limiter       *rate.Limiter
	metrics       *telemetry.Metrics
	logger        *slog.Logger
}

// NewLLM returns an oracle backed by p.
func NewLLM(p llm.Provider, opts ...Option) *LLMOracle {
	o := &LLMOracle{
		provider: p,
		timeout:  DefaultTimeout,
		retry:    resilience.DefaultRetryConfig(),
		breaker:  resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "oracle"}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.planningModel == "" {
		o.planningModel = o.model
	}
	o.logger = telemetry.LoggerOr(o.logger)
	return o
}

var _ ChatModel = (*LLMOracle)(nil)

// call runs one provider request under the rate limiter, the circuit breaker,
// retries and the call timeout.
func (o *LLMOracle) call(ctx context.Context, name string, req llm.ChatRequest) (*llm.ChatResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "onyx/oracle."+name,
		trace.WithAttributes(attribute.String(telemetry.AttrOracleCall, name), attribute.String(telemetry.AttrLLMModel, req.Model)))
	defer span.End()

	resp, err := resilience.WithTimeout(ctx, o.timeout, func(ctx context.Context) (*llm.ChatResponse, error) {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, errors.New(errors.CodeRateLimit, "oracle rate limit wait", err).WithRecoverable(true)
			}
		}
		var out *llm.ChatResponse
		err := o.breaker.Call(ctx, func(ctx context.Context) error {
			var err error
			out, err = resilience.Retry(ctx, o.retry, func(ctx context.Context) (*llm.ChatResponse, error) {
				return o.provider.Chat(ctx, req)
			})
			return err
		})
		return out, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.OracleCall(ctx, name, "error")
		o.metrics.RecordError(ctx, err, "oracle")
		o.logger.WarnContext(ctx, "oracle call failed", "call", name, telemetry.LogError, err)
		if errors.AsOnyxError(err) == nil {
			err = errors.New(errors.CodeOracleUnavailable, "oracle call "+name, err).WithRecoverable(true)
		}
		return nil, err
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	return resp, nil
}

// decide forces a call to tool and decodes its arguments into out. It
// reports false when the model did not call the tool.
func (o *LLMOracle) decide(ctx context.Context, name, system, user string, tool llm.Tool, out any) (bool, error) {
	resp, err := o.call(ctx, name, llm.ChatRequest{
		Model: o.planningModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		Tools:      []llm.Tool{tool},
		ToolChoice: &llm.ToolChoice{Name: tool.Function.Name},
	})
	if err != nil {
		return false, err
	}
	tc, ok := resp.FirstToolCall()
	if !ok || tc.Function.Name != tool.Function.Name {
		o.metrics.OracleCall(ctx, name, "none")
		return false, nil
	}
	if err := tc.Function.DecodeArguments(out); err != nil {
		o.metrics.OracleCall(ctx, name, "none")
		o.logger.WarnContext(ctx, "oracle returned malformed arguments", "call", name, telemetry.LogError, err)
		return false, nil
	}
	o.metrics.OracleCall(ctx, name, "ok")
	return true, nil
}

// GetChatResponseSimple implements ChatModel.
func (o *LLMOracle) GetChatResponseSimple(ctx context.Context, message, systemPrompt string) (string, error) {
	msgs := []llm.Message{{Role: llm.RoleUser, Content: message}}
	if systemPrompt != "" {
		msgs = append([]llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}, msgs...)
	}
	resp, err := o.call(ctx, "chat_simple", llm.ChatRequest{Model: o.model, Messages: msgs})
	if err != nil {
		return "", err
	}
	o.metrics.OracleCall(ctx, "chat_simple", "ok")
	return resp.Content, nil
}

// GetChatResponse implements ChatModel.
func (o *LLMOracle) GetChatResponse(ctx context.Context, messages []core.Message) (core.Message, error) {
	resp, err := o.call(ctx, "chat", llm.ChatRequest{Model: o.model, Messages: toLLMMessages(messages)})
	if err != nil {
		return core.Message{}, err
	}
	o.metrics.OracleCall(ctx, "chat", "ok")
	return core.AssistantMessage(resp.Content), nil
}

// GeneratePlanOfAction implements ChatModel.
func (o *LLMOracle) GeneratePlanOfAction(ctx context.Context, messages []core.Message) (*plan.Definition, error) {
	var def plan.Definition
	ok, err := o.decide(ctx, "plan", planSystemPrompt, "Here is the conversation:\n"+core.FormatTranscript(messages), planTool, &def)
	if err != nil || !ok || len(def.Steps) == 0 {
		return nil, err
	}
	return &def, nil
}

// MakeBooleanDecision implements ChatModel.
func (o *LLMOracle) MakeBooleanDecision(ctx context.Context, description string) (*BooleanDecision, error) {
	var d BooleanDecision
	ok, err := o.decide(ctx, "boolean", booleanSystemPrompt,
		"Here is the description of the decision to be made:\n"+description, booleanTool, &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

type rawSelection struct {
	Decision json.RawMessage `json:"decision"`
	Reason   string          `json:"reason"`
}

// MakeSelectionDecision implements ChatModel. A value outside options is
// reported as no decision.
func (o *LLMOracle) MakeSelectionDecision(ctx context.Context, description string, options []SelectionOption) (*SelectionDecision, error) {
	user := fmt.Sprintf("Here is the description of the decision to be made:\n%s\n\nHere are the options to choose from:\n%s",
		description, FormatOptions(options))
	var raw rawSelection
	ok, err := o.decide(ctx, "selection", selectionSystemPrompt, user, selectionTool, &raw)
	if err != nil || !ok {
		return nil, err
	}
	value := selectionValue(raw.Decision)
	if !HasOption(options, value) {
		o.logger.WarnContext(ctx, "oracle selected an unknown option", "value", value)
		return nil, nil
	}
	return &SelectionDecision{Decision: value, Reason: raw.Reason}, nil
}

func selectionValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

// GetDiscreteActions implements ChatModel. Groups without actions are dropped.
func (o *LLMOracle) GetDiscreteActions(ctx context.Context, prompt string) (*DiscreteActions, error) {
	var da DiscreteActions
	ok, err := o.decide(ctx, "discrete_actions", discreteActionsSystemPrompt, prompt, discreteActionsTool, &da)
	if err != nil || !ok {
		return nil, err
	}
	groups := da.Groups[:0]
	for _, g := range da.Groups {
		if len(g.Actions) > 0 {
			groups = append(groups, g)
		}
	}
	if len(groups) == 0 {
		return nil, nil
	}
	da.Groups = groups
	return &da, nil
}

// GetActionToPerformForDiscreteAction implements ChatModel. With a single
// method the call is forced to it. A plain text answer becomes a
// UsePrimaryChannel action carrying the text as "message".
func (o *LLMOracle) GetActionToPerformForDiscreteAction(ctx context.Context, action DiscreteAction, methods []module.Method, additional string) (*ActionToPerform, error) {
	const name = "action"
	tools := make([]llm.Tool, 0, len(methods))
	byName := make(map[string]bool, len(methods))
	for _, m := range methods {
		tools = append(tools, llm.NewFunctionTool(m.Name, m.Description, schemaOrEmpty(m.Parameters)))
		byName[m.Name] = true
	}
	req := llm.ChatRequest{
		Model: o.planningModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: actionSystemPrompt},
			{Role: llm.RoleUser, Content: "Here is the discrete action to be performed:\n" + action.Defined},
			{Role: llm.RoleUser, Content: "Here is some additional information to help you complete the task:\n" + additional},
		},
		Tools: tools,
	}
	if len(methods) == 1 {
		req.ToolChoice = &llm.ToolChoice{Name: methods[0].Name}
	}
	resp, err := o.call(ctx, name, req)
	if err != nil {
		return nil, err
	}
	tc, ok := resp.FirstToolCall()
	if !ok {
		if text := strings.TrimSpace(resp.Content); text != "" {
			o.metrics.OracleCall(ctx, name, "ok")
			return &ActionToPerform{Method: UsePrimaryChannel, Arguments: module.Args{"message": text}}, nil
		}
		o.metrics.OracleCall(ctx, name, "none")
		return nil, nil
	}
	if !byName[tc.Function.Name] {
		o.metrics.OracleCall(ctx, name, "none")
		o.logger.WarnContext(ctx, "oracle called an unknown method", telemetry.LogMethod, tc.Function.Name)
		return nil, nil
	}
	args := module.Args{}
	if err := tc.Function.DecodeArguments(&args); err != nil {
		o.metrics.OracleCall(ctx, name, "none")
		return nil, nil
	}
	o.metrics.OracleCall(ctx, name, "ok")
	return &ActionToPerform{Method: tc.Function.Name, Arguments: args}, nil
}

func schemaOrEmpty(s module.Schema) any {
	if s == nil {
		return module.Object(map[string]any{})
	}
	return map[string]any(s)
}

func toLLMMessages(msgs []core.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.Role(m.Role)
		if role == "" {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}
