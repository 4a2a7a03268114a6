package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/onyx/pkg/core"
	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/oracle"
	"github.com/jllopis/onyx/pkg/plan"
	"github.com/jllopis/onyx/pkg/resilience"
	"github.com/jllopis/onyx/pkg/telemetry"
)

// consult runs an oracle call under the agent's oracle timeout.
func consult[T any](ctx context.Context, a *Agent, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.WithTimeout(ctx, a.settings.OracleTimeout, fn)
}

// runStep performs one attempt at the current step.
func (a *Agent) runStep(ctx context.Context) {
	step, ok := a.plan.CurrentStep()
	if !ok {
		return
	}
	idx := a.plan.CurrentStepIndex()
	ctx, span := telemetry.Tracer().Start(ctx, "onyx/agent.step",
		trace.WithAttributes(telemetry.AgentAttributes(a.name, "", a.plan.Title())...),
		trace.WithAttributes(telemetry.StepAttributes(idx, step.Retries)...))
	defer span.End()
	log := a.logger.With(telemetry.LogStep, idx)

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "agent.step.panic", "panic", r)
			span.SetStatus(codes.Error, fmt.Sprint(r))
			a.say(ctx, "An error occurred while trying to run step "+a.plan.DescribeCurrentStep(true), core.MessageText)
			a.plan.MarkFinished(plan.ReasonFailed)
		}
	}()

	if step.Retries > a.settings.MaxStepRetries {
		desc := a.plan.DescribeCurrentStep(false)
		a.failStep(ctx, step)
		a.narrate(ctx, fmt.Sprintf("Marked step %s as failed for too many retries, and moving on to the next step...", desc))
		return
	}
	a.narrate(ctx, "Running current step: "+a.plan.DescribeCurrentStep(true))

	target, method, err := a.selectAction(ctx, step)
	if err != nil {
		log.ErrorContext(ctx, "agent.step.invalid_selection", telemetry.LogError, err)
		span.RecordError(err)
		a.say(ctx, "An error occurred while trying to get the next action from step "+step.Description, core.MessageText)
		a.plan.MarkFinished(plan.ReasonFailed)
		return
	}
	if target == nil {
		log.WarnContext(ctx, "agent.step.no_action")
		a.failStep(ctx, step)
		return
	}

	output, err := a.perform(ctx, target, method, step)
	if err != nil {
		log.WarnContext(ctx, "agent.action.failed",
			telemetry.LogModule, target.Name(), telemetry.LogMethod, method.Name, telemetry.LogError, err)
		span.RecordError(err)
		a.metrics.RecordError(ctx, err, "agent")
		a.plan.SetActionOutput("error: " + err.Error())
		a.narrate(ctx, fmt.Sprintf("The %s action failed: %s. Retrying current step...", method.Name, a.shorten(err.Error())))
		a.plan.IncrementRetries()
		return
	}
	a.plan.SetActionOutput(output)
	text := formatOutput(output)
	a.narrate(ctx, fmt.Sprintf("Result of %s action: %s", method.Name, a.shorten(text)))

	a.postAction(ctx, text)
	a.finish(ctx, text)
}

// selectAction asks for a module and then for one of its methods. A nil
// module means the oracle found nothing suitable. An error means the oracle
// chose something that does not exist.
func (a *Agent) selectAction(ctx context.Context, step plan.Step) (module.Module, module.Method, error) {
	modules := a.availableModules()
	options := oracle.ModuleOptions(modules)
	prompt := a.moduleSelectionPrompt(step.Description)
	dec, err := consult(ctx, a, func(ctx context.Context) (*oracle.SelectionDecision, error) {
		return a.model.MakeSelectionDecision(ctx, prompt, options)
	})
	if err != nil {
		a.logger.WarnContext(ctx, "agent.oracle.unavailable", "call", "module_selection", telemetry.LogError, err)
		return nil, module.Method{}, nil
	}
	if dec.IsNone() {
		a.narrateNone(ctx, dec)
		return nil, module.Method{}, nil
	}
	a.narrate(ctx, fmt.Sprintf("%s was chosen because %q", dec.Decision, dec.Reason))

	target, ok := module.Index(modules)[dec.Decision]
	if !ok {
		return nil, module.Method{}, errors.New(errors.CodeMethodNotFound, "unknown module "+dec.Decision, nil).
			WithContext("module", dec.Decision)
	}

	mopts := oracle.MethodOptions(target)
	mprompt := a.methodSelectionPrompt(target, step.Description)
	mdec, err := consult(ctx, a, func(ctx context.Context) (*oracle.SelectionDecision, error) {
		return a.model.MakeSelectionDecision(ctx, mprompt, mopts)
	})
	if err != nil {
		a.logger.WarnContext(ctx, "agent.oracle.unavailable", "call", "method_selection", telemetry.LogError, err)
		return nil, module.Method{}, nil
	}
	if mdec.IsNone() {
		a.narrateNone(ctx, mdec)
		return nil, module.Method{}, nil
	}
	a.narrate(ctx, fmt.Sprintf("%s was chosen because %q", mdec.Decision, mdec.Reason))

	method, ok := module.FindMethod(target, mdec.Decision)
	if !ok {
		return nil, module.Method{}, errors.New(errors.CodeMethodNotFound,
			fmt.Sprintf("module %s has no method %s", target.Name(), mdec.Decision), nil).
			WithContext("module", target.Name()).
			WithContext("method", mdec.Decision)
	}
	return target, method, nil
}

func (a *Agent) narrateNone(ctx context.Context, dec *oracle.SelectionDecision) {
	if dec == nil {
		a.narrate(ctx, "No decision was made.")
		return
	}
	a.narrate(ctx, fmt.Sprintf("none was chosen because %q", dec.Reason))
}

// perform materializes arguments for method and invokes it.
func (a *Agent) perform(ctx context.Context, target module.Module, method module.Method, step plan.Step) (any, error) {
	_, span := telemetry.Tracer().Start(ctx, "onyx/agent.action",
		trace.WithAttributes(telemetry.ActionAttributes(target.Name(), string(target.Kind()), method.Name)...))
	defer span.End()

	action := oracle.DiscreteAction{SourceText: a.sourceTranscript(), Defined: step.Description}
	info := a.argumentContext()
	act, err := consult(ctx, a, func(ctx context.Context) (*oracle.ActionToPerform, error) {
		return a.model.GetActionToPerformForDiscreteAction(ctx, action, []module.Method{method}, info)
	})
	if err != nil {
		return nil, errors.New(errors.CodeOracleUnavailable, "materialize arguments", err).WithRecoverable(true)
	}
	if act == nil {
		return nil, errors.New(errors.CodeActionFailed, "no arguments for "+method.Name, nil).WithRecoverable(true)
	}
	if act.Method == oracle.UsePrimaryChannel {
		a.say(ctx, act.Arguments.String("message"), core.MessageText)
		return "Message sent.", nil
	}
	if act.Method != method.Name {
		return nil, errors.New(errors.CodeActionFailed,
			fmt.Sprintf("arguments were produced for %s instead of %s", act.Method, method.Name), nil).WithRecoverable(true)
	}
	return a.validator.Invoke(ctx, target.Name(), method, act.Arguments)
}

// postAction lets the oracle keep part of the result in the agent context.
func (a *Agent) postAction(ctx context.Context, output string) {
	action := oracle.DiscreteAction{Defined: a.postActionPrompt(output)}
	info := a.argumentContext()
	act, err := consult(ctx, a, func(ctx context.Context) (*oracle.ActionToPerform, error) {
		return a.model.GetActionToPerformForDiscreteAction(ctx, action, postActionMethods, info)
	})
	if err != nil {
		a.logger.WarnContext(ctx, "agent.oracle.unavailable", "call", "post_action", telemetry.LogError, err)
		return
	}
	step, _ := a.plan.CurrentStep()
	if act == nil || act.Method != postAddToContext {
		a.narrate(ctx, fmt.Sprintf("Post action decision for %s: %s", step.Description, postNone))
		return
	}
	key := strings.TrimSpace(act.Arguments.String("key"))
	if key == "" {
		return
	}
	a.store.Set(key, act.Arguments.String("value"))
	a.plan.AppendStepContext(contextAddedNote)
	a.narrate(ctx, fmt.Sprintf("Added %s to context with value for step %s", key, a.plan.DescribeCurrentStep(false)))
}

// finish asks how the step ends. No decision counts as a failed step.
func (a *Agent) finish(ctx context.Context, output string) {
	step, ok := a.plan.CurrentStep()
	if !ok {
		return
	}
	prompt := a.finishPrompt(output, step.Context)
	dec, err := consult(ctx, a, func(ctx context.Context) (*oracle.SelectionDecision, error) {
		return a.model.MakeSelectionDecision(ctx, prompt, finishOptions)
	})
	choice := finishFailed
	switch {
	case err != nil:
		a.logger.WarnContext(ctx, "agent.oracle.unavailable", "call", "finish", telemetry.LogError, err)
		a.narrate(ctx, "No finish decision made for step "+a.plan.DescribeCurrentStep(false))
	case dec.IsNone():
		a.narrate(ctx, "No finish decision made for step "+a.plan.DescribeCurrentStep(false))
	default:
		choice = dec.Decision
		a.narrate(ctx, fmt.Sprintf("Finish decision for %s: %s", step.Description, choice))
	}

	desc := a.plan.DescribeCurrentStep(false)
	switch choice {
	case finishCompleted:
		a.plan.MarkCurrentStepCompleted()
		a.stepFinished(ctx, plan.ReasonCompleted)
		a.narrate(ctx, fmt.Sprintf("Marked step %s as completed, and moving on to the next step...", desc))
	case finishRetry:
		a.plan.IncrementRetries()
		a.narrate(ctx, "Retrying current step...")
	default:
		a.failStep(ctx, step)
		a.narrate(ctx, fmt.Sprintf("Marked step %s as failed, and moving on to the next step...", desc))
	}
}

// failStep fails the current step. A failed required step ends the plan
// when AbortOnRequiredFailure is set.
func (a *Agent) failStep(ctx context.Context, step plan.Step) {
	a.plan.MarkCurrentStepFinished(plan.ReasonFailed)
	a.stepFinished(ctx, plan.ReasonFailed)
	if step.Required && a.settings.AbortOnRequiredFailure {
		a.plan.MarkFinished(plan.ReasonFailed)
	}
}

func (a *Agent) stepFinished(ctx context.Context, reason plan.FinishReason) {
	a.metrics.StepFinished(ctx, string(reason))
	a.events.Emit(ctx, core.NewEvent(core.EventStepFinished, a.name, "", map[string]any{
		"reason": string(reason),
		"index":  a.plan.CurrentStepIndex() - 1,
	}))
}

func formatOutput(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprint(out)
	}
	return string(raw)
}
