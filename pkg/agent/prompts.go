package agent

import (
	"fmt"
	"strings"

	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/oracle"
)

const (
	postAddToContext = "add_to_context"
	postNone         = "none"

	finishCompleted = "mark_completed_and_move_on"
	finishFailed    = "mark_failed_and_move_on"
	finishRetry     = "retry_current_step"

	contextAddedNote = "Action result added to agent context successfully."
)

var postActionMethods = []module.Method{
	{
		Name:        postAddToContext,
		Description: "Add information to the current context, allowing subsequent steps to read it.",
		Parameters: module.Object(map[string]any{
			"key":   module.StringProp("the name that the value will be stored under in the context"),
			"value": module.StringProp("the value to store in the context"),
		}, "key", "value"),
	},
	{
		Name:        postNone,
		Description: "Do nothing. Nothing is required to be done.",
		Parameters:  module.Object(map[string]any{}),
	},
}

var finishOptions = []oracle.SelectionOption{
	{Label: "Mark the current step as completed, and move on to the next step.", Value: finishCompleted},
	{Label: "Mark the current step as failed, and move on to the next step.", Value: finishFailed},
	{Label: "Retry the current step.", Value: finishRetry},
}

func (a *Agent) taskHeader(stepDescription string) string {
	return fmt.Sprintf("The current task is: %q\nThe current step is: %q\n\nThe source messages of this generated task are:\n%s",
		a.plan.Title(), stepDescription, a.sourceTranscript())
}

func (a *Agent) moduleSelectionPrompt(stepDescription string) string {
	return `The decision is which module to use, given a set of options and the current task to be completed.
Each module has a type, a name and a description which help you determine which one is the most relevant.

There are two module types: channels and services.
A channel is used to communicate with the user; a service is used to perform some action.
Use channels for direct communication with the user and almost never otherwise.
The (*PRIMARY CHANNEL) is the channel the user is talking to you on. Prefer it unless another channel makes more sense.

The chosen module must be relevant and suitable to complete the step.
If no module is suitable, choose "none".

A task is the high-level goal; steps are granular sub-tasks of it. Focus on the current step.

` + a.taskHeader(stepDescription)
}

func (a *Agent) methodSelectionPrompt(m module.Module, stepDescription string) string {
	return fmt.Sprintf(`The decision is which action to perform with the %s module, given a set of options and the current task to be completed.

The chosen action must be relevant and suitable to complete the step.
If no action is suitable, choose "none".

A task is the high-level goal; steps are granular sub-tasks of it. Focus on the current step.

%s`, m.Name(), a.taskHeader(stepDescription))
}

// argumentContext is the task context handed to argument materialization.
func (a *Agent) argumentContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The current task to perform is:\n%s\n\n", a.plan.Title())
	fmt.Fprintf(&b, "The current step to perform is:\n%s\n\n", a.plan.DescribeCurrentStep(true))
	if ctx := a.store.Snapshot().Format(a.settings.MaxSectionLength); ctx != "" {
		fmt.Fprintf(&b, "The agent context is:\n%s\n", ctx)
	}
	fmt.Fprintf(&b, "The source messages of this task are:\n%s", a.sourceTranscript())
	return b.String()
}

func (a *Agent) stepReport(output string, stepContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The current task is: %q\n", a.plan.Title())
	fmt.Fprintf(&b, "The current step is: %s\n", a.plan.DescribeCurrentStep(true))
	b.WriteString("The full task list is:\n")
	for _, s := range a.plan.Steps() {
		fmt.Fprintf(&b, "- %s\n", s.Description)
	}
	fmt.Fprintf(&b, "The output of the action performed for the current step was: %s\n", a.shorten(output))
	if stepContext != "" {
		fmt.Fprintf(&b, "\nHere is some context about the current step:\n%s\n", stepContext)
	}
	fmt.Fprintf(&b, "\nThe source messages of this generated task are:\n%s", a.sourceTranscript())
	return b.String()
}

func (a *Agent) postActionPrompt(output string) string {
	return "Given the result of an action in relation to a task, decide what to do with the result. " +
		"If nothing needs to be kept, use \"none\".\n\n" + a.stepReport(output, "")
}

func (a *Agent) finishPrompt(output, stepContext string) string {
	return "Given the result of an action in relation to a task, decide how the current step ends. " +
		"The decision must reflect the result of the action. A decision is always required, even when the task is complete.\n\n" +
		a.stepReport(output, stepContext)
}
