package oracle

import "github.com/jllopis/onyx/pkg/llm"

const (
	toolBooleanDecision   = "boolean_decision"
	toolSelectionDecision = "give_selection_decision"
	toolDiscreteActions   = "extractDiscreteActions"
	toolPlanOfAction      = "generate_plan_of_action"
)

const booleanSystemPrompt = `You are a decision maker. Based on the description of the decision to be made, answer with a boolean true or false and explain why.`

const selectionSystemPrompt = `You are a decision maker. Based on the description of the decision to be made, answer with the value of the selected option and explain why.
Only values from the option list are valid answers.`

const discreteActionsSystemPrompt = `# Purpose
You are a discrete action extractor. You turn user input into a structured list of action groups.

# Context
A group is an ordered set of discrete actions which, once completed, fulfills a request.
A discrete action is the smallest indivisible unit of work within a group.
Even if the input contains no explicit request, define an action to perform in response.
Dependent actions belong to the same group; independent actions belong to different groups.
Each group is handed to its own agent, so define only as many groups as agents should be dispatched.

# Rules
- Be conservative in the number of groups, but define as many as necessary.
- Define as many actions per group as needed to complete the request.
- Do not take initiative: only extract actions present in the input.
- Preserve the original meaning of the user's message.`

const planSystemPrompt = `You are a planner. Given a conversation, produce a plan of action that fulfills the last request of the user.
The plan has a short title and an ordered list of steps. Mark a step as required when the task cannot succeed without it.`

const actionSystemPrompt = `You are an action caller. Given the description of an action, select the best tool to perform it and provide its arguments.
If no tool is suitable, use a channel to notify the user.

RULES:
- Always use tools`

var booleanTool = llm.NewFunctionTool(toolBooleanDecision, "Returns a yes or no decision.", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"decision": map[string]any{"type": "boolean", "description": "The boolean yes or no decision."},
		"reason":   map[string]any{"type": "string", "description": "The reason for the decision."},
	},
	"required": []string{"decision", "reason"},
})

var selectionTool = llm.NewFunctionTool(toolSelectionDecision, "Returns a decision object based on a selection input.", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"decision": map[string]any{
			"anyOf":       []any{map[string]any{"type": "string"}, map[string]any{"type": "number"}},
			"description": "The value corresponding to the selected option.",
		},
		"reason": map[string]any{"type": "string", "description": "The reason for the decision."},
	},
	"required": []string{"decision", "reason"},
})

var discreteActionsTool = llm.NewFunctionTool(toolDiscreteActions, "Extracts the discrete action groups of a request.", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"groups": map[string]any{
			"type":        "array",
			"description": "The groups of actions to be performed.",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string", "description": "A name which describes the action group."},
					"actions": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":        "object",
							"description": "The discrete action to be performed.",
							"properties": map[string]any{
								"defined":     map[string]any{"type": "string", "description": "The description of the discrete action."},
								"source_text": map[string]any{"type": "string", "description": "The part of the prompt that led to this action."},
							},
						},
					},
				},
				"required": []string{"name", "actions"},
			},
		},
	},
	"required": []string{"groups"},
})

var planTool = llm.NewFunctionTool(toolPlanOfAction, "Returns a plan of action.", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title": map[string]any{"type": "string", "description": "A short title for the task."},
		"steps": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{"type": "string"},
					"required":    map[string]any{"type": "boolean"},
				},
				"required": []string{"description", "required"},
			},
		},
	},
	"required": []string{"title", "steps"},
})
