package core

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	runKey ctxKey = iota
	conversationKey
	agentKey
)

// WithRunID tags ctx with the id of one agent run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runKey, id)
}

// RunID returns the run tag of ctx.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runKey).(string)
	return id, ok && id != ""
}

// EnsureRunID returns ctx tagged with a run id, generating "run-<uuid>" when
// ctx has none.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunID(ctx); ok {
		return ctx, id
	}
	id := "run-" + uuid.NewString()
	return WithRunID(ctx, id), id
}

// WithConversationID attaches the conversation being served to the context.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey, id)
}

// ConversationID returns the conversation id if present.
func ConversationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(conversationKey).(string)
	return id, ok && id != ""
}

// WithAgentName marks ctx as running on behalf of the named agent.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentKey, name)
}

// AgentName is the agent ctx runs for, or "" outside an agent.
func AgentName(ctx context.Context) string {
	name, _ := ctx.Value(agentKey).(string)
	return name
}
