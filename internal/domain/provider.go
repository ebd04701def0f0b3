package domain

import "context"

// ChatProvider is the contract the agent core depends on: given a
// conversation and a tool catalogue, return either a final answer or a set
// of tool invocations.
type ChatProvider interface {
	Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (*ChatResponse, error)
	Name() string
}

// StreamingChatProvider is an optional extension for providers that can
// deliver the answer as incremental content fragments.
type StreamingChatProvider interface {
	ChatProvider
	ChatStream(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, out chan<- string) error
}

// ChatResponse is one provider turn: final content, or requested tool calls.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ToolDefinition is the declarative tool shape handed to the provider. The
// core does not interpret the parameter schema.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
