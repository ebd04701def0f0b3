package domain

import "context"

// Tool is the interface for agent capabilities (shell, file ops, messaging).
// Execute returns the textual result or an error; the executor normalizes
// errors into ToolResult failures.
type Tool interface {
	Name() string
	Description() string
	ParameterSchema() map[string]any
	Execute(ctx context.Context, call ToolCall) (string, error)
	Enabled() bool
}
