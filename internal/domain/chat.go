package domain

import (
	"encoding/json"
	"time"
)

// Role tags one entry in an LLM-facing conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is one turn in an LLM-facing conversation. ToolCalls is set
// only on assistant turns that requested tool invocations; ToolCallID is set
// only on tool turns and correlates the turn to the invocation it answers.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  int64      `json:"timestamp"` // unix milliseconds
}

func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content, Timestamp: nowMillis()}
}

func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, Timestamp: nowMillis()}
}

func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, Timestamp: nowMillis()}
}

// AssistantToolCalls creates an assistant turn carrying tool invocations.
func AssistantToolCalls(content string, calls []ToolCall) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, ToolCalls: calls, Timestamp: nowMillis()}
}

func ToolMessage(toolCallID, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, ToolCallID: toolCallID, Content: content, Timestamp: nowMillis()}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// ToolCall is a tool invocation requested by the LLM. Arguments is the raw
// JSON object the provider produced.
type ToolCall struct {
	ID           string `json:"id"`
	Type         string `json:"type"` // default "function"
	FunctionName string `json:"functionName"`
	Arguments    string `json:"arguments"`
}

// Argument returns a single string argument, or "" when the key is missing
// or the payload cannot be parsed.
func (tc ToolCall) Argument(key string) string {
	return tc.ArgumentMap()[key]
}

// ArgumentMap parses the arguments payload into a string map. Non-string
// values are re-encoded as JSON. An empty or malformed payload yields an
// empty map, never an error.
func (tc ToolCall) ArgumentMap() map[string]string {
	if tc.Arguments == "" {
		return map[string]string{}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(tc.Arguments), &raw); err != nil {
		return map[string]string{}
	}
	args := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			args[k] = s
			continue
		}
		args[k] = string(v)
	}
	return args
}

// ToolResult is the outcome of one tool invocation. Exactly one of Content
// and Error is meaningful, discriminated by Success.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Success    bool   `json:"success"`
	Content    string `json:"content,omitempty"`
	Error      string `json:"error,omitempty"`
}

func ToolSuccess(toolCallID, content string) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Success: true, Content: content}
}

func ToolFailure(toolCallID string, err error) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Success: false, Error: err.Error()}
}

// ToMessage converts the outcome into a tool-role conversation turn.
func (r ToolResult) ToMessage() ChatMessage {
	if r.Success {
		return ToolMessage(r.ToolCallID, r.Content)
	}
	return ToolMessage(r.ToolCallID, "Error: "+r.Error)
}
