package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"nanobot/internal/domain"
)

// record is the on-disk shape of one turn. Tool calls are written in the
// function-wrapped form; the flat form is still accepted on read for logs
// written by older builds.
type record struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	Timestamp  int64        `json:"timestamp"`
	ToolCalls  []callRecord `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type callRecord struct {
	ID       string      `json:"id"`
	Type     string      `json:"type,omitempty"`
	Function *funcRecord `json:"function,omitempty"`

	// Flat fallback form.
	FunctionName string `json:"functionName,omitempty"`
	Arguments    string `json:"arguments,omitempty"`
}

type funcRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func formatLine(msg domain.ChatMessage) (string, error) {
	rec := record{
		Role:       string(msg.Role),
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
		ToolCallID: msg.ToolCallID,
	}
	for _, tc := range msg.ToolCalls {
		rec.ToolCalls = append(rec.ToolCalls, callRecord{
			ID:       tc.ID,
			Type:     tc.Type,
			Function: &funcRecord{Name: tc.FunctionName, Arguments: tc.Arguments},
		})
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseLine(line string) (domain.ChatMessage, error) {
	var rec record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return domain.ChatMessage{}, err
	}

	msg := domain.ChatMessage{
		Role:       parseRole(rec.Role),
		Content:    rec.Content,
		Timestamp:  rec.Timestamp,
		ToolCallID: rec.ToolCallID,
	}
	for _, cr := range rec.ToolCalls {
		tc := domain.ToolCall{ID: cr.ID, Type: cr.Type}
		if tc.Type == "" {
			tc.Type = "function"
		}
		if cr.Function != nil {
			tc.FunctionName = cr.Function.Name
			tc.Arguments = cr.Function.Arguments
		} else {
			tc.FunctionName = cr.FunctionName
			tc.Arguments = cr.Arguments
		}
		msg.ToolCalls = append(msg.ToolCalls, tc)
	}
	return msg, nil
}

func parseRole(role string) domain.Role {
	switch strings.ToLower(role) {
	case "system":
		return domain.RoleSystem
	case "assistant":
		return domain.RoleAssistant
	case "tool":
		return domain.RoleTool
	default:
		return domain.RoleUser
	}
}

// fallbackFormat hand-builds a minimal record when JSON serialization fails.
func fallbackFormat(msg domain.ChatMessage) string {
	var sb strings.Builder
	sb.WriteString(`{"role":"`)
	sb.WriteString(escapeJSON(string(msg.Role)))
	sb.WriteString(`","content":"`)
	sb.WriteString(escapeJSON(msg.Content))
	sb.WriteString(`","timestamp":`)
	fmt.Fprintf(&sb, "%d", msg.Timestamp)
	if msg.ToolCallID != "" {
		sb.WriteString(`,"tool_call_id":"`)
		sb.WriteString(escapeJSON(msg.ToolCallID))
		sb.WriteString(`"`)
	}
	sb.WriteString("}")
	return sb.String()
}

func escapeJSON(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return replacer.Replace(s)
}
