package agent

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"nanobot/internal/domain"
	"nanobot/internal/session"
	"nanobot/internal/tool"
)

// ContextBuilder assembles the message list handed to the LLM: system
// prompt, bounded session history, then the current user turn.
type ContextBuilder struct {
	workspace  string
	tools      *tool.Registry
	sessions   *session.Store
	maxHistory int
	logger     *slog.Logger
}

func NewContextBuilder(workspace string, tools *tool.Registry, sessions *session.Store, maxHistory int, logger *slog.Logger) *ContextBuilder {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &ContextBuilder{
		workspace:  workspace,
		tools:      tools,
		sessions:   sessions,
		maxHistory: maxHistory,
		logger:     logger,
	}
}

// Build returns the full conversation for one agent turn. History is
// re-read from the store on every call so the newest persisted turns are
// always visible.
func (b *ContextBuilder) Build(sessionID, userContent string) []domain.ChatMessage {
	messages := []domain.ChatMessage{domain.SystemMessage(b.systemPrompt())}
	messages = append(messages, b.sessions.History(sessionID, b.maxHistory)...)
	messages = append(messages, domain.UserMessage(userContent))
	return messages
}

func (b *ContextBuilder) systemPrompt() string {
	workspace, err := filepath.Abs(b.workspace)
	if err != nil {
		workspace = b.workspace
	}

	var sb strings.Builder
	sb.WriteString("You are Nanobot, a helpful personal AI assistant.\n\n")
	fmt.Fprintf(&sb, "Current time: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Workspace: %s\n", workspace)

	tools := b.tools.All()
	if len(tools) > 0 {
		sb.WriteString("\nAvailable tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&sb, "- %s: %s\n", t.Name(), t.Description())
		}
		sb.WriteString("\nUse tools when they help you complete the task. ")
		sb.WriteString("Present tool results in your own words; do not mention tool names to the user.\n")
	}
	sb.WriteString("Respond in the same language the user writes in.")
	return sb.String()
}
