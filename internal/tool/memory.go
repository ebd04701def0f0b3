package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"nanobot/internal/domain"
	"nanobot/internal/memory"
)

// MemoryTool gives the agent durable recall across sessions. Both operations
// share one tool so the model sees a single "memory" entry in its catalogue.
type MemoryTool struct {
	store   *memory.Store
	enabled bool
	logger  *slog.Logger
}

func NewMemoryTool(store *memory.Store, logger *slog.Logger) *MemoryTool {
	return &MemoryTool{store: store, enabled: store != nil, logger: logger}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return "Save a fact for later, or recall saved facts by keyword"
}

func (t *MemoryTool) ParameterSchema() map[string]any {
	return Schema(map[string]Param{
		"action":   {Type: "string", Description: "Either \"save\" or \"recall\""},
		"content":  {Type: "string", Description: "Fact to save (save) or keyword to search for (recall)"},
		"category": {Type: "string", Description: "Optional category for a saved fact"},
	}, []string{"action", "content"})
}

func (t *MemoryTool) Enabled() bool { return t.enabled }

func (t *MemoryTool) Execute(ctx context.Context, call domain.ToolCall) (string, error) {
	action := strings.ToLower(call.Argument("action"))
	content := call.Argument("content")
	if content == "" {
		return "", fmt.Errorf("missing required argument: content")
	}

	switch action {
	case "save":
		if err := t.store.Save(ctx, call.Argument("category"), content); err != nil {
			return "", fmt.Errorf("save memory: %w", err)
		}
		return "memory saved", nil
	case "recall":
		entries, err := t.store.Search(ctx, content, 10)
		if err != nil {
			return "", fmt.Errorf("recall memory: %w", err)
		}
		if len(entries) == 0 {
			return "no memories found", nil
		}
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "[%s] %s (%s)\n", e.Category, e.Content, e.CreatedAt.Format("2006-01-02"))
		}
		return strings.TrimRight(b.String(), "\n"), nil
	default:
		return "", fmt.Errorf("unknown action: %s", action)
	}
}
