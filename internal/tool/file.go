package tool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"nanobot/internal/domain"
	"nanobot/internal/security"
)

const maxReadBytes = 512 * 1024

// ReadFileTool reads a file from the workspace.
type ReadFileTool struct {
	guard  *security.Guard
	logger *slog.Logger
}

func NewReadFileTool(guard *security.Guard, logger *slog.Logger) *ReadFileTool {
	return &ReadFileTool{guard: guard, logger: logger}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file" }
func (t *ReadFileTool) Enabled() bool       { return true }

func (t *ReadFileTool) ParameterSchema() map[string]any {
	return Schema(map[string]Param{
		"path": {Type: "string", Description: "Path of the file to read, relative to the workspace"},
	}, []string{"path"})
}

func (t *ReadFileTool) Execute(ctx context.Context, call domain.ToolCall) (string, error) {
	path := call.Argument("path")
	if path == "" {
		return "", fmt.Errorf("missing required argument: path")
	}
	resolved, err := t.guard.ResolvePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("read %s: is a directory", path)
	}
	if info.Size() > maxReadBytes {
		return "", fmt.Errorf("read %s: file too large (%d bytes)", path, info.Size())
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	t.logger.Debug("read file", "path", resolved, "bytes", len(data))
	return string(data), nil
}

// WriteFileTool writes a file into the workspace, creating parent
// directories as needed.
type WriteFileTool struct {
	guard  *security.Guard
	logger *slog.Logger
}

func NewWriteFileTool(guard *security.Guard, logger *slog.Logger) *WriteFileTool {
	return &WriteFileTool{guard: guard, logger: logger}
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file, replacing it if it exists" }
func (t *WriteFileTool) Enabled() bool       { return true }

func (t *WriteFileTool) ParameterSchema() map[string]any {
	return Schema(map[string]Param{
		"path":    {Type: "string", Description: "Path of the file to write, relative to the workspace"},
		"content": {Type: "string", Description: "Content to write"},
	}, []string{"path", "content"})
}

func (t *WriteFileTool) Execute(ctx context.Context, call domain.ToolCall) (string, error) {
	path := call.Argument("path")
	if path == "" {
		return "", fmt.Errorf("missing required argument: path")
	}
	content := call.Argument("content")

	resolved, err := t.guard.ResolvePath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	t.logger.Debug("wrote file", "path", resolved, "bytes", len(content))
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}
