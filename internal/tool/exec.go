package tool

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"nanobot/internal/domain"
	"nanobot/internal/security"
)

// ExecTool runs shell commands inside the workspace.
type ExecTool struct {
	guard     *security.Guard
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger
}

type ExecConfig struct {
	Timeout   time.Duration
	MaxOutput int
}

func NewExecTool(guard *security.Guard, cfg ExecConfig, logger *slog.Logger) *ExecTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = 64 * 1024
	}
	return &ExecTool{guard: guard, timeout: cfg.Timeout, maxOutput: cfg.MaxOutput, logger: logger}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Execute a shell command in the workspace and return its output"
}

func (t *ExecTool) ParameterSchema() map[string]any {
	return Schema(map[string]Param{
		"command": {Type: "string", Description: "Shell command to execute"},
	}, []string{"command"})
}

func (t *ExecTool) Enabled() bool { return true }

func (t *ExecTool) Execute(ctx context.Context, call domain.ToolCall) (string, error) {
	command := strings.TrimSpace(call.Argument("command"))
	if command == "" {
		return "", fmt.Errorf("missing required argument: command")
	}
	if err := t.guard.CheckCommand(command); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.guard.Workspace()

	t.logger.Debug("running command", "command", command)
	output, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s", t.timeout)
	}

	text := string(output)
	if len(text) > t.maxOutput {
		text = text[:t.maxOutput] + "\n... (output truncated)"
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Sprintf("exit code %d\n%s", exitErr.ExitCode(), text), nil
		}
		return "", fmt.Errorf("exec: %w", err)
	}
	if text == "" {
		return "(no output)", nil
	}
	return text, nil
}
