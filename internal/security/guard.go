// Package security validates tool side effects before they happen: blocked
// shell commands and file paths escaping the sandboxed workspace. Violations
// surface as errors that the tool executor converts into failure outcomes;
// the risky operation is never executed.
package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"nanobot/internal/metrics"
)

// Guard holds the command blocklist and the workspace sandbox settings.
type Guard struct {
	blocked             []string
	workspace           string
	restrictToWorkspace bool
	logger              *slog.Logger
}

type GuardConfig struct {
	BlockedCommands     []string
	Workspace           string
	RestrictToWorkspace bool
	Logger              *slog.Logger
}

func NewGuard(cfg GuardConfig) *Guard {
	blocked := make([]string, 0, len(cfg.BlockedCommands))
	for _, b := range cfg.BlockedCommands {
		b = strings.TrimSpace(strings.ToLower(b))
		if b != "" {
			blocked = append(blocked, b)
		}
	}
	return &Guard{
		blocked:             blocked,
		workspace:           cfg.Workspace,
		restrictToWorkspace: cfg.RestrictToWorkspace,
		logger:              cfg.Logger,
	}
}

// CheckCommand rejects commands containing a blocked pattern,
// case-insensitively.
func (g *Guard) CheckCommand(command string) error {
	lower := strings.ToLower(command)
	for _, b := range g.blocked {
		if strings.Contains(lower, b) {
			metrics.SecurityBlocks.Inc()
			g.logger.Warn("command blocked", "pattern", b)
			return fmt.Errorf("blocked command: %s", b)
		}
	}
	return nil
}

// ResolvePath resolves a tool-supplied path. Relative paths resolve against
// the workspace; when the sandbox is enabled the resolved path must stay
// inside the workspace.
func (g *Guard) ResolvePath(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(g.workspace, resolved)
	}
	resolved = filepath.Clean(resolved)

	if g.restrictToWorkspace {
		workspace, err := filepath.Abs(g.workspace)
		if err != nil {
			return "", fmt.Errorf("cannot resolve workspace: %w", err)
		}
		abs, err := filepath.Abs(resolved)
		if err != nil {
			return "", fmt.Errorf("cannot resolve path: %w", err)
		}
		if abs != workspace && !strings.HasPrefix(abs, workspace+string(filepath.Separator)) {
			metrics.SecurityBlocks.Inc()
			g.logger.Warn("path escapes workspace", "path", path)
			return "", fmt.Errorf("path escapes workspace: %s", path)
		}
		resolved = abs
	}
	return resolved, nil
}

// Workspace returns the sandbox root.
func (g *Guard) Workspace() string {
	return g.workspace
}
