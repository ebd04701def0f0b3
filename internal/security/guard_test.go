package security

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func newTestGuard(t *testing.T, restrict bool) *Guard {
	t.Helper()
	return NewGuard(GuardConfig{
		BlockedCommands:     []string{"rm -rf /", "MKFS", "  shutdown  ", ""},
		Workspace:           t.TempDir(),
		RestrictToWorkspace: restrict,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestCheckCommand_Blocklist(t *testing.T) {
	g := newTestGuard(t, true)

	cases := []struct {
		command string
		blocked bool
	}{
		{"ls -la", false},
		{"rm -rf /", true},
		{"sudo RM -RF / --no-preserve-root", true},
		{"mkfs.ext4 /dev/sda1", true},
		{"shutdown -h now", true},
		{"echo shutdown", true},
		{"rm file.txt", false},
	}
	for _, tc := range cases {
		err := g.CheckCommand(tc.command)
		if tc.blocked && err == nil {
			t.Errorf("CheckCommand(%q) = nil, want blocked", tc.command)
		}
		if !tc.blocked && err != nil {
			t.Errorf("CheckCommand(%q) = %v, want nil", tc.command, err)
		}
	}
}

func TestResolvePath_RelativeInsideWorkspace(t *testing.T) {
	g := newTestGuard(t, true)
	resolved, err := g.ResolvePath("notes/today.txt")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	want := filepath.Join(g.Workspace(), "notes", "today.txt")
	if resolved != want {
		t.Fatalf("resolved = %q, want %q", resolved, want)
	}
}

func TestResolvePath_WorkspaceRootAllowed(t *testing.T) {
	g := newTestGuard(t, true)
	if _, err := g.ResolvePath("."); err != nil {
		t.Fatalf("ResolvePath(.): %v", err)
	}
}

func TestResolvePath_EscapeRejected(t *testing.T) {
	g := newTestGuard(t, true)
	for _, path := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		if _, err := g.ResolvePath(path); err == nil {
			t.Errorf("ResolvePath(%q) = nil, want escape error", path)
		}
	}
}

func TestResolvePath_SiblingPrefixRejected(t *testing.T) {
	g := newTestGuard(t, true)
	// A sibling directory whose name begins with the workspace path must not
	// pass the containment check.
	sibling := g.Workspace() + "-evil/file.txt"
	if _, err := g.ResolvePath(sibling); err == nil {
		t.Fatal("sibling prefix path should be rejected")
	}
}

func TestResolvePath_UnrestrictedAllowsOutside(t *testing.T) {
	g := newTestGuard(t, false)
	resolved, err := g.ResolvePath("/etc/hostname")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if !strings.HasPrefix(resolved, "/etc") {
		t.Fatalf("resolved = %q", resolved)
	}
}
