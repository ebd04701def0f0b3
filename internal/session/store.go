// Package session persists per-conversation history as JSONL, one file per
// session, one serialized turn per line.
package session

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"nanobot/internal/domain"
)

const maxLineBytes = 1 << 20

// Store owns the durable session log. Appends to the same session are
// serialized through a per-session mutex on top of O_APPEND single-write
// atomicity, so concurrent appends never interleave mid-record. Concurrent
// writers from other processes are not journaled or locked beyond that.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the session directory under the workspace if needed.
func NewStore(workspace string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Join(workspace, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create session directory %s: %w", dir, err)
	}
	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Key derives the session identity for a channel-type/user pair.
func Key(channelType, userID string) string {
	return channelType + ":" + userID
}

// History returns the session's turns sorted by timestamp ascending. When the
// stored count exceeds maxMessages only the most recent maxMessages are
// returned. Malformed lines are skipped individually; a missing session or a
// read failure yields an empty slice, never an error.
func (s *Store) History(sessionID string, maxMessages int) []domain.ChatMessage {
	f, err := os.Open(s.sessionFile(sessionID))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to open session file", "session", sessionID, "err", err)
		}
		return nil
	}
	defer f.Close()

	var messages []domain.ChatMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := parseLine(line)
		if err != nil {
			s.logger.Warn("skipping malformed session line", "session", sessionID, "err", err)
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("failed to read session file", "session", sessionID, "err", err)
		return nil
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})

	if maxMessages > 0 && len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}
	return messages
}

// Append writes one turn as a single line. A serialization failure degrades
// to a hand-built record rather than losing the turn.
func (s *Store) Append(sessionID string, msg domain.ChatMessage) error {
	line, err := formatLine(msg)
	if err != nil {
		s.logger.Error("failed to serialize turn, using fallback format", "session", sessionID, "err", err)
		line = fallbackFormat(msg)
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(s.sessionFile(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open session file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append([]byte(line), '\n')); err != nil {
		return fmt.Errorf("cannot append to session file: %w", err)
	}
	return nil
}

// Clear deletes the session's storage. Returns true when something was removed.
func (s *Store) Clear(sessionID string) bool {
	err := os.Remove(s.sessionFile(sessionID))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to clear session", "session", sessionID, "err", err)
		}
		return false
	}
	s.logger.Info("cleared session history", "session", sessionID)
	return true
}

// List returns the IDs of all sessions with storage present.
func (s *Store) List() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var sessions []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(name, ".jsonl"))
	}
	return sessions
}

func (s *Store) Exists(sessionID string) bool {
	_, err := os.Stat(s.sessionFile(sessionID))
	return err == nil
}

func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// sessionFile maps a session ID to its storage path. Sanitization keeps the
// key filesystem-safe; distinct IDs can collide after replacement, which is
// accepted as a known limitation.
func (s *Store) sessionFile(sessionID string) string {
	return filepath.Join(s.dir, sanitize(sessionID)+".jsonl")
}

func sanitize(sessionID string) string {
	var b strings.Builder
	b.Grow(len(sessionID))
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
