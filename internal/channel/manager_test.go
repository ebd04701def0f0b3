package channel

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"nanobot/internal/bus"
	"nanobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChannel records sent messages and blocks in Start until cancelled.
type fakeChannel struct {
	channelType string
	enabled     bool

	mu      sync.Mutex
	sent    []domain.Message
	started bool
	stopped bool
}

func (c *fakeChannel) Type() string  { return c.channelType }
func (c *fakeChannel) ID() string    { return c.channelType + "-test" }
func (c *fakeChannel) Enabled() bool { return c.enabled }

func (c *fakeChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (c *fakeChannel) Stop() error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Send(ctx context.Context, msg domain.Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func outboundFor(channelType, content string) domain.Message {
	msg := domain.NewTextMessage(content)
	msg.ChannelType = channelType
	return msg
}

func TestManager_SkipsDisabledChannels(t *testing.T) {
	m := NewManager(bus.New(8, testLogger()), testLogger())
	m.Register(&fakeChannel{channelType: "telegram", enabled: false})
	m.Register(&fakeChannel{channelType: "discord", enabled: true})

	if m.Get("telegram") != nil {
		t.Fatal("disabled channel should not be registered")
	}
	if m.Get("discord") == nil {
		t.Fatal("enabled channel missing")
	}
	if types := m.Types(); len(types) != 1 || types[0] != "discord" {
		t.Fatalf("types = %v", types)
	}
}

func TestManager_StartAllWithoutChannels(t *testing.T) {
	m := NewManager(bus.New(8, testLogger()), testLogger())
	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("expected error with no enabled channels")
	}
}

func TestManager_DispatchesByChannelType(t *testing.T) {
	b := bus.New(8, testLogger())
	m := NewManager(b, testLogger())
	tg := &fakeChannel{channelType: "telegram", enabled: true}
	dc := &fakeChannel{channelType: "discord", enabled: true}
	m.Register(tg)
	m.Register(dc)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	b.PublishOutbound(outboundFor("telegram", "to telegram"))
	b.PublishOutbound(outboundFor("discord", "to discord"))

	deadline := time.After(2 * time.Second)
	for tg.sentCount() < 1 || dc.sentCount() < 1 {
		select {
		case <-deadline:
			t.Fatalf("delivery incomplete: telegram=%d discord=%d", tg.sentCount(), dc.sentCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	tg.mu.Lock()
	got := tg.sent[0].Content
	tg.mu.Unlock()
	if got != "to telegram" {
		t.Fatalf("telegram got %q", got)
	}
}

func TestManager_UnknownTypeDropped(t *testing.T) {
	b := bus.New(8, testLogger())
	m := NewManager(b, testLogger())
	tg := &fakeChannel{channelType: "telegram", enabled: true}
	m.Register(tg)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	b.PublishOutbound(outboundFor("carrier-pigeon", "lost"))
	b.PublishOutbound(outboundFor("telegram", "delivered"))

	deadline := time.After(2 * time.Second)
	for tg.sentCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("telegram message never delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if tg.sentCount() != 1 {
		t.Fatalf("sent = %d", tg.sentCount())
	}
}

func TestManager_StopAllStopsChannels(t *testing.T) {
	b := bus.New(8, testLogger())
	m := NewManager(b, testLogger())
	tg := &fakeChannel{channelType: "telegram", enabled: true}
	m.Register(tg)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	m.StopAll()

	tg.mu.Lock()
	defer tg.mu.Unlock()
	if !tg.started || !tg.stopped {
		t.Fatalf("started=%v stopped=%v", tg.started, tg.stopped)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 100); len(got) != 1 || got[0] != "short" {
		t.Fatalf("got = %v", got)
	}

	long := strings.Repeat("a", 25)
	chunks := splitMessage(long, 10)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	if joined := strings.Join(chunks, ""); joined != long {
		t.Fatalf("content lost: %q", joined)
	}

	// Prefers a newline boundary in the back half of the window.
	text := "first line here\nsecond"
	chunks = splitMessage(text, 20)
	if chunks[0] != "first line here\n" {
		t.Fatalf("chunks[0] = %q", chunks[0])
	}
}
