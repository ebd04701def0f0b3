package tool

import (
	"context"
	"sync"
	"testing"
	"time"

	"nanobot/internal/bus"
	"nanobot/internal/domain"
)

func TestMessageTool_SendsToTargetChannel(t *testing.T) {
	b := bus.New(8, testLogger())
	mt := NewMessageTool(b, testLogger())

	inbound := domain.NewTextMessage("hi")
	inbound.ChannelType = "telegram"
	inbound.ChannelID = "42"
	inbound.UserID = "7"
	ctx := WithTarget(context.Background(), inbound)

	out := b.SubscribeOutbound()
	got, err := mt.Execute(ctx, domain.ToolCall{
		ID:        "c1",
		Arguments: `{"content":"working on it"}`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "message sent" {
		t.Fatalf("output = %q", got)
	}

	select {
	case msg := <-out:
		if msg.ChannelType != "telegram" || msg.ChannelID != "42" || msg.UserID != "7" {
			t.Fatalf("msg = %+v", msg)
		}
		if msg.Content != "working on it" {
			t.Fatalf("content = %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("no outbound message")
	}
}

func TestMessageTool_ExplicitChannelOverridesTarget(t *testing.T) {
	b := bus.New(8, testLogger())
	mt := NewMessageTool(b, testLogger())

	inbound := domain.NewTextMessage("hi")
	inbound.ChannelType = "telegram"
	inbound.ChannelID = "42"
	ctx := WithTarget(context.Background(), inbound)

	out := b.SubscribeOutbound()
	_, err := mt.Execute(ctx, domain.ToolCall{
		Arguments: `{"content":"ping","channel_type":"discord","channel_id":"99"}`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	select {
	case msg := <-out:
		if msg.ChannelType != "discord" || msg.ChannelID != "99" {
			t.Fatalf("msg = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no outbound message")
	}
}

// Concurrent turns each carry their own target; a send defaulting its channel
// must land on the sender's own conversation even while another turn is live.
func TestMessageTool_ConcurrentTargetsStayIsolated(t *testing.T) {
	b := bus.New(32, testLogger())
	mt := NewMessageTool(b, testLogger())
	out := b.SubscribeOutbound()

	alice := domain.NewTextMessage("hi")
	alice.ChannelType = "telegram"
	alice.ChannelID = "chat-A"
	alice.UserID = "alice"

	bob := domain.NewTextMessage("hey")
	bob.ChannelType = "discord"
	bob.ChannelID = "chat-B"
	bob.UserID = "bob"

	var wg sync.WaitGroup
	for _, target := range []domain.Message{alice, bob} {
		wg.Add(1)
		go func(tgt domain.Message) {
			defer wg.Done()
			ctx := WithTarget(context.Background(), tgt)
			if _, err := mt.Execute(ctx, domain.ToolCall{
				Arguments: `{"content":"update for ` + tgt.UserID + `"}`,
			}); err != nil {
				t.Errorf("Execute for %s: %v", tgt.UserID, err)
			}
		}(target)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		select {
		case msg := <-out:
			switch msg.UserID {
			case "alice":
				if msg.ChannelType != "telegram" || msg.ChannelID != "chat-A" || msg.Content != "update for alice" {
					t.Fatalf("alice msg = %+v", msg)
				}
			case "bob":
				if msg.ChannelType != "discord" || msg.ChannelID != "chat-B" || msg.Content != "update for bob" {
					t.Fatalf("bob msg = %+v", msg)
				}
			default:
				t.Fatalf("unexpected user %q", msg.UserID)
			}
		case <-time.After(time.Second):
			t.Fatal("missing outbound message")
		}
	}
}

func TestMessageTool_NoTargetNoChannel(t *testing.T) {
	mt := NewMessageTool(bus.New(8, testLogger()), testLogger())
	_, err := mt.Execute(context.Background(), domain.ToolCall{Arguments: `{"content":"hello"}`})
	if err == nil {
		t.Fatal("expected error when no channel can be determined")
	}
}

func TestMessageTool_MissingContent(t *testing.T) {
	mt := NewMessageTool(bus.New(8, testLogger()), testLogger())
	if _, err := mt.Execute(context.Background(), domain.ToolCall{Arguments: `{}`}); err == nil {
		t.Fatal("expected error for missing content")
	}
}
