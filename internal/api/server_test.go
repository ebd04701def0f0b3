package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nanobot/internal/bus"
	"nanobot/internal/channel"
	"nanobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProcessor answers every turn via fn and records the messages it saw.
type fakeProcessor struct {
	fn   func(ctx context.Context, msg domain.Message) (string, error)
	seen []domain.Message
}

func (p *fakeProcessor) Process(ctx context.Context, msg domain.Message) (string, error) {
	p.seen = append(p.seen, msg)
	if p.fn == nil {
		return "ok", nil
	}
	return p.fn(ctx, msg)
}

func newTestServer(apiKey string, p Processor) (*Server, *bus.InMemoryBus) {
	b := bus.New(16, testLogger())
	mgr := channel.NewManager(b, testLogger())
	s := NewServer(Config{APIKey: apiKey}, b, p, mgr, testLogger())
	return s, b
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer("", &fakeProcessor{})
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeResponse(t, rec)
	if body["status"] != "UP" {
		t.Fatalf("body = %v", body)
	}
}

func TestAuth_RejectsMissingKey(t *testing.T) {
	s, _ := newTestServer("secret", &fakeProcessor{})
	handler := s.auth(s.handleChannels)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set("X-API-Key", "secret")
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with key = %d", rec.Code)
	}
}

func TestAuth_NoKeyConfiguredAllowsAll(t *testing.T) {
	s, _ := newTestServer("", &fakeProcessor{})
	handler := s.auth(s.handleChannels)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPublish_Accepted(t *testing.T) {
	s, b := newTestServer("", &fakeProcessor{})
	inbound := b.SubscribeInbound()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/messages/publish",
		strings.NewReader(`{"content":"hello","channel_type":"telegram","channel_id":"42","user_id":"7"}`))
	s.handlePublish(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	msg := <-inbound
	if msg.Content != "hello" || msg.ChannelType != "telegram" || msg.ChannelID != "42" || msg.UserID != "7" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestPublish_RequiresContentAndChannelType(t *testing.T) {
	s, _ := newTestServer("", &fakeProcessor{})
	for _, payload := range []string{
		`{"channel_type":"telegram"}`,
		`{"content":"hi"}`,
		`{`,
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/messages/publish", strings.NewReader(payload))
		s.handlePublish(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("payload %q: status = %d", payload, rec.Code)
		}
	}
}

func TestSend_RunsAgentTurnAndReturnsAnswer(t *testing.T) {
	p := &fakeProcessor{fn: func(ctx context.Context, msg domain.Message) (string, error) {
		return "echo: " + msg.Content, nil
	}}
	s, _ := newTestServer("", p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/messages/send",
		strings.NewReader(`{"content":"ping","user_id":"7"}`))
	s.handleSend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeResponse(t, rec)
	if body["response"] != "echo: ping" {
		t.Fatalf("body = %v", body)
	}

	if len(p.seen) != 1 {
		t.Fatalf("processor saw %d messages", len(p.seen))
	}
	in := p.seen[0]
	if in.ChannelType != "api" || in.UserID != "7" {
		t.Fatalf("injected message = %+v", in)
	}
	// The returned messageId is the injected request's own ID.
	if body["messageId"] != in.ID {
		t.Fatalf("messageId = %v, want %s", body["messageId"], in.ID)
	}
}

func TestSend_ProcessorErrorIsBadGateway(t *testing.T) {
	p := &fakeProcessor{fn: func(ctx context.Context, msg domain.Message) (string, error) {
		return "", context.DeadlineExceeded
	}}
	s, _ := newTestServer("", p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/messages/send",
		strings.NewReader(`{"content":"ping"}`))
	s.handleSend(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

// Repeated sends must not accumulate bus state; each turn runs in-request
// rather than through a request-scoped channel stream.
func TestSend_RepeatedRequestsLeaveNoBusStreams(t *testing.T) {
	s, b := newTestServer("", &fakeProcessor{})

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/messages/send",
			strings.NewReader(`{"content":"ping"}`))
		s.handleSend(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}

	if n := b.ChannelStreams(); n != 0 {
		t.Fatalf("channel streams after 50 sends = %d, want 0", n)
	}
}

func TestSend_RequiresContent(t *testing.T) {
	s, _ := newTestServer("", &fakeProcessor{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/messages/send", strings.NewReader(`{}`))
	s.handleSend(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
