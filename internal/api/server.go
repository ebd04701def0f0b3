// Package api exposes the HTTP control surface: message injection,
// health, channel inventory, and metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"nanobot/internal/channel"
	"nanobot/internal/domain"
	"nanobot/internal/metrics"
)

const maxBodyBytes = 1 << 20

// Processor runs one agent turn to completion. *agent.Loop satisfies this.
type Processor interface {
	Process(ctx context.Context, msg domain.Message) (string, error)
}

// Server is the HTTP API. Send is synchronous: the handler runs the agent
// turn in-request instead of routing through the bus, so no per-request bus
// stream is ever created.
type Server struct {
	host      string
	port      int
	apiKey    string
	bus       domain.MessageBus
	processor Processor
	channels  *channel.Manager
	logger    *slog.Logger
	server    *http.Server
}

type Config struct {
	Host   string
	Port   int
	APIKey string
}

func NewServer(cfg Config, bus domain.MessageBus, processor Processor, channels *channel.Manager, logger *slog.Logger) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &Server{
		host:      cfg.Host,
		port:      cfg.Port,
		apiKey:    cfg.APIKey,
		bus:       bus,
		processor: processor,
		channels:  channels,
		logger:    logger,
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/messages/send", s.auth(s.handleSend))
	mux.HandleFunc("POST /api/messages/publish", s.auth(s.handlePublish))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/channels", s.auth(s.handleChannels))
	mux.HandleFunc("GET /metrics", metrics.Collector.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      150 * time.Second, // synchronous sends wait on the LLM
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("api server started", "addr", s.server.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid API key"})
			return
		}
		next(w, r)
	}
}

type sendRequest struct {
	Content string `json:"content"`
	UserID  string `json:"user_id"`
}

type publishRequest struct {
	Content     string `json:"content"`
	ChannelType string `json:"channel_type"`
	ChannelID   string `json:"channel_id"`
	UserID      string `json:"user_id"`
}

// handleSend injects a message as the "api" channel and runs the agent turn
// within the request, returning the final answer.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}
	if req.UserID == "" {
		req.UserID = "api"
	}

	in := domain.NewTextMessage(req.Content)
	in.ChannelID = "api-" + in.ID
	in.ChannelType = "api"
	in.UserID = req.UserID

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	response, err := s.processor.Process(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "request timed out"})
			return
		}
		s.logger.Error("send failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"messageId": in.ID,
		"response":  response,
	})
}

// handlePublish injects a message addressed to an arbitrary channel without
// waiting for a reply.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" || req.ChannelType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content and channel_type are required"})
		return
	}

	in := domain.NewTextMessage(req.Content)
	in.ChannelID = req.ChannelID
	in.ChannelType = req.ChannelType
	in.UserID = req.UserID
	s.bus.PublishInbound(in)

	writeJSON(w, http.StatusAccepted, map[string]string{"messageId": in.ID, "status": "published"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "UP",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    metrics.Collector.Uptime().String(),
		"channels":  s.channels.Types(),
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": s.channels.Types()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
