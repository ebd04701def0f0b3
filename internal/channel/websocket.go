package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nanobot/internal/domain"

	"github.com/gorilla/websocket"
)

// WSMessage is the JSON frame exchanged with WebSocket clients.
type WSMessage struct {
	Type    string `json:"type"` // "message" | "status"
	Content string `json:"content,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// WebSocketChannel serves a bidirectional chat endpoint over WebSocket.
type WebSocketChannel struct {
	host    string
	port    int
	path    string
	enabled bool

	server *http.Server
	bus    domain.MessageBus
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	conn   *websocket.Conn
	chatID string
	mu     sync.Mutex
}

type WebSocketConfig struct {
	Enabled bool
	Host    string
	Port    int
	Path    string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewWebSocketChannel(cfg WebSocketConfig, bus domain.MessageBus, logger *slog.Logger) *WebSocketChannel {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Port == 0 {
		cfg.Port = 8081
	}
	return &WebSocketChannel{
		host:    cfg.Host,
		port:    cfg.Port,
		path:    cfg.Path,
		enabled: cfg.Enabled,
		bus:     bus,
		logger:  logger,
		clients: make(map[string]*wsClient),
	}
}

func (ws *WebSocketChannel) Type() string  { return "websocket" }
func (ws *WebSocketChannel) ID() string    { return "websocket" }
func (ws *WebSocketChannel) Enabled() bool { return ws.enabled }

// Start runs the WebSocket server until ctx is cancelled.
func (ws *WebSocketChannel) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(ws.path, ws.handleUpgrade)

	ws.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", ws.host, ws.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ws.logger.Info("websocket server starting", "addr", ws.server.Addr, "path", ws.path)

	errCh := make(chan error, 1)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ws.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (ws *WebSocketChannel) Stop() error { return nil }

// Send delivers the envelope to every client attached to its chat. An
// envelope without a channel ID is broadcast to all clients.
func (ws *WebSocketChannel) Send(ctx context.Context, msg domain.Message) error {
	frame := WSMessage{Type: "message", Content: msg.Content, ChatID: msg.ChannelID}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	ws.mu.RLock()
	defer ws.mu.RUnlock()
	for _, client := range ws.clients {
		if msg.ChannelID != "" && client.chatID != msg.ChannelID {
			continue
		}
		client.mu.Lock()
		writeErr := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if writeErr != nil {
			ws.logger.Debug("websocket write failed", "err", writeErr)
		}
	}
	return nil
}

func (ws *WebSocketChannel) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		chatID = fmt.Sprintf("ws-%d", time.Now().UnixNano())
	}

	client := &wsClient{conn: conn, chatID: chatID}
	clientID := fmt.Sprintf("%s-%p", chatID, conn)
	ws.mu.Lock()
	ws.clients[clientID] = client
	ws.mu.Unlock()

	ws.logger.Info("websocket client connected", "client_id", clientID, "chat_id", chatID)
	client.write(WSMessage{Type: "status", Content: "connected", ChatID: chatID})

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, clientID)
		ws.mu.Unlock()
		conn.Close()
		ws.logger.Info("websocket client disconnected", "client_id", clientID)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error("websocket read error", "err", err)
			}
			return
		}

		var frame WSMessage
		if err := json.Unmarshal(payload, &frame); err != nil {
			ws.logger.Warn("invalid websocket frame", "err", err)
			continue
		}
		if frame.Type != "message" || frame.Content == "" {
			continue
		}

		userID := frame.UserID
		if userID == "" {
			userID = chatID
		}
		in := domain.NewTextMessage(frame.Content)
		in.ChannelID = chatID
		in.ChannelType = "websocket"
		in.UserID = userID
		ws.bus.PublishInbound(in)
	}
}

func (c *wsClient) write(msg WSMessage) {
	data, _ := json.Marshal(msg)
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocketChannel) closeAllClients() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for id, client := range ws.clients {
		client.conn.Close()
		delete(ws.clients, id)
	}
}
