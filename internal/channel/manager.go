// Package channel contains the user-facing adapters and the manager that
// routes bus traffic to them.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"nanobot/internal/domain"
)

// Manager owns the lifecycle of registered channels and routes outbound
// envelopes to the adapter matching their channel type.
type Manager struct {
	bus    domain.MessageBus
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]domain.Channel // keyed by type

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewManager(bus domain.MessageBus, logger *slog.Logger) *Manager {
	return &Manager{
		bus:      bus,
		logger:   logger,
		channels: make(map[string]domain.Channel),
	}
}

// Register adds a channel. Disabled channels are skipped; a second channel
// of the same type replaces the first.
func (m *Manager) Register(ch domain.Channel) {
	if !ch.Enabled() {
		m.logger.Debug("skipping disabled channel", "type", ch.Type())
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Type()] = ch
	m.logger.Info("registered channel", "type", ch.Type(), "id", ch.ID())
}

func (m *Manager) Get(channelType string) domain.Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[channelType]
}

func (m *Manager) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, 0, len(m.channels))
	for t := range m.channels {
		types = append(types, t)
	}
	return types
}

// StartAll starts every registered channel and the outbound dispatcher.
// Each channel runs in its own goroutine; a channel that fails to start is
// logged and does not take the others down.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	if len(m.channels) == 0 {
		m.mu.RUnlock()
		return fmt.Errorf("no channels enabled")
	}
	channels := make([]domain.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, ch := range channels {
		m.wg.Add(1)
		go func(ch domain.Channel) {
			defer m.wg.Done()
			m.logger.Info("starting channel", "type", ch.Type())
			if err := ch.Start(runCtx); err != nil {
				m.logger.Error("channel exited with error", "type", ch.Type(), "error", err)
			}
		}(ch)
	}

	// Subscribe before returning so callers can publish immediately.
	outbound := m.bus.SubscribeOutbound()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatchOutbound(runCtx, outbound)
	}()
	return nil
}

// dispatchOutbound consumes the outbound stream and hands each envelope to
// the adapter for its channel type. An envelope for an unknown type is
// dropped with a log line.
func (m *Manager) dispatchOutbound(ctx context.Context, outbound <-chan domain.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			ch := m.Get(msg.ChannelType)
			if ch == nil {
				m.logger.Warn("no channel for outbound message", "channel_type", msg.ChannelType)
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				m.logger.Error("outbound delivery failed", "channel_type", msg.ChannelType, "error", err)
			}
		}
	}
}

// StopAll cancels all channels and waits for them to unwind.
func (m *Manager) StopAll() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.RLock()
	for _, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			m.logger.Warn("channel stop failed", "type", ch.Type(), "error", err)
		}
	}
	m.mu.RUnlock()
	m.wg.Wait()
	m.logger.Info("all channels stopped")
}

// splitMessage splits long content into chunks that fit a transport limit,
// preferring newline boundaries.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}
	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
