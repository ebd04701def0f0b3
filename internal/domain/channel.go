package domain

import "context"

// Channel is the contract for user-facing adapters (Telegram, Discord,
// Slack, WebSocket, CLI). Adapters translate vendor wire formats into
// Message envelopes and back; the core never sees vendor types.
type Channel interface {
	Type() string
	ID() string
	Enabled() bool
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, msg Message) error
}
