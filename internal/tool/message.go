package tool

import (
	"context"
	"fmt"
	"log/slog"

	"nanobot/internal/domain"
)

// targetKey carries the originating envelope of the turn being processed.
// Binding the target to the context keeps concurrent turns independent; a
// process-wide field would let one turn's default channel bleed into another.
type targetKey struct{}

// WithTarget returns a context carrying the inbound envelope the current
// turn is answering. Sends without explicit channel args go back there.
func WithTarget(ctx context.Context, msg domain.Message) context.Context {
	return context.WithValue(ctx, targetKey{}, msg)
}

func targetFromContext(ctx context.Context) domain.Message {
	msg, _ := ctx.Value(targetKey{}).(domain.Message)
	return msg
}

// MessageTool lets the agent push a message to a chat channel before the
// final answer is ready, e.g. progress updates during a long task.
type MessageTool struct {
	bus    domain.MessageBus
	logger *slog.Logger
}

func NewMessageTool(bus domain.MessageBus, logger *slog.Logger) *MessageTool {
	return &MessageTool{bus: bus, logger: logger}
}

func (t *MessageTool) Name() string { return "message" }

func (t *MessageTool) Description() string {
	return "Send a message to the user without ending the current turn"
}

func (t *MessageTool) ParameterSchema() map[string]any {
	return Schema(map[string]Param{
		"content":      {Type: "string", Description: "Message text to send"},
		"channel_type": {Type: "string", Description: "Target channel type, defaults to the current conversation"},
		"channel_id":   {Type: "string", Description: "Target channel id, defaults to the current conversation"},
	}, []string{"content"})
}

func (t *MessageTool) Enabled() bool { return true }

func (t *MessageTool) Execute(ctx context.Context, call domain.ToolCall) (string, error) {
	content := call.Argument("content")
	if content == "" {
		return "", fmt.Errorf("missing required argument: content")
	}

	target := targetFromContext(ctx)

	channelType := call.Argument("channel_type")
	if channelType == "" {
		channelType = target.ChannelType
	}
	channelID := call.Argument("channel_id")
	if channelID == "" {
		channelID = target.ChannelID
	}
	if channelType == "" {
		return "", fmt.Errorf("no target channel for message")
	}

	out := domain.NewTextMessage(content)
	out.ChannelID = channelID
	out.ChannelType = channelType
	out.UserID = target.UserID
	t.bus.PublishOutbound(out)
	t.logger.Debug("message sent", "channel_type", channelType, "channel_id", channelID)
	return "message sent", nil
}
