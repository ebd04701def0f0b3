package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies an envelope's payload.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageFile    MessageType = "file"
	MessageCommand MessageType = "command"
	MessageSystem  MessageType = "system"
)

// Message is the unit of communication between channels and the agent.
// The ID is assigned exactly once, by whichever component originates the
// envelope (a channel adapter, the API surface, or a tool).
type Message struct {
	ID          string         `json:"id"`
	ChannelID   string         `json:"channelId,omitempty"`
	ChannelType string         `json:"channelType"`
	UserID      string         `json:"userId,omitempty"`
	UserName    string         `json:"userName,omitempty"`
	Content     string         `json:"content"`
	Type        MessageType    `json:"type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewTextMessage creates a text envelope with a fresh ID and timestamp.
func NewTextMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Type:      MessageText,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a system envelope with a fresh ID and timestamp.
func NewSystemMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Type:      MessageSystem,
		Timestamp: time.Now(),
	}
}

// SessionKey derives the session identity for this envelope.
func (m Message) SessionKey() string {
	return m.ChannelType + ":" + m.UserID
}
