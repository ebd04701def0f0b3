package domain

// MessageBus moves envelopes between channel adapters and the agent.
// Delivery is multicast and best-effort: every current subscriber of a
// stream receives every published envelope, late subscribers miss earlier
// events, and a subscriber that cannot keep up loses events rather than
// blocking the publisher. Callers that need delivery confirmation must not
// rely on this bus.
type MessageBus interface {
	PublishInbound(msg Message)
	PublishOutbound(msg Message)
	SubscribeInbound() <-chan Message
	SubscribeOutbound() <-chan Message
	SubscribeChannel(channelID string) <-chan Message
	SubscribeChannelType(channelType string) <-chan Message
}
