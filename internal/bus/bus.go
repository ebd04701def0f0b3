package bus

import (
	"log/slog"
	"sync"

	"nanobot/internal/domain"
	"nanobot/internal/metrics"
)

const defaultBufferSize = 64

// InMemoryBus is a multicast in-process message bus. Every subscriber of a
// stream gets its own bounded buffer; when that buffer is full the event is
// dropped for that subscriber (drop-new) and the drop is logged and counted.
// Publishing never blocks and never fails.
type InMemoryBus struct {
	inbound  *stream
	outbound *stream

	mu       sync.Mutex
	channels map[string]*stream

	bufferSize int
	logger     *slog.Logger
}

// New creates an InMemoryBus with the given per-subscriber buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &InMemoryBus{
		inbound:    newStream("inbound", bufferSize, logger),
		outbound:   newStream("outbound", bufferSize, logger),
		channels:   make(map[string]*stream),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

func (b *InMemoryBus) PublishInbound(msg domain.Message) {
	metrics.InboundPublished.Inc()
	b.inbound.publish(msg)
}

// PublishOutbound fans the envelope out to the outbound stream and, when the
// envelope carries a channel ID, to that channel's scoped stream as well.
func (b *InMemoryBus) PublishOutbound(msg domain.Message) {
	metrics.OutboundPublished.Inc()
	b.outbound.publish(msg)
	if msg.ChannelID != "" {
		b.channelStream(msg.ChannelID).publish(msg)
	}
}

func (b *InMemoryBus) SubscribeInbound() <-chan domain.Message {
	return b.inbound.subscribe(nil)
}

func (b *InMemoryBus) SubscribeOutbound() <-chan domain.Message {
	return b.outbound.subscribe(nil)
}

// SubscribeChannel subscribes to outbound envelopes scoped to one channel ID.
// The scoped stream is created lazily and lives for the process lifetime.
func (b *InMemoryBus) SubscribeChannel(channelID string) <-chan domain.Message {
	return b.channelStream(channelID).subscribe(nil)
}

// SubscribeChannelType subscribes to outbound envelopes filtered by channel type.
func (b *InMemoryBus) SubscribeChannelType(channelType string) <-chan domain.Message {
	return b.outbound.subscribe(func(msg domain.Message) bool {
		return msg.ChannelType == channelType
	})
}

// ChannelStreams reports how many channel-scoped streams exist. Scoped
// streams are never torn down, so this should stay bounded by the number of
// live conversations, not grow per request.
func (b *InMemoryBus) ChannelStreams() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

func (b *InMemoryBus) channelStream(channelID string) *stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.channels[channelID]
	if !ok {
		s = newStream("channel:"+channelID, b.bufferSize, b.logger)
		b.channels[channelID] = s
	}
	return s
}

// stream is one multicast topic. Subscribers are never removed; channel
// subscriptions persist for the process lifetime.
type stream struct {
	name       string
	bufferSize int
	logger     *slog.Logger

	mu   sync.RWMutex
	subs []subscriber
}

type subscriber struct {
	ch     chan domain.Message
	filter func(domain.Message) bool
}

func newStream(name string, bufferSize int, logger *slog.Logger) *stream {
	return &stream{name: name, bufferSize: bufferSize, logger: logger}
}

func (s *stream) subscribe(filter func(domain.Message) bool) <-chan domain.Message {
	ch := make(chan domain.Message, s.bufferSize)
	s.mu.Lock()
	s.subs = append(s.subs, subscriber{ch: ch, filter: filter})
	s.mu.Unlock()
	return ch
}

func (s *stream) publish(msg domain.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.filter != nil && !sub.filter(msg) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			metrics.BusDropped.Inc()
			s.logger.Warn("subscriber buffer full, dropping message",
				"stream", s.name,
				"message", msg.ID,
				"channelType", msg.ChannelType,
			)
		}
	}
}
