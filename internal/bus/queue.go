package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("bus closed")

// MessageBus connects channels and the scheduler to the orchestrator.
// Inbound events flow to one consumer; outbound actions fan out to
// subscribers by channel name.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	subs     map[string][]func(OutboundMessage) // channel name -> subscribers
	mu       sync.RWMutex
	done     chan struct{}
	once     sync.Once
}

// NewMessageBus creates a MessageBus. If bufSize is 0, defaults to 100.
func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
		subs:     make(map[string][]func(OutboundMessage)),
		done:     make(chan struct{}),
	}
}

// PublishInbound queues an inbound event. It blocks while the buffer is full.
func (b *MessageBus) PublishInbound(msg InboundMessage) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.inbound <- msg:
		return nil
	case <-b.done:
		return ErrClosed
	}
}

// PublishOutbound queues an outbound action.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.outbound <- msg:
		return nil
	case <-b.done:
		return ErrClosed
	}
}

// ConsumeInbound blocks until an inbound event is available or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-b.done:
		return InboundMessage{}, ErrClosed
	case <-ctx.Done():
		return InboundMessage{}, ctx.Err()
	}
}

// Subscribe registers fn to receive outbound messages for the given channel.
// An empty channel string subscribes to ALL channels.
func (b *MessageBus) Subscribe(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], fn)
}

// DispatchOutbound delivers outbound messages to matching subscribers in
// publish order. Returns when ctx is cancelled or the bus is closed.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.outbound:
			b.dispatch(msg)
		case <-b.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *MessageBus) dispatch(msg OutboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, fn := range b.subs[msg.Channel] {
		fn(msg)
	}
	for _, fn := range b.subs[""] {
		fn(msg)
	}
}

// Close stops the bus. Later publishes return ErrClosed. Safe to call twice.
func (b *MessageBus) Close() {
	b.once.Do(func() { close(b.done) })
}
