package bus

import (
	"context"
	"sync"
	"time"

	"wisochat/pkg/protocol"
)

const defaultBufferSize = 100

// Message is one relayed frame plus its receive time.
type Message struct {
	From string        `json:"from"`
	Kind protocol.Kind `json:"kind"`
	Body string        `json:"body"`
	At   time.Time     `json:"at"`
}

// Frame converts the message back to its wire frame.
func (m Message) Frame() protocol.Frame {
	return protocol.Frame{Kind: m.Kind, From: m.From, Body: m.Body}
}

// MessageBus fans relayed messages out to every subscriber.
type MessageBus struct {
	subscribers map[uint64]chan Message
	nextID      uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		subscribers: make(map[uint64]chan Message),
		done:        make(chan struct{}),
	}
}

// Publish delivers msg to every subscriber without blocking. It reports
// false when the bus is closed or ctx is done.
func (mb *MessageBus) Publish(ctx context.Context, msg Message) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for _, ch := range mb.subscribers {
		select {
		case ch <- msg:
		default:
			// Slow subscriber; drop rather than stall the relay.
		}
	}

	return true
}

// Subscribe returns a message channel and its unsubscribe func. The channel
// closes on unsubscribe, on ctx cancellation, or when the bus closes.
func (mb *MessageBus) Subscribe(ctx context.Context, buffer int) (<-chan Message, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Message, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextID
	mb.nextID++
	mb.subscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if subCh, ok := mb.subscribers[id]; ok {
				delete(mb.subscribers, id)
				close(subCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}

// Subscribers reports the number of live subscriptions.
func (mb *MessageBus) Subscribers() int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.subscribers)
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.subscribers {
			close(ch)
			delete(mb.subscribers, id)
		}
		mb.mu.Unlock()
	})
}
