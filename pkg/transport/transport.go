package transport

import "sync"

// Handler receives the raw payload of one inbound message.
type Handler func(text string)

// Subscription is an active handler registration. Release stops future
// deliveries to the handler.
type Subscription interface {
	Release()
}

// Adapter bridges one bidirectional relay connection into the chat session.
type Adapter interface {
	// Send forwards text to the relay. It never reports delivery.
	Send(text string)
	// Subscribe registers handler for inbound messages in arrival order.
	Subscribe(handler Handler) Subscription
}

// Dispatcher is a handler registry that adapters embed to fan inbound
// payloads out to subscribers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	order    []uint64
	nextID   uint64

	deliverMu sync.Mutex
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint64]Handler)}
}

// Subscribe registers handler and returns its subscription. A nil handler
// yields a subscription that does nothing.
func (d *Dispatcher) Subscribe(handler Handler) Subscription {
	if handler == nil {
		return noopSubscription{}
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.handlers[id] = handler
	d.order = append(d.order, id)
	d.mu.Unlock()

	return &subscription{release: func() { d.remove(id) }}
}

// Deliver invokes every registered handler with text. Deliveries are
// serialized so a handler never runs concurrently with itself.
func (d *Dispatcher) Deliver(text string) int {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.order))
	for _, id := range d.order {
		handlers = append(handlers, d.handlers[id])
	}
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler(text)
	}

	return len(handlers)
}

// Len reports the number of live subscriptions.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

func (d *Dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.handlers[id]; !ok {
		return
	}
	delete(d.handlers, id)

	for i, existing := range d.order {
		if existing == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

type subscription struct {
	once    sync.Once
	release func()
}

func (s *subscription) Release() {
	s.once.Do(s.release)
}

type noopSubscription struct{}

func (noopSubscription) Release() {}
