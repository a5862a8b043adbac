// Package loopback provides an in-process transport adapter.
package loopback

import (
	"sync"

	"wisochat/pkg/transport"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithEcho makes every sent message come back as an inbound message with
// prefix prepended.
func WithEcho(prefix string) Option {
	return func(a *Adapter) {
		a.echo = true
		a.echoPrefix = prefix
	}
}

// Adapter records sends and delivers inbound messages on demand.
type Adapter struct {
	*transport.Dispatcher

	echo       bool
	echoPrefix string

	mu   sync.Mutex
	sent []string
}

var _ transport.Adapter = (*Adapter)(nil)

// New returns a loopback adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{Dispatcher: transport.NewDispatcher()}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Send records text and echoes it when configured.
func (a *Adapter) Send(text string) {
	a.mu.Lock()
	a.sent = append(a.sent, text)
	a.mu.Unlock()

	if a.echo {
		a.Deliver(a.echoPrefix + text)
	}
}

// Sent returns the recorded sends in order.
func (a *Adapter) Sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.sent))
	copy(out, a.sent)
	return out
}
