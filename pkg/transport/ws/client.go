// Package ws provides a WebSocket relay adapter built on gobwas/ws.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"wisochat/pkg/protocol"
	"wisochat/pkg/transport"
)

const (
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 10 * time.Second
	defaultDialTimeout  = 5 * time.Second
)

// DialFunc opens the raw WebSocket connection. br may hold bytes the server
// sent right after the handshake.
type DialFunc func(ctx context.Context, url string) (conn net.Conn, br *bufio.Reader, err error)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithBackoff bounds the reconnect delay. Non-positive values keep defaults.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if minDelay > 0 {
			c.reconnectMin = minDelay
		}
		if maxDelay > 0 {
			c.reconnectMax = maxDelay
		}
	}
}

// WithDialFunc replaces the dialer.
func WithDialFunc(dial DialFunc) Option {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// WithPresence registers a callback for join and leave frames.
func WithPresence(fn func(protocol.Frame)) Option {
	return func(c *Client) {
		c.onPresence = fn
	}
}

// Client is a transport.Adapter backed by one relay connection. It
// reconnects with exponential backoff until closed.
type Client struct {
	*transport.Dispatcher

	url          string
	log          *slog.Logger
	dial         DialFunc
	reconnectMin time.Duration
	reconnectMax time.Duration
	onPresence   func(protocol.Frame)

	mu   sync.RWMutex
	conn net.Conn

	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ transport.Adapter = (*Client)(nil)

// Dial connects to the relay at url and starts receiving. ctx bounds the
// initial connect only.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Client{
		Dispatcher:   transport.NewDispatcher(),
		url:          url,
		log:          slog.Default(),
		dial:         defaultDial,
		reconnectMin: defaultReconnectMin,
		reconnectMax: defaultReconnectMax,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reconnectMax < c.reconnectMin {
		c.reconnectMax = c.reconnectMin
	}
	c.log = c.log.With("component", "transport.ws", "url", url)

	conn, br, err := c.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to relay: %w", err)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.setConn(conn)

	c.wg.Add(1)
	go c.run(conn, br)

	c.log.Info("Connected to relay")
	return c, nil
}

func defaultDial(ctx context.Context, url string) (net.Conn, *bufio.Reader, error) {
	dialer := ws.Dialer{Timeout: defaultDialTimeout}
	conn, br, _, err := dialer.Dial(ctx, url)
	return conn, br, err
}

// Connected reports whether a relay connection is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Send writes a message frame. Failures are logged and the text is dropped.
func (c *Client) Send(text string) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		c.log.Warn("Dropped message while disconnected", "bytes", len(text))
		return
	}

	frame := protocol.Message("", text)
	data, err := frame.Encode()
	if err != nil {
		c.log.Error("Failed to encode message", "error", err)
		return
	}

	c.writeMu.Lock()
	err = wsutil.WriteClientBinary(conn, data)
	c.writeMu.Unlock()
	if err != nil {
		c.log.Warn("Failed to send message", "error", err)
	}
}

// Close stops reconnecting and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			_ = wsutil.WriteClientMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
			c.writeMu.Unlock()
			closeErr = conn.Close()
		}

		c.wg.Wait()
		c.log.Info("Disconnected from relay")
	})

	return closeErr
}

func (c *Client) run(conn net.Conn, br *bufio.Reader) {
	defer c.wg.Done()

	for {
		err := c.readLoop(conn, br)
		c.clearConn(conn)
		_ = conn.Close()

		if c.ctx.Err() != nil {
			return
		}
		c.log.Warn("Relay connection lost", "error", err)

		var ok bool
		conn, br, ok = c.reconnect()
		if !ok {
			return
		}
	}
}

func (c *Client) readLoop(conn net.Conn, br *bufio.Reader) error {
	rw := struct {
		io.Reader
		io.Writer
	}{
		Reader: conn,
		Writer: &lockedWriter{mu: &c.writeMu, w: conn},
	}
	if br != nil {
		rw.Reader = br
	}

	for {
		data, op, err := wsutil.ReadServerData(rw)
		if err != nil {
			return err
		}

		switch op {
		case ws.OpText:
			c.Deliver(string(data))
		case ws.OpBinary:
			var frame protocol.Frame
			if err := frame.Decode(data); err != nil {
				c.log.Warn("Failed to decode frame", "error", err)
				continue
			}
			c.handleFrame(frame)
		}
	}
}

func (c *Client) handleFrame(frame protocol.Frame) {
	switch frame.Kind {
	case protocol.KindMessage:
		c.Deliver(frame.Body)
	case protocol.KindJoin, protocol.KindLeave:
		c.log.Debug("Presence update", "kind", frame.Kind.String(), "from", frame.From)
		if c.onPresence != nil {
			c.onPresence(frame)
		}
	}
}

func (c *Client) reconnect() (net.Conn, *bufio.Reader, bool) {
	delay := c.reconnectMin

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return nil, nil, false
		case <-timer.C:
		}

		conn, br, err := c.dial(c.ctx, c.url)
		if err == nil {
			if !c.setConn(conn) {
				_ = conn.Close()
				return nil, nil, false
			}
			c.log.Info("Reconnected to relay", "attempt", attempt)
			return conn, br, true
		}
		if errors.Is(err, context.Canceled) {
			return nil, nil, false
		}

		c.log.Debug("Reconnect attempt failed", "attempt", attempt, "error", err, "retry_in", delay.String())
		delay = nextDelay(delay, c.reconnectMax)
	}
}

// setConn publishes conn unless the client is closing.
func (c *Client) setConn(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) clearConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func nextDelay(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
