// Package relay runs the broadcast relay the chat clients connect to.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"wisochat/pkg/bus"
	"wisochat/pkg/config"
	"wisochat/pkg/protocol"
)

const (
	peerBuffer      = 64
	shutdownTimeout = 5 * time.Second
)

// Server accepts WebSocket peers and broadcasts each message to every other
// peer.
type Server struct {
	cfg config.RelayServerConfig
	log *slog.Logger
	bus *bus.MessageBus
	met *metrics

	peers   atomic.Int64
	ready   atomic.Bool
	readyCh chan struct{}

	mu        sync.RWMutex
	addr      string
	startedAt time.Time
}

type statusResponse struct {
	Status        string `json:"status"`
	Address       string `json:"address,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Peers         int64  `json:"peers"`
}

func NewServer(cfg config.RelayServerConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		cfg:     cfg,
		log:     log.With("component", "relay.server"),
		bus:     bus.NewMessageBus(),
		met:     newMetrics(),
		readyCh: make(chan struct{}),
	}
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()
	s.ready.Store(true)
	close(s.readyCh)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.log.Info("Relay server started", "address", s.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve relay: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.ready.Store(false)
		s.bus.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown relay: %w", err)
		}
		s.log.Info("Relay server stopped")
		return nil
	})

	return group.Wait()
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.readyCh
}

// Addr reports the bound listener address, empty before Run binds.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Peers reports the number of connected peers.
func (s *Server) Peers() int64 {
	return s.peers.Load()
}

// Handler returns the relay routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", s.met.handler())
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := &peer{id: shortID(), conn: conn}
	s.servePeer(r.Context(), p)
}

func (s *Server) servePeer(ctx context.Context, p *peer) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := s.log.With("peer", p.id)
	msgs, unsubscribe := s.bus.Subscribe(ctx, peerBuffer)

	s.peers.Add(1)
	s.met.peers.Inc()
	s.met.connections.Inc()
	log.Info("Peer joined", "peers", s.Peers())
	s.bus.Publish(ctx, bus.Message{From: p.id, Kind: protocol.KindJoin})

	go func() {
		<-ctx.Done()
		_ = p.conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		s.forward(p, msgs, log)
	}()

	err := s.readLoop(ctx, p, log)
	cancel()
	unsubscribe()
	<-done

	s.peers.Add(-1)
	s.met.peers.Dec()
	s.bus.Publish(context.Background(), bus.Message{From: p.id, Kind: protocol.KindLeave})
	if err != nil && !isClosed(err) {
		log.Warn("Peer connection failed", "error", err)
	}
	log.Info("Peer left", "peers", s.Peers())
}

// readLoop publishes the peer's messages until the connection fails.
func (s *Server) readLoop(ctx context.Context, p *peer, log *slog.Logger) error {
	rw := struct {
		io.Reader
		io.Writer
	}{p.conn, p}

	for {
		data, op, err := wsutil.ReadClientData(rw)
		if err != nil {
			return err
		}

		var body string
		switch op {
		case ws.OpText:
			body = string(data)
		case ws.OpBinary:
			var frame protocol.Frame
			if err := frame.Decode(data); err != nil {
				s.met.malformed.Inc()
				log.Warn("Dropping malformed frame", "error", err)
				continue
			}
			if frame.Kind != protocol.KindMessage {
				continue
			}
			body = frame.Body
		default:
			continue
		}

		if s.bus.Publish(ctx, bus.Message{From: p.id, Kind: protocol.KindMessage, Body: body}) {
			s.met.messages.Inc()
		}
	}
}

// forward writes bus messages from other peers to p.
func (s *Server) forward(p *peer, msgs <-chan bus.Message, log *slog.Logger) {
	for msg := range msgs {
		if msg.From == p.id {
			continue
		}
		if err := p.send(msg.Frame()); err != nil {
			if !isClosed(err) {
				log.Warn("Failed to forward message", "error", err)
			}
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		s.respondStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}

	s.respondStatus(w, http.StatusOK, "ready")
}

func (s *Server) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	s.mu.RLock()
	payload := statusResponse{Status: status, Address: s.addr, Peers: s.Peers()}
	if !s.startedAt.IsZero() {
		payload.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

// peer serializes writes to one connection. Control replies written by
// wsutil go through Write.
type peer struct {
	id   string
	conn net.Conn
	mu   sync.Mutex
}

func (p *peer) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Write(b)
}

func (p *peer) send(frame protocol.Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return wsutil.WriteServerBinary(p.conn, data)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func isClosed(err error) bool {
	var closed wsutil.ClosedError
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.As(err, &closed)
}
