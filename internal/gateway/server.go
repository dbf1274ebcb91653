// Package gateway serves the invocation surface to external callers. Frames
// from pkg/protocol travel as WebSocket text messages or as JSON lines on
// stdio; every client may have several requests in flight.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

// Server owns the connected clients and the method router.
type Server struct {
	cfg      config.ServerConfig
	version  string
	router   *MethodRouter
	limiter  *RateLimiter
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client
	seq     atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by connect and status.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server. Handlers are added through Router().Register.
func NewServer(cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		version: "dev",
		limiter: NewRateLimiter(cfg.RPM, cfg.Burst),
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.router = NewMethodRouter(s)
	return s
}

// Router returns the method router.
func (s *Server) Router() *MethodRouter { return s.router }

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// NextSeq returns the next event sequence number.
func (s *Server) NextSeq() int64 { return s.seq.Add(1) }

// Broadcast sends an event to every connected client.
func (s *Server) Broadcast(event string, payload any) {
	ev := protocol.NewEvent(event, payload)
	ev.Seq = s.NextSeq()

	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.SendEvent(ev)
	}
}

// ServeStdio serves a single local caller over newline-delimited frames
// until r reaches EOF. The caller is trusted: no connect is required.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) {
	s.serve(ctx, newClient(newLineTransport(r, w), s, true))
}

// ListenAndServe accepts WebSocket clients on /ws until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		s.serve(ctx, newClient(newWSTransport(conn), s, s.cfg.Token == ""))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway listening", "addr", addr, "auth", s.cfg.Token != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serve(ctx context.Context, c *Client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	slog.Debug("client connected", "client", c.id)

	c.Run(ctx)

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	s.limiter.Forget(c.id)
	slog.Debug("client disconnected", "client", c.id)
}
