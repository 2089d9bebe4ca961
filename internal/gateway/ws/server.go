// Package ws implements the WebSocket event stream. Subscribers connect and
// receive the supervision engine's lifecycle events (phase transitions,
// settled tasks, conflicts, consensus reports) in real-time instead of
// polling the run API.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/jkaninda/msimamizi/internal/events"
)

const (
	// writeTimeout bounds each subscriber write so one stalled connection
	// cannot back up the broadcast loop.
	writeTimeout = 5 * time.Second

	// subscriberBuffer is the per-subscriber event queue. Subscribers that
	// fall further behind than this are disconnected.
	subscriberBuffer = 64
)

// Config configures the WebSocket event server.
type Config struct {
	Token string // Optional bearer token. Empty = unauthenticated.
}

// Server broadcasts engine events to connected WebSocket subscribers.
// It implements events.Sink, so it plugs directly into the engine's
// event fan-out.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	// Optional connection gauge, incremented per subscriber.
	connGauge interface{ Inc(); Dec() }
}

type subscriber struct {
	ch chan events.Event
}

// NewServer creates a WebSocket event server.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// WithConnectionGauge sets a gauge tracking the live subscriber count.
func (s *Server) WithConnectionGauge(g interface{ Inc(); Dec() }) *Server {
	s.connGauge = g
	return s
}

// Publish implements events.Sink. Events are queued per subscriber;
// subscribers that cannot keep up are dropped rather than blocking the
// engine's phase loop.
func (s *Server) Publish(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			// Queue full: abandon the subscriber. Its write loop exits on
			// channel close and terminates the connection.
			close(sub.ch)
			delete(s.subs, sub)
		}
	}
}

// Handler returns an http.Handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	// Authenticate subscriber via token.
	if s.cfg.Token != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = r.Header.Get("Authorization")
			if len(token) > 7 && token[:7] == "Bearer " {
				token = token[7:]
			}
		}
		if token != s.cfg.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"msimamizi-events-v1"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	s.handleConnection(r.Context(), conn)
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	sub := &subscriber{ch: make(chan events.Event, subscriberBuffer)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	n := len(s.subs)
	s.mu.Unlock()

	if s.connGauge != nil {
		s.connGauge.Inc()
		defer s.connGauge.Dec()
	}
	s.logger.Info("event subscriber connected", slog.Int("subscribers", n))

	defer func() {
		s.unsubscribe(sub)
		conn.Close(websocket.StatusNormalClosure, "connection closed")
		s.logger.Info("event subscriber disconnected")
	}()

	// Discard inbound frames; the stream is one-way. Reading also surfaces
	// client disconnects promptly.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case ev, ok := <-sub.ch:
			if !ok {
				// Dropped by the broadcaster for falling behind.
				s.logger.Warn("event subscriber dropped (slow consumer)")
				return
			}
			if err := s.writeEvent(ctx, conn, ev); err != nil {
				s.logger.Debug("event write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

var _ events.Sink = (*Server)(nil)
