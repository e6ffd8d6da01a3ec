// Package monitor serves a running session's status over HTTP and streams
// its event log to websocket clients.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvandessel/levertask/internal/eventlog"
	"github.com/nvandessel/levertask/internal/ratelimit"
	"github.com/nvandessel/levertask/internal/session"
	"github.com/nvandessel/levertask/internal/trial"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	subBuffer   = 256
	readLimit   = 512
	defaultAddr = "localhost:0"
)

// Source is the session being monitored.
type Source interface {
	Status() trial.Status
	Summary() session.Summary
	Log() *eventlog.Log
}

// StatusResponse is the body of GET / and GET /api/status.
type StatusResponse struct {
	Status  trial.Status    `json:"status"`
	Summary session.Summary `json:"summary"`
	Clients int             `json:"clients"`
}

// Server is the live monitor.
type Server struct {
	src      Source
	logger   *slog.Logger
	upgrader websocket.Upgrader
	limiter  *ratelimit.Limiter

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
	clients    int
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits each remote host to rate requests per second with the
// given burst. A non-positive rate leaves the server unlimited.
func WithRateLimit(rate float64, burst int) Option {
	return func(s *Server) {
		if rate > 0 {
			s.limiter = ratelimit.NewLimiter(rate, max(burst, 1))
		}
	}
}

// NewServer creates a monitor for src. A nil logger discards.
func NewServer(src Source, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		src:    src,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the address the server is listening on, or "" before it starts.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the monitor's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/records", s.handleRecords)
	mux.HandleFunc("/ws", s.handleWS)
	if s.limiter != nil {
		return s.limiter.Middleware(mux)
	}
	return mux
}

// ListenAndServe listens on addr ("localhost:0" when empty) and blocks until
// ctx is cancelled. Websocket streams end with the context.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = defaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = srv
	s.mu.Unlock()
	s.logger.Info("monitor listening", "addr", s.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) statusResponse() StatusResponse {
	s.mu.Lock()
	clients := s.clients
	s.mu.Unlock()
	return StatusResponse{
		Status:  s.src.Status(),
		Summary: s.src.Summary(),
		Clients: clients,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.statusResponse())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statusResponse())
}

// handleRecords returns everything recorded so far.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.src.Log().Snapshot())
}

// handleWS streams every appended log entry as a JSON text message.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	entries, cancel := s.src.Log().Subscribe(subBuffer)
	s.track(1)
	s.logger.Debug("monitor client connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(r.Context(), conn, entries, done)

	cancel()
	conn.Close()
	s.track(-1)
	s.logger.Debug("monitor client disconnected", "remote", r.RemoteAddr)
}

// readPump drains client frames so pongs and close frames are processed.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("monitor client read error", "error", err)
			}
			return
		}
	}
}

// writePump is the connection's only writer.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, entries <-chan eventlog.Entry, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"),
				time.Now().Add(writeWait))
			return
		case <-done:
			return
		}
	}
}

func (s *Server) track(delta int) {
	s.mu.Lock()
	s.clients += delta
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error: "+err.Error(), http.StatusInternalServerError)
	}
}
