// Package server exposes the voice agent over a WebSocket endpoint. Each
// connection becomes one session; inbound frames are handled in arrival
// order so replies within a session are always emitted in the order
// generated.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil-voice/vigil/pkg/session"
	"github.com/vigil-voice/vigil/pkg/wire"
)

// Config carries the network tunables.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Path is the WebSocket endpoint path. Defaults to "/ws".
	Path string

	// PingInterval is the server-side liveness ping period.
	PingInterval time.Duration

	// WriteTimeout bounds a single outbound frame write.
	WriteTimeout time.Duration

	// MaxMessageBytes bounds one inbound frame. Audio chunks arrive
	// base64-encoded, so this must cover the encoded size.
	MaxMessageBytes int64
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 4 << 20
	}
	return c
}

// Server accepts WebSocket connections and binds them to sessions.
type Server struct {
	cfg      Config
	sessions *session.Manager
	logger   *slog.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	closeOnce sync.Once
}

// New creates a Server around an existing session manager.
func New(sessions *session.Manager, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving connections until Shutdown or a listener
// error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.cfg.Addr, "path", s.cfg.Path)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Serve serves connections on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and tears down all live sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.sessions.Shutdown()
		err = s.httpSrv.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	readWindow := s.cfg.PingInterval * 2
	conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	sender := &wsSender{conn: conn, timeout: s.cfg.WriteTimeout}
	sess := s.sessions.Connect(sender)
	defer s.sessions.Disconnect(sess.ID)

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed", "session_id", sess.ID, "error", err)
			}
			return
		}
		// Any traffic proves liveness, not just pong frames.
		conn.SetReadDeadline(time.Now().Add(readWindow))
		sess.HandleFrame(r.Context(), data)
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// wsSender serializes outbound frame writes onto one connection. The
// session sends from its handler, its timer, and its monitor goroutine.
type wsSender struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (w *wsSender) Send(f *wire.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}
