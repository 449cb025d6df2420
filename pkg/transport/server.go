// Package transport exposes the automation bridge over HTTP: a WebSocket
// endpoint carrying the command/reply protocol, plus metrics and health.
// Each WebSocket connection gets its own session; all sessions share the
// shell's single owning loop.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/dispatch"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/history"
	"github.com/odvcencio/autobridge/pkg/reply"
	"github.com/odvcencio/autobridge/pkg/session"
)

const (
	maxWSReadBytes = 1 << 20
	wsWriteTimeout = 15 * time.Second
)

// Request is the wire shape of one inbound command.
type Request struct {
	CorrelationID uint64          `json:"correlation_id"`
	Opcode        dispatch.Opcode `json:"opcode"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Config configures the server.
type Config struct {
	BindAddress string
	Shell       app.Shell
	Hub         *eventhub.Hub
	History     *history.Store
	Logger      *slog.Logger

	// Loop owns the shell. Start runs it; every connection's session posts
	// its commands there.
	Loop *session.Loop

	// OnLastBrowserClosed propagates application exit; see session.Options.
	OnLastBrowserClosed func()
}

// Server is the bridge's HTTP front end.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// NewServer creates a server from config.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// routes builds the HTTP router.
func (s *Server) routes() http.Handler {
	router := chi.NewRouter()
	router.Get("/ws", s.handleWS)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return router
}

// Start runs the owning loop and the HTTP server until the context is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.cfg.BindAddress,
		Handler: s.routes(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.cfg.Loop.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("bridge listening", "addr", s.cfg.BindAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	// Origin checking is off: drivers are native automation clients, not
	// browser pages, and connect with arbitrary or absent Origin headers.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxWSReadBytes)
	defer conn.Close(websocket.StatusNormalClosure, "")

	connectionsActive.Inc()
	defer connectionsActive.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := newWSChannel(ctx, conn)
	sess := session.New(session.Options{
		Shell:               s.cfg.Shell,
		Hub:                 s.cfg.Hub,
		History:             s.cfg.History,
		Channel:             ch,
		Logger:              s.logger,
		Loop:                s.cfg.Loop,
		OnLastBrowserClosed: s.cfg.OnLastBrowserClosed,
	})
	defer sess.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.readLoop(ctx, conn, sess, ch)
	})
	g.Go(func() error {
		defer cancel()
		return ch.writeLoop()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("connection closed", "session", sess.ID(), "error", err)
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, ch reply.Channel) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			// No usable correlation id; the driver sees a zero-correlated
			// malformed reply and can resynchronize.
			_ = ch.Send(reply.Envelope{Status: reply.StatusMalformedRequest})
			continue
		}
		if err := sess.Submit(req.Opcode, req.Payload, req.CorrelationID, ch); err != nil {
			return err
		}
	}
}
