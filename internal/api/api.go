// Package api provides the HTTP surface for StudyLine.
//
// It exposes the provider webhook ingress, the operator live-chat endpoints,
// and a read-only conversation inspection endpoint. The server owns nothing:
// the engine, store, and bridge are injected and the handlers stay thin.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/StudyLine/internal/convstore"
	"github.com/BTreeMap/StudyLine/internal/livechat"
)

// Default server configuration.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP endpoints to the conversation store and the
// live-chat bridge. The webhook handler is injected by the active transport
// (Twilio) and may be nil when the transport produces events on its own
// (whatsmeow).
type Server struct {
	store   convstore.Store
	bridge  *livechat.Bridge
	webhook http.HandlerFunc
	opts    Opts
	httpSrv *http.Server
}

// NewServer creates an API server over the given store and bridge. webhook
// may be nil if the messaging backend does not use HTTP ingress.
func NewServer(store convstore.Store, bridge *livechat.Bridge, webhook http.HandlerFunc, options ...Option) *Server {
	opts := Opts{Addr: DefaultAddr}
	for _, opt := range options {
		opt(&opts)
	}
	slog.Debug("Server.NewServer: created", "addr", opts.Addr, "has_webhook", webhook != nil)
	return &Server{store: store, bridge: bridge, webhook: webhook, opts: opts}
}

// Handler builds the route table. Exposed separately so tests can drive the
// mux without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.webhook != nil {
		mux.HandleFunc("/webhook", s.webhookHandler)
	}
	mux.HandleFunc("/operator/message", s.operatorMessageHandler)
	mux.HandleFunc("/operator/end", s.operatorEndHandler)
	mux.HandleFunc("/conversations/", s.conversationHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	slog.Info("Server starting", "addr", s.opts.Addr)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server.Start: HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully, draining in-flight requests.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("Server stopping")
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}
