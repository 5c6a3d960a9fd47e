// ABOUTME: Server orchestrator that wires the directory, message store, hub and HTTP API
// ABOUTME: Manages listener setup, startup and graceful shutdown lifecycle

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/auth"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/config"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/directory"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/httpapi"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/hub"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/presence"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/store"
)

// Server orchestrates the messenger components: the user directory, the
// conversation store, the presence registry, the websocket hub and the
// HTTP API. It owns their lifecycle from New through graceful shutdown.
type Server struct {
	config        *config.Config
	directory     *directory.Store
	conversations *store.Conversations
	registry      *presence.Registry
	hub           *hub.Hub
	httpServer    *http.Server
	logger        *slog.Logger
}

// New creates a Server instance with all components wired together.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	dir, err := directory.Open(cfg.Database.Path, logger.With("component", "directory"))
	if err != nil {
		return nil, fmt.Errorf("opening user directory: %w", err)
	}

	if cfg.Database.Seed {
		if err := dir.Seed(context.Background()); err != nil {
			_ = dir.Close()
			return nil, fmt.Errorf("seeding user directory: %w", err)
		}
	}

	snap, err := store.NewFileSnapshot(cfg.Messages.Path)
	if err != nil {
		_ = dir.Close()
		return nil, fmt.Errorf("preparing message snapshot: %w", err)
	}
	conversations, err := store.Open(snap, logger.With("component", "store"))
	if err != nil {
		_ = dir.Close()
		return nil, fmt.Errorf("opening conversation store: %w", err)
	}

	registry := presence.NewRegistry(dir, logger.With("component", "presence"))
	h := hub.New(registry, conversations, logger.With("component", "hub"))
	tokens := auth.NewTokens([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)

	api := httpapi.New(dir, registry, conversations, tokens, logger.With("component", "httpapi"))
	api.Register(mux)

	srv := &Server{
		config:        cfg,
		directory:     dir,
		conversations: conversations,
		registry:      registry,
		hub:           h,
		logger:        logger.With("component", "server"),
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return srv, nil
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, closes active sessions and flushes state.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server", "active_sessions", s.hub.ActiveSessions())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.hub.Close()

	errs = appendCloseError(errs, "message flush", s.conversations.Flush())
	errs = appendCloseError(errs, "directory close", s.directory.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
