package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/l0p7/worryhero/internal/config"
)

// drainTimeout bounds how long open asset and status requests may finish
// after the process is asked to stop.
const drainTimeout = 5 * time.Second

// Server exposes the acquisition API on the configured listen address.
type Server struct {
	logger *slog.Logger
	http   *http.Server
	bound  chan string
}

// New prepares a server for handler. Nothing is bound until Run.
func New(cfg config.Config, logger *slog.Logger, handler http.Handler) (*Server, error) {
	if handler == nil {
		return nil, errors.New("server: handler required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	listen := cfg.Server.Listen
	return &Server{
		logger: logger.With(slog.String("agent", "http")),
		http: &http.Server{
			Addr:              net.JoinHostPort(listen.Address, strconv.Itoa(listen.Port)),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		bound: make(chan string, 1),
	}, nil
}

// Addr reports the address actually bound by Run, which differs from the
// configured one when port 0 is used. It blocks until Run has bound or ctx ends.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case addr := <-s.bound:
		s.bound <- addr
		return addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run binds the listener and serves until ctx is cancelled. Bind failures are
// returned immediately. On cancellation open requests get drainTimeout to
// finish and ctx.Err() is returned.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	addr := ln.Addr().String()
	s.bound <- addr
	s.logger.Info("serving acquisition api", slog.String("address", addr))

	served := make(chan error, 1)
	go func() {
		served <- s.http.Serve(ln)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	s.logger.Info("draining acquisition api")
	if err := s.http.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	<-served
	return ctx.Err()
}
