// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPTimeouts bound how long a client may hold a connection. Zero
// fields take the defaults from DefaultHTTPTimeouts.
type HTTPTimeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration

	// Shutdown is how long in-flight requests get to finish once
	// Serve's context is cancelled.
	Shutdown time.Duration
}

// DefaultHTTPTimeouts fit the custody API: request bodies are a token
// id and a secret, responses a single shipment view. Event streams
// clear their own write deadline.
var DefaultHTTPTimeouts = HTTPTimeouts{
	ReadHeader: 10 * time.Second,
	Read:       15 * time.Second,
	Write:      30 * time.Second,
	Idle:       60 * time.Second,
	Shutdown:   10 * time.Second,
}

func (t HTTPTimeouts) withDefaults() HTTPTimeouts {
	pick := func(value, fallback time.Duration) time.Duration {
		if value > 0 {
			return value
		}
		return fallback
	}
	return HTTPTimeouts{
		ReadHeader: pick(t.ReadHeader, DefaultHTTPTimeouts.ReadHeader),
		Read:       pick(t.Read, DefaultHTTPTimeouts.Read),
		Write:      pick(t.Write, DefaultHTTPTimeouts.Write),
		Idle:       pick(t.Idle, DefaultHTTPTimeouts.Idle),
		Shutdown:   pick(t.Shutdown, DefaultHTTPTimeouts.Shutdown),
	}
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:8080".
	// Port 0 picks a free port; read it from Addr after Ready.
	Address string

	Handler  http.Handler
	Timeouts HTTPTimeouts

	// Logger is the structured logger. Nil discards.
	Logger *slog.Logger
}

// HTTPServer serves the public custody API on a TCP listener, with the
// same lifecycle as SocketServer: Serve blocks until its context is
// cancelled and in-flight requests have drained.
type HTTPServer struct {
	address  string
	handler  http.Handler
	timeouts HTTPTimeouts
	logger   *slog.Logger

	ready chan struct{}
	addr  net.Addr
}

// NewHTTPServer creates a server for config. Address and Handler are
// required; a missing one is a programming error and panics.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Address == "" {
		panic("service.HTTPServer: Address is required")
	}
	if config.Handler == nil {
		panic("service.HTTPServer: Handler is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPServer{
		address:  config.Address,
		handler:  config.Handler,
		timeouts: config.Timeouts.withDefaults(),
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address. Valid only after Ready is closed.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// Serve listens and serves until ctx is cancelled. Request contexts
// derive from ctx, so long-lived handlers such as event streams end
// when shutdown begins instead of holding it open. Requests still
// running after the shutdown timeout are cut off and reported.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	requestContext, cancelRequests := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRequests()

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.timeouts.ReadHeader,
		ReadTimeout:       s.timeouts.Read,
		WriteTimeout:      s.timeouts.Write,
		IdleTimeout:       s.timeouts.Idle,
		BaseContext:       func(net.Listener) context.Context { return requestContext },
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	failed := make(chan error, 1)
	go func() {
		failed <- server.Serve(listener)
	}()
	s.logger.Info("http server listening", "address", s.addr.String())

	select {
	case err := <-failed:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	cancelRequests()
	shutdownContext, cancel := context.WithTimeout(context.Background(), s.timeouts.Shutdown)
	defer cancel()
	if err := server.Shutdown(shutdownContext); err != nil {
		server.Close()
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
