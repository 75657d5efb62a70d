// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/custody"
)

// ActionFunc handles one socket action. raw is the whole CBOR request,
// "action" field included; the handler decodes its own fields from it.
// The returned value becomes the response data. An error becomes a
// failure response whose code is custody.Code(err).
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every socket response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

const (
	// requestTimeout bounds reading the request; responseTimeout
	// bounds writing the response. Handler time is bounded only by
	// Serve's context.
	requestTimeout  = 30 * time.Second
	responseTimeout = 10 * time.Second

	// maxRequestSize bounds a request. The largest carries a token
	// id, a secret, and shipment creation fields.
	maxRequestSize = 64 * 1024
)

// SocketServer is the privileged custody interface: CBOR requests on
// a unix socket, one request and one response per connection. CBOR is
// self-delimiting so there is no framing.
//
// Plaintext secrets leave the daemon through this socket, so the
// socket file is mode 0600 and every connection's peer credentials
// are checked: only processes running as the daemon's own user (or
// root) are served.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	logger     *slog.Logger
	allowedUID int

	ready    chan struct{}
	inFlight sync.WaitGroup
}

// NewSocketServer creates a server for socketPath. Register actions
// with Handle before calling Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		logger:     logger,
		allowedUID: os.Getuid(),
		ready:      make(chan struct{}),
	}
}

// Handle registers handler for action. Registering an action twice is
// a programming error and panics.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Ready is closed once the socket is listening.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve listens until ctx is cancelled and then waits for in-flight
// requests. A stale socket file from a previous run is replaced; the
// socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()
	close(s.ready)
	s.logger.Info("socket server listening", "path", s.socketPath)

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("socket accept failed", "error", err)
			continue
		}
		s.inFlight.Add(1)
		go func() {
			defer s.inFlight.Done()
			defer conn.Close()
			s.serveConnection(ctx, conn)
		}()
	}

	s.inFlight.Wait()
	s.logger.Info("socket server stopped")
	return nil
}

func (s *SocketServer) listen() (net.Listener, error) {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	// The umask keeps the socket private from the moment it exists;
	// the chmod below is for umask-ignoring filesystems.
	previous := unix.Umask(0o177)
	listener, err := net.Listen("unix", s.socketPath)
	unix.Umask(previous)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restricting socket permissions: %w", err)
	}
	return listener, nil
}

func (s *SocketServer) serveConnection(ctx context.Context, conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.respond(conn, failure("precondition", fmt.Sprintf("invalid request: %v", err)))
		return
	}

	// The request is read before the peer check so a rejected client
	// still gets its response instead of a broken pipe.
	if err := s.checkPeer(conn); err != nil {
		s.logger.Warn("socket peer rejected", "error", err)
		s.respond(conn, failure("precondition", "permission denied"))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.respond(conn, failure("precondition", fmt.Sprintf("invalid request: %v", err)))
		return
	}
	handler, ok := s.handlers[header.Action]
	switch {
	case header.Action == "":
		s.respond(conn, failure("precondition", "missing required field: action"))
		return
	case !ok:
		s.respond(conn, failure("precondition", fmt.Sprintf("unknown action %q", header.Action)))
		return
	}

	started := time.Now()
	response := s.dispatch(ctx, header.Action, handler, raw)
	level := slog.LevelDebug
	switch response.Code {
	case "integrity", "inconsistent", "internal":
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "socket action",
		"action", header.Action,
		"ok", response.OK,
		"code", response.Code,
		"duration", time.Since(started).String(),
	)
	s.respond(conn, response)
}

// dispatch runs handler and builds its response. A panicking handler
// becomes an internal failure rather than taking the daemon down.
func (s *SocketServer) dispatch(ctx context.Context, action string, handler ActionFunc, raw []byte) (response Response) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("socket action panicked",
				"action", action, "panic", fmt.Sprint(recovered), "stack", string(debug.Stack()))
			response = failure("internal", "internal error")
		}
	}()

	result, err := handler(ctx, raw)
	if err != nil {
		return failure(custody.Code(err), err.Error())
	}
	response = Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			return failure("internal", fmt.Sprintf("encoding %s response: %v", action, err))
		}
		response.Data = data
	}
	return response
}

func (s *SocketServer) respond(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(responseTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing socket response failed", "error", err)
	}
}

func failure(code, message string) Response {
	return Response{Code: code, Error: message}
}

// checkPeer admits the daemon's own user and root.
func (s *SocketServer) checkPeer(conn net.Conn) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("reading peer credentials: %w", err)
	}
	var (
		credentials *unix.Ucred
		credErr     error
	)
	if err := raw.Control(func(fd uintptr) {
		credentials, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return fmt.Errorf("reading peer credentials: %w", err)
	}
	if credErr != nil {
		return fmt.Errorf("reading peer credentials: %w", credErr)
	}
	if int(credentials.Uid) != s.allowedUID && credentials.Uid != 0 {
		return fmt.Errorf("peer uid %d (pid %d) is not uid %d", credentials.Uid, credentials.Pid, s.allowedUID)
	}
	return nil
}
