// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the listener scaffolding for custodyd.
//
//   - SocketServer: CBOR request-response protocol on a unix socket,
//     one request per connection, with action dispatch, connection
//     timeouts, and graceful shutdown. Privileged operations (reveal,
//     verify, destroy) are served only here.
//   - ServiceClient: the matching client used by custodyctl and by
//     verification agents.
//   - HTTPServer: lifecycle for the public HTTP API.
//
// Failure responses carry the custody error code alongside the
// message, and ServiceError unwraps to the matching sentinel, so
// errors.Is(err, custody.ErrConflict) works on both sides of the
// socket.
//
// The socket has no caller authentication beyond file permissions.
// It is created 0600 and must live in a directory only the daemon's
// user can reach.
package service
