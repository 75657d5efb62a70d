// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides the JSON-over-HTTP plumbing shared by the
// custody daemon and its clients.
//
// Server side: every request carries a request id ("req_" + UUID),
// assigned by the RequestID middleware and echoed in the X-Request-ID
// header and in every error body. Errors are written as
//
//	{"request_id": "...", "error": {"code": "...", "message": "...", "details": ...}}
//
// where code is the custody taxonomy code (see custody.Code) and the
// HTTP status is derived from it by StatusFor.
//
// Client side: response body reads are bounded at MaxResponseSize, and
// DecodeError turns an error body back into an error that matches the
// custody sentinel for its code.
package netutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/bureau-foundation/custody/lib/custody"
)

// MaxResponseSize bounds JSON response body reads: 16 MB. Custody
// responses are a node list or a single shipment view, orders of
// magnitude smaller.
const MaxResponseSize int64 = 16 << 20

// MaxRequestSize bounds JSON request body reads.
const MaxRequestSize int64 = 64 << 10

// RequestIDHeader carries the request id on responses.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// NewRequestID returns a fresh request id.
func NewRequestID() string { return "req_" + uuid.NewString() }

// RequestID is middleware that assigns each request an id, stores it
// in the request context and sets the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := NewRequestID()
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFrom returns the id assigned by RequestID, or "" outside
// that middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WriteJSON writes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes a bounded request body into dst. Unknown fields
// are rejected.
func ReadJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxRequestSize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

// ErrorDetail is the inner object of an error body.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	RequestID string      `json:"request_id"`
	Error     ErrorDetail `json:"error"`
}

// WriteError writes an error body. The request id comes from the
// request context when RequestID ran, otherwise a fresh one is minted.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	id := RequestIDFrom(r.Context())
	if id == "" {
		id = NewRequestID()
	}
	WriteJSON(w, status, ErrorResponse{
		RequestID: id,
		Error:     ErrorDetail{Code: code, Message: message, Details: details},
	})
}

// WriteFailure classifies err with the custody taxonomy and writes the
// matching status and code.
func WriteFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := custody.Code(err)
	WriteError(w, r, StatusFor(code), code, err.Error(), nil)
}

// StatusFor maps a custody error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case "not_found":
		return http.StatusNotFound
	case "conflict", "inconsistent":
		return http.StatusConflict
	case "precondition":
		return http.StatusBadRequest
	case "unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a response body (up to MaxResponseSize bytes)
// and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// APIError is a decoded error body. It unwraps to the custody
// sentinel for its code.
type APIError struct {
	Status    int
	RequestID string
	Code      string
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d, %s): %s", e.Code, e.Status, e.RequestID, e.Message)
}

func (e *APIError) Unwrap() error {
	return custody.FromCode(e.Code)
}

// DecodeError reads an error response. A body that is not an error
// envelope is reported verbatim with code "internal".
func DecodeError(response *http.Response) error {
	data, err := ReadResponse(response.Body)
	if err != nil {
		return fmt.Errorf("reading error response (HTTP %d): %w", response.StatusCode, err)
	}
	var body ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Code == "" {
		return &APIError{Status: response.StatusCode, Code: "internal", Message: string(data)}
	}
	return &APIError{
		Status:    response.StatusCode,
		RequestID: body.RequestID,
		Code:      body.Error.Code,
		Message:   body.Error.Message,
	}
}
