// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bureau-foundation/custody/lib/custody"
)

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader([]byte(`{"status":"ok"}`)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"status":"ok"}` {
			t.Fatalf("got %q, want %q", data, `{"status":"ok"}`)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(data) != 0 {
			t.Fatalf("expected empty, got %d bytes", len(data))
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		_, err := ReadResponse(&failReader{})
		if err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestDecodeResponse(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		body := bytes.NewReader([]byte(`{"name":"test","count":42}`))
		var result struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		}
		if err := DecodeResponse(body, &result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Name != "test" {
			t.Fatalf("name: got %q, want %q", result.Name, "test")
		}
		if result.Count != 42 {
			t.Fatalf("count: got %d, want %d", result.Count, 42)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if err := DecodeResponse(bytes.NewReader([]byte(`not json`)), &struct{}{}); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if err := DecodeResponse(&failReader{}, &struct{}{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		WriteError(w, r, http.StatusTeapot, "precondition", "bad input", nil)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q, want req_ prefix", seen)
	}
	if got := recorder.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("header = %q, want %q", got, seen)
	}
	var body ErrorResponse
	if err := DecodeResponse(recorder.Body, &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.RequestID != seen {
		t.Errorf("body request_id = %q, want %q", body.RequestID, seen)
	}
	if body.Error.Code != "precondition" || body.Error.Message != "bad input" {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestWriteErrorWithoutMiddleware(t *testing.T) {
	recorder := httptest.NewRecorder()
	WriteError(recorder, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusNotFound, "not_found", "missing", nil)
	var body ErrorResponse
	if err := DecodeResponse(recorder.Body, &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !strings.HasPrefix(body.RequestID, "req_") {
		t.Errorf("request_id = %q, want a minted id", body.RequestID)
	}
}

func TestReadJSONRejectsUnknownFields(t *testing.T) {
	request := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	var target struct {
		Name string `json:"name"`
	}
	if err := ReadJSON(request, &target); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestWriteFailureStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("token 7: %w", custody.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("token 7: %w", custody.ErrConflict), http.StatusConflict, "conflict"},
		{fmt.Errorf("route: %w", custody.ErrInconsistent), http.StatusConflict, "inconsistent"},
		{fmt.Errorf("secret: %w", custody.ErrPrecondition), http.StatusBadRequest, "precondition"},
		{custody.Unavailable("ledger", errors.New("dial refused")), http.StatusServiceUnavailable, "unavailable"},
		{fmt.Errorf("decrypt: %w", custody.ErrIntegrity), http.StatusInternalServerError, "integrity"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, test := range tests {
		t.Run(test.code, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			WriteFailure(recorder, httptest.NewRequest(http.MethodGet, "/", nil), test.err)
			if recorder.Code != test.status {
				t.Errorf("status = %d, want %d", recorder.Code, test.status)
			}
			var body ErrorResponse
			if err := DecodeResponse(recorder.Body, &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Error.Code != test.code {
				t.Errorf("code = %q, want %q", body.Error.Code, test.code)
			}
		})
	}
}

func TestDecodeError(t *testing.T) {
	t.Run("envelope", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		WriteError(recorder, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusConflict, "conflict", "already stored", nil)
		err := DecodeError(recorder.Result())
		if !errors.Is(err, custody.ErrConflict) {
			t.Fatalf("error = %v, want ErrConflict", err)
		}
		var apiError *APIError
		if !errors.As(err, &apiError) || apiError.Status != http.StatusConflict {
			t.Fatalf("error = %#v, want APIError with status 409", err)
		}
	})

	t.Run("plain body", func(t *testing.T) {
		response := &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader("upstream down"))}
		err := DecodeError(response)
		var apiError *APIError
		if !errors.As(err, &apiError) {
			t.Fatalf("error = %v, want APIError", err)
		}
		if apiError.Code != "internal" || apiError.Message != "upstream down" {
			t.Errorf("got %+v", apiError)
		}
	})
}

// failReader always returns an error on Read.
type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
