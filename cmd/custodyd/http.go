// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/netutil"
	"github.com/bureau-foundation/custody/lib/tracking"
	"github.com/bureau-foundation/custody/lib/version"
)

// errNoLedger is returned by endpoints that read the ledger when the
// daemon runs without one.
var errNoLedger = custody.Unavailable("ledger", errors.New("no ledger rpc endpoint configured"))

func (d *daemon) handler() http.Handler {
	router := chi.NewRouter()
	router.Use(netutil.RequestID)
	router.Use(d.logRequests)
	router.Use(middleware.Recoverer)

	router.Get("/health", d.handleHealth)
	router.Route("/api", func(api chi.Router) {
		api.Get("/origins", d.handleOrigins)
		api.Get("/destinations", d.handleDestinations)
		api.Get("/routes", d.handleRoutes)
		api.Post("/secrets", d.handleStoreSecret)
		api.Get("/shipments/{tokenId}", d.handleShipment)
		api.Get("/shipments/{tokenId}/events", d.handleShipmentEvents)
	})
	return router
}

func (d *daemon) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := d.clock.Now()
		next.ServeHTTP(wrapped, r)
		level := slog.LevelDebug
		if wrapped.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		d.logger.Log(r.Context(), level, "http request",
			"request_id", netutil.RequestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"duration", d.clock.Now().Sub(started).String(),
		)
	})
}

type healthResponse struct {
	Status  string        `json:"status"`
	Version version.Build `json:"version"`
	Uptime  string        `json:"uptime"`
	Ledger  bool          `json:"ledger"`
	Policy  string        `json:"retentionPolicy"`
}

func (d *daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	netutil.WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Current(),
		Uptime:  d.clock.Now().Sub(d.startedAt).Truncate(time.Second).String(),
		Ledger:  d.tracking != nil,
		Policy:  string(d.retention.Policy()),
	})
}

func (d *daemon) handleOrigins(w http.ResponseWriter, r *http.Request) {
	origins, err := d.resolver.Origins(r.Context())
	if err != nil {
		netutil.WriteFailure(w, r, err)
		return
	}
	netutil.WriteJSON(w, http.StatusOK, map[string]any{"origins": nonNil(origins)})
}

func (d *daemon) handleDestinations(w http.ResponseWriter, r *http.Request) {
	originID := r.URL.Query().Get("originNodeId")
	if originID == "" {
		netutil.WriteError(w, r, http.StatusBadRequest, "precondition", "originNodeId is required", nil)
		return
	}
	destinations, err := d.resolver.ReachableDestinations(r.Context(), originID)
	if err != nil {
		netutil.WriteFailure(w, r, err)
		return
	}
	netutil.WriteJSON(w, http.StatusOK, map[string]any{"destinations": nonNil(destinations)})
}

type routeResponse struct {
	// Route is the ledger addresses of the path in travel order.
	Route       []custody.Address `json:"route"`
	RouteID     string            `json:"routeId"`
	Nodes       []custody.Node    `json:"nodes"`
	Fingerprint string            `json:"fingerprint"`
}

func (d *daemon) handleRoutes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	originID, destinationID := query.Get("originNodeId"), query.Get("destNodeId")
	if originID == "" || destinationID == "" {
		netutil.WriteError(w, r, http.StatusBadRequest, "precondition", "originNodeId and destNodeId are required", nil)
		return
	}
	path, err := d.resolver.ResolvePath(r.Context(), originID, destinationID)
	if err != nil {
		netutil.WriteFailure(w, r, err)
		return
	}
	netutil.WriteJSON(w, http.StatusOK, routeResponse{
		Route:       path.Addresses,
		RouteID:     path.Route.ID,
		Nodes:       path.Nodes,
		Fingerprint: path.Fingerprint.Hex(),
	})
}

type storeSecretRequest struct {
	TokenID custody.TokenID `json:"tokenId"`
	Secret  string          `json:"secret"`
}

func (d *daemon) handleStoreSecret(w http.ResponseWriter, r *http.Request) {
	var request storeSecretRequest
	if err := netutil.ReadJSON(r, &request); err != nil {
		netutil.WriteError(w, r, http.StatusBadRequest, "precondition", err.Error(), nil)
		return
	}
	if !request.TokenID.Assigned() {
		netutil.WriteError(w, r, http.StatusBadRequest, "precondition", "tokenId is required", nil)
		return
	}
	plaintext, err := commitment.ParseSecret(request.Secret)
	if err != nil {
		netutil.WriteError(w, r, http.StatusBadRequest, "precondition", err.Error(), nil)
		return
	}
	defer plaintext.Close()

	if err := d.secrets.Persist(r.Context(), request.TokenID, plaintext); err != nil {
		netutil.WriteFailure(w, r, err)
		return
	}
	netutil.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "secret stored",
		"tokenId": request.TokenID,
	})
}

type shipmentResponse struct {
	tracking.View
	Actions []tracking.Action `json:"actions"`
}

// shipmentRequest parses the token id path parameter and the optional
// viewer query parameter. It writes the error response itself and
// returns ok=false on bad input.
func (d *daemon) shipmentRequest(w http.ResponseWriter, r *http.Request) (tokenID custody.TokenID, viewer custody.Address, ok bool) {
	if d.tracking == nil {
		netutil.WriteFailure(w, r, errNoLedger)
		return tokenID, viewer, false
	}
	tokenID, err := custody.ParseTokenID(chi.URLParam(r, "tokenId"))
	if err != nil {
		netutil.WriteError(w, r, http.StatusBadRequest, "precondition", err.Error(), nil)
		return tokenID, viewer, false
	}
	if text := r.URL.Query().Get("viewer"); text != "" {
		viewer, err = custody.ParseAddress(text)
		if err != nil {
			netutil.WriteError(w, r, http.StatusBadRequest, "precondition", err.Error(), nil)
			return tokenID, viewer, false
		}
	}
	return tokenID, viewer, true
}

func (d *daemon) handleShipment(w http.ResponseWriter, r *http.Request) {
	tokenID, viewer, ok := d.shipmentRequest(w, r)
	if !ok {
		return
	}
	view, err := d.tracking.Read(r.Context(), tokenID)
	if err != nil {
		netutil.WriteFailure(w, r, err)
		return
	}
	netutil.WriteJSON(w, http.StatusOK, shipmentResponse{View: view, Actions: nonNil(view.Actions(viewer))})
}

// viewEvent names each server-sent event carrying a shipment view.
const viewEvent = "view"

// handleShipmentEvents streams the shipment view as server-sent
// events: the current view first, then a fresh view after every
// custody transfer, until the client disconnects.
func (d *daemon) handleShipmentEvents(w http.ResponseWriter, r *http.Request) {
	tokenID, viewer, ok := d.shipmentRequest(w, r)
	if !ok {
		return
	}
	if d.watcher == nil {
		netutil.WriteFailure(w, r, custody.Unavailable("ledger events", errors.New("no event source configured")))
		return
	}
	views, err := d.watcher.Watch(r.Context(), tokenID)
	if err != nil {
		netutil.WriteFailure(w, r, err)
		return
	}

	controller := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := controller.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		d.logger.Warn("clearing write deadline for event stream", "error", err)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for view := range views {
		data, err := json.Marshal(shipmentResponse{View: view, Actions: nonNil(view.Actions(viewer))})
		if err != nil {
			d.logger.Error("encoding shipment view", "token_id", tokenID.String(), "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", viewEvent, data); err != nil {
			return
		}
		if err := controller.Flush(); err != nil {
			return
		}
	}
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
