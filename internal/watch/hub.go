// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package watch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/region"
)

// ErrNotRunning is returned by Attach while the hub is not serving.
var ErrNotRunning = errors.New("watch hub is not running")

// Hub tracks watch clients and disconnects them on shutdown.
type Hub struct {
	manager  *region.Manager
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]struct{}
	runCtx  context.Context
}

// NewHub creates a hub over manager. allowedOrigins lists the browser
// origins permitted to connect; "*" allows any, and an empty list allows
// only same-host requests.
func NewHub(manager *region.Manager, allowedOrigins []string) *Hub {
	h := &Hub{
		manager:    manager,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

// String implements fmt.Stringer for suture's logs.
func (h *Hub) String() string {
	return "watch-hub"
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runCtx
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	h.mu.Lock()
	h.runCtx = ctx
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.runCtx = nil
		h.mu.Unlock()
	}()

	for {
		// Shutdown takes priority over pending lifecycle events.
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WatchClients.Inc()
			logging.Debug().Uint64("client", c.id).Str("region", c.region.Key()).Int("total_clients", total).Msg("Watch client connected")

		case c := <-h.unregister:
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.finish()
	metrics.WatchClients.Dec()
	logging.Debug().Uint64("client", c.id).Str("region", c.region.Key()).Int("total_clients", total).Msg("Watch client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
	if len(clients) > 0 {
		logging.Info().Int("clients", len(clients)).Msg("Watch hub stopped, clients disconnected")
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-c.ctx.Done():
	}
}

// Attach upgrades the request and streams r's changes to the client until
// it disconnects. On failure before the upgrade an HTTP error has already
// been written. On any failure r is released, so an unpinned region the
// caller activated for this watch does not linger.
func (h *Hub) Attach(w http.ResponseWriter, req *http.Request, r *region.Region) error {
	ctx := h.context()
	if ctx == nil {
		h.manager.Release(r)
		http.Error(w, ErrNotRunning.Error(), http.StatusServiceUnavailable)
		return ErrNotRunning
	}

	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.manager.Release(r)
		return fmt.Errorf("upgrade watch connection: %w", err)
	}
	c := newClient(ctx, h, conn, r)

	// The snapshot is queued before any notification can be.
	c.mu.Lock()
	c.sub, err = h.manager.Subscribe(r, c.observe)
	if err == nil {
		c.send <- c.snapshot()
	}
	c.mu.Unlock()
	if err != nil {
		c.cancel()
		h.manager.Release(r)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		_ = conn.Close()
		return err
	}

	select {
	case h.register <- c:
	case <-ctx.Done():
		c.finish()
		_ = conn.Close()
		return ctx.Err()
	}

	go c.writePump()
	go c.readPump()

	if _, ok := r.LastReconcile(); !ok {
		go func() {
			if _, err := h.manager.Reconcile(logging.ContextWithNewCorrelationID(c.ctx), r); err != nil && c.ctx.Err() == nil {
				logging.Warn().Err(err).Str("region", r.Key()).Msg("Initial reconcile for watched region failed")
			}
		}()
	}
	return nil
}
