// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/reconcile"
	"github.com/tomtom215/regionsync/internal/region"
	"github.com/tomtom215/regionsync/internal/validation"
	"github.com/tomtom215/regionsync/internal/watch"
)

const (
	defaultRejectedLimit = 100
	maxRejectedLimit     = 1000
	maxRequestBody       = 64 << 10
)

// Journal is the rejection journal as seen by the API.
type Journal interface {
	List(ctx context.Context, limit int) ([]models.Rejection, error)
	Purge(ctx context.Context) (int, error)
}

// ConnectionStatus reports push channel state.
type ConnectionStatus interface {
	IsConnected() bool
}

// Handler serves the debug API.
type Handler struct {
	manager          *region.Manager
	journal          Journal
	push             ConnectionStatus
	watch            *watch.Hub
	reconcileTimeout time.Duration
	started          time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithJournal enables the /rejected endpoints.
func WithJournal(j Journal) HandlerOption {
	return func(h *Handler) { h.journal = j }
}

// WithConnectionStatus reports push state in /healthz.
func WithConnectionStatus(s ConnectionStatus) HandlerOption {
	return func(h *Handler) { h.push = s }
}

// WithWatchHub enables the websocket watch endpoint.
func WithWatchHub(hub *watch.Hub) HandlerOption {
	return func(h *Handler) { h.watch = hub }
}

// WithReconcileTimeout bounds forced reconcile requests. Default 60s.
func WithReconcileTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.reconcileTimeout = d
		}
	}
}

// NewHandler creates a Handler over manager.
func NewHandler(manager *region.Manager, opts ...HandlerOption) *Handler {
	h := &Handler{
		manager:          manager,
		reconcileTimeout: 60 * time.Second,
		started:          time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegionView is the JSON rendering of a region.
type RegionView struct {
	Key           string    `json:"key"`
	Kind          string    `json:"kind"`
	Objects       int       `json:"objects"`
	Hash          string    `json:"hash"`
	State         string    `json:"state"`
	Subscribers   int       `json:"subscribers"`
	CreatedAt     time.Time `json:"created_at"`
	LastReconcile *RunView  `json:"last_reconcile,omitempty"`
}

// RunView is the JSON rendering of a completed reconcile.
type RunView struct {
	At     time.Time        `json:"at"`
	Result reconcile.Result `json:"result"`
	Error  string           `json:"error,omitempty"`
}

func newRegionView(r *region.Region) RegionView {
	v := RegionView{
		Key:         r.Key(),
		Kind:        string(r.Scope().Kind),
		Objects:     r.Len(),
		Hash:        r.Hash(),
		State:       r.State().String(),
		Subscribers: r.Subscribers(),
		CreatedAt:   r.CreatedAt().UTC(),
	}
	if run, ok := r.LastReconcile(); ok {
		rv := &RunView{At: run.At.UTC(), Result: run.Result}
		if run.Err != nil {
			rv.Error = run.Err.Error()
		}
		v.LastReconcile = rv
	}
	return v
}

type healthResponse struct {
	Status        string `json:"status"`
	PushConnected *bool  `json:"push_connected,omitempty"`
	Regions       int    `json:"regions"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Health reports liveness. It is always 200 while the process serves.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Regions:       len(h.manager.Regions()),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	if h.push != nil {
		connected := h.push.IsConnected()
		resp.PushConnected = &connected
		if !connected {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRegions returns every active region.
func (h *Handler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions := h.manager.Regions()
	views := make([]RegionView, len(regions))
	for i, reg := range regions {
		views[i] = newRegionView(reg)
	}
	respondOK(w, r, http.StatusOK, views, intPtr(len(views)))
}

type openRegionRequest struct {
	Scope string `json:"scope" validate:"required,scopekey"`
}

// OpenRegion activates and pins the region named in the request body.
func (h *Handler) OpenRegion(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "could not read request body", err)
		return
	}
	var req openRegionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "request body must be a JSON object", err)
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}

	scope, _ := models.ParseScopeKey(req.Scope)
	_, existed := h.manager.Lookup(scope.Key())
	reg, err := h.manager.Region(scope)
	if err != nil {
		h.respondRegionError(w, r, err)
		return
	}
	h.manager.Pin(reg)

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	respondOK(w, r, status, newRegionView(reg), nil)
}

// GetRegion returns one active region.
func (h *Handler) GetRegion(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegion(w, r)
	if !ok {
		return
	}
	respondOK(w, r, http.StatusOK, newRegionView(reg), nil)
}

// ListObjects returns a region's objects in store order.
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegion(w, r)
	if !ok {
		return
	}
	objects := reg.All()
	respondOK(w, r, http.StatusOK, objects, intPtr(len(objects)))
}

type objectRequest struct {
	ID string `validate:"objectid"`
}

// GetObject returns one object's full body.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegion(w, r)
	if !ok {
		return
	}
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "malformed object id", err)
		return
	}
	if err := validation.ValidateStruct(&objectRequest{ID: id}); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	obj, found := reg.Get(id)
	if !found {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "object not in region", nil)
		return
	}
	respondOK(w, r, http.StatusOK, obj, nil)
}

// WatchRegion activates the region if needed and streams its changes over
// a websocket until the client disconnects.
func (h *Handler) WatchRegion(w http.ResponseWriter, r *http.Request) {
	if h.watch == nil {
		respondError(w, r, http.StatusNotFound, CodeWatchDisabled, "watch endpoint is disabled", nil)
		return
	}
	raw, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "malformed scope key", err)
		return
	}
	scope, err := models.ParseScopeKey(raw)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	reg, err := h.manager.Region(scope)
	if err != nil {
		h.respondRegionError(w, r, err)
		return
	}
	if err := h.watch.Attach(w, r, reg); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Str("region", reg.Key()).Msg("Watch attach failed")
	}
}

// ReconcileRegion forces a reconcile pass and returns its result.
func (h *Handler) ReconcileRegion(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.lookupRegion(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.reconcileTimeout)
	defer cancel()

	res, err := h.manager.Reconcile(ctx, reg)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			respondError(w, r, http.StatusGatewayTimeout, CodeReconcileTimeout, "reconcile did not finish in time", err)
			return
		}
		h.respondRegionError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, res, nil)
}

// ListRejected returns the newest rejected live events.
func (h *Handler) ListRejected(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		respondError(w, r, http.StatusNotFound, CodeJournalDisabled, "rejection journal is disabled", nil)
		return
	}
	limit := defaultRejectedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRejectedLimit {
			respondError(w, r, http.StatusBadRequest, CodeValidation,
				"limit must be an integer between 1 and "+strconv.Itoa(maxRejectedLimit), nil)
			return
		}
		limit = n
	}
	rejections, err := h.journal.List(r.Context(), limit)
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "rejection journal unavailable", err)
		return
	}
	if rejections == nil {
		rejections = []models.Rejection{}
	}
	respondOK(w, r, http.StatusOK, rejections, intPtr(len(rejections)))
}

// PurgeRejected empties the rejection journal.
func (h *Handler) PurgeRejected(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		respondError(w, r, http.StatusNotFound, CodeJournalDisabled, "rejection journal is disabled", nil)
		return
	}
	n, err := h.journal.Purge(r.Context())
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "rejection journal unavailable", err)
		return
	}
	respondOK(w, r, http.StatusOK, map[string]int{"purged": n}, nil)
}

func (h *Handler) lookupRegion(w http.ResponseWriter, r *http.Request) (*region.Region, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "malformed scope key", err)
		return nil, false
	}
	scope, err := models.ParseScopeKey(raw)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return nil, false
	}
	reg, ok := h.manager.Lookup(scope.Key())
	if !ok {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "region is not active", nil)
		return nil, false
	}
	return reg, true
}

func (h *Handler) respondRegionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case models.IsPermission(err):
		respondError(w, r, http.StatusForbidden, CodeForbidden, err.Error(), nil)
	case errors.Is(err, models.ErrRegionClosed):
		respondError(w, r, http.StatusConflict, CodeUnavailable, "region was torn down", nil)
	case models.IsTransport(err), errors.Is(err, models.ErrHashMismatch):
		respondError(w, r, http.StatusBadGateway, CodeUpstream, err.Error(), err)
	default:
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "internal error", err)
	}
}
