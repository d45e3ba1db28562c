// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package testinfra

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/regionsync/internal/decode"
	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/reconcile"
)

// Capture is one recorded HTTP request.
type Capture struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Remote is an in-memory remote object store. Objects are kept in insertion
// order and routed to scopes with models.Scope.Matches.
type Remote struct {
	mu       sync.Mutex
	ids      []string
	objects  map[string]jsonvalue.Value
	decoded  map[string]*models.TrackedObject
	err      error
	captures []Capture

	// PageSize splits revision lists into pages. Zero means one page.
	PageSize int
	// Token, when set, is required as a Bearer token on HTTP requests.
	Token string
}

var _ reconcile.Transport = (*Remote)(nil)

// NewRemote returns an empty remote.
func NewRemote() *Remote {
	return &Remote{
		objects: make(map[string]jsonvalue.Value),
		decoded: make(map[string]*models.TrackedObject),
	}
}

// Put stores doc, replacing any object with the same id. It panics when doc
// is not a decodable object.
func (r *Remote) Put(doc string) *models.TrackedObject {
	v := jsonvalue.MustParse(doc)
	obj, err := decode.Object(v)
	if err != nil {
		panic("testinfra: " + err.Error())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[obj.ID]; !ok {
		r.ids = append(r.ids, obj.ID)
	}
	r.objects[obj.ID] = v
	r.decoded[obj.ID] = obj
	return obj
}

// PutRaw stores a payload that may not decode under id. Fetches return it
// verbatim; digests ignore it.
func (r *Remote) PutRaw(id, doc string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.objects[id] = jsonvalue.MustParse(doc)
	delete(r.decoded, id)
}

// Delete removes id.
func (r *Remote) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[id]; !ok {
		return
	}
	delete(r.objects, id)
	delete(r.decoded, id)
	for i, v := range r.ids {
		if v == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
}

// SetError makes every call fail with err until it is reset with nil.
func (r *Remote) SetError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Hash returns the digest of scope.
func (r *Remote) Hash(scope models.Scope) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.AggregateHash(r.entriesLocked(scope))
}

func (r *Remote) entriesLocked(scope models.Scope) []models.RevisionEntry {
	var out []models.RevisionEntry
	for _, id := range r.ids {
		if obj, ok := r.decoded[id]; ok && scope.Matches(obj) {
			out = append(out, obj.Entry())
		}
	}
	return out
}

// FetchAggregateHash implements reconcile.Transport.
func (r *Remote) FetchAggregateHash(_ context.Context, scope models.Scope) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	return models.AggregateHash(r.entriesLocked(scope)), nil
}

// FetchRevisionList implements reconcile.Transport. Tokens are offsets.
func (r *Remote) FetchRevisionList(_ context.Context, scope models.Scope, token string) (models.RevisionPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return models.RevisionPage{}, r.err
	}
	entries := r.entriesLocked(scope)
	start := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 || n > len(entries) {
			return models.RevisionPage{}, &models.TransportError{Op: "revisions", Scope: scope.Key(), StatusCode: http.StatusBadRequest, Err: io.ErrUnexpectedEOF}
		}
		start = n
	}
	end := len(entries)
	if r.PageSize > 0 && start+r.PageSize < end {
		end = start + r.PageSize
	}
	page := models.RevisionPage{Entries: entries[start:end]}
	if end < len(entries) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

// FetchObjects implements reconcile.Transport. Unknown ids are skipped.
func (r *Remote) FetchObjects(_ context.Context, _ models.Scope, ids []string) ([]jsonvalue.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]jsonvalue.Value, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.objects[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Captures returns a copy of the recorded HTTP requests.
func (r *Remote) Captures() []Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Capture(nil), r.captures...)
}

// Serve exposes the remote over HTTP until the test ends.
func (r *Remote) Serve(t testing.TB) *httptest.Server {
	t.Helper()

	router := chi.NewRouter()
	router.Use(r.capture, r.authorize)
	router.Get("/regions/{key}/hash", r.handleHash)
	router.Get("/regions/{key}/revisions", r.handleRevisions)
	router.Post("/regions/{key}/objects", r.handleObjects)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func (r *Remote) capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
			_ = req.Body.Close()
		}
		r.mu.Lock()
		r.captures = append(r.captures, Capture{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.Query(),
			Header: req.Header.Clone(),
			Body:   body,
		})
		r.mu.Unlock()
		req.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, req)
	})
}

func (r *Remote) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.Token != "" && req.Header.Get("Authorization") != "Bearer "+r.Token {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Remote) handleHash(w http.ResponseWriter, req *http.Request) {
	scope, ok := scopeParam(w, req)
	if !ok {
		return
	}
	hash, err := r.FetchAggregateHash(req.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"hash": hash})
}

func (r *Remote) handleRevisions(w http.ResponseWriter, req *http.Request) {
	scope, ok := scopeParam(w, req)
	if !ok {
		return
	}
	page, err := r.FetchRevisionList(req.Context(), scope, req.URL.Query().Get("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, page)
}

func (r *Remote) handleObjects(w http.ResponseWriter, req *http.Request) {
	scope, ok := scopeParam(w, req)
	if !ok {
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	values, err := r.FetchObjects(req.Context(), scope, body.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		data, err := jsonvalue.Marshal(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out[i] = data
	}
	writeJSON(w, out)
}

func scopeParam(w http.ResponseWriter, req *http.Request) (models.Scope, bool) {
	key, err := url.PathUnescape(chi.URLParam(req, "key"))
	if err == nil {
		var scope models.Scope
		if scope, err = models.ParseScopeKey(key); err == nil {
			return scope, true
		}
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
	return models.Scope{}, false
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	if models.IsPermission(err) {
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
