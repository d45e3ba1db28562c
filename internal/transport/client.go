// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/reconcile"
)

// maxErrorBody caps how much of a failed response body ends up in an error.
const maxErrorBody = 512

// Config configures Client.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration

	// RequestsPerSecond of 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
}

// Client is the HTTP remote store client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ reconcile.Transport = (*Client)(nil)

// NewClient creates a Client. A trailing slash on the URL is ignored.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

type hashResponse struct {
	Hash string `json:"hash"`
}

type objectsRequest struct {
	IDs []string `json:"ids"`
}

// FetchAggregateHash returns the remote digest of scope.
func (c *Client) FetchAggregateHash(ctx context.Context, scope models.Scope) (string, error) {
	const op = "hash"
	body, err := c.do(ctx, op, scope, http.MethodGet, c.regionURL(scope, "hash", nil), nil)
	if err != nil {
		return "", err
	}

	var resp hashResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &models.TransportError{Op: op, Scope: scope.Key(), Err: fmt.Errorf("decode hash response: %w", err)}
	}
	if resp.Hash == "" {
		return "", &models.TransportError{Op: op, Scope: scope.Key(), Err: errors.New("empty hash in response")}
	}
	return resp.Hash, nil
}

// FetchRevisionList returns one page of the remote revision list. An empty
// token requests the first page.
func (c *Client) FetchRevisionList(ctx context.Context, scope models.Scope, token string) (models.RevisionPage, error) {
	const op = "revisions"
	var query url.Values
	if token != "" {
		query = url.Values{"token": {token}}
	}
	body, err := c.do(ctx, op, scope, http.MethodGet, c.regionURL(scope, "revisions", query), nil)
	if err != nil {
		return models.RevisionPage{}, err
	}

	var page models.RevisionPage
	if err := json.Unmarshal(body, &page); err != nil {
		return models.RevisionPage{}, &models.TransportError{Op: op, Scope: scope.Key(), Err: fmt.Errorf("decode revision page: %w", err)}
	}
	return page, nil
}

// FetchObjects returns the raw payloads of ids. Elements are not decoded
// here; the reconciler drops the ones it cannot use.
func (c *Client) FetchObjects(ctx context.Context, scope models.Scope, ids []string) ([]jsonvalue.Value, error) {
	const op = "objects"
	payload, err := json.Marshal(objectsRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("encode objects request: %w", err)
	}
	body, err := c.do(ctx, op, scope, http.MethodPost, c.regionURL(scope, "objects", nil), payload)
	if err != nil {
		return nil, err
	}

	v, err := jsonvalue.Parse(body)
	if err != nil {
		return nil, &models.TransportError{Op: op, Scope: scope.Key(), Err: fmt.Errorf("decode objects response: %w", err)}
	}
	arr, ok := jsonvalue.AsArray(v)
	if !ok {
		return nil, &models.TransportError{Op: op, Scope: scope.Key(), Err: fmt.Errorf("objects response is %s, want array", v.Kind())}
	}
	return arr, nil
}

func (c *Client) regionURL(scope models.Scope, resource string, query url.Values) string {
	u := c.baseURL + "/regions/" + url.PathEscape(scope.Key()) + "/" + resource
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op string, scope models.Scope, method, endpoint string, payload []byte) (body []byte, err error) {
	start := time.Now()
	defer func() { metrics.RecordTransportRequest(op, time.Since(start), err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &models.TransportError{Op: op, Scope: scope.Key(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &models.ScopePermissionError{Scope: scope.Key(), Reason: fmt.Sprintf("%s (%s)", http.StatusText(resp.StatusCode), readSnippet(resp.Body))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &models.TransportError{Op: op, Scope: scope.Key(), StatusCode: resp.StatusCode, Err: errors.New(readSnippet(resp.Body))}
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransportError{Op: op, Scope: scope.Key(), StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

func readSnippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return "no body"
	}
	return strings.TrimSpace(string(b))
}
