// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/models"
)

type stubTransport struct {
	calls atomic.Int32
	err   error
}

func (s *stubTransport) FetchAggregateHash(context.Context, models.Scope) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return models.EmptyHash, nil
}

func (s *stubTransport) FetchRevisionList(context.Context, models.Scope, string) (models.RevisionPage, error) {
	s.calls.Add(1)
	return models.RevisionPage{Entries: []models.RevisionEntry{{ID: "a", Revision: 1}}}, s.err
}

func (s *stubTransport) FetchObjects(context.Context, models.Scope, []string) ([]jsonvalue.Value, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []jsonvalue.Value{jsonvalue.MustParse(`{"id":"a"}`)}, nil
}

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: 50 * time.Millisecond, MinRequests: 4, FailureRatio: 0.5}
}

func TestBreakerPassesResults(t *testing.T) {
	stub := &stubTransport{}
	b := NewBreakerTransport("test-pass", stub, testBreakerConfig())
	ctx := context.Background()

	hash, err := b.FetchAggregateHash(ctx, models.Inventory())
	if err != nil || hash != models.EmptyHash {
		t.Errorf("FetchAggregateHash() = %q, %v", hash, err)
	}
	page, err := b.FetchRevisionList(ctx, models.Inventory(), "")
	if err != nil || len(page.Entries) != 1 {
		t.Errorf("FetchRevisionList() = %+v, %v", page, err)
	}
	values, err := b.FetchObjects(ctx, models.Inventory(), []string{"a"})
	if err != nil || len(values) != 1 {
		t.Errorf("FetchObjects() = %v, %v", values, err)
	}
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	stub := &stubTransport{err: &models.TransportError{Op: "hash", Scope: "inventory", StatusCode: 503, Err: errors.New("down")}}
	b := NewBreakerTransport("test-open", stub, testBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = b.FetchAggregateHash(ctx, models.Inventory())
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	calls := stub.calls.Load()
	_, err := b.FetchAggregateHash(ctx, models.Inventory())
	var te *models.TransportError
	if !errors.As(err, &te) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open circuit error = %v, want TransportError wrapping ErrOpenState", err)
	}
	if stub.calls.Load() != calls {
		t.Error("open circuit reached the transport")
	}

	stub.err = nil
	time.Sleep(80 * time.Millisecond)
	if _, err := b.FetchAggregateHash(ctx, models.Inventory()); err != nil {
		t.Fatalf("half-open probe error = %v", err)
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreakerIgnoresPermissionErrors(t *testing.T) {
	stub := &stubTransport{err: &models.ScopePermissionError{Scope: "children_of:x", Reason: "forbidden"}}
	b := NewBreakerTransport("test-permission", stub, testBreakerConfig())

	for i := 0; i < 10; i++ {
		_, err := b.FetchAggregateHash(context.Background(), models.ChildrenOf("x"))
		if !models.IsPermission(err) {
			t.Fatalf("call %d error = %v, want permission error", i, err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, permission errors tripped the breaker", b.State())
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		str   string
		val   float64
	}{
		{gobreaker.StateClosed, "closed", 0},
		{gobreaker.StateHalfOpen, "half-open", 1},
		{gobreaker.StateOpen, "open", 2},
	}
	for _, tt := range tests {
		checkStringEqual(t, "state", stateToString(tt.state), tt.str)
		if stateToFloat(tt.state) != tt.val {
			t.Errorf("stateToFloat(%v) = %v", tt.state, stateToFloat(tt.state))
		}
	}
}
