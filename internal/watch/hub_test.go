// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package watch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/reconcile"
	"github.com/tomtom215/regionsync/internal/region"
	"github.com/tomtom215/regionsync/internal/testinfra"
)

var _ suture.Service = (*Hub)(nil)

type fixture struct {
	remote  *testinfra.Remote
	manager *region.Manager
	hub     *Hub
	server  *httptest.Server
	cancel  context.CancelFunc
	done    chan error
}

func newFixture(t *testing.T, docs ...string) *fixture {
	t.Helper()
	remote := testinfra.NewRemote()
	for _, d := range docs {
		remote.Put(d)
	}
	manager := region.NewManager(remote, region.Config{
		Reconcile: reconcile.Config{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 1},
	})
	t.Cleanup(manager.Close)

	hub := NewHub(manager, nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, err := models.ParseScopeKey(r.URL.Query().Get("scope"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reg, err := manager.Region(scope)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		_ = hub.Attach(w, r, reg)
	}))
	t.Cleanup(server.Close)

	f := &fixture{remote: remote, manager: manager, hub: hub, server: server}
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan error, 1)
	go func() { f.done <- f.hub.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.context() == nil {
		if time.Now().After(deadline) {
			t.Fatal("hub did not start")
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fixture) dial(t *testing.T, scope string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?scope=" + scope
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAttachSendsSnapshotThenChanges(t *testing.T) {
	f := newFixture(t, `{"id":"a","revision":1,"parent":""}`, `{"id":"b","revision":1,"parent":""}`)
	f.start(t)

	inv, err := f.manager.Region(models.Inventory())
	if err != nil {
		t.Fatal(err)
	}
	f.manager.Pin(inv)
	if _, err := f.manager.Reconcile(context.Background(), inv); err != nil {
		t.Fatal(err)
	}

	conn := f.dial(t, "inventory")
	snap := readMessage(t, conn)
	if snap.Type != MessageTypeSnapshot || strings.Join(snap.IDs, ",") != "a,b" || snap.Hash != inv.Hash() {
		t.Fatalf("snapshot = %+v", snap)
	}
	waitFor(t, "registration", func() bool { return f.hub.Len() == 1 })

	f.manager.Dispatch(context.Background(), models.Insert{
		ID:      "c",
		Payload: jsonvalue.MustParse(`{"id":"c","revision":1,"parent":""}`),
	})
	msg := readMessage(t, conn)
	if msg.Type != MessageTypeChanged || strings.Join(msg.IDs, ",") != "c" || msg.Region != "inventory" {
		t.Errorf("changed = %+v", msg)
	}
	if msg.Hash != inv.Hash() {
		t.Errorf("changed hash = %s, want %s", msg.Hash, inv.Hash())
	}
}

func TestAttachActivatesAndTearsDownRegion(t *testing.T) {
	f := newFixture(t, `{"id":"box","revision":1,"parent":""}`, `{"id":"item","revision":4,"parent":"box"}`)
	f.start(t)

	conn := f.dial(t, "children_of:box")
	snap := readMessage(t, conn)
	if snap.Type != MessageTypeSnapshot || snap.Region != "children_of:box" {
		t.Fatalf("snapshot = %+v", snap)
	}

	// The initial reconcile fills the region and notifies the watcher.
	var got []string
	for len(got) == 0 {
		msg := readMessage(t, conn)
		if msg.Type == MessageTypeChanged {
			got = msg.IDs
		}
	}
	if strings.Join(got, ",") != "item" {
		t.Errorf("changed ids = %v, want [item]", got)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	waitFor(t, "teardown", func() bool {
		_, ok := f.manager.Lookup("children_of:box")
		return !ok
	})
	waitFor(t, "unregister", func() bool { return f.hub.Len() == 0 })
}

func TestPingPong(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	conn := f.dial(t, "inventory")
	readMessage(t, conn)

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	for {
		msg := readMessage(t, conn)
		if msg.Type == MessageTypePong {
			return
		}
	}
}

func TestShutdownDisconnectsClients(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	conn := f.dial(t, "inventory")
	readMessage(t, conn)
	waitFor(t, "registration", func() bool { return f.hub.Len() == 1 })

	f.cancel()
	if err := <-f.done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	f.done <- nil // consumed by cleanup

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("read error = %v, want going-away close", err)
			}
			break
		}
	}
	if f.hub.Len() != 0 {
		t.Errorf("Len() = %d after shutdown", f.hub.Len())
	}
}

func TestAttachWhenNotRunning(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?scope=inventory"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	if _, ok := f.manager.Lookup("inventory"); ok {
		t.Error("region activated for a refused watch is still registered")
	}
}

func TestAttachFailedUpgradeReleasesRegion(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	// A plain GET carries no upgrade headers.
	resp, err := http.Get(f.server.URL + "/?scope=children_of:box")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if _, ok := f.manager.Lookup("children_of:box"); ok {
		t.Error("region activated for a failed upgrade is still registered")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"listed", []string{"http://localhost:5173"}, "http://localhost:5173", true},
		{"unlisted", []string{"http://localhost:5173"}, "http://evil.example", false},
		{"no origin header", []string{"http://localhost:5173"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(nil, tt.allowed)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.upgrader.CheckOrigin(req); got != tt.want {
				t.Errorf("CheckOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}
