// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/region"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Message types.
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeChanged  = "changed"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

// Message is one frame sent to or received from a watch client.
type Message struct {
	Type   string   `json:"type"`
	Region string   `json:"region,omitempty"`
	Hash   string   `json:"hash,omitempty"`
	IDs    []string `json:"ids,omitempty"`
}

var clientIDCounter atomic.Uint64

// Client is one watch connection bound to a region.
type Client struct {
	id     uint64
	hub    *Hub
	conn   *websocket.Conn
	region *region.Region
	sub    region.SubscriptionID

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards send against concurrent observer calls and finish.
	mu     sync.Mutex
	send   chan Message
	closed bool

	finishOnce sync.Once
}

func newClient(ctx context.Context, hub *Hub, conn *websocket.Conn, r *region.Region) *Client {
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		id:     clientIDCounter.Add(1),
		hub:    hub,
		conn:   conn,
		region: r,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan Message, sendBuffer),
	}
}

// ID returns the client's unique id.
func (c *Client) ID() uint64 {
	return c.id
}

// observe is the region observer. It never blocks: a client that cannot
// keep up is disconnected.
func (c *Client) observe(changed []string) {
	c.enqueue(Message{
		Type:   MessageTypeChanged,
		Region: c.region.Key(),
		Hash:   c.region.Hash(),
		IDs:    changed,
	})
}

func (c *Client) enqueue(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		metrics.WatchSlowClients.WithLabelValues(string(c.region.Scope().Kind)).Inc()
		logging.Warn().Uint64("client", c.id).Str("region", c.region.Key()).Msg("Watch client too slow, disconnecting")
		_ = c.conn.Close()
	}
}

func (c *Client) snapshot() Message {
	objects := c.region.All()
	ids := make([]string, len(objects))
	for i, o := range objects {
		ids[i] = o.ID
	}
	return Message{
		Type:   MessageTypeSnapshot,
		Region: c.region.Key(),
		Hash:   c.region.Hash(),
		IDs:    ids,
	}
}

// finish drops the subscription and closes send. Only the hub calls it.
func (c *Client) finish() {
	c.finishOnce.Do(func() {
		c.cancel()
		c.hub.manager.Unsubscribe(c.region, c.sub)
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Uint64("client", c.id).Msg("Watch client read failed")
			}
			return
		}
		if msg.Type == MessageTypePing {
			c.enqueue(Message{Type: MessageTypePong})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
