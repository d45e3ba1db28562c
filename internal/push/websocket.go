// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
)

const sourceWebSocket = "websocket"

// WebSocketConfig configures WebSocketSource.
type WebSocketConfig struct {
	URL   string
	Token string

	// PingInterval is how often a ping control frame is sent. The read
	// deadline is twice this value and is extended by every pong or frame.
	PingInterval time.Duration

	// ReconnectMin and ReconnectMax bound the reconnect delay, which
	// doubles after every failed attempt.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	HandshakeTimeout time.Duration
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 32 * time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = c.ReconnectMin
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	return c
}

// WebSocketSource reads live event frames from a websocket endpoint.
type WebSocketSource struct {
	cfg       WebSocketConfig
	sink      Sink
	connected atomic.Bool
}

// NewWebSocketSource creates a source delivering into sink.
func NewWebSocketSource(cfg WebSocketConfig, sink Sink) *WebSocketSource {
	return &WebSocketSource{cfg: cfg.withDefaults(), sink: sink}
}

// String implements fmt.Stringer for suture logging.
func (s *WebSocketSource) String() string {
	return "push-websocket"
}

// IsConnected reports whether a connection is currently established.
func (s *WebSocketSource) IsConnected() bool {
	return s.connected.Load()
}

// Serve implements suture.Service. It returns only when ctx is done.
func (s *WebSocketSource) Serve(ctx context.Context) error {
	delay := s.cfg.ReconnectMin
	first := true
	for {
		if !first {
			metrics.PushReconnects.WithLabelValues(sourceWebSocket).Inc()
		}
		first = false

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warn().Err(err).Dur("delay", delay).Msg("[push-ws] Connect failed, retrying")
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			delay = min(delay*2, s.cfg.ReconnectMax)
			continue
		}
		delay = s.cfg.ReconnectMin

		s.setConnected(true)
		logging.Info().Str("url", s.cfg.URL).Msg("[push-ws] Connected")
		s.sink.OnConnect(ctx)

		err = s.readLoop(ctx, conn)
		s.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.sink.OnDisconnect(err)
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

func (s *WebSocketSource) setConnected(v bool) {
	s.connected.Store(v)
	metrics.SetPushConnected(sourceWebSocket, v)
}

func (s *WebSocketSource) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  s.cfg.HandshakeTimeout,
		EnableCompression: true,
	}
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// readLoop dispatches frames until the connection fails or ctx is done.
func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn) error {
	readTimeout := 2 * s.cfg.PingInterval
	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	loopCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pingLoop(loopCtx, conn)
	}()
	defer func() {
		cancel()
		closeConn(conn)
		wg.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Msg("[push-ws] Connection closed by server")
			} else {
				logging.Warn().Err(err).Msg("[push-ws] Read error")
			}
			return err
		}
		extend()
		deliver(ctx, s.sink, sourceWebSocket, data)
	}
}

// pingLoop sends keep-alive pings. On ctx cancellation it closes the
// connection so a blocked ReadMessage returns.
func (s *WebSocketSource) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.PingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					logging.Debug().Err(err).Msg("[push-ws] Ping failed")
				}
				_ = conn.Close()
				return
			}
		}
	}
}

func closeConn(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = conn.Close()
}

// sleep waits for d or until ctx is done. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
