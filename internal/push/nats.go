// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package push

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
)

const sourceNATS = "nats"

// NATSConfig configures NATSSource.
type NATSConfig struct {
	URL           string
	Subject       string
	Token         string
	ReconnectWait time.Duration
	// BufferSize bounds frames received but not yet dispatched.
	BufferSize int
}

func (c NATSConfig) withDefaults() NATSConfig {
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	return c
}

// NATSSource reads live event frames from one NATS subject.
type NATSSource struct {
	cfg       NATSConfig
	sink      Sink
	connected atomic.Bool
}

// NewNATSSource creates a source delivering into sink.
func NewNATSSource(cfg NATSConfig, sink Sink) *NATSSource {
	return &NATSSource{cfg: cfg.withDefaults(), sink: sink}
}

// String implements fmt.Stringer for suture logging.
func (s *NATSSource) String() string {
	return "push-nats"
}

// IsConnected reports whether the NATS connection is up.
func (s *NATSSource) IsConnected() bool {
	return s.connected.Load()
}

// Serve implements suture.Service. The client library owns reconnection;
// Serve returns when ctx is done or the connection is closed for good.
func (s *NATSSource) Serve(ctx context.Context) error {
	if s.cfg.Subject == "" {
		return errors.New("nats push source requires a subject")
	}

	closed := make(chan struct{})
	opts := []nats.Option{
		nats.Name("regionsync"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.cfg.ReconnectWait),
		nats.ConnectHandler(func(*nats.Conn) {
			s.handleConnect(ctx)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			metrics.PushReconnects.WithLabelValues(sourceNATS).Inc()
			s.handleConnect(ctx)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if !s.connected.Swap(false) {
				return
			}
			metrics.SetPushConnected(sourceNATS, false)
			if ctx.Err() == nil {
				s.sink.OnDisconnect(err)
			}
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(closed)
		}),
	}
	if s.cfg.Token != "" {
		opts = append(opts, nats.Token(s.cfg.Token))
	}

	nc, err := nats.Connect(s.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	msgs := make(chan *nats.Msg, s.cfg.BufferSize)
	sub, err := nc.ChanSubscribe(s.cfg.Subject, msgs)
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe to %s: %w", s.cfg.Subject, err)
	}
	logging.Info().Str("url", s.cfg.URL).Str("subject", s.cfg.Subject).Msg("[push-nats] Subscribed")

	// RetryOnFailedConnect may return before the first connection; the
	// connect handler covers that case.
	if nc.IsConnected() {
		s.handleConnect(ctx)
	}

	defer func() {
		_ = sub.Unsubscribe()
		nc.Close()
		s.connected.Store(false)
		metrics.SetPushConnected(sourceNATS, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return errors.New("nats connection closed")
		case msg := <-msgs:
			deliver(ctx, s.sink, sourceNATS, msg.Data)
		}
	}
}

// handleConnect reports a connection once per up transition.
func (s *NATSSource) handleConnect(ctx context.Context) {
	if s.connected.Swap(true) {
		return
	}
	metrics.SetPushConnected(sourceNATS, true)
	logging.Info().Msg("[push-nats] Connected")
	s.sink.OnConnect(ctx)
}
