// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package reconcile

import "time"

// Config tunes paging, batching and the retry policy.
type Config struct {
	// BatchSize is the number of ids per FetchObjects call.
	BatchSize int
	// MaxPages bounds the revision list pages read per attempt.
	MaxPages int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxElapsedTime bounds the whole retry loop; 0 disables the bound.
	MaxElapsedTime time.Duration
	// MaxRetries bounds retries after the first attempt.
	MaxRetries uint64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       100,
		MaxPages:        1000,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		MaxElapsedTime:  5 * time.Minute,
		MaxRetries:      8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	return c
}
