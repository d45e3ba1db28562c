// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

// Package dlq keeps a short-lived journal of live events that could not be
// applied, so operators can inspect what was rejected and why.
package dlq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/region"
)

const rejectionKeyPrefix = "rejected:"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal closed")

// Config configures the journal.
type Config struct {
	// Dir is the badger directory. Empty keeps the journal in memory.
	Dir string
	// TTL is how long an entry is kept.
	TTL time.Duration
}

// Journal is a badger-backed rejected-event journal. Entries expire after
// the configured TTL.
type Journal struct {
	db  *badger.DB
	ttl time.Duration
}

var _ region.Journal = (*Journal)(nil)

// Open opens the journal.
func Open(cfg Config) (*Journal, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	var opts badger.Options
	if cfg.Dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	logging.Info().Bool("in_memory", cfg.Dir == "").Dur("ttl", cfg.TTL).Msg("Rejected-event journal opened")
	return &Journal{db: db, ttl: cfg.TTL}, nil
}

// key orders entries by receive time; the id breaks ties.
func key(rej models.Rejection) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", rejectionKeyPrefix, rej.ReceivedAt.UnixNano(), rej.ID))
}

// Record implements region.Journal.
func (j *Journal) Record(_ context.Context, rej models.Rejection) error {
	if rej.ReceivedAt.IsZero() {
		rej.ReceivedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rej)
	if err != nil {
		return fmt.Errorf("marshal rejection: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key(rej), data).WithTTL(j.ttl))
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	metrics.JournalEntries.WithLabelValues(string(rej.Reason)).Inc()
	return nil
}

// List returns up to limit unexpired entries, newest first. A limit of 0
// returns every entry.
func (j *Journal) List(_ context.Context, limit int) ([]models.Rejection, error) {
	out := []models.Rejection{}
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(rejectionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(rejectionKeyPrefix), 0xff)
		for it.Seek(seek); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var rej models.Rejection
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rej)
			}); err != nil {
				return err
			}
			out = append(out, rej)
		}
		return nil
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("list rejections: %w", err)
	}
	return out, nil
}

// Purge deletes every entry and returns how many were removed.
func (j *Journal) Purge(_ context.Context) (int, error) {
	var keys [][]byte
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(rejectionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan rejections: %w", err)
	}

	wb := j.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete rejection: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush purge: %w", err)
	}
	return len(keys), nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
