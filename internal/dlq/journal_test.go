// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package dlq

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
)

func openTestJournal(t *testing.T, ttl time.Duration) *Journal {
	t.Helper()
	j, err := Open(Config{TTL: ttl})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func rejection(id string, at time.Time) models.Rejection {
	return models.Rejection{
		ID:         id,
		ObjectID:   "obj-" + id,
		EventType:  models.EventUpdate,
		Reason:     models.RejectPatchDecode,
		Error:      "revision: not a number",
		Regions:    []string{"inventory"},
		ReceivedAt: at,
	}
}

func TestRecordAndListNewestFirst(t *testing.T) {
	j := openTestJournal(t, time.Hour)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := testutil.ToFloat64(metrics.JournalEntries.WithLabelValues(string(models.RejectPatchDecode)))

	for i := 0; i < 5; i++ {
		if err := j.Record(ctx, rejection(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	all, err := j.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("List() returned %d entries, want 5", len(all))
	}
	if all[0].ID != "r4" || all[4].ID != "r0" {
		t.Errorf("order = %s..%s, want r4..r0", all[0].ID, all[4].ID)
	}
	if all[0].ObjectID != "obj-r4" || all[0].Reason != models.RejectPatchDecode || len(all[0].Regions) != 1 {
		t.Errorf("entry = %+v", all[0])
	}

	limited, _ := j.List(ctx, 2)
	if len(limited) != 2 || limited[1].ID != "r3" {
		t.Errorf("List(2) = %+v", limited)
	}

	after := testutil.ToFloat64(metrics.JournalEntries.WithLabelValues(string(models.RejectPatchDecode)))
	if after-before != 5 {
		t.Errorf("journal metric grew by %v, want 5", after-before)
	}
}

func TestRecordStampsMissingTime(t *testing.T) {
	j := openTestJournal(t, time.Hour)
	ctx := context.Background()
	if err := j.Record(ctx, models.Rejection{ID: "x", Reason: models.RejectFrame}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, _ := j.List(ctx, 0)
	if len(got) != 1 || got[0].ReceivedAt.IsZero() {
		t.Errorf("List() = %+v", got)
	}
}

func TestEntriesExpire(t *testing.T) {
	j := openTestJournal(t, time.Second)
	ctx := context.Background()
	if err := j.Record(ctx, rejection("old", time.Now())); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	// Badger TTLs have second granularity.
	time.Sleep(2100 * time.Millisecond)
	got, err := j.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expired entries still listed: %+v", got)
	}
}

func TestPurge(t *testing.T) {
	j := openTestJournal(t, time.Hour)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = j.Record(ctx, rejection(fmt.Sprintf("r%d", i), time.Now()))
	}
	n, err := j.Purge(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Purge() = %d, %v", n, err)
	}
	if got, _ := j.List(ctx, 0); len(got) != 0 {
		t.Errorf("entries after purge: %d", len(got))
	}
}

func TestClosedJournal(t *testing.T) {
	j, err := Open(Config{TTL: time.Hour})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_ = j.Close()
	if err := j.Record(context.Background(), rejection("x", time.Now())); !errors.Is(err, ErrClosed) {
		t.Errorf("Record() after close = %v, want ErrClosed", err)
	}
}
