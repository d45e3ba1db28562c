// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package region

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/regionsync/internal/decode"
	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/store"
)

// Outcome is the result of dispatching one live event.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeNoop     Outcome = "noop"
	OutcomeRejected Outcome = "rejected"
)

var errIDMismatch = errors.New("payload id does not match event id")

// pending is a notification deferred until the dispatch lock is released.
type pending struct {
	region  *Region
	changed []string
}

type dispatch struct {
	m       *Manager
	ctx     context.Context
	regions []*Region
	notify  []pending
}

// Dispatch applies one live event to every region it concerns. Events are
// applied one at a time in call order; per-event failures are absorbed and
// reported through the outcome, the warning handler and the journal.
// Observers are notified after the event has been applied everywhere.
func (m *Manager) Dispatch(ctx context.Context, ev models.LiveEvent) Outcome {
	m.dispatchMu.Lock()
	d := &dispatch{m: m, ctx: ctx, regions: m.Regions()}
	var out Outcome
	switch e := ev.(type) {
	case models.Insert:
		out = d.insert(e)
	case models.Update:
		out = d.update(e.ID, e.Patch, models.EventUpdate)
	case models.Reparent:
		patch := jsonvalue.Object{"parent": jsonvalue.String(e.NewParent)}
		out = d.update(e.ID, patch, models.EventReparent)
	case models.Remove:
		out = d.remove(e.ID)
	default:
		out = OutcomeRejected
	}
	m.dispatchMu.Unlock()

	for _, p := range d.notify {
		p.region.notify(p.changed)
	}

	metrics.RecordEvent(ev.Type(), string(out))
	m.updateObjectGauges()
	logging.Ctx(ctx).Debug().
		Str("type", string(ev.Type())).
		Str("object_id", ev.ObjectID()).
		Str("outcome", string(out)).
		Msg("Live event dispatched")
	return out
}

func (d *dispatch) apply(r *Region, fn func(tx *store.Tx)) bool {
	changed, err := r.mutateQuiet(fn)
	if err != nil {
		// Torn down concurrently; nothing to deliver.
		return false
	}
	if len(changed) == 0 {
		return false
	}
	d.notify = append(d.notify, pending{region: r, changed: changed})
	return true
}

func (d *dispatch) insert(e models.Insert) Outcome {
	obj, err := decodeInsert(e)
	if err != nil {
		reason := models.RejectDecode
		if errors.Is(err, errIDMismatch) {
			reason = models.RejectIDMismatch
		}
		d.m.emitWarning(d.ctx, Warning{Reason: reason, ObjectID: e.ID, Err: err}, models.EventInsert)
		return OutcomeRejected
	}

	applied := false
	for _, r := range d.regions {
		switch {
		case r.scope.Matches(obj):
			applied = d.apply(r, func(tx *store.Tx) { tx.Put(obj) }) || applied
		case r.store.Has(obj.ID):
			applied = d.apply(r, func(tx *store.Tx) { tx.Remove(obj.ID) }) || applied
		}
	}
	if !applied {
		return OutcomeNoop
	}
	return OutcomeApplied
}

// decodeInsert fills id and parent from the frame when the payload omits
// them, then decodes the payload.
func decodeInsert(e models.Insert) (*models.TrackedObject, error) {
	body, ok := jsonvalue.AsObject(e.Payload)
	if !ok {
		return decode.DecodeOne(e.Payload, decode.Object)
	}
	if raw, present := body["id"]; present {
		if id, ok := jsonvalue.AsString(raw); ok && id != e.ID {
			return nil, fmt.Errorf("%w: %q != %q", errIDMismatch, id, e.ID)
		}
	} else {
		body = body.With("id", jsonvalue.String(e.ID))
	}
	if _, present := body["parent"]; !present && e.Parent != "" {
		body = body.With("parent", jsonvalue.String(e.Parent))
	}
	return decode.DecodeOne(body, decode.Object)
}

func (d *dispatch) update(id string, patch jsonvalue.Value, eventType models.EventType) Outcome {
	var holders, others []*Region
	for _, r := range d.regions {
		if r.store.Has(id) {
			holders = append(holders, r)
		} else {
			others = append(others, r)
		}
	}
	if len(holders) == 0 {
		return OutcomeNoop
	}

	var (
		updated  *models.TrackedObject
		failErr  error
		failedIn []string
	)
	for _, r := range holders {
		d.apply(r, func(tx *store.Tx) {
			u, err := tx.ApplyPatch(id, patch)
			if err != nil {
				failErr = err
				failedIn = append(failedIn, r.key)
				return
			}
			if u == nil {
				return
			}
			if updated == nil {
				updated = u
			}
			if !r.scope.Matches(u) {
				tx.Remove(id)
			}
		})
	}

	if failErr != nil {
		metrics.RecordPatchDecodeFailure()
		d.m.emitWarning(d.ctx, Warning{Reason: models.RejectPatchDecode, ObjectID: id, Regions: failedIn, Err: failErr}, eventType)
	}
	if updated == nil {
		if failErr != nil {
			return OutcomeRejected
		}
		return OutcomeNoop
	}

	for _, r := range others {
		if r.scope.Matches(updated) {
			d.apply(r, func(tx *store.Tx) { tx.Put(updated) })
		}
	}
	return OutcomeApplied
}

func (d *dispatch) remove(id string) Outcome {
	applied := false
	for _, r := range d.regions {
		if r.store.Has(id) {
			applied = d.apply(r, func(tx *store.Tx) { tx.Remove(id) }) || applied
		}
	}
	if !applied {
		return OutcomeNoop
	}
	return OutcomeApplied
}
