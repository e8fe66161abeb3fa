// Package ingest validates an incoming event before it enters the
// interpretation pipeline (spec.md §4.4 "Ingestor", R1, R2, R3, R8).
package ingest

import (
	"context"
	"database/sql"

	"github.com/acctkernel/ledger/domain/event"
	"github.com/acctkernel/ledger/ledgererrors"
)

// IdempotencyStore records which idempotency keys have already been
// claimed, and by which event_id, so a repeated post of the same external
// operation resolves to the original outcome rather than reprocessing
// (R3, R8).
type IdempotencyStore interface {
	// ClaimOrGet atomically inserts (idempotency_key -> event_id) if the
	// key is new, or returns the event_id it was already claimed by. The
	// caller is expected to run this inside the same transaction as the
	// rest of the posting attempt so the claim is only durable if the
	// attempt commits.
	ClaimOrGet(ctx context.Context, tx *sql.Tx, idempotencyKey, eventID string) (existingEventID string, isNew bool, err error)
}

// Ingestor is the entry point for `post_event_from_external` (spec.md §6).
type Ingestor struct {
	idempotency IdempotencyStore
}

// New constructs an Ingestor.
func New(idempotency IdempotencyStore) *Ingestor {
	return &Ingestor{idempotency: idempotency}
}

// Verify re-derives the event's payload hash and confirms it matches the
// value carried on the Event (R2); a mismatch means the payload was
// altered after hashing, which is a protocol violation (R1).
func (i *Ingestor) Verify(evt event.Event) error {
	recomputed, err := event.HashPayload(evt.Payload)
	if err != nil {
		return ledgererrors.Internal("ingest: failed to hash payload for verification", err)
	}
	if recomputed != evt.PayloadHash {
		return ledgererrors.ProtocolViolation(evt.EventID)
	}
	return nil
}

// ClaimIdempotency atomically claims evt.IdempotencyKey inside tx. If the
// key was already claimed by a different event_id this is an
// IDEMPOTENCY_CONFLICT (R8); if by the same event_id, isNew is false and
// the caller should resolve to the existing outcome rather than
// reprocessing (R3).
func (i *Ingestor) ClaimIdempotency(ctx context.Context, tx *sql.Tx, evt event.Event) (isNew bool, err error) {
	existingEventID, isNew, err := i.idempotency.ClaimOrGet(ctx, tx, evt.IdempotencyKey, evt.EventID)
	if err != nil {
		return false, ledgererrors.Internal("ingest: idempotency claim failed", err)
	}
	if isNew {
		return true, nil
	}
	if existingEventID != evt.EventID {
		return false, ledgererrors.IdempotencyConflict(evt.IdempotencyKey)
	}
	return false, nil
}
