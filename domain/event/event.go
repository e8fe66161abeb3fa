// Package event defines the immutable event type that is the sole input to
// the posting pipeline (spec.md §3 "Event", R1).
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/acctkernel/ledger/internal/canon"
	"github.com/acctkernel/ledger/ledgererrors"
)

// Type is a dotted domain.action identifier, e.g. "ap.invoice_received".
type Type string

// Payload is the structured event body. Values are whatever the JSON
// ingress decoded: strings, float64/json.Number, bool, nil, nested maps
// and slices. The meaning builder and guard evaluator read fields out of
// it by JSONPath (internal/guardeval), never by concrete struct binding,
// since the shape is governed by the compiled policy pack, not Go types.
type Payload map[string]interface{}

// Event is immutable once created by the Ingestor; nothing in this kernel
// mutates or deletes an Event after Ingest (R1).
type Event struct {
	EventID        string    `json:"event_id"`
	EventType      Type      `json:"event_type"`
	SchemaVersion  string    `json:"schema_version"`
	Payload        Payload   `json:"payload"`
	PayloadHash    canon.Hash `json:"payload_hash"`
	ActorID        string    `json:"actor_id"`
	Producer       string    `json:"producer"`
	OccurredAt     time.Time `json:"occurred_at"`
	EffectiveDate  time.Time `json:"effective_date"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// New builds an Event, generating an event_id if the caller did not supply
// one (producers may pre-assign event_id to make an external operation
// idempotent end to end, per spec.md §6).
func New(eventID string, eventType Type, schemaVersion string, payload Payload, actorID, producer string, occurredAt, effectiveDate time.Time, idempotencyKey string) (Event, error) {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	if eventType == "" {
		return Event{}, ledgererrors.InvalidInput("event_type", "must not be empty")
	}
	if actorID == "" {
		return Event{}, ledgererrors.InvalidInput("actor_id", "must not be empty")
	}
	if idempotencyKey == "" {
		return Event{}, ledgererrors.InvalidInput("idempotency_key", "must not be empty")
	}
	hash, err := HashPayload(payload)
	if err != nil {
		return Event{}, ledgererrors.Internal("failed to hash event payload", err)
	}
	return Event{
		EventID:        eventID,
		EventType:      eventType,
		SchemaVersion:  schemaVersion,
		Payload:        payload,
		PayloadHash:    hash,
		ActorID:        actorID,
		Producer:       producer,
		OccurredAt:     occurredAt.UTC(),
		EffectiveDate:  effectiveDate.UTC(),
		IdempotencyKey: idempotencyKey,
	}, nil
}

// HashPayload computes the canonical SHA-256 digest of a payload (R2). Two
// payloads that are structurally equal (same keys/values, any map
// iteration order) always hash identically.
func HashPayload(p Payload) (canon.Hash, error) {
	return canon.Sum(map[string]interface{}(p))
}

// Field reads one top-level key out of the payload. path is used as a
// literal map key: dotted or bracketed paths are not traversed (nested
// fields are resolved by internal/guardeval's JSONPath lookup instead).
func (p Payload) Field(path string) (interface{}, bool) {
	v, ok := p[path]
	return v, ok
}
