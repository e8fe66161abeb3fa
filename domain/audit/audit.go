// Package audit defines the tamper-evident, append-only audit chain
// (spec.md §3 "Audit event", §4.2, R11). Every state-changing operation in
// this kernel side-writes one audit.Event in the same transaction.
package audit

import (
	"strconv"
	"time"

	"github.com/acctkernel/ledger/internal/canon"
)

// Event is one link in the hash chain. Seq is allocated by the sequence
// service under the "audit" counter (R9); EventHash binds this record to
// its predecessor so the chain can be verified end to end (R11).
type Event struct {
	Seq         int64
	EntityRef   string
	Action      string
	PayloadHash canon.Hash
	PrevHash    canon.Hash // zero for the first record in the chain
	EventHash   canon.Hash
	RecordedAt  time.Time
}

// ComputeEventHash implements event_hash = H(payload_hash ∥ prev_hash).
func ComputeEventHash(payloadHash, prevHash canon.Hash) canon.Hash {
	return canon.SumBytes(payloadHash[:], prevHash[:])
}

// New constructs the next Event in the chain given the previous record's
// hash (zero value for the very first record).
func New(seq int64, entityRef, action string, payload interface{}, prevHash canon.Hash, recordedAt time.Time) (Event, error) {
	payloadHash, err := canon.Sum(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Seq:         seq,
		EntityRef:   entityRef,
		Action:      action,
		PayloadHash: payloadHash,
		PrevHash:    prevHash,
		EventHash:   ComputeEventHash(payloadHash, prevHash),
		RecordedAt:  recordedAt.UTC(),
	}, nil
}

// VerifyChain walks records in seq order and checks (a) seq is strictly
// monotonic with no gaps, (b) each record's PrevHash equals its
// predecessor's EventHash, (c) each EventHash reproduces from the stored
// PayloadHash/PrevHash (R11). records must already be sorted by Seq
// ascending; callers (the store, or a replay job) are responsible for that
// ordering since this function does no I/O.
func VerifyChain(records []Event) error {
	var prevSeq int64
	var prevHash canon.Hash
	for i, rec := range records {
		if i == 0 {
			if rec.Seq < 1 {
				return &ChainError{Seq: rec.Seq, Reason: "first record must have seq >= 1"}
			}
		} else {
			if rec.Seq != prevSeq+1 {
				return &ChainError{Seq: rec.Seq, Reason: "seq is not strictly monotonic / gap detected"}
			}
			if rec.PrevHash != prevHash {
				return &ChainError{Seq: rec.Seq, Reason: "prev_hash does not match predecessor's event_hash"}
			}
		}
		expected := ComputeEventHash(rec.PayloadHash, rec.PrevHash)
		if expected != rec.EventHash {
			return &ChainError{Seq: rec.Seq, Reason: "event_hash does not reproduce from payload_hash and prev_hash"}
		}
		prevSeq = rec.Seq
		prevHash = rec.EventHash
	}
	return nil
}

// ChainError reports where chain verification failed.
type ChainError struct {
	Seq    int64
	Reason string
}

func (e *ChainError) Error() string {
	return "audit: chain broken at seq " + strconv.FormatInt(e.Seq, 10) + ": " + e.Reason
}
