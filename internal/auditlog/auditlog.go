// Package auditlog appends entries to the hash-chained audit trail
// (spec.md §4.2) and verifies the chain end to end (R11).
package auditlog

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/acctkernel/ledger/domain/audit"
	"github.com/acctkernel/ledger/internal/sequence"
	"github.com/acctkernel/ledger/ledgererrors"
	"github.com/acctkernel/ledger/pkg/metrics"
)

// Store persists audit.Event rows and reads them back for verification.
type Store interface {
	// LastHash returns the highest-seq record and true, or a zero Event and
	// false if the chain is empty. Must run inside tx so the append
	// that follows sees a consistent predecessor.
	LastHash(ctx context.Context, tx *sql.Tx) (audit.Event, bool, error)
	Insert(ctx context.Context, tx *sql.Tx, rec audit.Event) error
	All(ctx context.Context) ([]audit.Event, error)
}

// Log is the audit side-channel every state-changing operation writes to.
type Log struct {
	store Store
	seq   sequence.Store
}

// New constructs a Log.
func New(store Store, seq sequence.Store) *Log {
	return &Log{store: store, seq: seq}
}

// Append writes the next record in the chain inside tx. entityRef
// identifies what changed (e.g. "journal_entry:<id>"), action is a short
// verb ("posted", "reversed", "event_ingested", "period_closed", ...),
// and payload is hashed canonically to become PayloadHash.
func (l *Log) Append(ctx context.Context, tx *sql.Tx, entityRef, action string, payload interface{}, recordedAt time.Time) (audit.Event, error) {
	prev, found, err := l.store.LastHash(ctx, tx)
	if err != nil {
		return audit.Event{}, ledgererrors.Internal("auditlog: failed to read chain tail", err)
	}
	var prevHash [32]byte
	if found {
		prevHash = prev.EventHash
	}

	seqNum, err := l.seq.Next(ctx, tx, "audit")
	if err != nil {
		return audit.Event{}, err
	}

	rec, err := audit.New(seqNum, entityRef, action, payload, prevHash, recordedAt)
	if err != nil {
		return audit.Event{}, ledgererrors.Internal("auditlog: failed to hash payload", err)
	}

	if err := l.store.Insert(ctx, tx, rec); err != nil {
		return audit.Event{}, ledgererrors.Internal("auditlog: failed to insert record", err)
	}
	return rec, nil
}

// VerifyAll reads the full chain and validates it (R11), used by the
// trace selector's /audit/verify endpoint and by replica comparison.
func (l *Log) VerifyAll(ctx context.Context) error {
	records, err := l.store.All(ctx)
	if err != nil {
		return ledgererrors.Internal("auditlog: failed to read chain", err)
	}
	if err := audit.VerifyChain(records); err != nil {
		entityRef := "chain"
		var chainErr *audit.ChainError
		if errors.As(err, &chainErr) {
			entityRef = "seq:" + strconv.FormatInt(chainErr.Seq, 10)
		}
		metrics.RecordAuditChainFailure(entityRef)
		return err
	}
	return nil
}
