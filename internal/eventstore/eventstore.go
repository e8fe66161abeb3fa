// Package eventstore durably records every event accepted by the ingestor
// so the retry sweep (SPEC_FULL.md "CronConfig.RetrySweepSpec") can replay
// a FAILED outcome's original event without the caller resubmitting it.
package eventstore

import (
	"context"

	"github.com/acctkernel/ledger/domain/event"
)

// Store persists and retrieves the immutable event record. Insert is
// idempotent on event_id: re-ingesting the same event (a legitimate retry
// of the external call, not of the pipeline) must not fail.
type Store interface {
	Insert(ctx context.Context, evt event.Event) error
	Get(ctx context.Context, eventID string) (event.Event, bool, error)
}
