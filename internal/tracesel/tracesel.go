// Package tracesel serves the read-side query surface the kernel exposes
// over its append-only state (spec.md §4 "Trace selector"; SPEC_FULL.md §3
// "Supplemented Features": trial balance, canonical ledger hash).
package tracesel

import (
	"context"
	"sort"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/journal"
	"github.com/acctkernel/ledger/domain/money"
	"github.com/acctkernel/ledger/domain/outcome"
	"github.com/acctkernel/ledger/internal/canon"
	"github.com/acctkernel/ledger/ledgererrors"
)

// Reader is the read-only storage surface tracesel needs. It is
// deliberately narrow — tracesel never writes.
type Reader interface {
	OutcomeByEvent(ctx context.Context, eventID string) (outcome.Outcome, bool, error)
	TracesByEntry(ctx context.Context, entryID string) ([]engine.Trace, error)
	EntriesInPeriod(ctx context.Context, periodCode string) ([]journal.Entry, error)
	AllEntriesOrderedBySeq(ctx context.Context) ([]journal.Entry, error)
}

// Selector answers trace/reporting queries.
type Selector struct {
	reader Reader
}

// New constructs a Selector.
func New(reader Reader) *Selector {
	return &Selector{reader: reader}
}

// Reader exposes the underlying storage surface so callers (the HTTP
// router's work-queue endpoint) can type-assert for reader-specific
// extensions such as ListPending without tracesel needing to know about
// them.
func (s *Selector) Reader() Reader {
	return s.reader
}

// DecisionTrace is the read-side view of how one event was interpreted:
// its outcome plus every engine invocation that contributed to it.
type DecisionTrace struct {
	Outcome outcome.Outcome
	Traces  []engine.Trace
}

// GetDecisionTrace returns the full decision trace for eventID.
func (s *Selector) GetDecisionTrace(ctx context.Context, eventID string) (DecisionTrace, error) {
	o, found, err := s.reader.OutcomeByEvent(ctx, eventID)
	if err != nil {
		return DecisionTrace{}, ledgererrors.Internal("tracesel: failed to read outcome", err)
	}
	if !found {
		return DecisionTrace{}, ledgererrors.NotFound("interpretation_outcome", eventID)
	}
	var traces []engine.Trace
	if o.JournalEntry != "" {
		traces, err = s.reader.TracesByEntry(ctx, o.JournalEntry)
		if err != nil {
			return DecisionTrace{}, ledgererrors.Internal("tracesel: failed to read traces", err)
		}
	}
	return DecisionTrace{Outcome: o, Traces: traces}, nil
}

// TrialBalanceLine is one account's net position within a trial balance.
type TrialBalanceLine struct {
	AccountID string
	Currency  money.Currency
	Debit     money.Money
	Credit    money.Money
}

// TrialBalance computes a trial balance over every posted entry in
// periodCode by summing debits and credits per account/currency — the
// report that proves the ledger's fundamental identity holds at a point
// in time (SPEC_FULL.md §3 "Supplemented Features").
func (s *Selector) TrialBalance(ctx context.Context, periodCode string) ([]TrialBalanceLine, error) {
	entries, err := s.reader.EntriesInPeriod(ctx, periodCode)
	if err != nil {
		return nil, ledgererrors.Internal("tracesel: failed to read entries", err)
	}

	type key struct {
		account  string
		currency money.Currency
	}
	totals := make(map[key]*TrialBalanceLine)

	for _, entry := range entries {
		for _, line := range entry.Lines {
			k := key{account: line.AccountID, currency: line.Amount.Currency}
			tb, ok := totals[k]
			if !ok {
				tb = &TrialBalanceLine{
					AccountID: line.AccountID,
					Currency:  line.Amount.Currency,
					Debit:     money.Zero(line.Amount.Currency),
					Credit:    money.Zero(line.Amount.Currency),
				}
				totals[k] = tb
			}
			switch line.Side {
			case journal.SideDebit:
				tb.Debit, err = tb.Debit.Add(line.Amount)
			case journal.SideCredit:
				tb.Credit, err = tb.Credit.Add(line.Amount)
			}
			if err != nil {
				return nil, ledgererrors.Internal("tracesel: failed to accumulate trial balance", err)
			}
		}
	}

	out := make([]TrialBalanceLine, 0, len(totals))
	for _, tb := range totals {
		out = append(out, *tb)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].Currency < out[j].Currency
	})
	return out, nil
}

// CanonicalLedgerHash computes a single fingerprint over every posted
// entry in seq order (R24): a tamper-evident summary of the entire ledger
// state, independent of and complementary to the per-record audit chain
// (R11).
func (s *Selector) CanonicalLedgerHash(ctx context.Context) (canon.Hash, error) {
	entries, err := s.reader.AllEntriesOrderedBySeq(ctx)
	if err != nil {
		return canon.Hash{}, ledgererrors.Internal("tracesel: failed to read entries", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	hashes := make([][]byte, 0, len(entries))
	for _, e := range entries {
		h, err := canon.Sum(entrySummary(e))
		if err != nil {
			return canon.Hash{}, ledgererrors.Internal("tracesel: failed to hash entry", err)
		}
		hashes = append(hashes, h[:])
	}
	return canon.SumBytes(hashes...), nil
}

func entrySummary(e journal.Entry) map[string]interface{} {
	lines := make([]map[string]interface{}, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, map[string]interface{}{
			"line_no":    l.LineNo,
			"account_id": l.AccountID,
			"side":       string(l.Side),
			"amount":     l.Amount.Amount.String(),
			"currency":   string(l.Amount.Currency),
		})
	}
	return map[string]interface{}{
		"entry_id": e.EntryID,
		"seq":      e.Seq,
		"event_id": e.EventID,
		"lines":    lines,
	}
}
