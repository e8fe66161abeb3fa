// Package journalwriter implements the seven-step posting procedure
// (spec.md §4.7 "Journal writer"): role resolution, balance check,
// sequence allocation, reference-snapshot validation, idempotency
// row-lock, subledger posting, and atomic persist. All seven steps run
// inside the one transaction the coordinator opened for this posting
// attempt (R7).
package journalwriter

import (
	"context"
	"database/sql"
	"time"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/event"
	"github.com/acctkernel/ledger/domain/guard"
	"github.com/acctkernel/ledger/domain/journal"
	"github.com/acctkernel/ledger/domain/money"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/domain/subledger"
	"github.com/acctkernel/ledger/internal/canon"
	"github.com/acctkernel/ledger/internal/guardeval"
	"github.com/acctkernel/ledger/internal/sequence"
	"github.com/acctkernel/ledger/ledgererrors"
	"github.com/acctkernel/ledger/pkg/metrics"
)

// Store persists journal entries and their subledger postings, and
// enforces the two row-level checks this package cannot do in memory: the
// ALREADY_POSTED idempotency lock and the atomic multi-table write.
type Store interface {
	// LockExisting checks, under a row lock scoped to eventID, whether this
	// event already produced a journal entry; used for ALREADY_POSTED
	// (R3, R8) when the coordinator retries an event that in fact posted.
	LockExisting(ctx context.Context, tx *sql.Tx, eventID string) (entryID string, found bool, err error)
	Persist(ctx context.Context, tx *sql.Tx, entry journal.Entry, subledgerEntries []subledger.Entry, traces map[engine.Name]engine.Trace) error
}

// ReconcileChecker enforces a subledger control contract at post time
// (SL-G3, SL-G5) using balances read within the same transaction (SL-G4).
// internal/reconcile.Reconciler satisfies this.
type ReconcileChecker interface {
	CheckAtPost(ctx context.Context, tx *sql.Tx, contract subledger.ControlContract, currency money.Currency) error
}

// roleRounding is the semantic role a rounding line resolves against, bound
// like any other role in the pack's role bindings.
const roleRounding = "ROUNDING"

// Writer drives the posting procedure.
type Writer struct {
	store     Store
	seq       sequence.Store
	reconcile ReconcileChecker
}

// New constructs a Writer. reconcile may be nil, in which case step 6's
// control-account check (SL-G3/SL-G5) is skipped — callers wiring a
// pack without subledger-bearing policies may omit it.
func New(store Store, seq sequence.Store, reconcile ReconcileChecker) *Writer {
	return &Writer{store: store, seq: seq, reconcile: reconcile}
}

// PostInput is everything the writer needs to attempt one posting. Traces
// supplies the already-dispatched engine results keyed by engine name, so
// line mappings whose FromContext references an engine's output resolve
// against Result.Values in addition to the event payload.
type PostInput struct {
	Event        event.Event
	Policy       policy.Policy
	Pack         policy.Pack
	EvalCtx      guardeval.Context
	Traces       map[engine.Name]engine.Trace
	FiscalPeriod string
	SnapshotHash canon.Hash // captured by the coordinator at resolution time (R21)
}

// Post runs the full seven-step procedure and returns the persisted entry.
func (w *Writer) Post(ctx context.Context, tx *sql.Tx, in PostInput) (journal.Entry, error) {
	// Step 5 first: idempotency row-lock under eventID before doing any
	// other work, so a retried event that already posted short-circuits
	// cheaply with ALREADY_POSTED (R3, R8).
	ledgerName := ledgerNameOf(in.Policy)

	existingID, found, err := w.store.LockExisting(ctx, tx, in.Event.EventID)
	if err != nil {
		return journal.Entry{}, ledgererrors.Internal("journalwriter: idempotency lock failed", err)
	}
	if found {
		metrics.RecordJournalPosting(ledgerName, "already_posted")
		return journal.Entry{}, ledgererrors.AlreadyPosted(existingID)
	}

	// Step 1: role resolution (L1).
	lines, err := resolveLines(in.Policy, in.Pack, in.EvalCtx, in.Traces)
	if err != nil {
		return journal.Entry{}, err
	}

	// Step 2: balance check (R4, R5, R22).
	for _, l := range lines {
		if l.Amount.IsNegative() {
			return journal.Entry{}, ledgererrors.NegativeAmount(l.Role)
		}
	}
	draft := journal.Entry{Lines: lines}
	balanced, residuals := draft.IsBalanced()
	if !balanced {
		metrics.RecordJournalUnbalanced(ledgerName)
		for cur, residual := range residuals {
			return journal.Entry{}, ledgererrors.Unbalanced(string(cur), residual.String())
		}
	}
	lines, err = absorbRoundingResiduals(lines, in.Pack)
	if err != nil {
		return journal.Entry{}, err
	}

	// Step 3: sequence allocation (R9).
	seqNum, err := w.seq.Next(ctx, tx, "journal")
	if err != nil {
		return journal.Entry{}, err
	}

	// Step 4: reference-snapshot validation (R21).
	currentSnapshot, err := computeSnapshot(in.Policy, in.Pack)
	if err != nil {
		return journal.Entry{}, err
	}
	if !in.SnapshotHash.IsZero() && currentSnapshot != in.SnapshotHash {
		return journal.Entry{}, ledgererrors.StaleSnapshot("journalwriter")
	}

	entry := journal.Entry{
		EntryID:        in.Event.EventID,
		Seq:            seqNum,
		EventID:        in.Event.EventID,
		PolicyName:     in.Policy.Name,
		PolicyVersion:  in.Policy.Version,
		FiscalPeriod:   in.FiscalPeriod,
		EffectiveDate:  in.Event.EffectiveDate,
		PostedAt:       time.Now().UTC(),
		IdempotencyKey: in.Event.IdempotencyKey,
		Lines:          lines,
		SnapshotHash:   currentSnapshot,
	}

	// Step 6: subledger posting (SL-G1..SL-G5).
	subEntries, err := postSubledgers(entry, in.Pack)
	if err != nil {
		return journal.Entry{}, err
	}

	// Step 7: persist atomically (P11) — entry, lines, and every subledger
	// posting commit as one multi-table write.
	if err := w.store.Persist(ctx, tx, entry, subEntries, in.Traces); err != nil {
		return journal.Entry{}, ledgererrors.Internal("journalwriter: persist failed", err)
	}

	// Post-persist reconciliation (SL-G3, SL-G5): read subledger vs. GL
	// control-account balances within this same transaction (SL-G4) and
	// abort — the caller rolls the whole transaction back on error, so
	// nothing from this attempt survives.
	if w.reconcile != nil {
		if err := w.checkReconciliation(ctx, tx, subEntries, in.Pack); err != nil {
			return journal.Entry{}, err
		}
	}

	metrics.RecordJournalPosting(ledgerName, "posted")
	return entry, nil
}

// absorbRoundingResiduals places at most one rounding line per currency to
// zero out a residual already confirmed within tolerance (R5) — the writer
// is the only component permitted to set IsRounding (R22). Lines is assumed
// already balanced-within-tolerance; a currency whose residual is exactly
// zero gets no rounding line at all.
func absorbRoundingResiduals(lines []journal.Line, pack policy.Pack) ([]journal.Line, error) {
	totals := (journal.Entry{Lines: lines}).BalancesByCurrency()
	nextLineNo := len(lines)
	for _, total := range totals {
		if total.IsZero() {
			continue
		}
		binding, ok := pack.ResolveRole(roleRounding)
		if !ok {
			return nil, ledgererrors.MissingRoleBinding(roleRounding)
		}
		side := journal.SideCredit
		amount := total
		if total.IsNegative() {
			side = journal.SideDebit
			amount = total.Negate()
		}
		nextLineNo++
		lines = append(lines, journal.Line{
			LineNo:     nextLineNo,
			AccountID:  binding.AccountID,
			LedgerID:   binding.LedgerID,
			Side:       side,
			Amount:     amount,
			Role:       roleRounding,
			IsRounding: true,
		})
	}
	return lines, nil
}

// ledgerNameOf picks the label this writer's metrics use for a posting
// attempt: the first declared ledger effect's ledger, or "multi" when a
// policy posts across more than one.
func ledgerNameOf(p policy.Policy) string {
	switch len(p.LedgerEffects) {
	case 0:
		return "unknown"
	case 1:
		return p.LedgerEffects[0].LedgerID
	default:
		return "multi"
	}
}

// checkReconciliation runs CheckAtPost once per distinct (subledger_type,
// currency) pair touched by this posting, for every contract with
// EnforceOnPost set (spec.md §4.9).
func (w *Writer) checkReconciliation(ctx context.Context, tx *sql.Tx, subEntries []subledger.Entry, pack policy.Pack) error {
	type pair struct {
		subledgerType string
		currency      money.Currency
	}
	seen := make(map[pair]bool)
	for _, se := range subEntries {
		p := pair{subledgerType: se.SubledgerType, currency: se.Amount.Currency}
		if seen[p] {
			continue
		}
		seen[p] = true

		contract, ok := pack.SubledgerContracts[se.SubledgerType]
		if !ok {
			continue
		}
		binding, ok := pack.ResolveRole(contract.ControlAccountRole)
		if !ok {
			return ledgererrors.MissingRoleBinding(contract.ControlAccountRole)
		}
		domainContract := subledger.ControlContract{
			SubledgerType:    contract.SubledgerType,
			ControlAccountID: binding.AccountID,
			TolerancePlaces:  contract.TolerancePlaces,
			EnforceOnPost:    contract.EnforceOnPost,
			EnforceOnClose:   contract.EnforceOnClose,
		}
		if err := w.reconcile.CheckAtPost(ctx, tx, domainContract, p.currency); err != nil {
			return err
		}
	}
	return nil
}

// resolveLines walks the policy's line mappings, resolving each role to
// an account/ledger via the pack's role bindings (L1) and each amount via
// the event payload or an engine trace's output.
func resolveLines(p policy.Policy, pack policy.Pack, evalCtx guardeval.Context, traces map[engine.Name]engine.Trace) ([]journal.Line, error) {
	var lines []journal.Line
	lineNo := 0
	for _, m := range p.LineMappings {
		binding, ok := pack.ResolveRole(m.Role)
		if !ok {
			return nil, ledgererrors.MissingRoleBinding(m.Role)
		}
		amount, err := resolveAmount(m, binding, evalCtx, traces)
		if err != nil {
			return nil, err
		}
		lineNo++
		lines = append(lines, journal.Line{
			LineNo:    lineNo,
			AccountID: binding.AccountID,
			LedgerID:  binding.LedgerID,
			Side:      journal.Side(m.Side),
			Amount:    amount,
			Role:      m.Role,
		})
	}
	return lines, nil
}

// resolveAmount reads a line's amount from the payload via JSONPath
// (FromContext) unless an engine trace supplies the same key under
// Result.Values, in which case the engine's computed value wins — engines
// exist precisely to compute amounts the raw payload does not carry
// (variance, allocation splits, valuation). Amounts are always decimal
// strings on the wire (R16: no float64 anywhere in the money model);
// currency comes from the resolved role binding, never from the payload.
func resolveAmount(m policy.LineMapping, binding policy.RoleBinding, evalCtx guardeval.Context, traces map[engine.Name]engine.Trace) (money.Money, error) {
	for _, trace := range traces {
		if v, ok := trace.Result.Values[m.FromContext]; ok {
			return coerceMoney(v, binding.Currency)
		}
	}
	v, err := guardeval.Eval(evalCtx, guard.Field(m.FromContext))
	if err != nil {
		return money.Money{}, ledgererrors.InvalidQuantity(m.FromContext)
	}
	return coerceMoney(v, binding.Currency)
}

// coerceMoney accepts either an already-built money.Money or a decimal
// string (as payload fields and engine results carry) and produces a
// Money denominated in the role's bound currency.
func coerceMoney(v interface{}, currency money.Currency) (money.Money, error) {
	switch t := v.(type) {
	case money.Money:
		return t, nil
	case string:
		return money.Parse(t, currency)
	default:
		return money.Money{}, ledgererrors.InvalidQuantity("line amount must be a decimal string or money.Money")
	}
}

// computeSnapshot fingerprints the policy version and role bindings a
// posting was resolved against, so a concurrent policy reload between
// resolution and persist is detectable as STALE_SNAPSHOT (R21).
func computeSnapshot(p policy.Policy, pack policy.Pack) (canon.Hash, error) {
	return canon.Sum(map[string]interface{}{
		"policy_name":    p.Name,
		"policy_version": p.Version,
		"pack_fingerprint": pack.Fingerprint,
	})
}

// postSubledgers builds one subledger.Entry per journal line whose role
// maps to a subledger contract in the pack (SL-G1: every subledger-bearing
// line gets a mirrored subledger entry).
func postSubledgers(entry journal.Entry, pack policy.Pack) ([]subledger.Entry, error) {
	var out []subledger.Entry
	for _, line := range entry.Lines {
		contract, ok := contractForRole(pack, line.Role)
		if !ok {
			continue
		}
		out = append(out, subledger.Entry{
			SubledgerEntryID: entry.EntryID + ":" + itoa(line.LineNo),
			SubledgerType:    contract.SubledgerType,
			JournalEntryID:   entry.EntryID,
			LineNo:           line.LineNo,
			Amount:           line.Amount,
			Side:             string(line.Side),
			RecordedAt:       entry.PostedAt,
		})
	}
	return out, nil
}

func contractForRole(pack policy.Pack, role string) (policy.SubledgerContract, bool) {
	for _, c := range pack.SubledgerContracts {
		if c.ControlAccountRole == role {
			return c, true
		}
	}
	return policy.SubledgerContract{}, false
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
