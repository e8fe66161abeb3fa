package journalwriter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acctkernel/ledger/domain/event"
	"github.com/acctkernel/ledger/domain/journal"
	"github.com/acctkernel/ledger/domain/money"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/internal/guardeval"
	"github.com/acctkernel/ledger/internal/reconcile"
	"github.com/acctkernel/ledger/internal/sequence"
	"github.com/acctkernel/ledger/ledgererrors"
)

func expenseReportPolicy() policy.Policy {
	return policy.Policy{
		Name:    "ExpenseReportApproved",
		Version: 1,
		EventType: "expense.report_approved",
		LineMappings: []policy.LineMapping{
			{Role: "EXPENSE", Side: policy.SideDebit, FromContext: "payload.amount"},
			{Role: "ACCOUNTS_PAYABLE", Side: policy.SideCredit, FromContext: "payload.amount"},
		},
		RequiredEngines: nil,
	}
}

func expensePack() policy.Pack {
	return policy.Pack{
		Fingerprint: "fp1",
		RoleBindings: map[string]policy.RoleBinding{
			"EXPENSE":           {Role: "EXPENSE", AccountID: "6000", LedgerID: "GL", Currency: "USD"},
			"ACCOUNTS_PAYABLE":  {Role: "ACCOUNTS_PAYABLE", AccountID: "2000", LedgerID: "GL", Currency: "USD"},
		},
	}
}

func testEvent(t *testing.T) event.Event {
	t.Helper()
	evt, err := event.New("evt-1", "expense.report_approved", "1.0",
		map[string]interface{}{"amount": "100.00"},
		"actor-1", "erp", time.Now().UTC(), time.Now().UTC(), "idem-1")
	require.NoError(t, err)
	return evt
}

func newWriter(reconciler ReconcileChecker) (*Writer, *MemoryStore) {
	store := NewMemoryStore()
	seqStore := sequence.NewMemoryStore()
	return New(store, seqStore, reconciler), store
}

func TestPostSimpleExpenseBalances(t *testing.T) {
	w, store := newWriter(nil)
	evt := testEvent(t)
	pack := expensePack()
	evalCtx := guardeval.Context{Payload: map[string]interface{}{"amount": "100.00"}}

	entry, err := w.Post(context.Background(), nil, PostInput{
		Event: evt, Policy: expenseReportPolicy(), Pack: pack, EvalCtx: evalCtx,
	})
	require.NoError(t, err)
	assert.Len(t, entry.Lines, 2)
	balanced, residuals := entry.IsBalanced()
	assert.True(t, balanced, "residuals: %+v", residuals)
	assert.Len(t, store.Entries, 1)
}

func TestPostIsIdempotentAlreadyPosted(t *testing.T) {
	w, store := newWriter(nil)
	evt := testEvent(t)
	pack := expensePack()
	evalCtx := guardeval.Context{Payload: map[string]interface{}{"amount": "100.00"}}

	_, err := w.Post(context.Background(), nil, PostInput{Event: evt, Policy: expenseReportPolicy(), Pack: pack, EvalCtx: evalCtx})
	require.NoError(t, err)

	store.entriesByEvent[evt.EventID] = "whatever-entry-id"
	_, err = w.Post(context.Background(), nil, PostInput{Event: evt, Policy: expenseReportPolicy(), Pack: pack, EvalCtx: evalCtx})
	require.Error(t, err)
	assert.True(t, ledgererrors.HasCode(err, ledgererrors.CodeAlreadyPosted))
}

func TestPostMissingRoleBindingFails(t *testing.T) {
	w, _ := newWriter(nil)
	evt := testEvent(t)
	pack := policy.Pack{Fingerprint: "fp1", RoleBindings: map[string]policy.RoleBinding{}}
	evalCtx := guardeval.Context{Payload: map[string]interface{}{"amount": "100.00"}}

	_, err := w.Post(context.Background(), nil, PostInput{Event: evt, Policy: expenseReportPolicy(), Pack: pack, EvalCtx: evalCtx})
	require.Error(t, err)
	assert.True(t, ledgererrors.HasCode(err, ledgererrors.CodeMissingRoleBinding))
}

func TestPostStaleSnapshotRejected(t *testing.T) {
	w, _ := newWriter(nil)
	evt := testEvent(t)
	pack := expensePack()
	evalCtx := guardeval.Context{Payload: map[string]interface{}{"amount": "100.00"}}

	_, err := w.Post(context.Background(), nil, PostInput{
		Event: evt, Policy: expenseReportPolicy(), Pack: pack, EvalCtx: evalCtx,
		SnapshotHash: mustBadHash(),
	})
	require.Error(t, err)
	assert.True(t, ledgererrors.HasCode(err, ledgererrors.CodeStaleSnapshot))
}

func TestPostEnforcesReconciliationAtPost(t *testing.T) {
	reader := reconcile.NewMemoryStore()
	reconciler := reconcile.New(reader)
	// Seed a mismatched balance so CheckAtPost fails.
	reader.SeedSubledgerTotal("accounts_payable", "USD", mustMoney(t, "500.00"))
	reader.SeedControlTotal("2000", "USD", mustMoney(t, "0.00"))

	w, _ := newWriter(reconciler)
	evt := testEvent(t)
	pack := expensePack()
	pack.SubledgerContracts = map[string]policy.SubledgerContract{
		"accounts_payable": {SubledgerType: "accounts_payable", ControlAccountRole: "ACCOUNTS_PAYABLE", EnforceOnPost: true},
	}
	// postSubledgers keys subledger contracts by ControlAccountRole, matching
	// the ACCOUNTS_PAYABLE line's role.
	evalCtx := guardeval.Context{Payload: map[string]interface{}{"amount": "100.00"}}

	_, err := w.Post(context.Background(), nil, PostInput{Event: evt, Policy: expenseReportPolicy(), Pack: pack, EvalCtx: evalCtx})
	require.Error(t, err)
	assert.True(t, ledgererrors.HasCode(err, ledgererrors.CodeSubledgerReconciliationFailed))
}

func roundingPolicy() policy.Policy {
	return policy.Policy{
		Name:      "ExpenseReportApproved",
		Version:   1,
		EventType: "expense.report_approved",
		LineMappings: []policy.LineMapping{
			{Role: "EXPENSE", Side: policy.SideDebit, FromContext: "payload.debit_amount"},
			{Role: "ACCOUNTS_PAYABLE", Side: policy.SideCredit, FromContext: "payload.credit_amount"},
		},
	}
}

func roundingPack() policy.Pack {
	pack := expensePack()
	pack.RoleBindings["ROUNDING"] = policy.RoleBinding{Role: "ROUNDING", AccountID: "9999", LedgerID: "GL", Currency: "USD"}
	return pack
}

func TestPostSynthesizesRoundingLineForInToleranceResidual(t *testing.T) {
	w, store := newWriter(nil)
	evt := testEvent(t)
	pack := roundingPack()
	evalCtx := guardeval.Context{Payload: map[string]interface{}{"debit_amount": "100.00", "credit_amount": "99.99"}}

	entry, err := w.Post(context.Background(), nil, PostInput{
		Event: evt, Policy: roundingPolicy(), Pack: pack, EvalCtx: evalCtx,
	})
	require.NoError(t, err)
	require.Len(t, entry.Lines, 3)

	var roundingLines []journal.Line
	for _, l := range entry.Lines {
		if l.IsRounding {
			roundingLines = append(roundingLines, l)
		}
	}
	require.Len(t, roundingLines, 1, "expected exactly one rounding line (R5, R22)")
	assert.Equal(t, journal.SideCredit, roundingLines[0].Side)
	assert.Equal(t, "0.01", roundingLines[0].Amount.Amount.StringFixed(2))
	assert.Equal(t, "9999", roundingLines[0].AccountID)

	balanced, residuals := entry.IsBalanced()
	assert.True(t, balanced, "residuals: %+v", residuals)
	assert.Len(t, store.Entries, 1)
}

func TestPostMissingRoundingBindingFailsWhenResidualNeedsOne(t *testing.T) {
	w, _ := newWriter(nil)
	evt := testEvent(t)
	pack := expensePack() // no ROUNDING role bound
	evalCtx := guardeval.Context{Payload: map[string]interface{}{"debit_amount": "100.00", "credit_amount": "99.99"}}

	_, err := w.Post(context.Background(), nil, PostInput{
		Event: evt, Policy: roundingPolicy(), Pack: pack, EvalCtx: evalCtx,
	})
	require.Error(t, err)
	assert.True(t, ledgererrors.HasCode(err, ledgererrors.CodeMissingRoleBinding))
}

func mustMoney(t *testing.T, amount string) money.Money {
	t.Helper()
	m, err := money.Parse(amount, "USD")
	require.NoError(t, err)
	return m
}

func mustBadHash() (h [32]byte) {
	h[0] = 0xFF
	return h
}
