// Package subledger defines subledger entries, control contracts, and cost
// lots (spec.md §3 "Subledger entry", "Subledger control contract", "Cost
// lot"). Subledger entries hold weak references to journal entries by id
// (spec.md §9 "Ownership model") — this package never imports domain/journal.
package subledger

import (
	"time"

	"github.com/acctkernel/ledger/domain/money"
	"github.com/acctkernel/ledger/ledgererrors"
)

var (
	errNegativeConsumption = ledgererrors.InvalidQuantity("consumption quantity must be non-negative")
	errOverConsumption     = ledgererrors.InvalidQuantity("consumption would exceed lot's remaining quantity")
)

// Entry is one subledger posting tied to a journal line by reference
// (spec.md §3 "Subledger entry").
type Entry struct {
	SubledgerEntryID string
	SubledgerType    string
	JournalEntryID   string // weak reference
	LineNo           int
	Amount           money.Money
	Side             string // "DEBIT" | "CREDIT", mirrors the journal line's side
	RecordedAt       time.Time
}

// ControlContract is the reconciliation policy for one subledger type
// against its GL control account (spec.md §3 "Subledger control
// contract").
type ControlContract struct {
	SubledgerType      string
	ControlAccountID   string
	TolerancePlaces    int32
	EnforceOnPost      bool
	EnforceOnClose     bool
}

// ReconciliationResult is the comparison of a subledger's running balance
// against its GL control account at a point in time (spec.md §4.9).
type ReconciliationResult struct {
	SubledgerType  string
	Currency       money.Currency
	SubledgerTotal money.Money
	ControlTotal   money.Money
	Residual       money.Money
	WithinTolerance bool
}

// Reconcile compares subledgerTotal against controlTotal within the
// currency's minor-unit tolerance (0.01 for USD); a residual equal to that
// tolerance counts as within it. contract.TolerancePlaces is not consulted
// (SL-G3/SL-G5/SL-G6).
func Reconcile(contract ControlContract, subledgerTotal, controlTotal money.Money) (ReconciliationResult, error) {
	residual, err := subledgerTotal.Sub(controlTotal)
	if err != nil {
		return ReconciliationResult{}, err
	}
	tol := money.Zero(subledgerTotal.Currency).Tolerance()
	return ReconciliationResult{
		SubledgerType:   contract.SubledgerType,
		Currency:        subledgerTotal.Currency,
		SubledgerTotal:  subledgerTotal,
		ControlTotal:    controlTotal,
		Residual:        residual,
		WithinTolerance: residual.Abs().Cmp(tol) <= 0,
	}, nil
}

// CostLot is one inventory/asset cost layer consumed by valuation engines
// (spec.md §3 "Cost lot", invariants C1-C3).
type CostLot struct {
	LotID           string
	SubledgerType   string
	AcquiredAt      time.Time
	Quantity        money.Money // quantity expressed as a decimal amount in a synthetic "unit" currency
	UnitCost        money.Money
	RemainingQty    money.Money
	CreatingEventID string
}

// Consume reduces the lot's remaining quantity by qty. It rejects a
// negative qty and any qty larger than the lot's remaining quantity, so
// RemainingQty never goes negative.
func (l CostLot) Consume(qty money.Money) (CostLot, error) {
	if qty.IsNegative() {
		return CostLot{}, errNegativeConsumption
	}
	remaining, err := l.RemainingQty.Sub(qty)
	if err != nil {
		return CostLot{}, err
	}
	if remaining.IsNegative() {
		return CostLot{}, errOverConsumption
	}
	l.RemainingQty = remaining
	return l, nil
}
