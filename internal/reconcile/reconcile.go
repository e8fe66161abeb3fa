// Package reconcile compares subledger balances against their GL control
// accounts, both at post time (SL-G3/SL-G5) and at period-close time
// (SL-G6), under the row locks SL-G8 requires.
package reconcile

import (
	"context"
	"database/sql"

	"github.com/acctkernel/ledger/domain/money"
	"github.com/acctkernel/ledger/domain/subledger"
	"github.com/acctkernel/ledger/ledgererrors"
	"github.com/acctkernel/ledger/pkg/metrics"
)

// BalanceReader reads the current subledger total and GL control account
// total for one subledger type/currency pair, under a row lock scoped to
// the control account (SL-G8).
type BalanceReader interface {
	SubledgerTotal(ctx context.Context, tx *sql.Tx, subledgerType string, currency money.Currency) (money.Money, error)
	ControlTotal(ctx context.Context, tx *sql.Tx, controlAccountID string, currency money.Currency) (money.Money, error)
}

// Reconciler runs reconciliation checks against a BalanceReader.
type Reconciler struct {
	reader BalanceReader
}

// New constructs a Reconciler.
func New(reader BalanceReader) *Reconciler {
	return &Reconciler{reader: reader}
}

// CheckAtPost verifies one subledger/currency pair immediately after a
// posting that touched it (SL-G3, SL-G5). Contracts with EnforceOnPost
// false are skipped.
func (r *Reconciler) CheckAtPost(ctx context.Context, tx *sql.Tx, contract subledger.ControlContract, currency money.Currency) error {
	if !contract.EnforceOnPost {
		return nil
	}
	return r.check(ctx, tx, contract, currency)
}

// CheckAtClose verifies one subledger/currency pair as part of a period
// close (SL-G6). Contracts with EnforceOnClose false are skipped, though
// in practice every subledger contract should enforce at close.
func (r *Reconciler) CheckAtClose(ctx context.Context, tx *sql.Tx, contract subledger.ControlContract, currency money.Currency) error {
	if !contract.EnforceOnClose {
		return nil
	}
	return r.check(ctx, tx, contract, currency)
}

func (r *Reconciler) check(ctx context.Context, tx *sql.Tx, contract subledger.ControlContract, currency money.Currency) error {
	subTotal, err := r.reader.SubledgerTotal(ctx, tx, contract.SubledgerType, currency)
	if err != nil {
		return ledgererrors.Internal("reconcile: failed to read subledger total", err)
	}
	ctrlTotal, err := r.reader.ControlTotal(ctx, tx, contract.ControlAccountID, currency)
	if err != nil {
		return ledgererrors.Internal("reconcile: failed to read control account total", err)
	}
	result, err := subledger.Reconcile(contract, subTotal, ctrlTotal)
	if err != nil {
		return err
	}
	if !result.WithinTolerance {
		metrics.RecordReconciliationFailure(contract.ControlAccountID)
		return ledgererrors.SubledgerReconciliationFailed(contract.SubledgerType, string(currency)).
			WithDetails("residual", result.Residual.String())
	}
	return nil
}

// CloseOrder is the declared order subledgers must reconcile in before a
// period may close (spec.md §4.9): inventory, WIP, AR, AP, assets,
// payroll, then GL itself last, since GL's own balance only becomes
// authoritative once every feeder subledger has been proven to agree.
var CloseOrder = []string{
	"inventory", "wip", "accounts_receivable", "accounts_payable", "fixed_assets", "payroll", "general_ledger",
}
