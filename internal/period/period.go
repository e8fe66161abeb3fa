// Package period implements fiscal period lookups and the close
// transition (spec.md §4.3). Close runs under a serialized row lock and
// validates every subledger's close-time reconciliation (SL-G6) before
// the period is allowed to move to CLOSED.
package period

import (
	"context"
	"database/sql"
	"time"

	domperiod "github.com/acctkernel/ledger/domain/period"
	"github.com/acctkernel/ledger/ledgererrors"
)

// Store persists fiscal periods and enforces the row lock close requires.
type Store interface {
	// Get reads a period by code without locking, for posting-time checks.
	Get(ctx context.Context, code string) (domperiod.Period, error)
	// LockForClose reads code FOR UPDATE inside tx, serializing concurrent
	// close attempts on the same period (spec.md §4.3).
	LockForClose(ctx context.Context, tx *sql.Tx, code string) (domperiod.Period, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, code string, status domperiod.Status, allowAdjustments bool, closedAt time.Time) error
	// ListOpenBefore returns the codes of every OPEN period whose end date
	// is at or before cutoff, for the period-close sweep to drive.
	ListOpenBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// ReconciliationChecker validates SL-G6 across every declared subledger
// before a period may close. The declared close order (inventory, WIP,
// AR, AP, assets, payroll, GL) is the caller's responsibility since it is
// policy-pack data, not a period-service concern.
type ReconciliationChecker func(ctx context.Context, tx *sql.Tx, periodCode string) error

// Service resolves period lookups and drives the close state machine.
type Service struct {
	store    Store
	reconcile ReconciliationChecker
}

// New constructs a Service.
func New(store Store, reconcile ReconciliationChecker) *Service {
	return &Service{store: store, reconcile: reconcile}
}

// CheckAcceptsPosting returns an error if periodCode cannot accept a
// posting of the given adjustment-ness right now (R12/R13).
func (s *Service) CheckAcceptsPosting(ctx context.Context, periodCode string, isAdjustment bool) error {
	p, err := s.store.Get(ctx, periodCode)
	if err != nil {
		return err
	}
	if !p.AcceptsPosting(isAdjustment) {
		switch {
		case p.Status == domperiod.StatusClosed:
			return ledgererrors.PeriodClosed(periodCode)
		case p.Status == domperiod.StatusClosing:
			return ledgererrors.PeriodClosing(periodCode)
		default:
			return ledgererrors.AdjustmentsNotAllowed(periodCode)
		}
	}
	return nil
}

// DueForClose lists OPEN periods whose grace window has elapsed as of now,
// for the period-close sweep (SPEC_FULL.md "CronConfig.PeriodCloseSweepSpec").
func (s *Service) DueForClose(ctx context.Context, now time.Time, graceHours int) ([]string, error) {
	cutoff := now.Add(-time.Duration(graceHours) * time.Hour)
	return s.store.ListOpenBefore(ctx, cutoff)
}

// BeginClose moves periodCode from OPEN to CLOSING under a row lock,
// permitting adjustment postings for the declared close steps (R13, R25).
func (s *Service) BeginClose(ctx context.Context, tx *sql.Tx, periodCode string) error {
	p, err := s.store.LockForClose(ctx, tx, periodCode)
	if err != nil {
		return err
	}
	if p.Status != domperiod.StatusOpen {
		return ledgererrors.AdjustmentsNotAllowed(periodCode)
	}
	return s.store.UpdateStatus(ctx, tx, periodCode, domperiod.StatusClosing, true, time.Time{})
}

// Close validates every subledger's close-time reconciliation (SL-G6) and,
// if all pass, moves periodCode from CLOSING to CLOSED under the same row
// lock BeginClose acquired (spec.md §4.3 "close under serialized row
// lock").
func (s *Service) Close(ctx context.Context, tx *sql.Tx, periodCode string) error {
	p, err := s.store.LockForClose(ctx, tx, periodCode)
	if err != nil {
		return err
	}
	if p.Status != domperiod.StatusClosing {
		return ledgererrors.AdjustmentsNotAllowed(periodCode)
	}
	if s.reconcile != nil {
		if err := s.reconcile(ctx, tx, periodCode); err != nil {
			return err
		}
	}
	return s.store.UpdateStatus(ctx, tx, periodCode, domperiod.StatusClosed, false, time.Now().UTC())
}
