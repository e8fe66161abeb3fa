package period

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	domperiod "github.com/acctkernel/ledger/domain/period"
)

func TestCheckAcceptsPostingOpenPeriod(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domperiod.Period{Code: "2026-01", Status: domperiod.StatusOpen, AllowAdjustments: true})
	svc := New(store, nil)

	if err := svc.CheckAcceptsPosting(context.Background(), "2026-01", false); err != nil {
		t.Errorf("expected OPEN period to accept posting: %v", err)
	}
}

func TestCheckAcceptsPostingOpenPeriodRejectsOrdinaryPostingWhenAdjustmentsOnly(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domperiod.Period{Code: "2026-01", Status: domperiod.StatusOpen, AllowAdjustments: false})
	svc := New(store, nil)

	if err := svc.CheckAcceptsPosting(context.Background(), "2026-01", false); err == nil {
		t.Error("expected an OPEN period with AllowAdjustments false to reject a non-adjustment posting (R13)")
	}
	if err := svc.CheckAcceptsPosting(context.Background(), "2026-01", true); err != nil {
		t.Errorf("expected an OPEN period to still accept an adjustment posting: %v", err)
	}
}

func TestCheckAcceptsPostingClosedPeriod(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domperiod.Period{Code: "2025-12", Status: domperiod.StatusClosed})
	svc := New(store, nil)

	if err := svc.CheckAcceptsPosting(context.Background(), "2025-12", false); err == nil {
		t.Error("expected CLOSED period to reject posting")
	}
}

func TestCheckAcceptsPostingClosingPeriodRejectsOrdinaryPosting(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domperiod.Period{Code: "2026-01", Status: domperiod.StatusClosing, AllowAdjustments: true})
	svc := New(store, nil)

	if err := svc.CheckAcceptsPosting(context.Background(), "2026-01", false); err == nil {
		t.Error("expected CLOSING period to reject a non-adjustment posting")
	}
	if err := svc.CheckAcceptsPosting(context.Background(), "2026-01", true); err != nil {
		t.Errorf("expected CLOSING period to accept an adjustment posting: %v", err)
	}
}

func TestDueForClose(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store.Seed(domperiod.Period{Code: "2026-01", Status: domperiod.StatusOpen, EndDate: now.AddDate(0, 0, -10)})
	store.Seed(domperiod.Period{Code: "2026-02", Status: domperiod.StatusOpen, EndDate: now.AddDate(0, 1, 0)})
	svc := New(store, nil)

	due, err := svc.DueForClose(context.Background(), now, 24)
	if err != nil {
		t.Fatalf("DueForClose: %v", err)
	}
	if len(due) != 1 || due[0] != "2026-01" {
		t.Errorf("DueForClose = %v, want [2026-01]", due)
	}
}

func TestBeginCloseTransitionsOpenToClosing(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domperiod.Period{Code: "2026-01", Status: domperiod.StatusOpen})
	svc := New(store, nil)

	if err := svc.BeginClose(context.Background(), nil, "2026-01"); err != nil {
		t.Fatalf("BeginClose: %v", err)
	}
	p, _ := store.Get(context.Background(), "2026-01")
	if p.Status != domperiod.StatusClosing {
		t.Errorf("Status = %s, want CLOSING", p.Status)
	}
	if !p.AllowAdjustments {
		t.Error("expected AllowAdjustments to be true after BeginClose")
	}
}

func TestBeginCloseRejectsNonOpenPeriod(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domperiod.Period{Code: "2026-01", Status: domperiod.StatusClosed})
	svc := New(store, nil)

	if err := svc.BeginClose(context.Background(), nil, "2026-01"); err == nil {
		t.Error("expected error closing an already-CLOSED period")
	}
}

func TestCloseRunsReconciliationAndTransitionsToClosed(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domperiod.Period{Code: "2026-01", Status: domperiod.StatusClosing, AllowAdjustments: true})
	checked := ""
	svc := New(store, func(ctx context.Context, tx *sql.Tx, code string) error {
		checked = code
		return nil
	})

	if err := svc.Close(context.Background(), nil, "2026-01"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if checked != "2026-01" {
		t.Error("expected reconciliation checker to run against the closing period")
	}
	p, _ := store.Get(context.Background(), "2026-01")
	if p.Status != domperiod.StatusClosed {
		t.Errorf("Status = %s, want CLOSED", p.Status)
	}
}

func TestCloseAbortsOnReconciliationFailure(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domperiod.Period{Code: "2026-01", Status: domperiod.StatusClosing, AllowAdjustments: true})
	wantErr := errors.New("subledger out of tolerance")
	svc := New(store, func(ctx context.Context, tx *sql.Tx, code string) error { return wantErr })

	if err := svc.Close(context.Background(), nil, "2026-01"); !errors.Is(err, wantErr) {
		t.Fatalf("Close error = %v, want %v", err, wantErr)
	}
	p, _ := store.Get(context.Background(), "2026-01")
	if p.Status != domperiod.StatusClosing {
		t.Errorf("Status = %s, want to remain CLOSING after reconciliation failure", p.Status)
	}
}

func TestCloseRejectsNonClosingPeriod(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(domperiod.Period{Code: "2026-01", Status: domperiod.StatusOpen})
	svc := New(store, nil)

	if err := svc.Close(context.Background(), nil, "2026-01"); err == nil {
		t.Error("expected error closing a period that was never put into CLOSING")
	}
}
