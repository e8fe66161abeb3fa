package approvalsvc

import (
	"context"
	"testing"

	"github.com/acctkernel/ledger/domain/approval"
	"github.com/acctkernel/ledger/internal/canon"
)

func TestRaiseThenDecideApproved(t *testing.T) {
	svc := New(NewMemoryStore(), func(string) (int, error) { return 1, nil })
	ctx := context.Background()

	req, err := svc.Raise(ctx, nil, "evt-1", "ExpenseReportApproved", 1, "LARGE_AMOUNT", "controller", canon.Hash{})
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if req.Status != approval.StatusPending {
		t.Fatalf("new request status = %s, want PENDING", req.Status)
	}

	decision, err := svc.Decide(ctx, nil, req.RequestID, "actor-1", approval.StatusApproved, "looks fine")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Outcome != approval.StatusApproved {
		t.Errorf("Outcome = %s, want APPROVED", decision.Outcome)
	}
}

func TestDecideRejectsNonPendingRequest(t *testing.T) {
	svc := New(NewMemoryStore(), func(string) (int, error) { return 1, nil })
	ctx := context.Background()

	req, err := svc.Raise(ctx, nil, "evt-1", "ExpenseReportApproved", 1, "LARGE_AMOUNT", "controller", canon.Hash{})
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if _, err := svc.Decide(ctx, nil, req.RequestID, "actor-1", approval.StatusApproved, "ok"); err != nil {
		t.Fatalf("first Decide: %v", err)
	}
	if _, err := svc.Decide(ctx, nil, req.RequestID, "actor-2", approval.StatusDenied, "too late"); err == nil {
		t.Fatal("expected error: request already decided (AL-1)")
	}
}

func TestDecideRejectsInvalidOutcome(t *testing.T) {
	svc := New(NewMemoryStore(), func(string) (int, error) { return 1, nil })
	ctx := context.Background()

	req, err := svc.Raise(ctx, nil, "evt-1", "ExpenseReportApproved", 1, "LARGE_AMOUNT", "controller", canon.Hash{})
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if _, err := svc.Decide(ctx, nil, req.RequestID, "actor-1", approval.StatusPending, "oops"); err == nil {
		t.Fatal("expected error for non-terminal outcome")
	}
}

func TestDecideRejectsPolicyDowngrade(t *testing.T) {
	svc := New(NewMemoryStore(), func(string) (int, error) { return 2, nil }) // pack moved to version 2
	ctx := context.Background()

	req, err := svc.Raise(ctx, nil, "evt-1", "ExpenseReportApproved", 1, "LARGE_AMOUNT", "controller", canon.Hash{})
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if _, err := svc.Decide(ctx, nil, req.RequestID, "actor-1", approval.StatusApproved, "ok"); err == nil {
		t.Fatal("expected error: policy changed version between request and decision (AL-5)")
	}
}

func TestDecideUnknownRequest(t *testing.T) {
	svc := New(NewMemoryStore(), func(string) (int, error) { return 1, nil })
	if _, err := svc.Decide(context.Background(), nil, "does-not-exist", "actor-1", approval.StatusApproved, "ok"); err == nil {
		t.Fatal("expected error for unknown request id")
	}
}
