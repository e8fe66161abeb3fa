package approval

import (
	"testing"
	"time"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusDenied, true},
		{StatusPending, StatusExpired, true},
		{StatusApproved, StatusDenied, false}, // AL-1: decided requests never move again
		{StatusDenied, StatusApproved, false},
		{StatusExpired, StatusApproved, false},
	}
	for _, c := range cases {
		if got := Transition(c.from, c.to); got != c.want {
			t.Errorf("Transition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestPolicyCurrent(t *testing.T) {
	if !PolicyCurrent(3, 3) {
		t.Error("same version should be current")
	}
	if PolicyCurrent(2, 3) {
		t.Error("stale version should not be current")
	}
}

func TestComputeDecisionHashDeterministic(t *testing.T) {
	decidedAt := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	h1, err := ComputeDecisionHash("req-1", "actor-1", StatusApproved, "looks fine", decidedAt)
	if err != nil {
		t.Fatalf("ComputeDecisionHash: %v", err)
	}
	h2, err := ComputeDecisionHash("req-1", "actor-1", StatusApproved, "looks fine", decidedAt)
	if err != nil {
		t.Fatalf("ComputeDecisionHash: %v", err)
	}
	if h1 != h2 {
		t.Error("identical inputs must hash identically")
	}

	h3, err := ComputeDecisionHash("req-1", "actor-1", StatusDenied, "looks fine", decidedAt)
	if err != nil {
		t.Fatalf("ComputeDecisionHash: %v", err)
	}
	if h1 == h3 {
		t.Error("different outcome must change the hash")
	}
}
