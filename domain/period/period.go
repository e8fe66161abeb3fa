// Package period defines the fiscal period type (spec.md §3 "Fiscal
// period", §4.3).
package period

import "time"

// Status is a fiscal period's lifecycle state (spec.md §4.3).
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusClosing  Status = "CLOSING"
	StatusClosed   Status = "CLOSED"
)

// Period is one fiscal period (spec.md §3 "Fiscal period", R12, R13, R25).
type Period struct {
	Code             string // e.g. "2026-01"
	StartDate        time.Time
	EndDate          time.Time
	Status           Status
	AllowAdjustments bool // R13: false rejects any non-adjustment posting regardless of status
	ClosedAt         time.Time
}

// AcceptsPosting reports whether a posting may target this period (R12:
// CLOSED periods never post; R25: CLOSING periods only accept
// adjustment/close-step postings; R13: a non-adjustment posting is rejected
// whenever AllowAdjustments is false, OPEN included).
func (p Period) AcceptsPosting(isAdjustment bool) bool {
	switch p.Status {
	case StatusOpen:
		return isAdjustment || p.AllowAdjustments
	case StatusClosing:
		return isAdjustment && p.AllowAdjustments
	default:
		return false
	}
}
