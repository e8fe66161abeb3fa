// Package journal defines the posted, append-only journal entry and its
// lines (spec.md §3 "Journal entry", "Journal line", "Account", §4.7). A
// JournalEntry exclusively owns its Lines (spec.md §9 "Ownership model");
// nothing else references a line except by the entry's id.
package journal

import (
	"time"

	"github.com/acctkernel/ledger/domain/money"
	"github.com/acctkernel/ledger/internal/canon"
)

// Account is a posting target resolved from a policy role binding
// (spec.md §3 "Account").
type Account struct {
	AccountID string
	LedgerID  string
	Name      string
	Normal    money.Currency // functional currency of the account
}

// Side is the debit/credit direction of a line.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Line is one leg of a journal entry. Amount is always non-negative (R4);
// direction is carried entirely by Side, never by the sign of Amount.
type Line struct {
	LineNo     int
	AccountID  string
	LedgerID   string
	Side       Side
	Amount     money.Money
	Role       string // the semantic role this line was resolved from
	IsRounding bool   // set only by the Bookkeeper to absorb an in-tolerance residual (R5); at most one per entry per currency (R22)
}

// Entry is one posted, immutable journal entry (spec.md §3 "Journal
// entry"). Once persisted, an Entry is never updated or deleted; economic
// corrections are new entries linked via domain/link.
type Entry struct {
	EntryID        string
	Seq            int64 // allocated from the "journal" sequence counter (R9)
	EventID        string
	PolicyName     string
	PolicyVersion  int
	FiscalPeriod   string
	EffectiveDate  time.Time
	PostedAt       time.Time
	IdempotencyKey string
	Lines          []Line
	SnapshotHash   canon.Hash // reference snapshot captured at resolution time (R21)
}

// BalancesByCurrency groups each line's signed amount by currency: debit
// lines contribute positively, credit lines negatively. A balanced entry
// sums to zero (within tolerance, R17) in every currency it touches (R5).
func (e Entry) BalancesByCurrency() map[money.Currency]money.Money {
	totals := make(map[money.Currency]money.Money)
	for _, line := range e.Lines {
		cur := line.Amount.Currency
		running, ok := totals[cur]
		if !ok {
			running = money.Zero(cur)
		}
		signed := line.Amount
		if line.Side == SideCredit {
			signed = signed.Negate()
		}
		sum, err := running.Add(signed)
		if err != nil {
			// Unreachable: running and signed share cur by construction.
			panic(err)
		}
		totals[cur] = sum
	}
	return totals
}

// IsBalanced reports whether every currency's running total is within its
// smallest representable unit of zero (R5, R17).
func (e Entry) IsBalanced() (bool, map[money.Currency]money.Money) {
	totals := e.BalancesByCurrency()
	residuals := make(map[money.Currency]money.Money)
	balanced := true
	for cur, total := range totals {
		tol := money.Zero(cur).Tolerance()
		if total.Abs().Cmp(tol) > 0 {
			balanced = false
			residuals[cur] = total
		}
	}
	return balanced, residuals
}
