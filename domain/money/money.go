// Package money implements the value model (spec.md §3, §4.1): arbitrary
// precision decimal monetary amounts keyed to an ISO-4217 currency, with
// banker's rounding and no floating point anywhere in the type's surface.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/acctkernel/ledger/ledgererrors"
)

// Currency is an ISO-4217 alphabetic code, e.g. "USD", "EUR", "JPY".
type Currency string

// minorUnits records the number of decimal places a currency's minor unit
// implies. Rounding and tolerance (R17) derive from this table. Currencies
// not listed default to 2 places, the ISO-4217 convention for the large
// majority of circulating currencies.
var minorUnits = map[Currency]int32{
	"USD": 2, "EUR": 2, "GBP": 2, "CAD": 2, "AUD": 2, "CHF": 2,
	"JPY": 0, "KRW": 0, "VND": 0, "ISK": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3,
	"MGA": 1, "MRU": 1,
}

// DecimalPlaces returns the number of minor-unit decimal places for c.
func (c Currency) DecimalPlaces() int32 {
	if places, ok := minorUnits[c]; ok {
		return places
	}
	return 2
}

// Valid reports whether c looks like an ISO-4217 alphabetic code: exactly
// three upper-case ASCII letters. The kernel does not maintain the full
// ISO-4217 registry; it validates shape and relies on the compiled policy
// pack's ledger/currency configuration for the authoritative list (R16).
func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Money is a monetary amount in a single currency. Amount is an arbitrary
// precision decimal; no float64 ever participates in its construction,
// comparison, or arithmetic (R16). Amount may be negative for computed
// quantities (variances, unconsumed balances); journal lines enforce
// non-negativity separately (R4) since direction there is encoded by side.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// Zero returns a zero-value Money in the given currency.
func Zero(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// New validates currency shape and constructs a Money from a decimal.
func New(amount decimal.Decimal, currency Currency) (Money, error) {
	if !currency.Valid() {
		return Money{}, ledgererrors.InvalidInput("currency", fmt.Sprintf("%q is not a 3-letter ISO-4217 code", currency))
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Parse constructs Money from a decimal string (e.g. "1042.50"). There is
// deliberately no constructor accepting float64: payload producers must
// serialize amounts as strings, and the journal writer rejects a line
// amount that arrives as a JSON number for exactly this reason (R16).
func Parse(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, ledgererrors.InvalidInput("amount", "not a valid decimal string: "+err.Error())
	}
	return New(d, currency)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount.Sign() < 0 }

// Negate returns the additive inverse, same currency.
func (m Money) Negate() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Add requires currency identity; mixing currencies without an explicit
// Rate conversion is a programming error, never silently coerced (R19).
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ledgererrors.InvalidInput("currency", fmt.Sprintf("cannot add %s to %s", other.Currency, m.Currency))
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub is Add of the negation.
func (m Money) Sub(other Money) (Money, error) {
	return m.Add(other.Negate())
}

// MulScalar multiplies by a dimensionless decimal factor (e.g. a rate,
// a proportion, a quantity) — the one multiplication the value model
// allows without a currency on the right-hand side.
func (m Money) MulScalar(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

// Round applies banker's rounding (round-half-to-even) to the currency's
// minor-unit decimal places, per spec.md §4.1.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.RoundBank(m.Currency.DecimalPlaces()), Currency: m.Currency}
}

// Cmp compares two same-currency amounts; panics on currency mismatch
// since callers are expected to have validated currency identity upstream
// (balance checks always group by currency first).
func (m Money) Cmp(other Money) int {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: Cmp across currencies %s/%s", m.Currency, other.Currency))
	}
	return m.Amount.Cmp(other.Amount)
}

// Abs returns the absolute value, same currency.
func (m Money) Abs() Money {
	return Money{Amount: m.Amount.Abs(), Currency: m.Currency}
}

// Tolerance returns the smallest representable unit for m's currency,
// e.g. 0.01 USD or 1 JPY. The journal writer treats a balance residual
// within this tolerance as roundable (R17).
func (m Money) Tolerance() Money {
	places := m.Currency.DecimalPlaces()
	unit := decimal.New(1, -places)
	return Money{Amount: unit, Currency: m.Currency}
}

// String renders "<amount> <currency>", e.g. "100.00 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(m.Currency.DecimalPlaces()), m.Currency)
}

// Rate is an exchange rate between two currencies, used by valuation and
// multi-currency posting engines.
type Rate struct {
	From Currency
	To   Currency
	Rate decimal.Decimal
}

// Convert applies the rate to m, which must be denominated in r.From.
func (r Rate) Convert(m Money) (Money, error) {
	if m.Currency != r.From {
		return Money{}, ledgererrors.InvalidInput("currency", fmt.Sprintf("rate is from %s, amount is %s", r.From, m.Currency))
	}
	converted := Money{Amount: m.Amount.Mul(r.Rate), Currency: r.To}
	return converted.Round(), nil
}
