// Package valueobject holds immutable values shared by the ledger domains.
package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code. The school bills in a single currency.
type Currency string

const EUR Currency = "EUR"

// MoneyPlaces is the number of decimal places amounts are settled in
const MoneyPlaces int32 = 2

var hundred = decimal.NewFromInt(100)

// Money is an amount in the school's billing currency.
// All operations return new values.
type Money struct {
	amount decimal.Decimal
}

// NewMoneyEUR wraps amount without rounding it
func NewMoneyEUR(amount decimal.Decimal) Money {
	return Money{amount: amount}
}

// ParseEUR parses a decimal string such as "12.50"
func ParseEUR(amount string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoneyEUR(d), nil
}

// MustEUR is ParseEUR for literals; it panics on malformed input
func MustEUR(amount string) Money {
	return NewMoneyEUR(decimal.RequireFromString(amount))
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return EUR }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsNegative() bool        { return m.amount.IsNegative() }

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

func (m Money) Negate() Money {
	return Money{amount: m.amount.Neg()}
}

// Settle rounds half away from zero to cents, so -0.005 becomes -0.01
// just as 0.005 becomes 0.01.
func (m Money) Settle() Money {
	return Money{amount: m.amount.Round(MoneyPlaces)}
}

// Percent returns percent% of m, unrounded
func (m Money) Percent(percent decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(percent).Div(hundred)}
}

// VAT returns the VAT due on a net amount at ratePercent, settled to cents.
// The sign follows the net amount, so a negated line yields exactly the
// negated VAT.
func (m Money) VAT(ratePercent decimal.Decimal) Money {
	return m.Percent(ratePercent).Settle()
}

// Discount returns the settled discount on m at percent
func (m Money) Discount(percent decimal.Decimal) Money {
	return m.Percent(percent).Settle()
}

func (m Money) Equals(other Money) bool {
	return m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(MoneyPlaces), EUR)
}
