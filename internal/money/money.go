// Package money implements fixed-point integer cent amounts. Floating point
// never appears on a money path; decimal strings only exist at the edges.
package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// Amount is a monetary value in cents.
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

var (
	// ErrOverflow indicates the result does not fit in int64 cents.
	ErrOverflow = fmt.Errorf("%w: money: amount overflows int64 cents", shared.ErrValidation)
	// ErrInvalidAmount indicates a malformed decimal amount.
	ErrInvalidAmount = fmt.Errorf("%w: money: invalid amount", shared.ErrValidation)
	// ErrDivisionByZero is returned by the division helpers.
	ErrDivisionByZero = fmt.Errorf("%w: money: division by zero", shared.ErrValidation)
)

var hundred = decimal.NewFromInt(100)

// FromCents wraps a raw cent value.
func FromCents(cents int64) Amount { return Amount(cents) }

// Cents returns the raw cent value.
func (a Amount) Cents() int64 { return int64(a) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// Add returns a+b, failing on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a-b, failing on overflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b == math.MinInt64 {
		return 0, ErrOverflow
	}
	return a.Add(-b)
}

// Mul multiplies the amount by an integer quantity, failing on overflow.
func (a Amount) Mul(qty int64) (Amount, error) {
	if a == 0 || qty == 0 {
		return 0, nil
	}
	product := int64(a) * qty
	if product/qty != int64(a) || (int64(a) == -1 && qty == math.MinInt64) || (qty == -1 && int64(a) == math.MinInt64) {
		return 0, ErrOverflow
	}
	return Amount(product), nil
}

// Sum adds amounts, failing on overflow.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, v := range amounts {
		next, err := total.Add(v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// Max returns the larger amount.
func Max(a, b Amount) Amount {
	if a > b {
		return a
	}
	return b
}

// MulDivRoundHalfUp computes round(value*mul/div) with ties rounded away from
// zero, which is half-up for the non-negative values billing works with. The
// intermediate product is exact, so large values cannot overflow before the
// division.
func MulDivRoundHalfUp(value, mul, div int64) (int64, error) {
	if div == 0 {
		return 0, ErrDivisionByZero
	}
	q := decimal.NewFromInt(value).Mul(decimal.NewFromInt(mul)).DivRound(decimal.NewFromInt(div), 0)
	if !q.IsInteger() || q.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || q.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, ErrOverflow
	}
	return q.IntPart(), nil
}

// Parse converts a decimal string such as "12.34" to cents. More than two
// fractional digits is rejected rather than rounded.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal major-unit value to cents.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	cents := d.Mul(hundred)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than two decimals", ErrInvalidAmount, d.String())
	}
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || cents.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, ErrOverflow
	}
	return Amount(cents.IntPart()), nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String renders the amount as a plain decimal, e.g. "1234.50".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// Format renders the amount for display in the given locale, e.g.
// "1,234.50" for English or "1.234,50" for German. Display only: the float
// conversion is exact to the cent below 2^53 cents and never feeds back into
// arithmetic.
func (a Amount) Format(tag language.Tag) string {
	p := message.NewPrinter(tag)
	f, _ := a.Decimal().Float64()
	return p.Sprint(number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
