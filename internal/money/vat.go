package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// Rate is a percentage stored in basis points: 20% is 2000, 5.5% is 550.
type Rate int64

// MaxRate is 100%.
const MaxRate Rate = 10000

// ErrInvalidRate indicates a rate outside [0, 100] or with more than two decimals.
var ErrInvalidRate = fmt.Errorf("%w: money: invalid rate", shared.ErrValidation)

var basisPoints = decimal.NewFromInt(100)

// ParseRate reads a percentage such as "20" or "5.5".
func ParseRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	return RateFromDecimal(d)
}

// RateFromDecimal converts a percentage to basis points.
func RateFromDecimal(d decimal.Decimal) (Rate, error) {
	bps := d.Mul(basisPoints)
	if !bps.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than two decimals", ErrInvalidRate, d.String())
	}
	r := Rate(bps.IntPart())
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return r, nil
}

// Validate checks 0 <= r <= 100%.
func (r Rate) Validate() error {
	if r < 0 || r > MaxRate {
		return fmt.Errorf("%w: %d bps", ErrInvalidRate, int64(r))
	}
	return nil
}

// Percent renders the rate as a percentage string, e.g. "5.5".
func (r Rate) Percent() string {
	return decimal.New(int64(r), -2).String()
}

// Of returns round-half-up(a * r).
func (r Rate) Of(a Amount) (Amount, error) {
	v, err := MulDivRoundHalfUp(int64(a), int64(r), int64(MaxRate))
	if err != nil {
		return 0, err
	}
	return Amount(v), nil
}

// SplitInclusive derives the net and VAT parts of a VAT-inclusive total:
//
//	net = round-half-up(total * 10000 / (10000 + bps)), vat = total - net
//
// The rounding remainder always lands on net so net+vat == total.
func SplitInclusive(total Amount, rate Rate) (net, vat Amount, err error) {
	if total < 0 {
		return 0, 0, fmt.Errorf("%w: negative total", ErrInvalidAmount)
	}
	if err := rate.Validate(); err != nil {
		return 0, 0, err
	}
	if rate == 0 {
		return total, 0, nil
	}
	n, err := MulDivRoundHalfUp(int64(total), int64(MaxRate), int64(MaxRate+rate))
	if err != nil {
		return 0, 0, err
	}
	net = Amount(n)
	return net, total - net, nil
}
