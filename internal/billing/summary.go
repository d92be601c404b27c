package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// Summary reconciles a project's signed total against its invoices.
type Summary struct {
	BillingQuoteID          *int64       `json:"billingQuoteId"`
	TotalCents              money.Amount `json:"totalCents"`
	AlreadyInvoicedCents    money.Amount `json:"alreadyInvoicedCents"`
	AlreadyPaidCents        money.Amount `json:"alreadyPaidCents"`
	RemainingCents          money.Amount `json:"remainingCents"`
	RemainingToCollectCents money.Amount `json:"remainingToCollectCents"`
}

// BillingQuote picks the quote a project is billed against: the most
// recently signed quote that is still SIGNED.
func BillingQuote(quotes []Quote) (Quote, bool) {
	var (
		best  Quote
		found bool
	)
	for _, q := range quotes {
		if q.Status != QuoteSigned {
			continue
		}
		if !found || signedAfter(q, best) {
			best, found = q, true
		}
	}
	return best, found
}

func signedAfter(a, b Quote) bool {
	switch {
	case a.SignedAt == nil:
		return b.SignedAt == nil && a.ID > b.ID
	case b.SignedAt == nil:
		return true
	case a.SignedAt.Equal(*b.SignedAt):
		return a.ID > b.ID
	}
	return a.SignedAt.After(*b.SignedAt)
}

// InvoicedTotals sums non-cancelled and PAID invoice totals.
func InvoicedTotals(invoices []Invoice) (invoiced, paid money.Amount, err error) {
	for _, inv := range invoices {
		if inv.Status == InvoiceCancelled {
			continue
		}
		if invoiced, err = invoiced.Add(inv.Total); err != nil {
			return 0, 0, err
		}
		if inv.Status == InvoicePaid {
			if paid, err = paid.Add(inv.Total); err != nil {
				return 0, 0, err
			}
		}
	}
	return invoiced, paid, nil
}

// Summarize computes the billing summary. Paid exceeding invoiced means the
// store is corrupt and is reported, never clamped.
func Summarize(quotes []Quote, invoices []Invoice) (Summary, error) {
	var s Summary
	if q, ok := BillingQuote(quotes); ok {
		id := q.ID
		s.BillingQuoteID = &id
		s.TotalCents = q.Total
	}
	invoiced, paid, err := InvoicedTotals(invoices)
	if err != nil {
		return Summary{}, err
	}
	if paid > invoiced {
		return Summary{}, fmt.Errorf("%w: paid %s exceeds invoiced %s", shared.ErrIntegrity, paid, invoiced)
	}
	s.AlreadyInvoicedCents = invoiced
	s.AlreadyPaidCents = paid
	s.RemainingCents = money.Max(0, s.TotalCents-invoiced)
	s.RemainingToCollectCents = invoiced - paid
	return s, nil
}

// StageRequest asks for a staged invoice. Value is a percentage with up to
// two decimals for PERCENT, or integer cents for AMOUNT.
type StageRequest struct {
	Mode  StageMode
	Value string
}

// StagedAmount resolves a stage request against the signed total and refuses
// to exceed it.
func StagedAmount(signedTotal, invoiced money.Amount, req StageRequest) (money.Amount, error) {
	raw := strings.TrimSpace(req.Value)
	var amount money.Amount
	switch req.Mode {
	case StagePercent:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: percent %q", ErrInvalidStage, raw)
		}
		rate, err := money.RateFromDecimal(d)
		if err != nil || rate <= 0 {
			return 0, fmt.Errorf("%w: percent must be within (0, 100] with at most two decimals", ErrInvalidStage)
		}
		if amount, err = rate.Of(signedTotal); err != nil {
			return 0, err
		}
	case StageAmount:
		d, err := decimal.NewFromString(raw)
		if err != nil || !d.IsInteger() || !d.IsPositive() || !d.BigInt().IsInt64() {
			return 0, fmt.Errorf("%w: amount must be positive integer cents", ErrInvalidStage)
		}
		amount = money.FromCents(d.IntPart())
	default:
		return 0, fmt.Errorf("%w: mode must be PERCENT or AMOUNT", ErrInvalidStage)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount rounds to zero", ErrInvalidStage)
	}
	next, err := invoiced.Add(amount)
	if err != nil {
		return 0, err
	}
	if next > signedTotal {
		return 0, fmt.Errorf("%w: %s already invoiced, %s requested, %s signed", ErrOverInvoicing, invoiced, amount, signedTotal)
	}
	return amount, nil
}
