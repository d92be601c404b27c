package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
)

// QuotePatch is a partial quote update. Nil fields are left alone.
type QuotePatch struct {
	Status       *QuoteStatus
	SignedAt     *time.Time
	CancelReason *string
	Note         *string
}

// QuotePlan is the outcome of PlanQuotePatch. The caller mints a number when
// NeedsNumber is set and then applies the plan.
type QuotePlan struct {
	From, To     QuoteStatus
	NeedsNumber  bool
	SignedAt     *time.Time
	CancelReason *string
	Note         *string
	Changed      bool
}

// Transitioned reports whether the status moves.
func (p QuotePlan) Transitioned() bool { return p.From != p.To }

// Apply writes the plan onto q. The number is passed separately since only
// the caller can mint it.
func (p QuotePlan) Apply(q Quote, number string) Quote {
	q.Status = p.To
	if p.NeedsNumber {
		q.Number = &number
	}
	if p.SignedAt != nil {
		q.SignedAt = p.SignedAt
	}
	if p.CancelReason != nil {
		q.CancelReason = p.CancelReason
	}
	if p.Note != nil {
		q.Note = *p.Note
	}
	return q
}

// PlanQuotePatch validates a patch against the quote lifecycle:
//
//	DRAFT -> SENT               mint number
//	SENT -> SIGNED              set signedAt (patch value or now)
//	SENT|SIGNED -> CANCELLED    reason required
//	X -> X                      no-op; SIGNED may move signedAt
//
// Everything else is a conflict. A quote that spawned an invoice is frozen.
func PlanQuotePatch(q Quote, patch QuotePatch, now time.Time) (QuotePlan, error) {
	plan := QuotePlan{From: q.Status, To: q.Status}
	if q.InvoiceID != nil {
		return QuotePlan{}, ErrQuoteInvoiced
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return QuotePlan{}, fmt.Errorf("%w: %q", ErrUnknownStatus, *patch.Status)
		}
		plan.To = *patch.Status
	}
	if patch.SignedAt != nil && plan.To != QuoteSigned {
		return QuotePlan{}, ErrSignedAtWithoutSigned
	}
	if patch.CancelReason != nil && plan.To != QuoteCancelled {
		return QuotePlan{}, ErrReasonWithoutCancel
	}
	if patch.Note != nil {
		if q.Status != QuoteDraft && q.Status != QuoteSent {
			return QuotePlan{}, ErrNoteLocked
		}
		if *patch.Note != q.Note {
			note := *patch.Note
			plan.Note = &note
			plan.Changed = true
		}
	}

	switch {
	case plan.From == plan.To:
		if plan.To == QuoteSigned && patch.SignedAt != nil && !sameInstant(q.SignedAt, patch.SignedAt) {
			at := patch.SignedAt.UTC()
			plan.SignedAt = &at
			plan.Changed = true
		}
	case plan.From == QuoteDraft && plan.To == QuoteSent:
		plan.NeedsNumber = q.Number == nil
		plan.Changed = true
	case plan.From == QuoteSent && plan.To == QuoteSigned:
		at := now.UTC()
		if patch.SignedAt != nil {
			at = patch.SignedAt.UTC()
		}
		plan.SignedAt = &at
		plan.Changed = true
	case (plan.From == QuoteSent || plan.From == QuoteSigned) && plan.To == QuoteCancelled:
		if patch.CancelReason == nil || strings.TrimSpace(*patch.CancelReason) == "" {
			return QuotePlan{}, ErrCancelReasonRequired
		}
		reason := strings.TrimSpace(*patch.CancelReason)
		plan.CancelReason = &reason
		plan.Changed = true
	default:
		return QuotePlan{}, fmt.Errorf("%w: quote %s -> %s", ErrInvalidTransition, plan.From, plan.To)
	}
	return plan, nil
}

// InvoicePatch is a partial invoice update.
type InvoicePatch struct {
	Status *InvoiceStatus
	PaidAt *time.Time
	Items  *[]Item
}

// InvoicePlan lists the side effects the caller must run, in order: replace
// items, mint number, reserve, consume, post the cash sale, release.
type InvoicePlan struct {
	From, To     InvoiceStatus
	Items        []Item
	Total        money.Amount
	ItemsChanged bool
	NeedsNumber  bool
	Reserve      bool
	Consume      bool
	PostCashSale bool
	Release      bool
	PaidAt       *time.Time
	Changed      bool
}

// Transitioned reports whether the status moves.
func (p InvoicePlan) Transitioned() bool { return p.From != p.To }

// Apply writes the plan's header changes onto inv.
func (p InvoicePlan) Apply(inv Invoice, number string) Invoice {
	inv.Status = p.To
	if p.ItemsChanged {
		inv.Items = p.Items
		inv.Total = p.Total
	}
	if p.NeedsNumber {
		inv.Number = &number
	}
	if p.PaidAt != nil {
		inv.PaidAt = p.PaidAt
	}
	return inv
}

// PlanInvoicePatch validates a patch against the invoice lifecycle:
//
//	DRAFT -> SENT          mint number, reserve stock; total must be positive
//	SENT -> PAID           set paidAt, consume stock, post the cash sale
//	DRAFT|SENT -> CANCELLED  SENT releases its reservations
//	X -> X                 no-op; PAID may move paidAt
//
// Items may only be replaced while DRAFT.
func PlanInvoicePatch(inv Invoice, patch InvoicePatch, now time.Time) (InvoicePlan, error) {
	plan := InvoicePlan{From: inv.Status, To: inv.Status, Total: inv.Total}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return InvoicePlan{}, fmt.Errorf("%w: %q", ErrUnknownStatus, *patch.Status)
		}
		plan.To = *patch.Status
	}
	if patch.PaidAt != nil && plan.To != InvoicePaid {
		return InvoicePlan{}, ErrPaidAtWithoutPaid
	}
	if patch.Items != nil {
		if inv.Status != InvoiceDraft {
			return InvoicePlan{}, ErrItemsLocked
		}
		items, total, err := PriceItems(*patch.Items)
		if err != nil {
			return InvoicePlan{}, err
		}
		plan.Items, plan.Total = items, total
		plan.ItemsChanged = true
		plan.Changed = true
	}

	switch {
	case plan.From == plan.To:
		if plan.To == InvoicePaid && patch.PaidAt != nil && !sameInstant(inv.PaidAt, patch.PaidAt) {
			at := patch.PaidAt.UTC()
			plan.PaidAt = &at
			plan.Changed = true
		}
	case plan.From == InvoiceDraft && plan.To == InvoiceSent:
		if plan.Total <= 0 {
			return InvoicePlan{}, ErrZeroTotal
		}
		plan.NeedsNumber = inv.Number == nil
		plan.Reserve = true
		plan.Changed = true
	case plan.From == InvoiceSent && plan.To == InvoicePaid:
		at := now.UTC()
		if patch.PaidAt != nil {
			at = patch.PaidAt.UTC()
		}
		plan.PaidAt = &at
		plan.Consume = true
		plan.PostCashSale = inv.CashSaleLedgerEntryID == nil
		plan.Changed = true
	case plan.From == InvoiceDraft && plan.To == InvoiceCancelled:
		plan.Changed = true
	case plan.From == InvoiceSent && plan.To == InvoiceCancelled:
		plan.Release = true
		plan.Changed = true
	default:
		return InvoicePlan{}, fmt.Errorf("%w: invoice %s -> %s", ErrInvalidTransition, plan.From, plan.To)
	}
	return plan, nil
}

// DepositPatch is a partial update of a project's deposit.
type DepositPatch struct {
	Status *DepositStatus
	PaidAt *time.Time
}

// PlanDepositPatch applies the deposit rules and returns the updated project.
// depositPaidAt exists only while the deposit is PAID.
func PlanDepositPatch(p Project, patch DepositPatch, now time.Time) (Project, bool, error) {
	target := p.DepositStatus
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return Project{}, false, fmt.Errorf("%w: %q", ErrUnknownStatus, *patch.Status)
		}
		target = *patch.Status
	}
	if patch.PaidAt != nil && target != DepositPaid {
		return Project{}, false, ErrDepositPaidAtWithoutPaid
	}
	next := p
	next.DepositStatus = target
	switch {
	case target != DepositPaid:
		next.DepositPaidAt = nil
	case patch.PaidAt != nil:
		at := patch.PaidAt.UTC()
		next.DepositPaidAt = &at
	case p.DepositPaidAt == nil:
		at := now.UTC()
		next.DepositPaidAt = &at
	}
	changed := next.DepositStatus != p.DepositStatus || !sameInstant(next.DepositPaidAt, p.DepositPaidAt)
	return next, changed, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
