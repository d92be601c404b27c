// Package billing drives quotes and invoices through their lifecycle.
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// QuoteStatus enumerates quote lifecycle states.
type QuoteStatus string

const (
	QuoteDraft     QuoteStatus = "DRAFT"
	QuoteSent      QuoteStatus = "SENT"
	QuoteSigned    QuoteStatus = "SIGNED"
	QuoteCancelled QuoteStatus = "CANCELLED"
)

// Valid reports whether s is a known quote status.
func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteDraft, QuoteSent, QuoteSigned, QuoteCancelled:
		return true
	}
	return false
}

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceSent      InvoiceStatus = "SENT"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceCancelled:
		return true
	}
	return false
}

// DepositStatus tracks a project's deposit.
type DepositStatus string

const (
	DepositNone    DepositStatus = "NONE"
	DepositPending DepositStatus = "PENDING"
	DepositPaid    DepositStatus = "PAID"
)

// Valid reports whether s is a known deposit status.
func (s DepositStatus) Valid() bool {
	switch s {
	case DepositNone, DepositPending, DepositPaid:
		return true
	}
	return false
}

// StageMode selects how a staged invoice amount is expressed.
type StageMode string

const (
	StagePercent StageMode = "PERCENT"
	StageAmount  StageMode = "AMOUNT"
)

// Item is a priced line on a quote or invoice.
type Item struct {
	ID        int64        `json:"id,omitempty"`
	Label     string       `json:"label"`
	UnitPrice money.Amount `json:"unitPriceCents"`
	Quantity  int64        `json:"quantity"`
	ProductID *int64       `json:"productId,omitempty"`
	Total     money.Amount `json:"totalCents"`
}

// Quote is a priced offer for a project.
type Quote struct {
	ID           int64        `json:"id"`
	BusinessID   int64        `json:"businessId"`
	ProjectID    int64        `json:"projectId"`
	Status       QuoteStatus  `json:"status"`
	Number       *string      `json:"number"`
	Items        []Item       `json:"items"`
	Total        money.Amount `json:"totalCents"`
	SignedAt     *time.Time   `json:"signedAt"`
	CancelReason *string      `json:"cancelReason"`
	Note         string       `json:"note"`
	InvoiceID    *int64       `json:"invoiceId"`
	IssuedAt     time.Time    `json:"issuedAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Stage records the request a staged invoice was created from.
type Stage struct {
	Mode  StageMode `json:"mode"`
	Value string    `json:"value"`
}

// Invoice bills a client.
type Invoice struct {
	ID                    int64         `json:"id"`
	BusinessID            int64         `json:"businessId"`
	ProjectID             int64         `json:"projectId"`
	QuoteID               *int64        `json:"quoteId"`
	Status                InvoiceStatus `json:"status"`
	Number                *string       `json:"number"`
	Items                 []Item        `json:"items"`
	Total                 money.Amount  `json:"totalCents"`
	PaidAt                *time.Time    `json:"paidAt"`
	CashSaleLedgerEntryID *int64        `json:"cashSaleLedgerEntryId"`
	Stage                 *Stage        `json:"stage,omitempty"`
	IssuedAt              time.Time     `json:"issuedAt"`
	UpdatedAt             time.Time     `json:"updatedAt"`
}

// Project is owned by the back office; billing reads it and keeps the deposit.
type Project struct {
	ID            int64         `json:"id"`
	BusinessID    int64         `json:"businessId"`
	Name          string        `json:"name"`
	DepositStatus DepositStatus `json:"depositStatus"`
	DepositPaidAt *time.Time    `json:"depositPaidAt"`
}

// ProjectService is a priced service line attached to a project.
type ProjectService struct {
	ID        int64
	ProjectID int64
	Label     string
	UnitPrice money.Amount
	Quantity  int64
	ProductID *int64
}

// PriceItems validates items and recomputes every line total.
func PriceItems(items []Item) ([]Item, money.Amount, error) {
	if len(items) == 0 {
		return nil, 0, ErrNoItems
	}
	priced := make([]Item, len(items))
	var total money.Amount
	for i, item := range items {
		item.Label = strings.TrimSpace(item.Label)
		switch {
		case item.Label == "":
			return nil, 0, fmt.Errorf("%w: line %d: label required", ErrInvalidItem, i+1)
		case item.Quantity <= 0:
			return nil, 0, fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidItem, i+1)
		case item.UnitPrice < 0:
			return nil, 0, fmt.Errorf("%w: line %d: unit price must not be negative", ErrInvalidItem, i+1)
		case item.ProductID != nil && *item.ProductID <= 0:
			return nil, 0, fmt.Errorf("%w: line %d: invalid product", ErrInvalidItem, i+1)
		}
		lineTotal, err := item.UnitPrice.Mul(item.Quantity)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", i+1, err)
		}
		if total, err = total.Add(lineTotal); err != nil {
			return nil, 0, err
		}
		item.Total = lineTotal
		priced[i] = item
	}
	return priced, total, nil
}

var (
	ErrQuoteNotFound   = fmt.Errorf("%w: quote", shared.ErrNotFound)
	ErrInvoiceNotFound = fmt.Errorf("%w: invoice", shared.ErrNotFound)
	ErrProjectNotFound = fmt.Errorf("%w: project", shared.ErrNotFound)

	// ErrInvalidTransition is returned for status moves the lifecycle forbids.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", shared.ErrConflict)
	ErrQuoteInvoiced     = fmt.Errorf("%w: quote has already been invoiced", shared.ErrConflict)
	ErrNoteLocked        = fmt.Errorf("%w: note can only change while DRAFT or SENT", shared.ErrConflict)
	ErrItemsLocked       = fmt.Errorf("%w: items can only change while DRAFT", shared.ErrConflict)
	ErrQuoteNotBillable  = fmt.Errorf("%w: quote must be SIGNED to invoice", shared.ErrConflict)
	ErrDoubleInvoicing   = fmt.Errorf("%w: quote total exceeds what is left to invoice", shared.ErrConflict)

	ErrUnknownStatus            = fmt.Errorf("%w: unknown status", shared.ErrValidation)
	ErrSignedAtWithoutSigned    = fmt.Errorf("%w: signedAt requires status SIGNED", shared.ErrValidation)
	ErrReasonWithoutCancel      = fmt.Errorf("%w: cancelReason requires status CANCELLED", shared.ErrValidation)
	ErrCancelReasonRequired     = fmt.Errorf("%w: cancelReason is required", shared.ErrValidation)
	ErrPaidAtWithoutPaid        = fmt.Errorf("%w: paidAt requires status PAID", shared.ErrValidation)
	ErrDepositPaidAtWithoutPaid = fmt.Errorf("%w: depositPaidAt requires depositStatus PAID", shared.ErrValidation)
	ErrNoItems                  = fmt.Errorf("%w: at least one item is required", shared.ErrValidation)
	ErrInvalidItem              = fmt.Errorf("%w: invalid item", shared.ErrValidation)
	ErrZeroTotal                = fmt.Errorf("%w: invoice total must be positive to send", shared.ErrValidation)
	ErrNoServices               = fmt.Errorf("%w: project has no priced services", shared.ErrValidation)
	ErrNoBillingQuote           = fmt.Errorf("%w: project has no signed quote", shared.ErrValidation)
	ErrInvalidStage             = fmt.Errorf("%w: invalid stage", shared.ErrValidation)
	ErrOverInvoicing            = fmt.Errorf("%w: amount exceeds the remaining signed total", shared.ErrValidation)
)
