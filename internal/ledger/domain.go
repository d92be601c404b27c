package ledger

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// SourceType names the business event an entry was posted for.
type SourceType string

const (
	SourceInventoryMovement       SourceType = "INVENTORY_MOVEMENT"
	SourceInvoiceCashSale         SourceType = "INVOICE_CASH_SALE"
	SourceInvoiceStockConsumption SourceType = "INVOICE_STOCK_CONSUMPTION"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceInventoryMovement, SourceInvoiceCashSale, SourceInvoiceStockConsumption:
		return true
	}
	return false
}

// Entry is a balanced double-entry record tied to one source event.
type Entry struct {
	ID         int64      `json:"id"`
	BusinessID int64      `json:"businessId"`
	SourceType SourceType `json:"sourceType"`
	SourceID   int64      `json:"sourceId"`
	Memo       string     `json:"memo,omitempty"`
	PostedBy   int64      `json:"postedBy,omitempty"`
	PostedAt   time.Time  `json:"postedAt"`
	Lines      []Line     `json:"lines"`
}

// Line stores a debit or a credit for one account.
type Line struct {
	AccountCode string       `json:"accountCode"`
	Debit       money.Amount `json:"debitCents"`
	Credit      money.Amount `json:"creditCents"`
}

// Totals returns the debit and credit sums of lines.
func Totals(lines []Line) (debit, credit money.Amount, err error) {
	for _, line := range lines {
		if debit, err = debit.Add(line.Debit); err != nil {
			return 0, 0, err
		}
		if credit, err = credit.Add(line.Credit); err != nil {
			return 0, 0, err
		}
	}
	return debit, credit, nil
}

// Balanced reports whether the entry's debits equal its credits.
func (e Entry) Balanced() bool {
	debit, credit, err := Totals(e.Lines)
	return err == nil && debit == credit
}

var (
	// ErrUnbalanced indicates debit != credit. Always a programming defect.
	ErrUnbalanced = fmt.Errorf("%w: ledger lines must balance", shared.ErrIntegrity)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: ledger entry requires at least two lines", shared.ErrIntegrity)
	// ErrInvalidLine indicates a line without account, with a negative amount,
	// or with both or neither side set.
	ErrInvalidLine = fmt.Errorf("%w: invalid ledger line", shared.ErrIntegrity)
	// ErrInvalidSource indicates an unknown source type or missing source id.
	ErrInvalidSource = fmt.Errorf("%w: invalid ledger source", shared.ErrValidation)
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = fmt.Errorf("%w: ledger entry", shared.ErrNotFound)
	// ErrSourceConflict indicates another transaction linked the same source
	// first. Retrying the transaction returns the winner's entry.
	ErrSourceConflict = fmt.Errorf("%w: ledger source already posted", shared.ErrTransient)
)
