package inventory

import (
	"time"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
)

// MovementRecordedEvent represents a valued movement ready for ledger posting.
type MovementRecordedEvent struct {
	BusinessID int64
	MovementID int64
	ProductID  int64
	ActorID    int64
	Type       MovementType
	// Delta is signed: negative for stock leaving.
	Delta     int64
	UnitCost  money.Amount
	CreatedAt time.Time
}

// ConsumedLine is one consumed reservation valued at average cost.
type ConsumedLine struct {
	ProductID int64
	Quantity  int64
	UnitCost  money.Amount
}

// StockConsumedEvent is emitted once per invoice when reservations are consumed.
type StockConsumedEvent struct {
	BusinessID int64
	InvoiceID  int64
	ActorID    int64
	Lines      []ConsumedLine
	ConsumedAt time.Time
}

// Cost returns the sum of quantity times average cost.
func (e StockConsumedEvent) Cost() (money.Amount, error) {
	var total money.Amount
	for _, line := range e.Lines {
		value, err := line.UnitCost.Mul(line.Quantity)
		if err != nil {
			return 0, err
		}
		if total, err = total.Add(value); err != nil {
			return 0, err
		}
	}
	return total, nil
}
