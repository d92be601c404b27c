package inventory

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement.
	MovementOut MovementType = "OUT"
	// MovementAdjust carries a signed delta.
	MovementAdjust MovementType = "ADJUST"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjust:
		return true
	}
	return false
}

// ReservationStatus tracks a reservation marker.
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationConsumed ReservationStatus = "CONSUMED"
	ReservationReleased ReservationStatus = "RELEASED"
)

// Product is the slice of the catalog the engine needs.
type Product struct {
	ID           int64
	BusinessID   int64
	Name         string
	StockTracked bool
}

// StockState summarises stock per product.
type StockState struct {
	BusinessID int64        `json:"businessId"`
	ProductID  int64        `json:"productId"`
	OnHand     int64        `json:"onHand"`
	Reserved   int64        `json:"reserved"`
	AvgCost    money.Amount `json:"avgCostCents"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// Available is the quantity that can still be reserved.
func (s StockState) Available() int64 {
	return s.OnHand - s.Reserved
}

// Movement models one stock movement.
type Movement struct {
	ID             int64         `json:"id"`
	BusinessID     int64         `json:"businessId"`
	ProductID      int64         `json:"productId"`
	Type           MovementType  `json:"type"`
	Quantity       int64         `json:"quantity"`
	UnitCost       *money.Amount `json:"unitCostCents"`
	Note           string        `json:"note,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey,omitempty"`
	LedgerEntryID  *int64        `json:"ledgerEntryId"`
	CreatedBy      int64         `json:"createdBy,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Delta is the signed change the movement applies to on-hand stock.
func (m Movement) Delta() int64 {
	if m.Type == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}

// Reservation marks stock held for one invoice line product.
type Reservation struct {
	ID         int64
	BusinessID int64
	InvoiceID  int64
	ProductID  int64
	Quantity   int64
	Status     ReservationStatus
	// UnitCost is the average cost captured at consumption.
	UnitCost money.Amount
}

// DemandLine is one invoice line's stock demand.
type DemandLine struct {
	ProductID int64
	Quantity  int64
}

// RecordMovementInput describes a movement request.
type RecordMovementInput struct {
	BusinessID         int64
	ProductID          int64
	ActorID            int64
	Type               MovementType
	Quantity           int64
	UnitCost           *money.Amount
	CreateFinanceEntry bool
	Note               string
	IdempotencyKey     string
}

// InsufficientStockError reports the first product short of stock.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Unwrap lets errors.Is match shared.ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrInsufficientStock
}

var (
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: invalid quantity", shared.ErrValidation)
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = fmt.Errorf("%w: inventory: unit cost must be >= 0", shared.ErrValidation)
	// ErrInvalidMovementType rejects unknown movement types.
	ErrInvalidMovementType = fmt.Errorf("%w: inventory: movement type must be IN, OUT or ADJUST", shared.ErrValidation)
	// ErrInvalidIdempotencyKey rejects keys that are not UUIDs.
	ErrInvalidIdempotencyKey = fmt.Errorf("%w: inventory: idempotency key must be a UUID", shared.ErrValidation)
	// ErrFinanceEntryUnsupported rejects finance entries for OUT movements.
	ErrFinanceEntryUnsupported = fmt.Errorf("%w: inventory: finance entry is only available for IN and ADJUST", shared.ErrValidation)
	// ErrProductNotTracked rejects movements on products without stock tracking.
	ErrProductNotTracked = fmt.Errorf("%w: inventory: product is not stock tracked", shared.ErrValidation)
	// ErrProductNotFound indicates a product outside the caller's business.
	ErrProductNotFound = fmt.Errorf("%w: product", shared.ErrNotFound)
	// ErrMovementNotFound is returned by idempotency lookups.
	ErrMovementNotFound = fmt.Errorf("%w: inventory movement", shared.ErrNotFound)
	// ErrIdempotencyMismatch flags a reused key with a different payload.
	ErrIdempotencyMismatch = fmt.Errorf("%w: inventory: idempotency key reused with a different request", shared.ErrConflict)
	// ErrKeyTaken reports a concurrent insert with the same idempotency key.
	ErrKeyTaken = fmt.Errorf("%w: inventory: idempotency key race", shared.ErrTransient)
	// ErrStockDrift means stored counters broke onHand >= reserved >= 0.
	ErrStockDrift = fmt.Errorf("%w: inventory: stock counters drifted", shared.ErrIntegrity)
)
