// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/backoffice-billing/internal/inventory"
	"github.com/odyssey-erp/backoffice-billing/internal/money"
)

// Memory implements inventory.Repository. WithTx serialises callers and
// rolls back on error.
type Memory struct {
	mu           sync.Mutex
	handler      inventory.IntegrationHandler
	products     map[int64]inventory.Product
	stock        map[int64]inventory.StockState
	movements    []inventory.Movement
	reservations []inventory.Reservation
	nextID       int64
}

// New returns an empty store. handler may be nil.
func New(handler inventory.IntegrationHandler) *Memory {
	return &Memory{
		handler:  handler,
		products: map[int64]inventory.Product{},
		stock:    map[int64]inventory.StockState{},
	}
}

// AddProduct registers a catalog product.
func (m *Memory) AddProduct(p inventory.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// SetStock overwrites the stock row of a product.
func (m *Memory) SetStock(state inventory.StockState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[state.ProductID] = state
}

// Stock returns the stored stock row.
func (m *Memory) Stock(productID int64) inventory.StockState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[productID]
}

// Reservations returns the markers of an invoice.
func (m *Memory) Reservations(invoiceID int64) []inventory.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []inventory.Reservation
	for _, r := range m.reservations {
		if r.InvoiceID == invoiceID {
			out = append(out, r)
		}
	}
	return out
}

// Movements returns every recorded movement.
func (m *Memory) Movements() []inventory.Movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]inventory.Movement(nil), m.movements...)
}

// WithTx implements inventory.Repository.
func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, inventory.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	restore := m.Snapshot()
	if err := fn(ctx, m.Tx(m.handler)); err != nil {
		restore()
		return err
	}
	return nil
}

// GetStock implements inventory.Repository.
func (m *Memory) GetStock(_ context.Context, businessID, productID int64) (inventory.StockState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.BusinessID != businessID {
		return inventory.StockState{}, inventory.ErrProductNotFound
	}
	state, ok := m.stock[productID]
	if !ok {
		state = inventory.StockState{BusinessID: businessID, ProductID: productID}
	}
	return state, nil
}

// Tx returns a lock-free transaction view for callers that already serialise
// access.
func (m *Memory) Tx(handler inventory.IntegrationHandler) inventory.Tx {
	return &memoryTx{m: m, handler: handler}
}

// Snapshot captures the current state and returns a function restoring it.
func (m *Memory) Snapshot() func() {
	products := make(map[int64]inventory.Product, len(m.products))
	for k, v := range m.products {
		products[k] = v
	}
	stock := make(map[int64]inventory.StockState, len(m.stock))
	for k, v := range m.stock {
		stock[k] = v
	}
	movements := append([]inventory.Movement(nil), m.movements...)
	reservations := append([]inventory.Reservation(nil), m.reservations...)
	nextID := m.nextID
	return func() {
		m.products = products
		m.stock = stock
		m.movements = movements
		m.reservations = reservations
		m.nextID = nextID
	}
}

type memoryTx struct {
	m       *Memory
	handler inventory.IntegrationHandler
}

func (tx *memoryTx) Integration() inventory.IntegrationHandler {
	return tx.handler
}

func (tx *memoryTx) GetProduct(_ context.Context, businessID, productID int64) (inventory.Product, error) {
	p, ok := tx.m.products[productID]
	if !ok || p.BusinessID != businessID {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (tx *memoryTx) LockStock(_ context.Context, businessID, productID int64) (inventory.StockState, error) {
	state, ok := tx.m.stock[productID]
	if !ok {
		state = inventory.StockState{BusinessID: businessID, ProductID: productID}
		tx.m.stock[productID] = state
	}
	return state, nil
}

func (tx *memoryTx) SaveStock(_ context.Context, state inventory.StockState) error {
	tx.m.stock[state.ProductID] = state
	return nil
}

func (tx *memoryTx) FindMovementByKey(_ context.Context, businessID int64, key string) (inventory.Movement, error) {
	for _, mv := range tx.m.movements {
		if mv.BusinessID == businessID && mv.IdempotencyKey == key {
			return mv, nil
		}
	}
	return inventory.Movement{}, inventory.ErrMovementNotFound
}

func (tx *memoryTx) InsertMovement(_ context.Context, mv inventory.Movement) (inventory.Movement, error) {
	if mv.IdempotencyKey != "" {
		for _, existing := range tx.m.movements {
			if existing.BusinessID == mv.BusinessID && existing.IdempotencyKey == mv.IdempotencyKey {
				return inventory.Movement{}, inventory.ErrKeyTaken
			}
		}
	}
	tx.m.nextID++
	mv.ID = tx.m.nextID
	tx.m.movements = append(tx.m.movements, mv)
	return mv, nil
}

func (tx *memoryTx) SetMovementLedgerEntry(_ context.Context, movementID, entryID int64) error {
	for i := range tx.m.movements {
		if tx.m.movements[i].ID == movementID {
			id := entryID
			tx.m.movements[i].LedgerEntryID = &id
			return nil
		}
	}
	return inventory.ErrMovementNotFound
}

func (tx *memoryTx) HasReservations(_ context.Context, invoiceID int64) (bool, error) {
	for _, r := range tx.m.reservations {
		if r.InvoiceID == invoiceID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertReservation(_ context.Context, res inventory.Reservation) error {
	tx.m.nextID++
	res.ID = tx.m.nextID
	res.Status = inventory.ReservationReserved
	tx.m.reservations = append(tx.m.reservations, res)
	return nil
}

func (tx *memoryTx) LockReservations(_ context.Context, invoiceID int64, status inventory.ReservationStatus) ([]inventory.Reservation, error) {
	var out []inventory.Reservation
	for _, r := range tx.m.reservations {
		if r.InvoiceID == invoiceID && r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (tx *memoryTx) SetReservationStatus(_ context.Context, id int64, status inventory.ReservationStatus, unitCost money.Amount) error {
	for i := range tx.m.reservations {
		if tx.m.reservations[i].ID == id {
			tx.m.reservations[i].Status = status
			tx.m.reservations[i].UnitCost = unitCost
			return nil
		}
	}
	return nil
}
