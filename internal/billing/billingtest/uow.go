package billingtest

import (
	"context"
	"sync"

	"github.com/odyssey-erp/backoffice-billing/internal/billing"
	"github.com/odyssey-erp/backoffice-billing/internal/inventory"
	"github.com/odyssey-erp/backoffice-billing/internal/inventory/inventorytest"
	"github.com/odyssey-erp/backoffice-billing/internal/ledger"
	"github.com/odyssey-erp/backoffice-billing/internal/ledger/ledgertest"
	"github.com/odyssey-erp/backoffice-billing/internal/numbering"
)

// Binder builds the integration ports for one transaction from the stores
// bound to it.
type Binder func(store billing.Store, ledgerTx ledger.TxRepository) (billing.LedgerPort, inventory.IntegrationHandler)

// UnitOfWork composes the memory stores into billing.UnitOfWork. A failing
// callback rolls every store back.
type UnitOfWork struct {
	mu     sync.Mutex
	Docs   *Memory
	Stock  *inventorytest.Memory
	Ledger *ledgertest.Memory
	Bind   Binder
}

// NewUnitOfWork wires fresh stores together.
func NewUnitOfWork(bind Binder) *UnitOfWork {
	return &UnitOfWork{
		Docs:   New(),
		Stock:  inventorytest.New(nil),
		Ledger: ledgertest.New(),
		Bind:   bind,
	}
}

// WithTx implements billing.UnitOfWork.
func (u *UnitOfWork) WithTx(ctx context.Context, fn func(context.Context, billing.Tx) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	restores := []func(){u.Docs.Snapshot(), u.Stock.Snapshot(), u.Ledger.Snapshot()}

	tx := &memoryTx{Memory: u.Docs, numbers: numbering.New(u.Docs)}
	var handler inventory.IntegrationHandler
	if u.Bind != nil {
		tx.ledger, handler = u.Bind(u.Docs, u.Ledger.Tx())
	}
	tx.inventory = u.Stock.Tx(handler)

	if err := fn(ctx, tx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

type memoryTx struct {
	*Memory
	numbers   *numbering.Numberer
	inventory inventory.Tx
	ledger    billing.LedgerPort
}

func (t *memoryTx) Numbers() billing.Numberer { return t.numbers }
func (t *memoryTx) Inventory() inventory.Tx { return t.inventory }
func (t *memoryTx) Ledger() billing.LedgerPort { return t.ledger }
