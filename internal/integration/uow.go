package integration

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice-billing/internal/billing"
	"github.com/odyssey-erp/backoffice-billing/internal/inventory"
	"github.com/odyssey-erp/backoffice-billing/internal/ledger"
	"github.com/odyssey-erp/backoffice-billing/internal/numbering"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
)

// UnitOfWork binds billing, numbering, inventory and ledger queries to one
// PostgreSQL transaction.
type UnitOfWork struct {
	pool   *pgxpool.Pool
	opts   db.TxOptions
	ledger Ledger
	logger *slog.Logger
}

// NewUnitOfWork constructs UnitOfWork.
func NewUnitOfWork(pool *pgxpool.Pool, opts db.TxOptions, l Ledger, logger *slog.Logger) *UnitOfWork {
	return &UnitOfWork{pool: pool, opts: opts, ledger: l, logger: logger}
}

// WithTx implements billing.UnitOfWork. Transient failures re-run fn.
func (u *UnitOfWork) WithTx(ctx context.Context, fn func(context.Context, billing.Tx) error) error {
	return db.WithTx(ctx, u.pool, u.opts, func(tx pgx.Tx) error {
		return fn(ctx, Bind(tx, u.ledger, u.logger))
	})
}

// Bind assembles a billing.Tx over conn.
func Bind(conn db.DBTX, l Ledger, logger *slog.Logger) billing.Tx {
	store := billing.NewStore(conn)
	hooks := NewHooks(l, ledger.NewTxRepository(conn), store.Settings, logger)
	return &pgTx{
		PGStore:   store,
		numbers:   numbering.New(numbering.NewRepository(conn)),
		inventory: inventory.NewTx(conn, func(db.DBTX) inventory.IntegrationHandler { return hooks }),
		hooks:     hooks,
	}
}

type pgTx struct {
	*billing.PGStore
	numbers   *numbering.Numberer
	inventory inventory.Tx
	hooks     *Hooks
}

func (t *pgTx) Numbers() billing.Numberer { return t.numbers }
func (t *pgTx) Inventory() inventory.Tx { return t.inventory }
func (t *pgTx) Ledger() billing.LedgerPort { return t.hooks }
