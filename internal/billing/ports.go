package billing

import (
	"context"
	"time"

	"github.com/odyssey-erp/backoffice-billing/internal/inventory"
	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/numbering"
	"github.com/odyssey-erp/backoffice-billing/internal/settings"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// Store exposes billing queries inside a transaction.
type Store interface {
	Settings(ctx context.Context, businessID int64) (settings.Settings, error)
	GetProject(ctx context.Context, businessID, projectID int64, forUpdate bool) (Project, error)
	UpdateProjectDeposit(ctx context.Context, p Project) error
	ListProjectServices(ctx context.Context, businessID, projectID int64) ([]ProjectService, error)

	InsertQuote(ctx context.Context, q Quote) (Quote, error)
	GetQuote(ctx context.Context, businessID, quoteID int64, forUpdate bool) (Quote, error)
	UpdateQuote(ctx context.Context, q Quote) error
	ListQuotes(ctx context.Context, businessID, projectID int64) ([]Quote, error)

	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, businessID, invoiceID int64, forUpdate bool) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice, itemsChanged bool) error
	ListInvoices(ctx context.Context, businessID, projectID int64) ([]Invoice, error)
}

// Numberer mints document numbers.
type Numberer interface {
	Next(ctx context.Context, businessID int64, kind numbering.Kind, year int, prefix string) (string, error)
}

// CashSaleEvent is emitted the first time an invoice is paid.
type CashSaleEvent struct {
	BusinessID int64
	InvoiceID  int64
	ActorID    int64
	Number     string
	Total      money.Amount
	PaidAt     time.Time
}

// LedgerPort posts billing events inside the transaction.
type LedgerPort interface {
	PostCashSale(ctx context.Context, evt CashSaleEvent) (int64, error)
}

// Tx is one unit of work: billing queries, numbering, inventory and ledger
// all bound to the same database transaction.
type Tx interface {
	Store
	Numbers() Numberer
	Inventory() inventory.Tx
	Ledger() LedgerPort
}

// UnitOfWork runs fn in a transaction, retrying transient failures.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// StockEngine reserves and consumes stock for invoices.
type StockEngine interface {
	ReserveTx(ctx context.Context, tx inventory.Tx, businessID, invoiceID int64, lines []inventory.DemandLine) ([]inventory.Reservation, error)
	ConsumeTx(ctx context.Context, tx inventory.Tx, businessID, invoiceID, actorID int64) ([]inventory.Reservation, error)
	ReleaseTx(ctx context.Context, tx inventory.Tx, businessID, invoiceID int64) ([]inventory.Reservation, error)
}

// DocumentLocker serialises transitions on one document across processes.
type DocumentLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics observes lifecycle transitions.
type Metrics interface {
	ObserveTransition(document, from, to string)
}
