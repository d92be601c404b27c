// Package integration posts billing and inventory events to the ledger
// inside the transaction that produced them.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/backoffice-billing/internal/billing"
	"github.com/odyssey-erp/backoffice-billing/internal/inventory"
	"github.com/odyssey-erp/backoffice-billing/internal/ledger"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
	"github.com/odyssey-erp/backoffice-billing/internal/settings"
)

// Ledger exposes the transactional posting operation.
type Ledger interface {
	PostTx(ctx context.Context, tx ledger.TxRepository, in ledger.PostingInput) (ledger.Entry, bool, error)
}

// SettingsFunc resolves account codes and VAT for a business.
type SettingsFunc func(ctx context.Context, businessID int64) (settings.Settings, error)

// Hooks wires domain events from operational modules into the ledger. One
// Hooks value is bound to one transaction.
type Hooks struct {
	ledger   Ledger
	tx       ledger.TxRepository
	settings SettingsFunc
	logger   *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(l Ledger, tx ledger.TxRepository, settings SettingsFunc, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: l, tx: tx, settings: settings, logger: logger}
}

// HandlerFactory binds hooks to the transaction inventory opens itself, as in
// recordMovement.
func HandlerFactory(l Ledger, logger *slog.Logger) inventory.HandlerFactory {
	return func(conn db.DBTX) inventory.IntegrationHandler {
		return NewHooks(l, ledger.NewTxRepository(conn), settings.NewRepository(conn).Get, logger)
	}
}

func (h *Hooks) post(ctx context.Context, in ledger.PostingInput) (int64, error) {
	if h == nil || h.ledger == nil || h.tx == nil {
		return 0, errors.New("integration: ledger not configured")
	}
	entry, created, err := h.ledger.PostTx(ctx, h.tx, in)
	if err != nil {
		return 0, err
	}
	if created {
		h.logger.Info("ledger entry posted",
			slog.Int64("entry_id", entry.ID),
			slog.String("source_type", string(in.SourceType)),
			slog.Int64("source_id", in.SourceID))
	}
	return entry.ID, nil
}

// PostCashSale posts the cash sale of a paid invoice.
func (h *Hooks) PostCashSale(ctx context.Context, evt billing.CashSaleEvent) (int64, error) {
	cfg, err := h.settings(ctx, evt.BusinessID)
	if err != nil {
		return 0, err
	}
	lines, err := CashSaleLines(cfg, evt.Total)
	if err != nil {
		return 0, err
	}
	return h.post(ctx, ledger.PostingInput{
		BusinessID: evt.BusinessID,
		SourceType: ledger.SourceInvoiceCashSale,
		SourceID:   evt.InvoiceID,
		Memo:       fmt.Sprintf("Invoice %s cash sale", evt.Number),
		PostedBy:   evt.ActorID,
		Lines:      lines,
	})
}

// HandleMovementRecorded posts a valued stock movement. Zero-value movements
// post nothing and return 0.
func (h *Hooks) HandleMovementRecorded(ctx context.Context, evt inventory.MovementRecordedEvent) (int64, error) {
	cfg, err := h.settings(ctx, evt.BusinessID)
	if err != nil {
		return 0, err
	}
	lines, err := MovementLines(cfg, evt.Delta, evt.UnitCost)
	if err != nil || lines == nil {
		return 0, err
	}
	return h.post(ctx, ledger.PostingInput{
		BusinessID: evt.BusinessID,
		SourceType: ledger.SourceInventoryMovement,
		SourceID:   evt.MovementID,
		Memo:       fmt.Sprintf("Stock %s product %d qty %d", evt.Type, evt.ProductID, evt.Delta),
		PostedBy:   evt.ActorID,
		Lines:      lines,
	})
}

// HandleStockConsumed posts cost of goods sold for a paid invoice.
func (h *Hooks) HandleStockConsumed(ctx context.Context, evt inventory.StockConsumedEvent) error {
	cost, err := evt.Cost()
	if err != nil {
		return err
	}
	if cost == 0 {
		return nil
	}
	cfg, err := h.settings(ctx, evt.BusinessID)
	if err != nil {
		return err
	}
	_, err = h.post(ctx, ledger.PostingInput{
		BusinessID: evt.BusinessID,
		SourceType: ledger.SourceInvoiceStockConsumption,
		SourceID:   evt.InvoiceID,
		Memo:       fmt.Sprintf("COGS invoice %d", evt.InvoiceID),
		PostedBy:   evt.ActorID,
		Lines:      COGSLines(cfg, cost),
	})
	return err
}

var (
	_ billing.LedgerPort           = (*Hooks)(nil)
	_ inventory.IntegrationHandler = (*Hooks)(nil)
)
