// Package settings reads per-business billing settings maintained by the
// back office.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// Settings is read-only to the billing core.
type Settings struct {
	BusinessID    int64
	QuotePrefix   string
	InvoicePrefix string
	VATEnabled    bool
	VATRate       money.Rate

	CashAccount            string
	SalesAccount           string
	VATCollectedAccount    string
	InventoryAccount       string
	COGSAccount            string
	StockFundingAccount    string
	StockAdjustmentAccount string
}

// ErrNotFound indicates the business has no settings row.
var ErrNotFound = fmt.Errorf("%w: business settings", shared.ErrNotFound)

// Defaults returns the settings a freshly created business starts with.
func Defaults(businessID int64) Settings {
	return Settings{
		BusinessID:             businessID,
		QuotePrefix:            "QT",
		InvoicePrefix:          "INV",
		CashAccount:            "512",
		SalesAccount:           "706",
		VATCollectedAccount:    "44571",
		InventoryAccount:       "37",
		COGSAccount:            "607",
		StockFundingAccount:    "401",
		StockAdjustmentAccount: "6037",
	}
}

// Repository loads settings from business_settings.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository on a pool or transaction.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Get returns the settings for businessID.
func (r *Repository) Get(ctx context.Context, businessID int64) (Settings, error) {
	s := Settings{BusinessID: businessID}
	var rateBps int64
	err := r.db.QueryRow(ctx, `SELECT quote_prefix, invoice_prefix, vat_enabled, vat_rate_bps,
ledger_cash_account_code, ledger_sales_account_code, ledger_vat_collected_account_code,
ledger_inventory_account_code, ledger_cogs_account_code, ledger_stock_funding_account_code, ledger_stock_adjustment_account_code
FROM business_settings WHERE business_id=$1`, businessID).Scan(
		&s.QuotePrefix, &s.InvoicePrefix, &s.VATEnabled, &rateBps,
		&s.CashAccount, &s.SalesAccount, &s.VATCollectedAccount,
		&s.InventoryAccount, &s.COGSAccount, &s.StockFundingAccount, &s.StockAdjustmentAccount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, ErrNotFound
		}
		return Settings{}, err
	}
	s.VATRate = money.Rate(rateBps)
	if err := s.VATRate.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: business %d: %w", shared.ErrIntegrity, businessID, err)
	}
	return s, nil
}
