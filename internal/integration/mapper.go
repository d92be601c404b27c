package integration

import (
	"github.com/odyssey-erp/backoffice-billing/internal/ledger"
	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/settings"
)

func debit(account string, amount money.Amount) ledger.Line {
	return ledger.Line{AccountCode: account, Debit: amount}
}

func credit(account string, amount money.Amount) ledger.Line {
	return ledger.Line{AccountCode: account, Credit: amount}
}

// CashSaleLines debits cash for the VAT-inclusive total and credits sales for
// the net, plus VAT collected when VAT applies.
func CashSaleLines(cfg settings.Settings, total money.Amount) ([]ledger.Line, error) {
	net, vat := total, money.Zero
	if cfg.VATEnabled && cfg.VATRate > 0 {
		var err error
		if net, vat, err = money.SplitInclusive(total, cfg.VATRate); err != nil {
			return nil, err
		}
	}
	lines := []ledger.Line{debit(cfg.CashAccount, total), credit(cfg.SalesAccount, net)}
	if vat > 0 {
		lines = append(lines, credit(cfg.VATCollectedAccount, vat))
	}
	return lines, nil
}

// MovementLines values delta units at unitCost. Incoming stock debits
// inventory against stock funding; outgoing stock debits the adjustment
// account. A zero value returns nil.
func MovementLines(cfg settings.Settings, delta int64, unitCost money.Amount) ([]ledger.Line, error) {
	qty := delta
	if qty < 0 {
		qty = -qty
	}
	value, err := unitCost.Mul(qty)
	if err != nil {
		return nil, err
	}
	if value == 0 {
		return nil, nil
	}
	if delta > 0 {
		return []ledger.Line{debit(cfg.InventoryAccount, value), credit(cfg.StockFundingAccount, value)}, nil
	}
	return []ledger.Line{debit(cfg.StockAdjustmentAccount, value), credit(cfg.InventoryAccount, value)}, nil
}

// COGSLines moves consumed stock value from inventory to cost of goods sold.
func COGSLines(cfg settings.Settings, cost money.Amount) []ledger.Line {
	return []ledger.Line{debit(cfg.COGSAccount, cost), credit(cfg.InventoryAccount, cost)}
}
