package inventory

import (
	"context"

	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
)

// IntegrationHandler receives inventory events for financial integration. It
// runs inside the transaction that produced the event.
type IntegrationHandler interface {
	// HandleMovementRecorded posts the stock-movement entry and returns its id.
	HandleMovementRecorded(ctx context.Context, evt MovementRecordedEvent) (int64, error)
	HandleStockConsumed(ctx context.Context, evt StockConsumedEvent) error
}

// HandlerFactory binds an IntegrationHandler to an open transaction.
type HandlerFactory func(conn db.DBTX) IntegrationHandler
