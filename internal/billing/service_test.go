package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice-billing/internal/billing"
	"github.com/odyssey-erp/backoffice-billing/internal/billing/billingtest"
	"github.com/odyssey-erp/backoffice-billing/internal/integration"
	"github.com/odyssey-erp/backoffice-billing/internal/inventory"
	"github.com/odyssey-erp/backoffice-billing/internal/ledger"
	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/settings"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

const (
	businessID = int64(1)
	projectID  = int64(10)
	widgetID   = int64(100)
)

var caller = shared.Identity{BusinessID: businessID, ActorID: 7}

type fixture struct {
	uow     *billingtest.UnitOfWork
	svc     *billing.Service
	ledger  *ledger.Service
	metrics *transitionRecorder
}

type transitionRecorder struct {
	seen []string
}

func (r *transitionRecorder) ObserveTransition(document, from, to string) {
	r.seen = append(r.seen, document+":"+from+">"+to)
}

// newFixture seeds a project worth 10000 cents: 6000 of design work plus two
// stock-tracked widgets at 2000.
func newFixture(t *testing.T, cfg billing.Config) *fixture {
	t.Helper()
	f := &fixture{uow: billingtest.NewUnitOfWork(nil), metrics: &transitionRecorder{}}
	f.ledger = ledger.NewService(f.uow.Ledger, nil, nil).WithNow(func() time.Time { return fixedNow })
	f.uow.Bind = func(store billing.Store, ltx ledger.TxRepository) (billing.LedgerPort, inventory.IntegrationHandler) {
		hooks := integration.NewHooks(f.ledger, ltx, store.Settings, nil)
		return hooks, hooks
	}
	stock := inventory.NewService(f.uow.Stock, nil, nil).WithNow(func() time.Time { return fixedNow })
	f.svc = billing.NewService(f.uow, stock, nil, cfg, nil).
		WithNow(func() time.Time { return fixedNow }).
		WithMetrics(f.metrics)

	f.uow.Docs.AddProject(billing.Project{ID: projectID, BusinessID: businessID, Name: "Kitchen"})
	f.uow.Docs.AddServices(projectID,
		billing.ProjectService{Label: "Design", UnitPrice: 6000, Quantity: 1},
		billing.ProjectService{Label: "Widget", UnitPrice: 2000, Quantity: 2, ProductID: ptr(widgetID)},
	)
	f.uow.Stock.AddProduct(inventory.Product{ID: widgetID, BusinessID: businessID, Name: "Widget", StockTracked: true})
	f.uow.Stock.SetStock(inventory.StockState{BusinessID: businessID, ProductID: widgetID, OnHand: 10, AvgCost: 500})
	return f
}

func (f *fixture) signedQuote(t *testing.T) billing.Quote {
	t.Helper()
	ctx := context.Background()
	q, err := f.svc.CreateQuote(ctx, caller, projectID)
	require.NoError(t, err)
	_, err = f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteSent)})
	require.NoError(t, err)
	q, err = f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteSigned)})
	require.NoError(t, err)
	return q
}

func (f *fixture) patchInvoice(t *testing.T, id int64, status billing.InvoiceStatus) billing.Invoice {
	t.Helper()
	inv, err := f.svc.PatchInvoice(context.Background(), caller, id, billing.InvoicePatch{Status: ptr(status)})
	require.NoError(t, err)
	return inv
}

func TestQuoteLifecycle(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()

	q, err := f.svc.CreateQuote(ctx, caller, projectID)
	require.NoError(t, err)
	require.Equal(t, billing.QuoteDraft, q.Status)
	require.Nil(t, q.Number)
	require.Equal(t, money.FromCents(10000), q.Total)
	require.Len(t, q.Items, 2)
	require.Equal(t, money.FromCents(4000), q.Items[1].Total)

	sent, err := f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteSent)})
	require.NoError(t, err)
	require.Equal(t, "QT-2026-0001", *sent.Number)

	again, err := f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteSent)})
	require.NoError(t, err)
	require.Equal(t, *sent.Number, *again.Number)

	signed, err := f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteSigned)})
	require.NoError(t, err)
	require.Equal(t, fixedNow, *signed.SignedAt)
	require.Equal(t, *sent.Number, *signed.Number)

	_, err = f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Note: ptr("late")})
	require.ErrorIs(t, err, billing.ErrNoteLocked)

	_, err = f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteCancelled)})
	require.ErrorIs(t, err, billing.ErrCancelReasonRequired)

	cancelled, err := f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteCancelled), CancelReason: ptr("budget cut")})
	require.NoError(t, err)
	require.Equal(t, "budget cut", *cancelled.CancelReason)

	_, err = f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteSigned)})
	require.ErrorIs(t, err, billing.ErrInvalidTransition)

	require.Equal(t, []string{"quote:DRAFT>SENT", "quote:SENT>SIGNED", "quote:SIGNED>CANCELLED"}, f.metrics.seen)
}

func TestQuoteScopedToBusiness(t *testing.T) {
	f := newFixture(t, billing.Config{})
	q, err := f.svc.CreateQuote(context.Background(), caller, projectID)
	require.NoError(t, err)

	_, err = f.svc.GetQuote(context.Background(), 2, q.ID)
	require.ErrorIs(t, err, billing.ErrQuoteNotFound)
	_, err = f.svc.CreateQuote(context.Background(), shared.Identity{BusinessID: 2}, projectID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentSendsMintDistinctNumbers(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	ids := make([]int64, 12)
	for i := range ids {
		q, err := f.svc.CreateQuote(ctx, caller, projectID)
		require.NoError(t, err)
		ids[i] = q.ID
	}

	numbers := make([]string, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			q, err := f.svc.PatchQuote(ctx, caller, id, billing.QuotePatch{Status: ptr(billing.QuoteSent)})
			if err != nil {
				return err
			}
			numbers[i] = *q.Number
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, n := range numbers {
		require.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	require.True(t, seen["QT-2026-0001"])
	require.True(t, seen["QT-2026-0012"])
}

func TestInvoiceFromQuoteOnlyOnce(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	q := f.signedQuote(t)

	inv, err := f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.NoError(t, err)
	require.Equal(t, billing.InvoiceDraft, inv.Status)
	require.Equal(t, q.ID, *inv.QuoteID)
	require.Equal(t, money.FromCents(10000), inv.Total)
	require.Nil(t, inv.Number)

	_, err = f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.ErrorIs(t, err, billing.ErrQuoteInvoiced)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteCancelled), CancelReason: ptr("x")})
	require.ErrorIs(t, err, billing.ErrQuoteInvoiced)
}

func TestInvoiceFromSentQuoteNeedsFlag(t *testing.T) {
	for _, allow := range []bool{false, true} {
		f := newFixture(t, billing.Config{AllowInvoiceFromSentQuote: allow})
		ctx := context.Background()
		q, err := f.svc.CreateQuote(ctx, caller, projectID)
		require.NoError(t, err)
		_, err = f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteSent)})
		require.NoError(t, err)

		_, err = f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
		if allow {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, billing.ErrQuoteNotBillable)
		}
	}
}

func TestInvoiceFromQuoteRejectsDoubleInvoicing(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	q := f.signedQuote(t)

	_, err := f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StagePercent, Value: "60"})
	require.NoError(t, err)

	_, err = f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.ErrorIs(t, err, billing.ErrDoubleInvoicing)
}

func TestSendReservesAndPayConsumesOnce(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	q := f.signedQuote(t)
	inv, err := f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.NoError(t, err)

	sent := f.patchInvoice(t, inv.ID, billing.InvoiceSent)
	require.Equal(t, "INV-2026-0001", *sent.Number)
	stock := f.uow.Stock.Stock(widgetID)
	require.Equal(t, int64(10), stock.OnHand)
	require.Equal(t, int64(2), stock.Reserved)

	resent := f.patchInvoice(t, inv.ID, billing.InvoiceSent)
	require.Equal(t, *sent.Number, *resent.Number)
	require.Equal(t, int64(2), f.uow.Stock.Stock(widgetID).Reserved)
	require.Len(t, f.uow.Stock.Reservations(inv.ID), 1)

	paid := f.patchInvoice(t, inv.ID, billing.InvoicePaid)
	require.Equal(t, fixedNow, *paid.PaidAt)
	require.NotNil(t, paid.CashSaleLedgerEntryID)
	stock = f.uow.Stock.Stock(widgetID)
	require.Equal(t, int64(8), stock.OnHand)
	require.Equal(t, int64(0), stock.Reserved)

	repaid := f.patchInvoice(t, inv.ID, billing.InvoicePaid)
	require.Equal(t, *paid.CashSaleLedgerEntryID, *repaid.CashSaleLedgerEntryID)
	require.Equal(t, int64(8), f.uow.Stock.Stock(widgetID).OnHand)

	entries := f.uow.Ledger.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.True(t, e.Balanced(), "entry %d unbalanced", e.ID)
	}

	cogs, err := f.ledger.GetLedger(ctx, businessID, ledger.SourceInvoiceStockConsumption, inv.ID)
	require.NoError(t, err)
	require.Len(t, cogs, 1)
	require.Equal(t, []ledger.Line{
		{AccountCode: "607", Debit: 1000},
		{AccountCode: "37", Credit: 1000},
	}, cogs[0].Lines)

	sale, err := f.ledger.GetLedger(ctx, businessID, ledger.SourceInvoiceCashSale, inv.ID)
	require.NoError(t, err)
	require.Len(t, sale, 1)
	require.Equal(t, *paid.CashSaleLedgerEntryID, sale[0].ID)
	require.Equal(t, []ledger.Line{
		{AccountCode: "512", Debit: 10000},
		{AccountCode: "706", Credit: 10000},
	}, sale[0].Lines)
}

func TestCashSaleSplitsVAT(t *testing.T) {
	f := newFixture(t, billing.Config{})
	cfg := settings.Defaults(businessID)
	cfg.VATEnabled = true
	cfg.VATRate = 2000
	f.uow.Docs.SetSettings(cfg)
	ctx := context.Background()

	_ = f.signedQuote(t)
	inv, err := f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StageAmount, Value: "10000"})
	require.NoError(t, err)
	f.patchInvoice(t, inv.ID, billing.InvoiceSent)
	f.patchInvoice(t, inv.ID, billing.InvoicePaid)

	sale, err := f.ledger.GetLedger(ctx, businessID, ledger.SourceInvoiceCashSale, inv.ID)
	require.NoError(t, err)
	require.Len(t, sale, 1)
	require.Equal(t, []ledger.Line{
		{AccountCode: "512", Debit: 10000},
		{AccountCode: "706", Credit: 8333},
		{AccountCode: "44571", Credit: 1667},
	}, sale[0].Lines)
}

func TestCancelSentInvoiceReleasesStock(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	q := f.signedQuote(t)
	inv, err := f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.NoError(t, err)

	f.patchInvoice(t, inv.ID, billing.InvoiceSent)
	require.Equal(t, int64(2), f.uow.Stock.Stock(widgetID).Reserved)

	cancelled := f.patchInvoice(t, inv.ID, billing.InvoiceCancelled)
	require.Equal(t, billing.InvoiceCancelled, cancelled.Status)
	stock := f.uow.Stock.Stock(widgetID)
	require.Equal(t, int64(0), stock.Reserved)
	require.Equal(t, int64(10), stock.OnHand)
	require.Equal(t, inventory.ReservationReleased, f.uow.Stock.Reservations(inv.ID)[0].Status)

	_, err = f.svc.PatchInvoice(ctx, caller, inv.ID, billing.InvoicePatch{Status: ptr(billing.InvoicePaid)})
	require.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestSendWithoutStockRollsBack(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	f.uow.Stock.SetStock(inventory.StockState{BusinessID: businessID, ProductID: widgetID, OnHand: 1, AvgCost: 500})
	q := f.signedQuote(t)
	inv, err := f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.NoError(t, err)

	_, err = f.svc.PatchInvoice(ctx, caller, inv.ID, billing.InvoicePatch{Status: ptr(billing.InvoiceSent)})
	var short *inventory.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, int64(1), short.Available)

	current, err := f.svc.GetInvoice(ctx, businessID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, billing.InvoiceDraft, current.Status)
	require.Nil(t, current.Number)

	f.uow.Stock.SetStock(inventory.StockState{BusinessID: businessID, ProductID: widgetID, OnHand: 5, AvgCost: 500})
	sent := f.patchInvoice(t, inv.ID, billing.InvoiceSent)
	require.Equal(t, "INV-2026-0001", *sent.Number)
}

func TestDraftInvoiceItemsEditable(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	q := f.signedQuote(t)
	inv, err := f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.NoError(t, err)

	items := []billing.Item{{Label: "Discounted design", UnitPrice: 2500, Quantity: 2}}
	edited, err := f.svc.PatchInvoice(ctx, caller, inv.ID, billing.InvoicePatch{Items: &items})
	require.NoError(t, err)
	require.Equal(t, money.FromCents(5000), edited.Total)
	require.Len(t, edited.Items, 1)

	free := []billing.Item{{Label: "Goodwill", UnitPrice: 0, Quantity: 1}}
	_, err = f.svc.PatchInvoice(ctx, caller, inv.ID, billing.InvoicePatch{Items: &free, Status: ptr(billing.InvoiceSent)})
	require.ErrorIs(t, err, billing.ErrZeroTotal)

	f.patchInvoice(t, inv.ID, billing.InvoiceSent)
	_, err = f.svc.PatchInvoice(ctx, caller, inv.ID, billing.InvoicePatch{Items: &items})
	require.ErrorIs(t, err, billing.ErrItemsLocked)
}

func TestDraftItemsEditCannotExceedSignedTotal(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	_ = f.signedQuote(t)

	inv, err := f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StageAmount, Value: "7500"})
	require.NoError(t, err)

	over := []billing.Item{{Label: "Stage payment", UnitPrice: 50000, Quantity: 1}}
	_, err = f.svc.PatchInvoice(ctx, caller, inv.ID, billing.InvoicePatch{Items: &over})
	require.ErrorIs(t, err, billing.ErrOverInvoicing)
	require.ErrorIs(t, err, shared.ErrValidation)

	stored, err := f.svc.GetInvoice(ctx, businessID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, money.FromCents(7500), stored.Total)

	exact := []billing.Item{{Label: "Stage payment", UnitPrice: 5000, Quantity: 2}}
	edited, err := f.svc.PatchInvoice(ctx, caller, inv.ID, billing.InvoicePatch{Items: &exact})
	require.NoError(t, err)
	require.Equal(t, money.FromCents(10000), edited.Total)

	summary, err := f.svc.GetBillingSummary(ctx, businessID, projectID)
	require.NoError(t, err)
	require.Equal(t, money.FromCents(10000), summary.AlreadyInvoicedCents)
	require.Equal(t, money.Zero, summary.RemainingCents)
}

func TestDraftItemsEditBoundByOriginatingQuote(t *testing.T) {
	f := newFixture(t, billing.Config{AllowInvoiceFromSentQuote: true})
	ctx := context.Background()
	q, err := f.svc.CreateQuote(ctx, caller, projectID)
	require.NoError(t, err)
	_, err = f.svc.PatchQuote(ctx, caller, q.ID, billing.QuotePatch{Status: ptr(billing.QuoteSent)})
	require.NoError(t, err)
	inv, err := f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.NoError(t, err)

	over := []billing.Item{{Label: "Design", UnitPrice: 10001, Quantity: 1}}
	_, err = f.svc.PatchInvoice(ctx, caller, inv.ID, billing.InvoicePatch{Items: &over})
	require.ErrorIs(t, err, billing.ErrOverInvoicing)
}

func TestConcurrentPaymentsPostOnce(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	q := f.signedQuote(t)
	inv, err := f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.NoError(t, err)
	f.patchInvoice(t, inv.ID, billing.InvoiceSent)

	entryIDs := make([]int64, 8)
	var g errgroup.Group
	for i := range entryIDs {
		i := i
		g.Go(func() error {
			paid, err := f.svc.PatchInvoice(ctx, caller, inv.ID, billing.InvoicePatch{Status: ptr(billing.InvoicePaid)})
			if err != nil {
				return err
			}
			entryIDs[i] = *paid.CashSaleLedgerEntryID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range entryIDs {
		require.Equal(t, entryIDs[0], id)
	}
	sale, err := f.ledger.GetLedger(ctx, businessID, ledger.SourceInvoiceCashSale, inv.ID)
	require.NoError(t, err)
	require.Len(t, sale, 1)
	cogs, err := f.ledger.GetLedger(ctx, businessID, ledger.SourceInvoiceStockConsumption, inv.ID)
	require.NoError(t, err)
	require.Len(t, cogs, 1)

	stock := f.uow.Stock.Stock(widgetID)
	require.Equal(t, int64(8), stock.OnHand)
	require.Equal(t, int64(0), stock.Reserved)
}

func TestCancelledInvoiceKeepsQuoteInvoiced(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()
	q := f.signedQuote(t)
	inv, err := f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.NoError(t, err)
	f.patchInvoice(t, inv.ID, billing.InvoiceCancelled)

	_, err = f.svc.CreateInvoiceFromQuote(ctx, caller, q.ID)
	require.ErrorIs(t, err, billing.ErrQuoteInvoiced)

	staged, err := f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StagePercent, Value: "100"})
	require.NoError(t, err)
	require.Equal(t, money.FromCents(10000), staged.Total)
}

func TestStagedInvoicesAndSummary(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()

	_, err := f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StageAmount, Value: "2500"})
	require.ErrorIs(t, err, billing.ErrNoBillingQuote)

	q := f.signedQuote(t)
	first, err := f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StageAmount, Value: "2500"})
	require.NoError(t, err)
	require.Nil(t, first.QuoteID)
	require.Equal(t, billing.StageAmount, first.Stage.Mode)
	second, err := f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StageAmount, Value: "1500"})
	require.NoError(t, err)

	f.patchInvoice(t, first.ID, billing.InvoiceSent)
	f.patchInvoice(t, second.ID, billing.InvoiceSent)
	f.patchInvoice(t, second.ID, billing.InvoicePaid)

	summary, err := f.svc.GetBillingSummary(ctx, businessID, projectID)
	require.NoError(t, err)
	require.Equal(t, q.ID, *summary.BillingQuoteID)
	require.Equal(t, money.FromCents(10000), summary.TotalCents)
	require.Equal(t, money.FromCents(4000), summary.AlreadyInvoicedCents)
	require.Equal(t, money.FromCents(1500), summary.AlreadyPaidCents)
	require.Equal(t, money.FromCents(6000), summary.RemainingCents)
	require.Equal(t, money.FromCents(2500), summary.RemainingToCollectCents)

	_, err = f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StagePercent, Value: "60.01"})
	require.ErrorIs(t, err, billing.ErrOverInvoicing)
	require.ErrorIs(t, err, shared.ErrValidation)

	last, err := f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StagePercent, Value: "60"})
	require.NoError(t, err)
	require.Equal(t, money.FromCents(6000), last.Total)

	_, err = f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StageAmount, Value: "1"})
	require.ErrorIs(t, err, billing.ErrOverInvoicing)

	f.patchInvoice(t, last.ID, billing.InvoiceCancelled)
	_, err = f.svc.CreateStagedInvoice(ctx, caller, projectID, billing.StageRequest{Mode: billing.StageAmount, Value: "1"})
	require.NoError(t, err)
	require.Len(t, f.uow.Docs.Invoices(projectID), 4)
}

func TestProjectDeposit(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()

	_, err := f.svc.PatchProjectDeposit(ctx, caller, projectID, billing.DepositPatch{PaidAt: &fixedNow})
	require.ErrorIs(t, err, billing.ErrDepositPaidAtWithoutPaid)

	p, err := f.svc.PatchProjectDeposit(ctx, caller, projectID, billing.DepositPatch{Status: ptr(billing.DepositPaid)})
	require.NoError(t, err)
	require.Equal(t, billing.DepositPaid, p.DepositStatus)
	require.Equal(t, fixedNow, *p.DepositPaidAt)

	p, err = f.svc.PatchProjectDeposit(ctx, caller, projectID, billing.DepositPatch{Status: ptr(billing.DepositNone)})
	require.NoError(t, err)
	require.Nil(t, p.DepositPaidAt)
}
