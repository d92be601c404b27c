package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice-billing/internal/inventory"
	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/numbering"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// Config groups optional behaviour switches.
type Config struct {
	// AllowInvoiceFromSentQuote lets createInvoiceFromQuote accept SENT quotes.
	AllowInvoiceFromSentQuote bool
}

// Service coordinates the billing lifecycle.
type Service struct {
	uow     UnitOfWork
	stock   StockEngine
	audit   AuditPort
	locker  DocumentLocker
	metrics Metrics
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group
}

// NewService builds Service. audit may be nil.
func NewService(uow UnitOfWork, stock StockEngine, audit AuditPort, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:    uow,
		stock:  stock,
		audit:  audit,
		cfg:    cfg,
		logger: logger,
		now:    nowUTC,
	}
}

// WithLocker installs a cross-process document lock.
func (s *Service) WithLocker(locker DocumentLocker) *Service {
	s.locker = locker
	return s
}

// WithMetrics installs a transition observer.
func (s *Service) WithMetrics(m Metrics) *Service {
	s.metrics = m
	return s
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateQuote snapshots the project's priced services into a DRAFT quote.
func (s *Service) CreateQuote(ctx context.Context, id shared.Identity, projectID int64) (Quote, error) {
	var quote Quote
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetProject(ctx, id.BusinessID, projectID, false); err != nil {
			return err
		}
		services, err := tx.ListProjectServices(ctx, id.BusinessID, projectID)
		if err != nil {
			return err
		}
		if len(services) == 0 {
			return ErrNoServices
		}
		items := make([]Item, 0, len(services))
		for _, svc := range services {
			items = append(items, Item{Label: svc.Label, UnitPrice: svc.UnitPrice, Quantity: svc.Quantity, ProductID: svc.ProductID})
		}
		priced, total, err := PriceItems(items)
		if err != nil {
			return err
		}
		now := s.now()
		quote, err = tx.InsertQuote(ctx, Quote{
			BusinessID: id.BusinessID,
			ProjectID:  projectID,
			Status:     QuoteDraft,
			Items:      priced,
			Total:      total,
			IssuedAt:   now,
			UpdatedAt:  now,
		})
		return err
	})
	if err != nil {
		return Quote{}, err
	}
	s.recordAudit(ctx, id, "quote.create", "quote", quote.ID, map[string]any{"project_id": projectID, "total_cents": quote.Total.Cents()})
	return quote, nil
}

// GetQuote loads a quote of the caller's business.
func (s *Service) GetQuote(ctx context.Context, businessID, quoteID int64) (Quote, error) {
	var quote Quote
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		quote, err = tx.GetQuote(ctx, businessID, quoteID, false)
		return err
	})
	return quote, err
}

// PatchQuote applies a status or field change. Repeating a transition the
// quote already went through returns it unchanged.
func (s *Service) PatchQuote(ctx context.Context, id shared.Identity, quoteID int64, patch QuotePatch) (Quote, error) {
	release, err := s.lock(ctx, "quote", quoteID)
	if err != nil {
		return Quote{}, err
	}
	defer release()

	var (
		quote Quote
		plan  QuotePlan
	)
	err = s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetQuote(ctx, id.BusinessID, quoteID, true)
		if err != nil {
			return err
		}
		now := s.now()
		if plan, err = PlanQuotePatch(current, patch, now); err != nil {
			return err
		}
		if !plan.Changed {
			quote = current
			return nil
		}
		var number string
		if plan.NeedsNumber {
			cfg, err := tx.Settings(ctx, id.BusinessID)
			if err != nil {
				return err
			}
			if number, err = tx.Numbers().Next(ctx, id.BusinessID, numbering.KindQuote, now.Year(), cfg.QuotePrefix); err != nil {
				return err
			}
		}
		quote = plan.Apply(current, number)
		quote.UpdatedAt = now
		return tx.UpdateQuote(ctx, quote)
	})
	if err != nil {
		return Quote{}, err
	}
	if plan.Transitioned() {
		s.observe("quote", string(plan.From), string(plan.To))
		s.recordAudit(ctx, id, "quote."+strings.ToLower(string(plan.To)), "quote", quote.ID, map[string]any{"from": plan.From, "number": quote.Number})
	}
	return quote, nil
}

// CreateInvoiceFromQuote copies a signed quote into a DRAFT invoice. A quote
// is invoiced at most once.
func (s *Service) CreateInvoiceFromQuote(ctx context.Context, id shared.Identity, quoteID int64) (Invoice, error) {
	release, err := s.lock(ctx, "quote", quoteID)
	if err != nil {
		return Invoice{}, err
	}
	defer release()

	var invoice Invoice
	err = s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		quote, err := tx.GetQuote(ctx, id.BusinessID, quoteID, true)
		if err != nil {
			return err
		}
		if quote.InvoiceID != nil {
			return ErrQuoteInvoiced
		}
		billable := quote.Status == QuoteSigned || (quote.Status == QuoteSent && s.cfg.AllowInvoiceFromSentQuote)
		if !billable {
			return fmt.Errorf("%w: quote is %s", ErrQuoteNotBillable, quote.Status)
		}
		if _, err := tx.GetProject(ctx, id.BusinessID, quote.ProjectID, true); err != nil {
			return err
		}
		quotes, err := tx.ListQuotes(ctx, id.BusinessID, quote.ProjectID)
		if err != nil {
			return err
		}
		invoices, err := tx.ListInvoices(ctx, id.BusinessID, quote.ProjectID)
		if err != nil {
			return err
		}
		ceiling := quote.Total
		if bq, ok := BillingQuote(quotes); ok {
			ceiling = bq.Total
		}
		invoiced, _, err := InvoicedTotals(invoices)
		if err != nil {
			return err
		}
		next, err := invoiced.Add(quote.Total)
		if err != nil {
			return err
		}
		if next > ceiling {
			return fmt.Errorf("%w: %s already invoiced against %s", ErrDoubleInvoicing, invoiced, ceiling)
		}

		items := make([]Item, len(quote.Items))
		for i, item := range quote.Items {
			item.ID = 0
			items[i] = item
		}
		now := s.now()
		qid := quote.ID
		invoice, err = tx.InsertInvoice(ctx, Invoice{
			BusinessID: id.BusinessID,
			ProjectID:  quote.ProjectID,
			QuoteID:    &qid,
			Status:     InvoiceDraft,
			Items:      items,
			Total:      quote.Total,
			IssuedAt:   now,
			UpdatedAt:  now,
		})
		if err != nil {
			return err
		}
		invID := invoice.ID
		quote.InvoiceID = &invID
		quote.UpdatedAt = now
		return tx.UpdateQuote(ctx, quote)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, id, "invoice.create", "invoice", invoice.ID, map[string]any{"quote_id": quoteID, "total_cents": invoice.Total.Cents()})
	return invoice, nil
}

// CreateStagedInvoice bills a share of the project's signed total.
func (s *Service) CreateStagedInvoice(ctx context.Context, id shared.Identity, projectID int64, req StageRequest) (Invoice, error) {
	release, err := s.lock(ctx, "project", projectID)
	if err != nil {
		return Invoice{}, err
	}
	defer release()

	var invoice Invoice
	err = s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetProject(ctx, id.BusinessID, projectID, true); err != nil {
			return err
		}
		quotes, err := tx.ListQuotes(ctx, id.BusinessID, projectID)
		if err != nil {
			return err
		}
		bq, ok := BillingQuote(quotes)
		if !ok {
			return ErrNoBillingQuote
		}
		invoices, err := tx.ListInvoices(ctx, id.BusinessID, projectID)
		if err != nil {
			return err
		}
		invoiced, _, err := InvoicedTotals(invoices)
		if err != nil {
			return err
		}
		amount, err := StagedAmount(bq.Total, invoiced, req)
		if err != nil {
			return err
		}
		items, total, err := PriceItems([]Item{{Label: stageLabel(bq, req), UnitPrice: amount, Quantity: 1}})
		if err != nil {
			return err
		}
		now := s.now()
		invoice, err = tx.InsertInvoice(ctx, Invoice{
			BusinessID: id.BusinessID,
			ProjectID:  projectID,
			Status:     InvoiceDraft,
			Items:      items,
			Total:      total,
			Stage:      &Stage{Mode: req.Mode, Value: req.Value},
			IssuedAt:   now,
			UpdatedAt:  now,
		})
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, id, "invoice.create_staged", "invoice", invoice.ID, map[string]any{
		"project_id": projectID, "mode": req.Mode, "value": req.Value, "total_cents": invoice.Total.Cents(),
	})
	return invoice, nil
}

func stageLabel(q Quote, req StageRequest) string {
	ref := fmt.Sprintf("quote #%d", q.ID)
	if q.Number != nil {
		ref = *q.Number
	}
	if req.Mode == StagePercent {
		return fmt.Sprintf("Stage payment %s%% of %s", req.Value, ref)
	}
	return fmt.Sprintf("Stage payment of %s", ref)
}

// GetInvoice loads an invoice of the caller's business.
func (s *Service) GetInvoice(ctx context.Context, businessID, invoiceID int64) (Invoice, error) {
	var invoice Invoice
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		invoice, err = tx.GetInvoice(ctx, businessID, invoiceID, false)
		return err
	})
	return invoice, err
}

// PatchInvoice applies a status or items change with its side effects, all
// in one transaction.
func (s *Service) PatchInvoice(ctx context.Context, id shared.Identity, invoiceID int64, patch InvoicePatch) (Invoice, error) {
	release, err := s.lock(ctx, "invoice", invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	defer release()
	if patch.Items != nil {
		// Item edits are checked against the project's signed total.
		current, err := s.GetInvoice(ctx, id.BusinessID, invoiceID)
		if err != nil {
			return Invoice{}, err
		}
		releaseProject, err := s.lock(ctx, "project", current.ProjectID)
		if err != nil {
			return Invoice{}, err
		}
		defer releaseProject()
	}

	var (
		invoice Invoice
		plan    InvoicePlan
	)
	err = s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetInvoice(ctx, id.BusinessID, invoiceID, true)
		if err != nil {
			return err
		}
		now := s.now()
		if plan, err = PlanInvoicePatch(current, patch, now); err != nil {
			return err
		}
		if !plan.Changed {
			invoice = current
			return nil
		}
		if plan.ItemsChanged && plan.To != InvoiceCancelled && plan.Total > current.Total {
			if err := withinSignedTotal(ctx, tx, id.BusinessID, current, plan.Total); err != nil {
				return err
			}
		}
		var number string
		if plan.NeedsNumber {
			cfg, err := tx.Settings(ctx, id.BusinessID)
			if err != nil {
				return err
			}
			if number, err = tx.Numbers().Next(ctx, id.BusinessID, numbering.KindInvoice, now.Year(), cfg.InvoicePrefix); err != nil {
				return err
			}
		}
		invoice = plan.Apply(current, number)
		invoice.UpdatedAt = now

		if plan.Reserve {
			if _, err := s.stock.ReserveTx(ctx, tx.Inventory(), id.BusinessID, invoice.ID, demand(invoice.Items)); err != nil {
				return err
			}
		}
		if plan.Consume {
			if _, err := s.stock.ConsumeTx(ctx, tx.Inventory(), id.BusinessID, invoice.ID, id.ActorID); err != nil {
				return err
			}
		}
		if plan.PostCashSale {
			entryID, err := tx.Ledger().PostCashSale(ctx, CashSaleEvent{
				BusinessID: id.BusinessID,
				InvoiceID:  invoice.ID,
				ActorID:    id.ActorID,
				Number:     deref(invoice.Number),
				Total:      invoice.Total,
				PaidAt:     *invoice.PaidAt,
			})
			if err != nil {
				return err
			}
			invoice.CashSaleLedgerEntryID = &entryID
		}
		if plan.Release {
			if _, err := s.stock.ReleaseTx(ctx, tx.Inventory(), id.BusinessID, invoice.ID); err != nil {
				return err
			}
		}
		return tx.UpdateInvoice(ctx, invoice, plan.ItemsChanged)
	})
	if err != nil {
		return Invoice{}, err
	}
	if plan.Transitioned() {
		s.observe("invoice", string(plan.From), string(plan.To))
		s.recordAudit(ctx, id, "invoice."+strings.ToLower(string(plan.To)), "invoice", invoice.ID, map[string]any{
			"from": plan.From, "number": invoice.Number, "total_cents": invoice.Total.Cents(),
		})
	}
	return invoice, nil
}

// withinSignedTotal rejects raising inv to total when the project's
// non-cancelled invoices would then exceed the billing quote, or the
// originating quote when none is signed.
func withinSignedTotal(ctx context.Context, tx Tx, businessID int64, inv Invoice, total money.Amount) error {
	if _, err := tx.GetProject(ctx, businessID, inv.ProjectID, true); err != nil {
		return err
	}
	quotes, err := tx.ListQuotes(ctx, businessID, inv.ProjectID)
	if err != nil {
		return err
	}
	ceiling, found := money.Zero, false
	if bq, ok := BillingQuote(quotes); ok {
		ceiling, found = bq.Total, true
	} else if inv.QuoteID != nil {
		for _, q := range quotes {
			if q.ID == *inv.QuoteID {
				ceiling, found = q.Total, true
				break
			}
		}
	}
	if !found {
		return ErrNoBillingQuote
	}
	invoices, err := tx.ListInvoices(ctx, businessID, inv.ProjectID)
	if err != nil {
		return err
	}
	invoiced, _, err := InvoicedTotals(invoices)
	if err != nil {
		return err
	}
	others, err := invoiced.Sub(inv.Total)
	if err != nil {
		return err
	}
	next, err := others.Add(total)
	if err != nil {
		return err
	}
	if next > ceiling {
		return fmt.Errorf("%w: %s invoiced against %s", ErrOverInvoicing, next, ceiling)
	}
	return nil
}

// PatchProjectDeposit updates the deposit status of a project.
func (s *Service) PatchProjectDeposit(ctx context.Context, id shared.Identity, projectID int64, patch DepositPatch) (Project, error) {
	release, err := s.lock(ctx, "project", projectID)
	if err != nil {
		return Project{}, err
	}
	defer release()

	var (
		project Project
		changed bool
	)
	err = s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetProject(ctx, id.BusinessID, projectID, true)
		if err != nil {
			return err
		}
		if project, changed, err = PlanDepositPatch(current, patch, s.now()); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return tx.UpdateProjectDeposit(ctx, project)
	})
	if err != nil {
		return Project{}, err
	}
	if changed {
		s.recordAudit(ctx, id, "project.deposit", "project", projectID, map[string]any{"deposit_status": project.DepositStatus})
	}
	return project, nil
}

// GetBillingSummary reconciles a project's invoices against its signed
// quote. Concurrent reads of the same project share one query.
func (s *Service) GetBillingSummary(ctx context.Context, businessID, projectID int64) (Summary, error) {
	key := fmt.Sprintf("%d:%d", businessID, projectID)
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		var summary Summary
		err := s.uow.WithTx(detached, func(ctx context.Context, tx Tx) error {
			if _, err := tx.GetProject(ctx, businessID, projectID, false); err != nil {
				return err
			}
			quotes, err := tx.ListQuotes(ctx, businessID, projectID)
			if err != nil {
				return err
			}
			invoices, err := tx.ListInvoices(ctx, businessID, projectID)
			if err != nil {
				return err
			}
			summary, err = Summarize(quotes, invoices)
			return err
		})
		return summary, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, shared.ErrIntegrity) {
				s.logger.Error("billing summary integrity", slog.Int64("project_id", projectID), slog.Any("error", res.Err))
			}
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (s *Service) lock(ctx context.Context, kind string, id int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, shared.DocumentLockKey(kind, id))
}

func (s *Service) observe(document, from, to string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(document, from, to)
	}
}

func (s *Service) recordAudit(ctx context.Context, id shared.Identity, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		BusinessID: id.BusinessID,
		ActorID:    id.ActorID,
		Action:     action,
		Entity:     entity,
		EntityID:   fmt.Sprintf("%d", entityID),
		Meta:       meta,
		At:         s.now(),
	}); err != nil {
		s.logger.Warn("audit billing", slog.String("action", action), slog.Any("error", err))
	}
}

func demand(items []Item) []inventory.DemandLine {
	lines := make([]inventory.DemandLine, 0, len(items))
	for _, item := range items {
		if item.ProductID != nil {
			lines = append(lines, inventory.DemandLine{ProductID: *item.ProductID, Quantity: item.Quantity})
		}
	}
	return lines
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
