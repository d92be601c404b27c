package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
	"github.com/odyssey-erp/backoffice-billing/internal/settings"
)

const uqInvoiceQuote = "uq_invoices_quote"

// PGStore implements Store over a pool or an open transaction.
type PGStore struct {
	db       db.DBTX
	settings *settings.Repository
}

// NewStore binds billing queries to conn.
func NewStore(conn db.DBTX) *PGStore {
	return &PGStore{db: conn, settings: settings.NewRepository(conn)}
}

// Settings loads the business settings row.
func (s *PGStore) Settings(ctx context.Context, businessID int64) (settings.Settings, error) {
	return s.settings.Get(ctx, businessID)
}

// GetProject loads a project, optionally locking its row.
func (s *PGStore) GetProject(ctx context.Context, businessID, projectID int64, forUpdate bool) (Project, error) {
	query := `SELECT id, business_id, name, deposit_status, deposit_paid_at FROM projects WHERE business_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var p Project
	err := s.db.QueryRow(ctx, query, businessID, projectID).Scan(&p.ID, &p.BusinessID, &p.Name, &p.DepositStatus, &p.DepositPaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, err
	}
	return p, nil
}

// UpdateProjectDeposit writes the deposit columns.
func (s *PGStore) UpdateProjectDeposit(ctx context.Context, p Project) error {
	tag, err := s.db.Exec(ctx, `UPDATE projects SET deposit_status=$3, deposit_paid_at=$4 WHERE business_id=$1 AND id=$2`,
		p.BusinessID, p.ID, string(p.DepositStatus), p.DepositPaidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// ListProjectServices returns the priced services of a project in display order.
func (s *PGStore) ListProjectServices(ctx context.Context, businessID, projectID int64) ([]ProjectService, error) {
	rows, err := s.db.Query(ctx, `SELECT ps.id, ps.project_id, ps.label, ps.unit_price_cents, ps.quantity, ps.product_id
FROM project_services ps JOIN projects p ON p.id = ps.project_id
WHERE p.business_id=$1 AND ps.project_id=$2 ORDER BY ps.position, ps.id`, businessID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProjectService
	for rows.Next() {
		var (
			svc   ProjectService
			price int64
		)
		if err := rows.Scan(&svc.ID, &svc.ProjectID, &svc.Label, &price, &svc.Quantity, &svc.ProductID); err != nil {
			return nil, err
		}
		svc.UnitPrice = money.FromCents(price)
		out = append(out, svc)
	}
	return out, rows.Err()
}

const quoteColumns = `id, business_id, project_id, status, number, total_cents, signed_at, cancel_reason, note, invoice_id, issued_at, updated_at`

func scanQuote(row pgx.Row) (Quote, error) {
	var (
		q     Quote
		total int64
	)
	if err := row.Scan(&q.ID, &q.BusinessID, &q.ProjectID, &q.Status, &q.Number, &total, &q.SignedAt, &q.CancelReason, &q.Note, &q.InvoiceID, &q.IssuedAt, &q.UpdatedAt); err != nil {
		return Quote{}, err
	}
	q.Total = money.FromCents(total)
	return q, nil
}

// InsertQuote stores a quote with its items.
func (s *PGStore) InsertQuote(ctx context.Context, q Quote) (Quote, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO quotes (business_id, project_id, status, number, total_cents, note, issued_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		q.BusinessID, q.ProjectID, string(q.Status), q.Number, q.Total.Cents(), q.Note, q.IssuedAt, q.UpdatedAt).Scan(&q.ID)
	if err != nil {
		return Quote{}, err
	}
	if q.Items, err = s.insertItems(ctx, "quote_items", "quote_id", q.ID, q.Items); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// GetQuote loads a quote and its items.
func (s *PGStore) GetQuote(ctx context.Context, businessID, quoteID int64, forUpdate bool) (Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE business_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	q, err := scanQuote(s.db.QueryRow(ctx, query, businessID, quoteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrQuoteNotFound
		}
		return Quote{}, err
	}
	if q.Items, err = s.listItems(ctx, "quote_items", "quote_id", q.ID); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// UpdateQuote writes the quote header. Items never change after creation.
func (s *PGStore) UpdateQuote(ctx context.Context, q Quote) error {
	tag, err := s.db.Exec(ctx, `UPDATE quotes SET status=$3, number=$4, signed_at=$5, cancel_reason=$6, note=$7, invoice_id=$8, updated_at=$9
WHERE business_id=$1 AND id=$2`,
		q.BusinessID, q.ID, string(q.Status), q.Number, q.SignedAt, q.CancelReason, q.Note, q.InvoiceID, q.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuoteNotFound
	}
	return nil
}

// ListQuotes returns a project's quote headers without items.
func (s *PGStore) ListQuotes(ctx context.Context, businessID, projectID int64) ([]Quote, error) {
	rows, err := s.db.Query(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE business_id=$1 AND project_id=$2 ORDER BY id`, businessID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

const invoiceColumns = `id, business_id, project_id, quote_id, status, number, total_cents, paid_at, cash_sale_ledger_entry_id, stage_mode, stage_value, issued_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv        Invoice
		total      int64
		stageMode  *string
		stageValue *string
	)
	if err := row.Scan(&inv.ID, &inv.BusinessID, &inv.ProjectID, &inv.QuoteID, &inv.Status, &inv.Number, &total, &inv.PaidAt,
		&inv.CashSaleLedgerEntryID, &stageMode, &stageValue, &inv.IssuedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	inv.Total = money.FromCents(total)
	if stageMode != nil {
		inv.Stage = &Stage{Mode: StageMode(*stageMode), Value: deref(stageValue)}
	}
	return inv, nil
}

// InsertInvoice stores an invoice with its items. A second invoice for the
// same quote hits uq_invoices_quote.
func (s *PGStore) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	var stageMode, stageValue any
	if inv.Stage != nil {
		stageMode, stageValue = string(inv.Stage.Mode), inv.Stage.Value
	}
	err := s.db.QueryRow(ctx, `INSERT INTO invoices (business_id, project_id, quote_id, status, number, total_cents, stage_mode, stage_value, issued_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		inv.BusinessID, inv.ProjectID, db.NullIntPtr(inv.QuoteID), string(inv.Status), inv.Number, inv.Total.Cents(),
		stageMode, stageValue, inv.IssuedAt, inv.UpdatedAt).Scan(&inv.ID)
	if err != nil {
		if db.IsUniqueViolation(err, uqInvoiceQuote) {
			return Invoice{}, ErrQuoteInvoiced
		}
		return Invoice{}, err
	}
	if inv.Items, err = s.insertItems(ctx, "invoice_items", "invoice_id", inv.ID, inv.Items); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// GetInvoice loads an invoice and its items.
func (s *PGStore) GetInvoice(ctx context.Context, businessID, invoiceID int64, forUpdate bool) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE business_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	inv, err := scanInvoice(s.db.QueryRow(ctx, query, businessID, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	if inv.Items, err = s.listItems(ctx, "invoice_items", "invoice_id", inv.ID); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// UpdateInvoice writes the header and, when itemsChanged, replaces the items.
func (s *PGStore) UpdateInvoice(ctx context.Context, inv Invoice, itemsChanged bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE invoices SET status=$3, number=$4, total_cents=$5, paid_at=$6, cash_sale_ledger_entry_id=$7, updated_at=$8
WHERE business_id=$1 AND id=$2`,
		inv.BusinessID, inv.ID, string(inv.Status), inv.Number, inv.Total.Cents(), inv.PaidAt, db.NullIntPtr(inv.CashSaleLedgerEntryID), inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	if !itemsChanged {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id=$1`, inv.ID); err != nil {
		return err
	}
	_, err = s.insertItems(ctx, "invoice_items", "invoice_id", inv.ID, inv.Items)
	return err
}

// ListInvoices returns a project's invoice headers without items.
func (s *PGStore) ListInvoices(ctx context.Context, businessID, projectID int64) ([]Invoice, error) {
	rows, err := s.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE business_id=$1 AND project_id=$2 ORDER BY id`, businessID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// insertItems writes document lines in position order. table and fk are
// package constants, never user input.
func (s *PGStore) insertItems(ctx context.Context, table, fk string, docID int64, items []Item) ([]Item, error) {
	out := make([]Item, len(items))
	query := fmt.Sprintf(`INSERT INTO %s (%s, position, label, unit_price_cents, quantity, product_id, total_cents)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, table, fk)
	for i, item := range items {
		if err := s.db.QueryRow(ctx, query, docID, i+1, item.Label, item.UnitPrice.Cents(), item.Quantity, db.NullIntPtr(item.ProductID), item.Total.Cents()).
			Scan(&item.ID); err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

func (s *PGStore) listItems(ctx context.Context, table, fk string, docID int64) ([]Item, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT id, label, unit_price_cents, quantity, product_id, total_cents
FROM %s WHERE %s=$1 ORDER BY position, id`, table, fk), docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var (
			item         Item
			price, total int64
		)
		if err := rows.Scan(&item.ID, &item.Label, &price, &item.Quantity, &item.ProductID, &total); err != nil {
			return nil, err
		}
		item.UnitPrice = money.FromCents(price)
		item.Total = money.FromCents(total)
		out = append(out, item)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)

// nowUTC truncates to microseconds so values round-trip through timestamptz.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
