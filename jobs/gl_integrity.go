package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"

	jobmetrics "github.com/odyssey-erp/backoffice-billing/internal/jobs"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Finding kinds reported by the integrity scan.
const (
	FindingUnbalancedEntry  = "unbalanced_entry"
	FindingReservationDrift = "reservation_drift"
	FindingMissingCashSale  = "missing_cash_sale"
)

// Finding is one integrity violation.
type Finding struct {
	Kind       string `json:"kind"`
	BusinessID int64  `json:"businessId"`
	Ref        int64  `json:"ref"`
	Detail     string `json:"detail"`
}

// UnbalancedEntry is a ledger entry whose debits and credits differ.
type UnbalancedEntry struct {
	BusinessID int64
	EntryID    int64
	Debit      int64
	Credit     int64
}

// ReservationDrift is a stock row whose reserved counter disagrees with the
// sum of its open reservations.
type ReservationDrift struct {
	BusinessID int64
	ProductID  int64
	Reserved   int64
	Open       int64
}

// UnpostedSale is a paid invoice without a cash sale entry.
type UnpostedSale struct {
	BusinessID int64
	InvoiceID  int64
	TotalCents int64
}

// IntegrityStore runs the read-only checks.
type IntegrityStore interface {
	UnbalancedEntries(ctx context.Context, businessID int64) ([]UnbalancedEntry, error)
	ReservationDrift(ctx context.Context, businessID int64) ([]ReservationDrift, error)
	UnpostedSales(ctx context.Context, businessID int64) ([]UnpostedSale, error)
}

// Findings flattens check results into a single report.
func Findings(unbalanced []UnbalancedEntry, drift []ReservationDrift, unposted []UnpostedSale) []Finding {
	out := make([]Finding, 0, len(unbalanced)+len(drift)+len(unposted))
	for _, e := range unbalanced {
		out = append(out, Finding{
			Kind:       FindingUnbalancedEntry,
			BusinessID: e.BusinessID,
			Ref:        e.EntryID,
			Detail:     fmt.Sprintf("debit %d != credit %d", e.Debit, e.Credit),
		})
	}
	for _, d := range drift {
		out = append(out, Finding{
			Kind:       FindingReservationDrift,
			BusinessID: d.BusinessID,
			Ref:        d.ProductID,
			Detail:     fmt.Sprintf("reserved %d, open reservations %d", d.Reserved, d.Open),
		})
	}
	for _, s := range unposted {
		out = append(out, Finding{
			Kind:       FindingMissingCashSale,
			BusinessID: s.BusinessID,
			Ref:        s.InvoiceID,
			Detail:     fmt.Sprintf("paid invoice of %d cents has no cash sale entry", s.TotalCents),
		})
	}
	return out
}

// LedgerIntegrityJob verifies double-entry balance and stock reservations.
type LedgerIntegrityJob struct {
	Store   IntegrityStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob constructs the job handler.
func NewLedgerIntegrityJob(store IntegrityStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity scan. Findings are reported through metrics
// and logs; they do not fail the task.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("ledger integrity: dependencies not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := j.log().With(slog.String("run_id", payload.RunID))
	if taskID, ok := asynq.GetTaskID(ctx); ok {
		logger = logger.With(slog.String("task_id", taskID))
	}
	findings, err := j.Run(ctx, payload.BusinessID)
	if err != nil {
		logger.Error("integrity scan", slog.Int64("business_id", payload.BusinessID), slog.Any("error", err))
		return err
	}
	for _, f := range findings {
		logger.Warn("integrity finding",
			slog.String("kind", f.Kind),
			slog.Int64("business_id", f.BusinessID),
			slog.Int64("ref", f.Ref),
			slog.String("detail", f.Detail))
	}
	logger.Info("integrity scan completed", slog.Int("findings", len(findings)))
	return nil
}

// Run performs one scan and records findings per kind.
func (j *LedgerIntegrityJob) Run(ctx context.Context, businessID int64) (findings []Finding, err error) {
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		err = tracker.End(err)
	}()

	unbalanced, err := j.Store.UnbalancedEntries(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("unbalanced entries: %w", err)
	}
	drift, err := j.Store.ReservationDrift(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("reservation drift: %w", err)
	}
	unposted, err := j.Store.UnpostedSales(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("unposted sales: %w", err)
	}
	m := j.metrics()
	m.AddFindings(FindingUnbalancedEntry, len(unbalanced))
	m.AddFindings(FindingReservationDrift, len(drift))
	m.AddFindings(FindingMissingCashSale, len(unposted))
	return Findings(unbalanced, drift, unposted), nil
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

// PGIntegrityStore runs the checks against Postgres.
type PGIntegrityStore struct {
	db db.DBTX
}

// NewIntegrityStore wraps a connection.
func NewIntegrityStore(conn db.DBTX) *PGIntegrityStore {
	return &PGIntegrityStore{db: conn}
}

// UnbalancedEntries lists entries whose line totals differ.
func (s *PGIntegrityStore) UnbalancedEntries(ctx context.Context, businessID int64) ([]UnbalancedEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT e.business_id, e.id, COALESCE(SUM(l.debit_cents),0)::bigint, COALESCE(SUM(l.credit_cents),0)::bigint
FROM ledger_entries e LEFT JOIN ledger_lines l ON l.entry_id = e.id
WHERE ($1::bigint = 0 OR e.business_id = $1)
GROUP BY e.business_id, e.id
HAVING COALESCE(SUM(l.debit_cents),0) <> COALESCE(SUM(l.credit_cents),0) OR COUNT(l.entry_id) < 2
ORDER BY e.id`, businessID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UnbalancedEntry, error) {
		var e UnbalancedEntry
		err := row.Scan(&e.BusinessID, &e.EntryID, &e.Debit, &e.Credit)
		return e, err
	})
}

// ReservationDrift compares inventory_stock.reserved to open reservations.
func (s *PGIntegrityStore) ReservationDrift(ctx context.Context, businessID int64) ([]ReservationDrift, error) {
	rows, err := s.db.Query(ctx, `SELECT s.business_id, s.product_id, s.reserved, COALESCE(r.open, 0)
FROM inventory_stock s
LEFT JOIN (
    SELECT business_id, product_id, SUM(quantity)::bigint AS open
    FROM stock_reservations WHERE status = 'RESERVED'
    GROUP BY business_id, product_id
) r ON r.business_id = s.business_id AND r.product_id = s.product_id
WHERE ($1::bigint = 0 OR s.business_id = $1) AND s.reserved <> COALESCE(r.open, 0)
ORDER BY s.business_id, s.product_id`, businessID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ReservationDrift, error) {
		var d ReservationDrift
		err := row.Scan(&d.BusinessID, &d.ProductID, &d.Reserved, &d.Open)
		return d, err
	})
}

// UnpostedSales lists paid invoices that never reached the ledger.
func (s *PGIntegrityStore) UnpostedSales(ctx context.Context, businessID int64) ([]UnpostedSale, error) {
	rows, err := s.db.Query(ctx, `SELECT business_id, id, total_cents FROM invoices
WHERE status = 'PAID' AND total_cents > 0 AND cash_sale_ledger_entry_id IS NULL
  AND ($1::bigint = 0 OR business_id = $1)
ORDER BY id`, businessID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UnpostedSale, error) {
		var u UnpostedSale
		err := row.Scan(&u.BusinessID, &u.InvoiceID, &u.TotalCents)
		return u, err
	})
}

var _ IntegrityStore = (*PGIntegrityStore)(nil)
