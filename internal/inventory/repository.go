package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
)

const uqMovementKey = "uq_inventory_movements_key"

// Repository is what Service needs from storage.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetStock(ctx context.Context, businessID, productID int64) (StockState, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetProduct(ctx context.Context, businessID, productID int64) (Product, error)
	// LockStock returns the stock row locked for update, creating it empty
	// when the product has never moved.
	LockStock(ctx context.Context, businessID, productID int64) (StockState, error)
	SaveStock(ctx context.Context, state StockState) error
	FindMovementByKey(ctx context.Context, businessID int64, key string) (Movement, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	SetMovementLedgerEntry(ctx context.Context, movementID, entryID int64) error
	HasReservations(ctx context.Context, invoiceID int64) (bool, error)
	InsertReservation(ctx context.Context, res Reservation) error
	LockReservations(ctx context.Context, invoiceID int64, status ReservationStatus) ([]Reservation, error)
	SetReservationStatus(ctx context.Context, id int64, status ReservationStatus, unitCost money.Amount) error
}

// Tx is a transaction scope: queries plus the integration handler bound to
// the same transaction. Integration may return nil.
type Tx interface {
	TxRepository
	Integration() IntegrationHandler
}

// PGRepository persists inventory data in PostgreSQL.
type PGRepository struct {
	pool    *pgxpool.Pool
	opts    db.TxOptions
	handler HandlerFactory
}

// NewRepository constructs PGRepository. handler may be nil.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions, handler HandlerFactory) *PGRepository {
	return &PGRepository{pool: pool, opts: opts, handler: handler}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTx(tx, r.handler))
	})
}

// GetStock reads stock outside a transaction. Products that never moved
// report a zero state.
func (r *PGRepository) GetStock(ctx context.Context, businessID, productID int64) (StockState, error) {
	state := StockState{BusinessID: businessID, ProductID: productID}
	var avg int64
	var updated *time.Time
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(s.on_hand,0), COALESCE(s.reserved,0), COALESCE(s.avg_cost_cents,0), s.updated_at
FROM products p LEFT JOIN inventory_stock s ON s.product_id = p.id
WHERE p.business_id=$1 AND p.id=$2`, businessID, productID).Scan(&state.OnHand, &state.Reserved, &avg, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockState{}, ErrProductNotFound
		}
		return StockState{}, err
	}
	state.AvgCost = money.FromCents(avg)
	if updated != nil {
		state.UpdatedAt = *updated
	}
	return state, nil
}

// NewTx binds inventory queries to an open transaction.
func NewTx(conn db.DBTX, handler HandlerFactory) Tx {
	t := &txRepo{db: conn}
	if handler != nil {
		t.integration = handler(conn)
	}
	return t
}

type txRepo struct {
	db          db.DBTX
	integration IntegrationHandler
}

func (r *txRepo) Integration() IntegrationHandler {
	return r.integration
}

func (r *txRepo) GetProduct(ctx context.Context, businessID, productID int64) (Product, error) {
	p := Product{BusinessID: businessID}
	err := r.db.QueryRow(ctx, `SELECT id, name, stock_tracked FROM products WHERE business_id=$1 AND id=$2`, businessID, productID).
		Scan(&p.ID, &p.Name, &p.StockTracked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepo) LockStock(ctx context.Context, businessID, productID int64) (StockState, error) {
	if _, err := r.db.Exec(ctx, `INSERT INTO inventory_stock (business_id, product_id) VALUES ($1,$2)
ON CONFLICT (product_id) DO NOTHING`, businessID, productID); err != nil {
		return StockState{}, err
	}
	state := StockState{BusinessID: businessID, ProductID: productID}
	var avg int64
	err := r.db.QueryRow(ctx, `SELECT on_hand, reserved, avg_cost_cents, updated_at FROM inventory_stock
WHERE business_id=$1 AND product_id=$2 FOR UPDATE`, businessID, productID).Scan(&state.OnHand, &state.Reserved, &avg, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockState{}, ErrProductNotFound
		}
		return StockState{}, err
	}
	state.AvgCost = money.FromCents(avg)
	return state, nil
}

func (r *txRepo) SaveStock(ctx context.Context, state StockState) error {
	_, err := r.db.Exec(ctx, `UPDATE inventory_stock SET on_hand=$3, reserved=$4, avg_cost_cents=$5, updated_at=$6
WHERE business_id=$1 AND product_id=$2`, state.BusinessID, state.ProductID, state.OnHand, state.Reserved, state.AvgCost.Cents(), state.UpdatedAt)
	return err
}

const movementColumns = `id, business_id, product_id, movement_type, quantity, unit_cost_cents, note, COALESCE(idempotency_key::text, ''), ledger_entry_id, COALESCE(created_by, 0), created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		m        Movement
		unitCost *int64
	)
	if err := row.Scan(&m.ID, &m.BusinessID, &m.ProductID, &m.Type, &m.Quantity, &unitCost, &m.Note, &m.IdempotencyKey, &m.LedgerEntryID, &m.CreatedBy, &m.CreatedAt); err != nil {
		return Movement{}, err
	}
	if unitCost != nil {
		cost := money.FromCents(*unitCost)
		m.UnitCost = &cost
	}
	return m, nil
}

func (r *txRepo) FindMovementByKey(ctx context.Context, businessID int64, key string) (Movement, error) {
	m, err := scanMovement(r.db.QueryRow(ctx, `SELECT `+movementColumns+` FROM inventory_movements
WHERE business_id=$1 AND idempotency_key=$2::uuid`, businessID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, err
	}
	return m, nil
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	var unitCost, key any
	if m.UnitCost != nil {
		unitCost = m.UnitCost.Cents()
	}
	if m.IdempotencyKey != "" {
		key = m.IdempotencyKey
	}
	err := r.db.QueryRow(ctx, `INSERT INTO inventory_movements (business_id, product_id, movement_type, quantity, unit_cost_cents, note, idempotency_key, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::uuid,$8,$9) RETURNING id`,
		m.BusinessID, m.ProductID, string(m.Type), m.Quantity, unitCost, m.Note, key, db.NullInt(m.CreatedBy), m.CreatedAt).Scan(&m.ID)
	if err != nil {
		if db.IsUniqueViolation(err, uqMovementKey) {
			return Movement{}, ErrKeyTaken
		}
		return Movement{}, err
	}
	return m, nil
}

func (r *txRepo) SetMovementLedgerEntry(ctx context.Context, movementID, entryID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE inventory_movements SET ledger_entry_id=$2 WHERE id=$1`, movementID, entryID)
	return err
}

func (r *txRepo) HasReservations(ctx context.Context, invoiceID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_reservations WHERE invoice_id=$1)`, invoiceID).Scan(&exists)
	return exists, err
}

func (r *txRepo) InsertReservation(ctx context.Context, res Reservation) error {
	_, err := r.db.Exec(ctx, `INSERT INTO stock_reservations (business_id, invoice_id, product_id, quantity, status)
VALUES ($1,$2,$3,$4,$5)`, res.BusinessID, res.InvoiceID, res.ProductID, res.Quantity, string(ReservationReserved))
	return err
}

func (r *txRepo) LockReservations(ctx context.Context, invoiceID int64, status ReservationStatus) ([]Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT id, business_id, invoice_id, product_id, quantity, status, unit_cost_cents
FROM stock_reservations WHERE invoice_id=$1 AND status=$2 ORDER BY product_id FOR UPDATE`, invoiceID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var (
			res  Reservation
			cost int64
		)
		if err := rows.Scan(&res.ID, &res.BusinessID, &res.InvoiceID, &res.ProductID, &res.Quantity, &res.Status, &cost); err != nil {
			return nil, err
		}
		res.UnitCost = money.FromCents(cost)
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *txRepo) SetReservationStatus(ctx context.Context, id int64, status ReservationStatus, unitCost money.Amount) error {
	_, err := r.db.Exec(ctx, `UPDATE stock_reservations SET status=$2, unit_cost_cents=$3, updated_at=NOW() WHERE id=$1`,
		id, string(status), unitCost.Cents())
	return err
}
