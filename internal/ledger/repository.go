package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
)

const uqLedgerSource = "uq_ledger_entries_source"

// Repository encapsulates DB operations for ledger entries.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBySource(ctx context.Context, businessID int64, sourceType SourceType, sourceID int64) ([]Entry, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	FindBySource(ctx context.Context, sourceType SourceType, sourceID int64) (Entry, error)
	InsertEntry(ctx context.Context, in PostingInput, postedAt time.Time) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []Line) error
}

type repository struct {
	pool *pgxpool.Pool
	opts db.TxOptions
}

// NewRepository constructs the pooled repository.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) Repository {
	return &repository{pool: pool, opts: opts}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *repository) ListBySource(ctx context.Context, businessID int64, sourceType SourceType, sourceID int64) ([]Entry, error) {
	q := &queries{db: r.pool}
	entry, err := q.FindBySource(ctx, sourceType, sourceID)
	if errors.Is(err, ErrEntryNotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if entry.BusinessID != businessID {
		return []Entry{}, nil
	}
	return []Entry{entry}, nil
}

// NewTxRepository binds ledger queries to an open transaction.
func NewTxRepository(conn db.DBTX) TxRepository {
	return &queries{db: conn}
}

type queries struct {
	db db.DBTX
}

func (q *queries) FindBySource(ctx context.Context, sourceType SourceType, sourceID int64) (Entry, error) {
	var entry Entry
	err := q.db.QueryRow(ctx, `SELECT id, business_id, source_type, source_id, memo, COALESCE(posted_by, 0), posted_at
FROM ledger_entries WHERE source_type=$1 AND source_id=$2`, string(sourceType), sourceID).
		Scan(&entry.ID, &entry.BusinessID, &entry.SourceType, &entry.SourceID, &entry.Memo, &entry.PostedBy, &entry.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	lines, err := q.linesFor(ctx, entry.ID)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (q *queries) linesFor(ctx context.Context, entryID int64) ([]Line, error) {
	rows, err := q.db.Query(ctx, `SELECT account_code, debit_cents, credit_cents FROM ledger_lines WHERE entry_id=$1 ORDER BY line_no ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var (
			line          Line
			debit, credit int64
		)
		if err := rows.Scan(&line.AccountCode, &debit, &credit); err != nil {
			return nil, err
		}
		line.Debit = money.FromCents(debit)
		line.Credit = money.FromCents(credit)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (q *queries) InsertEntry(ctx context.Context, in PostingInput, postedAt time.Time) (Entry, error) {
	entry := Entry{
		BusinessID: in.BusinessID,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		Memo:       in.Memo,
		PostedBy:   in.PostedBy,
		PostedAt:   postedAt,
	}
	err := q.db.QueryRow(ctx, `INSERT INTO ledger_entries (business_id, source_type, source_id, memo, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, in.BusinessID, string(in.SourceType), in.SourceID, in.Memo, db.NullInt(in.PostedBy), postedAt).Scan(&entry.ID)
	if err != nil {
		if db.IsUniqueViolation(err, uqLedgerSource) {
			return Entry{}, ErrSourceConflict
		}
		return Entry{}, err
	}
	return entry, nil
}

func (q *queries) InsertLines(ctx context.Context, entryID int64, lines []Line) error {
	for idx, line := range lines {
		if _, err := q.db.Exec(ctx, `INSERT INTO ledger_lines (entry_id, line_no, account_code, debit_cents, credit_cents)
VALUES ($1,$2,$3,$4,$5)`, entryID, idx+1, line.AccountCode, line.Debit.Cents(), line.Credit.Cents()); err != nil {
			return err
		}
	}
	return nil
}
