package numbering

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

const uqDocumentNumbers = "uq_document_numbers_seq"

// Repository implements Store on top of a pool or an open transaction.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// NextSequence upserts the counter row. The row lock taken by ON CONFLICT DO
// UPDATE serialises concurrent callers for the same key.
func (r *Repository) NextSequence(ctx context.Context, businessID int64, kind Kind, year int) (int64, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `INSERT INTO document_sequences (business_id, kind, year, seq)
VALUES ($1,$2,$3,1)
ON CONFLICT (business_id, kind, year) DO UPDATE SET seq = document_sequences.seq + 1, updated_at = NOW()
RETURNING seq`, businessID, string(kind), year).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Register inserts the issued number under the unique sequence key.
func (r *Repository) Register(ctx context.Context, businessID int64, kind Kind, year int, seq int64, number string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO document_numbers (business_id, kind, year, seq, number) VALUES ($1,$2,$3,$4,$5)`,
		businessID, string(kind), year, seq, number)
	if err != nil {
		if db.IsUniqueViolation(err, uqDocumentNumbers) {
			return fmt.Errorf("%w: %w", shared.ErrTransient, ErrNumberTaken)
		}
		return err
	}
	return nil
}
