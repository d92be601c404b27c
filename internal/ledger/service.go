package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts and reads ledger entries.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Post opens its own transaction and posts the entry.
func (s *Service) Post(ctx context.Context, in PostingInput) (Entry, error) {
	var entry Entry
	var created bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, created, err = s.PostTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if created {
		s.recordAudit(ctx, entry)
	}
	return entry, nil
}

// PostTx posts inside the caller's transaction. An existing entry for the same
// source is returned unchanged with created=false.
func (s *Service) PostTx(ctx context.Context, tx TxRepository, in PostingInput) (Entry, bool, error) {
	if !in.SourceType.Valid() || in.SourceID <= 0 {
		return Entry{}, false, fmt.Errorf("%w: %s/%d", ErrInvalidSource, in.SourceType, in.SourceID)
	}
	existing, err := tx.FindBySource(ctx, in.SourceType, in.SourceID)
	switch {
	case err == nil:
		if existing.BusinessID != in.BusinessID {
			return Entry{}, false, fmt.Errorf("%w: %s/%d belongs to another business", shared.ErrIntegrity, in.SourceType, in.SourceID)
		}
		return existing, false, nil
	case !errors.Is(err, ErrEntryNotFound):
		return Entry{}, false, err
	}

	if err := in.Validate(); err != nil {
		if errors.Is(err, shared.ErrIntegrity) {
			s.logger.Error("refusing ledger posting",
				slog.String("source_type", string(in.SourceType)),
				slog.Int64("source_id", in.SourceID),
				slog.Any("error", err))
		}
		return Entry{}, false, err
	}

	entry, err := tx.InsertEntry(ctx, in, s.now())
	if err != nil {
		return Entry{}, false, err
	}
	if err := tx.InsertLines(ctx, entry.ID, in.Lines); err != nil {
		return Entry{}, false, err
	}
	entry.Lines = append([]Line(nil), in.Lines...)
	return entry, true, nil
}

// GetLedger lists entries for a source within the caller's business.
func (s *Service) GetLedger(ctx context.Context, businessID int64, sourceType SourceType, sourceID int64) ([]Entry, error) {
	if !sourceType.Valid() || sourceID <= 0 {
		return nil, fmt.Errorf("%w: %s/%d", ErrInvalidSource, sourceType, sourceID)
	}
	return s.repo.ListBySource(ctx, businessID, sourceType, sourceID)
}

func (s *Service) recordAudit(ctx context.Context, entry Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  entry.PostedBy,
		Action:   "ledger.post",
		Entity:   "ledger_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta: map[string]any{
			"business_id": entry.BusinessID,
			"source_type": entry.SourceType,
			"source_id":   entry.SourceID,
		},
		At: entry.PostedAt,
	}); err != nil {
		s.logger.Warn("audit ledger post", slog.Any("error", err))
	}
}
