package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
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

// GetStock returns the stock state of a product.
func (s *Service) GetStock(ctx context.Context, businessID, productID int64) (StockState, error) {
	if productID <= 0 {
		return StockState{}, ErrProductNotFound
	}
	return s.repo.GetStock(ctx, businessID, productID)
}

// RecordMovement applies a movement in its own transaction. A repeated
// idempotency key returns the movement first recorded under it.
func (s *Service) RecordMovement(ctx context.Context, in RecordMovementInput) (Movement, error) {
	if err := validateMovement(&in); err != nil {
		return Movement{}, err
	}
	var (
		out      Movement
		replayed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		replayed = false
		if in.IdempotencyKey != "" {
			existing, err := tx.FindMovementByKey(ctx, in.BusinessID, in.IdempotencyKey)
			switch {
			case err == nil:
				if !sameMovement(existing, in) {
					return ErrIdempotencyMismatch
				}
				out, replayed = existing, true
				return nil
			case !errors.Is(err, ErrMovementNotFound):
				return err
			}
		}

		product, err := tx.GetProduct(ctx, in.BusinessID, in.ProductID)
		if err != nil {
			return err
		}
		if !product.StockTracked {
			return ErrProductNotTracked
		}
		state, err := tx.LockStock(ctx, in.BusinessID, in.ProductID)
		if err != nil {
			return err
		}

		m := Movement{
			BusinessID:     in.BusinessID,
			ProductID:      in.ProductID,
			Type:           in.Type,
			Quantity:       in.Quantity,
			UnitCost:       in.UnitCost,
			Note:           in.Note,
			IdempotencyKey: in.IdempotencyKey,
			CreatedBy:      in.ActorID,
			CreatedAt:      s.now(),
		}
		next, err := applyMovement(state, m)
		if err != nil {
			return err
		}
		if m, err = tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		if err := tx.SaveStock(ctx, next); err != nil {
			return err
		}

		if in.CreateFinanceEntry && m.UnitCost != nil {
			entryID, err := s.postMovement(ctx, tx, m)
			if err != nil {
				return err
			}
			if entryID != 0 {
				if err := tx.SetMovementLedgerEntry(ctx, m.ID, entryID); err != nil {
					return err
				}
				m.LedgerEntryID = &entryID
			}
		}
		out = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	if !replayed {
		s.recordAudit(ctx, in.BusinessID, in.ActorID, "inventory.movement", "inventory_movement", out.ID, map[string]any{
			"product_id": out.ProductID,
			"type":       out.Type,
			"quantity":   out.Quantity,
		})
	}
	return out, nil
}

func (s *Service) postMovement(ctx context.Context, tx Tx, m Movement) (int64, error) {
	handler := tx.Integration()
	if handler == nil {
		s.logger.Warn("finance entry requested without integration handler", slog.Int64("movement_id", m.ID))
		return 0, nil
	}
	return handler.HandleMovementRecorded(ctx, MovementRecordedEvent{
		BusinessID: m.BusinessID,
		MovementID: m.ID,
		ProductID:  m.ProductID,
		ActorID:    m.CreatedBy,
		Type:       m.Type,
		Delta:      m.Delta(),
		UnitCost:   *m.UnitCost,
		CreatedAt:  m.CreatedAt,
	})
}

// ReserveTx holds stock for an invoice's lines. Lines for products without
// stock tracking are ignored. An invoice that already carries reservation
// markers is left untouched.
func (s *Service) ReserveTx(ctx context.Context, tx Tx, businessID, invoiceID int64, lines []DemandLine) ([]Reservation, error) {
	exists, err := tx.HasReservations(ctx, invoiceID)
	if err != nil || exists {
		return nil, err
	}

	demand := map[int64]int64{}
	for _, line := range lines {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			continue
		}
		demand[line.ProductID] += line.Quantity
	}
	ids := make([]int64, 0, len(demand))
	for id := range demand {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	reserved := make([]Reservation, 0, len(ids))
	for _, productID := range ids {
		product, err := tx.GetProduct(ctx, businessID, productID)
		if err != nil {
			return nil, err
		}
		if !product.StockTracked {
			continue
		}
		qty := demand[productID]
		state, err := tx.LockStock(ctx, businessID, productID)
		if err != nil {
			return nil, err
		}
		if state.Available() < qty {
			return nil, &InsufficientStockError{ProductID: productID, Requested: qty, Available: state.Available()}
		}
		state.Reserved += qty
		state.UpdatedAt = s.now()
		if err := tx.SaveStock(ctx, state); err != nil {
			return nil, err
		}
		res := Reservation{BusinessID: businessID, InvoiceID: invoiceID, ProductID: productID, Quantity: qty, Status: ReservationReserved}
		if err := tx.InsertReservation(ctx, res); err != nil {
			return nil, err
		}
		reserved = append(reserved, res)
	}
	return reserved, nil
}

// ConsumeTx turns an invoice's reservations into consumed stock and hands the
// valued lines to the integration handler. A second call finds nothing
// reserved and returns no lines.
func (s *Service) ConsumeTx(ctx context.Context, tx Tx, businessID, invoiceID, actorID int64) ([]Reservation, error) {
	held, err := s.lockHeld(ctx, tx, businessID, invoiceID)
	if err != nil || len(held) == 0 {
		return nil, err
	}
	now := s.now()
	evt := StockConsumedEvent{BusinessID: businessID, InvoiceID: invoiceID, ActorID: actorID, ConsumedAt: now}
	for i, res := range held {
		state, err := tx.LockStock(ctx, businessID, res.ProductID)
		if err != nil {
			return nil, err
		}
		if state.Reserved < res.Quantity || state.OnHand < res.Quantity {
			s.logger.Error("stock drift on consume",
				slog.Int64("invoice_id", invoiceID),
				slog.Int64("product_id", res.ProductID),
				slog.Int64("on_hand", state.OnHand),
				slog.Int64("reserved", state.Reserved))
			return nil, fmt.Errorf("%w: product %d", ErrStockDrift, res.ProductID)
		}
		cost := state.AvgCost
		state.OnHand -= res.Quantity
		state.Reserved -= res.Quantity
		if state.OnHand == 0 {
			state.AvgCost = 0
		}
		state.UpdatedAt = now
		if err := tx.SaveStock(ctx, state); err != nil {
			return nil, err
		}
		if err := tx.SetReservationStatus(ctx, res.ID, ReservationConsumed, cost); err != nil {
			return nil, err
		}
		held[i].Status = ReservationConsumed
		held[i].UnitCost = cost
		evt.Lines = append(evt.Lines, ConsumedLine{ProductID: res.ProductID, Quantity: res.Quantity, UnitCost: cost})
	}
	if handler := tx.Integration(); handler != nil {
		if err := handler.HandleStockConsumed(ctx, evt); err != nil {
			return nil, err
		}
	}
	return held, nil
}

// ReleaseTx returns an invoice's reserved stock to availability.
func (s *Service) ReleaseTx(ctx context.Context, tx Tx, businessID, invoiceID int64) ([]Reservation, error) {
	held, err := s.lockHeld(ctx, tx, businessID, invoiceID)
	if err != nil || len(held) == 0 {
		return nil, err
	}
	for i, res := range held {
		state, err := tx.LockStock(ctx, businessID, res.ProductID)
		if err != nil {
			return nil, err
		}
		if state.Reserved < res.Quantity {
			return nil, fmt.Errorf("%w: product %d", ErrStockDrift, res.ProductID)
		}
		state.Reserved -= res.Quantity
		state.UpdatedAt = s.now()
		if err := tx.SaveStock(ctx, state); err != nil {
			return nil, err
		}
		if err := tx.SetReservationStatus(ctx, res.ID, ReservationReleased, 0); err != nil {
			return nil, err
		}
		held[i].Status = ReservationReleased
	}
	return held, nil
}

func (s *Service) lockHeld(ctx context.Context, tx Tx, businessID, invoiceID int64) ([]Reservation, error) {
	held, err := tx.LockReservations(ctx, invoiceID, ReservationReserved)
	if err != nil {
		return nil, err
	}
	for _, res := range held {
		if res.BusinessID != businessID {
			return nil, fmt.Errorf("%w: reservation %d belongs to another business", shared.ErrIntegrity, res.ID)
		}
	}
	return held, nil
}

func (s *Service) recordAudit(ctx context.Context, businessID, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    actorID,
		Action:     action,
		Entity:     entity,
		EntityID:   fmt.Sprintf("%d", id),
		Meta:       meta,
		At:         s.now(),
	}); err != nil {
		s.logger.Warn("audit inventory", slog.String("action", action), slog.Any("error", err))
	}
}

func validateMovement(in *RecordMovementInput) error {
	if in.BusinessID <= 0 {
		return shared.ErrUnauthorized
	}
	if in.ProductID <= 0 {
		return ErrProductNotFound
	}
	if !in.Type.Valid() {
		return ErrInvalidMovementType
	}
	switch in.Type {
	case MovementIn, MovementOut:
		if in.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	case MovementAdjust:
		if in.Quantity == 0 {
			return ErrInvalidQuantity
		}
	}
	if in.UnitCost != nil && *in.UnitCost < 0 {
		return ErrInvalidUnitCost
	}
	if in.CreateFinanceEntry && in.Type == MovementOut {
		return ErrFinanceEntryUnsupported
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.IdempotencyKey != "" {
		key, err := uuid.Parse(in.IdempotencyKey)
		if err != nil {
			return ErrInvalidIdempotencyKey
		}
		in.IdempotencyKey = key.String()
	}
	return nil
}

func sameMovement(m Movement, in RecordMovementInput) bool {
	if m.ProductID != in.ProductID || m.Type != in.Type || m.Quantity != in.Quantity {
		return false
	}
	if (m.UnitCost == nil) != (in.UnitCost == nil) {
		return false
	}
	return m.UnitCost == nil || *m.UnitCost == *in.UnitCost
}

// applyMovement returns the stock state after m. Inbound stock with a unit
// cost moves the average cost, rounded half-up to the cent.
func applyMovement(state StockState, m Movement) (StockState, error) {
	delta := m.Delta()
	onHand := state.OnHand + delta
	if (delta > 0 && onHand < state.OnHand) || (delta < 0 && onHand > state.OnHand) {
		return StockState{}, ErrInvalidQuantity
	}
	if onHand < state.Reserved {
		return StockState{}, &InsufficientStockError{ProductID: m.ProductID, Requested: -delta, Available: state.Available()}
	}
	next := state
	next.OnHand = onHand
	next.UpdatedAt = m.CreatedAt
	switch {
	case onHand == 0:
		next.AvgCost = 0
	case delta > 0 && m.UnitCost != nil:
		held, err := state.AvgCost.Mul(state.OnHand)
		if err != nil {
			return StockState{}, err
		}
		added, err := m.UnitCost.Mul(delta)
		if err != nil {
			return StockState{}, err
		}
		value, err := held.Add(added)
		if err != nil {
			return StockState{}, err
		}
		avg, err := money.MulDivRoundHalfUp(value.Cents(), 1, onHand)
		if err != nil {
			return StockState{}, err
		}
		next.AvgCost = money.FromCents(avg)
	}
	return next, nil
}
