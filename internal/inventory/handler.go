package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/httpx"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes under /products.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{productID}/movements", h.recordMovement)
	r.Get("/{productID}/stock", h.getStock)
}

type movementRequest struct {
	Type               MovementType `json:"type" validate:"required,oneof=IN OUT ADJUST"`
	Quantity           int64        `json:"quantity" validate:"required"`
	UnitCostCents      *int64       `json:"unitCostCents" validate:"omitempty,gte=0"`
	CreateFinanceEntry bool         `json:"createFinanceEntry"`
	Note               string       `json:"note" validate:"max=500"`
}

type stockResponse struct {
	StockState
	Available int64 `json:"available"`
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	productID, err := httpx.IDParam(r, "productID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in := RecordMovementInput{
		BusinessID:         id.BusinessID,
		ProductID:          productID,
		ActorID:            id.ActorID,
		Type:               req.Type,
		Quantity:           req.Quantity,
		CreateFinanceEntry: req.CreateFinanceEntry,
		Note:               req.Note,
		IdempotencyKey:     r.Header.Get("Idempotency-Key"),
	}
	if req.UnitCostCents != nil {
		c := money.FromCents(*req.UnitCostCents)
		in.UnitCost = &c
	}
	movement, err := h.service.RecordMovement(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	productID, err := httpx.IDParam(r, "productID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	state, err := h.service.GetStock(r.Context(), id.BusinessID, productID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stockResponse{StockState: state, Available: state.Available()})
}
