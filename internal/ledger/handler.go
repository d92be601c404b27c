package ledger

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice-billing/internal/platform/httpx"
)

// Handler exposes read access to ledger entries.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.getLedger)
}

func (h *Handler) getLedger(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	sourceType := SourceType(q.Get("sourceType"))
	sourceID, err := strconv.ParseInt(q.Get("sourceId"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, h.logger, fmt.Errorf("%w: sourceId must be an integer", ErrInvalidSource))
		return
	}
	entries, err := h.service.GetLedger(r.Context(), id.BusinessID, sourceType, sourceID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
