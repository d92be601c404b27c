package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice-billing/internal/platform/httpx"
)

// Handler wires HTTP endpoints for quotes, invoices and project billing.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs billing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers billing routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.Post("/quotes", h.createQuote)
		r.Post("/invoices/staged", h.createStagedInvoice)
		r.Get("/billing-summary", h.getBillingSummary)
		r.Patch("/deposit", h.patchDeposit)
	})
	r.Route("/quotes/{quoteID}", func(r chi.Router) {
		r.Get("/", h.getQuote)
		r.Patch("/", h.patchQuote)
		r.Post("/invoices", h.createInvoiceFromQuote)
	})
	r.Route("/invoices/{invoiceID}", func(r chi.Router) {
		r.Get("/", h.getInvoice)
		r.Patch("/", h.patchInvoice)
	})
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	projectID, err := httpx.IDParam(r, "projectID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	quote, err := h.service.CreateQuote(r.Context(), id, projectID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	quoteID, err := httpx.IDParam(r, "quoteID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	quote, err := h.service.GetQuote(r.Context(), id.BusinessID, quoteID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) patchQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	quoteID, err := httpx.IDParam(r, "quoteID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req patchQuoteRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	quote, err := h.service.PatchQuote(r.Context(), id, quoteID, req.patch())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) createInvoiceFromQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	quoteID, err := httpx.IDParam(r, "quoteID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	invoice, err := h.service.CreateInvoiceFromQuote(r.Context(), id, quoteID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) createStagedInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	projectID, err := httpx.IDParam(r, "projectID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req stagedInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	invoice, err := h.service.CreateStagedInvoice(r.Context(), id, projectID, StageRequest{Mode: req.Mode, Value: req.Value.String()})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	invoiceID, err := httpx.IDParam(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id.BusinessID, invoiceID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) patchInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	invoiceID, err := httpx.IDParam(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req patchInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	invoice, err := h.service.PatchInvoice(r.Context(), id, invoiceID, req.patch())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) patchDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	projectID, err := httpx.IDParam(r, "projectID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req depositRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	project, err := h.service.PatchProjectDeposit(r.Context(), id, projectID, DepositPatch{Status: req.DepositStatus, PaidAt: req.DepositPaidAt})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) getBillingSummary(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Identity(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	projectID, err := httpx.IDParam(r, "projectID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	summary, err := h.service.GetBillingSummary(r.Context(), id.BusinessID, projectID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSummaryResponse(summary, requestLocale(r)))
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validator.Struct(target)
}
