package billing

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/text/language"

	"github.com/odyssey-erp/backoffice-billing/internal/money"
)

type patchQuoteRequest struct {
	Status       *QuoteStatus `json:"status"`
	SignedAt     *time.Time   `json:"signedAt"`
	CancelReason *string      `json:"cancelReason" validate:"omitempty,max=500"`
	Note         *string      `json:"note" validate:"omitempty,max=2000"`
}

func (r patchQuoteRequest) patch() QuotePatch {
	return QuotePatch{Status: r.Status, SignedAt: r.SignedAt, CancelReason: r.CancelReason, Note: r.Note}
}

type itemRequest struct {
	Label          string `json:"label" validate:"required,max=255"`
	UnitPriceCents int64  `json:"unitPriceCents" validate:"gte=0"`
	Quantity       int64  `json:"quantity" validate:"gt=0"`
	ProductID      *int64 `json:"productId" validate:"omitempty,gt=0"`
}

type patchInvoiceRequest struct {
	Status *InvoiceStatus `json:"status"`
	PaidAt *time.Time     `json:"paidAt"`
	Items  []itemRequest  `json:"items" validate:"omitempty,dive"`
}

func (r patchInvoiceRequest) patch() InvoicePatch {
	p := InvoicePatch{Status: r.Status, PaidAt: r.PaidAt}
	if r.Items != nil {
		items := make([]Item, len(r.Items))
		for i, it := range r.Items {
			items[i] = Item{Label: it.Label, UnitPrice: money.FromCents(it.UnitPriceCents), Quantity: it.Quantity, ProductID: it.ProductID}
		}
		p.Items = &items
	}
	return p
}

type stagedInvoiceRequest struct {
	Mode  StageMode   `json:"mode" validate:"required,oneof=PERCENT AMOUNT"`
	Value json.Number `json:"value" validate:"required"`
}

type depositRequest struct {
	DepositStatus *DepositStatus `json:"depositStatus"`
	DepositPaidAt *time.Time     `json:"depositPaidAt"`
}

// summaryResponse carries the raw cents plus strings formatted for the
// caller's locale.
type summaryResponse struct {
	Summary
	Display summaryDisplay `json:"display"`
}

type summaryDisplay struct {
	Locale             string `json:"locale"`
	Total              string `json:"total"`
	AlreadyInvoiced    string `json:"alreadyInvoiced"`
	AlreadyPaid        string `json:"alreadyPaid"`
	Remaining          string `json:"remaining"`
	RemainingToCollect string `json:"remainingToCollect"`
}

var (
	supportedLocales = []language.Tag{
		language.English,
		language.French,
		language.German,
		language.Spanish,
		language.Italian,
		language.Indonesian,
	}
	displayLocales = language.NewMatcher(supportedLocales)
)

// requestLocale picks the best supported locale from Accept-Language.
func requestLocale(r *http.Request) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := displayLocales.Match(tags...)
	return supportedLocales[idx]
}

func newSummaryResponse(s Summary, tag language.Tag) summaryResponse {
	return summaryResponse{
		Summary: s,
		Display: summaryDisplay{
			Locale:             tag.String(),
			Total:              s.TotalCents.Format(tag),
			AlreadyInvoiced:    s.AlreadyInvoicedCents.Format(tag),
			AlreadyPaid:        s.AlreadyPaidCents.Format(tag),
			Remaining:          s.RemainingCents.Format(tag),
			RemainingToCollect: s.RemainingToCollectCents.Format(tag),
		},
	}
}
