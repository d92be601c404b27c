package billing_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice-billing/internal/billing"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("X-Test-Anonymous") == "" {
				req = req.WithContext(shared.ContextWithIdentity(req.Context(), caller))
			}
			next.ServeHTTP(w, req)
		})
	})
	billing.NewHandler(nil, f.svc).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerQuoteFlow(t *testing.T) {
	f := newFixture(t, billing.Config{})
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/projects/10/quotes", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var quote billing.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	require.Equal(t, billing.QuoteDraft, quote.Status)

	path := "/quotes/" + itoa(quote.ID)
	rec = do(t, h, http.MethodPatch, path, `{"status":"SENT"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	require.Equal(t, "QT-2026-0001", *quote.Number)

	rec = do(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, path+"/invoices", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHandlerErrorMapping(t *testing.T) {
	f := newFixture(t, billing.Config{})
	h := newTestRouter(f)
	f.signedQuote(t)

	cases := []struct {
		name    string
		method  string
		path    string
		body    string
		headers []string
		want    int
	}{
		{name: "unknown project", method: http.MethodPost, path: "/projects/99/quotes", want: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, path: "/invoices/abc", want: http.StatusBadRequest},
		{name: "anonymous", method: http.MethodGet, path: "/quotes/1", headers: []string{"X-Test-Anonymous", "1"}, want: http.StatusUnauthorized},
		{name: "unknown field", method: http.MethodPatch, path: "/quotes/1", body: `{"state":"SENT"}`, want: http.StatusBadRequest},
		{name: "invalid stage mode", method: http.MethodPost, path: "/projects/10/invoices/staged", body: `{"mode":"HALF","value":1}`, want: http.StatusBadRequest},
		{name: "percent above 100", method: http.MethodPost, path: "/projects/10/invoices/staged", body: `{"mode":"PERCENT","value":120}`, want: http.StatusBadRequest},
		{name: "deposit guard", method: http.MethodPatch, path: "/projects/10/deposit", body: `{"depositPaidAt":"2026-03-01T00:00:00Z"}`, want: http.StatusBadRequest},
		{name: "invalid item", method: http.MethodPatch, path: "/invoices/1", body: `{"items":[{"label":"x","unitPriceCents":1,"quantity":0}]}`, want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body, tc.headers...)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerStagedInvoiceAndSummary(t *testing.T) {
	f := newFixture(t, billing.Config{})
	h := newTestRouter(f)
	f.signedQuote(t)

	rec := do(t, h, http.MethodPost, "/projects/10/invoices/staged", `{"mode":"PERCENT","value":"12.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv billing.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Equal(t, int64(1250), inv.Total.Cents())

	rec = do(t, h, http.MethodGet, "/projects/10/billing-summary", "", "Accept-Language", "de-DE,de;q=0.9")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		TotalCents           int64 `json:"totalCents"`
		AlreadyInvoicedCents int64 `json:"alreadyInvoicedCents"`
		RemainingCents       int64 `json:"remainingCents"`
		Display              struct {
			Locale string `json:"locale"`
			Total  string `json:"total"`
		} `json:"display"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(10000), body.TotalCents)
	require.Equal(t, int64(1250), body.AlreadyInvoicedCents)
	require.Equal(t, int64(8750), body.RemainingCents)
	require.Equal(t, "de", body.Display.Locale)
	require.Equal(t, "100,00", body.Display.Total)
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
