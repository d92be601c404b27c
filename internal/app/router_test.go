package app

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice-billing/internal/billing"
	"github.com/odyssey-erp/backoffice-billing/internal/billing/billingtest"
	"github.com/odyssey-erp/backoffice-billing/internal/integration"
	"github.com/odyssey-erp/backoffice-billing/internal/inventory"
	"github.com/odyssey-erp/backoffice-billing/internal/ledger"
	"github.com/odyssey-erp/backoffice-billing/internal/observability"
	_ "github.com/odyssey-erp/backoffice-billing/internal/testing/guard"
)

func testConfig() *Config {
	return &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
}

func newTestRouter(t *testing.T, cfg *Config, ready HealthFunc) http.Handler {
	t.Helper()
	uow := billingtest.NewUnitOfWork(nil)
	books := ledger.NewService(uow.Ledger, nil, nil)
	uow.Bind = func(store billing.Store, ltx ledger.TxRepository) (billing.LedgerPort, inventory.IntegrationHandler) {
		hooks := integration.NewHooks(books, ltx, store.Settings, nil)
		return hooks, hooks
	}
	stock := inventory.NewService(uow.Stock, nil, nil)
	svc := billing.NewService(uow, stock, nil, billing.Config{}, nil)
	uow.Docs.AddProject(billing.Project{ID: 10, BusinessID: 1, Name: "Loft"})
	uow.Docs.AddServices(10, billing.ProjectService{Label: "Survey", UnitPrice: 4000, Quantity: 1})

	return NewRouter(RouterParams{
		Config:           cfg,
		BillingHandler:   billing.NewHandler(nil, svc),
		InventoryHandler: inventory.NewHandler(nil, stock),
		LedgerHandler:    ledger.NewHandler(nil, books),
		Metrics:          observability.NewMetrics(),
		Ready:            ready,
	})
}

func do(h http.Handler, method, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:4000"
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	rr := do(newTestRouter(t, testConfig(), nil), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	down := newTestRouter(t, testConfig(), func(*http.Request) error { return errors.New("pool closed") })
	rr = do(down, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestIdentityHeadersScopeAPI(t *testing.T) {
	h := newTestRouter(t, testConfig(), nil)

	rr := do(h, http.MethodPost, "/api/projects/10/quotes", HeaderBusinessID, "1", HeaderActorID, "7")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"DRAFT"`)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	cases := []struct {
		name    string
		headers []string
		want    int
	}{
		{name: "anonymous", want: http.StatusUnauthorized},
		{name: "malformed business", headers: []string{HeaderBusinessID, "abc"}, want: http.StatusUnauthorized},
		{name: "negative business", headers: []string{HeaderBusinessID, "-3"}, want: http.StatusUnauthorized},
		{name: "malformed actor", headers: []string{HeaderBusinessID, "1", HeaderActorID, "x"}, want: http.StatusUnauthorized},
		{name: "other business", headers: []string{HeaderBusinessID, "2"}, want: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(h, http.MethodGet, "/api/projects/10/billing-summary", tc.headers...)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestMetricsEndpointSeesAPITraffic(t *testing.T) {
	h := newTestRouter(t, testConfig(), nil)
	do(h, http.MethodGet, "/api/quotes/99", HeaderBusinessID, "1")

	rr := do(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "billing_http_requests_total"), body)
	assert.Contains(t, body, `route="/api/quotes/{quoteID}"`)
}

func TestRateLimitPerBusiness(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	h := newTestRouter(t, cfg, nil)

	first := do(h, http.MethodGet, "/api/quotes/1", HeaderBusinessID, "1")
	assert.Equal(t, http.StatusNotFound, first.Code)
	second := do(h, http.MethodGet, "/api/quotes/1", HeaderBusinessID, "1")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	other := do(h, http.MethodGet, "/api/quotes/1", HeaderBusinessID, "2")
	assert.Equal(t, http.StatusNotFound, other.Code)
}

func TestLoadConfigValidates(t *testing.T) {
	t.Setenv("DB_TX_MAX_ATTEMPTS", "0")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "DB_TX_MAX_ATTEMPTS")

	t.Setenv("DB_TX_MAX_ATTEMPTS", "4")
	t.Setenv("BILLING_ALLOW_INVOICE_FROM_SENT_QUOTE", "true")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.AllowInvoiceFromSentQuote)
	assert.Equal(t, 4, cfg.TxOptions().MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.LockConfig().TTL)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisOptions().Addr)
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}
