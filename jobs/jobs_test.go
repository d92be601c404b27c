package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/backoffice-billing/internal/jobs"
)

type stubIntegrityStore struct {
	unbalanced []UnbalancedEntry
	drift      []ReservationDrift
	unposted   []UnpostedSale
	err        error
	scoped     []int64
}

func (s *stubIntegrityStore) UnbalancedEntries(_ context.Context, businessID int64) ([]UnbalancedEntry, error) {
	s.scoped = append(s.scoped, businessID)
	return s.unbalanced, s.err
}

func (s *stubIntegrityStore) ReservationDrift(context.Context, int64) ([]ReservationDrift, error) {
	return s.drift, nil
}

func (s *stubIntegrityStore) UnpostedSales(context.Context, int64) ([]UnpostedSale, error) {
	return s.unposted, nil
}

func TestFindingsFlattensEveryCheck(t *testing.T) {
	findings := Findings(
		[]UnbalancedEntry{{BusinessID: 1, EntryID: 7, Debit: 100, Credit: 90}},
		[]ReservationDrift{{BusinessID: 1, ProductID: 3, Reserved: 5, Open: 2}},
		[]UnpostedSale{{BusinessID: 2, InvoiceID: 9, TotalCents: 1200}},
	)
	require.Len(t, findings, 3)
	assert.Equal(t, Finding{Kind: FindingUnbalancedEntry, BusinessID: 1, Ref: 7, Detail: "debit 100 != credit 90"}, findings[0])
	assert.Equal(t, FindingReservationDrift, findings[1].Kind)
	assert.Equal(t, int64(3), findings[1].Ref)
	assert.Equal(t, FindingMissingCashSale, findings[2].Kind)
	assert.Equal(t, int64(2), findings[2].BusinessID)
	assert.Empty(t, Findings(nil, nil, nil))
}

func TestLedgerIntegrityRunCountsFindings(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	store := &stubIntegrityStore{
		unbalanced: []UnbalancedEntry{{EntryID: 1}, {EntryID: 2}},
		drift:      []ReservationDrift{{ProductID: 4}},
	}
	job := NewLedgerIntegrityJob(store, nil, metrics)

	findings, err := job.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, findings, 3)
	assert.Equal(t, []int64{5}, store.scoped)

	assert.Equal(t, 1, testutil.CollectAndCount(registry, "billing_jobs_total"))
	families, err := registry.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "billing_ledger_integrity_findings_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{FindingUnbalancedEntry: 2, FindingReservationDrift: 1}, counts)
}

func TestLedgerIntegrityHandle(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())

	task, err := NewLedgerIntegrityTask(0)
	require.NoError(t, err)
	var payload LedgerIntegrityPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.NotEmpty(t, payload.RunID)
	assert.Zero(t, payload.BusinessID)

	store := &stubIntegrityStore{}
	job := NewLedgerIntegrityJob(store, nil, metrics)
	require.NoError(t, job.Handle(context.Background(), task))

	boom := errors.New("connection reset")
	failing := NewLedgerIntegrityJob(&stubIntegrityStore{err: boom}, nil, metrics)
	assert.ErrorIs(t, failing.Handle(context.Background(), task), boom)

	bad := asynq.NewTask(TaskLedgerIntegrity, []byte("{"))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	_, err = NewLedgerIntegrityTask(-1)
	assert.Error(t, err)
}

type stubCleaner struct {
	olderThan time.Duration
	removed   int64
}

func (c *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	c.olderThan = olderThan
	return c.removed, nil
}

func TestAuditCleanupJob(t *testing.T) {
	cleaner := &stubCleaner{removed: 12}
	job := NewAuditCleanupJob(cleaner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewAuditCleanupTask(90)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 90*24*time.Hour, cleaner.olderThan)

	_, err = NewAuditCleanupTask(0)
	assert.Error(t, err)

	bad := asynq.NewTask(TaskAuditCleanup, []byte(`{"retention_days":0}`))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}
