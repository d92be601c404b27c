package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice-billing/internal/ledger"
	"github.com/odyssey-erp/backoffice-billing/internal/ledger/ledgertest"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func cashSale(invoiceID int64) ledger.PostingInput {
	return ledger.PostingInput{
		BusinessID: 1,
		SourceType: ledger.SourceInvoiceCashSale,
		SourceID:   invoiceID,
		Memo:       "Invoice INV-2026-0001",
		Lines: []ledger.Line{
			{AccountCode: "512", Debit: 12000},
			{AccountCode: "706", Credit: 10000},
			{AccountCode: "44571", Credit: 2000},
		},
	}
}

func TestPostIsIdempotentPerSource(t *testing.T) {
	repo := ledgertest.New()
	audit := &recordingAudit{}
	svc := ledger.NewService(repo, audit, nil)
	ctx := context.Background()

	first, err := svc.Post(ctx, cashSale(10))
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.True(t, first.Balanced())

	second, err := svc.Post(ctx, cashSale(10))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.Entries(), 1)
	require.Len(t, audit.logs, 1)

	entries, err := svc.GetLedger(ctx, 1, ledger.SourceInvoiceCashSale, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Lines, 3)
}

func TestPostRejectsUnbalancedEntries(t *testing.T) {
	repo := ledgertest.New()
	svc := ledger.NewService(repo, nil, nil)
	in := cashSale(11)
	in.Lines[1].Credit = 9999

	_, err := svc.Post(context.Background(), in)
	require.ErrorIs(t, err, ledger.ErrUnbalanced)
	require.ErrorIs(t, err, shared.ErrIntegrity)
	require.False(t, shared.Retryable(err))
	require.Empty(t, repo.Entries())
}

func TestPostRejectsMalformedLines(t *testing.T) {
	svc := ledger.NewService(ledgertest.New(), nil, nil)
	ctx := context.Background()

	in := cashSale(12)
	in.Lines = in.Lines[:1]
	_, err := svc.Post(ctx, in)
	require.ErrorIs(t, err, ledger.ErrTooFewLines)

	in = cashSale(13)
	in.Lines[0].Credit = 1
	_, err = svc.Post(ctx, in)
	require.ErrorIs(t, err, ledger.ErrInvalidLine)

	in = cashSale(14)
	in.Lines[2].AccountCode = " "
	_, err = svc.Post(ctx, in)
	require.ErrorIs(t, err, ledger.ErrInvalidLine)

	in = cashSale(15)
	in.SourceType = "UNKNOWN"
	_, err = svc.Post(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostRejectsForeignBusinessSource(t *testing.T) {
	svc := ledger.NewService(ledgertest.New(), nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, cashSale(20))
	require.NoError(t, err)

	other := cashSale(20)
	other.BusinessID = 2
	_, err = svc.Post(ctx, other)
	require.ErrorIs(t, err, shared.ErrIntegrity)

	entries, err := svc.GetLedger(ctx, 2, ledger.SourceInvoiceCashSale, 20)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestConcurrentPostsCreateOneEntry(t *testing.T) {
	repo := ledgertest.New()
	svc := ledger.NewService(repo, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := svc.Post(ctx, cashSale(30))
			if err == nil {
				ids <- entry.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		require.Equal(t, first, id)
	}
	require.Len(t, repo.Entries(), 1)
}
