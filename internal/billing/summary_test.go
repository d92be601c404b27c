package billing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice-billing/internal/billing"
	"github.com/odyssey-erp/backoffice-billing/internal/money"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
)

func TestSummarizeReferenceExample(t *testing.T) {
	earlier := fixedNow.AddDate(0, 0, -3)
	quotes := []billing.Quote{
		{ID: 1, Status: billing.QuoteSigned, SignedAt: &earlier, Total: 7000},
		{ID: 2, Status: billing.QuoteSigned, SignedAt: &fixedNow, Total: 10000},
		{ID: 3, Status: billing.QuoteCancelled, Total: 50000},
	}
	invoices := []billing.Invoice{
		{ID: 1, Status: billing.InvoiceSent, Total: 2500},
		{ID: 2, Status: billing.InvoicePaid, Total: 1500},
		{ID: 3, Status: billing.InvoiceCancelled, Total: 9000},
	}
	s, err := billing.Summarize(quotes, invoices)
	require.NoError(t, err)
	require.Equal(t, int64(2), *s.BillingQuoteID)
	require.Equal(t, money.FromCents(10000), s.TotalCents)
	require.Equal(t, money.FromCents(4000), s.AlreadyInvoicedCents)
	require.Equal(t, money.FromCents(1500), s.AlreadyPaidCents)
	require.Equal(t, money.FromCents(6000), s.RemainingCents)
	require.Equal(t, money.FromCents(2500), s.RemainingToCollectCents)
}

func TestSummarizeWithoutSignedQuote(t *testing.T) {
	s, err := billing.Summarize(nil, []billing.Invoice{{Status: billing.InvoiceSent, Total: 300}})
	require.NoError(t, err)
	require.Nil(t, s.BillingQuoteID)
	require.Equal(t, money.Zero, s.RemainingCents)
	require.Equal(t, money.FromCents(300), s.RemainingToCollectCents)
}

func TestStagedAmount(t *testing.T) {
	cases := []struct {
		name     string
		invoiced money.Amount
		req      billing.StageRequest
		want     money.Amount
		wantErr  error
	}{
		{name: "percent", req: billing.StageRequest{Mode: billing.StagePercent, Value: "30"}, want: 3000},
		{name: "fractional percent rounds half up", req: billing.StageRequest{Mode: billing.StagePercent, Value: "33.33"}, want: 3333},
		{name: "amount", req: billing.StageRequest{Mode: billing.StageAmount, Value: "4000"}, want: 4000},
		{name: "exactly the rest", invoiced: 6000, req: billing.StageRequest{Mode: billing.StageAmount, Value: "4000"}, want: 4000},
		{name: "over invoicing", invoiced: 6000, req: billing.StageRequest{Mode: billing.StagePercent, Value: "50"}, wantErr: billing.ErrOverInvoicing},
		{name: "percent above 100", req: billing.StageRequest{Mode: billing.StagePercent, Value: "100.01"}, wantErr: billing.ErrInvalidStage},
		{name: "three decimals", req: billing.StageRequest{Mode: billing.StagePercent, Value: "10.005"}, wantErr: billing.ErrInvalidStage},
		{name: "zero percent", req: billing.StageRequest{Mode: billing.StagePercent, Value: "0"}, wantErr: billing.ErrInvalidStage},
		{name: "fractional cents", req: billing.StageRequest{Mode: billing.StageAmount, Value: "10.5"}, wantErr: billing.ErrInvalidStage},
		{name: "negative amount", req: billing.StageRequest{Mode: billing.StageAmount, Value: "-1"}, wantErr: billing.ErrInvalidStage},
		{name: "unknown mode", req: billing.StageRequest{Mode: "HALF", Value: "1"}, wantErr: billing.ErrInvalidStage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := billing.StagedAmount(10000, tc.invoiced, tc.req)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.ErrorIs(t, err, shared.ErrValidation)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSummarizeRefusesPaidAboveInvoiced(t *testing.T) {
	_, err := billing.Summarize(nil, []billing.Invoice{
		{Status: billing.InvoiceSent, Total: -100},
		{Status: billing.InvoicePaid, Total: 50},
	})
	require.ErrorIs(t, err, shared.ErrIntegrity)
}
