package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestSplitInclusive(t *testing.T) {
	cases := []struct {
		name    string
		total   Amount
		rate    Rate
		wantNet Amount
		wantVAT Amount
	}{
		{"twenty percent", 12000, 2000, 10000, 2000},
		{"fractional rate", 1000, 550, 948, 52},
		{"half rounds up", 3, 2000, 3, 0},
		{"tiny total", 1, 2000, 1, 0},
		{"zero rate", 4999, 0, 4999, 0},
		{"zero total", 0, 2000, 0, 0},
		{"full rate", 101, MaxRate, 51, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			net, vat, err := SplitInclusive(tc.total, tc.rate)
			require.NoError(t, err)
			assert.Equal(t, tc.wantNet, net)
			assert.Equal(t, tc.wantVAT, vat)
		})
	}
}

func TestSplitInclusiveAlwaysSumsToTotal(t *testing.T) {
	rates := []Rate{0, 1, 250, 550, 700, 1000, 1999, 2000, 3333, MaxRate}
	for _, rate := range rates {
		for total := Amount(0); total <= 2500; total++ {
			net, vat, err := SplitInclusive(total, rate)
			require.NoError(t, err)
			require.Equal(t, total, net+vat, "total=%d rate=%d", total, rate)
			require.GreaterOrEqual(t, int64(net), int64(0))
			require.GreaterOrEqual(t, int64(vat), int64(0))
		}
	}

	net, vat, err := SplitInclusive(Amount(math.MaxInt64), 2000)
	require.NoError(t, err)
	require.Equal(t, Amount(math.MaxInt64), net+vat)
}

func TestSplitInclusiveRejectsInvalidInput(t *testing.T) {
	_, _, err := SplitInclusive(-1, 2000)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = SplitInclusive(100, MaxRate+1)
	require.ErrorIs(t, err, ErrInvalidRate)

	_, _, err = SplitInclusive(100, -5)
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestParseRate(t *testing.T) {
	r, err := ParseRate("5.5")
	require.NoError(t, err)
	require.Equal(t, Rate(550), r)
	require.Equal(t, "5.5", r.Percent())

	_, err = ParseRate("5.555")
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = ParseRate("101")
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestParseAndString(t *testing.T) {
	a, err := Parse("1234.5")
	require.NoError(t, err)
	require.Equal(t, Amount(123450), a)
	require.Equal(t, "1234.50", a.String())

	_, err = Parse("0.001")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Parse("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestArithmeticOverflow(t *testing.T) {
	_, err := Amount(math.MaxInt64).Add(1)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Amount(math.MaxInt64 / 2).Mul(3)
	require.ErrorIs(t, err, ErrOverflow)

	v, err := Amount(2500).Mul(4)
	require.NoError(t, err)
	require.Equal(t, Amount(10000), v)

	total, err := Sum(100, 200, 300)
	require.NoError(t, err)
	require.Equal(t, Amount(600), total)
}

func TestRateOf(t *testing.T) {
	v, err := Rate(3333).Of(10000)
	require.NoError(t, err)
	require.Equal(t, Amount(3333), v)

	v, err = Rate(5000).Of(3)
	require.NoError(t, err)
	require.Equal(t, Amount(2), v)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "1,234.50", Amount(123450).Format(language.English))
	require.Equal(t, "1.234,50", Amount(123450).Format(language.German))
}
