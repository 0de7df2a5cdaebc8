package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
	}{
		{"Dollars", "30.00", "usd", 3000},
		{"Cents", "10.99", "USD", 1099},
		{"HalfCentRoundsUp", "0.005", "usd", 1},
		{"ZeroDecimal", "1500", "jpy", 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToMinorUnits(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("30.00").Equal(FromMinorUnits(3000, "usd")))
	assert.True(t, decimal.NewFromInt(1500).Equal(FromMinorUnits(1500, "jpy")))
}

func TestSplitShareNeverExceedsAmount(t *testing.T) {
	amount := decimal.RequireFromString("10.00")
	share := decimal.RequireFromString("0.70")

	for n := 1; n <= 7; n++ {
		part := SplitShare(amount, share, n)
		total := part.Mul(decimal.NewFromInt(int64(n)))
		assert.True(t, total.LessThanOrEqual(amount), "n=%d total=%s", n, total)
		assert.True(t, part.Equal(part.Truncate(2)))
	}

	assert.Equal(t, "7", SplitShare(amount, share, 1).String())
	assert.Equal(t, "2.33", SplitShare(amount, share, 3).String())
	assert.True(t, SplitShare(amount, share, 0).IsZero())
}

func TestSandboxGateway(t *testing.T) {
	log, _ := test.NewNullLogger()
	g := NewSandboxGateway(log)
	ctx := context.Background()

	intent, err := g.CreateIntent(ctx, IntentParams{PaymentID: uuid.New(), Amount: decimal.NewFromInt(30), Currency: "usd"})
	require.NoError(t, err)
	secret, err := g.IntentSecret(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.ClientSecret, secret)

	ready, err := g.PayeeReady(ctx, "")
	require.NoError(t, err)
	assert.False(t, ready)
}
