package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentSnapshot(t *testing.T) {
	svc := Service{
		FeeRate:      DefaultFeeRate,
		ProductRates: map[string]decimal.Decimal{"premium": decimal.RequireFromString("0.05")},
	}

	snap, err := svc.CurrentSnapshot(context.Background(), "logo")
	require.NoError(t, err)
	assert.True(t, snap.FeeRate.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, "fixed", snap.Source)

	snap, err = svc.CurrentSnapshot(context.Background(), "premium")
	require.NoError(t, err)
	assert.True(t, snap.FeeRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, "product", snap.Source)
}

func TestCurrentSnapshotZeroRateIsKept(t *testing.T) {
	snap, err := Service{FeeRate: decimal.Zero}.CurrentSnapshot(context.Background(), "logo")
	require.NoError(t, err)
	assert.True(t, snap.FeeRate.IsZero())
}
