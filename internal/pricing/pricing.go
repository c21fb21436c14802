package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// DefaultFeeRate is the marketplace's standard cut of each subtotal.
var DefaultFeeRate = decimal.RequireFromString("0.10")

type Service struct {
	FeeRate      decimal.Decimal
	ProductRates map[string]decimal.Decimal
}

type Snapshot struct {
	FeeRate decimal.Decimal `json:"fee_rate"`
	Source  string          `json:"source"`
}

// CurrentSnapshot returns the fee rate that applies to productID right now.
// Callers freeze the result onto the order; nothing reads it back later.
func (s Service) CurrentSnapshot(ctx context.Context, productID string) (Snapshot, error) {
	if rate, ok := s.ProductRates[productID]; ok {
		return Snapshot{FeeRate: rate, Source: "product"}, nil
	}
	return Snapshot{FeeRate: s.FeeRate, Source: "fixed"}, nil
}
