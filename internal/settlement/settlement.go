package settlement

import (
	"fmt"

	"MarketSettle/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultMinorUnits is the number of decimal places of most currencies.
const DefaultMinorUnits = 2

// MaxPriceScale is the number of decimal places a stored unit price keeps.
const MaxPriceScale = 6

var one = decimal.NewFromInt(1)

type Result struct {
	Subtotal    decimal.Decimal
	PlatformFee decimal.Decimal
	SellerNet   decimal.Decimal
}

// Calculator splits a subtotal into platform fee and seller net. It holds no
// state besides the currency scale and is safe to share.
type Calculator struct {
	MinorUnits int32
}

func (c Calculator) places() int32 {
	if c.MinorUnits < 0 {
		return DefaultMinorUnits
	}
	return c.MinorUnits
}

// Compute rounds half-to-even at the minor unit. SellerNet is derived by
// subtraction so fee and net always add back to the subtotal.
func (c Calculator) Compute(unitPrice decimal.Decimal, quantity int64, feeRate decimal.Decimal) (Result, error) {
	if !unitPrice.IsPositive() {
		return Result{}, fmt.Errorf("%w: unit price must be positive, got %s", models.ErrInvalidAmount, unitPrice)
	}
	if !unitPrice.Equal(unitPrice.Truncate(MaxPriceScale)) {
		return Result{}, fmt.Errorf("%w: unit price %s has more than %d decimal places", models.ErrInvalidAmount, unitPrice, MaxPriceScale)
	}
	if quantity <= 0 {
		return Result{}, fmt.Errorf("%w: quantity must be at least 1, got %d", models.ErrInvalidAmount, quantity)
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(one) {
		return Result{}, fmt.Errorf("%w: fee rate must be in [0, 1), got %s", models.ErrInvalidAmount, feeRate)
	}

	places := c.places()
	subtotal := unitPrice.Mul(decimal.NewFromInt(quantity)).RoundBank(places)
	if !subtotal.IsPositive() {
		return Result{}, fmt.Errorf("%w: subtotal rounds to zero", models.ErrInvalidAmount)
	}
	fee := subtotal.Mul(feeRate).RoundBank(places)
	return Result{
		Subtotal:    subtotal,
		PlatformFee: fee,
		SellerNet:   subtotal.Sub(fee),
	}, nil
}

// Compute uses the default two-decimal currency scale.
func Compute(unitPrice decimal.Decimal, quantity int64, feeRate decimal.Decimal) (Result, error) {
	return Calculator{MinorUnits: DefaultMinorUnits}.Compute(unitPrice, quantity, feeRate)
}

// ToMinor converts an amount already rounded to the currency scale into
// integer minor units, the form card processors expect.
func (c Calculator) ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(c.places()).RoundBank(0).IntPart()
}

func (c Calculator) FromMinor(units int64) decimal.Decimal {
	return decimal.New(units, -c.places())
}

// Apply writes a result onto the order's pricing fields.
func Apply(order *models.Order, feeRate decimal.Decimal, r Result) {
	order.FeeRate = feeRate
	order.Subtotal = r.Subtotal
	order.PlatformFee = r.PlatformFee
	order.TotalAmount = r.Subtotal
	order.SellerNet = r.SellerNet
}

// Verify recomputes the settlement from the order's frozen inputs and reports
// any field that disagrees with what is stored.
func (c Calculator) Verify(order models.Order) error {
	r, err := c.Compute(order.UnitPrice, order.Quantity, order.FeeRate)
	if err != nil {
		return err
	}
	switch {
	case !r.Subtotal.Equal(order.Subtotal):
		return fmt.Errorf("order %s subtotal drift: stored %s, computed %s", order.OrderID, order.Subtotal, r.Subtotal)
	case !r.PlatformFee.Equal(order.PlatformFee):
		return fmt.Errorf("order %s platform fee drift: stored %s, computed %s", order.OrderID, order.PlatformFee, r.PlatformFee)
	case !r.SellerNet.Equal(order.SellerNet):
		return fmt.Errorf("order %s seller net drift: stored %s, computed %s", order.OrderID, order.SellerNet, r.SellerNet)
	case !order.TotalAmount.Equal(order.SellerNet.Add(order.PlatformFee)):
		return fmt.Errorf("order %s total %s does not equal net plus fee", order.OrderID, order.TotalAmount)
	}
	return nil
}
