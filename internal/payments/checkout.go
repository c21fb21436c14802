package payments

import (
	"context"
	"net/http"
	"strings"
	"time"

	"MarketSettle/internal/models"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// StripeCheckout opens Stripe Checkout sessions. The order id travels in the
// payment intent metadata so the succeeded webhook can find the order.
type StripeCheckout struct {
	api        *client.API
	successURL string
	cancelURL  string
}

func NewStripeCheckout(secretKey string, timeout time.Duration, successURL, cancelURL string) *StripeCheckout {
	httpClient := &http.Client{Timeout: timeout}
	return &StripeCheckout{
		api:        client.New(secretKey, stripe.NewBackends(httpClient)),
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

func (c *StripeCheckout) StartCheckout(ctx context.Context, order *models.Order, amountMinor int64) (models.Checkout, error) {
	currency := strings.ToLower(order.Currency)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SubmitType:        stripe.String("pay"),
		Currency:          stripe.String(currency),
		ClientReferenceID: stripe.String(order.OrderID),
		SuccessURL:        stripe.String(c.successURL),
		CancelURL:         stripe.String(c.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(amountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(order.OrderNumber),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"order_id":  order.OrderID,
				"seller_id": order.SellerID,
				"buyer_id":  order.BuyerID,
			},
		},
	}
	params.Context = ctx
	// same order and amount within Stripe's idempotency window returns the same session
	params.SetIdempotencyKey("checkout-" + order.OrderID + "-" + order.TotalAmount.String())

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return models.Checkout{}, err
	}
	return models.Checkout{
		OrderID:     order.OrderID,
		SessionID:   sess.ID,
		URL:         sess.URL,
		AmountMinor: amountMinor,
		Currency:    currency,
	}, nil
}
