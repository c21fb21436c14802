// Package payments turns Stripe webhook deliveries into lifecycle calls.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"MarketSettle/internal/models"
	"MarketSettle/internal/services"
	"MarketSettle/internal/settlement"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventAccountUpdated   = "account.updated"
)

var ErrBadSignature = errors.New("webhook signature verification failed")

type OrderAdvancer interface {
	Advance(ctx context.Context, orderID string, req services.AdvanceRequest) (*models.Order, error)
}

type PayoutRefresher interface {
	RefreshStatus(ctx context.Context, sellerID string) (*models.PayoutAccount, error)
}

type Processor struct {
	Orders  OrderAdvancer
	Payouts PayoutRefresher
	Secret  string
	// Calculator converts Stripe's minor-unit amounts back to decimals.
	Calculator settlement.Calculator
	Logger     *slog.Logger
}

// Outcome describes what a delivery did. Ignored deliveries are acknowledged
// without any state change.
type Outcome struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	OrderID   string `json:"orderId,omitempty"`
	SellerID  string `json:"sellerId,omitempty"`
	Ignored   bool   `json:"ignored"`
	Reason    string `json:"reason,omitempty"`
}

func (p *Processor) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Parse verifies the Stripe-Signature header and decodes the event.
func (p *Processor) Parse(payload []byte, signature string) (stripe.Event, error) {
	if p.Secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: webhook secret not configured", ErrBadSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.Secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ev, nil
}

func (p *Processor) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ev, err := p.Parse(payload, signature)
	if err != nil {
		return Outcome{}, err
	}
	return p.Apply(ctx, ev)
}

// Apply acts on a verified event. A returned error means the delivery should
// be retried by the sender.
func (p *Processor) Apply(ctx context.Context, ev stripe.Event) (Outcome, error) {
	out := Outcome{EventID: ev.ID, EventType: string(ev.Type)}
	switch string(ev.Type) {
	case EventPaymentSucceeded:
		return p.paymentSucceeded(ctx, ev, out)
	case EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("%w: decode payment intent: %v", models.ErrInvalidRequest, err)
		}
		out.OrderID = pi.Metadata["order_id"]
		out.Ignored = true
		out.Reason = "payment failed, order stays pending"
		p.log().Info("payment failed", "order_id", out.OrderID, "payment_intent", pi.ID)
		return out, nil
	case EventAccountUpdated:
		return p.accountUpdated(ctx, ev, out)
	default:
		out.Ignored = true
		out.Reason = "unhandled event type"
		return out, nil
	}
}

func (p *Processor) paymentSucceeded(ctx context.Context, ev stripe.Event, out Outcome) (Outcome, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return out, fmt.Errorf("%w: decode payment intent: %v", models.ErrInvalidRequest, err)
	}
	orderID := pi.Metadata["order_id"]
	out.OrderID = orderID
	if orderID == "" {
		out.Ignored = true
		out.Reason = "payment intent has no order_id metadata"
		return out, nil
	}

	order, err := p.Orders.Advance(ctx, orderID, services.AdvanceRequest{
		Status: models.OrderPaid,
		Actor:  models.Actor{Role: models.RoleSystem, ID: pi.ID},
		Payment: &services.PaymentProof{
			Reference: pi.ID,
			Amount:    p.Calculator.FromMinor(pi.AmountReceived),
			Currency:  string(pi.Currency),
		},
	})
	switch {
	case err == nil:
		out.SellerID = order.SellerID
		p.log().Info("payment confirmed", "order_id", orderID, "payment_intent", pi.ID)
		return out, nil
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrAlreadyTerminal):
		// redelivery, or a payment for an order that was already closed
		out.Ignored = true
		out.Reason = err.Error()
		p.log().Warn("payment not applied", "order_id", orderID, "payment_intent", pi.ID, "error", err)
		return out, nil
	case errors.Is(err, models.ErrInvalidAmount):
		// a retry carries the same amount, so acknowledge and leave the order pending
		out.Ignored = true
		out.Reason = err.Error()
		p.log().Error("payment amount mismatch", "order_id", orderID, "payment_intent", pi.ID, "error", err)
		return out, nil
	case errors.Is(err, models.ErrNotFound):
		out.Ignored = true
		out.Reason = "unknown order"
		p.log().Error("payment for unknown order", "order_id", orderID, "payment_intent", pi.ID)
		return out, nil
	default:
		return out, err
	}
}

func (p *Processor) accountUpdated(ctx context.Context, ev stripe.Event, out Outcome) (Outcome, error) {
	var acct stripe.Account
	if err := json.Unmarshal(ev.Data.Raw, &acct); err != nil {
		return out, fmt.Errorf("%w: decode account: %v", models.ErrInvalidRequest, err)
	}
	sellerID := acct.Metadata["seller_id"]
	out.SellerID = sellerID
	if sellerID == "" {
		out.Ignored = true
		out.Reason = "account has no seller_id metadata"
		return out, nil
	}
	if p.Payouts == nil {
		out.Ignored = true
		out.Reason = "payout gate not configured"
		return out, nil
	}
	// the event body is only a hint; the gate re-reads the provider itself
	if _, err := p.Payouts.RefreshStatus(ctx, sellerID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			out.Ignored = true
			out.Reason = "unknown seller"
			return out, nil
		}
		return out, err
	}
	return out, nil
}
