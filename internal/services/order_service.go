package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"MarketSettle/internal/events"
	"MarketSettle/internal/lifecycle"
	"MarketSettle/internal/models"
	"MarketSettle/internal/pricing"
	"MarketSettle/internal/sales"
	"MarketSettle/internal/settlement"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStore is the ledger contract. TransitionOrder must apply next only if
// the stored order still has fromStatus and fromVersion, wrapping
// models.ErrConcurrentModification otherwise.
type OrderStore interface {
	NextOrderNumber(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	TransitionOrder(ctx context.Context, next *models.Order, fromStatus models.OrderStatus, fromVersion int64, ev models.OrderEvent) error
	UpdateNotes(ctx context.Context, orderID string, role models.ActorRole, notes string, at time.Time) (*models.Order, error)
	ListSellerOrders(ctx context.Context, sellerID string) ([]models.Order, error)
	ListOrderEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error)
}

// CheckoutStarter opens a hosted payment for an order. amountMinor is the
// order total in the currency's minor units.
type CheckoutStarter interface {
	StartCheckout(ctx context.Context, order *models.Order, amountMinor int64) (models.Checkout, error)
}

// ReadinessChecker reports whether a seller may start fulfilment.
type ReadinessChecker interface {
	Ready(ctx context.Context, sellerID string) error
}

type OrderService struct {
	Store      OrderStore
	Pricing    pricing.Service
	Calculator settlement.Calculator
	Payouts    ReadinessChecker
	Events     events.Publisher
	Checkout   CheckoutStarter
	Currency   string
	Now        func() time.Time
	Logger     *slog.Logger
}

type CreateOrderInput struct {
	BuyerID   string
	SellerID  string
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int64
	Notes     string
}

type AdvanceRequest struct {
	Status models.OrderStatus
	// ExpectedStatus, when set, is the status the caller last observed.
	ExpectedStatus models.OrderStatus
	Actor          models.Actor
	// Payment, when set on a move to paid, must match the order total.
	Payment *PaymentProof
}

// PaymentProof is what the processor reports it actually collected.
type PaymentProof struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *OrderService) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if strings.TrimSpace(in.BuyerID) == "" {
		return nil, fmt.Errorf("%w: missing buyer", models.ErrUnauthorized)
	}
	if strings.TrimSpace(in.SellerID) == "" || strings.TrimSpace(in.ProductID) == "" {
		return nil, fmt.Errorf("%w: seller and product are required", models.ErrInvalidRequest)
	}

	snap, err := s.Pricing.CurrentSnapshot(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	preview, err := s.Calculator.Compute(in.UnitPrice, in.Quantity, snap.FeeRate)
	if err != nil {
		return nil, err
	}

	n, err := s.Store.NextOrderNumber(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		OrderID:     uuid.NewString(),
		OrderNumber: FormatOrderNumber(n),
		BuyerID:     in.BuyerID,
		SellerID:    in.SellerID,
		ProductID:   in.ProductID,
		UnitPrice:   in.UnitPrice,
		Quantity:    in.Quantity,
		Currency:    s.Currency,
		Status:      models.OrderPendingPayment,
		Version:     1,
		BuyerNotes:  in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	settlement.Apply(order, snap.FeeRate, preview)

	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.log().Info("order created", "order_id", order.OrderID, "order_number", order.OrderNumber, "seller_id", order.SellerID)
	return order, nil
}

func FormatOrderNumber(n int64) string {
	return fmt.Sprintf("ORD-%08d", n)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.Store.GetOrder(ctx, orderID)
}

// Advance performs one lifecycle transition as a single conditional write.
// Failures leave the order untouched and are never retried here.
func (s *OrderService) Advance(ctx context.Context, orderID string, req AdvanceRequest) (*models.Order, error) {
	cur, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if req.ExpectedStatus != "" {
		if _, ok := models.ParseOrderStatus(string(req.ExpectedStatus)); !ok {
			return nil, fmt.Errorf("%w: unknown expected status %q", models.ErrInvalidRequest, req.ExpectedStatus)
		}
	}
	if req.ExpectedStatus != "" && req.ExpectedStatus != cur.Status {
		if cur.Status.Terminal() {
			return nil, fmt.Errorf("%w: order is %s", models.ErrAlreadyTerminal, cur.Status)
		}
		return nil, fmt.Errorf("%w: expected %s, order is %s", models.ErrConcurrentModification, req.ExpectedStatus, cur.Status)
	}

	parties := lifecycle.Parties{BuyerID: cur.BuyerID, SellerID: cur.SellerID}
	if err := lifecycle.Check(cur.Status, req.Status, req.Actor, parties); err != nil {
		return nil, err
	}

	if req.Status == models.OrderPaid && req.Payment != nil {
		if err := matchPayment(cur, *req.Payment); err != nil {
			s.log().Error("payment does not match order",
				"order_id", cur.OrderID,
				"reference", req.Payment.Reference,
				"expected", cur.TotalAmount.String()+" "+cur.Currency,
				"received", req.Payment.Amount.String()+" "+req.Payment.Currency,
			)
			return nil, err
		}
	}

	if req.Status == models.OrderInProgress {
		if s.Payouts == nil {
			return nil, fmt.Errorf("%w: no payout gate configured", models.ErrPayoutNotReady)
		}
		if err := s.Payouts.Ready(ctx, cur.SellerID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	next := lifecycle.Apply(*cur, req.Status, now)

	if req.Status == models.OrderPaid {
		snap, err := s.Pricing.CurrentSnapshot(ctx, cur.ProductID)
		if err != nil {
			return nil, err
		}
		res, err := s.Calculator.Compute(cur.UnitPrice, cur.Quantity, snap.FeeRate)
		if err != nil {
			return nil, err
		}
		settlement.Apply(&next, snap.FeeRate, res)
	}

	ev := models.OrderEvent{
		OrderID:  cur.OrderID,
		SellerID: cur.SellerID,
		BuyerID:  cur.BuyerID,
		From:     cur.Status,
		To:       req.Status,
		Actor:    req.Actor,
		At:       now,
	}
	if err := s.Store.TransitionOrder(ctx, &next, cur.Status, cur.Version, ev); err != nil {
		return nil, s.explainConflict(ctx, orderID, err)
	}

	s.log().Info("order transitioned",
		"order_id", cur.OrderID,
		"seller_id", cur.SellerID,
		"from", cur.Status,
		"to", req.Status,
		"actor", req.Actor.Role,
	)
	if s.Events != nil {
		s.Events.Publish(ev)
	}
	return &next, nil
}

func matchPayment(o *models.Order, p PaymentProof) error {
	if !strings.EqualFold(p.Currency, o.Currency) || !p.Amount.Equal(o.TotalAmount) {
		return fmt.Errorf("%w: payment %s of %s %s does not match order total %s %s",
			models.ErrInvalidAmount, p.Reference, p.Amount, strings.ToUpper(p.Currency), o.TotalAmount, o.Currency)
	}
	return nil
}

// StartCheckout opens a hosted payment for a pending order. Only the order's
// buyer may start it.
func (s *OrderService) StartCheckout(ctx context.Context, orderID string, actor models.Actor) (*models.Checkout, error) {
	cur, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleBuyer || actor.ID != cur.BuyerID {
		return nil, fmt.Errorf("%w: only the order's buyer may pay", models.ErrUnauthorized)
	}
	switch {
	case cur.Status.Terminal():
		return nil, fmt.Errorf("%w: order is %s", models.ErrAlreadyTerminal, cur.Status)
	case cur.Status != models.OrderPendingPayment:
		return nil, fmt.Errorf("%w: order is already %s", models.ErrInvalidTransition, cur.Status)
	}
	if s.Checkout == nil {
		return nil, fmt.Errorf("%w: no checkout provider configured", models.ErrProviderUnavailable)
	}

	co, err := s.Checkout.StartCheckout(ctx, cur, s.Calculator.ToMinor(cur.TotalAmount))
	if err != nil {
		s.log().Warn("checkout start failed", "order_id", cur.OrderID, "error", err)
		if errors.Is(err, models.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	s.log().Info("checkout started", "order_id", cur.OrderID, "session_id", co.SessionID)
	return &co, nil
}

// explainConflict reports a lost race against a terminal write as
// ErrAlreadyTerminal, since no retry could succeed.
func (s *OrderService) explainConflict(ctx context.Context, orderID string, err error) error {
	latest, gerr := s.Store.GetOrder(ctx, orderID)
	if gerr == nil && latest.Status.Terminal() {
		return fmt.Errorf("%w: order became %s", models.ErrAlreadyTerminal, latest.Status)
	}
	return err
}

func (s *OrderService) UpdateNotes(ctx context.Context, orderID string, actor models.Actor, notes string) (*models.Order, error) {
	cur, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleBuyer:
		if actor.ID != cur.BuyerID {
			return nil, fmt.Errorf("%w: actor is not the order's buyer", models.ErrUnauthorized)
		}
	case models.RoleSeller:
		if actor.ID != cur.SellerID {
			return nil, fmt.Errorf("%w: actor is not the order's seller", models.ErrUnauthorized)
		}
	default:
		return nil, fmt.Errorf("%w: role %q cannot write notes", models.ErrUnauthorized, actor.Role)
	}
	return s.Store.UpdateNotes(ctx, orderID, actor.Role, notes, s.now())
}

func (s *OrderService) ListSellerOrders(ctx context.Context, sellerID string) ([]models.Order, error) {
	return s.Store.ListSellerOrders(ctx, sellerID)
}

func (s *OrderService) ListOrderEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error) {
	return s.Store.ListOrderEvents(ctx, orderID)
}

// Summarize aggregates the seller's orders over window. A zero window means
// the current calendar month.
func (s *OrderService) Summarize(ctx context.Context, sellerID string, window models.Window) (models.SalesSummary, error) {
	if window.From.IsZero() && window.To.IsZero() {
		window = sales.MonthWindow(s.now())
	}
	if !window.To.After(window.From) {
		return models.SalesSummary{}, fmt.Errorf("%w: window end must be after start", models.ErrInvalidRequest)
	}
	orders, err := s.Store.ListSellerOrders(ctx, sellerID)
	if err != nil {
		return models.SalesSummary{}, err
	}
	return sales.Summarize(sellerID, orders, window, s.Calculator.MinorUnits), nil
}
