package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderInProgress     OrderStatus = "in_progress"
	OrderDelivered      OrderStatus = "delivered"
	OrderCompleted      OrderStatus = "completed"
	OrderCancelled      OrderStatus = "cancelled"
	OrderRefunded       OrderStatus = "refunded"
)

// ParseOrderStatus accepts only the statuses the lifecycle knows about.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderPendingPayment, OrderPaid, OrderInProgress, OrderDelivered,
		OrderCompleted, OrderCancelled, OrderRefunded:
		return st, true
	}
	return "", false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderRefunded
}

type ActorRole string

const (
	RoleBuyer  ActorRole = "buyer"
	RoleSeller ActorRole = "seller"
	// RoleSystem is the payment collaborator.
	RoleSystem ActorRole = "system"
)

// Actor is supplied by the identity layer and trusted as-is.
type Actor struct {
	Role ActorRole
	ID   string
}

type Order struct {
	OrderID     string
	OrderNumber string
	BuyerID     string
	SellerID    string
	ProductID   string

	UnitPrice   decimal.Decimal
	Quantity    int64
	Subtotal    decimal.Decimal
	FeeRate     decimal.Decimal
	PlatformFee decimal.Decimal
	TotalAmount decimal.Decimal
	SellerNet   decimal.Decimal
	Currency    string

	Status  OrderStatus
	Version int64

	BuyerNotes  string
	SellerNotes string

	CreatedAt    time.Time
	PaidAt       *time.Time
	InProgressAt *time.Time
	DeliveredAt  *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	RefundedAt   *time.Time
	UpdatedAt    time.Time
}

// OrderEvent is one row of the append-only transition log.
type OrderEvent struct {
	OrderID  string
	SellerID string
	BuyerID  string
	From     OrderStatus
	To       OrderStatus
	Actor    Actor
	At       time.Time
}

type PayoutAccount struct {
	SellerID         string
	ExternalID       string
	Country          string
	Currency         string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (a PayoutAccount) FullyOnboarded() bool {
	return a.ChargesEnabled && a.PayoutsEnabled && a.DetailsSubmitted
}

// Checkout is a hosted payment page opened for one order.
type Checkout struct {
	OrderID     string
	SessionID   string
	URL         string
	AmountMinor int64
	Currency    string
}

type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

type SalesSummary struct {
	SellerID         string
	Window           Window
	TotalRevenue     decimal.Decimal
	WindowRevenue    decimal.Decimal
	PendingPayout    decimal.Decimal
	OrderCount       int64
	WindowOrderCount int64
	AverageOrder     decimal.Decimal
	StatusCounts     map[OrderStatus]int64
}
