package http

import (
	"time"

	"MarketSettle/internal/models"
)

type orderResponse struct {
	OrderID      string `json:"orderId"`
	OrderNumber  string `json:"orderNumber"`
	BuyerID      string `json:"buyerId"`
	SellerID     string `json:"sellerId"`
	ProductID    string `json:"productId"`
	UnitPrice    string `json:"unitPrice"`
	Quantity     int64  `json:"quantity"`
	Subtotal     string `json:"subtotal"`
	FeeRate      string `json:"feeRate"`
	PlatformFee  string `json:"platformFee"`
	TotalAmount  string `json:"totalAmount"`
	SellerNet    string `json:"sellerNet"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	Version      int64  `json:"version"`
	BuyerNotes   string `json:"buyerNotes"`
	SellerNotes  string `json:"sellerNotes"`
	CreatedAt    string `json:"createdAt"`
	PaidAt       string `json:"paidAt,omitempty"`
	InProgressAt string `json:"inProgressAt,omitempty"`
	DeliveredAt  string `json:"deliveredAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
	CancelledAt  string `json:"cancelledAt,omitempty"`
	RefundedAt   string `json:"refundedAt,omitempty"`
	UpdatedAt    string `json:"updatedAt"`
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func newOrderResponse(o *models.Order, minor int32) orderResponse {
	return orderResponse{
		OrderID:      o.OrderID,
		OrderNumber:  o.OrderNumber,
		BuyerID:      o.BuyerID,
		SellerID:     o.SellerID,
		ProductID:    o.ProductID,
		UnitPrice:    o.UnitPrice.String(),
		Quantity:     o.Quantity,
		Subtotal:     o.Subtotal.StringFixedBank(minor),
		FeeRate:      o.FeeRate.String(),
		PlatformFee:  o.PlatformFee.StringFixedBank(minor),
		TotalAmount:  o.TotalAmount.StringFixedBank(minor),
		SellerNet:    o.SellerNet.StringFixedBank(minor),
		Currency:     o.Currency,
		Status:       string(o.Status),
		Version:      o.Version,
		BuyerNotes:   o.BuyerNotes,
		SellerNotes:  o.SellerNotes,
		CreatedAt:    o.CreatedAt.UTC().Format(time.RFC3339),
		PaidAt:       formatOptional(o.PaidAt),
		InProgressAt: formatOptional(o.InProgressAt),
		DeliveredAt:  formatOptional(o.DeliveredAt),
		CompletedAt:  formatOptional(o.CompletedAt),
		CancelledAt:  formatOptional(o.CancelledAt),
		RefundedAt:   formatOptional(o.RefundedAt),
		UpdatedAt:    o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type createOrderResponse struct {
	orderResponse
	Checkout      *checkoutResponse `json:"checkout,omitempty"`
	CheckoutError string            `json:"checkoutError,omitempty"`
}

type checkoutResponse struct {
	SessionID   string `json:"sessionId"`
	URL         string `json:"url"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
}

func newCheckoutResponse(c *models.Checkout) *checkoutResponse {
	return &checkoutResponse{
		SessionID:   c.SessionID,
		URL:         c.URL,
		AmountMinor: c.AmountMinor,
		Currency:    c.Currency,
	}
}

type summaryResponse struct {
	SellerID         string           `json:"sellerId"`
	From             string           `json:"from"`
	To               string           `json:"to"`
	TotalRevenue     string           `json:"totalRevenue"`
	WindowRevenue    string           `json:"windowRevenue"`
	PendingPayout    string           `json:"pendingPayout"`
	OrderCount       int64            `json:"orderCount"`
	WindowOrderCount int64            `json:"windowOrderCount"`
	AverageOrder     string           `json:"averageOrder"`
	StatusCounts     map[string]int64 `json:"statusCounts"`
}

func newSummaryResponse(s models.SalesSummary, minor int32) summaryResponse {
	counts := make(map[string]int64, len(s.StatusCounts))
	for k, v := range s.StatusCounts {
		counts[string(k)] = v
	}
	return summaryResponse{
		SellerID:         s.SellerID,
		From:             s.Window.From.UTC().Format(time.RFC3339),
		To:               s.Window.To.UTC().Format(time.RFC3339),
		TotalRevenue:     s.TotalRevenue.StringFixedBank(minor),
		WindowRevenue:    s.WindowRevenue.StringFixedBank(minor),
		PendingPayout:    s.PendingPayout.StringFixedBank(minor),
		OrderCount:       s.OrderCount,
		WindowOrderCount: s.WindowOrderCount,
		AverageOrder:     s.AverageOrder.StringFixedBank(minor),
		StatusCounts:     counts,
	}
}

type payoutResponse struct {
	SellerID         string `json:"sellerId"`
	ExternalID       string `json:"externalId"`
	Country          string `json:"country,omitempty"`
	Currency         string `json:"currency,omitempty"`
	ChargesEnabled   bool   `json:"chargesEnabled"`
	PayoutsEnabled   bool   `json:"payoutsEnabled"`
	DetailsSubmitted bool   `json:"detailsSubmitted"`
	FullyOnboarded   bool   `json:"fullyOnboarded"`
	UpdatedAt        string `json:"updatedAt"`
}

func newPayoutResponse(a *models.PayoutAccount) payoutResponse {
	return payoutResponse{
		SellerID:         a.SellerID,
		ExternalID:       a.ExternalID,
		Country:          a.Country,
		Currency:         a.Currency,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
		FullyOnboarded:   a.FullyOnboarded(),
		UpdatedAt:        a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type staleAccountResponse struct {
	errorResponse
	Account *payoutResponse `json:"account"`
}
