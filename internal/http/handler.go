package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MarketSettle/internal/events"
	"MarketSettle/internal/models"
	"MarketSettle/internal/payments"
	"MarketSettle/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const maxWebhookBytes = int64(65536)

type PayoutGate interface {
	Account(ctx context.Context, sellerID string) (*models.PayoutAccount, error)
	RequestOnboarding(ctx context.Context, sellerID string) (string, error)
	RefreshStatus(ctx context.Context, sellerID string) (*models.PayoutAccount, error)
}

type Handler struct {
	Orders     *services.OrderService
	Payouts    PayoutGate
	Webhooks   *payments.Processor
	Feed       *events.Hub
	MinorUnits int32
	validate   *validator.Validate
}

func NewHandler(orders *services.OrderService, payouts PayoutGate, webhooks *payments.Processor, feed *events.Hub) *Handler {
	return &Handler{
		Orders:     orders,
		Payouts:    payouts,
		Webhooks:   webhooks,
		Feed:       feed,
		MinorUnits: orders.Calculator.MinorUnits,
		validate:   validator.New(),
	}
}

type createOrderRequest struct {
	SellerID  string `json:"sellerId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	UnitPrice string `json:"unitPrice" validate:"required"`
	Quantity  int64  `json:"quantity"`
	Notes     string `json:"notes" validate:"max=4000"`
}

type advanceRequest struct {
	Status         string `json:"status" validate:"required"`
	ExpectedStatus string `json:"expectedStatus"`
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

func actorFrom(r *http.Request) (models.Actor, error) {
	role := models.ActorRole(strings.ToLower(strings.TrimSpace(r.Header.Get("X-Actor-Role"))))
	id := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	switch role {
	case models.RoleBuyer, models.RoleSeller, models.RoleSystem:
		return models.Actor{Role: role, ID: id}, nil
	case "":
		return models.Actor{}, fmt.Errorf("%w: missing X-Actor-Role", models.ErrUnauthorized)
	default:
		return models.Actor{}, fmt.Errorf("%w: unknown role %q", models.ErrUnauthorized, role)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, r, err)
		return false
	}
	return true
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if actor.Role != models.RoleBuyer {
		writeServiceError(w, r, fmt.Errorf("%w: only buyers place orders", models.ErrUnauthorized))
		return
	}

	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		writeServiceError(w, r, fmt.Errorf("%w: unit price %q is not a number", models.ErrInvalidAmount, req.UnitPrice))
		return
	}

	order, err := h.Orders.CreateOrder(r.Context(), services.CreateOrderInput{
		BuyerID:   actor.ID,
		SellerID:  req.SellerID,
		ProductID: req.ProductID,
		UnitPrice: price,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := createOrderResponse{orderResponse: newOrderResponse(order, h.MinorUnits)}
	if h.Orders.Checkout != nil {
		// the order stands even if checkout fails; the buyer retries via /checkout
		co, err := h.Orders.StartCheckout(r.Context(), order.OrderID, actor)
		if err != nil {
			resp.CheckoutError = err.Error()
		} else {
			resp.Checkout = newCheckoutResponse(co)
		}
	}
	writeJSON(w, r, http.StatusCreated, resp)
}

func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	co, err := h.Orders.StartCheckout(r.Context(), chi.URLParam(r, "orderId"), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newCheckoutResponse(co))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	order, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newOrderResponse(order, h.MinorUnits))
}

func (h *Handler) ListOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	evs, err := h.Orders.ListOrderEvents(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]events.Event, 0, len(evs))
	for _, ev := range evs {
		out = append(out, events.FromOrderEvent(ev))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"events": out})
}

func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req advanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.Orders.Advance(r.Context(), chi.URLParam(r, "orderId"), services.AdvanceRequest{
		Status:         models.OrderStatus(req.Status),
		ExpectedStatus: models.OrderStatus(req.ExpectedStatus),
		Actor:          actor,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newOrderResponse(order, h.MinorUnits))
}

func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req notesRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.Orders.UpdateNotes(r.Context(), chi.URLParam(r, "orderId"), actor, req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newOrderResponse(order, h.MinorUnits))
}

func (h *Handler) ListSellerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListSellerOrders(r.Context(), chi.URLParam(r, "sellerId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, newOrderResponse(&orders[i], h.MinorUnits))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"totalCount": len(out), "orders": out})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var window models.Window
	q := r.URL.Query()
	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		var err error
		if window.From, err = parseTime(from); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "from: "+err.Error())
			return
		}
		if window.To, err = parseTime(to); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "to: "+err.Error())
			return
		}
	}

	sum, err := h.Orders.Summarize(r.Context(), chi.URLParam(r, "sellerId"), window)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newSummaryResponse(sum, h.MinorUnits))
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("value required")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", v)
	}
	return t, nil
}

// sellerOrSystem allows the seller itself or the platform to manage a
// payout account or read the seller's event feed.
func sellerOrSystem(r *http.Request, sellerID string) error {
	actor, err := actorFrom(r)
	if err != nil {
		return err
	}
	if actor.Role == models.RoleSystem || (actor.Role == models.RoleSeller && actor.ID == sellerID) {
		return nil
	}
	return fmt.Errorf("%w: only seller %s or the platform may do this", models.ErrUnauthorized, sellerID)
}

func (h *Handler) GetPayoutAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Payouts.Account(r.Context(), chi.URLParam(r, "sellerId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newPayoutResponse(acct))
}

func (h *Handler) RequestOnboarding(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := sellerOrSystem(r, sellerID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	url, err := h.Payouts.RequestOnboarding(r.Context(), sellerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"onboardingUrl": url})
}

func (h *Handler) RefreshPayoutStatus(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := sellerOrSystem(r, sellerID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	acct, err := h.Payouts.RefreshStatus(r.Context(), sellerID)
	if err != nil {
		if acct != nil && errors.Is(err, models.ErrProviderUnavailable) {
			// last persisted state is still valid, hand it back with the error
			stale := newPayoutResponse(acct)
			writeJSON(w, r, http.StatusServiceUnavailable, staleAccountResponse{
				errorResponse: errorResponse{Error: "provider_unavailable", Message: err.Error()},
				Account:       &stale,
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newPayoutResponse(acct))
}

func (h *Handler) SellerEvents(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := sellerOrSystem(r, sellerID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.Feed.ServeSeller(w, r, sellerID)
}

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Webhooks == nil {
		writeError(w, r, http.StatusServiceUnavailable, "provider_unavailable", "webhooks not configured")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "invalid_request", "payload too large")
		return
	}
	out, err := h.Webhooks.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}
