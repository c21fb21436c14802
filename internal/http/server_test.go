package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MarketSettle/internal/events"
	"MarketSettle/internal/models"
	"MarketSettle/internal/payments"
	"MarketSettle/internal/payout"
	"MarketSettle/internal/pricing"
	"MarketSettle/internal/services"
	"MarketSettle/internal/settlement"
	"MarketSettle/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	remote payout.RemoteAccount
	err    error
}

func (p *stubProvider) CreateAccount(ctx context.Context, sellerID, country string) (payout.RemoteAccount, error) {
	return payout.RemoteAccount{ExternalID: "acct_" + sellerID, Country: country}, p.err
}

func (p *stubProvider) FetchAccount(ctx context.Context, externalID string) (payout.RemoteAccount, error) {
	r := p.remote
	r.ExternalID = externalID
	return r, p.err
}

func (p *stubProvider) OnboardingLink(ctx context.Context, externalID string) (string, error) {
	return "https://connect.example/onboard/" + externalID, p.err
}

const webhookSecret = "whsec_test"

type stubCheckout struct{}

func (stubCheckout) StartCheckout(ctx context.Context, order *models.Order, amountMinor int64) (models.Checkout, error) {
	return models.Checkout{
		OrderID:     order.OrderID,
		SessionID:   "cs_" + order.OrderNumber,
		URL:         "https://checkout.example/" + order.OrderID,
		AmountMinor: amountMinor,
		Currency:    strings.ToLower(order.Currency),
	}, nil
}

type testServer struct {
	router   http.Handler
	store    *store.Memory
	provider *stubProvider
	orders   *services.OrderService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemory()
	provider := &stubProvider{}
	gate := &payout.Gate{Store: st, Provider: provider, Timeout: time.Second}
	hub := events.NewHub()
	orders := &services.OrderService{
		Store:      st,
		Pricing:    pricing.Service{FeeRate: pricing.DefaultFeeRate},
		Calculator: settlement.Calculator{MinorUnits: 2},
		Payouts:    gate,
		Events:     hub,
		Currency:   "USD",
	}
	webhooks := &payments.Processor{
		Orders:     orders,
		Payouts:    gate,
		Secret:     webhookSecret,
		Calculator: settlement.Calculator{MinorUnits: 2},
	}
	h := NewHandler(orders, gate, webhooks, hub)
	return &testServer{router: NewServer(h).Router, store: st, provider: provider, orders: orders}
}

func (s *testServer) do(t *testing.T, method, path string, actor *models.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("X-Actor-Role", string(actor.Role))
		req.Header.Set("X-Actor-Id", actor.ID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

var (
	buyer  = &models.Actor{Role: models.RoleBuyer, ID: "buyer-1"}
	seller = &models.Actor{Role: models.RoleSeller, ID: "seller-1"}
	system = &models.Actor{Role: models.RoleSystem, ID: "stripe"}
)

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (s *testServer) createOrder(t *testing.T, price string) orderResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/orders", buyer, map[string]any{
		"sellerId": "seller-1", "productId": "logo", "unitPrice": price, "quantity": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[orderResponse](t, rec)
}

func (s *testServer) advance(t *testing.T, id, status string, actor *models.Actor) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/orders/"+id+"/advance", actor, map[string]string{"status": status})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndGetOrder(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "2500.00")
	assert.Equal(t, "pending_payment", o.Status)
	assert.Equal(t, "2500.00", o.TotalAmount)
	assert.Equal(t, "250.00", o.PlatformFee)
	assert.Equal(t, "2250.00", o.SellerNet)
	assert.Equal(t, "ORD-00000001", o.OrderNumber)

	rec := s.do(t, http.MethodGet, "/orders/"+o.OrderID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[orderResponse](t, rec)
	assert.Equal(t, o.OrderID, got.OrderID)
}

func TestCreateOrderErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/orders", seller, map[string]any{"sellerId": "s", "productId": "p", "unitPrice": "1", "quantity": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/orders", buyer, map[string]any{"productId": "p", "unitPrice": "1", "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody[errorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/orders", buyer, map[string]any{"sellerId": "s", "productId": "p", "unitPrice": "-3", "quantity": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_amount", decodeBody[errorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/orders", buyer, map[string]any{"sellerId": "s", "productId": "p", "unitPrice": "5", "quantity": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/orders/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[errorResponse](t, rec).Error)
}

func TestAdvanceErrorCodes(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "10")

	rec := s.advance(t, o.OrderID, "delivered", seller)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeBody[errorResponse](t, rec).Error)

	rec = s.advance(t, o.OrderID, "paid", buyer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody[errorResponse](t, rec).Error)

	rec = s.advance(t, o.OrderID, "paid", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.advance(t, o.OrderID, "paid", system)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.advance(t, o.OrderID, "in_progress", seller)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "payout_not_ready", decodeBody[errorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/orders/"+o.OrderID+"/advance", buyer, map[string]string{"status": "cancelled", "expectedStatus": "pending_payment"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "concurrent_modification", decodeBody[errorResponse](t, rec).Error)

	rec = s.advance(t, o.OrderID, "cancelled", buyer)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.advance(t, o.OrderID, "refunded", system)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_terminal", decodeBody[errorResponse](t, rec).Error)
}

func TestOnboardingFlowUnblocksFulfilment(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "2500.00")
	require.Equal(t, http.StatusOK, s.advance(t, o.OrderID, "paid", system).Code)

	rec := s.do(t, http.MethodPost, "/sellers/seller-1/payout/onboarding", buyer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/sellers/seller-1/payout/onboarding", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "acct_seller-1")

	s.provider.remote = payout.RemoteAccount{ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}
	rec = s.do(t, http.MethodPost, "/sellers/seller-1/payout/refresh", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[payoutResponse](t, rec).FullyOnboarded)

	rec = s.do(t, http.MethodGet, "/sellers/seller-1/payout", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.advance(t, o.OrderID, "in_progress", seller)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in_progress", decodeBody[orderResponse](t, rec).Status)
}

func TestRefreshProviderUnavailable(t *testing.T) {
	s := newTestServer(t)
	_, err := s.store.CreatePayoutAccount(context.Background(), &models.PayoutAccount{SellerID: "seller-1", ExternalID: "acct_1"})
	require.NoError(t, err)
	s.provider.err = assert.AnError

	rec := s.do(t, http.MethodPost, "/sellers/seller-1/payout/refresh", system, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "provider_unavailable", decodeBody[errorResponse](t, rec).Error)

	body := decodeBody[staleAccountResponse](t, rec)
	require.NotNil(t, body.Account)
	assert.Equal(t, "acct_1", body.Account.ExternalID)
	assert.False(t, body.Account.FullyOnboarded)
}

func TestRefreshUnknownSellerHasNoAccount(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/sellers/seller-1/payout/refresh", system, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"account"`)
}

func TestNotesAndSummary(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "2500.00")
	require.Equal(t, http.StatusOK, s.advance(t, o.OrderID, "paid", system).Code)

	rec := s.do(t, http.MethodPatch, "/orders/"+o.OrderID+"/notes", seller, map[string]string{"notes": "kickoff call booked"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kickoff call booked", decodeBody[orderResponse](t, rec).SellerNotes)

	rec = s.do(t, http.MethodGet, "/sellers/seller-1/summary", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[summaryResponse](t, rec)
	assert.Equal(t, int64(1), sum.OrderCount)
	assert.Equal(t, "2250.00", sum.TotalRevenue)
	assert.Equal(t, "2250.00", sum.PendingPayout)
	assert.Equal(t, "2250.00", sum.AverageOrder)

	rec = s.do(t, http.MethodGet, "/sellers/nobody/summary?from=2026-01-01&to=2026-02-01", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decodeBody[summaryResponse](t, rec)
	assert.Equal(t, int64(0), empty.OrderCount)
	assert.Equal(t, "0.00", empty.AverageOrder)

	rec = s.do(t, http.MethodGet, "/sellers/seller-1/summary?from=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/sellers/seller-1/orders", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), o.OrderID)

	rec = s.do(t, http.MethodGet, "/orders/"+o.OrderID+"/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pending_payment")
}

func TestWebhookRejectsUnsigned(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/payments/webhook", nil, map[string]string{"type": "payment_intent.succeeded"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_signature", decodeBody[errorResponse](t, rec).Error)
}

func signedWebhook(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return req
}

func paymentSucceeded(orderID string, amountReceived int64, currency string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_%s",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_%s",
			"object": "payment_intent",
			"amount": %d,
			"amount_received": %d,
			"currency": %q,
			"metadata": {"order_id": %q}
		}}
	}`, orderID, orderID, amountReceived, amountReceived, currency, orderID))
}

func TestWebhookPaymentMarksOrderPaid(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "2500.00")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, signedWebhook(t, paymentSucceeded(o.OrderID, 250000, "usd")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := s.store.GetOrder(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, got.Status)
}

func TestWebhookPaymentMismatchLeavesOrderPending(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "2500.00")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, signedWebhook(t, paymentSucceeded(o.OrderID, 100, "eur")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[payments.Outcome](t, rec)
	assert.True(t, out.Ignored)

	got, err := s.store.GetOrder(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPendingPayment, got.Status)
	assert.Nil(t, got.PaidAt)
}

func TestCreateOrderStartsCheckout(t *testing.T) {
	s := newTestServer(t)
	s.orders.Checkout = stubCheckout{}

	rec := s.do(t, http.MethodPost, "/orders", buyer, map[string]any{
		"sellerId": "seller-1", "productId": "logo", "unitPrice": "2500.00", "quantity": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[createOrderResponse](t, rec)
	require.NotNil(t, created.Checkout)
	assert.Equal(t, "https://checkout.example/"+created.OrderID, created.Checkout.URL)
	assert.Equal(t, int64(250000), created.Checkout.AmountMinor)
	assert.Equal(t, "usd", created.Checkout.Currency)

	rec = s.do(t, http.MethodPost, "/orders/"+created.OrderID+"/checkout", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/orders/"+created.OrderID+"/checkout", seller, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateOrderWithoutCheckoutProvider(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "10")

	rec := s.do(t, http.MethodPost, "/orders/"+o.OrderID+"/checkout", buyer, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateOrderRejectsTooPrecisePrice(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/orders", buyer, map[string]any{
		"sellerId": "seller-1", "productId": "logo", "unitPrice": "0.0000025", "quantity": 10000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_amount", decodeBody[errorResponse](t, rec).Error)
}

func TestAdvanceUnknownExpectedStatus(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "10")
	rec := s.do(t, http.MethodPost, "/orders/"+o.OrderID+"/advance", system, map[string]string{"status": "paid", "expectedStatus": "foo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody[errorResponse](t, rec).Error)
}

func TestSellerEventsRequiresSeller(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]*models.Actor{
		"anonymous":    nil,
		"buyer":        buyer,
		"other seller": {Role: models.RoleSeller, ID: "seller-2"},
	}
	for name, actor := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/sellers/seller-1/events", actor, nil)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}
