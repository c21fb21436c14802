package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketSettle/internal/models"
)

// Memory is an in-process store with the same conditional-write semantics
// as the Postgres store. Selected with db.driver=memory and used by tests.
type Memory struct {
	mu       sync.RWMutex
	seq      int64
	orders   map[string]models.Order
	events   []models.OrderEvent
	accounts map[string]models.PayoutAccount
}

func NewMemory() *Memory {
	return &Memory{
		orders:   make(map[string]models.Order),
		accounts: make(map[string]models.PayoutAccount),
	}
}

func (m *Memory) NextOrderNumber(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *Memory) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.OrderID]; ok {
		return fmt.Errorf("order %s already exists", order.OrderID)
	}
	for _, o := range m.orders {
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("order number %s already used", order.OrderNumber)
		}
	}
	m.orders[order.OrderID] = cloneOrder(*order)
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	c := cloneOrder(o)
	return &c, nil
}

func (m *Memory) TransitionOrder(ctx context.Context, next *models.Order, fromStatus models.OrderStatus, fromVersion int64, ev models.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[next.OrderID]
	if !ok {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, next.OrderID)
	}
	if cur.Status != fromStatus || cur.Version != fromVersion {
		return fmt.Errorf("%w: order %s moved to %s", models.ErrConcurrentModification, next.OrderID, cur.Status)
	}
	stored := cloneOrder(*next)
	// notes are written independently of transitions
	stored.BuyerNotes = cur.BuyerNotes
	stored.SellerNotes = cur.SellerNotes
	m.orders[next.OrderID] = stored
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) UpdateNotes(ctx context.Context, orderID string, role models.ActorRole, notes string, at time.Time) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	switch role {
	case models.RoleBuyer:
		o.BuyerNotes = notes
	case models.RoleSeller:
		o.SellerNotes = notes
	default:
		return nil, fmt.Errorf("%w: role %q has no notes", models.ErrUnauthorized, role)
	}
	o.UpdatedAt = at.UTC()
	m.orders[orderID] = o
	c := cloneOrder(o)
	return &c, nil
}

// ListSellerOrders copies the seller's orders under the read lock, newest first.
func (m *Memory) ListSellerOrders(ctx context.Context, sellerID string) ([]models.Order, error) {
	m.mu.RLock()
	out := make([]models.Order, 0)
	for _, o := range m.orders {
		if o.SellerID == sellerID {
			out = append(out, cloneOrder(o))
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderNumber > out[j].OrderNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ListOrderEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.orders[orderID]; !ok {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	out := make([]models.OrderEvent, 0)
	for _, ev := range m.events {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) GetPayoutAccount(ctx context.Context, sellerID string) (*models.PayoutAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[sellerID]
	if !ok {
		return nil, fmt.Errorf("%w: payout account for seller %s", models.ErrNotFound, sellerID)
	}
	return &a, nil
}

func (m *Memory) CreatePayoutAccount(ctx context.Context, acct *models.PayoutAccount) (*models.PayoutAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.accounts[acct.SellerID]; ok {
		return &existing, nil
	}
	m.accounts[acct.SellerID] = *acct
	stored := *acct
	return &stored, nil
}

func (m *Memory) UpdatePayoutAccount(ctx context.Context, acct *models.PayoutAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.accounts[acct.SellerID]
	if !ok {
		return fmt.Errorf("%w: payout account for seller %s", models.ErrNotFound, acct.SellerID)
	}
	cur.Country = acct.Country
	cur.Currency = acct.Currency
	cur.ChargesEnabled = acct.ChargesEnabled
	cur.PayoutsEnabled = acct.PayoutsEnabled
	cur.DetailsSubmitted = acct.DetailsSubmitted
	cur.UpdatedAt = acct.UpdatedAt
	m.accounts[acct.SellerID] = cur
	return nil
}

// ListPendingPayoutAccounts returns accounts that are not fully onboarded.
func (m *Memory) ListPendingPayoutAccounts(ctx context.Context, limit int) ([]models.PayoutAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.PayoutAccount, 0)
	for _, a := range m.accounts {
		if !a.FullyOnboarded() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountPaidOrders reports how many of the seller's orders sit in paid.
func (m *Memory) CountPaidOrders(ctx context.Context, sellerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, o := range m.orders {
		if o.SellerID == sellerID && o.Status == models.OrderPaid {
			n++
		}
	}
	return n, nil
}

func cloneOrder(o models.Order) models.Order {
	o.PaidAt = cloneTime(o.PaidAt)
	o.InProgressAt = cloneTime(o.InProgressAt)
	o.DeliveredAt = cloneTime(o.DeliveredAt)
	o.CompletedAt = cloneTime(o.CompletedAt)
	o.CancelledAt = cloneTime(o.CancelledAt)
	o.RefundedAt = cloneTime(o.RefundedAt)
	return o
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
