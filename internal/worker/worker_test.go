package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"MarketSettle/internal/models"
	"MarketSettle/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) RefreshStatus(ctx context.Context, sellerID string) (*models.PayoutAccount, error) {
	args := m.Called(sellerID)
	acct, _ := args.Get(0).(*models.PayoutAccount)
	return acct, args.Error(1)
}

func seedAccount(t *testing.T, st *store.Memory, sellerID string, onboarded bool) {
	t.Helper()
	_, err := st.CreatePayoutAccount(context.Background(), &models.PayoutAccount{
		SellerID:         sellerID,
		ExternalID:       "acct_" + sellerID,
		ChargesEnabled:   onboarded,
		PayoutsEnabled:   onboarded,
		DetailsSubmitted: onboarded,
		UpdatedAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
}

func seedPaidOrder(t *testing.T, st *store.Memory, id, sellerID string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.CreateOrder(context.Background(), &models.Order{
		OrderID:     id,
		OrderNumber: "ORD-" + id,
		BuyerID:     "buyer-1",
		SellerID:    sellerID,
		ProductID:   "p-1",
		UnitPrice:   decimal.RequireFromString("10"),
		Quantity:    1,
		Status:      models.OrderPaid,
		Version:     2,
		CreatedAt:   now,
		PaidAt:      &now,
		UpdatedAt:   now,
	}))
}

func TestSyncOnceRefreshesPendingAccounts(t *testing.T) {
	st := store.NewMemory()
	seedAccount(t, st, "s-1", false)
	seedAccount(t, st, "s-2", false)
	seedAccount(t, st, "s-done", true)
	seedPaidOrder(t, st, "o-1", "s-2")

	r := &mockRefresher{}
	r.On("RefreshStatus", "s-1").Return(&models.PayoutAccount{
		SellerID: "s-1", ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true,
	}, nil).Once()
	r.On("RefreshStatus", "s-2").Return(&models.PayoutAccount{SellerID: "s-2"}, nil).Once()

	w := &Worker{Store: st, Payouts: r, BatchSize: 10}
	stats, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Checked: 2, Onboarded: 1, Blocked: 1}, stats)
	r.AssertExpectations(t)
	r.AssertNotCalled(t, "RefreshStatus", "s-done")
}

func TestSyncOnceCountsProviderFailures(t *testing.T) {
	st := store.NewMemory()
	seedAccount(t, st, "s-1", false)
	seedPaidOrder(t, st, "o-1", "s-1")

	r := &mockRefresher{}
	r.On("RefreshStatus", "s-1").
		Return(&models.PayoutAccount{SellerID: "s-1"}, fmt.Errorf("%w: timeout", models.ErrProviderUnavailable)).
		Once()

	w := &Worker{Store: st, Payouts: r}
	stats, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Blocked)
}

func TestSyncOnceHonoursBatchSize(t *testing.T) {
	st := store.NewMemory()
	for i := 0; i < 5; i++ {
		seedAccount(t, st, fmt.Sprintf("s-%d", i), false)
	}
	r := &mockRefresher{}
	r.On("RefreshStatus", mock.Anything).Return(&models.PayoutAccount{}, nil)

	w := &Worker{Store: st, Payouts: r, BatchSize: 2}
	stats, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Checked)
	r.AssertNumberOfCalls(t, "RefreshStatus", 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &mockRefresher{}
	w := &Worker{Store: store.NewMemory(), Payouts: r, Interval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
