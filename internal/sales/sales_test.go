package sales

import (
	"testing"
	"time"

	"MarketSettle/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func order(status models.OrderStatus, net string, created time.Time) models.Order {
	return models.Order{
		SellerID:  "s-1",
		Status:    status,
		SellerNet: decimal.RequireFromString(net),
		CreatedAt: created,
	}
}

func TestMonthWindow(t *testing.T) {
	w := MonthWindow(time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), w.To)
	assert.True(t, w.Contains(w.From))
	assert.False(t, w.Contains(w.To))
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize("s-1", nil, MonthWindow(time.Now()), 2)
	assert.Equal(t, int64(0), s.OrderCount)
	assert.True(t, s.AverageOrder.IsZero())
	assert.True(t, s.TotalRevenue.IsZero())
	assert.True(t, s.PendingPayout.IsZero())
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	lastMonth := now.AddDate(0, -1, 0)
	orders := []models.Order{
		order(models.OrderCompleted, "2250.00", lastMonth),
		order(models.OrderPaid, "90.00", now),
		order(models.OrderInProgress, "45.00", now),
		order(models.OrderDelivered, "10.00", now),
		order(models.OrderPendingPayment, "5.00", now),
		order(models.OrderCancelled, "1000.00", now),
		order(models.OrderRefunded, "500.00", lastMonth),
		{SellerID: "s-2", Status: models.OrderCompleted, SellerNet: decimal.RequireFromString("999"), CreatedAt: now},
	}

	s := Summarize("s-1", orders, MonthWindow(now), 2)

	assert.Equal(t, "2400.00", s.TotalRevenue.StringFixed(2))
	assert.Equal(t, "150.00", s.WindowRevenue.StringFixed(2))
	assert.Equal(t, "145.00", s.PendingPayout.StringFixed(2))
	assert.Equal(t, int64(5), s.OrderCount)
	assert.Equal(t, int64(4), s.WindowOrderCount)
	assert.Equal(t, "480.00", s.AverageOrder.StringFixed(2))
	assert.Equal(t, int64(1), s.StatusCounts[models.OrderCancelled])
	assert.Equal(t, int64(1), s.StatusCounts[models.OrderRefunded])
}

func TestSummarizeAverageRoundsHalfEven(t *testing.T) {
	now := time.Now()
	orders := []models.Order{
		order(models.OrderCompleted, "0.10", now),
		order(models.OrderCompleted, "0.00", now),
		order(models.OrderCompleted, "0.00", now),
		order(models.OrderCompleted, "0.00", now),
	}
	// 0.10 / 4 = 0.025 -> 0.02
	s := Summarize("s-1", orders, MonthWindow(now), 2)
	assert.Equal(t, "0.02", s.AverageOrder.StringFixed(2))
}
