// Package sales derives seller dashboards from the order ledger at read
// time. Nothing here is persisted.
package sales

import (
	"time"

	"MarketSettle/internal/models"

	"github.com/shopspring/decimal"
)

// MonthWindow returns the UTC calendar month containing asOf.
func MonthWindow(asOf time.Time) models.Window {
	t := asOf.UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return models.Window{From: from, To: from.AddDate(0, 1, 0)}
}

func counted(s models.OrderStatus) bool {
	return s != models.OrderCancelled && s != models.OrderRefunded
}

func pending(s models.OrderStatus) bool {
	return s == models.OrderPaid || s == models.OrderInProgress || s == models.OrderDelivered
}

// Summarize folds a snapshot of one seller's orders. Orders belonging to
// other sellers are ignored.
func Summarize(sellerID string, orders []models.Order, window models.Window, minorUnits int32) models.SalesSummary {
	sum := models.SalesSummary{
		SellerID:      sellerID,
		Window:        window,
		TotalRevenue:  decimal.Zero,
		WindowRevenue: decimal.Zero,
		PendingPayout: decimal.Zero,
		AverageOrder:  decimal.Zero,
		StatusCounts:  make(map[models.OrderStatus]int64),
	}
	for _, o := range orders {
		if o.SellerID != sellerID {
			continue
		}
		sum.StatusCounts[o.Status]++
		if !counted(o.Status) {
			continue
		}
		sum.TotalRevenue = sum.TotalRevenue.Add(o.SellerNet)
		sum.OrderCount++
		if window.Contains(o.CreatedAt) {
			sum.WindowRevenue = sum.WindowRevenue.Add(o.SellerNet)
			sum.WindowOrderCount++
		}
		if pending(o.Status) {
			sum.PendingPayout = sum.PendingPayout.Add(o.SellerNet)
		}
	}
	if sum.OrderCount > 0 {
		sum.AverageOrder = sum.TotalRevenue.Div(decimal.NewFromInt(sum.OrderCount)).RoundBank(minorUnits)
	}
	return sum
}
