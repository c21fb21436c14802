package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MarketSettle/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transition(seller string) models.OrderEvent {
	return models.OrderEvent{
		OrderID:  "o-1",
		SellerID: seller,
		BuyerID:  "b-1",
		From:     models.OrderPaid,
		To:       models.OrderInProgress,
		Actor:    models.Actor{Role: models.RoleSeller, ID: seller},
		At:       time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestHubRoutesBySeller(t *testing.T) {
	h := NewHub()
	mine, unsubMine := h.Subscribe("s-1")
	defer unsubMine()
	other, unsubOther := h.Subscribe("s-2")
	defer unsubOther()

	h.Publish(transition("s-1"))

	select {
	case ev := <-mine:
		assert.Equal(t, "o-1", ev.OrderID)
		assert.Equal(t, "in_progress", ev.To)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case ev := <-other:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	h.Buffer = 1
	feed, unsub := h.Subscribe("s-1")
	defer unsub()

	h.Publish(transition("s-1"))
	h.Publish(transition("s-1"))

	assert.Len(t, feed, 1)
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	feed, unsub := h.Subscribe("s-1")
	assert.Equal(t, 1, h.Subscribers("s-1"))
	unsub()
	unsub()
	assert.Equal(t, 0, h.Subscribers("s-1"))
	_, ok := <-feed
	assert.False(t, ok)

	h.Publish(transition("s-1"))
}

func TestServeSellerStreamsEvents(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeSeller(w, r, "s-1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	h.Publish(transition("s-1"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "order.transitioned", ev.Type)
	assert.Equal(t, "paid", ev.From)
	assert.Equal(t, "seller", ev.ActorRole)
}
