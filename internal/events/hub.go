package events

import (
	"log/slog"
	"sync"
	"time"

	"MarketSettle/internal/models"
)

const defaultBuffer = 32

// Event is the wire shape pushed to feed subscribers.
type Event struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"orderId"`
	SellerID  string    `json:"sellerId"`
	BuyerID   string    `json:"buyerId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorRole string    `json:"actorRole"`
	At        time.Time `json:"at"`
}

func FromOrderEvent(ev models.OrderEvent) Event {
	return Event{
		Type:      "order.transitioned",
		OrderID:   ev.OrderID,
		SellerID:  ev.SellerID,
		BuyerID:   ev.BuyerID,
		From:      string(ev.From),
		To:        string(ev.To),
		ActorRole: string(ev.Actor.Role),
		At:        ev.At,
	}
}

type Publisher interface {
	Publish(ev models.OrderEvent)
}

type subscriber struct {
	ch chan Event
}

// Hub fans committed transitions out to per-seller subscribers. Publish
// never blocks; a subscriber that falls behind loses events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	Buffer int
	Logger *slog.Logger
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), Buffer: defaultBuffer}
}

func (h *Hub) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Subscribe registers a feed for sellerID. The returned func must be called
// to release it.
func (h *Hub) Subscribe(sellerID string) (<-chan Event, func()) {
	size := h.Buffer
	if size <= 0 {
		size = defaultBuffer
	}
	sub := &subscriber{ch: make(chan Event, size)}

	h.mu.Lock()
	if h.subs[sellerID] == nil {
		h.subs[sellerID] = make(map[*subscriber]struct{})
	}
	h.subs[sellerID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[sellerID], sub)
			if len(h.subs[sellerID]) == 0 {
				delete(h.subs, sellerID)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

func (h *Hub) Publish(ev models.OrderEvent) {
	out := FromOrderEvent(ev)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.SellerID] {
		select {
		case sub.ch <- out:
		default:
			h.log().Warn("event feed subscriber lagging, dropping event", "seller_id", ev.SellerID, "order_id", ev.OrderID)
		}
	}
}

func (h *Hub) Subscribers(sellerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sellerID])
}
