package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const requestTimeout = 15 * time.Second

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	// the event feed is long-lived and must not inherit the request timeout
	r.Get("/sellers/{sellerId}/events", handler.SellerEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handler.CreateOrder)
			r.Get("/{orderId}", handler.GetOrder)
			r.Get("/{orderId}/events", handler.ListOrderEvents)
			r.Post("/{orderId}/checkout", handler.StartCheckout)
			r.Post("/{orderId}/advance", handler.AdvanceOrder)
			r.Patch("/{orderId}/notes", handler.UpdateNotes)
		})

		r.Get("/sellers/{sellerId}/orders", handler.ListSellerOrders)
		r.Get("/sellers/{sellerId}/summary", handler.Summary)
		r.Get("/sellers/{sellerId}/payout", handler.GetPayoutAccount)
		r.Post("/sellers/{sellerId}/payout/onboarding", handler.RequestOnboarding)
		r.Post("/sellers/{sellerId}/payout/refresh", handler.RefreshPayoutStatus)

		r.Post("/payments/webhook", handler.StripeWebhook)
	})

	return &Server{Router: r}
}
