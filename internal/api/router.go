package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the handler onto a chi router
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Link", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/bids", h.PlaceBid)
		r.Get("/bids", h.ListBids)
		r.Get("/bids/{id}", h.GetBid)
		r.Put("/bids/{id}", h.UpdateBid)
		r.Delete("/bids/{id}", h.CancelBid)
		r.Get("/product-options/{id}/bids", h.OptionBids)
		r.Get("/trades/{id}", h.GetTrade)
		r.Post("/trades/{id}/cancel", h.CancelTrade)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireAdmin)
			r.Post("/bids/{id}/cancel", h.AdminCancelBid)
			r.Get("/bids", h.AdminListBids)
			r.Get("/trades", h.AdminListTrades)
			r.Post("/trades/{id}/complete", h.CompleteTrade)
		})
	})

	return r
}
