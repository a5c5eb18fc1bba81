package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/vasiliy-maslov/checkout-backend/internal/config"
	"github.com/vasiliy-maslov/checkout-backend/internal/handler"
)

func NewRouter(h *handler.OrderHandler, adminToken string, corsCfg config.CORSConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsCfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "x-admin-token"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Post("/orders/create", h.CreateOrder)
	r.Post("/orders/confirm", h.ConfirmOrder)
	r.Post("/checkout/create", h.CreateCheckout)

	r.Route("/admin", func(r chi.Router) {
		r.Use(handler.RequireAdmin(adminToken))
		r.Get("/orders", h.ListOrders)
		r.Post("/orders/{id}/ship", h.ShipOrder)
	})

	return r
}
