package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/shipper-client/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware агента.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5, "application/json"))
	r.Use(custommiddleware.RequestLogger(h.logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/available", h.GetAvailable)
			r.Post("/available/refresh", h.RefreshAvailable)
			r.Get("/mine", h.GetMyOrders)
			r.Post("/{id}/accept", h.AcceptOrder)
			r.Post("/{id}/complete", h.CompleteOrder)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
