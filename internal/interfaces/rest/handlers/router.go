package handlers

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"kirapay/internal/interfaces/rest/middleware"
)

// InitRouter wires the HTTP surface. Requests carry an upstream-attached
// caller id; this service does not authenticate.
func (h *Handlers) InitRouter(requestTimeout time.Duration, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.Timeout(requestTimeout),
		middleware.Identity(),
	)

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments", h.CreatePayment)
		r.Get("/payments/{payment_id}", h.GetPayment)
		r.Get("/jobs/{job_id}", h.GetJob)
	})

	return r
}
