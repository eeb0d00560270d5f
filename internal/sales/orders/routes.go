package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Post("/orders", h.Create)
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Put("/items", h.UpdateItems)
		r.Post("/status", h.ChangeStatus)
		r.Post("/payments", h.RecordPayment)
		r.Get("/transitions", h.Transitions)
	})
}
