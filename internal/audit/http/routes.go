package audithttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// entities maps the path segment to the entity name the services record.
var entities = map[string]string{
	"orders":          "order",
	"movements":       "stock_movement",
	"purchase-orders": "purchase_order",
	"shipments":       "shipment",
}

// MountRoutes registers the audit trail endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handleTimeline)
	r.Get("/{entity}/{id}", func(w http.ResponseWriter, r *http.Request) {
		entity, ok := entities[chi.URLParam(r, "entity")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.handleEntity(w, r, entity, chi.URLParam(r, "id"))
	})
}
