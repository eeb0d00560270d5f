package inventory

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-trade/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/products/{id}/movements", h.listMovements)
	r.Post("/adjustments", h.adjust)
	r.Get("/reconciliation", h.reconcile)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page := shared.NewPagination(httpx.IntQuery(r, "page", 1), httpx.IntQuery(r, "per_page", 50), 0)
	filter := ProductFilter{
		LowStockOnly: r.URL.Query().Get("low_stock") == "true",
		Limit:        page.PerPage,
		Offset:       page.Offset(),
	}
	products, total, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       products,
		"pagination": shared.NewPagination(page.Page, filter.Limit, total),
	})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.Movements(r.Context(), MovementFilter{ProductID: id, Limit: httpx.IntQuery(r, "limit", 200)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": movements})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	movement, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	drifted, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consistent": len(drifted) == 0, "drifted": drifted})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if p, ok := Problem(err); ok {
		httpx.WriteProblem(w, p)
		return
	}
	h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

// Problem translates inventory errors into problem documents. The second result is
// false for errors this package does not own.
func Problem(err error) (httpx.ProblemDetail, bool) {
	var short *InsufficientStockError
	switch {
	case errors.As(err, &short):
		return httpx.ProblemDetail{
			Title:  "Insufficient Stock",
			Status: http.StatusUnprocessableEntity,
			Detail: short.Error(),
			Extra: map[string]any{
				"product_id": short.ProductID,
				"sku":        short.SKU,
				"requested":  short.Requested,
				"available":  short.Available,
				"shortfall":  short.Shortfall(),
			},
		}, true
	case errors.Is(err, ErrProductNotFound):
		return httpx.ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error()}, true
	case errors.Is(err, ErrDuplicateSKU):
		return httpx.ProblemDetail{Title: "Duplicate", Status: http.StatusConflict, Detail: err.Error()}, true
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidMovement):
		return httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()}, true
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return httpx.ProblemDetail{Title: "Duplicate Request", Status: http.StatusConflict, Detail: err.Error()}, true
	}
	return httpx.ProblemDetail{}, false
}
