package procurement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pos", h.listPOs)
	r.Post("/pos", h.createPO)
	r.Get("/pos/{id}", h.getPO)
	r.Post("/pos/{id}/order", h.orderPO)
	r.Post("/pos/{id}/cancel", h.cancelPO)
	r.Post("/pos/{id}/receive", h.receivePO)
	r.Get("/shipments", h.listShipments)
	r.Post("/shipments", h.createShipment)
	r.Get("/shipments/{id}", h.getShipment)
	r.Post("/shipments/{id}/receive", h.receiveShipment)
}

func listFilters(r *http.Request) ListFilters {
	page := shared.NewPagination(httpx.IntQuery(r, "page", 1), httpx.IntQuery(r, "per_page", 20), 0)
	return ListFilters{Status: r.URL.Query().Get("status"), Limit: page.PerPage, Offset: page.Offset()}
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	filters := listFilters(r)
	pos, total, err := h.service.ListPurchaseOrders(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": pos, "total": total})
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var input CreatePurchaseOrderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) orderPO(w http.ResponseWriter, r *http.Request) {
	h.movePO(w, r, h.service.MarkOrdered)
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	h.movePO(w, r, h.service.Cancel)
}

func (h *Handler) movePO(w http.ResponseWriter, r *http.Request, move func(context.Context, int64) (PurchaseOrder, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := move(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) receivePO(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, movements, err := h.service.Receive(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_order": po, "movements": movements})
}

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	shipments, total, err := h.service.ListShipments(r.Context(), listFilters(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": shipments, "total": total})
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	var input CreateShipmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	sh, err := h.service.CreateShipment(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sh)
}

func (h *Handler) getShipment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sh, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sh)
}

func (h *Handler) receiveShipment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sh, movements, err := h.service.ReceiveShipment(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shipment": sh, "movements": movements})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if p, ok := inventory.Problem(err); ok {
		httpx.WriteProblem(w, p)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, shared.ErrActorRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
