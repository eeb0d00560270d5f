package orders

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/platform/httpx"
	salesshared "github.com/odyssey-erp/odyssey-trade/internal/sales/shared"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := shared.NewPagination(httpx.IntQuery(r, "page", 1), httpx.IntQuery(r, "per_page", 50), 0)
	req := ListOrdersRequest{Limit: page.PerPage, Offset: page.Offset()}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		s := Status(v)
		req.Status = &s
	}
	if v := q.Get("payment_status"); v != "" {
		s := salesshared.PaymentStatus(v)
		req.PaymentStatus = &s
	}
	if v := q.Get("type"); v != "" {
		t := OrderType(v)
		req.Type = &t
	}
	orders, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": shared.NewPagination(page.Page, req.Limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	order, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) UpdateItems(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	order, err := h.service.UpdateItems(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ChangeStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	transition, err := h.service.ChangeStatus(r.Context(), id, req.Status, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transition)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	var opts []PaymentOption
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		opts = append(opts, WithIdempotencyKey(key))
	}
	order, err := h.service.RecordPayment(r.Context(), id, req.Amount, req.Notes, opts...)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

// Transitions lists the statuses the order may move to next.
func (h *Handler) Transitions(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": order.Status, "allowed": AllowedTransitions(order.Status)})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if p, ok := inventory.Problem(err); ok {
		httpx.WriteProblem(w, p)
		return
	}
	if p, ok := Problem(err); ok {
		httpx.WriteProblem(w, p)
		return
	}
	h.logger.Error("order request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

// Problem translates order errors into problem documents.
func Problem(err error) (httpx.ProblemDetail, bool) {
	var illegal *IllegalTransitionError
	var over *OverpaymentError
	switch {
	case errors.As(err, &illegal):
		return httpx.ProblemDetail{
			Title:  "Illegal Transition",
			Status: http.StatusConflict,
			Detail: illegal.Error(),
			Extra: map[string]any{
				"from":    illegal.From,
				"to":      illegal.To,
				"allowed": AllowedTransitions(illegal.From),
			},
		}, true
	case errors.As(err, &over):
		return httpx.ProblemDetail{
			Title:  "Overpayment Rejected",
			Status: http.StatusUnprocessableEntity,
			Detail: over.Error(),
			Extra: map[string]any{
				"total":     over.Total,
				"paid":      over.Paid,
				"attempted": over.Attempted,
			},
		}, true
	case errors.Is(err, ErrNotFound):
		return httpx.ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error()}, true
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidOrder):
		return httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()}, true
	case errors.Is(err, ErrOrderLocked):
		return httpx.ProblemDetail{Title: "Order Locked", Status: http.StatusConflict, Detail: err.Error()}, true
	case errors.Is(err, shared.ErrActorRequired):
		return httpx.ProblemDetail{Title: "Actor Required", Status: http.StatusBadRequest, Detail: err.Error()}, true
	}
	return httpx.ProblemDetail{}, false
}
