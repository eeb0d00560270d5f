package analytichttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/odyssey-erp/odyssey-trade/internal/analytics"
	"github.com/odyssey-erp/odyssey-trade/internal/platform/httpx"
)

const requestTimeout = 2 * time.Second

var errBadDate = errors.New("analytics: dates must be YYYY-MM-DD")

// AnalyticsService defines the report contract used by the handler.
type AnalyticsService interface {
	Summary(ctx context.Context, filter analytics.SummaryFilter) (analytics.Summary, error)
	LowStock(ctx context.Context, limit int) ([]analytics.LowStockItem, error)
}

// Handler serves the back-office reports.
type Handler struct {
	logger  *slog.Logger
	service AnalyticsService
	now     func() time.Time
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service AnalyticsService) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// WithNow overrides the clock used for default date windows.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.Summary(ctx, filter)
	if err != nil {
		h.fail(w, r, "summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	items, err := h.service.LowStock(ctx, httpx.IntQuery(r, "limit", 50))
	if err != nil {
		h.fail(w, r, "low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// parseFilter reads from/to as calendar dates. The window defaults to the current
// month and to is inclusive on the wire, exclusive internally.
func (h *Handler) parseFilter(r *http.Request) (analytics.SummaryFilter, error) {
	now := h.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return analytics.SummaryFilter{}, errBadDate
		}
		from = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return analytics.SummaryFilter{}, errBadDate
		}
		to = parsed.AddDate(0, 0, 1)
	}
	return analytics.SummaryFilter{From: from, To: to, LowStockLimit: httpx.IntQuery(r, "low_stock_limit", 20)}, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "report took too long")
	default:
		h.logger.Error("analytics "+op, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "report unavailable")
	}
}
