package analytichttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-trade/internal/analytics"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

type stubService struct {
	summary analytics.Summary
	low     []analytics.LowStockItem
	err     error
	filter  analytics.SummaryFilter
}

func (s *stubService) Summary(ctx context.Context, filter analytics.SummaryFilter) (analytics.Summary, error) {
	s.filter = filter
	return s.summary, s.err
}

func (s *stubService) LowStock(ctx context.Context, limit int) ([]analytics.LowStockItem, error) {
	return s.low, s.err
}

func newRouter(svc AnalyticsService) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	h.WithNow(func() time.Time { return time.Date(2025, 5, 17, 9, 0, 0, 0, time.UTC) })
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := r.Header.Get("X-Actor-ID"); actor != "" {
				r = r.WithContext(shared.ContextWithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	})
	h.MountRoutes(r)
	return r
}

func TestSummaryDefaultsToCurrentMonth(t *testing.T) {
	svc := &stubService{summary: analytics.Summary{Revenue: decimal.RequireFromString("10")}}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if got := svc.filter.From.Format(time.DateOnly); got != "2025-05-01" {
		t.Fatalf("unexpected from %s", got)
	}
	if got := svc.filter.To.Format(time.DateOnly); got != "2025-06-01" {
		t.Fatalf("unexpected to %s", got)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["revenue"] != "10" {
		t.Fatalf("unexpected revenue %v", body["revenue"])
	}
}

func TestSummaryToIsInclusive(t *testing.T) {
	svc := &stubService{}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary?from=2025-01-01&to=2025-01-31", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := svc.filter.To.Format(time.DateOnly); got != "2025-02-01" {
		t.Fatalf("expected exclusive bound 2025-02-01 got %s", got)
	}
}

func TestSummaryRejectsBadDates(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary?from=2025-13", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newRouter(&stubService{err: analytics.ErrInvalidRange}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary?from=2025-02-01&to=2025-01-01", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range got %d", rec.Code)
	}
}

func TestSummaryRateLimitedPerActor(t *testing.T) {
	router := newRouter(&stubService{})
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/summary", nil)
		req.Header.Set("X-Actor-ID", "clerk:1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/summary", nil)
	req.Header.Set("X-Actor-ID", "clerk:1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/summary", nil)
	req.Header.Set("X-Actor-ID", "clerk:2")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other actor to pass, got %d", rec.Code)
	}
}

func TestLowStockListsItems(t *testing.T) {
	svc := &stubService{low: []analytics.LowStockItem{{ProductID: 4, SKU: "WID-4", CurrentStock: 1, ReorderLevel: 10}}}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/low-stock?limit=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body struct {
		Data []analytics.LowStockItem `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].SKU != "WID-4" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestLowStockFailureIsProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubService{err: io.ErrUnexpectedEOF}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/low-stock", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
		t.Fatalf("unexpected content type %s", ct)
	}
}
