package perf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders/orderstest"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

type bench struct {
	router  http.Handler
	store   *inventorytest.Store
	product int64
}

func newBench(tb testing.TB) *bench {
	tb.Helper()
	store := inventorytest.NewStore()
	p := store.Seed("BENCH-1", 1_000_000, 0)
	svc := orders.NewService(orderstest.NewRepo(store), orders.ServiceConfig{
		Idempotency: shared.NewMemoryIdempotency(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), "bench")))
		})
	})
	orders.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	return &bench{router: r, store: store, product: p.ID}
}

func (b *bench) call(tb testing.TB, method, path, body string, want int) string {
	tb.Helper()
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)).WithContext(context.Background()))
	if rec.Code != want {
		tb.Fatalf("%s %s: expected %d got %d: %s", method, path, want, rec.Code, rec.Body.String())
	}
	return rec.Body.String()
}

// cycle creates an order, confirms it and cancels it again.
func (b *bench) cycle(tb testing.TB) {
	body := b.call(tb, http.MethodPost, "/orders", fmt.Sprintf(`{"type":"wholesale","items":[{"product_id":%d,"quantity":3,"unit_price":"9.99"}]}`, b.product), http.StatusCreated)
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &created); err != nil {
		tb.Fatalf("decode %s: %v", body, err)
	}
	path := fmt.Sprintf("/orders/%d/status", created.ID)
	b.call(tb, http.MethodPost, path, `{"status":"confirmed"}`, http.StatusOK)
	b.call(tb, http.MethodPost, path, `{"status":"cancelled"}`, http.StatusOK)
}

func TestOrderCycleLatencyTarget(t *testing.T) {
	b := newBench(t)
	samples := make([]time.Duration, 0, 200)
	for i := 0; i < 200; i++ {
		start := time.Now()
		b.cycle(t)
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("order cycle latency regression: p95=%s", p95)
	}
	if got := b.store.Stock(b.product); got != 1_000_000 {
		t.Fatalf("stock drifted to %d", got)
	}
}

func BenchmarkOrderCycle(b *testing.B) {
	bn := newBench(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bn.cycle(b)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
