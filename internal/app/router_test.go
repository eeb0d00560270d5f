package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-trade/internal/observability"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders/orderstest"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type routerFixture struct {
	handler http.Handler
	store   *inventorytest.Store
}

func newRouterFixture(t *testing.T, db Pinger) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := inventorytest.NewStore()
	idem := shared.NewMemoryIdempotency()
	inv := inventory.NewService(store, nil, idem, nil, logger)
	ord := orders.NewService(orderstest.NewRepo(store), orders.ServiceConfig{Idempotency: idem, Logger: logger})

	handler := NewRouter(RouterParams{
		Logger:           logger,
		Config:           &Config{AppEnv: "test", RateLimitPerMin: 1000},
		InventoryHandler: inventory.NewHandler(logger, inv),
		OrdersHandler:    orders.NewHandler(logger, ord),
		Database:         db,
		Metrics:          observability.NewMetrics(),
	})
	return &routerFixture{handler: handler, store: store}
}

func (f *routerFixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzCarriesSecurityHeaders(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestReadyzReflectsDatabase(t *testing.T) {
	healthy := newRouterFixture(t, pingFunc(func(context.Context) error { return nil }))
	rec := healthy.do(http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	down := newRouterFixture(t, pingFunc(func(context.Context) error { return errors.New("connection refused") }))
	rec = down.do(http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestActorHeaderReachesLedger(t *testing.T) {
	f := newRouterFixture(t, nil)
	p := f.store.Seed("BOLT-10", 20, 5)
	body := fmt.Sprintf(`{"product_id":%d,"quantity":-2,"reason":"damage"}`, p.ID)

	rec := f.do(http.MethodPost, "/inventory/adjustments", body, ActorHeader, "clerk:9")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var movement inventory.StockMovement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &movement))
	require.Equal(t, "clerk:9", movement.Actor)
	require.Equal(t, int64(18), f.store.Stock(p.ID))

	rec = f.do(http.MethodPost, "/inventory/adjustments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &movement))
	require.Equal(t, shared.SystemActor, movement.Actor)
}

func TestActorHeaderTooLong(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.do(http.MethodGet, "/inventory/products", "", ActorHeader, strings.Repeat("a", maxActorLength+1))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSalesRoutesMounted(t *testing.T) {
	f := newRouterFixture(t, nil)
	p := f.store.Seed("NUT-4", 3, 0)
	body := fmt.Sprintf(`{"type":"retail","items":[{"product_id":%d,"quantity":1}]}`, p.ID)

	rec := f.do(http.MethodPost, "/sales/orders", body, ActorHeader, "clerk:2")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/sales/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.do(http.MethodGet, "/healthz", "")

	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "odyssey_http_requests_total")
}
