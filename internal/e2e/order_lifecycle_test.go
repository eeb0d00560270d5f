package e2e

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-trade/internal/analytics"
	"github.com/odyssey-erp/odyssey-trade/internal/integration"
	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-trade/internal/observability"
	"github.com/odyssey-erp/odyssey-trade/internal/platform/events"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders/orderstest"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

type publishedEvent struct {
	topic string
	env   events.Envelope
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, env: env})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type recordingQueue struct {
	mu      sync.Mutex
	batches [][]int64
}

func (q *recordingQueue) EnqueueLowStockCheck(_ context.Context, ids []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batches = append(q.batches, slices.Clone(ids))
	return nil
}

type system struct {
	store     *inventorytest.Store
	inventory *inventory.Service
	orders    *orders.Service
	cache     *analytics.Cache
	publisher *recordingPublisher
	queue     *recordingQueue
	ctx       context.Context
}

func newSystem(t *testing.T) *system {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := analytics.NewCache(client, time.Minute, logger)
	publisher := &recordingPublisher{}
	queue := &recordingQueue{}
	hooks := integration.NewHooks(logger,
		integration.WithPublisher(publisher),
		integration.WithInvalidator(cache),
		integration.WithLowStockEnqueuer(queue),
		integration.WithMovementRecorder(observability.NewMetrics()),
	)

	store := inventorytest.NewStore()
	idem := shared.NewMemoryIdempotency()
	return &system{
		store:     store,
		inventory: inventory.NewService(store, nil, idem, hooks, logger),
		orders: orders.NewService(orderstest.NewRepo(store), orders.ServiceConfig{
			Idempotency: idem,
			Integration: hooks,
			Logger:      logger,
		}),
		cache:     cache,
		publisher: publisher,
		queue:     queue,
		ctx:       shared.ContextWithActor(context.Background(), "clerk:5"),
	}
}

func (s *system) order(t *testing.T, productID, qty int64) *orders.Order {
	t.Helper()
	price := decimal.RequireFromString("12.50")
	o, err := s.orders.Create(s.ctx, orders.CreateOrderRequest{
		Type:  orders.OrderTypeWholesale,
		Items: []orders.ItemInput{{ProductID: productID, Quantity: qty, UnitPrice: &price}},
	})
	require.NoError(t, err)
	return o
}

func (s *system) requireConsistent(t *testing.T) {
	t.Helper()
	drifted, err := s.inventory.Reconcile(s.ctx)
	require.NoError(t, err)
	require.Empty(t, drifted)
}

func TestOrderLifecycleKeepsLedgerAndCounterInStep(t *testing.T) {
	s := newSystem(t)
	p := s.store.Seed("PIPE-20", 10, 4)
	before, err := s.cache.Version(s.ctx)
	require.NoError(t, err)

	o := s.order(t, p.ID, 7)
	_, err = s.orders.ChangeStatus(s.ctx, o.ID, orders.StatusConfirmed, "clerk:5")
	require.NoError(t, err)
	require.Equal(t, int64(3), s.store.Stock(p.ID))
	require.Equal(t, [][]int64{{p.ID}}, s.queue.batches)
	require.Equal(t, []string{events.TopicOrderStatus, events.TopicStockMovements}, s.publisher.topics())

	after, err := s.cache.Version(s.ctx)
	require.NoError(t, err)
	require.Greater(t, after, before)

	for _, status := range []orders.Status{orders.StatusPacked, orders.StatusShipped} {
		_, err = s.orders.ChangeStatus(s.ctx, o.ID, status, "clerk:5")
		require.NoError(t, err)
	}
	require.Equal(t, int64(3), s.store.Stock(p.ID))

	_, err = s.orders.ChangeStatus(s.ctx, o.ID, orders.StatusCancelled, "clerk:5")
	require.NoError(t, err)
	require.Equal(t, int64(10), s.store.Stock(p.ID))

	movements := s.store.MovementsFor(inventory.OrderRef{OrderID: o.ID})
	require.Len(t, movements, 2)
	require.Equal(t, inventory.ReasonSale, movements[0].Reason)
	require.Equal(t, inventory.ReasonReturn, movements[1].Reason)
	s.requireConsistent(t)

	_, err = s.orders.ChangeStatus(s.ctx, o.ID, orders.StatusPending, "clerk:5")
	var illegal *orders.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
}

func TestConcurrentConfirmationsNeverOversell(t *testing.T) {
	s := newSystem(t)
	p := s.store.Seed("VALVE-1", 5, 0)

	const contenders = 6
	ids := make([]int64, contenders)
	for i := range ids {
		ids[i] = s.order(t, p.ID, 2).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = s.orders.ChangeStatus(s.ctx, id, orders.StatusConfirmed, "clerk:5")
		}(i, id)
	}
	wg.Wait()

	confirmed := 0
	for _, err := range errs {
		if err == nil {
			confirmed++
			continue
		}
		var short *inventory.InsufficientStockError
		require.True(t, errors.As(err, &short), "unexpected error %v", err)
	}
	require.Equal(t, 2, confirmed)
	require.Equal(t, int64(1), s.store.Stock(p.ID))
	s.requireConsistent(t)
}

func TestPaymentsAndAdjustmentsAreIdempotent(t *testing.T) {
	s := newSystem(t)
	p := s.store.Seed("TAPE-5", 50, 10)
	o := s.order(t, p.ID, 4)

	paid, err := s.orders.RecordPayment(s.ctx, o.ID, decimal.RequireFromString("20"), "", orders.WithIdempotencyKey("pay-1"))
	require.NoError(t, err)
	require.Equal(t, "20", paid.PaidAmount.String())
	_, err = s.orders.RecordPayment(s.ctx, o.ID, decimal.RequireFromString("20"), "", orders.WithIdempotencyKey("pay-1"))
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	_, err = s.orders.RecordPayment(s.ctx, o.ID, decimal.RequireFromString("40"), "")
	var over *orders.OverpaymentError
	require.ErrorAs(t, err, &over)

	adj := inventory.AdjustmentInput{ProductID: p.ID, Quantity: -3, Reason: inventory.ReasonDamage, IdempotencyKey: "adj-1"}
	_, err = s.inventory.Adjust(s.ctx, adj)
	require.NoError(t, err)
	_, err = s.inventory.Adjust(s.ctx, adj)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(47), s.store.Stock(p.ID))
	s.requireConsistent(t)
}
