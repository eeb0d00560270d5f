package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/platform/events"
	"github.com/odyssey-erp/odyssey-trade/internal/procurement"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders"
)

// Invalidator drops cached reports after stock or order data changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// LowStockEnqueuer schedules a reorder-level check for products whose stock fell.
type LowStockEnqueuer interface {
	EnqueueLowStockCheck(ctx context.Context, productIDs []int64) error
}

// MovementRecorder counts ledger entries by type and reason.
type MovementRecorder interface {
	ObserveStockMovement(movementType, reason string)
}

// Hooks fans committed domain events out to Kafka, the report cache, the job queue
// and metrics. Every sink is optional.
type Hooks struct {
	publisher events.Publisher
	cache     Invalidator
	lowStock  LowStockEnqueuer
	metrics   MovementRecorder
	logger    *slog.Logger
}

// Option configures Hooks.
type Option func(*Hooks)

// WithPublisher routes events to a broker.
func WithPublisher(p events.Publisher) Option { return func(h *Hooks) { h.publisher = p } }

// WithInvalidator bumps the report cache on every change.
func WithInvalidator(c Invalidator) Option { return func(h *Hooks) { h.cache = c } }

// WithLowStockEnqueuer schedules reorder checks after outbound movements.
func WithLowStockEnqueuer(q LowStockEnqueuer) Option { return func(h *Hooks) { h.lowStock = q } }

// WithMovementRecorder counts ledger entries.
func WithMovementRecorder(m MovementRecorder) Option { return func(h *Hooks) { h.metrics = m } }

// NewHooks constructs integration hooks.
func NewHooks(logger *slog.Logger, opts ...Option) *Hooks {
	h := &Hooks{publisher: events.NopPublisher{}, logger: logger}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleMovementsPosted handles manual adjustments posted through the inventory service.
func (h *Hooks) HandleMovementsPosted(ctx context.Context, evt inventory.MovementsPostedEvent) error {
	if h == nil || len(evt.Movements) == 0 {
		return nil
	}
	key := strconv.FormatInt(evt.Movements[0].ID, 10)
	env := events.NewEnvelope("stock.movements_posted", key, evt.PostedAt, movementsPayload(evt.Actor, evt.Movements))
	return errors.Join(
		h.publish(ctx, events.TopicStockMovements, env),
		h.afterMovements(ctx, evt.Movements),
	)
}

// HandleStatusChanged handles committed order transitions and any stock they moved.
func (h *Hooks) HandleStatusChanged(ctx context.Context, evt orders.StatusChangedEvent) error {
	if h == nil {
		return nil
	}
	env := events.NewEnvelope("order.status_changed", evt.OrderNumber, evt.ChangedAt, statusPayload(evt))
	errs := []error{h.publish(ctx, events.TopicOrderStatus, env)}
	if len(evt.Movements) > 0 {
		stockEnv := events.NewEnvelope("stock.movements_posted", evt.OrderNumber+":"+string(evt.To), evt.ChangedAt, movementsPayload(evt.Actor, evt.Movements))
		errs = append(errs, h.publish(ctx, events.TopicStockMovements, stockEnv), h.afterMovements(ctx, evt.Movements))
	} else {
		errs = append(errs, h.bump(ctx))
	}
	return errors.Join(errs...)
}

// HandlePaymentRecorded publishes payments and refreshes revenue reports.
func (h *Hooks) HandlePaymentRecorded(ctx context.Context, evt orders.PaymentRecordedEvent) error {
	if h == nil {
		return nil
	}
	key := evt.OrderNumber + ":" + strconv.FormatInt(evt.PaymentID, 10)
	env := events.NewEnvelope("order.payment_recorded", key, evt.RecordedAt, paymentPayload(evt))
	return errors.Join(
		h.publish(ctx, events.TopicOrderPayments, env),
		h.bump(ctx),
	)
}

// HandleReceiptPosted publishes goods receipts from purchase orders and shipments.
func (h *Hooks) HandleReceiptPosted(ctx context.Context, evt procurement.ReceiptPostedEvent) error {
	if h == nil {
		return nil
	}
	if evt.Reference == nil {
		return errors.New("integration: receipt reference required")
	}
	key := fmt.Sprintf("%s:%s", evt.Reference.Kind(), evt.Number)
	env := events.NewEnvelope("procurement.receipt_posted", key, evt.ReceivedAt, receiptPayload(evt))
	return errors.Join(
		h.publish(ctx, events.TopicReceipts, env),
		h.publish(ctx, events.TopicStockMovements, events.NewEnvelope("stock.movements_posted", key, evt.ReceivedAt, movementsPayload(evt.Actor, evt.Movements))),
		h.afterMovements(ctx, evt.Movements),
	)
}

func (h *Hooks) publish(ctx context.Context, topic string, env events.Envelope) error {
	if err := h.publisher.Publish(ctx, topic, env); err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}

func (h *Hooks) bump(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	if err := h.cache.Bump(ctx); err != nil {
		return fmt.Errorf("bump report cache: %w", err)
	}
	return nil
}

func (h *Hooks) afterMovements(ctx context.Context, movements []inventory.StockMovement) error {
	var outbound []int64
	seen := make(map[int64]struct{})
	for _, m := range movements {
		if h.metrics != nil {
			h.metrics.ObserveStockMovement(string(m.Type), string(m.Reason))
		}
		if m.Quantity >= 0 {
			continue
		}
		if _, ok := seen[m.ProductID]; ok {
			continue
		}
		seen[m.ProductID] = struct{}{}
		outbound = append(outbound, m.ProductID)
	}
	errs := []error{h.bump(ctx)}
	if h.lowStock != nil && len(outbound) > 0 {
		if err := h.lowStock.EnqueueLowStockCheck(ctx, outbound); err != nil {
			errs = append(errs, fmt.Errorf("enqueue low stock check: %w", err))
		}
	}
	return errors.Join(errs...)
}

var (
	_ inventory.IntegrationHandler   = (*Hooks)(nil)
	_ orders.IntegrationHandler      = (*Hooks)(nil)
	_ procurement.IntegrationHandler = (*Hooks)(nil)
)
