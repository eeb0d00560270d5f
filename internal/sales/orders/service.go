package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	salesshared "github.com/odyssey-erp/odyssey-trade/internal/sales/shared"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ServiceConfig carries the optional collaborators of Service.
type ServiceConfig struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Integration IntegrationHandler
	Recorder    Recorder
	Logger      *slog.Logger
}

// Service handles order business logic.
type Service struct {
	repo        Repository
	ledger      *inventory.Ledger
	audit       AuditPort
	idempotency IdempotencyPort
	integration IntegrationHandler
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new order service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		ledger:      inventory.NewLedger(),
		audit:       cfg.Audit,
		idempotency: cfg.Idempotency,
		integration: cfg.Integration,
		recorder:    cfg.Recorder,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a pending order. Items without a unit price take the product's
// current sale price.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, req.Type)
	}
	actor := shared.ActorFromContext(ctx)

	var created *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		items, totals, err := s.buildItems(ctx, repo, req.Items, req.ShippingFee, req.Discount)
		if err != nil {
			return err
		}
		now := s.now()
		order := Order{
			OrderNumber:   generateOrderNumber(now),
			Type:          req.Type,
			Status:        StatusPending,
			PaymentStatus: salesshared.DerivePaymentStatus(decimal.Zero, totals.Total),
			Subtotal:      totals.Subtotal,
			ShippingFee:   totals.ShippingFee,
			Discount:      totals.Discount,
			Total:         totals.Total,
			PaidAmount:    decimal.Zero,
			Customer:      req.Customer,
			Notes:         req.Notes,
			CreatedBy:     actor,
		}
		id, err := repo.Create(ctx, order)
		if err != nil {
			return err
		}
		if err := repo.InsertItems(ctx, id, items); err != nil {
			return err
		}
		created, err = repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "sales:order:create",
		Entity:   "order",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta:     map[string]any{"order_number": created.OrderNumber, "total": created.Total.String()},
	})
	return created, nil
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// Detail loads an order with its payments and status history.
func (s *Service) Detail(ctx context.Context, id int64) (*OrderDetail, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.Payments(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{Order: order, Payments: payments, History: history}, nil
}

// List returns a page of orders.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return s.repo.List(ctx, req)
}

// UpdateItems replaces the lines of a pending order and recomputes its totals. The
// new total may not fall below what has already been paid.
func (s *Service) UpdateItems(ctx context.Context, id int64, req UpdateItemsRequest) (*Order, error) {
	var updated *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		order, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return fmt.Errorf("%w: order %s is %s", ErrOrderLocked, order.OrderNumber, order.Status)
		}
		items, totals, err := s.buildItems(ctx, repo, req.Items, req.ShippingFee, req.Discount)
		if err != nil {
			return err
		}
		if totals.Total.LessThan(order.PaidAmount) {
			return &OverpaymentError{Total: totals.Total, Paid: order.PaidAmount, Attempted: decimal.Zero}
		}
		if err := repo.DeleteItems(ctx, id); err != nil {
			return err
		}
		if err := repo.InsertItems(ctx, id, items); err != nil {
			return err
		}
		status := salesshared.DerivePaymentStatus(order.PaidAmount, totals.Total)
		if err := repo.UpdateTotals(ctx, id, totals, status); err != nil {
			return err
		}
		updated, err = repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   "sales:order:update_items",
		Entity:   "order",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"items": len(updated.Items), "total": updated.Total.String()},
	})
	return updated, nil
}

// PaymentOption customises RecordPayment.
type PaymentOption func(*paymentOptions)

type paymentOptions struct {
	idempotencyKey string
}

// WithIdempotencyKey rejects a replay of the same key with shared.ErrIdempotencyConflict.
func WithIdempotencyKey(key string) PaymentOption {
	return func(o *paymentOptions) { o.idempotencyKey = key }
}

// RecordPayment adds amount to the order's paid total. Payments that would take the
// paid amount past the total are rejected and change nothing.
func (s *Service) RecordPayment(ctx context.Context, orderID int64, amount decimal.Decimal, notes string, opts ...PaymentOption) (*Order, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !shared.IsMoney(amount) {
		return nil, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, shared.MoneyScale)
	}
	var o paymentOptions
	for _, opt := range opts {
		opt(&o)
	}
	actor := shared.ActorFromContext(ctx)

	insertedKey := false
	if s.idempotency != nil && o.idempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, o.idempotencyKey, "sales:payment"); err != nil {
			return nil, err
		}
		insertedKey = true
	}

	var (
		updated *Order
		payment Payment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		order, err := repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		paid := order.PaidAmount.Add(amount)
		if paid.GreaterThan(order.Total) {
			return &OverpaymentError{Total: order.Total, Paid: order.PaidAmount, Attempted: amount}
		}
		status := salesshared.DerivePaymentStatus(paid, order.Total)
		if err := repo.UpdatePayment(ctx, orderID, paid, status); err != nil {
			return err
		}
		payment = Payment{OrderID: orderID, Amount: amount, Notes: notes, RecordedBy: actor, CreatedAt: s.now()}
		payment.ID, err = repo.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		order.PaidAmount = paid
		order.PaymentStatus = status
		updated = order
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, o.idempotencyKey)
		}
		return nil, err
	}

	s.record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "sales:order:payment",
		Entity:   "order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta: map[string]any{
			"payment_id":     payment.ID,
			"amount":         amount.String(),
			"paid_amount":    updated.PaidAmount.String(),
			"payment_status": string(updated.PaymentStatus),
		},
	})
	if s.integration != nil {
		evt := PaymentRecordedEvent{
			OrderID:       orderID,
			OrderNumber:   updated.OrderNumber,
			PaymentID:     payment.ID,
			Amount:        amount,
			PaidAmount:    updated.PaidAmount,
			Total:         updated.Total,
			PaymentStatus: updated.PaymentStatus,
			RecordedAt:    payment.CreatedAt,
		}
		if err := s.integration.HandlePaymentRecorded(ctx, evt); err != nil {
			s.logger.Warn("order payment integration", slog.Int64("order_id", orderID), slog.Any("error", err))
		}
	}
	return updated, nil
}

// buildItems resolves unit prices and computes totals for a set of lines.
func (s *Service) buildItems(ctx context.Context, repo Repository, inputs []ItemInput, shippingFee, discount decimal.Decimal) ([]OrderItem, salesshared.Totals, error) {
	if len(inputs) == 0 {
		return nil, salesshared.Totals{}, fmt.Errorf("%w: at least one item required", ErrInvalidOrder)
	}
	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, salesshared.Totals{}, fmt.Errorf("%w: quantity for product %d must be positive", ErrInvalidOrder, in.ProductID)
		}
		if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
			return nil, salesshared.Totals{}, fmt.Errorf("%w: unit price for product %d must be >= 0", ErrInvalidOrder, in.ProductID)
		}
		if in.UnitPrice != nil && !shared.IsMoney(*in.UnitPrice) {
			return nil, salesshared.Totals{}, fmt.Errorf("%w: unit price for product %d allows at most %d decimal places", ErrInvalidOrder, in.ProductID, shared.MoneyScale)
		}
		ids = append(ids, in.ProductID)
	}
	prices, err := repo.ProductPrices(ctx, ids)
	if err != nil {
		return nil, salesshared.Totals{}, err
	}

	items := make([]OrderItem, 0, len(inputs))
	lineTotals := make([]decimal.Decimal, 0, len(inputs))
	for i, in := range inputs {
		price, ok := prices[in.ProductID]
		if !ok {
			return nil, salesshared.Totals{}, fmt.Errorf("%w: %d", inventory.ErrProductNotFound, in.ProductID)
		}
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		total := salesshared.LineTotal(in.Quantity, price)
		items = append(items, OrderItem{
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			UnitPrice:  price,
			TotalPrice: total,
			LineOrder:  i + 1,
		})
		lineTotals = append(lineTotals, total)
	}
	totals, err := salesshared.ComputeTotals(lineTotals, shippingFee, discount)
	if err != nil {
		return nil, salesshared.Totals{}, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}
	return items, totals, nil
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("order audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("SO-%s-%s", now.Format("20060102"), suffix)
}
