package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateProduct(ctx context.Context, input ProductInput) (Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
	Reconcile(ctx context.Context) ([]Reconciliation, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	ledger      *Ledger
	audit       AuditPort
	idempotency IdempotencyPort
	integration IntegrationHandler
	logger      *slog.Logger
}

// NewService builds Service. audit, idem and integration are optional.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, integration IntegrationHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: NewLedger(), audit: audit, idempotency: idem, integration: integration, logger: logger}
}

// CreateProduct registers a product with its opening stock.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if input.InitialStock < 0 || input.ReorderLevel < 0 {
		return Product{}, ErrInvalidQuantity
	}
	if input.CostPrice.IsNegative() || input.SalePrice.IsNegative() {
		return Product{}, fmt.Errorf("%w: prices must be >= 0", ErrInvalidMovement)
	}
	if !shared.IsMoney(input.CostPrice) || !shared.IsMoney(input.SalePrice) {
		return Product{}, fmt.Errorf("%w: prices allow at most %d decimal places", ErrInvalidMovement, shared.MoneyScale)
	}
	return s.repo.CreateProduct(ctx, input)
}

// GetProduct loads a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns a page of products.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListProducts(ctx, filter)
}

// Movements lists ledger entries.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	return s.repo.ListMovements(ctx, filter)
}

// Adjust posts a manual correction. Positive quantities add stock, negative ones
// remove it; the result may never drop below zero.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (StockMovement, error) {
	if input.Quantity == 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	if !input.Reason.Manual() {
		return StockMovement{}, fmt.Errorf("%w: reason %q not allowed for adjustments", ErrInvalidMovement, input.Reason)
	}
	actor := shared.ActorFromContext(ctx)

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "inventory"); err != nil {
			return StockMovement{}, err
		}
		insertedKey = true
	}

	req := MovementRequest{
		ProductID: input.ProductID,
		Type:      MovementAdjustment,
		Reason:    input.Reason,
		Quantity:  input.Quantity,
		Reference: ManualRef{},
		Note:      input.Note,
	}
	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements, err := s.ledger.Post(ctx, tx, actor, []MovementRequest{req})
		if err != nil {
			return err
		}
		movement = movements[0]
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return StockMovement{}, err
	}

	s.record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "inventory:adjustment",
		Entity:   "stock_movement",
		EntityID: strconv.FormatInt(movement.ID, 10),
		Meta: map[string]any{
			"product_id": movement.ProductID,
			"quantity":   movement.Quantity,
			"reason":     string(movement.Reason),
			"note":       movement.Note,
		},
	})
	s.notify(ctx, MovementsPostedEvent{Movements: []StockMovement{movement}, Actor: actor, PostedAt: movement.CreatedAt})
	return movement, nil
}

// Reconcile returns every product whose counter disagrees with its ledger.
func (s *Service) Reconcile(ctx context.Context) ([]Reconciliation, error) {
	rows, err := s.repo.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	var drifted []Reconciliation
	for _, row := range rows {
		if row.Drift() != 0 || row.CurrentStock < 0 {
			drifted = append(drifted, row)
		}
	}
	return drifted, nil
}

// LowStock lists products at or below their reorder level.
func (s *Service) LowStock(ctx context.Context, limit int) ([]Product, error) {
	products, _, err := s.ListProducts(ctx, ProductFilter{LowStockOnly: true, Limit: limit})
	return products, err
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("inventory audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, evt MovementsPostedEvent) {
	if s.integration == nil {
		return
	}
	if err := s.integration.HandleMovementsPosted(ctx, evt); err != nil {
		s.logger.Warn("inventory integration", slog.Int("movements", len(evt.Movements)), slog.Any("error", err))
	}
}
