package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "in"
	// MovementOut represents an outbound movement.
	MovementOut MovementType = "out"
	// MovementAdjustment indicates manual corrections in either direction.
	MovementAdjustment MovementType = "adjustment"
)

// Valid reports whether the type is known.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment:
		return true
	}
	return false
}

// MovementReason records why stock moved.
type MovementReason string

const (
	ReasonSale             MovementReason = "sale"
	ReasonReturn           MovementReason = "return"
	ReasonShipmentReceived MovementReason = "shipment_received"
	ReasonDamage           MovementReason = "damage"
	ReasonLoss             MovementReason = "loss"
	ReasonFound            MovementReason = "found"
	ReasonCorrection       MovementReason = "correction"
	ReasonOther            MovementReason = "other"
)

// Valid reports whether the reason is known.
func (r MovementReason) Valid() bool {
	switch r {
	case ReasonSale, ReasonReturn, ReasonShipmentReceived, ReasonDamage, ReasonLoss, ReasonFound, ReasonCorrection, ReasonOther:
		return true
	}
	return false
}

// Manual reports whether the reason may be used for operator adjustments.
func (r MovementReason) Manual() bool {
	switch r {
	case ReasonDamage, ReasonLoss, ReasonFound, ReasonCorrection, ReasonOther:
		return true
	}
	return false
}

// Product holds catalog data plus the denormalised stock counter.
type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	InitialStock int64           `json:"initial_stock"`
	CurrentStock int64           `json:"current_stock"`
	ReorderLevel int64           `json:"reorder_level"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// LowStock flags products at or below their reorder level.
func (p Product) LowStock() bool {
	return p.CurrentStock <= p.ReorderLevel
}

// StockMovement is an immutable ledger entry.
type StockMovement struct {
	ID          int64          `json:"id"`
	ProductID   int64          `json:"product_id"`
	Type        MovementType   `json:"type"`
	Reason      MovementReason `json:"reason"`
	Quantity    int64          `json:"quantity"`
	Reference   Reference      `json:"-"`
	StockBefore int64          `json:"stock_before"`
	StockAfter  int64          `json:"stock_after"`
	Actor       string         `json:"actor"`
	Note        string         `json:"note,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MovementRequest asks the ledger to record a single quantity change.
type MovementRequest struct {
	ProductID int64
	Type      MovementType
	Reason    MovementReason
	Quantity  int64
	Reference Reference
	Note      string
}

// Validate checks the sign rules tying type to quantity.
func (r MovementRequest) Validate() error {
	if r.ProductID <= 0 {
		return fmt.Errorf("%w: product required", ErrInvalidMovement)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMovement, r.Type)
	}
	if !r.Reason.Valid() {
		return fmt.Errorf("%w: unknown reason %q", ErrInvalidMovement, r.Reason)
	}
	if r.Reference == nil {
		return fmt.Errorf("%w: reference required", ErrInvalidMovement)
	}
	switch {
	case r.Quantity == 0:
		return ErrInvalidQuantity
	case r.Type == MovementIn && r.Quantity < 0:
		return fmt.Errorf("%w: inbound movement must be positive", ErrInvalidQuantity)
	case r.Type == MovementOut && r.Quantity > 0:
		return fmt.Errorf("%w: outbound movement must be negative", ErrInvalidQuantity)
	}
	return nil
}

// ProductInput describes a catalog entry to create.
type ProductInput struct {
	SKU          string          `json:"sku" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	InitialStock int64           `json:"initial_stock" validate:"gte=0"`
	ReorderLevel int64           `json:"reorder_level" validate:"gte=0"`
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	ProductID      int64          `json:"product_id" validate:"required,gt=0"`
	Quantity       int64          `json:"quantity" validate:"required"`
	Reason         MovementReason `json:"reason" validate:"required"`
	Note           string         `json:"note" validate:"max=500"`
	IdempotencyKey string         `json:"-"`
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	LowStockOnly bool
	Limit        int
	Offset       int
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	ProductID int64
	Reference Reference
	Limit     int
}

// Reconciliation compares the stock counter against the ledger.
type Reconciliation struct {
	ProductID    int64  `json:"product_id"`
	SKU          string `json:"sku"`
	InitialStock int64  `json:"initial_stock"`
	CurrentStock int64  `json:"current_stock"`
	LedgerSum    int64  `json:"ledger_sum"`
}

// Expected returns the stock implied by the ledger.
func (r Reconciliation) Expected() int64 {
	return r.InitialStock + r.LedgerSum
}

// Drift is the difference between the counter and the ledger.
func (r Reconciliation) Drift() int64 {
	return r.CurrentStock - r.Expected()
}

var (
	// ErrInsufficientStock is wrapped by InsufficientStockError.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be non zero")
	// ErrInvalidMovement rejects malformed ledger requests.
	ErrInvalidMovement = errors.New("inventory: invalid movement")
	// ErrProductNotFound indicates a missing product row.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrDuplicateSKU indicates the sku is taken.
	ErrDuplicateSKU = errors.New("inventory: sku already exists")
)

// InsufficientStockError names the product that cannot cover a deduction.
type InsufficientStockError struct {
	ProductID int64
	SKU       string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %d (%s): requested %d, available %d, short by %d",
		e.ProductID, e.SKU, e.Requested, e.Available, e.Shortfall())
}

// Shortfall is how many units are missing.
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
