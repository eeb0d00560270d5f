package inventory

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// TxRepository exposes the transactional operations the ledger writes through.
// Implementations must run every call inside the caller's transaction.
type TxRepository interface {
	// LockProducts returns the products keyed by id, holding an exclusive row lock on
	// each until the transaction ends. ids arrive sorted ascending.
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	InsertMovement(ctx context.Context, movement StockMovement) (int64, error)
	UpdateProductStock(ctx context.Context, productID, stock int64) error
}

// Ledger is the single writer of stock movements. Orders, procurement and manual
// adjustments all post through it so the counter and the ledger move together.
type Ledger struct {
	now func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

// Post validates every request against locked stock and then records them in the
// given order. Nothing is written when any request would drive stock below zero.
func (l *Ledger) Post(ctx context.Context, tx TxRepository, actor string, reqs []MovementRequest) ([]StockMovement, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	for i, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("movement %d: %w", i+1, err)
		}
	}

	products, err := tx.LockProducts(ctx, LockOrder(reqs))
	if err != nil {
		return nil, err
	}

	running := make(map[int64]int64, len(products))
	for _, req := range reqs {
		product, ok := products[req.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrProductNotFound, req.ProductID)
		}
		stock, seen := running[req.ProductID]
		if !seen {
			stock = product.CurrentStock
		}
		if stock+req.Quantity < 0 {
			return nil, &InsufficientStockError{
				ProductID: product.ID,
				SKU:       product.SKU,
				Requested: -req.Quantity,
				Available: stock,
			}
		}
		running[req.ProductID] = stock + req.Quantity
	}

	now := l.now()
	current := make(map[int64]int64, len(products))
	for id, product := range products {
		current[id] = product.CurrentStock
	}
	movements := make([]StockMovement, 0, len(reqs))
	for _, req := range reqs {
		before := current[req.ProductID]
		movement := StockMovement{
			ProductID:   req.ProductID,
			Type:        req.Type,
			Reason:      req.Reason,
			Quantity:    req.Quantity,
			Reference:   req.Reference,
			StockBefore: before,
			StockAfter:  before + req.Quantity,
			Actor:       actor,
			Note:        req.Note,
			CreatedAt:   now,
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return nil, fmt.Errorf("inventory: insert movement: %w", err)
		}
		movement.ID = id
		if err := tx.UpdateProductStock(ctx, req.ProductID, movement.StockAfter); err != nil {
			return nil, fmt.Errorf("inventory: update stock: %w", err)
		}
		current[req.ProductID] = movement.StockAfter
		movements = append(movements, movement)
	}
	return movements, nil
}

// LockOrder returns the distinct product ids of reqs in ascending order. Every writer
// locks products in this order so overlapping transactions cannot deadlock.
func LockOrder(reqs []MovementRequest) []int64 {
	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
