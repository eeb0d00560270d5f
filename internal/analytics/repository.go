package analytics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-trade/internal/platform/db"
)

// PgRepository runs report queries against PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the report repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Revenue follows the same orders as cost of goods sold: confirmed in the
// window and still holding or past stock deduction.
const revenueSQL = `SELECT COALESCE(SUM(total), 0), COUNT(*)
FROM orders
WHERE status NOT IN ('pending', 'cancelled') AND confirmed_at >= $1 AND confirmed_at < $2`

// Sale movements carry negative quantities and returns positive ones, so the
// negated sum is the net units sold.
const cogsSQL = `SELECT COALESCE(-SUM(m.quantity * p.cost_price), 0)
FROM stock_movements m
JOIN products p ON p.id = m.product_id
WHERE m.reason IN ('sale', 'return') AND m.created_at >= $1 AND m.created_at < $2`

const stockValueSQL = `SELECT COALESCE(SUM(current_stock * cost_price), 0), COALESCE(SUM(current_stock), 0)
FROM products`

const lowStockSQL = `SELECT id, sku, name, current_stock, reorder_level
FROM products
WHERE current_stock <= reorder_level
ORDER BY current_stock - reorder_level, id
LIMIT $1`

// Revenue implements Repository.
func (r *PgRepository) Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, int64, error) {
	var total pgtype.Numeric
	var count int64
	if err := r.pool.QueryRow(ctx, revenueSQL, from, to).Scan(&total, &count); err != nil {
		return decimal.Zero, 0, err
	}
	return db.Decimal(total), count, nil
}

// CostOfGoodsSold implements Repository.
func (r *PgRepository) CostOfGoodsSold(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total pgtype.Numeric
	if err := r.pool.QueryRow(ctx, cogsSQL, from, to).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return db.Decimal(total), nil
}

// StockValue implements Repository.
func (r *PgRepository) StockValue(ctx context.Context) (decimal.Decimal, int64, error) {
	var value pgtype.Numeric
	var units int64
	if err := r.pool.QueryRow(ctx, stockValueSQL).Scan(&value, &units); err != nil {
		return decimal.Zero, 0, err
	}
	return db.Decimal(value), units, nil
}

// LowStock implements Repository.
func (r *PgRepository) LowStock(ctx context.Context, limit int) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, lowStockSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LowStockItem{}
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &item.CurrentStock, &item.ReorderLevel); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
