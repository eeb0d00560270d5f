package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-trade/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	db          dbtx
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds row lock waits inside WithTx.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, db: pool, lockTimeout: lockTimeout}
}

type txRepo struct {
	db dbtx
}

// NewTxRepository binds the ledger operations to an open transaction owned by another
// module, letting it post movements atomically with its own writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{db: tx}
}

// WithTx executes the callback inside a read-committed transaction. Row locks taken by
// LockProducts make the stock check and update serialisable per product.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	opts := db.TxOptions{IsoLevel: pgx.ReadCommitted, LockTimeout: r.lockTimeout}
	return db.WithTxOptions(ctx, r.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const productColumns = `id, sku, name, cost_price, sale_price, initial_stock, current_stock, reorder_level, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var cost, sale pgtype.Numeric
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &cost, &sale, &p.InitialStock, &p.CurrentStock, &p.ReorderLevel, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	p.CostPrice = db.Decimal(cost)
	p.SalePrice = db.Decimal(sale)
	return p, nil
}

func (r *txRepo) LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := make(map[int64]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

func (r *txRepo) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO stock_movements
		(product_id, movement_type, reason, quantity, reference_type, reference_id, stock_before, stock_after, actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		m.ProductID, string(m.Type), string(m.Reason), m.Quantity, string(m.Reference.Kind()), referenceID(m.Reference),
		m.StockBefore, m.StockAfter, m.Actor, m.Note, m.CreatedAt,
	).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateProductStock(ctx context.Context, productID, stock int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET current_stock = $2, updated_at = NOW() WHERE id = $1`, productID, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	return nil
}

// CreateProduct inserts a catalog entry; current stock starts at the initial stock.
func (r *Repository) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO products (sku, name, cost_price, sale_price, initial_stock, current_stock, reorder_level)
		VALUES ($1, $2, $3, $4, $5, $5, $6) RETURNING `+productColumns,
		strings.TrimSpace(input.SKU), strings.TrimSpace(input.Name), db.Numeric(input.CostPrice), db.Numeric(input.SalePrice), input.InitialStock, input.ReorderLevel)
	p, err := scanProduct(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, ErrDuplicateSKU
		}
		return Product{}, err
	}
	return p, nil
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// ListProducts returns a page of products ordered by sku.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	where := ""
	if filter.LowStockOnly {
		where = "WHERE current_stock <= reorder_level"
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products `+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products `+where+` ORDER BY sku LIMIT $1 OFFSET $2`, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// ListMovements returns ledger entries newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	var conditions []string
	var args []interface{}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.Reference != nil {
		args = append(args, string(filter.Reference.Kind()))
		conditions = append(conditions, fmt.Sprintf("reference_type = $%d", len(args)))
		if id := referenceID(filter.Reference); id != nil {
			args = append(args, *id)
			conditions = append(conditions, fmt.Sprintf("reference_id = $%d", len(args)))
		}
	}
	query := `SELECT id, product_id, movement_type, reason, quantity, reference_type, reference_id, stock_before, stock_after, actor, note, created_at FROM stock_movements`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		var mtype, reason, refKind string
		var refID pgtype.Int8
		if err := rows.Scan(&m.ID, &m.ProductID, &mtype, &reason, &m.Quantity, &refKind, &refID, &m.StockBefore, &m.StockAfter, &m.Actor, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(mtype)
		m.Reason = MovementReason(reason)
		ref, err := ParseReference(refKind, refID.Int64)
		if err != nil {
			return nil, err
		}
		m.Reference = ref
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// Reconcile sums the ledger per product next to the stored counters.
func (r *Repository) Reconcile(ctx context.Context) ([]Reconciliation, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id, p.sku, p.initial_stock, p.current_stock, COALESCE(SUM(m.quantity), 0)::bigint
		FROM products p
		LEFT JOIN stock_movements m ON m.product_id = p.id
		GROUP BY p.id, p.sku, p.initial_stock, p.current_stock
		ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reconciliation
	for rows.Next() {
		var rec Reconciliation
		if err := rows.Scan(&rec.ProductID, &rec.SKU, &rec.InitialStock, &rec.CurrentStock, &rec.LedgerSum); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
