package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

type txRepo struct {
	tx    pgx.Tx
	stock inventory.TxRepository
}

// WithTx wraps callback in a read-committed transaction with a bounded lock wait.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	opts := db.TxOptions{IsoLevel: pgx.ReadCommitted, LockTimeout: r.lockTimeout}
	return db.WithTxOptions(ctx, r.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, stock: inventory.NewTxRepository(tx)})
	})
}

const poColumns = `id, number, supplier, status, expected_date, note, created_by, ordered_at, received_at, cancelled_at, created_at, updated_at`

func scanPurchaseOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.Supplier, &status, &po.ExpectedDate, &po.Note, &po.CreatedBy,
		&po.OrderedAt, &po.ReceivedAt, &po.CancelledAt, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = POStatus(status)
	return po, nil
}

func loadPurchaseOrder(ctx context.Context, q dbtx, id int64, forUpdate bool) (PurchaseOrder, error) {
	query := `SELECT ` + poColumns + ` FROM purchase_orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	po, err := scanPurchaseOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, purchase_order_id, product_id, quantity, unit_cost
		FROM purchase_order_lines WHERE purchase_order_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line POLine
		var cost pgtype.Numeric
		if err := rows.Scan(&line.ID, &line.PurchaseOrderID, &line.ProductID, &line.Quantity, &cost); err != nil {
			return PurchaseOrder{}, err
		}
		line.UnitCost = db.Decimal(cost)
		po.Lines = append(po.Lines, line)
	}
	return po, rows.Err()
}

func loadShipment(ctx context.Context, q dbtx, id int64, forUpdate bool) (Shipment, error) {
	query := `SELECT id, purchase_order_id, carrier, tracking_number, status, created_by, received_at, created_at
		FROM shipments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	sh, err := scanShipment(q.QueryRow(ctx, query, id))
	if err != nil {
		return Shipment{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, shipment_id, product_id, quantity FROM shipment_lines WHERE shipment_id = $1 ORDER BY id`, id)
	if err != nil {
		return Shipment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line ShipmentLine
		if err := rows.Scan(&line.ID, &line.ShipmentID, &line.ProductID, &line.Quantity); err != nil {
			return Shipment{}, err
		}
		sh.Lines = append(sh.Lines, line)
	}
	return sh, rows.Err()
}

func scanShipment(row pgx.Row) (Shipment, error) {
	var sh Shipment
	var status string
	err := row.Scan(&sh.ID, &sh.PurchaseOrderID, &sh.Carrier, &sh.TrackingNumber, &status, &sh.CreatedBy, &sh.ReceivedAt, &sh.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrNotFound
		}
		return Shipment{}, err
	}
	sh.Status = ShipmentStatus(status)
	return sh, nil
}

// GetPurchaseOrder returns a purchase order and its lines.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPurchaseOrder(ctx, r.pool, id, false)
}

// ListPurchaseOrders returns purchase order headers, newest first.
func (r *Repository) ListPurchaseOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	where, args := statusFilter(filters)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filters.Limit, filters.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM purchase_orders%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		poColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

// GetShipment returns a shipment and its lines.
func (r *Repository) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	return loadShipment(ctx, r.pool, id, false)
}

// ListShipments returns shipment headers, newest first.
func (r *Repository) ListShipments(ctx context.Context, filters ListFilters) ([]Shipment, int, error) {
	where, args := statusFilter(filters)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shipments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filters.Limit, filters.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, purchase_order_id, carrier, tracking_number, status, created_by, received_at, created_at
		FROM shipments%s ORDER BY id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sh)
	}
	return out, total, rows.Err()
}

func statusFilter(filters ListFilters) (string, []interface{}) {
	if filters.Status == "" {
		return "", nil
	}
	return " WHERE status = $1", []interface{}{filters.Status}
}

func (t *txRepo) Stock() inventory.TxRepository { return t.stock }

func (t *txRepo) CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier, status, expected_date, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		po.Number, po.Supplier, string(po.Status), po.ExpectedDate, po.Note, po.CreatedBy).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: number %s already used", ErrValidation, po.Number)
	}
	return id, err
}

func (t *txRepo) InsertPOLine(ctx context.Context, line POLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_lines (purchase_order_id, product_id, quantity, unit_cost)
		VALUES ($1, $2, $3, $4)`, line.PurchaseOrderID, line.ProductID, line.Quantity, db.Numeric(line.UnitCost))
	return err
}

func (t *txRepo) LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPurchaseOrder(ctx, t.tx, id, true)
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus, at time.Time) error {
	var column string
	switch status {
	case POStatusOrdered:
		column = "ordered_at"
	case POStatusReceived:
		column = "received_at"
	case POStatusCancelled:
		column = "cancelled_at"
	default:
		return fmt.Errorf("%w: status %s", ErrInvalidState, status)
	}
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2, `+column+` = $3, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) CreateShipment(ctx context.Context, sh Shipment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO shipments (purchase_order_id, carrier, tracking_number, status, created_by)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		sh.PurchaseOrderID, sh.Carrier, sh.TrackingNumber, string(sh.Status), sh.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) InsertShipmentLine(ctx context.Context, line ShipmentLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO shipment_lines (shipment_id, product_id, quantity) VALUES ($1, $2, $3)`,
		line.ShipmentID, line.ProductID, line.Quantity)
	return err
}

func (t *txRepo) LockShipment(ctx context.Context, id int64) (Shipment, error) {
	return loadShipment(ctx, t.tx, id, true)
}

func (t *txRepo) MarkShipmentReceived(ctx context.Context, id int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE shipments SET status = $2, received_at = $3 WHERE id = $1`, id, string(ShipmentReceived), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) ShippedQuantities(ctx context.Context, purchaseOrderID int64, status ShipmentStatus) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT l.product_id, SUM(l.quantity)
		FROM shipment_lines l
		JOIN shipments s ON s.id = l.shipment_id
		WHERE s.purchase_order_id = $1 AND ($2::text = '' OR s.status = $2::text)
		GROUP BY l.product_id`, purchaseOrderID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}
