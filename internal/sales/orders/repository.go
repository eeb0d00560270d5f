package orders

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
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/platform/db"
	salesshared "github.com/odyssey-erp/odyssey-trade/internal/sales/shared"
)

// Repository is the order persistence port. Inside WithTx every method, including
// Stock, runs on the same transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	// GetForUpdate loads the order and holds its row lock until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
	Create(ctx context.Context, order Order) (int64, error)
	InsertItems(ctx context.Context, orderID int64, items []OrderItem) error
	DeleteItems(ctx context.Context, orderID int64) error
	UpdateTotals(ctx context.Context, id int64, totals salesshared.Totals, paymentStatus salesshared.PaymentStatus) error
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
	UpdatePayment(ctx context.Context, id int64, paid decimal.Decimal, status salesshared.PaymentStatus) error
	InsertPayment(ctx context.Context, payment Payment) (int64, error)
	InsertStatusChange(ctx context.Context, change StatusChange) error
	Payments(ctx context.Context, orderID int64) ([]Payment, error)
	History(ctx context.Context, orderID int64) ([]StatusChange, error)
	ProductPrices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error)
	// Stock exposes the ledger operations bound to the current transaction. It is nil
	// outside WithTx.
	Stock() inventory.TxRepository
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db          dbtx
	pool        *pgxpool.Pool
	stock       inventory.TxRepository
	lockTimeout time.Duration
}

// NewRepository builds the PostgreSQL repository. lockTimeout bounds how long a
// transaction waits for order and product row locks.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) Repository {
	return &repository{db: pool, pool: pool, lockTimeout: lockTimeout}
}

// WithTx runs fn in a read-committed transaction. Rows read with FOR UPDATE are
// re-read after any competing writer commits, so a blocked confirmation sees the stock
// the winner left behind.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	opts := db.TxOptions{IsoLevel: pgx.ReadCommitted, LockTimeout: r.lockTimeout}
	return db.WithTxOptions(ctx, r.pool, opts, func(tx pgx.Tx) error {
		repoTx := &repository{
			db:          tx,
			pool:        r.pool,
			stock:       inventory.NewTxRepository(tx),
			lockTimeout: r.lockTimeout,
		}
		return fn(ctx, repoTx)
	})
}

func (r *repository) Stock() inventory.TxRepository {
	return r.stock
}

const orderColumns = `id, order_number, order_type, status, payment_status, subtotal, shipping_fee, discount, total, paid_amount,
	customer_name, customer_phone, customer_email, customer_address, notes, created_by, confirmed_at, cancelled_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var orderType, status, paymentStatus string
	var subtotal, shipping, discount, total, paid pgtype.Numeric
	err := row.Scan(&o.ID, &o.OrderNumber, &orderType, &status, &paymentStatus, &subtotal, &shipping, &discount, &total, &paid,
		&o.Customer.Name, &o.Customer.Phone, &o.Customer.Email, &o.Customer.Address, &o.Notes, &o.CreatedBy,
		&o.ConfirmedAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Type = OrderType(orderType)
	o.Status = Status(status)
	o.PaymentStatus = salesshared.PaymentStatus(paymentStatus)
	o.Subtotal = db.Decimal(subtotal)
	o.ShippingFee = db.Decimal(shipping)
	o.Discount = db.Decimal(discount)
	o.Total = db.Decimal(total)
	o.PaidAmount = db.Decimal(paid)
	return &o, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) load(ctx context.Context, query string, id int64) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *repository) items(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.db.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, total_price, line_order
		FROM order_items WHERE order_id = $1 ORDER BY line_order, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		var unit, total pgtype.Numeric
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &unit, &total, &it.LineOrder); err != nil {
			return nil, err
		}
		it.UnitPrice = db.Decimal(unit)
		it.TotalPrice = db.Decimal(total)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	var conditions []string
	var args []interface{}
	if req.Status != nil {
		args = append(args, string(*req.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if req.PaymentStatus != nil {
		args = append(args, string(*req.PaymentStatus))
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if req.Type != nil {
		args = append(args, string(*req.Type))
		conditions = append(conditions, fmt.Sprintf("order_type = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, req.Limit, req.Offset)
	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", orderColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO orders
		(order_number, order_type, status, payment_status, subtotal, shipping_fee, discount, total, paid_amount,
		 customer_name, customer_phone, customer_email, customer_address, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		o.OrderNumber, string(o.Type), string(o.Status), string(o.PaymentStatus),
		db.Numeric(o.Subtotal), db.Numeric(o.ShippingFee), db.Numeric(o.Discount), db.Numeric(o.Total), db.Numeric(o.PaidAmount),
		o.Customer.Name, o.Customer.Phone, o.Customer.Email, o.Customer.Address, o.Notes, o.CreatedBy,
	).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: order number %s already used", ErrInvalidOrder, o.OrderNumber)
	}
	return id, err
}

func (r *repository) InsertItems(ctx context.Context, orderID int64, items []OrderItem) error {
	for _, it := range items {
		_, err := r.db.Exec(ctx, `INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price, line_order)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			orderID, it.ProductID, it.Quantity, db.Numeric(it.UnitPrice), db.Numeric(it.TotalPrice), it.LineOrder)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) DeleteItems(ctx context.Context, orderID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	return err
}

func (r *repository) UpdateTotals(ctx context.Context, id int64, totals salesshared.Totals, paymentStatus salesshared.PaymentStatus) error {
	return r.exec(ctx, `UPDATE orders SET subtotal = $2, shipping_fee = $3, discount = $4, total = $5, payment_status = $6, updated_at = NOW()
		WHERE id = $1`, id, db.Numeric(totals.Subtotal), db.Numeric(totals.ShippingFee), db.Numeric(totals.Discount), db.Numeric(totals.Total), string(paymentStatus))
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	updates := map[string]interface{}{"status": string(status), "updated_at": at}
	switch status {
	case StatusConfirmed:
		updates["confirmed_at"] = at
	case StatusCancelled:
		updates["cancelled_at"] = at
	}
	var sets []string
	args := []interface{}{id}
	for _, col := range []string{"status", "confirmed_at", "cancelled_at", "updated_at"} {
		if v, ok := updates[col]; ok {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	return r.exec(ctx, "UPDATE orders SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
}

func (r *repository) UpdatePayment(ctx context.Context, id int64, paid decimal.Decimal, status salesshared.PaymentStatus) error {
	return r.exec(ctx, `UPDATE orders SET paid_amount = $2, payment_status = $3, updated_at = NOW() WHERE id = $1`,
		id, db.Numeric(paid), string(status))
}

func (r *repository) exec(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO order_payments (order_id, amount, notes, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.OrderID, db.Numeric(p.Amount), p.Notes, p.RecordedBy, p.CreatedAt).Scan(&id)
	return id, err
}

func (r *repository) InsertStatusChange(ctx context.Context, c StatusChange) error {
	_, err := r.db.Exec(ctx, `INSERT INTO order_status_history (order_id, from_status, to_status, actor, created_at)
		VALUES ($1, $2, $3, $4, $5)`, c.OrderID, string(c.From), string(c.To), c.Actor, c.CreatedAt)
	return err
}

func (r *repository) Payments(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT id, order_id, amount, notes, recorded_by, created_at
		FROM order_payments WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		var amount pgtype.Numeric
		if err := rows.Scan(&p.ID, &p.OrderID, &amount, &p.Notes, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount = db.Decimal(amount)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) History(ctx context.Context, orderID int64) ([]StatusChange, error) {
	rows, err := r.db.Query(ctx, `SELECT id, order_id, from_status, to_status, actor, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusChange
	for rows.Next() {
		var c StatusChange
		var from, to string
		if err := rows.Scan(&c.ID, &c.OrderID, &from, &to, &c.Actor, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.From, c.To = Status(from), Status(to)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) ProductPrices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	rows, err := r.db.Query(ctx, `SELECT id, sale_price FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]decimal.Decimal, len(ids))
	for rows.Next() {
		var id int64
		var price pgtype.Numeric
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		out[id] = db.Decimal(price)
	}
	return out, rows.Err()
}
