// Package orderstest provides an in-memory order repository for tests.
package orderstest

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders"
	salesshared "github.com/odyssey-erp/odyssey-trade/internal/sales/shared"
)

// ErrNoTransaction is returned by methods that only make sense inside WithTx.
var ErrNoTransaction = errors.New("orderstest: called outside WithTx")

type state struct {
	orders   map[int64]orders.Order
	payments []orders.Payment
	history  []orders.StatusChange
	nextID   int64
	nextPay  int64
	nextHist int64
	nextItem int64
}

func (s *state) clone() *state {
	out := *s
	out.orders = make(map[int64]orders.Order, len(s.orders))
	for id, o := range s.orders {
		o.Items = slices.Clone(o.Items)
		out.orders[id] = o
	}
	out.payments = slices.Clone(s.payments)
	out.history = slices.Clone(s.history)
	return &out
}

// Repo implements orders.Repository on top of an inventorytest.Store so that order
// writes and ledger writes share one transaction boundary.
type Repo struct {
	stock *inventorytest.Store
	st    **state
	tx    inventory.TxRepository
}

// NewRepo returns an empty repository sharing stock.
func NewRepo(stock *inventorytest.Store) *Repo {
	st := &state{orders: make(map[int64]orders.Order)}
	return &Repo{stock: stock, st: &st}
}

// Inventory returns the backing stock store.
func (r *Repo) Inventory() *inventorytest.Store { return r.stock }

// Snapshot returns a deep copy of every order, payment and history row, for equality
// checks across failed operations.
func (r *Repo) Snapshot() (map[int64]orders.Order, []orders.Payment, []orders.StatusChange) {
	var snap *state
	r.stock.Read(func() { snap = (*r.st).clone() })
	return snap.orders, snap.payments, snap.history
}

// Seed stores an order directly, bypassing the service.
func (r *Repo) Seed(o orders.Order) orders.Order {
	r.stock.Read(func() {
		st := *r.st
		st.nextID++
		o.ID = st.nextID
		if o.OrderNumber == "" {
			o.OrderNumber = "SO-TEST-" + strconv.FormatInt(o.ID, 10)
		}
		for i := range o.Items {
			st.nextItem++
			o.Items[i].ID = st.nextItem
			o.Items[i].OrderID = o.ID
		}
		st.orders[o.ID] = o
	})
	return o
}

func (r *Repo) do(fn func(st *state) error) error {
	if r.tx != nil {
		return fn(*r.st)
	}
	var err error
	r.stock.Read(func() { err = fn(*r.st) })
	return err
}

func (r *Repo) WithTx(ctx context.Context, fn func(context.Context, orders.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}
	return r.stock.Atomic(func(tx inventory.TxRepository) error {
		before := (*r.st).clone()
		err := fn(ctx, &Repo{stock: r.stock, st: r.st, tx: tx})
		if err != nil {
			*r.st = before
		}
		return err
	})
}

func (r *Repo) Stock() inventory.TxRepository { return r.tx }

func (r *Repo) Get(_ context.Context, id int64) (*orders.Order, error) {
	var out *orders.Order
	err := r.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return orders.ErrNotFound
		}
		o.Items = slices.Clone(o.Items)
		out = &o
		return nil
	})
	return out, err
}

func (r *Repo) GetForUpdate(ctx context.Context, id int64) (*orders.Order, error) {
	if r.tx == nil {
		return nil, ErrNoTransaction
	}
	return r.Get(ctx, id)
}

func (r *Repo) List(_ context.Context, req orders.ListOrdersRequest) ([]orders.Order, int, error) {
	var out []orders.Order
	err := r.do(func(st *state) error {
		for _, o := range st.orders {
			if req.Status != nil && o.Status != *req.Status {
				continue
			}
			if req.PaymentStatus != nil && o.PaymentStatus != *req.PaymentStatus {
				continue
			}
			if req.Type != nil && o.Type != *req.Type {
				continue
			}
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	slices.SortFunc(out, func(a, b orders.Order) int { return cmp.Compare(b.ID, a.ID) })
	total := len(out)
	start := min(req.Offset, total)
	end := total
	if req.Limit > 0 {
		end = min(start+req.Limit, total)
	}
	return out[start:end], total, nil
}

func (r *Repo) Create(_ context.Context, o orders.Order) (int64, error) {
	err := r.do(func(st *state) error {
		st.nextID++
		o.ID = st.nextID
		o.CreatedAt = time.Now().UTC()
		o.UpdatedAt = o.CreatedAt
		o.Items = nil
		st.orders[o.ID] = o
		return nil
	})
	return o.ID, err
}

func (r *Repo) InsertItems(_ context.Context, orderID int64, items []orders.OrderItem) error {
	return r.update(orderID, func(st *state, o *orders.Order) {
		for _, it := range items {
			st.nextItem++
			it.ID = st.nextItem
			it.OrderID = orderID
			o.Items = append(o.Items, it)
		}
	})
}

func (r *Repo) DeleteItems(_ context.Context, orderID int64) error {
	return r.update(orderID, func(_ *state, o *orders.Order) { o.Items = nil })
}

func (r *Repo) UpdateTotals(_ context.Context, id int64, totals salesshared.Totals, status salesshared.PaymentStatus) error {
	return r.update(id, func(_ *state, o *orders.Order) {
		o.Subtotal, o.ShippingFee, o.Discount, o.Total = totals.Subtotal, totals.ShippingFee, totals.Discount, totals.Total
		o.PaymentStatus = status
	})
}

func (r *Repo) UpdateStatus(_ context.Context, id int64, status orders.Status, at time.Time) error {
	return r.update(id, func(_ *state, o *orders.Order) {
		o.Status = status
		o.UpdatedAt = at
		switch status {
		case orders.StatusConfirmed:
			o.ConfirmedAt = &at
		case orders.StatusCancelled:
			o.CancelledAt = &at
		}
	})
}

func (r *Repo) UpdatePayment(_ context.Context, id int64, paid decimal.Decimal, status salesshared.PaymentStatus) error {
	return r.update(id, func(_ *state, o *orders.Order) {
		o.PaidAmount = paid
		o.PaymentStatus = status
	})
}

func (r *Repo) update(id int64, fn func(*state, *orders.Order)) error {
	return r.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return orders.ErrNotFound
		}
		fn(st, &o)
		st.orders[id] = o
		return nil
	})
}

func (r *Repo) InsertPayment(_ context.Context, p orders.Payment) (int64, error) {
	err := r.do(func(st *state) error {
		st.nextPay++
		p.ID = st.nextPay
		st.payments = append(st.payments, p)
		return nil
	})
	return p.ID, err
}

func (r *Repo) InsertStatusChange(_ context.Context, c orders.StatusChange) error {
	return r.do(func(st *state) error {
		st.nextHist++
		c.ID = st.nextHist
		st.history = append(st.history, c)
		return nil
	})
}

func (r *Repo) Payments(_ context.Context, orderID int64) ([]orders.Payment, error) {
	var out []orders.Payment
	err := r.do(func(st *state) error {
		for _, p := range st.payments {
			if p.OrderID == orderID {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *Repo) History(_ context.Context, orderID int64) ([]orders.StatusChange, error) {
	var out []orders.StatusChange
	err := r.do(func(st *state) error {
		for _, c := range st.history {
			if c.OrderID == orderID {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

func (r *Repo) ProductPrices(ctx context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	if r.tx == nil {
		return nil, ErrNoTransaction
	}
	products, err := r.tx.LockProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]decimal.Decimal, len(products))
	for id, p := range products {
		out[id] = p.SalePrice
	}
	return out, nil
}
