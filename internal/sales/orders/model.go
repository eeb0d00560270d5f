package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	salesshared "github.com/odyssey-erp/odyssey-trade/internal/sales/shared"
)

// OrderType distinguishes sales channels.
type OrderType string

const (
	OrderTypeOnline    OrderType = "online"
	OrderTypeWholesale OrderType = "wholesale"
	OrderTypeRetail    OrderType = "retail"
)

// Valid reports whether the type is known.
func (t OrderType) Valid() bool {
	return t == OrderTypeOnline || t == OrderTypeWholesale || t == OrderTypeRetail
}

// Customer carries contact details copied onto the order.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type Order struct {
	ID            int64                     `json:"id"`
	OrderNumber   string                    `json:"order_number"`
	Type          OrderType                 `json:"type"`
	Status        Status                    `json:"status"`
	PaymentStatus salesshared.PaymentStatus `json:"payment_status"`
	Subtotal      decimal.Decimal           `json:"subtotal"`
	ShippingFee   decimal.Decimal           `json:"shipping_fee"`
	Discount      decimal.Decimal           `json:"discount"`
	Total         decimal.Decimal           `json:"total"`
	PaidAmount    decimal.Decimal           `json:"paid_amount"`
	Customer      Customer                  `json:"customer"`
	Notes         string                    `json:"notes,omitempty"`
	CreatedBy     string                    `json:"created_by"`
	ConfirmedAt   *time.Time                `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time                `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	Items         []OrderItem               `json:"items"`
}

// Balance is the amount still owed.
func (o Order) Balance() decimal.Decimal {
	return o.Total.Sub(o.PaidAmount)
}

// Totals returns the money fields as a salesshared.Totals.
func (o Order) Totals() salesshared.Totals {
	return salesshared.Totals{Subtotal: o.Subtotal, ShippingFee: o.ShippingFee, Discount: o.Discount, Total: o.Total}
}

type OrderItem struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	LineOrder  int             `json:"line_order"`
}

// Payment is an informational record of money received.
type Payment struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	Amount     decimal.Decimal `json:"amount"`
	Notes      string          `json:"notes,omitempty"`
	RecordedBy string          `json:"recorded_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StatusChange is one row of an order's status history.
type StatusChange struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// Transition is the result of a successful status change.
type Transition struct {
	Order     *Order                    `json:"order"`
	From      Status                    `json:"from"`
	To        Status                    `json:"to"`
	Movements []inventory.StockMovement `json:"movements"`
}

// OrderDetail bundles an order with its payment and status history.
type OrderDetail struct {
	*Order
	Payments []Payment      `json:"payments"`
	History  []StatusChange `json:"history"`
}
