package orders

import (
	"github.com/shopspring/decimal"

	salesshared "github.com/odyssey-erp/odyssey-trade/internal/sales/shared"
)

type CreateOrderRequest struct {
	Type        OrderType       `json:"type" validate:"required,oneof=online wholesale retail"`
	Customer    Customer        `json:"customer"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Notes       string          `json:"notes" validate:"max=1000"`
	Items       []ItemInput     `json:"items" validate:"required,min=1,dive"`
}

type ItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
	// UnitPrice snapshots the price; nil takes the product's current sale price.
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type UpdateItemsRequest struct {
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Items       []ItemInput     `json:"items" validate:"required,min=1,dive"`
}

type ChangeStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes" validate:"max=500"`
}

type ListOrdersRequest struct {
	Status        *Status
	PaymentStatus *salesshared.PaymentStatus
	Type          *OrderType
	Limit         int
	Offset        int
}
