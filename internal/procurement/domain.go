package procurement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// POStatus is the lifecycle state of a purchase order.
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusOrdered   POStatus = "ordered"
	POStatusReceived  POStatus = "received"
	POStatusCancelled POStatus = "cancelled"
)

// ShipmentStatus is the lifecycle state of an inbound shipment.
type ShipmentStatus string

const (
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentReceived  ShipmentStatus = "received"
)

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	Supplier     string     `json:"supplier"`
	Status       POStatus   `json:"status"`
	ExpectedDate *time.Time `json:"expected_date,omitempty"`
	Note         string     `json:"note,omitempty"`
	CreatedBy    string     `json:"created_by"`
	OrderedAt    *time.Time `json:"ordered_at,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Lines        []POLine   `json:"lines"`
}

// Total is the sum of line costs.
func (po PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range po.Lines {
		total = total.Add(l.UnitCost.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return total
}

// POLine is one product on a purchase order.
type POLine struct {
	ID              int64           `json:"id"`
	PurchaseOrderID int64           `json:"purchase_order_id"`
	ProductID       int64           `json:"product_id"`
	Quantity        int64           `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

// Shipment is goods arriving from a carrier, optionally against a purchase order.
type Shipment struct {
	ID              int64          `json:"id"`
	PurchaseOrderID *int64         `json:"purchase_order_id,omitempty"`
	Carrier         string         `json:"carrier"`
	TrackingNumber  string         `json:"tracking_number,omitempty"`
	Status          ShipmentStatus `json:"status"`
	CreatedBy       string         `json:"created_by"`
	ReceivedAt      *time.Time     `json:"received_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Lines           []ShipmentLine `json:"lines"`
}

// ShipmentLine is one product in a shipment.
type ShipmentLine struct {
	ID         int64 `json:"id"`
	ShipmentID int64 `json:"shipment_id"`
	ProductID  int64 `json:"product_id"`
	Quantity   int64 `json:"quantity"`
}

// CreatePurchaseOrderInput describes a new purchase order.
type CreatePurchaseOrderInput struct {
	Number       string        `json:"number" validate:"max=64"`
	Supplier     string        `json:"supplier" validate:"required,max=200"`
	ExpectedDate *time.Time    `json:"expected_date"`
	Note         string        `json:"note" validate:"max=1000"`
	Lines        []POLineInput `json:"lines" validate:"required,min=1,dive"`
}

// POLineInput describes a purchase order line.
type POLineInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// CreateShipmentInput describes an inbound shipment.
type CreateShipmentInput struct {
	PurchaseOrderID *int64              `json:"purchase_order_id"`
	Carrier         string              `json:"carrier" validate:"required,max=200"`
	TrackingNumber  string              `json:"tracking_number" validate:"max=100"`
	Lines           []ShipmentLineInput `json:"lines" validate:"required,min=1,dive"`
}

// ShipmentLineInput describes a shipment line.
type ShipmentLineInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// ListFilters narrows purchase order and shipment listings.
type ListFilters struct {
	Status string
	Limit  int
	Offset int
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)

func invalidState(kind string, number any, status any, action string) error {
	return fmt.Errorf("%w: cannot %s %s %v in status %v", ErrInvalidState, action, kind, number, status)
}
