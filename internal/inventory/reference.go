package inventory

import (
	"encoding/json"
	"fmt"
)

// ReferenceKind names the business object that caused a movement.
type ReferenceKind string

const (
	RefOrder         ReferenceKind = "Order"
	RefPurchaseOrder ReferenceKind = "PurchaseOrder"
	RefShipment      ReferenceKind = "Shipment"
	RefManual        ReferenceKind = "Manual"
)

// Reference is the closed set of objects a ledger entry can point at. The unexported
// method keeps implementations inside this package.
type Reference interface {
	Kind() ReferenceKind
	ID() int64
	reference()
}

// OrderRef points at a sales order.
type OrderRef struct{ OrderID int64 }

// PurchaseOrderRef points at a purchase order.
type PurchaseOrderRef struct{ PurchaseOrderID int64 }

// ShipmentRef points at an inbound shipment.
type ShipmentRef struct{ ShipmentID int64 }

// ManualRef marks operator adjustments with no owning document.
type ManualRef struct{}

func (r OrderRef) Kind() ReferenceKind         { return RefOrder }
func (r OrderRef) ID() int64                   { return r.OrderID }
func (OrderRef) reference()                    {}
func (r PurchaseOrderRef) Kind() ReferenceKind { return RefPurchaseOrder }
func (r PurchaseOrderRef) ID() int64           { return r.PurchaseOrderID }
func (PurchaseOrderRef) reference()            {}
func (r ShipmentRef) Kind() ReferenceKind      { return RefShipment }
func (r ShipmentRef) ID() int64                { return r.ShipmentID }
func (ShipmentRef) reference()                 {}
func (ManualRef) Kind() ReferenceKind          { return RefManual }
func (ManualRef) ID() int64                    { return 0 }
func (ManualRef) reference()                   {}

// ParseReference rebuilds a reference from its stored kind and id.
func ParseReference(kind string, id int64) (Reference, error) {
	switch ReferenceKind(kind) {
	case RefOrder:
		return OrderRef{OrderID: id}, nil
	case RefPurchaseOrder:
		return PurchaseOrderRef{PurchaseOrderID: id}, nil
	case RefShipment:
		return ShipmentRef{ShipmentID: id}, nil
	case RefManual:
		return ManualRef{}, nil
	}
	return nil, fmt.Errorf("%w: unknown reference kind %q", ErrInvalidMovement, kind)
}

// referenceID returns the id column value; manual references store NULL.
func referenceID(ref Reference) *int64 {
	switch r := ref.(type) {
	case OrderRef, PurchaseOrderRef, ShipmentRef:
		id := r.ID()
		return &id
	case ManualRef:
		return nil
	default:
		panic(fmt.Sprintf("inventory: unhandled reference %T", ref))
	}
}

type referenceJSON struct {
	Type ReferenceKind `json:"reference_type"`
	ID   *int64        `json:"reference_id"`
}

// MarshalJSON flattens the reference into reference_type/reference_id fields.
func (m StockMovement) MarshalJSON() ([]byte, error) {
	type plain StockMovement
	out := struct {
		plain
		referenceJSON
	}{plain: plain(m)}
	if m.Reference != nil {
		out.referenceJSON = referenceJSON{Type: m.Reference.Kind(), ID: referenceID(m.Reference)}
	}
	return json.Marshal(out)
}
