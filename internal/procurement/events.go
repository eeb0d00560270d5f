package procurement

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
)

// ReceiptPostedEvent describes stock received against a purchase order or shipment.
type ReceiptPostedEvent struct {
	Reference  inventory.Reference
	Number     string
	Movements  []inventory.StockMovement
	Actor      string
	ReceivedAt time.Time
}

// IntegrationHandler receives procurement domain events after commit.
type IntegrationHandler interface {
	HandleReceiptPosted(ctx context.Context, evt ReceiptPostedEvent) error
}
