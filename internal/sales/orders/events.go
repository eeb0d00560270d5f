package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	salesshared "github.com/odyssey-erp/odyssey-trade/internal/sales/shared"
)

// StatusChangedEvent is emitted after a status transition commits.
type StatusChangedEvent struct {
	OrderID     int64
	OrderNumber string
	From        Status
	To          Status
	Actor       string
	Movements   []inventory.StockMovement
	ChangedAt   time.Time
}

// PaymentRecordedEvent is emitted after a payment commits.
type PaymentRecordedEvent struct {
	OrderID       int64
	OrderNumber   string
	PaymentID     int64
	Amount        decimal.Decimal
	PaidAmount    decimal.Decimal
	Total         decimal.Decimal
	PaymentStatus salesshared.PaymentStatus
	RecordedAt    time.Time
}

// IntegrationHandler receives committed order events.
type IntegrationHandler interface {
	HandleStatusChanged(ctx context.Context, evt StatusChangedEvent) error
	HandlePaymentRecorded(ctx context.Context, evt PaymentRecordedEvent) error
}

// Recorder observes transition attempts. outcome is one of the Outcome* values.
type Recorder interface {
	ObserveOrderTransition(to, outcome string)
}

const (
	OutcomeOK                = "ok"
	OutcomeIllegal           = "illegal"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeConflict          = "conflict"
	OutcomeTimeout           = "timeout"
	OutcomeNotFound          = "not_found"
	OutcomeError             = "error"
)
