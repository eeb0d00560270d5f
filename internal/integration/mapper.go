package integration

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/procurement"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders"
)

type movementsMessage struct {
	Actor     string                    `json:"actor"`
	Movements []inventory.StockMovement `json:"movements"`
}

type statusMessage struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Actor       string    `json:"actor"`
	Movements   int       `json:"movements"`
	ChangedAt   time.Time `json:"changed_at"`
}

type paymentMessage struct {
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	PaymentID     int64           `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Total         decimal.Decimal `json:"total"`
	PaymentStatus string          `json:"payment_status"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

type receiptMessage struct {
	ReferenceType string    `json:"reference_type"`
	ReferenceID   int64     `json:"reference_id"`
	Number        string    `json:"number"`
	Actor         string    `json:"actor"`
	Units         int64     `json:"units"`
	ReceivedAt    time.Time `json:"received_at"`
}

func movementsPayload(actor string, movements []inventory.StockMovement) movementsMessage {
	return movementsMessage{Actor: actor, Movements: movements}
}

func statusPayload(evt orders.StatusChangedEvent) statusMessage {
	return statusMessage{
		OrderID:     evt.OrderID,
		OrderNumber: evt.OrderNumber,
		From:        string(evt.From),
		To:          string(evt.To),
		Actor:       evt.Actor,
		Movements:   len(evt.Movements),
		ChangedAt:   evt.ChangedAt.UTC(),
	}
}

func paymentPayload(evt orders.PaymentRecordedEvent) paymentMessage {
	return paymentMessage{
		OrderID:       evt.OrderID,
		OrderNumber:   evt.OrderNumber,
		PaymentID:     evt.PaymentID,
		Amount:        evt.Amount,
		PaidAmount:    evt.PaidAmount,
		Total:         evt.Total,
		PaymentStatus: string(evt.PaymentStatus),
		RecordedAt:    evt.RecordedAt.UTC(),
	}
}

func receiptPayload(evt procurement.ReceiptPostedEvent) receiptMessage {
	var units int64
	for _, m := range evt.Movements {
		units += m.Quantity
	}
	return receiptMessage{
		ReferenceType: string(evt.Reference.Kind()),
		ReferenceID:   evt.Reference.ID(),
		Number:        evt.Number,
		Actor:         evt.Actor,
		Units:         units,
		ReceivedAt:    evt.ReceivedAt.UTC(),
	}
}
