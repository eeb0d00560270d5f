package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error)
	GetShipment(ctx context.Context, id int64) (Shipment, error)
	ListShipments(ctx context.Context, filters ListFilters) ([]Shipment, int, error)
}

// TxRepository exposes transactional persistence operations.
type TxRepository interface {
	CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line POLine) error
	// LockPurchaseOrder loads a purchase order with its lines and holds its row lock.
	LockPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePOStatus(ctx context.Context, id int64, status POStatus, at time.Time) error
	CreateShipment(ctx context.Context, sh Shipment) (int64, error)
	InsertShipmentLine(ctx context.Context, line ShipmentLine) error
	LockShipment(ctx context.Context, id int64) (Shipment, error)
	MarkShipmentReceived(ctx context.Context, id int64, at time.Time) error
	// ShippedQuantities sums shipment lines per product over the shipments linked
	// to a purchase order. An empty status counts every linked shipment.
	ShippedQuantities(ctx context.Context, purchaseOrderID int64, status ShipmentStatus) (map[int64]int64, error)
	// Stock returns the ledger operations bound to this transaction.
	Stock() inventory.TxRepository
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates procurement flows.
type Service struct {
	repo        RepositoryPort
	ledger      *inventory.Ledger
	audit       AuditPort
	integration IntegrationHandler
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, audit AuditPort, integration IntegrationHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		ledger:      inventory.NewLedger(),
		audit:       audit,
		integration: integration,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreatePurchaseOrder persists a draft purchase order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePurchaseOrderInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID <= 0 || line.Quantity <= 0 || line.UnitCost.IsNegative() || !shared.IsMoney(line.UnitCost) {
			return PurchaseOrder{}, fmt.Errorf("%w: line for product %d", ErrValidation, line.ProductID)
		}
	}
	if input.Number == "" {
		input.Number = generateNumber("PO", s.now())
	}
	po := PurchaseOrder{
		Number:       input.Number,
		Supplier:     input.Supplier,
		Status:       POStatusDraft,
		ExpectedDate: input.ExpectedDate,
		Note:         input.Note,
		CreatedBy:    shared.ActorFromContext(ctx),
	}
	var created PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreatePurchaseOrder(ctx, po)
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			if err := tx.InsertPOLine(ctx, POLine{PurchaseOrderID: id, ProductID: line.ProductID, Quantity: line.Quantity, UnitCost: line.UnitCost}); err != nil {
				return err
			}
		}
		created, err = tx.LockPurchaseOrder(ctx, id)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "procurement:po:create", "purchase_order", created.ID, map[string]any{"number": created.Number, "total": created.Total().String()})
	return created, nil
}

// GetPurchaseOrder loads a purchase order with lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// ListPurchaseOrders returns a page of purchase orders.
func (s *Service) ListPurchaseOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	return s.repo.ListPurchaseOrders(ctx, normalise(filters))
}

// MarkOrdered records that the purchase order was sent to the supplier.
func (s *Service) MarkOrdered(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.movePurchaseOrder(ctx, id, POStatusOrdered, "order", func(po PurchaseOrder) bool {
		return po.Status == POStatusDraft
	})
}

// Cancel abandons a purchase order that has not been received.
func (s *Service) Cancel(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.movePurchaseOrder(ctx, id, POStatusCancelled, "cancel", func(po PurchaseOrder) bool {
		return po.Status == POStatusDraft || po.Status == POStatusOrdered
	})
}

func (s *Service) movePurchaseOrder(ctx context.Context, id int64, target POStatus, action string, allowed func(PurchaseOrder) bool) (PurchaseOrder, error) {
	var out PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if !allowed(po) {
			return invalidState("purchase order", po.Number, po.Status, action)
		}
		now := s.now()
		if err := tx.UpdatePOStatus(ctx, id, target, now); err != nil {
			return err
		}
		po.Status = target
		po.UpdatedAt = now
		switch target {
		case POStatusOrdered:
			po.OrderedAt = &now
		case POStatusCancelled:
			po.CancelledAt = &now
		}
		out = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "procurement:po:"+action, "purchase_order", id, map[string]any{"status": string(target)})
	return out, nil
}

// Receive books the outstanding quantity of an ordered purchase order into
// stock. Goods already booked through linked shipments are not posted again.
// The ledger entries and the status change commit together; receiving twice is
// rejected.
func (s *Service) Receive(ctx context.Context, id int64, actor string) (PurchaseOrder, []inventory.StockMovement, error) {
	if actor == "" {
		return PurchaseOrder{}, nil, shared.ErrActorRequired
	}
	var (
		out       PurchaseOrder
		movements []inventory.StockMovement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if po.Status != POStatusOrdered {
			return invalidState("purchase order", po.Number, po.Status, "receive")
		}
		received, err := tx.ShippedQuantities(ctx, po.ID, ShipmentReceived)
		if err != nil {
			return err
		}
		ref := inventory.PurchaseOrderRef{PurchaseOrderID: po.ID}
		reqs := make([]inventory.MovementRequest, 0, len(po.Lines))
		for _, line := range po.Lines {
			qty := line.Quantity
			if already := min(received[line.ProductID], qty); already > 0 {
				received[line.ProductID] -= already
				qty -= already
			}
			if qty > 0 {
				reqs = append(reqs, inbound(line.ProductID, qty, ref, po.Number))
			}
		}
		movements, err = s.ledger.Post(ctx, tx.Stock(), actor, reqs)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.UpdatePOStatus(ctx, id, POStatusReceived, now); err != nil {
			return err
		}
		po.Status = POStatusReceived
		po.ReceivedAt = &now
		po.UpdatedAt = now
		out = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	s.recordAudit(ctx, "procurement:po:receive", "purchase_order", id, map[string]any{"number": out.Number, "lines": len(movements)})
	s.notify(ctx, ReceiptPostedEvent{
		Reference:  inventory.PurchaseOrderRef{PurchaseOrderID: id},
		Number:     out.Number,
		Movements:  movements,
		Actor:      actor,
		ReceivedAt: *out.ReceivedAt,
	})
	return out, movements, nil
}

// CreateShipment registers goods in transit. A shipment linked to a purchase
// order needs the order to be ordered and may only carry its outstanding lines.
func (s *Service) CreateShipment(ctx context.Context, input CreateShipmentInput) (Shipment, error) {
	if len(input.Lines) == 0 {
		return Shipment{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return Shipment{}, fmt.Errorf("%w: line for product %d", ErrValidation, line.ProductID)
		}
	}
	sh := Shipment{
		PurchaseOrderID: input.PurchaseOrderID,
		Carrier:         input.Carrier,
		TrackingNumber:  strings.TrimSpace(input.TrackingNumber),
		Status:          ShipmentInTransit,
		CreatedBy:       shared.ActorFromContext(ctx),
	}
	var created Shipment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if sh.PurchaseOrderID != nil {
			po, err := tx.LockPurchaseOrder(ctx, *sh.PurchaseOrderID)
			if err != nil {
				return err
			}
			if po.Status != POStatusOrdered {
				return invalidState("purchase order", po.Number, po.Status, "ship against")
			}
			shipped, err := tx.ShippedQuantities(ctx, po.ID, "")
			if err != nil {
				return err
			}
			if err := checkOutstanding(po, shipped, input.Lines); err != nil {
				return err
			}
		}
		id, err := tx.CreateShipment(ctx, sh)
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			if err := tx.InsertShipmentLine(ctx, ShipmentLine{ShipmentID: id, ProductID: line.ProductID, Quantity: line.Quantity}); err != nil {
				return err
			}
		}
		created, err = tx.LockShipment(ctx, id)
		return err
	})
	if err != nil {
		return Shipment{}, err
	}
	s.recordAudit(ctx, "procurement:shipment:create", "shipment", created.ID, map[string]any{"carrier": created.Carrier, "tracking": created.TrackingNumber})
	return created, nil
}

// GetShipment loads a shipment with lines.
func (s *Service) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	return s.repo.GetShipment(ctx, id)
}

// ListShipments returns a page of shipments.
func (s *Service) ListShipments(ctx context.Context, filters ListFilters) ([]Shipment, int, error) {
	return s.repo.ListShipments(ctx, normalise(filters))
}

// ReceiveShipment books an in-transit shipment into stock. When the shipment
// completes its purchase order, the order moves to received in the same
// transaction.
func (s *Service) ReceiveShipment(ctx context.Context, id int64, actor string) (Shipment, []inventory.StockMovement, error) {
	if actor == "" {
		return Shipment{}, nil, shared.ErrActorRequired
	}
	var (
		out       Shipment
		movements []inventory.StockMovement
		closed    int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sh, err := tx.LockShipment(ctx, id)
		if err != nil {
			return err
		}
		if sh.Status != ShipmentInTransit {
			return invalidState("shipment", sh.ID, sh.Status, "receive")
		}
		var po *PurchaseOrder
		if sh.PurchaseOrderID != nil {
			linked, err := tx.LockPurchaseOrder(ctx, *sh.PurchaseOrderID)
			if err != nil {
				return err
			}
			if linked.Status != POStatusOrdered {
				return invalidState("purchase order", linked.Number, linked.Status, "receive a shipment for")
			}
			po = &linked
		}
		ref := inventory.ShipmentRef{ShipmentID: sh.ID}
		note := strings.TrimSpace(sh.Carrier + " " + sh.TrackingNumber)
		reqs := make([]inventory.MovementRequest, 0, len(sh.Lines))
		for _, line := range sh.Lines {
			reqs = append(reqs, inbound(line.ProductID, line.Quantity, ref, note))
		}
		movements, err = s.ledger.Post(ctx, tx.Stock(), actor, reqs)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkShipmentReceived(ctx, id, now); err != nil {
			return err
		}
		if po != nil {
			received, err := tx.ShippedQuantities(ctx, po.ID, ShipmentReceived)
			if err != nil {
				return err
			}
			if fullyReceived(*po, received) {
				if err := tx.UpdatePOStatus(ctx, po.ID, POStatusReceived, now); err != nil {
					return err
				}
				closed = po.ID
			}
		}
		sh.Status = ShipmentReceived
		sh.ReceivedAt = &now
		out = sh
		return nil
	})
	if err != nil {
		return Shipment{}, nil, err
	}
	s.recordAudit(ctx, "procurement:shipment:receive", "shipment", id, map[string]any{"lines": len(movements)})
	if closed != 0 {
		s.recordAudit(ctx, "procurement:po:receive", "purchase_order", closed, map[string]any{"shipment_id": id})
	}
	s.notify(ctx, ReceiptPostedEvent{
		Reference:  inventory.ShipmentRef{ShipmentID: id},
		Number:     out.TrackingNumber,
		Movements:  movements,
		Actor:      actor,
		ReceivedAt: *out.ReceivedAt,
	})
	return out, movements, nil
}

func orderedQuantities(po PurchaseOrder) map[int64]int64 {
	out := make(map[int64]int64, len(po.Lines))
	for _, line := range po.Lines {
		out[line.ProductID] += line.Quantity
	}
	return out
}

func checkOutstanding(po PurchaseOrder, shipped map[int64]int64, lines []ShipmentLineInput) error {
	ordered := orderedQuantities(po)
	requested := make(map[int64]int64, len(lines))
	for _, line := range lines {
		requested[line.ProductID] += line.Quantity
	}
	for productID, qty := range requested {
		want, ok := ordered[productID]
		if !ok {
			return fmt.Errorf("%w: product %d is not on purchase order %s", ErrValidation, productID, po.Number)
		}
		if outstanding := want - shipped[productID]; qty > outstanding {
			return fmt.Errorf("%w: product %d exceeds outstanding quantity %d on purchase order %s", ErrValidation, productID, outstanding, po.Number)
		}
	}
	return nil
}

func fullyReceived(po PurchaseOrder, received map[int64]int64) bool {
	for productID, qty := range orderedQuantities(po) {
		if received[productID] < qty {
			return false
		}
	}
	return true
}

func inbound(productID, qty int64, ref inventory.Reference, note string) inventory.MovementRequest {
	return inventory.MovementRequest{
		ProductID: productID,
		Type:      inventory.MovementIn,
		Reason:    inventory.ReasonShipmentReceived,
		Quantity:  qty,
		Reference: ref,
		Note:      note,
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("procurement audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, evt ReceiptPostedEvent) {
	if s.integration == nil {
		return
	}
	if err := s.integration.HandleReceiptPosted(ctx, evt); err != nil {
		s.logger.Warn("procurement integration", slog.String("number", evt.Number), slog.Any("error", err))
	}
}

func normalise(filters ListFilters) ListFilters {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 20
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return filters
}

func generateNumber(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), suffix)
}
