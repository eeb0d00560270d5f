package procurement

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
)

type memoryProcRepo struct {
	stock     *inventorytest.Store
	pos       map[int64]PurchaseOrder
	shipments map[int64]Shipment
	nextID    int64
}

type memoryProcTx struct {
	repo  *memoryProcRepo
	stock inventory.TxRepository
}

func newMemoryProcRepo(stock *inventorytest.Store) *memoryProcRepo {
	return &memoryProcRepo{
		stock:     stock,
		pos:       make(map[int64]PurchaseOrder),
		shipments: make(map[int64]Shipment),
	}
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.stock.Atomic(func(stock inventory.TxRepository) error {
		pos := clonePOs(r.pos)
		shipments := cloneShipments(r.shipments)
		nextID := r.nextID
		if err := fn(ctx, &memoryProcTx{repo: r, stock: stock}); err != nil {
			r.pos, r.shipments, r.nextID = pos, shipments, nextID
			return err
		}
		return nil
	})
}

func clonePOs(in map[int64]PurchaseOrder) map[int64]PurchaseOrder {
	out := make(map[int64]PurchaseOrder, len(in))
	for id, po := range in {
		po.Lines = slices.Clone(po.Lines)
		out[id] = po
	}
	return out
}

func cloneShipments(in map[int64]Shipment) map[int64]Shipment {
	out := make(map[int64]Shipment, len(in))
	for id, sh := range in {
		sh.Lines = slices.Clone(sh.Lines)
		out[id] = sh
	}
	return out
}

func (r *memoryProcRepo) GetPurchaseOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	var (
		po PurchaseOrder
		ok bool
	)
	r.stock.Read(func() { po, ok = r.pos[id] })
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, nil
}

func (r *memoryProcRepo) ListPurchaseOrders(_ context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	r.stock.Read(func() {
		for _, po := range r.pos {
			if filters.Status == "" || string(po.Status) == filters.Status {
				out = append(out, po)
			}
		}
	})
	return out, len(out), nil
}

func (r *memoryProcRepo) GetShipment(_ context.Context, id int64) (Shipment, error) {
	var (
		sh Shipment
		ok bool
	)
	r.stock.Read(func() { sh, ok = r.shipments[id] })
	if !ok {
		return Shipment{}, ErrNotFound
	}
	return sh, nil
}

func (r *memoryProcRepo) ListShipments(_ context.Context, filters ListFilters) ([]Shipment, int, error) {
	var out []Shipment
	r.stock.Read(func() {
		for _, sh := range r.shipments {
			if filters.Status == "" || string(sh.Status) == filters.Status {
				out = append(out, sh)
			}
		}
	})
	return out, len(out), nil
}

func (tx *memoryProcTx) nextID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryProcTx) Stock() inventory.TxRepository { return tx.stock }

func (tx *memoryProcTx) CreatePurchaseOrder(_ context.Context, po PurchaseOrder) (int64, error) {
	po.ID = tx.nextID()
	po.CreatedAt = time.Now().UTC()
	po.UpdatedAt = po.CreatedAt
	tx.repo.pos[po.ID] = po
	return po.ID, nil
}

func (tx *memoryProcTx) InsertPOLine(_ context.Context, line POLine) error {
	po, ok := tx.repo.pos[line.PurchaseOrderID]
	if !ok {
		return ErrNotFound
	}
	line.ID = tx.nextID()
	po.Lines = append(po.Lines, line)
	tx.repo.pos[po.ID] = po
	return nil
}

func (tx *memoryProcTx) LockPurchaseOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	po, ok := tx.repo.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	po.Lines = slices.Clone(po.Lines)
	return po, nil
}

func (tx *memoryProcTx) UpdatePOStatus(_ context.Context, id int64, status POStatus, at time.Time) error {
	po, ok := tx.repo.pos[id]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	po.UpdatedAt = at
	switch status {
	case POStatusOrdered:
		po.OrderedAt = &at
	case POStatusReceived:
		po.ReceivedAt = &at
	case POStatusCancelled:
		po.CancelledAt = &at
	}
	tx.repo.pos[id] = po
	return nil
}

func (tx *memoryProcTx) CreateShipment(_ context.Context, sh Shipment) (int64, error) {
	sh.ID = tx.nextID()
	sh.CreatedAt = time.Now().UTC()
	tx.repo.shipments[sh.ID] = sh
	return sh.ID, nil
}

func (tx *memoryProcTx) InsertShipmentLine(_ context.Context, line ShipmentLine) error {
	sh, ok := tx.repo.shipments[line.ShipmentID]
	if !ok {
		return ErrNotFound
	}
	line.ID = tx.nextID()
	sh.Lines = append(sh.Lines, line)
	tx.repo.shipments[sh.ID] = sh
	return nil
}

func (tx *memoryProcTx) LockShipment(_ context.Context, id int64) (Shipment, error) {
	sh, ok := tx.repo.shipments[id]
	if !ok {
		return Shipment{}, ErrNotFound
	}
	sh.Lines = slices.Clone(sh.Lines)
	return sh, nil
}

func (tx *memoryProcTx) MarkShipmentReceived(_ context.Context, id int64, at time.Time) error {
	sh, ok := tx.repo.shipments[id]
	if !ok {
		return ErrNotFound
	}
	sh.Status = ShipmentReceived
	sh.ReceivedAt = &at
	tx.repo.shipments[id] = sh
	return nil
}

func (tx *memoryProcTx) ShippedQuantities(_ context.Context, purchaseOrderID int64, status ShipmentStatus) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, sh := range tx.repo.shipments {
		if sh.PurchaseOrderID == nil || *sh.PurchaseOrderID != purchaseOrderID {
			continue
		}
		if status != "" && sh.Status != status {
			continue
		}
		for _, line := range sh.Lines {
			out[line.ProductID] += line.Quantity
		}
	}
	return out, nil
}

type receiptRecorder struct {
	events []ReceiptPostedEvent
}

func (r *receiptRecorder) HandleReceiptPosted(_ context.Context, evt ReceiptPostedEvent) error {
	r.events = append(r.events, evt)
	return nil
}

func newTestService(t *testing.T) (*Service, *inventorytest.Store, *receiptRecorder) {
	t.Helper()
	store := inventorytest.NewStore()
	events := &receiptRecorder{}
	return NewService(newMemoryProcRepo(store), nil, events, nil), store, events
}

func TestPurchaseOrderReceiveFlow(t *testing.T) {
	svc, store, events := newTestService(t)
	a := store.Seed("A", 2, 0)
	b := store.Seed("B", 0, 0)
	ctx := shared.ContextWithActor(context.Background(), "buyer:1")

	po, err := svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{
		Supplier: "PT Sumber",
		Lines: []POLineInput{
			{ProductID: a.ID, Quantity: 10, UnitCost: decimal.RequireFromString("1.5")},
			{ProductID: b.ID, Quantity: 4, UnitCost: decimal.RequireFromString("3")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, po.Status)
	require.Equal(t, "buyer:1", po.CreatedBy)
	require.Regexp(t, `^PO-\d{8}-[0-9A-F]{8}$`, po.Number)
	require.True(t, po.Total().Equal(decimal.NewFromInt(27)))

	// drafts cannot be received
	_, _, err = svc.Receive(ctx, po.ID, "buyer:1")
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.MarkOrdered(ctx, po.ID)
	require.NoError(t, err)

	received, movements, err := svc.Receive(ctx, po.ID, "buyer:1")
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, received.Status)
	require.NotNil(t, received.ReceivedAt)
	require.Len(t, movements, 2)
	for _, m := range movements {
		require.Equal(t, inventory.MovementIn, m.Type)
		require.Equal(t, inventory.ReasonShipmentReceived, m.Reason)
		require.Equal(t, inventory.PurchaseOrderRef{PurchaseOrderID: po.ID}, m.Reference)
	}
	require.Equal(t, int64(12), store.Stock(a.ID))
	require.Equal(t, int64(4), store.Stock(b.ID))
	require.Len(t, events.events, 1)

	_, _, err = svc.Receive(ctx, po.ID, "buyer:1")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, int64(12), store.Stock(a.ID))
	require.Len(t, store.Movements(), 2)

	_, err = svc.Cancel(ctx, po.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelPurchaseOrder(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := store.Seed("A", 0, 0)
	ctx := context.Background()

	po, err := svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{Supplier: "CV Jaya", Lines: []POLineInput{{ProductID: a.ID, Quantity: 1}}})
	require.NoError(t, err)
	cancelled, err := svc.Cancel(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.MarkOrdered(ctx, po.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReceiveRollsBackOnUnknownProduct(t *testing.T) {
	svc, store, events := newTestService(t)
	a := store.Seed("A", 5, 0)
	ctx := context.Background()

	po, err := svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{
		Supplier: "PT Sumber",
		Lines:    []POLineInput{{ProductID: a.ID, Quantity: 3}, {ProductID: 999, Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = svc.MarkOrdered(ctx, po.ID)
	require.NoError(t, err)

	_, _, err = svc.Receive(ctx, po.ID, "buyer:1")
	require.ErrorIs(t, err, inventory.ErrProductNotFound)
	require.Equal(t, int64(5), store.Stock(a.ID))
	require.Empty(t, store.Movements())
	require.Empty(t, events.events)

	current, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusOrdered, current.Status)
}

func TestShipmentReceive(t *testing.T) {
	svc, store, events := newTestService(t)
	a := store.Seed("A", 1, 0)
	ctx := context.Background()

	sh, err := svc.CreateShipment(ctx, CreateShipmentInput{Carrier: "JNE", TrackingNumber: " JN123 ", Lines: []ShipmentLineInput{{ProductID: a.ID, Quantity: 6}}})
	require.NoError(t, err)
	require.Equal(t, ShipmentInTransit, sh.Status)
	require.Equal(t, "JN123", sh.TrackingNumber)

	received, movements, err := svc.ReceiveShipment(ctx, sh.ID, "warehouse:2")
	require.NoError(t, err)
	require.Equal(t, ShipmentReceived, received.Status)
	require.Len(t, movements, 1)
	require.Equal(t, inventory.ShipmentRef{ShipmentID: sh.ID}, movements[0].Reference)
	require.Equal(t, "warehouse:2", movements[0].Actor)
	require.Equal(t, int64(7), store.Stock(a.ID))
	require.Len(t, events.events, 1)

	_, _, err = svc.ReceiveShipment(ctx, sh.ID, "warehouse:2")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, int64(7), store.Stock(a.ID))
}

func TestShipmentForUnknownPurchaseOrder(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := store.Seed("A", 1, 0)
	missing := int64(42)

	_, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		PurchaseOrderID: &missing,
		Carrier:         "JNE",
		Lines:           []ShipmentLineInput{{ProductID: a.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProcurementValidation(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := store.Seed("A", 1, 0)
	ctx := context.Background()

	_, err := svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{Supplier: "X"})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{Supplier: "X", Lines: []POLineInput{{ProductID: a.ID, Quantity: 1, UnitCost: decimal.NewFromInt(-1)}}})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{Supplier: "X", Lines: []POLineInput{{ProductID: a.ID, Quantity: 1, UnitCost: decimal.RequireFromString("1.005")}}})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateShipment(ctx, CreateShipmentInput{Carrier: "JNE", Lines: []ShipmentLineInput{{ProductID: a.ID}}})
	require.ErrorIs(t, err, ErrValidation)
	_, _, err = svc.ReceiveShipment(ctx, 1, "")
	require.ErrorIs(t, err, shared.ErrActorRequired)
}

func orderedPO(t *testing.T, svc *Service, lines ...POLineInput) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{Supplier: "PT Sumber", Lines: lines})
	require.NoError(t, err)
	po, err = svc.MarkOrdered(ctx, po.ID)
	require.NoError(t, err)
	return po
}

func TestLinkedShipmentClosesPurchaseOrder(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := store.Seed("A", 0, 0)
	ctx := context.Background()
	po := orderedPO(t, svc, POLineInput{ProductID: a.ID, Quantity: 10})

	sh, err := svc.CreateShipment(ctx, CreateShipmentInput{PurchaseOrderID: &po.ID, Carrier: "JNE", Lines: []ShipmentLineInput{{ProductID: a.ID, Quantity: 10}}})
	require.NoError(t, err)
	_, _, err = svc.ReceiveShipment(ctx, sh.ID, "warehouse:2")
	require.NoError(t, err)
	require.Equal(t, int64(10), store.Stock(a.ID))

	current, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, current.Status)

	_, _, err = svc.Receive(ctx, po.ID, "buyer:1")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, int64(10), store.Stock(a.ID))
	require.Len(t, store.Movements(), 1)
}

func TestReceivePurchaseOrderBooksOnlyOutstanding(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := store.Seed("A", 0, 0)
	b := store.Seed("B", 0, 0)
	ctx := context.Background()
	po := orderedPO(t, svc, POLineInput{ProductID: a.ID, Quantity: 10}, POLineInput{ProductID: b.ID, Quantity: 2})

	sh, err := svc.CreateShipment(ctx, CreateShipmentInput{PurchaseOrderID: &po.ID, Carrier: "JNE", Lines: []ShipmentLineInput{{ProductID: a.ID, Quantity: 4}}})
	require.NoError(t, err)
	_, _, err = svc.ReceiveShipment(ctx, sh.ID, "warehouse:2")
	require.NoError(t, err)

	current, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusOrdered, current.Status)

	_, movements, err := svc.Receive(ctx, po.ID, "buyer:1")
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, int64(6), movements[0].Quantity)
	require.Equal(t, int64(10), store.Stock(a.ID))
	require.Equal(t, int64(2), store.Stock(b.ID))
}

func TestLinkedShipmentAfterPurchaseOrderReceiptIsRejected(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := store.Seed("A", 0, 0)
	ctx := context.Background()
	po := orderedPO(t, svc, POLineInput{ProductID: a.ID, Quantity: 10})

	sh, err := svc.CreateShipment(ctx, CreateShipmentInput{PurchaseOrderID: &po.ID, Carrier: "JNE", Lines: []ShipmentLineInput{{ProductID: a.ID, Quantity: 10}}})
	require.NoError(t, err)
	_, _, err = svc.Receive(ctx, po.ID, "buyer:1")
	require.NoError(t, err)

	_, _, err = svc.ReceiveShipment(ctx, sh.ID, "warehouse:2")
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, int64(10), store.Stock(a.ID))
	require.Len(t, store.Movements(), 1)
}

func TestShipmentRequiresOrderedPurchaseOrder(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := store.Seed("A", 0, 0)
	b := store.Seed("B", 0, 0)
	ctx := context.Background()

	draft, err := svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{Supplier: "CV Jaya", Lines: []POLineInput{{ProductID: a.ID, Quantity: 5}}})
	require.NoError(t, err)
	_, err = svc.CreateShipment(ctx, CreateShipmentInput{PurchaseOrderID: &draft.ID, Carrier: "JNE", Lines: []ShipmentLineInput{{ProductID: a.ID, Quantity: 5}}})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Cancel(ctx, draft.ID)
	require.NoError(t, err)
	_, err = svc.CreateShipment(ctx, CreateShipmentInput{PurchaseOrderID: &draft.ID, Carrier: "JNE", Lines: []ShipmentLineInput{{ProductID: a.ID, Quantity: 5}}})
	require.ErrorIs(t, err, ErrInvalidState)

	po := orderedPO(t, svc, POLineInput{ProductID: a.ID, Quantity: 5})
	_, err = svc.CreateShipment(ctx, CreateShipmentInput{PurchaseOrderID: &po.ID, Carrier: "JNE", Lines: []ShipmentLineInput{{ProductID: b.ID, Quantity: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateShipment(ctx, CreateShipmentInput{PurchaseOrderID: &po.ID, Carrier: "JNE", Lines: []ShipmentLineInput{{ProductID: a.ID, Quantity: 3}}})
	require.NoError(t, err)
	_, err = svc.CreateShipment(ctx, CreateShipmentInput{PurchaseOrderID: &po.ID, Carrier: "JNE", Lines: []ShipmentLineInput{{ProductID: a.ID, Quantity: 3}}})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, store.Movements())
}
