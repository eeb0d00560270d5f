package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/inventory/inventorytest"
)

func post(t *testing.T, store *inventorytest.Store, reqs ...inventory.MovementRequest) ([]inventory.StockMovement, error) {
	t.Helper()
	ledger := inventory.NewLedger()
	var out []inventory.StockMovement
	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		out, err = ledger.Post(ctx, tx, "user:1", reqs)
		return err
	})
	return out, err
}

func sale(productID, qty, orderID int64) inventory.MovementRequest {
	return inventory.MovementRequest{
		ProductID: productID,
		Type:      inventory.MovementOut,
		Reason:    inventory.ReasonSale,
		Quantity:  -qty,
		Reference: inventory.OrderRef{OrderID: orderID},
	}
}

func TestLedgerPostSnapshotsStock(t *testing.T) {
	store := inventorytest.NewStore()
	a := store.Seed("A", 10, 2)

	movements, err := post(t, store, sale(a.ID, 4, 7))
	require.NoError(t, err)
	require.Len(t, movements, 1)
	m := movements[0]
	require.Equal(t, int64(-4), m.Quantity)
	require.Equal(t, int64(10), m.StockBefore)
	require.Equal(t, int64(6), m.StockAfter)
	require.Equal(t, m.Quantity, m.StockAfter-m.StockBefore)
	require.Equal(t, "user:1", m.Actor)
	require.Equal(t, inventory.OrderRef{OrderID: 7}, m.Reference)
	require.NotZero(t, m.ID)
	require.Equal(t, int64(6), store.Stock(a.ID))
}

func TestLedgerChainsRepeatedProduct(t *testing.T) {
	store := inventorytest.NewStore()
	a := store.Seed("A", 10, 0)

	movements, err := post(t, store, sale(a.ID, 3, 1), sale(a.ID, 5, 1))
	require.NoError(t, err)
	require.Equal(t, int64(10), movements[0].StockBefore)
	require.Equal(t, int64(7), movements[1].StockBefore)
	require.Equal(t, int64(2), movements[1].StockAfter)
	require.Equal(t, int64(2), store.Stock(a.ID))

	_, err = post(t, store, sale(a.ID, 1, 2), sale(a.ID, 2, 2))
	var short *inventory.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, int64(1), short.Available)
	require.Equal(t, int64(1), short.Shortfall())
	require.Equal(t, int64(2), store.Stock(a.ID))
}

func TestLedgerRejectsWithoutWriting(t *testing.T) {
	store := inventorytest.NewStore()
	var reqs []inventory.MovementRequest
	var ids []int64
	for i, stock := range []int64{5, 5, 1, 5, 5} {
		p := store.Seed(string(rune('A'+i)), stock, 0)
		ids = append(ids, p.ID)
		reqs = append(reqs, sale(p.ID, 2, 9))
	}

	_, err := post(t, store, reqs...)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	var short *inventory.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, ids[2], short.ProductID)
	require.Equal(t, "C", short.SKU)
	require.Equal(t, int64(1), short.Shortfall())

	require.Empty(t, store.Movements())
	for i, id := range ids {
		require.Equal(t, []int64{5, 5, 1, 5, 5}[i], store.Stock(id))
	}
}

func TestLedgerRollsBackOnStorageFailure(t *testing.T) {
	store := inventorytest.NewStore()
	a := store.Seed("A", 10, 0)
	b := store.Seed("B", 10, 0)
	c := store.Seed("C", 10, 0)
	store.FailInsertAt = 3

	_, err := post(t, store, sale(a.ID, 1, 1), sale(b.ID, 1, 1), sale(c.ID, 1, 1))
	require.True(t, errors.Is(err, inventorytest.ErrInjected))
	require.Empty(t, store.Movements())
	require.Equal(t, int64(10), store.Stock(a.ID))
	require.Equal(t, int64(10), store.Stock(b.ID))
}

func TestLedgerValidatesRequests(t *testing.T) {
	store := inventorytest.NewStore()
	a := store.Seed("A", 10, 0)

	cases := map[string]inventory.MovementRequest{
		"zero":          {ProductID: a.ID, Type: inventory.MovementAdjustment, Reason: inventory.ReasonLoss, Reference: inventory.ManualRef{}},
		"positive out":  {ProductID: a.ID, Type: inventory.MovementOut, Reason: inventory.ReasonSale, Quantity: 2, Reference: inventory.OrderRef{OrderID: 1}},
		"negative in":   {ProductID: a.ID, Type: inventory.MovementIn, Reason: inventory.ReasonReturn, Quantity: -2, Reference: inventory.OrderRef{OrderID: 1}},
		"no reference":  {ProductID: a.ID, Type: inventory.MovementIn, Reason: inventory.ReasonReturn, Quantity: 2},
		"unknown type":  {ProductID: a.ID, Type: "transfer", Reason: inventory.ReasonOther, Quantity: 2, Reference: inventory.ManualRef{}},
		"unknown cause": {ProductID: a.ID, Type: inventory.MovementIn, Reason: "gift", Quantity: 2, Reference: inventory.ManualRef{}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := post(t, store, req)
			require.Error(t, err)
		})
	}
	require.Empty(t, store.Movements())
}

func TestLedgerUnknownProduct(t *testing.T) {
	store := inventorytest.NewStore()
	_, err := post(t, store, sale(99, 1, 1))
	require.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestLockOrderSortsAndDeduplicates(t *testing.T) {
	reqs := []inventory.MovementRequest{sale(9, 1, 1), sale(3, 1, 1), sale(9, 1, 1), sale(5, 1, 1)}
	require.Equal(t, []int64{3, 5, 9}, inventory.LockOrder(reqs))
}
