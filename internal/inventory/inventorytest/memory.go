// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
)

// ErrInjected is returned by InsertMovement when FailInsertAt triggers.
var ErrInjected = errors.New("inventorytest: injected failure")

// Store implements inventory.RepositoryPort in memory. Transactions are serialised on
// a single mutex, which stands in for the product row locks, and a failed callback
// restores the state captured when it started.
type Store struct {
	mu        sync.Mutex
	products  map[int64]inventory.Product
	movements []inventory.StockMovement
	nextID    int64
	nextMove  int64

	// FailInsertAt makes the n-th InsertMovement of a transaction fail. Zero disables it.
	FailInsertAt int
}

type state struct {
	products  map[int64]inventory.Product
	movements []inventory.StockMovement
	nextID    int64
	nextMove  int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{products: make(map[int64]inventory.Product)}
}

// Seed adds a product with the given opening stock and returns it.
func (s *Store) Seed(sku string, stock, reorderLevel int64) inventory.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertProduct(inventory.ProductInput{SKU: sku, Name: sku, InitialStock: stock, ReorderLevel: reorderLevel})
}

func (s *Store) insertProduct(input inventory.ProductInput) inventory.Product {
	s.nextID++
	now := time.Now().UTC()
	p := inventory.Product{
		ID:           s.nextID,
		SKU:          input.SKU,
		Name:         input.Name,
		CostPrice:    input.CostPrice,
		SalePrice:    input.SalePrice,
		InitialStock: input.InitialStock,
		CurrentStock: input.InitialStock,
		ReorderLevel: input.ReorderLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.products[p.ID] = p
	return p
}

// Atomic runs fn while holding the store lock and rolls the store back when fn fails.
// Fakes of other modules use it to share one transaction boundary with the ledger.
func (s *Store) Atomic(fn func(tx inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&txView{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Read runs fn under the store lock without transactional semantics.
func (s *Store) Read(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Store) snapshot() state {
	products := make(map[int64]inventory.Product, len(s.products))
	for id, p := range s.products {
		products[id] = p
	}
	return state{products: products, movements: slices.Clone(s.movements), nextID: s.nextID, nextMove: s.nextMove}
}

func (s *Store) restore(snap state) {
	s.products = snap.products
	s.movements = snap.movements
	s.nextID = snap.nextID
	s.nextMove = snap.nextMove
}

// Stock returns the current counter of a product.
func (s *Store) Stock(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].CurrentStock
}

// Movements returns a copy of the ledger in insertion order.
func (s *Store) Movements() []inventory.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.movements)
}

// MovementsFor returns ledger entries referencing ref.
func (s *Store) MovementsFor(ref inventory.Reference) []inventory.StockMovement {
	var out []inventory.StockMovement
	for _, m := range s.Movements() {
		if m.Reference.Kind() == ref.Kind() && m.Reference.ID() == ref.ID() {
			out = append(out, m)
		}
	}
	return out
}

// WithTx implements inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return s.Atomic(func(tx inventory.TxRepository) error {
		return fn(ctx, tx)
	})
}

// CreateProduct implements inventory.RepositoryPort.
func (s *Store) CreateProduct(_ context.Context, input inventory.ProductInput) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if strings.EqualFold(p.SKU, input.SKU) {
			return inventory.Product{}, inventory.ErrDuplicateSKU
		}
	}
	return s.insertProduct(input), nil
}

// GetProduct implements inventory.RepositoryPort.
func (s *Store) GetProduct(_ context.Context, id int64) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

// ListProducts implements inventory.RepositoryPort.
func (s *Store) ListProducts(_ context.Context, filter inventory.ProductFilter) ([]inventory.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []inventory.Product
	for _, p := range s.products {
		if filter.LowStockOnly && !p.LowStock() {
			continue
		}
		all = append(all, p)
	}
	slices.SortFunc(all, func(a, b inventory.Product) int { return strings.Compare(a.SKU, b.SKU) })
	total := len(all)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return all[start:end], total, nil
}

// ListMovements implements inventory.RepositoryPort.
func (s *Store) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.StockMovement
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.Reference != nil && (m.Reference.Kind() != filter.Reference.Kind() || m.Reference.ID() != filter.Reference.ID()) {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Reconcile implements inventory.RepositoryPort.
func (s *Store) Reconcile(_ context.Context) ([]inventory.Reconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[int64]int64)
	for _, m := range s.movements {
		sums[m.ProductID] += m.Quantity
	}
	out := make([]inventory.Reconciliation, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, inventory.Reconciliation{
			ProductID:    p.ID,
			SKU:          p.SKU,
			InitialStock: p.InitialStock,
			CurrentStock: p.CurrentStock,
			LedgerSum:    sums[p.ID],
		})
	}
	slices.SortFunc(out, func(a, b inventory.Reconciliation) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out, nil
}

// Corrupt overwrites a counter without a ledger entry, for drift tests.
func (s *Store) Corrupt(id, stock int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.CurrentStock = stock
	s.products[id] = p
}

type txView struct {
	store   *Store
	inserts int
}

func (t *txView) LockProducts(_ context.Context, ids []int64) (map[int64]inventory.Product, error) {
	out := make(map[int64]inventory.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.store.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *txView) InsertMovement(_ context.Context, m inventory.StockMovement) (int64, error) {
	t.inserts++
	if t.store.FailInsertAt > 0 && t.inserts == t.store.FailInsertAt {
		return 0, ErrInjected
	}
	t.store.nextMove++
	m.ID = t.store.nextMove
	t.store.movements = append(t.store.movements, m)
	return m.ID, nil
}

func (t *txView) UpdateProductStock(_ context.Context, productID, stock int64) error {
	p, ok := t.store.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.CurrentStock = stock
	p.UpdatedAt = time.Now().UTC()
	t.store.products[productID] = p
	return nil
}
