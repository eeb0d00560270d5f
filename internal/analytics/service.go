package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidRange rejects report windows whose end precedes their start.
var ErrInvalidRange = errors.New("analytics: invalid date range")

// Repository runs the read-only report queries.
type Repository interface {
	// Revenue sums the totals of orders confirmed in [from, to) that are neither
	// pending nor cancelled.
	Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, int64, error)
	// CostOfGoodsSold values sale movements net of returns in [from, to) at cost price.
	CostOfGoodsSold(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	// StockValue is Σ current_stock × cost_price over all products.
	StockValue(ctx context.Context) (decimal.Decimal, int64, error)
	LowStock(ctx context.Context, limit int) ([]LowStockItem, error)
}

// Summary is the headline report for a date window.
type Summary struct {
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	Revenue     decimal.Decimal `json:"revenue"`
	OrderCount  int64           `json:"order_count"`
	COGS        decimal.Decimal `json:"cogs"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	StockValue  decimal.Decimal `json:"stock_value"`
	StockUnits  int64           `json:"stock_units"`
	LowStock    []LowStockItem  `json:"low_stock"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// LowStockItem is a product at or below its reorder level.
type LowStockItem struct {
	ProductID    int64  `json:"product_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	CurrentStock int64  `json:"current_stock"`
	ReorderLevel int64  `json:"reorder_level"`
}

// SummaryFilter bounds a summary request. To is exclusive.
type SummaryFilter struct {
	From          time.Time
	To            time.Time
	LowStockLimit int
}

// Service coordinates analytics query execution with the cache layer.
type Service struct {
	repo  Repository
	cache *Cache
	group singleflight.Group
	now   func() time.Time
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// Summary returns revenue, cost of goods sold, gross profit, stock value and the
// low-stock list. Concurrent misses for the same window share one load.
func (s *Service) Summary(ctx context.Context, filter SummaryFilter) (Summary, error) {
	if filter.To.Before(filter.From) {
		return Summary{}, fmt.Errorf("%w: %s before %s", ErrInvalidRange, filter.To.Format(time.DateOnly), filter.From.Format(time.DateOnly))
	}
	if filter.LowStockLimit <= 0 {
		filter.LowStockLimit = 20
	}
	base := keySummary(filter.From, filter.To) + ":" + fmt.Sprint(filter.LowStockLimit)
	ch := s.group.DoChan(base, func() (interface{}, error) {
		return Fetch(ctx, s.cache, base, func(ctx context.Context) (Summary, error) {
			return s.loadSummary(ctx, filter)
		})
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (s *Service) loadSummary(ctx context.Context, filter SummaryFilter) (Summary, error) {
	out := Summary{From: filter.From, To: filter.To, GeneratedAt: s.now().UTC()}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		revenue, count, err := s.repo.Revenue(ctx, filter.From, filter.To)
		if err != nil {
			return fmt.Errorf("revenue: %w", err)
		}
		out.Revenue, out.OrderCount = revenue, count
		return nil
	})
	g.Go(func() error {
		cogs, err := s.repo.CostOfGoodsSold(ctx, filter.From, filter.To)
		if err != nil {
			return fmt.Errorf("cogs: %w", err)
		}
		out.COGS = cogs
		return nil
	})
	g.Go(func() error {
		value, units, err := s.repo.StockValue(ctx)
		if err != nil {
			return fmt.Errorf("stock value: %w", err)
		}
		out.StockValue, out.StockUnits = value, units
		return nil
	})
	g.Go(func() error {
		items, err := s.repo.LowStock(ctx, filter.LowStockLimit)
		if err != nil {
			return fmt.Errorf("low stock: %w", err)
		}
		out.LowStock = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	out.GrossProfit = out.Revenue.Sub(out.COGS)
	return out, nil
}

// LowStock lists products at or below their reorder level.
func (s *Service) LowStock(ctx context.Context, limit int) ([]LowStockItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return Fetch(ctx, s.cache, keyLowStock(limit), func(ctx context.Context) ([]LowStockItem, error) {
		return s.repo.LowStock(ctx, limit)
	})
}

// Invalidate drops every cached report.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
