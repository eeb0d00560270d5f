package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-trade/internal/jobs"
)

// ProductReader loads products for the low stock check.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
	LowStock(ctx context.Context, limit int) ([]inventory.Product, error)
}

// LowStockJob reports products that fell to or below their reorder level.
type LowStockJob struct {
	Products ProductReader
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLowStockJob initialises the low stock handler.
func NewLowStockJob(products ProductReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockJob {
	return &LowStockJob{Products: products, Logger: logger, Metrics: metrics}
}

// Handle executes the low stock check.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Products == nil {
		return errors.New("low stock check: handler not configured")
	}
	var payload LowStockCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskLowStockCheck)
	logger := j.logger().With(slog.Int("requested", len(payload.ProductIDs)))

	low, err := j.check(ctx, payload.ProductIDs)
	if err != nil {
		logger.Error("low stock check failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, p := range low {
		logger.Warn("product at reorder level",
			slog.Int64("product_id", p.ID),
			slog.String("sku", p.SKU),
			slog.Int64("current_stock", p.CurrentStock),
			slog.Int64("reorder_level", p.ReorderLevel),
		)
	}
	j.metrics().AddLowStock(len(low))
	logger.Info("completed low stock check", slog.Int("low", len(low)), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *LowStockJob) check(ctx context.Context, ids []int64) ([]inventory.Product, error) {
	if len(ids) == 0 {
		return j.Products.LowStock(ctx, 500)
	}
	var low []inventory.Product
	for _, id := range ids {
		p, err := j.Products.GetProduct(ctx, id)
		if errors.Is(err, inventory.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.LowStock() {
			low = append(low, p)
		}
	}
	return low, nil
}

func (j *LowStockJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockCheck))
	}
	return slog.Default().With(slog.String("job", TaskLowStockCheck))
}

func (j *LowStockJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
