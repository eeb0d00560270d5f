package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-trade/internal/jobs"
)

// Reconciler returns products whose counter disagrees with the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Reconciliation, error)
}

// StockReconcileJob checks that current stock equals initial stock plus the ledger sum.
type StockReconcileJob struct {
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewStockReconcileJob initialises the reconcile handler.
func NewStockReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockReconcileJob {
	return &StockReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle runs the reconciliation. Drift is logged and counted, never repaired.
func (j *StockReconcileJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("stock reconcile: handler not configured")
	}
	start := time.Now()
	tracker := j.metrics().Track(TaskStockReconcile)
	logger := j.logger()

	drifted, err := j.Reconciler.Reconcile(ctx)
	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, row := range drifted {
		logger.Error("stock ledger drift",
			slog.Int64("product_id", row.ProductID),
			slog.String("sku", row.SKU),
			slog.Int64("current_stock", row.CurrentStock),
			slog.Int64("expected", row.Expected()),
			slog.Int64("drift", row.Drift()),
		)
	}
	j.metrics().AddDrift(len(drifted))
	logger.Info("completed stock reconcile", slog.Int("drifted", len(drifted)), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *StockReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockReconcile))
	}
	return slog.Default().With(slog.String("job", TaskStockReconcile))
}

func (j *StockReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
