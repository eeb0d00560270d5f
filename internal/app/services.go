package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-trade/internal/analytics"
	analytichttp "github.com/odyssey-erp/odyssey-trade/internal/analytics/http"
	"github.com/odyssey-erp/odyssey-trade/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-trade/internal/audit/http"
	"github.com/odyssey-erp/odyssey-trade/internal/integration"
	"github.com/odyssey-erp/odyssey-trade/internal/inventory"
	"github.com/odyssey-erp/odyssey-trade/internal/observability"
	"github.com/odyssey-erp/odyssey-trade/internal/platform/events"
	"github.com/odyssey-erp/odyssey-trade/internal/procurement"
	"github.com/odyssey-erp/odyssey-trade/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-trade/internal/shared"
	"github.com/odyssey-erp/odyssey-trade/jobs"
)

// Dependencies are the process-level resources the services are built from.
type Dependencies struct {
	Config    *Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Publisher events.Publisher
	Jobs      integration.LowStockEnqueuer
	Metrics   *observability.Metrics
}

// Services holds the wired domain services.
type Services struct {
	Inventory   *inventory.Service
	Orders      *orders.Service
	Procurement *procurement.Service
	Analytics   *analytics.Service
	Audit       *audit.Service
	Cache       *analytics.Cache
	Idempotency *shared.IdempotencyStore
}

// BuildServices wires repositories, post-commit hooks and services over PostgreSQL.
func BuildServices(deps Dependencies) *Services {
	cfg := deps.Config
	auditLogger := shared.NewAuditLogger(deps.Pool)
	idem := shared.NewIdempotencyStore(deps.Pool)
	cache := analytics.NewCache(deps.Redis, cfg.AnalyticsCacheTTL, deps.Logger)

	opts := []integration.Option{
		integration.WithInvalidator(cache),
		integration.WithMovementRecorder(deps.Metrics),
	}
	if deps.Publisher != nil {
		opts = append(opts, integration.WithPublisher(deps.Publisher))
	}
	if deps.Jobs != nil {
		opts = append(opts, integration.WithLowStockEnqueuer(deps.Jobs))
	}
	hooks := integration.NewHooks(deps.Logger, opts...)

	inventoryRepo := inventory.NewRepository(deps.Pool, cfg.StockLockTimeout)
	ordersRepo := orders.NewRepository(deps.Pool, cfg.StockLockTimeout)
	procurementRepo := procurement.NewRepository(deps.Pool, cfg.StockLockTimeout)

	return &Services{
		Inventory: inventory.NewService(inventoryRepo, auditLogger, idem, hooks, deps.Logger),
		Orders: orders.NewService(ordersRepo, orders.ServiceConfig{
			Audit:       auditLogger,
			Idempotency: idem,
			Integration: hooks,
			Recorder:    deps.Metrics,
			Logger:      deps.Logger,
		}),
		Procurement: procurement.NewService(procurementRepo, auditLogger, hooks, deps.Logger),
		Analytics:   analytics.NewService(analytics.NewRepository(deps.Pool), cache),
		Audit:       audit.NewService(audit.NewRepository(deps.Pool)),
		Cache:       cache,
		Idempotency: idem,
	}
}

// Handlers builds the HTTP handlers for the services.
func (s *Services) Handlers(logger *slog.Logger) RouterParams {
	return RouterParams{
		Logger:             logger,
		InventoryHandler:   inventory.NewHandler(logger, s.Inventory),
		OrdersHandler:      orders.NewHandler(logger, s.Orders),
		ProcurementHandler: procurement.NewHandler(logger, s.Procurement),
		AnalyticsHandler:   analytichttp.NewHandler(logger, s.Analytics),
		AuditHandler:       audithttp.NewHandler(logger, s.Audit),
	}
}

var _ jobs.ProductReader = (*inventory.Service)(nil)
