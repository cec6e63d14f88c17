package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/bodega-erp/bodega-erp/internal/reports"
)

// NewReportsWarmupHandler builds the handler that pre-populates report
// caches so the first dashboard hit after an invalidation stays fast.
// Warehouse zero builds the all-warehouses aggregate.
func NewReportsWarmupHandler(svc *reports.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if _, err := svc.Valuation(ctx, 0); err != nil {
			return fmt.Errorf("warm valuation: %w", err)
		}
		if _, err := svc.LowStock(ctx, 0); err != nil {
			return fmt.Errorf("warm low stock: %w", err)
		}
		logger.Info("report caches warmed", slog.String("job", TaskReportsWarmup))
		return nil
	}
}
