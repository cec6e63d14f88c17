package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bodega-erp/bodega-erp/internal/shared"
)

const defaultIdempotencyRetention = 30 * 24 * time.Hour

// NewCleanupHandler builds the handler that prunes old idempotency keys.
func NewCleanupHandler(store *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CleanupPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("cleanup payload: %w", err)
			}
		}
		retention := payload.Retention
		if retention <= 0 {
			retention = defaultIdempotencyRetention
		}
		if err := store.Cleanup(ctx, retention); err != nil {
			return fmt.Errorf("idempotency cleanup: %w", err)
		}
		logger.Info("idempotency keys pruned",
			slog.String("job", TaskIdempotencyCleanup),
			slog.Duration("retention", retention),
		)
		return nil
	}
}
