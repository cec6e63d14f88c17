package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewReconcileHandler builds the handler that replays the movement ledger
// and compares the sums against the stored position snapshots. Any drift
// means a bug in posting or a manual edit and fails the job loudly.
func NewReconcileHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReconcilePayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return fmt.Errorf("reconcile payload: %w", err)
			}
		}

		const query = `
			SELECT p.item_id, p.warehouse_id, p.qty, p.total_value,
			       COALESCE(m.qty_sum, 0), COALESCE(m.value_sum, 0)
			FROM inventory_positions p
			LEFT JOIN (
				SELECT item_id, warehouse_id,
				       SUM(qty_delta) AS qty_sum,
				       SUM(value_delta) AS value_sum
				FROM inventory_movements
				GROUP BY item_id, warehouse_id
			) m ON m.item_id = p.item_id AND m.warehouse_id = p.warehouse_id
			WHERE p.qty <> COALESCE(m.qty_sum, 0)
			   OR p.total_value <> COALESCE(m.value_sum, 0)`

		rows, err := pool.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("reconcile query: %w", err)
		}
		defer rows.Close()

		drift := 0
		for rows.Next() {
			var itemID, warehouseID int64
			var qty, value, qtySum, valueSum string
			if err := rows.Scan(&itemID, &warehouseID, &qty, &value, &qtySum, &valueSum); err != nil {
				return fmt.Errorf("reconcile scan: %w", err)
			}
			drift++
			logger.Error("position drift",
				slog.Int64("item_id", itemID),
				slog.Int64("warehouse_id", warehouseID),
				slog.String("position_qty", qty),
				slog.String("ledger_qty", qtySum),
				slog.String("position_value", value),
				slog.String("ledger_value", valueSum),
			)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("reconcile rows: %w", err)
		}
		if drift > 0 {
			return fmt.Errorf("reconcile: %d positions drifted from the movement ledger", drift)
		}
		logger.Info("ledger reconcile clean", slog.String("job", TaskLedgerReconcile))
		return nil
	}
}
