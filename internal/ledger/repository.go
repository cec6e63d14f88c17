package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bodega-erp/bodega-erp/internal/platform/db"
)

// Repository persists positions, movements and cost lots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
// Serialization failures rerun the whole unit of work a bounded number of
// times; in particular, two first receipts racing to create the same
// position surface as a 40001 on the conflicting upsert and retry cleanly.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetPosition reads one balance outside any unit of work. A pair that was
// never touched yields a zero position; no row is created.
func (r *Repository) GetPosition(ctx context.Context, itemID, warehouseID int64) (Position, error) {
	if r == nil {
		return Position{}, errors.New("ledger repository not initialised")
	}
	pos := Position{ItemID: itemID, WarehouseID: warehouseID}
	err := r.pool.QueryRow(ctx, `SELECT item_id, warehouse_id, qty, total_value, avg_cost, updated_at
FROM inventory_positions WHERE item_id=$1 AND warehouse_id=$2`, itemID, warehouseID).
		Scan(&pos.ItemID, &pos.WarehouseID, &pos.Qty, &pos.TotalValue, &pos.AvgCost, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{ItemID: itemID, WarehouseID: warehouseID}, nil
		}
		return Position{}, err
	}
	return pos, nil
}

// ListPositions lists balances, optionally per warehouse or item.
func (r *Repository) ListPositions(ctx context.Context, filter PositionFilter) ([]Position, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT item_id, warehouse_id, qty, total_value, avg_cost, updated_at
FROM inventory_positions
WHERE ($1::bigint = 0 OR warehouse_id = $1)
  AND ($2::bigint = 0 OR item_id = $2)
  AND (NOT $3::bool OR qty <> 0)
ORDER BY warehouse_id, item_id
LIMIT $4`, filter.WarehouseID, filter.ItemID, filter.NonZeroOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	positions := []Position{}
	for rows.Next() {
		var pos Position
		if err := rows.Scan(&pos.ItemID, &pos.WarehouseID, &pos.Qty, &pos.TotalValue, &pos.AvgCost, &pos.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// ListMovements lists ledger entries for the stock card.
func (r *Repository) ListMovements(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, warehouse_id, movement_type, qty_delta, unit_cost, value_delta, balance_qty, balance_value, costing_method, ref_module, COALESCE(ref_id::text,''), actor_id, note, posted_at
FROM inventory_movements
WHERE item_id=$1 AND warehouse_id=$2
  AND posted_at BETWEEN COALESCE($3::timestamptz, '-infinity'::timestamptz) AND COALESCE($4::timestamptz, 'infinity'::timestamptz)
ORDER BY posted_at ASC, id ASC
LIMIT $5`, filter.ItemID, filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (r *txRepository) GetPositionForUpdate(ctx context.Context, itemID, warehouseID int64) (Position, error) {
	pos := Position{ItemID: itemID, WarehouseID: warehouseID}
	err := r.tx.QueryRow(ctx, `SELECT item_id, warehouse_id, qty, total_value, avg_cost, updated_at
FROM inventory_positions WHERE item_id=$1 AND warehouse_id=$2 FOR UPDATE`, itemID, warehouseID).
		Scan(&pos.ItemID, &pos.WarehouseID, &pos.Qty, &pos.TotalValue, &pos.AvgCost, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{ItemID: itemID, WarehouseID: warehouseID}, nil
		}
		return Position{}, err
	}
	return pos, nil
}

func (r *txRepository) UpsertPosition(ctx context.Context, pos Position) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_positions (item_id, warehouse_id, qty, total_value, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (item_id, warehouse_id) DO UPDATE SET qty=EXCLUDED.qty, total_value=EXCLUDED.total_value, avg_cost=EXCLUDED.avg_cost, updated_at=NOW()`,
		pos.ItemID, pos.WarehouseID, pos.Qty, pos.TotalValue, pos.AvgCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (item_id, warehouse_id, movement_type, qty_delta, unit_cost, value_delta, balance_qty, balance_value, costing_method, ref_module, ref_id, actor_id, note, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		mv.ItemID, mv.WarehouseID, string(mv.Type), mv.QtyDelta, mv.UnitCost, mv.ValueDelta, mv.BalanceQty, mv.BalanceValue, string(mv.Method), mv.RefModule, nullUUID(mv.RefID), mv.ActorID, mv.Note, mv.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetLotsForUpdate(ctx context.Context, itemID, warehouseID int64) ([]CostLot, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, item_id, warehouse_id, qty, remaining_qty, unit_cost, received_at
FROM inventory_cost_lots
WHERE item_id=$1 AND warehouse_id=$2 AND remaining_qty > 0
ORDER BY received_at ASC, id ASC
FOR UPDATE`, itemID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lots := []CostLot{}
	for rows.Next() {
		var lot CostLot
		if err := rows.Scan(&lot.ID, &lot.ItemID, &lot.WarehouseID, &lot.Qty, &lot.Remaining, &lot.UnitCost, &lot.ReceivedAt); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *txRepository) InsertLot(ctx context.Context, lot CostLot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_cost_lots (item_id, warehouse_id, qty, remaining_qty, unit_cost, received_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		lot.ItemID, lot.WarehouseID, lot.Qty, lot.Remaining, lot.UnitCost, lot.ReceivedAt).Scan(&id)
	return id, err
}

func (r *txRepository) ConsumeLot(ctx context.Context, lotID int64, qty decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_cost_lots SET remaining_qty = remaining_qty - $2
WHERE id=$1 AND remaining_qty >= $2`, lotID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("ledger: cost lot changed underneath consumption")
	}
	return nil
}

func (r *txRepository) MovementsByRef(ctx context.Context, refModule, refID string) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, item_id, warehouse_id, movement_type, qty_delta, unit_cost, value_delta, balance_qty, balance_value, costing_method, ref_module, COALESCE(ref_id::text,''), actor_id, note, posted_at
FROM inventory_movements
WHERE ref_module=$1 AND ref_id=$2
ORDER BY id ASC`, refModule, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func scanMovements(rows pgx.Rows) ([]Movement, error) {
	movements := []Movement{}
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.ID, &mv.ItemID, &mv.WarehouseID, &mv.Type, &mv.QtyDelta, &mv.UnitCost, &mv.ValueDelta, &mv.BalanceQty, &mv.BalanceValue, &mv.Method, &mv.RefModule, &mv.RefID, &mv.ActorID, &mv.Note, &mv.PostedAt); err != nil {
			return nil, err
		}
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}
