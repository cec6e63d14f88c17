package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega-erp/bodega-erp/internal/platform/httpx"
)

// Repository is the postgres implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs withdrawals repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts header and lines in one transaction.
func (r *Repository) Create(ctx context.Context, withdrawal Withdrawal, lines []Line) (Withdrawal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Withdrawal{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO withdrawals (number, ref, warehouse_id, status, reason, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`,
		withdrawal.Number, withdrawal.Ref, withdrawal.WarehouseID, withdrawal.Status,
		withdrawal.Reason, withdrawal.RequestedBy,
	).Scan(&withdrawal.ID, &withdrawal.CreatedAt)
	if err != nil {
		return Withdrawal{}, mapErr(err)
	}
	for _, line := range lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO withdrawal_lines (withdrawal_id, item_id, qty)
			VALUES ($1, $2, $3)`,
			withdrawal.ID, line.ItemID, line.Qty)
		if err != nil {
			return Withdrawal{}, mapErr(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Withdrawal{}, err
	}
	return withdrawal, nil
}

// Get loads one withdrawal with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Withdrawal, []Line, error) {
	var withdrawal Withdrawal
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, ref, warehouse_id, status, reason, requested_by, completed_by, completed_at, created_at
		FROM withdrawals WHERE id = $1`, id,
	).Scan(&withdrawal.ID, &withdrawal.Number, &withdrawal.Ref, &withdrawal.WarehouseID, &withdrawal.Status,
		&withdrawal.Reason, &withdrawal.RequestedBy, &withdrawal.CompletedBy, &withdrawal.CompletedAt, &withdrawal.CreatedAt)
	if err != nil {
		return Withdrawal{}, nil, mapErr(err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, withdrawal_id, item_id, qty
		FROM withdrawal_lines WHERE withdrawal_id = $1 ORDER BY id`, id)
	if err != nil {
		return Withdrawal{}, nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.WithdrawalID, &line.ItemID, &line.Qty); err != nil {
			return Withdrawal{}, nil, err
		}
		lines = append(lines, line)
	}
	return withdrawal, lines, rows.Err()
}

// List returns withdrawals matching filters, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Withdrawal, int, error) {
	limit := filters.Limit
	if limit < 1 || limit > 200 {
		limit = 20
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, ref, warehouse_id, status, reason, requested_by, completed_by, completed_at, created_at,
		       COUNT(*) OVER() AS total
		FROM withdrawals
		WHERE ($1::bigint = 0 OR warehouse_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		filters.WarehouseID, filters.Status, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Withdrawal
	var total int
	for rows.Next() {
		var withdrawal Withdrawal
		if err := rows.Scan(&withdrawal.ID, &withdrawal.Number, &withdrawal.Ref, &withdrawal.WarehouseID, &withdrawal.Status,
			&withdrawal.Reason, &withdrawal.RequestedBy, &withdrawal.CompletedBy, &withdrawal.CompletedAt,
			&withdrawal.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, withdrawal)
	}
	return out, total, rows.Err()
}

// SetStatus flips the document status, guarded on the status the caller
// read. A concurrent writer that moved the document first makes this a
// no-op and the caller gets an invalid-state error instead of clobbering.
func (r *Repository) SetStatus(ctx context.Context, id int64, from, to string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE withdrawals SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotRevocable
	}
	return nil
}

// MarkCompleted flips a pending document to completed. The status guard in
// the WHERE clause makes concurrent completes lose cleanly.
func (r *Repository) MarkCompleted(ctx context.Context, id int64, actorID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE withdrawals SET status = $1, completed_by = $2, completed_at = $3
		WHERE id = $4 AND status = $5`,
		StatusCompleted, actorID, at, id, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return httpx.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
