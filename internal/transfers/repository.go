package transfers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega-erp/bodega-erp/internal/platform/httpx"
)

// Repository is the postgres implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs transfers repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts header and lines in one transaction.
func (r *Repository) Create(ctx context.Context, transfer Transfer, lines []Line) (Transfer, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Transfer{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO transfers (number, ref, src_warehouse_id, dst_warehouse_id, status, note, created_by, posted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at`,
		transfer.Number, transfer.Ref, transfer.SrcWarehouseID, transfer.DstWarehouseID,
		transfer.Status, transfer.Note, transfer.CreatedBy, transfer.PostedAt,
	).Scan(&transfer.ID, &transfer.CreatedAt)
	if err != nil {
		return Transfer{}, mapErr(err)
	}
	for _, line := range lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO transfer_lines (transfer_id, item_id, qty)
			VALUES ($1, $2, $3)`,
			transfer.ID, line.ItemID, line.Qty)
		if err != nil {
			return Transfer{}, mapErr(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

// Get loads one transfer with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Transfer, []Line, error) {
	var transfer Transfer
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, ref, src_warehouse_id, dst_warehouse_id, status, note, created_by, posted_at, created_at
		FROM transfers WHERE id = $1`, id,
	).Scan(&transfer.ID, &transfer.Number, &transfer.Ref, &transfer.SrcWarehouseID, &transfer.DstWarehouseID,
		&transfer.Status, &transfer.Note, &transfer.CreatedBy, &transfer.PostedAt, &transfer.CreatedAt)
	if err != nil {
		return Transfer{}, nil, mapErr(err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, transfer_id, item_id, qty
		FROM transfer_lines WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transfer{}, nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.TransferID, &line.ItemID, &line.Qty); err != nil {
			return Transfer{}, nil, err
		}
		lines = append(lines, line)
	}
	return transfer, lines, rows.Err()
}

// List returns transfers matching filters, newest first. WarehouseID matches
// either side of the move.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Transfer, int, error) {
	limit := filters.Limit
	if limit < 1 || limit > 200 {
		limit = 20
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, ref, src_warehouse_id, dst_warehouse_id, status, note, created_by, posted_at, created_at,
		       COUNT(*) OVER() AS total
		FROM transfers
		WHERE ($1::bigint = 0 OR src_warehouse_id = $1 OR dst_warehouse_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY posted_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		filters.WarehouseID, filters.Status, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Transfer
	var total int
	for rows.Next() {
		var transfer Transfer
		if err := rows.Scan(&transfer.ID, &transfer.Number, &transfer.Ref, &transfer.SrcWarehouseID, &transfer.DstWarehouseID,
			&transfer.Status, &transfer.Note, &transfer.CreatedBy, &transfer.PostedAt, &transfer.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, transfer)
	}
	return out, total, rows.Err()
}

// SetStatus updates the document status.
func (r *Repository) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE transfers SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
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
