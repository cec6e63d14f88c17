package entries

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

// NewRepository constructs entries repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts header and lines in one transaction.
func (r *Repository) Create(ctx context.Context, entry Entry, lines []Line) (Entry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO item_entries (number, ref, supplier_id, warehouse_id, status, note, created_by, posted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at`,
		entry.Number, entry.Ref, entry.SupplierID, entry.WarehouseID, entry.Status, entry.Note, entry.CreatedBy, entry.PostedAt,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return Entry{}, mapErr(err)
	}
	for _, line := range lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO item_entry_lines (entry_id, item_id, qty, unit_cost)
			VALUES ($1, $2, $3, $4)`,
			entry.ID, line.ItemID, line.Qty, line.UnitCost)
		if err != nil {
			return Entry{}, mapErr(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Get loads one entry with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Entry, []Line, error) {
	var entry Entry
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, ref, supplier_id, warehouse_id, status, note, created_by, posted_at, created_at
		FROM item_entries WHERE id = $1`, id,
	).Scan(&entry.ID, &entry.Number, &entry.Ref, &entry.SupplierID, &entry.WarehouseID, &entry.Status,
		&entry.Note, &entry.CreatedBy, &entry.PostedAt, &entry.CreatedAt)
	if err != nil {
		return Entry{}, nil, mapErr(err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_id, item_id, qty, unit_cost
		FROM item_entry_lines WHERE entry_id = $1 ORDER BY id`, id)
	if err != nil {
		return Entry{}, nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.ItemID, &line.Qty, &line.UnitCost); err != nil {
			return Entry{}, nil, err
		}
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}

// List returns entries matching filters, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Entry, int, error) {
	limit := filters.Limit
	if limit < 1 || limit > 200 {
		limit = 20
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, ref, supplier_id, warehouse_id, status, note, created_by, posted_at, created_at,
		       COUNT(*) OVER() AS total
		FROM item_entries
		WHERE ($1::bigint = 0 OR warehouse_id = $1)
		  AND ($2::bigint = 0 OR supplier_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY posted_at DESC, id DESC
		LIMIT $4 OFFSET $5`,
		filters.WarehouseID, filters.SupplierID, filters.Status, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Entry
	var total int
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Number, &entry.Ref, &entry.SupplierID, &entry.WarehouseID,
			&entry.Status, &entry.Note, &entry.CreatedBy, &entry.PostedAt, &entry.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, entry)
	}
	return out, total, rows.Err()
}

// SetStatus updates the document status.
func (r *Repository) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE item_entries SET status = $1 WHERE id = $2`, status, id)
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
