package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bodega-erp/bodega-erp/internal/ledger"
	"github.com/bodega-erp/bodega-erp/internal/platform/httpx"
)

// repo implements Repository interface
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new catalog repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

// mapErr translates driver errors into the transport sentinels: missing rows
// become not-found, unique violations become duplicates.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return httpx.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// Category operations
func (r *repo) ListCategories(ctx context.Context, filters ListFilters) ([]Category, int, error) {
	query := `SELECT id, code, name, parent_id, COUNT(*) OVER() AS total
	          FROM categories
	          WHERE ($1 = '' OR code ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
	          ORDER BY name LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, filters.Search, filters.PageLimit(), filters.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var categories []Category
	var total int
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.ParentID, &total); err != nil {
			return nil, 0, err
		}
		categories = append(categories, c)
	}
	return categories, total, rows.Err()
}

func (r *repo) GetCategory(ctx context.Context, id int64) (Category, error) {
	query := `SELECT id, code, name, parent_id FROM categories WHERE id = $1`
	var c Category
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Code, &c.Name, &c.ParentID)
	return c, mapErr(err)
}

func (r *repo) CreateCategory(ctx context.Context, category Category) (Category, error) {
	query := `INSERT INTO categories (code, name, parent_id) VALUES ($1, $2, $3) RETURNING id`
	err := r.db.QueryRow(ctx, query, category.Code, category.Name, category.ParentID).Scan(&category.ID)
	return category, mapErr(err)
}

func (r *repo) UpdateCategory(ctx context.Context, id int64, category Category) error {
	query := `UPDATE categories SET code = $1, name = $2, parent_id = $3 WHERE id = $4`
	tag, err := r.db.Exec(ctx, query, category.Code, category.Name, category.ParentID, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// Unit operations
func (r *repo) ListUnits(ctx context.Context, filters ListFilters) ([]Unit, int, error) {
	query := `SELECT id, code, name, COUNT(*) OVER() AS total
	          FROM units
	          WHERE ($1 = '' OR code ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
	          ORDER BY code LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, filters.Search, filters.PageLimit(), filters.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var units []Unit
	var total int
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Code, &u.Name, &total); err != nil {
			return nil, 0, err
		}
		units = append(units, u)
	}
	return units, total, rows.Err()
}

func (r *repo) GetUnit(ctx context.Context, id int64) (Unit, error) {
	var u Unit
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM units WHERE id = $1`, id).Scan(&u.ID, &u.Code, &u.Name)
	return u, mapErr(err)
}

func (r *repo) CreateUnit(ctx context.Context, unit Unit) (Unit, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO units (code, name) VALUES ($1, $2) RETURNING id`, unit.Code, unit.Name).Scan(&unit.ID)
	return unit, mapErr(err)
}

func (r *repo) UpdateUnit(ctx context.Context, id int64, unit Unit) error {
	tag, err := r.db.Exec(ctx, `UPDATE units SET code = $1, name = $2 WHERE id = $3`, unit.Code, unit.Name, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteUnit(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// Warehouse operations
func (r *repo) ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	query := `SELECT id, code, name, address, is_active, created_at, updated_at, COUNT(*) OVER() AS total
	          FROM warehouses
	          WHERE ($1 = '' OR code ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
	            AND ($2::boolean IS NULL OR is_active = $2)
	          ORDER BY name LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, query, filters.Search, filters.IsActive, filters.PageLimit(), filters.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var warehouses []Warehouse
	var total int
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.IsActive, &w.CreatedAt, &w.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, total, rows.Err()
}

func (r *repo) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	query := `SELECT id, code, name, address, is_active, created_at, updated_at FROM warehouses WHERE id = $1`
	var w Warehouse
	err := r.db.QueryRow(ctx, query, id).Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, mapErr(err)
}

func (r *repo) CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	query := `INSERT INTO warehouses (code, name, address, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, TRUE, $4, $4) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, warehouse.Code, warehouse.Name, warehouse.Address, now).Scan(&warehouse.ID)
	if err != nil {
		return Warehouse{}, mapErr(err)
	}
	warehouse.IsActive = true
	warehouse.CreatedAt = now
	warehouse.UpdatedAt = now
	return warehouse, nil
}

func (r *repo) UpdateWarehouse(ctx context.Context, id int64, warehouse Warehouse) error {
	query := `UPDATE warehouses SET code = $1, name = $2, address = $3, is_active = $4, updated_at = $5 WHERE id = $6`
	tag, err := r.db.Exec(ctx, query, warehouse.Code, warehouse.Name, warehouse.Address, warehouse.IsActive, time.Now(), id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteWarehouse(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM warehouses WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// Supplier operations
func (r *repo) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	query := `SELECT id, code, name, phone, email, address, is_active, created_at, updated_at, COUNT(*) OVER() AS total
	          FROM suppliers
	          WHERE ($1 = '' OR code ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
	            AND ($2::boolean IS NULL OR is_active = $2)
	          ORDER BY name LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, query, filters.Search, filters.IsActive, filters.PageLimit(), filters.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var suppliers []Supplier
	var total int
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Phone, &s.Email, &s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	query := `SELECT id, code, name, phone, email, address, is_active, created_at, updated_at FROM suppliers WHERE id = $1`
	var s Supplier
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Code, &s.Name, &s.Phone, &s.Email, &s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, mapErr(err)
}

func (r *repo) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	query := `INSERT INTO suppliers (code, name, phone, email, address, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, supplier.Code, supplier.Name, supplier.Phone, supplier.Email, supplier.Address, now).Scan(&supplier.ID)
	if err != nil {
		return Supplier{}, mapErr(err)
	}
	supplier.IsActive = true
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	return supplier, nil
}

func (r *repo) UpdateSupplier(ctx context.Context, id int64, supplier Supplier) error {
	query := `UPDATE suppliers SET code = $1, name = $2, phone = $3, email = $4, address = $5, is_active = $6, updated_at = $7 WHERE id = $8`
	tag, err := r.db.Exec(ctx, query, supplier.Code, supplier.Name, supplier.Phone, supplier.Email, supplier.Address, supplier.IsActive, time.Now(), id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteSupplier(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// Item operations
func (r *repo) ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	query := `SELECT id, sku, name, description, category_id, unit_id, supplier_id, costing_method,
	                 min_stock, is_active, created_at, updated_at, COUNT(*) OVER() AS total
	          FROM items
	          WHERE ($1 = '' OR sku ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
	            AND ($2::bigint IS NULL OR category_id = $2)
	            AND ($3::bigint IS NULL OR supplier_id = $3)
	            AND ($4::boolean IS NULL OR is_active = $4)
	          ORDER BY name LIMIT $5 OFFSET $6`
	rows, err := r.db.Query(ctx, query, filters.Search, filters.CategoryID, filters.SupplierID, filters.IsActive, filters.PageLimit(), filters.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Item
	var total int
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SKU, &it.Name, &it.Description, &it.CategoryID, &it.UnitID, &it.SupplierID,
			&it.CostingMethod, &it.MinStock, &it.IsActive, &it.CreatedAt, &it.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (r *repo) GetItem(ctx context.Context, id int64) (Item, error) {
	query := `SELECT id, sku, name, description, category_id, unit_id, supplier_id, costing_method,
	                 min_stock, is_active, created_at, updated_at
	          FROM items WHERE id = $1`
	var it Item
	err := r.db.QueryRow(ctx, query, id).Scan(&it.ID, &it.SKU, &it.Name, &it.Description, &it.CategoryID, &it.UnitID,
		&it.SupplierID, &it.CostingMethod, &it.MinStock, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	return it, mapErr(err)
}

func (r *repo) CreateItem(ctx context.Context, item Item) (Item, error) {
	query := `INSERT INTO items (sku, name, description, category_id, unit_id, supplier_id, costing_method, min_stock, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $9) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, item.SKU, item.Name, item.Description, item.CategoryID, item.UnitID,
		item.SupplierID, item.CostingMethod, item.MinStock, now).Scan(&item.ID)
	if err != nil {
		return Item{}, mapErr(err)
	}
	item.IsActive = true
	item.CreatedAt = now
	item.UpdatedAt = now
	return item, nil
}

func (r *repo) UpdateItem(ctx context.Context, id int64, item Item) error {
	query := `UPDATE items SET sku = $1, name = $2, description = $3, category_id = $4, unit_id = $5,
	                 supplier_id = $6, costing_method = $7, min_stock = $8, is_active = $9, updated_at = $10
	          WHERE id = $11`
	tag, err := r.db.Exec(ctx, query, item.SKU, item.Name, item.Description, item.CategoryID, item.UnitID,
		item.SupplierID, item.CostingMethod, item.MinStock, item.IsActive, time.Now(), id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repo) DeactivateItem(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE items SET is_active = FALSE, updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repo) ItemCostingMethod(ctx context.Context, id int64) (ledger.Method, error) {
	var method ledger.Method
	err := r.db.QueryRow(ctx, `SELECT costing_method FROM items WHERE id = $1`, id).Scan(&method)
	return method, mapErr(err)
}
