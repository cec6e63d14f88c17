package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bodega-erp/bodega-erp/internal/ledger"
	"github.com/bodega-erp/bodega-erp/internal/platform/httpx"
)

type memoryCatalog struct {
	categories map[int64]Category
	units      map[int64]Unit
	warehouses map[int64]Warehouse
	suppliers  map[int64]Supplier
	items      map[int64]Item
	nextID     int64
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		categories: map[int64]Category{},
		units:      map[int64]Unit{},
		warehouses: map[int64]Warehouse{},
		suppliers:  map[int64]Supplier{},
		items:      map[int64]Item{},
	}
}

func (m *memoryCatalog) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryCatalog) ListCategories(ctx context.Context, f ListFilters) ([]Category, int, error) {
	var out []Category
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memoryCatalog) GetCategory(ctx context.Context, id int64) (Category, error) {
	if c, ok := m.categories[id]; ok {
		return c, nil
	}
	return Category{}, httpx.ErrNotFound
}

func (m *memoryCatalog) CreateCategory(ctx context.Context, c Category) (Category, error) {
	for _, existing := range m.categories {
		if existing.Code == c.Code {
			return Category{}, fmt.Errorf("%w: categories_code_key", httpx.ErrDuplicate)
		}
	}
	c.ID = m.id()
	m.categories[c.ID] = c
	return c, nil
}

func (m *memoryCatalog) UpdateCategory(ctx context.Context, id int64, c Category) error {
	if _, ok := m.categories[id]; !ok {
		return httpx.ErrNotFound
	}
	c.ID = id
	m.categories[id] = c
	return nil
}

func (m *memoryCatalog) DeleteCategory(ctx context.Context, id int64) error {
	if _, ok := m.categories[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *memoryCatalog) ListUnits(ctx context.Context, f ListFilters) ([]Unit, int, error) {
	var out []Unit
	for _, u := range m.units {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *memoryCatalog) GetUnit(ctx context.Context, id int64) (Unit, error) {
	if u, ok := m.units[id]; ok {
		return u, nil
	}
	return Unit{}, httpx.ErrNotFound
}

func (m *memoryCatalog) CreateUnit(ctx context.Context, u Unit) (Unit, error) {
	u.ID = m.id()
	m.units[u.ID] = u
	return u, nil
}

func (m *memoryCatalog) UpdateUnit(ctx context.Context, id int64, u Unit) error {
	if _, ok := m.units[id]; !ok {
		return httpx.ErrNotFound
	}
	u.ID = id
	m.units[id] = u
	return nil
}

func (m *memoryCatalog) DeleteUnit(ctx context.Context, id int64) error {
	if _, ok := m.units[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.units, id)
	return nil
}

func (m *memoryCatalog) ListWarehouses(ctx context.Context, f ListFilters) ([]Warehouse, int, error) {
	var out []Warehouse
	for _, w := range m.warehouses {
		out = append(out, w)
	}
	return out, len(out), nil
}

func (m *memoryCatalog) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	if w, ok := m.warehouses[id]; ok {
		return w, nil
	}
	return Warehouse{}, httpx.ErrNotFound
}

func (m *memoryCatalog) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	w.ID = m.id()
	w.IsActive = true
	m.warehouses[w.ID] = w
	return w, nil
}

func (m *memoryCatalog) UpdateWarehouse(ctx context.Context, id int64, w Warehouse) error {
	if _, ok := m.warehouses[id]; !ok {
		return httpx.ErrNotFound
	}
	w.ID = id
	m.warehouses[id] = w
	return nil
}

func (m *memoryCatalog) DeleteWarehouse(ctx context.Context, id int64) error {
	if _, ok := m.warehouses[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.warehouses, id)
	return nil
}

func (m *memoryCatalog) ListSuppliers(ctx context.Context, f ListFilters) ([]Supplier, int, error) {
	var out []Supplier
	for _, s := range m.suppliers {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *memoryCatalog) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if s, ok := m.suppliers[id]; ok {
		return s, nil
	}
	return Supplier{}, httpx.ErrNotFound
}

func (m *memoryCatalog) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	s.ID = m.id()
	s.IsActive = true
	m.suppliers[s.ID] = s
	return s, nil
}

func (m *memoryCatalog) UpdateSupplier(ctx context.Context, id int64, s Supplier) error {
	if _, ok := m.suppliers[id]; !ok {
		return httpx.ErrNotFound
	}
	s.ID = id
	m.suppliers[id] = s
	return nil
}

func (m *memoryCatalog) DeleteSupplier(ctx context.Context, id int64) error {
	if _, ok := m.suppliers[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.suppliers, id)
	return nil
}

func (m *memoryCatalog) ListItems(ctx context.Context, f ListFilters) ([]Item, int, error) {
	var out []Item
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, len(out), nil
}

func (m *memoryCatalog) GetItem(ctx context.Context, id int64) (Item, error) {
	if it, ok := m.items[id]; ok {
		return it, nil
	}
	return Item{}, httpx.ErrNotFound
}

func (m *memoryCatalog) CreateItem(ctx context.Context, it Item) (Item, error) {
	for _, existing := range m.items {
		if existing.SKU == it.SKU {
			return Item{}, fmt.Errorf("%w: items_sku_key", httpx.ErrDuplicate)
		}
	}
	it.ID = m.id()
	it.IsActive = true
	m.items[it.ID] = it
	return it, nil
}

func (m *memoryCatalog) UpdateItem(ctx context.Context, id int64, it Item) error {
	if _, ok := m.items[id]; !ok {
		return httpx.ErrNotFound
	}
	it.ID = id
	m.items[id] = it
	return nil
}

func (m *memoryCatalog) DeactivateItem(ctx context.Context, id int64) error {
	it, ok := m.items[id]
	if !ok {
		return httpx.ErrNotFound
	}
	it.IsActive = false
	m.items[id] = it
	return nil
}

func (m *memoryCatalog) ItemCostingMethod(ctx context.Context, id int64) (ledger.Method, error) {
	if it, ok := m.items[id]; ok {
		return it.CostingMethod, nil
	}
	return "", httpx.ErrNotFound
}

func validItem() Item {
	return Item{SKU: "SKU-1", Name: "Widget", CategoryID: 1, UnitID: 1}
}

func TestCreateItemDefaultsToWeightedAverage(t *testing.T) {
	svc := NewService(newMemoryCatalog())

	item, err := svc.CreateItem(context.Background(), validItem())
	require.NoError(t, err)
	require.Equal(t, ledger.MethodWeightedAverage, item.CostingMethod)
	require.True(t, item.IsActive)
}

func TestCreateItemValidation(t *testing.T) {
	svc := NewService(newMemoryCatalog())
	ctx := context.Background()

	item := validItem()
	item.SKU = "  "
	_, err := svc.CreateItem(ctx, item)
	require.Error(t, err)

	item = validItem()
	item.CategoryID = 0
	_, err = svc.CreateItem(ctx, item)
	require.Error(t, err)

	item = validItem()
	item.CostingMethod = ledger.MethodSpecific
	_, err = svc.CreateItem(ctx, item)
	require.Error(t, err)

	item = validItem()
	item.MinStock = decimal.NewFromInt(-1)
	_, err = svc.CreateItem(ctx, item)
	require.Error(t, err)
}

func TestCreateItemDuplicateSKU(t *testing.T) {
	svc := NewService(newMemoryCatalog())
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, validItem())
	require.NoError(t, err)
	_, err = svc.CreateItem(ctx, validItem())
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestCostingMethodLookup(t *testing.T) {
	repo := newMemoryCatalog()
	svc := NewService(repo)
	ctx := context.Background()

	item := validItem()
	item.CostingMethod = ledger.MethodFIFO
	created, err := svc.CreateItem(ctx, item)
	require.NoError(t, err)

	method, err := svc.CostingMethod(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.MethodFIFO, method)

	_, err = svc.CostingMethod(ctx, 999)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestDeactivateItemKeepsRow(t *testing.T) {
	repo := newMemoryCatalog()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.CreateItem(ctx, validItem())
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateItem(ctx, created.ID))

	item, err := svc.GetItem(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, item.IsActive)
}

func TestWarehouseValidation(t *testing.T) {
	svc := NewService(newMemoryCatalog())
	_, err := svc.CreateWarehouse(context.Background(), Warehouse{Name: "Main"})
	require.Error(t, err)
}
