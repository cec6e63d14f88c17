package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/bodega-erp/bodega-erp/internal/ledger"
)

// service implements Service interface
type service struct {
	repo Repository
}

// NewService creates a new catalog service
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Category operations
func (s *service) ListCategories(ctx context.Context, filters ListFilters) ([]Category, int, error) {
	return s.repo.ListCategories(ctx, filters)
}

func (s *service) GetCategory(ctx context.Context, id int64) (Category, error) {
	if id <= 0 {
		return Category{}, errors.New("invalid category ID")
	}
	return s.repo.GetCategory(ctx, id)
}

func (s *service) CreateCategory(ctx context.Context, category Category) (Category, error) {
	if err := s.validateCategory(category); err != nil {
		return Category{}, err
	}
	return s.repo.CreateCategory(ctx, category)
}

func (s *service) UpdateCategory(ctx context.Context, id int64, category Category) error {
	if id <= 0 {
		return errors.New("invalid category ID")
	}
	if err := s.validateCategory(category); err != nil {
		return err
	}
	return s.repo.UpdateCategory(ctx, id, category)
}

func (s *service) DeleteCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid category ID")
	}
	return s.repo.DeleteCategory(ctx, id)
}

// Unit operations
func (s *service) ListUnits(ctx context.Context, filters ListFilters) ([]Unit, int, error) {
	return s.repo.ListUnits(ctx, filters)
}

func (s *service) GetUnit(ctx context.Context, id int64) (Unit, error) {
	if id <= 0 {
		return Unit{}, errors.New("invalid unit ID")
	}
	return s.repo.GetUnit(ctx, id)
}

func (s *service) CreateUnit(ctx context.Context, unit Unit) (Unit, error) {
	if err := s.validateUnit(unit); err != nil {
		return Unit{}, err
	}
	return s.repo.CreateUnit(ctx, unit)
}

func (s *service) UpdateUnit(ctx context.Context, id int64, unit Unit) error {
	if id <= 0 {
		return errors.New("invalid unit ID")
	}
	if err := s.validateUnit(unit); err != nil {
		return err
	}
	return s.repo.UpdateUnit(ctx, id, unit)
}

func (s *service) DeleteUnit(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid unit ID")
	}
	return s.repo.DeleteUnit(ctx, id)
}

// Warehouse operations
func (s *service) ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	return s.repo.ListWarehouses(ctx, filters)
}

func (s *service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, errors.New("invalid warehouse ID")
	}
	return s.repo.GetWarehouse(ctx, id)
}

func (s *service) CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if err := s.validateWarehouse(warehouse); err != nil {
		return Warehouse{}, err
	}
	return s.repo.CreateWarehouse(ctx, warehouse)
}

func (s *service) UpdateWarehouse(ctx context.Context, id int64, warehouse Warehouse) error {
	if id <= 0 {
		return errors.New("invalid warehouse ID")
	}
	if err := s.validateWarehouse(warehouse); err != nil {
		return err
	}
	return s.repo.UpdateWarehouse(ctx, id, warehouse)
}

func (s *service) DeleteWarehouse(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid warehouse ID")
	}
	return s.repo.DeleteWarehouse(ctx, id)
}

// Supplier operations
func (s *service) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, filters)
}

func (s *service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, errors.New("invalid supplier ID")
	}
	return s.repo.GetSupplier(ctx, id)
}

func (s *service) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	if err := s.validateSupplier(supplier); err != nil {
		return Supplier{}, err
	}
	return s.repo.CreateSupplier(ctx, supplier)
}

func (s *service) UpdateSupplier(ctx context.Context, id int64, supplier Supplier) error {
	if id <= 0 {
		return errors.New("invalid supplier ID")
	}
	if err := s.validateSupplier(supplier); err != nil {
		return err
	}
	return s.repo.UpdateSupplier(ctx, id, supplier)
}

func (s *service) DeleteSupplier(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid supplier ID")
	}
	return s.repo.DeleteSupplier(ctx, id)
}

// Item operations
func (s *service) ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	return s.repo.ListItems(ctx, filters)
}

func (s *service) GetItem(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, errors.New("invalid item ID")
	}
	return s.repo.GetItem(ctx, id)
}

func (s *service) CreateItem(ctx context.Context, item Item) (Item, error) {
	if item.CostingMethod == "" {
		item.CostingMethod = ledger.MethodWeightedAverage
	}
	if err := s.validateItem(item); err != nil {
		return Item{}, err
	}
	return s.repo.CreateItem(ctx, item)
}

func (s *service) UpdateItem(ctx context.Context, id int64, item Item) error {
	if id <= 0 {
		return errors.New("invalid item ID")
	}
	if item.CostingMethod == "" {
		item.CostingMethod = ledger.MethodWeightedAverage
	}
	if err := s.validateItem(item); err != nil {
		return err
	}
	return s.repo.UpdateItem(ctx, id, item)
}

// DeactivateItem retires an item from new documents. Its ledger history
// stays untouched, so items are never hard-deleted.
func (s *service) DeactivateItem(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid item ID")
	}
	return s.repo.DeactivateItem(ctx, id)
}

func (s *service) CostingMethod(ctx context.Context, itemID int64) (ledger.Method, error) {
	if itemID <= 0 {
		return "", errors.New("invalid item ID")
	}
	return s.repo.ItemCostingMethod(ctx, itemID)
}

// Validation methods
func (s *service) validateCategory(category Category) error {
	if strings.TrimSpace(category.Code) == "" {
		return errors.New("category code is required")
	}
	if strings.TrimSpace(category.Name) == "" {
		return errors.New("category name is required")
	}
	return nil
}

func (s *service) validateUnit(unit Unit) error {
	if strings.TrimSpace(unit.Code) == "" {
		return errors.New("unit code is required")
	}
	if strings.TrimSpace(unit.Name) == "" {
		return errors.New("unit name is required")
	}
	return nil
}

func (s *service) validateWarehouse(warehouse Warehouse) error {
	if strings.TrimSpace(warehouse.Code) == "" {
		return errors.New("warehouse code is required")
	}
	if strings.TrimSpace(warehouse.Name) == "" {
		return errors.New("warehouse name is required")
	}
	return nil
}

func (s *service) validateSupplier(supplier Supplier) error {
	if strings.TrimSpace(supplier.Code) == "" {
		return errors.New("supplier code is required")
	}
	if strings.TrimSpace(supplier.Name) == "" {
		return errors.New("supplier name is required")
	}
	return nil
}

func (s *service) validateItem(item Item) error {
	if strings.TrimSpace(item.SKU) == "" {
		return errors.New("item SKU is required")
	}
	if strings.TrimSpace(item.Name) == "" {
		return errors.New("item name is required")
	}
	if item.CategoryID <= 0 {
		return errors.New("category ID is required")
	}
	if item.UnitID <= 0 {
		return errors.New("unit ID is required")
	}
	switch item.CostingMethod {
	case ledger.MethodWeightedAverage, ledger.MethodFIFO:
	default:
		return errors.New("unsupported costing method")
	}
	if item.MinStock.Sign() < 0 {
		return errors.New("minimum stock cannot be negative")
	}
	return nil
}
