package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/bodega-erp/bodega-erp/internal/ledger"
	"github.com/bodega-erp/bodega-erp/internal/platform/httpx"
	"github.com/bodega-erp/bodega-erp/internal/shared"
)

// Handler manages catalog endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{id}", h.getCategory)
	r.Post("/categories", h.createCategory)
	r.Put("/categories/{id}", h.updateCategory)
	r.Delete("/categories/{id}", h.deleteCategory)

	r.Get("/units", h.listUnits)
	r.Get("/units/{id}", h.getUnit)
	r.Post("/units", h.createUnit)
	r.Put("/units/{id}", h.updateUnit)
	r.Delete("/units/{id}", h.deleteUnit)

	r.Get("/warehouses", h.listWarehouses)
	r.Get("/warehouses/{id}", h.getWarehouse)
	r.Post("/warehouses", h.createWarehouse)
	r.Put("/warehouses/{id}", h.updateWarehouse)
	r.Delete("/warehouses/{id}", h.deleteWarehouse)

	r.Get("/suppliers", h.listSuppliers)
	r.Get("/suppliers/{id}", h.getSupplier)
	r.Post("/suppliers", h.createSupplier)
	r.Put("/suppliers/{id}", h.updateSupplier)
	r.Delete("/suppliers/{id}", h.deleteSupplier)

	r.Get("/items", h.listItems)
	r.Get("/items/{id}", h.getItem)
	r.Post("/items", h.createItem)
	r.Put("/items/{id}", h.updateItem)
	r.Post("/items/{id}/deactivate", h.deactivateItem)
}

func (h *Handler) filters(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{Search: q.Get("search")}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("is_active"); v != "" {
		active := v == "1" || v == "true"
		filters.IsActive = &active
	}
	if id, err := strconv.ParseInt(q.Get("category_id"), 10, 64); err == nil {
		filters.CategoryID = &id
	}
	if id, err := strconv.ParseInt(q.Get("supplier_id"), 10, 64); err == nil {
		filters.SupplierID = &id
	}
	return filters
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func listResponse(items any, f ListFilters, total int) map[string]any {
	return map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(f.Page, f.Limit, total),
	}
}

// Category handlers

type categoryRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=128"`
	ParentID *int64 `json:"parent_id"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	filters := h.filters(r)
	categories, total, err := h.service.ListCategories(r.Context(), filters)
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse(categories, filters, total))
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.service.GetCategory(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	category, err := h.service.CreateCategory(r.Context(), Category{Code: req.Code, Name: req.Name, ParentID: req.ParentID})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.UpdateCategory(r.Context(), pathID(r), Category{Code: req.Code, Name: req.Name, ParentID: req.ParentID}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCategory(r.Context(), pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unit handlers

type unitRequest struct {
	Code string `json:"code" validate:"required,max=16"`
	Name string `json:"name" validate:"required,max=64"`
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	filters := h.filters(r)
	units, total, err := h.service.ListUnits(r.Context(), filters)
	if err != nil {
		h.logger.Error("list units", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse(units, filters, total))
}

func (h *Handler) getUnit(w http.ResponseWriter, r *http.Request) {
	unit, err := h.service.GetUnit(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) createUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if !h.decode(w, r, &req) {
		return
	}
	unit, err := h.service.CreateUnit(r.Context(), Unit{Code: req.Code, Name: req.Name})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, unit)
}

func (h *Handler) updateUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.UpdateUnit(r.Context(), pathID(r), Unit{Code: req.Code, Name: req.Name}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteUnit(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUnit(r.Context(), pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Warehouse handlers

type warehouseRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=128"`
	Address  string `json:"address" validate:"max=512"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	filters := h.filters(r)
	warehouses, total, err := h.service.ListWarehouses(r.Context(), filters)
	if err != nil {
		h.logger.Error("list warehouses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse(warehouses, filters, total))
}

func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	warehouse, err := h.service.GetWarehouse(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if !h.decode(w, r, &req) {
		return
	}
	warehouse, err := h.service.CreateWarehouse(r.Context(), Warehouse{Code: req.Code, Name: req.Name, Address: req.Address})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) updateWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if !h.decode(w, r, &req) {
		return
	}
	warehouse := Warehouse{Code: req.Code, Name: req.Name, Address: req.Address, IsActive: true}
	if req.IsActive != nil {
		warehouse.IsActive = *req.IsActive
	}
	if err := h.service.UpdateWarehouse(r.Context(), pathID(r), warehouse); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteWarehouse(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteWarehouse(r.Context(), pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Supplier handlers

type supplierRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=128"`
	Phone    string `json:"phone" validate:"max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address" validate:"max=512"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	filters := h.filters(r)
	suppliers, total, err := h.service.ListSuppliers(r.Context(), filters)
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse(suppliers, filters, total))
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	supplier, err := h.service.GetSupplier(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), Supplier{Code: req.Code, Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	supplier := Supplier{Code: req.Code, Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address, IsActive: true}
	if req.IsActive != nil {
		supplier.IsActive = *req.IsActive
	}
	if err := h.service.UpdateSupplier(r.Context(), pathID(r), supplier); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSupplier(r.Context(), pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Item handlers

type itemRequest struct {
	SKU           string `json:"sku" validate:"required,max=64"`
	Name          string `json:"name" validate:"required,max=128"`
	Description   string `json:"description" validate:"max=1024"`
	CategoryID    int64  `json:"category_id" validate:"required,gt=0"`
	UnitID        int64  `json:"unit_id" validate:"required,gt=0"`
	SupplierID    *int64 `json:"supplier_id"`
	CostingMethod string `json:"costing_method" validate:"omitempty,oneof=WEIGHTED_AVERAGE FIFO"`
	MinStock      string `json:"min_stock" validate:"omitempty"`
	IsActive      *bool  `json:"is_active"`
}

func (h *Handler) itemFromRequest(w http.ResponseWriter, req itemRequest) (Item, bool) {
	item := Item{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		UnitID:        req.UnitID,
		SupplierID:    req.SupplierID,
		CostingMethod: ledger.Method(req.CostingMethod),
		IsActive:      true,
	}
	if req.MinStock != "" {
		min, err := decimal.NewFromString(req.MinStock)
		if err != nil || min.Sign() < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "min_stock must be a non-negative number")
			return Item{}, false
		}
		item.MinStock = min
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	return item, true
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	filters := h.filters(r)
	items, total, err := h.service.ListItems(r.Context(), filters)
	if err != nil {
		h.logger.Error("list items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse(items, filters, total))
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, ok := h.itemFromRequest(w, req)
	if !ok {
		return
	}
	created, err := h.service.CreateItem(r.Context(), item)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, ok := h.itemFromRequest(w, req)
	if !ok {
		return
	}
	if err := h.service.UpdateItem(r.Context(), pathID(r), item); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivateItem(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateItem(r.Context(), pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode parses and validates the JSON body, writing the problem response
// itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}
