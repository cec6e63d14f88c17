package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/bodega-erp/bodega-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/positions", h.handleListPositions)
	r.Get("/positions/{itemID}/{warehouseID}", h.handleGetPosition)
	r.Get("/stock-card", h.handleStockCard)
	r.Post("/adjustments", h.handleAdjustment)
}

func (h *Handler) handleListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := PositionFilter{
		WarehouseID: parseID(q.Get("warehouse_id")),
		ItemID:      parseID(q.Get("item_id")),
		NonZeroOnly: q.Get("non_zero") == "1",
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	positions, err := h.service.ListPositions(r.Context(), filter)
	if err != nil {
		h.logger.Error("list positions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (h *Handler) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	itemID := parseID(chi.URLParam(r, "itemID"))
	warehouseID := parseID(chi.URLParam(r, "warehouseID"))
	if itemID == 0 || warehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item and warehouse ids required")
		return
	}
	pos, err := h.service.GetPosition(r.Context(), itemID, warehouseID)
	if err != nil {
		h.logger.Error("get position", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := StockCardFilter{
		ItemID:      parseID(q.Get("item_id")),
		WarehouseID: parseID(q.Get("warehouse_id")),
	}
	if filter.ItemID == 0 || filter.WarehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id and warehouse_id required")
		return
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	movements, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		h.logger.Error("stock card", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type adjustmentRequest struct {
	ItemID      int64  `json:"item_id" validate:"required"`
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	Qty         string `json:"qty" validate:"required"`
	UnitCost    string `json:"unit_cost"`
	RefID       string `json:"ref_id" validate:"omitempty,uuid"`
	ActorID     int64  `json:"actor_id" validate:"required"`
	Note        string `json:"note"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid qty")
		return
	}
	unitCost := decimal.Zero
	if req.UnitCost != "" {
		unitCost, err = decimal.NewFromString(req.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit_cost")
			return
		}
	}
	mv, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Qty:         qty,
		UnitCost:    unitCost,
		RefModule:   "LEDGER",
		RefID:       req.RefID,
		ActorID:     req.ActorID,
		Note:        req.Note,
	})
	if err != nil {
		h.respondPostError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mv)
}

// respondPostError maps ledger posting failures onto problem responses.
func (h *Handler) respondPostError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Inventory", insufficient.Error())
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidUnitCost),
		errors.Is(err, ErrSameWarehouse),
		errors.Is(err, ErrNoLines):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAlreadyReversed), errors.Is(err, ErrNothingToReverse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("ledger post", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseID(raw string) int64 {
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}
