// Package reports builds read-only views over the inventory ledger:
// valuation summaries, low stock alerts and stock cards. Results are cached
// in Redis and heavy builds are collapsed with singleflight.
package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bodega-erp/bodega-erp/internal/catalog"
	"github.com/bodega-erp/bodega-erp/internal/ledger"
)

// LedgerPort exposes the ledger reads the reports are built from.
type LedgerPort interface {
	ListPositions(ctx context.Context, filter ledger.PositionFilter) ([]ledger.Position, error)
	StockCard(ctx context.Context, filter ledger.StockCardFilter) ([]ledger.Movement, error)
}

// CatalogPort exposes the item master needed for low stock thresholds.
type CatalogPort interface {
	ListItems(ctx context.Context, filters catalog.ListFilters) ([]catalog.Item, int, error)
}

// ValuationRow is one position in the valuation report.
type ValuationRow struct {
	ItemID      int64           `json:"item_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Qty         decimal.Decimal `json:"qty"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	Value       decimal.Decimal `json:"value"`
}

// ValuationReport summarises inventory value, optionally per warehouse.
type ValuationReport struct {
	WarehouseID  int64           `json:"warehouse_id"`
	Rows         []ValuationRow  `json:"rows"`
	TotalValue   decimal.Decimal `json:"total_value"`
	TotalDisplay string          `json:"total_display"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// LowStockRow is one item under its configured minimum.
type LowStockRow struct {
	ItemID      int64           `json:"item_id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	WarehouseID int64           `json:"warehouse_id"`
	Qty         decimal.Decimal `json:"qty"`
	MinStock    decimal.Decimal `json:"min_stock"`
}

// LowStockReport lists items whose balance fell under the minimum.
type LowStockReport struct {
	WarehouseID int64         `json:"warehouse_id"`
	Rows        []LowStockRow `json:"rows"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Service builds reports.
type Service struct {
	ledger  LedgerPort
	catalog CatalogPort
	cache   *Cache
	group   singleflight.Group
	printer *message.Printer
}

// NewService constructs reports service. Cache may be nil.
func NewService(ledgerPort LedgerPort, catalogPort CatalogPort, cache *Cache) *Service {
	return &Service{
		ledger:  ledgerPort,
		catalog: catalogPort,
		cache:   cache,
		printer: message.NewPrinter(language.English),
	}
}

// Valuation returns the current stock value. warehouseID 0 means all
// warehouses.
func (s *Service) Valuation(ctx context.Context, warehouseID int64) (ValuationReport, error) {
	key, err := s.cache.BuildKey(ctx, keyValuation(warehouseID))
	if err != nil {
		return ValuationReport{}, err
	}
	var report ValuationReport
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		v, err, _ := s.do(ctx, key, func(ctx context.Context) (any, error) {
			return s.buildValuation(ctx, warehouseID)
		})
		return v, err
	})
	return report, err
}

func (s *Service) buildValuation(ctx context.Context, warehouseID int64) (ValuationReport, error) {
	positions, err := s.ledger.ListPositions(ctx, ledger.PositionFilter{WarehouseID: warehouseID, NonZeroOnly: true})
	if err != nil {
		return ValuationReport{}, err
	}
	report := ValuationReport{
		WarehouseID: warehouseID,
		TotalValue:  decimal.Zero,
		GeneratedAt: time.Now().UTC(),
	}
	for _, pos := range positions {
		report.Rows = append(report.Rows, ValuationRow{
			ItemID:      pos.ItemID,
			WarehouseID: pos.WarehouseID,
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			Value:       pos.TotalValue,
		})
		report.TotalValue = report.TotalValue.Add(pos.TotalValue)
	}
	total, _ := report.TotalValue.Round(2).Float64()
	report.TotalDisplay = s.printer.Sprintf("%.2f", total)
	return report, nil
}

// LowStock returns items whose current balance is under their minimum.
func (s *Service) LowStock(ctx context.Context, warehouseID int64) (LowStockReport, error) {
	key, err := s.cache.BuildKey(ctx, keyLowStock(warehouseID))
	if err != nil {
		return LowStockReport{}, err
	}
	var report LowStockReport
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		v, err, _ := s.do(ctx, key, func(ctx context.Context) (any, error) {
			return s.buildLowStock(ctx, warehouseID)
		})
		return v, err
	})
	return report, err
}

func (s *Service) buildLowStock(ctx context.Context, warehouseID int64) (LowStockReport, error) {
	active := true
	items, _, err := s.catalog.ListItems(ctx, catalog.ListFilters{IsActive: &active, Limit: 200})
	if err != nil {
		return LowStockReport{}, err
	}
	byID := make(map[int64]catalog.Item, len(items))
	for _, item := range items {
		if item.MinStock.Sign() > 0 {
			byID[item.ID] = item
		}
	}
	positions, err := s.ledger.ListPositions(ctx, ledger.PositionFilter{WarehouseID: warehouseID})
	if err != nil {
		return LowStockReport{}, err
	}
	seen := make(map[int64]bool, len(positions))
	report := LowStockReport{WarehouseID: warehouseID, GeneratedAt: time.Now().UTC()}
	for _, pos := range positions {
		item, ok := byID[pos.ItemID]
		if !ok {
			continue
		}
		seen[pos.ItemID] = true
		if pos.Qty.LessThan(item.MinStock) {
			report.Rows = append(report.Rows, LowStockRow{
				ItemID:      item.ID,
				SKU:         item.SKU,
				Name:        item.Name,
				WarehouseID: pos.WarehouseID,
				Qty:         pos.Qty,
				MinStock:    item.MinStock,
			})
		}
	}
	// Items with a minimum but no position at all have zero stock.
	if warehouseID != 0 {
		for id, item := range byID {
			if !seen[id] {
				report.Rows = append(report.Rows, LowStockRow{
					ItemID:      item.ID,
					SKU:         item.SKU,
					Name:        item.Name,
					WarehouseID: warehouseID,
					Qty:         decimal.Zero,
					MinStock:    item.MinStock,
				})
			}
		}
	}
	return report, nil
}

// StockCard passes the ledger listing through uncached: it is a cheap
// indexed read and auditors expect it live.
func (s *Service) StockCard(ctx context.Context, filter ledger.StockCardFilter) ([]ledger.Movement, error) {
	return s.ledger.StockCard(ctx, filter)
}

// Invalidate bumps the cache version after ledger writes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := s.group.DoChan(key, func() (any, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
