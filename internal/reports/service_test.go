package reports

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bodega-erp/bodega-erp/internal/catalog"
	"github.com/bodega-erp/bodega-erp/internal/ledger"
)

type fakeLedger struct {
	positions []ledger.Position
	movements []ledger.Movement
	calls     int
}

func (f *fakeLedger) ListPositions(ctx context.Context, filter ledger.PositionFilter) ([]ledger.Position, error) {
	f.calls++
	var out []ledger.Position
	for _, pos := range f.positions {
		if filter.WarehouseID != 0 && pos.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.NonZeroOnly && pos.Qty.IsZero() {
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

func (f *fakeLedger) StockCard(ctx context.Context, filter ledger.StockCardFilter) ([]ledger.Movement, error) {
	return f.movements, nil
}

type fakeCatalog struct {
	items []catalog.Item
}

func (f *fakeCatalog) ListItems(ctx context.Context, filters catalog.ListFilters) ([]catalog.Item, int, error) {
	return f.items, len(f.items), nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestValuationTotals(t *testing.T) {
	led := &fakeLedger{positions: []ledger.Position{
		{ItemID: 1, WarehouseID: 1, Qty: dec("90"), AvgCost: dec("12"), TotalValue: dec("1080")},
		{ItemID: 1, WarehouseID: 2, Qty: dec("60"), AvgCost: dec("12"), TotalValue: dec("720")},
	}}
	svc := NewService(led, &fakeCatalog{}, newTestCache(t))

	report, err := svc.Valuation(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	require.True(t, report.TotalValue.Equal(dec("1800")))
	require.Equal(t, "1,800.00", report.TotalDisplay)
}

func TestValuationCachedUntilBump(t *testing.T) {
	led := &fakeLedger{positions: []ledger.Position{
		{ItemID: 1, WarehouseID: 1, Qty: dec("10"), AvgCost: dec("5"), TotalValue: dec("50")},
	}}
	svc := NewService(led, &fakeCatalog{}, newTestCache(t))
	ctx := context.Background()

	first, err := svc.Valuation(ctx, 1)
	require.NoError(t, err)
	require.True(t, first.TotalValue.Equal(dec("50")))
	require.Equal(t, 1, led.calls)

	// A second read is served from the cache even though the ledger changed.
	led.positions[0].TotalValue = dec("500")
	second, err := svc.Valuation(ctx, 1)
	require.NoError(t, err)
	require.True(t, second.TotalValue.Equal(dec("50")))
	require.Equal(t, 1, led.calls)

	require.NoError(t, svc.Invalidate(ctx))
	third, err := svc.Valuation(ctx, 1)
	require.NoError(t, err)
	require.True(t, third.TotalValue.Equal(dec("500")))
	require.Equal(t, 2, led.calls)
}

func TestLowStock(t *testing.T) {
	led := &fakeLedger{positions: []ledger.Position{
		{ItemID: 1, WarehouseID: 1, Qty: dec("2")},
		{ItemID: 2, WarehouseID: 1, Qty: dec("50")},
	}}
	cat := &fakeCatalog{items: []catalog.Item{
		{ID: 1, SKU: "A", Name: "Bolt", MinStock: dec("5")},
		{ID: 2, SKU: "B", Name: "Nut", MinStock: dec("10")},
		{ID: 3, SKU: "C", Name: "Washer", MinStock: dec("4")},
	}}
	svc := NewService(led, cat, newTestCache(t))

	report, err := svc.LowStock(context.Background(), 1)
	require.NoError(t, err)

	rows := map[int64]LowStockRow{}
	for _, row := range report.Rows {
		rows[row.ItemID] = row
	}
	// Item 1 is under minimum, item 2 is fine, item 3 has no stock at all.
	require.Len(t, rows, 2)
	require.True(t, rows[1].Qty.Equal(dec("2")))
	require.True(t, rows[3].Qty.IsZero())
}
