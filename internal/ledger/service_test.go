package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	positions map[string]Position
	movements []Movement
	lots      []CostLot
	nextMvID  int64
	nextLotID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{positions: make(map[string]Position)}
}

func posKey(itemID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d", itemID, warehouseID)
}

type memoryTx struct {
	repo *memoryRepo
}

// WithTx snapshots state and restores it when the unit of work fails, so
// all-or-nothing behaviour is observable in tests.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	positions := make(map[string]Position, len(r.positions))
	for k, v := range r.positions {
		positions[k] = v
	}
	movements := make([]Movement, len(r.movements))
	copy(movements, r.movements)
	lots := make([]CostLot, len(r.lots))
	copy(lots, r.lots)
	mvID, lotID := r.nextMvID, r.nextLotID

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.positions = positions
		r.movements = movements
		r.lots = lots
		r.nextMvID, r.nextLotID = mvID, lotID
		return err
	}
	return nil
}

func (r *memoryRepo) GetPosition(ctx context.Context, itemID, warehouseID int64) (Position, error) {
	if pos, ok := r.positions[posKey(itemID, warehouseID)]; ok {
		return pos, nil
	}
	return Position{ItemID: itemID, WarehouseID: warehouseID}, nil
}

func (r *memoryRepo) ListPositions(ctx context.Context, filter PositionFilter) ([]Position, error) {
	var out []Position
	for _, pos := range r.positions {
		if filter.WarehouseID != 0 && pos.WarehouseID != filter.WarehouseID {
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	var out []Movement
	for _, mv := range r.movements {
		if mv.ItemID == filter.ItemID && mv.WarehouseID == filter.WarehouseID {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetPositionForUpdate(ctx context.Context, itemID, warehouseID int64) (Position, error) {
	return tx.repo.GetPosition(ctx, itemID, warehouseID)
}

func (tx *memoryTx) UpsertPosition(ctx context.Context, pos Position) error {
	tx.repo.positions[posKey(pos.ItemID, pos.WarehouseID)] = pos
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, mv Movement) (int64, error) {
	tx.repo.nextMvID++
	mv.ID = tx.repo.nextMvID
	tx.repo.movements = append(tx.repo.movements, mv)
	return mv.ID, nil
}

func (tx *memoryTx) GetLotsForUpdate(ctx context.Context, itemID, warehouseID int64) ([]CostLot, error) {
	var out []CostLot
	for _, lot := range tx.repo.lots {
		if lot.ItemID == itemID && lot.WarehouseID == warehouseID && lot.Remaining.Sign() > 0 {
			out = append(out, lot)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot CostLot) (int64, error) {
	tx.repo.nextLotID++
	lot.ID = tx.repo.nextLotID
	tx.repo.lots = append(tx.repo.lots, lot)
	return lot.ID, nil
}

func (tx *memoryTx) ConsumeLot(ctx context.Context, lotID int64, qty decimal.Decimal) error {
	for i := range tx.repo.lots {
		if tx.repo.lots[i].ID == lotID {
			tx.repo.lots[i].Remaining = tx.repo.lots[i].Remaining.Sub(qty)
			return nil
		}
	}
	return fmt.Errorf("lot %d not found", lotID)
}

func (tx *memoryTx) MovementsByRef(ctx context.Context, refModule, refID string) ([]Movement, error) {
	var out []Movement
	for _, mv := range tx.repo.movements {
		if mv.RefModule == refModule && mv.RefID == refID {
			out = append(out, mv)
		}
	}
	return out, nil
}

type methodMap map[int64]Method

func (m methodMap) CostingMethod(ctx context.Context, itemID int64) (Method, error) {
	if method, ok := m[itemID]; ok {
		return method, nil
	}
	return MethodWeightedAverage, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestWeightedAverageScenario(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("100"), UnitCost: dec("10")}}})
	require.NoError(t, err)
	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("50"), UnitCost: dec("16")}}})
	require.NoError(t, err)

	pos, err := svc.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.Qty.Equal(dec("150")), "qty %s", pos.Qty)
	require.True(t, pos.TotalValue.Equal(dec("1800")), "value %s", pos.TotalValue)
	require.True(t, pos.AvgCost.Equal(dec("12")), "avg %s", pos.AvgCost)

	movements, err := svc.PostTransfer(ctx, TransferInput{SrcWarehouseID: 1, DstWarehouseID: 2, Lines: []TransferLine{{ItemID: 1, Qty: dec("60")}}})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, TypeTransferOut, movements[0].Type)
	require.Equal(t, TypeTransferIn, movements[1].Type)

	src, _ := svc.GetPosition(ctx, 1, 1)
	require.True(t, src.Qty.Equal(dec("90")))
	require.True(t, src.TotalValue.Equal(dec("1080")), "src value %s", src.TotalValue)

	dst, _ := svc.GetPosition(ctx, 1, 2)
	require.True(t, dst.Qty.Equal(dec("60")))
	require.True(t, dst.TotalValue.Equal(dec("720")), "dst value %s", dst.TotalValue)
	require.True(t, dst.AvgCost.Equal(dec("12")))

	_, err = svc.PostWithdrawal(ctx, WithdrawalInput{WarehouseID: 1, Lines: []WithdrawalLine{{ItemID: 1, Qty: dec("30")}}})
	require.NoError(t, err)

	src, _ = svc.GetPosition(ctx, 1, 1)
	require.True(t, src.Qty.Equal(dec("60")))
	require.True(t, src.TotalValue.Equal(dec("720")))
	require.True(t, src.AvgCost.Equal(dec("12")))
}

func TestTransferConservation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 7, Qty: dec("20"), UnitCost: dec("3.33")}}})
	require.NoError(t, err)

	movements, err := svc.PostTransfer(ctx, TransferInput{SrcWarehouseID: 1, DstWarehouseID: 2, Lines: []TransferLine{{ItemID: 7, Qty: dec("8")}}})
	require.NoError(t, err)

	out, in := movements[0], movements[1]
	require.True(t, out.QtyDelta.Neg().Equal(in.QtyDelta))
	require.True(t, out.ValueDelta.Neg().Equal(in.ValueDelta), "out %s in %s", out.ValueDelta, in.ValueDelta)
	require.True(t, out.UnitCost.Equal(in.UnitCost))
}

func TestTransferInsufficientRejectsAllLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{
		{ItemID: 1, Qty: dec("10"), UnitCost: dec("5")},
		{ItemID: 2, Qty: dec("10"), UnitCost: dec("5")},
	}})
	require.NoError(t, err)

	_, err = svc.PostTransfer(ctx, TransferInput{SrcWarehouseID: 1, DstWarehouseID: 2, Lines: []TransferLine{
		{ItemID: 1, Qty: dec("4")},
		{ItemID: 2, Qty: dec("15")},
	}})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(2), insufficient.ItemID)
	require.True(t, insufficient.Available.Equal(dec("10")))
	require.True(t, insufficient.Requested.Equal(dec("15")))

	// Nothing moved, including the satisfiable first line.
	pos, _ := svc.GetPosition(ctx, 1, 1)
	require.True(t, pos.Qty.Equal(dec("10")))
	dst, _ := svc.GetPosition(ctx, 1, 2)
	require.True(t, dst.Qty.IsZero())
	require.Empty(t, repo.movements[2:], "no transfer movements persisted")
}

func TestSameWarehouseRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	_, err := svc.PostTransfer(context.Background(), TransferInput{SrcWarehouseID: 3, DstWarehouseID: 3, Lines: []TransferLine{{ItemID: 1, Qty: dec("1")}}})
	require.ErrorIs(t, err, ErrSameWarehouse)
}

func TestGetPositionDoesNotCreateRow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	pos, err := svc.GetPosition(context.Background(), 42, 4)
	require.NoError(t, err)
	require.True(t, pos.Qty.IsZero())
	require.True(t, pos.TotalValue.IsZero())
	require.True(t, pos.AvgCost.IsZero())
	require.Empty(t, repo.positions)
}

func TestLedgerReplayMatchesPosition(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("100"), UnitCost: dec("10.50")}}})
	require.NoError(t, err)
	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("33"), UnitCost: dec("11.25")}}})
	require.NoError(t, err)
	_, err = svc.PostTransfer(ctx, TransferInput{SrcWarehouseID: 1, DstWarehouseID: 2, Lines: []TransferLine{{ItemID: 1, Qty: dec("41")}}})
	require.NoError(t, err)
	_, err = svc.PostWithdrawal(ctx, WithdrawalInput{WarehouseID: 1, Lines: []WithdrawalLine{{ItemID: 1, Qty: dec("17")}}})
	require.NoError(t, err)
	_, err = svc.PostWithdrawal(ctx, WithdrawalInput{WarehouseID: 2, Lines: []WithdrawalLine{{ItemID: 1, Qty: dec("41")}}})
	require.NoError(t, err)

	for _, wh := range []int64{1, 2} {
		qty, value := decimal.Zero, decimal.Zero
		var last Movement
		for _, mv := range repo.movements {
			if mv.ItemID != 1 || mv.WarehouseID != wh {
				continue
			}
			qty = qty.Add(mv.QtyDelta)
			value = value.Add(mv.ValueDelta)
			last = mv
		}
		pos, err := svc.GetPosition(ctx, 1, wh)
		require.NoError(t, err)
		require.True(t, qty.Equal(pos.Qty), "warehouse %d qty replay %s vs %s", wh, qty, pos.Qty)
		require.True(t, value.Equal(pos.TotalValue), "warehouse %d value replay %s vs %s", wh, value, pos.TotalValue)
		require.True(t, last.BalanceQty.Equal(pos.Qty))
		require.True(t, last.BalanceValue.Equal(pos.TotalValue))
	}

	// Warehouse 2 drained fully; its value must close at exactly zero.
	drained, _ := svc.GetPosition(ctx, 1, 2)
	require.True(t, drained.Qty.IsZero())
	require.True(t, drained.TotalValue.IsZero())
}

func TestWithdrawalBelowZeroRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.PostWithdrawal(ctx, WithdrawalInput{WarehouseID: 1, Lines: []WithdrawalLine{{ItemID: 9, Qty: dec("1")}}})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.movements)
}

func TestAdjustmentSigns(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	mv, err := svc.PostAdjustment(ctx, AdjustmentInput{ItemID: 5, WarehouseID: 1, Qty: dec("4"), UnitCost: dec("2.5")})
	require.NoError(t, err)
	require.Equal(t, TypeAdjustment, mv.Type)
	require.True(t, mv.BalanceQty.Equal(dec("4")))

	mv, err = svc.PostAdjustment(ctx, AdjustmentInput{ItemID: 5, WarehouseID: 1, Qty: dec("-3")})
	require.NoError(t, err)
	require.True(t, mv.QtyDelta.Equal(dec("-3")))
	require.True(t, mv.UnitCost.Equal(dec("2.5")))

	_, err = svc.PostAdjustment(ctx, AdjustmentInput{ItemID: 5, WarehouseID: 1, Qty: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReverseRestoresPositions(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("50"), UnitCost: dec("4")}}})
	require.NoError(t, err)

	refID := "7f6c1d9a-55aa-4b31-9c0d-3d8e5a7b1c2f"
	_, err = svc.PostTransfer(ctx, TransferInput{SrcWarehouseID: 1, DstWarehouseID: 2, RefModule: "TRANSFER", RefID: refID, Lines: []TransferLine{{ItemID: 1, Qty: dec("20")}}})
	require.NoError(t, err)

	reversals, err := svc.Reverse(ctx, "TRANSFER", refID, 99)
	require.NoError(t, err)
	require.Len(t, reversals, 2)

	src, _ := svc.GetPosition(ctx, 1, 1)
	require.True(t, src.Qty.Equal(dec("50")), "src qty %s", src.Qty)
	require.True(t, src.TotalValue.Equal(dec("200")))
	dst, _ := svc.GetPosition(ctx, 1, 2)
	require.True(t, dst.Qty.IsZero())
	require.True(t, dst.TotalValue.IsZero())

	_, err = svc.Reverse(ctx, "TRANSFER", refID, 99)
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReverseKeepsOriginalValuation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	refID := "aa0b1c2d-3e4f-4a5b-8c6d-7e8f9a0b1c2d"
	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, RefModule: "ENTRY", RefID: refID, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("10"), UnitCost: dec("10")}}})
	require.NoError(t, err)
	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("10"), UnitCost: dec("20")}}})
	require.NoError(t, err)

	// Average is now 15, but reversing the first receipt must remove its
	// original 100 of value, leaving the ten units bought at 20.
	_, err = svc.Reverse(ctx, "ENTRY", refID, 7)
	require.NoError(t, err)

	pos, err := svc.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.Qty.Equal(dec("10")), "qty %s", pos.Qty)
	require.True(t, pos.TotalValue.Equal(dec("200")), "value %s", pos.TotalValue)
	require.True(t, pos.AvgCost.Equal(dec("20")), "avg %s", pos.AvgCost)
}

func TestReverseFIFOConsumedLotRefused(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, methodMap{1: MethodFIFO}, nil, nil)
	ctx := context.Background()

	refID := "bb1c2d3e-4f5a-4b6c-9d7e-8f9a0b1c2d3e"
	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, RefModule: "ENTRY", RefID: refID, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("10"), UnitCost: dec("5")}}})
	require.NoError(t, err)

	// The lot the receipt opened is partially eaten, so an exact reversal
	// is no longer possible.
	_, err = svc.PostWithdrawal(ctx, WithdrawalInput{WarehouseID: 1, Lines: []WithdrawalLine{{ItemID: 1, Qty: dec("4")}}})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, "ENTRY", refID, 7)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	pos, err := svc.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.Qty.Equal(dec("6")), "qty %s", pos.Qty)
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func TestPostBumpsReportCaches(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	inv := &countingInvalidator{}
	svc.SetInvalidator(inv)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("5"), UnitCost: dec("2")}}})
	require.NoError(t, err)
	require.Equal(t, 1, inv.calls)

	_, err = svc.PostAdjustment(ctx, AdjustmentInput{WarehouseID: 1, ItemID: 1, Qty: dec("1"), UnitCost: dec("2")})
	require.NoError(t, err)
	require.Equal(t, 2, inv.calls)

	// A failed post must not touch the caches.
	_, err = svc.PostWithdrawal(ctx, WithdrawalInput{WarehouseID: 1, Lines: []WithdrawalLine{{ItemID: 1, Qty: dec("100")}}})
	require.Error(t, err)
	require.Equal(t, 2, inv.calls)
}

func TestReverseUnknownRef(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	_, err := svc.Reverse(context.Background(), "TRANSFER", "0e1f2a3b-4c5d-6e7f-8a9b-0c1d2e3f4a5b", 1)
	require.ErrorIs(t, err, ErrNothingToReverse)
}

func TestMultiLineSortedByItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{
		{ItemID: 9, Qty: dec("1"), UnitCost: dec("1")},
		{ItemID: 3, Qty: dec("1"), UnitCost: dec("1")},
		{ItemID: 6, Qty: dec("1"), UnitCost: dec("1")},
	}})
	require.NoError(t, err)

	require.Equal(t, int64(3), repo.movements[0].ItemID)
	require.Equal(t, int64(6), repo.movements[1].ItemID)
	require.Equal(t, int64(9), repo.movements[2].ItemID)
}
