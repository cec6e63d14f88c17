package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFIFOIssueConsumesOldestFirst(t *testing.T) {
	fifo := FIFO{}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pos := Position{Qty: dec("20"), TotalValue: dec("120"), AvgCost: dec("6")}
	lots := []CostLot{
		// Deliberately out of order; the strategy sorts by receipt time.
		{ID: 2, Qty: dec("10"), Remaining: dec("10"), UnitCost: dec("7"), ReceivedAt: base.Add(time.Hour)},
		{ID: 1, Qty: dec("10"), Remaining: dec("10"), UnitCost: dec("5"), ReceivedAt: base},
	}

	res, err := fifo.Issue(pos, lots, dec("15"))
	require.NoError(t, err)
	require.Len(t, res.Consumed, 2)
	require.Equal(t, int64(1), res.Consumed[0].LotID)
	require.True(t, res.Consumed[0].Qty.Equal(dec("10")))
	require.Equal(t, int64(2), res.Consumed[1].LotID)
	require.True(t, res.Consumed[1].Qty.Equal(dec("5")))

	// 10@5 + 5@7 = 85 issued over 15 units.
	require.True(t, res.ValueDelta.Equal(dec("-85")))
	require.True(t, res.UnitCost.Equal(dec("85").Div(dec("15"))))
	require.True(t, res.Qty.Equal(dec("5")))
	require.True(t, res.Value.Equal(dec("35")))
}

func TestFIFOTieBrokenByLotID(t *testing.T) {
	fifo := FIFO{}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pos := Position{Qty: dec("4"), TotalValue: dec("10"), AvgCost: dec("2.5")}
	lots := []CostLot{
		{ID: 9, Qty: dec("2"), Remaining: dec("2"), UnitCost: dec("3"), ReceivedAt: at},
		{ID: 4, Qty: dec("2"), Remaining: dec("2"), UnitCost: dec("2"), ReceivedAt: at},
	}

	res, err := fifo.Issue(pos, lots, dec("2"))
	require.NoError(t, err)
	require.Len(t, res.Consumed, 1)
	require.Equal(t, int64(4), res.Consumed[0].LotID)
	require.True(t, res.ValueDelta.Equal(dec("-4")))
}

func TestFIFOReceiveOpensLot(t *testing.T) {
	fifo := FIFO{}
	res, err := fifo.Receive(Position{ItemID: 3, WarehouseID: 1}, nil, dec("10"), dec("5"))
	require.NoError(t, err)
	require.NotNil(t, res.NewLot)
	require.True(t, res.NewLot.Remaining.Equal(dec("10")))
	require.True(t, res.NewLot.UnitCost.Equal(dec("5")))
	require.Equal(t, int64(3), res.NewLot.ItemID)
}

func TestFIFOFullIssueDrainsValue(t *testing.T) {
	fifo := FIFO{}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pos := Position{Qty: dec("3"), TotalValue: dec("10"), AvgCost: dec("10").Div(dec("3"))}
	lots := []CostLot{{ID: 1, Qty: dec("3"), Remaining: dec("3"), UnitCost: dec("10").Div(dec("3")), ReceivedAt: at}}

	res, err := fifo.Issue(pos, lots, dec("3"))
	require.NoError(t, err)
	require.True(t, res.Qty.IsZero())
	require.True(t, res.Value.IsZero())
	require.True(t, res.ValueDelta.Equal(dec("-10")))
}

func TestFIFOLotsOutOfStep(t *testing.T) {
	fifo := FIFO{}
	pos := Position{Qty: dec("10"), TotalValue: dec("50"), AvgCost: dec("5")}

	_, err := fifo.Issue(pos, nil, dec("4"))
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestFIFOServiceFlow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, methodMap{1: MethodFIFO}, nil, nil)
	ctx := context.Background()

	_, err := svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("10"), UnitCost: dec("5")}}})
	require.NoError(t, err)
	_, err = svc.PostReceipt(ctx, ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("10"), UnitCost: dec("7")}}})
	require.NoError(t, err)
	require.Len(t, repo.lots, 2)

	movements, err := svc.PostWithdrawal(ctx, WithdrawalInput{WarehouseID: 1, Lines: []WithdrawalLine{{ItemID: 1, Qty: dec("15")}}})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.True(t, movements[0].ValueDelta.Equal(dec("-85")))
	require.Equal(t, MethodFIFO, movements[0].Method)

	pos, err := svc.GetPosition(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, pos.Qty.Equal(dec("5")))
	require.True(t, pos.TotalValue.Equal(dec("35")))

	// First lot fully consumed, second lot has 5 left.
	require.True(t, repo.lots[0].Remaining.IsZero())
	require.True(t, repo.lots[1].Remaining.Equal(dec("5")))
}

func TestUnsupportedMethodRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(), methodMap{1: MethodSpecific}, nil, nil)
	_, err := svc.PostReceipt(context.Background(), ReceiptInput{WarehouseID: 1, Lines: []ReceiptLine{{ItemID: 1, Qty: dec("1"), UnitCost: dec("1")}}})
	require.ErrorIs(t, err, ErrUnsupportedMethod)
}
