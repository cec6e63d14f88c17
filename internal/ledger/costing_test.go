package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestWeightedAverageReceive(t *testing.T) {
	wa := WeightedAverage{}

	res, err := wa.Receive(Position{}, nil, dec("100"), dec("10"))
	require.NoError(t, err)
	require.True(t, res.Qty.Equal(dec("100")))
	require.True(t, res.Value.Equal(dec("1000")))
	require.True(t, res.AvgCost.Equal(dec("10")))
	require.Nil(t, res.NewLot)

	pos := Position{Qty: res.Qty, TotalValue: res.Value, AvgCost: res.AvgCost}
	res, err = wa.Receive(pos, nil, dec("50"), dec("16"))
	require.NoError(t, err)
	require.True(t, res.Qty.Equal(dec("150")))
	require.True(t, res.Value.Equal(dec("1800")))
	require.True(t, res.AvgCost.Equal(dec("12")))
	require.True(t, res.ValueDelta.Equal(dec("800")))
}

func TestWeightedAverageIssueAtAverage(t *testing.T) {
	wa := WeightedAverage{}
	pos := Position{Qty: dec("150"), TotalValue: dec("1800"), AvgCost: dec("12")}

	res, err := wa.Issue(pos, nil, dec("60"))
	require.NoError(t, err)
	require.True(t, res.UnitCost.Equal(dec("12")))
	require.True(t, res.ValueDelta.Equal(dec("-720")))
	require.True(t, res.Qty.Equal(dec("90")))
	require.True(t, res.Value.Equal(dec("1080")))
	require.True(t, res.AvgCost.Equal(dec("12")))
}

func TestWeightedAverageFullIssueDrainsValueExactly(t *testing.T) {
	wa := WeightedAverage{}
	// 1/3-style average that does not divide cleanly.
	pos := Position{Qty: dec("3"), TotalValue: dec("10")}
	pos.AvgCost = averageCost(pos.TotalValue, pos.Qty)

	res, err := wa.Issue(pos, nil, dec("3"))
	require.NoError(t, err)
	require.True(t, res.Qty.IsZero())
	require.True(t, res.Value.IsZero(), "residual value %s", res.Value)
	require.True(t, res.ValueDelta.Equal(dec("-10")))
	require.True(t, res.AvgCost.IsZero())
}

func TestWeightedAverageRejectsBadInput(t *testing.T) {
	wa := WeightedAverage{}
	pos := Position{Qty: dec("5"), TotalValue: dec("50"), AvgCost: dec("10")}

	_, err := wa.Receive(pos, nil, decimal.Zero, dec("1"))
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = wa.Receive(pos, nil, dec("1"), dec("-1"))
	require.ErrorIs(t, err, ErrInvalidUnitCost)

	_, err = wa.Issue(pos, nil, dec("6"))
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAverageCostEmptyPosition(t *testing.T) {
	require.True(t, averageCost(decimal.Zero, decimal.Zero).IsZero())
	require.True(t, averageCost(dec("10"), decimal.Zero).IsZero())
}
