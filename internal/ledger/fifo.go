package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// FIFO keeps a cost layer per receipt and consumes layers oldest first.
// The issued movement is valued at the blended cost of the consumed layers.
type FIFO struct{}

// Method implements Strategy.
func (FIFO) Method() Method { return MethodFIFO }

// Receive implements Strategy. Each receipt opens a new lot.
func (FIFO) Receive(pos Position, _ []CostLot, qty, unitCost decimal.Decimal) (Result, error) {
	if qty.Sign() <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if unitCost.Sign() < 0 {
		return Result{}, ErrInvalidUnitCost
	}
	valueDelta := qty.Mul(unitCost)
	newQty := pos.Qty.Add(qty)
	newValue := pos.TotalValue.Add(valueDelta)
	return Result{
		UnitCost:   unitCost,
		ValueDelta: valueDelta,
		Qty:        newQty,
		Value:      newValue,
		AvgCost:    averageCost(newValue, newQty),
		NewLot: &CostLot{
			ItemID:      pos.ItemID,
			WarehouseID: pos.WarehouseID,
			Qty:         qty,
			Remaining:   qty,
			UnitCost:    unitCost,
		},
	}, nil
}

// Issue implements Strategy. Lots are consumed in (received_at, id) order.
func (FIFO) Issue(pos Position, lots []CostLot, qty decimal.Decimal) (Result, error) {
	if qty.Sign() <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if qty.GreaterThan(pos.Qty) {
		return Result{}, &InsufficientStockError{
			ItemID:      pos.ItemID,
			WarehouseID: pos.WarehouseID,
			Available:   pos.Qty,
			Requested:   qty,
		}
	}

	ordered := make([]CostLot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ReceivedAt.Equal(ordered[j].ReceivedAt) {
			return ordered[i].ReceivedAt.Before(ordered[j].ReceivedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	remaining := qty
	issuedValue := decimal.Zero
	var consumed []LotConsumption
	for _, lot := range ordered {
		if remaining.Sign() <= 0 {
			break
		}
		if lot.Remaining.Sign() <= 0 {
			continue
		}
		take := decimal.Min(lot.Remaining, remaining)
		consumed = append(consumed, LotConsumption{LotID: lot.ID, Qty: take})
		issuedValue = issuedValue.Add(take.Mul(lot.UnitCost))
		remaining = remaining.Sub(take)
	}
	if remaining.Sign() > 0 {
		// Lots out of step with the position balance; treat as availability
		// failure rather than issuing unvalued stock.
		return Result{}, &InsufficientStockError{
			ItemID:      pos.ItemID,
			WarehouseID: pos.WarehouseID,
			Available:   qty.Sub(remaining),
			Requested:   qty,
		}
	}

	newQty := pos.Qty.Sub(qty)
	var newValue decimal.Decimal
	if newQty.IsZero() {
		newValue = decimal.Zero
		issuedValue = pos.TotalValue
	} else {
		newValue = pos.TotalValue.Sub(issuedValue)
	}
	return Result{
		UnitCost:   issuedValue.Div(qty),
		ValueDelta: issuedValue.Neg(),
		Qty:        newQty,
		Value:      newValue,
		AvgCost:    averageCost(newValue, newQty),
		Consumed:   consumed,
	}, nil
}
