package ledger

import "github.com/shopspring/decimal"

// LotConsumption records how much of one cost lot an issue consumed.
type LotConsumption struct {
	LotID int64
	Qty   decimal.Decimal
}

// Result carries the outcome of applying one movement to a position.
type Result struct {
	// UnitCost is the cost recorded on the movement: the supplied cost for
	// receipts, the cost computed by the strategy for issues.
	UnitCost decimal.Decimal
	// ValueDelta is the signed change of the position's total value.
	ValueDelta decimal.Decimal
	// Qty, Value and AvgCost form the post-movement balance.
	Qty     decimal.Decimal
	Value   decimal.Decimal
	AvgCost decimal.Decimal
	// Consumed lists FIFO lot consumptions; nil for weighted average.
	Consumed []LotConsumption
	// NewLot is the FIFO layer created by a receipt; nil otherwise.
	NewLot *CostLot
}

// Strategy values a single movement against the current position. Lots are
// the open cost layers of the position; weighted average ignores them.
// Strategies are pure: the coordinator persists the returned state.
type Strategy interface {
	Method() Method
	Receive(pos Position, lots []CostLot, qty, unitCost decimal.Decimal) (Result, error)
	Issue(pos Position, lots []CostLot, qty decimal.Decimal) (Result, error)
}

// WeightedAverage blends every receipt into one running unit cost. Issues
// are valued at the current average; no new cost information arrives on an
// outflow.
type WeightedAverage struct{}

// Method implements Strategy.
func (WeightedAverage) Method() Method { return MethodWeightedAverage }

// Receive implements Strategy.
func (WeightedAverage) Receive(pos Position, _ []CostLot, qty, unitCost decimal.Decimal) (Result, error) {
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
	}, nil
}

// Issue implements Strategy. The caller validates qty <= pos.Qty.
func (WeightedAverage) Issue(pos Position, _ []CostLot, qty decimal.Decimal) (Result, error) {
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
	newQty := pos.Qty.Sub(qty)
	var valueDelta, newValue decimal.Decimal
	if newQty.IsZero() {
		// Drain the full remaining value so the balance closes at exactly
		// zero regardless of division precision on the average.
		valueDelta = pos.TotalValue.Neg()
		newValue = decimal.Zero
	} else {
		valueDelta = qty.Mul(pos.AvgCost).Neg()
		newValue = pos.TotalValue.Add(valueDelta)
	}
	return Result{
		UnitCost:   pos.AvgCost,
		ValueDelta: valueDelta,
		Qty:        newQty,
		Value:      newValue,
		AvgCost:    averageCost(newValue, newQty),
	}, nil
}

// averageCost derives total/qty, returning zero on an empty position.
func averageCost(value, qty decimal.Decimal) decimal.Decimal {
	if qty.Sign() <= 0 {
		return decimal.Zero
	}
	return value.Div(qty)
}
