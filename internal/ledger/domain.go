// Package ledger implements the inventory position store, the append-only
// movement ledger and the costing engine that values every stock movement.
// All writes to positions and movements go through this package.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// TypeReceipt represents stock received from a supplier.
	TypeReceipt MovementType = "RECEIPT"
	// TypeTransferOut represents the outgoing half of a transfer.
	TypeTransferOut MovementType = "TRANSFER_OUT"
	// TypeTransferIn represents the incoming half of a transfer.
	TypeTransferIn MovementType = "TRANSFER_IN"
	// TypeWithdrawal represents materials issued out of a warehouse.
	TypeWithdrawal MovementType = "WITHDRAWAL"
	// TypeAdjustment represents manual corrections and reversals.
	TypeAdjustment MovementType = "ADJUSTMENT"
)

// Method enumerates costing methods.
type Method string

const (
	// MethodWeightedAverage blends all units into one running unit cost.
	MethodWeightedAverage Method = "WEIGHTED_AVERAGE"
	// MethodFIFO consumes layered cost lots oldest first.
	MethodFIFO Method = "FIFO"
	// MethodSpecific identifies cost per physical unit. Declared for item
	// configuration but not implemented by any strategy.
	MethodSpecific Method = "SPECIFIC_ID"
)

// Position is the current balance of one item in one warehouse.
type Position struct {
	ItemID      int64           `json:"item_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Qty         decimal.Decimal `json:"qty"`
	TotalValue  decimal.Decimal `json:"total_value"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Movement is one immutable ledger entry. BalanceQty and BalanceValue
// snapshot the position immediately after this entry was applied.
type Movement struct {
	ID           int64           `json:"id"`
	ItemID       int64           `json:"item_id"`
	WarehouseID  int64           `json:"warehouse_id"`
	Type         MovementType    `json:"type"`
	QtyDelta     decimal.Decimal `json:"qty_delta"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ValueDelta   decimal.Decimal `json:"value_delta"`
	BalanceQty   decimal.Decimal `json:"balance_qty"`
	BalanceValue decimal.Decimal `json:"balance_value"`
	Method       Method          `json:"costing_method"`
	RefModule    string          `json:"ref_module"`
	RefID        string          `json:"ref_id"`
	ActorID      int64           `json:"actor_id"`
	Note         string          `json:"note,omitempty"`
	PostedAt     time.Time       `json:"posted_at"`
}

// CostLot is one FIFO cost layer created by a receipt.
type CostLot struct {
	ID          int64
	ItemID      int64
	WarehouseID int64
	Qty         decimal.Decimal
	Remaining   decimal.Decimal
	UnitCost    decimal.Decimal
	ReceivedAt  time.Time
}

// ReceiptLine is one received item with its supplied unit cost.
type ReceiptLine struct {
	ItemID   int64
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

// ReceiptInput posts stock into a warehouse.
type ReceiptInput struct {
	WarehouseID int64
	Lines       []ReceiptLine
	RefModule   string
	RefID       string
	ActorID     int64
	Note        string
}

// TransferLine is one transferred item. Outflows carry no supplied cost;
// they are valued by the costing engine.
type TransferLine struct {
	ItemID int64
	Qty    decimal.Decimal
}

// TransferInput moves stock between two warehouses.
type TransferInput struct {
	SrcWarehouseID int64
	DstWarehouseID int64
	Lines          []TransferLine
	RefModule      string
	RefID          string
	ActorID        int64
	Note           string
}

// WithdrawalLine is one withdrawn item.
type WithdrawalLine struct {
	ItemID int64
	Qty    decimal.Decimal
}

// WithdrawalInput issues stock out of a warehouse.
type WithdrawalInput struct {
	WarehouseID int64
	Lines       []WithdrawalLine
	RefModule   string
	RefID       string
	ActorID     int64
	Note        string
}

// AdjustmentInput posts a manual correction. Qty is signed; positive
// adjustments require a unit cost.
type AdjustmentInput struct {
	ItemID      int64
	WarehouseID int64
	Qty         decimal.Decimal
	UnitCost    decimal.Decimal
	RefModule   string
	RefID       string
	ActorID     int64
	Note        string
}

// StockCardFilter selects ledger entries for one position.
type StockCardFilter struct {
	ItemID      int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// PositionFilter selects positions for listings.
type PositionFilter struct {
	WarehouseID int64
	ItemID      int64
	NonZeroOnly bool
	Limit       int
}

var (
	// ErrInvalidQuantity indicates a zero or negative line quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative supplied unit cost.
	ErrInvalidUnitCost = errors.New("ledger: unit cost must be >= 0")
	// ErrSameWarehouse indicates a transfer onto itself.
	ErrSameWarehouse = errors.New("ledger: source and destination warehouse must differ")
	// ErrNoLines indicates a document without lines.
	ErrNoLines = errors.New("ledger: at least one line required")
	// ErrInsufficientStock is the target for errors.Is on availability failures.
	ErrInsufficientStock = errors.New("insufficient inventory")
	// ErrUnsupportedMethod indicates a costing method without a strategy.
	ErrUnsupportedMethod = errors.New("ledger: unsupported costing method")
	// ErrNothingToReverse indicates a reversal for a ref without movements.
	ErrNothingToReverse = errors.New("ledger: no movements found for reference")
	// ErrAlreadyReversed indicates the reference was reversed before.
	ErrAlreadyReversed = errors.New("ledger: reference already reversed")
)

// InsufficientStockError reports an availability failure with enough detail
// for the caller to build a precise message.
type InsufficientStockError struct {
	ItemID      int64
	WarehouseID int64
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient inventory for item %d in warehouse %d: available %s, requested %s",
		e.ItemID, e.WarehouseID, e.Available.String(), e.Requested.String())
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
