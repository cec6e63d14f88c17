package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bodega-erp/bodega-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPosition(ctx context.Context, itemID, warehouseID int64) (Position, error)
	ListPositions(ctx context.Context, filter PositionFilter) ([]Position, error)
	ListMovements(ctx context.Context, filter StockCardFilter) ([]Movement, error)
}

// TxRepository exposes transactional operations used by the coordinator.
// GetPositionForUpdate returns a zero position when none exists yet and
// never creates a row; rows appear on the first UpsertPosition.
type TxRepository interface {
	GetPositionForUpdate(ctx context.Context, itemID, warehouseID int64) (Position, error)
	UpsertPosition(ctx context.Context, pos Position) error
	InsertMovement(ctx context.Context, mv Movement) (int64, error)
	GetLotsForUpdate(ctx context.Context, itemID, warehouseID int64) ([]CostLot, error)
	InsertLot(ctx context.Context, lot CostLot) (int64, error)
	ConsumeLot(ctx context.Context, lotID int64, qty decimal.Decimal) error
	MovementsByRef(ctx context.Context, refModule, refID string) ([]Movement, error)
}

// CatalogPort resolves the costing method configured for an item.
type CatalogPort interface {
	CostingMethod(ctx context.Context, itemID int64) (Method, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator is notified after every successful posting so derived caches
// (report valuations, low stock) rebuild on next read.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service is the transaction coordinator: every public operation posts its
// movements, lot changes and position updates in one unit of work, or not
// at all.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	invalidator Invalidator
	strategies  map[Method]Strategy
}

// NewService builds Service with the weighted-average and FIFO strategies
// registered. Catalog, audit and idempotency may be nil.
func NewService(repo RepositoryPort, catalog CatalogPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{
		repo:        repo,
		catalog:     catalog,
		audit:       audit,
		idempotency: idem,
		strategies: map[Method]Strategy{
			MethodWeightedAverage: WeightedAverage{},
			MethodFIFO:            FIFO{},
		},
	}
}

// GetPosition returns the current balance, or a zero position when the pair
// has never been touched. No row is created by reading.
func (s *Service) GetPosition(ctx context.Context, itemID, warehouseID int64) (Position, error) {
	return s.repo.GetPosition(ctx, itemID, warehouseID)
}

// ListPositions lists balances for reporting.
func (s *Service) ListPositions(ctx context.Context, filter PositionFilter) ([]Position, error) {
	return s.repo.ListPositions(ctx, filter)
}

// StockCard lists ledger entries for one (item, warehouse) pair.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	if filter.ItemID == 0 || filter.WarehouseID == 0 {
		return nil, fmt.Errorf("ledger: item and warehouse required")
	}
	return s.repo.ListMovements(ctx, filter)
}

// PostReceipt posts RECEIPT movements for every line, all in one unit of work.
func (s *Service) PostReceipt(ctx context.Context, input ReceiptInput) ([]Movement, error) {
	if input.WarehouseID == 0 {
		return nil, fmt.Errorf("ledger: warehouse required")
	}
	if len(input.Lines) == 0 {
		return nil, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Qty.Sign() <= 0 {
			return nil, ErrInvalidQuantity
		}
		if line.UnitCost.Sign() < 0 {
			return nil, ErrInvalidUnitCost
		}
	}
	lines := make([]ReceiptLine, len(input.Lines))
	copy(lines, input.Lines)
	sortByItem(lines, func(l ReceiptLine) int64 { return l.ItemID })

	release, err := s.claimRef(ctx, input.RefModule, input.RefID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var movements []Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements = movements[:0]
		for _, line := range lines {
			mv, err := s.receive(ctx, tx, input.WarehouseID, line.ItemID, line.Qty, line.UnitCost, TypeReceipt, refFields(input.RefModule, input.RefID, input.ActorID, input.Note), now)
			if err != nil {
				return err
			}
			movements = append(movements, mv)
		}
		return nil
	})
	if err != nil {
		release(ctx)
		return nil, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:receipt", input.RefModule, input.RefID, map[string]any{
		"warehouse_id": input.WarehouseID,
		"lines":        len(lines),
	})
	s.bumpReports(ctx)
	return movements, nil
}

// PostTransfer posts a paired TRANSFER_OUT and TRANSFER_IN per line. The
// destination receives at the cost the source issued, so value moved out
// equals value moved in. If any line fails, nothing is persisted.
func (s *Service) PostTransfer(ctx context.Context, input TransferInput) ([]Movement, error) {
	if input.SrcWarehouseID == 0 || input.DstWarehouseID == 0 {
		return nil, fmt.Errorf("ledger: warehouse required")
	}
	if input.SrcWarehouseID == input.DstWarehouseID {
		return nil, ErrSameWarehouse
	}
	if len(input.Lines) == 0 {
		return nil, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Qty.Sign() <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	// Lines sorted by item id and, per line, positions locked in warehouse
	// id order, so concurrent transfers over overlapping item sets acquire
	// row locks in the same order.
	lines := make([]TransferLine, len(input.Lines))
	copy(lines, input.Lines)
	sortByItem(lines, func(l TransferLine) int64 { return l.ItemID })

	release, err := s.claimRef(ctx, input.RefModule, input.RefID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var movements []Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements = movements[:0]
		for _, line := range lines {
			first, second := input.SrcWarehouseID, input.DstWarehouseID
			if first > second {
				first, second = second, first
			}
			if _, err := tx.GetPositionForUpdate(ctx, line.ItemID, first); err != nil {
				return err
			}
			if _, err := tx.GetPositionForUpdate(ctx, line.ItemID, second); err != nil {
				return err
			}

			out, err := s.issue(ctx, tx, input.SrcWarehouseID, line.ItemID, line.Qty, TypeTransferOut, refFields(input.RefModule, input.RefID, input.ActorID, input.Note), now)
			if err != nil {
				return err
			}
			in, err := s.receive(ctx, tx, input.DstWarehouseID, line.ItemID, line.Qty, out.UnitCost, TypeTransferIn, refFields(input.RefModule, input.RefID, input.ActorID, input.Note), now)
			if err != nil {
				return err
			}
			movements = append(movements, out, in)
		}
		return nil
	})
	if err != nil {
		release(ctx)
		return nil, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:transfer", input.RefModule, input.RefID, map[string]any{
		"src_warehouse_id": input.SrcWarehouseID,
		"dst_warehouse_id": input.DstWarehouseID,
		"lines":            len(lines),
	})
	s.bumpReports(ctx)
	return movements, nil
}

// PostWithdrawal posts WITHDRAWAL movements valued by the costing engine.
func (s *Service) PostWithdrawal(ctx context.Context, input WithdrawalInput) ([]Movement, error) {
	if input.WarehouseID == 0 {
		return nil, fmt.Errorf("ledger: warehouse required")
	}
	if len(input.Lines) == 0 {
		return nil, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Qty.Sign() <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	lines := make([]WithdrawalLine, len(input.Lines))
	copy(lines, input.Lines)
	sortByItem(lines, func(l WithdrawalLine) int64 { return l.ItemID })

	release, err := s.claimRef(ctx, input.RefModule, input.RefID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var movements []Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements = movements[:0]
		for _, line := range lines {
			mv, err := s.issue(ctx, tx, input.WarehouseID, line.ItemID, line.Qty, TypeWithdrawal, refFields(input.RefModule, input.RefID, input.ActorID, input.Note), now)
			if err != nil {
				return err
			}
			movements = append(movements, mv)
		}
		return nil
	})
	if err != nil {
		release(ctx)
		return nil, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:withdrawal", input.RefModule, input.RefID, map[string]any{
		"warehouse_id": input.WarehouseID,
		"lines":        len(lines),
	})
	s.bumpReports(ctx)
	return movements, nil
}

// PostAdjustment posts one signed ADJUSTMENT movement.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.WarehouseID == 0 || input.ItemID == 0 {
		return Movement{}, fmt.Errorf("ledger: warehouse and item required")
	}
	if input.Qty.IsZero() {
		return Movement{}, ErrInvalidQuantity
	}
	if input.Qty.Sign() > 0 && input.UnitCost.Sign() < 0 {
		return Movement{}, ErrInvalidUnitCost
	}

	release, err := s.claimRef(ctx, input.RefModule, input.RefID)
	if err != nil {
		return Movement{}, err
	}

	now := time.Now().UTC()
	var movement Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ref := refFields(input.RefModule, input.RefID, input.ActorID, input.Note)
		if input.Qty.Sign() > 0 {
			mv, err := s.receive(ctx, tx, input.WarehouseID, input.ItemID, input.Qty, input.UnitCost, TypeAdjustment, ref, now)
			if err != nil {
				return err
			}
			movement = mv
			return nil
		}
		mv, err := s.issue(ctx, tx, input.WarehouseID, input.ItemID, input.Qty.Neg(), TypeAdjustment, ref, now)
		if err != nil {
			return err
		}
		movement = mv
		return nil
	})
	if err != nil {
		release(ctx)
		return Movement{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:adjustment", input.RefModule, input.RefID, map[string]any{
		"warehouse_id": input.WarehouseID,
		"item_id":      input.ItemID,
		"qty":          input.Qty.String(),
	})
	s.bumpReports(ctx)
	return movement, nil
}

// Reverse appends compensating ADJUSTMENT movements for everything posted
// under the given reference: receipts and transfer-ins are issued back out,
// outflows are received back at their original unit cost. Callers gate the
// transition through their document status machine.
func (s *Service) Reverse(ctx context.Context, refModule, refID string, actorID int64) ([]Movement, error) {
	if refModule == "" || refID == "" {
		return nil, fmt.Errorf("ledger: reference required")
	}
	now := time.Now().UTC()
	note := fmt.Sprintf("reversal of %s %s", refModule, refID)
	var movements []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements = movements[:0]
		originals, err := tx.MovementsByRef(ctx, refModule, refID)
		if err != nil {
			return err
		}
		if len(originals) == 0 {
			return ErrNothingToReverse
		}
		for _, orig := range originals {
			if orig.Type == TypeAdjustment && orig.Note == note {
				return ErrAlreadyReversed
			}
		}
		// Undo in reverse posting order so a transfer's IN side is drained
		// before its OUT side is restored.
		for i := len(originals) - 1; i >= 0; i-- {
			orig := originals[i]
			ref := refFields(refModule, refID, actorID, note)
			var mv Movement
			if orig.QtyDelta.Sign() > 0 {
				mv, err = s.reverseIn(ctx, tx, orig, ref, now)
			} else {
				mv, err = s.receive(ctx, tx, orig.WarehouseID, orig.ItemID, orig.QtyDelta.Neg(), orig.UnitCost, TypeAdjustment, ref, now)
			}
			if err != nil {
				return err
			}
			movements = append(movements, mv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "ledger:reverse", refModule, refID, map[string]any{
		"movements": len(movements),
	})
	s.bumpReports(ctx)
	return movements, nil
}

// reverseIn backs an inflow out at the value the original movement carried,
// not the current average, so a reversal never re-prices the remaining
// stock. On FIFO positions the lot the original receipt opened is consumed;
// if later issues already ate into that lot the reversal is refused rather
// than drained from older layers.
func (s *Service) reverseIn(ctx context.Context, tx TxRepository, orig Movement, r ref, now time.Time) (Movement, error) {
	pos, err := tx.GetPositionForUpdate(ctx, orig.ItemID, orig.WarehouseID)
	if err != nil {
		return Movement{}, err
	}
	qty := orig.QtyDelta
	if pos.Qty.LessThan(qty) {
		return Movement{}, &InsufficientStockError{
			ItemID:      orig.ItemID,
			WarehouseID: orig.WarehouseID,
			Available:   pos.Qty,
			Requested:   qty,
		}
	}
	strat, lots, err := s.strategyFor(ctx, tx, orig.ItemID, orig.WarehouseID, true)
	if err != nil {
		return Movement{}, err
	}
	if strat.Method() == MethodFIFO {
		var lot *CostLot
		for i := range lots {
			if lots[i].ReceivedAt.Equal(orig.PostedAt) && lots[i].UnitCost.Equal(orig.UnitCost) {
				lot = &lots[i]
				break
			}
		}
		if lot == nil || lot.Remaining.LessThan(qty) {
			return Movement{}, &InsufficientStockError{
				ItemID:      orig.ItemID,
				WarehouseID: orig.WarehouseID,
				Available:   pos.Qty,
				Requested:   qty,
			}
		}
		if err := tx.ConsumeLot(ctx, lot.ID, qty); err != nil {
			return Movement{}, err
		}
	}
	valueOut := orig.ValueDelta
	newQty := pos.Qty.Sub(qty)
	newValue := pos.TotalValue.Sub(valueOut)
	if newQty.IsZero() {
		// The last units leave; take whatever value remains so an empty
		// position always closes at exactly zero.
		valueOut = pos.TotalValue
		newValue = decimal.Zero
	}
	res := Result{
		UnitCost:   orig.UnitCost,
		ValueDelta: valueOut.Neg(),
		Qty:        newQty,
		Value:      newValue,
		AvgCost:    averageCost(newValue, newQty),
	}
	return s.apply(ctx, tx, pos, res, Movement{
		ItemID:      orig.ItemID,
		WarehouseID: orig.WarehouseID,
		Type:        TypeAdjustment,
		QtyDelta:    qty.Neg(),
		UnitCost:    orig.UnitCost,
		ValueDelta:  valueOut.Neg(),
		Method:      strat.Method(),
		RefModule:   r.module,
		RefID:       r.id,
		ActorID:     r.actorID,
		Note:        r.note,
		PostedAt:    now,
	})
}

func (s *Service) receive(ctx context.Context, tx TxRepository, warehouseID, itemID int64, qty, unitCost decimal.Decimal, mvType MovementType, r ref, now time.Time) (Movement, error) {
	pos, err := tx.GetPositionForUpdate(ctx, itemID, warehouseID)
	if err != nil {
		return Movement{}, err
	}
	strat, lots, err := s.strategyFor(ctx, tx, itemID, warehouseID, false)
	if err != nil {
		return Movement{}, err
	}
	res, err := strat.Receive(pos, lots, qty, unitCost)
	if err != nil {
		return Movement{}, err
	}
	return s.apply(ctx, tx, pos, res, Movement{
		ItemID:      itemID,
		WarehouseID: warehouseID,
		Type:        mvType,
		QtyDelta:    qty,
		UnitCost:    res.UnitCost,
		ValueDelta:  res.ValueDelta,
		Method:      strat.Method(),
		RefModule:   r.module,
		RefID:       r.id,
		ActorID:     r.actorID,
		Note:        r.note,
		PostedAt:    now,
	})
}

type ref struct {
	module  string
	id      string
	actorID int64
	note    string
}

func refFields(module, id string, actorID int64, note string) ref {
	return ref{module: module, id: id, actorID: actorID, note: note}
}

func (s *Service) issue(ctx context.Context, tx TxRepository, warehouseID, itemID int64, qty decimal.Decimal, mvType MovementType, r ref, now time.Time) (Movement, error) {
	pos, err := tx.GetPositionForUpdate(ctx, itemID, warehouseID)
	if err != nil {
		return Movement{}, err
	}
	strat, lots, err := s.strategyFor(ctx, tx, itemID, warehouseID, true)
	if err != nil {
		return Movement{}, err
	}
	res, err := strat.Issue(pos, lots, qty)
	if err != nil {
		return Movement{}, err
	}
	for _, c := range res.Consumed {
		if err := tx.ConsumeLot(ctx, c.LotID, c.Qty); err != nil {
			return Movement{}, err
		}
	}
	return s.apply(ctx, tx, pos, res, Movement{
		ItemID:      itemID,
		WarehouseID: warehouseID,
		Type:        mvType,
		QtyDelta:    qty.Neg(),
		UnitCost:    res.UnitCost,
		ValueDelta:  res.ValueDelta,
		Method:      strat.Method(),
		RefModule:   r.module,
		RefID:       r.id,
		ActorID:     r.actorID,
		Note:        r.note,
		PostedAt:    now,
	})
}

// apply persists the movement, any new lot and the updated position.
func (s *Service) apply(ctx context.Context, tx TxRepository, pos Position, res Result, mv Movement) (Movement, error) {
	mv.BalanceQty = res.Qty
	mv.BalanceValue = res.Value
	id, err := tx.InsertMovement(ctx, mv)
	if err != nil {
		return Movement{}, err
	}
	mv.ID = id
	if res.NewLot != nil {
		lot := *res.NewLot
		lot.ReceivedAt = mv.PostedAt
		if _, err := tx.InsertLot(ctx, lot); err != nil {
			return Movement{}, err
		}
	}
	pos.Qty = res.Qty
	pos.TotalValue = res.Value
	pos.AvgCost = res.AvgCost
	if err := tx.UpsertPosition(ctx, pos); err != nil {
		return Movement{}, err
	}
	return mv, nil
}

// strategyFor resolves the item's configured strategy. Lots are loaded
// (under lock) only for FIFO items; needLots distinguishes issues, which
// consume lots, from receives, which only open them.
func (s *Service) strategyFor(ctx context.Context, tx TxRepository, itemID, warehouseID int64, needLots bool) (Strategy, []CostLot, error) {
	method := MethodWeightedAverage
	if s.catalog != nil {
		m, err := s.catalog.CostingMethod(ctx, itemID)
		if err != nil {
			return nil, nil, err
		}
		if m != "" {
			method = m
		}
	}
	strat, ok := s.strategies[method]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	var lots []CostLot
	if method == MethodFIFO && needLots {
		var err error
		lots, err = tx.GetLotsForUpdate(ctx, itemID, warehouseID)
		if err != nil {
			return nil, nil, err
		}
	}
	return strat, lots, nil
}

// claimRef reserves the document reference so a replayed post cannot write
// its movements twice. The returned func releases the claim after a failed
// unit of work.
func (s *Service) claimRef(ctx context.Context, refModule, refID string) (func(context.Context), error) {
	if s.idempotency == nil || refID == "" {
		return func(context.Context) {}, nil
	}
	key := fmt.Sprintf("%s:%s", refModule, refID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		_ = s.idempotency.Delete(ctx, key)
	}, nil
}

// SetInvalidator attaches the report cache hook. The reports service reads
// through the ledger, so the hook is wired after both are constructed.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// bumpReports is best effort; a missed bump only delays refresh until the
// cache TTL expires.
func (s *Service) bumpReports(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	_ = s.invalidator.Invalidate(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, refModule, refID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["ref_module"] = refModule
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_movement",
		EntityID: refID,
		Meta:     meta,
	})
}

func sortByItem[T any](lines []T, key func(T) int64) {
	sort.SliceStable(lines, func(i, j int) bool { return key(lines[i]) < key(lines[j]) })
}
