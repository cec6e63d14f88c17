package entries

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bodega-erp/bodega-erp/internal/ledger"
	"github.com/bodega-erp/bodega-erp/internal/shared"
)

// LedgerPort exposes the required inventory ledger integration.
type LedgerPort interface {
	PostReceipt(ctx context.Context, input ledger.ReceiptInput) ([]ledger.Movement, error)
	Reverse(ctx context.Context, refModule, refID string, actorID int64) ([]ledger.Movement, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates item entry flows.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
}

// NewService constructs entries service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerPort, audit: audit}
}

// CreateInput describes creation payload.
type CreateInput struct {
	Number      string
	SupplierID  *int64
	WarehouseID int64
	Note        string
	ActorID     int64
	Lines       []LineInput
}

// LineInput describes one received line.
type LineInput struct {
	ItemID   int64
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

// Create persists the entry and posts it to the ledger in one go. Entries
// have no draft stage: a delivery that was keyed in has already happened.
// The ledger call carries the document ref, so a retried create cannot post
// the same movements twice.
func (s *Service) Create(ctx context.Context, input CreateInput) (Entry, error) {
	if len(input.Lines) == 0 {
		return Entry{}, ErrNoLines
	}
	if input.WarehouseID == 0 {
		return Entry{}, fmt.Errorf("entries: warehouse required")
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Qty.Sign() <= 0 {
			return Entry{}, ledger.ErrInvalidQuantity
		}
		if line.UnitCost.Sign() < 0 {
			return Entry{}, ledger.ErrInvalidUnitCost
		}
	}
	if input.Number == "" {
		input.Number = generateNumber("ENT")
	}

	now := time.Now().UTC()
	entry := Entry{
		Number:      input.Number,
		Ref:         uuid.NewString(),
		SupplierID:  input.SupplierID,
		WarehouseID: input.WarehouseID,
		Status:      StatusPosted,
		Note:        input.Note,
		CreatedBy:   input.ActorID,
		PostedAt:    now,
	}
	lines := make([]Line, 0, len(input.Lines))
	receiptLines := make([]ledger.ReceiptLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		lines = append(lines, Line{ItemID: line.ItemID, Qty: line.Qty, UnitCost: line.UnitCost})
		receiptLines = append(receiptLines, ledger.ReceiptLine{ItemID: line.ItemID, Qty: line.Qty, UnitCost: line.UnitCost})
	}

	created, err := s.repo.Create(ctx, entry, lines)
	if err != nil {
		return Entry{}, err
	}
	_, err = s.ledger.PostReceipt(ctx, ledger.ReceiptInput{
		WarehouseID: input.WarehouseID,
		RefModule:   RefModule,
		RefID:       created.Ref,
		ActorID:     input.ActorID,
		Note:        input.Note,
		Lines:       receiptLines,
	})
	if err != nil {
		// The header exists without movements; flag it rather than hiding it.
		_ = s.repo.SetStatus(ctx, created.ID, StatusCancelled)
		return Entry{}, err
	}
	s.recordAudit(ctx, input.ActorID, "entries:create", created)
	return created, nil
}

// Get returns one entry with lines.
func (s *Service) Get(ctx context.Context, id int64) (Entry, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns entries matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Entry, int, error) {
	return s.repo.List(ctx, filters)
}

// Cancel reverses the entry's ledger movements and marks it cancelled.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) error {
	entry, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status != StatusPosted {
		return ErrNotCancelable
	}
	if _, err := s.ledger.Reverse(ctx, RefModule, entry.Ref, actorID); err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, id, StatusCancelled); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "entries:cancel", entry)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entry Entry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "item_entry",
		EntityID: entry.Ref,
		Meta:     map[string]any{"number": entry.Number, "warehouse_id": entry.WarehouseID},
	})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
