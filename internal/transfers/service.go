package transfers

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
	PostTransfer(ctx context.Context, input ledger.TransferInput) ([]ledger.Movement, error)
	Reverse(ctx context.Context, refModule, refID string, actorID int64) ([]ledger.Movement, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates transfer flows.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
}

// NewService constructs transfers service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerPort, audit: audit}
}

// CreateInput describes creation payload.
type CreateInput struct {
	Number         string
	SrcWarehouseID int64
	DstWarehouseID int64
	Note           string
	ActorID        int64
	Lines          []LineInput
}

// LineInput describes one moved line.
type LineInput struct {
	ItemID int64
	Qty    decimal.Decimal
}

// Create posts the transfer through the ledger and persists the document as
// completed. The ledger validates availability and rejects the whole
// document on any shortfall, so the header is only written after the
// movements succeeded.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	if len(input.Lines) == 0 {
		return Transfer{}, ErrNoLines
	}
	if input.SrcWarehouseID == input.DstWarehouseID {
		return Transfer{}, ledger.ErrSameWarehouse
	}
	if input.SrcWarehouseID == 0 || input.DstWarehouseID == 0 {
		return Transfer{}, fmt.Errorf("transfers: warehouses required")
	}
	if input.Number == "" {
		input.Number = generateNumber("TRF")
	}

	ref := uuid.NewString()
	transferLines := make([]ledger.TransferLine, 0, len(input.Lines))
	lines := make([]Line, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Qty.Sign() <= 0 {
			return Transfer{}, ledger.ErrInvalidQuantity
		}
		transferLines = append(transferLines, ledger.TransferLine{ItemID: line.ItemID, Qty: line.Qty})
		lines = append(lines, Line{ItemID: line.ItemID, Qty: line.Qty})
	}

	_, err := s.ledger.PostTransfer(ctx, ledger.TransferInput{
		SrcWarehouseID: input.SrcWarehouseID,
		DstWarehouseID: input.DstWarehouseID,
		RefModule:      RefModule,
		RefID:          ref,
		ActorID:        input.ActorID,
		Note:           input.Note,
		Lines:          transferLines,
	})
	if err != nil {
		return Transfer{}, err
	}

	transfer := Transfer{
		Number:         input.Number,
		Ref:            ref,
		SrcWarehouseID: input.SrcWarehouseID,
		DstWarehouseID: input.DstWarehouseID,
		Status:         StatusCompleted,
		Note:           input.Note,
		CreatedBy:      input.ActorID,
		PostedAt:       time.Now().UTC(),
	}
	created, err := s.repo.Create(ctx, transfer, lines)
	if err != nil {
		// Movements exist without a header; compensate in the ledger. If
		// the reversal fails too the stock is off until someone reverses
		// ref by hand, so both failures go back to the caller.
		if _, revErr := s.ledger.Reverse(ctx, RefModule, ref, input.ActorID); revErr != nil {
			return Transfer{}, fmt.Errorf("store transfer: %w (compensating reversal of %s also failed: %v)", err, ref, revErr)
		}
		return Transfer{}, err
	}
	s.recordAudit(ctx, input.ActorID, "transfers:create", created)
	return created, nil
}

// Get returns one transfer with lines.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns transfers matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Transfer, int, error) {
	return s.repo.List(ctx, filters)
}

// Cancel reverses the transfer's movements and marks it cancelled. The
// reversal issues the received stock back out of the destination, so it
// fails if that stock has already been consumed.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) error {
	transfer, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if transfer.Status != StatusCompleted {
		return ErrNotCancelable
	}
	if _, err := s.ledger.Reverse(ctx, RefModule, transfer.Ref, actorID); err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, id, StatusCancelled); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "transfers:cancel", transfer)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, transfer Transfer) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transfer",
		EntityID: transfer.Ref,
		Meta: map[string]any{
			"number":           transfer.Number,
			"src_warehouse_id": transfer.SrcWarehouseID,
			"dst_warehouse_id": transfer.DstWarehouseID,
		},
	})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
