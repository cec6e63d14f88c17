package withdrawals

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
	PostWithdrawal(ctx context.Context, input ledger.WithdrawalInput) ([]ledger.Movement, error)
	Reverse(ctx context.Context, refModule, refID string, actorID int64) ([]ledger.Movement, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates withdrawal flows.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
}

// NewService constructs withdrawals service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerPort, audit: audit}
}

// CreateInput describes creation payload.
type CreateInput struct {
	Number      string
	WarehouseID int64
	Reason      string
	ActorID     int64
	Lines       []LineInput
}

// LineInput describes one requested line.
type LineInput struct {
	ItemID int64
	Qty    decimal.Decimal
}

// Create records a pending withdrawal request. No stock moves yet.
func (s *Service) Create(ctx context.Context, input CreateInput) (Withdrawal, error) {
	if len(input.Lines) == 0 {
		return Withdrawal{}, ErrNoLines
	}
	if input.WarehouseID == 0 {
		return Withdrawal{}, fmt.Errorf("withdrawals: warehouse required")
	}
	lines := make([]Line, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Qty.Sign() <= 0 {
			return Withdrawal{}, ledger.ErrInvalidQuantity
		}
		lines = append(lines, Line{ItemID: line.ItemID, Qty: line.Qty})
	}
	if input.Number == "" {
		input.Number = generateNumber("WDR")
	}

	withdrawal := Withdrawal{
		Number:      input.Number,
		Ref:         uuid.NewString(),
		WarehouseID: input.WarehouseID,
		Status:      StatusPending,
		Reason:      input.Reason,
		RequestedBy: input.ActorID,
	}
	created, err := s.repo.Create(ctx, withdrawal, lines)
	if err != nil {
		return Withdrawal{}, err
	}
	s.recordAudit(ctx, input.ActorID, "withdrawals:create", created)
	return created, nil
}

// Get returns one withdrawal with lines.
func (s *Service) Get(ctx context.Context, id int64) (Withdrawal, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns withdrawals matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Withdrawal, int, error) {
	return s.repo.List(ctx, filters)
}

// Complete posts the withdrawal through the ledger and flips the document to
// completed. Availability is checked inside the ledger transaction; an
// insufficient line rejects the whole document and leaves it pending.
func (s *Service) Complete(ctx context.Context, id int64, actorID int64) (Withdrawal, error) {
	withdrawal, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return Withdrawal{}, err
	}
	if withdrawal.Status != StatusPending {
		return Withdrawal{}, ErrNotPending
	}

	ledgerLines := make([]ledger.WithdrawalLine, 0, len(lines))
	for _, line := range lines {
		ledgerLines = append(ledgerLines, ledger.WithdrawalLine{ItemID: line.ItemID, Qty: line.Qty})
	}
	_, err = s.ledger.PostWithdrawal(ctx, ledger.WithdrawalInput{
		WarehouseID: withdrawal.WarehouseID,
		RefModule:   RefModule,
		RefID:       withdrawal.Ref,
		ActorID:     actorID,
		Note:        withdrawal.Reason,
		Lines:       ledgerLines,
	})
	if err != nil {
		return Withdrawal{}, err
	}

	now := time.Now().UTC()
	if err := s.repo.MarkCompleted(ctx, id, actorID, now); err != nil {
		return Withdrawal{}, err
	}
	withdrawal.Status = StatusCompleted
	withdrawal.CompletedBy = &actorID
	withdrawal.CompletedAt = &now
	s.recordAudit(ctx, actorID, "withdrawals:complete", withdrawal)
	return withdrawal, nil
}

// Cancel voids the document. A pending withdrawal is just flipped; a
// completed one has its ledger movements reversed first, which returns the
// stock at the cost it was issued at.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) error {
	withdrawal, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	switch withdrawal.Status {
	case StatusPending:
	case StatusCompleted:
		if _, err := s.ledger.Reverse(ctx, RefModule, withdrawal.Ref, actorID); err != nil {
			return err
		}
	default:
		return ErrNotRevocable
	}
	// Guarded on the status read above so a complete racing in between is
	// not silently overwritten with CANCELLED while its movements stand.
	if err := s.repo.SetStatus(ctx, id, withdrawal.Status, StatusCancelled); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "withdrawals:cancel", withdrawal)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, withdrawal Withdrawal) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "withdrawal",
		EntityID: withdrawal.Ref,
		Meta:     map[string]any{"number": withdrawal.Number, "warehouse_id": withdrawal.WarehouseID},
	})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
