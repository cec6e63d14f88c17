// Package withdrawals implements stock withdrawal documents. A withdrawal
// is requested first and posts WITHDRAWAL movements through the inventory
// ledger only when completed, so availability is checked at hand-out time.
package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bodega-erp/bodega-erp/internal/shared"
)

// Withdrawal statuses.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// RefModule tags ledger movements written by this package.
const RefModule = "WITHDRAWAL"

var (
	ErrNoLines      = errors.New("withdrawals: minimal 1 line")
	ErrNotPending   = fmt.Errorf("withdrawals: document is not pending: %w", shared.ErrInvalidState)
	ErrNotRevocable = fmt.Errorf("withdrawals: document cannot be cancelled: %w", shared.ErrInvalidState)
)

// Withdrawal is a withdrawal document header.
type Withdrawal struct {
	ID          int64      `json:"id"`
	Number      string     `json:"number"`
	Ref         string     `json:"ref"`
	WarehouseID int64      `json:"warehouse_id"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason"`
	RequestedBy int64      `json:"requested_by"`
	CompletedBy *int64     `json:"completed_by"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Line is one withdrawn item.
type Line struct {
	ID           int64           `json:"id"`
	WithdrawalID int64           `json:"withdrawal_id"`
	ItemID       int64           `json:"item_id"`
	Qty          decimal.Decimal `json:"qty"`
}

// ListFilters narrows withdrawal listings.
type ListFilters struct {
	WarehouseID int64
	Status      string
	Page        int
	Limit       int
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, withdrawal Withdrawal, lines []Line) (Withdrawal, error)
	Get(ctx context.Context, id int64) (Withdrawal, []Line, error)
	List(ctx context.Context, filters ListFilters) ([]Withdrawal, int, error)
	SetStatus(ctx context.Context, id int64, from, to string) error
	MarkCompleted(ctx context.Context, id int64, actorID int64, at time.Time) error
}
