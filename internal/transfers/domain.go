// Package transfers implements stock transfer documents between warehouses.
// A transfer posts paired TRANSFER_OUT and TRANSFER_IN movements through the
// inventory ledger and completes synchronously.
package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bodega-erp/bodega-erp/internal/shared"
)

// Transfer statuses.
const (
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// RefModule tags ledger movements written by this package.
const RefModule = "TRANSFER"

var (
	ErrNoLines       = errors.New("transfers: minimal 1 line")
	ErrNotCancelable = fmt.Errorf("transfers: only completed transfers can be cancelled: %w", shared.ErrInvalidState)
)

// Transfer is a transfer document header.
type Transfer struct {
	ID             int64     `json:"id"`
	Number         string    `json:"number"`
	Ref            string    `json:"ref"`
	SrcWarehouseID int64     `json:"src_warehouse_id"`
	DstWarehouseID int64     `json:"dst_warehouse_id"`
	Status         string    `json:"status"`
	Note           string    `json:"note"`
	CreatedBy      int64     `json:"created_by"`
	PostedAt       time.Time `json:"posted_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Line is one moved item.
type Line struct {
	ID         int64           `json:"id"`
	TransferID int64           `json:"transfer_id"`
	ItemID     int64           `json:"item_id"`
	Qty        decimal.Decimal `json:"qty"`
}

// ListFilters narrows transfer listings.
type ListFilters struct {
	WarehouseID int64
	Status      string
	Page        int
	Limit       int
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, transfer Transfer, lines []Line) (Transfer, error)
	Get(ctx context.Context, id int64) (Transfer, []Line, error)
	List(ctx context.Context, filters ListFilters) ([]Transfer, int, error)
	SetStatus(ctx context.Context, id int64, status string) error
}
