// Package entries implements item entry documents: recorded deliveries that
// bring stock into a warehouse. Posting an entry writes RECEIPT movements
// through the inventory ledger.
package entries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bodega-erp/bodega-erp/internal/shared"
)

// Entry statuses.
const (
	StatusPosted    = "POSTED"
	StatusCancelled = "CANCELLED"
)

// RefModule tags ledger movements written by this package.
const RefModule = "ENTRY"

var (
	ErrNoLines       = errors.New("entries: minimal 1 line")
	ErrNotCancelable = fmt.Errorf("entries: only posted entries can be cancelled: %w", shared.ErrInvalidState)
)

// Entry is an item entry header. Ref is the uuid the ledger movements carry,
// so the document and its movements can always be joined.
type Entry struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	Ref         string    `json:"ref"`
	SupplierID  *int64    `json:"supplier_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Status      string    `json:"status"`
	Note        string    `json:"note"`
	CreatedBy   int64     `json:"created_by"`
	PostedAt    time.Time `json:"posted_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Line is one received item.
type Line struct {
	ID       int64           `json:"id"`
	EntryID  int64           `json:"entry_id"`
	ItemID   int64           `json:"item_id"`
	Qty      decimal.Decimal `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// ListFilters narrows entry listings.
type ListFilters struct {
	WarehouseID int64
	SupplierID  int64
	Status      string
	Page        int
	Limit       int
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, entry Entry, lines []Line) (Entry, error)
	Get(ctx context.Context, id int64) (Entry, []Line, error)
	List(ctx context.Context, filters ListFilters) ([]Entry, int, error)
	SetStatus(ctx context.Context, id int64, status string) error
}
