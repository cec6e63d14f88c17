package transfers

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bodega-erp/bodega-erp/internal/ledger"
	"github.com/bodega-erp/bodega-erp/internal/platform/httpx"
)

type memoryRepo struct {
	transfers map[int64]Transfer
	lines     map[int64][]Line
	nextID    int64
	failing   bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{transfers: map[int64]Transfer{}, lines: map[int64][]Line{}}
}

func (m *memoryRepo) Create(ctx context.Context, transfer Transfer, lines []Line) (Transfer, error) {
	if m.failing {
		return Transfer{}, httpx.ErrConflict
	}
	m.nextID++
	transfer.ID = m.nextID
	m.transfers[transfer.ID] = transfer
	m.lines[transfer.ID] = lines
	return transfer, nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Transfer, []Line, error) {
	transfer, ok := m.transfers[id]
	if !ok {
		return Transfer{}, nil, httpx.ErrNotFound
	}
	return transfer, m.lines[id], nil
}

func (m *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Transfer, int, error) {
	var out []Transfer
	for _, tr := range m.transfers {
		out = append(out, tr)
	}
	return out, len(out), nil
}

func (m *memoryRepo) SetStatus(ctx context.Context, id int64, status string) error {
	transfer, ok := m.transfers[id]
	if !ok {
		return httpx.ErrNotFound
	}
	transfer.Status = status
	m.transfers[id] = transfer
	return nil
}

type fakeLedger struct {
	posted      []ledger.TransferInput
	reversals   []string
	fail        error
	failReverse error
}

func (f *fakeLedger) PostTransfer(ctx context.Context, input ledger.TransferInput) ([]ledger.Movement, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.posted = append(f.posted, input)
	return []ledger.Movement{{RefID: input.RefID, Type: ledger.TypeTransferOut}, {RefID: input.RefID, Type: ledger.TypeTransferIn}}, nil
}

func (f *fakeLedger) Reverse(ctx context.Context, refModule, refID string, actorID int64) ([]ledger.Movement, error) {
	if f.failReverse != nil {
		return nil, f.failReverse
	}
	f.reversals = append(f.reversals, refID)
	return nil, nil
}

func validInput() CreateInput {
	return CreateInput{
		SrcWarehouseID: 1,
		DstWarehouseID: 2,
		ActorID:        3,
		Lines:          []LineInput{{ItemID: 1, Qty: decimal.NewFromInt(5)}},
	}
}

func TestCreateCompletesSynchronously(t *testing.T) {
	repo := newMemoryRepo()
	led := &fakeLedger{}
	svc := NewService(repo, led, nil)

	transfer, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, transfer.Status)
	require.Contains(t, transfer.Number, "TRF-")

	require.Len(t, led.posted, 1)
	require.Equal(t, RefModule, led.posted[0].RefModule)
	require.Equal(t, transfer.Ref, led.posted[0].RefID)
}

func TestCreateRejectsSameWarehouse(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeLedger{}, nil)
	input := validInput()
	input.DstWarehouseID = input.SrcWarehouseID
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, ledger.ErrSameWarehouse)
}

func TestCreateLedgerFailureWritesNothing(t *testing.T) {
	repo := newMemoryRepo()
	led := &fakeLedger{fail: &ledger.InsufficientStockError{ItemID: 1, WarehouseID: 1}}
	svc := NewService(repo, led, nil)

	_, err := svc.Create(context.Background(), validInput())
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.Empty(t, repo.transfers)
}

func TestCreateRepoFailureCompensates(t *testing.T) {
	repo := newMemoryRepo()
	repo.failing = true
	led := &fakeLedger{}
	svc := NewService(repo, led, nil)

	_, err := svc.Create(context.Background(), validInput())
	require.Error(t, err)
	require.Len(t, led.reversals, 1, "posted movements must be compensated")
}

func TestCreateFailedCompensationSurfaces(t *testing.T) {
	repo := newMemoryRepo()
	repo.failing = true
	led := &fakeLedger{failReverse: errors.New("ledger down")}
	svc := NewService(repo, led, nil)

	_, err := svc.Create(context.Background(), validInput())
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.ErrorContains(t, err, "compensating reversal")
	require.ErrorContains(t, err, "ledger down")
}

func TestCancel(t *testing.T) {
	repo := newMemoryRepo()
	led := &fakeLedger{}
	svc := NewService(repo, led, nil)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, transfer.ID, 3))
	require.Equal(t, []string{transfer.Ref}, led.reversals)

	got, _, err := svc.Get(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	require.ErrorIs(t, svc.Cancel(ctx, transfer.ID, 3), ErrNotCancelable)
}
