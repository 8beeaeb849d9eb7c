package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/application/scope"
	"github.com/garyjia/invoice-ledger/internal/application/service"
	"github.com/garyjia/invoice-ledger/internal/application/workflow"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	"github.com/garyjia/invoice-ledger/migrations"
	"github.com/garyjia/invoice-ledger/pkg/database"
	"github.com/garyjia/invoice-ledger/pkg/utils"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 8,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).Run(context.Background(), migrations.SQLite()))
	return db
}

var testNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestInvoice(scopeKey, number string) *entity.Invoice {
	return &entity.Invoice{
		OwnerID:       uuid.New(),
		ScopeKey:      scopeKey,
		InvoiceNumber: number,
		Status:        entity.StatusDraft,
		ClientName:    "ACME",
		Currency:      "EUR",
		Amount:        decimal.RequireFromString("99.90"),
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
}

func TestInvoiceRepository_InsertAndGet(t *testing.T) {
	repo := NewInvoiceRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()

	company := uuid.New()
	key := "req-1"
	issue := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	inv := newTestInvoice("company:"+company.String(), "2025-0001")
	inv.CompanyID = &company
	inv.RequestKey = &key
	inv.IssueDate = &issue

	require.NoError(t, repo.Insert(ctx, inv))
	assert.NotEqual(t, uuid.Nil, inv.ID)
	assert.Positive(t, inv.Seq)

	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, inv.Seq, got.Seq)
	assert.Equal(t, inv.OwnerID, got.OwnerID)
	require.NotNil(t, got.CompanyID)
	assert.Equal(t, company, *got.CompanyID)
	assert.Equal(t, "2025-0001", got.InvoiceNumber)
	assert.Equal(t, entity.StatusDraft, got.Status)
	assert.True(t, got.Amount.Equal(inv.Amount))
	require.NotNil(t, got.RequestKey)
	assert.Equal(t, key, *got.RequestKey)
	require.NotNil(t, got.IssueDate)
	assert.True(t, got.IssueDate.Equal(issue))
	assert.True(t, got.CreatedAt.Equal(testNow))
	assert.Nil(t, got.ApprovedAt)
	assert.Nil(t, got.DeletedAt)

	missing, err := repo.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInvoiceRepository_UniquenessAmongActiveRows(t *testing.T) {
	repo := NewInvoiceRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()

	first := newTestInvoice("owner:a", "2025-0001")
	require.NoError(t, repo.Insert(ctx, first))

	err := repo.Insert(ctx, newTestInvoice("owner:a", "2025-0001"))
	assert.ErrorIs(t, err, port.ErrDuplicateNumber)

	// Another scope may hold the same number
	require.NoError(t, repo.Insert(ctx, newTestInvoice("owner:b", "2025-0001")))

	ok, err := repo.MarkDeleted(ctx, first.ID, entity.StatusDraft, testNow.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	reused := newTestInvoice("owner:a", "2025-0001")
	require.NoError(t, repo.Insert(ctx, reused))
	assert.NotEqual(t, first.ID, reused.ID)
}

func TestInvoiceRepository_DuplicateRequestKey(t *testing.T) {
	repo := NewInvoiceRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()
	key := "req-42"

	first := newTestInvoice("owner:a", "2025-0001")
	first.RequestKey = &key
	require.NoError(t, repo.Insert(ctx, first))

	second := newTestInvoice("owner:a", "2025-0002")
	second.RequestKey = &key
	assert.ErrorIs(t, repo.Insert(ctx, second), port.ErrDuplicateRequest)

	found, err := repo.FindByRequestKey(ctx, "owner:a", key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	none, err := repo.FindByRequestKey(ctx, "owner:b", key)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestInvoiceRepository_LatestNumber(t *testing.T) {
	repo := NewInvoiceRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()

	_, found, err := repo.LatestNumber(ctx, "owner:a", "2025")
	require.NoError(t, err)
	assert.False(t, found)

	for _, n := range []string{"2025-0009", "2025-10000", "2025-0010", "2025-EU-0099", "2024-0500", "2025-12a"} {
		require.NoError(t, repo.Insert(ctx, newTestInvoice("owner:a", n)))
	}
	require.NoError(t, repo.Insert(ctx, newTestInvoice("owner:b", "2025-20000")))

	number, found, err := repo.LatestNumber(ctx, "owner:a", "2025")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2025-10000", number)

	number, found, err = repo.LatestNumber(ctx, "owner:a", "2025-EU")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2025-EU-0099", number)
}

func TestInvoiceRepository_LatestNumberIgnoresDeleted(t *testing.T) {
	repo := NewInvoiceRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()

	var last *entity.Invoice
	for i := 1; i <= 3; i++ {
		last = newTestInvoice("owner:a", fmt.Sprintf("2025-%04d", i))
		require.NoError(t, repo.Insert(ctx, last))
	}
	_, err := repo.MarkDeleted(ctx, last.ID, entity.StatusDraft, testNow)
	require.NoError(t, err)

	number, _, err := repo.LatestNumber(ctx, "owner:a", "2025")
	require.NoError(t, err)
	assert.Equal(t, "2025-0002", number)
}

func TestInvoiceRepository_UpdateStatus(t *testing.T) {
	repo := NewInvoiceRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()

	inv := newTestInvoice("owner:a", "2025-0001")
	inv.Status = entity.StatusPendingApproval
	require.NoError(t, repo.Insert(ctx, inv))

	approvedAt := testNow.Add(time.Hour)
	ok, err := repo.UpdateStatus(ctx, port.StatusUpdate{ID: inv.ID, From: entity.StatusPendingApproval, To: entity.StatusApproved, At: approvedAt})
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale From loses the compare-and-set
	ok, err = repo.UpdateStatus(ctx, port.StatusUpdate{ID: inv.ID, From: entity.StatusPendingApproval, To: entity.StatusApproved, At: approvedAt.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, ok)

	issuedAt := testNow.Add(2 * time.Hour)
	ok, err = repo.UpdateStatus(ctx, port.StatusUpdate{ID: inv.ID, From: entity.StatusApproved, To: entity.StatusIssued, At: issuedAt})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusIssued, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(approvedAt))
	require.NotNil(t, got.IssuedAt)
	assert.True(t, got.IssuedAt.Equal(issuedAt))
	assert.True(t, got.UpdatedAt.Equal(issuedAt))
}

func TestInvoiceRepository_DeletedRowsAreFrozen(t *testing.T) {
	repo := NewInvoiceRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()

	inv := newTestInvoice("owner:a", "2025-0001")
	require.NoError(t, repo.Insert(ctx, inv))

	ok, err := repo.MarkDeleted(ctx, inv.ID, entity.StatusPendingApproval, testNow)
	require.NoError(t, err)
	assert.False(t, ok, "status mismatch")

	ok, err = repo.MarkDeleted(ctx, inv.ID, entity.StatusDraft, testNow)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkDeleted(ctx, inv.ID, entity.StatusDraft, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.UpdateStatus(ctx, port.StatusUpdate{ID: inv.ID, From: entity.StatusDraft, To: entity.StatusPendingApproval, At: testNow})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.DeletedAt.Equal(testNow))
	assert.Equal(t, entity.StatusDraft, got.Status)
}

func TestInvoiceRepository_List(t *testing.T) {
	repo := NewInvoiceRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()

	statuses := []entity.InvoiceStatus{
		entity.StatusDraft, entity.StatusApproved, entity.StatusPendingApproval,
		entity.StatusCancelled, entity.StatusDraft, entity.StatusIssued,
	}
	var ids []uuid.UUID
	for i, st := range statuses {
		inv := newTestInvoice("owner:a", fmt.Sprintf("2025-%04d", i+1))
		inv.Status = st
		require.NoError(t, repo.Insert(ctx, inv))
		ids = append(ids, inv.ID)
	}
	require.NoError(t, repo.Insert(ctx, newTestInvoice("owner:b", "2025-0001")))
	_, err := repo.MarkDeleted(ctx, ids[4], entity.StatusDraft, testNow)
	require.NoError(t, err)

	pending, err := repo.List(ctx, port.ListQuery{ScopeKey: "owner:a", Statuses: entity.PendingStatuses})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "2025-0003", pending[0].InvoiceNumber)
	assert.Equal(t, "2025-0001", pending[1].InvoiceNumber)

	page, err := repo.List(ctx, port.ListQuery{ScopeKey: "owner:a", Statuses: entity.HistoryStatuses, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "2025-0006", page[0].InvoiceNumber)
	assert.Equal(t, "2025-0004", page[1].InvoiceNumber)

	rest, err := repo.List(ctx, port.ListQuery{ScopeKey: "owner:a", Statuses: entity.HistoryStatuses, BeforeSeq: page[1].Seq, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "2025-0002", rest[0].InvoiceNumber)
}

func TestInvoiceRepository_ConcurrentAllocation(t *testing.T) {
	const n = 8
	repo := NewInvoiceRepository(setupTestDB(t), zap.NewNop())
	svc := service.NewInvoiceService(repo, workflow.NewEngine(), service.Config{
		MaxAttempts:  n,
		StoreRetries: 3,
		Backoff:      5 * time.Millisecond,
	}, utils.NewKVLogger(zap.NewNop()))

	owner := uuid.New()
	sc := scope.Scope{Key: scope.OwnerKey(owner), Prefix: "2025", PadWidth: 4, OwnerID: owner}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := svc.AllocateAndCreate(context.Background(), sc, entity.InvoicePayload{Currency: "EUR", Amount: decimal.NewFromInt(1)})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, inv.InvoiceNumber)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(numbers)
	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("2025-%04d", i+1)
	}
	assert.Equal(t, want, numbers)
}
