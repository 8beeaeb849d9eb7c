package postgres

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
)

var columns = []string{
	"seq", "id", "owner_id", "company_id", "scope_key", "invoice_number", "status",
	"client_name", "description", "currency", "amount", "issue_date", "request_key",
	"created_at", "updated_at", "approved_at", "issued_at", "deleted_at",
}

type InvoiceRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    *InvoiceRepository
	context context.Context
	now     time.Time
}

func (s *InvoiceRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(s.T(), err)
	s.mock = mock
	s.repo = NewInvoiceRepository(mock, zap.NewNop())
	s.context = context.Background()
	s.now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
}

func (s *InvoiceRepoTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.mock.Close()
}

func TestInvoiceRepoTestSuite(t *testing.T) {
	suite.Run(t, new(InvoiceRepoTestSuite))
}

func (s *InvoiceRepoTestSuite) newInvoice() *entity.Invoice {
	return &entity.Invoice{
		OwnerID:       uuid.New(),
		ScopeKey:      "owner:a",
		InvoiceNumber: "2025-0004",
		Status:        entity.StatusDraft,
		ClientName:    "ACME",
		Currency:      "EUR",
		Amount:        decimal.RequireFromString("99.90"),
		CreatedAt:     s.now,
		UpdatedAt:     s.now,
	}
}

func (s *InvoiceRepoTestSuite) expectInsert() *pgxmock.ExpectedQuery {
	args := make([]any, 17)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return s.mock.ExpectQuery(`INSERT INTO invoices \(.+\) VALUES \(\$1, .+, \$17\) RETURNING seq`).WithArgs(args...)
}

func (s *InvoiceRepoTestSuite) TestInsert_Success() {
	inv := s.newInvoice()
	s.expectInsert().WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	err := s.repo.Insert(s.context, inv)

	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, inv.ID)
	s.Equal(int64(42), inv.Seq)
}

func (s *InvoiceRepoTestSuite) TestInsert_DuplicateNumber() {
	s.expectInsert().WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_invoices_scope_number"})

	err := s.repo.Insert(s.context, s.newInvoice())
	s.ErrorIs(err, port.ErrDuplicateNumber)
}

func (s *InvoiceRepoTestSuite) TestInsert_DuplicateRequest() {
	s.expectInsert().WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_invoices_scope_request"})

	err := s.repo.Insert(s.context, s.newInvoice())
	s.ErrorIs(err, port.ErrDuplicateRequest)
}

func (s *InvoiceRepoTestSuite) TestInsert_Unavailable() {
	s.expectInsert().WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	err := s.repo.Insert(s.context, s.newInvoice())
	s.ErrorIs(err, port.ErrStoreUnavailable)
}

func (s *InvoiceRepoTestSuite) TestLatestNumber() {
	s.mock.ExpectQuery(`SELECT invoice_number FROM invoices WHERE deleted_at IS NULL AND scope_key = \$1 AND invoice_number ~ \$2 ORDER BY CAST\(substr\(invoice_number, \$3\) AS BIGINT\) DESC LIMIT 1`).
		WithArgs("owner:a", `^2025-[0-9]+$`, 6).
		WillReturnRows(pgxmock.NewRows([]string{"invoice_number"}).AddRow("2025-0010"))

	number, found, err := s.repo.LatestNumber(s.context, "owner:a", "2025")

	s.Require().NoError(err)
	s.True(found)
	s.Equal("2025-0010", number)
}

func (s *InvoiceRepoTestSuite) TestLatestNumber_EmptyScope() {
	s.mock.ExpectQuery(`SELECT invoice_number FROM invoices WHERE deleted_at IS NULL`).
		WithArgs("owner:a", `^2025-EU-[0-9]+$`, 9).
		WillReturnRows(pgxmock.NewRows([]string{"invoice_number"}))

	_, found, err := s.repo.LatestNumber(s.context, "owner:a", "2025-EU")

	s.Require().NoError(err)
	s.False(found)
}

func (s *InvoiceRepoTestSuite) TestGet() {
	id := uuid.New()
	owner := uuid.New()
	company := uuid.New()
	approvedAt := s.now.Add(time.Hour)

	s.mock.ExpectQuery(`(?s)SELECT seq, id, .+ FROM invoices WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			int64(7), id, owner, &company, "company:"+company.String(), "2025-0007", "approved",
			"ACME", "", "EUR", "120.50", nil, nil,
			s.now, approvedAt, &approvedAt, nil, nil,
		))

	inv, err := s.repo.Get(s.context, id)

	s.Require().NoError(err)
	s.Require().NotNil(inv)
	s.Equal(int64(7), inv.Seq)
	s.Equal(owner, inv.OwnerID)
	s.Require().NotNil(inv.CompanyID)
	s.Equal(company, *inv.CompanyID)
	s.Equal(entity.StatusApproved, inv.Status)
	s.True(inv.Amount.Equal(decimal.RequireFromString("120.50")))
	s.Require().NotNil(inv.ApprovedAt)
	s.True(inv.ApprovedAt.Equal(approvedAt))
	s.Nil(inv.IssuedAt)
	s.Nil(inv.DeletedAt)
}

func (s *InvoiceRepoTestSuite) TestGet_NotFound() {
	id := uuid.New()
	s.mock.ExpectQuery(`FROM invoices WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(columns))

	inv, err := s.repo.Get(s.context, id)

	s.NoError(err)
	s.Nil(inv)
}

func (s *InvoiceRepoTestSuite) TestUpdateStatus() {
	id := uuid.New()
	at := s.now.Add(time.Hour)

	s.mock.ExpectExec(`UPDATE invoices SET status = \$1, updated_at = \$2, approved_at = COALESCE\(approved_at, \$3\), issued_at = COALESCE\(issued_at, \$4\) WHERE deleted_at IS NULL AND id = \$5 AND status = \$6`).
		WithArgs("approved", at, at, nil, id, "pending_approval").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.repo.UpdateStatus(s.context, port.StatusUpdate{ID: id, From: entity.StatusPendingApproval, To: entity.StatusApproved, At: at})

	s.Require().NoError(err)
	s.True(ok)
}

func (s *InvoiceRepoTestSuite) TestUpdateStatus_LostRace() {
	id := uuid.New()

	s.mock.ExpectExec(`UPDATE invoices SET status = \$1`).
		WithArgs("issued", s.now, nil, s.now, id, "approved").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.repo.UpdateStatus(s.context, port.StatusUpdate{ID: id, From: entity.StatusApproved, To: entity.StatusIssued, At: s.now})

	s.Require().NoError(err)
	s.False(ok)
}

func (s *InvoiceRepoTestSuite) TestMarkDeleted() {
	id := uuid.New()

	s.mock.ExpectExec(`UPDATE invoices SET deleted_at = \$1, updated_at = \$2 WHERE deleted_at IS NULL AND id = \$3 AND status = \$4`).
		WithArgs(s.now, s.now, id, "draft").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.repo.MarkDeleted(s.context, id, entity.StatusDraft, s.now)

	s.Require().NoError(err)
	s.True(ok)
}

func (s *InvoiceRepoTestSuite) TestList() {
	s.mock.ExpectQuery(`(?s)SELECT .+ FROM invoices WHERE deleted_at IS NULL AND scope_key = \$1 AND status IN \(\$2, \$3\) AND seq < \$4 ORDER BY seq DESC LIMIT \$5`).
		WithArgs("owner:a", "draft", "pending_approval", int64(10), 2).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(int64(9), uuid.New(), uuid.New(), nil, "owner:a", "2025-0009", "draft",
				"", "", "EUR", "1", nil, nil, s.now, s.now, nil, nil, nil).
			AddRow(int64(8), uuid.New(), uuid.New(), nil, "owner:a", "2025-0008", "pending_approval",
				"", "", "EUR", "2", nil, nil, s.now, s.now, nil, nil, nil))

	invoices, err := s.repo.List(s.context, port.ListQuery{
		ScopeKey:  "owner:a",
		Statuses:  entity.PendingStatuses,
		BeforeSeq: 10,
		Limit:     2,
	})

	s.Require().NoError(err)
	s.Require().Len(invoices, 2)
	s.Equal("2025-0009", invoices[0].InvoiceNumber)
	s.Equal(entity.StatusPendingApproval, invoices[1].Status)
	s.Nil(invoices[1].CompanyID)
}

func (s *InvoiceRepoTestSuite) TestList_Unavailable() {
	s.mock.ExpectQuery(`FROM invoices`).
		WithArgs("owner:a", "approved", "issued", "cancelled").
		WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")})

	_, err := s.repo.List(s.context, port.ListQuery{ScopeKey: "owner:a", Statuses: entity.HistoryStatuses})
	s.ErrorIs(err, port.ErrStoreUnavailable)
}

func TestMapError(t *testing.T) {
	plain := errors.New("syntax error")
	assert.Same(t, plain, mapError(plain))

	otherUnique := &pgconn.PgError{Code: "23505", ConstraintName: "invoices_id_key"}
	assert.Equal(t, error(otherUnique), mapError(otherUnique))

	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "57P01"}), port.ErrStoreUnavailable)
	assert.ErrorIs(t, mapError(context.DeadlineExceeded), port.ErrStoreUnavailable)
}
