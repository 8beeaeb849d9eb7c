package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	"github.com/garyjia/invoice-ledger/internal/infrastructure/persistence/visibility"
	"github.com/garyjia/invoice-ledger/pkg/database"
)

const invoiceColumns = `seq, id, owner_id, company_id, scope_key, invoice_number, status,
	client_name, description, currency, amount, issue_date, request_key,
	created_at, updated_at, approved_at, issued_at, deleted_at`

// InvoiceRepository implements port.InvoiceRepository on sqlite
type InvoiceRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *database.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Insert creates a new invoice. The partial unique indexes reject a number or request key
// already held by an active invoice in the scope.
func (r *InvoiceRepository) Insert(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}

	query := `
		INSERT INTO invoices (
			id, owner_id, company_id, scope_key, invoice_number, status,
			client_name, description, currency, amount, issue_date, request_key,
			created_at, updated_at, approved_at, issued_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		inv.ID.String(),
		inv.OwnerID.String(),
		nullUUID(inv.CompanyID),
		inv.ScopeKey,
		inv.InvoiceNumber,
		string(inv.Status),
		inv.ClientName,
		inv.Description,
		inv.Currency,
		inv.Amount.String(),
		nullTime(inv.IssueDate),
		nullString(inv.RequestKey),
		inv.CreatedAt.UTC(),
		inv.UpdatedAt.UTC(),
		nullTime(inv.ApprovedAt),
		nullTime(inv.IssuedAt),
		nullTime(inv.DeletedAt),
	)
	if err != nil {
		err = mapError(err)
		if !errors.Is(err, port.ErrDuplicateNumber) && !errors.Is(err, port.ErrDuplicateRequest) {
			r.logger.Error("Failed to insert invoice",
				zap.String("invoice_number", inv.InvoiceNumber),
				zap.String("scope", inv.ScopeKey),
				zap.Error(err))
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	inv.Seq = seq
	return nil
}

// LatestNumber orders by the numeric suffix so 2025-10000 sorts above 2025-9999
func (r *InvoiceRepository) LatestNumber(ctx context.Context, scopeKey, prefix string) (string, bool, error) {
	q := visibility.Active(visibility.SQLite).
		Where("scope_key = ?", scopeKey).
		NumberInSeries(prefix)
	suffix := q.Bind(visibility.SuffixStart(prefix))

	query := "SELECT invoice_number FROM invoices" + q.Clause() +
		" ORDER BY CAST(substr(invoice_number, " + suffix + ") AS INTEGER) DESC LIMIT 1"

	var number string
	err := r.db.QueryRowContext(ctx, query, q.Args()...).Scan(&number)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read latest invoice number: %w", mapError(err))
	}
	return number, true, nil
}

func (r *InvoiceRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	query := "SELECT " + invoiceColumns + " FROM invoices WHERE id = ?"

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", mapError(err))
	}
	return inv, nil
}

func (r *InvoiceRepository) FindByRequestKey(ctx context.Context, scopeKey, requestKey string) (*entity.Invoice, error) {
	q := visibility.Active(visibility.SQLite).
		Where("scope_key = ?", scopeKey).
		Where("request_key = ?", requestKey)

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices"+q.Clause(), q.Args()...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice by request key: %w", mapError(err))
	}
	return inv, nil
}

// UpdateStatus keeps an existing approved_at or issued_at
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, u port.StatusUpdate) (bool, error) {
	at := u.At.UTC()

	q := visibility.Active(visibility.SQLite)
	set := fmt.Sprintf("status = %s, updated_at = %s, approved_at = COALESCE(approved_at, %s), issued_at = COALESCE(issued_at, %s)",
		q.Bind(string(u.To)),
		q.Bind(at),
		q.Bind(timeIf(u.To == entity.StatusApproved, at)),
		q.Bind(timeIf(u.To == entity.StatusIssued, at)),
	)
	q.Where("id = ?", u.ID.String()).Where("status = ?", string(u.From))

	return r.exec(ctx, "UPDATE invoices SET "+set+q.Clause(), q.Args(), "update invoice status")
}

func (r *InvoiceRepository) MarkDeleted(ctx context.Context, id uuid.UUID, from entity.InvoiceStatus, at time.Time) (bool, error) {
	at = at.UTC()

	q := visibility.Active(visibility.SQLite)
	set := fmt.Sprintf("deleted_at = %s, updated_at = %s", q.Bind(at), q.Bind(at))
	q.Where("id = ?", id.String()).Where("status = ?", string(from))

	return r.exec(ctx, "UPDATE invoices SET "+set+q.Clause(), q.Args(), "delete invoice")
}

func (r *InvoiceRepository) List(ctx context.Context, lq port.ListQuery) ([]*entity.Invoice, error) {
	q := visibility.Active(visibility.SQLite).
		Where("scope_key = ?", lq.ScopeKey).
		StatusIn(lq.Statuses)
	if lq.BeforeSeq > 0 {
		q.Where("seq < ?", lq.BeforeSeq)
	}

	query := "SELECT " + invoiceColumns + " FROM invoices" + q.Clause() + " ORDER BY seq DESC"
	if lq.Limit > 0 {
		query += " LIMIT " + q.Bind(lq.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, q.Args()...)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.String("scope", lq.ScopeKey), zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", mapError(err))
	}
	defer rows.Close()

	var invoices []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", mapError(err))
	}

	return invoices, nil
}

func (r *InvoiceRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *InvoiceRepository) exec(ctx context.Context, query string, args []any, op string) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return false, fmt.Errorf("failed to %s: %w", op, mapError(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var (
		inv        entity.Invoice
		companyID  uuid.NullUUID
		status     string
		requestKey sql.NullString
		issueDate  sql.NullTime
		approvedAt sql.NullTime
		issuedAt   sql.NullTime
		deletedAt  sql.NullTime
	)

	err := row.Scan(
		&inv.Seq,
		&inv.ID,
		&inv.OwnerID,
		&companyID,
		&inv.ScopeKey,
		&inv.InvoiceNumber,
		&status,
		&inv.ClientName,
		&inv.Description,
		&inv.Currency,
		&inv.Amount,
		&issueDate,
		&requestKey,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&approvedAt,
		&issuedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = entity.InvoiceStatus(status)
	if companyID.Valid {
		inv.CompanyID = &companyID.UUID
	}
	if requestKey.Valid {
		inv.RequestKey = &requestKey.String
	}
	inv.IssueDate = timePtr(issueDate)
	inv.ApprovedAt = timePtr(approvedAt)
	inv.IssuedAt = timePtr(issuedAt)
	inv.DeletedAt = timePtr(deletedAt)

	return &inv, nil
}

// mapError translates driver errors into port errors
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch {
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		// sqlite names the columns, not the partial index
		msg := sqliteErr.Error()
		switch {
		case strings.Contains(msg, "invoices.request_key"):
			return fmt.Errorf("%w: %v", port.ErrDuplicateRequest, err)
		case strings.Contains(msg, "invoices.invoice_number"):
			return fmt.Errorf("%w: %v", port.ErrDuplicateNumber, err)
		}
	case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %v", port.ErrStoreUnavailable, err)
	}
	return err
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timeIf(cond bool, t time.Time) any {
	if !cond {
		return nil
	}
	return t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
