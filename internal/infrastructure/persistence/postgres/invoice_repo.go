// Package postgres implements the invoice store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	"github.com/garyjia/invoice-ledger/internal/infrastructure/persistence/visibility"
)

const (
	invoiceColumns = "seq, id, owner_id, company_id, scope_key, invoice_number, status, " +
		"client_name, description, currency, amount, issue_date, request_key, " +
		"created_at, updated_at, approved_at, issued_at, deleted_at"

	constraintScopeNumber  = "uq_invoices_scope_number"
	constraintScopeRequest = "uq_invoices_scope_request"

	uniqueViolation = "23505"
)

// PgxIface is the subset of pgxpool.Pool the repository uses
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// InvoiceRepository implements port.InvoiceRepository on PostgreSQL
type InvoiceRepository struct {
	db     PgxIface
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db PgxIface, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *InvoiceRepository) Insert(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}

	query := "INSERT INTO invoices (" +
		"id, owner_id, company_id, scope_key, invoice_number, status, " +
		"client_name, description, currency, amount, issue_date, request_key, " +
		"created_at, updated_at, approved_at, issued_at, deleted_at" +
		") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17) RETURNING seq"

	err := r.db.QueryRow(ctx, query,
		inv.ID,
		inv.OwnerID,
		inv.CompanyID,
		inv.ScopeKey,
		inv.InvoiceNumber,
		string(inv.Status),
		inv.ClientName,
		inv.Description,
		inv.Currency,
		inv.Amount.String(),
		utcPtr(inv.IssueDate),
		inv.RequestKey,
		inv.CreatedAt.UTC(),
		inv.UpdatedAt.UTC(),
		utcPtr(inv.ApprovedAt),
		utcPtr(inv.IssuedAt),
		utcPtr(inv.DeletedAt),
	).Scan(&inv.Seq)
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

	return nil
}

func (r *InvoiceRepository) LatestNumber(ctx context.Context, scopeKey, prefix string) (string, bool, error) {
	q := visibility.Active(visibility.Postgres).
		Where("scope_key = ?", scopeKey).
		NumberInSeries(prefix)
	suffix := q.Bind(visibility.SuffixStart(prefix))

	query := "SELECT invoice_number FROM invoices" + q.Clause() +
		" ORDER BY CAST(substr(invoice_number, " + suffix + ") AS BIGINT) DESC LIMIT 1"

	var number string
	err := r.db.QueryRow(ctx, query, q.Args()...).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read latest invoice number: %w", mapError(err))
	}
	return number, true, nil
}

func (r *InvoiceRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	query := "SELECT " + invoiceColumns + " FROM invoices WHERE id = $1"

	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", mapError(err))
	}
	return inv, nil
}

func (r *InvoiceRepository) FindByRequestKey(ctx context.Context, scopeKey, requestKey string) (*entity.Invoice, error) {
	q := visibility.Active(visibility.Postgres).
		Where("scope_key = ?", scopeKey).
		Where("request_key = ?", requestKey)

	inv, err := scanInvoice(r.db.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM invoices"+q.Clause(), q.Args()...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice by request key: %w", mapError(err))
	}
	return inv, nil
}

func (r *InvoiceRepository) UpdateStatus(ctx context.Context, u port.StatusUpdate) (bool, error) {
	at := u.At.UTC()

	q := visibility.Active(visibility.Postgres)
	set := fmt.Sprintf("status = %s, updated_at = %s, approved_at = COALESCE(approved_at, %s), issued_at = COALESCE(issued_at, %s)",
		q.Bind(string(u.To)),
		q.Bind(at),
		q.Bind(timeIf(u.To == entity.StatusApproved, at)),
		q.Bind(timeIf(u.To == entity.StatusIssued, at)),
	)
	q.Where("id = ?", u.ID).Where("status = ?", string(u.From))

	return r.exec(ctx, "UPDATE invoices SET "+set+q.Clause(), q.Args(), "update invoice status")
}

func (r *InvoiceRepository) MarkDeleted(ctx context.Context, id uuid.UUID, from entity.InvoiceStatus, at time.Time) (bool, error) {
	at = at.UTC()

	q := visibility.Active(visibility.Postgres)
	set := "deleted_at = " + q.Bind(at) + ", updated_at = " + q.Bind(at)
	q.Where("id = ?", id).Where("status = ?", string(from))

	return r.exec(ctx, "UPDATE invoices SET "+set+q.Clause(), q.Args(), "delete invoice")
}

func (r *InvoiceRepository) List(ctx context.Context, lq port.ListQuery) ([]*entity.Invoice, error) {
	q := visibility.Active(visibility.Postgres).
		Where("scope_key = ?", lq.ScopeKey).
		StatusIn(lq.Statuses)
	if lq.BeforeSeq > 0 {
		q.Where("seq < ?", lq.BeforeSeq)
	}

	query := "SELECT " + invoiceColumns + " FROM invoices" + q.Clause() + " ORDER BY seq DESC"
	if lq.Limit > 0 {
		query += " LIMIT " + q.Bind(lq.Limit)
	}

	rows, err := r.db.Query(ctx, query, q.Args()...)
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
	if err := r.db.Ping(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *InvoiceRepository) exec(ctx context.Context, query string, args []any, op string) (bool, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return false, fmt.Errorf("failed to %s: %w", op, mapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var (
		inv    entity.Invoice
		status string
		amount string
	)

	err := row.Scan(
		&inv.Seq,
		&inv.ID,
		&inv.OwnerID,
		&inv.CompanyID,
		&inv.ScopeKey,
		&inv.InvoiceNumber,
		&status,
		&inv.ClientName,
		&inv.Description,
		&inv.Currency,
		&amount,
		&inv.IssueDate,
		&inv.RequestKey,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&inv.ApprovedAt,
		&inv.IssuedAt,
		&inv.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = entity.InvoiceStatus(status)
	inv.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q for invoice %s: %w", amount, inv.ID, err)
	}

	return &inv, nil
}

// mapError translates pgx errors into port errors
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraintScopeNumber:
			return fmt.Errorf("%w: %v", port.ErrDuplicateNumber, err)
		case pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraintScopeRequest:
			return fmt.Errorf("%w: %v", port.ErrDuplicateRequest, err)
		case transientCode(pgErr.Code):
			return fmt.Errorf("%w: %v", port.ErrStoreUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", port.ErrStoreUnavailable, err)
	}
	return err
}

// transientCode reports SQLSTATEs for lost connections and server overload
func transientCode(code string) bool {
	switch code {
	case "53300", "57P01", "57P02", "57P03":
		return true
	}
	return strings.HasPrefix(code, "08")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func timeIf(cond bool, t time.Time) any {
	if !cond {
		return nil
	}
	return t
}

var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
