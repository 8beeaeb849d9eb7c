package port

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-ledger/internal/domain/entity"
)

var (
	// ErrDuplicateNumber is returned by Insert when the number is taken by an active invoice in the scope
	ErrDuplicateNumber = errors.New("invoice number already taken in scope")

	// ErrDuplicateRequest is returned by Insert when the request key is taken by an active invoice in the scope
	ErrDuplicateRequest = errors.New("request key already used in scope")

	// ErrStoreUnavailable wraps connection and timeout failures that may succeed on retry
	ErrStoreUnavailable = errors.New("invoice store unavailable")
)

// ListQuery selects one keyset page of active invoices, newest first
type ListQuery struct {
	ScopeKey string
	Statuses []entity.InvoiceStatus

	// BeforeSeq restricts the page to rows with a smaller seq; 0 starts from the newest row
	BeforeSeq int64
	Limit     int
}

// StatusUpdate is a compare-and-set status change.
// It applies only while the invoice is active and still has status From.
// approved_at and issued_at are set on entry to their status and never overwritten.
type StatusUpdate struct {
	ID   uuid.UUID
	From entity.InvoiceStatus
	To   entity.InvoiceStatus
	At   time.Time
}

// InvoiceRepository is the invoice record store
type InvoiceRepository interface {
	// Insert stores a new invoice, assigning ID (when nil) and Seq
	Insert(ctx context.Context, inv *entity.Invoice) error

	// LatestNumber returns the active number in the scope with the highest numeric suffix after prefix
	LatestNumber(ctx context.Context, scopeKey, prefix string) (number string, found bool, err error)

	// Get returns the invoice by id, deleted or not; nil when it does not exist
	Get(ctx context.Context, id uuid.UUID) (*entity.Invoice, error)

	// FindByRequestKey returns the active invoice created with the request key; nil when none
	FindByRequestKey(ctx context.Context, scopeKey, requestKey string) (*entity.Invoice, error)

	// UpdateStatus applies the update and reports whether a row changed
	UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error)

	// MarkDeleted soft-deletes an active invoice that still has status from
	MarkDeleted(ctx context.Context, id uuid.UUID, from entity.InvoiceStatus, at time.Time) (bool, error)

	// List returns one page of active invoices
	List(ctx context.Context, q ListQuery) ([]*entity.Invoice, error)

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error
}
