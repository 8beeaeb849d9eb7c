// Package memory provides an in-process invoice store for tests and local development.
// It enforces the same uniqueness and visibility rules as the SQL schemas.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/application/scope"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	"github.com/garyjia/invoice-ledger/internal/infrastructure/persistence/visibility"
)

// InvoiceRepository keeps invoices in insertion order
type InvoiceRepository struct {
	mu      sync.RWMutex
	rows    []*entity.Invoice
	byID    map[uuid.UUID]*entity.Invoice
	nextSeq int64
}

// NewInvoiceRepository creates an empty store
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{
		byID: make(map[uuid.UUID]*entity.Invoice),
	}
}

// Insert stores a copy of inv. Uniqueness is checked against active rows only.
func (r *InvoiceRepository) Insert(_ context.Context, inv *entity.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if !visibility.Visible(row) || row.ScopeKey != inv.ScopeKey {
			continue
		}
		if row.InvoiceNumber == inv.InvoiceNumber {
			return port.ErrDuplicateNumber
		}
		if inv.RequestKey != nil && row.RequestKey != nil && *row.RequestKey == *inv.RequestKey {
			return port.ErrDuplicateRequest
		}
	}

	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	r.nextSeq++
	inv.Seq = r.nextSeq

	row := inv.Clone()
	r.rows = append(r.rows, row)
	r.byID[row.ID] = row
	return nil
}

func (r *InvoiceRepository) LatestNumber(_ context.Context, scopeKey, prefix string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best    string
		bestNum int64 = -1
	)
	for _, row := range r.rows {
		if !visibility.Visible(row) || row.ScopeKey != scopeKey {
			continue
		}
		if n, ok := scope.SeriesSuffix(row.InvoiceNumber, prefix); ok && n > bestNum {
			best, bestNum = row.InvoiceNumber, n
		}
	}
	return best, bestNum >= 0, nil
}

func (r *InvoiceRepository) Get(_ context.Context, id uuid.UUID) (*entity.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return row.Clone(), nil
}

func (r *InvoiceRepository) FindByRequestKey(_ context.Context, scopeKey, requestKey string) (*entity.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, row := range r.rows {
		if visibility.Visible(row) && row.ScopeKey == scopeKey && row.RequestKey != nil && *row.RequestKey == requestKey {
			return row.Clone(), nil
		}
	}
	return nil, nil
}

func (r *InvoiceRepository) UpdateStatus(_ context.Context, u port.StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.byID[u.ID]
	if !ok || !visibility.Visible(row) || row.Status != u.From {
		return false, nil
	}

	at := u.At
	row.Status = u.To
	row.UpdatedAt = at
	if u.To == entity.StatusApproved && row.ApprovedAt == nil {
		row.ApprovedAt = &at
	}
	if u.To == entity.StatusIssued && row.IssuedAt == nil {
		row.IssuedAt = &at
	}
	return true, nil
}

func (r *InvoiceRepository) MarkDeleted(_ context.Context, id uuid.UUID, from entity.InvoiceStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.byID[id]
	if !ok || !visibility.Visible(row) || row.Status != from {
		return false, nil
	}
	row.DeletedAt = &at
	row.UpdatedAt = at
	return true, nil
}

func (r *InvoiceRepository) List(_ context.Context, q port.ListQuery) ([]*entity.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.Invoice
	for _, row := range r.rows {
		if !visibility.Visible(row) || row.ScopeKey != q.ScopeKey {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, row.Status) {
			continue
		}
		if q.BeforeSeq > 0 && row.Seq >= q.BeforeSeq {
			continue
		}
		out = append(out, row.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *InvoiceRepository) Ping(context.Context) error {
	return nil
}

var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
