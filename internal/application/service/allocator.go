package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/application/scope"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	"github.com/garyjia/invoice-ledger/internal/domain/event"
)

// AllocateAndCreate reads the highest active number in the scope, proposes the next one and
// inserts. The store's unique index arbitrates races; a lost race re-reads and tries again.
func (s *invoiceServiceImpl) AllocateAndCreate(ctx context.Context, sc scope.Scope, payload entity.InvoicePayload) (*entity.Invoice, error) {
	if sc.Key == "" || sc.Prefix == "" || sc.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: incomplete scope", entity.ErrInvalidScope)
	}

	requestKey := strings.TrimSpace(payload.RequestKey)
	if requestKey != "" {
		existing, err := s.findByRequestKey(ctx, sc.Key, requestKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Returning invoice for repeated request", "invoice_number", existing.InvoiceNumber, "scope", sc.Key)
			return existing, nil
		}
	}

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		latest, err := withStoreRetry(ctx, s, "read latest number", func() (latestNumber, error) {
			n, ok, err := s.repo.LatestNumber(ctx, sc.Key, sc.Prefix)
			return latestNumber{n, ok}, err
		})
		if err != nil {
			return nil, err
		}

		next := int64(1)
		if latest.ok {
			if n, ok := scope.SeriesSuffix(latest.number, sc.Prefix); ok {
				next = n + 1
			}
		}

		inv := s.newInvoice(sc, payload, sc.Format(next), requestKey)

		err = s.insert(ctx, inv)

		switch {
		case err == nil:
			// Persisted: the invoice is returned even if ctx has been cancelled meanwhile
			s.logger.Info("Invoice created",
				"id", inv.ID,
				"invoice_number", inv.InvoiceNumber,
				"scope", inv.ScopeKey,
				"attempt", attempt,
			)
			s.publish(ctx, event.TypeInvoiceCreated, inv, nil)
			return inv, nil

		case errors.Is(err, port.ErrDuplicateNumber):
			s.logger.Info("Invoice number taken, retrying",
				"invoice_number", inv.InvoiceNumber,
				"scope", sc.Key,
				"attempt", attempt,
			)
			continue

		case errors.Is(err, port.ErrDuplicateRequest):
			existing, findErr := s.findByRequestKey(ctx, sc.Key, requestKey)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
			// The winner was deleted in between; allocate again
			continue

		default:
			s.logger.Error("Failed to insert invoice", "error", err, "scope", sc.Key, "invoice_number", inv.InvoiceNumber)
			return nil, err
		}
	}

	s.logger.Error("Invoice number allocation exhausted", "scope", sc.Key, "attempts", s.cfg.MaxAttempts)
	return nil, fmt.Errorf("%w: scope %s after %d attempts", entity.ErrAllocationExhausted, sc.Key, s.cfg.MaxAttempts)
}

type latestNumber struct {
	number string
	ok     bool
}

func (s *invoiceServiceImpl) newInvoice(sc scope.Scope, p entity.InvoicePayload, number, requestKey string) *entity.Invoice {
	now := s.now()
	inv := &entity.Invoice{
		ID:            uuid.New(),
		OwnerID:       sc.OwnerID,
		ScopeKey:      sc.Key,
		InvoiceNumber: number,
		Status:        entity.StatusDraft,
		ClientName:    p.ClientName,
		Description:   p.Description,
		Currency:      p.Currency,
		Amount:        p.Amount,
		IssueDate:     p.IssueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if sc.CompanyID != nil {
		id := *sc.CompanyID
		inv.CompanyID = &id
	}
	if requestKey != "" {
		inv.RequestKey = &requestKey
	}
	return inv
}

// insert stores inv, retrying while the store is unavailable. An unavailable error does not prove
// the write failed, so the row is looked up by id before inserting again.
func (s *invoiceServiceImpl) insert(ctx context.Context, inv *entity.Invoice) error {
	_, err := withStoreRetry(ctx, s, "insert invoice", func() (struct{}, error) {
		err := s.repo.Insert(ctx, inv)
		if !errors.Is(err, port.ErrStoreUnavailable) {
			return struct{}{}, err
		}

		stored, getErr := s.repo.Get(ctx, inv.ID)
		if getErr != nil || stored == nil {
			return struct{}{}, err
		}
		s.logger.Info("Insert reported unavailable but the invoice was stored",
			"id", inv.ID,
			"invoice_number", stored.InvoiceNumber,
		)
		*inv = *stored
		return struct{}{}, nil
	})
	return err
}

func (s *invoiceServiceImpl) findByRequestKey(ctx context.Context, scopeKey, requestKey string) (*entity.Invoice, error) {
	return withStoreRetry(ctx, s, "find by request key", func() (*entity.Invoice, error) {
		return s.repo.FindByRequestKey(ctx, scopeKey, requestKey)
	})
}

// withStoreRetry repeats fn while it fails with port.ErrStoreUnavailable, up to cfg.StoreRetries extra times.
// Any other error is returned as is.
func withStoreRetry[T any](ctx context.Context, s *invoiceServiceImpl, op string, fn func() (T, error)) (T, error) {
	delay := s.cfg.Backoff
	for retry := 0; ; retry++ {
		v, err := fn()
		if err == nil || !errors.Is(err, port.ErrStoreUnavailable) || retry >= s.cfg.StoreRetries {
			if err != nil && errors.Is(err, port.ErrStoreUnavailable) {
				s.logger.Error("Invoice store unavailable", "op", op, "retries", retry, "error", err)
			}
			return v, err
		}

		s.logger.Info("Invoice store unavailable, retrying", "op", op, "retry", retry+1, "error", err)
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				var zero T
				return zero, ctx.Err()
			case <-t.C:
			}
			delay *= 2
		}
	}
}
