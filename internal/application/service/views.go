package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
)

func (s *invoiceServiceImpl) ListPending(ctx context.Context, scopeKey string) iter.Seq2[*entity.Invoice, error] {
	return s.view(ctx, scopeKey, entity.PendingStatuses)
}

func (s *invoiceServiceImpl) ListHistory(ctx context.Context, scopeKey string) iter.Seq2[*entity.Invoice, error] {
	return s.view(ctx, scopeKey, entity.HistoryStatuses)
}

func (s *invoiceServiceImpl) ExportHistory(ctx context.Context, scopeKey string, w io.Writer) (int, error) {
	if s.exporter == nil {
		return 0, errors.New("history export is not configured")
	}

	n, err := s.exporter.Export(ctx, "History", s.ListHistory(ctx, scopeKey), w)
	if err != nil {
		s.logger.Error("Failed to export history", "error", err, "scope", scopeKey)
		return n, fmt.Errorf("failed to export history: %w", err)
	}

	s.logger.Info("History exported", "scope", scopeKey, "rows", n)
	return n, nil
}

// view pages through the active rows of the statuses using the seq keyset.
// Each range starts again from the newest row, and iteration stops after a short page.
func (s *invoiceServiceImpl) view(ctx context.Context, scopeKey string, statuses []entity.InvoiceStatus) iter.Seq2[*entity.Invoice, error] {
	return func(yield func(*entity.Invoice, error) bool) {
		var before int64
		for {
			page, err := s.repo.List(ctx, port.ListQuery{
				ScopeKey:  scopeKey,
				Statuses:  statuses,
				BeforeSeq: before,
				Limit:     s.cfg.PageSize,
			})
			if err != nil {
				yield(nil, fmt.Errorf("failed to list invoices: %w", err))
				return
			}

			for _, inv := range page {
				if !yield(inv, nil) {
					return
				}
			}

			if len(page) < s.cfg.PageSize {
				return
			}
			before = page[len(page)-1].Seq
		}
	}
}
