package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/application/scope"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	"github.com/garyjia/invoice-ledger/internal/domain/event"
)

func (s *invoiceServiceImpl) Get(ctx context.Context, actor *scope.Actor, id uuid.UUID) (*entity.Invoice, error) {
	inv, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if inv.IsDeleted() {
		return nil, entity.ErrNotFound
	}
	return inv, nil
}

// Transition validates the change with the lifecycle engine and persists it with a
// compare-and-set on the current status. A lost race re-reads and re-evaluates, so a
// concurrent identical transition ends as a no-op.
func (s *invoiceServiceImpl) Transition(ctx context.Context, actor *scope.Actor, id uuid.UUID, target entity.InvoiceStatus) (*entity.Invoice, error) {
	ctx = scope.WithActor(ctx, actor)

	for attempt := 0; attempt < transitionAttempts; attempt++ {
		inv, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}

		plan, err := s.engine.PlanTransition(ctx, inv, target)
		if err != nil {
			s.logger.Info("Transition rejected",
				"id", id,
				"status", inv.Status,
				"target", target,
				"reason", err.Error(),
			)
			return inv, err
		}
		if plan.NoOp {
			return inv, nil
		}

		at := s.now()
		ok, err := s.repo.UpdateStatus(ctx, port.StatusUpdate{ID: id, From: plan.From, To: plan.To, At: at})
		if err != nil {
			s.logger.Error("Failed to update invoice status", "error", err, "id", id, "target", target)
			return nil, err
		}
		if !ok {
			s.logger.Info("Invoice changed concurrently, re-evaluating", "id", id, "attempt", attempt+1)
			continue
		}

		inv.Status = plan.To
		inv.UpdatedAt = at
		switch plan.To {
		case entity.StatusApproved:
			if inv.ApprovedAt == nil {
				inv.ApprovedAt = &at
			}
		case entity.StatusIssued:
			if inv.IssuedAt == nil {
				inv.IssuedAt = &at
			}
		}

		s.logger.Info("Invoice transitioned",
			"id", id,
			"invoice_number", inv.InvoiceNumber,
			"from", plan.From,
			"to", plan.To,
		)
		s.publish(ctx, event.TypeInvoiceTransitioned, inv, map[string]interface{}{
			event.KeyFromStatus: string(plan.From),
			event.KeyToStatus:   string(plan.To),
			event.KeyActorID:    actor.UserID.String(),
		})
		return inv, nil
	}

	return nil, fmt.Errorf("%w: %s", entity.ErrConcurrentUpdate, id)
}

func (s *invoiceServiceImpl) SoftDelete(ctx context.Context, actor *scope.Actor, id uuid.UUID) (*entity.Invoice, error) {
	ctx = scope.WithActor(ctx, actor)

	for attempt := 0; attempt < transitionAttempts; attempt++ {
		inv, err := s.load(ctx, actor, id)
		if err != nil {
			return nil, err
		}

		noop, err := s.engine.PlanDelete(ctx, inv)
		if err != nil {
			s.logger.Info("Delete rejected", "id", id, "status", inv.Status, "reason", err.Error())
			return inv, err
		}
		if noop {
			return inv, nil
		}

		at := s.now()
		ok, err := s.repo.MarkDeleted(ctx, id, inv.Status, at)
		if err != nil {
			s.logger.Error("Failed to delete invoice", "error", err, "id", id)
			return nil, err
		}
		if !ok {
			s.logger.Info("Invoice changed concurrently, re-evaluating delete", "id", id, "attempt", attempt+1)
			continue
		}

		inv.DeletedAt = &at
		inv.UpdatedAt = at

		s.logger.Info("Invoice deleted", "id", id, "invoice_number", inv.InvoiceNumber, "scope", inv.ScopeKey)
		s.publish(ctx, event.TypeInvoiceDeleted, inv, map[string]interface{}{
			event.KeyActorID: actor.UserID.String(),
		})
		return inv, nil
	}

	return nil, fmt.Errorf("%w: %s", entity.ErrConcurrentUpdate, id)
}

// load reads the invoice, deleted or not, and hides invoices outside the actor's reach
func (s *invoiceServiceImpl) load(ctx context.Context, actor *scope.Actor, id uuid.UUID) (*entity.Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get invoice", "error", err, "id", id)
		return nil, err
	}
	if inv == nil || !actor.CanAccess(inv.OwnerID, inv.CompanyID) {
		return nil, entity.ErrNotFound
	}
	return inv, nil
}
