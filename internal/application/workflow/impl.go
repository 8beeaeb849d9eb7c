package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/invoice-ledger/internal/application/scope"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-ledger/internal/domain/workflow"
)

// engineImpl is the concrete implementation of LifecycleEngine
type engineImpl struct{}

// NewEngine creates a new lifecycle engine
func NewEngine() LifecycleEngine {
	return &engineImpl{}
}

func (e *engineImpl) PlanTransition(ctx context.Context, inv *entity.Invoice, target entity.InvoiceStatus) (*Plan, error) {
	if inv == nil || inv.IsDeleted() {
		return nil, entity.ErrNotFound
	}
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrIllegalTransition, target)
	}

	plan := &Plan{From: inv.Status, To: target}

	if inv.Status == target {
		// repeating a change still needs the right to make it
		if trigger, ok := TriggerFor(target); ok && !guardFor(trigger)(ctx) {
			return nil, fmt.Errorf("%w: %s requires capability", entity.ErrForbidden, trigger)
		}
		plan.NoOp = true
		return plan, nil
	}

	if target == entity.StatusCancelled && inv.IsProtected() {
		return nil, fmt.Errorf("%w: cannot cancel %s invoice %s", entity.ErrInvoiceProtected, inv.Status, inv.InvoiceNumber)
	}

	trigger, ok := TriggerFor(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", entity.ErrIllegalTransition, inv.Status, target)
	}
	plan.Trigger = trigger

	machine := BuildInvoiceStateMachine(domainwf.State(inv.Status))
	next, err := machine.Peek(ctx, trigger)
	switch {
	case errors.Is(err, domainwf.ErrGuardFailed):
		return nil, fmt.Errorf("%w: %s requires capability", entity.ErrForbidden, trigger)
	case err != nil:
		return nil, fmt.Errorf("%w: %s -> %s", entity.ErrIllegalTransition, inv.Status, target)
	case entity.InvoiceStatus(next) != target:
		return nil, fmt.Errorf("%w: %s leads to %s, not %s", entity.ErrIllegalTransition, trigger, next, target)
	}

	return plan, nil
}

func (e *engineImpl) PlanDelete(ctx context.Context, inv *entity.Invoice) (bool, error) {
	if inv == nil {
		return false, entity.ErrNotFound
	}
	if !requireCapability(scope.CapDelete)(ctx) {
		return false, fmt.Errorf("%w: delete requires capability", entity.ErrForbidden)
	}
	if inv.IsDeleted() {
		return true, nil
	}
	if inv.IsProtected() {
		return false, fmt.Errorf("%w: cannot delete %s invoice %s", entity.ErrInvoiceProtected, inv.Status, inv.InvoiceNumber)
	}

	return false, nil
}

var _ LifecycleEngine = (*engineImpl)(nil)
