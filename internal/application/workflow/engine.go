package workflow

import (
	"context"

	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-ledger/internal/domain/workflow"
)

// Plan describes a validated status change that has not been persisted yet
type Plan struct {
	From    entity.InvoiceStatus
	To      entity.InvoiceStatus
	Trigger domainwf.Trigger

	// NoOp is set when the invoice already has the target status
	NoOp bool
}

// LifecycleEngine decides whether a status change or deletion is allowed.
// It never mutates the invoice; callers persist the plan with a compare-and-set update.
type LifecycleEngine interface {
	// PlanTransition validates moving the invoice to target on behalf of the actor in ctx
	PlanTransition(ctx context.Context, inv *entity.Invoice, target entity.InvoiceStatus) (*Plan, error)

	// PlanDelete validates soft-deleting the invoice. noop is true when it is already deleted.
	PlanDelete(ctx context.Context, inv *entity.Invoice) (noop bool, err error)
}
