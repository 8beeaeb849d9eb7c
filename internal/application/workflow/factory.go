package workflow

import (
	"context"

	"github.com/garyjia/invoice-ledger/internal/application/scope"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-ledger/internal/domain/workflow"
)

// BuildInvoiceStateMachine creates a state machine configured for the invoice lifecycle.
// Guards read the acting user from the context (see scope.WithActor).
func BuildInvoiceStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	// draft
	builder.Configure(domainwf.StateDraft).
		PermitIf(domainwf.TriggerSubmit, domainwf.StatePendingApproval, guardFor(domainwf.TriggerSubmit)).
		PermitIf(domainwf.TriggerCancel, domainwf.StateCancelled, guardFor(domainwf.TriggerCancel))

	// pending_approval
	builder.Configure(domainwf.StatePendingApproval).
		PermitIf(domainwf.TriggerApprove, domainwf.StateApproved, guardFor(domainwf.TriggerApprove)).
		PermitIf(domainwf.TriggerCancel, domainwf.StateCancelled, guardFor(domainwf.TriggerCancel))

	// approved
	builder.Configure(domainwf.StateApproved).
		PermitIf(domainwf.TriggerIssue, domainwf.StateIssued, guardFor(domainwf.TriggerIssue))

	// issued and cancelled are terminal

	return builder.Build(initialState)
}

// triggerCapabilities names the capability each trigger requires
var triggerCapabilities = map[domainwf.Trigger]scope.Capability{
	domainwf.TriggerSubmit:  scope.CapSubmit,
	domainwf.TriggerApprove: scope.CapApprove,
	domainwf.TriggerIssue:   scope.CapIssue,
	domainwf.TriggerCancel:  scope.CapCancel,
}

func guardFor(t domainwf.Trigger) domainwf.GuardFunc {
	return requireCapability(triggerCapabilities[t])
}

func requireCapability(c scope.Capability) domainwf.GuardFunc {
	return func(ctx context.Context) bool {
		actor, ok := scope.ActorFromContext(ctx)
		return ok && actor.Can(c)
	}
}

// TriggerFor returns the trigger that leads to the target status
func TriggerFor(target entity.InvoiceStatus) (domainwf.Trigger, bool) {
	switch target {
	case entity.StatusPendingApproval:
		return domainwf.TriggerSubmit, true
	case entity.StatusApproved:
		return domainwf.TriggerApprove, true
	case entity.StatusIssued:
		return domainwf.TriggerIssue, true
	case entity.StatusCancelled:
		return domainwf.TriggerCancel, true
	default:
		return "", false
	}
}
