package service

import (
	"context"
	"fmt"

	"github.com/garyjia/invoice-ledger/internal/application/dispatcher"
	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	"github.com/garyjia/invoice-ledger/internal/domain/event"
)

// NotificationService tells approvers about invoices that wait for them
type NotificationService interface {
	// HandleTransition is a dispatcher handler for invoice.transitioned
	HandleTransition(ctx context.Context, evt *event.Event) error

	// Register subscribes the service to the dispatcher
	Register(d dispatcher.Dispatcher)
}

type notificationServiceImpl struct {
	sender    port.MessageSender
	receiveID string
	logger    Logger
}

// NewNotificationService creates a NotificationService that posts to receiveID
func NewNotificationService(sender port.MessageSender, receiveID string, logger Logger) NotificationService {
	return &notificationServiceImpl{
		sender:    sender,
		receiveID: receiveID,
		logger:    logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeInvoiceTransitioned, "approval-notifier", s.HandleTransition)
}

func (s *notificationServiceImpl) HandleTransition(ctx context.Context, evt *event.Event) error {
	if evt.GetPayloadString(event.KeyToStatus) != string(entity.StatusPendingApproval) {
		return nil
	}

	number := evt.GetPayloadString(event.KeyInvoiceNumber)
	text := fmt.Sprintf("Invoice %s is waiting for approval (%s)", number, evt.ScopeKey)

	if err := s.sender.SendText(ctx, s.receiveID, text); err != nil {
		s.logger.Error("Failed to notify approvers", "error", err, "invoice_id", evt.InvoiceID, "invoice_number", number)
		return fmt.Errorf("notify approvers: %w", err)
	}

	s.logger.Info("Approvers notified", "invoice_id", evt.InvoiceID, "invoice_number", number)
	return nil
}
