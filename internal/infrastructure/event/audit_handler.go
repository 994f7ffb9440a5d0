package event

import (
	"context"
	"encoding/json"

	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditLogHandler writes every ledger and invoice event to a dedicated audit
// logger, payload included
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates an AuditLogHandler
func NewAuditLogHandler(l *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: l.Named("audit")}
}

// EventTypes lists the ledger and invoice events
func (h *AuditLogHandler) EventTypes() []string {
	return []string{
		ledger.EventTypeLedgerEntryCreated,
		ledger.EventTypeLedgerEntryApplied,
		ledger.EventTypeApplicationDecoupled,
		ledger.EventTypeLedgerEntryReversed,
		invoicing.EventTypeInvoiceCreated,
		invoicing.EventTypeInvoiceSent,
		invoicing.EventTypeInvoiceRecalculated,
		invoicing.EventTypePaymentRecorded,
		invoicing.EventTypeInvoicePaid,
		invoicing.EventTypeInvoiceOverdue,
		invoicing.EventTypeInvoiceCancelled,
		invoicing.EventTypeCreditInvoiceCreated,
		invoicing.EventTypeCreditInvoiceConfirmed,
		invoicing.EventTypeCreditOffsetApplied,
	}
}

// Handle logs the event
func (h *AuditLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	logger.WithLogger(ctx, h.logger).Info(event.EventType(),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.String("student_id", event.StudentID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
		zap.ByteString("payload", payload),
	)
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
