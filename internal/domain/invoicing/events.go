package invoicing

import (
	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeInvoice is the aggregate type for invoices
const AggregateTypeInvoice = "Invoice"

// Event type constants for Invoice
const (
	EventTypeInvoiceCreated         = "InvoiceCreated"
	EventTypeInvoiceSent            = "InvoiceSent"
	EventTypeInvoiceRecalculated    = "InvoiceRecalculated"
	EventTypePaymentRecorded        = "PaymentRecorded"
	EventTypeInvoicePaid            = "InvoicePaid"
	EventTypeInvoiceOverdue         = "InvoiceOverdue"
	EventTypeInvoiceCancelled       = "InvoiceCancelled"
	EventTypeCreditInvoiceCreated   = "CreditInvoiceCreated"
	EventTypeCreditInvoiceConfirmed = "CreditInvoiceConfirmed"
	EventTypeCreditOffsetApplied    = "CreditOffsetApplied"
)

func newInvoiceEvent(eventType string, inv *Invoice) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeInvoice, inv.ID, inv.StudentID)
}

// InvoiceCreatedEvent is raised when a draft invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Total         decimal.Decimal `json:"total"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: newInvoiceEvent(EventTypeInvoiceCreated, inv),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Total:           inv.Total,
	}
}

// InvoiceSentEvent is raised when an invoice is issued
type InvoiceSentEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Total         decimal.Decimal `json:"total"`
}

// NewInvoiceSentEvent creates a new InvoiceSentEvent
func NewInvoiceSentEvent(inv *Invoice) *InvoiceSentEvent {
	return &InvoiceSentEvent{
		BaseDomainEvent: newInvoiceEvent(EventTypeInvoiceSent, inv),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Total:           inv.Total,
	}
}

// InvoiceRecalculatedEvent is raised when recalculation changes the total
type InvoiceRecalculatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Total     decimal.Decimal `json:"total"`
	Delta     decimal.Decimal `json:"delta"`
}

// NewInvoiceRecalculatedEvent creates a new InvoiceRecalculatedEvent
func NewInvoiceRecalculatedEvent(inv *Invoice, delta decimal.Decimal) *InvoiceRecalculatedEvent {
	return &InvoiceRecalculatedEvent{
		BaseDomainEvent: newInvoiceEvent(EventTypeInvoiceRecalculated, inv),
		InvoiceID:       inv.ID,
		Total:           inv.Total,
		Delta:           delta,
	}
}

// PaymentRecordedEvent is raised when a payment is booked
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	InvoiceID uuid.UUID       `json:"invoice_id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Balance   decimal.Decimal `json:"balance"`
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(inv *Invoice, p *PaymentRecord) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: newInvoiceEvent(EventTypePaymentRecorded, inv),
		InvoiceID:       inv.ID,
		PaymentID:       p.ID,
		Amount:          p.Amount,
		Method:          p.Method,
		Balance:         inv.Balance(),
	}
}

// InvoicePaidEvent is raised when an issued invoice's balance reaches zero
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: newInvoiceEvent(EventTypeInvoicePaid, inv),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
	}
}

// InvoiceOverdueEvent is raised when a sent invoice passes its due date unpaid
type InvoiceOverdueEvent struct {
	shared.BaseDomainEvent
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// NewInvoiceOverdueEvent creates a new InvoiceOverdueEvent
func NewInvoiceOverdueEvent(inv *Invoice) *InvoiceOverdueEvent {
	return &InvoiceOverdueEvent{
		BaseDomainEvent: newInvoiceEvent(EventTypeInvoiceOverdue, inv),
		InvoiceID:       inv.ID,
		Balance:         inv.Balance(),
	}
}

// InvoiceCancelledEvent is raised when an invoice is cancelled
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Reason      string          `json:"reason"`
	OpenBalance decimal.Decimal `json:"open_balance"`
}

// NewInvoiceCancelledEvent creates a new InvoiceCancelledEvent
func NewInvoiceCancelledEvent(inv *Invoice, open decimal.Decimal) *InvoiceCancelledEvent {
	return &InvoiceCancelledEvent{
		BaseDomainEvent: newInvoiceEvent(EventTypeInvoiceCancelled, inv),
		InvoiceID:       inv.ID,
		Reason:          inv.CancelReason,
		OpenBalance:     open,
	}
}

// CreditInvoiceCreatedEvent is raised when a draft credit invoice is derived
type CreditInvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	CreditInvoiceID   uuid.UUID       `json:"credit_invoice_id"`
	OriginalInvoiceID uuid.UUID       `json:"original_invoice_id"`
	Total             decimal.Decimal `json:"total"`
}

// NewCreditInvoiceCreatedEvent creates a new CreditInvoiceCreatedEvent
func NewCreditInvoiceCreatedEvent(inv *Invoice) *CreditInvoiceCreatedEvent {
	return &CreditInvoiceCreatedEvent{
		BaseDomainEvent:   newInvoiceEvent(EventTypeCreditInvoiceCreated, inv),
		CreditInvoiceID:   inv.ID,
		OriginalInvoiceID: *inv.OriginalInvoiceID,
		Total:             inv.Total,
	}
}

// CreditInvoiceConfirmedEvent is raised when a credit invoice is issued
type CreditInvoiceConfirmedEvent struct {
	shared.BaseDomainEvent
	CreditInvoiceID   uuid.UUID       `json:"credit_invoice_id"`
	OriginalInvoiceID uuid.UUID       `json:"original_invoice_id"`
	Total             decimal.Decimal `json:"total"`
}

// NewCreditInvoiceConfirmedEvent creates a new CreditInvoiceConfirmedEvent
func NewCreditInvoiceConfirmedEvent(inv *Invoice) *CreditInvoiceConfirmedEvent {
	return &CreditInvoiceConfirmedEvent{
		BaseDomainEvent:   newInvoiceEvent(EventTypeCreditInvoiceConfirmed, inv),
		CreditInvoiceID:   inv.ID,
		OriginalInvoiceID: *inv.OriginalInvoiceID,
		Total:             inv.Total,
	}
}

// CreditOffsetAppliedEvent is raised on the target when credit-invoice credit is used
type CreditOffsetAppliedEvent struct {
	shared.BaseDomainEvent
	CreditInvoiceID uuid.UUID       `json:"credit_invoice_id"`
	TargetInvoiceID uuid.UUID       `json:"target_invoice_id"`
	Amount          decimal.Decimal `json:"amount"`
}

// NewCreditOffsetAppliedEvent creates a new CreditOffsetAppliedEvent
func NewCreditOffsetAppliedEvent(credit, target *Invoice, amount decimal.Decimal) *CreditOffsetAppliedEvent {
	return &CreditOffsetAppliedEvent{
		BaseDomainEvent: newInvoiceEvent(EventTypeCreditOffsetApplied, target),
		CreditInvoiceID: credit.ID,
		TargetInvoiceID: target.ID,
		Amount:          amount,
	}
}
