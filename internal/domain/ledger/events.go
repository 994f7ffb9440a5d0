package ledger

import (
	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeLedgerEntry is the aggregate type for corrections
const AggregateTypeLedgerEntry = "LedgerEntry"

// Event type constants for LedgerEntry
const (
	EventTypeLedgerEntryCreated   = "LedgerEntryCreated"
	EventTypeLedgerEntryApplied   = "LedgerEntryApplied"
	EventTypeApplicationDecoupled = "ApplicationDecoupled"
	EventTypeLedgerEntryReversed  = "LedgerEntryReversed"
)

// LedgerEntryCreatedEvent is raised when a correction is created
type LedgerEntryCreatedEvent struct {
	shared.BaseDomainEvent
	EntryID     uuid.UUID       `json:"entry_id"`
	EntryType   EntryType       `json:"entry_type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Source      EntrySource     `json:"source"`
	CourseID    *uuid.UUID      `json:"course_id,omitempty"`
}

// NewLedgerEntryCreatedEvent creates a new LedgerEntryCreatedEvent
func NewLedgerEntryCreatedEvent(e *LedgerEntry) *LedgerEntryCreatedEvent {
	return &LedgerEntryCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLedgerEntryCreated, AggregateTypeLedgerEntry, e.ID, e.StudentID),
		EntryID:         e.ID,
		EntryType:       e.EntryType,
		Amount:          e.Amount,
		Description:     e.Description,
		Source:          e.Source,
		CourseID:        e.CourseID,
	}
}

// LedgerEntryAppliedEvent is raised when part of a correction is applied to an invoice
type LedgerEntryAppliedEvent struct {
	shared.BaseDomainEvent
	EntryID         uuid.UUID       `json:"entry_id"`
	ApplicationID   uuid.UUID       `json:"application_id"`
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	AppliedAmount   decimal.Decimal `json:"applied_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          EntryStatus     `json:"status"`
}

// NewLedgerEntryAppliedEvent creates a new LedgerEntryAppliedEvent
func NewLedgerEntryAppliedEvent(e *LedgerEntry, app *LedgerApplication) *LedgerEntryAppliedEvent {
	return &LedgerEntryAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLedgerEntryApplied, AggregateTypeLedgerEntry, e.ID, e.StudentID),
		EntryID:         e.ID,
		ApplicationID:   app.ID,
		InvoiceID:       app.InvoiceID,
		AppliedAmount:   app.AppliedAmount,
		RemainingAmount: e.RemainingAmount,
		Status:          e.Status,
	}
}

// ApplicationDecoupledEvent is raised when an application is removed
type ApplicationDecoupledEvent struct {
	shared.BaseDomainEvent
	EntryID         uuid.UUID       `json:"entry_id"`
	ApplicationID   uuid.UUID       `json:"application_id"`
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	Amount          decimal.Decimal `json:"amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Reason          string          `json:"reason"`
}

// NewApplicationDecoupledEvent creates a new ApplicationDecoupledEvent
func NewApplicationDecoupledEvent(e *LedgerEntry, app *LedgerApplication) *ApplicationDecoupledEvent {
	return &ApplicationDecoupledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeApplicationDecoupled, AggregateTypeLedgerEntry, e.ID, e.StudentID),
		EntryID:         e.ID,
		ApplicationID:   app.ID,
		InvoiceID:       app.InvoiceID,
		Amount:          app.AppliedAmount,
		RemainingAmount: e.RemainingAmount,
		Reason:          app.DecoupleReason,
	}
}

// LedgerEntryReversedEvent is raised when an open correction is reversed
type LedgerEntryReversedEvent struct {
	shared.BaseDomainEvent
	EntryID       uuid.UUID       `json:"entry_id"`
	OffsetEntryID uuid.UUID       `json:"offset_entry_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}

// NewLedgerEntryReversedEvent creates a new LedgerEntryReversedEvent
func NewLedgerEntryReversedEvent(e *LedgerEntry, offset *LedgerEntry) *LedgerEntryReversedEvent {
	return &LedgerEntryReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLedgerEntryReversed, AggregateTypeLedgerEntry, e.ID, e.StudentID),
		EntryID:         e.ID,
		OffsetEntryID:   offset.ID,
		Amount:          e.Amount,
		Reason:          e.ReversalReason,
	}
}
