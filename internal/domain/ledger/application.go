package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerApplication links part of a correction's amount to one invoice.
// A decoupled application stays on record with its decouple details but no
// longer counts towards the entry's applied amount.
type LedgerApplication struct {
	ID             uuid.UUID
	LedgerEntryID  uuid.UUID
	InvoiceID      uuid.UUID
	EntryType      EntryType
	AppliedAmount  decimal.Decimal
	AppliedAt      time.Time
	AppliedBy      *uuid.UUID
	DecoupledAt    *time.Time
	DecoupledBy    *uuid.UUID
	DecoupleReason string
}

// NewLedgerApplication creates a new active application
func NewLedgerApplication(entryID, invoiceID uuid.UUID, entryType EntryType, amount decimal.Decimal, appliedBy *uuid.UUID) *LedgerApplication {
	return &LedgerApplication{
		ID:            uuid.New(),
		LedgerEntryID: entryID,
		InvoiceID:     invoiceID,
		EntryType:     entryType,
		AppliedAmount: amount,
		AppliedAt:     time.Now(),
		AppliedBy:     appliedBy,
	}
}

// IsActive returns true until the application is decoupled
func (a *LedgerApplication) IsActive() bool {
	return a.DecoupledAt == nil
}

// InvoiceDelta is the signed change this application makes to the invoice
// balance: credits settle the invoice, debits add to it.
func (a *LedgerApplication) InvoiceDelta() decimal.Decimal {
	if a.EntryType == EntryTypeDebit {
		return a.AppliedAmount
	}
	return a.AppliedAmount.Neg()
}

