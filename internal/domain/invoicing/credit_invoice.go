package invoicing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// NewCreditInvoice derives a draft credit invoice from selected lines of an
// issued invoice. credited holds the line IDs already covered by another
// non-cancelled credit invoice.
func NewCreditInvoice(
	original *Invoice,
	lineIDs []uuid.UUID,
	credited map[uuid.UUID]bool,
	notes string,
	number string,
	issueDate time.Time,
	createdBy *uuid.UUID,
) (*Invoice, error) {
	if original.IsCreditInvoice {
		return nil, shared.NewInvalidInvoiceStateError("invoice %s is itself a credit invoice", original.InvoiceNumber)
	}
	if original.Status == InvoiceStatusDraft || original.Status == InvoiceStatusCancelled {
		return nil, shared.NewInvalidInvoiceStateError("invoice %s is %s and cannot be credited", original.InvoiceNumber, original.Status)
	}
	if len(lineIDs) == 0 {
		return nil, shared.NewValidationError("at least one line must be selected")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, shared.NewValidationError("invoice number cannot be empty")
	}

	seen := make(map[uuid.UUID]bool, len(lineIDs))
	selected := make([]InvoiceLine, 0, len(lineIDs))
	for _, id := range lineIDs {
		if seen[id] {
			return nil, shared.NewValidationError("line %s selected twice", id)
		}
		seen[id] = true
		line, ok := original.LineByID(id)
		if !ok {
			return nil, shared.NewValidationError("line %s does not belong to invoice %s", id, original.InvoiceNumber)
		}
		if credited[id] {
			return nil, shared.NewValidationError("line %s has already been credited", id)
		}
		selected = append(selected, line)
	}

	originalID := original.ID
	inv := &Invoice{
		StudentAggregateRoot: shared.NewStudentAggregateRoot(original.StudentID, createdBy),
		InvoiceNumber:        number,
		EnrollmentID:         original.EnrollmentID,
		IssueDate:            issueDate,
		DueDate:              issueDate,
		Status:               InvoiceStatusDraft,
		PricingSnapshot:      original.PricingSnapshot,
		PaidAmount:           decimal.Zero,
		CreditApplied:        decimal.Zero,
		DebitApplied:         decimal.Zero,
		CreditNoteOffset:     decimal.Zero,
		Payments:             PaymentRecords{},
		IsCreditInvoice:      true,
		OriginalInvoiceID:    &originalID,
		Notes:                strings.TrimSpace(notes),
	}

	lines := make([]InvoiceLine, len(selected))
	for pos, l := range selected {
		lines[pos] = l.Negated(inv.ID, pos)
	}
	inv.setLines(lines)
	if !inv.Total.IsNegative() {
		return nil, shared.NewValidationError("selected lines of invoice %s credit nothing (total %s)", original.InvoiceNumber, inv.Total.Neg().StringFixed(2))
	}

	inv.AddDomainEvent(NewCreditInvoiceCreatedEvent(inv))

	return inv, nil
}

// CreditedLineIDs returns the original lines covered by this credit invoice
func (i *Invoice) CreditedLineIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(i.Lines))
	for _, l := range i.Lines {
		if l.SourceLineID != nil {
			ids = append(ids, *l.SourceLineID)
		}
	}
	return ids
}

// ConfirmCredit issues a draft credit invoice. Its full amount becomes credit
// available to the student.
func (i *Invoice) ConfirmCredit(at time.Time) error {
	if !i.IsCreditInvoice {
		return shared.NewInvalidInvoiceStateError("invoice %s is not a credit invoice", i.InvoiceNumber)
	}
	if i.Status != InvoiceStatusDraft {
		return shared.NewInvalidStateTransitionError(string(i.Status), string(InvoiceStatusSent))
	}

	i.Status = InvoiceStatusSent
	i.SentAt = &at
	i.Touch(time.Now())

	i.AddDomainEvent(NewCreditInvoiceConfirmedEvent(i))

	return nil
}

// UnconsumedCredit returns the credit still available on a confirmed credit invoice
func (i *Invoice) UnconsumedCredit() decimal.Decimal {
	if !i.IsCreditInvoice || !i.Status.IsIssued() {
		return decimal.Zero
	}
	return i.Balance().Neg()
}

// OffsetCredit moves as much unconsumed credit as the target still owes from
// the credit invoice onto the target and returns the amount moved.
func OffsetCredit(credit, target *Invoice, at time.Time) (decimal.Decimal, error) {
	if !credit.IsCreditInvoice || !credit.Status.IsOpen() {
		return decimal.Zero, shared.NewInvalidInvoiceStateError("invoice %s has no credit to offset", credit.InvoiceNumber)
	}
	if !target.AcceptsSettlement() {
		return decimal.Zero, shared.NewInvalidInvoiceStateError("invoice %s is %s and cannot receive credit", target.InvoiceNumber, target.Status)
	}
	if credit.StudentID != target.StudentID {
		return decimal.Zero, shared.NewValidationError("credit invoice belongs to a different student")
	}

	amount := decimal.Min(credit.UnconsumedCredit(), target.Balance())
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}

	credit.CreditNoteOffset = credit.CreditNoteOffset.Add(amount)
	credit.Touch(time.Now())
	target.CreditNoteOffset = target.CreditNoteOffset.Add(amount)
	target.Touch(time.Now())

	target.AddDomainEvent(NewCreditOffsetAppliedEvent(credit, target, amount))
	credit.settle(at)
	target.settle(at)

	return amount, nil
}
