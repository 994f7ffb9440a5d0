package invoicing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:     {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:      {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue:   {InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusSent},
	InvoiceStatusPaid:      {},
	InvoiceStatusCancelled: {},
}

// IsValid returns true if the status is valid
func (s InvoiceStatus) IsValid() bool {
	_, ok := invoiceTransitions[s]
	return ok
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// IsIssued returns true once the invoice has been charged to the student
func (s InvoiceStatus) IsIssued() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusOverdue || s == InvoiceStatusPaid
}

// IsOpen returns true if the invoice is issued and still awaiting settlement
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusOverdue
}

// Invoice is the aggregate root for student invoices and credit invoices.
//
// Subtotal, VATAmount and Total are always derived from Lines. The open balance
// is derived from Total and the settlement totals, never stored.
type Invoice struct {
	shared.StudentAggregateRoot
	InvoiceNumber     string
	EnrollmentID      *uuid.UUID
	IssueDate         time.Time
	DueDate           time.Time
	Status            InvoiceStatus
	Lines             InvoiceLines
	Subtotal          decimal.Decimal
	VATAmount         decimal.Decimal
	Total             decimal.Decimal
	PricingSnapshot   PricingSnapshot
	PaidAmount        decimal.Decimal
	CreditApplied     decimal.Decimal // active credit correction applications
	DebitApplied      decimal.Decimal // active debit correction applications
	CreditNoteOffset  decimal.Decimal // received offsets, or consumed credit on a credit invoice
	Payments          PaymentRecords
	IsCreditInvoice   bool
	OriginalInvoiceID *uuid.UUID
	Notes             string
	SentAt            *time.Time
	PaidAt            *time.Time
	CancelledAt       *time.Time
	CancelReason      string
}

var _ ledger.ApplicationTarget = (*Invoice)(nil)

// NewInvoice creates a draft invoice whose lines are generated from the pricing snapshot
func NewInvoice(
	studentID uuid.UUID,
	enrollmentID *uuid.UUID,
	number string,
	issueDate, dueDate time.Time,
	snapshot PricingSnapshot,
	createdBy *uuid.UUID,
) (*Invoice, error) {
	if studentID == uuid.Nil {
		return nil, shared.NewValidationError("student ID cannot be empty")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, shared.NewValidationError("invoice number cannot be empty")
	}
	if issueDate.IsZero() || dueDate.IsZero() {
		return nil, shared.NewValidationError("issue date and due date are required")
	}
	if dueDate.Before(issueDate) {
		return nil, shared.NewValidationError("due date cannot be before issue date")
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	inv := &Invoice{
		StudentAggregateRoot: shared.NewStudentAggregateRoot(studentID, createdBy),
		InvoiceNumber:        number,
		EnrollmentID:         enrollmentID,
		IssueDate:            issueDate,
		DueDate:              dueDate,
		Status:               InvoiceStatusDraft,
		PricingSnapshot:      snapshot,
		PaidAmount:           decimal.Zero,
		CreditApplied:        decimal.Zero,
		DebitApplied:         decimal.Zero,
		CreditNoteOffset:     decimal.Zero,
		Payments:             PaymentRecords{},
	}
	inv.setLines(BuildLines(inv.ID, snapshot))

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

// Balance returns the open amount of the invoice. A cancelled invoice owes
// nothing; a credit invoice returns its unconsumed credit as a negative amount.
func (i *Invoice) Balance() decimal.Decimal {
	if i.Status == InvoiceStatusCancelled {
		return decimal.Zero
	}
	if i.IsCreditInvoice {
		return i.Total.Add(i.CreditNoteOffset)
	}
	return i.balanceFor(i.Total)
}

func (i *Invoice) balanceFor(total decimal.Decimal) decimal.Decimal {
	return total.
		Sub(i.PaidAmount).
		Sub(i.CreditApplied).
		Add(i.DebitApplied).
		Sub(i.CreditNoteOffset)
}

// OpenBalance is what corrections may still settle
func (i *Invoice) OpenBalance() decimal.Decimal {
	return i.Balance()
}

// CanAcceptApplication reports whether corrections may be applied to the invoice
func (i *Invoice) CanAcceptApplication() error {
	if i.IsCreditInvoice {
		return shared.NewInvalidInvoiceStateError("corrections cannot be applied to credit invoice %s", i.InvoiceNumber)
	}
	if i.Status.IsTerminal() {
		return shared.NewInvalidInvoiceStateError("invoice %s is %s", i.InvoiceNumber, i.Status)
	}
	return nil
}

// AcceptsSettlement reports whether payments and credit offsets may be booked
func (i *Invoice) AcceptsSettlement() bool {
	return !i.IsCreditInvoice && i.Status.IsOpen()
}

// Send issues a draft invoice
func (i *Invoice) Send(at time.Time) error {
	if i.Status != InvoiceStatusDraft {
		return shared.NewInvalidStateTransitionError(string(i.Status), string(InvoiceStatusSent))
	}
	if i.IsCreditInvoice {
		return shared.NewInvalidInvoiceStateError("credit invoice %s must be confirmed, not sent", i.InvoiceNumber)
	}
	if !i.Total.IsPositive() {
		return shared.NewInvalidInvoiceStateError("invoice %s has no positive total", i.InvoiceNumber)
	}
	if i.Balance().IsNegative() {
		return shared.NewInvalidInvoiceStateError("invoice %s would be issued with a negative balance", i.InvoiceNumber)
	}

	i.Status = InvoiceStatusSent
	i.SentAt = &at
	i.Touch(time.Now())
	i.AddDomainEvent(NewInvoiceSentEvent(i))
	i.settle(at)

	return nil
}

// Recalculate regenerates the lines from the stored pricing snapshot, or from a
// replacement snapshot, and returns the change in total.
// Running it twice on an unchanged snapshot yields identical lines and totals.
func (i *Invoice) Recalculate(replacement *PricingSnapshot) (decimal.Decimal, error) {
	if i.IsCreditInvoice {
		return decimal.Zero, shared.NewInvalidInvoiceStateError("credit invoice %s cannot be recalculated", i.InvoiceNumber)
	}
	if i.Status.IsTerminal() {
		return decimal.Zero, shared.NewInvalidInvoiceStateError("invoice %s is %s and cannot be recalculated", i.InvoiceNumber, i.Status)
	}

	snapshot := i.PricingSnapshot
	if replacement != nil {
		if err := replacement.Validate(); err != nil {
			return decimal.Zero, err
		}
		snapshot = *replacement
	}

	lines := BuildLines(i.ID, snapshot)
	totals := SumLines(lines)
	if i.balanceFor(totals.Total).IsNegative() {
		return decimal.Zero, shared.NewInvalidInvoiceStateError(
			"new total %s is below the amount already settled on invoice %s",
			totals.Total.StringFixed(2), i.InvoiceNumber)
	}

	delta := totals.Total.Sub(i.Total)
	i.PricingSnapshot = snapshot
	i.setLines(lines)
	i.Touch(time.Now())

	if !delta.IsZero() {
		i.AddDomainEvent(NewInvoiceRecalculatedEvent(i, delta))
	}
	i.settle(time.Now())

	return delta, nil
}

// RecordPayment books a payment against the open balance
func (i *Invoice) RecordPayment(amount decimal.Decimal, method PaymentMethod, reference string, recordedBy *uuid.UUID, at time.Time) (*PaymentRecord, error) {
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewValidationError("invalid payment method: %s", method)
	}
	if i.IsCreditInvoice {
		return nil, shared.NewInvalidInvoiceStateError("payments cannot be recorded on credit invoice %s", i.InvoiceNumber)
	}
	switch i.Status {
	case InvoiceStatusPaid:
		return nil, shared.NewOverpaymentError("invoice %s is already paid", i.InvoiceNumber)
	case InvoiceStatusDraft, InvoiceStatusCancelled:
		return nil, shared.NewInvalidInvoiceStateError("invoice %s is %s and cannot take payments", i.InvoiceNumber, i.Status)
	}

	balance := i.Balance()
	if amount.GreaterThan(balance) {
		return nil, shared.NewOverpaymentError(
			"payment %s exceeds outstanding balance %s",
			amount.StringFixed(2), balance.StringFixed(2))
	}

	record := PaymentRecord{
		ID:         uuid.New(),
		Amount:     amount,
		Method:     method,
		Reference:  strings.TrimSpace(reference),
		PaidAt:     at,
		RecordedBy: recordedBy,
	}
	i.Payments = append(i.Payments, record)
	i.PaidAmount = i.PaidAmount.Add(amount)
	i.Touch(time.Now())

	i.AddDomainEvent(NewPaymentRecordedEvent(i, &record))
	i.settle(at)

	return &record, nil
}

// AttachApplication books a correction application on the invoice side
func (i *Invoice) AttachApplication(app *ledger.LedgerApplication) error {
	if err := i.CanAcceptApplication(); err != nil {
		return err
	}
	if app.InvoiceID != i.ID {
		return shared.NewValidationError("application belongs to a different invoice")
	}
	next := i.withApplication(app, 1)
	if next.IsNegative() {
		return shared.NewInsufficientRemainingAmountError(
			"application %s exceeds invoice balance %s",
			app.AppliedAmount.StringFixed(2), i.Balance().StringFixed(2))
	}

	i.applyApplication(app, 1)
	i.settle(app.AppliedAt)
	return nil
}

// CanDetachApplication checks that removing the application keeps the invoice consistent.
// Paid and cancelled invoices are closed, so their applications stay in place.
func (i *Invoice) CanDetachApplication(app *ledger.LedgerApplication) error {
	if app.InvoiceID != i.ID {
		return shared.NewValidationError("application belongs to a different invoice")
	}
	if i.Status.IsTerminal() {
		return shared.NewInvalidInvoiceStateError("invoice %s is %s", i.InvoiceNumber, i.Status)
	}
	if i.withApplication(app, -1).IsNegative() {
		return shared.NewInvalidInvoiceStateError(
			"removing the application would leave invoice %s with a negative balance", i.InvoiceNumber)
	}
	return nil
}

// DetachApplication undoes the invoice side of a decoupled application
func (i *Invoice) DetachApplication(app *ledger.LedgerApplication) error {
	if err := i.CanDetachApplication(app); err != nil {
		return err
	}
	i.applyApplication(app, -1)
	i.settle(time.Now())
	return nil
}

// withApplication returns the balance after adding (sign 1) or removing (sign -1) an application
func (i *Invoice) withApplication(app *ledger.LedgerApplication, sign int64) decimal.Decimal {
	return i.Balance().Add(app.InvoiceDelta().Mul(decimal.NewFromInt(sign)))
}

func (i *Invoice) applyApplication(app *ledger.LedgerApplication, sign int64) {
	amount := app.AppliedAmount.Mul(decimal.NewFromInt(sign))
	if app.EntryType == ledger.EntryTypeDebit {
		i.DebitApplied = i.DebitApplied.Add(amount)
	} else {
		i.CreditApplied = i.CreditApplied.Add(amount)
	}
	i.Touch(time.Now())
}

// HasSettlements reports whether anything besides the charge touched the invoice
func (i *Invoice) HasSettlements() bool {
	return !i.PaidAmount.IsZero() ||
		!i.CreditApplied.IsZero() ||
		!i.DebitApplied.IsZero() ||
		!i.CreditNoteOffset.IsZero()
}

// Cancel voids the invoice and returns the balance that was still open.
// Invoices with payments, applications or credit offsets must be unwound first.
func (i *Invoice) Cancel(reason string, at time.Time) (decimal.Decimal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return decimal.Zero, shared.NewValidationError("cancel reason is required")
	}
	if !i.Status.CanTransitionTo(InvoiceStatusCancelled) {
		return decimal.Zero, shared.NewInvalidInvoiceStateError("invoice %s is %s and cannot be cancelled", i.InvoiceNumber, i.Status)
	}
	if i.IsCreditInvoice && i.Status != InvoiceStatusDraft {
		return decimal.Zero, shared.NewInvalidInvoiceStateError("confirmed credit invoice %s cannot be cancelled", i.InvoiceNumber)
	}
	if i.HasSettlements() {
		return decimal.Zero, shared.NewInvalidInvoiceStateError(
			"invoice %s has payments, applications or credit offsets", i.InvoiceNumber)
	}

	open := i.Balance()
	i.Status = InvoiceStatusCancelled
	i.CancelledAt = &at
	i.CancelReason = reason
	i.Touch(time.Now())

	i.AddDomainEvent(NewInvoiceCancelledEvent(i, open))

	return open, nil
}

// RefreshOverdue moves a sent invoice past its due date to OVERDUE, and an
// overdue invoice whose due date is no longer passed back to SENT.
// It returns true if the status changed.
func (i *Invoice) RefreshOverdue(now time.Time) bool {
	if i.IsCreditInvoice {
		return false
	}
	target := i.EffectiveStatus(now)
	if target == i.Status || !i.Status.CanTransitionTo(target) {
		return false
	}
	i.Status = target
	i.Touch(time.Now())
	if target == InvoiceStatusOverdue {
		i.AddDomainEvent(NewInvoiceOverdueEvent(i))
	}
	return true
}

// EffectiveStatus returns the status as of now, deriving OVERDUE on read
func (i *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.IsCreditInvoice || !i.Status.IsOpen() {
		return i.Status
	}
	if i.IsPastDue(now) && i.Balance().IsPositive() {
		return InvoiceStatusOverdue
	}
	return InvoiceStatusSent
}

// IsPastDue returns true if the due date lies before now
func (i *Invoice) IsPastDue(now time.Time) bool {
	return i.DueDate.Before(now)
}

// LineByID finds a line of the invoice
func (i *Invoice) LineByID(id uuid.UUID) (InvoiceLine, bool) {
	for _, l := range i.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return InvoiceLine{}, false
}

// CheckInvariants verifies derived totals and balance bounds
func (i *Invoice) CheckInvariants() error {
	totals := SumLines(i.Lines)
	if !totals.Total.Equal(i.Total) || !totals.Subtotal.Equal(i.Subtotal) || !totals.VATAmount.Equal(i.VATAmount) {
		return shared.NewDomainError(shared.CodeInvalidInvoiceState, "invoice totals do not match its lines")
	}
	if !i.Payments.Total().Equal(i.PaidAmount) {
		return shared.NewDomainError(shared.CodeInvalidInvoiceState, "paid amount does not match payment records")
	}
	balance := i.Balance()
	if !i.IsCreditInvoice && balance.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidInvoiceState, "invoice balance is negative")
	}
	if i.IsCreditInvoice && balance.IsPositive() {
		return shared.NewDomainError(shared.CodeInvalidInvoiceState, "credit invoice balance is positive")
	}
	if i.Status == InvoiceStatusPaid && !balance.IsZero() {
		return shared.NewDomainError(shared.CodeInvalidInvoiceState, "paid invoice has an open balance")
	}
	return nil
}

// settle moves an issued invoice whose balance reached zero to PAID
func (i *Invoice) settle(at time.Time) {
	if !i.Status.IsOpen() || !i.Balance().IsZero() {
		return
	}
	i.Status = InvoiceStatusPaid
	i.PaidAt = &at
	i.AddDomainEvent(NewInvoicePaidEvent(i))
}

func (i *Invoice) setLines(lines []InvoiceLine) {
	totals := SumLines(lines)
	i.Lines = lines
	i.Subtotal = totals.Subtotal
	i.VATAmount = totals.VATAmount
	i.Total = totals.Total
}
