package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of event recorded on a student's ledger
type TransactionType string

const (
	TransactionTypeInvoiceCharge       TransactionType = "INVOICE_CHARGE"
	TransactionTypePayment             TransactionType = "PAYMENT"
	TransactionTypeCreditCorrection    TransactionType = "CREDIT_CORRECTION"
	TransactionTypeDebitCorrection     TransactionType = "DEBIT_CORRECTION"
	TransactionTypeReversal            TransactionType = "REVERSAL"
	TransactionTypeInvoiceCancellation TransactionType = "INVOICE_CANCELLATION"
	TransactionTypeInvoiceAdjustment   TransactionType = "INVOICE_ADJUSTMENT"
	TransactionTypeCorrectionApplied   TransactionType = "CORRECTION_APPLIED"
	TransactionTypeCreditOffset        TransactionType = "CREDIT_OFFSET"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid returns true if the transaction type is valid
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeInvoiceCharge,
		TransactionTypePayment,
		TransactionTypeCreditCorrection,
		TransactionTypeDebitCorrection,
		TransactionTypeReversal,
		TransactionTypeInvoiceCancellation,
		TransactionTypeInvoiceAdjustment,
		TransactionTypeCorrectionApplied,
		TransactionTypeCreditOffset:
		return true
	}
	return false
}

// StudentTransaction is one immutable row of a student's transaction ledger.
// Rows are only ever appended; history is corrected with new offsetting rows.
//
// Debit and Credit move the student's running balance (Σdebit − Σcredit is what
// the student owes). InvoiceDelta is the signed effect on the linked invoice's
// open balance, which lets every invoice balance be rebuilt from the ledger alone.
type StudentTransaction struct {
	ID            uuid.UUID
	Sequence      int64 // assigned by storage on append
	StudentID     uuid.UUID
	Date          time.Time
	Type          TransactionType
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	InvoiceID     *uuid.UUID
	InvoiceDelta  decimal.Decimal
	LedgerEntryID *uuid.UUID
	ApplicationID *uuid.UUID
	Description   string
	CreatedBy     *uuid.UUID
	CreatedAt     time.Time
}

// NewStudentTransaction creates a ledger row. Exactly the structural checks are
// made here; business rules are enforced by the aggregates before a row is built.
func NewStudentTransaction(
	studentID uuid.UUID,
	txType TransactionType,
	debit, credit decimal.Decimal,
) (*StudentTransaction, error) {
	if studentID == uuid.Nil {
		return nil, shared.NewValidationError("student ID cannot be empty")
	}
	if !txType.IsValid() {
		return nil, shared.NewValidationError("invalid transaction type %q", txType)
	}
	if debit.IsNegative() || credit.IsNegative() {
		return nil, shared.NewValidationError("debit and credit cannot be negative")
	}

	now := time.Now()
	return &StudentTransaction{
		ID:        uuid.New(),
		StudentID: studentID,
		Date:      now,
		Type:      txType,
		Debit:     debit,
		Credit:    credit,
		CreatedAt: now,
	}, nil
}

// mustTransaction is used by the typed constructors below, whose inputs are
// already validated aggregates.
func mustTransaction(studentID uuid.UUID, txType TransactionType, debit, credit decimal.Decimal) *StudentTransaction {
	tx, err := NewStudentTransaction(studentID, txType, debit, credit)
	if err != nil {
		panic(err)
	}
	return tx
}

// WithInvoice links the row to an invoice and records its effect on that invoice's balance
func (t *StudentTransaction) WithInvoice(invoiceID uuid.UUID, delta decimal.Decimal) *StudentTransaction {
	t.InvoiceID = &invoiceID
	t.InvoiceDelta = delta
	return t
}

// WithLedgerEntry links the row to a correction
func (t *StudentTransaction) WithLedgerEntry(entryID uuid.UUID) *StudentTransaction {
	t.LedgerEntryID = &entryID
	return t
}

// WithApplication links the row to a correction application
func (t *StudentTransaction) WithApplication(applicationID uuid.UUID) *StudentTransaction {
	t.ApplicationID = &applicationID
	return t
}

// WithDescription sets the human-readable description
func (t *StudentTransaction) WithDescription(description string) *StudentTransaction {
	t.Description = description
	return t
}

// WithCreatedBy sets the acting user
func (t *StudentTransaction) WithCreatedBy(userID *uuid.UUID) *StudentTransaction {
	t.CreatedBy = userID
	return t
}

// WithDate sets the booking date
func (t *StudentTransaction) WithDate(date time.Time) *StudentTransaction {
	t.Date = date
	return t
}

// Net returns debit − credit, the row's contribution to the student's balance
func (t *StudentTransaction) Net() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// CorrectionRow records the creation of a correction
func CorrectionRow(e *LedgerEntry) *StudentTransaction {
	txType := TransactionTypeCreditCorrection
	debit, credit := decimal.Zero, e.Amount
	if e.EntryType == EntryTypeDebit {
		txType = TransactionTypeDebitCorrection
		debit, credit = e.Amount, decimal.Zero
	}
	return mustTransaction(e.StudentID, txType, debit, credit).
		WithLedgerEntry(e.ID).
		WithDescription(e.Description).
		WithCreatedBy(e.CreatedBy).
		WithDate(e.CreatedAt)
}

// ReversalRow records the offsetting entry created by a reversal. It books the
// opposite side of the original correction, so the two rows net to zero.
func ReversalRow(offset *LedgerEntry) *StudentTransaction {
	debit, credit := decimal.Zero, offset.Amount
	if offset.EntryType == EntryTypeDebit {
		debit, credit = offset.Amount, decimal.Zero
	}
	return mustTransaction(offset.StudentID, TransactionTypeReversal, debit, credit).
		WithLedgerEntry(offset.ID).
		WithDescription(offset.ReversalReason).
		WithCreatedBy(offset.CreatedBy).
		WithDate(offset.CreatedAt)
}

// AppliedRow records a correction application against an invoice
func AppliedRow(e *LedgerEntry, app *LedgerApplication) *StudentTransaction {
	return mustTransaction(e.StudentID, TransactionTypeCorrectionApplied, decimal.Zero, decimal.Zero).
		WithInvoice(app.InvoiceID, app.InvoiceDelta()).
		WithLedgerEntry(e.ID).
		WithApplication(app.ID).
		WithDescription(e.Description).
		WithCreatedBy(app.AppliedBy).
		WithDate(app.AppliedAt)
}

// DecoupledRow records the removal of an application, undoing its invoice effect
func DecoupledRow(e *LedgerEntry, app *LedgerApplication) *StudentTransaction {
	at := time.Now()
	if app.DecoupledAt != nil {
		at = *app.DecoupledAt
	}
	return mustTransaction(e.StudentID, TransactionTypeCreditOffset, decimal.Zero, decimal.Zero).
		WithInvoice(app.InvoiceID, app.InvoiceDelta().Neg()).
		WithLedgerEntry(e.ID).
		WithApplication(app.ID).
		WithDescription(app.DecoupleReason).
		WithCreatedBy(app.DecoupledBy).
		WithDate(at)
}
