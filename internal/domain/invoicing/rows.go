package invoicing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ChargeRow records an invoice being sent: the student owes its total
func ChargeRow(inv *Invoice) (*ledger.StudentTransaction, error) {
	row, err := ledger.NewStudentTransaction(inv.StudentID, ledger.TransactionTypeInvoiceCharge, inv.Total, decimal.Zero)
	if err != nil {
		return nil, err
	}
	return row.
		WithInvoice(inv.ID, inv.Total).
		WithDescription(fmt.Sprintf("Invoice %s", inv.InvoiceNumber)).
		WithCreatedBy(inv.CreatedBy).
		WithDate(sentAt(inv)), nil
}

// AdjustmentRow records a change of an issued invoice's total
func AdjustmentRow(inv *Invoice, delta decimal.Decimal, by *uuid.UUID) (*ledger.StudentTransaction, error) {
	debit, credit := decimal.Zero, decimal.Zero
	if delta.IsPositive() {
		debit = delta
	} else {
		credit = delta.Neg()
	}
	row, err := ledger.NewStudentTransaction(inv.StudentID, ledger.TransactionTypeInvoiceAdjustment, debit, credit)
	if err != nil {
		return nil, err
	}
	return row.
		WithInvoice(inv.ID, delta).
		WithDescription(fmt.Sprintf("Recalculation of invoice %s", inv.InvoiceNumber)).
		WithCreatedBy(by), nil
}

// CancellationRow records the open balance of a cancelled invoice being written off
func CancellationRow(inv *Invoice, open decimal.Decimal, by *uuid.UUID) (*ledger.StudentTransaction, error) {
	row, err := ledger.NewStudentTransaction(inv.StudentID, ledger.TransactionTypeInvoiceCancellation, decimal.Zero, open)
	if err != nil {
		return nil, err
	}
	date := time.Now()
	if inv.CancelledAt != nil {
		date = *inv.CancelledAt
	}
	return row.
		WithInvoice(inv.ID, open.Neg()).
		WithDescription(fmt.Sprintf("Cancellation of invoice %s: %s", inv.InvoiceNumber, inv.CancelReason)).
		WithCreatedBy(by).
		WithDate(date), nil
}

// PaymentRow records a payment received
func PaymentRow(inv *Invoice, p *PaymentRecord) (*ledger.StudentTransaction, error) {
	row, err := ledger.NewStudentTransaction(inv.StudentID, ledger.TransactionTypePayment, decimal.Zero, p.Amount)
	if err != nil {
		return nil, err
	}
	description := fmt.Sprintf("Payment for invoice %s", inv.InvoiceNumber)
	if p.Reference != "" {
		description = fmt.Sprintf("%s (%s)", description, p.Reference)
	}
	return row.
		WithInvoice(inv.ID, p.Amount.Neg()).
		WithDescription(description).
		WithCreatedBy(p.RecordedBy).
		WithDate(p.PaidAt), nil
}

// CreditConfirmationRow records the full credit of a confirmed credit invoice
func CreditConfirmationRow(credit *Invoice, by *uuid.UUID) (*ledger.StudentTransaction, error) {
	amount := credit.Total.Neg()
	if !credit.IsCreditInvoice || !amount.IsPositive() {
		return nil, shared.NewInvalidInvoiceStateError("invoice %s has no credit to confirm (total %s)", credit.InvoiceNumber, credit.Total.StringFixed(2))
	}
	row, err := ledger.NewStudentTransaction(credit.StudentID, ledger.TransactionTypeInvoiceAdjustment, decimal.Zero, amount)
	if err != nil {
		return nil, err
	}
	return row.
		WithInvoice(credit.ID, credit.Total).
		WithDescription(fmt.Sprintf("Credit invoice %s", credit.InvoiceNumber)).
		WithCreatedBy(by).
		WithDate(sentAt(credit)), nil
}

// CreditOffsetRows records credit moving from a credit invoice onto a target.
// The pair is zero-sum on the student balance.
func CreditOffsetRows(credit, target *Invoice, amount decimal.Decimal, by *uuid.UUID) ([]*ledger.StudentTransaction, error) {
	onTarget, err := ledger.NewStudentTransaction(target.StudentID, ledger.TransactionTypeInvoiceAdjustment, decimal.Zero, decimal.Zero)
	if err != nil {
		return nil, err
	}
	onCredit, err := ledger.NewStudentTransaction(credit.StudentID, ledger.TransactionTypeInvoiceAdjustment, decimal.Zero, decimal.Zero)
	if err != nil {
		return nil, err
	}
	return []*ledger.StudentTransaction{
		onTarget.
			WithInvoice(target.ID, amount.Neg()).
			WithDescription(fmt.Sprintf("Credit from %s", credit.InvoiceNumber)).
			WithCreatedBy(by),
		onCredit.
			WithInvoice(credit.ID, amount).
			WithDescription(fmt.Sprintf("Credit used on %s", target.InvoiceNumber)).
			WithCreatedBy(by),
	}, nil
}

func sentAt(inv *Invoice) time.Time {
	if inv.SentAt != nil {
		return *inv.SentAt
	}
	return time.Now()
}
