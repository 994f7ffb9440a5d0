package reconciliation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/logger"
	"github.com/musicschool/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// CreateInvoice creates a draft invoice from a pricing snapshot. The invoice
// number is drawn inside the transaction, so a failed create leaves no gap.
func (c *Coordinator) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	if req.StudentID == uuid.Nil {
		return nil, shared.NewValidationError("student ID cannot be empty")
	}
	if req.IssueDate.IsZero() || req.DueDate.IsZero() {
		return nil, shared.NewValidationError("issue date and due date are required")
	}
	if req.DueDate.Before(req.IssueDate) {
		return nil, shared.NewValidationError("due date cannot be before issue date")
	}
	if err := req.Pricing.Validate(); err != nil {
		return nil, err
	}

	var inv *invoicing.Invoice
	err := c.execute(ctx, "create_invoice", req.StudentID, func(ctx context.Context, uow *unitOfWork) error {
		number, err := c.nextNumber(ctx, uow, invoicing.NumberPrefixInvoice, req.IssueDate)
		if err != nil {
			return err
		}
		inv, err = invoicing.NewInvoice(req.StudentID, req.EnrollmentID, number, req.IssueDate, req.DueDate, req.Pricing, req.ActorID)
		if err != nil {
			return err
		}
		return uow.createInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordInvoiceEvent(ctx, "create_invoice", false)
	resp := ToInvoiceResponse(inv, c.now())
	return &resp, nil
}

// SendInvoice issues a draft invoice and charges its total to the student
func (c *Coordinator) SendInvoice(ctx context.Context, req SendInvoiceRequest) (*InvoiceResponse, error) {
	return c.updateInvoice(ctx, "send_invoice", req.InvoiceID, func(ctx context.Context, uow *unitOfWork, inv *invoicing.Invoice) error {
		at := c.now()
		if req.SentAt != nil {
			at = req.SentAt.UTC()
		}
		if err := inv.Send(at); err != nil {
			return err
		}
		row, err := invoicing.ChargeRow(inv)
		if err != nil {
			return err
		}
		uow.record(row)
		return nil
	})
}

// RecalculateInvoice regenerates the lines of an invoice from its stored
// pricing snapshot, or from a replacement. A changed total on an issued
// invoice is booked as an adjustment.
func (c *Coordinator) RecalculateInvoice(ctx context.Context, req RecalculateInvoiceRequest) (*InvoiceResponse, error) {
	if req.Pricing != nil {
		if err := req.Pricing.Validate(); err != nil {
			return nil, err
		}
	}
	return c.updateInvoice(ctx, "recalculate_invoice", req.InvoiceID, func(ctx context.Context, uow *unitOfWork, inv *invoicing.Invoice) error {
		issued := inv.Status.IsIssued()
		delta, err := inv.Recalculate(req.Pricing)
		if err != nil {
			return err
		}
		inv.RefreshOverdue(c.now())
		if !issued || delta.IsZero() {
			return nil
		}
		row, err := invoicing.AdjustmentRow(inv, delta, req.ActorID)
		if err != nil {
			return err
		}
		uow.record(row)
		return nil
	})
}

// RecordPayment books a payment against an invoice's open balance
func (c *Coordinator) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentResultResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	method := invoicing.PaymentMethod(req.Method)
	if !method.IsValid() {
		return nil, shared.NewValidationError("invalid payment method: %s", req.Method)
	}

	var payment *invoicing.PaymentRecord
	resp, err := c.updateInvoice(ctx, "record_payment", req.InvoiceID, func(ctx context.Context, uow *unitOfWork, inv *invoicing.Invoice) error {
		at := c.now()
		if req.PaidAt != nil {
			at = req.PaidAt.UTC()
		}
		p, err := inv.RecordPayment(req.Amount, method, req.Reference, req.ActorID, at)
		if err != nil {
			return err
		}
		row, err := invoicing.PaymentRow(inv, p)
		if err != nil {
			return err
		}
		uow.record(row)
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordPayment(ctx, string(method), payment.Amount)
	return &PaymentResultResponse{Payment: *payment, Invoice: *resp}, nil
}

// CancelInvoice voids an invoice without settlements. The open balance of an
// issued invoice is written off on the ledger.
func (c *Coordinator) CancelInvoice(ctx context.Context, req CancelInvoiceRequest) (*InvoiceResponse, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, shared.NewValidationError("cancel reason is required")
	}
	return c.updateInvoice(ctx, "cancel_invoice", req.InvoiceID, func(ctx context.Context, uow *unitOfWork, inv *invoicing.Invoice) error {
		issued := inv.Status.IsIssued()
		open, err := inv.Cancel(req.Reason, c.now())
		if err != nil {
			return err
		}
		if !issued || !open.IsPositive() {
			return nil
		}
		row, err := invoicing.CancellationRow(inv, open, req.ActorID)
		if err != nil {
			return err
		}
		uow.record(row)
		return nil
	})
}

// MarkOverdueInvoices moves sent invoices past their due date to OVERDUE.
// Each invoice is its own unit of work; one failure does not stop the sweep.
func (c *Coordinator) MarkOverdueInvoices(ctx context.Context, now time.Time, limit int) (*MarkOverdueResult, error) {
	candidates, err := c.reads.InvoiceRepo().FindOverdueCandidates(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	result := &MarkOverdueResult{Checked: len(candidates)}
	for _, candidate := range candidates {
		marked := false
		err := c.execute(ctx, "mark_overdue", candidate.StudentID, func(ctx context.Context, uow *unitOfWork) error {
			inv, err := uow.repos.InvoiceRepo().FindByID(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if !inv.RefreshOverdue(now) {
				return nil
			}
			marked = true
			return uow.saveInvoice(ctx, inv)
		})
		if err != nil {
			result.Failed++
			logger.WithLogger(ctx, c.logger).Warn("failed to mark invoice overdue",
				zap.String("invoice_id", candidate.ID.String()),
				zap.String("invoice_number", candidate.InvoiceNumber),
				zap.Error(err),
			)
			continue
		}
		if marked {
			result.Marked++
			c.metrics.RecordInvoiceEvent(ctx, "mark_overdue", false)
		}
	}
	return result, nil
}

// updateInvoice loads an invoice under its student's lock, lets fn change it
// and saves it with a version check.
func (c *Coordinator) updateInvoice(
	ctx context.Context,
	op string,
	invoiceID uuid.UUID,
	fn func(ctx context.Context, uow *unitOfWork, inv *invoicing.Invoice) error,
) (*InvoiceResponse, error) {
	if invoiceID == uuid.Nil {
		return nil, shared.NewValidationError("invoice ID is required")
	}
	studentID, err := c.studentOfInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	var inv *invoicing.Invoice
	err = c.execute(ctx, op, studentID, func(ctx context.Context, uow *unitOfWork) error {
		annotate(ctx, telemetry.SpanAttrInvoiceID, invoiceID)
		loaded, err := uow.repos.InvoiceRepo().FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := fn(ctx, uow, loaded); err != nil {
			return err
		}
		inv = loaded
		return uow.saveInvoice(ctx, loaded)
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordInvoiceEvent(ctx, op, inv.IsCreditInvoice)
	resp := ToInvoiceResponse(inv, c.now())
	return &resp, nil
}

// nextNumber draws the next number of a series inside the unit of work
func (c *Coordinator) nextNumber(ctx context.Context, uow *unitOfWork, prefix invoicing.NumberPrefix, issueDate time.Time) (string, error) {
	year := invoicing.NumberYear(issueDate)
	seq, err := uow.repos.Numbers().Next(ctx, prefix, year)
	if err != nil {
		return "", err
	}
	return invoicing.FormatNumber(prefix, year, seq), nil
}
