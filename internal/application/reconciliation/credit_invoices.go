package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/telemetry"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreateCreditInvoice drafts a credit invoice for selected lines of an issued
// invoice. The original stays untouched until the credit invoice is confirmed.
func (c *Coordinator) CreateCreditInvoice(ctx context.Context, req CreateCreditInvoiceRequest) (*InvoiceResponse, error) {
	if req.InvoiceID == uuid.Nil {
		return nil, shared.NewValidationError("invoice ID is required")
	}
	if len(req.LineIDs) == 0 {
		return nil, shared.NewValidationError("at least one line must be selected")
	}

	studentID, err := c.studentOfInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	var credit *invoicing.Invoice
	err = c.execute(ctx, "create_credit_invoice", studentID, func(ctx context.Context, uow *unitOfWork) error {
		original, err := uow.repos.InvoiceRepo().FindByID(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		existing, err := uow.repos.InvoiceRepo().FindCreditInvoicesByOriginal(ctx, original.ID)
		if err != nil {
			return err
		}
		credited := creditedLines(existing)

		issueDate := c.now()
		if req.IssueDate != nil {
			issueDate = req.IssueDate.UTC()
		}
		number, err := c.nextNumber(ctx, uow, invoicing.NumberPrefixCreditInvoice, issueDate)
		if err != nil {
			return err
		}
		credit, err = invoicing.NewCreditInvoice(original, req.LineIDs, credited, req.Notes, number, issueDate, req.ActorID)
		if err != nil {
			return err
		}
		return uow.createInvoice(ctx, credit)
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordInvoiceEvent(ctx, "create_credit_invoice", true)
	resp := ToInvoiceResponse(credit, c.now())
	return &resp, nil
}

// ConfirmCreditInvoice issues a draft credit invoice. Its credit is offset
// against the original invoice as far as that invoice is still open; any
// excess stays on the credit invoice for ApplyCreditInvoices.
func (c *Coordinator) ConfirmCreditInvoice(ctx context.Context, req ConfirmCreditInvoiceRequest) (*ConfirmCreditInvoiceResponse, error) {
	if req.InvoiceID == uuid.Nil {
		return nil, shared.NewValidationError("invoice ID is required")
	}
	studentID, err := c.studentOfInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	var result *ConfirmCreditInvoiceResponse
	err = c.execute(ctx, "confirm_credit_invoice", studentID, func(ctx context.Context, uow *unitOfWork) error {
		credit, err := uow.repos.InvoiceRepo().FindByID(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		if !credit.IsCreditInvoice || credit.OriginalInvoiceID == nil {
			return shared.NewInvalidInvoiceStateError("invoice %s is not a credit invoice", credit.InvoiceNumber)
		}
		original, err := uow.repos.InvoiceRepo().FindByID(ctx, *credit.OriginalInvoiceID)
		if err != nil {
			return err
		}

		now := c.now()
		if err := credit.ConfirmCredit(now); err != nil {
			return err
		}
		row, err := invoicing.CreditConfirmationRow(credit, req.ActorID)
		if err != nil {
			return err
		}
		uow.record(row)

		offset := decimal.Zero
		if original.AcceptsSettlement() && original.Balance().IsPositive() {
			offset, err = invoicing.OffsetCredit(credit, original, now)
			if err != nil {
				return err
			}
		}
		if offset.IsPositive() {
			rows, err := invoicing.CreditOffsetRows(credit, original, offset, req.ActorID)
			if err != nil {
				return err
			}
			uow.record(rows...)
			if err := uow.saveInvoice(ctx, original); err != nil {
				return err
			}
		}
		if err := uow.saveInvoice(ctx, credit); err != nil {
			return err
		}

		result = &ConfirmCreditInvoiceResponse{
			CreditInvoice: ToInvoiceResponse(credit, now),
			Original:      ToInvoiceResponse(original, now),
			OffsetAmount:  offset,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordCreditInvoiceConfirmed(ctx)
	return result, nil
}

// ApplyCreditInvoices settles an open invoice from the student's credit pool:
// first the unconsumed credit of confirmed credit invoices, oldest first, then
// open credit corrections, oldest first. It stops once the invoice is settled.
func (c *Coordinator) ApplyCreditInvoices(ctx context.Context, req ApplyCreditInvoicesRequest) (*ApplyCreditInvoicesResponse, error) {
	if req.InvoiceID == uuid.Nil {
		return nil, shared.NewValidationError("invoice ID is required")
	}
	studentID, err := c.studentOfInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	var result *ApplyCreditInvoicesResponse
	var applied []*ledger.LedgerEntry
	err = c.execute(ctx, "apply_credit_invoices", studentID, func(ctx context.Context, uow *unitOfWork) error {
		target, err := uow.repos.InvoiceRepo().FindByID(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		if !target.AcceptsSettlement() {
			return shared.NewInvalidInvoiceStateError("invoice %s is %s and cannot receive credit", target.InvoiceNumber, target.Status)
		}

		creditInvoices, err := uow.repos.InvoiceRepo().FindUnconsumedCreditInvoices(ctx, target.StudentID)
		if err != nil {
			return err
		}
		creditInvoices = lo.Filter(creditInvoices, func(ci *invoicing.Invoice, _ int) bool {
			return ci.UnconsumedCredit().IsPositive()
		})
		corrections, err := uow.repos.EntryRepo().FindApplicableCredits(ctx, target.StudentID)
		if err != nil {
			return err
		}
		corrections = lo.Filter(corrections, func(e *ledger.LedgerEntry, _ int) bool {
			return e.RemainingAmount.IsPositive()
		})
		if len(creditInvoices) == 0 && len(corrections) == 0 {
			return shared.NewInsufficientRemainingAmountError("student has no credit to apply to invoice %s", target.InvoiceNumber)
		}

		now := c.now()
		var sources []CreditSourceResponse
		for _, ci := range creditInvoices {
			if !target.Balance().IsPositive() {
				break
			}
			amount, err := invoicing.OffsetCredit(ci, target, now)
			if err != nil {
				return err
			}
			if !amount.IsPositive() {
				continue
			}
			rows, err := invoicing.CreditOffsetRows(ci, target, amount, req.ActorID)
			if err != nil {
				return err
			}
			uow.record(rows...)
			if err := uow.saveInvoice(ctx, ci); err != nil {
				return err
			}
			sources = append(sources, CreditSourceResponse{
				SourceType: CreditSourceCreditInvoice,
				SourceID:   ci.ID,
				Amount:     amount,
			})
		}

		for _, entry := range corrections {
			if !target.Balance().IsPositive() {
				break
			}
			amount := entry.AvailableFor(target)
			if !amount.IsPositive() {
				continue
			}
			app, err := entry.Apply(target, amount, req.ActorID)
			if err != nil {
				return err
			}
			if err := target.AttachApplication(app); err != nil {
				return err
			}
			if err := uow.saveEntry(ctx, entry); err != nil {
				return err
			}
			uow.record(ledger.AppliedRow(entry, app))
			applied = append(applied, entry)
			appID := app.ID
			sources = append(sources, CreditSourceResponse{
				SourceType:    CreditSourceCorrection,
				SourceID:      entry.ID,
				Amount:        amount,
				ApplicationID: &appID,
			})
		}

		if len(sources) == 0 {
			return shared.NewInsufficientRemainingAmountError("student has no credit to apply to invoice %s", target.InvoiceNumber)
		}
		if err := uow.saveInvoice(ctx, target); err != nil {
			return err
		}

		total := lo.Reduce(sources, func(sum decimal.Decimal, s CreditSourceResponse, _ int) decimal.Decimal {
			return sum.Add(s.Amount)
		}, decimal.Zero)
		result = &ApplyCreditInvoicesResponse{
			Invoice:      ToInvoiceResponse(target, now),
			Sources:      sources,
			TotalApplied: total,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, entry := range applied {
		c.metrics.RecordApplication(ctx, string(entry.EntryType), telemetry.ApplicationActionApplied)
	}
	c.metrics.RecordInvoiceEvent(ctx, "apply_credit_invoices", false)
	return result, nil
}

// creditedLines collects the original lines already covered by non-cancelled credit invoices
func creditedLines(creditInvoices []*invoicing.Invoice) map[uuid.UUID]bool {
	credited := make(map[uuid.UUID]bool)
	for _, ci := range creditInvoices {
		if ci.Status == invoicing.InvoiceStatusCancelled {
			continue
		}
		for _, id := range ci.CreditedLineIDs() {
			credited[id] = true
		}
	}
	return credited
}
