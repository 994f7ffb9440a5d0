package reconciliation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/telemetry"
)

// CreateCorrection records a manual or course-based credit or debit correction
func (c *Coordinator) CreateCorrection(ctx context.Context, req CreateCorrectionRequest) (*LedgerEntryResponse, error) {
	var opts []ledger.EntryOption
	if req.CourseID != nil {
		opts = append(opts, ledger.WithCourse(*req.CourseID))
	}
	if req.EnrollmentID != nil {
		opts = append(opts, ledger.WithEnrollment(*req.EnrollmentID))
	}
	entry, err := ledger.NewLedgerEntry(
		req.StudentID,
		req.Description,
		req.Amount,
		ledger.EntryType(req.EntryType),
		req.ActorID,
		opts...,
	)
	if err != nil {
		return nil, err
	}

	err = c.execute(ctx, "create_correction", entry.StudentID, func(ctx context.Context, uow *unitOfWork) error {
		if err := uow.createEntry(ctx, entry); err != nil {
			return err
		}
		uow.record(ledger.CorrectionRow(entry))
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordCorrectionCreated(ctx, string(entry.EntryType), string(entry.Source), entry.Amount)
	resp := ToLedgerEntryResponse(entry)
	return &resp, nil
}

// ReverseCorrection cancels an open correction with an offsetting entry of the
// opposite type. Applied corrections have to be decoupled first.
func (c *Coordinator) ReverseCorrection(ctx context.Context, req ReverseCorrectionRequest) (*ReverseCorrectionResponse, error) {
	if req.EntryID == uuid.Nil {
		return nil, shared.NewValidationError("entry ID is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, shared.NewValidationError("reversal reason is required")
	}

	studentID, err := c.studentOfEntry(ctx, req.EntryID)
	if err != nil {
		return nil, err
	}

	var original, offset *ledger.LedgerEntry
	err = c.execute(ctx, "reverse_correction", studentID, func(ctx context.Context, uow *unitOfWork) error {
		annotate(ctx, telemetry.SpanAttrEntryID, req.EntryID)
		entry, err := uow.repos.EntryRepo().FindByID(ctx, req.EntryID)
		if err != nil {
			return err
		}
		reversal, err := entry.Reverse(req.Reason, req.ActorID)
		if err != nil {
			return err
		}
		if err := uow.saveEntry(ctx, entry); err != nil {
			return err
		}
		if err := uow.createEntry(ctx, reversal); err != nil {
			return err
		}
		uow.record(ledger.ReversalRow(reversal))
		original, offset = entry, reversal
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordReversal(ctx, string(original.EntryType))
	return &ReverseCorrectionResponse{
		Original: ToLedgerEntryResponse(original),
		Reversal: ToLedgerEntryResponse(offset),
	}, nil
}

// ApplyCredit applies part of a correction to an invoice. Credits settle the
// invoice; debits add to what is owed on it.
func (c *Coordinator) ApplyCredit(ctx context.Context, req ApplyCreditRequest) (*ApplicationResultResponse, error) {
	if req.EntryID == uuid.Nil || req.InvoiceID == uuid.Nil {
		return nil, shared.NewValidationError("entry ID and invoice ID are required")
	}
	if !req.Amount.IsPositive() {
		return nil, shared.NewValidationError("application amount must be positive")
	}

	studentID, err := c.studentOfEntry(ctx, req.EntryID)
	if err != nil {
		return nil, err
	}

	var result *ApplicationResultResponse
	err = c.execute(ctx, "apply_credit", studentID, func(ctx context.Context, uow *unitOfWork) error {
		annotate(ctx,
			telemetry.SpanAttrEntryID, req.EntryID,
			telemetry.SpanAttrInvoiceID, req.InvoiceID,
			telemetry.SpanAttrAmount, req.Amount,
		)
		entry, err := uow.repos.EntryRepo().FindByID(ctx, req.EntryID)
		if err != nil {
			return err
		}
		inv, err := uow.repos.InvoiceRepo().FindByID(ctx, req.InvoiceID)
		if err != nil {
			return err
		}

		app, err := entry.Apply(inv, req.Amount, req.ActorID)
		if err != nil {
			return err
		}
		if err := inv.AttachApplication(app); err != nil {
			return err
		}
		inv.RefreshOverdue(c.now())

		if err := uow.saveEntry(ctx, entry); err != nil {
			return err
		}
		if err := uow.saveInvoice(ctx, inv); err != nil {
			return err
		}
		uow.record(ledger.AppliedRow(entry, app))

		result = &ApplicationResultResponse{
			Entry:       ToLedgerEntryResponse(entry),
			Application: ToApplicationResponse(app),
			Invoice:     ToInvoiceResponse(inv, c.now()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordApplication(ctx, result.Entry.EntryType, telemetry.ApplicationActionApplied)
	return result, nil
}

// DecoupleApplication removes one application, giving its amount back to the
// correction and undoing its effect on the invoice.
func (c *Coordinator) DecoupleApplication(ctx context.Context, req DecoupleApplicationRequest) (*ApplicationResultResponse, error) {
	if req.ApplicationID == uuid.Nil {
		return nil, shared.NewValidationError("application ID is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, shared.NewValidationError("decouple reason is required")
	}

	studentID, err := c.studentOfApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}

	var result *ApplicationResultResponse
	err = c.execute(ctx, "decouple_application", studentID, func(ctx context.Context, uow *unitOfWork) error {
		annotate(ctx, telemetry.SpanAttrApplicationID, req.ApplicationID)
		entry, err := uow.repos.EntryRepo().FindByApplicationID(ctx, req.ApplicationID)
		if err != nil {
			return err
		}
		app, err := entry.FindApplication(req.ApplicationID)
		if err != nil {
			return err
		}
		inv, err := uow.repos.InvoiceRepo().FindByID(ctx, app.InvoiceID)
		if err != nil {
			return err
		}
		if err := inv.CanDetachApplication(app); err != nil {
			return err
		}

		decoupled, err := entry.Decouple(req.ApplicationID, req.Reason, req.ActorID)
		if err != nil {
			return err
		}
		if err := inv.DetachApplication(decoupled); err != nil {
			return err
		}
		inv.RefreshOverdue(c.now())

		if err := uow.saveEntry(ctx, entry); err != nil {
			return err
		}
		if err := uow.saveInvoice(ctx, inv); err != nil {
			return err
		}
		uow.record(ledger.DecoupledRow(entry, decoupled))

		result = &ApplicationResultResponse{
			Entry:       ToLedgerEntryResponse(entry),
			Application: ToApplicationResponse(decoupled),
			Invoice:     ToInvoiceResponse(inv, c.now()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.RecordApplication(ctx, result.Entry.EntryType, telemetry.ApplicationActionDecoupled)
	return result, nil
}
