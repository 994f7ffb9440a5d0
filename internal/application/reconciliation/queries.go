package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/telemetry"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// GetLedgerByStudent lists a student's corrections, oldest first
func (c *Coordinator) GetLedgerByStudent(ctx context.Context, studentID uuid.UUID, filter LedgerListFilter) (shared.Paginated[LedgerEntryResponse], error) {
	var empty shared.Paginated[LedgerEntryResponse]

	domainFilter := ledger.EntryFilter{Page: filter.Page, PageSize: filter.PageSize}
	for _, s := range filter.Statuses {
		status := ledger.EntryStatus(s)
		if !status.IsValid() {
			return empty, shared.NewValidationError("invalid status %q", s)
		}
		domainFilter.Statuses = append(domainFilter.Statuses, status)
	}
	if filter.EntryType != "" {
		entryType := ledger.EntryType(filter.EntryType)
		if !entryType.IsValid() {
			return empty, shared.NewValidationError("invalid entry type %q", filter.EntryType)
		}
		domainFilter.EntryType = &entryType
	}

	entries, total, err := c.reads.EntryRepo().FindByStudent(ctx, studentID, domainFilter)
	if err != nil {
		return empty, err
	}
	return shared.NewPaginated(ToLedgerEntryResponses(entries), total, filter.Page, filter.PageSize), nil
}

// GetLedgerEntry returns one correction with its applications
func (c *Coordinator) GetLedgerEntry(ctx context.Context, entryID uuid.UUID) (*LedgerEntryResponse, error) {
	entry, err := c.reads.EntryRepo().FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	resp := ToLedgerEntryResponse(entry)
	return &resp, nil
}

// GetLedgerSummary aggregates a student's corrections. Reversed corrections and
// their offsetting entries cancel out and are left out of the totals.
func (c *Coordinator) GetLedgerSummary(ctx context.Context, studentID uuid.UUID) (*LedgerSummaryResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "ledger_summary")
	defer span.End()

	entries, err := c.allEntries(ctx, studentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	live := lo.Reject(entries, func(e *ledger.LedgerEntry, _ int) bool {
		return e.Status == ledger.EntryStatusReversed
	})
	credits, debits := lo.FilterReject(live, func(e *ledger.LedgerEntry, _ int) bool {
		return e.EntryType == ledger.EntryTypeCredit
	})
	sumOf := func(entries []*ledger.LedgerEntry, amount func(*ledger.LedgerEntry) decimal.Decimal) decimal.Decimal {
		return lo.Reduce(entries, func(sum decimal.Decimal, e *ledger.LedgerEntry, _ int) decimal.Decimal {
			return sum.Add(amount(e))
		}, decimal.Zero)
	}

	return &LedgerSummaryResponse{
		StudentID:    studentID,
		TotalCredits: sumOf(credits, func(e *ledger.LedgerEntry) decimal.Decimal { return e.Amount }),
		TotalDebits:  sumOf(debits, func(e *ledger.LedgerEntry) decimal.Decimal { return e.Amount }),
		AvailableCredit: sumOf(
			lo.Filter(credits, func(e *ledger.LedgerEntry, _ int) bool { return e.Status.CanApply() }),
			func(e *ledger.LedgerEntry) decimal.Decimal { return e.RemainingAmount },
		),
		OpenEntryCount: lo.CountBy(live, func(e *ledger.LedgerEntry) bool { return e.Status.CanApply() }),
	}, nil
}

// allEntries pages through every correction of a student
func (c *Coordinator) allEntries(ctx context.Context, studentID uuid.UUID) ([]*ledger.LedgerEntry, error) {
	var all []*ledger.LedgerEntry
	for page := 1; ; page++ {
		entries, total, err := c.reads.EntryRepo().FindByStudent(ctx, studentID, ledger.EntryFilter{
			Page:     page,
			PageSize: shared.MaxPageSize,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
		if len(entries) < shared.MaxPageSize || int64(len(all)) >= total {
			return all, nil
		}
	}
}

// GetInvoicesByStudent lists a student's invoices, newest first
func (c *Coordinator) GetInvoicesByStudent(ctx context.Context, studentID uuid.UUID, filter InvoiceListFilter) (shared.Paginated[InvoiceResponse], error) {
	var empty shared.Paginated[InvoiceResponse]

	domainFilter := invoicing.InvoiceFilter{
		IsCreditInvoice: filter.IsCreditInvoice,
		SortBy:          filter.SortBy,
		SortOrder:       filter.SortOrder,
		Page:            filter.Page,
		PageSize:        filter.PageSize,
	}
	for _, s := range filter.Statuses {
		status := invoicing.InvoiceStatus(s)
		if !status.IsValid() {
			return empty, shared.NewValidationError("invalid invoice status %q", s)
		}
		domainFilter.Statuses = append(domainFilter.Statuses, status)
	}

	invoices, total, err := c.reads.InvoiceRepo().FindByStudent(ctx, studentID, domainFilter)
	if err != nil {
		return empty, err
	}
	return shared.NewPaginated(ToInvoiceResponses(invoices, c.now()), total, filter.Page, filter.PageSize), nil
}

// GetInvoice returns one invoice
func (c *Coordinator) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*InvoiceResponse, error) {
	inv, err := c.reads.InvoiceRepo().FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv, c.now())
	return &resp, nil
}

// GetTransactionHistory lists a student's ledger rows in posting order
func (c *Coordinator) GetTransactionHistory(ctx context.Context, studentID uuid.UUID, filter TransactionHistoryFilter) (shared.Paginated[TransactionResponse], error) {
	var empty shared.Paginated[TransactionResponse]

	domainFilter := ledger.TransactionFilter{
		InvoiceID: filter.InvoiceID,
		DateFrom:  filter.From,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
	}
	for _, t := range filter.Types {
		txType := ledger.TransactionType(t)
		if !txType.IsValid() {
			return empty, shared.NewValidationError("invalid transaction type %q", t)
		}
		domainFilter.Types = append(domainFilter.Types, txType)
	}
	if filter.To != nil {
		// a date-only upper bound includes the whole day
		to := endOfDay(*filter.To)
		domainFilter.DateTo = &to
	}
	if filter.From != nil && domainFilter.DateTo != nil && filter.From.After(*domainFilter.DateTo) {
		return empty, shared.NewValidationError("from date is after to date")
	}

	rows, total, err := c.reads.TransactionRepo().HistoryOf(ctx, studentID, domainFilter)
	if err != nil {
		return empty, err
	}
	return shared.NewPaginated(ToTransactionResponses(rows), total, filter.Page, filter.PageSize), nil
}

// GetStudentBalance returns what the student owes, optionally as of a point in time
func (c *Coordinator) GetStudentBalance(ctx context.Context, studentID uuid.UUID, asOf *time.Time) (*BalanceResponse, error) {
	var (
		balance ledger.Balance
		err     error
	)
	if asOf != nil {
		balance, err = c.reads.TransactionRepo().BalanceAsOf(ctx, studentID, asOf.UTC())
	} else {
		balance, err = c.reads.TransactionRepo().BalanceOf(ctx, studentID)
	}
	if err != nil {
		return nil, err
	}
	resp := ToBalanceResponse(balance)
	return &resp, nil
}

// VerifyInvoiceBalance compares the balance held on the invoice with the
// balance rebuilt from its ledger rows. A draft has no charge row yet, so its
// total is added to the ledger side.
func (c *Coordinator) VerifyInvoiceBalance(ctx context.Context, invoiceID uuid.UUID) (*VerificationResponse, error) {
	inv, err := c.reads.InvoiceRepo().FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	ledgerBalance, err := c.reads.TransactionRepo().InvoiceBalanceOf(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == invoicing.InvoiceStatusDraft {
		ledgerBalance = ledgerBalance.Add(inv.Total)
	}

	invoiceBalance := inv.Balance()
	resp := &VerificationResponse{
		InvoiceID:      inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		InvoiceBalance: invoiceBalance,
		LedgerBalance:  ledgerBalance,
		Difference:     invoiceBalance.Sub(ledgerBalance),
		Consistent:     invoiceBalance.Equal(ledgerBalance),
	}
	if err := inv.CheckInvariants(); err != nil {
		resp.Consistent = false
		resp.InvariantsError = err.Error()
	}
	return resp, nil
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
