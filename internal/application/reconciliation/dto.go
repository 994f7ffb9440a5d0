package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// ============================================================================
// Commands
// ============================================================================

// CreateCorrectionRequest represents a request to create a manual credit or debit correction
type CreateCorrectionRequest struct {
	StudentID    uuid.UUID       `json:"-"`
	Description  string          `json:"description" binding:"required,max=500"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	EntryType    string          `json:"entry_type" binding:"required,oneof=CREDIT DEBIT"`
	CourseID     *uuid.UUID      `json:"course_id"`
	EnrollmentID *uuid.UUID      `json:"enrollment_id"`
	ActorID      *uuid.UUID      `json:"-"`
}

// ReverseCorrectionRequest represents a request to reverse an open correction
type ReverseCorrectionRequest struct {
	EntryID uuid.UUID  `json:"-"`
	Reason  string     `json:"reason" binding:"required,max=500"`
	ActorID *uuid.UUID `json:"-"`
}

// ApplyCreditRequest represents a request to apply part of a correction to an invoice
type ApplyCreditRequest struct {
	EntryID   uuid.UUID       `json:"-"`
	InvoiceID uuid.UUID       `json:"invoice_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	ActorID   *uuid.UUID      `json:"-"`
}

// DecoupleApplicationRequest represents a request to remove an application
type DecoupleApplicationRequest struct {
	ApplicationID uuid.UUID  `json:"-"`
	Reason        string     `json:"reason" binding:"required,max=500"`
	ActorID       *uuid.UUID `json:"-"`
}

// CreateInvoiceRequest represents a request to create a draft invoice from a pricing snapshot
type CreateInvoiceRequest struct {
	StudentID    uuid.UUID                 `json:"-"`
	EnrollmentID *uuid.UUID                `json:"enrollment_id"`
	IssueDate    time.Time                 `json:"issue_date" binding:"required"`
	DueDate      time.Time                 `json:"due_date" binding:"required"`
	Pricing      invoicing.PricingSnapshot `json:"pricing"`
	ActorID      *uuid.UUID                `json:"-"`
}

// SendInvoiceRequest represents a request to issue a draft invoice
type SendInvoiceRequest struct {
	InvoiceID uuid.UUID  `json:"-"`
	SentAt    *time.Time `json:"sent_at"`
	ActorID   *uuid.UUID `json:"-"`
}

// RecalculateInvoiceRequest represents a request to regenerate invoice lines.
// Without Pricing the stored snapshot is used.
type RecalculateInvoiceRequest struct {
	InvoiceID uuid.UUID                  `json:"-"`
	Pricing   *invoicing.PricingSnapshot `json:"pricing"`
	ActorID   *uuid.UUID                 `json:"-"`
}

// RecordPaymentRequest represents a payment received against an invoice
type RecordPaymentRequest struct {
	InvoiceID uuid.UUID       `json:"-"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Method    string          `json:"method" binding:"required,oneof=CASH BANK_TRANSFER CARD DIRECT_DEBIT OTHER"`
	Reference string          `json:"reference" binding:"max=200"`
	PaidAt    *time.Time      `json:"paid_at"`
	ActorID   *uuid.UUID      `json:"-"`
}

// CancelInvoiceRequest represents a request to cancel an invoice
type CancelInvoiceRequest struct {
	InvoiceID uuid.UUID  `json:"-"`
	Reason    string     `json:"reason" binding:"required,max=500"`
	ActorID   *uuid.UUID `json:"-"`
}

// CreateCreditInvoiceRequest represents a request to credit selected lines of an invoice
type CreateCreditInvoiceRequest struct {
	InvoiceID uuid.UUID   `json:"-"`
	LineIDs   []uuid.UUID `json:"line_ids" binding:"required,min=1"`
	Notes     string      `json:"notes" binding:"max=1000"`
	IssueDate *time.Time  `json:"issue_date"`
	ActorID   *uuid.UUID  `json:"-"`
}

// ConfirmCreditInvoiceRequest represents a request to confirm a draft credit invoice
type ConfirmCreditInvoiceRequest struct {
	InvoiceID uuid.UUID  `json:"-"`
	ActorID   *uuid.UUID `json:"-"`
}

// ApplyCreditInvoicesRequest represents a request to settle an invoice from the student's credit pool
type ApplyCreditInvoicesRequest struct {
	InvoiceID uuid.UUID  `json:"-"`
	ActorID   *uuid.UUID `json:"-"`
}

// ============================================================================
// Query filters
// ============================================================================

// LedgerListFilter represents filter options for a student's corrections
type LedgerListFilter struct {
	Statuses  []string `form:"status"`
	EntryType string   `form:"entry_type" binding:"omitempty,oneof=CREDIT DEBIT"`
	Page      int      `form:"page"`
	PageSize  int      `form:"page_size" binding:"omitempty,max=100"`
}

// InvoiceListFilter represents filter options for a student's invoices
type InvoiceListFilter struct {
	Statuses        []string `form:"status"`
	IsCreditInvoice *bool    `form:"credit_invoice"`
	SortBy          string   `form:"sort_by" binding:"omitempty,oneof=issue_date due_date invoice_number total status created_at"`
	SortOrder       string   `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
	Page            int      `form:"page"`
	PageSize        int      `form:"page_size" binding:"omitempty,max=100"`
}

// TransactionHistoryFilter represents filter options for the transaction ledger
type TransactionHistoryFilter struct {
	Types     []string   `form:"type"`
	InvoiceID *uuid.UUID `form:"-"`
	From      *time.Time `form:"from" time_format:"2006-01-02"`
	To        *time.Time `form:"to" time_format:"2006-01-02"`
	Page      int        `form:"page"`
	PageSize  int        `form:"page_size" binding:"omitempty,max=100"`
}

// ============================================================================
// Responses
// ============================================================================

// LedgerEntryResponse represents a correction in API responses
type LedgerEntryResponse struct {
	ID              uuid.UUID             `json:"id"`
	StudentID       uuid.UUID             `json:"student_id"`
	Description     string                `json:"description"`
	Amount          decimal.Decimal       `json:"amount"`
	EntryType       string                `json:"entry_type"`
	Status          string                `json:"status"`
	AppliedAmount   decimal.Decimal       `json:"applied_amount"`
	RemainingAmount decimal.Decimal       `json:"remaining_amount"`
	Source          string                `json:"source"`
	CourseID        *uuid.UUID            `json:"course_id,omitempty"`
	EnrollmentID    *uuid.UUID            `json:"enrollment_id,omitempty"`
	Applications    []ApplicationResponse `json:"applications"`
	ReversalReason  string                `json:"reversal_reason,omitempty"`
	ReversedAt      *time.Time            `json:"reversed_at,omitempty"`
	ReversedByID    *uuid.UUID            `json:"reversed_by_id,omitempty"`
	ReversalOfID    *uuid.UUID            `json:"reversal_of_id,omitempty"`
	CreatedBy       *uuid.UUID            `json:"created_by,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	Version         int                   `json:"version"`
}

// ApplicationResponse represents one application of a correction to an invoice
type ApplicationResponse struct {
	ID             uuid.UUID       `json:"id"`
	LedgerEntryID  uuid.UUID       `json:"ledger_entry_id"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	EntryType      string          `json:"entry_type"`
	AppliedAmount  decimal.Decimal `json:"applied_amount"`
	AppliedAt      time.Time       `json:"applied_at"`
	AppliedBy      *uuid.UUID      `json:"applied_by,omitempty"`
	Active         bool            `json:"active"`
	DecoupledAt    *time.Time      `json:"decoupled_at,omitempty"`
	DecoupledBy    *uuid.UUID      `json:"decoupled_by,omitempty"`
	DecoupleReason string          `json:"decouple_reason,omitempty"`
}

// ReverseCorrectionResponse holds both sides of a reversal
type ReverseCorrectionResponse struct {
	Original LedgerEntryResponse `json:"original"`
	Reversal LedgerEntryResponse `json:"reversal"`
}

// ApplicationResultResponse is returned by apply and decouple
type ApplicationResultResponse struct {
	Entry       LedgerEntryResponse `json:"entry"`
	Application ApplicationResponse `json:"application"`
	Invoice     InvoiceResponse     `json:"invoice"`
}

// LedgerSummaryResponse aggregates a student's corrections
type LedgerSummaryResponse struct {
	StudentID       uuid.UUID       `json:"student_id"`
	TotalCredits    decimal.Decimal `json:"total_credits"`
	TotalDebits     decimal.Decimal `json:"total_debits"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
	OpenEntryCount  int             `json:"open_entry_count"`
}

// InvoiceResponse represents an invoice or credit invoice in API responses
type InvoiceResponse struct {
	ID                uuid.UUID                 `json:"id"`
	StudentID         uuid.UUID                 `json:"student_id"`
	InvoiceNumber     string                    `json:"invoice_number"`
	EnrollmentID      *uuid.UUID                `json:"enrollment_id,omitempty"`
	IssueDate         time.Time                 `json:"issue_date"`
	DueDate           time.Time                 `json:"due_date"`
	Status            string                    `json:"status"`
	EffectiveStatus   string                    `json:"effective_status"`
	Lines             []invoicing.InvoiceLine   `json:"lines"`
	Subtotal          decimal.Decimal           `json:"subtotal"`
	VATAmount         decimal.Decimal           `json:"vat_amount"`
	Total             decimal.Decimal           `json:"total"`
	PaidAmount        decimal.Decimal           `json:"paid_amount"`
	CreditApplied     decimal.Decimal           `json:"credit_applied"`
	DebitApplied      decimal.Decimal           `json:"debit_applied"`
	CreditNoteOffset  decimal.Decimal           `json:"credit_note_offset"`
	Balance           decimal.Decimal           `json:"balance"`
	Payments          []invoicing.PaymentRecord `json:"payments"`
	PricingSnapshot   invoicing.PricingSnapshot `json:"pricing_snapshot"`
	IsCreditInvoice   bool                      `json:"is_credit_invoice"`
	OriginalInvoiceID *uuid.UUID                `json:"original_invoice_id,omitempty"`
	UnconsumedCredit  decimal.Decimal           `json:"unconsumed_credit"`
	Notes             string                    `json:"notes,omitempty"`
	SentAt            *time.Time                `json:"sent_at,omitempty"`
	PaidAt            *time.Time                `json:"paid_at,omitempty"`
	CancelledAt       *time.Time                `json:"cancelled_at,omitempty"`
	CancelReason      string                    `json:"cancel_reason,omitempty"`
	CreatedBy         *uuid.UUID                `json:"created_by,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
	Version           int                       `json:"version"`
}

// PaymentResultResponse is returned by RecordPayment
type PaymentResultResponse struct {
	Payment invoicing.PaymentRecord `json:"payment"`
	Invoice InvoiceResponse         `json:"invoice"`
}

// ConfirmCreditInvoiceResponse is returned by ConfirmCreditInvoice
type ConfirmCreditInvoiceResponse struct {
	CreditInvoice InvoiceResponse `json:"credit_invoice"`
	Original      InvoiceResponse `json:"original"`
	OffsetAmount  decimal.Decimal `json:"offset_amount"`
}

// CreditSourceType tells where pooled credit came from
type CreditSourceType string

const (
	CreditSourceCreditInvoice CreditSourceType = "CREDIT_INVOICE"
	CreditSourceCorrection    CreditSourceType = "CORRECTION"
)

// CreditSourceResponse is one contribution to ApplyCreditInvoices
type CreditSourceResponse struct {
	SourceType    CreditSourceType `json:"source_type"`
	SourceID      uuid.UUID        `json:"source_id"`
	Amount        decimal.Decimal  `json:"amount"`
	ApplicationID *uuid.UUID       `json:"application_id,omitempty"`
}

// ApplyCreditInvoicesResponse is returned by ApplyCreditInvoices
type ApplyCreditInvoicesResponse struct {
	Invoice      InvoiceResponse        `json:"invoice"`
	Sources      []CreditSourceResponse `json:"sources"`
	TotalApplied decimal.Decimal        `json:"total_applied"`
}

// MarkOverdueResult summarizes one overdue sweep
type MarkOverdueResult struct {
	Checked int `json:"checked"`
	Marked  int `json:"marked"`
	Failed  int `json:"failed"`
}

// TransactionResponse represents one ledger row
type TransactionResponse struct {
	ID            uuid.UUID       `json:"id"`
	Sequence      int64           `json:"sequence"`
	StudentID     uuid.UUID       `json:"student_id"`
	Date          time.Time       `json:"date"`
	Type          string          `json:"type"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	InvoiceID     *uuid.UUID      `json:"invoice_id,omitempty"`
	InvoiceDelta  decimal.Decimal `json:"invoice_delta"`
	LedgerEntryID *uuid.UUID      `json:"ledger_entry_id,omitempty"`
	ApplicationID *uuid.UUID      `json:"application_id,omitempty"`
	Description   string          `json:"description"`
	CreatedBy     *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BalanceResponse represents a student's balance, optionally as of a date
type BalanceResponse struct {
	StudentID   uuid.UUID       `json:"student_id"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Balance     decimal.Decimal `json:"balance"`
	AsOf        *time.Time      `json:"as_of,omitempty"`
}

// VerificationResponse compares an invoice's stored balance with the ledger
type VerificationResponse struct {
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	InvoiceBalance  decimal.Decimal `json:"invoice_balance"`
	LedgerBalance   decimal.Decimal `json:"ledger_balance"`
	Difference      decimal.Decimal `json:"difference"`
	Consistent      bool            `json:"consistent"`
	InvariantsError string          `json:"invariants_error,omitempty"`
}

// ============================================================================
// Mappers
// ============================================================================

// ToLedgerEntryResponse converts a domain LedgerEntry to LedgerEntryResponse
func ToLedgerEntryResponse(e *ledger.LedgerEntry) LedgerEntryResponse {
	apps := make([]ApplicationResponse, len(e.Applications))
	for i := range e.Applications {
		apps[i] = ToApplicationResponse(&e.Applications[i])
	}
	return LedgerEntryResponse{
		ID:              e.ID,
		StudentID:       e.StudentID,
		Description:     e.Description,
		Amount:          e.Amount,
		EntryType:       string(e.EntryType),
		Status:          string(e.Status),
		AppliedAmount:   e.AppliedAmount,
		RemainingAmount: e.RemainingAmount,
		Source:          string(e.Source),
		CourseID:        e.CourseID,
		EnrollmentID:    e.EnrollmentID,
		Applications:    apps,
		ReversalReason:  e.ReversalReason,
		ReversedAt:      e.ReversedAt,
		ReversedByID:    e.ReversedByID,
		ReversalOfID:    e.ReversalOfID,
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
		Version:         e.Version,
	}
}

// ToLedgerEntryResponses converts a slice of entries
func ToLedgerEntryResponses(entries []*ledger.LedgerEntry) []LedgerEntryResponse {
	responses := make([]LedgerEntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = ToLedgerEntryResponse(e)
	}
	return responses
}

// ToApplicationResponse converts a domain LedgerApplication to ApplicationResponse
func ToApplicationResponse(a *ledger.LedgerApplication) ApplicationResponse {
	return ApplicationResponse{
		ID:             a.ID,
		LedgerEntryID:  a.LedgerEntryID,
		InvoiceID:      a.InvoiceID,
		EntryType:      string(a.EntryType),
		AppliedAmount:  a.AppliedAmount,
		AppliedAt:      a.AppliedAt,
		AppliedBy:      a.AppliedBy,
		Active:         a.IsActive(),
		DecoupledAt:    a.DecoupledAt,
		DecoupledBy:    a.DecoupledBy,
		DecoupleReason: a.DecoupleReason,
	}
}

// ToInvoiceResponse converts a domain Invoice to InvoiceResponse.
// now drives the derived overdue status.
func ToInvoiceResponse(inv *invoicing.Invoice, now time.Time) InvoiceResponse {
	lines := make([]invoicing.InvoiceLine, len(inv.Lines))
	copy(lines, inv.Lines)
	payments := make([]invoicing.PaymentRecord, len(inv.Payments))
	copy(payments, inv.Payments)

	return InvoiceResponse{
		ID:                inv.ID,
		StudentID:         inv.StudentID,
		InvoiceNumber:     inv.InvoiceNumber,
		EnrollmentID:      inv.EnrollmentID,
		IssueDate:         inv.IssueDate,
		DueDate:           inv.DueDate,
		Status:            string(inv.Status),
		EffectiveStatus:   string(inv.EffectiveStatus(now)),
		Lines:             lines,
		Subtotal:          inv.Subtotal,
		VATAmount:         inv.VATAmount,
		Total:             inv.Total,
		PaidAmount:        inv.PaidAmount,
		CreditApplied:     inv.CreditApplied,
		DebitApplied:      inv.DebitApplied,
		CreditNoteOffset:  inv.CreditNoteOffset,
		Balance:           inv.Balance(),
		Payments:          payments,
		PricingSnapshot:   inv.PricingSnapshot,
		IsCreditInvoice:   inv.IsCreditInvoice,
		OriginalInvoiceID: inv.OriginalInvoiceID,
		UnconsumedCredit:  inv.UnconsumedCredit(),
		Notes:             inv.Notes,
		SentAt:            inv.SentAt,
		PaidAt:            inv.PaidAt,
		CancelledAt:       inv.CancelledAt,
		CancelReason:      inv.CancelReason,
		CreatedBy:         inv.CreatedBy,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         inv.UpdatedAt,
		Version:           inv.Version,
	}
}

// ToInvoiceResponses converts a slice of invoices
func ToInvoiceResponses(invoices []*invoicing.Invoice, now time.Time) []InvoiceResponse {
	responses := make([]InvoiceResponse, len(invoices))
	for i, inv := range invoices {
		responses[i] = ToInvoiceResponse(inv, now)
	}
	return responses
}

// ToTransactionResponse converts a ledger row to TransactionResponse
func ToTransactionResponse(t *ledger.StudentTransaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		Sequence:      t.Sequence,
		StudentID:     t.StudentID,
		Date:          t.Date,
		Type:          string(t.Type),
		Debit:         t.Debit,
		Credit:        t.Credit,
		InvoiceID:     t.InvoiceID,
		InvoiceDelta:  t.InvoiceDelta,
		LedgerEntryID: t.LedgerEntryID,
		ApplicationID: t.ApplicationID,
		Description:   t.Description,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
	}
}

// ToTransactionResponses converts a slice of ledger rows
func ToTransactionResponses(rows []*ledger.StudentTransaction) []TransactionResponse {
	responses := make([]TransactionResponse, len(rows))
	for i, row := range rows {
		responses[i] = ToTransactionResponse(row)
	}
	return responses
}

// ToBalanceResponse converts a ledger Balance to BalanceResponse
func ToBalanceResponse(b ledger.Balance) BalanceResponse {
	return BalanceResponse{
		StudentID:   b.StudentID,
		TotalDebit:  b.TotalDebit,
		TotalCredit: b.TotalCredit,
		Balance:     b.Net(),
		AsOf:        b.AsOf,
	}
}
