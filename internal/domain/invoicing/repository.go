package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InvoiceFilter contains filter options for listing invoices
type InvoiceFilter struct {
	Statuses        []InvoiceStatus
	IsCreditInvoice *bool
	SortBy          string // column name; unknown names fall back to issue date
	SortOrder       string // ASC or DESC
	Page            int
	PageSize        int
}

// InvoiceRepository persists invoices with their lines and payments
type InvoiceRepository interface {
	// FindByID loads an invoice
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByStudent lists a student's invoices, newest issue date first
	FindByStudent(ctx context.Context, studentID uuid.UUID, filter InvoiceFilter) ([]*Invoice, int64, error)

	// FindCreditInvoicesByOriginal lists the credit invoices derived from an invoice
	FindCreditInvoicesByOriginal(ctx context.Context, originalID uuid.UUID) ([]*Invoice, error)

	// FindUnconsumedCreditInvoices lists confirmed credit invoices with credit left,
	// oldest issue date first
	FindUnconsumedCreditInvoices(ctx context.Context, studentID uuid.UUID) ([]*Invoice, error)

	// FindOverdueCandidates lists SENT invoices whose due date lies before now
	FindOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*Invoice, error)

	// Create inserts a new invoice
	Create(ctx context.Context, inv *Invoice) error

	// SaveWithLock updates an invoice with an optimistic version check.
	// A stale version yields ErrConcurrencyConflict.
	SaveWithLock(ctx context.Context, inv *Invoice) error
}

// NumberSequence hands out gapless per-year invoice numbers
type NumberSequence interface {
	// Next increments and returns the counter of (prefix, year)
	Next(ctx context.Context, prefix NumberPrefix, year int) (int64, error)
}
