package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionFilter contains filter options for listing ledger rows
type TransactionFilter struct {
	Types     []TransactionType
	InvoiceID *uuid.UUID
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// Balance is a point-in-time aggregate over a student's ledger rows
type Balance struct {
	StudentID   uuid.UUID
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	AsOf        *time.Time
}

// Net returns what the student owes (negative: the student has credit)
func (b Balance) Net() decimal.Decimal {
	return b.TotalDebit.Sub(b.TotalCredit)
}

// TransactionRepository is the append-only transaction ledger.
// There is deliberately no update or delete.
type TransactionRepository interface {
	// Append stores rows in order, assigning their sequence numbers
	Append(ctx context.Context, rows ...*StudentTransaction) error

	// BalanceOf sums all rows of a student
	BalanceOf(ctx context.Context, studentID uuid.UUID) (Balance, error)

	// BalanceAsOf sums the rows of a student dated at or before at
	BalanceAsOf(ctx context.Context, studentID uuid.UUID, at time.Time) (Balance, error)

	// HistoryOf lists rows ordered by (date, sequence)
	HistoryOf(ctx context.Context, studentID uuid.UUID, filter TransactionFilter) ([]*StudentTransaction, int64, error)

	// InvoiceBalanceOf sums the invoice deltas recorded against an invoice
	InvoiceBalanceOf(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
}

// EntryFilter contains filter options for listing corrections
type EntryFilter struct {
	Statuses  []EntryStatus
	EntryType *EntryType
	Page      int
	PageSize  int
}

// LedgerEntryRepository persists corrections with their applications
type LedgerEntryRepository interface {
	// FindByID loads an entry with all of its applications
	FindByID(ctx context.Context, id uuid.UUID) (*LedgerEntry, error)

	// FindByApplicationID loads the entry owning an application
	FindByApplicationID(ctx context.Context, applicationID uuid.UUID) (*LedgerEntry, error)

	// FindByStudent lists a student's entries, oldest first
	FindByStudent(ctx context.Context, studentID uuid.UUID, filter EntryFilter) ([]*LedgerEntry, int64, error)

	// FindApplicableCredits lists OPEN/PARTIALLY_APPLIED credit entries, oldest first
	FindApplicableCredits(ctx context.Context, studentID uuid.UUID) ([]*LedgerEntry, error)

	// FindActiveApplicationsByInvoice lists the active applications against an invoice
	FindActiveApplicationsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]LedgerApplication, error)

	// Create inserts a new entry
	Create(ctx context.Context, entry *LedgerEntry) error

	// SaveWithLock updates an entry with an optimistic version check and
	// upserts its applications. A stale version yields ErrConcurrencyConflict.
	SaveWithLock(ctx context.Context, entry *LedgerEntry) error
}
