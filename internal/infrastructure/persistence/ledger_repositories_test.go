package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func sentTestInvoice(t *testing.T, db *gorm.DB, studentID uuid.UUID, price string) *invoicing.Invoice {
	t.Helper()
	ctx := context.Background()
	issued := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	seq, err := NewGormNumberSequence(db).Next(ctx, invoicing.NumberPrefixInvoice, issued.Year())
	require.NoError(t, err)

	inv, err := invoicing.NewInvoice(studentID, nil,
		invoicing.FormatNumber(invoicing.NumberPrefixInvoice, issued.Year(), seq),
		issued, issued.AddDate(0, 0, 30),
		invoicing.PricingSnapshot{
			Items: []invoicing.PricingItem{{
				Description: "Piano lessons",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   decimal.RequireFromString(price),
			}},
		}, nil)
	require.NoError(t, err)
	require.NoError(t, inv.Send(issued))

	repo := NewGormInvoiceRepository(db)
	require.NoError(t, repo.Create(ctx, inv))
	return inv
}

func TestGormLedgerEntryRepository_RoundTrip(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormLedgerEntryRepository(db)
	studentID := uuid.New()

	inv := sentTestInvoice(t, db, studentID, "80.00")

	entry, err := ledger.NewLedgerEntry(studentID, "Missed lesson", decimal.NewFromInt(30), ledger.EntryTypeCredit, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, entry))

	loaded, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.EntryStatusOpen, loaded.Status)
	assert.True(t, decimal.NewFromInt(30).Equal(loaded.RemainingAmount))
	assert.Empty(t, loaded.Applications)

	app, err := loaded.Apply(inv, decimal.NewFromInt(20), nil)
	require.NoError(t, err)
	version := loaded.Version
	require.NoError(t, repo.SaveWithLock(ctx, loaded))
	assert.Equal(t, version+1, loaded.Version)

	t.Run("applications are stored with the entry", func(t *testing.T) {
		got, err := repo.FindByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.EntryStatusPartiallyApplied, got.Status)
		assert.True(t, decimal.NewFromInt(10).Equal(got.RemainingAmount), got.RemainingAmount.String())
		require.Len(t, got.Applications, 1)
		assert.Equal(t, app.ID, got.Applications[0].ID)
		assert.True(t, got.Applications[0].IsActive())
	})

	t.Run("finds the owner of an application", func(t *testing.T) {
		got, err := repo.FindByApplicationID(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, got.ID)
	})

	t.Run("unknown application", func(t *testing.T) {
		_, err := repo.FindByApplicationID(ctx, uuid.New())
		assert.True(t, errors.Is(err, shared.ErrApplicationNotFound))
	})

	t.Run("active applications by invoice", func(t *testing.T) {
		apps, err := repo.FindActiveApplicationsByInvoice(ctx, inv.ID)
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.True(t, decimal.NewFromInt(20).Equal(apps[0].AppliedAmount))
	})

	t.Run("applicable credits", func(t *testing.T) {
		credits, err := repo.FindApplicableCredits(ctx, studentID)
		require.NoError(t, err)
		require.Len(t, credits, 1)
		assert.Equal(t, entry.ID, credits[0].ID)
	})

	t.Run("stale copy is rejected", func(t *testing.T) {
		stale, err := repo.FindByID(ctx, entry.ID)
		require.NoError(t, err)
		stale.Version--
		stale.Description = "edited elsewhere"

		err = repo.SaveWithLock(ctx, stale)
		assert.Equal(t, shared.CodeConcurrencyConflict, shared.ErrorCode(err))
	})
}

func TestGormLedgerEntryRepository_FindByStudent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormLedgerEntryRepository(db)
	studentID := uuid.New()

	for _, entryType := range []ledger.EntryType{ledger.EntryTypeCredit, ledger.EntryTypeDebit, ledger.EntryTypeCredit} {
		entry, err := ledger.NewLedgerEntry(studentID, "Correction", decimal.NewFromInt(5), entryType, nil)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, entry))
	}
	other, err := ledger.NewLedgerEntry(uuid.New(), "Someone else", decimal.NewFromInt(5), ledger.EntryTypeCredit, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, other))

	entries, total, err := repo.FindByStudent(ctx, studentID, ledger.EntryFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, entries, 2)

	debit := ledger.EntryTypeDebit
	entries, total, err = repo.FindByStudent(ctx, studentID, ledger.EntryFilter{EntryType: &debit})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryTypeDebit, entries[0].EntryType)
}

func TestGormLedgerEntryRepository_SaveWithLockConflict(t *testing.T) {
	mdb := testutil.NewMockDB(t)
	repo := NewGormLedgerEntryRepository(mdb.DB)

	entry, err := ledger.NewLedgerEntry(uuid.New(), "Refund", decimal.NewFromInt(10), ledger.EntryTypeCredit, nil)
	require.NoError(t, err)

	mdb.Mock.ExpectBegin()
	mdb.Mock.ExpectExec(`UPDATE "ledger_entries" SET .* WHERE \(id = \$\d+ AND version = \$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mdb.Mock.ExpectRollback()

	err = repo.SaveWithLock(context.Background(), entry)
	assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
	assert.Equal(t, 1, entry.Version, "version must not move on conflict")
	mdb.ExpectationsWereMet(t)
}

func TestGormInvoiceRepository_SaveWithLock(t *testing.T) {
	t.Run("conflict when the row moved on", func(t *testing.T) {
		mdb := testutil.NewMockDB(t)
		repo := NewGormInvoiceRepository(mdb.DB)

		inv, err := invoicing.NewInvoice(uuid.New(), nil, "INV-2025-00042",
			time.Now(), time.Now().AddDate(0, 0, 14),
			invoicing.PricingSnapshot{Items: []invoicing.PricingItem{{
				Description: "Theory class",
				Quantity:    decimal.NewFromInt(2),
				UnitPrice:   decimal.NewFromInt(15),
			}}}, nil)
		require.NoError(t, err)

		mdb.Mock.ExpectExec(`UPDATE "invoices" SET .* WHERE \(id = \$\d+ AND version = \$\d+\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = repo.SaveWithLock(context.Background(), inv)
		assert.Equal(t, shared.CodeConcurrencyConflict, shared.ErrorCode(err))
		mdb.ExpectationsWereMet(t)
	})

	t.Run("database failure is a storage error", func(t *testing.T) {
		mdb := testutil.NewMockDB(t)
		repo := NewGormInvoiceRepository(mdb.DB)

		mdb.Mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE id = \$1`).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.FindByID(context.Background(), uuid.New())
		assert.Equal(t, shared.CodeStorage, shared.ErrorCode(err))
		mdb.ExpectationsWereMet(t)
	})
}

func TestGormInvoiceRepository_Queries(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)
	studentID := uuid.New()

	inv := sentTestInvoice(t, db, studentID, "49.90")

	t.Run("round trip keeps lines and snapshot", func(t *testing.T) {
		got, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, inv.InvoiceNumber, got.InvoiceNumber)
		assert.Equal(t, invoicing.InvoiceStatusSent, got.Status)
		assert.True(t, inv.Total.Equal(got.Total))
		require.Len(t, got.Lines, len(inv.Lines))
		require.Len(t, got.PricingSnapshot.Items, 1)
		assert.Equal(t, "Piano lessons", got.PricingSnapshot.Items[0].Description)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("payments survive a save", func(t *testing.T) {
		got, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		_, err = got.RecordPayment(decimal.RequireFromString("9.90"), invoicing.PaymentMethodCash, "till", nil, time.Now())
		require.NoError(t, err)
		require.NoError(t, repo.SaveWithLock(ctx, got))

		reloaded, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		require.Len(t, reloaded.Payments, 1)
		assert.True(t, decimal.NewFromInt(40).Equal(reloaded.Balance()), reloaded.Balance().String())
	})

	t.Run("overdue candidates", func(t *testing.T) {
		candidates, err := repo.FindOverdueCandidates(ctx, inv.DueDate.AddDate(0, 0, 1), 10)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, inv.ID, candidates[0].ID)

		candidates, err = repo.FindOverdueCandidates(ctx, inv.DueDate.AddDate(0, 0, -1), 10)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})
}

func TestGormTransactionRepository_BalanceAndHistory(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormTransactionRepository(db)
	studentID := uuid.New()

	day1 := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 5)

	row := func(txType ledger.TransactionType, debit, credit int64, at time.Time) *ledger.StudentTransaction {
		tx, err := ledger.NewStudentTransaction(studentID, txType, decimal.NewFromInt(debit), decimal.NewFromInt(credit))
		require.NoError(t, err)
		return tx.WithDate(at)
	}

	charge := row(ledger.TransactionTypeInvoiceCharge, 100, 0, day1)
	payment := row(ledger.TransactionTypePayment, 0, 30, day1)
	correction := row(ledger.TransactionTypeDebitCorrection, 15, 0, day2)
	require.NoError(t, repo.Append(ctx, charge, payment, correction))
	assert.Less(t, charge.Sequence, payment.Sequence)
	assert.Less(t, payment.Sequence, correction.Sequence)

	t.Run("balance sums every row", func(t *testing.T) {
		balance, err := repo.BalanceOf(ctx, studentID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(85).Equal(balance.Net()), balance.Net().String())
		assert.Nil(t, balance.AsOf)
	})

	t.Run("balance as of a date ignores later rows", func(t *testing.T) {
		balance, err := repo.BalanceAsOf(ctx, studentID, day1.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(70).Equal(balance.Net()), balance.Net().String())
		require.NotNil(t, balance.AsOf)
	})

	t.Run("unknown student has a zero balance", func(t *testing.T) {
		balance, err := repo.BalanceOf(ctx, uuid.New())
		require.NoError(t, err)
		assert.True(t, balance.Net().IsZero())
	})

	t.Run("history is ordered by date then sequence", func(t *testing.T) {
		rows, total, err := repo.HistoryOf(ctx, studentID, ledger.TransactionFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, rows, 3)
		assert.Equal(t, charge.ID, rows[0].ID)
		assert.Equal(t, payment.ID, rows[1].ID)
		assert.Equal(t, correction.ID, rows[2].ID)
	})

	t.Run("history filtered by type", func(t *testing.T) {
		rows, total, err := repo.HistoryOf(ctx, studentID, ledger.TransactionFilter{
			Types: []ledger.TransactionType{ledger.TransactionTypePayment},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, rows, 1)
		assert.True(t, decimal.NewFromInt(30).Equal(rows[0].Credit))
	})
}

func TestGormTransactionRepository_InvoiceBalanceOf(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	repo := NewGormTransactionRepository(db)
	studentID := uuid.New()
	invoiceID := uuid.New()

	charge, err := ledger.NewStudentTransaction(studentID, ledger.TransactionTypeInvoiceCharge, decimal.RequireFromString("60.50"), decimal.Zero)
	require.NoError(t, err)
	payment, err := ledger.NewStudentTransaction(studentID, ledger.TransactionTypePayment, decimal.Zero, decimal.RequireFromString("20.25"))
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx,
		charge.WithInvoice(invoiceID, decimal.RequireFromString("60.50")),
		payment.WithInvoice(invoiceID, decimal.RequireFromString("-20.25")),
	))

	open, err := repo.InvoiceBalanceOf(ctx, invoiceID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("40.25").Equal(open), open.String())

	none, err := repo.InvoiceBalanceOf(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestGormNumberSequence_Next(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()
	seq := NewGormNumberSequence(db)

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx, invoicing.NumberPrefixInvoice, 2025)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	t.Run("series are independent per prefix and year", func(t *testing.T) {
		got, err := seq.Next(ctx, invoicing.NumberPrefixCreditInvoice, 2025)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)

		got, err = seq.Next(ctx, invoicing.NumberPrefixInvoice, 2026)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})

	t.Run("rolled back transaction returns its number", func(t *testing.T) {
		rollback := errors.New("rollback")
		err := db.Transaction(func(tx *gorm.DB) error {
			n, err := NewGormNumberSequence(tx).Next(ctx, invoicing.NumberPrefixInvoice, 2025)
			require.NoError(t, err)
			assert.Equal(t, int64(4), n)
			return rollback
		})
		require.ErrorIs(t, err, rollback)

		got, err := seq.Next(ctx, invoicing.NumberPrefixInvoice, 2025)
		require.NoError(t, err)
		assert.Equal(t, int64(4), got)
	})
}
