package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// sumScale absorbs float noise from engines that sum decimals as REAL
const sumScale = 4

// GormTransactionRepository implements the append-only TransactionRepository using GORM
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// Append inserts rows in the given order. Each row gets the sequence number
// the database assigned to it.
func (r *GormTransactionRepository) Append(ctx context.Context, rows ...*ledger.StudentTransaction) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			model := models.StudentTransactionModelFromDomain(row)
			if err := tx.Create(model).Error; err != nil {
				return shared.NewStorageError("append ledger row", err)
			}
			row.Sequence = model.Sequence
		}
		return nil
	})
}

type balanceResult struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// BalanceOf sums all rows of a student
func (r *GormTransactionRepository) BalanceOf(ctx context.Context, studentID uuid.UUID) (ledger.Balance, error) {
	return r.balance(ctx, studentID, nil)
}

// BalanceAsOf sums the rows of a student dated at or before at
func (r *GormTransactionRepository) BalanceAsOf(ctx context.Context, studentID uuid.UUID, at time.Time) (ledger.Balance, error) {
	return r.balance(ctx, studentID, &at)
}

func (r *GormTransactionRepository) balance(ctx context.Context, studentID uuid.UUID, at *time.Time) (ledger.Balance, error) {
	query := r.db.WithContext(ctx).
		Model(&models.StudentTransactionModel{}).
		Select("COALESCE(SUM(debit), 0) AS total_debit, COALESCE(SUM(credit), 0) AS total_credit").
		Where("student_id = ?", studentID)
	if at != nil {
		query = query.Where("date <= ?", *at)
	}

	var result balanceResult
	if err := query.Scan(&result).Error; err != nil {
		return ledger.Balance{}, shared.NewStorageError("sum ledger rows", err)
	}
	return ledger.Balance{
		StudentID:   studentID,
		TotalDebit:  result.TotalDebit.Round(sumScale),
		TotalCredit: result.TotalCredit.Round(sumScale),
		AsOf:        at,
	}, nil
}

// HistoryOf lists a student's rows in posting order: by date, ties broken by sequence
func (r *GormTransactionRepository) HistoryOf(ctx context.Context, studentID uuid.UUID, filter ledger.TransactionFilter) ([]*ledger.StudentTransaction, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("student_id = ?", studentID)
		if len(filter.Types) > 0 {
			db = db.Where("type IN ?", filter.Types)
		}
		if filter.InvoiceID != nil {
			db = db.Where("invoice_id = ?", *filter.InvoiceID)
		}
		if filter.DateFrom != nil {
			db = db.Where("date >= ?", *filter.DateFrom)
		}
		if filter.DateTo != nil {
			db = db.Where("date <= ?", *filter.DateTo)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.StudentTransactionModel{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, shared.NewStorageError("count ledger rows", err)
	}

	page, pageSize := shared.NormalizePage(filter.Page, filter.PageSize)
	var rows []models.StudentTransactionModel
	if err := r.db.WithContext(ctx).
		Scopes(scope).
		Order("date ASC, sequence ASC").
		Offset(shared.Offset(page, pageSize)).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, shared.NewStorageError("list ledger rows", err)
	}

	txs := make([]*ledger.StudentTransaction, len(rows))
	for i := range rows {
		txs[i] = rows[i].ToDomain()
	}
	return txs, total, nil
}

// InvoiceBalanceOf sums the invoice deltas recorded against an invoice
func (r *GormTransactionRepository) InvoiceBalanceOf(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.StudentTransactionModel{}).
		Select("COALESCE(SUM(invoice_delta), 0) AS total").
		Where("invoice_id = ?", invoiceID).
		Scan(&result).Error; err != nil {
		return decimal.Zero, shared.NewStorageError("sum invoice deltas", err)
	}
	return result.Total.Round(sumScale), nil
}

// Ensure GormTransactionRepository implements TransactionRepository
var _ ledger.TransactionRepository = (*GormTransactionRepository)(nil)
