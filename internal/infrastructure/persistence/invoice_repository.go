package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.NewStorageError("find invoice", err)
	}
	inv, err := model.ToDomain()
	if err != nil {
		return nil, shared.NewStorageError("decode invoice", err)
	}
	return inv, nil
}

// FindByStudent lists a student's invoices, newest first unless the filter sorts otherwise
func (r *GormInvoiceRepository) FindByStudent(ctx context.Context, studentID uuid.UUID, filter invoicing.InvoiceFilter) ([]*invoicing.Invoice, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("student_id = ?", studentID)
		if len(filter.Statuses) > 0 {
			db = db.Where("status IN ?", filter.Statuses)
		}
		if filter.IsCreditInvoice != nil {
			db = db.Where("is_credit_invoice = ?", *filter.IsCreditInvoice)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, shared.NewStorageError("count invoices", err)
	}

	page, pageSize := shared.NormalizePage(filter.Page, filter.PageSize)
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Scopes(scope).
		Order(invoiceOrder(filter.SortBy, filter.SortOrder)).
		Offset(shared.Offset(page, pageSize)).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, shared.NewStorageError("list invoices", err)
	}

	invoices, err := invoicesToDomain(rows)
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// FindCreditInvoicesByOriginal lists the credit invoices derived from an invoice, oldest first
func (r *GormInvoiceRepository) FindCreditInvoicesByOriginal(ctx context.Context, originalID uuid.UUID) ([]*invoicing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("original_invoice_id = ? AND is_credit_invoice = ?", originalID, true).
		Order("issue_date ASC, invoice_number ASC").
		Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("list credit invoices", err)
	}
	return invoicesToDomain(rows)
}

// FindUnconsumedCreditInvoices lists confirmed credit invoices with credit left.
// A fully consumed credit invoice is settled to PAID, so the open statuses are enough.
func (r *GormInvoiceRepository) FindUnconsumedCreditInvoices(ctx context.Context, studentID uuid.UUID) ([]*invoicing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("student_id = ? AND is_credit_invoice = ?", studentID, true).
		Where("status IN ?", []invoicing.InvoiceStatus{invoicing.InvoiceStatusSent, invoicing.InvoiceStatusOverdue}).
		Order("issue_date ASC, invoice_number ASC").
		Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("list unconsumed credit invoices", err)
	}
	return invoicesToDomain(rows)
}

// FindOverdueCandidates lists sent invoices whose due date has passed
func (r *GormInvoiceRepository) FindOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*invoicing.Invoice, error) {
	var rows []models.InvoiceModel
	query := r.db.WithContext(ctx).
		Where("status = ? AND is_credit_invoice = ? AND due_date < ?", invoicing.InvoiceStatusSent, false, now).
		Order("due_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("list overdue candidates", err)
	}
	return invoicesToDomain(rows)
}

// Create inserts a new invoice
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *invoicing.Invoice) error {
	model, err := models.InvoiceModelFromDomain(inv)
	if err != nil {
		return shared.NewStorageError("encode invoice", err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return shared.NewStorageError("create invoice", err)
	}
	return nil
}

// SaveWithLock updates an invoice if nobody else changed it since it was loaded
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, inv *invoicing.Invoice) error {
	model, err := models.InvoiceModelFromDomain(inv)
	if err != nil {
		return shared.NewStorageError("encode invoice", err)
	}
	model.Version = inv.Version + 1

	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Select("*").
		Omit("CreatedAt").
		Updates(model)
	if result.Error != nil {
		return shared.NewStorageError("update invoice", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}

	inv.IncrementVersion()
	return nil
}

func invoicesToDomain(rows []models.InvoiceModel) ([]*invoicing.Invoice, error) {
	invoices := make([]*invoicing.Invoice, len(rows))
	for i := range rows {
		inv, err := rows[i].ToDomain()
		if err != nil {
			return nil, shared.NewStorageError("decode invoice", err)
		}
		invoices[i] = inv
	}
	return invoices, nil
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ invoicing.InvoiceRepository = (*GormInvoiceRepository)(nil)
