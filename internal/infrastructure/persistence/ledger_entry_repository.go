package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerEntryRepository implements LedgerEntryRepository using GORM
type GormLedgerEntryRepository struct {
	db *gorm.DB
}

// NewGormLedgerEntryRepository creates a new GormLedgerEntryRepository
func NewGormLedgerEntryRepository(db *gorm.DB) *GormLedgerEntryRepository {
	return &GormLedgerEntryRepository{db: db}
}

func preloadApplications(db *gorm.DB) *gorm.DB {
	return db.Preload("Applications", func(db *gorm.DB) *gorm.DB {
		return db.Order("applied_at ASC, id ASC")
	})
}

// FindByID finds a correction by ID with its applications
func (r *GormLedgerEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.LedgerEntry, error) {
	var model models.LedgerEntryModel
	if err := preloadApplications(r.db.WithContext(ctx)).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.NewStorageError("find ledger entry", err)
	}
	return model.ToDomain(), nil
}

// FindByApplicationID finds the correction owning an application
func (r *GormLedgerEntryRepository) FindByApplicationID(ctx context.Context, applicationID uuid.UUID) (*ledger.LedgerEntry, error) {
	var app models.LedgerApplicationModel
	if err := r.db.WithContext(ctx).First(&app, "id = ?", applicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrApplicationNotFound
		}
		return nil, shared.NewStorageError("find ledger application", err)
	}
	return r.FindByID(ctx, app.LedgerEntryID)
}

// FindByStudent lists a student's corrections, oldest first
func (r *GormLedgerEntryRepository) FindByStudent(ctx context.Context, studentID uuid.UUID, filter ledger.EntryFilter) ([]*ledger.LedgerEntry, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("student_id = ?", studentID)
		if len(filter.Statuses) > 0 {
			db = db.Where("status IN ?", filter.Statuses)
		}
		if filter.EntryType != nil {
			db = db.Where("entry_type = ?", *filter.EntryType)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, shared.NewStorageError("count ledger entries", err)
	}

	page, pageSize := shared.NormalizePage(filter.Page, filter.PageSize)
	var rows []models.LedgerEntryModel
	if err := preloadApplications(r.db.WithContext(ctx)).
		Scopes(scope).
		Order("created_at ASC, id ASC").
		Offset(shared.Offset(page, pageSize)).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, shared.NewStorageError("list ledger entries", err)
	}
	return entriesToDomain(rows), total, nil
}

// FindApplicableCredits lists credit corrections that still have an amount to apply
func (r *GormLedgerEntryRepository) FindApplicableCredits(ctx context.Context, studentID uuid.UUID) ([]*ledger.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	if err := preloadApplications(r.db.WithContext(ctx)).
		Where("student_id = ? AND entry_type = ?", studentID, ledger.EntryTypeCredit).
		Where("status IN ?", []ledger.EntryStatus{ledger.EntryStatusOpen, ledger.EntryStatusPartiallyApplied}).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("list applicable credits", err)
	}
	return entriesToDomain(rows), nil
}

// FindActiveApplicationsByInvoice lists applications against an invoice that are not decoupled
func (r *GormLedgerEntryRepository) FindActiveApplicationsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]ledger.LedgerApplication, error) {
	var rows []models.LedgerApplicationModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ? AND decoupled_at IS NULL", invoiceID).
		Order("applied_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("list invoice applications", err)
	}
	apps := make([]ledger.LedgerApplication, len(rows))
	for i := range rows {
		apps[i] = *rows[i].ToDomain()
	}
	return apps, nil
}

// Create inserts a new correction together with any applications it already has
func (r *GormLedgerEntryRepository) Create(ctx context.Context, entry *ledger.LedgerEntry) error {
	model := models.LedgerEntryModelFromDomain(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return shared.NewStorageError("create ledger entry", err)
	}
	return nil
}

// SaveWithLock updates a correction if nobody else changed it since it was
// loaded, then upserts its applications. Decoupled applications are updated in
// place, never removed.
func (r *GormLedgerEntryRepository) SaveWithLock(ctx context.Context, entry *ledger.LedgerEntry) error {
	model := models.LedgerEntryModelFromDomain(entry)
	model.Version = entry.Version + 1

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.LedgerEntryModel{}).
			Where("id = ? AND version = ?", entry.ID, entry.Version).
			Select("*").
			Omit("Applications", "CreatedAt").
			Updates(model)
		if result.Error != nil {
			return shared.NewStorageError("update ledger entry", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		if len(model.Applications) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&model.Applications).Error; err != nil {
			return shared.NewStorageError("upsert ledger applications", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	entry.IncrementVersion()
	return nil
}

func entriesToDomain(rows []models.LedgerEntryModel) []*ledger.LedgerEntry {
	entries := make([]*ledger.LedgerEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries
}

// Ensure GormLedgerEntryRepository implements LedgerEntryRepository
var _ ledger.LedgerEntryRepository = (*GormLedgerEntryRepository)(nil)
