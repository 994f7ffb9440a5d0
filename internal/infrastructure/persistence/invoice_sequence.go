package persistence

import (
	"context"
	"errors"

	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormNumberSequence hands out invoice numbers from a row-locked counter table.
// Used inside the caller's transaction a rolled back invoice also rolls back
// its number, so the series stays gapless.
type GormNumberSequence struct {
	db *gorm.DB
}

// NewGormNumberSequence creates a new GormNumberSequence
func NewGormNumberSequence(db *gorm.DB) *GormNumberSequence {
	return &GormNumberSequence{db: db}
}

// Next increments and returns the counter of (prefix, year)
func (s *GormNumberSequence) Next(ctx context.Context, prefix invoicing.NumberPrefix, year int) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := lockSequence(tx, prefix, year)
		if err != nil {
			return err
		}
		next = seq.LastValue + 1
		return tx.Model(&models.InvoiceSequenceModel{}).
			Where("prefix = ? AND year = ?", seq.Prefix, seq.Year).
			Update("last_value", next).Error
	})
	if err != nil {
		return 0, shared.NewStorageError("next invoice number", err)
	}
	return next, nil
}

// lockSequence selects the counter row for update, creating it on first use
func lockSequence(tx *gorm.DB, prefix invoicing.NumberPrefix, year int) (*models.InvoiceSequenceModel, error) {
	var seq models.InvoiceSequenceModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("prefix = ? AND year = ?", string(prefix), year).
		First(&seq).Error
	if err == nil {
		return &seq, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	seq = models.InvoiceSequenceModel{Prefix: string(prefix), Year: year}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return nil, err
	}
	// A concurrent first use may have inserted the row; lock whichever row exists.
	seq = models.InvoiceSequenceModel{}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("prefix = ? AND year = ?", string(prefix), year).
		First(&seq).Error; err != nil {
		return nil, err
	}
	return &seq, nil
}

// Ensure GormNumberSequence implements NumberSequence
var _ invoicing.NumberSequence = (*GormNumberSequence)(nil)
