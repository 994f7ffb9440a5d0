package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// LedgerEntryModel is the persistence model for the LedgerEntry aggregate root.
type LedgerEntryModel struct {
	StudentAggregateModel
	Description     string                   `gorm:"type:varchar(500);not null"`
	Amount          decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	EntryType       ledger.EntryType         `gorm:"type:varchar(10);not null"`
	Status          ledger.EntryStatus       `gorm:"type:varchar(20);not null;default:'OPEN';index"`
	AppliedAmount   decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	RemainingAmount decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Source          ledger.EntrySource       `gorm:"type:varchar(10);not null;default:'MANUAL'"`
	CourseID        *uuid.UUID               `gorm:"type:uuid;index"`
	EnrollmentID    *uuid.UUID               `gorm:"type:uuid"`
	ReversalReason  string                   `gorm:"type:varchar(500)"`
	ReversedAt      *time.Time               `gorm:"index"`
	ReversedByID    *uuid.UUID               `gorm:"type:uuid"`
	ReversalOfID    *uuid.UUID               `gorm:"type:uuid;index"`
	Applications    []LedgerApplicationModel `gorm:"foreignKey:LedgerEntryID;references:ID"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain LedgerEntry.
func (m *LedgerEntryModel) ToDomain() *ledger.LedgerEntry {
	e := &ledger.LedgerEntry{
		StudentAggregateRoot: m.ToDomainStudentAggregateRoot(),
		Description:          m.Description,
		Amount:               m.Amount,
		EntryType:            m.EntryType,
		Status:               m.Status,
		AppliedAmount:        m.AppliedAmount,
		RemainingAmount:      m.RemainingAmount,
		Source:               m.Source,
		CourseID:             m.CourseID,
		EnrollmentID:         m.EnrollmentID,
		ReversalReason:       m.ReversalReason,
		ReversedAt:           m.ReversedAt,
		ReversedByID:         m.ReversedByID,
		ReversalOfID:         m.ReversalOfID,
		Applications:         make([]ledger.LedgerApplication, len(m.Applications)),
	}
	for i, app := range m.Applications {
		e.Applications[i] = *app.ToDomain()
	}
	return e
}

// FromDomain populates the persistence model from a domain LedgerEntry.
func (m *LedgerEntryModel) FromDomain(e *ledger.LedgerEntry) {
	m.FromDomainStudentAggregateRoot(e.StudentAggregateRoot)
	m.Description = e.Description
	m.Amount = e.Amount
	m.EntryType = e.EntryType
	m.Status = e.Status
	m.AppliedAmount = e.AppliedAmount
	m.RemainingAmount = e.RemainingAmount
	m.Source = e.Source
	m.CourseID = e.CourseID
	m.EnrollmentID = e.EnrollmentID
	m.ReversalReason = e.ReversalReason
	m.ReversedAt = e.ReversedAt
	m.ReversedByID = e.ReversedByID
	m.ReversalOfID = e.ReversalOfID
	m.Applications = make([]LedgerApplicationModel, len(e.Applications))
	for i := range e.Applications {
		m.Applications[i] = *LedgerApplicationModelFromDomain(&e.Applications[i])
	}
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain LedgerEntry.
func LedgerEntryModelFromDomain(e *ledger.LedgerEntry) *LedgerEntryModel {
	m := &LedgerEntryModel{}
	m.FromDomain(e)
	return m
}

// LedgerApplicationModel is the persistence model for LedgerApplication.
// Decoupled applications stay in the table with decoupled_at set.
type LedgerApplicationModel struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key"`
	LedgerEntryID  uuid.UUID        `gorm:"type:uuid;not null;index"`
	InvoiceID      uuid.UUID        `gorm:"type:uuid;not null;index"`
	EntryType      ledger.EntryType `gorm:"type:varchar(10);not null"`
	AppliedAmount  decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	AppliedAt      time.Time        `gorm:"not null"`
	AppliedBy      *uuid.UUID       `gorm:"type:uuid"`
	DecoupledAt    *time.Time       `gorm:"index"`
	DecoupledBy    *uuid.UUID       `gorm:"type:uuid"`
	DecoupleReason string           `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (LedgerApplicationModel) TableName() string {
	return "ledger_applications"
}

// ToDomain converts the persistence model to a domain LedgerApplication.
func (m *LedgerApplicationModel) ToDomain() *ledger.LedgerApplication {
	return &ledger.LedgerApplication{
		ID:             m.ID,
		LedgerEntryID:  m.LedgerEntryID,
		InvoiceID:      m.InvoiceID,
		EntryType:      m.EntryType,
		AppliedAmount:  m.AppliedAmount,
		AppliedAt:      m.AppliedAt,
		AppliedBy:      m.AppliedBy,
		DecoupledAt:    m.DecoupledAt,
		DecoupledBy:    m.DecoupledBy,
		DecoupleReason: m.DecoupleReason,
	}
}

// LedgerApplicationModelFromDomain creates a new persistence model from domain.
func LedgerApplicationModelFromDomain(a *ledger.LedgerApplication) *LedgerApplicationModel {
	return &LedgerApplicationModel{
		ID:             a.ID,
		LedgerEntryID:  a.LedgerEntryID,
		InvoiceID:      a.InvoiceID,
		EntryType:      a.EntryType,
		AppliedAmount:  a.AppliedAmount,
		AppliedAt:      a.AppliedAt,
		AppliedBy:      a.AppliedBy,
		DecoupledAt:    a.DecoupledAt,
		DecoupledBy:    a.DecoupledBy,
		DecoupleReason: a.DecoupleReason,
	}
}

// StudentTransactionModel is the persistence model for the append-only
// transaction ledger. Sequence is assigned by the database.
type StudentTransactionModel struct {
	Sequence      int64                  `gorm:"primaryKey;autoIncrement"`
	ID            uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex"`
	StudentID     uuid.UUID              `gorm:"type:uuid;not null;index:idx_student_transactions_student_date,priority:1"`
	Date          time.Time              `gorm:"not null;index:idx_student_transactions_student_date,priority:2"`
	Type          ledger.TransactionType `gorm:"type:varchar(30);not null"`
	Debit         decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Credit        decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	InvoiceID     *uuid.UUID             `gorm:"type:uuid;index"`
	InvoiceDelta  decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	LedgerEntryID *uuid.UUID             `gorm:"type:uuid;index"`
	ApplicationID *uuid.UUID             `gorm:"type:uuid"`
	Description   string                 `gorm:"type:varchar(500)"`
	CreatedBy     *uuid.UUID             `gorm:"type:uuid"`
	CreatedAt     time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StudentTransactionModel) TableName() string {
	return "student_transactions"
}

// ToDomain converts the persistence model to a domain StudentTransaction.
func (m *StudentTransactionModel) ToDomain() *ledger.StudentTransaction {
	return &ledger.StudentTransaction{
		ID:            m.ID,
		Sequence:      m.Sequence,
		StudentID:     m.StudentID,
		Date:          m.Date,
		Type:          m.Type,
		Debit:         m.Debit,
		Credit:        m.Credit,
		InvoiceID:     m.InvoiceID,
		InvoiceDelta:  m.InvoiceDelta,
		LedgerEntryID: m.LedgerEntryID,
		ApplicationID: m.ApplicationID,
		Description:   m.Description,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
	}
}

// StudentTransactionModelFromDomain creates a new persistence model from domain.
// Sequence is left zero so the database assigns it.
func StudentTransactionModelFromDomain(t *ledger.StudentTransaction) *StudentTransactionModel {
	return &StudentTransactionModel{
		ID:            t.ID,
		StudentID:     t.StudentID,
		Date:          t.Date,
		Type:          t.Type,
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
