package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	StudentAggregateModel
	InvoiceNumber     string                   `gorm:"type:varchar(30);not null;uniqueIndex"`
	EnrollmentID      *uuid.UUID               `gorm:"type:uuid;index"`
	IssueDate         time.Time                `gorm:"not null;index"`
	DueDate           time.Time                `gorm:"not null;index"`
	Status            invoicing.InvoiceStatus  `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	Lines             invoicing.InvoiceLines   `gorm:"type:jsonb;default:'[]'"`
	Subtotal          decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	VATAmount         decimal.Decimal          `gorm:"column:vat_amount;type:decimal(18,4);not null"`
	Total             decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	PricingSnapshot   datatypes.JSON           `gorm:"type:jsonb"`
	PaidAmount        decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	CreditApplied     decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	DebitApplied      decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	CreditNoteOffset  decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Payments          invoicing.PaymentRecords `gorm:"type:jsonb;default:'[]'"`
	IsCreditInvoice   bool                     `gorm:"not null;default:false;index"`
	OriginalInvoiceID *uuid.UUID               `gorm:"type:uuid;index"`
	Notes             string                   `gorm:"type:text"`
	SentAt            *time.Time               `gorm:"index"`
	PaidAt            *time.Time               `gorm:"index"`
	CancelledAt       *time.Time               `gorm:"index"`
	CancelReason      string                   `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() (*invoicing.Invoice, error) {
	var snapshot invoicing.PricingSnapshot
	if len(m.PricingSnapshot) > 0 {
		if err := json.Unmarshal(m.PricingSnapshot, &snapshot); err != nil {
			return nil, err
		}
	}
	lines := m.Lines
	if lines == nil {
		lines = invoicing.InvoiceLines{}
	}
	payments := m.Payments
	if payments == nil {
		payments = invoicing.PaymentRecords{}
	}
	return &invoicing.Invoice{
		StudentAggregateRoot: m.ToDomainStudentAggregateRoot(),
		InvoiceNumber:        m.InvoiceNumber,
		EnrollmentID:         m.EnrollmentID,
		IssueDate:            m.IssueDate,
		DueDate:              m.DueDate,
		Status:               m.Status,
		Lines:                lines,
		Subtotal:             m.Subtotal,
		VATAmount:            m.VATAmount,
		Total:                m.Total,
		PricingSnapshot:      snapshot,
		PaidAmount:           m.PaidAmount,
		CreditApplied:        m.CreditApplied,
		DebitApplied:         m.DebitApplied,
		CreditNoteOffset:     m.CreditNoteOffset,
		Payments:             payments,
		IsCreditInvoice:      m.IsCreditInvoice,
		OriginalInvoiceID:    m.OriginalInvoiceID,
		Notes:                m.Notes,
		SentAt:               m.SentAt,
		PaidAt:               m.PaidAt,
		CancelledAt:          m.CancelledAt,
		CancelReason:         m.CancelReason,
	}, nil
}

// FromDomain populates the persistence model from a domain Invoice.
func (m *InvoiceModel) FromDomain(inv *invoicing.Invoice) error {
	snapshot, err := json.Marshal(inv.PricingSnapshot)
	if err != nil {
		return err
	}
	m.FromDomainStudentAggregateRoot(inv.StudentAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.EnrollmentID = inv.EnrollmentID
	m.IssueDate = inv.IssueDate
	m.DueDate = inv.DueDate
	m.Status = inv.Status
	m.Lines = inv.Lines
	m.Subtotal = inv.Subtotal
	m.VATAmount = inv.VATAmount
	m.Total = inv.Total
	m.PricingSnapshot = datatypes.JSON(snapshot)
	m.PaidAmount = inv.PaidAmount
	m.CreditApplied = inv.CreditApplied
	m.DebitApplied = inv.DebitApplied
	m.CreditNoteOffset = inv.CreditNoteOffset
	m.Payments = inv.Payments
	m.IsCreditInvoice = inv.IsCreditInvoice
	m.OriginalInvoiceID = inv.OriginalInvoiceID
	m.Notes = inv.Notes
	m.SentAt = inv.SentAt
	m.PaidAt = inv.PaidAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
	return nil
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *invoicing.Invoice) (*InvoiceModel, error) {
	m := &InvoiceModel{}
	if err := m.FromDomain(inv); err != nil {
		return nil, err
	}
	return m, nil
}

// InvoiceSequenceModel holds the last issued number of one (prefix, year) series
type InvoiceSequenceModel struct {
	Prefix    string `gorm:"type:varchar(10);primaryKey"`
	Year      int    `gorm:"primaryKey;autoIncrement:false"`
	LastValue int64  `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoiceSequenceModel) TableName() string {
	return "invoice_sequences"
}
