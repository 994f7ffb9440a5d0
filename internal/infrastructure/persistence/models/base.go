package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// AggregateModel provides common persistence fields for aggregate roots.
// It extends BaseModel with version for optimistic locking.
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from domain BaseAggregateRoot
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.Version = a.Version
}

// StudentAggregateModel provides common persistence fields for student-scoped aggregate roots.
type StudentAggregateModel struct {
	AggregateModel
	StudentID uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid"`
}

// FromDomainStudentAggregateRoot populates StudentAggregateModel from domain StudentAggregateRoot
func (m *StudentAggregateModel) FromDomainStudentAggregateRoot(s shared.StudentAggregateRoot) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.StudentID = s.StudentID
	m.CreatedBy = s.CreatedBy
}

// ToDomainStudentAggregateRoot rebuilds the domain StudentAggregateRoot
func (m *StudentAggregateModel) ToDomainStudentAggregateRoot() shared.StudentAggregateRoot {
	return shared.StudentAggregateRoot{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
			Version: m.Version,
		},
		StudentID: m.StudentID,
		CreatedBy: m.CreatedBy,
	}
}
