package shared

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is what a unit of work tracks: a versioned record that
// buffers the events of its own state changes until commit.
type AggregateRoot interface {
	GetID() uuid.UUID
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseEntity carries identity and UTC audit timestamps
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *BaseEntity) GetID() uuid.UUID { return e.ID }

// Touch stamps UpdatedAt
func (e *BaseEntity) Touch(at time.Time) { e.UpdatedAt = at.UTC() }

func newBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// BaseAggregateRoot adds the optimistic-lock version and pending events
type BaseAggregateRoot struct {
	BaseEntity
	Version      int           `gorm:"not null;default:1"`
	domainEvents []DomainEvent `gorm:"-"`
}

func (a *BaseAggregateRoot) GetVersion() int { return a.Version }

// IncrementVersion is called by repositories after a successful
// version-checked update, so one unit of work bumps the version once.
func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent { return a.domainEvents }

func (a *BaseAggregateRoot) ClearDomainEvents() { a.domainEvents = nil }

// StudentAggregateRoot scopes an aggregate to one student's account.
// All mutations of a student's ledger are serialized on StudentID.
type StudentAggregateRoot struct {
	BaseAggregateRoot
	StudentID uuid.UUID
	CreatedBy *uuid.UUID
}

// NewStudentAggregateRoot starts a fresh aggregate at version 1
func NewStudentAggregateRoot(studentID uuid.UUID, createdBy *uuid.UUID) StudentAggregateRoot {
	return StudentAggregateRoot{
		BaseAggregateRoot: BaseAggregateRoot{BaseEntity: newBaseEntity(), Version: 1},
		StudentID:         studentID,
		CreatedBy:         createdBy,
	}
}

func (s *StudentAggregateRoot) GetStudentID() uuid.UUID { return s.StudentID }
