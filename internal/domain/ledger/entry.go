package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EntryType is the direction of a correction
type EntryType string

const (
	EntryTypeCredit EntryType = "CREDIT" // the student owes less
	EntryTypeDebit  EntryType = "DEBIT"  // the student owes more
)

// IsValid checks if the entry type is known
func (t EntryType) IsValid() bool {
	return t == EntryTypeCredit || t == EntryTypeDebit
}

// Opposite returns the reversing direction
func (t EntryType) Opposite() EntryType {
	if t == EntryTypeCredit {
		return EntryTypeDebit
	}
	return EntryTypeCredit
}

// String returns the string representation of EntryType
func (t EntryType) String() string {
	return string(t)
}

// EntryStatus represents the status of a correction
type EntryStatus string

const (
	EntryStatusOpen             EntryStatus = "OPEN"
	EntryStatusPartiallyApplied EntryStatus = "PARTIALLY_APPLIED"
	EntryStatusApplied          EntryStatus = "APPLIED"
	EntryStatusReversed         EntryStatus = "REVERSED"
)

// entryTransitions is the authoritative transition table. Reversal is only
// reachable from OPEN: a partially applied entry has to be fully decoupled first.
var entryTransitions = map[EntryStatus][]EntryStatus{
	EntryStatusOpen:             {EntryStatusPartiallyApplied, EntryStatusApplied, EntryStatusReversed},
	EntryStatusPartiallyApplied: {EntryStatusPartiallyApplied, EntryStatusApplied, EntryStatusOpen},
	EntryStatusApplied:          {EntryStatusPartiallyApplied, EntryStatusOpen},
	EntryStatusReversed:         {},
}

// IsValid checks if the status is a valid EntryStatus
func (s EntryStatus) IsValid() bool {
	_, ok := entryTransitions[s]
	return ok
}

// String returns the string representation of EntryStatus
func (s EntryStatus) String() string {
	return string(s)
}

// CanTransitionTo checks the transition table
func (s EntryStatus) CanTransitionTo(target EntryStatus) bool {
	for _, allowed := range entryTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further amount can be applied.
// APPLIED can still regress through decoupling; REVERSED is final.
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusApplied || s == EntryStatusReversed
}

// CanApply returns true if the entry still has an amount to apply
func (s EntryStatus) CanApply() bool {
	return s == EntryStatusOpen || s == EntryStatusPartiallyApplied
}

// EntrySource records where a correction came from
type EntrySource string

const (
	EntrySourceManual EntrySource = "MANUAL"
	EntrySourceCourse EntrySource = "COURSE" // pricePerLesson × occurrences from enrollment
)

// ApplicationTarget is the invoice-side view a correction needs to apply itself.
type ApplicationTarget interface {
	GetID() uuid.UUID
	GetStudentID() uuid.UUID
	// OpenBalance is what is still owed on the invoice
	OpenBalance() decimal.Decimal
	// CanAcceptApplication returns an error if the invoice may not be settled by corrections
	CanAcceptApplication() error
}

// LedgerEntry is a manual credit or debit correction on a student's account.
type LedgerEntry struct {
	shared.StudentAggregateRoot
	Description     string
	Amount          decimal.Decimal // always positive
	EntryType       EntryType
	Status          EntryStatus
	AppliedAmount   decimal.Decimal
	RemainingAmount decimal.Decimal
	Source          EntrySource
	CourseID        *uuid.UUID
	EnrollmentID    *uuid.UUID
	Applications    []LedgerApplication // chronological, includes decoupled ones
	ReversalReason  string
	ReversedAt      *time.Time
	ReversedByID    *uuid.UUID // on the original: the offsetting entry
	ReversalOfID    *uuid.UUID // on the offsetting entry: the original
}

// EntryOption customizes a new entry
type EntryOption func(*LedgerEntry)

// WithCourse marks the correction as course-based
func WithCourse(courseID uuid.UUID) EntryOption {
	return func(e *LedgerEntry) {
		e.CourseID = &courseID
		e.Source = EntrySourceCourse
	}
}

// WithEnrollment records the enrollment the correction derives from
func WithEnrollment(enrollmentID uuid.UUID) EntryOption {
	return func(e *LedgerEntry) {
		e.EnrollmentID = &enrollmentID
	}
}

// NewLedgerEntry creates a new OPEN correction
func NewLedgerEntry(
	studentID uuid.UUID,
	description string,
	amount decimal.Decimal,
	entryType EntryType,
	createdBy *uuid.UUID,
	opts ...EntryOption,
) (*LedgerEntry, error) {
	if studentID == uuid.Nil {
		return nil, shared.NewValidationError("student ID cannot be empty")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, shared.NewValidationError("description cannot be empty")
	}
	if len(description) > 500 {
		return nil, shared.NewValidationError("description cannot exceed 500 characters")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("amount must be positive")
	}
	if !entryType.IsValid() {
		return nil, shared.NewValidationError("invalid entry type %q", entryType)
	}

	e := &LedgerEntry{
		StudentAggregateRoot: shared.NewStudentAggregateRoot(studentID, createdBy),
		Description:          description,
		Amount:               amount,
		EntryType:            entryType,
		Status:               EntryStatusOpen,
		AppliedAmount:        decimal.Zero,
		RemainingAmount:      amount,
		Source:               EntrySourceManual,
		Applications:         make([]LedgerApplication, 0),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.AddDomainEvent(NewLedgerEntryCreatedEvent(e))

	return e, nil
}

// Apply applies part of the remaining amount to an invoice.
//
// A credit can absorb at most min(remaining, invoice balance); a debit adds to
// the invoice and is limited by its remaining amount only. Requests above the
// limit are rejected rather than clipped so the caller never books less than
// they asked for without noticing.
func (e *LedgerEntry) Apply(target ApplicationTarget, amount decimal.Decimal, appliedBy *uuid.UUID) (*LedgerApplication, error) {
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("application amount must be positive")
	}
	if !e.Status.CanApply() {
		return nil, shared.NewInvalidStateTransitionError(string(e.Status), string(EntryStatusPartiallyApplied))
	}
	if target.GetStudentID() != e.StudentID {
		return nil, shared.NewValidationError("invoice belongs to a different student")
	}
	if err := target.CanAcceptApplication(); err != nil {
		return nil, err
	}

	if amount.GreaterThan(e.RemainingAmount) {
		return nil, shared.NewInsufficientRemainingAmountError(
			"requested %s exceeds remaining amount %s of the correction",
			amount.StringFixed(2), e.RemainingAmount.StringFixed(2))
	}
	if e.EntryType == EntryTypeCredit && amount.GreaterThan(target.OpenBalance()) {
		return nil, shared.NewInsufficientRemainingAmountError(
			"requested %s exceeds invoice balance %s",
			amount.StringFixed(2), target.OpenBalance().StringFixed(2))
	}

	app := NewLedgerApplication(e.ID, target.GetID(), e.EntryType, amount, appliedBy)
	e.Applications = append(e.Applications, *app)
	e.AppliedAmount = e.AppliedAmount.Add(amount)
	e.RemainingAmount = e.Amount.Sub(e.AppliedAmount)
	e.Status = e.settledStatus()
	e.Touch(time.Now())

	e.AddDomainEvent(NewLedgerEntryAppliedEvent(e, app))

	return app, nil
}

// AvailableFor returns how much of this entry could be applied to the target right now
func (e *LedgerEntry) AvailableFor(target ApplicationTarget) decimal.Decimal {
	if !e.Status.CanApply() {
		return decimal.Zero
	}
	if e.EntryType == EntryTypeCredit {
		return decimal.Max(decimal.Zero, decimal.Min(e.RemainingAmount, target.OpenBalance()))
	}
	return e.RemainingAmount
}

// FindApplication returns the active application with the given ID
func (e *LedgerEntry) FindApplication(applicationID uuid.UUID) (*LedgerApplication, error) {
	for i := range e.Applications {
		if e.Applications[i].ID == applicationID && e.Applications[i].IsActive() {
			return &e.Applications[i], nil
		}
	}
	return nil, shared.NewDomainError(shared.CodeApplicationNotFound,
		fmt.Sprintf("application %s not found on correction %s", applicationID, e.ID))
}

// Decouple removes one application and gives its amount back to the entry.
// The returned application carries the decouple details.
func (e *LedgerEntry) Decouple(applicationID uuid.UUID, reason string, decoupledBy *uuid.UUID) (*LedgerApplication, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewValidationError("decouple reason is required")
	}
	app, err := e.FindApplication(applicationID)
	if err != nil {
		return nil, err
	}

	restored := e.AppliedAmount.Sub(app.AppliedAmount)
	next := statusFor(e.Amount, restored)
	if !e.Status.CanTransitionTo(next) {
		return nil, shared.NewInvalidStateTransitionError(string(e.Status), string(next))
	}

	now := time.Now()
	app.DecoupledAt = &now
	app.DecoupledBy = decoupledBy
	app.DecoupleReason = reason

	e.AppliedAmount = restored
	e.RemainingAmount = e.Amount.Sub(e.AppliedAmount)
	e.Status = next
	e.UpdatedAt = now

	e.AddDomainEvent(NewApplicationDecoupledEvent(e, app))

	return app, nil
}

// Reverse cancels an unapplied entry by creating an offsetting entry of the
// opposite type. Both entries end REVERSED and reference each other.
func (e *LedgerEntry) Reverse(reason string, reversedBy *uuid.UUID) (*LedgerEntry, error) {
	if !e.Status.CanTransitionTo(EntryStatusReversed) {
		return nil, shared.NewInvalidStateTransitionError(string(e.Status), string(EntryStatusReversed))
	}
	if e.ReversalOfID != nil {
		return nil, shared.NewInvalidStateTransitionError("reversal entry", string(EntryStatusReversed))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewValidationError("reversal reason is required")
	}

	now := time.Now()
	offset := &LedgerEntry{
		StudentAggregateRoot: shared.NewStudentAggregateRoot(e.StudentID, reversedBy),
		Description:          fmt.Sprintf("Reversal of: %s", e.Description),
		Amount:               e.Amount,
		EntryType:            e.EntryType.Opposite(),
		Status:               EntryStatusReversed,
		AppliedAmount:        decimal.Zero,
		RemainingAmount:      decimal.Zero,
		Source:               e.Source,
		CourseID:             e.CourseID,
		EnrollmentID:         e.EnrollmentID,
		Applications:         make([]LedgerApplication, 0),
		ReversalReason:       reason,
		ReversedAt:           &now,
		ReversalOfID:         &e.ID,
	}

	e.Status = EntryStatusReversed
	e.RemainingAmount = decimal.Zero
	e.ReversalReason = reason
	e.ReversedAt = &now
	e.ReversedByID = &offset.ID
	e.UpdatedAt = now

	e.AddDomainEvent(NewLedgerEntryReversedEvent(e, offset))

	return offset, nil
}

// ActiveApplications returns the applications that have not been decoupled
func (e *LedgerEntry) ActiveApplications() []LedgerApplication {
	active := make([]LedgerApplication, 0, len(e.Applications))
	for _, app := range e.Applications {
		if app.IsActive() {
			active = append(active, app)
		}
	}
	return active
}

// CheckInvariants verifies amount bookkeeping. Returns nil when consistent.
func (e *LedgerEntry) CheckInvariants() error {
	sum := decimal.Zero
	for _, app := range e.ActiveApplications() {
		sum = sum.Add(app.AppliedAmount)
	}
	if !sum.Equal(e.AppliedAmount) {
		return fmt.Errorf("applied amount %s does not match applications %s", e.AppliedAmount, sum)
	}
	if e.Status == EntryStatusReversed {
		if !e.RemainingAmount.IsZero() {
			return fmt.Errorf("reversed entry has remaining amount %s", e.RemainingAmount)
		}
		return nil
	}
	if !e.AppliedAmount.Add(e.RemainingAmount).Equal(e.Amount) {
		return fmt.Errorf("applied %s + remaining %s != amount %s", e.AppliedAmount, e.RemainingAmount, e.Amount)
	}
	if e.Status != statusFor(e.Amount, e.AppliedAmount) {
		return fmt.Errorf("status %s does not match applied amount %s", e.Status, e.AppliedAmount)
	}
	return nil
}

// IsReversal returns true for the offsetting entry created by Reverse
func (e *LedgerEntry) IsReversal() bool {
	return e.ReversalOfID != nil
}

func (e *LedgerEntry) settledStatus() EntryStatus {
	return statusFor(e.Amount, e.AppliedAmount)
}

func statusFor(amount, applied decimal.Decimal) EntryStatus {
	switch {
	case applied.IsZero():
		return EntryStatusOpen
	case applied.GreaterThanOrEqual(amount):
		return EntryStatusApplied
	default:
		return EntryStatusPartiallyApplied
	}
}
