package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/logger"
	"github.com/musicschool/ledger/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const spanService = "reconciliation"

// Coordinator is the only caller of the mutating ledger and invoice primitives.
// Every command runs under the student's lock inside one transaction, saves
// aggregates with a version check, appends the ledger rows of the change and
// publishes the aggregates' domain events once the transaction has committed.
type Coordinator struct {
	scope     TransactionScope
	reads     TransactionalRepositories
	locker    StudentLocker
	publisher shared.EventPublisher
	metrics   *telemetry.LedgerMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewCoordinator creates a new Coordinator. reads serves queries and the
// student lookups that happen before a lock is taken.
func NewCoordinator(scope TransactionScope, reads TransactionalRepositories, locker StudentLocker) *Coordinator {
	return &Coordinator{
		scope:  scope,
		reads:  reads,
		locker: locker,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetEventPublisher sets the publisher for domain events
func (c *Coordinator) SetEventPublisher(publisher shared.EventPublisher) {
	c.publisher = publisher
}

// SetMetrics sets the business metrics recorder
func (c *Coordinator) SetMetrics(metrics *telemetry.LedgerMetrics) {
	c.metrics = metrics
}

// SetLogger sets the logger
func (c *Coordinator) SetLogger(l *zap.Logger) {
	if l != nil {
		c.logger = l
	}
}

// SetClock replaces the time source
func (c *Coordinator) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// unitOfWork tracks what one command changed. Rows are appended at the end of
// the transaction; events are published after it commits.
type unitOfWork struct {
	repos      TransactionalRepositories
	rows       []*ledger.StudentTransaction
	aggregates []shared.AggregateRoot
	seen       map[shared.AggregateRoot]bool
}

func newUnitOfWork(repos TransactionalRepositories) *unitOfWork {
	return &unitOfWork{
		repos: repos,
		seen:  make(map[shared.AggregateRoot]bool),
	}
}

func (u *unitOfWork) track(aggregates ...shared.AggregateRoot) {
	for _, a := range aggregates {
		if !u.seen[a] {
			u.seen[a] = true
			u.aggregates = append(u.aggregates, a)
		}
	}
}

func (u *unitOfWork) record(rows ...*ledger.StudentTransaction) {
	u.rows = append(u.rows, rows...)
}

func (u *unitOfWork) createEntry(ctx context.Context, e *ledger.LedgerEntry) error {
	if err := u.repos.EntryRepo().Create(ctx, e); err != nil {
		return err
	}
	u.track(e)
	return nil
}

func (u *unitOfWork) saveEntry(ctx context.Context, e *ledger.LedgerEntry) error {
	if err := u.repos.EntryRepo().SaveWithLock(ctx, e); err != nil {
		return err
	}
	u.track(e)
	return nil
}

func (u *unitOfWork) createInvoice(ctx context.Context, inv *invoicing.Invoice) error {
	if err := u.repos.InvoiceRepo().Create(ctx, inv); err != nil {
		return err
	}
	u.track(inv)
	return nil
}

func (u *unitOfWork) saveInvoice(ctx context.Context, inv *invoicing.Invoice) error {
	if err := u.repos.InvoiceRepo().SaveWithLock(ctx, inv); err != nil {
		return err
	}
	u.track(inv)
	return nil
}

func (u *unitOfWork) flush(ctx context.Context) error {
	return u.repos.TransactionRepo().Append(ctx, u.rows...)
}

func (u *unitOfWork) drainEvents() []shared.DomainEvent {
	var events []shared.DomainEvent
	for _, a := range u.aggregates {
		events = append(events, a.GetDomainEvents()...)
		a.ClearDomainEvents()
	}
	return events
}

// execute runs fn as one atomic command on a student's account.
// Once the transaction has started it runs to commit or rollback even if the
// caller's context is cancelled.
func (c *Coordinator) execute(
	ctx context.Context,
	op string,
	studentID uuid.UUID,
	fn func(ctx context.Context, uow *unitOfWork) error,
) error {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, op)
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrStudentID, studentID)
	start := time.Now()

	err := c.run(ctx, studentID, fn)
	c.finish(ctx, span, op, studentID, start, err)
	return err
}

func (c *Coordinator) run(ctx context.Context, studentID uuid.UUID, fn func(ctx context.Context, uow *unitOfWork) error) error {
	release, err := c.locker.Acquire(ctx, studentID)
	if err != nil {
		return err
	}
	defer release()

	txCtx := context.WithoutCancel(ctx)
	var uow *unitOfWork
	err = c.scope.Execute(txCtx, func(repos TransactionalRepositories) error {
		uow = newUnitOfWork(repos)
		if err := fn(txCtx, uow); err != nil {
			return err
		}
		return uow.flush(txCtx)
	})
	if err != nil {
		return err
	}

	c.publish(txCtx, uow.drainEvents())
	return nil
}

// annotate tags the command span carried by ctx
func annotate(ctx context.Context, keyValues ...any) {
	telemetry.SetAttributes(trace.SpanFromContext(ctx), keyValues...)
}

// publish hands committed events to the bus. A failure is logged, never
// returned: the change itself is already durable.
func (c *Coordinator) publish(ctx context.Context, events []shared.DomainEvent) {
	if c.publisher == nil || len(events) == 0 {
		return
	}
	if err := c.publisher.Publish(ctx, events...); err != nil {
		logger.WithLogger(ctx, c.logger).Warn("failed to publish domain events",
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) finish(ctx context.Context, span trace.Span, op string, studentID uuid.UUID, start time.Time, err error) {
	outcome := outcomeOf(err)
	c.metrics.RecordCommand(ctx, op, outcome, time.Since(start))

	log := logger.WithLogger(ctx, c.logger).With(
		zap.String("operation", op),
		zap.String("student_id", studentID.String()),
		zap.Duration("duration", time.Since(start)),
	)
	switch outcome {
	case telemetry.OutcomeSuccess:
		telemetry.SetOK(span)
		log.Debug("command completed")
	case telemetry.OutcomeRejected:
		telemetry.SetAttribute(span, string(telemetry.AttrErrorCode), shared.ErrorCode(err))
		telemetry.RecordError(span, err)
		log.Info("command rejected", zap.String("code", shared.ErrorCode(err)), zap.Error(err))
	default:
		if shared.ErrorCode(err) == shared.CodeConcurrencyConflict {
			c.metrics.RecordConflict(ctx, op)
		}
		telemetry.RecordError(span, err)
		log.Warn("command failed", zap.String("code", shared.ErrorCode(err)), zap.Error(err))
	}
}

// outcomeOf classifies an error: rule violations are rejections, anything that
// may succeed on retry is a failure.
func outcomeOf(err error) telemetry.Outcome {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case shared.ErrorCode(err) == "" || shared.IsRetryable(err):
		return telemetry.OutcomeFailed
	default:
		return telemetry.OutcomeRejected
	}
}

// studentOfEntry resolves the account a correction belongs to, before locking
func (c *Coordinator) studentOfEntry(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error) {
	e, err := c.reads.EntryRepo().FindByID(ctx, entryID)
	if err != nil {
		return uuid.Nil, err
	}
	return e.StudentID, nil
}

// studentOfInvoice resolves the account an invoice belongs to, before locking
func (c *Coordinator) studentOfInvoice(ctx context.Context, invoiceID uuid.UUID) (uuid.UUID, error) {
	inv, err := c.reads.InvoiceRepo().FindByID(ctx, invoiceID)
	if err != nil {
		return uuid.Nil, err
	}
	return inv.StudentID, nil
}

// studentOfApplication resolves the account an application belongs to, before locking
func (c *Coordinator) studentOfApplication(ctx context.Context, applicationID uuid.UUID) (uuid.UUID, error) {
	e, err := c.reads.EntryRepo().FindByApplicationID(ctx, applicationID)
	if err != nil {
		return uuid.Nil, err
	}
	return e.StudentID, nil
}
