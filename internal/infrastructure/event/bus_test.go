package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/ledger"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testEvent struct {
	shared.BaseDomainEvent
	Amount string `json:"amount"`
}

func newTestEvent(eventType string, studentID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "LedgerEntry", uuid.New(), studentID),
		Amount:          "40.00",
	}
}

type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func startedBus(t *testing.T, l *zap.Logger) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(l)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })
	return bus
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := startedBus(t, zap.NewNop())
	handler := newTestHandler(ledger.EventTypeLedgerEntryCreated)
	bus.Subscribe(handler)

	event := newTestEvent(ledger.EventTypeLedgerEntryCreated, uuid.New())
	require.NoError(t, bus.Publish(context.Background(), event))

	handled := handler.getHandled()
	require.Len(t, handled, 1)
	assert.Equal(t, event, handled[0])
}

func TestInMemoryEventBus_PublishPreservesOrder(t *testing.T) {
	bus := startedBus(t, zap.NewNop())
	handler := newTestHandler()
	bus.Subscribe(handler)

	studentID := uuid.New()
	events := []shared.DomainEvent{
		newTestEvent(ledger.EventTypeLedgerEntryCreated, studentID),
		newTestEvent(ledger.EventTypeLedgerEntryApplied, studentID),
		newTestEvent(invoicing.EventTypeInvoicePaid, studentID),
	}
	require.NoError(t, bus.Publish(context.Background(), events...))
	assert.Equal(t, events, handler.getHandled())
}

func TestInMemoryEventBus_Routing(t *testing.T) {
	bus := startedBus(t, zap.NewNop())
	entries := newTestHandler(ledger.EventTypeLedgerEntryCreated)
	invoices := newTestHandler(invoicing.EventTypeInvoiceSent)
	all := newTestHandler()
	bus.Subscribe(entries)
	bus.Subscribe(invoices)
	bus.Subscribe(all)

	studentID := uuid.New()
	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent(ledger.EventTypeLedgerEntryCreated, studentID),
		newTestEvent(invoicing.EventTypeInvoiceSent, studentID),
		newTestEvent(invoicing.EventTypeInvoiceOverdue, studentID),
	))

	assert.Len(t, entries.getHandled(), 1)
	assert.Len(t, invoices.getHandled(), 1)
	assert.Len(t, all.getHandled(), 3)
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandler(t *testing.T) {
	bus := startedBus(t, zap.NewNop())
	handler := newTestHandler(ledger.EventTypeLedgerEntryCreated)
	bus.Subscribe(handler, ledger.EventTypeLedgerEntryReversed)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent(ledger.EventTypeLedgerEntryCreated, uuid.New()),
		newTestEvent(ledger.EventTypeLedgerEntryReversed, uuid.New()),
	))

	handled := handler.getHandled()
	require.Len(t, handled, 1)
	assert.Equal(t, ledger.EventTypeLedgerEntryReversed, handled[0].EventType())
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := startedBus(t, zap.New(core))

	failing := newTestHandler()
	failing.err = errors.New("sink unavailable")
	panicking := newTestHandler()
	panicking.panicWith = "boom"
	healthy := newTestHandler()
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	studentID := uuid.New()
	err := bus.Publish(context.Background(), newTestEvent(ledger.EventTypeLedgerEntryApplied, studentID))

	require.NoError(t, err)
	assert.Len(t, healthy.getHandled(), 1)
	assert.Equal(t, int64(2), bus.Failures())

	entries := logs.FilterMessage("event handler failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, studentID.String(), entries[0].ContextMap()["student_id"])
	assert.Contains(t, entries[1].ContextMap()["error"], "handler panicked: boom")
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := startedBus(t, zap.NewNop())
	handler := newTestHandler(ledger.EventTypeLedgerEntryCreated, ledger.EventTypeLedgerEntryApplied)
	other := newTestHandler(ledger.EventTypeLedgerEntryCreated)
	bus.Subscribe(handler)
	bus.Subscribe(other)

	bus.Unsubscribe(handler)
	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent(ledger.EventTypeLedgerEntryCreated, uuid.New()),
		newTestEvent(ledger.EventTypeLedgerEntryApplied, uuid.New()),
	))

	assert.Empty(t, handler.getHandled())
	assert.Len(t, other.getHandled(), 1)
	assert.Empty(t, bus.registry.HandlersFor(ledger.EventTypeLedgerEntryApplied))
}

func TestInMemoryEventBus_StoppedDropsEvents(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := NewInMemoryEventBus(zap.New(core))
	handler := newTestHandler()
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent(invoicing.EventTypeInvoiceSent, uuid.New())))
	assert.Empty(t, handler.getHandled())
	assert.Equal(t, 1, logs.FilterMessage("event bus stopped, dropping events").Len())

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent(invoicing.EventTypeInvoiceSent, uuid.New())))
	assert.Len(t, handler.getHandled(), 1)

	require.NoError(t, bus.Stop(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent(invoicing.EventTypeInvoiceSent, uuid.New())))
	assert.Len(t, handler.getHandled(), 1)
}

func TestAuditLogHandler(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	bus := startedBus(t, zap.NewNop())
	audit := NewAuditLogHandler(zap.New(core))
	bus.Subscribe(audit)

	studentID := uuid.New()
	event := newTestEvent(ledger.EventTypeLedgerEntryReversed, studentID)
	require.NoError(t, bus.Publish(context.Background(),
		event,
		newTestEvent("SomethingUnrelated", studentID),
	))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EventTypeLedgerEntryReversed, entries[0].Message)
	assert.Equal(t, "audit", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, studentID.String(), fields["student_id"])
	assert.Equal(t, event.AggregateID().String(), fields["aggregate_id"])
	assert.Contains(t, fields["payload"], `"amount":"40.00"`)
}

func TestAuditLogHandlerCoversDomainEvents(t *testing.T) {
	types := NewAuditLogHandler(zap.NewNop()).EventTypes()
	assert.Contains(t, types, ledger.EventTypeApplicationDecoupled)
	assert.Contains(t, types, invoicing.EventTypeCreditOffsetApplied)
	assert.Len(t, types, 14)
}
