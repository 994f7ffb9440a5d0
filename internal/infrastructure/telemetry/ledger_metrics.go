package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics counts reconciliation activity: corrections, applications,
// payments, invoice lifecycle changes and lock conflicts.
// All methods are safe to call on a nil receiver.
type LedgerMetrics struct {
	correctionsTotal      *Counter
	correctionAmountCents *Counter
	applicationsTotal     *Counter
	reversalsTotal        *Counter
	paymentsTotal         *Counter
	paymentAmountCents    *Counter
	invoiceEventsTotal    *Counter
	creditConfirmedTotal  *Counter
	conflictsTotal        *Counter
	commandDuration       *Histogram
}

// LedgerMetricsConfig holds configuration for ledger metrics.
type LedgerMetricsConfig struct {
	Meter metric.Meter
}

// ApplicationAction labels application counter increments
type ApplicationAction string

const (
	ApplicationActionApplied   ApplicationAction = "applied"
	ApplicationActionDecoupled ApplicationAction = "decoupled"
)

// Outcome labels command durations
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected" // business rule violation
	OutcomeFailed   Outcome = "failed"   // storage or lock failure
)

// NewLedgerMetrics creates a new LedgerMetrics instance.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	lm := &LedgerMetrics{}

	counters := []struct {
		target      **Counter
		name        string
		description string
		unit        string
	}{
		{&lm.correctionsTotal, "ledger_corrections_created_total", "Total number of corrections created", "{corrections}"},
		{&lm.correctionAmountCents, "ledger_correction_amount_cents_total", "Total correction amount in cents", "{cents}"},
		{&lm.applicationsTotal, "ledger_applications_total", "Total number of correction applications and decouplings", "{applications}"},
		{&lm.reversalsTotal, "ledger_corrections_reversed_total", "Total number of reversed corrections", "{corrections}"},
		{&lm.paymentsTotal, "ledger_payments_total", "Total number of recorded payments", "{payments}"},
		{&lm.paymentAmountCents, "ledger_payment_amount_cents_total", "Total payment amount in cents", "{cents}"},
		{&lm.invoiceEventsTotal, "ledger_invoice_events_total", "Invoice lifecycle changes by operation", "{invoices}"},
		{&lm.creditConfirmedTotal, "ledger_credit_invoices_confirmed_total", "Total number of confirmed credit invoices", "{invoices}"},
		{&lm.conflictsTotal, "ledger_concurrency_conflicts_total", "Commands rejected by lock timeout or stale version", "{conflicts}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.description, c.unit)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	var err error
	lm.commandDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "ledger_command_duration_seconds",
		Description: "Duration of reconciliation commands including lock wait",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// RecordCorrectionCreated records a new credit or debit correction
func (lm *LedgerMetrics) RecordCorrectionCreated(ctx context.Context, entryType, source string, amount decimal.Decimal) {
	if lm == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrEntryType.String(entryType), AttrEntrySource.String(source)}
	lm.correctionsTotal.Inc(ctx, attrs...)
	lm.correctionAmountCents.Add(ctx, toCents(amount), attrs...)
}

// RecordApplication records an application being made or decoupled
func (lm *LedgerMetrics) RecordApplication(ctx context.Context, entryType string, action ApplicationAction) {
	if lm == nil {
		return
	}
	lm.applicationsTotal.Inc(ctx, AttrEntryType.String(entryType), AttrOperation.String(string(action)))
}

// RecordReversal records a reversed correction
func (lm *LedgerMetrics) RecordReversal(ctx context.Context, entryType string) {
	if lm == nil {
		return
	}
	lm.reversalsTotal.Inc(ctx, AttrEntryType.String(entryType))
}

// RecordPayment records a payment and its amount
func (lm *LedgerMetrics) RecordPayment(ctx context.Context, method string, amount decimal.Decimal) {
	if lm == nil {
		return
	}
	lm.paymentsTotal.Inc(ctx, AttrPaymentMethod.String(method))
	lm.paymentAmountCents.Add(ctx, toCents(amount), AttrPaymentMethod.String(method))
}

// RecordInvoiceEvent records an invoice lifecycle change such as "sent" or "cancelled"
func (lm *LedgerMetrics) RecordInvoiceEvent(ctx context.Context, operation string, creditInvoice bool) {
	if lm == nil {
		return
	}
	kind := "invoice"
	if creditInvoice {
		kind = "credit_invoice"
	}
	lm.invoiceEventsTotal.Inc(ctx, AttrOperation.String(operation), AttrInvoiceKind.String(kind))
}

// RecordCreditInvoiceConfirmed records a confirmed credit invoice
func (lm *LedgerMetrics) RecordCreditInvoiceConfirmed(ctx context.Context) {
	if lm == nil {
		return
	}
	lm.creditConfirmedTotal.Inc(ctx)
}

// RecordConflict records a lock timeout or stale version
func (lm *LedgerMetrics) RecordConflict(ctx context.Context, operation string) {
	if lm == nil {
		return
	}
	lm.conflictsTotal.Inc(ctx, AttrOperation.String(operation))
}

// RecordCommand records how long a command took and how it ended
func (lm *LedgerMetrics) RecordCommand(ctx context.Context, operation string, outcome Outcome, d time.Duration) {
	if lm == nil {
		return
	}
	lm.commandDuration.RecordDuration(ctx, d, AttrOperation.String(operation), AttrOutcome.String(string(outcome)))
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
