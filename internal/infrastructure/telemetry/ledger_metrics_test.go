package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/musicschool/ledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewLedgerMetrics(t *testing.T) {
	lm, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter: noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)
	require.NotNil(t, lm)
}

func TestNewLedgerMetrics_NilMeter(t *testing.T) {
	lm, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{})
	require.Error(t, err)
	assert.Nil(t, lm)
	assert.Equal(t, "NewLedgerMetrics: meter cannot be nil", err.Error())
}

func TestLedgerMetrics_NilReceiver(t *testing.T) {
	var lm *telemetry.LedgerMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		lm.RecordCorrectionCreated(ctx, "CREDIT", "MANUAL", decimal.NewFromInt(10))
		lm.RecordApplication(ctx, "CREDIT", telemetry.ApplicationActionApplied)
		lm.RecordReversal(ctx, "CREDIT")
		lm.RecordPayment(ctx, "CASH", decimal.NewFromInt(10))
		lm.RecordInvoiceEvent(ctx, "sent", false)
		lm.RecordCreditInvoiceConfirmed(ctx)
		lm.RecordConflict(ctx, "apply_credit")
		lm.RecordCommand(ctx, "apply_credit", telemetry.OutcomeSuccess, time.Millisecond)
	})
}

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestLedgerMetrics_Counts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	lm, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter: provider.Meter("test"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	lm.RecordCorrectionCreated(ctx, "CREDIT", "MANUAL", decimal.RequireFromString("100.00"))
	lm.RecordCorrectionCreated(ctx, "DEBIT", "COURSE", decimal.RequireFromString("12.345"))
	lm.RecordPayment(ctx, "CASH", decimal.RequireFromString("60.50"))
	lm.RecordApplication(ctx, "CREDIT", telemetry.ApplicationActionApplied)
	lm.RecordApplication(ctx, "CREDIT", telemetry.ApplicationActionDecoupled)

	assert.Equal(t, int64(2), collectSum(t, reader, "ledger_corrections_created_total"))
	assert.Equal(t, int64(11235), collectSum(t, reader, "ledger_correction_amount_cents_total"))
	assert.Equal(t, int64(1), collectSum(t, reader, "ledger_payments_total"))
	assert.Equal(t, int64(6050), collectSum(t, reader, "ledger_payment_amount_cents_total"))
	assert.Equal(t, int64(2), collectSum(t, reader, "ledger_applications_total"))
}
