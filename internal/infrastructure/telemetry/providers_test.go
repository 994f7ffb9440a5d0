package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/musicschool/ledger/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestProvidersDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := config.TelemetryConfig{Enabled: false, ServiceName: "student-ledger"}

	tp, err := NewTracerProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := NewLoggerProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	base := zap.NewExample()
	assert.Same(t, base, lp.Bridge(base, cfg.ServiceName))
	assert.NoError(t, lp.Shutdown(ctx))

	profiler, err := NewProfiler(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, profiler.IsEnabled())
	assert.NoError(t, profiler.Stop())
	assert.NoError(t, profiler.Stop())
}

func TestNewProfilerRequiresServer(t *testing.T) {
	_, err := NewProfiler(config.TelemetryConfig{ProfilingEnabled: true, ServiceName: "student-ledger"}, zap.NewNop())
	assert.ErrorContains(t, err, "server address")
}

func TestLevelFilterCore(t *testing.T) {
	core := &levelFilterCore{Core: zapcore.NewNopCore(), enabler: zapcore.WarnLevel}
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.False(t, core.Enabled(zapcore.ErrorLevel), "the wrapped core decides too")

	observed, logs := observer.New(zapcore.DebugLevel)
	core = &levelFilterCore{Core: observed, enabler: zapcore.WarnLevel}
	logger := zap.New(core).With(zap.String("component", "ledger"))
	logger.Info("dropped")
	logger.Warn("kept")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
	assert.Equal(t, "ledger", logs.All()[0].ContextMap()["component"])
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestOperationOf(t *testing.T) {
	tests := map[string]string{
		`SELECT * FROM "invoices"`:           "select",
		"  insert INTO student_transactions": "insert",
		"UPDATE ledger_entries SET":          "update",
		"DELETE FROM x":                      "delete",
		"PRAGMA foreign_keys":                "other",
		"":                                   "other",
	}
	for sqlText, want := range tests {
		assert.Equal(t, want, operationOf(sqlText), sqlText)
	}
}

type probe struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestRegisterDBMetrics(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&probe{}))

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := RegisterDBMetrics(db, provider.Meter("test"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })

	require.NoError(t, db.Create(&probe{Name: "a"}).Error)
	var rows []probe
	require.NoError(t, db.Find(&rows).Error)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	var queries int64
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok && metric.Name == "db_query_total" {
				for _, dp := range sum.DataPoints {
					queries += dp.Value
				}
			}
		}
	}
	assert.True(t, names["db_query_duration_seconds"])
	assert.True(t, names["db_pool_connections"])
	assert.False(t, names["db_slow_query_total"], "nothing is slower than an hour")
	assert.GreaterOrEqual(t, queries, int64(2))
}

func TestRegisterDBTracingDisabled(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	require.NoError(t, RegisterDBTracing(db, config.TelemetryConfig{Enabled: true}, zap.NewNop()))
	assert.Empty(t, db.Plugins)
}

func TestRegisterDBTracingEnabled(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&probe{}))

	cfg := config.TelemetryConfig{Enabled: true, DBTraceEnabled: true, DBSlowQueryThresh: time.Nanosecond}
	require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))
	assert.Len(t, db.Plugins, 1)
	assert.NoError(t, db.Create(&probe{Name: "b"}).Error)
}
