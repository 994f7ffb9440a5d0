package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	router := gin.New()
	router.Use(
		RequestID(),
		Tracing(TracingConfig{ServiceName: "student-ledger", Enabled: true, Options: []otelgin.Option{otelgin.WithTracerProvider(provider)}}),
		Authenticate(AuthConfig{}),
	)
	students := router.Group("/students/:studentId", SpanEnricher())
	students.GET("/balance", func(c *gin.Context) { c.Status(http.StatusOK) })
	students.GET("/broken", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	userID := uuid.New()
	studentID := uuid.New()
	for _, path := range []string{"/balance", "/broken"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/students/"+studentID.String()+path, nil)
		req.Header.Set(UserIDHeader, userID.String())
		req.Header.Set(RequestIDHeader, "req-"+path[1:])
		router.ServeHTTP(w, req)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Contains(t, ok.Name(), "/students/:studentId/balance")
	attrs := attribute.NewSet(ok.Attributes()...)
	v, found := attrs.Value("request_id")
	require.True(t, found)
	assert.Equal(t, "req-balance", v.AsString())
	v, found = attrs.Value("user_id")
	require.True(t, found)
	assert.Equal(t, userID.String(), v.AsString())
	v, found = attrs.Value("student_id")
	require.True(t, found)
	assert.Equal(t, studentID.String(), v.AsString())

	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestTracingDisabled(t *testing.T) {
	router := gin.New()
	router.Use(Tracing(TracingConfig{Enabled: false}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	mw, err := HTTPMetrics(provider.Meter("http.server"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	router.GET("/invoices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/invoices/1", "/invoices/2", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byRoute := map[string]int64{}
	var sawDuration bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "http_server_request_total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					route, _ := dp.Attributes.Value("http.route")
					byRoute[route.AsString()] += dp.Value
				}
			case "http_server_request_duration_seconds":
				sawDuration = true
			}
		}
	}
	assert.True(t, sawDuration)
	assert.Equal(t, map[string]int64{"/invoices/:id": 2, "unmatched": 1}, byRoute)
}

func TestHTTPMetricsNilMeter(t *testing.T) {
	mw, err := HTTPMetrics(nil)
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
