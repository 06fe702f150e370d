package observability_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/gocorpus/internal/observability"
)

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	observability.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReadyHandler(t *testing.T) {
	t.Parallel()

	pass := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("metadata not loaded") }

	tests := []struct {
		name   string
		checks []observability.ReadyCheck
		code   int
		body   string
	}{
		{name: "no checks", code: http.StatusOK, body: `{"status":"ok"}`},
		{name: "all pass", checks: []observability.ReadyCheck{pass, pass}, code: http.StatusOK, body: `{"status":"ok"}`},
		{
			name:   "one fails",
			checks: []observability.ReadyCheck{pass, fail},
			code:   http.StatusServiceUnavailable,
			body:   `{"status":"unavailable","reason":"metadata not loaded"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			observability.ReadyHandler(tt.checks...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))

			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestHTTPMiddleware_Spans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	reader, mp := newReader()

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write([]byte("fine"))
	})
	mux.HandleFunc("/boom", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	})

	handler := observability.HTTPMiddleware(tp.Tracer("test"), red, mux)

	for _, path := range []string{"/ok", "/boom"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /ok", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, "GET /boom", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)

	rm := collect(t, reader)
	assert.Equal(t, int64(1), counterValue(t, rm, "gocorpus.requests.total", "status", observability.StatusOK))
	assert.Equal(t, int64(1), counterValue(t, rm, "gocorpus.errors.total", "op", "GET /boom"))
}

func TestHTTPMiddleware_NilMetrics(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	handler := observability.HTTPMiddleware(tp.Tracer("test"), nil, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", http.NoBody))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.Len(t, exporter.GetSpans(), 1)
}
