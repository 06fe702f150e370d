package observability

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
)

// Record keys added by the correlating handler.
const (
	KeyRunID   = "run_id"
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"
)

// NewLogger builds the process logger described by cfg, writing to w.
//
// Every record carries the service identity (service, mode and env when set).
// Records logged with a context also carry the scan run_id and the trace_id
// and span_id of the active span, so one scan can be followed across the log
// and the exported traces.
func NewLogger(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var base slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.LogJSON {
		base = slog.NewJSONHandler(w, opts)
	}

	identity := []slog.Attr{
		slog.String("service", cfg.ServiceName),
		slog.String("mode", string(cfg.Mode)),
	}

	if cfg.Environment != "" {
		identity = append(identity, slog.String("env", cfg.Environment))
	}

	return slog.New(scanHandler{next: base.WithAttrs(identity)})
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// scanHandler adds run and span correlation taken from the record's context.
type scanHandler struct {
	next slog.Handler
}

func (h scanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h scanHandler) Handle(ctx context.Context, rec slog.Record) error {
	if runID := scan.RunIDFromContext(ctx); runID != "" {
		rec.AddAttrs(slog.String(KeyRunID, runID))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		rec.AddAttrs(slog.String(KeyTraceID, sc.TraceID().String()), slog.String(KeySpanID, sc.SpanID().String()))
	}

	return h.next.Handle(ctx, rec)
}

func (h scanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return scanHandler{next: h.next.WithAttrs(attrs)}
}

func (h scanHandler) WithGroup(name string) slog.Handler {
	return scanHandler{next: h.next.WithGroup(name)}
}
