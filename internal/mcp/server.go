// Package mcp serves corpus scans as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/gocorpus/internal/observability"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpuscache"
	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
)

const (
	serverName    = "gocorpus"
	spanPrefix    = "mcp."
	traceIDPrefix = "trace_id="
)

// ServerDeps holds what the tools operate on. Logger, Metrics, and Tracer
// are optional.
type ServerDeps struct {
	Meta      *corpus.Meta
	Cache     *corpuscache.Cache
	Scheduler *scan.Scheduler
	Version   string

	Logger  *slog.Logger
	Metrics *observability.REDMetrics
	Tracer  trace.Tracer
}

// Server wraps the SDK server with the gocorpus tools registered.
type Server struct {
	inner *mcpsdk.Server
	deps  ServerDeps
	tools []string
}

// NewServer registers every tool and returns the server.
func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.DiscardLogger()
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	inner := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version},
		&mcpsdk.ServerOptions{Logger: deps.Logger})

	s := &Server{inner: inner, deps: deps}

	addTool[ListRepositoriesInput](s, ToolListRepositories, listRepositoriesDescription, s.handleListRepositories)
	addTool[ScanInput](s, ToolScan, scanDescription, s.handleScan)

	return s
}

// ToolNames returns the registered tool names, sorted.
func (s *Server) ToolNames() []string {
	names := slices.Clone(s.tools)
	slices.Sort(names)

	return names
}

// Run serves over stdio until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport serves over transport.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

type toolHandler[In any] func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, ToolOutput, error)

func addTool[In any](s *Server, name, description string, h toolHandler[In]) {
	wrapped := withMetrics(s.deps.Metrics, name, withTracing(s.deps.Tracer, name, h))
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{Name: name, Description: description},
		mcpsdk.ToolHandlerFor[In, ToolOutput](wrapped))

	s.tools = append(s.tools, name)
}

// withTracing opens a span per call and, when sampled, appends the trace ID
// to the result so clients can find the trace.
func withTracing[In any](tracer trace.Tracer, name string, h toolHandler[In]) toolHandler[In] {
	if tracer == nil {
		return h
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, spanPrefix+name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", name)),
		)
		defer span.End()

		result, out, err := h(ctx, req, in)

		if sc := span.SpanContext(); sc.IsSampled() && result != nil {
			result.Content = append(result.Content, &mcpsdk.TextContent{Text: traceIDPrefix + sc.TraceID().String()})
		}

		return result, out, err
	}
}

func withMetrics[In any](red *observability.REDMetrics, name string, h toolHandler[In]) toolHandler[In] {
	if red == nil {
		return h
	}

	op := spanPrefix + name

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		done := red.TrackInflight(ctx, op)
		defer done()

		result, out, err := h(ctx, req, in)

		status := observability.StatusOK
		if err != nil || (result != nil && result.IsError) {
			status = observability.StatusError
		}

		red.RecordRequest(ctx, op, status, time.Since(start))

		return result, out, err
	}
}
