// Package observability wires tracing, metrics, and structured logging for
// every gocorpus entry point (CLI scan, MCP stdio server, HTTP server).
package observability

import (
	"io"
	"log/slog"
	"time"
)

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI is a one-shot command.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server.
	ModeMCP AppMode = "mcp"
	// ModeServe is the HTTP control server.
	ModeServe AppMode = "serve"
)

const (
	defaultServiceName     = "gocorpus"
	defaultShutdownTimeout = 5 * time.Second
	defaultSampleRatio     = 1.0
)

// Config holds observability settings.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Mode           AppMode

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// SampleRatio applies to root spans; parent decisions are honored.
	SampleRatio float64

	// Prometheus attaches a pull exporter and exposes it as Providers.MetricsHandler.
	Prometheus bool

	LogLevel slog.Level
	LogJSON  bool
	// LogOutput defaults to stderr. MCP mode must never log to stdout.
	LogOutput io.Writer

	ShutdownTimeout time.Duration
}

// DefaultConfig returns a zero-export configuration for CLI use.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeCLI,
		SampleRatio:     defaultSampleRatio,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
