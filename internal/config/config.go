// Package config loads gocorpus settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Sentinel validation errors.
var (
	ErrEmptyMetadata     = errors.New("corpus.metadata must be set")
	ErrEmptyArchives     = errors.New("corpus.archives must be set")
	ErrInvalidTimeout    = errors.New("fetch.timeout must be positive")
	ErrInvalidRateLimit  = errors.New("fetch.rate_limit must not be negative")
	ErrInvalidArchiveCap = errors.New("fetch.max_archive_size is not a valid size")
	ErrInvalidBaseline   = errors.New("scan.baseline must be positive")
	ErrInvalidMaxResults = errors.New("scan.max_results out of range")
	ErrEmptyAddr         = errors.New("server.addr must be set")
	ErrInvalidLogLevel   = errors.New("logging.level must be debug, info, warn or error")
	ErrInvalidLogFormat  = errors.New("logging.format must be text or json")
)

// Config is the top-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Corpus        CorpusConfig        `mapstructure:"corpus"`
	Fetch         FetchConfig         `mapstructure:"fetch"`
	Scan          ScanConfig          `mapstructure:"scan"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// CorpusConfig locates the corpus. Both fields accept a local path or an
// http(s) URL.
type CorpusConfig struct {
	Metadata string `mapstructure:"metadata"`
	Archives string `mapstructure:"archives"`
}

// FetchConfig tunes archive downloads.
type FetchConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	MaxArchiveSize string        `mapstructure:"max_archive_size"`
}

// ScanConfig tunes the scheduler.
type ScanConfig struct {
	Baseline   float64 `mapstructure:"baseline"`
	MaxResults int     `mapstructure:"max_results"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateCorpus(),
		c.validateFetch(),
		c.validateScan(),
		c.validateOutput(),
	)
}

func (c *Config) validateCorpus() error {
	if c.Corpus.Metadata == "" {
		return ErrEmptyMetadata
	}

	if c.Corpus.Archives == "" {
		return ErrEmptyArchives
	}

	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Fetch.RateLimit < 0 {
		return ErrInvalidRateLimit
	}

	_, err := c.MaxArchiveBytes()

	return err
}

func (c *Config) validateScan() error {
	if c.Scan.Baseline <= 0 {
		return ErrInvalidBaseline
	}

	if c.Scan.MaxResults < 1 || c.Scan.MaxResults > MaxResultsLimit {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidMaxResults, c.Scan.MaxResults, MaxResultsLimit)
	}

	return nil
}

func (c *Config) validateOutput() error {
	if c.Server.Addr == "" {
		return ErrEmptyAddr
	}

	if _, ok := parseLevel(c.Logging.Level); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}
}

// MaxArchiveBytes parses fetch.max_archive_size. Zero disables the limit.
func (c *Config) MaxArchiveBytes() (int64, error) {
	raw := strings.TrimSpace(c.Fetch.MaxArchiveSize)
	if raw == "" || raw == "0" {
		return 0, nil
	}

	size, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArchiveCap, err)
	}

	return int64(size), nil //nolint:gosec // sizes beyond int64 are rejected by humanize.
}

// LogLevel returns the slog level named by logging.level.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Logging.Level)

	return level
}

// JSONLogs reports whether logs are emitted as JSON.
func (c *Config) JSONLogs() bool {
	return strings.EqualFold(c.Logging.Format, "json")
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
