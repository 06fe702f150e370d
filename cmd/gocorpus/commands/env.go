// Package commands implements the gocorpus CLI subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Sumatoshi-tech/gocorpus/internal/config"
	"github.com/Sumatoshi-tech/gocorpus/internal/observability"
	"github.com/Sumatoshi-tech/gocorpus/pkg/archive"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpuscache"
	"github.com/Sumatoshi-tech/gocorpus/pkg/matcher/structural"
	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
	"github.com/Sumatoshi-tech/gocorpus/pkg/version"
)

// ErrMetadataStatus is returned when remote corpus metadata cannot be fetched.
var ErrMetadataStatus = errors.New("unexpected metadata response status")

// GlobalFlags are the persistent root flags.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// env is what a subcommand needs once configuration has been resolved.
type env struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
	metrics   *observability.ScanMetrics
}

type envOptions struct {
	mode       observability.AppMode
	prometheus bool
}

func setupEnv(cmd *cobra.Command, flags *GlobalFlags, opts envOptions) (*env, error) {
	cfg, err := config.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = opts.mode
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	obsCfg.Prometheus = opts.prometheus
	obsCfg.LogLevel = cfg.LogLevel()
	obsCfg.LogJSON = cfg.JSONLogs()
	obsCfg.LogOutput = cmd.ErrOrStderr()

	switch {
	case flags.Verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case flags.Quiet:
		obsCfg.LogLevel = slog.LevelError
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	metrics, err := observability.NewScanMetrics(providers.Meter)
	if err != nil {
		_ = providers.Shutdown(context.Background())

		return nil, fmt.Errorf("init scan metrics: %w", err)
	}

	return &env{cfg: cfg, providers: providers, logger: providers.Logger, metrics: metrics}, nil
}

func (e *env) close() {
	shutdownErr := e.providers.Shutdown(context.Background())
	if shutdownErr != nil {
		e.logger.Warn("observability shutdown failed", "error", shutdownErr)
	}
}

// loadMeta reads corpus.json from a local path or an http(s) URL.
func (e *env) loadMeta(ctx context.Context) (*corpus.Meta, error) {
	location := e.cfg.Corpus.Metadata

	rc, err := openLocation(ctx, location, e.cfg)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	meta, err := corpus.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}

	e.logger.DebugContext(ctx, "corpus: metadata loaded",
		"location", location, "repositories", len(meta.Repositories), "version", meta.Version)

	return meta, nil
}

func openLocation(ctx context.Context, location string, cfg *config.Config) (io.ReadCloser, error) {
	if !config.IsRemote(location) {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open corpus metadata: %w", err)
		}

		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}

	client := &http.Client{Timeout: cfg.Fetch.Timeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch corpus metadata: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%w: %s", ErrMetadataStatus, resp.Status)
	}

	return resp.Body, nil
}

// archiveSource picks a directory or HTTP archive source from corpus.archives.
func (e *env) archiveSource() (archive.Source, error) {
	maxSize, err := e.cfg.MaxArchiveBytes()
	if err != nil {
		return nil, err
	}

	location := e.cfg.Corpus.Archives
	if !config.IsRemote(location) {
		return archive.DirSource{Dir: location, MaxSize: maxSize}, nil
	}

	var limiter *rate.Limiter
	if e.cfg.Fetch.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.cfg.Fetch.RateLimit), 1)
	}

	return archive.NewHTTPSource(location, e.cfg.Fetch.Timeout, limiter, maxSize), nil
}

func (e *env) newCache() (*corpuscache.Cache, error) {
	src, err := e.archiveSource()
	if err != nil {
		return nil, err
	}

	return corpuscache.New(archive.NewLoader(src), corpuscache.WithRecorder(e.metrics)), nil
}

func (e *env) newScheduler(cache *corpuscache.Cache, sink scan.ProgressSink) *scan.Scheduler {
	opts := []scan.Option{
		scan.WithLogger(e.logger),
		scan.WithRecorder(e.metrics),
		scan.WithBaseline(e.cfg.Scan.Baseline),
		scan.WithMaxResults(e.cfg.Scan.MaxResults),
	}

	if sink != nil {
		opts = append(opts, scan.WithSink(sink))
	}

	return scan.NewScheduler(cache, structural.New(), opts...)
}
