package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/gocorpus/pkg/corpuscache"
	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
)

const (
	metricFilesTotal   = "gocorpus.scan.files.total"
	metricHitsTotal    = "gocorpus.scan.hits.total"
	metricFileDuration = "gocorpus.scan.file.duration.seconds"
	metricRunsTotal    = "gocorpus.scan.runs.total"
	metricRunDuration  = "gocorpus.scan.run.duration.seconds"
	metricLoadsTotal   = "gocorpus.corpus.loads.total"
	metricCacheHits    = "gocorpus.corpus.cache.hits.total"
	metricCacheMisses  = "gocorpus.corpus.cache.misses.total"

	attrOutcome = "outcome"
	attrResult  = "result"

	loadResultOK     = "ok"
	loadResultFailed = "failed"
)

var (
	fileBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
	runBuckets  = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600}
)

var (
	_ scan.Recorder        = (*ScanMetrics)(nil)
	_ corpuscache.Recorder = (*ScanMetrics)(nil)
)

// ScanMetrics records scheduler and corpus cache activity. It satisfies both
// scan.Recorder and corpuscache.Recorder. Nil receivers are no-ops.
type ScanMetrics struct {
	files        metric.Int64Counter
	hits         metric.Int64Counter
	fileDuration metric.Float64Histogram
	runs         metric.Int64Counter
	runDuration  metric.Float64Histogram
	loads        metric.Int64Counter
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// NewScanMetrics creates the scan instruments on mt.
func NewScanMetrics(mt metric.Meter) (*ScanMetrics, error) {
	b := newMetricBuilder(mt)

	sm := &ScanMetrics{
		files:        b.counter(metricFilesTotal, "Files handed to the matcher, by outcome", "{file}"),
		hits:         b.counter(metricHitsTotal, "Matches reported by the matcher", "{match}"),
		fileDuration: b.histogram(metricFileDuration, "Per-file match duration in seconds", "s", fileBuckets...),
		runs:         b.counter(metricRunsTotal, "Finished scan runs, by outcome", "{run}"),
		runDuration:  b.histogram(metricRunDuration, "Scan run wall time in seconds", "s", runBuckets...),
		loads:        b.counter(metricLoadsTotal, "Repository archive loads, by result", "{load}"),
		cacheHits:    b.counter(metricCacheHits, "Corpus cache lookups served from memory", "{hit}"),
		cacheMisses:  b.counter(metricCacheMisses, "Corpus cache lookups that needed a load", "{miss}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return sm, nil
}

// RecordFile implements scan.Recorder.
func (sm *ScanMetrics) RecordFile(ctx context.Context, outcome scan.FileOutcome, hits int, d time.Duration) {
	if sm == nil {
		return
	}

	sm.files.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, string(outcome))))
	sm.fileDuration.Record(ctx, d.Seconds())

	if hits > 0 {
		sm.hits.Add(ctx, int64(hits))
	}
}

// RecordRun implements scan.Recorder.
func (sm *ScanMetrics) RecordRun(ctx context.Context, outcome scan.RunOutcome, d time.Duration) {
	if sm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, string(outcome)))
	sm.runs.Add(ctx, 1, attrs)
	sm.runDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordCacheLookup implements corpuscache.Recorder.
func (sm *ScanMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if sm == nil {
		return
	}

	if hit {
		sm.cacheHits.Add(ctx, 1)

		return
	}

	sm.cacheMisses.Add(ctx, 1)
}

// RecordLoad implements corpuscache.Recorder. The repository name is left
// off the attributes to keep cardinality bounded.
func (sm *ScanMetrics) RecordLoad(ctx context.Context, _ string, err error) {
	if sm == nil {
		return
	}

	result := loadResultOK
	if err != nil {
		result = loadResultFailed
	}

	sm.loads.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}
