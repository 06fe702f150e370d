// Package scan runs a structural query over a selection of repositories.
//
// A Scheduler loads the selected repositories through the corpus cache and
// then matches every file, one file per scheduling turn, while publishing
// progress. Repositories are scanned in reverse selection order: the last
// selected repository is scanned first. Files inside a repository are
// scanned in archive order.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/gocorpus/pkg/aggregate"
	"github.com/Sumatoshi-tech/gocorpus/pkg/archive"
	"github.com/Sumatoshi-tech/gocorpus/pkg/chunk"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
	"github.com/Sumatoshi-tech/gocorpus/pkg/matcher"
)

// Sentinel errors returned by Scan.
var (
	ErrBusy         = errors.New("a scan is already in progress")
	ErrLoad         = errors.New("load repositories")
	ErrMatcherFatal = errors.New("matcher failed")
)

const tracerName = "gocorpus/scan"

// Query is what to search for.
type Query struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Filter  string `json:"filter"  yaml:"filter"`
}

// Cache provides decoded repository archives.
type Cache interface {
	LoadAll(ctx context.Context, repos []string, onLoad func(repo string)) error
	EnsureLoaded(ctx context.Context, repo string) ([]archive.File, error)
}

// Scheduler runs one scan at a time.
type Scheduler struct {
	cache    Cache
	matcher  matcher.Matcher
	runner   chunk.Runner
	logger   *slog.Logger
	sink     ProgressSink
	recorder Recorder
	baseline float64
	maxKeys  int
	now      func() time.Time
	newRunID func() string

	state *RunState
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSink sets the progress observer.
func WithSink(sink ProgressSink) Option {
	return func(s *Scheduler) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithBaseline overrides the frequency score baseline.
func WithBaseline(lines float64) Option {
	return func(s *Scheduler) {
		if lines > 0 {
			s.baseline = lines
		}
	}
}

// WithMaxResults limits the number of distinct match texts kept per run.
func WithMaxResults(n int) Option {
	return func(s *Scheduler) {
		s.maxKeys = n
	}
}

// WithYield replaces the function called between files.
func WithYield(yield func()) Option {
	return func(s *Scheduler) {
		s.runner.Yield = yield
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(next func() string) Option {
	return func(s *Scheduler) {
		s.newRunID = next
	}
}

// NewScheduler creates a scheduler scanning with m over archives from cache.
func NewScheduler(cache Cache, m matcher.Matcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		cache:    cache,
		matcher:  m,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sink:     nopSink{},
		recorder: nopRecorder{},
		baseline: DefaultBaseline,
		maxKeys:  aggregate.MaxKeys,
		now:      time.Now,
		newRunID: uuid.NewString,
		state:    newRunState(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// State exposes the run state for observers.
func (s *Scheduler) State() *RunState {
	return s.state
}

// Stop asks the current run to end after the file being matched.
// It is a no-op when nothing is running.
func (s *Scheduler) Stop() {
	s.state.stop()
}

// Scan loads the repositories and matches q against every file.
//
// A stopped or canceled run returns its partial summary with Interrupted set
// and a nil error. A fatal matcher failure or a load failure returns the
// summary together with an error wrapping ErrMatcherFatal or ErrLoad.
// ErrBusy is returned, without a summary, while another run is in progress.
func (s *Scheduler) Scan(ctx context.Context, q Query, repos []*corpus.Repository) (*Summary, error) {
	r, err := s.prepare(q, repos)
	if err != nil {
		return nil, err
	}

	return r.scan(ctx)
}

// Result is what a background run delivers when it ends.
type Result struct {
	Summary *Summary
	Err     error
}

// Start is Scan on a new goroutine. The busy check happens before Start
// returns, so a nil error guarantees the run was accepted. The channel
// receives exactly one Result and is then closed.
func (s *Scheduler) Start(ctx context.Context, q Query, repos []*corpus.Repository) (string, <-chan Result, error) {
	r, err := s.prepare(q, repos)
	if err != nil {
		return "", nil, err
	}

	done := make(chan Result, 1)

	go func() {
		defer close(done)

		summary, scanErr := r.scan(ctx)
		done <- Result{Summary: summary, Err: scanErr}
	}()

	return r.runID, done, nil
}

func (s *Scheduler) prepare(q Query, repos []*corpus.Repository) (*run, error) {
	names := make([]string, len(repos))
	for i, repo := range repos {
		names[i] = repo.Name
	}

	r := &run{
		sched:   s,
		query:   q,
		repos:   repos,
		names:   names,
		agg:     aggregate.New(s.maxKeys),
		runID:   s.newRunID(),
		started: s.now(),
	}
	r.scanStart = r.started

	if !s.state.begin(r.runID, corpus.CountFiles(repos), r.started) {
		return nil, ErrBusy
	}

	return r, nil
}

func (r *run) scan(ctx context.Context) (*Summary, error) {
	s := r.sched

	ctx, span := otel.Tracer(tracerName).Start(ContextWithRunID(ctx, r.runID), "gocorpus.scan",
		trace.WithAttributes(
			attribute.String("scan.run_id", r.runID),
			attribute.Int("scan.repositories", len(r.repos)),
			attribute.Int("scan.files_total", corpus.CountFiles(r.repos)),
		))
	defer span.End()

	s.logger.InfoContext(ctx, "scan: started",
		"repositories", len(r.repos), "pattern", r.query.Pattern, "filter", r.query.Filter)

	summary, err := r.execute(ctx)

	span.SetAttributes(
		attribute.Int("scan.files_scanned", summary.FilesScanned),
		attribute.Int("scan.hits", summary.Hits),
		attribute.String("scan.outcome", string(summary.Outcome())),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return summary, err
}

func (s *Scheduler) publish() {
	s.sink.OnProgress(s.state.Snapshot())
}

// run is the per-scan bookkeeping owned by the scanning goroutine.
type run struct {
	sched   *Scheduler
	query   Query
	repos   []*corpus.Repository
	names   []string
	agg     *aggregate.Aggregator
	runID   string
	started time.Time

	// scanStart is stamped once every archive is loaded; Elapsed counts from it.
	scanStart time.Time

	dropped     int
	interrupted bool
	fatal       error
}

func (r *run) execute(ctx context.Context) (*Summary, error) {
	s := r.sched

	loadErr := s.cache.LoadAll(ctx, r.names, func(repo string) {
		s.state.setStatus(loadingFormat, repo)
		s.publish()
		s.logger.InfoContext(ctx, "scan: loading repository", "repo", repo)
	})
	if loadErr != nil && ctx.Err() != nil {
		r.interrupted = true

		return r.finish(ctx, false), nil
	}

	if loadErr != nil {
		return r.abortLoad(ctx, loadErr)
	}

	r.scanStart = s.now()

	pending := slices.Clone(r.repos)

	for len(pending) > 0 && !r.interrupted {
		repo := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		files, err := s.cache.EnsureLoaded(ctx, repo.Name)
		if err != nil {
			return r.abortLoad(ctx, err)
		}

		metas := r.metadataFor(ctx, repo, files)

		r.interrupted = s.runner.RunAll(len(metas), func(i int) bool {
			return r.step(ctx, repo, files[i], metas[i])
		})
	}

	summary := r.finish(ctx, false)

	if r.fatal != nil {
		return summary, fmt.Errorf("%w: %w", ErrMatcherFatal, r.fatal)
	}

	return summary, nil
}

// metadataFor pairs each archive file with its metadata entry. Archives are
// expected in metadata order; when they are not, entries are matched by name.
// The result is bounded by both lists so the scanned count never exceeds the
// total.
func (r *run) metadataFor(ctx context.Context, repo *corpus.Repository, files []archive.File) []corpus.File {
	logger := r.sched.logger

	if len(files) != len(repo.Files) {
		logger.WarnContext(ctx, "scan: archive does not match metadata",
			"repo", repo.Name, "archive_files", len(files), "metadata_files", len(repo.Files))
	}

	n := min(len(files), len(repo.Files))
	metas := repo.Files[:n]

	aligned := true

	for i := range n {
		if files[i].Name != metas[i].Name {
			aligned = false

			break
		}
	}

	if aligned {
		return metas
	}

	logger.WarnContext(ctx, "scan: archive order differs from metadata", "repo", repo.Name)

	byName := make(map[string]corpus.File, len(repo.Files))
	for _, f := range repo.Files {
		byName[f.Name] = f
	}

	out := make([]corpus.File, n)

	for i := range n {
		meta, ok := byName[files[i].Name]
		if !ok {
			logger.WarnContext(ctx, "scan: file missing from metadata", "repo", repo.Name, "file", files[i].Name)
			meta = corpus.File{Name: files[i].Name}
		}

		out[i] = meta
	}

	return out
}

func (r *run) step(ctx context.Context, repo *corpus.Repository, file archive.File, meta corpus.File) bool {
	s := r.sched

	if ctx.Err() != nil {
		s.state.stop()
	}

	if !s.state.Running() {
		return false
	}

	s.state.setStatus(processingFmt, ShortenName(repo.Name+"/"+file.Name))
	s.publish()

	begin := time.Now()

	res, err := s.matcher.Match(ctx, matcher.Request{
		Pattern:  r.query.Pattern,
		Filter:   r.query.Filter,
		Flags:    meta.Flags,
		MaxDepth: meta.MaxDepth,
		Name:     file.Name,
		Source:   file.Source,
	})

	took := time.Since(begin)

	if err != nil {
		if matcher.IsRecoverable(err) {
			s.logger.DebugContext(ctx, "scan: skipping unparsable file",
				"repo", repo.Name, "file", file.Name, "error", err)
			s.recorder.RecordFile(ctx, FileRecoverable, 0, took)

			return true
		}

		s.logger.ErrorContext(ctx, "scan: matcher failed",
			"repo", repo.Name, "file", file.Name, "error", err)
		s.recorder.RecordFile(ctx, FileFatal, 0, took)
		s.state.fail(err.Error())
		r.fatal = err

		return false
	}

	for _, text := range res.Matches {
		if !r.agg.Record(text) {
			r.dropped++
		}
	}

	sloc := meta.SLOC
	outcome := FileScanned

	if res.Skipped {
		sloc = 0
		outcome = FileSkipped
	}

	s.state.fileDone(sloc, len(res.Matches))
	s.recorder.RecordFile(ctx, outcome, len(res.Matches), took)

	return true
}

func (r *run) abortLoad(ctx context.Context, err error) (*Summary, error) {
	r.sched.logger.ErrorContext(ctx, "scan: loading failed", "error", err)
	r.sched.state.fail(err.Error())

	return r.finish(ctx, true), fmt.Errorf("%w: %w", ErrLoad, err)
}

func (r *run) finish(ctx context.Context, loadFailed bool) *Summary {
	s := r.sched
	elapsed := s.now().Sub(r.scanStart)
	progress := s.state.Snapshot()
	score, defined := FrequencyScore(progress.SLOCProcessed, progress.Hits, s.baseline)

	summary := &Summary{
		RunID:          r.runID,
		Query:          r.query,
		Repositories:   r.names,
		Results:        r.agg.Snapshot(),
		FrequencyScore: score,
		ScoreDefined:   defined,
		FilesTotal:     progress.FilesTotal,
		FilesScanned:   progress.FilesScanned,
		SLOCProcessed:  progress.SLOCProcessed,
		Hits:           progress.Hits,
		DroppedKeys:    r.dropped,
		Elapsed:        elapsed,
		Interrupted:    r.interrupted && progress.Err == "",
		Err:            progress.Err,
		loadFailed:     loadFailed,
	}

	s.state.end()
	s.recorder.RecordRun(ctx, summary.Outcome(), elapsed)
	s.logger.InfoContext(ctx, "scan: finished",
		"outcome", summary.Outcome(), "files_scanned", summary.FilesScanned,
		"hits", summary.Hits, "elapsed", elapsed)

	s.publish()
	s.sink.OnDone(summary)

	return summary
}
