package scan_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gocorpus/pkg/aggregate"
	"github.com/Sumatoshi-tech/gocorpus/pkg/archive"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpuscache"
	"github.com/Sumatoshi-tech/gocorpus/pkg/matcher"
	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
)

var errUnreachable = errors.New("archive server unreachable")

// repoFixture builds metadata and archive contents for a repository whose
// files are named f0.go, f1.go, ... each with the given SLOC.
func repoFixture(name string, sloc ...int) (*corpus.Repository, []archive.File) {
	repo := &corpus.Repository{Name: name}

	var files []archive.File

	for i, lines := range sloc {
		fileName := name + "_f" + string(rune('0'+i)) + ".go"
		repo.Files = append(repo.Files, corpus.File{Name: fileName, SLOC: lines})
		files = append(files, archive.File{Name: fileName, Source: "package " + name})
		repo.SLOC += lines
	}

	return repo, files
}

type fakeArchives struct {
	mu    sync.Mutex
	files map[string][]archive.File
	fail  map[string]error
	loads map[string]int
}

func newFakeArchives() *fakeArchives {
	return &fakeArchives{
		files: make(map[string][]archive.File),
		fail:  make(map[string]error),
		loads: make(map[string]int),
	}
}

func (f *fakeArchives) add(repo *corpus.Repository, files []archive.File) *corpus.Repository {
	f.files[repo.Name] = files

	return repo
}

func (f *fakeArchives) Load(_ context.Context, repo string) ([]archive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loads[repo]++

	if err := f.fail[repo]; err != nil {
		return nil, err
	}

	return f.files[repo], nil
}

func (f *fakeArchives) loadCount(repo string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.loads[repo]
}

// scriptedMatcher returns a canned outcome per file name.
type scriptedMatcher struct {
	mu      sync.Mutex
	results map[string]matcher.Result
	errs    map[string]error
	visited []string
	depths  map[string]int
	onMatch func(name string)
}

func (m *scriptedMatcher) Match(_ context.Context, req matcher.Request) (matcher.Result, error) {
	m.mu.Lock()
	m.visited = append(m.visited, req.Name)

	if m.depths == nil {
		m.depths = make(map[string]int)
	}

	m.depths[req.Name] = req.MaxDepth
	hook := m.onMatch
	m.mu.Unlock()

	if hook != nil {
		hook(req.Name)
	}

	if err := m.errs[req.Name]; err != nil {
		return matcher.Result{}, err
	}

	return m.results[req.Name], nil
}

func (m *scriptedMatcher) Visited() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.visited...)
}

func newScheduler(archives *fakeArchives, m matcher.Matcher, opts ...scan.Option) (*scan.Scheduler, *corpuscache.Cache) {
	cache := corpuscache.New(archives)
	opts = append([]scan.Option{scan.WithYield(func() {})}, opts...)

	return scan.NewScheduler(cache, m, opts...), cache
}

func TestScan_TwoRepositoriesWithFatalError(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repoA := archives.add(repoFixture("a", 10, 20))
	repoB := archives.add(repoFixture("b", 5))

	m := &scriptedMatcher{
		results: map[string]matcher.Result{"a_f0.go": {Matches: []string{"x", "y"}}},
		errs: map[string]error{
			"a_f1.go": matcher.ParseGoError(errors.New("1:1: expected 'package'")),
			"b_f0.go": matcher.PatternError(errors.New("bad query")),
		},
	}

	sched, _ := newScheduler(archives, m)

	// A is selected last, so it is scanned first.
	summary, err := sched.Scan(context.Background(), scan.Query{Pattern: "p"}, []*corpus.Repository{repoB, repoA})
	require.ErrorIs(t, err, scan.ErrMatcherFatal)
	require.NotNil(t, summary)

	assert.Equal(t, 3, summary.FilesTotal)
	assert.Equal(t, 1, summary.FilesScanned)
	assert.Equal(t, 2, summary.Hits)
	assert.Equal(t, 10, summary.SLOCProcessed)
	assert.Equal(t, []aggregate.Entry{{Text: "x", Count: 1}, {Text: "y", Count: 1}}, summary.Results)
	assert.Equal(t, "parse pattern: bad query", summary.Err)
	assert.False(t, summary.Interrupted)
	assert.Equal(t, scan.RunFailed, summary.Outcome())

	progress := sched.State().Snapshot()
	assert.False(t, progress.Busy)
	assert.False(t, progress.Running)
	assert.Equal(t, "ERROR parse pattern: bad query", progress.Status)
}

func TestScan_FatalStopsRemainingRepositories(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repoA := archives.add(repoFixture("a", 1))
	repoB := archives.add(repoFixture("b", 1, 1))

	m := &scriptedMatcher{errs: map[string]error{"b_f0.go": matcher.FilterError(errors.New("bad"))}}
	sched, _ := newScheduler(archives, m)

	_, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repoA, repoB})
	require.ErrorIs(t, err, scan.ErrMatcherFatal)
	assert.Equal(t, []string{"b_f0.go"}, m.Visited())
}

func TestScan_ReverseSelectionOrder(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repoA := archives.add(repoFixture("a", 1, 1))
	repoB := archives.add(repoFixture("b", 1))
	repoC := archives.add(repoFixture("c", 1))

	m := &scriptedMatcher{}
	sched, _ := newScheduler(archives, m)

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repoA, repoB, repoC})
	require.NoError(t, err)

	assert.Equal(t, []string{"c_f0.go", "b_f0.go", "a_f0.go", "a_f1.go"}, m.Visited())
	assert.Equal(t, 4, summary.FilesScanned)
	assert.Equal(t, []string{"a", "b", "c"}, summary.Repositories)
}

func TestScan_StopAfterFileK(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repoA := archives.add(repoFixture("a", 1, 1, 1))
	repoR := archives.add(repoFixture("r", 3, 3, 3, 3, 3))

	const k = 2

	m := &scriptedMatcher{results: map[string]matcher.Result{
		"r_f0.go": {Matches: []string{"m"}},
		"r_f1.go": {Matches: []string{"m"}},
		"r_f2.go": {Matches: []string{"m"}},
	}}

	var sched *scan.Scheduler

	m.onMatch = func(name string) {
		if name == "r_f1.go" {
			sched.Stop()
		}
	}

	sched, _ = newScheduler(archives, m)

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repoA, repoR})
	require.NoError(t, err)

	assert.True(t, summary.Interrupted)
	assert.Equal(t, scan.RunInterrupted, summary.Outcome())
	assert.Equal(t, k, summary.FilesScanned)
	assert.Equal(t, k*3, summary.SLOCProcessed)
	assert.Equal(t, k, summary.Hits)
	assert.Equal(t, []string{"r_f0.go", "r_f1.go"}, m.Visited())
	assert.Empty(t, summary.Err)
}

func TestScan_ContextCancelActsLikeStop(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo := archives.add(repoFixture("a", 1, 1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := &scriptedMatcher{onMatch: func(name string) {
		if name == "a_f0.go" {
			cancel()
		}
	}}

	sched, _ := newScheduler(archives, m)

	summary, err := sched.Scan(ctx, scan.Query{}, []*corpus.Repository{repo})
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 1, summary.FilesScanned)
}

func TestScan_ProgressInvariant(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repoA, filesA := repoFixture("a", 1, 1, 1)
	// The archive carries one file more than the metadata describes.
	filesA = append(filesA, archive.File{Name: "extra.go", Source: "package a"})
	archives.add(repoA, filesA)

	repoB, filesB := repoFixture("b", 1, 1)
	// The archive is missing a file the metadata describes.
	archives.add(repoB, filesB[:1])

	var (
		mu        sync.Mutex
		snapshots []scan.Progress
	)

	sink := scan.SinkFuncs{Progress: func(p scan.Progress) {
		mu.Lock()
		snapshots = append(snapshots, p)
		mu.Unlock()
	}}

	sched, _ := newScheduler(archives, &scriptedMatcher{}, scan.WithSink(sink))

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repoA, repoB})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.FilesTotal)
	assert.Equal(t, 4, summary.FilesScanned)

	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, snapshots)

	for _, p := range snapshots {
		assert.LessOrEqual(t, p.FilesScanned, p.FilesTotal)
		assert.GreaterOrEqual(t, p.Percent, 0)
		assert.LessOrEqual(t, p.Percent, 100)
	}
}

func TestScan_NoHitsScoreSentinel(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo := archives.add(repoFixture("a", 100))

	sched, _ := newScheduler(archives, &scriptedMatcher{})

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
	require.NoError(t, err)

	assert.Zero(t, summary.Hits)
	assert.False(t, summary.ScoreDefined)
	assert.Zero(t, summary.FrequencyScore)
	assert.Equal(t, scan.RunCompleted, summary.Outcome())
}

func TestScan_FrequencyScore(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo := archives.add(repoFixture("a", 140, 60))

	m := &scriptedMatcher{results: map[string]matcher.Result{
		"a_f0.go": {Matches: []string{"err != nil", "err != nil"}},
		"a_f1.go": {Skipped: true},
	}}
	sched, _ := newScheduler(archives, m)

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
	require.NoError(t, err)

	// Skipped files count as scanned but add no lines.
	assert.Equal(t, 2, summary.FilesScanned)
	assert.Equal(t, 140, summary.SLOCProcessed)
	assert.True(t, summary.ScoreDefined)
	assert.InDelta(t, 100.0, summary.FrequencyScore, 1e-9)
	assert.Equal(t, []aggregate.Entry{{Text: "err != nil", Count: 2}}, summary.Results)
}

func TestScan_CachedRepositoryNotRefetched(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo := archives.add(repoFixture("a", 1, 1))

	sched, cache := newScheduler(archives, &scriptedMatcher{})

	for range 3 {
		summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.FilesScanned)
	}

	assert.Equal(t, 1, archives.loadCount("a"))
	assert.True(t, cache.Has("a"))
}

func TestScan_LoadFailure(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repoA := archives.add(repoFixture("a", 1))
	repoB := archives.add(repoFixture("b", 1))
	archives.fail["a"] = errUnreachable

	m := &scriptedMatcher{}

	var loading []string

	sink := scan.SinkFuncs{Progress: func(p scan.Progress) {
		if strings.HasPrefix(p.Status, "loading ") {
			loading = append(loading, p.Status)
		}
	}}

	sched, cache := newScheduler(archives, m, scan.WithSink(sink))

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repoA, repoB})
	require.ErrorIs(t, err, scan.ErrLoad)
	require.ErrorIs(t, err, errUnreachable)

	assert.Equal(t, scan.RunLoadFailed, summary.Outcome())
	assert.Empty(t, m.Visited())
	assert.True(t, cache.Has("b"))
	assert.Equal(t, []string{"loading b repository...", "loading a repository..."}, loading)
	assert.False(t, sched.State().Busy())
}

func TestScan_BusyRejected(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo := archives.add(repoFixture("a", 1))

	entered := make(chan struct{})
	release := make(chan struct{})

	m := matcher.MatcherFunc(func(context.Context, matcher.Request) (matcher.Result, error) {
		close(entered)
		<-release

		return matcher.Result{}, nil
	})

	sched, _ := newScheduler(archives, m)

	done := make(chan error, 1)

	go func() {
		_, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
		done <- err
	}()

	<-entered

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
	require.ErrorIs(t, err, scan.ErrBusy)
	assert.Nil(t, summary)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, sched.State().Busy())
}

func TestScan_ResetsStateBetweenRuns(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo := archives.add(repoFixture("a", 5))

	fail := true
	m := matcher.MatcherFunc(func(context.Context, matcher.Request) (matcher.Result, error) {
		if fail {
			return matcher.Result{}, matcher.PatternError(errors.New("bad"))
		}

		return matcher.Result{Matches: []string{"z"}}, nil
	})

	ids := []string{"run-1", "run-2"}
	next := 0

	sched, _ := newScheduler(archives, m, scan.WithRunIDs(func() string {
		id := ids[next]
		next++

		return id
	}))

	first, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
	require.Error(t, err)
	assert.Equal(t, "run-1", first.RunID)

	fail = false

	second, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
	require.NoError(t, err)
	assert.Equal(t, "run-2", second.RunID)
	assert.Empty(t, second.Err)
	assert.Equal(t, 1, second.Hits)
	assert.Equal(t, scan.StatusReady, sched.State().Snapshot().Status)
}

func TestScan_EmptySelection(t *testing.T) {
	t.Parallel()

	done := 0
	sched, _ := newScheduler(newFakeArchives(), &scriptedMatcher{},
		scan.WithSink(scan.SinkFuncs{Done: func(*scan.Summary) { done++ }}))

	summary, err := sched.Scan(context.Background(), scan.Query{}, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.FilesTotal)
	assert.Equal(t, 1, done)
	assert.Zero(t, sched.State().Snapshot().Percent)
}

func TestScan_ElapsedUsesClock(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo := archives.add(repoFixture("a", 1))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0

	sched, _ := newScheduler(archives, &scriptedMatcher{}, scan.WithClock(func() time.Time {
		calls++

		return base.Add(time.Duration(calls-1) * 1500 * time.Millisecond)
	}))

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, summary.Elapsed)
}

// slowArchives advances a fake clock on every load.
type slowArchives struct {
	*fakeArchives

	mu    sync.Mutex
	now   time.Time
	delay time.Duration
}

func (a *slowArchives) Load(ctx context.Context, repo string) ([]archive.File, error) {
	a.mu.Lock()
	a.now = a.now.Add(a.delay)
	a.mu.Unlock()

	return a.fakeArchives.Load(ctx, repo)
}

func (a *slowArchives) clock() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.now
}

func TestScan_ElapsedExcludesLoading(t *testing.T) {
	t.Parallel()

	archives := &slowArchives{
		fakeArchives: newFakeArchives(),
		now:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		delay:        10 * time.Second,
	}
	repo := archives.add(repoFixture("a", 1, 2))

	sched := scan.NewScheduler(corpuscache.New(archives), &scriptedMatcher{},
		scan.WithYield(func() {}), scan.WithClock(archives.clock))

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FilesScanned)
	assert.Zero(t, summary.Elapsed)
}

func TestScan_ArchiveOrderDiffersFromMetadata(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo, files := repoFixture("a", 10, 20)
	repo.Files[0].MaxDepth = 3
	repo.Files[1].MaxDepth = 7

	// Archive lists the files in reverse metadata order.
	archives.add(repo, []archive.File{files[1], files[0]})

	m := &scriptedMatcher{results: map[string]matcher.Result{
		"a_f1.go": {Skipped: true},
	}}
	sched, _ := newScheduler(archives, m)

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
	require.NoError(t, err)

	assert.Equal(t, []string{"a_f1.go", "a_f0.go"}, m.Visited())
	assert.Equal(t, map[string]int{"a_f0.go": 3, "a_f1.go": 7}, m.depths)
	// The skipped file is a_f1.go, so only a_f0.go's SLOC counts.
	assert.Equal(t, 10, summary.SLOCProcessed)
	assert.Equal(t, 2, summary.FilesScanned)
}

func TestScan_MaxResults(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo := archives.add(repoFixture("a", 1))

	m := &scriptedMatcher{results: map[string]matcher.Result{
		"a_f0.go": {Matches: []string{"p", "q", "r", "p"}},
	}}
	sched, _ := newScheduler(archives, m, scan.WithMaxResults(2))

	summary, err := sched.Scan(context.Background(), scan.Query{}, []*corpus.Repository{repo})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Hits)
	assert.Equal(t, 1, summary.DroppedKeys)
	assert.Equal(t, []aggregate.Entry{{Text: "p", Count: 2}, {Text: "q", Count: 1}}, summary.Results)
}

func TestStart_RejectsSynchronouslyWhileBusy(t *testing.T) {
	t.Parallel()

	archives := newFakeArchives()
	repo := archives.add(repoFixture("a", 4))

	release := make(chan struct{})

	m := matcher.MatcherFunc(func(context.Context, matcher.Request) (matcher.Result, error) {
		<-release

		return matcher.Result{Matches: []string{"hit"}}, nil
	})

	ids := []string{"run-1", "run-2"}
	next := 0

	sched, _ := newScheduler(archives, m, scan.WithRunIDs(func() string {
		id := ids[next]
		next++

		return id
	}))

	runID, done, err := sched.Start(context.Background(), scan.Query{Pattern: "p"}, []*corpus.Repository{repo})
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	assert.True(t, sched.State().Busy())

	_, again, err := sched.Start(context.Background(), scan.Query{Pattern: "p"}, []*corpus.Repository{repo})
	require.ErrorIs(t, err, scan.ErrBusy)
	assert.Nil(t, again)

	close(release)

	res, ok := <-done
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, "run-1", res.Summary.RunID)
	assert.Equal(t, 1, res.Summary.Hits)

	_, open := <-done
	assert.False(t, open)
}
