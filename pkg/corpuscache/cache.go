// Package corpuscache keeps decoded repository archives in memory for the
// lifetime of the process, so a repository is fetched at most once.
package corpuscache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/gocorpus/pkg/archive"
)

// Loader fetches and decodes the archive of one repository.
type Loader interface {
	Load(ctx context.Context, repo string) ([]archive.File, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, repo string) ([]archive.File, error)

// Load calls f(ctx, repo).
func (f LoaderFunc) Load(ctx context.Context, repo string) ([]archive.File, error) {
	return f(ctx, repo)
}

// Recorder receives cache events. Implementations must tolerate concurrent calls.
type Recorder interface {
	RecordCacheLookup(ctx context.Context, hit bool)
	RecordLoad(ctx context.Context, repo string, err error)
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Loads    int64 `json:"loads"`
	Failures int64 `json:"failures"`
}

type inflight struct {
	done  chan struct{}
	files []archive.File
	err   error
}

// Cache maps repository name to its decoded files. Entries are never evicted.
// It is safe for concurrent use.
type Cache struct {
	loader   Loader
	recorder Recorder

	mu      sync.RWMutex
	entries map[string][]archive.File
	pending map[string]*inflight

	hits     atomic.Int64
	misses   atomic.Int64
	loads    atomic.Int64
	failures atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithRecorder reports cache events to r.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New creates an empty cache backed by loader.
func New(loader Loader, opts ...Option) *Cache {
	c := &Cache{
		loader:   loader,
		recorder: nopRecorder{},
		entries:  make(map[string][]archive.File),
		pending:  make(map[string]*inflight),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the cached files of repo without loading.
func (c *Cache) Get(repo string) ([]archive.File, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	files, ok := c.entries[repo]

	return files, ok
}

// Has reports whether repo is cached.
func (c *Cache) Has(repo string) bool {
	_, ok := c.Get(repo)

	return ok
}

// Len returns the number of cached repositories.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Stats returns the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:  c.Len(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Loads:    c.loads.Load(),
		Failures: c.failures.Load(),
	}
}

// EnsureLoaded returns the files of repo, loading them on first use.
// Concurrent callers for the same repository share one load. A failed load
// caches nothing.
func (c *Cache) EnsureLoaded(ctx context.Context, repo string) ([]archive.File, error) {
	c.mu.Lock()

	if files, ok := c.entries[repo]; ok {
		c.mu.Unlock()
		c.hits.Add(1)
		c.recorder.RecordCacheLookup(ctx, true)

		return files, nil
	}

	if call, ok := c.pending[repo]; ok {
		c.mu.Unlock()

		return wait(ctx, call)
	}

	call := &inflight{done: make(chan struct{})}
	c.pending[repo] = call
	c.mu.Unlock()

	c.misses.Add(1)
	c.recorder.RecordCacheLookup(ctx, false)

	call.files, call.err = c.load(ctx, repo)

	c.mu.Lock()
	if call.err == nil {
		c.entries[repo] = call.files
	}

	delete(c.pending, repo)
	c.mu.Unlock()
	close(call.done)

	return call.files, call.err
}

func (c *Cache) load(ctx context.Context, repo string) ([]archive.File, error) {
	c.loads.Add(1)

	files, err := c.loader.Load(ctx, repo)
	c.recorder.RecordLoad(ctx, repo, err)

	if err != nil {
		c.failures.Add(1)

		return nil, fmt.Errorf("load %s: %w", repo, err)
	}

	if files == nil {
		files = []archive.File{}
	}

	return files, nil
}

func wait(ctx context.Context, call *inflight) ([]archive.File, error) {
	select {
	case <-call.done:
		return call.files, call.err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for load: %w", ctx.Err())
	}
}

// LoadAll loads every repository in repos that is not cached yet, one at a
// time, starting from the end of the list. onLoad, when set, is called before
// each load. It stops at the first failure; repositories loaded before it
// stay cached.
func (c *Cache) LoadAll(ctx context.Context, repos []string, onLoad func(repo string)) error {
	var missing []string

	for _, repo := range repos {
		if !c.Has(repo) {
			missing = append(missing, repo)
		}
	}

	for len(missing) > 0 {
		repo := missing[len(missing)-1]
		missing = missing[:len(missing)-1]

		if onLoad != nil {
			onLoad(repo)
		}

		_, err := c.EnsureLoaded(ctx, repo)
		if err != nil {
			return err
		}
	}

	return nil
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheLookup(context.Context, bool) {}
func (nopRecorder) RecordLoad(context.Context, string, error) {}
