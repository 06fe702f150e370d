package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// Source opens the raw archive stream of a repository.
type Source interface {
	Open(ctx context.Context, repo string) (io.ReadCloser, error)
}

// DirSource reads archives from a local corpus output directory. The first
// existing file among <repo>.tar.gz, <repo>.tar.lz4 and <repo>.tar is used.
type DirSource struct {
	Dir     string
	MaxSize int64
}

var dirSuffixes = []Compression{CompressionGzip, CompressionLZ4, CompressionNone}

// Open implements Source.
func (s DirSource) Open(_ context.Context, repo string) (io.ReadCloser, error) {
	for _, c := range dirSuffixes {
		path := filepath.Join(s.Dir, repo+c.Extension())

		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, errors.Join(ErrFetch, err)
		}

		if s.MaxSize > 0 {
			info, statErr := f.Stat()
			if statErr == nil && info.Size() > s.MaxSize {
				_ = f.Close()

				return nil, tooLarge(repo, info.Size(), s.MaxSize)
			}
		}

		return f, nil
	}

	return nil, fmt.Errorf("%w: no archive for %s in %s", ErrFetch, repo, s.Dir)
}

// Defaults for HTTPSource.
const (
	DefaultTimeout = 60 * time.Second
	DefaultSuffix  = ".tar.gz"
)

// HTTPSource downloads archives from <BaseURL>/<repo><Suffix>.
type HTTPSource struct {
	BaseURL string
	Suffix  string
	Client  *http.Client
	// Limiter throttles archive requests when set.
	Limiter *rate.Limiter
	// MaxSize rejects archives larger than this many bytes when positive.
	MaxSize int64
}

// NewHTTPSource returns a source with a client using timeout.
func NewHTTPSource(baseURL string, timeout time.Duration, limiter *rate.Limiter, maxSize int64) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPSource{
		BaseURL: baseURL,
		Suffix:  DefaultSuffix,
		Client:  &http.Client{Timeout: timeout},
		Limiter: limiter,
		MaxSize: maxSize,
	}
}

// Open implements Source.
func (s *HTTPSource) Open(ctx context.Context, repo string) (io.ReadCloser, error) {
	if s.Limiter != nil {
		waitErr := s.Limiter.Wait(ctx)
		if waitErr != nil {
			return nil, errors.Join(ErrFetch, waitErr)
		}
	}

	suffix := s.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}

	target, err := url.JoinPath(s.BaseURL, repo+suffix)
	if err != nil {
		return nil, errors.Join(ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, errors.Join(ErrFetch, err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrFetch, err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%w: GET %s: %s", ErrFetch, target, resp.Status)
	}

	if s.MaxSize <= 0 {
		return resp.Body, nil
	}

	if resp.ContentLength > s.MaxSize {
		_ = resp.Body.Close()

		return nil, tooLarge(repo, resp.ContentLength, s.MaxSize)
	}

	return &limitedBody{rc: resp.Body, remaining: s.MaxSize, repo: repo, limit: s.MaxSize}, nil
}

func tooLarge(repo string, size, limit int64) error {
	return fmt.Errorf("%w: %s is %s, limit %s", ErrTooLarge, repo,
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}

// limitedBody fails with ErrTooLarge once more than limit bytes were read.
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
	limit     int64
	repo      string
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, b.repo, humanize.IBytes(uint64(b.limit)))
	}

	// Read one byte past the limit so an exact-size body is not rejected.
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}

	n, err := b.rc.Read(p)
	b.remaining -= int64(n)

	if b.remaining < 0 {
		return n, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, b.repo, humanize.IBytes(uint64(b.limit)))
	}

	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}
