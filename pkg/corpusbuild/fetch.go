package corpusbuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// ErrCheckoutMissing is returned by LocalFetcher when the repository
// directory does not exist.
var ErrCheckoutMissing = errors.New("checkout missing")

// Checkout is a working tree ready to be walked.
type Checkout struct {
	Dir    string
	Commit string

	cleanup func() error
}

// Close releases the working tree.
func (c *Checkout) Close() error {
	if c.cleanup == nil {
		return nil
	}

	return c.cleanup()
}

// Fetcher produces a working tree for a source.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) (*Checkout, error)
}

// GitFetcher shallow-clones each source into a temporary directory under
// TempDir (os.TempDir when empty). The clone is removed on Close.
type GitFetcher struct {
	TempDir string
}

// Fetch implements Fetcher.
func (g GitFetcher) Fetch(ctx context.Context, src Source) (*Checkout, error) {
	dir, err := os.MkdirTemp(g.TempDir, src.Name+"-")
	if err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}

	cleanup := func() error { return os.RemoveAll(dir) }

	repo, cloneErr := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          src.Git,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if cloneErr != nil {
		_ = cleanup()

		return nil, fmt.Errorf("git clone %s: %w", src.Git, cloneErr)
	}

	head, headErr := repo.Head()
	if headErr != nil {
		_ = cleanup()

		return nil, fmt.Errorf("resolve HEAD of %s: %w", src.Name, headErr)
	}

	return &Checkout{Dir: dir, Commit: head.Hash().String(), cleanup: cleanup}, nil
}

// LocalFetcher uses existing checkouts at Root/<name>. The commit is read
// from the checkout when it is a git repository and left empty otherwise.
type LocalFetcher struct {
	Root string
}

// Fetch implements Fetcher.
func (l LocalFetcher) Fetch(_ context.Context, src Source) (*Checkout, error) {
	dir := filepath.Join(l.Root, src.Name)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrCheckoutMissing, dir)
	}

	return &Checkout{Dir: dir, Commit: headCommit(dir)}, nil
}

func headCommit(dir string) string {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return ""
	}

	head, err := repo.Head()
	if err != nil {
		return ""
	}

	return head.Hash().String()
}
