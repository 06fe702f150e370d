// Package corpus describes the repositories of a search corpus: their
// identity, origin and per-file metadata as recorded in corpus.json.
package corpus

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus/filebits"
)

// FormatVersion is the corpus.json version written by the corpus builder.
//
//	1 - initial version.
//	2 - Version in Meta, SLOC in File.
//	3 - MaxDepth in File.
const FormatVersion = 3

// ErrUnknownRepository is returned when a selection names a repository
// that the corpus does not contain.
var ErrUnknownRepository = errors.New("unknown repository")

// Meta is the decoded corpus.json document.
type Meta struct {
	Version      int           `json:"Version"`
	Repositories []*Repository `json:"Repositories"`
}

// Repository describes one repository of the corpus. It is immutable once decoded.
type Repository struct {
	Name         string   `json:"Name"`
	Tags         []string `json:"Tags"`
	Git          string   `json:"Git"`
	Commit       string   `json:"Commit"`
	Size         int      `json:"Size"`
	MinifiedSize int      `json:"MinifiedSize"`
	SLOC         int      `json:"SLOC"`
	Files        []File   `json:"Files"`
}

// File describes one source file inside a repository archive.
type File struct {
	Name     string       `json:"Name"`
	Flags    filebits.Set `json:"Flags"`
	SLOC     int          `json:"SLOC"`
	MaxDepth int          `json:"MaxDepth"`
}

// HasTag reports whether the repository is labeled with tag.
func (r *Repository) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// Lookup returns the repository with the given name.
func (m *Meta) Lookup(name string) (*Repository, bool) {
	for _, repo := range m.Repositories {
		if repo.Name == name {
			return repo, true
		}
	}

	return nil, false
}

// Select returns the named repositories in corpus order, the same order a
// user sees them in the selection list. Duplicate names are collapsed.
func (m *Meta) Select(names ...string) ([]*Repository, error) {
	wanted := make(map[string]bool, len(names))

	for _, name := range names {
		if _, ok := m.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRepository, name)
		}

		wanted[name] = true
	}

	selected := make([]*Repository, 0, len(wanted))

	for _, repo := range m.Repositories {
		if wanted[repo.Name] {
			selected = append(selected, repo)
		}
	}

	return selected, nil
}

// SelectTags returns, in corpus order, the repositories carrying any of the tags.
func (m *Meta) SelectTags(tags ...string) []*Repository {
	var selected []*Repository

	for _, repo := range m.Repositories {
		if slices.ContainsFunc(tags, repo.HasTag) {
			selected = append(selected, repo)
		}
	}

	return selected
}

// TotalSLOC sums the source line counts of all repositories.
func (m *Meta) TotalSLOC() int {
	total := 0

	for _, repo := range m.Repositories {
		total += repo.SLOC
	}

	return total
}

// CountFiles returns the number of files across repos.
func CountFiles(repos []*Repository) int {
	total := 0

	for _, repo := range repos {
		total += len(repo.Files)
	}

	return total
}
