// Package corpusbuild produces a corpus: one source archive per repository
// plus the corpus.json metadata describing every archived file.
package corpusbuild

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
)

// Source list errors.
var (
	ErrDuplicateSource = errors.New("duplicate repository name")
	ErrNoSources       = errors.New("repository list is empty")
)

// Source describes one repository to include in the corpus.
type Source struct {
	Name     string   `yaml:"name"`
	Tags     []string `yaml:"tags"`
	Git      string   `yaml:"git"`
	SrcRoots []string `yaml:"src_roots"`
}

type sourceList struct {
	Repositories []Source `yaml:"repositories"`
}

// LoadSources decodes and validates a YAML repository list of the form
//
//	repositories:
//	  - name: logrus
//	    tags: [lib, logging]
//	    git: https://github.com/sirupsen/logrus.git
//	    src_roots: [.]
func LoadSources(r io.Reader) ([]Source, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var list sourceList

	decodeErr := dec.Decode(&list)
	if decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
		return nil, fmt.Errorf("decode repository list: %w", decodeErr)
	}

	if len(list.Repositories) == 0 {
		return nil, ErrNoSources
	}

	seen := make(map[string]bool, len(list.Repositories))

	for i, src := range list.Repositories {
		validateErr := corpus.ValidateSource(src.Name, src.Git, src.SrcRoots, src.Tags)
		if validateErr != nil {
			return nil, fmt.Errorf("repository #%d (%q): %w", i+1, src.Name, validateErr)
		}

		if seen[src.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, src.Name)
		}

		seen[src.Name] = true
	}

	return list.Repositories, nil
}
