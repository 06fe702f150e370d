package corpus

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel validation errors for repository definitions.
var (
	ErrEmptyName  = errors.New("empty repo name")
	ErrEmptyGit   = errors.New("empty repo git")
	ErrGitSuffix  = errors.New("git link doesn't end with '.git'")
	ErrEmptyRoots = errors.New("empty repo src roots list")
	ErrEmptyTags  = errors.New("empty repo tags list")
	ErrUnknownTag = errors.New("unknown tag")
)

// knownTags is the tag vocabulary repositories may be labeled with.
var knownTags = []string{
	"ci",
	"cli",
	"compiler",
	"crypto",
	"db",
	"decoder",
	"ebpf",
	"encoder",
	"framework",
	"go-tools",
	"grpc",
	"kubernetes",
	"lib",
	"logging",
	"math",
	"metrics",
	"net",
	"nfs",
	"orm",
	"os",
	"parser",
	"sql",
	"testing",
	"tool",
}

// KnownTags returns the sorted tag vocabulary.
func KnownTags() []string {
	return slices.Clone(knownTags)
}

// IsKnownTag reports whether tag belongs to the vocabulary.
func IsKnownTag(tag string) bool {
	_, found := slices.BinarySearch(knownTags, tag)

	return found
}

// ValidateTags checks that tags is non-empty and only uses known tags.
func ValidateTags(tags []string) error {
	if len(tags) == 0 {
		return ErrEmptyTags
	}

	var unknown []string

	for _, tag := range tags {
		if !IsKnownTag(tag) {
			unknown = append(unknown, tag)
		}
	}

	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTag, strings.Join(unknown, ", "))
	}

	return nil
}

// ValidateSource checks a repository definition used by the corpus builder.
func ValidateSource(name, git string, srcRoots, tags []string) error {
	if name == "" {
		return ErrEmptyName
	}

	if git == "" {
		return ErrEmptyGit
	}

	if !strings.HasSuffix(git, ".git") {
		return ErrGitSuffix
	}

	if len(srcRoots) == 0 {
		return ErrEmptyRoots
	}

	return ValidateTags(tags)
}
