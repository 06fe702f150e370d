// Package matcher defines the contract between the scan scheduler and the
// code that finds pattern matches inside a single source file.
package matcher

import (
	"context"

	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus/filebits"
)

// Request is the input of one per-file match call.
type Request struct {
	Pattern  string
	Filter   string
	Flags    filebits.Set
	MaxDepth int
	Name     string
	Source   string
}

// Result is the outcome of a successful per-file match call.
// Skipped is set when the filter excluded the file without parsing it.
type Result struct {
	Matches []string
	Skipped bool
}

// Matcher finds all matches of a pattern in a file.
type Matcher interface {
	Match(ctx context.Context, req Request) (Result, error)
}

// MatcherFunc adapts an ordinary function to the Matcher interface.
type MatcherFunc func(ctx context.Context, req Request) (Result, error)

// Match calls f(ctx, req).
func (f MatcherFunc) Match(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
