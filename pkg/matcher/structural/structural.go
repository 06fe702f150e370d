// Package structural matches tree-sitter query patterns against Go sources.
//
// A pattern is a tree-sitter query over the Go grammar, for example
//
//	(binary_expression left: (identifier) @x operator: "!=" right: (nil)) @match
//
// The text of the @match capture (or of the first capture when there is no
// @match) is reported for every match. Filter variables ($x) refer to
// captures by name.
package structural

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"regexp"
	"sync"

	golang "github.com/alexaandru/go-sitter-forest/go"
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/gocorpus/pkg/matcher"
	"github.com/Sumatoshi-tech/gocorpus/pkg/matcher/filters"
)

// MatchCapture is the capture name whose text is reported for a match.
const MatchCapture = "match"

// Sentinel errors for pattern compilation.
var (
	ErrNoCaptures = errors.New("pattern has no captures")
	ErrEmptyTree  = errors.New("tree-sitter returned no root node")
)

var captureRe = regexp.MustCompile(`@[A-Za-z_]`)

type compiledFilter struct {
	expr *filters.Expr
	info filters.Info
}

// Matcher implements matcher.Matcher with tree-sitter queries.
// It is safe for concurrent use.
type Matcher struct {
	lang    *sitter.Language
	parsers sync.Pool

	mu      sync.RWMutex
	queries map[string]*sitter.Query
	filters map[string]compiledFilter
}

// New returns a matcher for Go sources.
func New() *Matcher {
	lang := sitter.NewLanguage(golang.GetLanguage())

	return &Matcher{
		lang: lang,
		parsers: sync.Pool{
			New: func() any {
				p := sitter.NewParser()
				p.SetLanguage(lang)

				return p
			},
		},
		queries: make(map[string]*sitter.Query),
		filters: make(map[string]compiledFilter),
	}
}

var _ matcher.Matcher = (*Matcher)(nil)

// Match runs req.Pattern over req.Source.
func (m *Matcher) Match(ctx context.Context, req matcher.Request) (matcher.Result, error) {
	filter, err := m.compileFilter(req.Filter)
	if err != nil {
		return matcher.Result{}, matcher.FilterError(err)
	}

	if filter.info.Excludes(req.Flags, req.MaxDepth) {
		return matcher.Result{Skipped: true}, nil
	}

	_, parseErr := parser.ParseFile(token.NewFileSet(), req.Name, req.Source, parser.SkipObjectResolution)
	if parseErr != nil {
		return matcher.Result{}, matcher.ParseGoError(parseErr)
	}

	query, err := m.compileQuery(req.Pattern)
	if err != nil {
		return matcher.Result{}, matcher.PatternError(err)
	}

	matches, err := m.run(ctx, query, filter.expr, []byte(req.Source))
	if err != nil {
		return matcher.Result{}, matcher.ParseGoError(err)
	}

	return matcher.Result{Matches: matches}, nil
}

func (m *Matcher) compileFilter(src string) (compiledFilter, error) {
	m.mu.RLock()
	cached, ok := m.filters[src]
	m.mu.RUnlock()

	if ok {
		return cached, nil
	}

	expr, info, err := filters.CompileExpr(src)
	if err != nil {
		return compiledFilter{}, err
	}

	compiled := compiledFilter{expr: expr, info: info}

	m.mu.Lock()
	m.filters[src] = compiled
	m.mu.Unlock()

	return compiled, nil
}

func (m *Matcher) compileQuery(pattern string) (*sitter.Query, error) {
	m.mu.RLock()
	cached, ok := m.queries[pattern]
	m.mu.RUnlock()

	if ok {
		return cached, nil
	}

	if !captureRe.MatchString(pattern) {
		return nil, ErrNoCaptures
	}

	query, err := sitter.NewQuery(m.lang, []byte(pattern))
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	m.mu.Lock()
	m.queries[pattern] = query
	m.mu.Unlock()

	return query, nil
}

func (m *Matcher) run(ctx context.Context, query *sitter.Query, filter *filters.Expr, src []byte) ([]string, error) {
	p, ok := m.parsers.Get().(*sitter.Parser)
	if !ok {
		p = sitter.NewParser()
		p.SetLanguage(m.lang)
	}

	defer m.parsers.Put(p)

	tree, err := p.ParseString(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, ErrEmptyTree
	}

	cursor := sitter.NewQueryCursor()
	results := cursor.Matches(query, root, src)

	var matches []string

	for match := results.Next(); match != nil; match = results.Next() {
		if len(match.Captures) == 0 {
			continue
		}

		vars := make(map[string]sitter.Node, len(match.Captures))
		reported := match.Captures[0].Node

		for _, capture := range match.Captures {
			name := query.CaptureNameForID(capture.Index)
			vars[name] = capture.Node

			if name == MatchCapture {
				reported = capture.Node
			}
		}

		if filter.Op != filters.OpNop && !eval(filter, vars, src) {
			continue
		}

		matches = append(matches, reported.Content(src))
	}

	return matches, nil
}
