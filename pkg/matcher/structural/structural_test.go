package structural_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus/filebits"
	"github.com/Sumatoshi-tech/gocorpus/pkg/matcher"
	"github.com/Sumatoshi-tech/gocorpus/pkg/matcher/structural"
)

const sampleSource = `package sample

import "os"

func run(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	x := 10
	y := 1.5
	s := "str"
	if x > 3 {
		return nil
	}
	_ = y
	_ = s
	if err != nil {
		return err
	}
	return nil
}
`

const errNilPattern = `(binary_expression
	left: (identifier) @x
	operator: "!="
	right: (nil)) @match`

func match(t *testing.T, m *structural.Matcher, req matcher.Request) (matcher.Result, error) {
	t.Helper()

	if req.Name == "" {
		req.Name = "sample.go"
	}

	if req.Source == "" {
		req.Source = sampleSource
	}

	return m.Match(context.Background(), req)
}

func TestMatcher_FindsMatches(t *testing.T) {
	t.Parallel()

	m := structural.New()

	res, err := match(t, m, matcher.Request{Pattern: errNilPattern})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"err != nil", "err != nil"}, res.Matches)
}

func TestMatcher_FirstCaptureWithoutMatchName(t *testing.T) {
	t.Parallel()

	m := structural.New()

	res, err := match(t, m, matcher.Request{Pattern: `(short_var_declaration right: (expression_list (int_literal) @lit))`})
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, res.Matches)
}

func TestMatcher_VarPredicates(t *testing.T) {
	t.Parallel()

	m := structural.New()
	pattern := `(short_var_declaration right: (expression_list (_) @v)) @match`

	tests := []struct {
		filter string
		want   []string
	}{
		{filter: `$v.IsIntLit()`, want: []string{"x := 10"}},
		{filter: `$v.IsFloatLit()`, want: []string{"y := 1.5"}},
		{filter: `$v.IsStringLit()`, want: []string{`s := "str"`}},
		{filter: `$v.IsConst() && !$v.IsStringLit()`, want: []string{"x := 10", "y := 1.5"}},
		{filter: `$v.IsRuneLit() || $v.IsComplexLit()`, want: nil},
		{filter: `$missing.IsConst()`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			t.Parallel()

			res, err := match(t, m, matcher.Request{Pattern: pattern, Filter: tt.filter})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Matches)
		})
	}
}

func TestMatcher_IsPure(t *testing.T) {
	t.Parallel()

	src := `package p

func f(ch chan int, xs []int) {
	_ = len(xs)
	_ = <-ch
	_ = xs[1:2]
	_ = g()
}

func g() int { return 0 }
`
	m := structural.New()

	res, err := match(t, m, matcher.Request{
		Pattern: `(assignment_statement right: (expression_list (_) @v)) @match`,
		Filter:  `$v.IsPure()`,
		Source:  src,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"_ = len(xs)", "_ = xs[1:2]"}, res.Matches)
}

func TestMatcher_FileFilterSkips(t *testing.T) {
	t.Parallel()

	m := structural.New()

	res, err := match(t, m, matcher.Request{
		Pattern: errNilPattern,
		Filter:  `file.IsTest()`,
		Flags:   filebits.IsMain,
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, res.Matches)

	res, err = match(t, m, matcher.Request{
		Pattern:  errNilPattern,
		Filter:   `file.MaxDepth() > 20`,
		MaxDepth: 8,
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestMatcher_SkipHappensBeforeParse(t *testing.T) {
	t.Parallel()

	m := structural.New()

	res, err := match(t, m, matcher.Request{
		Pattern: errNilPattern,
		Filter:  `!file.IsAutogen()`,
		Flags:   filebits.IsAutogen,
		Source:  "not go at all {",
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestMatcher_Errors(t *testing.T) {
	t.Parallel()

	m := structural.New()

	tests := []struct {
		name        string
		req         matcher.Request
		stage       string
		recoverable bool
	}{
		{
			name:  "bad filter",
			req:   matcher.Request{Pattern: errNilPattern, Filter: `$x.IsShiny()`},
			stage: matcher.StageFilter,
		},
		{
			name:        "bad source",
			req:         matcher.Request{Pattern: errNilPattern, Source: "package p\nfunc {"},
			stage:       matcher.StageParseGo,
			recoverable: true,
		},
		{
			name:  "bad pattern",
			req:   matcher.Request{Pattern: `(binary_expression @x`},
			stage: matcher.StageParsePattern,
		},
		{
			name:  "pattern without captures",
			req:   matcher.Request{Pattern: `(binary_expression)`},
			stage: matcher.StageParsePattern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := match(t, m, tt.req)
			require.Error(t, err)

			var matchErr *matcher.Error
			require.ErrorAs(t, err, &matchErr)
			assert.Equal(t, tt.stage, matchErr.Stage)
			assert.Equal(t, tt.recoverable, matcher.IsRecoverable(err))
		})
	}
}

func TestMatcher_PatternCacheReuse(t *testing.T) {
	t.Parallel()

	m := structural.New()

	for range 3 {
		res, err := match(t, m, matcher.Request{Pattern: errNilPattern})
		require.NoError(t, err)
		assert.Len(t, res.Matches, 2)
	}
}
