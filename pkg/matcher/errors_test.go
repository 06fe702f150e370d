package matcher_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gocorpus/pkg/matcher"
)

var errCause = errors.New("boom")

func TestError_Rendering(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "parse Go: boom", matcher.ParseGoError(errCause).Error())
	assert.Equal(t, "filter: boom", matcher.FilterError(errCause).Error())
	assert.Equal(t, "parse pattern: boom", matcher.PatternError(errCause).Error())
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("match: %w", matcher.PatternError(errCause))
	require.ErrorIs(t, err, errCause)
}

func TestIsRecoverable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "parse go", err: matcher.ParseGoError(errCause), want: true},
		{name: "wrapped parse go", err: fmt.Errorf("x: %w", matcher.ParseGoError(errCause)), want: true},
		{name: "filter", err: matcher.FilterError(errCause), want: false},
		{name: "pattern", err: matcher.PatternError(errCause), want: false},
		{name: "opaque parse go text", err: errors.New("parse Go: 1:1: expected 'package'"), want: true},
		{name: "opaque other", err: errors.New("parse pattern: bad"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, matcher.IsRecoverable(tt.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fatal", matcher.KindFatal.String())
	assert.Equal(t, "recoverable", matcher.KindRecoverable.String())
}

func TestMatcherFunc(t *testing.T) {
	t.Parallel()

	fn := matcher.MatcherFunc(func(_ context.Context, req matcher.Request) (matcher.Result, error) {
		return matcher.Result{Matches: []string{req.Name}}, nil
	})

	res, err := fn.Match(context.Background(), matcher.Request{Name: "a.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, res.Matches)
}
