package matcher

import (
	"errors"
	"strings"
)

// Kind tells the scheduler whether a match failure ends the run.
type Kind int

// Kinds of match failures.
const (
	// KindFatal aborts the whole run: the query itself is unusable.
	KindFatal Kind = iota
	// KindRecoverable only affects the file being matched.
	KindRecoverable
)

func (k Kind) String() string {
	if k == KindRecoverable {
		return "recoverable"
	}

	return "fatal"
}

// Stages reported in match errors.
const (
	StageFilter       = "filter"
	StageParseGo      = "parse Go"
	StageParsePattern = "parse pattern"
)

// recoverableMarker identifies per-file parse failures in opaque error texts.
const recoverableMarker = StageParseGo + ":"

// Error is a classified match failure.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

// Error renders the failure as "<stage>: <message>".
func (e *Error) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// FilterError reports a filter that failed to compile.
func FilterError(err error) *Error {
	return &Error{Kind: KindFatal, Stage: StageFilter, Err: err}
}

// ParseGoError reports a source file that failed to parse.
func ParseGoError(err error) *Error {
	return &Error{Kind: KindRecoverable, Stage: StageParseGo, Err: err}
}

// PatternError reports a pattern that failed to compile.
func PatternError(err error) *Error {
	return &Error{Kind: KindFatal, Stage: StageParsePattern, Err: err}
}

// IsRecoverable reports whether err only affects the current file.
// Unclassified errors are recoverable when their text mentions a Go parse
// failure; everything else is fatal.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	var matchErr *Error
	if errors.As(err, &matchErr) {
		return matchErr.Kind == KindRecoverable
	}

	return strings.Contains(err.Error(), recoverableMarker)
}
