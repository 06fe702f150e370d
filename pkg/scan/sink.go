package scan

import (
	"context"
	"time"
)

// ProgressSink observes a run. Calls come from the scanning goroutine.
type ProgressSink interface {
	// OnProgress is called at every status change and file boundary.
	OnProgress(p Progress)
	// OnDone is called once with the final summary.
	OnDone(s *Summary)
}

// SinkFuncs adapts plain functions to ProgressSink. Nil fields are ignored.
type SinkFuncs struct {
	Progress func(Progress)
	Done     func(*Summary)
}

// OnProgress implements ProgressSink.
func (f SinkFuncs) OnProgress(p Progress) {
	if f.Progress != nil {
		f.Progress(p)
	}
}

// OnDone implements ProgressSink.
func (f SinkFuncs) OnDone(s *Summary) {
	if f.Done != nil {
		f.Done(s)
	}
}

// FileOutcome classifies how one file was handled.
type FileOutcome string

// File outcomes.
const (
	FileScanned     FileOutcome = "scanned"
	FileSkipped     FileOutcome = "skipped"
	FileRecoverable FileOutcome = "recoverable"
	FileFatal       FileOutcome = "fatal"
)

// RunOutcome classifies how a run ended.
type RunOutcome string

// Run outcomes.
const (
	RunCompleted   RunOutcome = "completed"
	RunInterrupted RunOutcome = "interrupted"
	RunFailed      RunOutcome = "failed"
	RunLoadFailed  RunOutcome = "load_failed"
)

// Recorder receives scan metrics. Implementations must be nil-safe or be
// replaced by the default no-op recorder.
type Recorder interface {
	RecordFile(ctx context.Context, outcome FileOutcome, hits int, d time.Duration)
	RecordRun(ctx context.Context, outcome RunOutcome, d time.Duration)
}

type nopSink struct{}

func (nopSink) OnProgress(Progress) {}
func (nopSink) OnDone(*Summary)     {}

type nopRecorder struct{}

func (nopRecorder) RecordFile(context.Context, FileOutcome, int, time.Duration) {}
func (nopRecorder) RecordRun(context.Context, RunOutcome, time.Duration)        {}
