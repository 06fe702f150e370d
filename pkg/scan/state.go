package scan

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Progress is an immutable snapshot of a run, safe to hand to observers.
type Progress struct {
	RunID         string    `json:"run_id"`
	Busy          bool      `json:"busy"`
	Running       bool      `json:"running"`
	Status        string    `json:"status"`
	Percent       int       `json:"percent"`
	FilesTotal    int       `json:"files_total"`
	FilesScanned  int       `json:"files_scanned"`
	SLOCProcessed int       `json:"sloc_processed"`
	Hits          int       `json:"hits"`
	Err           string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
}

// RunState holds the counters of the current or last run. The scheduler is
// its only writer; observers read it through Snapshot.
type RunState struct {
	running atomic.Bool

	mu            sync.RWMutex
	runID         string
	busy          bool
	status        string
	filesTotal    int
	filesScanned  int
	slocProcessed int
	hits          int
	err           string
	startedAt     time.Time
}

func newRunState() *RunState {
	return &RunState{status: StatusReady}
}

// Running reports whether the current run may keep scanning.
func (s *RunState) Running() bool {
	return s.running.Load()
}

// Busy reports whether a run is in progress, including its loading phase.
func (s *RunState) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.busy
}

// Snapshot returns a copy of the current counters.
func (s *RunState) Snapshot() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Progress{
		RunID:         s.runID,
		Busy:          s.busy,
		Running:       s.running.Load(),
		Status:        s.status,
		Percent:       percent(s.filesScanned, s.filesTotal),
		FilesTotal:    s.filesTotal,
		FilesScanned:  s.filesScanned,
		SLOCProcessed: s.slocProcessed,
		Hits:          s.hits,
		Err:           s.err,
		StartedAt:     s.startedAt,
	}
}

// begin resets every counter and marks the state busy. It fails when a run
// is already in progress.
func (s *RunState) begin(runID string, filesTotal int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return false
	}

	s.runID = runID
	s.busy = true
	s.status = StatusReady
	s.filesTotal = filesTotal
	s.filesScanned = 0
	s.slocProcessed = 0
	s.hits = 0
	s.err = ""
	s.startedAt = now
	s.running.Store(true)

	return true
}

func (s *RunState) stop() {
	s.running.Store(false)
}

func (s *RunState) setStatus(format string, args ...any) {
	s.mu.Lock()
	s.status = fmt.Sprintf(format, args...)
	s.mu.Unlock()
}

func (s *RunState) fileDone(sloc, hits int) {
	s.mu.Lock()
	s.filesScanned++
	s.slocProcessed += sloc
	s.hits += hits
	s.mu.Unlock()
}

func (s *RunState) fail(msg string) {
	s.running.Store(false)

	s.mu.Lock()
	s.err = msg
	s.status = fmt.Sprintf(errorFormat, msg)
	s.mu.Unlock()
}

// end clears the busy flag. The status becomes ready unless an error was recorded.
func (s *RunState) end() {
	s.running.Store(false)

	s.mu.Lock()
	s.busy = false

	if s.err == "" {
		s.status = StatusReady
	}

	s.mu.Unlock()
}
