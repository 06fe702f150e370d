package scan

import (
	"time"

	"github.com/Sumatoshi-tech/gocorpus/pkg/aggregate"
)

// Summary is the final report of a run.
type Summary struct {
	RunID          string            `json:"run_id"                 yaml:"run_id"`
	Query          Query             `json:"query"                  yaml:"query"`
	Repositories   []string          `json:"repositories"           yaml:"repositories"`
	Results        []aggregate.Entry `json:"results"                yaml:"results"`
	FrequencyScore float64           `json:"frequency_score"        yaml:"frequency_score"`
	ScoreDefined   bool              `json:"score_defined"          yaml:"score_defined"`
	FilesTotal     int               `json:"files_total"            yaml:"files_total"`
	FilesScanned   int               `json:"files_scanned"          yaml:"files_scanned"`
	SLOCProcessed  int               `json:"sloc_processed"         yaml:"sloc_processed"`
	Hits           int               `json:"hits"                   yaml:"hits"`
	DroppedKeys    int               `json:"dropped_keys,omitempty" yaml:"dropped_keys,omitempty"`
	Elapsed        time.Duration     `json:"elapsed"                yaml:"elapsed"`
	Interrupted    bool              `json:"interrupted"            yaml:"interrupted"`
	Err            string            `json:"error,omitempty"        yaml:"error,omitempty"`

	loadFailed bool
}

// Outcome classifies how the run ended.
func (s *Summary) Outcome() RunOutcome {
	switch {
	case s.loadFailed:
		return RunLoadFailed
	case s.Err != "":
		return RunFailed
	case s.Interrupted:
		return RunInterrupted
	default:
		return RunCompleted
	}
}
