package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
)

// ScanRequest is the body of POST /api/v1/scans. Repositories wins over Tags.
type ScanRequest struct {
	Pattern      string   `json:"pattern"`
	Filter       string   `json:"filter,omitempty"`
	Repositories []string `json:"repositories,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// ScanAccepted is returned with 202.
type ScanAccepted struct {
	RunID string `json:"run_id"`
}

// CurrentScan describes the live run and the last finished one.
type CurrentScan struct {
	Progress scan.Progress `json:"progress"`
	Summary  *scan.Summary `json:"summary,omitempty"`
	Error    string        `json:"error,omitempty"`
	// Pending is set when the run has ended but its summary is not stored yet.
	Pending  bool          `json:"pending,omitempty"`
}

// RepositoryInfo is one row of GET /api/v1/repositories.
type RepositoryInfo struct {
	Name         string   `json:"name"`
	Tags         []string `json:"tags"`
	Git          string   `json:"git"`
	Commit       string   `json:"commit"`
	Files        int      `json:"files"`
	SLOC         int      `json:"sloc"`
	Size         int      `json:"size"`
	MinifiedSize int      `json:"minified_size"`
	Loaded       bool     `json:"loaded"`
}

// LoadRequest is the body of POST /api/v1/repositories/load.
type LoadRequest struct {
	Repositories []string `json:"repositories"`
}

// LoadResponse lists which of the requested repositories are now cached.
type LoadResponse struct {
	Loaded  []string `json:"loaded"`
	Elapsed string   `json:"elapsed"`
}

type errorBody struct {
	Error string `json:"error"`
}

var (
	errEmptyPattern   = errors.New("pattern must not be empty")
	errEmptySelection = errors.New("no repositories selected")
	errLoading        = errors.New("repositories are being loaded")
	errIdle           = errors.New("no scan in progress")
)

func writeJSON(ctx context.Context, rw http.ResponseWriter, code int, value any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	encodeErr := json.NewEncoder(rw).Encode(value)
	if encodeErr != nil {
		slog.Default().ErrorContext(ctx, "server: encode response", "error", encodeErr)
	}
}

func writeError(ctx context.Context, rw http.ResponseWriter, code int, err error) {
	writeJSON(ctx, rw, code, errorBody{Error: err.Error()})
}

func (s *Server) handleStartScan(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	var req ScanRequest

	decodeErr := json.NewDecoder(hr.Body).Decode(&req)
	if decodeErr != nil {
		writeError(ctx, rw, http.StatusBadRequest, decodeErr)

		return
	}

	if req.Pattern == "" {
		writeError(ctx, rw, http.StatusBadRequest, errEmptyPattern)

		return
	}

	repos, selErr := s.selectRepositories(req.Repositories, req.Tags)
	if selErr != nil {
		writeError(ctx, rw, http.StatusBadRequest, selErr)

		return
	}

	s.mu.Lock()

	if s.loading {
		s.mu.Unlock()
		writeError(ctx, rw, http.StatusConflict, errLoading)

		return
	}

	// The run outlives the request; keep its trace context but drop cancellation.
	runCtx := context.WithoutCancel(ctx)

	runID, done, startErr := s.sched.Start(runCtx, scan.Query{Pattern: req.Pattern, Filter: req.Filter}, repos)
	if startErr == nil {
		s.wg.Add(1)
	}

	s.mu.Unlock()

	if errors.Is(startErr, scan.ErrBusy) {
		writeError(ctx, rw, http.StatusConflict, startErr)

		return
	}

	if startErr != nil {
		writeError(ctx, rw, http.StatusInternalServerError, startErr)

		return
	}

	go s.collect(runCtx, runID, done)

	s.logger.InfoContext(ctx, "server: scan accepted", "run_id", runID, "repositories", len(repos))
	writeJSON(ctx, rw, http.StatusAccepted, ScanAccepted{RunID: runID})
}

func (s *Server) handleCurrentScan(rw http.ResponseWriter, hr *http.Request) {
	resp := CurrentScan{Progress: s.sched.State().Snapshot()}

	if resp.Progress.Busy || resp.Progress.RunID == "" {
		writeJSON(hr.Context(), rw, http.StatusOK, resp)

		return
	}

	last := s.Last()
	if last == nil || last.Summary == nil || last.Summary.RunID != resp.Progress.RunID {
		resp.Pending = true
		writeJSON(hr.Context(), rw, http.StatusOK, resp)

		return
	}

	resp.Summary = last.Summary

	if last.Err != nil {
		resp.Error = last.Err.Error()
	}

	writeJSON(hr.Context(), rw, http.StatusOK, resp)
}

func (s *Server) handleStopScan(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	if !s.sched.State().Busy() {
		writeError(ctx, rw, http.StatusConflict, errIdle)

		return
	}

	s.sched.Stop()
	s.logger.InfoContext(ctx, "server: stop requested")
	writeJSON(ctx, rw, http.StatusAccepted, s.sched.State().Snapshot())
}

func (s *Server) handleRepositories(rw http.ResponseWriter, hr *http.Request) {
	tags := hr.URL.Query()["tag"]

	repos := s.meta.Repositories
	if len(tags) > 0 {
		repos = s.meta.SelectTags(tags...)
	}

	out := make([]RepositoryInfo, 0, len(repos))

	for _, repo := range repos {
		out = append(out, RepositoryInfo{
			Name:         repo.Name,
			Tags:         repo.Tags,
			Git:          repo.Git,
			Commit:       repo.Commit,
			Files:        len(repo.Files),
			SLOC:         repo.SLOC,
			Size:         repo.Size,
			MinifiedSize: repo.MinifiedSize,
			Loaded:       s.cache.Has(repo.Name),
		})
	}

	writeJSON(hr.Context(), rw, http.StatusOK, out)
}

func (s *Server) handleLoad(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()

	var req LoadRequest

	decodeErr := json.NewDecoder(hr.Body).Decode(&req)
	if decodeErr != nil {
		writeError(ctx, rw, http.StatusBadRequest, decodeErr)

		return
	}

	repos, selErr := s.selectRepositories(req.Repositories, nil)
	if selErr != nil {
		writeError(ctx, rw, http.StatusBadRequest, selErr)

		return
	}

	if !s.beginLoad() {
		writeError(ctx, rw, http.StatusConflict, errLoading)

		return
	}
	defer s.endLoad()

	names := make([]string, len(repos))
	for i, repo := range repos {
		names[i] = repo.Name
	}

	start := time.Now()

	loadErr := s.cache.LoadAll(ctx, names, func(repo string) {
		s.logger.InfoContext(ctx, "server: loading repository", "repo", repo)
	})
	if loadErr != nil {
		writeError(ctx, rw, http.StatusBadGateway, loadErr)

		return
	}

	writeJSON(ctx, rw, http.StatusOK, LoadResponse{Loaded: names, Elapsed: time.Since(start).Round(time.Millisecond).String()})
}

func (s *Server) selectRepositories(names, tags []string) ([]*corpus.Repository, error) {
	var repos []*corpus.Repository

	switch {
	case len(names) > 0:
		selected, err := s.meta.Select(names...)
		if err != nil {
			return nil, err //nolint:wrapcheck // already names the repository
		}

		repos = selected
	case len(tags) > 0:
		repos = s.meta.SelectTags(tags...)
	}

	if len(repos) == 0 {
		return nil, errEmptySelection
	}

	return repos, nil
}
