package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/gocorpus/pkg/aggregate"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
)

// Tool names.
const (
	ToolListRepositories = "gocorpus_list_repositories"
	ToolScan             = "gocorpus_scan"
)

const (
	// DefaultResultLimit is how many distinct matches gocorpus_scan returns
	// when no limit is given.
	DefaultResultLimit = 20

	listRepositoriesDescription = "List the repositories of the Go corpus with their tags, size, " +
		"and whether their archive is already loaded."
	scanDescription = "Run a tree-sitter query over selected corpus repositories and return the most " +
		"frequent matches with a frequency score (matches per 70 lines of code)."
)

// Input validation errors.
var (
	ErrEmptyPattern   = errors.New("pattern is required and must not be empty")
	ErrEmptySelection = errors.New("select at least one repository by name or tag")
	ErrBadLimit       = errors.New("limit must be between 0 and 1000")
)

// ListRepositoriesInput is the gocorpus_list_repositories input.
type ListRepositoriesInput struct {
	Tags []string `json:"tags,omitempty" jsonschema:"only list repositories carrying any of these tags"`
}

// ScanInput is the gocorpus_scan input.
type ScanInput struct {
	Pattern      string   `json:"pattern"                jsonschema:"tree-sitter query with an @match capture"`
	Filter       string   `json:"filter,omitempty"       jsonschema:"optional filter expression such as !file.IsTest() && $x.IsPure()"`
	Repositories []string `json:"repositories,omitempty" jsonschema:"repository names to scan"`
	Tags         []string `json:"tags,omitempty"         jsonschema:"scan every repository carrying any of these tags"`
	Limit        int      `json:"limit,omitempty"        jsonschema:"maximum number of distinct matches returned (default 20)"`
}

// ToolOutput wraps structured tool output.
type ToolOutput struct {
	Data any `json:"data"`
}

// RepositoryView is one listed repository.
type RepositoryView struct {
	Name   string   `json:"name"`
	Tags   []string `json:"tags"`
	Files  int      `json:"files"`
	SLOC   int      `json:"sloc"`
	Loaded bool     `json:"loaded"`
}

// ScanView is the gocorpus_scan result.
type ScanView struct {
	RunID          string            `json:"run_id"`
	Outcome        scan.RunOutcome   `json:"outcome"`
	Repositories   []string          `json:"repositories"`
	FrequencyScore *float64          `json:"frequency_score,omitempty"`
	FilesScanned   int               `json:"files_scanned"`
	FilesTotal     int               `json:"files_total"`
	SLOCProcessed  int               `json:"sloc_processed"`
	Hits           int               `json:"hits"`
	Distinct       int               `json:"distinct"`
	Results        []aggregate.Entry `json:"results"`
	Elapsed        string            `json:"elapsed"`
}

func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}, ToolOutput{}, nil
}

func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, ToolOutput{Data: value}, nil
}

func (s *Server) handleListRepositories(
	_ context.Context, _ *mcpsdk.CallToolRequest, in ListRepositoriesInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	repos := s.deps.Meta.Repositories
	if len(in.Tags) > 0 {
		repos = s.deps.Meta.SelectTags(in.Tags...)
	}

	views := make([]RepositoryView, 0, len(repos))

	for _, repo := range repos {
		views = append(views, RepositoryView{
			Name:   repo.Name,
			Tags:   repo.Tags,
			Files:  len(repo.Files),
			SLOC:   repo.SLOC,
			Loaded: s.deps.Cache.Has(repo.Name),
		})
	}

	return jsonResult(views)
}

func (s *Server) handleScan(ctx context.Context, _ *mcpsdk.CallToolRequest, in ScanInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if in.Pattern == "" {
		return errorResult(ErrEmptyPattern)
	}

	if in.Limit < 0 || in.Limit > aggregate.MaxKeys {
		return errorResult(fmt.Errorf("%w: %d", ErrBadLimit, in.Limit))
	}

	repos, selErr := s.selection(in)
	if selErr != nil {
		return errorResult(selErr)
	}

	summary, scanErr := s.deps.Scheduler.Scan(ctx, scan.Query{Pattern: in.Pattern, Filter: in.Filter}, repos)
	if scanErr != nil {
		s.deps.Logger.WarnContext(ctx, "mcp: scan failed", "error", scanErr)

		return errorResult(scanErr)
	}

	limit := in.Limit
	if limit == 0 {
		limit = DefaultResultLimit
	}

	view := ScanView{
		RunID:         summary.RunID,
		Outcome:       summary.Outcome(),
		Repositories:  summary.Repositories,
		FilesScanned:  summary.FilesScanned,
		FilesTotal:    summary.FilesTotal,
		SLOCProcessed: summary.SLOCProcessed,
		Hits:          summary.Hits,
		Distinct:      len(summary.Results),
		Results:       summary.Results[:min(limit, len(summary.Results))],
		Elapsed:       summary.Elapsed.String(),
	}

	if summary.ScoreDefined {
		score := summary.FrequencyScore
		view.FrequencyScore = &score
	}

	return jsonResult(view)
}

func (s *Server) selection(in ScanInput) ([]*corpus.Repository, error) {
	if len(in.Repositories) > 0 {
		repos, err := s.deps.Meta.Select(in.Repositories...)
		if err != nil {
			return nil, fmt.Errorf("select repositories: %w", err)
		}

		return repos, nil
	}

	if len(in.Tags) > 0 {
		if repos := s.deps.Meta.SelectTags(in.Tags...); len(repos) > 0 {
			return repos, nil
		}
	}

	return nil, ErrEmptySelection
}
