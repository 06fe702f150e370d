package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gocorpus/internal/observability"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
)

// Scan command errors.
var (
	ErrNoPattern   = errors.New("--pattern is required")
	ErrNoSelection = errors.New("select repositories with --repos, --tags or --all")
	ErrScanFailed  = errors.New("scan failed")
)

const defaultPrintLimit = 50

type scanFlags struct {
	pattern string
	filter  string
	repos   []string
	tags    []string
	all     bool
	format  string
	limit   int
	noColor bool
}

// NewScanCommand creates the scan command.
func NewScanCommand(global *GlobalFlags) *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a structural query over corpus repositories",
		Long: `Run a tree-sitter query over the selected repositories and report the
most frequent matches with a frequency score (matches per 70 lines of code).

Press Ctrl+C to stop early; the partial results are still printed.`,
		Example: `  gocorpus scan --pattern '(binary_expression left: (identifier) @x operator: "!=" right: (nil)) @match' --tags lib
  gocorpus scan --pattern '(call_expression function: (identifier) @match)' --filter '!file.IsTest()' --all --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, global, &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.pattern, "pattern", "p", "", "tree-sitter query; the @match capture (or the first one) is reported")
	cmd.Flags().StringVarP(&flags.filter, "filter", "f", "", "filter expression, e.g. '!file.IsTest() && $x.IsPure()'")
	cmd.Flags().StringSliceVarP(&flags.repos, "repos", "r", nil, "repositories to scan")
	cmd.Flags().StringSliceVarP(&flags.tags, "tags", "t", nil, "scan every repository carrying any of these tags")
	cmd.Flags().BoolVar(&flags.all, "all", false, "scan every repository")
	cmd.Flags().StringVarP(&flags.format, "format", "o", FormatText, "output format: text, json, yaml or plot")
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", defaultPrintLimit, "number of distinct matches printed (0 prints all)")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	return cmd
}

func runScan(cmd *cobra.Command, global *GlobalFlags, flags *scanFlags) error {
	if flags.pattern == "" {
		return ErrNoPattern
	}

	if !validFormat(flags.format) {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, flags.format)
	}

	if flags.noColor {
		color.NoColor = true //nolint:reassign // documented switch of the library
	}

	e, err := setupEnv(cmd, global, envOptions{mode: observability.ModeCLI})
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()

	meta, err := e.loadMeta(ctx)
	if err != nil {
		return err
	}

	repos, err := selectRepos(meta, flags)
	if err != nil {
		return err
	}

	cache, err := e.newCache()
	if err != nil {
		return err
	}

	var sink scan.ProgressSink
	if !global.Quiet {
		sink = newProgressPrinter(cmd.ErrOrStderr())
	}

	sched := e.newScheduler(cache, sink)

	stop := stopOnInterrupt(ctx, sched)
	summary, scanErr := sched.Scan(ctx, scan.Query{Pattern: flags.pattern, Filter: flags.filter}, repos)

	stop()

	if summary == nil {
		return scanErr
	}

	renderErr := renderSummary(cmd.OutOrStdout(), summary, flags.format, flags.limit)
	if renderErr != nil {
		return fmt.Errorf("render results: %w", renderErr)
	}

	if scanErr != nil {
		return fmt.Errorf("%w: %w", ErrScanFailed, scanErr)
	}

	return nil
}

func selectRepos(meta *corpus.Meta, flags *scanFlags) ([]*corpus.Repository, error) {
	switch {
	case flags.all:
		return meta.Repositories, nil
	case len(flags.repos) > 0:
		repos, err := meta.Select(flags.repos...)
		if err != nil {
			return nil, fmt.Errorf("select repositories: %w", err)
		}

		return repos, nil
	case len(flags.tags) > 0:
		repos := meta.SelectTags(flags.tags...)
		if len(repos) == 0 {
			return nil, fmt.Errorf("%w: no repository is tagged %v", ErrNoSelection, flags.tags)
		}

		return repos, nil
	default:
		return nil, ErrNoSelection
	}
}

// stopOnInterrupt turns SIGINT into a cooperative stop of the running scan.
// The returned func releases the signal handler.
func stopOnInterrupt(ctx context.Context, sched *scan.Scheduler) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	done := make(chan struct{})

	go func() {
		select {
		case <-sigs:
			sched.Stop()
		case <-ctx.Done():
			sched.Stop()
		case <-done:
		}
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
		})
	}
}

// progressPrinter rewrites a single status line on w.
type progressPrinter struct {
	w     io.Writer
	label *color.Color
	dim   *color.Color
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{
		w:     w,
		label: color.New(color.FgCyan, color.Bold),
		dim:   color.New(color.Faint),
	}
}

func (p *progressPrinter) OnProgress(pr scan.Progress) {
	fmt.Fprintf(p.w, "\r\033[K%s %s %s",
		p.label.Sprintf("[%3d%%]", pr.Percent),
		p.dim.Sprintf("%d/%d files, %d hits", pr.FilesScanned, pr.FilesTotal, pr.Hits),
		pr.Status,
	)
}

func (p *progressPrinter) OnDone(s *scan.Summary) {
	fmt.Fprint(p.w, "\r\033[K")

	switch s.Outcome() {
	case scan.RunCompleted:
		color.New(color.FgGreen).Fprintf(p.w, "done: %d files in %s\n", s.FilesScanned, s.Elapsed.Round(time.Millisecond))
	case scan.RunInterrupted:
		color.New(color.FgYellow).Fprintf(p.w, "stopped after %d/%d files\n", s.FilesScanned, s.FilesTotal)
	case scan.RunFailed, scan.RunLoadFailed:
		color.New(color.FgRed).Fprintf(p.w, "failed: %s\n", s.Err)
	}
}
