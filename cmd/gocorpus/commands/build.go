package commands

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gocorpus/internal/observability"
	"github.com/Sumatoshi-tech/gocorpus/pkg/archive"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpusbuild"
)

// Build command errors.
var (
	ErrNoSources          = errors.New("--sources is required")
	ErrUnknownCompression = errors.New("unknown compression")
	ErrNothingToBuild     = errors.New("no repository matches --only")
)

type buildFlags struct {
	sources     string
	out         string
	compression string
	local       string
	only        []string
}

// NewBuildCommand creates the build command.
func NewBuildCommand(global *GlobalFlags) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build corpus archives and metadata from a repository list",
		Long: `Clone every repository of a YAML list (depth 1), index its Go files and
write <name>.tar.gz archives plus corpus.json into the output directory.

With --local, existing checkouts under <dir>/<name> are indexed instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, global, &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.sources, "sources", "s", "", "YAML repository list")
	cmd.Flags().StringVar(&flags.out, "out", "", "output directory (default from corpus.archives)")
	cmd.Flags().StringVar(&flags.compression, "compression", "gzip", "archive compression: gzip, lz4 or none")
	cmd.Flags().StringVar(&flags.local, "local", "", "index existing checkouts under this directory instead of cloning")
	cmd.Flags().StringSliceVar(&flags.only, "only", nil, "build only these repositories")

	return cmd
}

func runBuild(cmd *cobra.Command, global *GlobalFlags, flags *buildFlags) error {
	if flags.sources == "" {
		return ErrNoSources
	}

	compression, ok := archive.ParseCompression(flags.compression)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCompression, flags.compression)
	}

	e, err := setupEnv(cmd, global, envOptions{mode: observability.ModeCLI})
	if err != nil {
		return err
	}
	defer e.close()

	f, err := os.Open(flags.sources)
	if err != nil {
		return fmt.Errorf("open repository list: %w", err)
	}

	sources, err := corpusbuild.LoadSources(f)
	_ = f.Close()

	if err != nil {
		return fmt.Errorf("%s: %w", flags.sources, err)
	}

	if len(flags.only) > 0 {
		sources = slices.DeleteFunc(sources, func(s corpusbuild.Source) bool {
			return !slices.Contains(flags.only, s.Name)
		})

		if len(sources) == 0 {
			return ErrNothingToBuild
		}
	}

	var fetcher corpusbuild.Fetcher = corpusbuild.GitFetcher{}
	if flags.local != "" {
		fetcher = corpusbuild.LocalFetcher{Root: flags.local}
	}

	out := flags.out
	if out == "" {
		out = e.cfg.Corpus.Archives
	}

	b := &corpusbuild.Builder{
		Fetcher:     fetcher,
		OutDir:      out,
		Compression: compression,
		Logger:      e.logger,
	}

	report, buildErr := b.Build(cmd.Context(), sources)
	if report != nil && !global.Quiet {
		printBuildReport(cmd, report, out)
	}

	return buildErr
}

func printBuildReport(cmd *cobra.Command, r *corpusbuild.Report, out string) {
	w := cmd.OutOrStdout()

	color.New(color.FgGreen).Fprintf(w, "built %d repositories into %s\n", r.Repositories, out)
	fmt.Fprintf(w, "files: %s  sloc: %s  max depth: %d  avg depth: %.1f  elapsed: %s\n",
		humanize.Comma(int64(r.Files)), humanize.Comma(int64(r.SLOC)),
		r.MaxDepth, r.AvgDepth, r.Elapsed.Round(time.Millisecond))

	if r.SkippedFiles > 0 {
		color.New(color.FgYellow).Fprintf(w, "skipped %d unparsable files\n", r.SkippedFiles)
	}

	for _, name := range r.Failed {
		color.New(color.FgRed).Fprintf(w, "failed: %s\n", name)
	}
}
