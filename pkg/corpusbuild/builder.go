package corpusbuild

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/src-d/enry/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/gocorpus/pkg/archive"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
)

const (
	tracerName   = "gocorpus/corpusbuild"
	metadataFile = "corpus.json"
	dirPerm      = 0o755
)

// ErrRepositoriesFailed is returned by Build when at least one repository
// could not be added. The metadata of the remaining ones is still written.
var ErrRepositoriesFailed = errors.New("some repositories failed")

// Builder writes one archive per source plus corpus.json into OutDir.
type Builder struct {
	Fetcher     Fetcher
	OutDir      string
	Compression archive.Compression
	Logger      *slog.Logger
}

// Report summarizes a build.
type Report struct {
	Repositories int
	Failed       []string
	Files        int
	SkippedFiles int
	SLOC         int
	MaxDepth     int
	AvgDepth     float64
	Elapsed      time.Duration
}

type buildStats struct {
	files, skipped int
	totalDepth     int
	maxDepth       int
}

// Build fetches and indexes every source in order. A failing repository is
// logged and left out of the metadata; the build goes on with the next one.
func (b *Builder) Build(ctx context.Context, sources []Source) (*Report, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "gocorpus.build",
		traceAttr("repositories", len(sources)))
	defer span.End()

	start := time.Now()

	mkdirErr := os.MkdirAll(b.OutDir, dirPerm)
	if mkdirErr != nil {
		return nil, fmt.Errorf("create output dir: %w", mkdirErr)
	}

	meta := &corpus.Meta{Version: corpus.FormatVersion, Repositories: []*corpus.Repository{}}
	report := &Report{}

	var stats buildStats

	for _, src := range sources {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, fmt.Errorf("build interrupted: %w", ctxErr)
		}

		logger.InfoContext(ctx, "build: indexing repository", "repo", src.Name)

		repo, repoErr := b.buildRepository(ctx, src, &stats, logger)
		if repoErr != nil {
			logger.ErrorContext(ctx, "build: repository failed", "repo", src.Name, "error", repoErr)
			span.RecordError(repoErr)

			report.Failed = append(report.Failed, src.Name)

			continue
		}

		logger.InfoContext(ctx, "build: repository done",
			"repo", src.Name,
			"files", len(repo.Files),
			"sloc", repo.SLOC,
			"size", humanize.Bytes(uint64(repo.Size)),
			"minified", humanize.Bytes(uint64(repo.MinifiedSize)),
		)

		meta.Repositories = append(meta.Repositories, repo)
		report.SLOC += repo.SLOC
	}

	writeErr := writeMetadata(filepath.Join(b.OutDir, metadataFile), meta)
	if writeErr != nil {
		return nil, writeErr
	}

	report.Repositories = len(meta.Repositories)
	report.Files = stats.files
	report.SkippedFiles = stats.skipped
	report.MaxDepth = stats.maxDepth
	report.Elapsed = time.Since(start)

	if stats.files > 0 {
		report.AvgDepth = float64(stats.totalDepth) / float64(stats.files)
	}

	logger.InfoContext(ctx, "build: finished",
		"repositories", report.Repositories,
		"failed", len(report.Failed),
		"files", report.Files,
		"max_depth", report.MaxDepth,
		"elapsed", report.Elapsed,
	)

	if len(report.Failed) > 0 {
		span.SetStatus(codes.Error, ErrRepositoriesFailed.Error())

		return report, fmt.Errorf("%w: %s", ErrRepositoriesFailed, strings.Join(report.Failed, ", "))
	}

	return report, nil
}

func (b *Builder) buildRepository(ctx context.Context, src Source, stats *buildStats, logger *slog.Logger) (*corpus.Repository, error) {
	checkout, fetchErr := b.Fetcher.Fetch(ctx, src)
	if fetchErr != nil {
		return nil, fetchErr
	}

	defer func() {
		closeErr := checkout.Close()
		if closeErr != nil {
			logger.WarnContext(ctx, "build: removing checkout failed", "repo", src.Name, "error", closeErr)
		}
	}()

	final := filepath.Join(b.OutDir, src.Name+b.Compression.Extension())
	partial := final + ".partial"

	out, createErr := os.Create(partial)
	if createErr != nil {
		return nil, fmt.Errorf("create archive: %w", createErr)
	}

	repo := &corpus.Repository{
		Name:   src.Name,
		Tags:   src.Tags,
		Git:    src.Git,
		Commit: checkout.Commit,
		Files:  []corpus.File{},
	}

	// Stats are only merged when the whole repository succeeds.
	local := buildStats{}
	aw := archive.NewWriter(out, b.Compression)

	collectErr := collect(checkout.Dir, src, aw, repo, &local, func(name string, err error) {
		logger.WarnContext(ctx, "build: skipping unparsable file", "repo", src.Name, "file", name, "error", err)
	})

	closeErr := aw.Close()
	fileErr := out.Close()

	err := errors.Join(collectErr, closeErr, fileErr)
	if err != nil {
		_ = os.Remove(partial)

		return nil, err
	}

	renameErr := os.Rename(partial, final)
	if renameErr != nil {
		_ = os.Remove(partial)

		return nil, fmt.Errorf("finalize archive: %w", renameErr)
	}

	stats.files += local.files
	stats.skipped += local.skipped
	stats.totalDepth += local.totalDepth
	stats.maxDepth = max(stats.maxDepth, local.maxDepth)

	return repo, nil
}

// collect walks every source root of src below dir, adding each Go file to
// aw and to repo.
func collect(dir string, src Source, aw *archive.Writer, repo *corpus.Repository,
	stats *buildStats, skip func(string, error),
) error {
	for _, root := range src.SrcRoots {
		absRoot := filepath.Join(dir, root)

		walkErr := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, relErr := filepath.Rel(absRoot, p)
			if relErr != nil {
				return relErr
			}

			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if rel != "." && skipDir(d.Name(), path.Join(root, rel)) {
					return filepath.SkipDir
				}

				return nil
			}

			if !strings.HasSuffix(d.Name(), ".go") {
				return nil
			}

			return addFile(p, path.Join(src.Name, root, rel), d, aw, repo, stats, skip)
		})
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", root, walkErr)
		}
	}

	return nil
}

func skipDir(name, relPath string) bool {
	switch {
	case name == "node_modules", name == "testdata", name == "vendor", name == "third_party":
		return true
	case strings.HasPrefix(name, "_"), strings.HasPrefix(name, "."):
		return true
	default:
		return enry.IsVendor(relPath + "/")
	}
}

func addFile(abs, entry string, d fs.DirEntry, aw *archive.Writer, repo *corpus.Repository,
	stats *buildStats, skip func(string, error),
) error {
	raw, readErr := os.ReadFile(abs)
	if readErr != nil {
		return fmt.Errorf("read %s: %w", entry, readErr)
	}

	name := strings.TrimPrefix(entry, repo.Name+"/")

	fset := token.NewFileSet()

	f, parseErr := parser.ParseFile(fset, abs, raw, parser.ParseComments)
	if parseErr != nil {
		stats.skipped++
		skip(name, parseErr)

		return nil
	}

	facts := analyzeFile(fset, d.Name(), f)

	minified, minErr := minify(fset, f)
	if minErr != nil {
		return minErr
	}

	info, infoErr := d.Info()
	if infoErr != nil {
		return fmt.Errorf("stat %s: %w", entry, infoErr)
	}

	addErr := aw.AddFile(entry, info.Mode(), minified)
	if addErr != nil {
		return addErr
	}

	repo.Files = append(repo.Files, corpus.File{
		Name:     name,
		Flags:    facts.flags,
		SLOC:     facts.sloc,
		MaxDepth: facts.maxDepth,
	})
	repo.SLOC += facts.sloc
	repo.Size += len(raw)
	repo.MinifiedSize += len(minified)

	stats.files++
	stats.totalDepth += facts.maxDepth
	stats.maxDepth = max(stats.maxDepth, facts.maxDepth)

	return nil
}

func writeMetadata(file string, meta *corpus.Meta) error {
	out, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}

	encodeErr := corpus.Encode(out, meta)
	closeErr := out.Close()

	return errors.Join(encodeErr, closeErr)
}

func traceAttr(key string, n int) trace.SpanStartOption {
	return trace.WithAttributes(attribute.Int(key, n))
}
