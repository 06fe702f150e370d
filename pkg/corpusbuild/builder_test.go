package corpusbuild_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gocorpus/pkg/archive"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus/filebits"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpusbuild"
)

var demoTree = map[string]string{
	"main.go": "package main\n\n// secret comment\nimport \"unsafe\"\n\nvar _ = unsafe.Sizeof(0)\n",
	"gen.go":  "// Code generated by stringer. DO NOT EDIT.\n\npackage main\n\nconst x = 1\n",
	"bad.go":  "package main\n\nfunc {\n",
	"parse/parse_test.go": "package parse_test\n\nimport (\n\t\"C\"\n\t\"reflect\"\n)\n\n" +
		"func f() { if true { _ = reflect.TypeOf(0) } }\n",
	"vendor/dep/dep.go":   "package dep\n",
	"testdata/fixture.go": "package fixture\n",
	"_old/old.go":         "package old\n",
	"README.md":           "# demo\n",
}

func writeTree(t *testing.T, root string, tree map[string]string) {
	t.Helper()

	for name, body := range tree {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func demoSource(name string) corpusbuild.Source {
	return corpusbuild.Source{
		Name:     name,
		Tags:     []string{"tool"},
		Git:      "https://example.com/" + name + ".git",
		SrcRoots: []string{"."},
	}
}

func readMeta(t *testing.T, dir string) *corpus.Meta {
	t.Helper()

	f, err := os.Open(filepath.Join(dir, "corpus.json"))
	require.NoError(t, err)

	defer f.Close()

	meta, err := corpus.Decode(f)
	require.NoError(t, err)

	return meta
}

func TestBuild_LocalCheckout(t *testing.T) {
	t.Parallel()

	checkouts, out := t.TempDir(), t.TempDir()
	writeTree(t, filepath.Join(checkouts, "demo"), demoTree)

	b := &corpusbuild.Builder{
		Fetcher:     corpusbuild.LocalFetcher{Root: checkouts},
		OutDir:      out,
		Compression: archive.CompressionGzip,
	}

	report, err := b.Build(context.Background(), []corpusbuild.Source{demoSource("demo")})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Repositories)
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 1, report.SkippedFiles)
	assert.Empty(t, report.Failed)
	assert.Positive(t, report.MaxDepth)

	meta := readMeta(t, out)
	assert.Equal(t, corpus.FormatVersion, meta.Version)
	require.Len(t, meta.Repositories, 1)

	repo := meta.Repositories[0]
	assert.Equal(t, "demo", repo.Name)
	assert.Empty(t, repo.Commit)
	assert.Equal(t, []string{"tool"}, repo.Tags)

	byName := make(map[string]corpus.File, len(repo.Files))
	for _, f := range repo.Files {
		byName[f.Name] = f
	}

	require.Len(t, byName, 3)
	assert.Equal(t, filebits.IsMain|filebits.ImportsUnsafe, byName["main.go"].Flags)
	assert.Equal(t, 6, byName["main.go"].SLOC)
	assert.Equal(t, filebits.IsMain|filebits.IsAutogen, byName["gen.go"].Flags)
	assert.Equal(t, filebits.IsTest|filebits.ImportsC|filebits.ImportsReflect, byName["parse/parse_test.go"].Flags)
	assert.Greater(t, byName["parse/parse_test.go"].MaxDepth, byName["gen.go"].MaxDepth)

	sloc := 0
	for _, f := range repo.Files {
		sloc += f.SLOC
	}

	assert.Equal(t, sloc, repo.SLOC)
	assert.Positive(t, repo.MinifiedSize)
	assert.Less(t, repo.MinifiedSize, repo.Size)

	files, err := archive.NewLoader(archive.DirSource{Dir: out}).Load(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, files, len(repo.Files))

	for i, f := range files {
		assert.Equal(t, repo.Files[i].Name, f.Name)
		assert.NotContains(t, f.Source, "secret comment")
	}
}

func TestBuild_FailedRepositoryIsLeftOut(t *testing.T) {
	t.Parallel()

	checkouts, out := t.TempDir(), t.TempDir()
	writeTree(t, filepath.Join(checkouts, "demo"), map[string]string{"a.go": "package a\n"})

	b := &corpusbuild.Builder{
		Fetcher:     corpusbuild.LocalFetcher{Root: checkouts},
		OutDir:      out,
		Compression: archive.CompressionLZ4,
	}

	report, err := b.Build(context.Background(), []corpusbuild.Source{demoSource("missing"), demoSource("demo")})
	require.ErrorIs(t, err, corpusbuild.ErrRepositoriesFailed)
	require.NotNil(t, report)
	assert.Equal(t, []string{"missing"}, report.Failed)

	meta := readMeta(t, out)
	require.Len(t, meta.Repositories, 1)
	assert.Equal(t, "demo", meta.Repositories[0].Name)

	_, statErr := os.Stat(filepath.Join(out, "demo.tar.lz4"))
	require.NoError(t, statErr)

	_, statErr = os.Stat(filepath.Join(out, "missing.tar.lz4"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestBuild_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &corpusbuild.Builder{Fetcher: corpusbuild.LocalFetcher{Root: t.TempDir()}, OutDir: t.TempDir()}

	_, err := b.Build(ctx, []corpusbuild.Source{demoSource("demo")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLocalFetcher_Missing(t *testing.T) {
	t.Parallel()

	_, err := corpusbuild.LocalFetcher{Root: t.TempDir()}.Fetch(context.Background(), demoSource("nope"))
	require.ErrorIs(t, err, corpusbuild.ErrCheckoutMissing)
}
