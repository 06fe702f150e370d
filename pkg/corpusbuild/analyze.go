package corpusbuild

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus/filebits"
)

// fileFacts is what the builder records about one parsed file.
type fileFacts struct {
	flags    filebits.Set
	sloc     int
	maxDepth int
}

func analyzeFile(fset *token.FileSet, name string, f *ast.File) fileFacts {
	facts := fileFacts{
		sloc:     fset.Position(f.End()).Line,
		maxDepth: astDepth(f),
	}

	if strings.HasSuffix(name, "_test.go") {
		facts.flags |= filebits.IsTest
	}

	if ast.IsGenerated(f) {
		facts.flags |= filebits.IsAutogen
	}

	if f.Name.Name == "main" {
		facts.flags |= filebits.IsMain
	}

	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}

		switch path {
		case "C":
			facts.flags |= filebits.ImportsC
		case "unsafe":
			facts.flags |= filebits.ImportsUnsafe
		case "reflect":
			facts.flags |= filebits.ImportsReflect
		}
	}

	return facts
}

// astDepth returns the deepest node nesting level below the file node.
func astDepth(f *ast.File) int {
	depth, deepest := 0, 0

	ast.Inspect(f, func(n ast.Node) bool {
		if n == nil {
			depth--

			return false
		}

		depth++
		deepest = max(deepest, depth)

		return true
	})

	// The file node itself is level zero.
	return deepest - 1
}

// minify prints f without comments. Build constraints go with them, which
// is fine for matching but means archives are not buildable.
func minify(fset *token.FileSet, f *ast.File) ([]byte, error) {
	stripped := *f
	stripped.Comments = nil
	stripped.Doc = nil

	var buf bytes.Buffer

	cfg := printer.Config{Mode: printer.RawFormat, Tabwidth: 1}

	printErr := cfg.Fprint(&buf, fset, &stripped)
	if printErr != nil {
		return nil, fmt.Errorf("print %s: %w", f.Name.Name, printErr)
	}

	return buf.Bytes(), nil
}
