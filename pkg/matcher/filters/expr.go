package filters

import (
	"fmt"
	"go/token"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus/filebits"
)

// Operation is the kind of a filter expression node.
type Operation int

// Filter operations.
const (
	OpInvalid Operation = iota

	// OpNop does nothing. Compiled file predicates become Nops.
	OpNop

	// OpNot is !Args[0].
	OpNot

	// OpAnd is Args[0] && Args[1].
	OpAnd

	// OpOr is Args[0] || Args[1].
	OpOr

	// OpVarIsConst is vars[Str].IsConst().
	OpVarIsConst

	// OpVarIsPure is vars[Str].IsPure().
	OpVarIsPure

	// OpVarIsStringLit is vars[Str].IsStringLit().
	OpVarIsStringLit

	// OpVarIsRuneLit is vars[Str].IsRuneLit().
	OpVarIsRuneLit

	// OpVarIsIntLit is vars[Str].IsIntLit().
	OpVarIsIntLit

	// OpVarIsFloatLit is vars[Str].IsFloatLit().
	OpVarIsFloatLit

	// OpVarIsComplexLit is vars[Str].IsComplexLit().
	OpVarIsComplexLit
)

var operationNames = [...]string{
	OpInvalid:         "Invalid",
	OpNop:             "Nop",
	OpNot:             "Not",
	OpAnd:             "And",
	OpOr:              "Or",
	OpVarIsConst:      "VarIsConst",
	OpVarIsPure:       "VarIsPure",
	OpVarIsStringLit:  "VarIsStringLit",
	OpVarIsRuneLit:    "VarIsRuneLit",
	OpVarIsIntLit:     "VarIsIntLit",
	OpVarIsFloatLit:   "VarIsFloatLit",
	OpVarIsComplexLit: "VarIsComplexLit",
}

func (op Operation) String() string {
	if op < 0 || int(op) >= len(operationNames) {
		return "Operation(" + strconv.Itoa(int(op)) + ")"
	}

	return operationNames[op]
}

// Expr is a compiled filter expression tree.
type Expr struct {
	Op   Operation
	Args []*Expr
	// Str holds the pattern variable name for OpVar* nodes.
	Str string
}

// Sprint renders e as an S-expression, e.g. (Or (VarIsPure "x") Nop).
func Sprint(e *Expr) string {
	parts := make([]string, 0, len(e.Args)+1)

	if e.Str != "" {
		parts = append(parts, strconv.Quote(e.Str))
	}

	for _, arg := range e.Args {
		parts = append(parts, Sprint(arg))
	}

	if len(parts) == 0 {
		return e.Op.String()
	}

	return "(" + e.Op.String() + " " + strings.Join(parts, " ") + ")"
}

// Info holds the file-level conditions extracted from a filter.
// They are checked against file metadata before the file is parsed.
type Info struct {
	TestFileCond    Bool3
	AutogenFileCond Bool3
	MainFileCond    Bool3

	// FileMaxDepthOp is token.ILLEGAL when no depth condition was given.
	FileMaxDepthOp token.Token
	FileMaxDepth   int
}

func (i Info) String() string {
	var parts []string

	if !i.TestFileCond.IsUnset() {
		parts = append(parts, "TestFileCond="+i.TestFileCond.String())
	}

	if !i.AutogenFileCond.IsUnset() {
		parts = append(parts, "AutogenFileCond="+i.AutogenFileCond.String())
	}

	if !i.MainFileCond.IsUnset() {
		parts = append(parts, "MainFileCond="+i.MainFileCond.String())
	}

	if i.FileMaxDepthOp != token.ILLEGAL {
		parts = append(parts, fmt.Sprintf("FileMaxDepth%s%d", i.FileMaxDepthOp, i.FileMaxDepth))
	}

	return strings.Join(parts, " ")
}

// Excludes reports whether a file with the given flags and AST depth can
// be skipped without parsing it.
func (i Info) Excludes(flags filebits.Set, maxDepth int) bool {
	if !i.depthAllows(maxDepth) {
		return true
	}

	return excludedBy(i.TestFileCond, flags, filebits.IsTest) ||
		excludedBy(i.MainFileCond, flags, filebits.IsMain) ||
		excludedBy(i.AutogenFileCond, flags, filebits.IsAutogen)
}

func (i Info) depthAllows(depth int) bool {
	switch i.FileMaxDepthOp {
	case token.EQL:
		return depth == i.FileMaxDepth
	case token.NEQ:
		return depth != i.FileMaxDepth
	case token.LSS:
		return depth < i.FileMaxDepth
	case token.GTR:
		return depth > i.FileMaxDepth
	case token.LEQ:
		return depth <= i.FileMaxDepth
	case token.GEQ:
		return depth >= i.FileMaxDepth
	default:
		return true
	}
}

func excludedBy(cond Bool3, flags, mask filebits.Set) bool {
	if cond.IsTrue() {
		return !flags.Has(mask)
	}

	if cond.IsFalse() {
		return flags.Has(mask)
	}

	return false
}
