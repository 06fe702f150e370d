// Package filters compiles the filter language that narrows pattern matches.
//
// A filter is a Go boolean expression. File predicates (file.IsTest(),
// file.IsAutogen(), file.IsMain(), file.MaxDepth() <op> N) are lifted into
// Info and checked before a file is parsed. Pattern variable predicates such
// as $x.IsConst() stay in the Expr tree and are evaluated per match.
package filters

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// Compilation errors.
var (
	ErrFileFilterInOr = errors.New("file filters can't be a part of || expression")
	ErrDuplicateCond  = errors.New("duplicated file condition")
	ErrUnsupported    = errors.New("unsupported filter construct")
)

const varPrefix = "__var_"

// CompileExpr parses and compiles a filter. An empty filter compiles to a Nop.
func CompileExpr(s string) (*Expr, Info, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "$", varPrefix)
	if s == "" {
		return &Expr{Op: OpNop}, Info{}, nil
	}

	root, err := parser.ParseExpr(s)
	if err != nil {
		return nil, Info{}, fmt.Errorf("parse filter: %w", err)
	}

	cl := compiler{isTopLevel: true}

	expr, err := cl.compile(root)
	if err != nil {
		return nil, cl.info, err
	}

	return Optimize(expr), cl.info, nil
}

// Optimize folds Nop operands out of And and Not nodes.
func Optimize(e *Expr) *Expr {
	for i, arg := range e.Args {
		e.Args[i] = Optimize(arg)
	}

	switch e.Op {
	case OpAnd:
		switch {
		case e.Args[0].Op == OpNop:
			*e = *e.Args[1]
		case e.Args[1].Op == OpNop:
			*e = *e.Args[0]
		}
	case OpNot:
		if e.Args[0].Op == OpNop {
			e.Op = OpNop
			e.Args = nil
		}
	}

	return e
}

type compiler struct {
	info Info

	isTopLevel bool
	isNegated  bool
}

func (cl *compiler) compile(root ast.Expr) (*Expr, error) {
	switch root := root.(type) {
	case *ast.UnaryExpr:
		return cl.compileUnary(root)
	case *ast.BinaryExpr:
		return cl.compileBinary(root)
	case *ast.ParenExpr:
		return cl.compile(root.X)
	case *ast.CallExpr:
		return cl.compileCall(root)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, root)
	}
}

func (cl *compiler) compileCall(root *ast.CallExpr) (*Expr, error) {
	selector, ok := root.Fun.(*ast.SelectorExpr)
	if !ok {
		return nil, fmt.Errorf("%w: call of %T", ErrUnsupported, root.Fun)
	}

	ident, ok := selector.X.(*ast.Ident)
	if !ok {
		return nil, fmt.Errorf("%w: method of %T", ErrUnsupported, selector.X)
	}

	switch {
	case ident.Name == "file":
		return cl.compileFileMethod(selector.Sel.Name)
	case strings.HasPrefix(ident.Name, varPrefix):
		return compileVarMethod(strings.TrimPrefix(ident.Name, varPrefix), selector.Sel.Name)
	default:
		return nil, fmt.Errorf("%w: object %s", ErrUnsupported, ident.Name)
	}
}

var varMethods = map[string]Operation{
	"IsConst":      OpVarIsConst,
	"IsPure":       OpVarIsPure,
	"IsStringLit":  OpVarIsStringLit,
	"IsRuneLit":    OpVarIsRuneLit,
	"IsIntLit":     OpVarIsIntLit,
	"IsFloatLit":   OpVarIsFloatLit,
	"IsComplexLit": OpVarIsComplexLit,
}

func compileVarMethod(varName, method string) (*Expr, error) {
	op, ok := varMethods[method]
	if !ok {
		return nil, fmt.Errorf("%w: $%s.%s", ErrUnsupported, varName, method)
	}

	return &Expr{Op: op, Str: varName}, nil
}

func (cl *compiler) compileFileMethod(method string) (*Expr, error) {
	if !cl.isTopLevel {
		return nil, ErrFileFilterInOr
	}

	var cond *Bool3

	switch method {
	case "IsTest":
		cond = &cl.info.TestFileCond
	case "IsAutogen":
		cond = &cl.info.AutogenFileCond
	case "IsMain":
		cond = &cl.info.MainFileCond
	default:
		return nil, fmt.Errorf("%w: file.%s", ErrUnsupported, method)
	}

	if !cond.IsUnset() {
		return nil, fmt.Errorf("%w: file.%s", ErrDuplicateCond, method)
	}

	cond.SetValue(!cl.isNegated)

	return &Expr{Op: OpNop}, nil
}

func (cl *compiler) compileUnary(root *ast.UnaryExpr) (*Expr, error) {
	if root.Op != token.NOT {
		return nil, fmt.Errorf("%w: unary %s", ErrUnsupported, root.Op)
	}

	cl.isNegated = !cl.isNegated
	x, err := cl.compile(root.X)
	cl.isNegated = !cl.isNegated

	if err != nil {
		return nil, err
	}

	return &Expr{Op: OpNot, Args: []*Expr{x}}, nil
}

// swappedOps mirrors a comparison so a literal can move to the right side.
var swappedOps = map[token.Token]token.Token{
	token.GEQ: token.LEQ,
	token.LEQ: token.GEQ,
	token.GTR: token.LSS,
	token.LSS: token.GTR,
	token.EQL: token.EQL,
	token.NEQ: token.NEQ,
}

var invertedOps = map[token.Token]token.Token{
	token.EQL: token.NEQ,
	token.NEQ: token.EQL,
	token.LSS: token.GEQ,
	token.GTR: token.LEQ,
	token.LEQ: token.GTR,
	token.GEQ: token.LSS,
}

func (cl *compiler) compileBinary(root *ast.BinaryExpr) (*Expr, error) {
	_, xLit := root.X.(*ast.BasicLit)
	_, yLit := root.Y.(*ast.BasicLit)

	if xLit && !yLit {
		if swapped, ok := swappedOps[root.Op]; ok {
			return cl.compileBinaryXY(swapped, root.Y, root.X)
		}
	}

	return cl.compileBinaryXY(root.Op, root.X, root.Y)
}

func (cl *compiler) compileBinaryXY(op token.Token, x, y ast.Expr) (*Expr, error) {
	switch op {
	case token.LOR:
		wasTopLevel := cl.isTopLevel
		cl.isTopLevel = false

		defer func() { cl.isTopLevel = wasTopLevel }()

		return cl.compilePair(OpOr, x, y)

	case token.LAND:
		return cl.compilePair(OpAnd, x, y)

	case token.LEQ, token.GEQ, token.LSS, token.GTR, token.EQL, token.NEQ:
		return cl.compileDepthCond(op, x, y)

	default:
		return nil, fmt.Errorf("%w: binary %s", ErrUnsupported, op)
	}
}

func (cl *compiler) compilePair(op Operation, x, y ast.Expr) (*Expr, error) {
	lhs, err := cl.compile(x)
	if err != nil {
		return nil, err
	}

	rhs, err := cl.compile(y)
	if err != nil {
		return nil, err
	}

	return &Expr{Op: op, Args: []*Expr{lhs, rhs}}, nil
}

func (cl *compiler) compileDepthCond(op token.Token, x, y ast.Expr) (*Expr, error) {
	if fileMethodName(x) != "MaxDepth" {
		return nil, fmt.Errorf("%w: comparison %s", ErrUnsupported, op)
	}

	if !cl.isTopLevel {
		return nil, ErrFileFilterInOr
	}

	if cl.info.FileMaxDepthOp != token.ILLEGAL {
		return nil, fmt.Errorf("%w: file.MaxDepth", ErrDuplicateCond)
	}

	limit, ok := intLiteral(y)
	if !ok {
		return nil, fmt.Errorf("%w: file.MaxDepth compared to non-integer", ErrUnsupported)
	}

	if cl.isNegated {
		op = invertedOps[op]
	}

	cl.info.FileMaxDepthOp = op
	cl.info.FileMaxDepth = limit

	return &Expr{Op: OpNop}, nil
}

func intLiteral(e ast.Expr) (int, bool) {
	switch e := e.(type) {
	case *ast.BasicLit:
		if e.Kind != token.INT {
			return 0, false
		}

		v, err := strconv.ParseInt(e.Value, 0, strconv.IntSize)
		if err != nil {
			return 0, false
		}

		return int(v), true

	case *ast.ParenExpr:
		return intLiteral(e.X)

	default:
		return 0, false
	}
}

// fileMethodName returns M for an expression of the form file.M().
func fileMethodName(e ast.Expr) string {
	call, ok := e.(*ast.CallExpr)
	if !ok {
		return ""
	}

	selector, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return ""
	}

	object, ok := selector.X.(*ast.Ident)
	if !ok || object.Name != "file" {
		return ""
	}

	return selector.Sel.Name
}
