package structural

import (
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/gocorpus/pkg/matcher/filters"
)

var literalKinds = map[filters.Operation][]string{
	filters.OpVarIsStringLit:  {"interpreted_string_literal", "raw_string_literal"},
	filters.OpVarIsRuneLit:    {"rune_literal"},
	filters.OpVarIsIntLit:     {"int_literal"},
	filters.OpVarIsFloatLit:   {"float_literal"},
	filters.OpVarIsComplexLit: {"imaginary_literal"},
}

func isLiteral(typ string) bool {
	switch typ {
	case "interpreted_string_literal", "raw_string_literal", "rune_literal",
		"int_literal", "float_literal", "imaginary_literal":
		return true
	default:
		return false
	}
}

// eval applies a compiled filter to the captures of one match.
// A predicate on a variable that was not captured is false.
func eval(e *filters.Expr, vars map[string]sitter.Node, src []byte) bool {
	switch e.Op {
	case filters.OpNop:
		return true
	case filters.OpNot:
		return !eval(e.Args[0], vars, src)
	case filters.OpAnd:
		return eval(e.Args[0], vars, src) && eval(e.Args[1], vars, src)
	case filters.OpOr:
		return eval(e.Args[0], vars, src) || eval(e.Args[1], vars, src)
	}

	n, ok := vars[e.Str]
	if !ok || n.IsNull() {
		return false
	}

	switch e.Op {
	case filters.OpVarIsConst:
		return isConst(n)
	case filters.OpVarIsPure:
		return isPure(n, src)
	default:
		kinds, known := literalKinds[e.Op]
		if !known {
			return false
		}

		typ := n.Type()
		for _, kind := range kinds {
			if typ == kind {
				return true
			}
		}

		return false
	}
}

func isConst(n sitter.Node) bool {
	switch n.Type() {
	case "unary_expression":
		return isConst(n.ChildByFieldName("operand"))
	case "binary_expression":
		return isConst(n.ChildByFieldName("left")) && isConst(n.ChildByFieldName("right"))
	case "parenthesized_expression":
		return n.NamedChildCount() == 1 && isConst(n.NamedChild(0))
	default:
		return isLiteral(n.Type())
	}
}

var pureBuiltins = map[string]bool{"len": true, "cap": true, "real": true, "imag": true}

// isPure is conservative: anything not known to be free of side effects is impure.
func isPure(n sitter.Node, src []byte) bool {
	if n.IsNull() {
		return true
	}

	typ := n.Type()
	if isLiteral(typ) {
		return true
	}

	switch typ {
	case "identifier", "field_identifier", "package_identifier", "true", "false", "nil", "iota":
		return true

	case "unary_expression":
		if n.ChildByFieldName("operator").Type() == "<-" {
			return false
		}

		return isPure(n.ChildByFieldName("operand"), src)

	case "type_assertion_expression":
		return isPure(n.ChildByFieldName("operand"), src)

	case "composite_literal":
		return isPure(n.ChildByFieldName("body"), src)

	case "call_expression":
		fn := n.ChildByFieldName("function")
		if fn.Type() != "identifier" || !pureBuiltins[fn.Content(src)] {
			return false
		}

		return pureChildren(n.ChildByFieldName("arguments"), src)

	case "binary_expression", "parenthesized_expression", "selector_expression",
		"index_expression", "slice_expression", "literal_value",
		"literal_element", "keyed_element":
		return pureChildren(n, src)

	default:
		return false
	}
}

func pureChildren(n sitter.Node, src []byte) bool {
	for i := range n.NamedChildCount() {
		if !isPure(n.NamedChild(i), src) {
			return false
		}
	}

	return true
}
