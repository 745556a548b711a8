// Package revset implements the revset AST, a small recursive-descent
// parser for it, and its evaluator — the "external collaborator" spec.md
// §4.3 says C3's resolve() delegates parsing/evaluation to.
//
// Grounded on _examples/original_source/git-branchless/src/revset/eval.rs:
// the Expr shape (a bare Name or a FunctionCall(name, args)) and the
// Context pattern (lazily-cached public/active-heads/active/draft sets
// backing the zero-arg functions) are ported directly; dag.Graph.Public and
// dag.Graph.ActiveHeads already provide the two caches eval.rs's Context
// memoizes by hand with OnceCell.
package revset

// Expr is a parsed revset expression: either a bare name (an oid, ref, or
// zero-arg keyword) or a function call.
type Expr interface{ isExpr() }

// Name is an unparsed identifier: an oid prefix, a reference name, or a
// keyword handled by evalName (e.g. "all", "none").
type Name struct{ Value string }

func (Name) isExpr() {}

// Call is a function application, e.g. "ancestors(foo)" or
// "difference(a, b)".
type Call struct {
	Func string
	Args []Expr
}

func (Call) isExpr() {}
