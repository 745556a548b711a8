package revset

import (
	"fmt"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/eventlog"
)

// TestQuerier answers the tests.passed()/tests.failed()/tests.fixable()
// predicates against C7's result cache, keyed by a commit's tree oid and
// the configured test command (spec.md §6's table names these predicates
// without elaborating; pkg/testrunner supplies the implementation).
type TestQuerier interface {
	Command() string
	Status(treeOid plumbing.Hash, command string) (passed bool, failed bool, fixable bool, found bool)
}

// Context carries everything evaluation needs: the DAG to query, the
// replay snapshot visibility is derived from, and (optionally) a test
// cache for the tests.* predicates.
type Context struct {
	Graph  *dag.Graph
	Replay *eventlog.ReplayState
	Tests  TestQuerier

	public dag.Set
	active dag.Set
	draft  dag.Set
	heads  dag.Set
	inited bool
}

func (c *Context) ensureSets() error {
	if c.inited {
		return nil
	}
	pub, err := c.Graph.Public()
	if err != nil {
		return err
	}
	heads, err := c.Graph.ActiveHeads(c.Replay)
	if err != nil {
		return err
	}
	active, err := c.Graph.Ancestors(heads)
	if err != nil {
		return err
	}
	draft := make(dag.Set, len(active))
	for o := range active {
		if !pub[o] {
			draft[o] = true
		}
	}
	c.public, c.active, c.draft, c.heads = pub, active, draft, heads
	c.inited = true
	return nil
}

// Resolve is the C3 entry point: evaluates a parsed revset expression into
// a materialized commit set at current snapshot time (spec.md §4.3).
func Resolve(ctx *Context, expr Expr) (dag.Set, error) {
	if err := ctx.ensureSets(); err != nil {
		return nil, err
	}
	return eval(ctx, expr)
}

func eval(ctx *Context, expr Expr) (dag.Set, error) {
	switch e := expr.(type) {
	case Name:
		return evalName(ctx, e.Value)
	case Call:
		return evalCall(ctx, e.Func, e.Args)
	default:
		return nil, fmt.Errorf("revset: unknown expression type %T", expr)
	}
}

func evalName(ctx *Context, name string) (dag.Set, error) {
	switch name {
	case "all":
		return ctx.active, nil
	case "none":
		return dag.Set{}, nil
	case "public":
		return ctx.public, nil
	case "draft":
		return ctx.draft, nil
	case "heads":
		return ctx.heads, nil
	}
	if plumbing.ValidateHashHex(name) {
		oid := plumbing.NewHash(name)
		if _, err := ctx.Graph.Store.FindCommit(oid); err == nil {
			return dag.NewSet(oid), nil
		}
	}
	ref, err := ctx.Graph.Store.ResolveRef(plumbing.NewBranchReferenceName(name))
	if err == nil {
		return dag.NewSet(ref.Oid), nil
	}
	return nil, corerr.ErrUnboundName
}

func evalCall(ctx *Context, fn string, args []Expr) (dag.Set, error) {
	unary := func() (dag.Set, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("revset: %s takes exactly one argument, got %d", fn, len(args))
		}
		return eval(ctx, args[0])
	}
	binary := func() (dag.Set, dag.Set, error) {
		if len(args) != 2 {
			return nil, nil, fmt.Errorf("revset: %s takes exactly two arguments, got %d", fn, len(args))
		}
		a, err := eval(ctx, args[0])
		if err != nil {
			return nil, nil, err
		}
		b, err := eval(ctx, args[1])
		if err != nil {
			return nil, nil, err
		}
		return a, b, nil
	}
	nary := func() ([]dag.Set, error) {
		sets := make([]dag.Set, 0, len(args))
		for _, a := range args {
			s, err := eval(ctx, a)
			if err != nil {
				return nil, err
			}
			sets = append(sets, s)
		}
		return sets, nil
	}

	switch fn {
	case "ancestors":
		s, err := unary()
		if err != nil {
			return nil, err
		}
		return ctx.Graph.Ancestors(s)
	case "descendants":
		s, err := unary()
		if err != nil {
			return nil, err
		}
		return ctx.Graph.Descendants(s, ctx.active)
	case "only", "difference", "-":
		a, b, err := binary()
		if err != nil {
			return nil, err
		}
		out := make(dag.Set, len(a))
		for o := range a {
			if !b[o] {
				out[o] = true
			}
		}
		return out, nil
	case "union", "|":
		sets, err := nary()
		if err != nil {
			return nil, err
		}
		out := make(dag.Set)
		for _, s := range sets {
			for o := range s {
				out[o] = true
			}
		}
		return out, nil
	case "intersect", "&":
		sets, err := nary()
		if err != nil {
			return nil, err
		}
		if len(sets) == 0 {
			return dag.Set{}, nil
		}
		out := make(dag.Set, len(sets[0]))
		for o := range sets[0] {
			inAll := true
			for _, s := range sets[1:] {
				if !s[o] {
					inAll = false
					break
				}
			}
			if inAll {
				out[o] = true
			}
		}
		return out, nil
	case "not":
		s, err := unary()
		if err != nil {
			return nil, err
		}
		out := make(dag.Set, len(ctx.active))
		for o := range ctx.active {
			if !s[o] {
				out[o] = true
			}
		}
		return out, nil
	case "tests.passed", "tests.failed", "tests.fixable":
		return evalTestPredicate(ctx, fn)
	default:
		return nil, fmt.Errorf("revset: unbound function %q", fn)
	}
}

func evalTestPredicate(ctx *Context, fn string) (dag.Set, error) {
	if ctx.Tests == nil {
		return nil, fmt.Errorf("revset: %s: no test cache configured", fn)
	}
	out := make(dag.Set)
	cmd := ctx.Tests.Command()
	for oid := range ctx.active {
		c, err := ctx.Graph.Store.FindCommit(oid)
		if err != nil {
			return nil, err
		}
		passed, failed, fixable, found := ctx.Tests.Status(c.TreeOid, cmd)
		if !found {
			continue
		}
		switch fn {
		case "tests.passed":
			if passed {
				out[oid] = true
			}
		case "tests.failed":
			if failed {
				out[oid] = true
			}
		case "tests.fixable":
			if fixable {
				out[oid] = true
			}
		}
	}
	return out, nil
}
