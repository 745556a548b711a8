// Package rewrite implements the rebase plan builder, executor, and
// post-rewrite fixup (spec components C4, C5, C6): turning a set of move
// requests into a linear command sequence, running that sequence against
// an ObjectStore, and reconciling refs/events/HEAD afterward.
//
// The in-memory executor and the constraint-graph linearization are new
// code (no teacher file plays quite this role — hugescm's rebase is a
// single linear upstream/onto diff, not a DAG of arbitrary move requests),
// grounded directly on spec.md §4.4/§4.5. The on-disk fallback protocol
// (rebase-merge/ state directory, ORIG_HEAD, ToDo file, conflict checkout)
// is ported from pkg/zeta/worktree_rebase.go's RebaseMD/REBASE-MD pattern,
// generalized from one linear diff to an arbitrary Cmd sequence.
package rewrite

import (
	"fmt"
	"sort"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/modules/trace"
	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/dag"
)

// MoveMode selects how a move request's source commits are re-applied.
type MoveMode int

const (
	ModeSubtree MoveMode = iota
	ModeExactRange
	ModeBase
	ModeInsert
	ModeFixup
	ModeReparent
)

// MoveRequest is one { source_set, dest_oid, mode } relocation instruction
// (spec.md §4.4).
type MoveRequest struct {
	Sources []plumbing.Hash
	Dest    plumbing.Hash
	Mode    MoveMode
}

// PlanOptions tunes plan construction.
type PlanOptions struct {
	ForceRewritePublic       bool
	DetectDuplicateViaPatchID bool
	ResolveMergeConflicts    bool
	DumpConstraints          bool
	DumpPlan                 bool
}

// CmdKind discriminates a linearized rebase Cmd.
type CmdKind int

const (
	CmdCreateLabel CmdKind = iota
	CmdResetToLabel
	CmdResetToOid
	CmdPick
	CmdMerge
	CmdDetectEmptyCommit
	CmdRegisterExtraPostRewriteHook
)

func (k CmdKind) String() string {
	switch k {
	case CmdCreateLabel:
		return "label"
	case CmdResetToLabel:
		return "reset-to-label"
	case CmdResetToOid:
		return "reset-to-oid"
	case CmdPick:
		return "pick"
	case CmdMerge:
		return "merge"
	case CmdDetectEmptyCommit:
		return "detect-empty"
	case CmdRegisterExtraPostRewriteHook:
		return "exec"
	}
	return "unknown"
}

// Cmd is one step of a linearized plan.
type Cmd struct {
	Kind CmdKind

	Label string          // CreateLabel, ResetToLabel
	Oid   plumbing.Hash    // ResetToOid
	Orig  plumbing.Hash    // Pick, Merge, DetectEmptyCommit: the original commit being replayed
	// MergeParentLabels maps each of Orig's original parent oids to the
	// label holding that parent's most-recently-applied position.
	MergeParentLabels map[plumbing.Hash]string
	// Reparent marks a Pick that replaces the tree outright instead of
	// three-way merging (spec.md §4.4's Reparent mode).
	Reparent bool
	// FixupOf is not set by BuildPlan and is not read by either executor:
	// ModeFixup sources are emitted as ordinary Pick+DetectEmptyCommit
	// pairs, so no commit is folded into another commit's result.
	FixupOf []plumbing.Hash
}

// Plan is the linearized output of BuildPlan.
type Plan struct {
	Cmds         []Cmd
	FirstDestOid plumbing.Hash
}

// constraintEdge is one edge of the constraint multigraph: a dest -> source
// edge meaning "source's step follows immediately after dest's step."
type constraintEdge struct{ parent, child plumbing.Hash }

// BuildPlan constructs a linear Plan from a DAG snapshot and a set of move
// requests, per spec.md §4.4. universe bounds the descendant search used by
// Subtree/Base/Insert closure (in practice the ancestor set of every
// currently active head; the caller computes it once via
// dag.Graph.Ancestors(dag.Graph.ActiveHeads(replay))).
func BuildPlan(g *dag.Graph, requests []MoveRequest, universe dag.Set, opts PlanOptions) (*Plan, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	if err := checkPermissions(g, requests, opts); err != nil {
		return nil, err
	}

	edges, _, err := buildConstraintGraph(g, requests, universe)
	if err != nil {
		return nil, err
	}
	if opts.DumpConstraints {
		for _, e := range edges {
			trace.DbgPrint("constraint: %s -> %s", e.parent, e.child)
		}
	}
	if err := checkCycles(edges); err != nil {
		return nil, err
	}

	plan, err := linearize(g, edges, requests)
	if err != nil {
		return nil, err
	}
	if opts.DumpPlan && plan != nil {
		for i, c := range plan.Cmds {
			trace.DbgPrint("plan[%d]: kind=%d oid=%s label=%s", i, c.Kind, c.Oid, c.Label)
		}
	}
	return plan, nil
}

// checkPermissions fails with WouldRewritePublic if any source commit is
// public and the caller hasn't opted into rewriting public history.
func checkPermissions(g *dag.Graph, requests []MoveRequest, opts PlanOptions) error {
	if opts.ForceRewritePublic {
		return nil
	}
	public, err := g.Public()
	if err != nil {
		return err
	}
	var offending []plumbing.Hash
	for _, r := range requests {
		for _, s := range r.Sources {
			if public[s] {
				offending = append(offending, s)
			}
		}
	}
	if len(offending) > 0 {
		return &corerr.ErrWouldRewritePublic{Commits: offending}
	}
	return nil
}

// buildConstraintGraph seeds dest->source edges for every request, then
// closes over descendants (Subtree) or explicit members (ExactRange).
func buildConstraintGraph(g *dag.Graph, requests []MoveRequest, universe dag.Set) ([]constraintEdge, dag.Set, error) {
	var edges []constraintEdge
	covered := make(dag.Set)

	for _, r := range requests {
		sourceSet := dag.NewSet(r.Sources...)
		for _, s := range r.Sources {
			covered[s] = true
		}

		switch r.Mode {
		case ModeExactRange, ModeFixup, ModeReparent:
			// closure restricted to the explicitly listed commits: chain
			// them by the order given, then anchor the first onto dest.
			if len(r.Sources) == 0 {
				continue
			}
			edges = append(edges, constraintEdge{parent: r.Dest, child: r.Sources[0]})
			for i := 1; i < len(r.Sources); i++ {
				edges = append(edges, constraintEdge{parent: r.Sources[i-1], child: r.Sources[i]})
			}
		case ModeInsert:
			// Relocate the subtree onto dest, then place dest's original
			// descendants (in the snapshot, excluding the sources
			// themselves) on top of the relocated tip (spec.md §4.4's
			// Insert rule).
			if len(r.Sources) == 0 {
				continue
			}
			relocated, err := threadClosure(g, sourceSet, universe, r.Dest, &edges)
			if err != nil {
				return nil, nil, err
			}
			for m := range relocated {
				covered[m] = true
			}
			tip, err := sequentialTip(g, r.Sources)
			if err != nil {
				return nil, nil, err
			}
			var origChildren dag.Set
			for d := range universe {
				if sourceSet[d] {
					continue
				}
				c, err := g.Store.FindCommit(d)
				if err != nil {
					return nil, nil, err
				}
				for _, p := range c.ParentOids {
					if p == r.Dest {
						if origChildren == nil {
							origChildren = make(dag.Set)
						}
						origChildren[d] = true
						break
					}
				}
			}
			if len(origChildren) > 0 {
				displaced, err := threadClosure(g, origChildren, universe, tip, &edges)
				if err != nil {
					return nil, nil, err
				}
				for m := range displaced {
					covered[m] = true
				}
			}
		default: // Subtree, Base
			// Every member of the closure (explicit sources and the
			// descendants they pull in) is threaded onto its own nearest
			// parent within the closure, not anchored directly onto dest: a
			// chain a->b->c listed entirely as sources must keep a->b->c,
			// not collapse onto three siblings of dest.
			closure, err := threadClosure(g, sourceSet, universe, r.Dest, &edges)
			if err != nil {
				return nil, nil, err
			}
			for m := range closure {
				covered[m] = true
			}
		}
	}
	return edges, covered, nil
}

// threadClosure computes the descendant closure of seeds within universe and
// threads each member onto its nearest parent within that closure, anchoring
// onto anchor any member with no parent inside the closure (an entry point).
// Returns the full closure set; edges are appended to *edges.
func threadClosure(g *dag.Graph, seeds dag.Set, universe dag.Set, anchor plumbing.Hash, edges *[]constraintEdge) (dag.Set, error) {
	desc, err := g.Descendants(seeds, universe)
	if err != nil {
		return nil, err
	}
	closure := make(dag.Set, len(desc)+len(seeds))
	for d := range desc {
		closure[d] = true
	}
	for s := range seeds {
		closure[s] = true
	}
	for m := range closure {
		c, err := g.Store.FindCommit(m)
		if err != nil {
			return nil, err
		}
		var parentsInClosure []plumbing.Hash
		for _, p := range c.ParentOids {
			if closure[p] {
				parentsInClosure = append(parentsInClosure, p)
			}
		}
		if len(parentsInClosure) == 0 {
			*edges = append(*edges, constraintEdge{parent: anchor, child: m})
			continue
		}
		sort.Slice(parentsInClosure, func(i, j int) bool {
			return plumbing.HashSlice{parentsInClosure[i], parentsInClosure[j]}.Less(0, 1)
		})
		*edges = append(*edges, constraintEdge{parent: parentsInClosure[0], child: m})
	}
	return closure, nil
}

// sequentialTip returns the topologically-last commit among sources (the
// one that is not itself an ancestor, within sources, of any other),
// breaking ties by oid for determinism.
func sequentialTip(g *dag.Graph, sources []plumbing.Hash) (plumbing.Hash, error) {
	isAncestorOfAnother := make(dag.Set)
	for _, s := range sources {
		anc, err := g.Ancestors(dag.NewSet(s))
		if err != nil {
			return plumbing.ZeroHash, err
		}
		for _, other := range sources {
			if other != s && anc[other] {
				isAncestorOfAnother[other] = true
			}
		}
	}
	var tips []plumbing.Hash
	for _, s := range sources {
		if !isAncestorOfAnother[s] {
			tips = append(tips, s)
		}
	}
	if len(tips) == 0 {
		tips = sources
	}
	sort.Slice(tips, func(i, j int) bool { return plumbing.HashSlice{tips[i], tips[j]}.Less(0, 1) })
	return tips[len(tips)-1], nil
}

func checkCycles(edges []constraintEdge) error {
	children := make(map[plumbing.Hash][]plumbing.Hash)
	for _, e := range edges {
		children[e.parent] = append(children[e.parent], e.child)
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[plumbing.Hash]int)
	var path []plumbing.Hash
	var cycle []plumbing.Hash

	var visit func(n plumbing.Hash) bool
	visit = func(n plumbing.Hash) bool {
		color[n] = gray
		path = append(path, n)
		for _, c := range children[n] {
			switch color[c] {
			case white:
				if visit(c) {
					return true
				}
			case gray:
				for i, p := range path {
					if p == c {
						cycle = append([]plumbing.Hash{}, path[i:]...)
						return true
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	nodes := make([]plumbing.Hash, 0, len(children))
	for n := range children {
		nodes = append(nodes, n)
	}
	plumbing.HashesSort(nodes)
	for _, n := range nodes {
		if color[n] == white {
			if visit(n) {
				return &corerr.ErrConstraintCycle{Oids: cycle}
			}
		}
	}
	return nil
}

// linearize performs the roots-first DFS described in spec.md §4.4: each
// root gets a ResetToOid(dest), its children are emitted as Picks in oid
// order, and branch points get a label so later siblings can reset back.
func linearize(g *dag.Graph, edges []constraintEdge, requests []MoveRequest) (*Plan, error) {
	children := make(map[plumbing.Hash][]plumbing.Hash)
	modeOf := make(map[plumbing.Hash]MoveMode)
	isChild := make(dag.Set)
	for _, e := range edges {
		children[e.parent] = append(children[e.parent], e.child)
		isChild[e.child] = true
	}
	for _, r := range requests {
		for _, s := range r.Sources {
			modeOf[s] = r.Mode
		}
	}

	// roots are the distinct dest oids that are not themselves being moved
	// by another request; each gets its own ResetToOid anchor, and emit()
	// walks its seeded children (the request's sources) from there.
	var roots []plumbing.Hash
	seenRoot := make(dag.Set)
	for _, r := range requests {
		if !isChild[r.Dest] && !seenRoot[r.Dest] {
			roots = append(roots, r.Dest)
			seenRoot[r.Dest] = true
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		return plumbing.HashSlice{roots[i], roots[j]}.Less(0, 1)
	})

	var cmds []Cmd
	var firstDest plumbing.Hash
	branchLabel := make(map[plumbing.Hash]string) // label marking a branch point, keyed by the parent node
	posLabel := make(map[plumbing.Hash]string)     // most-recently-applied position of an original oid, for merge parent resolution
	labelSeq := 0
	newLabel := func() string {
		l := fmt.Sprintf("label-%d", labelSeq)
		labelSeq++
		return l
	}

	var emit func(parent plumbing.Hash)
	emit = func(parent plumbing.Hash) {
		kids := append([]plumbing.Hash(nil), children[parent]...)
		sort.Slice(kids, func(i, j int) bool { return plumbing.HashSlice{kids[i], kids[j]}.Less(0, 1) })
		if len(kids) >= 2 {
			label := newLabel()
			cmds = append(cmds, Cmd{Kind: CmdCreateLabel, Label: label})
			branchLabel[parent] = label
		}
		for i, child := range kids {
			if i > 0 {
				if l, ok := branchLabel[parent]; ok {
					cmds = append(cmds, Cmd{Kind: CmdResetToLabel, Label: l})
				}
			}
			c, err := g.Store.FindCommit(child)
			switch {
			case err != nil || c.IsMerge():
				mergeCmd := Cmd{Kind: CmdMerge, Orig: child, MergeParentLabels: map[plumbing.Hash]string{}}
				if c != nil {
					for _, p := range c.ParentOids {
						if l, ok := posLabel[p]; ok {
							mergeCmd.MergeParentLabels[p] = l
						}
					}
				}
				cmds = append(cmds, mergeCmd)
			case modeOf[child] == ModeReparent:
				cmds = append(cmds, Cmd{Kind: CmdPick, Orig: child, Reparent: true})
				cmds = append(cmds, Cmd{Kind: CmdDetectEmptyCommit, Orig: child})
			default:
				// every pick (fixup or not) is followed by an emptiness check:
				// a cherry-pick onto its new parent can reproduce an identical
				// tree, in which case the executor drops it.
				cmds = append(cmds, Cmd{Kind: CmdPick, Orig: child})
				cmds = append(cmds, Cmd{Kind: CmdDetectEmptyCommit, Orig: child})
			}
			posLabel[child] = newLabel()
			cmds = append(cmds, Cmd{Kind: CmdCreateLabel, Label: posLabel[child]})
			emit(child)
		}
	}

	for i, dest := range roots {
		if i == 0 {
			firstDest = dest
		}
		cmds = append(cmds, Cmd{Kind: CmdResetToOid, Oid: dest})
		emit(dest)
	}
	cmds = append(cmds, Cmd{Kind: CmdRegisterExtraPostRewriteHook})

	return &Plan{Cmds: cmds, FirstDestOid: firstDest}, nil
}
