package testrunner

import (
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/rewrite"
	"github.com/vcsflow/stacker/pkg/store"
)

// Fix implements the "fix" feedback loop (spec.md §4.7): every Passed
// result carrying a FixedTreeOid becomes a new commit (same author,
// committer, message and parents, new tree), and that commit's original
// descendants are re-rooted onto it via C4/C5.
func Fix(s store.ObjectStore, g *dag.Graph, universe dag.Set, results []CommitResult, planOpts rewrite.PlanOptions, execOpts rewrite.ExecutorOptions) (*rewrite.Result, error) {
	rewriteMap := make(rewrite.RewriteMap)
	var moves []rewrite.MoveRequest

	for _, r := range results {
		if r.Status != StatusPassed || r.Result == nil || r.Result.FixedTreeOid.IsZero() {
			continue
		}
		orig, err := s.FindCommit(r.Commit)
		if err != nil {
			return nil, err
		}
		fixed, err := s.CreateCommit(orig.Author, orig.Committer, orig.Message, r.Result.FixedTreeOid, orig.ParentOids)
		if err != nil {
			return nil, err
		}
		rewriteMap[r.Commit] = fixed

		children := directChildren(s, universe, r.Commit)
		if len(children) > 0 {
			moves = append(moves, rewrite.MoveRequest{
				Sources: children,
				Dest:    fixed,
				Mode:    rewrite.ModeSubtree,
			})
		}
	}

	if len(moves) == 0 {
		return &rewrite.Result{RewriteMap: rewriteMap}, nil
	}

	plan, err := rewrite.BuildPlan(g, moves, universe, planOpts)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return &rewrite.Result{RewriteMap: rewriteMap}, nil
	}
	execRes, err := rewrite.ExecuteInMemory(s, plan, execOpts)
	if err != nil {
		return nil, err
	}
	for k, v := range execRes.RewriteMap {
		rewriteMap[k] = v
	}
	return &rewrite.Result{RewriteMap: rewriteMap, ExtraHooksPending: execRes.ExtraHooksPending}, nil
}

// directChildren returns every commit in universe whose parent list
// contains oid.
func directChildren(s store.ObjectStore, universe dag.Set, oid plumbing.Hash) []plumbing.Hash {
	var out []plumbing.Hash
	for candidate := range universe {
		c, err := s.FindCommit(candidate)
		if err != nil {
			continue
		}
		for _, p := range c.ParentOids {
			if p == oid {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}
