package dag

import (
	"sort"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/store"
)

// SortedTopologically returns set in stable topological order: every
// ancestor of a commit that is also in set appears before it, ties broken
// by committer time then oid (spec.md §4.3), matching Commit.Less.
//
// Ported from commit_walker_topo_order.go's explorer-stack / visit-stack
// split (Kahn's algorithm with a priority queue standing in for the visit
// stack), restricted to the caller-supplied set instead of walking full
// history and run forward (roots first) rather than that file's
// reverse-chronological child-first order, since C4's plan linearization
// and C7's bisection both need ancestors emitted before
// descendants.
func (g *Graph) SortedTopologically(set Set) ([]plumbing.Hash, error) {
	commits := make(map[plumbing.Hash]*store.Commit, len(set))
	for o := range set {
		c, err := g.Store.FindCommit(o)
		if err != nil {
			return nil, err
		}
		commits[o] = c
	}

	// childrenOf[p] = commits in set whose parent p is also in set.
	// inDegree[o] = number of o's parents that are in set and not yet emitted.
	childrenOf := make(map[plumbing.Hash][]*store.Commit, len(set))
	inDegree := make(map[plumbing.Hash]int, len(set))
	for o, c := range commits {
		for _, p := range c.ParentOids {
			if _, inSet := commits[p]; inSet {
				childrenOf[p] = append(childrenOf[p], c)
				inDegree[o]++
			}
		}
	}

	ready := binaryheap.NewWith(func(a, b any) int {
		ca, cb := a.(*store.Commit), b.(*store.Commit)
		switch {
		case ca.Less(cb):
			return -1
		case cb.Less(ca):
			return 1
		default:
			return 0
		}
	})
	for o, c := range commits {
		if inDegree[o] == 0 {
			ready.Push(c)
		}
	}

	out := make([]plumbing.Hash, 0, len(set))
	for ready.Size() > 0 {
		v, _ := ready.Pop()
		c := v.(*store.Commit)
		out = append(out, c.Oid)
		for _, child := range childrenOf[c.Oid] {
			inDegree[child.Oid]--
			if inDegree[child.Oid] == 0 {
				ready.Push(child)
			}
		}
	}

	if len(out) != len(set) {
		// a parent edge points outside set in a way that created a cycle in
		// the restricted graph (shouldn't happen for a real commit DAG);
		// fall back to a stable sort so callers still get a total order.
		out = out[:0]
		for o := range set {
			out = append(out, o)
		}
		sort.Slice(out, func(i, j int) bool { return commits[out[i]].Less(commits[out[j]]) })
	}

	return out, nil
}
