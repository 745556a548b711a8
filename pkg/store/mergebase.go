package store

import "github.com/vcsflow/stacker/modules/plumbing"

// mergeBase finds a common ancestor of a and b by walking both histories'
// ancestor sets and picking the best (lowest-generation, i.e. most recent)
// shared commit. Ties are broken by oid so the result is deterministic.
func mergeBase(s ObjectStore, a, b plumbing.Hash) (plumbing.Hash, bool, error) {
	aAncestors, aOrder, err := ancestorDepths(s, a)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	bAncestors, _, err := ancestorDepths(s, b)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	var best plumbing.Hash
	bestDepth := -1
	found := false
	for _, oid := range aOrder {
		bd, ok := bAncestors[oid]
		if !ok {
			continue
		}
		ad := aAncestors[oid]
		depth := ad
		if bd > depth {
			depth = bd
		}
		if !found || depth < bestDepth {
			best = oid
			bestDepth = depth
			found = true
		}
	}
	return best, found, nil
}

// ancestorDepths returns, for every ancestor of start (inclusive), its
// shortest distance (in parent hops) from start, plus the set of oids in
// breadth-first visitation order (for deterministic best-candidate scans).
func ancestorDepths(s ObjectStore, start plumbing.Hash) (map[plumbing.Hash]int, []plumbing.Hash, error) {
	depths := map[plumbing.Hash]int{start: 0}
	order := []plumbing.Hash{start}
	queue := []plumbing.Hash{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		c, err := s.FindCommit(cur)
		if err != nil {
			return nil, nil, err
		}
		for _, p := range c.ParentOids {
			if _, seen := depths[p]; seen {
				continue
			}
			depths[p] = depths[cur] + 1
			order = append(order, p)
			queue = append(queue, p)
		}
	}
	return depths, order, nil
}
