package store

import "github.com/vcsflow/stacker/modules/plumbing"

// diffFlat returns the set of paths whose entry differs (added, removed or
// changed mode/oid) between two already-flattened trees.
func diffFlat(a, b map[string]TreeEntry) map[string]bool {
	changed := make(map[string]bool)
	for p, be := range b {
		if ae, ok := a[p]; !ok || ae.Mode != be.Mode || ae.Oid != be.Oid {
			changed[p] = true
		}
	}
	for p := range a {
		if _, ok := b[p]; !ok {
			changed[p] = true
		}
	}
	return changed
}

// changedPathsForCommit returns the paths touched by a commit relative to
// one of its parents (or the empty tree, for a root commit), used by the
// fast cherry-pick dehydrate step.
func changedPathsForCommit(s ObjectStore, c *Commit) (map[string]bool, error) {
	patchFlat, err := Flatten(s, c.TreeOid, "")
	if err != nil {
		return nil, err
	}
	if c.IsRoot() {
		changed := make(map[string]bool, len(patchFlat))
		for p := range patchFlat {
			changed[p] = true
		}
		return changed, nil
	}
	union := make(map[string]bool)
	for _, parentOid := range c.ParentOids {
		parent, err := s.FindCommit(parentOid)
		if err != nil {
			return nil, err
		}
		parentFlat, err := Flatten(s, parent.TreeOid, "")
		if err != nil {
			return nil, err
		}
		for p := range diffFlat(parentFlat, patchFlat) {
			union[p] = true
		}
	}
	return union, nil
}

func restrictFlat(flat map[string]TreeEntry, paths map[string]bool) map[string]TreeEntry {
	out := make(map[string]TreeEntry, len(paths))
	for p := range paths {
		if e, ok := flat[p]; ok {
			out[p] = e
		}
	}
	return out
}
