package store

import (
	"sort"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
)

// cherryPickFast implements spec.md §4.1's dehydrate/merge/hydrate frame,
// shared by CherryPickFast and AmendFast (amend is cherry-picking a
// synthesized patch onto the same parent).
func cherryPickFast(s ObjectStore, patch, onto *Commit, opts CherryPickOptions) (plumbing.Hash, error) {
	if opts.ReuseParentTreeIfPossible && len(patch.ParentOids) == 1 {
		parent, err := s.FindCommit(patch.ParentOids[0])
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if parent.TreeOid == onto.TreeOid {
			return patch.TreeOid, nil
		}
	}

	changed, err := changedPathsForCommit(s, patch)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	ontoFlat, err := Flatten(s, onto.TreeOid, "")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	patchFlat, err := Flatten(s, patch.TreeOid, "")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	var baseFlat map[string]TreeEntry
	if patch.IsRoot() {
		baseFlat = map[string]TreeEntry{}
	} else {
		parent, err := s.FindCommit(patch.ParentOids[0])
		if err != nil {
			return plumbing.ZeroHash, err
		}
		baseFlat, err = Flatten(s, parent.TreeOid, "")
		if err != nil {
			return plumbing.ZeroHash, err
		}
	}

	dehydratedBase := restrictFlat(baseFlat, changed)
	dehydratedOurs := restrictFlat(ontoFlat, changed)
	dehydratedTheirs := restrictFlat(patchFlat, changed)

	merged, conflicts, err := mergeEntrySets(s, dehydratedBase, dehydratedOurs, dehydratedTheirs)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return plumbing.ZeroHash, &corerr.ErrMergeConflict{Commit: patch.Oid, Paths: conflicts}
	}

	hydrated := make(map[string]TreeEntry, len(ontoFlat))
	for p, e := range ontoFlat {
		hydrated[p] = e
	}
	for p := range changed {
		if e, ok := merged[p]; ok {
			hydrated[p] = e
		} else {
			delete(hydrated, p)
		}
	}
	return Build(s, hydrated)
}

// mergeEntrySets resolves a path-indexed three-way merge over dehydrated
// tree fragments, performing a textual merge3 when both sides touched the
// same path. It returns the merged entries (only for paths that survive)
// and the list of paths left conflicting.
func mergeEntrySets(s ObjectStore, base, ours, theirs map[string]TreeEntry) (map[string]TreeEntry, []string, error) {
	paths := make(map[string]bool)
	for p := range base {
		paths[p] = true
	}
	for p := range ours {
		paths[p] = true
	}
	for p := range theirs {
		paths[p] = true
	}

	out := make(map[string]TreeEntry)
	var conflicts []string
	for p := range paths {
		b, bok := base[p]
		o, ook := ours[p]
		t, took := theirs[p]

		switch {
		case bok && took && t == b:
			// theirs unchanged from base: keep ours (possibly absent == deletion)
			if ook {
				out[p] = o
			}
		case !took && !bok:
			// neither base nor theirs has it: odd but treat as ours
			if ook {
				out[p] = o
			}
		case ook && bok && o == b:
			// ours unchanged from base: take theirs
			if took {
				out[p] = t
			}
		case ook && took && o == t:
			out[p] = o
		case !bok && ook && took:
			// both sides introduced the path independently: conflict unless identical content
			merged, ok, err := mergeBlobs(s, nil, &o, &t)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				out[p] = *merged
			} else {
				conflicts = append(conflicts, p)
			}
		case bok && ook && took:
			merged, ok, err := mergeBlobs(s, &b, &o, &t)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				out[p] = *merged
			} else {
				conflicts = append(conflicts, p)
			}
		case bok && !ook && took:
			// ours deleted, theirs modified: conflict
			conflicts = append(conflicts, p)
		case bok && ook && !took:
			// theirs deleted, ours modified: keep the deletion (patch removed it)
			// fallthrough to no entry (already handled by out not being set)
		default:
			if ook {
				out[p] = o
			} else if took {
				out[p] = t
			}
		}
	}
	return out, conflicts, nil
}

// mergeBlobs attempts a content-level three-way merge of a single path's
// blob across up to three tree entries (any may be nil, meaning absent on
// that side). Returns ok=false if the merge produced conflict markers or
// the entries are not plain files.
func mergeBlobs(s ObjectStore, base, ours, theirs *TreeEntry) (*TreeEntry, bool, error) {
	if ours == nil || theirs == nil {
		return nil, false, nil
	}
	if ours.Mode != theirs.Mode || ours.Mode.IsDir() || theirs.Mode.IsDir() {
		return nil, false, nil
	}
	oursData, err := s.ReadBlob(ours.Oid)
	if err != nil {
		return nil, false, err
	}
	theirsData, err := s.ReadBlob(theirs.Oid)
	if err != nil {
		return nil, false, err
	}
	var baseData []byte
	if base != nil && !base.Mode.IsDir() {
		baseData, err = s.ReadBlob(base.Oid)
		if err != nil {
			return nil, false, err
		}
	}
	merged, conflict := merge3(baseData, oursData, theirsData)
	if conflict {
		return nil, false, nil
	}
	oid, err := s.CreateBlob(merged)
	if err != nil {
		return nil, false, err
	}
	return &TreeEntry{Name: ours.Name, Mode: ours.Mode, Oid: oid}, true, nil
}
